package railscope

import (
	"sort"

	"github.com/araex/railgunnet-go/internal/railstate"
	"github.com/araex/railgunnet-go/internal/railtime"
)

// scopeEntry is one entity's per-client visibility/ack state (spec.md §3's
// Scope).
type scopeEntry struct {
	entityId      railstate.EntityId
	lastSentTick  railtime.Tick
	lastAckedTick railtime.Tick
	isFrozen      bool
	removed       bool
}

// candidateKind orders priority buckets for snapshot production: removed
// entities are never starved by a flood of active-entity updates, and
// frozen entities cost only a marker (spec.md §4.9's S2C candidate order).
type candidateKind int

const (
	kindRemoved candidateKind = iota
	kindFrozen
	kindActive
)

// Scope is one client's per-peer EntityId -> scopeEntry table, plus the
// priority ordering spec.md §4.8 describes: unsent first, then smallest
// lastSentTick.
type Scope struct {
	entries map[railstate.EntityId]*scopeEntry
}

// NewScope builds an empty scope for one peer.
func NewScope() *Scope {
	return &Scope{entries: make(map[railstate.EntityId]*scopeEntry)}
}

// Track ensures id has a scope entry, creating one (never sent, never
// acked) if absent. Call this once an entity enters a client's area of
// interest.
func (s *Scope) Track(id railstate.EntityId) {
	if _, ok := s.entries[id]; !ok {
		s.entries[id] = &scopeEntry{entityId: id, lastSentTick: railtime.Invalid, lastAckedTick: railtime.Invalid}
	}
}

// SetFrozen marks whether id is currently in this client's area of interest.
// A frozen entity produces a frozen delta instead of a full state delta.
func (s *Scope) SetFrozen(id railstate.EntityId, frozen bool) {
	if e, ok := s.entries[id]; ok {
		e.isFrozen = frozen
	}
}

// MarkRemoved flags id as pending removal from this client's scope; it stays
// tracked (so retention logic can still see lastSentTick/lastAckedTick)
// until Forget clears it.
func (s *Scope) MarkRemoved(id railstate.EntityId) {
	if e, ok := s.entries[id]; ok {
		e.removed = true
	}
}

// Forget drops id from the scope outright (the entity is gone and fully
// retired, or was never shared with this client to begin with).
func (s *Scope) Forget(id railstate.EntityId) {
	delete(s.entries, id)
}

// LastAckedTick returns the last tick this client acknowledged for id, or
// railtime.Invalid if none (forcing a full-immutable basis on next send).
func (s *Scope) LastAckedTick(id railstate.EntityId) railtime.Tick {
	if e, ok := s.entries[id]; ok {
		return e.lastAckedTick
	}
	return railtime.Invalid
}

// LastSentTick returns the last tick a delta for id was sent to this client.
func (s *Scope) LastSentTick(id railstate.EntityId) railtime.Tick {
	if e, ok := s.entries[id]; ok {
		return e.lastSentTick
	}
	return railtime.Invalid
}

// RecordSent updates lastSentTick after a delta for id is placed in an
// outgoing packet.
func (s *Scope) RecordSent(id railstate.EntityId, tick railtime.Tick) {
	if e, ok := s.entries[id]; ok {
		e.lastSentTick = tick
	}
}

// IntegrateAcked advances lastAckedTick[id] monotonically for every entry in
// a client's received View (spec.md §4.8's "IntegrateAcked(view)").
func (s *Scope) IntegrateAcked(view []ViewEntry) {
	for _, ve := range view {
		e, ok := s.entries[ve.EntityId]
		if !ok {
			continue
		}
		if !e.lastAckedTick.IsValid() || e.lastAckedTick.Before(ve.LastReceivedTick) {
			e.lastAckedTick = ve.LastReceivedTick
		}
	}
}

// ShouldRetire reports whether id can be dropped from removedEntities
// (spec.md §4.8's retention rule): every peer has either never seen it
// (lastSentTick invalid) or has acked at least removedTick.
func (s *Scope) ShouldRetire(id railstate.EntityId, removedTick railtime.Tick) bool {
	e, ok := s.entries[id]
	if !ok {
		return true
	}
	if !e.lastSentTick.IsValid() {
		return true
	}
	return e.lastAckedTick.IsValid() && !e.lastAckedTick.Before(removedTick)
}

// Candidate is one entity queued for a send-tick snapshot, in priority
// order.
type Candidate struct {
	EntityId      railstate.EntityId
	IsFrozen      bool
	IsRemoved     bool
	LastAckedTick railtime.Tick
}

// Candidates returns every tracked entity ordered removed-first,
// frozen-second, active-last; within a bucket, unsent entries sort before
// sent ones, then by ascending lastSentTick (spec.md §4.8/§4.9).
func (s *Scope) Candidates() []Candidate {
	out := make([]Candidate, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, Candidate{EntityId: e.entityId, IsFrozen: e.isFrozen, IsRemoved: e.removed, LastAckedTick: e.lastAckedTick})
	}

	entryFor := func(c Candidate) *scopeEntry { return s.entries[c.EntityId] }
	kindOf := func(c Candidate) candidateKind {
		switch {
		case c.IsRemoved:
			return kindRemoved
		case c.IsFrozen:
			return kindFrozen
		default:
			return kindActive
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := kindOf(out[i]), kindOf(out[j])
		if ki != kj {
			return ki < kj
		}
		ei, ej := entryFor(out[i]), entryFor(out[j])
		iSent, jSent := ei.lastSentTick.IsValid(), ej.lastSentTick.IsValid()
		if iSent != jSent {
			return !iSent // unsent (false) sorts first
		}
		if !iSent {
			return false // both unsent, stable order
		}
		return ei.lastSentTick.Before(ej.lastSentTick)
	})
	return out
}
