// Package railhistory implements spec.md §4.5's rolling received-sequence
// acknowledgment window: an N-chunk bitset tracking which SequenceIds have
// been seen relative to the latest one received.
package railhistory

import "github.com/araex/railgunnet-go/internal/railtime"

const chunkBits = 32

// Bitset is an N*32-bit rolling window. The latest received id is tracked
// directly and needs no bit; bit k represents the id (k+1) steps older, per
// spec.md §4.5's "set bit (latest-id)-1". Storing an id newer than the
// current latest shifts the whole window forward, aging out whatever falls
// off the far end.
type Bitset struct {
	chunks []uint32
	latest railtime.SequenceId
	hasAny bool
}

// New builds a bitset with the given chunk count (spec.md §6 HISTORY_CHUNKS);
// capacity is chunks*32 bits.
func New(chunks int) *Bitset {
	return &Bitset{chunks: make([]uint32, chunks)}
}

// Capacity returns the number of ids this window can track.
func (h *Bitset) Capacity() int { return len(h.chunks) * chunkBits }

func (h *Bitset) bit(i int) bool {
	return h.chunks[i/chunkBits]&(1<<uint(i%chunkBits)) != 0
}

func (h *Bitset) setBit(i int) {
	h.chunks[i/chunkBits] |= 1 << uint(i%chunkBits)
}

func (h *Bitset) clearBit(i int) {
	h.chunks[i/chunkBits] &^= 1 << uint(i%chunkBits)
}

// shift moves every bit n positions up (toward "older"), dropping bits that
// fall past capacity and clearing the vacated low bits.
func (h *Bitset) shift(n int) {
	if n >= h.Capacity() {
		for i := range h.chunks {
			h.chunks[i] = 0
		}
		return
	}
	for i := h.Capacity() - 1; i >= 0; i-- {
		src := i - n
		if src >= 0 && h.bit(src) {
			h.setBit(i)
		} else {
			h.clearBit(i)
		}
	}
}

// Store records id as received. If id is newer than the current latest, the
// window shifts forward by the distance, the previous latest is folded into
// the window at its new age, and id becomes the new latest. Otherwise, if id
// still falls within the window, its corresponding bit is set; an id too old
// for the window is simply not recorded (ValueTooOld will report it as stale
// on any later check).
func (h *Bitset) Store(id railtime.SequenceId) {
	if !h.hasAny {
		h.latest = id
		h.hasAny = true
		return
	}
	dist := id.Sub(h.latest)
	switch {
	case dist > 0:
		h.shift(int(dist))
		if idx := int(dist) - 1; idx < h.Capacity() {
			h.setBit(idx)
		}
		h.latest = id
	case dist == 0:
		// already the latest; nothing to record.
	default:
		age := int(-dist)
		if idx := age - 1; idx < h.Capacity() {
			h.setBit(idx)
		}
	}
}

// Contains reports whether id has been recorded and is still within the
// window.
func (h *Bitset) Contains(id railtime.SequenceId) bool {
	if !h.hasAny {
		return false
	}
	dist := id.Sub(h.latest)
	if dist > 0 {
		return false
	}
	if dist == 0 {
		return true
	}
	age := int(-dist)
	idx := age - 1
	if idx >= h.Capacity() {
		return false
	}
	return h.bit(idx)
}

// ValueTooOld reports whether id is older than the window can represent at
// all (neither stored nor storable).
func (h *Bitset) ValueTooOld(id railtime.SequenceId) bool {
	if !h.hasAny {
		return false
	}
	dist := id.Sub(h.latest)
	if dist >= 0 {
		return false
	}
	age := int(-dist)
	idx := age - 1
	return idx >= h.Capacity()
}

// IsNewId reports whether id is neither too old nor already recorded — the
// condition under which a received packet should actually be processed.
func (h *Bitset) IsNewId(id railtime.SequenceId) bool {
	return !h.ValueTooOld(id) && !h.Contains(id)
}
