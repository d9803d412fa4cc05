// Package railpeer tracks per-peer wire bookkeeping (spec.md §4.10): the
// outgoing packet SequenceId counter, the received-packet history bitset,
// and the pending/received reliable-event streams, reworked from the
// teacher's transport-level RecoveryQueue/PendingACK retransmission into an
// application-level retry scheme since the engine's own transport contract
// (spec.md §6) is unreliable and unordered by design.
package railpeer

import (
	"sort"

	"github.com/araex/railgunnet-go/internal/railhistory"
	"github.com/araex/railgunnet-go/internal/railtime"
)

// pendingEvent is one outgoing reliable event awaiting acknowledgment.
type pendingEvent struct {
	id           EventId
	event        Event
	attemptsLeft int
	expiresAt    railtime.Tick
	freeWhenDone bool
	sent         bool
}

// Peer holds the bookkeeping for one remote endpoint: outgoing sequence
// numbers, received-packet dedup, and the reliable-event send/receive
// streams.
type Peer struct {
	outgoingSeq railtime.SequenceId
	received    *railhistory.Bitset

	nextEventId    EventId
	pendingOut     []*pendingEvent
	pendingByID    map[EventId]*pendingEvent
	lastAckedEvent EventId

	highestContiguousIn EventId
	outOfOrderIn        map[EventId]struct{}

	// release, if set, is handed every freeWhenDone event once it leaves
	// pendingOut for good (acked, individually acked, or expired) — the
	// free-list half of spec.md §9's "objects whose lifetime crosses send
	// boundaries" for reliable events. A caller that never sets it keeps the
	// teacher's original behavior: the event is simply dropped for the
	// garbage collector.
	release func(Event)
}

// New builds a Peer with a received-packet history of the given chunk
// capacity (spec.md §6 HISTORY_CHUNKS).
func New(historyChunks int) *Peer {
	return &Peer{
		received:     railhistory.New(historyChunks),
		pendingByID:  make(map[EventId]*pendingEvent),
		outOfOrderIn: make(map[EventId]struct{}),
	}
}

// SetReleaseFunc installs release, called for every freeWhenDone event this
// peer retires.
func (p *Peer) SetReleaseFunc(release func(Event)) {
	p.release = release
}

// NextOutgoingSequence advances and returns the next packet SequenceId to
// stamp on an outgoing packet.
func (p *Peer) NextOutgoingSequence() railtime.SequenceId {
	if !p.outgoingSeq.IsValid() {
		p.outgoingSeq = railtime.NewSequenceId(0)
		return p.outgoingSeq
	}
	p.outgoingSeq = p.outgoingSeq.Next()
	return p.outgoingSeq
}

// AcceptPacket reports whether a received packet's SequenceId should be
// processed (not stale, not a duplicate), recording it either way so a
// repeat of the same id is rejected next time.
func (p *Peer) AcceptPacket(seq railtime.SequenceId) bool {
	isNew := p.received.IsNewId(seq)
	p.received.Store(seq)
	return isNew
}

// QueueEvent enqueues a reliable event for retried sending, returning the
// EventId it was stamped with.
func (p *Peer) QueueEvent(event Event, attempts int, freeWhenDone bool, expiresAt railtime.Tick) EventId {
	p.nextEventId = p.nextEventId.Next()
	pe := &pendingEvent{
		id:           p.nextEventId,
		event:        event,
		attemptsLeft: attempts,
		expiresAt:    expiresAt,
		freeWhenDone: freeWhenDone,
	}
	p.pendingOut = append(p.pendingOut, pe)
	p.pendingByID[pe.id] = pe
	return pe.id
}

// OutgoingEvent pairs an Event with the id it was queued under, for
// serialization.
type OutgoingEvent struct {
	Id    EventId
	Event Event
}

// PendingForSend returns the lowest-id unacked events, in ascending id order,
// for a caller to attempt packing (spec.md §4.10's "include the lowest-id
// unacked events that fit"). It does not mutate attempt counts; call
// RecordAttempt for every event actually placed into a packet.
func (p *Peer) PendingForSend() []OutgoingEvent {
	out := make([]OutgoingEvent, 0, len(p.pendingOut))
	for _, pe := range p.pendingOut {
		out = append(out, OutgoingEvent{Id: pe.id, Event: pe.event})
	}
	return out
}

// RecordAttempt decrements an event's remaining attempts after it was
// actually placed into a sent packet, reporting whether this was a retry
// (every attempt after the first).
func (p *Peer) RecordAttempt(id EventId) (retry bool) {
	pe, ok := p.pendingByID[id]
	if !ok {
		return false
	}
	retry = pe.sent
	pe.sent = true
	pe.attemptsLeft--
	return retry
}

// ExpiredWarnings drops events that ran out of attempts or reached their
// expiration tick, returning the dropped ids for a caller to log a warning
// against (spec.md §4.10: "events that exhaust their attempts are dropped
// with a warning").
func (p *Peer) ExpiredWarnings(roomTick railtime.Tick) []EventId {
	var dropped []EventId
	for id, pe := range p.pendingByID {
		expired := pe.expiresAt.IsValid() && !roomTick.Before(pe.expiresAt)
		if pe.attemptsLeft <= 0 || expired {
			dropped = append(dropped, id)
			p.removePending(id)
		}
	}
	return dropped
}

// Acknowledge removes events at or below ackedUpTo from the pending queue
// (spec.md §4.10's "always echo the highest contiguous event-id" on the
// peer side translates here to "drop everything that id confirms").
func (p *Peer) Acknowledge(ackedUpTo EventId) {
	if !ackedUpTo.IsValid() {
		return
	}
	if !p.lastAckedEvent.IsValid() || ackedUpTo > p.lastAckedEvent {
		p.lastAckedEvent = ackedUpTo
	}
	for id := range p.pendingByID {
		if id <= ackedUpTo {
			p.removePending(id)
		}
	}
}

// AcknowledgeOne drops a single pending event by id, for the header's
// per-id ack list (spec.md §6 item 4): an out-of-order receipt on the far
// side lets the sender retire that one event without waiting for the
// contiguous watermark to reach it.
func (p *Peer) AcknowledgeOne(id EventId) {
	p.removePending(id)
}

func (p *Peer) removePending(id EventId) {
	pe, ok := p.pendingByID[id]
	if !ok {
		return
	}
	delete(p.pendingByID, id)
	for i, e := range p.pendingOut {
		if e.id == id {
			p.pendingOut = append(p.pendingOut[:i], p.pendingOut[i+1:]...)
			break
		}
	}
	if pe.freeWhenDone && p.release != nil {
		p.release(pe.event)
	}
}

// LastAckedEvent returns the highest event id this peer has confirmed.
func (p *Peer) LastAckedEvent() EventId { return p.lastAckedEvent }

// PendingCount reports how many reliable events are still in flight.
func (p *Peer) PendingCount() int { return len(p.pendingOut) }

// ReceiveEvent reports whether an incoming event with id should be delivered
// (spec.md §4.10: "deliver iff e.EventId is new to the receiver's event
// history"), recording it so a repeat delivery attempt is rejected.
func (p *Peer) ReceiveEvent(id EventId) bool {
	if id <= p.highestContiguousIn {
		if id == p.highestContiguousIn {
			return false
		}
		if _, seen := p.outOfOrderIn[id]; seen {
			return false
		}
	}
	if id == p.highestContiguousIn.Next() {
		p.highestContiguousIn = id
		for {
			next := p.highestContiguousIn.Next()
			if _, ok := p.outOfOrderIn[next]; !ok {
				break
			}
			delete(p.outOfOrderIn, next)
			p.highestContiguousIn = next
		}
		return true
	}
	if id > p.highestContiguousIn {
		if _, seen := p.outOfOrderIn[id]; seen {
			return false
		}
		p.outOfOrderIn[id] = struct{}{}
		return true
	}
	// id < highestContiguousIn and not found in outOfOrderIn: it was already
	// absorbed into the contiguous chain on a prior call.
	return false
}

// HighestContiguousReceived is the id to echo back as lastAckEventId
// (spec.md §4.10/§6).
func (p *Peer) HighestContiguousReceived() EventId { return p.highestContiguousIn }

// OutOfOrderReceived returns every event id received ahead of a gap, sorted
// ascending, for the header's per-id ack list (spec.md §6 item 4). This lets
// a sender drop an individually-acked event even though the contiguous
// watermark has not yet advanced past it.
func (p *Peer) OutOfOrderReceived() []EventId {
	if len(p.outOfOrderIn) == 0 {
		return nil
	}
	out := make([]EventId, 0, len(p.outOfOrderIn))
	for id := range p.outOfOrderIn {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
