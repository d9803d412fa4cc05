package railpeer

import (
	"fmt"

	"github.com/araex/railgunnet-go/internal/railbits"
	"github.com/araex/railgunnet-go/internal/railpool"
)

// EventTypeId discriminates registered reliable-event payload kinds, mirroring
// railstate's FactoryType registry shape.
type EventTypeId uint8

// InvalidEventTypeId is the sentinel "no type" value.
const InvalidEventTypeId EventTypeId = 0

// EventId is a monotonically increasing reliable-event identifier (spec.md
// §4.10). Unlike the wrapping packet SequenceId, event ids are never
// expected to wrap within a session's lifetime, so ordering is a plain
// unsigned comparison.
type EventId uint32

// InvalidEventId is the sentinel "no event acknowledged yet" value.
const InvalidEventId EventId = 0

// IsValid reports whether id is a real event id.
func (id EventId) IsValid() bool { return id != InvalidEventId }

// Next returns the event id immediately after id.
func (id EventId) Next() EventId { return id + 1 }

// Event is a reliable out-of-band message (spec.md §4.10, §6's "Reliable
// event"): retried until acknowledged or until attempts are exhausted.
type Event interface {
	EventTypeId() EventTypeId
	Encode(b *railbits.Buffer) error
	Decode(b *railbits.Buffer) error
}

// EventFactory builds a zero-value Event of a registered kind, for decoding.
type EventFactory func() Event

// EventRegistry maps EventTypeId to a constructor, so a receiver can decode
// an event it has never seen constructed locally.
type EventRegistry struct {
	factories map[EventTypeId]EventFactory
	release   map[EventTypeId]func(Event)
}

// NewEventRegistry builds an empty registry.
func NewEventRegistry() *EventRegistry {
	return &EventRegistry{
		factories: make(map[EventTypeId]EventFactory),
		release:   make(map[EventTypeId]func(Event)),
	}
}

// Register adds typeId's constructor. Panics on InvalidEventTypeId or a
// duplicate registration, the same contract as railstate.Register. A
// Register'd type is never pooled — New always builds a fresh value, freed
// to the garbage collector once dispatched.
func (r *EventRegistry) Register(typeId EventTypeId, factory EventFactory) {
	r.register(typeId, factory)
}

// RegisterPooled adds typeId's constructor backed by a railpool.Pool: a
// freeWhenDone-queued event of this type returns to the pool once Peer
// retires it (acked, individually acked, or expired) instead of going to
// the garbage collector (spec.md §9's free-list objects). reset clears a
// recycled instance's fields before newFn's caller sees it again via New.
func (r *EventRegistry) RegisterPooled(typeId EventTypeId, newFn func() Event, reset func(Event)) {
	pool := railpool.New(newFn)
	r.register(typeId, pool.Get)
	r.release[typeId] = func(ev Event) {
		reset(ev)
		pool.Put(ev)
	}
}

func (r *EventRegistry) register(typeId EventTypeId, factory EventFactory) {
	if typeId == InvalidEventTypeId {
		panic("railpeer: cannot register InvalidEventTypeId")
	}
	if _, exists := r.factories[typeId]; exists {
		panic(fmt.Sprintf("railpeer: EventTypeId %d already registered", typeId))
	}
	r.factories[typeId] = factory
}

// New constructs a fresh (or recycled, for a pooled type) Event of typeId,
// or false if typeId is unknown.
func (r *EventRegistry) New(typeId EventTypeId) (Event, bool) {
	factory, ok := r.factories[typeId]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// Release returns ev to its type's pool, if RegisterPooled registered one;
// a no-op for a plain Register'd type. Wired as a Peer's release hook so a
// freeWhenDone event actually reaches the pool it was drawn from.
func (r *EventRegistry) Release(ev Event) {
	if release, ok := r.release[ev.EventTypeId()]; ok {
		release(ev)
	}
}
