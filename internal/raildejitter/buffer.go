package raildejitter

import (
	"sort"

	"github.com/araex/railgunnet-go/internal/railtime"
)

// Buffer is a fixed-capacity, tick-indexed ring: slot = (tick/divisor) mod
// capacity. A divisor greater than 1 lets several simulation ticks share one
// slot, so a single client slot serves one producer tick when producer and
// consumer run at different rates (spec.md §4.4).
//
// Lookup keeps an auxiliary index of occupied slots sorted by tick, so
// GetLatestAt/GetRange/GetRangeAndNext run in O(log capacity) rather than
// the linear scan spec.md §9's open question (i) flags for replacement —
// ticks only increase across a session, so insertion stays sorted cheaply.
type Buffer[T any] struct {
	capacity int
	divisor  uint32
	slots    []Entry[T]
	occupied []bool
	order    []int // slot indices, ascending by slots[idx].Tick

	// release, if set, receives every value this buffer stops referencing —
	// either overwritten by a newer tick at the same slot, or itself
	// rejected as a stale/duplicate write — instead of abandoning it to the
	// garbage collector (spec.md §9's free-list objects: deltas and
	// commands resident in a dejitter ring).
	release func(T)
}

// New builds a buffer of the given capacity with no tick divisor (divisor 1).
func New[T any](capacity int) *Buffer[T] {
	return NewWithDivisor[T](capacity, 1)
}

// NewWithDivisor builds a buffer where divisor simulation ticks share a slot.
func NewWithDivisor[T any](capacity int, divisor uint32) *Buffer[T] {
	if divisor == 0 {
		divisor = 1
	}
	return &Buffer[T]{
		capacity: capacity,
		divisor:  divisor,
		slots:    make([]Entry[T], capacity),
		occupied: make([]bool, capacity),
	}
}

func (b *Buffer[T]) slotIndex(t railtime.Tick) int {
	idx := uint32(t) / b.divisor
	return int(idx % uint32(b.capacity))
}

// SetReleaseFunc installs release, called with every value this buffer
// stops referencing from here on. Only meaningful for pointer-typed T; a
// caller pooling plain values would just be discarding copies.
func (b *Buffer[T]) SetReleaseFunc(release func(T)) {
	b.release = release
}

// Store places value at tick's slot. It returns true iff the slot was empty
// or held a strictly older tick; a tick that is equal to or older than what
// is already stored is discarded as a duplicate/stale write (spec.md §4.4).
func (b *Buffer[T]) Store(tick railtime.Tick, value T) bool {
	slot := b.slotIndex(tick)
	if b.occupied[slot] {
		if !tick.After(b.slots[slot].Tick) {
			if b.release != nil {
				b.release(value)
			}
			return false
		}
		b.removeFromOrder(slot)
		if b.release != nil {
			b.release(b.slots[slot].Value)
		}
	}
	b.slots[slot] = Entry[T]{Tick: tick, Value: value}
	b.occupied[slot] = true
	b.insertIntoOrder(slot)
	return true
}

func (b *Buffer[T]) removeFromOrder(slot int) {
	tick := b.slots[slot].Tick
	pos := sort.Search(len(b.order), func(i int) bool {
		return !b.slots[b.order[i]].Tick.Before(tick)
	})
	for i := pos; i < len(b.order); i++ {
		if b.order[i] == slot {
			b.order = append(b.order[:i], b.order[i+1:]...)
			return
		}
		if b.slots[b.order[i]].Tick != tick {
			break
		}
	}
}

func (b *Buffer[T]) insertIntoOrder(slot int) {
	tick := b.slots[slot].Tick
	pos := sort.Search(len(b.order), func(i int) bool {
		return !b.slots[b.order[i]].Tick.Before(tick)
	})
	b.order = append(b.order, 0)
	copy(b.order[pos+1:], b.order[pos:])
	b.order[pos] = slot
}

// GetLatestAt returns the stored entry with the largest tick <= t, or
// (zero, false) if none exists.
func (b *Buffer[T]) GetLatestAt(t railtime.Tick) (Entry[T], bool) {
	idx := b.upperBound(t)
	if idx == 0 {
		return Entry[T]{}, false
	}
	slot := b.order[idx-1]
	return b.slots[slot], true
}

// GetRange returns every stored entry with tick > t, in ascending tick order.
func (b *Buffer[T]) GetRange(t railtime.Tick) []Entry[T] {
	idx := b.upperBound(t)
	out := make([]Entry[T], 0, len(b.order)-idx)
	for _, slot := range b.order[idx:] {
		out = append(out, b.slots[slot])
	}
	return out
}

// GetRangeAndNext returns entries in (from, current], ascending, plus the
// single entry with the smallest tick > current ("next"), if any.
func (b *Buffer[T]) GetRangeAndNext(from, current railtime.Tick) (inRange []Entry[T], next Entry[T], hasNext bool) {
	lo := b.upperBound(from)
	hi := b.upperBound(current)
	inRange = make([]Entry[T], 0, hi-lo)
	for _, slot := range b.order[lo:hi] {
		inRange = append(inRange, b.slots[slot])
	}
	if hi < len(b.order) {
		next = b.slots[b.order[hi]]
		hasNext = true
	}
	return inRange, next, hasNext
}

// upperBound returns the first index in b.order whose tick is > t (i.e. the
// count of entries with tick <= t).
func (b *Buffer[T]) upperBound(t railtime.Tick) int {
	return sort.Search(len(b.order), func(i int) bool {
		return b.slots[b.order[i]].Tick.After(t)
	})
}

// Len returns the number of occupied slots.
func (b *Buffer[T]) Len() int { return len(b.order) }
