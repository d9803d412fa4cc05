package raildejitter

import (
	"sort"

	"github.com/araex/railgunnet-go/internal/railtime"
)

// QueueBuffer is a fixed-capacity append-only history: every Store appends,
// evicting the oldest entry once capacity is exceeded. Used server-side to
// retain recent StateRecords so any client's last-acked tick within the
// window can serve as a delta basis (spec.md §3, §4.4, §4.7).
type QueueBuffer[T any] struct {
	capacity int
	entries  []Entry[T] // ascending by Tick
}

// NewQueueBuffer builds a queue of the given capacity.
func NewQueueBuffer[T any](capacity int) *QueueBuffer[T] {
	return &QueueBuffer[T]{capacity: capacity, entries: make([]Entry[T], 0, capacity)}
}

// Store appends a new entry, evicting the oldest if the queue is full.
func (q *QueueBuffer[T]) Store(tick railtime.Tick, value T) {
	q.entries = append(q.entries, Entry[T]{Tick: tick, Value: value})
	if len(q.entries) > q.capacity {
		q.entries = q.entries[1:]
	}
}

// Latest returns the most recently stored entry, or (zero, false) if empty.
func (q *QueueBuffer[T]) Latest() (Entry[T], bool) {
	if len(q.entries) == 0 {
		return Entry[T]{}, false
	}
	return q.entries[len(q.entries)-1], true
}

// LatestFrom returns the entry with the largest tick <= basis. An invalid
// basis (no prior ack) reports false, signaling the caller should fall back
// to a full snapshot rather than a delta against some arbitrary basis.
func (q *QueueBuffer[T]) LatestFrom(basis railtime.Tick) (Entry[T], bool) {
	if !basis.IsValid() {
		return Entry[T]{}, false
	}
	idx := sort.Search(len(q.entries), func(i int) bool {
		return q.entries[i].Tick.After(basis)
	})
	if idx == 0 {
		return Entry[T]{}, false
	}
	return q.entries[idx-1], true
}

// Len returns the number of entries currently retained.
func (q *QueueBuffer[T]) Len() int { return len(q.entries) }
