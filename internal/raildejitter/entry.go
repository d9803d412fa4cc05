// Package raildejitter implements spec.md §4.4's tick-indexed dejitter and
// queue buffers: the storage layer every per-entity incoming/outgoing
// channel (commands, deltas, state records) is built from.
package raildejitter

import "github.com/araex/railgunnet-go/internal/railtime"

// Entry pairs a stored value with the tick it was produced at.
type Entry[T any] struct {
	Tick  railtime.Tick
	Value T
}
