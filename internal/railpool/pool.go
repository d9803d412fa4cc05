// Package railpool provides a typed free-list for objects whose lifetime
// crosses a send boundary — a reliable event still awaiting acknowledgment,
// a command or delta still resident in a dejitter ring (spec.md §9: "use
// free-lists only for objects whose lifetime crosses send boundaries").
// Grounded on the teacher pack's sync.Pool buffer-reuse pattern
// (other_examples' mosdns-x udp.go bufPool), generalized with a type
// parameter so each poolable kind gets its own pool instead of a package
// global per concrete type.
package railpool

import "sync"

// Pool recycles values of type T. Safe for concurrent use, though railroom
// only ever touches one from its single engine thread.
type Pool[T any] struct {
	pool sync.Pool
}

// New builds a Pool backed by newFn for cache misses.
func New[T any](newFn func() T) *Pool[T] {
	return &Pool[T]{pool: sync.Pool{New: func() interface{} { return newFn() }}}
}

// Get returns a recycled value, or a fresh one from newFn if the pool is
// empty. The returned value may carry stale data from a prior use — callers
// own resetting every field they care about before use.
func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

// Put returns v to the pool for later reuse. Callers must not touch v again
// afterward.
func (p *Pool[T]) Put(v T) {
	p.pool.Put(v)
}
