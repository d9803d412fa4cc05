package railentity

import (
	"github.com/araex/railgunnet-go/internal/railstate"
	"github.com/araex/railgunnet-go/internal/railtime"
)

// EntityBase is the trait shared by ServerEntity and ClientEntity (spec.md
// §9: "replace compile-time conditional server/client code with two
// separate types sharing a common trait"). Room/scope code that only needs
// identity and lifecycle state, not simulation, programs against this
// instead of the generic entity types directly.
type EntityBase interface {
	Id() railstate.EntityId
	IsFrozen() bool
	RemovedTick() railtime.Tick
	Order() Order
}

// ControlApplier is the one hook both server and client share: applying a
// command to a state is the same deterministic function wherever it runs,
// server-side simulation and client-side replay alike (spec.md §4.7's
// "ApplyControlGeneric").
type ControlApplier[S, C any] interface {
	ApplyControl(state *S, cmd *C)
}
