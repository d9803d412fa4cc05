package railentity

import "github.com/araex/railgunnet-go/internal/railstate"

// ServerHooks are the user-authored callbacks a server entity's schema pair
// must implement (spec.md §9's "vtable for user hooks", replacing the
// source's virtual methods on a deep Entity<State,Command> hierarchy).
type ServerHooks[S, C any] interface {
	ControlApplier[S, C]

	// OnStart fires once, the first ServerUpdate after creation.
	OnStart(state *S)
	// OnSunset fires once, when the entity is marked for removal.
	OnSunset(state *S)
	// UpdateAuth runs every server tick after control has been applied.
	UpdateAuth(state *S)
	// CommandMissing runs instead of ApplyControl when a controlled entity
	// has no command available for the current remote tick estimate.
	CommandMissing(state *S)
}

// ClientHooks are the user-authored callbacks a client entity's schema pair
// must implement.
type ClientHooks[S, C any] interface {
	ControlApplier[S, C]

	OnStart(state *S)
	OnFrozen(state *S)
	OnUnfrozen(state *S)

	// UpdateFrozen runs in place of UpdateProxy/UpdateControlled while the
	// entity is frozen.
	UpdateFrozen(state *S)
	// UpdateProxy runs for entities this client does not control; auth is
	// the last authoritative snapshot, next is the following one for
	// interpolation (nil if none is available yet). The engine does not own
	// a clock (spec.md §9 open question iii) — interpolation timing is the
	// hook's own concern.
	UpdateProxy(auth, next *S)
	// UpdateControl populates a freshly allocated outgoing command.
	UpdateControl(cmd *C)
	// RequestControlUpdate is invoked after UpdateAuthState processes at
	// least one delta, so the room can attach/detach local control in
	// response to a controller hand-off the last delta implies.
	RequestControlUpdate(id railstate.EntityId, lastDelta *railstate.Delta[S])
}
