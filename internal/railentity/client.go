package railentity

import (
	"github.com/araex/railgunnet-go/internal/raildejitter"
	"github.com/araex/railgunnet-go/internal/railstate"
	"github.com/araex/railgunnet-go/internal/railtime"
)

// ClientEntity is the client-side half of an entity (spec.md §4.7's
// "Client-side"): frozen, proxy, or controlled+predicted, exactly one of
// which runs per client tick.
type ClientEntity[S, C any] struct {
	id     railstate.EntityId
	order  Order
	schema railstate.Schema[S]
	hooks  ClientHooks[S, C]

	authState *S
	nextState *S
	authTick  railtime.Tick
	nextTick  railtime.Tick

	shouldBeFrozen bool
	isFrozen       bool
	removedTick    railtime.Tick

	hasController bool
	hasStarted    bool

	lastDelta *railstate.Delta[S]

	predictedState *S

	incomingDeltas   *raildejitter.Buffer[*railstate.Delta[S]]
	outgoingCommands []*railstate.Command[C]
	commandBufferCap int
}

// NewClientEntity builds a client entity in the Pending lifecycle state
// (spec.md §3): it becomes Active once its first delta carries immutable
// data.
func NewClientEntity[S, C any](
	id railstate.EntityId,
	order Order,
	schema railstate.Schema[S],
	hooks ClientHooks[S, C],
	dejitterCapacity, commandBufferCap int,
) *ClientEntity[S, C] {
	return &ClientEntity[S, C]{
		id:               id,
		order:            order,
		schema:           schema,
		hooks:            hooks,
		authState:        new(S),
		authTick:         railtime.Invalid,
		nextTick:         railtime.Invalid,
		removedTick:      railtime.Invalid,
		incomingDeltas:   raildejitter.New[*railstate.Delta[S]](dejitterCapacity),
		commandBufferCap: commandBufferCap,
	}
}

func (e *ClientEntity[S, C]) Id() railstate.EntityId     { return e.id }
func (e *ClientEntity[S, C]) IsFrozen() bool             { return e.isFrozen }
func (e *ClientEntity[S, C]) RemovedTick() railtime.Tick { return e.removedTick }
func (e *ClientEntity[S, C]) Order() Order               { return e.order }
func (e *ClientEntity[S, C]) AuthState() *S              { return e.authState }
func (e *ClientEntity[S, C]) PredictedState() *S {
	if e.predictedState != nil {
		return e.predictedState
	}
	return e.authState
}
func (e *ClientEntity[S, C]) HasController() bool { return e.hasController }

// EnqueueIncomingDelta stores a delta decoded from an S2C packet into the
// incoming dejitter ring, keyed by its server tick.
func (e *ClientEntity[S, C]) EnqueueIncomingDelta(delta *railstate.Delta[S]) {
	e.incomingDeltas.Store(delta.Tick, delta)
}

// setFreeze transitions the frozen flag, firing OnFrozen/OnUnfrozen exactly
// on edges (spec.md §4.7's "SetFreeze transitions fire ... exactly on
// edges").
func (e *ClientEntity[S, C]) setFreeze(shouldBeFrozen bool) {
	if shouldBeFrozen == e.isFrozen {
		return
	}
	e.isFrozen = shouldBeFrozen
	if shouldBeFrozen {
		e.hooks.OnFrozen(e.authState)
	} else {
		e.hooks.OnUnfrozen(e.authState)
	}
}

// UpdateAuthState walks every delta received since authTick up to roomTick,
// applying each in turn unless frozen, then primes nextState for
// interpolation from whatever delta follows roomTick (spec.md §4.7). While
// the entity is still Pending, deltas without immutable data are skipped.
// Called from PreUpdate and from Shutdown.
func (e *ClientEntity[S, C]) UpdateAuthState(roomTick railtime.Tick) {
	inRange, next, hasNext := e.incomingDeltas.GetRangeAndNext(e.authTick, roomTick)

	var processed bool
	for _, entry := range inRange {
		delta := entry.Value
		if !e.hasStarted {
			if !delta.HasImmutableData {
				continue
			}
			e.hasStarted = true
			e.hooks.OnStart(e.authState)
		}
		if !e.shouldBeFrozen {
			railstate.ApplyDelta(e.schema, e.authState, delta)
		}
		e.shouldBeFrozen = delta.IsFrozen
		e.authTick = delta.Tick
		e.lastDelta = delta
		if delta.RemovedTick.IsValid() {
			e.removedTick = delta.RemovedTick
		}
		processed = true
	}

	if processed {
		// HasControllerData is only ever set by the server for the packet's
		// destination peer, so it doubles as the control hand-off signal: the
		// hook is notified for any side effects the user wants (sound, UI),
		// but hasController itself always tracks the delta, never the hook's
		// return value (there is none).
		e.hasController = e.lastDelta.HasControllerData
		e.hooks.RequestControlUpdate(e.id, e.lastDelta)
	}

	if !e.shouldBeFrozen && hasNext {
		nextState := new(S)
		*nextState = *e.authState
		railstate.ApplyDelta(e.schema, nextState, next.Value)
		e.nextState = nextState
		e.nextTick = next.Value.Tick
	} else {
		e.nextState = nil
		e.nextTick = railtime.Invalid
	}
}

// UpdatePredicted rolls forward from authState through every buffered delta
// that still carries controller data (stopping at the first that doesn't —
// control was lost), then replays the outgoing command queue on top
// (spec.md §4.7).
func (e *ClientEntity[S, C]) UpdatePredicted() {
	base := new(S)
	*base = *e.authState

	for _, entry := range e.incomingDeltas.GetRange(e.authTick) {
		if !entry.Value.HasControllerData {
			break
		}
		railstate.ApplyDelta(e.schema, base, entry.Value)
	}

	if e.lastDelta != nil {
		e.cleanCommands(e.lastDelta.CommandAck)
	}

	for _, cmd := range e.outgoingCommands {
		e.hooks.ApplyControl(base, &cmd.Data)
		cmd.IsNewCommand = false
	}

	e.predictedState = base
}

// cleanCommands discards buffered commands the server has already
// acknowledged applying (clientTick <= ack).
func (e *ClientEntity[S, C]) cleanCommands(ack railtime.Tick) {
	if !ack.IsValid() {
		return
	}
	kept := e.outgoingCommands[:0]
	for _, cmd := range e.outgoingCommands {
		if cmd.ClientTick.After(ack) {
			kept = append(kept, cmd)
		}
	}
	e.outgoingCommands = kept
}

// UpdateControlled allocates and enqueues one new outgoing command for
// localTick, unless the buffer is already full (spec.md §4.7).
func (e *ClientEntity[S, C]) UpdateControlled(localTick railtime.Tick) {
	if len(e.outgoingCommands) >= e.commandBufferCap {
		return
	}
	cmd := &railstate.Command[C]{ClientTick: localTick, IsNewCommand: true}
	e.hooks.UpdateControl(&cmd.Data)
	e.outgoingCommands = append(e.outgoingCommands, cmd)
}

// OutgoingCommands returns the commands still buffered for (re)send, oldest
// first.
func (e *ClientEntity[S, C]) OutgoingCommands() []*railstate.Command[C] {
	return e.outgoingCommands
}

// ClientUpdate runs exactly one of {UpdateFrozen, UpdateProxy,
// UpdateControlled+UpdatePredicted} per client tick, per spec.md §4.7's
// invariant. Call PreUpdate (UpdateAuthState) first in the same tick.
func (e *ClientEntity[S, C]) ClientUpdate(localTick railtime.Tick) {
	e.setFreeze(e.shouldBeFrozen)

	switch {
	case e.isFrozen:
		e.hooks.UpdateFrozen(e.authState)
	case !e.hasController:
		e.hooks.UpdateProxy(e.authState, e.nextState)
	default:
		e.UpdateControlled(localTick)
		e.UpdatePredicted()
	}
}

// PreUpdate runs the authoritative-state intake pass for roomTick. It must
// run before ClientUpdate in the same tick.
func (e *ClientEntity[S, C]) PreUpdate(roomTick railtime.Tick) {
	e.UpdateAuthState(roomTick)
}

// Shutdown runs a final UpdateAuthState pass so the entity reflects every
// delta it has received before the client disconnects.
func (e *ClientEntity[S, C]) Shutdown(roomTick railtime.Tick) {
	e.UpdateAuthState(roomTick)
}
