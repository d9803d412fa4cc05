package railentity

import (
	"github.com/araex/railgunnet-go/internal/raildejitter"
	"github.com/araex/railgunnet-go/internal/railpool"
	"github.com/araex/railgunnet-go/internal/railstate"
	"github.com/araex/railgunnet-go/internal/railtime"
)

// ServerEntity is the authoritative, server-side half of an entity (spec.md
// §4.7's "Server-side"). S is the user state schema, C the user command
// schema; one ServerEntity[S,C] exists per live entity of that schema pair.
type ServerEntity[S, C any] struct {
	id     railstate.EntityId
	order  Order
	schema railstate.Schema[S]
	hooks  ServerHooks[S, C]

	state *S

	hasController    bool
	controller       PeerId
	hasPrior         bool
	priorController  PeerId

	hasStarted  bool
	isFrozen    bool
	removedTick railtime.Tick

	commandAck railtime.Tick

	incomingCommands *raildejitter.Buffer[*railstate.Command[C]]
	outgoingRecords  *raildejitter.QueueBuffer[S]

	// commandPool recycles the *Command[C] wrappers incomingCommands evicts.
	// Safe to pool: ServerUpdate only ever reads a dejitter entry's Value
	// within the same call that fetched it (GetLatestAt), so nothing outside
	// the ring keeps a command pointer alive across ticks the way
	// ClientEntity.lastDelta does for deltas.
	commandPool *railpool.Pool[*railstate.Command[C]]
}

// NewServerEntity builds a server entity in the Created lifecycle state
// (spec.md §3's server lifecycle): ServerUpdate's first call transitions it
// to Starting by invoking OnStart.
func NewServerEntity[S, C any](
	id railstate.EntityId,
	order Order,
	schema railstate.Schema[S],
	hooks ServerHooks[S, C],
	initial *S,
	dejitterCapacity int,
) *ServerEntity[S, C] {
	commandPool := railpool.New(func() *railstate.Command[C] { return new(railstate.Command[C]) })
	incomingCommands := raildejitter.New[*railstate.Command[C]](dejitterCapacity)
	incomingCommands.SetReleaseFunc(commandPool.Put)

	return &ServerEntity[S, C]{
		id:               id,
		order:            order,
		schema:           schema,
		hooks:            hooks,
		state:            initial,
		removedTick:      railtime.Invalid,
		commandAck:       railtime.Invalid,
		incomingCommands: incomingCommands,
		outgoingRecords:  raildejitter.NewQueueBuffer[S](dejitterCapacity),
		commandPool:      commandPool,
	}
}

func (e *ServerEntity[S, C]) Id() railstate.EntityId      { return e.id }
func (e *ServerEntity[S, C]) IsFrozen() bool              { return e.isFrozen }
func (e *ServerEntity[S, C]) RemovedTick() railtime.Tick  { return e.removedTick }
func (e *ServerEntity[S, C]) Order() Order                { return e.order }
func (e *ServerEntity[S, C]) State() *S                   { return e.state }
func (e *ServerEntity[S, C]) HasController() bool         { return e.hasController }
func (e *ServerEntity[S, C]) Controller() PeerId          { return e.controller }

// SetFrozen sets the scope-driven frozen flag an outgoing delta will report.
func (e *ServerEntity[S, C]) SetFrozen(frozen bool) { e.isFrozen = frozen }

// SetController attaches peer as the controlling client, remembering the
// previous controller (if any) so the outgoing packet still reaches them
// with terminal controller data on the handoff tick (spec.md §4.7's
// ProduceDelta "destination == priorController").
func (e *ServerEntity[S, C]) SetController(peer PeerId) {
	if e.hasController {
		e.priorController, e.hasPrior = e.controller, true
	}
	e.controller, e.hasController = peer, true
}

// ClearController detaches the current controller, if any.
func (e *ServerEntity[S, C]) ClearController() {
	if e.hasController {
		e.priorController, e.hasPrior = e.controller, true
	}
	e.hasController = false
}

// EnqueueCommand stores a command received from the controlling client into
// the incoming dejitter ring. The ring-resident copy comes from commandPool
// rather than cmd itself, so the object that actually crosses tick
// boundaries is the one eviction recycles.
func (e *ServerEntity[S, C]) EnqueueCommand(cmd *railstate.Command[C]) {
	pooled := e.commandPool.Get()
	*pooled = *cmd
	e.incomingCommands.Store(pooled.ClientTick, pooled)
}

// MarkForRemoval schedules the entity for removal at roomTick+1 (deferred so
// marking mid-tick never alters the current tick's behavior, spec.md §4.7's
// invariants) and fires OnSunset once.
func (e *ServerEntity[S, C]) MarkForRemoval(roomTick railtime.Tick) {
	if e.removedTick.IsValid() {
		return
	}
	e.removedTick = roomTick.Add(1)
	e.hooks.OnSunset(e.state)
}

// IsRemovalDue reports whether roomTick has reached the scheduled removal
// tick.
func (e *ServerEntity[S, C]) IsRemovalDue(roomTick railtime.Tick) bool {
	return e.removedTick.IsValid() && !roomTick.Before(e.removedTick)
}

// ServerUpdate runs one simulation tick: apply the controlling client's
// latest eligible command (or CommandMissing if none is available),
// UpdateAuth, then StoreRecord on send ticks (spec.md §4.7).
func (e *ServerEntity[S, C]) ServerUpdate(roomTick, controllerEstimatedRemoteTick railtime.Tick, sendRate uint32) {
	if !e.hasStarted {
		e.hasStarted = true
		e.hooks.OnStart(e.state)
	}

	if e.hasController {
		entry, ok := e.incomingCommands.GetLatestAt(controllerEstimatedRemoteTick)
		// A command already applied on a prior tick (entry.Tick <= commandAck)
		// is the "mark it non-new" case spec.md §4.7 describes: the ack
		// watermark stands in for the source's per-command IsNewCommand flag,
		// since re-fetching the same dejitter slot always returns the same
		// value.
		if ok && entry.Tick.After(e.commandAck) {
			e.hooks.ApplyControl(e.state, &entry.Value.Data)
			e.commandAck = entry.Tick
		} else if !ok {
			e.hooks.CommandMissing(e.state)
		}
	}

	e.hooks.UpdateAuth(e.state)

	if roomTick.IsSendTick(sendRate) {
		e.storeRecord(roomTick)
	}
}

// storeRecord clones the current state into the outgoing record history,
// but only if it differs from the last stored record (CompareMutable governs
// — an unchanged entity does not grow the history, spec.md §4.7).
func (e *ServerEntity[S, C]) storeRecord(tick railtime.Tick) {
	if last, ok := e.outgoingRecords.Latest(); ok {
		if e.schema.CompareMutable(&last.Value, e.state) == 0 {
			return
		}
	}
	e.outgoingRecords.Store(tick, *e.state)
}

// ProduceDelta builds the delta this entity owes destination at tick,
// against whatever record basisTick resolves to in the outgoing history
// (spec.md §4.7's ProduceDelta).
func (e *ServerEntity[S, C]) ProduceDelta(tick, basisTick railtime.Tick, destination PeerId, forceAllMutable bool) (*railstate.Delta[S], bool) {
	includeController := e.hasController && e.controller == destination
	// The departed controller gets controller data on this single handoff
	// delta only; clear hasPrior once it's been spent so later ticks don't
	// keep treating them as the prior controller forever (spec.md §4.7).
	if e.hasPrior && e.priorController == destination {
		includeController = true
		e.hasPrior = false
	}
	includeImmutable := !basisTick.IsValid()

	var basis *S
	if rec, ok := e.outgoingRecords.LatestFrom(basisTick); ok {
		basis = &rec.Value
	}

	return railstate.CreateDelta(e.schema, basis, e.state, e.id, tick,
		includeController, includeImmutable, e.commandAck, e.removedTick, forceAllMutable)
}
