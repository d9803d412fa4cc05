package railroom

import (
	"github.com/araex/railgunnet-go/internal/railbits"
	"github.com/araex/railgunnet-go/internal/railconfig"
	"github.com/araex/railgunnet-go/internal/railentity"
	"github.com/araex/railgunnet-go/internal/railstate"
	"github.com/araex/railgunnet-go/internal/railtime"
)

// clientEntityHandle is the non-generic surface ClientRoom drives every
// tick, regardless of an entity's concrete state/command schema pair.
type clientEntityHandle interface {
	Id() railstate.EntityId
	IsFrozen() bool
	RemovedTick() railtime.Tick
	Order() railentity.Order
	PreUpdate(roomTick railtime.Tick)
	ClientUpdate(localTick railtime.Tick)
	Shutdown(roomTick railtime.Tick)
	HasController() bool
	EncodeCommandUpdate(b *railbits.Buffer) (bool, error)

	// EnqueueFrozenDelta and DecodeAndEnqueueDelta apply one incoming S2C
	// delta once the packet-layer framing (EntityId, frozen marker,
	// removedTick, commandAck) has already been read by the caller. Only
	// called for an EntityId ClientRoom has already spawned a handle for —
	// an unseen id's first delta goes through Registry.spawnClientEntity
	// instead, since that case needs the schema a bare handle doesn't carry.
	EnqueueFrozenDelta(tick, removedTick, commandAck railtime.Tick)
	DecodeAndEnqueueDelta(b *railbits.Buffer, tick, removedTick, commandAck railtime.Tick) error
}

// clientAdapter closes over one entity's concrete S, C so ClientRoom can
// store heterogeneous entity types in a single map.
type clientAdapter[S, C any] struct {
	entity    *railentity.ClientEntity[S, C]
	schema    railstate.Schema[S]
	cmdSchema railstate.CommandSchema[C]
}

func (a *clientAdapter[S, C]) Id() railstate.EntityId     { return a.entity.Id() }
func (a *clientAdapter[S, C]) IsFrozen() bool             { return a.entity.IsFrozen() }
func (a *clientAdapter[S, C]) RemovedTick() railtime.Tick { return a.entity.RemovedTick() }
func (a *clientAdapter[S, C]) Order() railentity.Order    { return a.entity.Order() }

func (a *clientAdapter[S, C]) PreUpdate(roomTick railtime.Tick)      { a.entity.PreUpdate(roomTick) }
func (a *clientAdapter[S, C]) ClientUpdate(localTick railtime.Tick) { a.entity.ClientUpdate(localTick) }
func (a *clientAdapter[S, C]) Shutdown(roomTick railtime.Tick)      { a.entity.Shutdown(roomTick) }
func (a *clientAdapter[S, C]) HasController() bool                  { return a.entity.HasController() }

// EnqueueFrozenDelta stores a frozen marker (no state payload) keyed by
// tick, matching the frozen branch railstate.ApplyDelta/ClientEntity expect.
func (a *clientAdapter[S, C]) EnqueueFrozenDelta(tick, removedTick, commandAck railtime.Tick) {
	a.entity.EnqueueIncomingDelta(&railstate.Delta[S]{
		Tick: tick, EntityId: a.entity.Id(), RemovedTick: removedTick,
		CommandAck: commandAck, IsFrozen: true,
	})
}

// DecodeAndEnqueueDelta decodes a non-frozen delta payload against this
// entity's current auth state and enqueues it.
func (a *clientAdapter[S, C]) DecodeAndEnqueueDelta(b *railbits.Buffer, tick, removedTick, commandAck railtime.Tick) error {
	decoded, err := railstate.Decode(b, a.schema, a.entity.AuthState())
	if err != nil {
		return err
	}
	decoded.Tick = tick
	decoded.EntityId = a.entity.Id()
	decoded.RemovedTick = removedTick
	decoded.CommandAck = commandAck
	a.entity.EnqueueIncomingDelta(decoded)
	return nil
}

// EncodeCommandUpdate writes one CommandUpdate item (spec.md §4.9): EntityId,
// then up to COMMAND_SEND_COUNT of the most recent buffered commands. It
// reports false if there is nothing buffered to send.
func (a *clientAdapter[S, C]) EncodeCommandUpdate(b *railbits.Buffer) (bool, error) {
	cmds := a.entity.OutgoingCommands()
	if len(cmds) == 0 {
		return false, nil
	}
	n := len(cmds)
	if n > railconfig.CommandSendCount {
		n = railconfig.CommandSendCount
	}
	start := len(cmds) - n

	entityIdCodec.Write(b, uint16(a.entity.Id()))
	b.Write(8, uint32(n))
	for _, cmd := range cmds[start:] {
		if err := railstate.EncodeCommand(b, a.cmdSchema, cmd); err != nil {
			return false, err
		}
	}
	return true, nil
}

// serverEntityHandle is the non-generic surface ServerRoom drives every
// tick.
type serverEntityHandle interface {
	Id() railstate.EntityId
	Order() railentity.Order
	RemovedTick() railtime.Tick
	IsRemovalDue(roomTick railtime.Tick) bool
	MarkForRemoval(roomTick railtime.Tick)
	ServerTick(roomTick, controllerEstimatedRemoteTick railtime.Tick, sendRate uint32)
	HasPendingDelta(tick, basisTick railtime.Tick, destination railentity.PeerId) bool
	EncodeWireDelta(b *railbits.Buffer, tick, basisTick railtime.Tick, destination railentity.PeerId, isFrozen, forceAllMutable bool) (bool, error)
	DecodeCommandUpdateBody(b *railbits.Buffer) error
	SetController(peer railentity.PeerId)
	ClearController()
	HasController() bool
	Controller() railentity.PeerId
}

// serverAdapter closes over one entity's concrete S, C.
type serverAdapter[S, C any] struct {
	entity    *railentity.ServerEntity[S, C]
	schema    railstate.Schema[S]
	cmdSchema railstate.CommandSchema[C]
}

func (a *serverAdapter[S, C]) Id() railstate.EntityId     { return a.entity.Id() }
func (a *serverAdapter[S, C]) Order() railentity.Order    { return a.entity.Order() }
func (a *serverAdapter[S, C]) RemovedTick() railtime.Tick { return a.entity.RemovedTick() }

func (a *serverAdapter[S, C]) IsRemovalDue(roomTick railtime.Tick) bool {
	return a.entity.IsRemovalDue(roomTick)
}
func (a *serverAdapter[S, C]) MarkForRemoval(roomTick railtime.Tick) {
	a.entity.MarkForRemoval(roomTick)
}
func (a *serverAdapter[S, C]) ServerTick(roomTick, controllerEstimatedRemoteTick railtime.Tick, sendRate uint32) {
	a.entity.ServerUpdate(roomTick, controllerEstimatedRemoteTick, sendRate)
}
func (a *serverAdapter[S, C]) SetController(peer railentity.PeerId) { a.entity.SetController(peer) }
func (a *serverAdapter[S, C]) ClearController()                     { a.entity.ClearController() }
func (a *serverAdapter[S, C]) HasController() bool                  { return a.entity.HasController() }
func (a *serverAdapter[S, C]) Controller() railentity.PeerId        { return a.entity.Controller() }

// HasPendingDelta reports whether ProduceDelta would actually have something
// to send for destination right now: an unchanged, already-acked, never-
// controlled entity is a true no-op (spec.md §4.6 "a packet slot is saved")
// rather than an error, so the caller filters these out before building the
// packed item list instead of relying on PackToSize's warn-and-skip path.
func (a *serverAdapter[S, C]) HasPendingDelta(tick, basisTick railtime.Tick, destination railentity.PeerId) bool {
	_, ok := a.entity.ProduceDelta(tick, basisTick, destination, false)
	return ok
}

// EncodeWireDelta writes the packet-layer framing (EntityId, frozen marker,
// removedTick, commandAck) around the schema-specific payload
// railstate.Encode writes (spec.md §4.9). It reports false if there is
// nothing to send this tick — ProduceDelta's no-op case — and the caller
// should omit this entity from the packet entirely. A frozen marker is
// always sent regardless of ProduceDelta, since scope (not entity state)
// decides frozen-ness.
func (a *serverAdapter[S, C]) EncodeWireDelta(b *railbits.Buffer, tick, basisTick railtime.Tick, destination railentity.PeerId, isFrozen, forceAllMutable bool) (bool, error) {
	if isFrozen {
		entityIdCodec.Write(b, uint16(a.entity.Id()))
		b.WriteBool(true)
		return true, nil
	}

	delta, ok := a.entity.ProduceDelta(tick, basisTick, destination, forceAllMutable)
	if !ok {
		return false, nil
	}

	entityIdCodec.Write(b, uint16(a.entity.Id()))
	b.WriteBool(false)
	tickCodec.Write(b, delta.RemovedTick)
	tickCodec.Write(b, delta.CommandAck)
	return true, railstate.Encode(b, a.schema, delta)
}

// DecodeCommandUpdateBody reads the tail of a CommandUpdate item (everything
// after the EntityId railroom's C2S dispatcher already consumed to find this
// entity): an 8-bit count, then that many commands, each enqueued into the
// incoming command dejitter ring.
func (a *serverAdapter[S, C]) DecodeCommandUpdateBody(b *railbits.Buffer) error {
	count, err := b.Read(8)
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		cmd, err := railstate.DecodeCommand(b, a.cmdSchema)
		if err != nil {
			return err
		}
		a.entity.EnqueueCommand(cmd)
	}
	return nil
}
