// Package railroom wires railstate/railentity/railscope/railpeer/railpacket
// into the running simulation spec.md §4.11 describes: a per-process
// Registry of entity/command/event types, a Server driving one or more
// ServerRooms, a Client driving a ClientRoom, and the tick pump that ticks
// entities, sends packets, and retires removed entities. Grounded on the
// teacher's Server.updateLoop/sessionCleanupLoop ticker-driven update plus
// periodic cleanup goroutines, and its handleGamePacket dispatch switch,
// generalized from SA-MP packet ids to this engine's own S2C/C2S sections.
package railroom

import (
	"fmt"

	"github.com/araex/railgunnet-go/internal/railbits"
	"github.com/araex/railgunnet-go/internal/railcodec"
	"github.com/araex/railgunnet-go/internal/railentity"
	"github.com/araex/railgunnet-go/internal/railpeer"
	"github.com/araex/railgunnet-go/internal/railstate"
	"github.com/araex/railgunnet-go/internal/railtime"
)

var entityIdCodec railcodec.EntityId
var tickCodec railcodec.Tick

// entityTypeDesc is the type-erased per-FactoryType registration railroom
// needs beyond a bare railstate.Schema[S]: enough to dynamically spawn a
// ClientEntity[S,C] proxy the first time a delta for an unseen id arrives
// (spec.md §4.7's client Pending->Active transition is driven by that first
// delta, not by an out-of-band spawn message). This mirrors railstate's
// FactoryType-keyed tagged-union registry but carries hooks-factories
// instead of a schema alone, so it is its own type rather than a reuse of
// railstate.Registry.
type entityTypeDesc struct {
	factoryType railstate.FactoryType
	order       railentity.Order
	// spawn constructs a fresh client proxy for an entity of this type and
	// applies the first delta that revealed it. Only called when the client
	// has never seen this EntityId before; every later delta for the same id
	// is decoded directly through the clientEntityHandle it returns, without
	// consulting the registry again.
	spawn func(id railstate.EntityId, b *railbits.Buffer, tick, removedTick, commandAck railtime.Tick) (clientEntityHandle, error)
}

// Registry is the process-wide catalog of entity, command, and event types
// (spec.md §6's "Registry(component={Client|Server})").
type Registry struct {
	entityTypes map[railstate.FactoryType]*entityTypeDesc
	command     any
	// discardCommandUpdateBody reads and drops one CommandUpdate item's
	// count-prefixed command list using the registered command schema,
	// without needing the entity that sent it. Built by SetCommandType,
	// where C is still known; used when a CommandUpdate targets an entity id
	// the server no longer has (spec.md §7's "command targeted at a
	// no-longer-controlled entity: free the command and ignore" — the bytes
	// still have to be consumed to keep the rest of the section aligned).
	discardCommandUpdateBody func(b *railbits.Buffer) error
	events                   *railpeer.EventRegistry
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entityTypes: make(map[railstate.FactoryType]*entityTypeDesc),
		events:      railpeer.NewEventRegistry(),
	}
}

// ClientHooksFactory builds the user hooks for a client-side proxy of a
// dynamically spawned entity.
type ClientHooksFactory[S, C any] func(id railstate.EntityId) railentity.ClientHooks[S, C]

// AddEntityType registers a schema pair (spec.md §6's "AddEntityType<Entity,
// State>()"). newClientHooks is invoked the first time a client receives a
// delta for an entity of this type it has not seen before.
func AddEntityType[S, C any](
	r *Registry,
	schema railstate.Schema[S],
	order railentity.Order,
	newClientHooks ClientHooksFactory[S, C],
	dejitterCapacity, commandBufferCapacity int,
) {
	ft := schema.FactoryType()
	if ft == railstate.InvalidFactoryType {
		panic("railroom: cannot register InvalidFactoryType")
	}
	if _, exists := r.entityTypes[ft]; exists {
		panic(fmt.Sprintf("railroom: FactoryType %d already registered", ft))
	}

	r.entityTypes[ft] = &entityTypeDesc{
		factoryType: ft,
		order:       order,
		spawn: func(id railstate.EntityId, b *railbits.Buffer, tick, removedTick, commandAck railtime.Tick) (clientEntityHandle, error) {
			cmdSchema, ok := r.command.(railstate.CommandSchema[C])
			if !ok {
				return nil, fmt.Errorf("railroom: no command schema registered for entity %d's command type", id)
			}
			entity := railentity.NewClientEntity[S, C](id, order, schema, newClientHooks(id), dejitterCapacity, commandBufferCapacity)
			adapter := &clientAdapter[S, C]{entity: entity, schema: schema, cmdSchema: cmdSchema}

			decoded, err := railstate.Decode(b, schema, entity.AuthState())
			if err != nil {
				return nil, err
			}
			decoded.Tick = tick
			decoded.EntityId = id
			decoded.RemovedTick = removedTick
			decoded.CommandAck = commandAck
			entity.EnqueueIncomingDelta(decoded)
			return adapter, nil
		},
	}
}

// SetCommandType registers the single command schema this registry's
// entities share (spec.md §6's "SetCommandType<Command>()").
func SetCommandType[C any](r *Registry, schema railstate.CommandSchema[C]) {
	r.command = schema
	r.discardCommandUpdateBody = func(b *railbits.Buffer) error {
		count, err := b.Read(8)
		if err != nil {
			return err
		}
		for i := uint32(0); i < count; i++ {
			if _, err := railstate.DecodeCommand(b, schema); err != nil {
				return err
			}
		}
		return nil
	}
}

// AddEventType registers a reliable-event payload kind (spec.md §6's
// "AddEventType<Event>()").
func AddEventType(r *Registry, typeId railpeer.EventTypeId, factory railpeer.EventFactory) {
	r.events.Register(typeId, factory)
}

// spawnClientEntity dispatches to the entityTypeDesc ft names, dynamically
// constructing a client proxy from the first delta received for id. Returns
// an error if ft was never registered with AddEntityType.
func (r *Registry) spawnClientEntity(ft railstate.FactoryType, id railstate.EntityId, b *railbits.Buffer, tick, removedTick, commandAck railtime.Tick) (clientEntityHandle, error) {
	desc, ok := r.entityTypes[ft]
	if !ok {
		return nil, fmt.Errorf("railroom: received delta for unregistered FactoryType %d (entity %d)", ft, id)
	}
	return desc.spawn(id, b, tick, removedTick, commandAck)
}
