package railroom

import (
	"fmt"
	"sort"

	"github.com/araex/railgunnet-go/internal/railbits"
	"github.com/araex/railgunnet-go/internal/railconfig"
	"github.com/araex/railgunnet-go/internal/raillog"
	"github.com/araex/railgunnet-go/internal/railentity"
	"github.com/araex/railgunnet-go/internal/railpacket"
	"github.com/araex/railgunnet-go/internal/railpeer"
	"github.com/araex/railgunnet-go/internal/railscope"
	"github.com/araex/railgunnet-go/internal/railstate"
	"github.com/araex/railgunnet-go/internal/railtime"
	"github.com/araex/railgunnet-go/internal/railtransport"
	"github.com/rs/xid"
)

// clientConn is one connected client's transport and per-connection
// bookkeeping (spec.md §4.8/§4.10): a Peer for sequence/event tracking, a
// Scope for per-entity visibility/ack state, and the identifier AddClient
// was called with.
type clientConn struct {
	peerId     railentity.PeerId
	identifier string
	transport  railtransport.Transport
	inbox      *railtransport.Inbox

	peer  *railpeer.Peer
	scope *railscope.Scope

	// lastReceivedClientTick is the controllerEstimatedRemoteTick ServerUpdate
	// needs to fetch the right buffered command (spec.md §4.7): the client
	// stamps every command with its own local tick, so the server just tracks
	// the newest senderTick it has actually received from this client.
	lastReceivedClientTick railtime.Tick
}

// Server drives one or more connected clients and the ServerRoom behind them
// (spec.md §6's "Server: AddClient(transport, identifier), RemoveClient
// (transport), StartRoom() -> ServerRoom, Update()").
type Server struct {
	registry *Registry
	log      *raillog.Logger
	room     *ServerRoom
}

// NewServer builds a Server against registry, before any room is started.
func NewServer(registry *Registry, log *raillog.Logger) *Server {
	return &Server{registry: registry, log: log}
}

// StartRoom constructs the single ServerRoom this server drives.
func (s *Server) StartRoom() *ServerRoom {
	s.room = newServerRoom(s.registry, s.log)
	return s.room
}

// Room returns the room StartRoom built, or nil if it hasn't been called.
func (s *Server) Room() *ServerRoom { return s.room }

// AddClient registers a new connection, minting a PeerId for it (spec.md §9's
// "model cyclic references as stable ids" — identifier is an opaque caller
// label, e.g. a username, never used as the lookup key itself).
func (s *Server) AddClient(transport railtransport.Transport, inbox *railtransport.Inbox, identifier string) railentity.PeerId {
	return s.room.addClient(transport, inbox, identifier)
}

// RemoveClient disconnects the client previously added with this transport,
// a no-op if it is not currently connected.
func (s *Server) RemoveClient(transport railtransport.Transport) {
	s.room.removeClient(transport)
}

// Update runs one tick of the room, if one has been started.
func (s *Server) Update() {
	if s.room != nil {
		s.room.update()
	}
}

// ServerRoom is the authoritative simulation: one entity set, one Scope per
// connected client, and the receive/send halves of every connection
// (spec.md §4.11's server Update).
type ServerRoom struct {
	registry *Registry
	log      *raillog.Logger
	warn     railbits.Warner
	metrics  MetricsSink

	tick       railtime.Tick
	nextEntity railstate.EntityId
	entities   map[railstate.EntityId]serverEntityHandle

	clients     map[railentity.PeerId]*clientConn
	byTransport map[railtransport.Transport]railentity.PeerId

	clientJoinedCh chan ClientEvent
	clientLeftCh   chan ClientEvent

	// PreRoomUpdate, PostRoomUpdate and EntityRemoved mirror the client-side
	// room's lifecycle hooks (spec.md §6). ClientJoined/ClientLeft are the
	// server-only additions; EventReceived delivers a reliable event a client
	// sent, deduped against that client's peer receive history.
	PreRoomUpdate  func(tick railtime.Tick)
	PostRoomUpdate func(tick railtime.Tick)
	EntityRemoved  func(id railstate.EntityId)
	ClientJoined   func(peer railentity.PeerId, identifier string)
	ClientLeft     func(peer railentity.PeerId, identifier string)
	EventReceived  func(peer railentity.PeerId, event railpeer.Event)
}

// ClientEvent is one connect/disconnect notification delivered on
// ServerRoom's ClientJoinedCh/ClientLeftCh.
type ClientEvent struct {
	Peer       railentity.PeerId
	Identifier string
}

func newServerRoom(registry *Registry, log *raillog.Logger) *ServerRoom {
	return &ServerRoom{
		registry:       registry,
		log:            log,
		warn:           warnerFor(log),
		metrics:        noopMetrics{},
		tick:           railtime.Start,
		entities:       make(map[railstate.EntityId]serverEntityHandle),
		clientJoinedCh: make(chan ClientEvent, 16),
		clientLeftCh:   make(chan ClientEvent, 16),
		clients:        make(map[railentity.PeerId]*clientConn),
		byTransport: make(map[railtransport.Transport]railentity.PeerId),
	}
}

// Tick is the room's current authoritative simulation tick.
func (r *ServerRoom) Tick() railtime.Tick { return r.tick }

// SetMetrics installs sink to receive this room's traffic/reliability
// counters. Optional; a nil sink reverts to the no-op default.
func (r *ServerRoom) SetMetrics(sink MetricsSink) {
	if sink == nil {
		sink = noopMetrics{}
	}
	r.metrics = sink
}

// Entities returns a snapshot of every currently-live entity id.
func (r *ServerRoom) Entities() []railstate.EntityId {
	out := make([]railstate.EntityId, 0, len(r.entities))
	for id := range r.entities {
		out = append(out, id)
	}
	return out
}

func (r *ServerRoom) addClient(transport railtransport.Transport, inbox *railtransport.Inbox, identifier string) railentity.PeerId {
	peerId := xid.New()
	peer := railpeer.New(railconfig.HistoryChunks)
	peer.SetReleaseFunc(r.registry.events.Release)
	conn := &clientConn{
		peerId:                 peerId,
		identifier:             identifier,
		transport:              transport,
		inbox:                  inbox,
		peer:                   peer,
		scope:                  railscope.NewScope(),
		lastReceivedClientTick: railtime.Invalid,
	}
	r.clients[peerId] = conn
	r.byTransport[transport] = peerId
	for id := range r.entities {
		conn.scope.Track(id)
	}
	if r.ClientJoined != nil {
		r.ClientJoined(peerId, identifier)
	}
	r.emitClientEvent(r.clientJoinedCh, ClientEvent{Peer: peerId, Identifier: identifier})
	return peerId
}

// ClientJoinedCh delivers a ClientEvent for every AddClient call, in
// addition to the ClientJoined callback above, so a caller can select on
// connection lifecycle without the room needing to know about logging or
// metrics (generalized from the teacher's core/events.EventManager
// publish/subscribe shape to a typed channel instead of an untyped
// interface{} payload). Sends never block the room's tick: a channel with
// no reader drops events rather than stalling Update.
func (r *ServerRoom) ClientJoinedCh() <-chan ClientEvent { return r.clientJoinedCh }

// ClientLeftCh is ClientJoinedCh's disconnect counterpart.
func (r *ServerRoom) ClientLeftCh() <-chan ClientEvent { return r.clientLeftCh }

func (r *ServerRoom) emitClientEvent(ch chan ClientEvent, ev ClientEvent) {
	select {
	case ch <- ev:
	default:
		r.warn("railroom: client lifecycle channel full, dropping event for peer %s", ev.Peer)
	}
}

func (r *ServerRoom) removeClient(transport railtransport.Transport) {
	peerId, ok := r.byTransport[transport]
	if !ok {
		return
	}
	conn := r.clients[peerId]
	delete(r.byTransport, transport)
	delete(r.clients, peerId)

	for _, handle := range r.entities {
		if handle.HasController() && handle.Controller() == peerId {
			handle.ClearController()
		}
	}
	if r.ClientLeft != nil {
		r.ClientLeft(peerId, conn.identifier)
	}
	r.emitClientEvent(r.clientLeftCh, ClientEvent{Peer: peerId, Identifier: conn.identifier})
}

// AddNewEntity constructs a new server entity of schema pair (S,C) and tracks
// it in every connected client's scope (spec.md §6's "AddNewEntity<T>()").
// C must be the command type previously registered with SetCommandType on
// this room's registry; otherwise AddNewEntity returns an error.
func AddNewEntity[S, C any](
	room *ServerRoom,
	schema railstate.Schema[S],
	order railentity.Order,
	hooks railentity.ServerHooks[S, C],
	initial *S,
	dejitterCapacity int,
) (railstate.EntityId, error) {
	cmdSchema, ok := room.registry.command.(railstate.CommandSchema[C])
	if !ok {
		return railstate.InvalidEntityId, fmt.Errorf("railroom: no command schema registered matching this entity's command type")
	}

	room.nextEntity++
	id := room.nextEntity

	entity := railentity.NewServerEntity[S, C](id, order, schema, hooks, initial, dejitterCapacity)
	room.entities[id] = &serverAdapter[S, C]{entity: entity, schema: schema, cmdSchema: cmdSchema}

	for _, conn := range room.clients {
		conn.scope.Track(id)
	}
	return id, nil
}

// MarkForRemoval schedules id for deferred removal (spec.md §6's
// "MarkForRemoval(entity)"); it stays live, and visible to clients that still
// need the final removal delta, until CleanRemovedEntities retires it.
func (r *ServerRoom) MarkForRemoval(id railstate.EntityId) {
	handle, ok := r.entities[id]
	if !ok {
		return
	}
	handle.MarkForRemoval(r.tick)
	for _, conn := range r.clients {
		conn.scope.MarkRemoved(id)
	}
}

// SetController assigns peer as the controlling client of entity id: the
// caller commanding which client drives which entity, since the engine has
// no notion of ownership beyond this one assignment (spec.md §4's
// controller-only mutable section is keyed off exactly this). Any PeerId,
// the zero value included, becomes the controller; ClearController below
// removes it.
func (r *ServerRoom) SetController(id railstate.EntityId, peer railentity.PeerId) error {
	handle, ok := r.entities[id]
	if !ok {
		return fmt.Errorf("railroom: SetController: unknown entity %d", id)
	}
	handle.SetController(peer)
	return nil
}

// ClearController removes id's controller, if it has one.
func (r *ServerRoom) ClearController(id railstate.EntityId) {
	if handle, ok := r.entities[id]; ok {
		handle.ClearController()
	}
}

// SetEntityFrozen marks whether id currently sits in peer's area of interest
// (spec.md §4.8's "frozen entities — not in a client's area of interest —
// produce a frozen delta"). Deciding which entities belong in a client's
// area of interest is left to the caller; the engine only tracks the
// resulting frozen/active split once told.
func (r *ServerRoom) SetEntityFrozen(peer railentity.PeerId, id railstate.EntityId, frozen bool) {
	if conn, ok := r.clients[peer]; ok {
		conn.scope.SetFrozen(id, frozen)
	}
}

// BroadcastEvent queues a reliable event for every connected client (spec.md
// §6's "BroadcastEvent(e, attempts, freeWhenDone)").
func (r *ServerRoom) BroadcastEvent(event railpeer.Event, attempts int, freeWhenDone bool) {
	for _, conn := range r.clients {
		conn.peer.QueueEvent(event, attempts, freeWhenDone, railtime.Invalid)
	}
}

func (r *ServerRoom) orderedHandles() []serverEntityHandle {
	out := make([]serverEntityHandle, 0, len(r.entities))
	for _, h := range r.entities {
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order() < out[j].Order() })
	return out
}

// update runs one full server tick (spec.md §4.11): drain every client's
// received packets, tick every entity in update-order, broadcast state on
// send ticks, then retire fully-acked removed entities.
func (r *ServerRoom) update() {
	if r.PreRoomUpdate != nil {
		r.PreRoomUpdate(r.tick)
	}

	for _, conn := range r.clients {
		r.drainClient(conn)
	}

	for _, handle := range r.orderedHandles() {
		controllerTick := railtime.Invalid
		if handle.HasController() {
			if conn, ok := r.clients[handle.Controller()]; ok {
				controllerTick = conn.lastReceivedClientTick
			}
		}
		handle.ServerTick(r.tick, controllerTick, railconfig.ServerSendRate)
		if handle.IsRemovalDue(r.tick) {
			for _, conn := range r.clients {
				conn.scope.MarkRemoved(handle.Id())
			}
		}
	}

	if r.tick.IsSendTick(railconfig.ServerSendRate) {
		r.broadcastPackets()
	}

	r.cleanRemovedEntities()

	if r.PostRoomUpdate != nil {
		r.PostRoomUpdate(r.tick)
	}

	r.tick = r.tick.Add(1)
}

func (r *ServerRoom) drainClient(conn *clientConn) {
	for _, payload := range conn.inbox.DrainAll() {
		r.metrics.AddBytesReceived(uint64(len(payload)))
		if err := r.handleC2SPacket(conn, payload); err != nil {
			r.warn("railroom: dropped malformed C2S packet from %s: %v", conn.identifier, err)
		}
	}
	for _, dropped := range conn.peer.ExpiredWarnings(r.tick) {
		r.warn("railroom: reliable event %v to %s expired without acknowledgment", dropped, conn.identifier)
	}
}

func (r *ServerRoom) handleC2SPacket(conn *clientConn, data []byte) error {
	header, b, err := railpacket.ParseC2S(data)
	if err != nil {
		return err
	}
	if !conn.peer.AcceptPacket(header.Sequence) {
		return nil
	}
	integrateEventAcks(conn.peer, header.LastAckEventId, header.EventIdAcks)
	if header.SenderTick.IsValid() && header.SenderTick.After(conn.lastReceivedClientTick) {
		conn.lastReceivedClientTick = header.SenderTick
	}

	events, err := railpacket.DecodeEventSection(b, decodeEventItem(r.registry.events))
	if err != nil {
		return fmt.Errorf("event section: %w", err)
	}
	deliverEvents(conn.peer, events, func(ev railpeer.Event) {
		if r.EventReceived != nil {
			r.EventReceived(conn.peerId, ev)
		}
	})

	view, err := railpacket.DecodeSection(b, r.decodeViewEntry)
	if err != nil {
		return fmt.Errorf("view section: %w", err)
	}
	conn.scope.IntegrateAcked(view)

	return r.decodeCommandSection(b)
}

func (r *ServerRoom) decodeViewEntry(b *railbits.Buffer) (railscope.ViewEntry, error) {
	idRaw, err := entityIdCodec.Read(b)
	if err != nil {
		return railscope.ViewEntry{}, err
	}
	tick, err := tickCodec.Read(b)
	if err != nil {
		return railscope.ViewEntry{}, err
	}
	return railscope.ViewEntry{EntityId: railstate.EntityId(idRaw), LastReceivedTick: tick}, nil
}

func (r *ServerRoom) decodeCommandSection(b *railbits.Buffer) error {
	count, err := b.Read(8)
	if err != nil {
		return fmt.Errorf("command section count: %w", err)
	}
	for i := uint32(0); i < count; i++ {
		idRaw, err := entityIdCodec.Read(b)
		if err != nil {
			return fmt.Errorf("command update %d: %w", i, err)
		}
		id := railstate.EntityId(idRaw)
		if handle, ok := r.entities[id]; ok {
			if err := handle.DecodeCommandUpdateBody(b); err != nil {
				return fmt.Errorf("command update %d (entity %d): %w", i, id, err)
			}
			continue
		}
		if r.registry.discardCommandUpdateBody == nil {
			return fmt.Errorf("command update %d: no command schema registered to discard unknown entity %d", i, id)
		}
		if err := r.registry.discardCommandUpdateBody(b); err != nil {
			return fmt.Errorf("command update %d (discarding unknown entity %d): %w", i, id, err)
		}
	}
	return nil
}

// broadcastPackets builds and sends one S2C packet per connected client
// (spec.md §4.8/§4.9): candidates in removed/frozen/active priority order,
// each delta framed against that client's Scope.
func (r *ServerRoom) broadcastPackets() {
	for _, conn := range r.clients {
		r.sendPacketTo(conn)
	}
}

func (r *ServerRoom) sendPacketTo(conn *clientConn) {
	header := railpacket.Header{
		Sequence:       conn.peer.NextOutgoingSequence(),
		SenderTick:     r.tick,
		LastAckTick:    conn.lastReceivedClientTick,
		LastAckEventId: conn.peer.HighestContiguousReceived(),
		EventIdAcks:    conn.peer.OutOfOrderReceived(),
	}

	events := buildEventEncodeFuncs(conn.peer, r.metrics)
	deltas := r.buildDeltaEncodeFuncs(conn)

	data, droppedDeltas := railpacket.BuildS2C(header, events, deltas, r.warn)
	for i := 0; i < droppedDeltas; i++ {
		r.metrics.IncDroppedDelta()
	}
	r.metrics.AddBytesSent(uint64(len(data)))
	if err := conn.transport.SendPayload(data); err != nil {
		r.warn("railroom: failed to send S2C packet to %s: %v", conn.identifier, err)
	}
}

func (r *ServerRoom) buildDeltaEncodeFuncs(conn *clientConn) []railpacket.EncodeFunc {
	var funcs []railpacket.EncodeFunc
	for _, candidate := range conn.scope.Candidates() {
		handle, ok := r.entities[candidate.EntityId]
		if !ok {
			conn.scope.Forget(candidate.EntityId)
			continue
		}
		if !candidate.IsFrozen && !handle.HasPendingDelta(r.tick, candidate.LastAckedTick, conn.peerId) {
			continue
		}
		handle, candidate := handle, candidate
		funcs = append(funcs, func(b *railbits.Buffer) error {
			ok, err := handle.EncodeWireDelta(b, r.tick, candidate.LastAckedTick, conn.peerId, candidate.IsFrozen, false)
			if err != nil {
				return err
			}
			if ok {
				conn.scope.RecordSent(candidate.EntityId, r.tick)
			}
			return nil
		})
	}
	return funcs
}

// cleanRemovedEntities drops any removed entity every client has either
// never seen or has fully acked (spec.md §4.8's retention rule).
func (r *ServerRoom) cleanRemovedEntities() {
	for id, handle := range r.entities {
		if !handle.IsRemovalDue(r.tick) {
			continue
		}
		retired := true
		for _, conn := range r.clients {
			if !conn.scope.ShouldRetire(id, handle.RemovedTick()) {
				retired = false
				break
			}
		}
		if !retired {
			continue
		}
		delete(r.entities, id)
		for _, conn := range r.clients {
			conn.scope.Forget(id)
		}
		if r.EntityRemoved != nil {
			r.EntityRemoved(id)
		}
	}
}
