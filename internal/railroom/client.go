package railroom

import (
	"fmt"
	"sort"

	"github.com/araex/railgunnet-go/internal/railbits"
	"github.com/araex/railgunnet-go/internal/railconfig"
	"github.com/araex/railgunnet-go/internal/raillog"
	"github.com/araex/railgunnet-go/internal/railpacket"
	"github.com/araex/railgunnet-go/internal/railpeer"
	"github.com/araex/railgunnet-go/internal/railscope"
	"github.com/araex/railgunnet-go/internal/railstate"
	"github.com/araex/railgunnet-go/internal/railtime"
	"github.com/araex/railgunnet-go/internal/railtransport"
)

func warnerFor(log *raillog.Logger) railbits.Warner {
	return func(format string, args ...interface{}) {
		log.Warn(fmt.Sprintf(format, args...))
	}
}

// Client drives one connection to a server and the ClientRoom behind it
// (spec.md §6's "Client: SetPeer(transport), StartRoom() -> ClientRoom,
// Update()"). One Client exists per remote server a process connects to.
type Client struct {
	registry  *Registry
	log       *raillog.Logger
	transport railtransport.Transport
	inbox     *railtransport.Inbox
	room      *ClientRoom
}

// NewClient builds a Client against registry, before a transport is
// attached.
func NewClient(registry *Registry, log *raillog.Logger) *Client {
	return &Client{registry: registry, log: log}
}

// SetPeer attaches the transport this client speaks to, and the inbox its
// receive goroutine feeds (spec.md §5's thread-safe hand-off FIFO).
func (c *Client) SetPeer(transport railtransport.Transport, inbox *railtransport.Inbox) {
	c.transport = transport
	c.inbox = inbox
}

// StartRoom constructs the ClientRoom driven by this client's connection.
func (c *Client) StartRoom() *ClientRoom {
	c.room = newClientRoom(c.registry, c.transport, c.inbox, c.log)
	return c.room
}

// Room returns the room StartRoom built, or nil if it hasn't been called.
func (c *Client) Room() *ClientRoom { return c.room }

// Update runs one tick of the room, if one has been started.
func (c *Client) Update() {
	if c.room != nil {
		c.room.update()
	}
}

// ClientRoom is the client-side simulation: one room entity set, one peer,
// and the receive/send halves of the connection (spec.md §4.11's client
// Update).
type ClientRoom struct {
	registry  *Registry
	transport railtransport.Transport
	inbox     *railtransport.Inbox
	log       *raillog.Logger
	warn      railbits.Warner
	metrics   MetricsSink

	peer *railpeer.Peer
	view *railscope.View

	tick     railtime.Tick
	entities map[railstate.EntityId]clientEntityHandle

	// PreRoomUpdate, PostRoomUpdate and EntityRemoved are the room-lifecycle
	// hooks spec.md §6 lists. EventReceived delivers a reliable event this
	// room accepted from the server (deduped against the peer's receive
	// history).
	PreRoomUpdate  func(tick railtime.Tick)
	PostRoomUpdate func(tick railtime.Tick)
	EntityRemoved  func(id railstate.EntityId)
	EventReceived  func(event railpeer.Event)
}

func newClientRoom(registry *Registry, transport railtransport.Transport, inbox *railtransport.Inbox, log *raillog.Logger) *ClientRoom {
	peer := railpeer.New(railconfig.HistoryChunks)
	peer.SetReleaseFunc(registry.events.Release)
	return &ClientRoom{
		registry:  registry,
		transport: transport,
		inbox:     inbox,
		log:       log,
		warn:      warnerFor(log),
		metrics:   noopMetrics{},
		peer:      peer,
		view:      railscope.NewView(),
		tick:      railtime.Start,
		entities:  make(map[railstate.EntityId]clientEntityHandle),
	}
}

// Tick is the room's current logical tick: the client's best estimate of the
// server's current tick, nudged forward whenever a newer senderTick arrives
// and free-running between packets (spec.md §4.11: "tracks the estimated
// server tick via the peer's smoothed RTT" — ping-based sub-tick
// extrapolation is deferred, see Open Question (vi) in the design notes).
func (r *ClientRoom) Tick() railtime.Tick { return r.tick }

// SetMetrics installs sink to receive this room's traffic/reliability
// counters. Optional; a nil sink reverts to the no-op default.
func (r *ClientRoom) SetMetrics(sink MetricsSink) {
	if sink == nil {
		sink = noopMetrics{}
	}
	r.metrics = sink
}

// Entities returns a snapshot of every currently-spawned entity id.
func (r *ClientRoom) Entities() []railstate.EntityId {
	out := make([]railstate.EntityId, 0, len(r.entities))
	for id := range r.entities {
		out = append(out, id)
	}
	return out
}

// RaiseEvent queues a reliable event for retried delivery to the server.
func (r *ClientRoom) RaiseEvent(event railpeer.Event, attempts int, freeWhenDone bool) railpeer.EventId {
	return r.peer.QueueEvent(event, attempts, freeWhenDone, railtime.Invalid)
}

func (r *ClientRoom) advanceTick(senderTick railtime.Tick) {
	if senderTick.IsValid() && senderTick.After(r.tick) {
		r.tick = senderTick
	}
}

// update runs one full client tick: drain and process received packets,
// run every entity's update, retire entities past their removedTick, then
// send a packet on send ticks (spec.md §4.11).
func (r *ClientRoom) update() {
	if r.PreRoomUpdate != nil {
		r.PreRoomUpdate(r.tick)
	}

	for _, payload := range r.inbox.DrainAll() {
		r.metrics.AddBytesReceived(uint64(len(payload)))
		if err := r.handlePacket(payload); err != nil {
			r.warn("railroom: dropped malformed S2C packet: %v", err)
		}
	}

	for _, dropped := range r.peer.ExpiredWarnings(r.tick) {
		r.warn("railroom: reliable event %v expired without acknowledgment", dropped)
	}

	for _, handle := range r.orderedHandles() {
		handle.PreUpdate(r.tick)
	}
	for _, handle := range r.orderedHandles() {
		handle.ClientUpdate(r.tick)
	}

	r.cleanRemovedEntities()

	if r.tick.IsSendTick(railconfig.ClientSendRate) {
		r.sendPacket()
	}

	if r.PostRoomUpdate != nil {
		r.PostRoomUpdate(r.tick)
	}

	r.tick = r.tick.Add(1)
}

// orderedHandles returns every entity sorted by update-order bucket (spec.md
// §3): within a bucket, order is otherwise unspecified.
func (r *ClientRoom) orderedHandles() []clientEntityHandle {
	out := make([]clientEntityHandle, 0, len(r.entities))
	for _, h := range r.entities {
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order() < out[j].Order() })
	return out
}

func (r *ClientRoom) cleanRemovedEntities() {
	for id, handle := range r.entities {
		rt := handle.RemovedTick()
		if rt.IsValid() && !r.tick.Before(rt) {
			handle.Shutdown(r.tick)
			delete(r.entities, id)
			r.view.Forget(id)
			if r.EntityRemoved != nil {
				r.EntityRemoved(id)
			}
		}
	}
}

func (r *ClientRoom) handlePacket(data []byte) error {
	header, b, err := railpacket.ParseS2C(data)
	if err != nil {
		return err
	}
	if !r.peer.AcceptPacket(header.Sequence) {
		return nil
	}
	integrateEventAcks(r.peer, header.LastAckEventId, header.EventIdAcks)
	r.advanceTick(header.SenderTick)

	events, err := railpacket.DecodeEventSection(b, decodeEventItem(r.registry.events))
	if err != nil {
		return fmt.Errorf("event section: %w", err)
	}
	deliverEvents(r.peer, events, func(ev railpeer.Event) {
		if r.EventReceived != nil {
			r.EventReceived(ev)
		}
	})

	return r.decodeDeltaSection(b, header.SenderTick)
}

func (r *ClientRoom) decodeDeltaSection(b *railbits.Buffer, senderTick railtime.Tick) error {
	count, err := b.Read(8)
	if err != nil {
		return fmt.Errorf("delta section count: %w", err)
	}
	for i := uint32(0); i < count; i++ {
		if err := r.decodeOneDelta(b, senderTick); err != nil {
			return fmt.Errorf("delta %d: %w", i, err)
		}
	}
	return nil
}

func (r *ClientRoom) decodeOneDelta(b *railbits.Buffer, senderTick railtime.Tick) error {
	idRaw, err := entityIdCodec.Read(b)
	if err != nil {
		return err
	}
	id := railstate.EntityId(idRaw)

	isFrozen, err := b.ReadBool()
	if err != nil {
		return err
	}

	if isFrozen {
		handle, ok := r.entities[id]
		if !ok {
			return fmt.Errorf("frozen delta for unseen entity %d", id)
		}
		handle.EnqueueFrozenDelta(senderTick, railtime.Invalid, railtime.Invalid)
		r.view.Record(id, senderTick, r.tick, true)
		return nil
	}

	removedTick, err := tickCodec.Read(b)
	if err != nil {
		return err
	}
	commandAck, err := tickCodec.Read(b)
	if err != nil {
		return err
	}

	handle, exists := r.entities[id]
	if exists {
		if err := handle.DecodeAndEnqueueDelta(b, senderTick, removedTick, commandAck); err != nil {
			return err
		}
	} else {
		ft, err := b.Peek(16)
		if err != nil {
			return err
		}
		spawned, err := r.registry.spawnClientEntity(railstate.FactoryType(ft), id, b, senderTick, removedTick, commandAck)
		if err != nil {
			return err
		}
		r.entities[id] = spawned
	}

	r.view.Record(id, senderTick, r.tick, false)
	return nil
}

func (r *ClientRoom) sendPacket() {
	header := railpacket.Header{
		Sequence: r.peer.NextOutgoingSequence(),
		// SenderTick is this client's own local tick; LastAckTick is the most
		// recent server tick this client has actually received (spec.md §6
		// item 2), which advanceTick keeps r.tick snapped forward to.
		SenderTick:     r.tick,
		LastAckTick:    r.tick,
		LastAckEventId: r.peer.HighestContiguousReceived(),
		EventIdAcks:    r.peer.OutOfOrderReceived(),
	}

	events := buildEventEncodeFuncs(r.peer, r.metrics)
	view := r.buildViewEncodeFuncs()
	commands := r.buildCommandEncodeFuncs()

	data := railpacket.BuildC2S(header, events, view, commands, r.warn)
	r.metrics.AddBytesSent(uint64(len(data)))
	if err := r.transport.SendPayload(data); err != nil {
		r.warn("railroom: failed to send C2S packet: %v", err)
	}
}

func (r *ClientRoom) buildViewEncodeFuncs() []railpacket.EncodeFunc {
	snapshot := r.view.Snapshot()
	funcs := make([]railpacket.EncodeFunc, len(snapshot))
	for i, ve := range snapshot {
		ve := ve
		funcs[i] = func(b *railbits.Buffer) error {
			entityIdCodec.Write(b, uint16(ve.EntityId))
			tickCodec.Write(b, ve.LastReceivedTick)
			return nil
		}
	}
	return funcs
}

func (r *ClientRoom) buildCommandEncodeFuncs() []railpacket.EncodeFunc {
	var funcs []railpacket.EncodeFunc
	for _, handle := range r.entities {
		if !handle.HasController() {
			continue
		}
		handle := handle
		funcs = append(funcs, func(b *railbits.Buffer) (err error) {
			_, err = handle.EncodeCommandUpdate(b)
			return err
		})
	}
	return funcs
}
