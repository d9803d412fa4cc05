package railroom_test

import (
	"testing"

	"github.com/araex/railgunnet-go/internal/railbits"
	"github.com/araex/railgunnet-go/internal/raillog"
	"github.com/araex/railgunnet-go/internal/railentity"
	"github.com/araex/railgunnet-go/internal/railpeer"
	"github.com/araex/railgunnet-go/internal/railroom"
	"github.com/araex/railgunnet-go/internal/railstate"
	"github.com/araex/railgunnet-go/internal/railtransport"
)

type posState struct {
	Pos    int32
	Team   uint8
	SkinId uint16
}

const flagPos = 0

type posSchema struct{}

func (posSchema) FactoryType() railstate.FactoryType { return 1 }
func (posSchema) CompareMutable(basis, target *posState) railstate.Flags {
	var f railstate.Flags
	if basis.Pos != target.Pos {
		f = f.Set(flagPos)
	}
	return f
}
func (posSchema) EncodeMutable(b *railbits.Buffer, s *posState, flags railstate.Flags) error {
	if flags.Has(flagPos) {
		b.WriteVarInt(s.Pos)
	}
	return nil
}
func (posSchema) DecodeMutable(b *railbits.Buffer, s *posState, flags railstate.Flags) error {
	if flags.Has(flagPos) {
		v, err := b.ReadVarInt()
		if err != nil {
			return err
		}
		s.Pos = v
	}
	return nil
}
func (posSchema) CopyMutable(dst, src *posState, flags railstate.Flags) {
	if flags.Has(flagPos) {
		dst.Pos = src.Pos
	}
}
func (posSchema) EncodeController(b *railbits.Buffer, s *posState) error {
	b.Write(8, uint32(s.Team))
	return nil
}
func (posSchema) DecodeController(b *railbits.Buffer, s *posState) error {
	v, err := b.Read(8)
	if err != nil {
		return err
	}
	s.Team = uint8(v)
	return nil
}
func (posSchema) CopyController(dst, src *posState) { dst.Team = src.Team }
func (posSchema) EncodeImmutable(b *railbits.Buffer, s *posState) error {
	b.WriteUInt16(s.SkinId)
	return nil
}
func (posSchema) DecodeImmutable(b *railbits.Buffer, s *posState) error {
	v, err := b.ReadUInt16()
	if err != nil {
		return err
	}
	s.SkinId = v
	return nil
}
func (posSchema) CopyImmutable(dst, src *posState) { dst.SkinId = src.SkinId }

type moveCommand struct {
	Delta int32
}

type moveCommandSchema struct{}

func (moveCommandSchema) Encode(b *railbits.Buffer, c *moveCommand) error {
	b.WriteVarInt(c.Delta)
	return nil
}
func (moveCommandSchema) Decode(b *railbits.Buffer, c *moveCommand) error {
	v, err := b.ReadVarInt()
	if err != nil {
		return err
	}
	c.Delta = v
	return nil
}

type testServerHooks struct {
	applyCount int
	lastState  posState
}

func (h *testServerHooks) ApplyControl(s *posState, cmd *moveCommand) {
	s.Pos += cmd.Delta
	h.applyCount++
}
func (h *testServerHooks) OnStart(s *posState)        {}
func (h *testServerHooks) OnSunset(s *posState)       {}
func (h *testServerHooks) UpdateAuth(s *posState)     { h.lastState = *s }
func (h *testServerHooks) CommandMissing(s *posState) {}

type testClientHooks struct {
	outgoingDelta int32
	lastAuth      posState
	gotControl    bool
}

func (h *testClientHooks) ApplyControl(s *posState, cmd *moveCommand) { s.Pos += cmd.Delta }
func (h *testClientHooks) OnStart(s *posState)                        { h.lastAuth = *s }
func (h *testClientHooks) OnFrozen(s *posState)                       {}
func (h *testClientHooks) OnUnfrozen(s *posState)                     {}
func (h *testClientHooks) UpdateFrozen(s *posState)                   {}
func (h *testClientHooks) UpdateProxy(auth, next *posState)           { h.lastAuth = *auth }
func (h *testClientHooks) UpdateControl(cmd *moveCommand)             { cmd.Delta = h.outgoingDelta }
func (h *testClientHooks) RequestControlUpdate(id railstate.EntityId, lastDelta *railstate.Delta[posState]) {
	if lastDelta.HasControllerData {
		h.gotControl = true
	}
}

// loopTransport is a synchronous in-memory railtransport.Transport: every
// SendPayload immediately pushes a copy into the paired peer's inbox, so a
// test can drive a full server/client tick pump without any real socket.
type loopTransport struct {
	peerInbox *railtransport.Inbox
}

func (t *loopTransport) SendPayload(data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	t.peerInbox.Push(cp)
	return nil
}
func (t *loopTransport) Ping() (float64, bool) { return 0.01, true }
func (t *loopTransport) Close() error          { return nil }

func newTestLogger(t *testing.T) *raillog.Logger {
	t.Helper()
	log, err := raillog.New("error")
	if err != nil {
		t.Fatalf("raillog.New failed: %v", err)
	}
	return log
}

// TestServerClientRoundTrip wires one server and one client room end to end
// over loopTransport: the server spawns and controller-assigns an entity,
// the client predicts its own controlled commands and applies the server's
// authoritative deltas for everything else, replicating spec.md §4.11's
// full tick pump with no real network involved.
func TestServerClientRoundTrip(t *testing.T) {
	log := newTestLogger(t)

	serverRegistry := railroom.NewRegistry()
	railroom.SetCommandType[moveCommand](serverRegistry, moveCommandSchema{})
	railroom.AddEntityType[posState, moveCommand](
		serverRegistry, posSchema{}, railentity.Normal,
		func(id railstate.EntityId) railentity.ClientHooks[posState, moveCommand] {
			return &testClientHooks{outgoingDelta: 3}
		},
		16, 8,
	)

	clientRegistry := railroom.NewRegistry()
	railroom.SetCommandType[moveCommand](clientRegistry, moveCommandSchema{})
	railroom.AddEntityType[posState, moveCommand](
		clientRegistry, posSchema{}, railentity.Normal,
		func(id railstate.EntityId) railentity.ClientHooks[posState, moveCommand] {
			return &testClientHooks{outgoingDelta: 3}
		},
		16, 8,
	)

	server := railroom.NewServer(serverRegistry, log)
	room := server.StartRoom()

	serverHooks := &testServerHooks{}
	id, err := railroom.AddNewEntity[posState, moveCommand](
		room, posSchema{}, railentity.Normal, serverHooks, &posState{SkinId: 42}, 16,
	)
	if err != nil {
		t.Fatalf("AddNewEntity failed: %v", err)
	}

	serverInbox := &railtransport.Inbox{}
	clientInbox := &railtransport.Inbox{}
	serverTransport := &loopTransport{peerInbox: clientInbox}
	clientTransport := &loopTransport{peerInbox: serverInbox}

	peerId := server.AddClient(serverTransport, serverInbox, "p1")
	if err := room.SetController(id, peerId); err != nil {
		t.Fatalf("SetController failed: %v", err)
	}

	client := railroom.NewClient(clientRegistry, log)
	client.SetPeer(clientTransport, clientInbox)
	clientRoom := client.StartRoom()

	for i := 0; i < 40; i++ {
		server.Update()
		client.Update()
	}

	if serverHooks.applyCount == 0 {
		t.Fatalf("server never applied a client command")
	}
	if serverHooks.lastState.Pos == 0 {
		t.Fatalf("server entity Pos never advanced, want > 0")
	}

	ids := clientRoom.Entities()
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("client Entities() = %v, want [%d]", ids, id)
	}
}

// TestBroadcastEventDeliveredToClient exercises the reliable-event path:
// BroadcastEvent on the server must surface on the client room's
// EventReceived callback once delivered and acknowledged.
func TestBroadcastEventDeliveredToClient(t *testing.T) {
	log := newTestLogger(t)

	const chatEventType railpeer.EventTypeId = 1

	serverRegistry := railroom.NewRegistry()
	railroom.SetCommandType[moveCommand](serverRegistry, moveCommandSchema{})
	railroom.AddEntityType[posState, moveCommand](
		serverRegistry, posSchema{}, railentity.Normal,
		func(id railstate.EntityId) railentity.ClientHooks[posState, moveCommand] {
			return &testClientHooks{}
		},
		16, 8,
	)
	railroom.AddEventType(serverRegistry, chatEventType, func() railpeer.Event { return &testChatEvent{} })

	clientRegistry := railroom.NewRegistry()
	railroom.SetCommandType[moveCommand](clientRegistry, moveCommandSchema{})
	railroom.AddEntityType[posState, moveCommand](
		clientRegistry, posSchema{}, railentity.Normal,
		func(id railstate.EntityId) railentity.ClientHooks[posState, moveCommand] {
			return &testClientHooks{}
		},
		16, 8,
	)
	railroom.AddEventType(clientRegistry, chatEventType, func() railpeer.Event { return &testChatEvent{} })

	server := railroom.NewServer(serverRegistry, log)
	room := server.StartRoom()

	serverInbox := &railtransport.Inbox{}
	clientInbox := &railtransport.Inbox{}
	server.AddClient(&loopTransport{peerInbox: clientInbox}, serverInbox, "p1")

	client := railroom.NewClient(clientRegistry, log)
	client.SetPeer(&loopTransport{peerInbox: serverInbox}, clientInbox)
	clientRoom := client.StartRoom()

	var received []string
	clientRoom.EventReceived = func(ev railpeer.Event) {
		if chat, ok := ev.(*testChatEvent); ok {
			received = append(received, chat.Message)
		}
	}

	room.BroadcastEvent(&testChatEvent{Message: "hello"}, 3, true)

	for i := 0; i < 10; i++ {
		server.Update()
		client.Update()
	}

	if len(received) != 1 || received[0] != "hello" {
		t.Fatalf("received = %v, want [hello]", received)
	}
}

type testChatEvent struct {
	Message string
}

func (*testChatEvent) EventTypeId() railpeer.EventTypeId { return 1 }
func (e *testChatEvent) Encode(b *railbits.Buffer) error { return b.WriteString(e.Message) }
func (e *testChatEvent) Decode(b *railbits.Buffer) error {
	s, err := b.ReadString()
	if err != nil {
		return err
	}
	e.Message = s
	return nil
}
