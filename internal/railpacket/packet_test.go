package railpacket

import (
	"testing"

	"github.com/araex/railgunnet-go/internal/railbits"
	"github.com/araex/railgunnet-go/internal/railpeer"
	"github.com/araex/railgunnet-go/internal/railtime"
)

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := Header{
		Sequence:       railtime.NewSequenceId(42),
		SenderTick:     railtime.Tick(100),
		LastAckTick:    railtime.Tick(90),
		LastAckEventId: railpeer.EventId(7),
		EventIdAcks:    []railpeer.EventId{8, 9},
	}

	b := railbits.New()
	EncodeHeader(b, h)

	decoded, err := DecodeHeader(railbits.FromBytes(b.Store()))
	if err != nil {
		t.Fatalf("DecodeHeader failed: %v", err)
	}
	if decoded.Sequence.Value() != h.Sequence.Value() {
		t.Errorf("Sequence = %v, want %v", decoded.Sequence.Value(), h.Sequence.Value())
	}
	if decoded.SenderTick != h.SenderTick {
		t.Errorf("SenderTick = %v, want %v", decoded.SenderTick, h.SenderTick)
	}
	if decoded.LastAckTick != h.LastAckTick {
		t.Errorf("LastAckTick = %v, want %v", decoded.LastAckTick, h.LastAckTick)
	}
	if decoded.LastAckEventId != h.LastAckEventId {
		t.Errorf("LastAckEventId = %v, want %v", decoded.LastAckEventId, h.LastAckEventId)
	}
	if len(decoded.EventIdAcks) != 2 || decoded.EventIdAcks[0] != 8 || decoded.EventIdAcks[1] != 9 {
		t.Errorf("EventIdAcks = %v, want [8 9]", decoded.EventIdAcks)
	}
}

func TestHeaderEmptyAckListRoundTrip(t *testing.T) {
	h := Header{Sequence: railtime.NewSequenceId(0), SenderTick: railtime.Tick(1), LastAckTick: railtime.Invalid}
	b := railbits.New()
	EncodeHeader(b, h)

	decoded, err := DecodeHeader(railbits.FromBytes(b.Store()))
	if err != nil {
		t.Fatalf("DecodeHeader failed: %v", err)
	}
	if decoded.LastAckTick.IsValid() {
		t.Error("expected LastAckTick to decode as Invalid")
	}
	if len(decoded.EventIdAcks) != 0 {
		t.Errorf("expected no event acks, got %v", decoded.EventIdAcks)
	}
}

func encodeVarint(v int32) EncodeFunc {
	return func(b *railbits.Buffer) error {
		b.WriteVarInt(v)
		return nil
	}
}

func decodeVarint(b *railbits.Buffer) (int32, error) {
	return b.ReadVarInt()
}

func TestBuildAndParseS2CRoundTrip(t *testing.T) {
	h := Header{Sequence: railtime.NewSequenceId(1), SenderTick: railtime.Tick(50), LastAckTick: railtime.Invalid}
	events := []EncodeFunc{encodeVarint(11)}
	deltas := []EncodeFunc{encodeVarint(100), encodeVarint(200)}

	data, dropped := BuildS2C(h, events, deltas, nil)
	if dropped != 0 {
		t.Fatalf("dropped = %d, want 0 (both deltas fit)", dropped)
	}

	decodedHeader, b, err := ParseS2C(data)
	if err != nil {
		t.Fatalf("ParseS2C failed: %v", err)
	}
	if decodedHeader.SenderTick != h.SenderTick {
		t.Fatalf("SenderTick = %v, want %v", decodedHeader.SenderTick, h.SenderTick)
	}

	gotEvents, err := DecodeEventSection(b, decodeVarint)
	if err != nil {
		t.Fatalf("DecodeEventSection failed: %v", err)
	}
	if len(gotEvents) != 1 || gotEvents[0] != 11 {
		t.Fatalf("events = %v, want [11]", gotEvents)
	}

	gotDeltas, err := unpackItems(b, decodeVarint)
	if err != nil {
		t.Fatalf("unpackItems failed: %v", err)
	}
	if len(gotDeltas) != 2 || gotDeltas[0] != 100 || gotDeltas[1] != 200 {
		t.Fatalf("deltas = %v, want [100 200]", gotDeltas)
	}
}

func TestBuildAndParseC2SRoundTrip(t *testing.T) {
	h := Header{Sequence: railtime.NewSequenceId(2), SenderTick: railtime.Tick(10), LastAckTick: railtime.Tick(9)}
	view := []EncodeFunc{encodeVarint(5)}
	commands := []EncodeFunc{encodeVarint(77)}

	data := BuildC2S(h, nil, view, commands, nil)

	decodedHeader, b, err := ParseC2S(data)
	if err != nil {
		t.Fatalf("ParseC2S failed: %v", err)
	}
	if decodedHeader.LastAckTick != h.LastAckTick {
		t.Fatalf("LastAckTick = %v, want %v", decodedHeader.LastAckTick, h.LastAckTick)
	}

	gotEvents, err := DecodeEventSection(b, decodeVarint)
	if err != nil {
		t.Fatalf("DecodeEventSection failed: %v", err)
	}
	if len(gotEvents) != 0 {
		t.Fatalf("expected no events, got %v", gotEvents)
	}

	gotView, err := unpackItems(b, decodeVarint)
	if err != nil {
		t.Fatalf("unpackItems(view) failed: %v", err)
	}
	if len(gotView) != 1 || gotView[0] != 5 {
		t.Fatalf("view = %v, want [5]", gotView)
	}

	gotCommands, err := unpackItems(b, decodeVarint)
	if err != nil {
		t.Fatalf("unpackItems(commands) failed: %v", err)
	}
	if len(gotCommands) != 1 || gotCommands[0] != 77 {
		t.Fatalf("commands = %v, want [77]", gotCommands)
	}
}
