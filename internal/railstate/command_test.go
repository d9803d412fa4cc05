package railstate

import (
	"testing"

	"github.com/araex/railgunnet-go/internal/railbits"
	"github.com/araex/railgunnet-go/internal/railtime"
)

type testCommandData struct {
	MoveX int32
	Jump  bool
}

type testCommandSchema struct{}

func (testCommandSchema) Encode(b *railbits.Buffer, c *testCommandData) error {
	b.WriteVarInt(c.MoveX)
	b.WriteBool(c.Jump)
	return nil
}

func (testCommandSchema) Decode(b *railbits.Buffer, c *testCommandData) error {
	v, err := b.ReadVarInt()
	if err != nil {
		return err
	}
	c.MoveX = v
	jump, err := b.ReadBool()
	if err != nil {
		return err
	}
	c.Jump = jump
	return nil
}

func TestCommandEncodeDecodeRoundTrip(t *testing.T) {
	var schema testCommandSchema
	cmd := &Command[testCommandData]{
		ClientTick:   railtime.Tick(42),
		IsNewCommand: true,
		Data:         testCommandData{MoveX: -7, Jump: true},
	}

	b := railbits.New()
	if err := EncodeCommand(b, schema, cmd); err != nil {
		t.Fatalf("EncodeCommand failed: %v", err)
	}

	decoded, err := DecodeCommand(railbits.FromBytes(b.Store()), schema)
	if err != nil {
		t.Fatalf("DecodeCommand failed: %v", err)
	}
	if decoded.ClientTick != cmd.ClientTick || decoded.IsNewCommand != cmd.IsNewCommand {
		t.Fatalf("envelope mismatch: got %+v, want tick=%v isNew=%v", decoded, cmd.ClientTick, cmd.IsNewCommand)
	}
	if decoded.Data != cmd.Data {
		t.Fatalf("Data = %+v, want %+v", decoded.Data, cmd.Data)
	}
}

func TestCommandEncodeDecodeInvalidTick(t *testing.T) {
	var schema testCommandSchema
	cmd := &Command[testCommandData]{ClientTick: railtime.Invalid, Data: testCommandData{}}

	b := railbits.New()
	if err := EncodeCommand(b, schema, cmd); err != nil {
		t.Fatalf("EncodeCommand failed: %v", err)
	}
	decoded, err := DecodeCommand(railbits.FromBytes(b.Store()), schema)
	if err != nil {
		t.Fatalf("DecodeCommand failed: %v", err)
	}
	if decoded.ClientTick.IsValid() {
		t.Fatal("invalid tick should round-trip as invalid")
	}
}
