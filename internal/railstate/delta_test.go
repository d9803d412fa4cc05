package railstate

import (
	"testing"

	"github.com/araex/railgunnet-go/internal/railbits"
	"github.com/araex/railgunnet-go/internal/railtime"
)

// testState is a minimal two-mutable-field schema used only to exercise the
// codec contract: Health (mutable), Team (controller-only), SkinId
// (immutable).
type testState struct {
	Health int32
	X      int32
	Team   uint8
	SkinId uint16
}

type testSchema struct{}

const (
	flagHealth = 0
	flagX      = 1
)

func (testSchema) FactoryType() FactoryType { return 1 }

func (testSchema) CompareMutable(basis, target *testState) Flags {
	var f Flags
	if basis.Health != target.Health {
		f = f.Set(flagHealth)
	}
	if basis.X != target.X {
		f = f.Set(flagX)
	}
	return f
}

func (testSchema) EncodeMutable(b *railbits.Buffer, s *testState, flags Flags) error {
	if flags.Has(flagHealth) {
		b.WriteVarInt(s.Health)
	}
	if flags.Has(flagX) {
		b.WriteVarInt(s.X)
	}
	return nil
}

func (testSchema) DecodeMutable(b *railbits.Buffer, s *testState, flags Flags) error {
	if flags.Has(flagHealth) {
		v, err := b.ReadVarInt()
		if err != nil {
			return err
		}
		s.Health = v
	}
	if flags.Has(flagX) {
		v, err := b.ReadVarInt()
		if err != nil {
			return err
		}
		s.X = v
	}
	return nil
}

func (testSchema) CopyMutable(dst, src *testState, flags Flags) {
	if flags.Has(flagHealth) {
		dst.Health = src.Health
	}
	if flags.Has(flagX) {
		dst.X = src.X
	}
}

func (testSchema) EncodeController(b *railbits.Buffer, s *testState) error {
	b.Write(8, uint32(s.Team))
	return nil
}

func (testSchema) DecodeController(b *railbits.Buffer, s *testState) error {
	v, err := b.Read(8)
	if err != nil {
		return err
	}
	s.Team = uint8(v)
	return nil
}

func (testSchema) CopyController(dst, src *testState) { dst.Team = src.Team }

func (testSchema) EncodeImmutable(b *railbits.Buffer, s *testState) error {
	b.WriteUInt16(s.SkinId)
	return nil
}

func (testSchema) DecodeImmutable(b *railbits.Buffer, s *testState) error {
	v, err := b.ReadUInt16()
	if err != nil {
		return err
	}
	s.SkinId = v
	return nil
}

func (testSchema) CopyImmutable(dst, src *testState) { dst.SkinId = src.SkinId }

func TestCreateDeltaNoOpIsSkipped(t *testing.T) {
	var schema testSchema
	basis := &testState{Health: 100, X: 5}
	target := &testState{Health: 100, X: 5}
	_, produced := CreateDelta(schema, basis, target, EntityId(1), railtime.Tick(10),
		false, false, railtime.Invalid, railtime.Invalid, false)
	if produced {
		t.Fatal("identical basis/target with no controller/immutable/removal should produce nothing")
	}
}

func TestCreateDeltaFlagsOnlyChangedFields(t *testing.T) {
	var schema testSchema
	basis := &testState{Health: 100, X: 5}
	target := &testState{Health: 90, X: 5}
	delta, produced := CreateDelta(schema, basis, target, EntityId(1), railtime.Tick(10),
		false, false, railtime.Invalid, railtime.Invalid, false)
	if !produced {
		t.Fatal("a changed mutable field should produce a delta")
	}
	if !delta.Flags.Has(flagHealth) || delta.Flags.Has(flagX) {
		t.Fatalf("flags = %b, want only flagHealth set", delta.Flags)
	}
}

func TestCreateDeltaForceAllMutable(t *testing.T) {
	var schema testSchema
	basis := &testState{Health: 100, X: 5}
	target := &testState{Health: 100, X: 5}
	delta, produced := CreateDelta(schema, basis, target, EntityId(1), railtime.Tick(10),
		false, false, railtime.Invalid, railtime.Invalid, true)
	if !produced || delta.Flags != AllFlags {
		t.Fatalf("forceAllMutable should always produce AllFlags, got produced=%v flags=%b", produced, delta.Flags)
	}
}

func TestApplyDeltaCopiesOnlyFlaggedFields(t *testing.T) {
	var schema testSchema
	dst := &testState{Health: 100, X: 5, Team: 1, SkinId: 7}
	delta := &Delta[testState]{
		Flags: Flags(0).Set(flagHealth),
		State: &testState{Health: 42, X: 999, Team: 9, SkinId: 1},
	}
	ApplyDelta(schema, dst, delta)
	if dst.Health != 42 {
		t.Fatalf("Health = %d, want 42", dst.Health)
	}
	if dst.X != 5 {
		t.Fatalf("X = %d, want untouched 5, got overwritten by unflagged field", dst.X)
	}
	if dst.Team != 1 || dst.SkinId != 7 {
		t.Fatal("controller/immutable fields must not copy when their has-flags are false")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var schema testSchema
	target := &testState{Health: 55, X: -3, Team: 2, SkinId: 300}
	delta, produced := CreateDelta(schema, nil, target, EntityId(1), railtime.Tick(1),
		true, true, railtime.Invalid, railtime.Invalid, false)
	if !produced {
		t.Fatal("nil basis should always produce a delta")
	}

	b := railbits.New()
	if err := Encode(b, schema, delta); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(railbits.FromBytes(b.Store()), schema, nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if *decoded.State != *target {
		t.Fatalf("decoded state = %+v, want %+v", decoded.State, target)
	}
	if !decoded.HasControllerData || !decoded.HasImmutableData {
		t.Fatal("controller and immutable data should round-trip as present")
	}
}

func TestEncodeDecodePartialAgainstBasis(t *testing.T) {
	var schema testSchema
	basis := &testState{Health: 100, X: 5, Team: 1, SkinId: 7}
	target := &testState{Health: 90, X: 5, Team: 1, SkinId: 7}
	delta, produced := CreateDelta(schema, basis, target, EntityId(1), railtime.Tick(2),
		false, false, railtime.Invalid, railtime.Invalid, false)
	if !produced {
		t.Fatal("expected a delta for the changed Health field")
	}

	b := railbits.New()
	if err := Encode(b, schema, delta); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(railbits.FromBytes(b.Store()), schema, basis)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.State.Health != 90 {
		t.Fatalf("Health = %d, want 90", decoded.State.Health)
	}
	if decoded.State.X != 5 || decoded.State.Team != 1 || decoded.State.SkinId != 7 {
		t.Fatal("fields absent from the wire payload should carry over from basis")
	}
}

func TestDecodeRejectsFactoryTypeMismatch(t *testing.T) {
	var schema testSchema
	b := railbits.New()
	b.Write(16, 999) // wrong FactoryType
	b.Write(FlagBits, 0)
	b.WriteBool(false)
	b.WriteBool(false)

	_, err := Decode(railbits.FromBytes(b.Store()), schema, nil)
	if err == nil {
		t.Fatal("mismatched FactoryType should be rejected")
	}
}
