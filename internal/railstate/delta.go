package railstate

import (
	"fmt"

	"github.com/araex/railgunnet-go/internal/railbits"
	"github.com/araex/railgunnet-go/internal/railtime"
)

// Delta is the wire record for one entity in one packet (spec.md §3's
// StateDelta, §4.6's codec). A frozen delta carries no state payload; a
// removing delta still carries the final controller snapshot so the
// controller sees terminal controller data (spec.md §4.6 "Removing delta
// semantics").
type Delta[S any] struct {
	Tick        railtime.Tick
	EntityId    EntityId
	RemovedTick railtime.Tick
	CommandAck  railtime.Tick
	IsFrozen    bool

	Flags             Flags
	HasControllerData bool
	HasImmutableData  bool
	State             *S // nil for a frozen delta with no payload
}

// CreateDelta builds a Delta describing target relative to basis. basis may
// be nil (no prior ack — forces a full immutable resend upstream via
// includeImmutable). It returns (nil, false) when nothing would change: an
// all-zero flag word, no controller/immutable payload, and no pending
// removal is a true no-op that the caller should skip sending entirely
// (spec.md §4.6's "a packet slot is saved").
func CreateDelta[S any](
	schema Schema[S],
	basis, target *S,
	entityId EntityId,
	tick railtime.Tick,
	includeController, includeImmutable bool,
	commandAck, removedTick railtime.Tick,
	forceAllMutable bool,
) (*Delta[S], bool) {
	var flags Flags
	switch {
	case forceAllMutable || basis == nil:
		flags = AllFlags
	default:
		flags = schema.CompareMutable(basis, target)
	}

	if flags == 0 && !includeController && !includeImmutable && !removedTick.IsValid() {
		return nil, false
	}

	return &Delta[S]{
		Tick:              tick,
		EntityId:          entityId,
		RemovedTick:       removedTick,
		CommandAck:        commandAck,
		Flags:             flags,
		HasControllerData: includeController,
		HasImmutableData:  includeImmutable,
		State:             target,
	}, true
}

// ApplyDelta copies the fields delta describes from delta.State into dst,
// in place. Only flagged mutable fields are copied; controller fields copy
// iff HasControllerData; immutable fields copy iff HasImmutableData. Once
// dst has received immutable data it is considered permanently initialized
// by the caller — ApplyDelta itself has no memory of past calls, so callers
// track HasImmutableData monotonically on the entity, not here.
func ApplyDelta[S any](schema Schema[S], dst *S, delta *Delta[S]) {
	if delta.State == nil {
		return
	}
	if delta.Flags != 0 {
		schema.CopyMutable(dst, delta.State, delta.Flags)
	}
	if delta.HasControllerData {
		schema.CopyController(dst, delta.State)
	}
	if delta.HasImmutableData {
		schema.CopyImmutable(dst, delta.State)
	}
}

// Encode writes the delta's payload to the wire in spec.md §4.6's field
// order: FactoryType, Flags, each flagged mutable field, HasControllerData
// (+ fields), HasImmutableData (+ fields). Tick/EntityId/RemovedTick/
// CommandAck/IsFrozen are framed by the packet layer (railpacket), which
// owns the per-section header each delta sits under; this writes only the
// state payload spec.md §4.6 describes.
func Encode[S any](b *railbits.Buffer, schema Schema[S], delta *Delta[S]) error {
	b.Write(16, uint32(schema.FactoryType()))
	b.Write(FlagBits, uint32(delta.Flags))
	if delta.Flags != 0 {
		if err := schema.EncodeMutable(b, delta.State, delta.Flags); err != nil {
			return err
		}
	}
	b.WriteBool(delta.HasControllerData)
	if delta.HasControllerData {
		if err := schema.EncodeController(b, delta.State); err != nil {
			return err
		}
	}
	b.WriteBool(delta.HasImmutableData)
	if delta.HasImmutableData {
		if err := schema.EncodeImmutable(b, delta.State); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads a delta payload written by Encode into a fresh state value,
// merged on top of basis (the decoder's currently-known authoritative
// state, or nil if none). The returned Delta's State always holds the
// fully-merged result, not just the fields this wire record carried, so
// ApplyDelta is implicit in Decode for wire-sourced deltas — Decode is used
// where the caller has already resolved the schema from the wire
// FactoryType (railroom peeks it before dispatching); it still reads and
// validates the discriminator here to catch a registry/dispatch mismatch.
func Decode[S any](b *railbits.Buffer, schema Schema[S], basis *S) (*Delta[S], error) {
	ft, err := b.Read(16)
	if err != nil {
		return nil, err
	}
	if FactoryType(ft) != schema.FactoryType() {
		return nil, fmt.Errorf("railstate: decode dispatched to FactoryType %d for wire type %d", schema.FactoryType(), ft)
	}

	flagsRaw, err := b.Read(FlagBits)
	if err != nil {
		return nil, err
	}
	flags := Flags(flagsRaw)

	merged := new(S)
	if basis != nil {
		*merged = *basis
	}
	if flags != 0 {
		if err := schema.DecodeMutable(b, merged, flags); err != nil {
			return nil, err
		}
	}

	hasController, err := b.ReadBool()
	if err != nil {
		return nil, err
	}
	if hasController {
		if err := schema.DecodeController(b, merged); err != nil {
			return nil, err
		}
	}

	hasImmutable, err := b.ReadBool()
	if err != nil {
		return nil, err
	}
	if hasImmutable {
		if err := schema.DecodeImmutable(b, merged); err != nil {
			return nil, err
		}
	}

	return &Delta[S]{
		Flags:             flags,
		HasControllerData: hasController,
		HasImmutableData:  hasImmutable,
		State:             merged,
	}, nil
}
