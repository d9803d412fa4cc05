// Package railcodec implements spec.md §4.2's primitive compressors: range-
// bounded integers, quantized floats, and tick/entity-id specializations
// layered on internal/railbits.
package railcodec

import (
	"fmt"

	"github.com/araex/railgunnet-go/internal/railbits"
	"github.com/araex/railgunnet-go/internal/railconfig"
	"github.com/araex/railgunnet-go/internal/railtime"
)

// VarintFallbackSize is the bit width (spec.md §6 VARINT_FALLBACK_SIZE is
// expressed in bytes there; here it is converted to bits for direct
// comparison against RangeBits' output) above which a range compressor falls
// back to a varint instead of a fixed-width field.
const VarintFallbackSize = railconfig.VarintFallbackSize * 8

// IntRange is a closed integer range [Min, Max] compressor. Values outside
// the range are a caller error (schema mismatch), not encoded.
type IntRange struct {
	Min, Max int64
	bits     int
	useVarint bool
}

// NewIntRange builds a compressor for [min, max]. It picks a fixed bit width
// of ceil(log2(max-min+1)) bits, falling back to a varint encoding when that
// width would exceed VarintFallbackSize (spec.md §4.2).
func NewIntRange(min, max int64) IntRange {
	span := uint32(max - min)
	width := railbits.BitWidth(span)
	return IntRange{Min: min, Max: max, bits: width, useVarint: width > VarintFallbackSize}
}

// Write encodes v, which must satisfy Min <= v <= Max.
func (r IntRange) Write(b *railbits.Buffer, v int64) error {
	if v < r.Min || v > r.Max {
		return fmt.Errorf("railcodec: value %d out of range [%d,%d]", v, r.Min, r.Max)
	}
	offset := uint32(v - r.Min)
	if r.useVarint {
		b.WriteVarUint(offset)
		return nil
	}
	b.Write(r.bits, offset)
	return nil
}

// Read decodes a value written by Write.
func (r IntRange) Read(b *railbits.Buffer) (int64, error) {
	var offset uint32
	var err error
	if r.useVarint {
		offset, err = b.ReadVarUint()
	} else {
		offset, err = b.Read(r.bits)
	}
	if err != nil {
		return 0, err
	}
	v := r.Min + int64(offset)
	if v > r.Max {
		return 0, fmt.Errorf("railcodec: decoded value %d exceeds range max %d", v, r.Max)
	}
	return v, nil
}

// Float quantizes a float64 in [Min,Max] to the nearest multiple of
// Resolution and encodes the resulting step count with an IntRange.
type Float struct {
	Min, Max, Resolution float64
	steps                IntRange
}

// NewFloat builds a quantized float compressor. Resolution is the smallest
// distinguishable step; steps = round((max-min)/resolution).
func NewFloat(min, max, resolution float64) Float {
	steps := int64((max-min)/resolution + 0.5)
	return Float{Min: min, Max: max, Resolution: resolution, steps: NewIntRange(0, steps)}
}

// Write quantizes and encodes v, clamping to [Min,Max].
func (f Float) Write(b *railbits.Buffer, v float64) error {
	if v < f.Min {
		v = f.Min
	}
	if v > f.Max {
		v = f.Max
	}
	step := int64((v-f.Min)/f.Resolution + 0.5)
	return f.steps.Write(b, step)
}

// Read decodes a value written by Write.
func (f Float) Read(b *railbits.Buffer) (float64, error) {
	step, err := f.steps.Read(b)
	if err != nil {
		return 0, err
	}
	return f.Min + float64(step)*f.Resolution, nil
}

// Tick is the tick codec: a varint offset from a session-relative base, with
// railtime.Invalid reserved as a one-bit sentinel so "no tick" never costs a
// full varint.
type Tick struct{}

// Write encodes t, including the invalid sentinel.
func (Tick) Write(b *railbits.Buffer, t railtime.Tick) {
	if !t.IsValid() {
		b.WriteBool(false)
		return
	}
	b.WriteBool(true)
	b.WriteVarUint(uint32(t))
}

// Read decodes a value written by Write.
func (Tick) Read(b *railbits.Buffer) (railtime.Tick, error) {
	ok, err := b.ReadBool()
	if err != nil {
		return railtime.Invalid, err
	}
	if !ok {
		return railtime.Invalid, nil
	}
	v, err := b.ReadVarUint()
	if err != nil {
		return railtime.Invalid, err
	}
	return railtime.Tick(v), nil
}

// EntityId is the entity-id codec: spec.md §3 caps EntityId at ~16 bits, with
// 0 reserved as INVALID, so a fixed 16-bit field covers it without a varint.
type EntityId struct{}

// Write encodes id as a raw 16-bit value (0 is the INVALID sentinel, carried
// through unchanged).
func (EntityId) Write(b *railbits.Buffer, id uint16) { b.WriteUInt16(id) }

// Read decodes a value written by Write.
func (EntityId) Read(b *railbits.Buffer) (uint16, error) { return b.ReadUInt16() }
