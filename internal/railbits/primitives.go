package railbits

import (
	"fmt"

	"github.com/araex/railgunnet-go/internal/railconfig"
)

const (
	varintChunkBits = 7
	varintContinue  = 1 << varintChunkBits

	// StringLengthMax is the longest ASCII string this wire format carries
	// (spec.md §6 STRING_LENGTH_MAX).
	StringLengthMax = railconfig.StringLengthMax
)

// WriteBool writes a single-bit boolean.
func (b *Buffer) WriteBool(v bool) {
	if v {
		b.Write(1, 1)
	} else {
		b.Write(1, 0)
	}
}

// ReadBool reads a single-bit boolean.
func (b *Buffer) ReadBool() (bool, error) {
	v, err := b.Read(1)
	return v != 0, err
}

// WriteUInt16 writes a full-width 16-bit unsigned integer.
func (b *Buffer) WriteUInt16(v uint16) { b.Write(16, uint32(v)) }

// ReadUInt16 reads a full-width 16-bit unsigned integer.
func (b *Buffer) ReadUInt16() (uint16, error) {
	v, err := b.Read(16)
	return uint16(v), err
}

// WriteVarUint writes v as a 7-bit-chunked varint (1-5 bytes for a 32-bit
// value), low chunk first, high bit of each chunk set iff another follows.
func (b *Buffer) WriteVarUint(v uint32) {
	for {
		chunk := v & 0x7F
		v >>= varintChunkBits
		if v != 0 {
			b.Write(8, chunk|varintContinue)
		} else {
			b.Write(8, chunk)
			return
		}
	}
}

// ReadVarUint reads a value written by WriteVarUint.
func (b *Buffer) ReadVarUint() (uint32, error) {
	var out uint32
	var shift uint
	for i := 0; i < 5; i++ {
		chunk, err := b.Read(8)
		if err != nil {
			return 0, err
		}
		out |= (chunk & 0x7F) << shift
		if chunk&varintContinue == 0 {
			return out, nil
		}
		shift += varintChunkBits
	}
	return 0, fmt.Errorf("railbits: varint too long")
}

// WriteVarInt zigzag-encodes a signed value then writes it as a varint, so
// small-magnitude negatives cost as few bytes as small positives.
func (b *Buffer) WriteVarInt(v int32) {
	zz := uint32(v<<1) ^ uint32(v>>31)
	b.WriteVarUint(zz)
}

// ReadVarInt reads a value written by WriteVarInt.
func (b *Buffer) ReadVarInt() (int32, error) {
	zz, err := b.ReadVarUint()
	if err != nil {
		return 0, err
	}
	return int32(zz>>1) ^ -int32(zz&1), nil
}

// WriteString writes a length-prefixed 7-bit ASCII string, at most
// StringLengthMax bytes.
func (b *Buffer) WriteString(s string) error {
	if len(s) > StringLengthMax {
		return fmt.Errorf("railbits: string length %d exceeds max %d", len(s), StringLengthMax)
	}
	b.Write(6, uint32(len(s)))
	for i := 0; i < len(s); i++ {
		b.Write(7, uint32(s[i]&0x7F))
	}
	return nil
}

// ReadString reads a string written by WriteString.
func (b *Buffer) ReadString() (string, error) {
	n, err := b.Read(6)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	for i := range buf {
		v, err := b.Read(7)
		if err != nil {
			return "", err
		}
		buf[i] = byte(v)
	}
	return string(buf), nil
}
