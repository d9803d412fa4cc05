package railbits

import (
	"errors"
	"testing"
)

var errEncodeFailed = errors.New("encode failed")

func TestPackToSizeSkipsOversizedItemButPacksRest(t *testing.T) {
	b := New()
	var warnings []string
	warn := func(format string, args ...interface{}) { warnings = append(warnings, format) }

	// Item 0 writes more than maxItemBytes, item 1 fits.
	items := []int{20, 1}
	encode := func(b *Buffer, n int) error {
		for i := 0; i < n; i++ {
			b.Write(8, 0)
		}
		return nil
	}

	packed := PackToSize(b, 1000, 4, items, encode, warn)
	if packed != 1 {
		t.Fatalf("packed = %d, want 1 (only the small item)", packed)
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", warnings)
	}

	decoded := FromBytes(b.Store())
	count, err := decoded.Read(8)
	if err != nil || count != 1 {
		t.Fatalf("count = %d, err = %v; want 1, nil", count, err)
	}
}

func TestPackToSizeStopsAtTotalCapBeforeItemCap(t *testing.T) {
	b := New()
	items := []int{1, 1, 1, 1}
	encode := func(b *Buffer, n int) error {
		for i := 0; i < n; i++ {
			b.Write(8, 0)
		}
		return nil
	}

	// Each item is 1 byte; cap of 2 bytes should admit only the first two.
	packed := PackToSize(b, 2, 10, items, encode, nil)
	if packed != 2 {
		t.Fatalf("packed = %d, want 2", packed)
	}
}

func TestPackToSizeSkippedItemLeavesBufferPositionUnaffected(t *testing.T) {
	b := New()
	b.WriteUInt16(0xBEEF) // some prior content, to confirm no corruption

	items := []int{20}
	encode := func(b *Buffer, n int) error {
		for i := 0; i < n; i++ {
			b.Write(8, 0)
		}
		return nil
	}
	packed := PackToSize(b, 1000, 4, items, encode, nil)
	if packed != 0 {
		t.Fatalf("packed = %d, want 0", packed)
	}

	decoded := FromBytes(b.Store())
	prior, err := decoded.ReadUInt16()
	if err != nil || prior != 0xBEEF {
		t.Fatalf("prior content corrupted: %d, %v", prior, err)
	}
	count, err := decoded.Read(8)
	if err != nil || count != 0 {
		t.Fatalf("count = %d, err = %v; want 0, nil", count, err)
	}
}

func TestPackToSizeEncodeErrorSkipsItem(t *testing.T) {
	b := New()
	items := []int{1, 2}
	encode := func(b *Buffer, n int) error {
		if n == 1 {
			return errEncodeFailed
		}
		b.Write(8, uint32(n))
		return nil
	}
	packed := PackToSize(b, 1000, 10, items, encode, nil)
	if packed != 1 {
		t.Fatalf("packed = %d, want 1 (the failing item should be skipped, not abort the rest)", packed)
	}
}
