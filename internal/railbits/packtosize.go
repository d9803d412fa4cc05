package railbits

// Warner receives a human-readable warning when PackToSize drops or truncates
// an element. Callers normally plug in their logger's Warn method; nil is
// valid and silences warnings.
type Warner func(format string, args ...interface{})

// PackToSize reserves an 8-bit count, then encodes elements in order via
// encode. An element whose encoding exceeds maxItemBytes is rolled back and
// skipped (the rest of the list is still attempted). Once the cumulative
// payload would exceed maxTotalBytes, the last element is rolled back and
// packing stops. The reserved count is patched with however many elements
// actually made it in (capped at 255, per spec.md §4.1).
func PackToSize[T any](b *Buffer, maxTotalBytes, maxItemBytes int, elements []T, encode func(*Buffer, T) error, warn Warner) int {
	countPos := b.Reserve(8)
	totalStart := b.writePos
	packed := 0

	for _, el := range elements {
		if packed >= maxItemCount {
			if warn != nil {
				warn("railbits: PackToSize truncated list at %d items (255 cap)", maxItemCount)
			}
			break
		}
		itemStart := b.writePos
		err := encode(b, el)
		itemBytes := (b.writePos - itemStart + 7) / 8
		if err != nil || itemBytes > maxItemBytes {
			b.writePos = itemStart
			if warn != nil {
				if err != nil {
					warn("railbits: PackToSize skipped item: %v", err)
				} else {
					warn("railbits: PackToSize skipped oversized item (%d bytes > max %d)", itemBytes, maxItemBytes)
				}
			}
			continue
		}
		totalBytes := (b.writePos - totalStart + 7) / 8
		if totalBytes > maxTotalBytes {
			b.writePos = itemStart
			if warn != nil {
				warn("railbits: PackToSize stopped: total %d bytes would exceed cap %d", totalBytes, maxTotalBytes)
			}
			break
		}
		packed++
	}

	b.Insert(countPos, 8, uint32(packed))
	return packed
}

// UnpackSized reads a count written by PackToSize, then decodes that many
// elements via decode.
func UnpackSized[T any](b *Buffer, decode func(*Buffer) (T, error)) ([]T, error) {
	count, err := b.Read(8)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, count)
	for i := uint32(0); i < count; i++ {
		v, err := decode(b)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
