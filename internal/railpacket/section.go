package railpacket

import "github.com/araex/railgunnet-go/internal/railbits"

// EncodeFunc writes one self-delimiting payload item: a delta, a command
// update, a view entry, or a reliable event. The concrete schema is bound by
// the closure the caller builds, so railpacket never needs a type parameter.
type EncodeFunc func(b *railbits.Buffer) error

// DecodeFunc reads one item previously written by an EncodeFunc.
type DecodeFunc[T any] func(b *railbits.Buffer) (T, error)

func packItems(b *railbits.Buffer, capTotal, capItem int, items []EncodeFunc, warn railbits.Warner) int {
	return railbits.PackToSize(b, capTotal, capItem, items, func(b *railbits.Buffer, f EncodeFunc) error {
		return f(b)
	}, warn)
}

// unpackItems reads a count-prefixed list written by packItems, decoding
// each item with decode.
func unpackItems[T any](b *railbits.Buffer, decode DecodeFunc[T]) ([]T, error) {
	return railbits.UnpackSized(b, func(b *railbits.Buffer) (T, error) {
		return decode(b)
	})
}

// DecodeSection reads any count-prefixed list written by packItems — the
// view section and the command section share the same framing as the event
// section, just with a caller-supplied item decoder.
func DecodeSection[T any](b *railbits.Buffer, decode DecodeFunc[T]) ([]T, error) {
	return unpackItems(b, decode)
}
