package railpacket

import (
	"github.com/araex/railgunnet-go/internal/railbits"
	"github.com/araex/railgunnet-go/internal/railconfig"
)

// EncodeEventSection packs the early-reservation reliable events (spec.md
// §4.9/§6 item 5), bounded by PACKCAP_EARLY_EVENTS total and MAXSIZE_EVENT
// per item, ahead of the bulk state payload so a flood of deltas never
// starves small reliable messages.
func EncodeEventSection(b *railbits.Buffer, events []EncodeFunc, warn railbits.Warner) int {
	return packItems(b, railconfig.PackcapEarlyEvents, railconfig.MaxsizeEvent, events, warn)
}

// DecodeEventSection reads the event section written by EncodeEventSection.
func DecodeEventSection[T any](b *railbits.Buffer, decode DecodeFunc[T]) ([]T, error) {
	return unpackItems(b, decode)
}

// BuildS2C assembles one server-to-client packet: header, early events, then
// state deltas. Callers must pass deltas already ordered removed, frozen,
// active (spec.md §4.9) — removal notifications are never starved by a
// flood of active-entity updates since they sit first in the list and
// packItems only rolls back from the tail once the total cap is hit. The
// second return value is how many deltas didn't fit or exceeded
// MAXSIZE_ENTITY and were left for a later tick, for a caller to meter.
func BuildS2C(h Header, events []EncodeFunc, deltas []EncodeFunc, warn railbits.Warner) ([]byte, int) {
	b := railbits.New()
	EncodeHeader(b, h)
	EncodeEventSection(b, events, warn)

	remaining := railconfig.PackcapMessageTotal - b.ByteLength()
	packed := packItems(b, remaining, railconfig.MaxsizeEntity, deltas, warn)

	return b.Store(), len(deltas) - packed
}

// ParseS2C decodes the header of a received S2C packet and returns the
// buffer positioned to read the event section, then the delta section, via
// DecodeEventSection and the caller's own per-entity delta decode loop
// (railpacket has no schema knowledge, so dispatching each delta to the
// right entity/schema is left to railroom).
func ParseS2C(data []byte) (Header, *railbits.Buffer, error) {
	b := railbits.FromBytes(data)
	h, err := DecodeHeader(b)
	if err != nil {
		return Header{}, nil, err
	}
	return h, b, nil
}
