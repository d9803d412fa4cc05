package railpacket

import (
	"github.com/araex/railgunnet-go/internal/railbits"
	"github.com/araex/railgunnet-go/internal/railconfig"
)

// BuildC2S assembles one client-to-server packet: header, early events, the
// client's view, then per-controlled-entity command updates (spec.md §4.9).
// The view section has no named per-item cap in spec.md §6, so it shares the
// remaining total packet budget with no additional per-item ceiling beyond
// that; the command section gets its own PACKCAP_COMMANDS/MAXSIZE_COMMANDUPDATE
// budget.
func BuildC2S(h Header, events []EncodeFunc, view []EncodeFunc, commands []EncodeFunc, warn railbits.Warner) []byte {
	b := railbits.New()
	EncodeHeader(b, h)
	EncodeEventSection(b, events, warn)

	remainingAfterEvents := railconfig.PackcapMessageTotal - b.ByteLength()
	packItems(b, remainingAfterEvents, remainingAfterEvents, view, warn)

	remainingAfterView := railconfig.PackcapMessageTotal - b.ByteLength()
	commandCap := railconfig.PackcapCommands
	if remainingAfterView < commandCap {
		commandCap = remainingAfterView
	}
	packItems(b, commandCap, railconfig.MaxsizeCommandUpdate, commands, warn)

	return b.Store()
}

// ParseC2S decodes the header of a received C2S packet and returns the
// buffer positioned to read the event section, then the view section, then
// the command section, each via the caller's own decode loop.
func ParseC2S(data []byte) (Header, *railbits.Buffer, error) {
	b := railbits.FromBytes(data)
	h, err := DecodeHeader(b)
	if err != nil {
		return Header{}, nil, err
	}
	return h, b, nil
}
