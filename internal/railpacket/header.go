// Package railpacket assembles and parses the wire packets described by
// spec.md §4.9/§6: a common header (sequence, tick acks, event acks)
// followed by an ordered, MTU-bounded payload. It is deliberately
// schema-agnostic — callers supply per-item encode/decode closures, since
// the concrete entity/command/event payload types are only known at the
// railentity/railroom call sites (grounded on the teacher's
// DataPacket.Encode/DecodeDataPacket ordered-sections-with-length-accounting
// shape, generalized from SA-MP RPC framing to opaque engine payload items).
package railpacket

import (
	"fmt"

	"github.com/araex/railgunnet-go/internal/railbits"
	"github.com/araex/railgunnet-go/internal/railcodec"
	"github.com/araex/railgunnet-go/internal/railpeer"
	"github.com/araex/railgunnet-go/internal/railtime"
)

var tickCodec railcodec.Tick

// maxAckListLen is the spec.md §6 "8-bit count then varints" cap on the
// header's packed event-id ack list.
const maxAckListLen = 255

// Header is the common prefix of every packet (spec.md §6 wire protocol
// items 1-4). Item 5 (early events) and item 7 (the Store/Load sentinel bit)
// are handled outside Header: events by EncodeEventSection/DecodeEventSection,
// the sentinel by railbits.Buffer.Store/Load.
type Header struct {
	Sequence       railtime.SequenceId
	SenderTick     railtime.Tick
	LastAckTick    railtime.Tick
	LastAckEventId railpeer.EventId
	EventIdAcks    []railpeer.EventId
}

// EncodeHeader writes h's fields in spec.md §6 order. Sequence is not in the
// distilled spec's numbered list but is required by §4.10's stale/duplicate
// packet detection, so it is carried as the first field of every packet.
func EncodeHeader(b *railbits.Buffer, h Header) {
	b.Write(12, uint32(h.Sequence.Value()))
	tickCodec.Write(b, h.SenderTick)
	tickCodec.Write(b, h.LastAckTick)
	b.WriteVarUint(uint32(h.LastAckEventId))

	n := len(h.EventIdAcks)
	if n > maxAckListLen {
		n = maxAckListLen
	}
	b.Write(8, uint32(n))
	for i := 0; i < n; i++ {
		b.WriteVarUint(uint32(h.EventIdAcks[i]))
	}
}

// DecodeHeader reads a Header written by EncodeHeader.
func DecodeHeader(b *railbits.Buffer) (Header, error) {
	seqRaw, err := b.Read(12)
	if err != nil {
		return Header{}, fmt.Errorf("railpacket: decode sequence: %w", err)
	}
	senderTick, err := tickCodec.Read(b)
	if err != nil {
		return Header{}, fmt.Errorf("railpacket: decode senderTick: %w", err)
	}
	lastAckTick, err := tickCodec.Read(b)
	if err != nil {
		return Header{}, fmt.Errorf("railpacket: decode lastAckTick: %w", err)
	}
	lastAckEventRaw, err := b.ReadVarUint()
	if err != nil {
		return Header{}, fmt.Errorf("railpacket: decode lastAckEventId: %w", err)
	}
	count, err := b.Read(8)
	if err != nil {
		return Header{}, fmt.Errorf("railpacket: decode event ack count: %w", err)
	}
	acks := make([]railpeer.EventId, 0, count)
	for i := uint32(0); i < count; i++ {
		v, err := b.ReadVarUint()
		if err != nil {
			return Header{}, fmt.Errorf("railpacket: decode event ack %d: %w", i, err)
		}
		acks = append(acks, railpeer.EventId(v))
	}

	return Header{
		Sequence:       railtime.NewSequenceId(seqRaw),
		SenderTick:     senderTick,
		LastAckTick:    lastAckTick,
		LastAckEventId: railpeer.EventId(lastAckEventRaw),
		EventIdAcks:    acks,
	}, nil
}
