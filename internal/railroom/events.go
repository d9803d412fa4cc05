package railroom

import (
	"fmt"

	"github.com/araex/railgunnet-go/internal/railbits"
	"github.com/araex/railgunnet-go/internal/railpacket"
	"github.com/araex/railgunnet-go/internal/railpeer"
)

// decodedEvent pairs a reliable event with the id it was sent under.
type decodedEvent struct {
	Id    railpeer.EventId
	Event railpeer.Event
}

// encodeEventItem builds the EncodeFunc for one outgoing reliable event:
// EventId, EventTypeId, then the event's own payload.
func encodeEventItem(oe railpeer.OutgoingEvent) railpacket.EncodeFunc {
	return func(b *railbits.Buffer) error {
		b.WriteVarUint(uint32(oe.Id))
		b.Write(8, uint32(oe.Event.EventTypeId()))
		return oe.Event.Encode(b)
	}
}

// decodeEventItem reads one reliable event written by encodeEventItem,
// resolving its concrete type through the registered EventRegistry.
func decodeEventItem(events *railpeer.EventRegistry) railpacket.DecodeFunc[decodedEvent] {
	return func(b *railbits.Buffer) (decodedEvent, error) {
		idRaw, err := b.ReadVarUint()
		if err != nil {
			return decodedEvent{}, err
		}
		typeRaw, err := b.Read(8)
		if err != nil {
			return decodedEvent{}, err
		}
		ev, ok := events.New(railpeer.EventTypeId(typeRaw))
		if !ok {
			return decodedEvent{}, fmt.Errorf("railroom: received unregistered EventTypeId %d", typeRaw)
		}
		if err := ev.Decode(b); err != nil {
			return decodedEvent{}, err
		}
		return decodedEvent{Id: railpeer.EventId(idRaw), Event: ev}, nil
	}
}

// buildEventEncodeFuncs wraps a peer's unacked events as EncodeFuncs ready
// for railpacket.EncodeEventSection, recording a send attempt against each as
// it is encoded (spec.md §4.10 "decrement attempts" on send). Every attempt
// past the first is reported to metrics as a retry.
func buildEventEncodeFuncs(peer *railpeer.Peer, metrics MetricsSink) []railpacket.EncodeFunc {
	pending := peer.PendingForSend()
	funcs := make([]railpacket.EncodeFunc, len(pending))
	for i, oe := range pending {
		oe := oe
		funcs[i] = func(b *railbits.Buffer) error {
			if err := encodeEventItem(oe)(b); err != nil {
				return err
			}
			if peer.RecordAttempt(oe.Id) {
				metrics.IncEventRetry()
			}
			return nil
		}
	}
	return funcs
}

// integrateEventAcks drops pending outgoing events the far side confirmed:
// everything at or below the contiguous watermark, plus any individually
// acked out-of-order id.
func integrateEventAcks(peer *railpeer.Peer, lastAckEventId railpeer.EventId, eventIdAcks []railpeer.EventId) {
	peer.Acknowledge(lastAckEventId)
	for _, id := range eventIdAcks {
		peer.AcknowledgeOne(id)
	}
}

// deliverEvents runs dispatch against every freshly-received event in items,
// deduping through the peer's receive history. It returns nothing; the ack
// list a future header echoes comes from peer.HighestContiguousReceived/
// OutOfOrderReceived.
func deliverEvents(peer *railpeer.Peer, items []decodedEvent, dispatch func(railpeer.Event)) {
	for _, item := range items {
		if peer.ReceiveEvent(item.Id) {
			dispatch(item.Event)
		}
	}
}
