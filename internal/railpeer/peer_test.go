package railpeer

import (
	"testing"

	"github.com/araex/railgunnet-go/internal/railbits"
	"github.com/araex/railgunnet-go/internal/railtime"
)

type pingEvent struct{ Seq int32 }

func (e *pingEvent) EventTypeId() EventTypeId { return 1 }
func (e *pingEvent) Encode(b *railbits.Buffer) error {
	b.WriteVarInt(e.Seq)
	return nil
}
func (e *pingEvent) Decode(b *railbits.Buffer) error {
	v, err := b.ReadVarInt()
	if err != nil {
		return err
	}
	e.Seq = v
	return nil
}

func TestEventRegistryRoundTrip(t *testing.T) {
	r := NewEventRegistry()
	r.Register(1, func() Event { return &pingEvent{} })

	ev, ok := r.New(1)
	if !ok {
		t.Fatal("expected registered type to construct")
	}
	if ev.EventTypeId() != 1 {
		t.Fatalf("EventTypeId() = %d, want 1", ev.EventTypeId())
	}

	if _, ok := r.New(2); ok {
		t.Fatal("unregistered type should not construct")
	}
}

func TestEventRegistryPanicsOnDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	r := NewEventRegistry()
	r.Register(1, func() Event { return &pingEvent{} })
	r.Register(1, func() Event { return &pingEvent{} })
}

func TestPeerAcceptPacketRejectsStaleAndDuplicate(t *testing.T) {
	p := New(4)
	seq0 := railtime.NewSequenceId(0)
	seq1 := railtime.NewSequenceId(1)

	if !p.AcceptPacket(seq0) {
		t.Fatal("first packet should be accepted")
	}
	if p.AcceptPacket(seq0) {
		t.Fatal("duplicate packet should be rejected")
	}
	if !p.AcceptPacket(seq1) {
		t.Fatal("newer packet should be accepted")
	}
}

func TestPeerQueueEventAndAcknowledgeDrops(t *testing.T) {
	p := New(4)
	id1 := p.QueueEvent(&pingEvent{Seq: 1}, 3, false, railtime.Tick(100))
	id2 := p.QueueEvent(&pingEvent{Seq: 2}, 3, false, railtime.Tick(100))

	if p.PendingCount() != 2 {
		t.Fatalf("PendingCount() = %d, want 2", p.PendingCount())
	}
	if id2 != id1.Next() {
		t.Fatalf("expected sequential event ids, got %v then %v", id1, id2)
	}

	p.Acknowledge(id1)
	if p.PendingCount() != 1 {
		t.Fatalf("PendingCount() = %d after ack, want 1", p.PendingCount())
	}
	if p.LastAckedEvent() != id1 {
		t.Fatalf("LastAckedEvent() = %v, want %v", p.LastAckedEvent(), id1)
	}
}

func TestPeerExpiredWarningsDropsExhaustedEvents(t *testing.T) {
	p := New(4)
	id := p.QueueEvent(&pingEvent{}, 1, false, railtime.Tick(100))
	p.RecordAttempt(id)

	dropped := p.ExpiredWarnings(railtime.Tick(50))
	if len(dropped) != 1 || dropped[0] != id {
		t.Fatalf("expected %v to be dropped, got %v", id, dropped)
	}
	if p.PendingCount() != 0 {
		t.Fatal("expired event should be removed from the pending queue")
	}
}

func TestPeerExpiredWarningsDropsByExpirationTick(t *testing.T) {
	p := New(4)
	id := p.QueueEvent(&pingEvent{}, 5, false, railtime.Tick(100))

	if dropped := p.ExpiredWarnings(railtime.Tick(99)); len(dropped) != 0 {
		t.Fatalf("event should not expire before its tick, got %v", dropped)
	}
	dropped := p.ExpiredWarnings(railtime.Tick(100))
	if len(dropped) != 1 || dropped[0] != id {
		t.Fatalf("expected %v to expire at its tick, got %v", id, dropped)
	}
}

func TestPeerReceiveEventAdvancesContiguousAndDedups(t *testing.T) {
	p := New(4)
	one := InvalidEventId.Next()
	two := one.Next()
	three := two.Next()

	if !p.ReceiveEvent(one) {
		t.Fatal("first new event should be delivered")
	}
	if p.ReceiveEvent(one) {
		t.Fatal("duplicate event should not be re-delivered")
	}
	if p.HighestContiguousReceived() != one {
		t.Fatalf("HighestContiguousReceived() = %v, want %v", p.HighestContiguousReceived(), one)
	}

	// Out-of-order arrival: id 3 before id 2.
	if !p.ReceiveEvent(three) {
		t.Fatal("out-of-order new event should still be delivered")
	}
	if p.HighestContiguousReceived() != one {
		t.Fatal("contiguous high-water mark should not jump over a gap")
	}
	if p.ReceiveEvent(three) {
		t.Fatal("re-delivery of an out-of-order event should be rejected")
	}

	if !p.ReceiveEvent(two) {
		t.Fatal("the gap-filling event should be delivered")
	}
	if p.HighestContiguousReceived() != three {
		t.Fatalf("HighestContiguousReceived() = %v, want %v after gap fill", p.HighestContiguousReceived(), three)
	}
}

func TestEventRegistryRegisterPooledRecyclesOnRelease(t *testing.T) {
	r := NewEventRegistry()
	newCalls := 0
	r.RegisterPooled(1, func() Event {
		newCalls++
		return &pingEvent{}
	}, func(ev Event) {
		ev.(*pingEvent).Seq = 0
	})

	ev, ok := r.New(1)
	if !ok {
		t.Fatal("expected pooled type to construct")
	}
	if newCalls != 1 {
		t.Fatalf("newFn called %d times, want 1", newCalls)
	}
	ev.(*pingEvent).Seq = 7

	r.Release(ev)

	recycled, ok := r.New(1)
	if !ok {
		t.Fatal("expected pooled type to construct again")
	}
	if recycled == ev {
		if recycled.(*pingEvent).Seq != 0 {
			t.Fatalf("recycled.Seq = %d, want 0 (reset before reuse)", recycled.(*pingEvent).Seq)
		}
		if newCalls != 1 {
			t.Fatalf("newFn called %d times, want 1 (second New should reuse the pool)", newCalls)
		}
	}
}

func TestEventRegistryReleaseNoopForPlainRegister(t *testing.T) {
	r := NewEventRegistry()
	r.Register(1, func() Event { return &pingEvent{Seq: 9} })

	ev, _ := r.New(1)
	r.Release(ev) // must not panic for a type with no pool wired
}

func TestPeerRemovePendingReleasesFreeWhenDoneEvent(t *testing.T) {
	r := NewEventRegistry()
	r.RegisterPooled(1, func() Event { return &pingEvent{} }, func(ev Event) {
		ev.(*pingEvent).Seq = 0
	})

	p := New(4)
	p.SetReleaseFunc(r.Release)

	ev := &pingEvent{Seq: 42}
	id := p.QueueEvent(ev, 3, true, railtime.Tick(100))

	p.Acknowledge(id)

	if ev.Seq != 0 {
		t.Fatalf("ev.Seq = %d, want 0 (reset by Release once retired)", ev.Seq)
	}
}

func TestPeerRemovePendingSkipsReleaseWhenNotFreeWhenDone(t *testing.T) {
	released := false
	p := New(4)
	p.SetReleaseFunc(func(Event) { released = true })

	id := p.QueueEvent(&pingEvent{Seq: 1}, 3, false, railtime.Tick(100))
	p.Acknowledge(id)

	if released {
		t.Fatal("release should not be called for an event not queued with freeWhenDone")
	}
}
