package raildejitter

import (
	"reflect"
	"testing"

	"github.com/araex/railgunnet-go/internal/railtime"
)

func TestBufferStoreDiscardsOlderDuplicates(t *testing.T) {
	b := New[string](8)
	if !b.Store(railtime.Tick(10), "a") {
		t.Fatal("first store into empty slot should succeed")
	}
	if b.Store(railtime.Tick(10), "dup") {
		t.Fatal("storing the same tick again should be discarded")
	}
	if b.Store(railtime.Tick(2), "older") { // 2 mod 8 shares tick 10's slot
		t.Fatal("storing an older tick should be discarded")
	}
	if !b.Store(railtime.Tick(20), "newer") {
		t.Fatal("storing a newer tick should succeed")
	}
}

func TestGetLatestAt(t *testing.T) {
	b := New[int](64)
	b.Store(railtime.Tick(10), 100)
	b.Store(railtime.Tick(20), 200)
	b.Store(railtime.Tick(30), 300)

	e, ok := b.GetLatestAt(railtime.Tick(25))
	if !ok || e.Value != 200 {
		t.Fatalf("GetLatestAt(25) = %+v, %v; want 200", e, ok)
	}
	e, ok = b.GetLatestAt(railtime.Tick(5))
	if ok {
		t.Fatalf("GetLatestAt(5) should find nothing, got %+v", e)
	}
	e, ok = b.GetLatestAt(railtime.Tick(30))
	if !ok || e.Value != 300 {
		t.Fatalf("GetLatestAt(30) = %+v, %v; want 300", e, ok)
	}
}

func TestGetRangeAscendingOrder(t *testing.T) {
	b := New[int](64)
	ticks := []railtime.Tick{5, 50, 15, 30}
	for _, tk := range ticks {
		b.Store(tk, int(tk))
	}
	got := b.GetRange(railtime.Tick(10))
	want := []int{15, 30, 50}
	var gotVals []int
	for _, e := range got {
		gotVals = append(gotVals, e.Value)
	}
	if !reflect.DeepEqual(gotVals, want) {
		t.Fatalf("GetRange(10) = %v, want %v", gotVals, want)
	}
}

func TestGetRangeAndNext(t *testing.T) {
	b := New[int](64)
	for _, tk := range []railtime.Tick{10, 20, 30, 40} {
		b.Store(tk, int(tk))
	}
	inRange, next, hasNext := b.GetRangeAndNext(railtime.Tick(10), railtime.Tick(25))
	if len(inRange) != 1 || inRange[0].Value != 20 {
		t.Fatalf("inRange = %v, want [20]", inRange)
	}
	if !hasNext || next.Value != 30 {
		t.Fatalf("next = %+v, hasNext=%v; want 30, true", next, hasNext)
	}
}

func TestQueueBufferEvictsOldest(t *testing.T) {
	q := NewQueueBuffer[int](3)
	q.Store(railtime.Tick(1), 1)
	q.Store(railtime.Tick(2), 2)
	q.Store(railtime.Tick(3), 3)
	q.Store(railtime.Tick(4), 4)

	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", q.Len())
	}
	latest, ok := q.Latest()
	if !ok || latest.Value != 4 {
		t.Fatalf("Latest() = %+v, %v; want 4", latest, ok)
	}
	_, ok = q.LatestFrom(railtime.Tick(1))
	if ok {
		t.Fatal("tick 1 should have been evicted")
	}
}

func TestQueueBufferLatestFromInvalidBasis(t *testing.T) {
	q := NewQueueBuffer[int](4)
	q.Store(railtime.Tick(1), 1)
	if _, ok := q.LatestFrom(railtime.Invalid); ok {
		t.Fatal("LatestFrom(Invalid) should report false (forces a full snapshot)")
	}
}

func TestSetReleaseFuncCalledOnOverwrite(t *testing.T) {
	b := New[int](1) // capacity 1: every tick maps to the same slot
	var released []int
	b.SetReleaseFunc(func(v int) { released = append(released, v) })

	b.Store(railtime.Tick(10), 100)
	if len(released) != 0 {
		t.Fatalf("released = %v after first store, want empty", released)
	}

	b.Store(railtime.Tick(20), 200)
	if !reflect.DeepEqual(released, []int{100}) {
		t.Fatalf("released = %v, want [100] (the value the newer tick overwrote)", released)
	}
}

func TestSetReleaseFuncCalledOnRejectedStore(t *testing.T) {
	b := New[int](1)
	var released []int
	b.SetReleaseFunc(func(v int) { released = append(released, v) })

	b.Store(railtime.Tick(20), 200)
	released = nil

	if b.Store(railtime.Tick(20), 201) {
		t.Fatal("storing a duplicate tick should be rejected")
	}
	if !reflect.DeepEqual(released, []int{201}) {
		t.Fatalf("released = %v, want [201] (the rejected duplicate value itself)", released)
	}

	released = nil
	if b.Store(railtime.Tick(5), 50) {
		t.Fatal("storing an older tick should be rejected")
	}
	if !reflect.DeepEqual(released, []int{50}) {
		t.Fatalf("released = %v, want [50] (the rejected stale value itself)", released)
	}
}
