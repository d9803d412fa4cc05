package railhistory

import (
	"testing"

	"github.com/araex/railgunnet-go/internal/railtime"
)

func seq(v uint32) railtime.SequenceId { return railtime.NewSequenceId(v) }

func TestBitsetStoreAndContains(t *testing.T) {
	h := New(2) // 64 bits
	h.Store(seq(100))
	if !h.Contains(seq(100)) {
		t.Fatal("should contain just-stored id")
	}
	h.Store(seq(101))
	if !h.Contains(seq(100)) || !h.Contains(seq(101)) {
		t.Fatal("should contain both ids after storing a newer one")
	}
}

func TestBitsetMonotonicity(t *testing.T) {
	// Property: after Store(a); Store(b) with b > a, Contains(a) holds iff
	// (b - a) <= capacity (spec.md §8 property 5's inclusive boundary).
	h := New(1) // 32 bits capacity
	a := seq(10)
	b := seq(10 + 32) // distance 32, exactly the capacity: still tracked
	h.Store(a)
	h.Store(b)
	if !h.Contains(a) {
		t.Fatal("distance equal to capacity should still be tracked")
	}

	h2 := New(1)
	a2 := seq(10)
	b2 := seq(10 + 33) // distance 33, one past capacity: aged out
	h2.Store(a2)
	h2.Store(b2)
	if h2.Contains(a2) {
		t.Fatal("distance beyond capacity should have aged out")
	}
	if !h2.ValueTooOld(a2) {
		t.Fatal("aged-out id should report ValueTooOld")
	}
}

func TestBitsetDuplicateAndStaleDetection(t *testing.T) {
	h := New(2)
	h.Store(seq(50))
	h.Store(seq(60))
	if h.IsNewId(seq(50)) {
		t.Fatal("already-stored id should not be new")
	}
	if !h.IsNewId(seq(61)) {
		t.Fatal("never-seen id within window should be new")
	}
}

func TestBitsetShiftClearsAged(t *testing.T) {
	h := New(1)
	h.Store(seq(0))
	h.Store(seq(10))
	h.Store(seq(1000)) // far beyond capacity, clears everything
	if h.Contains(seq(0)) || h.Contains(seq(10)) {
		t.Fatal("ids far older than the new latest should be cleared by the shift")
	}
	if !h.Contains(seq(1000)) {
		t.Fatal("the new latest should be recorded")
	}
}
