package raillog

import "testing"

func TestNewBuildsAtRequestedLevel(t *testing.T) {
	l, err := New("debug")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = l.Sync() }()
	l.Debug("hello")
	l.Success("done")
}

func TestNewFallsBackOnUnknownLevel(t *testing.T) {
	l, err := New("not-a-level")
	if err != nil {
		t.Fatalf("New should tolerate an unrecognized level string, got: %v", err)
	}
	defer func() { _ = l.Sync() }()
	l.Info("still works")
}
