package noise

import (
	"testing"

	werrors "github.com/wirelay/wirelay/internal/errors"
)

func TestReplayWindowMonotonic(t *testing.T) {
	var w replayWindow
	for c := uint64(1); c <= 100; c++ {
		if err := w.Check(c); err != nil {
			t.Fatalf("counter %d: %v", c, err)
		}
	}
}

func TestReplayWindowDuplicate(t *testing.T) {
	var w replayWindow
	if err := w.Check(5); err != nil {
		t.Fatalf("counter 5: %v", err)
	}
	if err := w.Check(5); !werrors.Is(err, werrors.ErrReplayDetected) {
		t.Errorf("duplicate: expected ErrReplayDetected, got %v", err)
	}
}

func TestReplayWindowOutOfOrder(t *testing.T) {
	var w replayWindow
	for _, c := range []uint64{3, 1, 5, 2, 4} {
		if err := w.Check(c); err != nil {
			t.Fatalf("counter %d: %v", c, err)
		}
	}
	for _, c := range []uint64{1, 2, 3, 4, 5} {
		if err := w.Check(c); !werrors.Is(err, werrors.ErrReplayDetected) {
			t.Errorf("replayed counter %d: expected ErrReplayDetected, got %v", c, err)
		}
	}
}

func TestReplayWindowTooOld(t *testing.T) {
	var w replayWindow
	if err := w.Check(100); err != nil {
		t.Fatalf("counter 100: %v", err)
	}
	// 100-37=63 is the oldest counter still inside the 64-wide window.
	if err := w.Check(37); err != nil {
		t.Errorf("counter 37 inside the window: %v", err)
	}
	if err := w.Check(36); !werrors.Is(err, werrors.ErrReplayDetected) {
		t.Errorf("counter 36 behind the window: expected ErrReplayDetected, got %v", err)
	}
}

func TestReplayWindowZeroCounter(t *testing.T) {
	var w replayWindow
	if err := w.Check(0); !werrors.Is(err, werrors.ErrReplayDetected) {
		t.Errorf("counter 0: expected ErrReplayDetected, got %v", err)
	}
}

func TestReplayWindowLargeJump(t *testing.T) {
	var w replayWindow
	if err := w.Check(1); err != nil {
		t.Fatalf("counter 1: %v", err)
	}
	if err := w.Check(1000); err != nil {
		t.Fatalf("counter 1000: %v", err)
	}
	// The jump cleared everything behind the new window.
	if err := w.Check(900); !werrors.Is(err, werrors.ErrReplayDetected) {
		t.Errorf("counter 900: expected ErrReplayDetected, got %v", err)
	}
	if err := w.Check(999); err != nil {
		t.Errorf("counter 999 inside the new window: %v", err)
	}
}
