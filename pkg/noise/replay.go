package noise

import (
	"github.com/wirelay/wirelay/internal/constants"
	werrors "github.com/wirelay/wirelay/internal/errors"
)

// replayWindow is a sliding bitmap over the last ReplayWindowSize data
// message counters. Counters start at 1; zero never passes.
//
// Check both tests and records a counter, so it must run only after the
// message authenticated, otherwise a forgery could burn valid counters.
type replayWindow struct {
	max    uint64
	bitmap uint64
}

// Check accepts a counter exactly once. It fails with ErrReplayDetected for
// counters already seen or too far behind the newest accepted counter.
func (w *replayWindow) Check(counter uint64) error {
	if counter == 0 {
		return werrors.ErrReplayDetected
	}

	if counter > w.max {
		shift := counter - w.max
		if shift >= constants.ReplayWindowSize {
			w.bitmap = 0
		} else {
			w.bitmap <<= shift
		}
		w.bitmap |= 1
		w.max = counter
		return nil
	}

	diff := w.max - counter
	if diff >= constants.ReplayWindowSize {
		return werrors.ErrReplayDetected
	}
	mask := uint64(1) << diff
	if w.bitmap&mask != 0 {
		return werrors.ErrReplayDetected
	}
	w.bitmap |= mask
	return nil
}
