// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package proc

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/mediafetch/internal/watchdog"
)

// DefaultPollInterval bounds how long one ReadLine waits for data.
const DefaultPollInterval = 500 * time.Millisecond

// Pump drives the poll loop of h until its stream is Closed. The guard is
// checked on every tick, including ticks that delivered a line. On expiry the
// process is killed and an error wrapping watchdog.ErrTimeout is returned. A
// cancelled ctx kills the process and returns ctx.Err().
//
// onLine may be nil.
func Pump(ctx context.Context, h Handle, poll time.Duration, guard *watchdog.Guard, onLine func(string)) error {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	for {
		if err := ctx.Err(); err != nil {
			_ = h.Kill()
			return fmt.Errorf("process %d aborted: %w", h.PID(), err)
		}
		if guard != nil {
			if err := guard.Enforce(h); err != nil {
				return err
			}
		}

		line, res := h.ReadLine(poll)
		switch res {
		case Line:
			if onLine != nil {
				onLine(line)
			}
		case Closed:
			return nil
		case NoData:
		}
	}
}
