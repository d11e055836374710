// Package poll holds the timeout-bounded waiting helpers shared by the
// streaming client and the scenario steps.
package poll

import (
	"context"
	"time"
)

// DefaultInterval is the polling period used when callers pass zero.
const DefaultInterval = 100 * time.Millisecond

// Until evaluates cond every interval until it returns true, the timeout
// elapses or ctx is done. It reports whether cond was satisfied.
func Until(ctx context.Context, timeout, interval time.Duration, cond func() bool) bool {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if cond() {
		return true
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return cond()
		case <-ticker.C:
			if cond() {
				return true
			}
		}
	}
}

// Sleep pauses for d unless ctx is cancelled first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
