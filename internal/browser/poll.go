// internal/browser/poll.go
package browser

import (
	"context"
	"fmt"
	"time"
)

// Condition is evaluated by Poll until it reports true. An error aborts the poll.
type Condition func(ctx context.Context) (bool, error)

// Poll evaluates cond immediately and then every interval until it reports true,
// returns an error, ctx is done, or timeout passes. Expiry wraps ErrTimeout with what.
func Poll(ctx context.Context, what string, timeout, interval time.Duration, cond Condition) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := cond(pollCtx)
		if err != nil {
			if pollCtx.Err() != nil && ctx.Err() == nil {
				return fmt.Errorf("waiting for %s timed out after %v: %w", what, timeout, ErrTimeout)
			}
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("waiting for %s timed out after %v: %w", what, timeout, ErrTimeout)
		case <-ticker.C:
		}
	}
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
