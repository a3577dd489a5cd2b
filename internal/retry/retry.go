// Package retry provides bounded retry with exponential backoff for
// cleanup and other best-effort side effects.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Do invokes fn up to attempts times, sleeping delay between attempts and
// doubling it each round. It returns nil on the first success, the last
// error once attempts are exhausted, and stops early when ctx is done.
func Do(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		if serr := sleep(ctx, delay); serr != nil {
			return fmt.Errorf("retry aborted after attempt %d: %w", i+1, serr)
		}
		delay *= 2
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
