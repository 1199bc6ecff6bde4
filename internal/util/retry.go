package util

import (
	"context"
	"time"
)

// maxBackoffShift caps the exponent so the shift cannot overflow.
const maxBackoffShift = 30

// Backoff returns base * 2^attempt. Negative attempts return base.
func Backoff(attempt int, base time.Duration) time.Duration {
	if attempt < 0 {
		return base
	}
	if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}
	return base * time.Duration(1<<uint(attempt))
}

// Sleep waits for d or until ctx is cancelled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
