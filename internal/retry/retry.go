// Package retry wraps metadata fetches with exponential backoff. Stream
// opening is deliberately not retried: a stream that fails mid-transfer fails
// the whole request.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/famomatic/ytrelay/internal/types"
)

// Policy controls the backoff loop.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64

	// Sleep is the context-aware wait used between attempts. Tests inject a
	// recorder; nil means real sleeping.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy matches the upstream accommodation the service ships with:
// four attempts, 2s initial delay, 1.5x growth.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  4,
		InitialDelay: 2 * time.Second,
		Multiplier:   1.5,
	}
}

type state struct {
	attemptsLeft int
	delay        time.Duration
}

// Retryable reports whether err is worth another attempt: rate limiting,
// bot rejection, and transport failures are transient; everything else is
// terminal.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, types.ErrRateLimited) ||
		errors.Is(err, types.ErrRejected) ||
		types.IsTransport(err)
}

// Do runs fn up to p.MaxAttempts times, sleeping the current delay before each
// retry and growing it by p.Multiplier. The last error is returned unchanged
// so callers can classify it.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = waitBackoff
	}

	st := state{attemptsLeft: attempts, delay: p.InitialDelay}
	var lastErr error
	for st.attemptsLeft > 0 {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		st.attemptsLeft--
		if st.attemptsLeft == 0 || !Retryable(lastErr) {
			return lastErr
		}
		if err := sleep(ctx, st.delay); err != nil {
			return err
		}
		st.delay = time.Duration(float64(st.delay) * mult)
	}
	return lastErr
}

func waitBackoff(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
