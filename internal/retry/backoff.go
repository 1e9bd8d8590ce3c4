// Package retry provides exponential backoff and a circuit breaker for
// the registry writes that follow each verified relay.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
)

// PermanentError marks an error that retrying will not fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Do returns it at once.  Permanent(nil) is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Backoff retries an operation with exponentially growing waits.
type Backoff struct {
	InitialDelay time.Duration // first wait (1s)
	MaxDelay     time.Duration // cap on any wait (60s)
	Multiplier   float64       // growth per attempt (2)
	MaxAttempts  int           // total tries; 0 retries until ctx ends
	Jitter       bool          // spread each wait by ±25%

	// OnRetry, when set, is told about each failed attempt that will be
	// retried and how long Do waits before the next one.
	OnRetry func(attempt int, err error, wait time.Duration)

	Clock clock.Clock // nil means the wall clock
}

// DefaultBackoff is the registry save policy: a few attempts a couple of
// seconds apart, since a pass moves on to the next relay either way.
func DefaultBackoff() *Backoff {
	return &Backoff{
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		MaxAttempts:  3,
		Jitter:       true,
	}
}

// Do calls fn (attempt is 1-based) until it returns nil, returns a
// Permanent error, MaxAttempts is reached or ctx is done.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	clk := b.Clock
	if clk == nil {
		clk = clock.New()
	}

	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		switch {
		case err == nil:
			return nil
		case IsPermanent(err):
			return errors.Unwrap(err)
		case b.MaxAttempts > 0 && attempt >= b.MaxAttempts:
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		wait := b.delay(attempt)
		if b.OnRetry != nil {
			b.OnRetry(attempt, err, wait)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-clk.After(wait):
		}
	}
}

// delay returns the wait after the given failed attempt.
func (b *Backoff) delay(attempt int) time.Duration {
	d := b.InitialDelay
	if d <= 0 {
		d = time.Second
	}
	limit := b.MaxDelay
	if limit <= 0 {
		limit = 60 * time.Second
	}
	mult := b.Multiplier
	if mult <= 0 {
		mult = 2
	}

	for i := 1; i < attempt && d < limit; i++ {
		d = time.Duration(float64(d) * mult)
	}
	if d > limit {
		d = limit
	}
	if b.Jitter {
		d = jitter(d)
	}
	return d
}

// jitter spreads d uniformly over ±25%, never below a millisecond.
func jitter(d time.Duration) time.Duration {
	spread := float64(d) / 4
	j := time.Duration(float64(d) + (rand.Float64()*2-1)*spread)
	if j < time.Millisecond {
		j = time.Millisecond
	}
	return j
}
