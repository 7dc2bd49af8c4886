// Package retry runs an operation with exponential backoff.
//
// memoryd never retries embedding calls (a failed embed is a soft failure
// for that call). Retry is used for startup chores such as waiting for the
// embedding server to finish loading its model:
//
//	err := retry.Do(ctx, retry.Config{MaxAttempts: 10, InitialDelay: time.Second}, func() error {
//	    return probe(ctx)
//	})
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Config controls the backoff schedule.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Zero or negative means a single attempt.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt. It doubles after
	// every failure up to MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultConfig suits short network probes.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error
// immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it returns nil, returns a Permanent error, the attempts
// run out, or ctx is done. The error from the last attempt is returned
// (joined with ctx.Err() on cancellation).
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultConfig.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig.MaxDelay
	}

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(lastErr, err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		slog.Debug("retry: attempt failed",
			"attempt", attempt, "max", cfg.MaxAttempts,
			"err", lastErr, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}

		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return lastErr
}
