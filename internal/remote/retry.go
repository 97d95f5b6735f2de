package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// defaultMaxAttempts is the number of tries before Retry gives up.
	defaultMaxAttempts = 3
)

var (
	// baseDelay is the starting backoff interval (before jitter).
	baseDelay = 500 * time.Millisecond

	// maxDelay caps the backoff interval.
	maxDelay = 5 * time.Second
)

// Retry executes fn up to maxAttempts times with exponential backoff and
// jitter. It returns nil on the first successful call. Errors classified as
// permanent (the server answered with an error message, a 4xx status or an
// auth failure) stop immediately; otherwise the returned error wraps the
// last failure.
func Retry(ctx context.Context, maxAttempts int, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("retry cancelled: %w", err)
	}

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		if err := fn(); err != nil {
			if isPermanent(err) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(newBackOff()),
		backoff.WithMaxTries(uint(maxAttempts)),
	)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("retry cancelled: %w", errors.Join(ctx.Err(), err))
	case attempts < maxAttempts:
		return err
	default:
		return fmt.Errorf("all %d attempts failed: %w", maxAttempts, err)
	}
}

// newBackOff returns exponential growth from baseDelay capped at maxDelay,
// with each interval jittered by ±50%.
func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseDelay
	b.MaxInterval = maxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	return b
}

// isPermanent reports whether retrying err cannot help.
func isPermanent(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return true
	}
	if errors.Is(err, ErrUnauthorized) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code < 500
	}
	return false
}
