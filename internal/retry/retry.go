// Package retry retries provider calls with exponential backoff.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/casualjim/weft/pkg/slogx"
	"github.com/casualjim/weft/pkg/stdx"
	"github.com/casualjim/weft/provider"
)

const (
	DefaultMaxRetries         = 2
	DefaultInitialInterval    = 2 * time.Second
	DefaultBackoffCoefficient = 2.0
)

// Policy configures how a call is retried.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	// Zero disables retries.
	MaxRetries         int
	InitialInterval    time.Duration
	BackoffCoefficient float64
	// MaximumInterval caps the delay between attempts. Zero means no cap.
	MaximumInterval time.Duration
	Logger          *slog.Logger
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:         DefaultMaxRetries,
		InitialInterval:    DefaultInitialInterval,
		BackoffCoefficient: DefaultBackoffCoefficient,
	}
}

// Do calls fn until it succeeds, fails with an error that is not retryable,
// or runs out of retries. Only errors for which provider.IsRetryable holds
// are retried. With MaxRetries zero the error of fn is returned unchanged;
// otherwise failures are reported as *provider.RetryError.
func Do[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var errs []error
	delay := p.InitialInterval
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if p.MaxRetries <= 0 {
			return v, err
		}
		errs = append(errs, err)

		if provider.IsAbort(err) {
			return stdx.Zero[T](), &provider.RetryError{Reason: provider.RetryReasonAbort, Errors: errs, LastError: err}
		}
		if !provider.IsRetryable(err) {
			if attempt == 0 {
				return stdx.Zero[T](), err
			}
			return stdx.Zero[T](), &provider.RetryError{Reason: provider.RetryReasonErrorNotRetryable, Errors: errs, LastError: err}
		}
		if attempt >= p.MaxRetries {
			return stdx.Zero[T](), &provider.RetryError{Reason: provider.RetryReasonMaxRetriesExceeded, Errors: errs, LastError: err}
		}

		logger.Warn("retrying provider call",
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slogx.Error(err),
		)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			errs = append(errs, ctx.Err())
			return stdx.Zero[T](), &provider.RetryError{Reason: provider.RetryReasonAbort, Errors: errs, LastError: &provider.AbortError{Err: ctx.Err()}}
		case <-t.C:
		}

		delay = next(delay, p)
	}
}

func next(delay time.Duration, p Policy) time.Duration {
	coeff := p.BackoffCoefficient
	if coeff < 1 {
		coeff = 1
	}
	d := time.Duration(float64(delay) * coeff)
	if p.MaximumInterval > 0 && d > p.MaximumInterval {
		d = p.MaximumInterval
	}
	return d
}
