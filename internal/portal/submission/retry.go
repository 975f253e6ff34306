package submission

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"alloggiati/internal/portal/portalerr"
)

// RetryPolicy bounds retries of retryable (transport) failures. Validation,
// auth, protocol and rejection errors are never retried.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64

	// RetrySubmit allows retrying Send after a transport failure. The portal
	// may have registered the batch before the connection dropped, so a retry
	// risks a duplicate registration.
	RetrySubmit bool
}

// DefaultRetryPolicy makes up to three attempts starting at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2,
	}
}

// NoRetry makes every call exactly once.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier >= 1 {
		b.Multiplier = p.Multiplier
	}
	b.MaxElapsedTime = 0

	retries := 0
	if p.MaxAttempts > 1 {
		retries = p.MaxAttempts - 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// do runs fn until it succeeds, fails permanently, or attempts run out.
// notify is called before each retry.
func (p RetryPolicy) do(ctx context.Context, fn func() error, notify func(err error, wait time.Duration)) error {
	op := func() error {
		err := fn()
		if err != nil && !portalerr.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.RetryNotify(op, p.backOff(ctx), notify)
}
