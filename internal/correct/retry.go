package correct

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

type retrying struct {
	inner   Corrector
	retries int
}

// NewRetrying wraps a corrector with a small bounded retry-with-backoff.
// This retry layer is internal to the call: the pipeline's failure breaker
// only sees the post-retry outcome.
func NewRetrying(inner Corrector, retries int) Corrector {
	if retries <= 0 {
		return inner
	}
	return &retrying{inner: inner, retries: retries}
}

func (r *retrying) Correct(ctx context.Context, text string) (Result, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 300 * time.Millisecond

	return backoff.Retry(ctx,
		func() (Result, error) {
			return r.inner.Correct(ctx, text)
		},
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(r.retries+1)),
	)
}
