package generation

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// retry runs op up to maxAttempts times, waiting between attempts. After a
// failed attempt that will be retried, onFailure receives the attempt
// number and error so the next attempt can run with adjusted parameters.
// Errors wrapped with backoff.Permanent stop the loop immediately.
func retry[T any](
	ctx context.Context,
	maxAttempts int,
	wait time.Duration,
	op func(attempt int) (T, error),
	onFailure func(attempt int, err error),
) (T, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if wait > 0 {
		b = backoff.NewConstantBackOff(wait)
	}

	attempt := 0
	return backoff.Retry(ctx,
		func() (T, error) {
			return op(attempt)
		},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, _ time.Duration) {
			if onFailure != nil {
				onFailure(attempt, err)
			}
			attempt++
		}),
	)
}
