package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/drivehop/drivehop/internal/shared"
)

// rateLimitBackoffFactor stretches the fixed retry delay when the
// provider reports throttling.
const rateLimitBackoffFactor = 5

// retryPolicy controls callWithRetry.
type retryPolicy struct {
	maxRetries int           // retries after the first attempt
	delay      time.Duration // fixed delay between attempts
	refresh    func(ctx context.Context) error
}

// callWithRetry runs fn up to maxRetries+1 times, retrying only transient
// failures. Rate-limit failures wait longer between attempts than network
// errors and timeouts. An expired session is handled once via policy.refresh and the
// single follow-up attempt does not count against the retry budget. Any
// other error aborts immediately. Exhausting the budget wraps the last
// error in ErrRetriesExhausted.
func callWithRetry[T any](ctx context.Context, policy retryPolicy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	authRetried := false

	for attempt := 0; attempt <= policy.maxRetries; attempt++ {
		if attempt > 0 {
			delay := policy.delay
			if errors.Is(lastErr, shared.ErrRateLimited) {
				delay *= rateLimitBackoffFactor
			}
			select {
			case <-ctx.Done():
				return zero, fmt.Errorf("%w: %v", shared.ErrTimeout, ctx.Err())
			case <-time.After(delay):
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		if errors.Is(err, shared.ErrAuthExpired) && !authRetried && policy.refresh != nil {
			authRetried = true
			if refreshErr := policy.refresh(ctx); refreshErr != nil {
				return zero, refreshErr
			}
			// The post-refresh attempt is free.
			attempt--
			lastErr = err
			continue
		}

		if !shared.Transient(err) {
			return zero, err
		}

		lastErr = err
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", shared.ErrRetriesExhausted, policy.maxRetries+1, lastErr)
}
