package retry

import (
	"context"
	"errors"
)

// Result is returned by Do, carrying the attempt count actually used
// (0 means it succeeded on the first try, with no retries).
type Result struct {
	Attempts int
}

// Classifier reports whether an error is worth retrying. Non-retryable
// errors abort Do immediately, surfacing on the first attempt.
type Classifier func(err error) bool

// AlwaysRetry treats every non-nil error as transient.
func AlwaysRetry(error) bool { return true }

// Do runs fn under policy, sleeping between attempts per Delay. It stops
// as soon as fn returns nil, as soon as classify reports an error is not
// retryable, as soon as ctx is cancelled, or once the policy is exhausted.
func Do(ctx context.Context, policy Policy, classify Classifier, fn func(ctx context.Context, attempt int) error) (Result, error) {
	if classify == nil {
		classify = AlwaysRetry
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{Attempts: attempt}, err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return Result{Attempts: attempt}, nil
		}

		if !classify(lastErr) {
			return Result{Attempts: attempt}, lastErr
		}

		if policy.Exhausted(attempt) {
			return Result{Attempts: attempt + 1}, lastErr
		}

		select {
		case <-ctx.Done():
			return Result{Attempts: attempt + 1}, errors.Join(lastErr, ctx.Err())
		case <-timerC(ctx, policy.Delay(attempt)):
		}
	}
}
