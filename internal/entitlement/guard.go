package entitlement

import (
	"context"
	"errors"
	"time"
)

// guard races call against a deadline. If the call completes first its
// result is returned, with any failure wrapped as a *ProviderError. If the
// deadline elapses first a *TimeoutError is returned and the call is
// abandoned: its eventual completion is drained into a buffered channel and
// produces no observable effect. Cancellation of the parent context is
// passed through as ctx.Err() so teardown is distinguishable from a timeout.
func guard[T any](ctx context.Context, op string, deadline time.Duration, call func(context.Context) (T, error)) (T, error) {
	var zero T

	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}

	// Buffered so an abandoned call can always deliver and exit.
	done := make(chan outcome, 1)
	go func() {
		v, err := call(callCtx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) {
				// The provider surfaced our own deadline.
				return zero, &TimeoutError{Op: op, Deadline: deadline}
			}
			if errors.Is(out.err, context.Canceled) && ctx.Err() != nil {
				return zero, ctx.Err()
			}
			return zero, &ProviderError{Op: op, Err: out.err}
		}
		return out.value, nil

	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			// Parent cancelled: teardown, not a timeout.
			return zero, err
		}
		return zero, &TimeoutError{Op: op, Deadline: deadline}
	}
}
