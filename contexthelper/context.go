package contexthelper

import (
	"context"
	"time"
)

// CheckCancellation returns the context error once ctx is done, nil otherwise.
// Long loops call it between explorer or storage round trips.
func CheckCancellation(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// WaitFor blocks until d elapses or wake delivers, whichever comes first.
// It returns the context error if ctx ends first. A nil wake channel only
// waits for the timer.
func WaitFor[T any](ctx context.Context, d time.Duration, wake <-chan T) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-wake:
		return nil
	case <-timer.C:
		return nil
	}
}
