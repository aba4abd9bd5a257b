// Package pause implements waits that give up as soon as the user asks the
// automation to stop.
package pause

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCancelled is returned when a wait is aborted before its full duration.
var ErrCancelled = errors.New("wait cancelled")

// MaxSlice bounds the slice interval and therefore the reaction latency.
const MaxSlice = 10 * time.Millisecond

// Sleeper sleeps in short slices and polls a cancellation check between them.
type Sleeper struct {
	slice     time.Duration
	cancelled func() bool
}

// NewSleeper creates a sleeper. Slices outside (0, MaxSlice] are clamped.
// cancelled may be nil, in which case only the context cancels a wait.
func NewSleeper(slice time.Duration, cancelled func() bool) *Sleeper {
	if slice <= 0 || slice > MaxSlice {
		slice = MaxSlice
	}
	return &Sleeper{slice: slice, cancelled: cancelled}
}

// Slice returns the polling granularity.
func (s *Sleeper) Slice() time.Duration {
	return s.slice
}

// Poll reports whether a cancellation is pending.
func (s *Sleeper) Poll() bool {
	return s.cancelled != nil && s.cancelled()
}

// Sleep blocks for d. It returns ErrCancelled within one slice of a pending
// cancellation, wrapping the context error when the context ended the wait.
func (s *Sleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	if s.Poll() {
		return ErrCancelled
	}
	if d <= 0 {
		return nil
	}

	deadline := time.Now().Add(d)
	timer := time.NewTimer(min(s.slice, d))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		case <-timer.C:
		}

		if s.Poll() {
			return ErrCancelled
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		timer.Reset(min(s.slice, remaining))
	}
}
