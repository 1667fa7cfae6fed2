// Package timeout bounds the wall-clock duration of a single upload attempt.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is matched by every error the guard produces when its timer fires first.
var ErrTimeout = errors.New("upload timed out")

// ErrInvalidBounds is returned by Clamp when the floor is above the ceiling.
var ErrInvalidBounds = errors.New("minimum timeout must not exceed maximum timeout")

// Error reports that an operation did not settle within its deadline.
type Error struct {
	After time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("upload timed out after %s", e.After)
}

// Is makes errors.Is(err, ErrTimeout) true.
func (e *Error) Is(target error) bool {
	return target == ErrTimeout
}

// Clamp returns min(max(base, floor), ceiling).
func Clamp(base, floor, ceiling time.Duration) (time.Duration, error) {
	if floor > ceiling {
		return 0, fmt.Errorf("%w: %s > %s", ErrInvalidBounds, floor, ceiling)
	}

	d := base
	if d < floor {
		d = floor
	}
	if d > ceiling {
		d = ceiling
	}
	return d, nil
}

type result[T any] struct {
	value T
	err   error
}

// Guard runs op and waits at most d for it to settle.
//
// If op settles first its value and error are returned unchanged. If the timer fires first
// a *Error is returned and the context passed to op is cancelled; op may keep running if it
// ignores the context, but whatever it returns afterwards is dropped. A non-positive d
// disables the deadline.
func Guard[T any](ctx context.Context, d time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so an abandoned operation can always deliver and exit.
	done := make(chan result[T], 1)
	go func() {
		var r result[T]
		defer func() {
			if p := recover(); p != nil {
				r.err = fmt.Errorf("upload panicked: %v", p)
			}
			done <- r
		}()
		r.value, r.err = op(opCtx)
	}()

	var timerC <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timerC = timer.C
	}

	var zero T
	select {
	case r := <-done:
		return r.value, r.err
	case <-timerC:
		return zero, &Error{After: d}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
