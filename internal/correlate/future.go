package correlate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/idxstore/internal/ir"
)

// ErrTimeout matches every *TimeoutError with errors.Is.
var ErrTimeout = errors.New("correlate: wait timed out")

// TimeoutError is returned when a wait ends before its call completed.
//
// The registration stays in the table: a late completion still resolves the
// future and is then dropped, since nobody waits on it.
type TimeoutError struct {
	// Token identifies the abandoned call.
	Token uuid.UUID

	// After is the timeout that elapsed, zero for a context deadline.
	After time.Duration

	// Cause is the context error, if the wait was ended by a context.
	Cause error
}

func (e *TimeoutError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("call %s timed out after %s", e.Token, e.After)
	}
	return fmt.Sprintf("call %s timed out: %v", e.Token, e.Cause)
}

// Is makes errors.Is(err, ErrTimeout) match.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// IsTimeout returns true if err is or wraps a *TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Future is the awaitable side of a future-style registration.
// It resolves exactly once.
type Future struct {
	token   uuid.UUID
	once    sync.Once
	done    chan struct{}
	outcome ir.Outcome
}

func newFuture(token uuid.UUID) *Future {
	return &Future{token: token, done: make(chan struct{})}
}

// resolve stores o and wakes waiters. Returns false if already resolved.
func (f *Future) resolve(o ir.Outcome) bool {
	resolved := false
	f.once.Do(func() {
		f.outcome = o
		close(f.done)
		resolved = true
	})
	return resolved
}

// Token returns the call's correlation token.
func (f *Future) Token() uuid.UUID { return f.token }

// Done is closed when the outcome is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Outcome returns the outcome without blocking.
func (f *Future) Outcome() (ir.Outcome, bool) {
	select {
	case <-f.done:
		return f.outcome, true
	default:
		return ir.Outcome{}, false
	}
}

// Wait blocks until the outcome arrives or ctx ends.
//
// A context deadline yields *TimeoutError; cancellation yields ctx.Err().
// Neither retracts the registration.
func (f *Future) Wait(ctx context.Context) (ir.Outcome, error) {
	select {
	case <-f.done:
		return f.outcome, nil
	case <-ctx.Done():
		// Prefer a completion that raced the deadline.
		if o, ok := f.Outcome(); ok {
			return o, nil
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ir.Outcome{}, &TimeoutError{Token: f.token, Cause: ctx.Err()}
		}
		return ir.Outcome{}, ctx.Err()
	}
}

// WaitTimeout blocks until the outcome arrives or d elapses.
func (f *Future) WaitTimeout(d time.Duration) (ir.Outcome, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-f.done:
		return f.outcome, nil
	case <-timer.C:
		if o, ok := f.Outcome(); ok {
			return o, nil
		}
		return ir.Outcome{}, &TimeoutError{Token: f.token, After: d}
	}
}
