// Package clock provides the timer port the mission feed runs on.
//
// Everything driven through a Scheduler executes on one logical thread: the
// production Loop serializes timer callbacks and submitted work onto a single
// goroutine, and Manual runs callbacks synchronously inside Advance.
package clock

import (
	"context"
	"time"
)

// Cancel stops a scheduled callback. Calling it more than once is a no-op.
type Cancel func()

// Scheduler schedules callbacks on the owner's event loop.
type Scheduler interface {
	// Every runs fn every d until the returned Cancel is called.
	Every(d time.Duration, fn func()) Cancel
	// After runs fn once after d unless cancelled first.
	After(d time.Duration, fn func()) Cancel
	// Now reports the scheduler's current time.
	Now() time.Time
}

// Runner executes fn on the scheduler's goroutine and waits for it to finish.
type Runner interface {
	Do(ctx context.Context, fn func()) error
}
