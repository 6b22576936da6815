package clock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStopped is returned by Do once the loop has exited.
var ErrStopped = errors.New("clock: loop stopped")

// Loop is a single-goroutine event loop backed by real timers.
//
// Every, After and the returned Cancel functions must be called from the loop
// goroutine (from a timer callback or from inside Do). Do may be called from
// any goroutine except the loop itself.
type Loop struct {
	work chan func()
	done chan struct{}
	once sync.Once
	now  func() time.Time
}

// NewLoop creates a loop. Nothing runs until Run is called.
func NewLoop() *Loop {
	return &Loop{
		work: make(chan func(), 64),
		done: make(chan struct{}),
		now:  time.Now,
	}
}

// Run executes queued work until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.done) })
	for {
		select {
		case fn := <-l.work:
			fn()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Do runs fn on the loop and blocks until it returns.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case l.work <- func() { defer close(finished); fn() }:
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Now returns wall-clock time.
func (l *Loop) Now() time.Time { return l.now() }

// Every implements Scheduler.
func (l *Loop) Every(d time.Duration, fn func()) Cancel { return l.schedule(d, true, fn) }

// After implements Scheduler.
func (l *Loop) After(d time.Duration, fn func()) Cancel { return l.schedule(d, false, fn) }

// loopTimer fields are only touched on the loop goroutine.
type loopTimer struct {
	t       *time.Timer
	stopped bool
}

func (l *Loop) schedule(d time.Duration, repeat bool, fn func()) Cancel {
	lt := &loopTimer{}
	lt.t = time.AfterFunc(d, func() {
		l.post(func() {
			if lt.stopped {
				return
			}
			if repeat {
				lt.t.Reset(d)
			} else {
				lt.stopped = true
			}
			fn()
		})
	})
	return func() {
		lt.stopped = true
		lt.t.Stop()
	}
}

// post hands fn to the loop; it is dropped if the loop has exited.
func (l *Loop) post(fn func()) {
	select {
	case l.work <- fn:
	case <-l.done:
	}
}
