package clock

import (
	"context"
	"time"
)

// Manual is a virtual clock for tests. Time only moves when Advance is
// called, and due callbacks run synchronously on the caller's goroutine in
// due-time order. It is not safe for concurrent use.
type Manual struct {
	now    time.Time
	seq    uint64
	timers []*manualTimer
}

type manualTimer struct {
	due     time.Time
	period  time.Duration
	seq     uint64
	fn      func()
	stopped bool
}

// NewManual returns a clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now implements Scheduler.
func (m *Manual) Now() time.Time { return m.now }

// Every implements Scheduler.
func (m *Manual) Every(d time.Duration, fn func()) Cancel {
	if d <= 0 {
		d = time.Nanosecond
	}
	return m.add(d, d, fn)
}

// After implements Scheduler.
func (m *Manual) After(d time.Duration, fn func()) Cancel {
	return m.add(d, 0, fn)
}

// Do runs fn immediately; the caller already owns the clock.
func (m *Manual) Do(_ context.Context, fn func()) error {
	fn()
	return nil
}

func (m *Manual) add(d, period time.Duration, fn func()) Cancel {
	m.seq++
	t := &manualTimer{due: m.now.Add(d), period: period, seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return func() { t.stopped = true }
}

// Advance moves the clock forward by d, firing every callback that falls due.
func (m *Manual) Advance(d time.Duration) {
	target := m.now.Add(d)
	for {
		t := m.next(target)
		if t == nil {
			break
		}
		m.now = t.due
		if t.period > 0 {
			t.due = t.due.Add(t.period)
		} else {
			t.stopped = true
		}
		t.fn()
	}
	m.now = target
}

// Pending reports the number of live timers.
func (m *Manual) Pending() int {
	m.prune()
	return len(m.timers)
}

func (m *Manual) next(target time.Time) *manualTimer {
	m.prune()
	var best *manualTimer
	for _, t := range m.timers {
		if t.due.After(target) {
			continue
		}
		if best == nil || t.due.Before(best.due) || (t.due.Equal(best.due) && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

func (m *Manual) prune() {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	for i := len(live); i < len(m.timers); i++ {
		m.timers[i] = nil
	}
	m.timers = live
}
