package clock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestManualAdvanceOrdersCallbacks(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	var got []string
	m.Every(3*time.Second, func() { got = append(got, "tick") })
	m.After(4*time.Second, func() { got = append(got, "once") })

	m.Advance(7 * time.Second)

	want := []string{"tick", "once", "tick"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if !m.Now().Equal(time.Unix(7, 0)) {
		t.Fatalf("now = %v, want 7s", m.Now())
	}
	if m.Pending() != 1 {
		t.Fatalf("expected only the repeating timer to remain, got %d", m.Pending())
	}
}

func TestManualCancelInsideCallback(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	count := 0
	var stop Cancel
	stop = m.Every(time.Second, func() {
		count++
		if count == 2 {
			stop()
		}
	})
	m.Advance(10 * time.Second)
	if count != 2 {
		t.Fatalf("expected 2 ticks before cancel, got %d", count)
	}
	if m.Pending() != 0 {
		t.Fatalf("expected no pending timers, got %d", m.Pending())
	}
	stop()
}

func TestManualNowDuringCallback(t *testing.T) {
	m := NewManual(time.Unix(100, 0))
	var at time.Time
	m.After(1500*time.Millisecond, func() { at = m.Now() })
	m.Advance(2 * time.Second)
	if !at.Equal(time.Unix(101, 500_000_000)) {
		t.Fatalf("callback saw %v", at)
	}
}

func TestLoopRunsTimersOnLoop(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	fired := make(chan int, 8)
	var stop Cancel
	count := 0
	if err := l.Do(ctx, func() {
		stop = l.Every(5*time.Millisecond, func() {
			count++
			fired <- count
			if count == 3 {
				stop()
			}
		})
	}); err != nil {
		t.Fatalf("Do: %v", err)
	}

	for want := 1; want <= 3; want++ {
		select {
		case got := <-fired:
			if got != want {
				t.Fatalf("tick %d reported %d", want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for tick %d", want)
		}
	}
	select {
	case got := <-fired:
		t.Fatalf("unexpected tick %d after cancel", got)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestLoopCancelBeforeFire(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	fired := make(chan struct{}, 1)
	_ = l.Do(ctx, func() {
		stop := l.After(10*time.Millisecond, func() { fired <- struct{}{} })
		stop()
	})
	select {
	case <-fired:
		t.Fatal("cancelled callback fired")
	case <-time.After(40 * time.Millisecond):
	}
}

func TestLoopDoAfterStop(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = l.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
	if err := l.Do(context.Background(), func() {}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}
