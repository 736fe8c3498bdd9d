package timer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestTimerCompletes(t *testing.T) {
	clock := NewFakeClock(start)
	tm := New(clock, time.Second)

	var mu sync.Mutex
	var ticks []time.Duration
	var completed atomic.Int32

	tm.Start(3*time.Second, func(rem time.Duration) {
		mu.Lock()
		ticks = append(ticks, rem)
		mu.Unlock()
	}, func() { completed.Add(1) })

	if !tm.Running() {
		t.Fatal("expected timer to be running")
	}

	clock.Step(time.Second, 3)
	require.Eventually(t, func() bool { return completed.Load() == 1 }, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	want := []time.Duration{2 * time.Second, time.Second, 0}
	require.Equal(t, want, ticks)
	require.False(t, tm.Running())
}

func TestTimerCancelPreventsCompletion(t *testing.T) {
	clock := NewFakeClock(start)
	tm := New(clock, time.Second)

	var completed atomic.Int32
	tm.Start(2*time.Second, nil, func() { completed.Add(1) })

	clock.Advance(time.Second)
	if !tm.Cancel() {
		t.Fatal("Cancel should report a running countdown")
	}
	if tm.Cancel() {
		t.Error("second Cancel should be a no-op")
	}

	clock.Step(time.Second, 5)
	require.Eventually(t, func() bool { return clock.ActiveTickers() == 0 }, time.Second, time.Millisecond)
	if completed.Load() != 0 {
		t.Errorf("completion fired %d times after cancel", completed.Load())
	}
}

func TestTimerRestartInvalidatesPrevious(t *testing.T) {
	clock := NewFakeClock(start)
	tm := New(clock, time.Second)

	var first, second atomic.Int32
	g1 := tm.Start(time.Second, nil, func() { first.Add(1) })
	g2 := tm.Start(2*time.Second, nil, func() { second.Add(1) })
	if g2 <= g1 {
		t.Errorf("generation did not advance: %d then %d", g1, g2)
	}

	clock.Step(time.Second, 2)
	require.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, time.Millisecond)
	if first.Load() != 0 {
		t.Error("restarted countdown must not complete")
	}
}

func TestTimerReset(t *testing.T) {
	clock := NewFakeClock(start)
	tm := New(clock, time.Second)

	tm.Start(5*time.Second, nil, nil)
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return tm.Remaining() == 4*time.Second }, time.Second, time.Millisecond)

	tm.Reset()
	tm.Reset()
	if tm.Running() || tm.Remaining() != 0 {
		t.Errorf("after reset: running=%v remaining=%v", tm.Running(), tm.Remaining())
	}
}

// TestCancelRacingCompletion cancels at the tick the countdown would
// naturally complete. Whichever side wins, completion must never be
// observed after Cancel has returned.
func TestCancelRacingCompletion(t *testing.T) {
	for i := 0; i < 200; i++ {
		clock := NewFakeClock(start)
		tm := New(clock, time.Second)

		var cancelReturned atomic.Bool
		var lateFire atomic.Bool
		var fired atomic.Bool

		tm.Start(2*time.Second, nil, func() {
			if cancelReturned.Load() {
				lateFire.Store(true)
			}
			fired.Store(true)
		})
		clock.Advance(time.Second)

		done := make(chan struct{})
		go func() {
			clock.Advance(time.Second)
			close(done)
		}()
		cancelled := tm.Cancel()
		cancelReturned.Store(true)
		<-done

		// Give a losing completion every chance to run.
		time.Sleep(time.Millisecond)

		if lateFire.Load() {
			t.Fatalf("iteration %d: completion fired after Cancel returned", i)
		}
		if cancelled && fired.Load() {
			t.Fatalf("iteration %d: Cancel won but completion still fired", i)
		}
	}
}

func TestFakeClockAfterFunc(t *testing.T) {
	clock := NewFakeClock(start)

	var fired []string
	clock.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	clock.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	s := clock.AfterFunc(3*time.Second, func() { fired = append(fired, "c") })

	if !s.Stop() {
		t.Error("Stop should prevent a pending func")
	}
	clock.Advance(5 * time.Second)

	require.Equal(t, []string{"a", "b"}, fired)
	require.Equal(t, start.Add(5*time.Second), clock.Now())
}
