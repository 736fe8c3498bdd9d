package timer

import (
	"sync"
	"time"
)

// DefaultResolution is the countdown step.
const DefaultResolution = time.Second

// Timer is a restartable countdown. Each Start gets a generation token; a
// tick or completion whose generation is no longer current is dropped.
//
// Callbacks run while the timer's lock is held, which is what makes Cancel
// synchronous: once Cancel returns, no completion for the cancelled start can
// run. Callbacks must therefore not call back into the same Timer; hand the
// work to another goroutine instead.
type Timer struct {
	clock      Clock
	resolution time.Duration

	mu        sync.Mutex
	gen       uint64
	running   bool
	remaining time.Duration
	stop      chan struct{}
}

// New creates a timer that counts down in steps of resolution.
func New(clock Clock, resolution time.Duration) *Timer {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	return &Timer{clock: clock, resolution: resolution}
}

// Start begins a countdown of d, cancelling any countdown in progress.
// onTick receives the remaining time after every step, including the final
// zero step; onComplete runs once when the countdown reaches zero.
// Either callback may be nil. It returns the generation of this start.
func (t *Timer) Start(d time.Duration, onTick func(remaining time.Duration), onComplete func()) uint64 {
	t.mu.Lock()
	t.cancelLocked()
	t.gen++
	gen := t.gen
	stop := make(chan struct{})
	t.stop = stop
	t.running = true
	t.remaining = d
	ticker := t.clock.NewTicker(t.resolution)
	t.mu.Unlock()

	go t.run(gen, ticker, stop, onTick, onComplete)
	return gen
}

func (t *Timer) run(gen uint64, ticker Ticker, stop <-chan struct{}, onTick func(time.Duration), onComplete func()) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
		}

		t.mu.Lock()
		if t.gen != gen || !t.running {
			t.mu.Unlock()
			return
		}
		t.remaining -= t.resolution
		if t.remaining < 0 {
			t.remaining = 0
		}
		if onTick != nil {
			onTick(t.remaining)
		}
		if t.remaining == 0 {
			t.running = false
			if onComplete != nil {
				onComplete()
			}
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()
	}
}

// Cancel stops the current countdown. It reports whether a countdown was
// running. It is idempotent.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelLocked()
}

// Reset cancels any countdown and clears the remaining time.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
	t.remaining = 0
}

func (t *Timer) cancelLocked() bool {
	if !t.running {
		return false
	}
	t.gen++
	t.running = false
	close(t.stop)
	return true
}

// Running reports whether a countdown is in progress.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Remaining returns the time left on the current or last countdown.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Generation returns the token of the most recent Start or Cancel.
func (t *Timer) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}
