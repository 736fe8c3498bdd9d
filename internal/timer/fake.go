package timer

import (
	"sync"
	"time"
)

// FakeClock is a manually advanced Clock for tests.
// Ticks are delivered synchronously: Advance blocks until each tick has been
// received (or the ticker stopped), so a consumer loop runs in lockstep.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
	funcs   []*fakeFunc
}

// NewFakeClock creates a clock starting at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NewTicker registers a ticker that fires every d of fake time.
func (c *FakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{
		c:       make(chan time.Time),
		period:  d,
		next:    c.now.Add(d),
		stopped: make(chan struct{}),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// AfterFunc registers f to run once the fake time reaches now+d.
// f runs on the goroutine calling Advance.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	ff := &fakeFunc{at: c.now.Add(d), f: f, clock: c}
	c.funcs = append(c.funcs, ff)
	return ff
}

// Advance moves the clock forward by d, firing every due ticker and
// function in time order.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		at, fire := c.nextLocked(target)
		if fire == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = at
		c.mu.Unlock()
		fire()
	}
}

// Step advances by d n times.
func (c *FakeClock) Step(d time.Duration, n int) {
	for i := 0; i < n; i++ {
		c.Advance(d)
	}
}

// ActiveTickers returns the number of tickers not yet stopped.
func (c *FakeClock) ActiveTickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.tickers {
		if !t.isStopped() {
			n++
		}
	}
	return n
}

// nextLocked finds the earliest event due at or before target and returns
// a closure that fires it.
func (c *FakeClock) nextLocked(target time.Time) (time.Time, func()) {
	var (
		at   time.Time
		fire func()
	)

	live := c.tickers[:0]
	for _, t := range c.tickers {
		if t.isStopped() {
			continue
		}
		live = append(live, t)
		if t.next.After(target) || (fire != nil && !t.next.Before(at)) {
			continue
		}
		tk, when := t, t.next
		at = when
		fire = func() {
			c.mu.Lock()
			tk.next = tk.next.Add(tk.period)
			c.mu.Unlock()
			tk.deliver(when)
		}
	}
	c.tickers = live

	pending := c.funcs[:0]
	var due *fakeFunc
	for _, f := range c.funcs {
		if f.done {
			continue
		}
		pending = append(pending, f)
		if f.at.After(target) || (fire != nil && !f.at.Before(at)) {
			continue
		}
		if due == nil || f.at.Before(due.at) {
			due = f
			at = f.at
		}
	}
	c.funcs = pending
	if due != nil {
		due.done = true
		fire = due.f
	}
	return at, fire
}

type fakeTicker struct {
	c        chan time.Time
	period   time.Duration
	next     time.Time
	stopped  chan struct{}
	stopOnce sync.Once
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.stopOnce.Do(func() { close(t.stopped) })
}

func (t *fakeTicker) isStopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

func (t *fakeTicker) deliver(at time.Time) {
	select {
	case t.c <- at:
	case <-t.stopped:
	}
}

type fakeFunc struct {
	at    time.Time
	f     func()
	done  bool
	clock *FakeClock
}

func (f *fakeFunc) Stop() bool {
	f.clock.mu.Lock()
	defer f.clock.mu.Unlock()
	if f.done {
		return false
	}
	f.done = true
	return true
}
