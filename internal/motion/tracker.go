// Package motion tracks movement on the secondary device during a break.
package motion

import (
	"log"
	"sync"
	"time"

	"github.com/sweeney/study-station/internal/logic"
	"github.com/sweeney/study-station/internal/timer"
)

// Sampler reads one accelerometer sample in g.
type Sampler interface {
	ReadAccel() (x, y, z float64, err error)
}

// Tracker counts steps while a break is running.
type Tracker struct {
	sampler  Sampler
	clock    timer.Clock
	interval time.Duration
	cfg      logic.StepConfig

	mu       sync.Mutex
	detector *logic.StepDetector
	stop     chan struct{}
	done     chan struct{}
	errors   int
}

// NewTracker creates a tracker sampling at interval.
func NewTracker(s Sampler, clock timer.Clock, interval time.Duration, cfg logic.StepConfig) *Tracker {
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	return &Tracker{sampler: s, clock: clock, interval: interval, cfg: cfg}
}

// Start begins sampling with a fresh step count. A running session is
// discarded first.
func (t *Tracker) Start(sessionID string, pause int) {
	t.halt()

	t.mu.Lock()
	t.detector = logic.NewStepDetector(t.cfg)
	t.errors = 0
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	stop, done := t.stop, t.done
	ticker := t.clock.NewTicker(t.interval)
	t.mu.Unlock()

	log.Printf("motion: tracking break %d of %s", pause, sessionID)
	go t.run(ticker, stop, done)
}

func (t *Tracker) run(ticker timer.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C():
			t.sample(now)
		}
	}
}

func (t *Tracker) sample(now time.Time) {
	x, y, z, err := t.sampler.ReadAccel()

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.errors++
		if t.errors == 1 || t.errors%100 == 0 {
			log.Printf("motion: accelerometer read error (%d): %v", t.errors, err)
		}
		return
	}
	if t.detector != nil {
		t.detector.Process(logic.Accel{X: x, Y: y, Z: z, Time: now})
	}
}

// halt stops the sampling goroutine and waits for it.
func (t *Tracker) halt() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Stop ends tracking and returns the steps counted.
func (t *Tracker) Stop() int {
	t.halt()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.detector == nil {
		return 0
	}
	steps := t.detector.Steps()
	t.detector = nil
	return steps
}

// Discard ends tracking and drops the count.
func (t *Tracker) Discard() {
	t.halt()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.detector = nil
}

// Steps returns the live step count.
func (t *Tracker) Steps() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.detector == nil {
		return 0
	}
	return t.detector.Steps()
}
