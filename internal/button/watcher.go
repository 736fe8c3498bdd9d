// Package button runs the gesture classifier for one physical button.
// It owns the deferred single-click timer and serializes edges and
// timer expiry so the classifier never sees concurrent calls.
package button

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/study-station/internal/logic"
	"github.com/sweeney/study-station/internal/timer"
)

// Handler receives classified gestures. It is called with the watcher's
// lock held, so gestures of one button arrive in order. It must not call
// back into the same Watcher.
type Handler func(button string, g logic.GestureEvent)

// Watcher turns raw edges of one button into gestures.
type Watcher struct {
	name    string
	clock   timer.Clock
	handler Handler

	mu      sync.Mutex
	cls     *logic.Classifier
	pending timer.Stopper
}

// New creates a watcher for the named button.
func New(name string, cfg logic.GestureConfig, clock timer.Clock, h Handler) (*Watcher, error) {
	cls, err := logic.NewClassifier(cfg)
	if err != nil {
		return nil, fmt.Errorf("button %s: %w", name, err)
	}
	return &Watcher{name: name, clock: clock, handler: h, cls: cls}, nil
}

// Name returns the button name.
func (w *Watcher) Name() string {
	return w.name
}

// Edge feeds one press or release observed at the given time.
func (w *Watcher) Edge(edge logic.Edge, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if edge == logic.EdgeUp && !w.cls.Pressed() {
		log.Printf("button %s: release without press ignored", w.name)
	}
	events := w.cls.Process(logic.PressEvent{Edge: edge, Time: at})
	w.rearmLocked()
	w.dispatchLocked(events)
}

// Press simulates a full press of duration d starting now. Used by the
// simulated hardware and the web press endpoint.
func (w *Watcher) Press(d time.Duration) {
	now := w.clock.Now()
	w.Edge(logic.EdgeDown, now)
	w.Edge(logic.EdgeUp, now.Add(d))
}

// Close stops the pending single-click timer. A click still waiting for
// its window is dropped.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
}

// rearmLocked schedules the single-click expiry for the classifier's
// current deadline, replacing any earlier schedule. Nothing is scheduled
// while the button is held; the release resolves the pending click.
func (w *Watcher) rearmLocked() {
	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
	deadline, armed := w.cls.Deadline()
	if !armed || w.cls.Pressed() {
		return
	}
	delay := deadline.Sub(w.clock.Now())
	if delay < 0 {
		delay = 0
	}
	w.pending = w.clock.AfterFunc(delay, func() { w.expire(deadline) })
}

// expire is a no-op when deadline is stale: a later click moved the
// classifier's deadline past it.
func (w *Watcher) expire(deadline time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	events := w.cls.Expire(deadline)
	if _, armed := w.cls.Deadline(); !armed {
		w.pending = nil
	}
	w.dispatchLocked(events)
}

func (w *Watcher) dispatchLocked(events []logic.GestureEvent) {
	for _, g := range events {
		log.Printf("button %s: %s tier=%q duration=%v", w.name, g.Kind, g.Tier, g.Duration)
		if w.handler != nil {
			w.handler(w.name, g)
		}
	}
}
