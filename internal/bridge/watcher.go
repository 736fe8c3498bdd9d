package bridge

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sweeney/study-station/internal/logic"
	"github.com/sweeney/study-station/internal/store"
	"github.com/sweeney/study-station/internal/timer"
)

// SignalReader reads the latest signal.
type SignalReader interface {
	LatestSignal(ctx context.Context) (logic.SyncSignal, error)
}

// BreakCompleter is implemented by the session controller.
type BreakCompleter interface {
	CompleteBreak(sessionID string, pause int) bool
}

// Watcher runs on the primary in remote break mode. It completes the local
// break when the secondary publishes WorkReady for the active pause.
type Watcher struct {
	r        SignalReader
	target   BreakCompleter
	clock    timer.Clock
	interval time.Duration
}

// NewWatcher creates a watcher polling at interval.
func NewWatcher(r SignalReader, target BreakCompleter, clock timer.Clock, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = time.Second
	}
	return &Watcher{r: r, target: target, clock: clock, interval: interval}
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
		}
		w.Check(ctx)
	}
}

// Check reads the latest signal once and reports whether it completed a break.
func (w *Watcher) Check(ctx context.Context) bool {
	sig, err := w.r.LatestSignal(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	if err != nil {
		log.Printf("bridge: watcher: %v", err)
		return false
	}
	if sig.Phase != logic.PhaseWorkReady {
		return false
	}
	if w.target.CompleteBreak(sig.SessionID, sig.PauseCount) {
		log.Printf("bridge: remote break %d of %s completed", sig.PauseCount, sig.SessionID)
		return true
	}
	return false
}
