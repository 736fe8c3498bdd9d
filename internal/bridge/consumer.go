package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/study-station/internal/logic"
	"github.com/sweeney/study-station/internal/store"
	"github.com/sweeney/study-station/internal/timer"
)

// Activity is the secondary's break activity (step tracking).
type Activity interface {
	Start(sessionID string, pause int)
	// Stop ends the activity and returns the steps counted.
	Stop() int
	// Discard ends the activity without keeping its result.
	Discard()
}

// Notifier dispatches user notifications.
type Notifier interface {
	Notify(n logic.Notification)
}

// ConsumerConfig holds the secondary's break settings.
type ConsumerConfig struct {
	PollInterval    time.Duration
	BreakDuration   time.Duration
	Resolution      time.Duration
	CaloriesPerStep float64
	MetersPerStep   float64
	StoreTimeout    time.Duration
}

type breakKey struct {
	sessionID string
	pause     int
}

// ConsumerState is a snapshot for the status page.
type ConsumerState struct {
	Marker    string
	Active    bool
	SessionID string
	Pause     int
	Remaining time.Duration
	Breaks    int
	LastPhase logic.Phase
}

// Consumer polls the signal store and runs one local break per Break
// signal. The dedup marker holds the session id of the break being
// consumed, so repeated polls of the same record trigger nothing.
type Consumer struct {
	cfg      ConsumerConfig
	store    store.SignalStore
	clock    timer.Clock
	activity Activity
	notifier Notifier
	timer    *timer.Timer

	mu     sync.Mutex
	marker string
	active *breakKey
	// lastCompleted stops a Break record left in place by a failed
	// WorkReady write from starting the same break again.
	lastCompleted breakKey
	token         uint64
	breaks        int
	lastPhase     logic.Phase
}

// NewConsumer creates a consumer.
func NewConsumer(cfg ConsumerConfig, s store.SignalStore, clock timer.Clock, activity Activity, notifier Notifier) *Consumer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	return &Consumer{
		cfg:      cfg,
		store:    s,
		clock:    clock,
		activity: activity,
		notifier: notifier,
		timer:    timer.New(clock, cfg.Resolution),
	}
}

// Run polls until ctx is done. A break still running at shutdown is discarded.
func (c *Consumer) Run(ctx context.Context) error {
	ticker := c.clock.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	log.Printf("bridge: consumer polling every %v", c.cfg.PollInterval)
	for {
		if err := c.Poll(ctx); err != nil && ctx.Err() == nil {
			log.Printf("bridge: poll: %v", err)
		}
		select {
		case <-ctx.Done():
			c.abort("shutdown")
			return ctx.Err()
		case <-ticker.C():
		}
	}
}

// Poll reads the latest signal once and reacts to it.
func (c *Consumer) Poll(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, c.cfg.StoreTimeout)
	sig, err := c.store.LatestSignal(pctx)
	cancel()
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("latest signal: %w", err)
	}
	c.handle(sig)
	return nil
}

func (c *Consumer) handle(sig logic.SyncSignal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPhase = sig.Phase

	switch sig.Phase {
	case logic.PhaseBreak:
		key := breakKey{sig.SessionID, sig.PauseCount}
		if c.active != nil && *c.active != key {
			c.abortLocked("superseded by pause %d of %s", key.pause, key.sessionID)
		}
		if sig.SessionID == c.marker || key == c.lastCompleted {
			return
		}
		c.startLocked(key)

	case logic.PhaseEnded, logic.PhaseCancelled:
		if c.active != nil {
			c.abortLocked("session %s", sig.Phase)
		}

	case logic.PhaseWorkReady:
		if c.active == nil || c.active.sessionID != sig.SessionID {
			return
		}
		if sig.PauseCount < c.active.pause {
			c.abortLocked("break %d revoked", c.active.pause)
		}
	}
}

func (c *Consumer) startLocked(key breakKey) {
	c.marker = key.sessionID
	c.active = &key
	c.token++
	token := c.token
	c.breaks++

	log.Printf("bridge: break %d of %s started", key.pause, key.sessionID)
	c.activity.Start(key.sessionID, key.pause)
	c.timer.Start(c.cfg.BreakDuration, nil, func() {
		go c.complete(token)
	})
}

// abort stops the running break and discards its stats.
func (c *Consumer) abort(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		c.abortLocked("%s", reason)
	}
}

func (c *Consumer) abortLocked(format string, args ...any) {
	log.Printf("bridge: break %d of %s aborted: %s", c.active.pause, c.active.sessionID, fmt.Sprintf(format, args...))
	c.timer.Cancel()
	c.token++
	c.activity.Discard()
	c.active = nil
	c.marker = ""
}

func (c *Consumer) complete(token uint64) {
	c.mu.Lock()
	if token != c.token || c.active == nil {
		c.mu.Unlock()
		return
	}
	key := *c.active
	steps := c.activity.Stop()
	c.active = nil
	c.lastCompleted = key
	c.mu.Unlock()

	now := c.clock.Now()
	stats := logic.DeriveBreakStats(key.sessionID, key.pause, steps, c.cfg.CaloriesPerStep, c.cfg.MetersPerStep)
	log.Printf("bridge: break %d of %s done: steps=%d calories=%.0f distance=%.0fm",
		key.pause, key.sessionID, stats.Steps, stats.Calories, stats.Distance)

	c.persist(stats, now)
	c.notifier.Notify(logic.Notification{
		Kind:       logic.NotifyBreakStats,
		Timestamp:  now,
		SessionID:  key.sessionID,
		PauseCount: key.pause,
		BreakStats: &stats,
	})

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.StoreTimeout)
	err := c.store.UpdatePhase(ctx, logic.SyncSignal{
		SessionID:  key.sessionID,
		Phase:      logic.PhaseWorkReady,
		PauseCount: key.pause,
		UpdatedAt:  now,
	})
	cancel()
	if err != nil {
		log.Printf("bridge: publish work_ready: %v", err)
	}

	c.mu.Lock()
	if c.marker == key.sessionID && c.active == nil {
		c.marker = ""
	}
	c.mu.Unlock()
}

func (c *Consumer) persist(stats logic.BreakStats, now time.Time) {
	values := []struct {
		kind  string
		value float64
	}{
		{logic.KindSteps, float64(stats.Steps)},
		{logic.KindCalories, stats.Calories},
		{logic.KindDistance, stats.Distance},
	}
	for _, v := range values {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.StoreTimeout)
		err := c.store.AppendMeasurement(ctx, logic.Measurement{
			SessionID:   stats.SessionID,
			Kind:        v.kind,
			Value:       v.value,
			PauseNumber: stats.PauseNumber,
			Time:        now,
		})
		cancel()
		if err != nil {
			log.Printf("bridge: store %s: %v", v.kind, err)
		}
	}
}

// State returns a snapshot of the consumer.
func (c *Consumer) State() ConsumerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := ConsumerState{Marker: c.marker, Breaks: c.breaks, LastPhase: c.lastPhase}
	if c.active != nil {
		st.Active = true
		st.SessionID = c.active.sessionID
		st.Pause = c.active.pause
		st.Remaining = c.timer.Remaining()
	}
	return st
}
