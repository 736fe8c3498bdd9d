// Package session implements the work/break state machine of the primary
// device with its storno history and session identity.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/study-station/internal/logic"
	"github.com/sweeney/study-station/internal/timer"
)

// State is the controller state.
type State string

const (
	StateIdle     State = "IDLE"
	StateWorking  State = "WORKING"
	StateWorkDone State = "WORK_DONE"
	StateBreak    State = "BREAK"
	// StateDone is transient: the controller passes through it while
	// finalizing a session and immediately returns to Idle.
	StateDone State = "DONE"
)

var (
	// ErrRejected is returned for a command that is not valid in the
	// current state. The state is unchanged.
	ErrRejected = errors.New("command rejected")

	// ErrHistoryInvariant means the storno history disagrees with the state.
	ErrHistoryInvariant = errors.New("history invariant violated")
)

// SessionStore is the persistence the controller needs.
type SessionStore interface {
	CreateSession(ctx context.Context, startedAt time.Time) (string, error)
	FinalizeSession(ctx context.Context, id string, totals logic.Totals, endedAt time.Time) (logic.Report, error)
}

// PhasePublisher forwards phase changes to the shared store. Publish must
// not block.
type PhasePublisher interface {
	Publish(sig logic.SyncSignal)
}

// Notifier dispatches user notifications. Notify must not block.
type Notifier interface {
	Notify(n logic.Notification)
}

// Signals are the audible cues. Implementations must not block.
type Signals interface {
	ShortBeep()
	LongBeep()
}

// Config holds the controller settings.
type Config struct {
	DeviceID      string
	WorkDuration  time.Duration
	BreakDuration time.Duration
	// RemoteBreak makes the controller wait for CompleteBreak instead of
	// running its own break countdown.
	RemoteBreak bool
	// StoreTimeout bounds each synchronous persistence call. Commands and
	// timer completions wait on it, so keep it short.
	StoreTimeout time.Duration
	Resolution   time.Duration
	Keymap       Keymap
}

// Deps are the collaborators of the controller. Nil collaborators are
// replaced with no-ops.
type Deps struct {
	Clock     timer.Clock
	Store     SessionStore
	Publisher PhasePublisher
	Notifier  Notifier
	Signals   Signals
	// Observer is called with a snapshot after every state change, with
	// the controller lock held. It must not call back into the controller.
	Observer func(Snapshot)
}

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	State        State
	SessionID    string
	PauseCount   int
	Remaining    time.Duration
	Totals       logic.Totals
	HistoryDepth int
}

type activeSession struct {
	id        string
	startedAt time.Time
	persisted bool
	totals    logic.Totals
}

// Controller is the session state machine. All commands, gestures and
// timer completions serialize through one mutex.
type Controller struct {
	cfg   Config
	deps  Deps
	timer *timer.Timer

	mu           sync.Mutex
	state        State
	session      *activeSession
	history      History
	phaseStarted time.Time
	// token identifies the countdown currently owned by the controller;
	// a completion carrying any other token is stale.
	token  uint64
	closed bool
}

// New creates a controller in Idle.
func New(cfg Config, deps Deps) *Controller {
	if cfg.Keymap == nil {
		cfg.Keymap = DefaultKeymap()
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = time.Second
	}
	if deps.Clock == nil {
		deps.Clock = timer.RealClock{}
	}
	if deps.Publisher == nil {
		deps.Publisher = nopPublisher{}
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Signals == nil {
		deps.Signals = nopSignals{}
	}
	return &Controller{
		cfg:   cfg,
		deps:  deps,
		timer: timer.New(deps.Clock, cfg.Resolution),
		state: StateIdle,
	}
}

// HandleGesture maps a gesture to a command and runs it. Unbound gestures
// and rejected commands are logged.
func (c *Controller) HandleGesture(button string, g logic.GestureEvent) {
	cmd, ok := c.cfg.Keymap.Lookup(button, g)
	if !ok {
		log.Printf("session: no command for %s %s %s", button, g.Kind, g.Tier)
		return
	}
	if err := c.Execute(cmd); err != nil {
		if errors.Is(err, ErrHistoryInvariant) {
			log.Printf("session: INVARIANT VIOLATION: %v", err)
			return
		}
		log.Printf("session: %v", err)
	}
}

// Execute runs a command by name.
func (c *Controller) Execute(cmd Command) error {
	switch cmd {
	case CmdStartWork:
		return c.StartWork()
	case CmdStartBreak:
		return c.StartBreak()
	case CmdCancel:
		return c.Cancel()
	case CmdEndSession:
		return c.EndSession()
	}
	return fmt.Errorf("unknown command %q: %w", cmd, ErrRejected)
}

// StartWork starts a work countdown, creating a session if none is active.
func (c *Controller) StartWork() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("start work: controller closed: %w", ErrRejected)
	}
	switch c.state {
	case StateIdle, StateWorkDone:
	default:
		return fmt.Errorf("start work while %s: %w", c.state, ErrRejected)
	}

	now := c.deps.Clock.Now()
	if c.session == nil {
		c.session = c.createSession(now)
		c.deps.Notifier.Notify(logic.Notification{
			Kind:      logic.NotifySessionStart,
			Timestamp: now,
			SessionID: c.session.id,
		})
	}

	c.history.Push(ActionRecord{Kind: ActionWorkStart, Timestamp: now})
	c.phaseStarted = now
	c.startCountdown(c.cfg.WorkDuration, c.workComplete)
	c.setState(StateWorking)
	return nil
}

// createSession persists a new session. On failure the session continues
// locally under a generated id.
func (c *Controller) createSession(now time.Time) *activeSession {
	s := &activeSession{startedAt: now}
	if c.deps.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.StoreTimeout)
		id, err := c.deps.Store.CreateSession(ctx, now)
		cancel()
		if err == nil {
			s.id = id
			s.persisted = true
			log.Printf("session: created %s", id)
			return s
		}
		log.Printf("session: create failed, continuing in memory: %v", err)
	}
	s.id = uuid.NewString()
	log.Printf("session: created local session %s", s.id)
	return s
}

// StartBreak starts a break after a completed work phase, or another break
// from Idle while a session is active.
func (c *Controller) StartBreak() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("start break: controller closed: %w", ErrRejected)
	}
	if c.session == nil {
		return fmt.Errorf("start break without session: %w", ErrRejected)
	}
	switch c.state {
	case StateWorkDone, StateIdle:
	default:
		return fmt.Errorf("start break while %s: %w", c.state, ErrRejected)
	}

	now := c.deps.Clock.Now()
	c.history.Push(ActionRecord{Kind: ActionBreakStart, Timestamp: now})
	c.session.totals.PauseCount++
	c.phaseStarted = now
	c.publish(logic.PhaseBreak, now)

	if c.cfg.RemoteBreak {
		c.timer.Reset()
		c.token++
		log.Printf("session: break %d started, waiting for remote completion", c.session.totals.PauseCount)
	} else {
		c.startCountdown(c.cfg.BreakDuration, c.breakComplete)
	}
	c.setState(StateBreak)
	return nil
}

// CompleteBreak completes the running break from a cross-device signal.
// It is a no-op unless the break of the given session and pause is active.
func (c *Controller) CompleteBreak(sessionID string, pause int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateBreak || c.session == nil || c.session.id != sessionID || c.session.totals.PauseCount != pause {
		return false
	}
	c.timer.Cancel()
	c.token++
	c.finishBreakLocked()
	return true
}

// Cancel rolls back the most recent reversible action, whatever the
// current state. A break start rolls back to WorkDone, a work start to
// Idle.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateIdle {
		return fmt.Errorf("cancel while idle: %w", ErrRejected)
	}

	rec, ok := c.history.Pop()
	if !ok || c.session == nil {
		return fmt.Errorf("cancel in %s with empty history: %w", c.state, ErrHistoryInvariant)
	}

	c.timer.Cancel()
	c.token++
	now := c.deps.Clock.Now()

	if rec.Kind == ActionBreakStart {
		c.session.totals.BreakTime -= rec.Credited
		c.session.totals.PauseCount--
		log.Printf("session: storno break start, pause count now %d", c.session.totals.PauseCount)
		c.publish(logic.PhaseWorkReady, now)
		c.setState(StateWorkDone)
		return nil
	}

	c.session.totals.WorkTime -= rec.Credited
	log.Printf("session: storno work start")
	if c.history.Len() == 0 {
		c.publish(logic.PhaseCancelled, now)
		log.Printf("session: discarded %s", c.session.id)
		c.session = nil
	}
	c.setState(StateIdle)
	return nil
}

// EndSession finalizes the active session from any state and returns to Idle.
func (c *Controller) EndSession() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return fmt.Errorf("end session without session: %w", ErrRejected)
	}

	now := c.deps.Clock.Now()
	c.timer.Cancel()
	c.token++

	// A phase cut short still counts for the time actually spent.
	switch c.state {
	case StateWorking:
		c.session.totals.WorkTime += clamp(now.Sub(c.phaseStarted), c.cfg.WorkDuration)
	case StateBreak:
		c.session.totals.BreakTime += clamp(now.Sub(c.phaseStarted), c.cfg.BreakDuration)
	}
	c.setState(StateDone)

	report := c.finalize(now)
	c.publish(logic.PhaseEnded, now)
	c.deps.Notifier.Notify(logic.Notification{
		Kind:       logic.NotifySessionReport,
		Timestamp:  now,
		SessionID:  c.session.id,
		PauseCount: c.session.totals.PauseCount,
		Report:     &report,
	})
	c.deps.Signals.LongBeep()
	log.Printf("session: ended %s work=%v break=%v pauses=%d",
		c.session.id, c.session.totals.WorkTime, c.session.totals.BreakTime, c.session.totals.PauseCount)

	c.session = nil
	c.history.Clear()
	c.setState(StateIdle)
	return nil
}

func (c *Controller) finalize(now time.Time) logic.Report {
	s := c.session
	local := logic.BuildReport(logic.Session{
		ID:        s.id,
		DeviceID:  c.cfg.DeviceID,
		StartedAt: s.startedAt,
		EndedAt:   now,
		Status:    logic.SessionEnded,
		Totals:    s.totals,
	}, nil)
	if !s.persisted || c.deps.Store == nil {
		return local
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.StoreTimeout)
	defer cancel()
	report, err := c.deps.Store.FinalizeSession(ctx, s.id, s.totals, now)
	if err != nil {
		log.Printf("session: finalize %s failed, using local report: %v", s.id, err)
		return local
	}
	return report
}

// startCountdown must be called with the lock held.
func (c *Controller) startCountdown(d time.Duration, done func(token uint64)) {
	c.token++
	token := c.token
	c.timer.Start(d, nil, func() {
		// The timer holds its own lock here; take ours on another goroutine.
		go done(token)
	})
}

func (c *Controller) workComplete(token uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if token != c.token || c.state != StateWorking {
		log.Printf("session: stale work completion ignored")
		return
	}
	c.session.totals.WorkTime += c.cfg.WorkDuration
	if top := c.history.Top(); top != nil && top.Kind == ActionWorkStart {
		top.Credited = c.cfg.WorkDuration
	}
	now := c.deps.Clock.Now()
	c.deps.Signals.LongBeep()
	c.deps.Notifier.Notify(logic.Notification{
		Kind:       logic.NotifyWorkFinished,
		Timestamp:  now,
		SessionID:  c.session.id,
		PauseCount: c.session.totals.PauseCount,
	})
	c.setState(StateWorkDone)
}

func (c *Controller) breakComplete(token uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if token != c.token || c.state != StateBreak {
		log.Printf("session: stale break completion ignored")
		return
	}
	c.finishBreakLocked()
}

func (c *Controller) finishBreakLocked() {
	c.session.totals.BreakTime += c.cfg.BreakDuration
	if top := c.history.Top(); top != nil && top.Kind == ActionBreakStart {
		top.Credited = c.cfg.BreakDuration
	}
	now := c.deps.Clock.Now()
	c.publish(logic.PhaseWorkReady, now)
	c.deps.Signals.ShortBeep()
	c.deps.Notifier.Notify(logic.Notification{
		Kind:       logic.NotifyBreakFinished,
		Timestamp:  now,
		SessionID:  c.session.id,
		PauseCount: c.session.totals.PauseCount,
	})
	c.setState(StateIdle)
}

func (c *Controller) publish(phase logic.Phase, now time.Time) {
	c.deps.Publisher.Publish(logic.SyncSignal{
		SessionID:  c.session.id,
		Phase:      phase,
		PauseCount: c.session.totals.PauseCount,
		UpdatedAt:  now,
	})
}

func (c *Controller) setState(s State) {
	if c.state != s {
		log.Printf("session: %s -> %s", c.state, s)
	}
	c.state = s
	if c.deps.Observer != nil {
		c.deps.Observer(c.snapshotLocked())
	}
}

// Snapshot returns the current controller view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{State: c.state, HistoryDepth: c.history.Len()}
	if c.session != nil {
		snap.SessionID = c.session.id
		snap.PauseCount = c.session.totals.PauseCount
		snap.Totals = c.session.totals
	}
	if c.state == StateWorking || c.state == StateBreak {
		snap.Remaining = c.timer.Remaining()
	}
	return snap
}

// ActiveSessionID returns the id of the active session, or "".
func (c *Controller) ActiveSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.id
}

// Close stops any countdown. The active session is left unfinalized.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.timer.Cancel()
	c.token++
}

func clamp(d, limit time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > limit {
		return limit
	}
	return d
}

type nopPublisher struct{}

func (nopPublisher) Publish(logic.SyncSignal) {}

type nopNotifier struct{}

func (nopNotifier) Notify(logic.Notification) {}

type nopSignals struct{}

func (nopSignals) ShortBeep() {}
func (nopSignals) LongBeep()  {}
