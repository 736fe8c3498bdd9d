package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/study-station/internal/bridge"
	"github.com/sweeney/study-station/internal/config"
	"github.com/sweeney/study-station/internal/gpio"
	"github.com/sweeney/study-station/internal/logic"
	"github.com/sweeney/study-station/internal/mqtt"
	"github.com/sweeney/study-station/internal/session"
	"github.com/sweeney/study-station/internal/status"
	"github.com/sweeney/study-station/internal/store"
	"github.com/sweeney/study-station/internal/timer"
	"github.com/sweeney/study-station/internal/web"
)

// --- runLoop tests ---

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from runLoop's goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

var t0 = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

type recordSignals struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordSignals) record(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recordSignals) ActivateAlarm()   { r.record("activate") }
func (r *recordSignals) DeactivateAlarm() { r.record("deactivate") }
func (r *recordSignals) AlarmPattern()    { r.record("pattern") }

func (r *recordSignals) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type recordNotifier struct {
	mu  sync.Mutex
	got []logic.Notification
}

func (r *recordNotifier) Notify(n logic.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

func (r *recordNotifier) Kinds() []logic.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []logic.NotificationKind
	for _, n := range r.got {
		out = append(out, n.Kind)
	}
	return out
}

type loopHarness struct {
	reader   *gpio.FakeLevelReader
	signals  *recordSignals
	notifier *recordNotifier
	pub      *mqtt.FakePublisher
	tracker  *status.Tracker
	store    *store.Memory
	session  string
	air      *airCheck
	life     *lifecycle
}

func testAlarmConfig() logic.AlarmConfig {
	return logic.AlarmConfig{
		Warning:          600,
		Critical:         800,
		WarningCooldown:  5 * time.Minute,
		CriticalCooldown: 5 * time.Minute,
		MaxFailures:      3,
	}
}

func newHarness(t *testing.T, heartbeat time.Duration, logEvery int, samples ...float64) *loopHarness {
	t.Helper()
	monitor, err := logic.NewAlarmMonitor(testAlarmConfig())
	if err != nil {
		t.Fatal(err)
	}
	h := &loopHarness{
		reader:   gpio.NewFakeLevelReader(samples...),
		signals:  &recordSignals{},
		notifier: &recordNotifier{},
		pub:      mqtt.NewFakePublisher(),
		tracker:  status.NewTracker(t0, "primary", "desk", status.Config{Warning: 600, Critical: 800}),
		store:    store.NewMemory("desk", time.Hour),
	}
	h.air = &airCheck{
		reader:    h.reader,
		monitor:   monitor,
		signals:   h.signals,
		notifier:  h.notifier,
		sink:      h.store,
		sessionID: func() string { return h.session },
		logEvery:  logEvery,
	}
	h.life = &lifecycle{
		publisher:  h.pub,
		mqttStatus: h.pub,
		tracker:    h.tracker,
		heartbeat:  heartbeat,
	}
	return h
}

func (h *loopHarness) startSession(t *testing.T) {
	t.Helper()
	id, err := h.store.CreateSession(context.Background(), t0)
	if err != nil {
		t.Fatal(err)
	}
	h.session = id
}

// run drives runLoop for nTicks ticks and then delivers s.
func (h *loopHarness) run(t *testing.T, step time.Duration, nTicks int, s os.Signal) {
	t.Helper()
	tick := make(chan time.Time)
	reload := make(chan logic.AlarmConfig)
	sig := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(h.air, h.life, fakeClock(t0, step), tick, reload, sig)
	}()
	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- s
	if err := <-errCh; err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
}

func systemEvents(pub *mqtt.FakePublisher) []string {
	var out []string
	for _, e := range pub.SystemEvents() {
		out = append(out, e.Event)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRunLoopStartupAndShutdown(t *testing.T) {
	h := newHarness(t, 0, 30, 450)
	h.run(t, time.Second, 0, syscall.SIGTERM)

	events := h.pub.SystemEvents()
	if got := systemEvents(h.pub); !equalStrings(got, []string{"STARTUP", "SHUTDOWN"}) {
		t.Fatalf("system events: got %v", got)
	}
	if !events[0].Retained || !events[1].Retained {
		t.Error("lifecycle events should be retained")
	}
	if events[1].Reason != "SIGTERM" {
		t.Errorf("shutdown reason: got %q, want SIGTERM", events[1].Reason)
	}
	if len(events[1].RawPayload) == 0 {
		t.Error("shutdown event should carry the status snapshot")
	}
}

func TestRunLoopShutdownSIGINT(t *testing.T) {
	h := newHarness(t, 0, 30, 450)
	h.run(t, time.Second, 2, syscall.SIGINT)

	events := h.pub.SystemEvents()
	last := events[len(events)-1]
	if last.Event != "SHUTDOWN" || last.Reason != "SIGINT" {
		t.Errorf("got %s/%s, want SHUTDOWN/SIGINT", last.Event, last.Reason)
	}
}

func TestRunLoopWarningThenClear(t *testing.T) {
	h := newHarness(t, 0, 30, 500, 650, 650, 500)
	h.run(t, time.Second, 4, syscall.SIGTERM)

	if got := h.signals.Calls(); !equalStrings(got, []string{"activate", "deactivate"}) {
		t.Errorf("signals: got %v", got)
	}
	want := []logic.NotificationKind{logic.NotifyAirWarning, logic.NotifyAirClear}
	got := h.notifier.Kinds()
	if len(got) != len(want) {
		t.Fatalf("notifications: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification %d: got %s, want %s", i, got[i], want[i])
		}
	}

	air := h.tracker.Snapshot().Air
	if air.Level != logic.AlarmOk || air.LastValue != 500 {
		t.Errorf("tracker air: got %s/%v", air.Level, air.LastValue)
	}
}

func TestRunLoopCriticalPlaysPattern(t *testing.T) {
	h := newHarness(t, 0, 30, 900)
	h.run(t, time.Second, 1, syscall.SIGTERM)

	if got := h.signals.Calls(); !equalStrings(got, []string{"activate", "pattern"}) {
		t.Errorf("signals: got %v", got)
	}
	if got := h.notifier.Kinds(); len(got) != 1 || got[0] != logic.NotifyAirCritical {
		t.Errorf("notifications: got %v", got)
	}
	if h.notifier.got[0].Level != 900 {
		t.Errorf("notification level: got %v, want 900", h.notifier.got[0].Level)
	}
}

func TestRunLoopWarningNeverPlaysPattern(t *testing.T) {
	h := newHarness(t, 0, 30, 700, 700, 700)
	h.run(t, time.Second, 3, syscall.SIGTERM)

	for _, c := range h.signals.Calls() {
		if c == "pattern" {
			t.Fatal("audible pattern played on warning")
		}
	}
}

func TestRunLoopSensorDegraded(t *testing.T) {
	h := newHarness(t, 0, 30, 450)
	h.reader.SetError(errors.New("i2c timeout"))
	h.run(t, time.Second, 4, syscall.SIGTERM)

	got := h.notifier.Kinds()
	if len(got) != 1 || got[0] != logic.NotifySensorDegraded {
		t.Errorf("notifications: got %v, want one sensor_degraded", got)
	}
	if !h.tracker.Snapshot().Air.Degraded {
		t.Error("tracker should report a degraded sensor")
	}
	if last := systemEvents(h.pub); last[len(last)-1] != "SHUTDOWN" {
		t.Error("expected SHUTDOWN after sensor errors")
	}
}

func TestRunLoopLogsEveryNthReading(t *testing.T) {
	h := newHarness(t, 0, 3, 500)
	h.startSession(t)
	h.run(t, time.Second, 7, syscall.SIGTERM)

	ms, err := h.store.Measurements(context.Background(), h.session)
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 2 {
		t.Fatalf("measurements: got %d, want 2", len(ms))
	}
	for _, m := range ms {
		if m.Kind != logic.KindCO2 || m.Value != 500 || m.Alarm {
			t.Errorf("unexpected measurement %+v", m)
		}
	}
}

func TestRunLoopLogsEveryAlarmReading(t *testing.T) {
	h := newHarness(t, 0, 30, 500, 700, 700, 500)
	h.startSession(t)
	h.run(t, time.Second, 4, syscall.SIGTERM)

	ms, err := h.store.Measurements(context.Background(), h.session)
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 2 {
		t.Fatalf("measurements: got %d, want 2", len(ms))
	}
	for _, m := range ms {
		if !m.Alarm || m.Value != 700 {
			t.Errorf("unexpected measurement %+v", m)
		}
	}
}

func TestRunLoopWithoutSession(t *testing.T) {
	h := newHarness(t, 0, 1, 700)
	h.run(t, time.Second, 3, syscall.SIGTERM)
	if got := h.notifier.Kinds(); len(got) != 1 {
		t.Errorf("notifications: got %v", got)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	// Clock calls: startup t0, ticks at +5m, +10m, +15m, +20m.
	// The heartbeat fires at +15m only.
	h := newHarness(t, 15*time.Minute, 30, 450)
	h.run(t, 5*time.Minute, 4, syscall.SIGTERM)

	got := systemEvents(h.pub)
	if !equalStrings(got, []string{"STARTUP", "HEARTBEAT", "SHUTDOWN"}) {
		t.Fatalf("system events: got %v", got)
	}
	hb := h.pub.SystemEvents()[1]
	if hb.Retained {
		t.Error("heartbeat should not be retained")
	}
	if !hb.Timestamp.Equal(t0.Add(15 * time.Minute)) {
		t.Errorf("heartbeat timestamp: got %v", hb.Timestamp)
	}
}

func TestRunLoopHeartbeatDisabled(t *testing.T) {
	h := newHarness(t, 0, 30, 450)
	h.run(t, time.Hour, 5, syscall.SIGTERM)

	for _, e := range systemEvents(h.pub) {
		if e == "HEARTBEAT" {
			t.Fatal("heartbeat published with interval 0")
		}
	}
}

func TestRunLoopSystemPublishError(t *testing.T) {
	h := newHarness(t, 0, 30, 450)
	h.pub.PublishSystemError = errors.New("broker unavailable")
	h.run(t, time.Second, 2, syscall.SIGTERM)

	if len(h.pub.SystemEvents()) != 0 {
		t.Error("no system events should be recorded when publishing fails")
	}
}

func TestRunLoopReloadThresholds(t *testing.T) {
	h := newHarness(t, 0, 30, 500)

	tick := make(chan time.Time)
	reload := make(chan logic.AlarmConfig)
	sig := make(chan os.Signal, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(h.air, h.life, fakeClock(t0, time.Second), tick, reload, sig)
	}()

	tick <- time.Time{}
	cfg := testAlarmConfig()
	cfg.Warning = 400
	reload <- cfg
	reload <- logic.AlarmConfig{Warning: 900, Critical: 100} // invalid, ignored
	tick <- time.Time{}
	sig <- syscall.SIGTERM
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}

	if got := h.notifier.Kinds(); len(got) != 1 || got[0] != logic.NotifyAirWarning {
		t.Errorf("notifications after reload: got %v", got)
	}
	if c := h.tracker.Snapshot().Config; c.Warning != 400 || c.Critical != 800 {
		t.Errorf("tracker thresholds: got %v/%v", c.Warning, c.Critical)
	}
}

// --- secondary loop ---

type fixedBreak struct {
	state bridge.ConsumerState
}

func (f fixedBreak) State() bridge.ConsumerState { return f.state }

func TestRunSecondaryLoopMirrorsBreak(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	tracker := status.NewTracker(t0, "secondary", "band", status.Config{})
	life := &lifecycle{publisher: pub, mqttStatus: pub, tracker: tracker}
	src := fixedBreak{bridge.ConsumerState{
		Active:    true,
		SessionID: "s1",
		Pause:     2,
		Remaining: 90 * time.Second,
		Breaks:    1,
		LastPhase: logic.PhaseBreak,
	}}

	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runSecondaryLoop(src, life, fakeClock(t0, time.Second), tick, sig)
	}()
	tick <- time.Time{}
	sig <- syscall.SIGTERM
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}

	b := tracker.Snapshot().Break
	if !b.Active || b.SessionID != "s1" || b.Pause != 2 || b.Remaining != 90*time.Second || b.LastPhase != "break" {
		t.Errorf("break view: got %+v", b)
	}
	if got := systemEvents(pub); !equalStrings(got, []string{"STARTUP", "SHUTDOWN"}) {
		t.Errorf("system events: got %v", got)
	}
}

// --- wiring helpers ---

func TestButtonSetPress(t *testing.T) {
	clock := timer.NewFakeClock(t0)
	hw := gpio.NewFakeHardware()
	cfg := config.Defaults()

	var mu sync.Mutex
	var got []string
	buttons, closeAll, err := openButtons(hw, cfg, clock, func(name string, g logic.GestureEvent) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, name+":"+string(g.Kind))
	})
	if err != nil {
		t.Fatal(err)
	}
	defer closeAll()

	if err := buttons.Press("snooze", time.Second); !errors.Is(err, web.ErrUnknownButton) {
		t.Errorf("unknown button: got %v", err)
	}
	if err := buttons.Press(session.ButtonStart, 100*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "start:SHORT_PRESS" {
		t.Errorf("gestures: got %v", got)
	}
}

func TestOpenButtonsWiresEdges(t *testing.T) {
	clock := timer.NewFakeClock(t0)
	hw := gpio.NewFakeHardware()
	cfg := config.Defaults()

	var got []string
	_, closeAll, err := openButtons(hw, cfg, clock, func(name string, g logic.GestureEvent) {
		got = append(got, name+":"+string(g.Kind)+":"+g.Tier)
	})
	if err != nil {
		t.Fatal(err)
	}

	line := hw.Button(session.ButtonBreak)
	if line == nil {
		t.Fatal("break button line not opened")
	}
	line.Edge(logic.EdgeDown, t0)
	line.Edge(logic.EdgeUp, t0.Add(4*time.Second))
	closeAll()

	if len(got) != 1 || got[0] != "break:LONG_PRESS:"+session.TierCancel {
		t.Errorf("gestures: got %v", got)
	}
}

func TestSessionView(t *testing.T) {
	v := sessionView(session.Snapshot{
		State:        session.StateBreak,
		SessionID:    "abc",
		PauseCount:   2,
		Remaining:    time.Minute,
		Totals:       logic.Totals{WorkTime: time.Hour, BreakTime: 10 * time.Minute, PauseCount: 2},
		HistoryDepth: 4,
	})
	want := status.SessionView{
		State:        "BREAK",
		SessionID:    "abc",
		PauseCount:   2,
		Remaining:    time.Minute,
		WorkTime:     time.Hour,
		BreakTime:    10 * time.Minute,
		HistoryDepth: 4,
	}
	if v != want {
		t.Errorf("got %+v, want %+v", v, want)
	}
}

func TestOpenStoreWithoutPathUsesMemory(t *testing.T) {
	cfg := config.Defaults()
	cfg.Store.Path = ""
	st := openStore(context.Background(), cfg)
	defer st.Close()
	if _, ok := st.(*store.Memory); !ok {
		t.Errorf("got %T, want *store.Memory", st)
	}
}

func TestOpenMQTTWithoutBroker(t *testing.T) {
	cfg := config.Defaults()
	cfg.MQTT.Broker = ""
	pub, conn := openMQTT(cfg)
	if _, ok := pub.(mqtt.Discard); !ok {
		t.Errorf("got %T, want mqtt.Discard", pub)
	}
	if conn.IsConnected() {
		t.Error("discard publisher should report disconnected")
	}
}

// --- commands ---

func TestInitConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "study.yaml")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"init-config", "--config", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("init-config: %v", err)
	}
	if out.String() != "wrote "+path+"\n" {
		t.Errorf("output: got %q", out.String())
	}

	cfg, err := config.Load(config.New(), path)
	if err != nil {
		t.Fatalf("load written config: %v", err)
	}
	if cfg.WorkDuration != 30*time.Minute || cfg.Air.Critical != 800 {
		t.Errorf("written config: got work=%v critical=%v", cfg.WorkDuration, cfg.Air.Critical)
	}

	root = newRootCmd()
	root.SetArgs([]string{"init-config", "--config", path})
	if err := root.Execute(); err == nil {
		t.Error("init-config should refuse to overwrite without --force")
	}
}

func TestStateCommandReadsSignal(t *testing.T) {
	mem := store.NewMemory("desk", time.Hour)
	err := mem.UpdatePhase(context.Background(), logic.SyncSignal{
		SessionID:  "s1",
		Phase:      logic.PhaseBreak,
		PauseCount: 1,
		UpdatedAt:  t0,
	})
	if err != nil {
		t.Fatal(err)
	}
	srv := web.New("127.0.0.1:0", status.NewTracker(t0, "primary", "desk", status.Config{}), web.Options{Store: mem})
	ts := newTestServer(t, srv)

	cfg := config.Defaults()
	cfg.GPIO.Simulate = true
	cfg.Sync.StoreURL = ts

	var out bytes.Buffer
	if err := printState(context.Background(), &out, cfg); err != nil {
		t.Fatal(err)
	}
	want := "signal: phase=break session=s1 pause=1 updated=2026-01-01T09:00:00Z\n"
	if got := out.String(); !bytes.HasSuffix([]byte(got), []byte(want)) {
		t.Errorf("output: got %q, want suffix %q", got, want)
	}
}

func newTestServer(t *testing.T, srv *web.Server) string {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}
