package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/study-station/internal/logic"
)

var ts = time.Date(2026, 3, 1, 10, 30, 0, 0, time.FixedZone("CET", 3600))

func TestTopics(t *testing.T) {
	if got := TopicEvents("desk"); got != "study/desk/events" {
		t.Errorf("events topic: got %s", got)
	}
	if got := TopicSystem("desk"); got != "study/desk/system" {
		t.Errorf("system topic: got %s", got)
	}
}

func TestFormatPayloadAirWarning(t *testing.T) {
	payload, err := FormatPayload("desk", logic.Notification{
		Kind:      logic.NotifyAirWarning,
		Timestamp: ts,
		SessionID: "s1",
		Level:     850,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `{"device":"desk","timestamp":"2026-03-01T09:30:00Z","kind":"air_warning","session_id":"s1","level":850}`
	if string(payload) != want {
		t.Errorf("payload mismatch\n got: %s\nwant: %s", payload, want)
	}
}

func TestFormatPayloadSessionReport(t *testing.T) {
	report := &logic.Report{
		Session: logic.Session{
			ID:     "s1",
			Status: logic.SessionEnded,
			Totals: logic.Totals{WorkTime: 50 * time.Minute, BreakTime: 10 * time.Minute, PauseCount: 2},
		},
		Air:      logic.AirStats{Count: 4, Avg: 700, Min: 500, Max: 900, AlarmPeriods: 1},
		Movement: logic.MovementStats{Breaks: 2, Steps: 200, Calories: 10, Distance: 150},
	}
	payload, err := FormatPayload("desk", logic.Notification{
		Kind:      logic.NotifySessionReport,
		Timestamp: ts,
		SessionID: "s1",
		Report:    report,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got Payload
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Report == nil {
		t.Fatal("report missing")
	}
	if got.Report.WorkSeconds != 3000 || got.Report.BreakSeconds != 600 || got.Report.PauseCount != 2 {
		t.Errorf("unexpected totals: %+v", got.Report)
	}
	if got.Report.Status != "ended" {
		t.Errorf("status: got %s", got.Report.Status)
	}
	if got.Report.Air.AlarmPeriods != 1 || got.Report.Movement.Steps != 200 {
		t.Errorf("unexpected stats: %+v", got.Report)
	}
	if got.Break != nil {
		t.Error("break payload should be omitted")
	}
}

func TestFormatPayloadBreakStats(t *testing.T) {
	payload, err := FormatPayload("hall", logic.Notification{
		Kind:       logic.NotifyBreakStats,
		Timestamp:  ts,
		SessionID:  "s1",
		BreakStats: &logic.BreakStats{SessionID: "s1", PauseNumber: 1, Steps: 100, Calories: 5, Distance: 75},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `{"device":"hall","timestamp":"2026-03-01T09:30:00Z","kind":"break_stats","session_id":"s1",` +
		`"break":{"pause_number":1,"steps":100,"calories":5,"distance_m":75}}`
	if string(payload) != want {
		t.Errorf("payload mismatch\n got: %s\nwant: %s", payload, want)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{Timestamp: ts, Event: "SHUTDOWN", Reason: "SIGTERM"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"system":{"timestamp":"2026-03-01T09:30:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != want {
		t.Errorf("payload mismatch\n got: %s\nwant: %s", payload, want)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":"ok"}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "HEARTBEAT", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload, got %s", payload)
	}
}

func TestWillPayloadFormat(t *testing.T) {
	var got SystemPayload
	if err := json.Unmarshal(WillPayload(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.System.Event != "OFFLINE" || got.System.Reason != "UNEXPECTED_DISCONNECT" {
		t.Errorf("unexpected will: %+v", got.System)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()
	f.Publish(logic.Notification{Kind: logic.NotifySessionStart, Timestamp: ts, SessionID: "s1"})
	f.PublishSystem(SystemEvent{Timestamp: ts, Event: "STARTUP"})

	if kinds := f.Kinds(); len(kinds) != 1 || kinds[0] != logic.NotifySessionStart {
		t.Errorf("unexpected kinds: %v", kinds)
	}
	if len(f.Payloads()) != 1 || len(f.SystemPayloads()) != 1 {
		t.Error("payloads not recorded")
	}

	f.SetError(errors.New("broker down"))
	if err := f.Publish(logic.Notification{Kind: logic.NotifyAirClear}); err == nil {
		t.Error("expected error")
	}
	if len(f.Notifications()) != 1 {
		t.Error("failed publish must not be recorded")
	}

	f.Reset()
	if len(f.Notifications()) != 0 || len(f.SystemEvents()) != 0 || f.Closed() {
		t.Error("reset did not clear state")
	}
}

// slowPublisher blocks every publish until released.
type slowPublisher struct {
	FakePublisher
	release chan struct{}
	once    sync.Once
}

func (s *slowPublisher) Publish(n logic.Notification) error {
	<-s.release
	return s.FakePublisher.Publish(n)
}

func (s *slowPublisher) open() { s.once.Do(func() { close(s.release) }) }

func TestNotifierPreservesOrder(t *testing.T) {
	f := NewFakePublisher()
	n := NewNotifier(f, 8)

	kinds := []logic.NotificationKind{logic.NotifySessionStart, logic.NotifyWorkFinished, logic.NotifyBreakFinished}
	for _, k := range kinds {
		n.Notify(logic.Notification{Kind: k, Timestamp: ts})
	}
	if err := n.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	got := f.Kinds()
	if len(got) != len(kinds) {
		t.Fatalf("expected %v, got %v", kinds, got)
	}
	for i := range kinds {
		if got[i] != kinds[i] {
			t.Errorf("item %d: expected %s, got %s", i, kinds[i], got[i])
		}
	}
}

func TestNotifierDoesNotBlock(t *testing.T) {
	p := &slowPublisher{FakePublisher: FakePublisher{DeviceID: "desk"}, release: make(chan struct{})}
	n := NewNotifier(p, 2)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			n.Notify(logic.Notification{Kind: logic.NotifyAirWarning, Timestamp: ts})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a slow publisher")
	}

	p.open()
	n.Close(context.Background())
	// one in flight plus two queued
	if got := len(p.Notifications()); got > 3 {
		t.Errorf("expected at most 3 published, got %d", got)
	}
}

func TestNotifierCountsFailures(t *testing.T) {
	f := NewFakePublisher()
	f.SetError(errors.New("broker down"))
	n := NewNotifier(f, 4)
	n.Notify(logic.Notification{Kind: logic.NotifyAirClear})
	n.Notify(logic.Notification{Kind: logic.NotifyAirClear})
	n.Close(context.Background())

	if got := n.Failures(); got != 2 {
		t.Errorf("expected 2 failures, got %d", got)
	}
}

func TestNotifierCloseHonoursContext(t *testing.T) {
	p := &slowPublisher{FakePublisher: FakePublisher{DeviceID: "desk"}, release: make(chan struct{})}
	n := NewNotifier(p, 2)
	n.Notify(logic.Notification{Kind: logic.NotifyAirWarning})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := n.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	p.open()

	n.Notify(logic.Notification{Kind: logic.NotifyAirClear})
}
