package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/study-station/internal/logic"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestNewTracker(t *testing.T) {
	cfg := Config{WorkDuration: 25 * time.Minute, Broker: "tcp://localhost:1883", HTTPAddr: ":8080"}
	tr := NewTracker(start, "primary", "desk", cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Role != "primary" || snap.DeviceID != "desk" {
		t.Errorf("identity: got %q/%q", snap.Role, snap.DeviceID)
	}
	if snap.Config.HTTPAddr != ":8080" {
		t.Errorf("Config.HTTPAddr: got %q, want %q", snap.Config.HTTPAddr, ":8080")
	}
	if snap.AirChecked {
		t.Error("expected AirChecked=false initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestUpdateSessionAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), "primary", "desk", Config{})

	tr.UpdateSession(SessionView{State: "WORKING", SessionID: "s1", Remaining: 90 * time.Second, HistoryDepth: 1})

	snap := tr.Snapshot()
	if snap.Session.State != "WORKING" || snap.Session.SessionID != "s1" {
		t.Errorf("session: got %+v", snap.Session)
	}
	if snap.Session.Remaining != 90*time.Second {
		t.Errorf("Remaining: got %v", snap.Session.Remaining)
	}
}

func TestUpdateAir(t *testing.T) {
	tr := NewTracker(time.Now(), "primary", "desk", Config{Warning: 800, Critical: 1200})

	tr.UpdateAir(logic.AlarmState{Level: logic.AlarmWarning, LastValue: 850, HasValue: true})
	tr.SetThresholds(900, 1400)

	snap := tr.Snapshot()
	if !snap.AirChecked || snap.Air.Level != logic.AlarmWarning || snap.Air.LastValue != 850 {
		t.Errorf("air: got %+v", snap.Air)
	}
	if snap.Config.Warning != 900 || snap.Config.Critical != 1400 {
		t.Errorf("thresholds: got %v/%v", snap.Config.Warning, snap.Config.Critical)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), "primary", "desk", Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSetNetwork(t *testing.T) {
	tr := NewTracker(time.Now(), "secondary", "hall", Config{})

	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	tr.SetNetwork(&NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"})

	snap := tr.Snapshot()
	if snap.Network == nil || snap.Network.IP != "192.168.1.42" {
		t.Fatalf("unexpected network: %+v", snap.Network)
	}
}

func TestSnapshotUptime(t *testing.T) {
	snap := Snapshot{StartTime: start, Now: start.Add(15 * time.Minute)}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), "primary", "desk", Config{})
	tr.UpdateSession(SessionView{State: "WORKING"})

	snap1 := tr.Snapshot()
	tr.UpdateSession(SessionView{State: "WORK_DONE"})

	if snap1.Session.State != "WORKING" {
		t.Error("snapshot should be a copy; state was modified")
	}
}

func TestFormatJSONPrimary(t *testing.T) {
	snap := Snapshot{
		Role:     "primary",
		DeviceID: "desk",
		Session: SessionView{
			State:      "BREAK",
			SessionID:  "s1",
			PauseCount: 1,
			Remaining:  299500 * time.Millisecond,
			WorkTime:   25 * time.Minute,
		},
		Air:           logic.AlarmState{Level: logic.AlarmOk, LastValue: 612, HasValue: true},
		AirChecked:    true,
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{WorkDuration: 25 * time.Minute, BreakDuration: 5 * time.Minute, BreakMode: "local", Heartbeat: 15 * time.Minute, Broker: "tcp://localhost:1883"},
	}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	st := parsed.Status
	if st.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", st.UptimeSeconds)
	}
	if st.Session == nil || st.Session.State != "BREAK" || st.Session.RemainingSeconds != 299 {
		t.Fatalf("session: got %+v", st.Session)
	}
	if st.Session.WorkSeconds != 1500 {
		t.Errorf("WorkSeconds: got %d", st.Session.WorkSeconds)
	}
	if st.Break != nil {
		t.Error("break section is secondary only")
	}
	if st.Air.Level != "OK" || st.Air.PPM == nil || *st.Air.PPM != 612 {
		t.Errorf("air: got %+v", st.Air)
	}
	if st.Config.BreakSeconds != 300 || st.Config.HeartbeatMs != 900000 {
		t.Errorf("config: got %+v", st.Config)
	}
	if st.Event != "" || st.Reason != "" {
		t.Error("web format must not carry event or reason")
	}
}

func TestFormatJSONSecondary(t *testing.T) {
	snap := Snapshot{
		Role:      "secondary",
		DeviceID:  "hall",
		Break:     BreakView{Active: true, SessionID: "s1", Pause: 2, Remaining: 60 * time.Second, Breaks: 1, LastPhase: "break"},
		StartTime: start,
		Now:       start.Add(time.Minute),
	}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Session != nil {
		t.Error("session section is primary only")
	}
	b := parsed.Status.Break
	if b == nil || !b.Active || b.Pause != 2 || b.RemainingSeconds != 60 {
		t.Errorf("break: got %+v", b)
	}
}

func TestFormatJSONUnknownState(t *testing.T) {
	snap := Snapshot{Role: "primary", StartTime: start, Now: start.Add(time.Second)}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	if parsed.Status.Session.State != "UNKNOWN" {
		t.Errorf("state: got %q, want UNKNOWN", parsed.Status.Session.State)
	}
	if parsed.Status.Air.Level != "UNKNOWN" || parsed.Status.Air.PPM != nil {
		t.Errorf("air before first check: got %+v", parsed.Status.Air)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	snap := Snapshot{
		Role:      "primary",
		StartTime: start,
		Now:       start.Add(30 * time.Minute),
		Config:    Config{Broker: "tcp://localhost:1883"},
	}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" || parsed.Status.Reason != "SIGTERM" {
		t.Errorf("got event %q reason %q", parsed.Status.Event, parsed.Status.Reason)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	data := FormatStatusEvent(Snapshot{StartTime: start, Now: start}, "STARTUP", "")

	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(time.Minute),
		Network:   &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"},
	}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	if parsed.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("Network.SSID: got %q, want MyNet", parsed.Status.Network.SSID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), "primary", "desk", Config{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.UpdateSession(SessionView{State: "WORKING", PauseCount: i})
			tr.UpdateAir(logic.AlarmState{Level: logic.AlarmOk, LastValue: float64(i), HasValue: true})
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetNetwork(&NetworkInfo{IP: "1.2.3.4"})
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = FormatJSON(tr.Snapshot())
		}
	}()

	wg.Wait()
}
