// Package status provides a thread-safe status tracker for a study station.
// It is read by the HTTP handlers and the MQTT heartbeat.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/study-station/internal/logic"
)

// NetworkInfo contains network state.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains device configuration for display.
type Config struct {
	WorkDuration  time.Duration
	BreakDuration time.Duration
	BreakMode     string
	CheckInterval time.Duration
	Warning       float64
	Critical      float64
	Heartbeat     time.Duration
	Broker        string
	HTTPAddr      string
	StoreURL      string // secondary only
}

// SessionView mirrors the controller snapshot on the primary.
// This is a local copy to avoid importing internal/session from status.
type SessionView struct {
	State        string
	SessionID    string
	PauseCount   int
	Remaining    time.Duration
	WorkTime     time.Duration
	BreakTime    time.Duration
	HistoryDepth int
}

// BreakView mirrors the break consumer on the secondary.
type BreakView struct {
	Active    bool
	SessionID string
	Pause     int
	Remaining time.Duration
	Breaks    int
	LastPhase string
}

// Snapshot is a point-in-time view of device state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Role          string
	DeviceID      string
	Session       SessionView
	Break         BreakView
	Air           logic.AlarmState
	AirChecked    bool
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable device state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, role, deviceID string, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Role:      role,
			DeviceID:  deviceID,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// UpdateSession records the latest controller snapshot.
func (t *Tracker) UpdateSession(v SessionView) {
	t.mu.Lock()
	t.snap.Session = v
	t.mu.Unlock()
}

// UpdateBreak records the latest consumer state.
func (t *Tracker) UpdateBreak(v BreakView) {
	t.mu.Lock()
	t.snap.Break = v
	t.mu.Unlock()
}

// UpdateAir records the air-quality monitor state after a check.
func (t *Tracker) UpdateAir(s logic.AlarmState) {
	t.mu.Lock()
	t.snap.Air = s
	t.snap.AirChecked = true
	t.mu.Unlock()
}

// SetThresholds updates the displayed alarm thresholds after a reload.
func (t *Tracker) SetThresholds(warning, critical float64) {
	t.mu.Lock()
	t.snap.Config.Warning = warning
	t.snap.Config.Critical = critical
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the device state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
