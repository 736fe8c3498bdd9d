package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Role          string       `json:"role"`
	Device        string       `json:"device"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Session       *SessionJSON `json:"session,omitempty"`
	Break         *BreakJSON   `json:"break,omitempty"`
	Air           AirJSON      `json:"air"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// SessionJSON is the controller state on the primary.
type SessionJSON struct {
	State            string `json:"state"`
	SessionID        string `json:"session_id,omitempty"`
	PauseCount       int    `json:"pause_count"`
	RemainingSeconds int64  `json:"remaining_seconds"`
	WorkSeconds      int64  `json:"work_seconds"`
	BreakSeconds     int64  `json:"break_seconds"`
	HistoryDepth     int    `json:"history_depth"`
}

// BreakJSON is the break consumer state on the secondary.
type BreakJSON struct {
	Active           bool   `json:"active"`
	SessionID        string `json:"session_id,omitempty"`
	Pause            int    `json:"pause"`
	RemainingSeconds int64  `json:"remaining_seconds"`
	Breaks           int    `json:"breaks"`
	LastPhase        string `json:"last_phase,omitempty"`
}

// AirJSON reports the air-quality monitor.
type AirJSON struct {
	Level    string   `json:"level"`
	PPM      *float64 `json:"ppm,omitempty"`
	Degraded bool     `json:"degraded"`
	Failures int      `json:"failures"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of device config.
type ConfigJSON struct {
	WorkSeconds     int64   `json:"work_seconds"`
	BreakSeconds    int64   `json:"break_seconds"`
	BreakMode       string  `json:"break_mode,omitempty"`
	CheckIntervalMs int64   `json:"check_interval_ms,omitempty"`
	Warning         float64 `json:"warning_ppm,omitempty"`
	Critical        float64 `json:"critical_ppm,omitempty"`
	HeartbeatMs     int64   `json:"heartbeat_ms"`
	Broker          string  `json:"broker"`
	HTTPAddr        string  `json:"http_addr"`
	StoreURL        string  `json:"store_url,omitempty"`
}

func seconds(d time.Duration) int64 {
	return int64(d.Truncate(time.Second).Seconds())
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Role:          snap.Role,
		Device:        snap.DeviceID,
		UptimeSeconds: seconds(snap.Uptime()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			WorkSeconds:     seconds(snap.Config.WorkDuration),
			BreakSeconds:    seconds(snap.Config.BreakDuration),
			BreakMode:       snap.Config.BreakMode,
			CheckIntervalMs: snap.Config.CheckInterval.Milliseconds(),
			Warning:         snap.Config.Warning,
			Critical:        snap.Config.Critical,
			HeartbeatMs:     snap.Config.Heartbeat.Milliseconds(),
			Broker:          snap.Config.Broker,
			HTTPAddr:        snap.Config.HTTPAddr,
			StoreURL:        snap.Config.StoreURL,
		},
	}

	inner.Air = AirJSON{Level: "UNKNOWN"}
	if snap.AirChecked {
		inner.Air.Level = string(snap.Air.Level)
		inner.Air.Degraded = snap.Air.Degraded
		inner.Air.Failures = snap.Air.Failures
		if snap.Air.HasValue {
			v := snap.Air.LastValue
			inner.Air.PPM = &v
		}
	}

	switch snap.Role {
	case "primary":
		s := snap.Session
		state := s.State
		if state == "" {
			state = "UNKNOWN"
		}
		inner.Session = &SessionJSON{
			State:            state,
			SessionID:        s.SessionID,
			PauseCount:       s.PauseCount,
			RemainingSeconds: seconds(s.Remaining),
			WorkSeconds:      seconds(s.WorkTime),
			BreakSeconds:     seconds(s.BreakTime),
			HistoryDepth:     s.HistoryDepth,
		}
	case "secondary":
		b := snap.Break
		inner.Break = &BreakJSON{
			Active:           b.Active,
			SessionID:        b.SessionID,
			Pause:            b.Pause,
			RemainingSeconds: seconds(b.Remaining),
			Breaks:           b.Breaks,
			LastPhase:        b.LastPhase,
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
