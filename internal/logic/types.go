// Package logic contains the pure decision logic of the study station.
// This package has NO external dependencies (no GPIO, MQTT, storage, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Edge is a raw button transition.
type Edge string

const (
	EdgeDown Edge = "DOWN"
	EdgeUp   Edge = "UP"
)

// PressEvent is a single raw edge with its monotonic timestamp.
type PressEvent struct {
	Edge Edge
	Time time.Time
}

// GestureKind classifies a completed button interaction.
type GestureKind string

const (
	GestureShortPress  GestureKind = "SHORT_PRESS"
	GestureLongPress   GestureKind = "LONG_PRESS"
	GestureDoubleClick GestureKind = "DOUBLE_CLICK"
)

// GestureEvent is the classifier output.
type GestureEvent struct {
	Kind GestureKind
	// Tier is the long-press tier name; empty for other kinds.
	Tier     string
	Duration time.Duration
	Time     time.Time
}

// Phase is the cross-device synchronization signal value.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseBreak     Phase = "break"
	PhaseWorkReady Phase = "work_ready"
	PhaseEnded     Phase = "ended"
	PhaseCancelled Phase = "cancelled"
)

// SyncSignal is the only entity shared between the two devices.
type SyncSignal struct {
	SessionID  string    `json:"session_id"`
	Phase      Phase     `json:"phase"`
	PauseCount int       `json:"pause_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SessionStatus is the persisted lifecycle of a session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionEnded     SessionStatus = "ended"
	SessionCancelled SessionStatus = "cancelled"
)

// Totals are the accumulated times of a session.
type Totals struct {
	WorkTime   time.Duration
	BreakTime  time.Duration
	PauseCount int
}

// Session is a single study session as persisted.
type Session struct {
	ID        string
	DeviceID  string
	StartedAt time.Time
	EndedAt   time.Time
	Status    SessionStatus
	Totals    Totals
}

// Measurement kinds.
const (
	KindCO2      = "co2"
	KindSteps    = "steps"
	KindCalories = "calories"
	KindDistance = "distance"
)

// Measurement is a single value appended to a session.
type Measurement struct {
	SessionID   string    `json:"session_id"`
	Kind        string    `json:"kind"`
	Value       float64   `json:"value"`
	Alarm       bool      `json:"alarm,omitempty"`
	PauseNumber int       `json:"pause_number,omitempty"`
	Time        time.Time `json:"time"`
}

// AirStats summarizes the air quality measurements of a session.
type AirStats struct {
	Count        int
	Avg          float64
	Min          float64
	Max          float64
	AlarmPeriods int
}

// MovementStats summarizes the break activity of a session.
type MovementStats struct {
	Breaks   int
	Steps    int
	Calories float64
	Distance float64
}

// Report is produced when a session is finalized.
type Report struct {
	Session  Session
	Air      AirStats
	Movement MovementStats
}

// BreakStats are derived by the secondary device at the end of a break.
type BreakStats struct {
	SessionID   string
	PauseNumber int
	Steps       int
	Calories    float64
	Distance    float64
}

// NotificationKind identifies an outgoing notification.
type NotificationKind string

const (
	NotifySessionStart   NotificationKind = "session_start"
	NotifyWorkFinished   NotificationKind = "work_finished"
	NotifyBreakFinished  NotificationKind = "break_finished"
	NotifyBreakStats     NotificationKind = "break_stats"
	NotifySessionReport  NotificationKind = "session_report"
	NotifyAirWarning     NotificationKind = "air_warning"
	NotifyAirCritical    NotificationKind = "air_critical"
	NotifyAirClear       NotificationKind = "air_clear"
	NotifySensorDegraded NotificationKind = "sensor_degraded"
)

// Notification is handed to the notification transport. Only the fields
// relevant to Kind are set.
type Notification struct {
	Kind       NotificationKind
	Timestamp  time.Time
	SessionID  string
	Level      float64
	PauseCount int
	Report     *Report
	BreakStats *BreakStats
}
