// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"log"
	"time"

	"github.com/sweeney/study-station/internal/logic"
)

// TopicEvents returns the notification topic of a device.
func TopicEvents(deviceID string) string {
	return "study/" + deviceID + "/events"
}

// TopicSystem returns the lifecycle topic of a device.
func TopicSystem(deviceID string) string {
	return "study/" + deviceID + "/system"
}

// Publisher publishes notifications to MQTT.
type Publisher interface {
	// Publish sends a user notification to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(n logic.Notification) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// Payload is the JSON body of a notification.
type Payload struct {
	Device    string         `json:"device"`
	Timestamp string         `json:"timestamp"`
	Kind      string         `json:"kind"`
	SessionID string         `json:"session_id,omitempty"`
	Level     float64        `json:"level,omitempty"`
	Pause     int            `json:"pause_count,omitempty"`
	Report    *ReportPayload `json:"report,omitempty"`
	Break     *BreakPayload  `json:"break,omitempty"`
}

// ReportPayload is the end-of-session summary.
type ReportPayload struct {
	WorkSeconds  float64         `json:"work_seconds"`
	BreakSeconds float64         `json:"break_seconds"`
	PauseCount   int             `json:"pause_count"`
	Status       string          `json:"status"`
	Air          AirPayload      `json:"air"`
	Movement     MovementPayload `json:"movement"`
}

// AirPayload summarizes air quality over a session.
type AirPayload struct {
	Count        int     `json:"count"`
	Avg          float64 `json:"avg"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	AlarmPeriods int     `json:"alarm_periods"`
}

// MovementPayload summarizes break activity over a session.
type MovementPayload struct {
	Breaks   int     `json:"breaks"`
	Steps    int     `json:"steps"`
	Calories float64 `json:"calories"`
	Distance float64 `json:"distance_m"`
}

// BreakPayload carries the activity of one break.
type BreakPayload struct {
	PauseNumber int     `json:"pause_number"`
	Steps       int     `json:"steps"`
	Calories    float64 `json:"calories"`
	Distance    float64 `json:"distance_m"`
}

// FormatPayload creates the JSON payload for a notification.
func FormatPayload(deviceID string, n logic.Notification) ([]byte, error) {
	p := Payload{
		Device:    deviceID,
		Timestamp: n.Timestamp.UTC().Format(time.RFC3339),
		Kind:      string(n.Kind),
		SessionID: n.SessionID,
		Level:     n.Level,
		Pause:     n.PauseCount,
	}
	if r := n.Report; r != nil {
		rp := &ReportPayload{
			WorkSeconds:  r.Session.Totals.WorkTime.Seconds(),
			BreakSeconds: r.Session.Totals.BreakTime.Seconds(),
			PauseCount:   r.Session.Totals.PauseCount,
			Status:       string(r.Session.Status),
			Air: AirPayload{
				Count:        r.Air.Count,
				Avg:          r.Air.Avg,
				Min:          r.Air.Min,
				Max:          r.Air.Max,
				AlarmPeriods: r.Air.AlarmPeriods,
			},
			Movement: MovementPayload{
				Breaks:   r.Movement.Breaks,
				Steps:    r.Movement.Steps,
				Calories: r.Movement.Calories,
				Distance: r.Movement.Distance,
			},
		}
		p.Report = rp
	}
	if b := n.BreakStats; b != nil {
		p.Break = &BreakPayload{
			PauseNumber: b.PauseNumber,
			Steps:       b.Steps,
			Calories:    b.Calories,
			Distance:    b.Distance,
		}
	}
	return json.Marshal(p)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// WillPayload is the retained last-will message sent by the broker when
// the device disappears without a clean disconnect.
func WillPayload() []byte {
	b, _ := json.Marshal(SystemPayload{System: SystemPayloadInner{Event: "OFFLINE", Reason: "UNEXPECTED_DISCONNECT"}})
	return b
}

// Discard is a Publisher for devices without a broker. Notifications are
// logged and dropped.
type Discard struct{}

func (Discard) Publish(n logic.Notification) error {
	log.Printf("mqtt: no broker, dropping %s", n.Kind)
	return nil
}

func (Discard) PublishSystem(SystemEvent) error { return nil }
func (Discard) IsConnected() bool               { return false }
func (Discard) Close() error                    { return nil }
