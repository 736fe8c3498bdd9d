package logic

import (
	"errors"
	"time"
)

// AlarmLevel is the hysteresis state of the air-quality alarm.
type AlarmLevel string

const (
	AlarmOk       AlarmLevel = "OK"
	AlarmWarning  AlarmLevel = "WARNING"
	AlarmCritical AlarmLevel = "CRITICAL"
)

// AlarmConfig holds the thresholds and re-notify cooldowns.
// A zero cooldown disables re-notification for that level.
type AlarmConfig struct {
	Warning          float64
	Critical         float64
	WarningCooldown  time.Duration
	CriticalCooldown time.Duration
	// MaxFailures is the number of consecutive failed reads tolerated before
	// the monitor reports itself degraded.
	MaxFailures int
}

// Validate checks warning < critical and non-negative cooldowns.
func (c AlarmConfig) Validate() error {
	if c.Warning >= c.Critical {
		return errors.New("warning threshold must be below critical threshold")
	}
	if c.WarningCooldown < 0 || c.CriticalCooldown < 0 {
		return errors.New("cooldowns must not be negative")
	}
	if c.MaxFailures < 1 {
		return errors.New("max failures must be at least 1")
	}
	return nil
}

// Reading is one sensor sample. OK is false when the sensor read failed.
type Reading struct {
	Value float64
	OK    bool
	Time  time.Time
}

// EffectKind is a side effect requested by the monitor.
type EffectKind string

const (
	EffectIndicatorOn EffectKind = "INDICATOR_ON"
	EffectAudible     EffectKind = "AUDIBLE"
	EffectNotify      EffectKind = "NOTIFY"
	EffectClear       EffectKind = "CLEAR"
	EffectDegraded    EffectKind = "DEGRADED"
	EffectRecovered   EffectKind = "RECOVERED"
)

// AlarmEffect is a side effect to apply, in order.
type AlarmEffect struct {
	Kind  EffectKind
	Level AlarmLevel
	Value float64
	Time  time.Time
}

// AlarmState is the observable monitor state.
type AlarmState struct {
	Level          AlarmLevel
	EnteredAt      time.Time
	LastNotifiedAt time.Time
	LastValue      float64
	HasValue       bool
	Failures       int
	Degraded       bool
}

// AlarmMonitor is an edge-triggered state machine over sensor readings.
type AlarmMonitor struct {
	cfg   AlarmConfig
	state AlarmState
}

// NewAlarmMonitor creates a monitor in the Ok state.
func NewAlarmMonitor(cfg AlarmConfig) (*AlarmMonitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &AlarmMonitor{cfg: cfg, state: AlarmState{Level: AlarmOk}}, nil
}

// SetConfig replaces thresholds and cooldowns. The current level is kept
// until the next reading re-evaluates it.
func (m *AlarmMonitor) SetConfig(cfg AlarmConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.cfg = cfg
	return nil
}

// State returns a copy of the current state.
func (m *AlarmMonitor) State() AlarmState {
	return m.state
}

// Classify maps a value to its alarm level.
func (m *AlarmMonitor) Classify(v float64) AlarmLevel {
	switch {
	case v >= m.cfg.Critical:
		return AlarmCritical
	case v >= m.cfg.Warning:
		return AlarmWarning
	default:
		return AlarmOk
	}
}

// Process consumes a reading and returns the side effects to apply.
// Effects fire on state entry only; while a level persists, only the
// notification is repeated once the level's cooldown has elapsed.
func (m *AlarmMonitor) Process(r Reading) []AlarmEffect {
	if !r.OK {
		m.state.Failures++
		if m.state.Failures == m.cfg.MaxFailures {
			m.state.Degraded = true
			return []AlarmEffect{{Kind: EffectDegraded, Level: m.state.Level, Value: m.state.LastValue, Time: r.Time}}
		}
		// Hold the last known value and level.
		return nil
	}

	var effects []AlarmEffect
	m.state.Failures = 0
	if m.state.Degraded {
		m.state.Degraded = false
		effects = append(effects, AlarmEffect{Kind: EffectRecovered, Level: m.state.Level, Value: r.Value, Time: r.Time})
	}
	m.state.LastValue = r.Value
	m.state.HasValue = true

	level := m.Classify(r.Value)
	if level != m.state.Level {
		m.state.Level = level
		m.state.EnteredAt = r.Time
		m.state.LastNotifiedAt = r.Time
		return append(effects, entryEffects(level, r)...)
	}

	if level == AlarmOk {
		return effects
	}
	cooldown := m.cfg.WarningCooldown
	if level == AlarmCritical {
		cooldown = m.cfg.CriticalCooldown
	}
	if cooldown > 0 && r.Time.Sub(m.state.LastNotifiedAt) >= cooldown {
		m.state.LastNotifiedAt = r.Time
		effects = append(effects, AlarmEffect{Kind: EffectNotify, Level: level, Value: r.Value, Time: r.Time})
	}
	return effects
}

func entryEffects(level AlarmLevel, r Reading) []AlarmEffect {
	switch level {
	case AlarmCritical:
		return []AlarmEffect{
			{Kind: EffectIndicatorOn, Level: level, Value: r.Value, Time: r.Time},
			{Kind: EffectAudible, Level: level, Value: r.Value, Time: r.Time},
			{Kind: EffectNotify, Level: level, Value: r.Value, Time: r.Time},
		}
	case AlarmWarning:
		return []AlarmEffect{
			{Kind: EffectIndicatorOn, Level: level, Value: r.Value, Time: r.Time},
			{Kind: EffectNotify, Level: level, Value: r.Value, Time: r.Time},
		}
	default:
		return []AlarmEffect{{Kind: EffectClear, Level: level, Value: r.Value, Time: r.Time}}
	}
}

// IsAlarm reports whether the level is Warning or Critical.
func (l AlarmLevel) IsAlarm() bool {
	return l == AlarmWarning || l == AlarmCritical
}
