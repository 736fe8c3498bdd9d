package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const fileHeader = `# Study station configuration.
# Durations use Go syntax (500ms, 3s, 30m). Every key can be overridden
# with an environment variable: STUDY_ plus the upper-cased key path,
# e.g. STUDY_AIR_WARNING=700.
`

// Marshal renders c as YAML with durations in Go syntax.
func Marshal(c Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(fileHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fileView(c)); err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteDefault writes the default configuration to path. An existing
// file is left untouched unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	data, err := Marshal(Defaults())
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// fileView mirrors the mapstructure keys of Config.
func fileView(c Config) map[string]any {
	d := func(v time.Duration) string { return v.String() }
	return map[string]any{
		"device_id":      c.DeviceID,
		"user_name":      c.UserName,
		"work_duration":  d(c.WorkDuration),
		"break_duration": d(c.BreakDuration),
		"break_mode":     c.BreakMode,
		"heartbeat":      d(c.Heartbeat),
		"buttons": map[string]any{
			"short_press_max":     d(c.Buttons.ShortPressMax),
			"cancel_press":        d(c.Buttons.CancelPress),
			"end_session_press":   d(c.Buttons.EndSessionPress),
			"double_click_window": d(c.Buttons.DoubleClickWindow),
			"debounce":            d(c.Buttons.Debounce),
		},
		"gpio": map[string]any{
			"chip":       c.GPIO.Chip,
			"start_pin":  c.GPIO.StartPin,
			"break_pin":  c.GPIO.BreakPin,
			"led_pin":    c.GPIO.LEDPin,
			"buzzer_pin": c.GPIO.BuzzerPin,
			"simulate":   c.GPIO.Simulate,
		},
		"air": map[string]any{
			"sensor_path":       c.Air.SensorPath,
			"check_interval":    d(c.Air.CheckInterval),
			"warning":           c.Air.Warning,
			"critical":          c.Air.Critical,
			"warning_cooldown":  d(c.Air.WarningCooldown),
			"critical_cooldown": d(c.Air.CriticalCooldown),
			"max_failures":      c.Air.MaxFailures,
			"log_every":         c.Air.LogEvery,
		},
		"motion": map[string]any{
			"accel_path":        c.Motion.AccelPath,
			"sample_interval":   d(c.Motion.SampleInterval),
			"calories_per_step": c.Motion.CaloriesPerStep,
			"meters_per_step":   c.Motion.MetersPerStep,
		},
		"sync": map[string]any{
			"poll_interval": d(c.Sync.PollInterval),
			"store_url":     c.Sync.StoreURL,
		},
		"store": map[string]any{
			"path":    c.Store.Path,
			"timeout": d(c.Store.Timeout),
		},
		"mqtt": map[string]any{
			"broker":    c.MQTT.Broker,
			"client_id": c.MQTT.ClientID,
		},
		"http": map[string]any{"addr": c.HTTP.Addr},
	}
}
