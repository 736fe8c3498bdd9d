// Package config provides configuration types, defaults, loading and
// validation for the study station.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sweeney/study-station/internal/logic"
	"github.com/sweeney/study-station/internal/session"
)

// Break modes.
const (
	BreakModeLocal  = "local"
	BreakModeRemote = "remote"
)

// EnvPrefix is the prefix of environment overrides (STUDY_WORK_DURATION, STUDY_AIR_WARNING, ...).
const EnvPrefix = "STUDY"

// Config is the complete device configuration.
type Config struct {
	DeviceID      string        `mapstructure:"device_id"`
	UserName      string        `mapstructure:"user_name"`
	WorkDuration  time.Duration `mapstructure:"work_duration"`
	BreakDuration time.Duration `mapstructure:"break_duration"`
	BreakMode     string        `mapstructure:"break_mode"`
	Heartbeat     time.Duration `mapstructure:"heartbeat"`
	Buttons       ButtonsConfig `mapstructure:"buttons"`
	GPIO          GPIOConfig    `mapstructure:"gpio"`
	Air           AirConfig     `mapstructure:"air"`
	Motion        MotionConfig  `mapstructure:"motion"`
	Sync          SyncConfig    `mapstructure:"sync"`
	Store         StoreConfig   `mapstructure:"store"`
	MQTT          MQTTConfig    `mapstructure:"mqtt"`
	HTTP          HTTPConfig    `mapstructure:"http"`
}

// ButtonsConfig holds the gesture timings shared by both buttons.
type ButtonsConfig struct {
	ShortPressMax     time.Duration `mapstructure:"short_press_max"`
	CancelPress       time.Duration `mapstructure:"cancel_press"`
	EndSessionPress   time.Duration `mapstructure:"end_session_press"`
	DoubleClickWindow time.Duration `mapstructure:"double_click_window"`
	Debounce          time.Duration `mapstructure:"debounce"`
}

// GPIOConfig selects the chip and pins (BCM numbering).
type GPIOConfig struct {
	Chip      string `mapstructure:"chip"`
	StartPin  int    `mapstructure:"start_pin"`
	BreakPin  int    `mapstructure:"break_pin"`
	LEDPin    int    `mapstructure:"led_pin"`
	BuzzerPin int    `mapstructure:"buzzer_pin"`
	Simulate  bool   `mapstructure:"simulate"`
}

// AirConfig configures the air-quality monitor.
type AirConfig struct {
	SensorPath       string        `mapstructure:"sensor_path"`
	CheckInterval    time.Duration `mapstructure:"check_interval"`
	Warning          float64       `mapstructure:"warning"`
	Critical         float64       `mapstructure:"critical"`
	WarningCooldown  time.Duration `mapstructure:"warning_cooldown"`
	CriticalCooldown time.Duration `mapstructure:"critical_cooldown"`
	MaxFailures      int           `mapstructure:"max_failures"`
	LogEvery         int           `mapstructure:"log_every"`
}

// MotionConfig configures step tracking on the secondary.
type MotionConfig struct {
	AccelPath       string        `mapstructure:"accel_path"`
	SampleInterval  time.Duration `mapstructure:"sample_interval"`
	CaloriesPerStep float64       `mapstructure:"calories_per_step"`
	MetersPerStep   float64       `mapstructure:"meters_per_step"`
}

// SyncConfig configures the cross-device signal.
type SyncConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	StoreURL     string        `mapstructure:"store_url"`
}

// StoreConfig configures persistence on the primary.
type StoreConfig struct {
	Path string `mapstructure:"path"`
	// Timeout bounds each session create or finalize call. The session
	// controller waits on these with its lock held.
	Timeout time.Duration `mapstructure:"timeout"`
}

// MQTTConfig configures the notification broker. An empty broker
// disables MQTT.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
}

// HTTPConfig configures the status server. An empty address disables it.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		DeviceID:      "study-station",
		UserName:      "student",
		WorkDuration:  30 * time.Minute,
		BreakDuration: 10 * time.Minute,
		BreakMode:     BreakModeLocal,
		Heartbeat:     15 * time.Minute,
		Buttons: ButtonsConfig{
			ShortPressMax:     500 * time.Millisecond,
			CancelPress:       3 * time.Second,
			EndSessionPress:   7 * time.Second,
			DoubleClickWindow: 500 * time.Millisecond,
			Debounce:          20 * time.Millisecond,
		},
		GPIO: GPIOConfig{
			Chip:      "gpiochip0",
			StartPin:  17,
			BreakPin:  27,
			LEDPin:    22,
			BuzzerPin: 18,
		},
		Air: AirConfig{
			SensorPath:       "/sys/bus/iio/devices/iio:device0/in_concentration_co2_raw",
			CheckInterval:    time.Second,
			Warning:          600,
			Critical:         800,
			WarningCooldown:  5 * time.Minute,
			CriticalCooldown: 5 * time.Minute,
			MaxFailures:      3,
			LogEvery:         30,
		},
		Motion: MotionConfig{
			AccelPath:       "/sys/bus/iio/devices/iio:device1",
			SampleInterval:  20 * time.Millisecond,
			CaloriesPerStep: 0.05,
			MetersPerStep:   0.75,
		},
		Sync: SyncConfig{
			PollInterval: time.Second,
			StoreURL:     "http://localhost:8080",
		},
		Store: StoreConfig{Path: "study.db", Timeout: time.Second},
		MQTT:  MQTTConfig{Broker: "tcp://localhost:1883"},
		HTTP:  HTTPConfig{Addr: ":8080"},
	}
}

// SetDefaults registers every default with v so that environment
// variables and partial files resolve against them.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("device_id", d.DeviceID)
	v.SetDefault("user_name", d.UserName)
	v.SetDefault("work_duration", d.WorkDuration)
	v.SetDefault("break_duration", d.BreakDuration)
	v.SetDefault("break_mode", d.BreakMode)
	v.SetDefault("heartbeat", d.Heartbeat)

	v.SetDefault("buttons.short_press_max", d.Buttons.ShortPressMax)
	v.SetDefault("buttons.cancel_press", d.Buttons.CancelPress)
	v.SetDefault("buttons.end_session_press", d.Buttons.EndSessionPress)
	v.SetDefault("buttons.double_click_window", d.Buttons.DoubleClickWindow)
	v.SetDefault("buttons.debounce", d.Buttons.Debounce)

	v.SetDefault("gpio.chip", d.GPIO.Chip)
	v.SetDefault("gpio.start_pin", d.GPIO.StartPin)
	v.SetDefault("gpio.break_pin", d.GPIO.BreakPin)
	v.SetDefault("gpio.led_pin", d.GPIO.LEDPin)
	v.SetDefault("gpio.buzzer_pin", d.GPIO.BuzzerPin)
	v.SetDefault("gpio.simulate", d.GPIO.Simulate)

	v.SetDefault("air.sensor_path", d.Air.SensorPath)
	v.SetDefault("air.check_interval", d.Air.CheckInterval)
	v.SetDefault("air.warning", d.Air.Warning)
	v.SetDefault("air.critical", d.Air.Critical)
	v.SetDefault("air.warning_cooldown", d.Air.WarningCooldown)
	v.SetDefault("air.critical_cooldown", d.Air.CriticalCooldown)
	v.SetDefault("air.max_failures", d.Air.MaxFailures)
	v.SetDefault("air.log_every", d.Air.LogEvery)

	v.SetDefault("motion.accel_path", d.Motion.AccelPath)
	v.SetDefault("motion.sample_interval", d.Motion.SampleInterval)
	v.SetDefault("motion.calories_per_step", d.Motion.CaloriesPerStep)
	v.SetDefault("motion.meters_per_step", d.Motion.MetersPerStep)

	v.SetDefault("sync.poll_interval", d.Sync.PollInterval)
	v.SetDefault("sync.store_url", d.Sync.StoreURL)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.timeout", d.Store.Timeout)
	v.SetDefault("mqtt.broker", d.MQTT.Broker)
	v.SetDefault("mqtt.client_id", d.MQTT.ClientID)
	v.SetDefault("http.addr", d.HTTP.Addr)
}

// New returns a viper instance with defaults and STUDY_ environment
// overrides registered.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path (if non-empty) into v and decodes
// the result. A missing file is an error only when path was given
// explicitly.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return Decode(v)
}

// Decode unmarshals and validates the current settings of v.
func Decode(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = c.DeviceID
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.DeviceID == "" {
		errs = append(errs, errors.New("device_id is required"))
	}
	if c.WorkDuration <= 0 {
		errs = append(errs, errors.New("work_duration must be positive"))
	}
	if c.BreakDuration <= 0 {
		errs = append(errs, errors.New("break_duration must be positive"))
	}
	if c.BreakMode != BreakModeLocal && c.BreakMode != BreakModeRemote {
		errs = append(errs, fmt.Errorf("break_mode must be %q or %q, got %q", BreakModeLocal, BreakModeRemote, c.BreakMode))
	}
	if c.Store.Timeout <= 0 {
		errs = append(errs, errors.New("store.timeout must be positive"))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, errors.New("heartbeat must not be negative"))
	}
	if err := c.GestureConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("buttons: %w", err))
	}
	if err := c.AlarmConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("air: %w", err))
	}
	if c.Air.CheckInterval <= 0 {
		errs = append(errs, errors.New("air.check_interval must be positive"))
	}
	if c.Air.LogEvery < 1 {
		errs = append(errs, errors.New("air.log_every must be at least 1"))
	}
	if c.Motion.SampleInterval <= 0 {
		errs = append(errs, errors.New("motion.sample_interval must be positive"))
	}
	if c.Sync.PollInterval <= 0 {
		errs = append(errs, errors.New("sync.poll_interval must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// GestureConfig converts the button timings for the classifier.
func (c Config) GestureConfig() logic.GestureConfig {
	return logic.GestureConfig{
		ShortMax: c.Buttons.ShortPressMax,
		Tiers: []logic.LongTier{
			{Name: session.TierCancel, Min: c.Buttons.CancelPress},
			{Name: session.TierEndSession, Min: c.Buttons.EndSessionPress},
		},
		DoubleClickWindow: c.Buttons.DoubleClickWindow,
	}
}

// AlarmConfig converts the air settings for the alarm monitor.
func (c Config) AlarmConfig() logic.AlarmConfig {
	return logic.AlarmConfig{
		Warning:          c.Air.Warning,
		Critical:         c.Air.Critical,
		WarningCooldown:  c.Air.WarningCooldown,
		CriticalCooldown: c.Air.CriticalCooldown,
		MaxFailures:      c.Air.MaxFailures,
	}
}
