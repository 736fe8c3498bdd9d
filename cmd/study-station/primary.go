package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/sweeney/study-station/internal/bridge"
	"github.com/sweeney/study-station/internal/button"
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

// memoryRetention is how long the in-memory store keeps finished sessions.
const memoryRetention = 24 * time.Hour

// shutdownTimeout bounds the drain of queued signals and notifications.
const shutdownTimeout = 5 * time.Second

func runPrimary(ctx context.Context, v *viper.Viper, cfg config.Config) error {
	clock := timer.RealClock{}

	hw, err := openHardware(cfg)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer hw.Close()

	led, err := hw.OpenOutput("led", cfg.GPIO.LEDPin)
	if err != nil {
		return fmt.Errorf("open led: %w", err)
	}
	buzzer, err := hw.OpenOutput("buzzer", cfg.GPIO.BuzzerPin)
	if err != nil {
		return fmt.Errorf("open buzzer: %w", err)
	}
	signals := gpio.NewSignals(led, buzzer, nil)
	defer signals.Close()

	st := openStore(ctx, cfg)
	defer st.Close()

	publisher, mqttStatus := openMQTT(cfg)
	defer publisher.Close()
	notifier := mqtt.NewNotifier(publisher, 32)
	defer drain("notifications", notifier.Close)

	phases := bridge.NewPublisher(st, 16, shutdownTimeout)
	defer drain("phase signals", phases.Close)

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), "primary", cfg.DeviceID, statusConfig(cfg))
	tracker.RefreshNetwork(os.Getenv)

	ctrl := session.New(session.Config{
		DeviceID:      cfg.DeviceID,
		WorkDuration:  cfg.WorkDuration,
		BreakDuration: cfg.BreakDuration,
		RemoteBreak:   cfg.BreakMode == config.BreakModeRemote,
		StoreTimeout:  cfg.Store.Timeout,
		Resolution:    time.Second,
	}, session.Deps{
		Clock:     clock,
		Store:     st,
		Publisher: phases,
		Notifier:  notifier,
		Signals:   signals,
		Observer: func(s session.Snapshot) {
			tracker.UpdateSession(sessionView(s))
		},
	})
	defer ctrl.Close()
	tracker.UpdateSession(sessionView(ctrl.Snapshot()))

	buttons, closeButtons, err := openButtons(hw, cfg, clock, ctrl.HandleGesture)
	if err != nil {
		return err
	}
	defer closeButtons()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if cfg.BreakMode == config.BreakModeRemote {
		watcher := bridge.NewWatcher(st, ctrl, clock, cfg.Sync.PollInterval)
		go watcher.Run(ctx)
		log.Printf("break mode remote: waiting for the secondary to finish breaks")
	}

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		opts := web.Options{Store: st}
		if cfg.GPIO.Simulate {
			opts.Presser = buttons
		}
		srv := web.New(cfg.HTTP.Addr, tracker, opts)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	monitor, err := logic.NewAlarmMonitor(cfg.AlarmConfig())
	if err != nil {
		return fmt.Errorf("air monitor: %w", err)
	}
	reload := make(chan logic.AlarmConfig, 1)
	if v.ConfigFileUsed() != "" {
		config.WatchAir(v, func(ac logic.AlarmConfig) {
			select {
			case reload <- ac:
			default:
				log.Printf("config: reload already pending, dropping")
			}
		})
	}

	air := &airCheck{
		reader:    levelReader(cfg),
		monitor:   monitor,
		signals:   signals,
		notifier:  notifier,
		sink:      st,
		sessionID: ctrl.ActiveSessionID,
		logEvery:  cfg.Air.LogEvery,
	}
	life := &lifecycle{
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		heartbeat:  cfg.Heartbeat,
	}

	log.Printf("started primary: device=%s work=%v break=%v mode=%s broker=%s heartbeat=%v",
		cfg.DeviceID, cfg.WorkDuration, cfg.BreakDuration, cfg.BreakMode, cfg.MQTT.Broker, cfg.Heartbeat)

	ticker := time.NewTicker(cfg.Air.CheckInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(air, life, time.Now, ticker.C, reload, sigCh)
}

func openHardware(cfg config.Config) (gpio.Hardware, error) {
	if cfg.GPIO.Simulate {
		return gpio.SimHardware{}, nil
	}
	return gpio.NewRealChip(cfg.GPIO.Chip)
}

// openStore opens the SQLite store. Without a path, or when the database
// cannot be opened, sessions are kept in memory only.
func openStore(ctx context.Context, cfg config.Config) store.Store {
	if cfg.Store.Path == "" {
		log.Printf("store: no path configured, keeping sessions in memory")
		return store.NewMemory(cfg.DeviceID, memoryRetention)
	}
	st, err := store.OpenSQLite(ctx, cfg.Store.Path, cfg.DeviceID)
	if err != nil {
		log.Printf("store: %v; falling back to memory", err)
		return store.NewMemory(cfg.DeviceID, memoryRetention)
	}
	return st
}

func openMQTT(cfg config.Config) (mqtt.Publisher, mqtt.ConnectionStatus) {
	if cfg.MQTT.Broker == "" {
		return mqtt.Discard{}, mqtt.Discard{}
	}
	p, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.DeviceID)
	if err != nil {
		log.Printf("mqtt: %v; notifications disabled", err)
		return mqtt.Discard{}, mqtt.Discard{}
	}
	return p, p
}

// buttonSet routes simulated presses to the button watchers.
type buttonSet map[string]*button.Watcher

func (b buttonSet) Press(name string, d time.Duration) error {
	w, ok := b[name]
	if !ok {
		return web.ErrUnknownButton
	}
	w.Press(d)
	return nil
}

// openButtons creates one watcher per button and connects it to its line.
// The returned func closes the lines before the watchers.
func openButtons(hw gpio.Hardware, cfg config.Config, clock timer.Clock, h button.Handler) (buttonSet, func(), error) {
	pins := []struct {
		name string
		pin  int
	}{
		{session.ButtonStart, cfg.GPIO.StartPin},
		{session.ButtonBreak, cfg.GPIO.BreakPin},
	}

	set := buttonSet{}
	var lines []gpio.Button
	closeAll := func() {
		for _, l := range lines {
			l.Close()
		}
		for _, w := range set {
			w.Close()
		}
	}
	for _, p := range pins {
		w, err := button.New(p.name, cfg.GestureConfig(), clock, h)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		line, err := hw.OpenButton(p.name, p.pin, cfg.Buttons.Debounce, w.Edge)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open %s button: %w", p.name, err)
		}
		set[p.name] = w
		lines = append(lines, line)
	}
	return set, closeAll, nil
}

func drain(what string, closeFn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := closeFn(ctx); err != nil {
		log.Printf("shutdown: %s not drained: %v", what, err)
	}
}

func sessionView(s session.Snapshot) status.SessionView {
	return status.SessionView{
		State:        string(s.State),
		SessionID:    s.SessionID,
		PauseCount:   s.PauseCount,
		Remaining:    s.Remaining,
		WorkTime:     s.Totals.WorkTime,
		BreakTime:    s.Totals.BreakTime,
		HistoryDepth: s.HistoryDepth,
	}
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		WorkDuration:  cfg.WorkDuration,
		BreakDuration: cfg.BreakDuration,
		BreakMode:     cfg.BreakMode,
		CheckInterval: cfg.Air.CheckInterval,
		Warning:       cfg.Air.Warning,
		Critical:      cfg.Air.Critical,
		Heartbeat:     cfg.Heartbeat,
		Broker:        cfg.MQTT.Broker,
		HTTPAddr:      cfg.HTTP.Addr,
	}
}
