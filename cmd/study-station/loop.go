package main

import (
	"context"
	"log"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/study-station/internal/bridge"
	"github.com/sweeney/study-station/internal/gpio"
	"github.com/sweeney/study-station/internal/logic"
	"github.com/sweeney/study-station/internal/mqtt"
	"github.com/sweeney/study-station/internal/status"
)

// alarmSignals are the outputs driven by the air monitor.
type alarmSignals interface {
	ActivateAlarm()
	DeactivateAlarm()
	AlarmPattern()
}

type notifier interface {
	Notify(n logic.Notification)
}

type measurementSink interface {
	AppendMeasurement(ctx context.Context, m logic.Measurement) error
}

// lifecycle publishes STARTUP, HEARTBEAT and SHUTDOWN system events, each
// carrying the device's status snapshot.
type lifecycle struct {
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	heartbeat  time.Duration
	lastBeat   time.Time
}

func (l *lifecycle) refresh() {
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}

func (l *lifecycle) publish(t time.Time, event, reason string, retained bool) error {
	l.refresh()
	snap := l.tracker.Snapshot()
	return l.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  t,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
}

func (l *lifecycle) startup(t time.Time) {
	l.lastBeat = t
	if err := l.publish(t, "STARTUP", "", true); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}
}

// checkHeartbeat publishes a heartbeat once the interval has elapsed since
// the previous one. A zero interval disables heartbeats.
func (l *lifecycle) checkHeartbeat(t time.Time) {
	if l.heartbeat <= 0 || t.Sub(l.lastBeat) < l.heartbeat {
		return
	}
	l.lastBeat = t
	l.tracker.RefreshNetwork(os.Getenv)
	log.Printf("heartbeat: uptime=%v", l.tracker.Snapshot().Uptime().Round(time.Second))
	if err := l.publish(t, "HEARTBEAT", "", false); err != nil {
		log.Printf("heartbeat publish error: %v", err)
	}
}

func (l *lifecycle) shutdown(t time.Time, s os.Signal) {
	log.Printf("received %v, shutting down", s)
	signalName := "UNKNOWN"
	if s == syscall.SIGINT {
		signalName = "SIGINT"
	} else if s == syscall.SIGTERM {
		signalName = "SIGTERM"
	}
	if err := l.publish(t, "SHUTDOWN", signalName, true); err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}
}

// airCheck reads the sensor once per tick, runs the alarm monitor and
// applies its effects. While a session is active, readings are logged to
// the store: every logEvery-th reading and every reading at an alarm level.
type airCheck struct {
	reader    gpio.LevelReader
	monitor   *logic.AlarmMonitor
	signals   alarmSignals
	notifier  notifier
	sink      measurementSink
	sessionID func() string
	logEvery  int
	count     int
}

func (a *airCheck) check(t time.Time) logic.AlarmState {
	v, err := a.reader.ReadLevel()
	if err != nil {
		log.Printf("air: sensor read error: %v", err)
	}
	sessionID := a.sessionID()
	for _, e := range a.monitor.Process(logic.Reading{Value: v, OK: err == nil, Time: t}) {
		a.apply(e, sessionID)
	}

	state := a.monitor.State()
	if err == nil {
		a.count++
		a.record(sessionID, v, state.Level.IsAlarm(), t)
	}
	return state
}

func (a *airCheck) apply(e logic.AlarmEffect, sessionID string) {
	switch e.Kind {
	case logic.EffectIndicatorOn:
		log.Printf("air: %s at %.0f ppm", e.Level, e.Value)
		a.signals.ActivateAlarm()
	case logic.EffectAudible:
		a.signals.AlarmPattern()
	case logic.EffectNotify:
		kind := logic.NotifyAirWarning
		if e.Level == logic.AlarmCritical {
			kind = logic.NotifyAirCritical
		}
		a.notify(kind, e, sessionID)
	case logic.EffectClear:
		log.Printf("air: back to normal at %.0f ppm", e.Value)
		a.signals.DeactivateAlarm()
		a.notify(logic.NotifyAirClear, e, sessionID)
	case logic.EffectDegraded:
		log.Printf("air: sensor degraded, holding %.0f ppm", e.Value)
		a.notify(logic.NotifySensorDegraded, e, sessionID)
	case logic.EffectRecovered:
		log.Printf("air: sensor recovered at %.0f ppm", e.Value)
	}
}

func (a *airCheck) notify(kind logic.NotificationKind, e logic.AlarmEffect, sessionID string) {
	a.notifier.Notify(logic.Notification{
		Kind:      kind,
		Timestamp: e.Time,
		SessionID: sessionID,
		Level:     e.Value,
	})
}

func (a *airCheck) record(sessionID string, v float64, alarm bool, t time.Time) {
	if sessionID == "" || a.sink == nil {
		return
	}
	if !alarm && a.count%a.logEvery != 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := a.sink.AppendMeasurement(ctx, logic.Measurement{
		SessionID: sessionID,
		Kind:      logic.KindCO2,
		Value:     v,
		Alarm:     alarm,
		Time:      t,
	})
	if err != nil {
		log.Printf("air: store measurement: %v", err)
	}
}

// runLoop drives the primary device: an air check on every tick, config
// reloads, heartbeats, and a SHUTDOWN event on SIGINT/SIGTERM.
func runLoop(air *airCheck, life *lifecycle, now func() time.Time, tick <-chan time.Time, reload <-chan logic.AlarmConfig, sig <-chan os.Signal) error {
	life.startup(now())

	for {
		select {
		case s := <-sig:
			life.shutdown(now(), s)
			return nil

		case cfg := <-reload:
			if err := air.monitor.SetConfig(cfg); err != nil {
				log.Printf("air: rejected new thresholds: %v", err)
				continue
			}
			life.tracker.SetThresholds(cfg.Warning, cfg.Critical)

		case <-tick:
			t := now()
			life.tracker.UpdateAir(air.check(t))
			life.checkHeartbeat(t)
			life.refresh()
		}
	}
}

// breakSource is the secondary's break consumer.
type breakSource interface {
	State() bridge.ConsumerState
}

// runSecondaryLoop mirrors the break consumer into the status tracker and
// handles heartbeats and shutdown. Polling runs in the consumer itself.
func runSecondaryLoop(consumer breakSource, life *lifecycle, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	life.startup(now())

	for {
		select {
		case s := <-sig:
			life.tracker.UpdateBreak(breakView(consumer.State()))
			life.shutdown(now(), s)
			return nil

		case <-tick:
			t := now()
			life.tracker.UpdateBreak(breakView(consumer.State()))
			life.checkHeartbeat(t)
			life.refresh()
		}
	}
}

func breakView(s bridge.ConsumerState) status.BreakView {
	return status.BreakView{
		Active:    s.Active,
		SessionID: s.SessionID,
		Pause:     s.Pause,
		Remaining: s.Remaining,
		Breaks:    s.Breaks,
		LastPhase: string(s.LastPhase),
	}
}
