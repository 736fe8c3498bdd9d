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

	"github.com/sweeney/study-station/internal/bridge"
	"github.com/sweeney/study-station/internal/config"
	"github.com/sweeney/study-station/internal/gpio"
	"github.com/sweeney/study-station/internal/logic"
	"github.com/sweeney/study-station/internal/motion"
	"github.com/sweeney/study-station/internal/mqtt"
	"github.com/sweeney/study-station/internal/status"
	"github.com/sweeney/study-station/internal/store"
	"github.com/sweeney/study-station/internal/timer"
	"github.com/sweeney/study-station/internal/web"
)

// statusRefresh is how often the secondary mirrors its break state into
// the status tracker.
const statusRefresh = time.Second

func runSecondary(ctx context.Context, cfg config.Config) error {
	clock := timer.RealClock{}

	accel, err := openAccel(cfg)
	if err != nil {
		return fmt.Errorf("init accelerometer: %w", err)
	}

	remote := store.NewRemote(cfg.Sync.StoreURL, shutdownTimeout)

	publisher, mqttStatus := openMQTT(cfg)
	defer publisher.Close()
	notifier := mqtt.NewNotifier(publisher, 32)
	defer drain("notifications", notifier.Close)

	steps := logic.DefaultStepConfig()
	tracker := motion.NewTracker(accel, clock, cfg.Motion.SampleInterval, steps)

	consumer := bridge.NewConsumer(bridge.ConsumerConfig{
		PollInterval:    cfg.Sync.PollInterval,
		BreakDuration:   cfg.BreakDuration,
		Resolution:      time.Second,
		CaloriesPerStep: cfg.Motion.CaloriesPerStep,
		MetersPerStep:   cfg.Motion.MetersPerStep,
		StoreTimeout:    shutdownTimeout,
	}, remote, clock, tracker, notifier)

	st := status.NewTracker(time.Now(), "secondary", cfg.DeviceID, secondaryStatusConfig(cfg))
	st.RefreshNetwork(os.Getenv)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("consumer stopped: %v", err)
		}
	}()
	defer func() {
		cancel()
		<-done
	}()

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, st, web.Options{})
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	life := &lifecycle{
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    st,
		heartbeat:  cfg.Heartbeat,
	}

	log.Printf("started secondary: device=%s store=%s poll=%v break=%v",
		cfg.DeviceID, cfg.Sync.StoreURL, cfg.Sync.PollInterval, cfg.BreakDuration)

	ticker := time.NewTicker(statusRefresh)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runSecondaryLoop(consumer, life, time.Now, ticker.C, sigCh)
}

func openAccel(cfg config.Config) (gpio.AccelReader, error) {
	if cfg.GPIO.Simulate {
		// One spike every 30 samples is a slow walk at the default rate.
		return &gpio.SimAccelReader{Period: 30}, nil
	}
	return gpio.NewIIOAccelReader(cfg.Motion.AccelPath)
}

func secondaryStatusConfig(cfg config.Config) status.Config {
	c := statusConfig(cfg)
	c.StoreURL = cfg.Sync.StoreURL
	return c
}
