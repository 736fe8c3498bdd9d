package gpio

import (
	"log"
	"sync"
	"time"
)

// Beep and alarm pattern timings.
const (
	ShortBeepDuration = 200 * time.Millisecond
	LongBeepDuration  = 1 * time.Second
	PatternPulses     = 5
	PatternOn         = 200 * time.Millisecond
	PatternOff        = 300 * time.Millisecond
)

// Signals drives the alarm LED and buzzer with semantic calls.
// Every call is queued and returns immediately; a single worker performs
// the output changes in order so patterns never interleave.
type Signals struct {
	led    Output
	buzzer Output
	sleep  func(time.Duration)

	mu     sync.Mutex
	queue  chan func()
	done   chan struct{}
	closed bool
}

// queueSize bounds pending cues. Cues beyond it are dropped with a log line.
const queueSize = 16

// NewSignals starts the signal worker. A nil sleep uses time.Sleep.
func NewSignals(led, buzzer Output, sleep func(time.Duration)) *Signals {
	if sleep == nil {
		sleep = time.Sleep
	}
	s := &Signals{
		led:    led,
		buzzer: buzzer,
		sleep:  sleep,
		queue:  make(chan func(), queueSize),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Signals) run() {
	defer close(s.done)
	for job := range s.queue {
		job()
	}
}

func (s *Signals) enqueue(name string, job func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- job:
	default:
		log.Printf("signals: queue full, dropping %s", name)
	}
}

// ActivateAlarm turns the alarm indicator on.
func (s *Signals) ActivateAlarm() {
	s.enqueue("activate", func() { s.write("led", s.led.Activate) })
}

// DeactivateAlarm turns the alarm indicator and the buzzer off.
func (s *Signals) DeactivateAlarm() {
	s.enqueue("deactivate", func() {
		s.write("led", s.led.Deactivate)
		s.write("buzzer", s.buzzer.Deactivate)
	})
}

// ShortBeep sounds the buzzer briefly.
func (s *Signals) ShortBeep() {
	s.enqueue("short beep", func() { s.beep(ShortBeepDuration) })
}

// LongBeep sounds the buzzer for about a second.
func (s *Signals) LongBeep() {
	s.enqueue("long beep", func() { s.beep(LongBeepDuration) })
}

// AlarmPattern plays the critical air-quality pattern.
func (s *Signals) AlarmPattern() {
	s.enqueue("alarm pattern", func() {
		for i := 0; i < PatternPulses; i++ {
			s.beep(PatternOn)
			if i < PatternPulses-1 {
				s.sleep(PatternOff)
			}
		}
	})
}

func (s *Signals) beep(d time.Duration) {
	s.write("buzzer", s.buzzer.Activate)
	s.sleep(d)
	s.write("buzzer", s.buzzer.Deactivate)
}

func (s *Signals) write(name string, fn func() error) {
	if err := fn(); err != nil {
		log.Printf("signals: %s: %v", name, err)
	}
}

// Close drains queued cues, switches both outputs off and stops the worker.
func (s *Signals) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
	s.write("led", s.led.Deactivate)
	s.write("buzzer", s.buzzer.Deactivate)
}
