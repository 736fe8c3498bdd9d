package gpio

import (
	"log"
	"math"
	"sync"
	"time"
)

// SimHardware stands in for the GPIO chip on development machines.
// Buttons never produce edges on their own; presses are injected through
// the web endpoint. Outputs only log their changes.
type SimHardware struct{}

func (SimHardware) OpenButton(name string, pin int, _ time.Duration, _ EdgeFunc) (Button, error) {
	log.Printf("gpio: simulated %s button (pin %d)", name, pin)
	return simLine{}, nil
}

func (SimHardware) OpenOutput(name string, pin int) (Output, error) {
	log.Printf("gpio: simulated %s output (pin %d)", name, pin)
	return &simOutput{name: name}, nil
}

func (SimHardware) Close() error { return nil }

type simLine struct{}

func (simLine) Close() error { return nil }

type simOutput struct {
	mu     sync.Mutex
	name   string
	active bool
}

func (o *simOutput) Activate() error   { return o.set(true) }
func (o *simOutput) Deactivate() error { return o.set(false) }
func (o *simOutput) Close() error      { return nil }

func (o *simOutput) set(v bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != v && o.name != "buzzer" {
		log.Printf("gpio: simulated %s active=%t", o.name, v)
	}
	o.active = v
	return nil
}

// SimLevelReader produces a slow sine wave between Base and Peak ppm.
type SimLevelReader struct {
	Base   float64
	Peak   float64
	Period time.Duration
	Now    func() time.Time

	start time.Time
	once  sync.Once
}

// NewSimLevelReader creates a simulated sensor oscillating over period.
func NewSimLevelReader(base, peak float64, period time.Duration, now func() time.Time) *SimLevelReader {
	if now == nil {
		now = time.Now
	}
	return &SimLevelReader{Base: base, Peak: peak, Period: period, Now: now}
}

func (r *SimLevelReader) ReadLevel() (float64, error) {
	now := r.Now()
	r.once.Do(func() { r.start = now })
	if r.Period <= 0 {
		return r.Base, nil
	}
	phase := 2 * math.Pi * float64(now.Sub(r.start)) / float64(r.Period)
	mid := (r.Base + r.Peak) / 2
	amp := (r.Peak - r.Base) / 2
	return math.Round(mid - amp*math.Cos(phase)), nil
}

// SimAccelReader simulates walking: a 1 g rest signal with a short
// vertical spike every Period samples.
type SimAccelReader struct {
	Period int

	mu sync.Mutex
	n  int
}

func (r *SimAccelReader) ReadAccel() (x, y, z float64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n++
	if r.Period > 0 && r.n%r.Period < 3 {
		return 0, 0, 1.8, nil
	}
	return 0, 0, 1, nil
}
