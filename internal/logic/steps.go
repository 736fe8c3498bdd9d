package logic

import (
	"math"
	"time"
)

// StepConfig tunes the accelerometer step detector. Values are in g.
type StepConfig struct {
	SmoothWindow   int
	BaselineWindow int
	Threshold      float64
	// ReleaseRatio is the fraction of Threshold the deviation must fall
	// below for a detected peak to count as a step.
	ReleaseRatio float64
	MinInterval  time.Duration
}

// DefaultStepConfig matches a wrist or pocket worn sensor at roughly 50 Hz.
func DefaultStepConfig() StepConfig {
	return StepConfig{
		SmoothWindow:   5,
		BaselineWindow: 100,
		Threshold:      0.12,
		ReleaseRatio:   0.3,
		MinInterval:    350 * time.Millisecond,
	}
}

// Accel is a single accelerometer sample.
type Accel struct {
	X, Y, Z float64
	Time    time.Time
}

// Magnitude returns the vector length in g.
func (a Accel) Magnitude() float64 {
	return math.Sqrt(a.X*a.X + a.Y*a.Y + a.Z*a.Z)
}

// StepDetector counts steps with peak detection over a smoothed magnitude
// relative to a rolling baseline.
type StepDetector struct {
	cfg      StepConfig
	smooth   window
	baseline window
	peak     bool
	lastStep time.Time
	steps    int
}

// NewStepDetector creates a detector.
func NewStepDetector(cfg StepConfig) *StepDetector {
	return &StepDetector{
		cfg:      cfg,
		smooth:   newWindow(cfg.SmoothWindow),
		baseline: newWindow(cfg.BaselineWindow),
	}
}

// Process consumes a sample and reports whether it completed a step.
func (d *StepDetector) Process(a Accel) bool {
	mag := a.Magnitude()
	base := d.baseline.push(mag)
	smoothed := d.smooth.push(mag)
	deviation := smoothed - base

	if deviation > d.cfg.Threshold {
		d.peak = true
		return false
	}
	if !d.peak || deviation >= d.cfg.Threshold*d.cfg.ReleaseRatio {
		return false
	}
	d.peak = false
	if !d.lastStep.IsZero() && a.Time.Sub(d.lastStep) <= d.cfg.MinInterval {
		return false
	}
	d.lastStep = a.Time
	d.steps++
	return true
}

// Steps returns the number of steps counted since creation or Reset.
func (d *StepDetector) Steps() int {
	return d.steps
}

// Reset clears the count and history.
func (d *StepDetector) Reset() {
	*d = *NewStepDetector(d.cfg)
}

// window is a fixed size moving average.
type window struct {
	buf  []float64
	size int
	next int
	n    int
	sum  float64
}

func newWindow(size int) window {
	if size < 1 {
		size = 1
	}
	return window{buf: make([]float64, size), size: size}
}

// push adds v and returns the current mean.
func (w *window) push(v float64) float64 {
	if w.n == w.size {
		w.sum -= w.buf[w.next]
	} else {
		w.n++
	}
	w.buf[w.next] = v
	w.sum += v
	w.next = (w.next + 1) % w.size
	return w.sum / float64(w.n)
}

// DeriveBreakStats converts a step count into the persisted break stats.
func DeriveBreakStats(sessionID string, pause, steps int, caloriesPerStep, metersPerStep float64) BreakStats {
	return BreakStats{
		SessionID:   sessionID,
		PauseNumber: pause,
		Steps:       steps,
		Calories:    math.Round(float64(steps) * caloriesPerStep),
		Distance:    math.Round(float64(steps) * metersPerStep),
	}
}
