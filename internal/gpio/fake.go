package gpio

import (
	"errors"
	"sync"
	"time"

	"github.com/sweeney/study-station/internal/logic"
)

// FakeLevelReader is a test double that returns scripted sensor values.
type FakeLevelReader struct {
	mu sync.Mutex

	// Samples contains scripted ppm values to return.
	// Each call to ReadLevel() consumes the next sample.
	Samples []float64

	index int

	// ReadError, if set, will be returned by ReadLevel()
	ReadError error
}

// NewFakeLevelReader creates a FakeLevelReader with the given samples.
func NewFakeLevelReader(samples ...float64) *FakeLevelReader {
	return &FakeLevelReader{Samples: samples}
}

// ReadLevel returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeLevelReader) ReadLevel() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if len(f.Samples) == 0 {
		return 0, errors.New("no samples configured")
	}

	v := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return v, nil
}

// SetError sets or clears the read error.
func (f *FakeLevelReader) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ReadError = err
}

// Reset resets the reader to the beginning of samples.
func (f *FakeLevelReader) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index = 0
}

// FakeOutput records every state change.
type FakeOutput struct {
	mu      sync.Mutex
	active  bool
	changes []bool
	closed  bool

	// Err, if set, is returned by Activate and Deactivate.
	Err error
}

func (o *FakeOutput) Activate() error {
	return o.set(true)
}

func (o *FakeOutput) Deactivate() error {
	return o.set(false)
}

func (o *FakeOutput) set(v bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	o.active = v
	o.changes = append(o.changes, v)
	return nil
}

// Active reports the current output state.
func (o *FakeOutput) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Changes returns a copy of every state written so far.
func (o *FakeOutput) Changes() []bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]bool, len(o.changes))
	copy(out, o.changes)
	return out
}

// Pulses counts activations.
func (o *FakeOutput) Pulses() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, c := range o.changes {
		if c {
			n++
		}
	}
	return n
}

func (o *FakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

// Closed reports whether Close was called.
func (o *FakeOutput) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// FakeButton lets tests inject edges directly.
type FakeButton struct {
	Name string
	Pin  int
	fn   EdgeFunc

	mu     sync.Mutex
	closed bool
}

// Edge delivers an edge to the registered EdgeFunc unless closed.
func (b *FakeButton) Edge(e logic.Edge, at time.Time) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if !closed {
		b.fn(e, at)
	}
}

func (b *FakeButton) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// FakeHardware hands out fake lines keyed by name.
type FakeHardware struct {
	mu      sync.Mutex
	buttons map[string]*FakeButton
	outputs map[string]*FakeOutput
	closed  bool
}

// NewFakeHardware creates an empty FakeHardware.
func NewFakeHardware() *FakeHardware {
	return &FakeHardware{
		buttons: make(map[string]*FakeButton),
		outputs: make(map[string]*FakeOutput),
	}
}

func (h *FakeHardware) OpenButton(name string, pin int, _ time.Duration, fn EdgeFunc) (Button, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b := &FakeButton{Name: name, Pin: pin, fn: fn}
	h.buttons[name] = b
	return b, nil
}

func (h *FakeHardware) OpenOutput(name string, _ int) (Output, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	o := &FakeOutput{}
	h.outputs[name] = o
	return o, nil
}

// Button returns the button opened under name, or nil.
func (h *FakeHardware) Button(name string) *FakeButton {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buttons[name]
}

// Output returns the output opened under name, or nil.
func (h *FakeHardware) Output(name string) *FakeOutput {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outputs[name]
}

func (h *FakeHardware) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// Closed reports whether Close was called.
func (h *FakeHardware) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
