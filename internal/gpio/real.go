//go:build linux

package gpio

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/study-station/internal/logic"
)

// RealChip opens lines on an actual GPIO chip.
type RealChip struct {
	chip *gpiocdev.Chip

	mu    sync.Mutex
	lines []*gpiocdev.Line
}

// NewRealChip opens the named chip (e.g. gpiochip0).
func NewRealChip(name string) (*RealChip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &RealChip{chip: chip}, nil
}

// OpenButton requests a pull-up, active-low input with kernel debounce and
// both-edge events. A logical rising edge is a press.
func (c *RealChip) OpenButton(name string, pin int, debounce time.Duration, fn EdgeFunc) (Button, error) {
	b := &realButton{name: name}
	handler := func(evt gpiocdev.LineEvent) {
		edge := logic.EdgeUp
		if evt.Type == gpiocdev.LineEventRisingEdge {
			edge = logic.EdgeDown
		}
		fn(edge, b.wallTime(evt.Timestamp))
	}

	line, err := c.chip.RequestLine(pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.AsActiveLow,
		gpiocdev.WithDebounce(debounce),
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(handler))
	if err != nil {
		return nil, fmt.Errorf("request %s pin %d: %w", name, pin, err)
	}
	b.line = line
	c.track(line)
	log.Printf("gpio: %s button on pin %d (debounce %v)", name, pin, debounce)
	return b, nil
}

// OpenOutput requests an output line, initially inactive.
func (c *RealChip) OpenOutput(name string, pin int) (Output, error) {
	line, err := c.chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request %s pin %d: %w", name, pin, err)
	}
	c.track(line)
	return &realOutput{name: name, line: line}, nil
}

func (c *RealChip) track(l *gpiocdev.Line) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, l)
}

// Close releases every line and the chip.
// Lines are reconfigured to input with pull-down (matching Pi boot
// defaults) before closing so nothing is left driven after shutdown.
func (c *RealChip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, l := range c.lines {
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure line %d: %w", l.Offset(), err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", l.Offset(), err))
		}
	}
	c.lines = nil
	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

type realButton struct {
	name string
	line *gpiocdev.Line

	once   sync.Once
	offset time.Time
}

// wallTime maps a kernel monotonic timestamp to wall time. The offset is
// fixed at the first event so intervals between events stay exact.
func (b *realButton) wallTime(ts time.Duration) time.Time {
	b.once.Do(func() {
		b.offset = time.Now().Add(-ts)
	})
	return b.offset.Add(ts)
}

// Close is a no-op; lines are released by the chip.
func (b *realButton) Close() error {
	return nil
}

type realOutput struct {
	name string
	line *gpiocdev.Line
}

func (o *realOutput) Activate() error {
	if err := o.line.SetValue(1); err != nil {
		return fmt.Errorf("set %s: %w", o.name, err)
	}
	return nil
}

func (o *realOutput) Deactivate() error {
	if err := o.line.SetValue(0); err != nil {
		return fmt.Errorf("clear %s: %w", o.name, err)
	}
	return nil
}

// Close is a no-op; lines are released by the chip.
func (o *realOutput) Close() error {
	return nil
}
