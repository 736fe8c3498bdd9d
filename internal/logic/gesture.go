package logic

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// LongTier is a named long-press threshold. A release whose duration is at
// least Min (and below the next tier's Min) belongs to this tier.
type LongTier struct {
	Name string
	Min  time.Duration
}

// GestureConfig holds the timing thresholds of a button.
type GestureConfig struct {
	ShortMax          time.Duration
	Tiers             []LongTier
	DoubleClickWindow time.Duration
}

// Validate checks the thresholds resolve every duration to at most one gesture.
func (c GestureConfig) Validate() error {
	if c.ShortMax <= 0 {
		return errors.New("short press max must be positive")
	}
	if c.DoubleClickWindow <= 0 {
		return errors.New("double click window must be positive")
	}
	for i, tier := range c.Tiers {
		if tier.Name == "" {
			return fmt.Errorf("long tier %d: empty name", i)
		}
		if tier.Min <= c.ShortMax {
			return fmt.Errorf("long tier %q: threshold %v must exceed short press max %v", tier.Name, tier.Min, c.ShortMax)
		}
		if i > 0 && tier.Min <= c.Tiers[i-1].Min {
			return fmt.Errorf("long tier %q: thresholds must be strictly increasing", tier.Name)
		}
	}
	return nil
}

// Classifier turns press/release edges into gestures for a single button.
// It is not safe for concurrent use; the caller serializes Process and Expire.
type Classifier struct {
	cfg GestureConfig

	pressed    bool
	pressStart time.Time

	clicks        int
	lastClick     time.Duration
	deadline      time.Time
	deadlineArmed bool
}

// NewClassifier creates a classifier. Tiers are sorted by threshold before
// validation so callers may list them in any order.
func NewClassifier(cfg GestureConfig) (*Classifier, error) {
	tiers := append([]LongTier(nil), cfg.Tiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Min < tiers[j].Min })
	cfg.Tiers = tiers
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{cfg: cfg}, nil
}

// Process consumes one edge and returns any gestures it completes.
// A press flushes a pending single click whose window elapsed before it.
// While the button is held the pending click waits for the release.
func (c *Classifier) Process(ev PressEvent) []GestureEvent {
	switch ev.Edge {
	case EdgeDown:
		events := c.Expire(ev.Time)
		c.pressed = true
		c.pressStart = ev.Time
		return events
	case EdgeUp:
		if !c.pressed {
			// Release without a matching press: the down edge was lost.
			return nil
		}
		c.pressed = false
		return c.release(ev.Time.Sub(c.pressStart), ev.Time)
	}
	return nil
}

func (c *Classifier) release(d time.Duration, now time.Time) []GestureEvent {
	if tier, ok := c.tierFor(d); ok {
		// A long press swallows the pending click.
		c.clicks = 0
		c.deadlineArmed = false
		return []GestureEvent{{Kind: GestureLongPress, Tier: tier.Name, Duration: d, Time: now}}
	}

	if d > c.cfg.ShortMax {
		// Dead zone between short and the lowest long tier. Only the
		// pending click, if any, is emitted.
		pending := c.clicks == 1 && c.deadlineArmed
		c.clicks = 0
		c.deadlineArmed = false
		if !pending {
			return nil
		}
		return []GestureEvent{{Kind: GestureShortPress, Duration: c.lastClick, Time: now}}
	}

	c.clicks++
	c.lastClick = d
	if c.clicks >= 2 {
		c.clicks = 0
		c.deadlineArmed = false
		return []GestureEvent{{Kind: GestureDoubleClick, Duration: d, Time: now}}
	}
	c.deadline = now.Add(c.cfg.DoubleClickWindow)
	c.deadlineArmed = true
	return nil
}

// tierFor returns the highest tier whose threshold d reaches.
func (c *Classifier) tierFor(d time.Duration) (LongTier, bool) {
	for i := len(c.cfg.Tiers) - 1; i >= 0; i-- {
		if d >= c.cfg.Tiers[i].Min {
			return c.cfg.Tiers[i], true
		}
	}
	return LongTier{}, false
}

// Expire emits the pending ShortPress once the double-click window has
// passed at now. It returns nil when nothing is pending, the window is open
// or the button is held.
func (c *Classifier) Expire(now time.Time) []GestureEvent {
	if c.pressed || !c.deadlineArmed || now.Before(c.deadline) {
		return nil
	}
	c.deadlineArmed = false
	clicks := c.clicks
	c.clicks = 0
	if clicks != 1 {
		return nil
	}
	return []GestureEvent{{Kind: GestureShortPress, Duration: c.lastClick, Time: c.deadline}}
}

// Deadline reports when the pending single click window closes.
func (c *Classifier) Deadline() (time.Time, bool) {
	return c.deadline, c.deadlineArmed
}

// Pressed reports whether the button is currently held.
func (c *Classifier) Pressed() bool {
	return c.pressed
}
