//go:build !linux

package gpio

import (
	"errors"
	"time"
)

// RealChip is not available on non-Linux platforms.
type RealChip struct{}

// NewRealChip returns an error on non-Linux platforms.
func NewRealChip(name string) (*RealChip, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// OpenButton is not implemented on non-Linux platforms.
func (c *RealChip) OpenButton(name string, pin int, debounce time.Duration, fn EdgeFunc) (Button, error) {
	return nil, errors.New("gpio: not supported")
}

// OpenOutput is not implemented on non-Linux platforms.
func (c *RealChip) OpenOutput(name string, pin int) (Output, error) {
	return nil, errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (c *RealChip) Close() error {
	return nil
}
