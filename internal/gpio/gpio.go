// Package gpio is the hardware context of a study station.
// The real implementation uses the Linux GPIO character device and IIO
// sysfs sensors. The simulated implementation runs on any machine, and
// the fakes allow testing without hardware.
package gpio

import (
	"time"

	"github.com/sweeney/study-station/internal/logic"
)

// EdgeFunc receives button edges. It is called on the line's event goroutine.
type EdgeFunc func(edge logic.Edge, at time.Time)

// Button is an open button line delivering edges to its EdgeFunc.
type Button interface {
	Close() error
}

// Output is a digital output such as the alarm LED or the buzzer.
type Output interface {
	Activate() error
	Deactivate() error
	Close() error
}

// LevelReader reads the air-quality sensor in ppm.
type LevelReader interface {
	ReadLevel() (float64, error)
}

// AccelReader reads one accelerometer sample in g.
type AccelReader interface {
	ReadAccel() (x, y, z float64, err error)
}

// Hardware opens the GPIO lines of one device. It is chosen once at
// startup and injected into the components that need it.
type Hardware interface {
	OpenButton(name string, pin int, debounce time.Duration, fn EdgeFunc) (Button, error)
	OpenOutput(name string, pin int) (Output, error)
	Close() error
}

// Default pins (BCM numbering)
const (
	PinStart  = 17
	PinBreak  = 27
	PinLED    = 22
	PinBuzzer = 18
)
