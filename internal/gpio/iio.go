package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// standardGravity converts IIO accelerations (m/s²) to g.
const standardGravity = 9.80665

// IIOLevelReader reads a gas concentration from an IIO sysfs attribute,
// e.g. /sys/bus/iio/devices/iio:device0/in_concentration_co2_raw.
type IIOLevelReader struct {
	Path  string
	Scale float64
}

// NewIIOLevelReader creates a reader for path. A matching *_scale
// attribute next to a *_raw attribute is applied when present.
func NewIIOLevelReader(path string) *IIOLevelReader {
	r := &IIOLevelReader{Path: path, Scale: 1}
	if strings.HasSuffix(path, "_raw") {
		scalePath := strings.TrimSuffix(path, "_raw") + "_scale"
		if s, err := readFloat(scalePath); err == nil && s > 0 {
			r.Scale = s
		}
	}
	return r
}

func (r *IIOLevelReader) ReadLevel() (float64, error) {
	v, err := readFloat(r.Path)
	if err != nil {
		return 0, err
	}
	return v * r.Scale, nil
}

// IIOAccelReader reads a three-axis accelerometer exposed through IIO.
type IIOAccelReader struct {
	Dir   string
	scale float64
}

// NewIIOAccelReader opens the accelerometer device directory.
func NewIIOAccelReader(dir string) (*IIOAccelReader, error) {
	scale, err := readFloat(filepath.Join(dir, "in_accel_scale"))
	if err != nil {
		return nil, fmt.Errorf("accelerometer scale: %w", err)
	}
	return &IIOAccelReader{Dir: dir, scale: scale}, nil
}

func (r *IIOAccelReader) ReadAccel() (x, y, z float64, err error) {
	var v [3]float64
	for i, axis := range []string{"x", "y", "z"} {
		raw, err := readFloat(filepath.Join(r.Dir, "in_accel_"+axis+"_raw"))
		if err != nil {
			return 0, 0, 0, err
		}
		v[i] = raw * r.scale / standardGravity
	}
	return v[0], v[1], v[2], nil
}

func readFloat(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}
