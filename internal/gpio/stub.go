//go:build !linux

package gpio

import (
	"errors"
	"time"

	"github.com/sweeney/button-sensor/internal/sensor"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealPins is not available on non-Linux platforms.
type RealPins struct{}

// NewRealPins returns an error on non-Linux platforms.
func NewRealPins(chipName string, debounce time.Duration) (*RealPins, error) {
	return nil, errUnsupported
}

func (r *RealPins) ConfigureInput(pin int, mode sensor.InputMode) error { return errUnsupported }
func (r *RealPins) SetPull(pin int, level sensor.Level) error { return errUnsupported }
func (r *RealPins) Read(pin int) (sensor.Level, error) { return sensor.Low, errUnsupported }
func (r *RealPins) Watch(pin int, edge sensor.Edge, handler Handler) error {
	return errUnsupported
}

// Close is a no-op on non-Linux platforms.
func (r *RealPins) Close() error {
	return nil
}
