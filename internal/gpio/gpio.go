// Package gpio provides GPIO input configuration, reads and edge events with
// hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"time"

	"github.com/sweeney/button-sensor/internal/sensor"
)

// ErrNotConfigured is returned when a pin is read or watched before it has
// been configured as an input.
var ErrNotConfigured = errors.New("pin not configured")

// Event is a single edge reported by the hardware.
type Event struct {
	Pin       int
	Edge      sensor.Edge  // Falling or Rising
	Level     sensor.Level // level after the edge
	Timestamp time.Duration
}

// Handler receives edge events. It may be called from a driver goroutine.
type Handler func(Event)

// Pins is the node's view of the GPIO chip.
type Pins interface {
	sensor.Pins

	// Watch arms edge detection on a configured pin.
	Watch(pin int, edge sensor.Edge, handler Handler) error

	// Close releases GPIO resources.
	Close() error
}

// DefaultChip is the GPIO character device used on a Raspberry Pi.
const DefaultChip = "gpiochip0"

func levelFor(edge sensor.Edge) sensor.Level {
	if edge == sensor.Rising {
		return sensor.High
	}
	return sensor.Low
}
