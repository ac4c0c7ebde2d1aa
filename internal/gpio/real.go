//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/button-sensor/internal/sensor"
)

// RealPins drives GPIO lines on actual hardware using Linux GPIO character device.
type RealPins struct {
	chip     *gpiocdev.Chip
	debounce time.Duration

	mu       sync.Mutex
	lines    map[int]*gpiocdev.Line
	handlers map[int]Handler
}

// NewRealPins opens the named chip. A non-zero debounce is applied in the
// kernel to every watched line.
func NewRealPins(chipName string, debounce time.Duration) (*RealPins, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}
	return &RealPins{
		chip:     chip,
		debounce: debounce,
		lines:    make(map[int]*gpiocdev.Line),
		handlers: make(map[int]Handler),
	}, nil
}

// ConfigureInput requests the line as an input, or reconfigures it if it is
// already held.
func (r *RealPins) ConfigureInput(pin int, mode sensor.InputMode) error {
	bias := gpiocdev.WithBiasDisabled
	if mode == sensor.InputPullUp {
		bias = gpiocdev.WithPullUp
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if line, ok := r.lines[pin]; ok {
		if err := line.Reconfigure(gpiocdev.AsInput, bias); err != nil {
			return fmt.Errorf("reconfigure pin %d: %w", pin, err)
		}
		return nil
	}

	// The event handler can only be attached at request time, so every line
	// gets one and events are dispatched by offset once Watch arms them.
	line, err := r.chip.RequestLine(pin, gpiocdev.AsInput, bias, gpiocdev.WithEventHandler(r.handle))
	if err != nil {
		return fmt.Errorf("request pin %d: %w", pin, err)
	}
	r.lines[pin] = line
	return nil
}

// SetPull biases an input towards level.
func (r *RealPins) SetPull(pin int, level sensor.Level) error {
	bias := gpiocdev.WithPullDown
	if level == sensor.High {
		bias = gpiocdev.WithPullUp
	}

	line, err := r.line(pin)
	if err != nil {
		return err
	}
	if err := line.Reconfigure(bias); err != nil {
		return fmt.Errorf("set pull on pin %d: %w", pin, err)
	}
	return nil
}

// Read returns the pin's current level.
func (r *RealPins) Read(pin int) (sensor.Level, error) {
	line, err := r.line(pin)
	if err != nil {
		return sensor.Low, err
	}
	v, err := line.Value()
	if err != nil {
		return sensor.Low, fmt.Errorf("read pin %d: %w", pin, err)
	}
	if v == 0 {
		return sensor.Low, nil
	}
	return sensor.High, nil
}

// Watch enables edge detection on pin and routes its events to handler.
func (r *RealPins) Watch(pin int, edge sensor.Edge, handler Handler) error {
	line, err := r.line(pin)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.handlers[pin] = handler
	r.mu.Unlock()

	opts := []gpiocdev.LineConfigOption{edgeOption(edge)}
	if r.debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(r.debounce))
	}
	if err := line.Reconfigure(opts...); err != nil {
		r.mu.Lock()
		delete(r.handlers, pin)
		r.mu.Unlock()
		return fmt.Errorf("watch pin %d: %w", pin, err)
	}
	return nil
}

func (r *RealPins) handle(evt gpiocdev.LineEvent) {
	r.mu.Lock()
	h := r.handlers[evt.Offset]
	r.mu.Unlock()
	if h == nil {
		return
	}

	e := Event{
		Pin:       evt.Offset,
		Edge:      sensor.Rising,
		Timestamp: evt.Timestamp,
	}
	if evt.Type == gpiocdev.LineEventFallingEdge {
		e.Edge = sensor.Falling
	}
	e.Level = levelFor(e.Edge)
	h(e)
}

func (r *RealPins) line(pin int) (*gpiocdev.Line, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	line, ok := r.lines[pin]
	if !ok {
		return nil, fmt.Errorf("pin %d: %w", pin, ErrNotConfigured)
	}
	return line, nil
}

func edgeOption(edge sensor.Edge) gpiocdev.LineConfigOption {
	switch edge {
	case sensor.Rising:
		return gpiocdev.WithRisingEdge
	case sensor.BothEdges:
		return gpiocdev.WithBothEdges
	default:
		return gpiocdev.WithFallingEdge
	}
}

// Close releases GPIO resources.
// Reconfigures pins to input with pull-down (matching Pi boot defaults) before
// closing to ensure clean state for system shutdown/reboot.
func (r *RealPins) Close() error {
	r.mu.Lock()
	lines := r.lines
	r.lines = make(map[int]*gpiocdev.Line)
	r.handlers = make(map[int]Handler)
	r.mu.Unlock()

	var errs []error
	for pin, line := range lines {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
		}
		// Close waits for a running event handler, so it must not be called
		// from one.
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
