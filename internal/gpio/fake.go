package gpio

import (
	"fmt"
	"sync"

	"github.com/sweeney/button-sensor/internal/sensor"
)

// FakePins is a test double that returns scripted levels and lets tests
// inject edges.
type FakePins struct {
	mu sync.Mutex

	// Modes records the last ConfigureInput mode per pin.
	Modes map[int]sensor.InputMode

	// Pulls records the last pull level applied per pin.
	Pulls map[int]sensor.Level

	// Watched records the edge each pin is armed on.
	Watched map[int]sensor.Edge

	// ReadError, if set, will be returned by Read().
	ReadError error

	// Closed tracks if Close was called.
	Closed bool

	levels   map[int]sensor.Level
	samples  map[int][]sensor.Level
	index    map[int]int
	handlers map[int]Handler
	order    []string
}

// NewFakePins creates an empty FakePins. Unset pins read LOW.
func NewFakePins() *FakePins {
	return &FakePins{
		Modes:    make(map[int]sensor.InputMode),
		Pulls:    make(map[int]sensor.Level),
		Watched:  make(map[int]sensor.Edge),
		levels:   make(map[int]sensor.Level),
		samples:  make(map[int][]sensor.Level),
		index:    make(map[int]int),
		handlers: make(map[int]Handler),
	}
}

// ConfigureInput records the pin mode.
func (f *FakePins) ConfigureInput(pin int, mode sensor.InputMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Modes[pin] = mode
	f.order = append(f.order, fmt.Sprintf("configure %d", pin))
	return nil
}

// SetPull records the pull level.
func (f *FakePins) SetPull(pin int, level sensor.Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Modes[pin]; !ok {
		return fmt.Errorf("pin %d: %w", pin, ErrNotConfigured)
	}
	f.Pulls[pin] = level
	f.order = append(f.order, fmt.Sprintf("pull %d", pin))
	return nil
}

// Read returns the next scripted sample for pin, if any remain, otherwise
// its current level. The last scripted sample is repeated once exhausted.
func (f *FakePins) Read(pin int) (sensor.Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return sensor.Low, f.ReadError
	}
	if s := f.samples[pin]; len(s) > 0 {
		i := f.index[pin]
		if i < len(s)-1 {
			f.index[pin] = i + 1
		}
		f.levels[pin] = s[i]
	}
	return f.levels[pin], nil
}

// Watch records the armed edge and handler.
func (f *FakePins) Watch(pin int, edge sensor.Edge, handler Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Modes[pin]; !ok {
		return fmt.Errorf("pin %d: %w", pin, ErrNotConfigured)
	}
	f.Watched[pin] = edge
	f.handlers[pin] = handler
	f.order = append(f.order, fmt.Sprintf("watch %d", pin))
	return nil
}

// SetLevel sets the level returned by Read without firing an edge.
func (f *FakePins) SetLevel(pin int, level sensor.Level) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels[pin] = level
	delete(f.samples, pin)
}

// Script makes successive reads of pin return levels in order.
func (f *FakePins) Script(pin int, levels ...sensor.Level) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples[pin] = levels
	f.index[pin] = 0
}

// Fire sets pin to the level after edge and delivers the event if the pin is
// armed for it. It reports whether a handler was invoked.
func (f *FakePins) Fire(pin int, edge sensor.Edge) bool {
	f.mu.Lock()
	level := levelFor(edge)
	f.levels[pin] = level
	h := f.handlers[pin]
	armed, ok := f.Watched[pin]
	f.mu.Unlock()

	if h == nil || !ok || (armed != sensor.BothEdges && armed != edge) {
		return false
	}
	h(Event{Pin: pin, Edge: edge, Level: level})
	return true
}

// Order returns the sequence of configure/pull/watch calls.
func (f *FakePins) Order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

// Close marks the pins as closed.
func (f *FakePins) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Reset rewinds every script.
func (f *FakePins) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for pin := range f.index {
		f.index[pin] = 0
	}
	f.Closed = false
}
