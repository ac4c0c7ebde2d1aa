// Package sensor contains the interrupt-driven input state machines.
// This package has NO hardware or transport dependencies: pins, the edge
// detector and the reported channel are all collaborators injected at
// construction time.
package sensor

// Level is a digital pin level.
type Level int

const (
	Low  Level = 0
	High Level = 1
)

// String returns "LOW" or "HIGH".
func (l Level) String() string {
	if l == Low {
		return "LOW"
	}
	return "HIGH"
}

// Pull is an optional pull level applied to an input pin during setup.
// The zero value is NoPull, meaning the pin is left undriven.
type Pull struct {
	level Level
	set   bool
}

// NoPull leaves the pin's bias untouched.
var NoPull = Pull{}

// PullTo returns a Pull that drives the pin towards l.
func PullTo(l Level) Pull {
	return Pull{level: l, set: true}
}

// Level returns the configured level and whether one is set.
func (p Pull) Level() (Level, bool) {
	return p.level, p.set
}

// String returns "NONE" for NoPull, otherwise the level name.
func (p Pull) String() string {
	if !p.set {
		return "NONE"
	}
	return p.level.String()
}

// InputMode selects how a pin is configured as an input.
type InputMode int

const (
	// Input is a plain input relying on external pull resistors.
	Input InputMode = iota
	// InputPullUp enables the internal pull-up.
	InputPullUp
)

// Edge is the interrupt trigger mode.
type Edge int

const (
	Falling Edge = iota
	Rising
	BothEdges
)

func (e Edge) String() string {
	switch e {
	case Falling:
		return "FALLING"
	case Rising:
		return "RISING"
	default:
		return "BOTH"
	}
}

// Processing selects how a channel aggregates values between reports.
type Processing int

const (
	// ProcessingNone reports the instantaneous value.
	ProcessingNone Processing = iota
	// ProcessingAverage reports the mean of samples since the last report.
	ProcessingAverage
)

// ReportMode selects when changed channel values are transmitted.
type ReportMode int

const (
	// ReportInterval batches changes until the node's report interval elapses.
	ReportInterval ReportMode = iota
	// ReportImmediately transmits every change as soon as the handler returns.
	ReportImmediately
)

// Pins is the pin I/O surface a sensor needs.
type Pins interface {
	// ConfigureInput sets the pin as an input in the given mode.
	ConfigureInput(pin int, mode InputMode) error

	// SetPull applies a pull level to an input pin.
	SetPull(pin int, level Level) error

	// Read samples the pin's current level.
	Read(pin int) (Level, error)
}

// EdgeCapture reports the level observed when the current interrupt fired,
// without an additional read of the pin.
type EdgeCapture interface {
	LastInterruptLevel() Level
}

// Channel is the single logical output owned by one sensor.
type Channel interface {
	// ID returns the child ID the channel is addressed by.
	ID() int

	// LastValue returns the last value written.
	LastValue() int

	// SetValue records a new value and makes it eligible for reporting.
	SetValue(v int)

	SetValueProcessing(p Processing)
	SetReportMode(m ReportMode)
}

// ChildAllocator hands out channels with node-unique IDs.
type ChildAllocator interface {
	// AllocateChild returns a channel for the requested ID, or an
	// automatically assigned one when requested is 0 or already taken.
	AllocateChild(requested int, name string) Channel
}

// Deps bundles the collaborators every sensor is built with.
type Deps struct {
	Pins     Pins
	Edges    EdgeCapture
	Children ChildAllocator
}

// Sensor is a component driven by the node's setup and interrupt callbacks.
type Sensor interface {
	// Name identifies the sensor type in presentation and logs.
	Name() string

	// Child returns the channel the sensor reports through.
	Child() Channel

	// InterruptPin returns the pin the interrupt is armed on.
	InterruptPin() int

	// InterruptEdge returns the edge the interrupt triggers on.
	InterruptEdge() Edge

	// Pins returns every pin the sensor reads, interrupt pin first.
	Pins() []int

	// OnSetup configures pins and channel. It runs before interrupts are armed.
	OnSetup() error

	// OnInterrupt handles one qualifying edge on the interrupt pin.
	OnInterrupt() error
}

func invert(v int) int {
	if v == 0 {
		return 1
	}
	return 0
}

// applyPull configures pin as an input and applies pull when set.
func applyPull(pins Pins, pin int, mode InputMode, pull Pull) error {
	if err := pins.ConfigureInput(pin, mode); err != nil {
		return err
	}
	if l, ok := pull.Level(); ok {
		if err := pins.SetPull(pin, l); err != nil {
			return err
		}
	}
	return nil
}
