package sensor

import "fmt"

// EdgeToggleInput reacts to a falling edge on its interrupt pin and either
// toggles its reported value (while the read pin is LOW) or mirrors the read
// pin's level.
type EdgeToggleInput struct {
	name           string
	pins           Pins
	edges          EdgeCapture
	child          Channel
	interruptPin   int
	pinInitial     Pull
	readPin        int
	readPinInitial Pull
	toggle         bool
}

// NewEdgeToggleInput creates an EdgeToggleInput armed on interruptPin.
// Without WithReadPin the interrupt pin doubles as the read pin.
func NewEdgeToggleInput(deps Deps, interruptPin int, opts ...Option) *EdgeToggleInput {
	s := newSettings(opts)
	readPin := interruptPin
	if s.hasReadPin {
		readPin = s.readPin
	}
	e := &EdgeToggleInput{
		name:           "InterruptedToggleButton",
		pins:           deps.Pins,
		edges:          deps.Edges,
		interruptPin:   interruptPin,
		pinInitial:     s.pinInitial,
		readPin:        readPin,
		readPinInitial: s.readPinInitial,
		toggle:         s.toggle,
	}
	e.child = deps.Children.AllocateChild(s.childID, e.name)
	return e
}

// Name returns the sensor type name.
func (e *EdgeToggleInput) Name() string { return e.name }

// Child returns the reported channel.
func (e *EdgeToggleInput) Child() Channel { return e.child }

// InterruptPin returns the pin the interrupt is armed on.
func (e *EdgeToggleInput) InterruptPin() int { return e.interruptPin }

// InterruptEdge always returns Falling.
func (e *EdgeToggleInput) InterruptEdge() Edge { return Falling }

// ReadPin returns the pin sampled on interrupt.
func (e *EdgeToggleInput) ReadPin() int { return e.readPin }

// Toggle reports whether toggle mode is enabled.
func (e *EdgeToggleInput) Toggle() bool { return e.toggle }

// Pins returns the interrupt pin, followed by the read pin when distinct.
func (e *EdgeToggleInput) Pins() []int {
	if e.readPin == e.interruptPin {
		return []int{e.interruptPin}
	}
	return []int{e.interruptPin, e.readPin}
}

// OnSetup configures both pins as pulled-up inputs and requests
// unprocessed, immediate reporting.
func (e *EdgeToggleInput) OnSetup() error {
	if err := applyPull(e.pins, e.interruptPin, InputPullUp, e.pinInitial); err != nil {
		return fmt.Errorf("setup interrupt pin %d: %w", e.interruptPin, err)
	}
	if e.readPin != e.interruptPin {
		if err := applyPull(e.pins, e.readPin, InputPullUp, e.readPinInitial); err != nil {
			return fmt.Errorf("setup read pin %d: %w", e.readPin, err)
		}
	}
	e.child.SetValueProcessing(ProcessingNone)
	e.child.SetReportMode(ReportImmediately)
	return nil
}

// OnInterrupt applies the toggle or mirror policy for one falling edge.
func (e *EdgeToggleInput) OnInterrupt() error {
	value := invert(e.child.LastValue())

	var level Level
	if e.readPin != e.interruptPin {
		l, err := e.pins.Read(e.readPin)
		if err != nil {
			return fmt.Errorf("read pin %d: %w", e.readPin, err)
		}
		level = l
	} else {
		// The edge that just fired already tells us the level.
		level = e.edges.LastInterruptLevel()
	}

	if !e.toggle {
		e.child.SetValue(int(level))
		return nil
	}
	if level == Low {
		e.child.SetValue(value)
	}
	return nil
}
