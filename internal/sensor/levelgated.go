package sensor

import (
	"errors"
	"fmt"
)

// ErrSharedGatePin is returned when the gate pin equals the interrupt pin.
var ErrSharedGatePin = errors.New("gate pin must differ from interrupt pin")

// LevelGatedToggleInput toggles its reported value on a falling edge of the
// interrupt pin, but only while the gate pin reads LOW.
type LevelGatedToggleInput struct {
	name         string
	pins         Pins
	child        Channel
	interruptPin int
	pinInitial   Pull
	gatePin      int
	gateInitial  Pull
}

// NewLevelGatedToggleInput creates a LevelGatedToggleInput reading gatePin
// whenever interruptPin fires.
func NewLevelGatedToggleInput(deps Deps, gatePin, interruptPin int, opts ...Option) (*LevelGatedToggleInput, error) {
	if gatePin == interruptPin {
		return nil, fmt.Errorf("pin %d: %w", gatePin, ErrSharedGatePin)
	}
	s := newSettings(opts)
	g := &LevelGatedToggleInput{
		name:         "InterruptedToggleButton",
		pins:         deps.Pins,
		interruptPin: interruptPin,
		pinInitial:   s.pinInitial,
		gatePin:      gatePin,
		gateInitial:  s.gateInitial,
	}
	g.child = deps.Children.AllocateChild(s.childID, g.name)
	return g, nil
}

// Name returns the sensor type name.
func (g *LevelGatedToggleInput) Name() string { return g.name }

// Child returns the reported channel.
func (g *LevelGatedToggleInput) Child() Channel { return g.child }

// InterruptPin returns the pin the interrupt is armed on.
func (g *LevelGatedToggleInput) InterruptPin() int { return g.interruptPin }

// InterruptEdge always returns Falling.
func (g *LevelGatedToggleInput) InterruptEdge() Edge { return Falling }

// GatePin returns the pin whose level decides whether an interrupt toggles.
func (g *LevelGatedToggleInput) GatePin() int { return g.gatePin }

// Pins returns the interrupt pin and the gate pin.
func (g *LevelGatedToggleInput) Pins() []int {
	return []int{g.interruptPin, g.gatePin}
}

// OnSetup configures both pins as plain inputs and applies the gate pin's
// pull. The interrupt pin's initial value is recorded but not applied: the
// trigger source is expected to drive its own line.
func (g *LevelGatedToggleInput) OnSetup() error {
	if err := g.pins.ConfigureInput(g.interruptPin, Input); err != nil {
		return fmt.Errorf("setup interrupt pin %d: %w", g.interruptPin, err)
	}
	if err := applyPull(g.pins, g.gatePin, Input, g.gateInitial); err != nil {
		return fmt.Errorf("setup gate pin %d: %w", g.gatePin, err)
	}
	g.child.SetValueProcessing(ProcessingNone)
	g.child.SetReportMode(ReportImmediately)
	return nil
}

// OnInterrupt toggles the channel when the gate pin is LOW.
func (g *LevelGatedToggleInput) OnInterrupt() error {
	level, err := g.pins.Read(g.gatePin)
	if err != nil {
		return fmt.Errorf("read gate pin %d: %w", g.gatePin, err)
	}
	if level == Low {
		g.child.SetValue(invert(g.child.LastValue()))
	}
	return nil
}
