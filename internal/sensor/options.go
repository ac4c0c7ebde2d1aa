package sensor

// Option customises a sensor at construction time.
// Options that do not apply to a sensor type are ignored by it.
type Option func(*settings)

type settings struct {
	childID        int
	pinInitial     Pull
	readPin        int
	hasReadPin     bool
	readPinInitial Pull
	toggle         bool
	gateInitial    Pull
}

// WithChildID requests a specific child ID. 0 (the default) auto-assigns.
func WithChildID(id int) Option {
	return func(s *settings) { s.childID = id }
}

// WithPinInitialValue sets the pull applied to the interrupt pin at setup.
func WithPinInitialValue(p Pull) Option {
	return func(s *settings) { s.pinInitial = p }
}

// WithReadPin sets a read pin distinct from the interrupt pin (EdgeToggleInput).
func WithReadPin(pin int) Option {
	return func(s *settings) {
		s.readPin = pin
		s.hasReadPin = true
	}
}

// WithReadPinInitialValue sets the pull applied to a distinct read pin
// (EdgeToggleInput). Unset by default.
func WithReadPinInitialValue(p Pull) Option {
	return func(s *settings) { s.readPinInitial = p }
}

// WithToggle selects toggle mode (true) or mirror mode (false) (EdgeToggleInput).
func WithToggle(toggle bool) Option {
	return func(s *settings) { s.toggle = toggle }
}

// WithGatePinInitialValue sets the pull applied to the gate pin
// (LevelGatedToggleInput).
func WithGatePinInitialValue(p Pull) Option {
	return func(s *settings) { s.gateInitial = p }
}

func newSettings(opts []Option) settings {
	s := settings{
		pinInitial:  PullTo(High),
		toggle:      true,
		gateInitial: PullTo(Low),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
