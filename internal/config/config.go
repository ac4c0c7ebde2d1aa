// Package config loads the node's sensor layout from a YAML file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/sweeney/button-sensor/internal/sensor"
)

// Sensor kinds accepted in the config file.
const (
	KindEdgeToggle = "edge-toggle"
	KindLevelGated = "level-gated"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the file layout. Durations are given in milliseconds, as
// integer fields, and converted by Load.
type Config struct {
	NodeID           int            `yaml:"node_id"`
	Chip             string         `yaml:"chip"`
	Interrupts       bool           `yaml:"interrupts"`
	PollMs           int            `yaml:"poll_ms"`
	DebounceMs       int            `yaml:"debounce_ms"`
	ReportIntervalMs int            `yaml:"report_interval_ms"`
	HeartbeatMs      int            `yaml:"heartbeat_ms"`
	MQTT             MQTTConfig     `yaml:"mqtt"`
	HTTPAddr         string         `yaml:"http"`
	Sensors          []SensorConfig `yaml:"sensors"`

	Poll           time.Duration `yaml:"-"`
	Debounce       time.Duration `yaml:"-"`
	ReportInterval time.Duration `yaml:"-"`
	Heartbeat      time.Duration `yaml:"-"`
}

// MQTTConfig configures the report transport.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Prefix   string `yaml:"prefix"`
	Buffer   int    `yaml:"buffer"`
}

// SensorConfig describes one sensor. Pull values are "high", "low" or
// "none"; an empty string keeps the sensor's default.
type SensorConfig struct {
	Kind         string `yaml:"kind"`
	ChildID      int    `yaml:"child_id"`
	InterruptPin int    `yaml:"interrupt_pin"`
	Pull         string `yaml:"pull"` // edge-toggle only; a level-gated interrupt line is left unbiased

	// edge-toggle
	ReadPin  *int   `yaml:"read_pin"`
	ReadPull string `yaml:"read_pull"`
	Toggle   *bool  `yaml:"toggle"`

	// level-gated
	GatePin  *int   `yaml:"gate_pin"`
	GatePull string `yaml:"gate_pull"`
}

// Default returns the built-in configuration: one edge-toggle button on
// BCM 17 with interrupts enabled.
func Default() *Config {
	return &Config{
		NodeID:           1,
		Chip:             "gpiochip0",
		Interrupts:       true,
		PollMs:           10,
		DebounceMs:       20,
		ReportIntervalMs: 60000,
		HeartbeatMs:      900000,
		MQTT: MQTTConfig{
			Broker:   "tcp://192.168.1.200:1883",
			ClientID: "button-sensor",
			Prefix:   "mysensors-out",
			Buffer:   100,
		},
		HTTPAddr: ":80",
		Sensors: []SensorConfig{
			{Kind: KindEdgeToggle, InterruptPin: 17},
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config %q: %w", path, err)
		}
		defer func() { _ = file.Close() }()
		if err := c.Decode(file); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}
	if err := c.finish(); err != nil {
		return nil, err
	}
	return c, nil
}

// Decode reads YAML from r into c. Fields absent from the document keep
// their current values; a sensors list replaces the default one.
func (c *Config) Decode(r io.Reader) error {
	decoder := yaml.NewDecoder(r)
	decoder.SetStrict(true)
	if err := decoder.Decode(c); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// Finish converts durations and validates c. Call it after overriding
// fields from flags.
func (c *Config) Finish() error {
	return c.finish()
}

func (c *Config) finish() error {
	c.Poll = time.Duration(c.PollMs) * time.Millisecond
	c.Debounce = time.Duration(c.DebounceMs) * time.Millisecond
	c.ReportInterval = time.Duration(c.ReportIntervalMs) * time.Millisecond
	c.Heartbeat = time.Duration(c.HeartbeatMs) * time.Millisecond
	return c.validate()
}

func (c *Config) validate() error {
	if c.NodeID < 0 || c.NodeID > 254 {
		return fmt.Errorf("%w: node_id %d out of range 0..254", ErrInvalid, c.NodeID)
	}
	if !c.Interrupts && c.PollMs <= 0 {
		return fmt.Errorf("%w: poll_ms must be positive when interrupts are disabled", ErrInvalid)
	}
	if len(c.Sensors) == 0 {
		return fmt.Errorf("%w: no sensors configured", ErrInvalid)
	}

	ids := make(map[int]int)
	for i, s := range c.Sensors {
		if err := s.validate(); err != nil {
			return fmt.Errorf("%w: sensor %d: %v", ErrInvalid, i, err)
		}
		if s.ChildID != 0 {
			if prev, ok := ids[s.ChildID]; ok {
				return fmt.Errorf("%w: sensor %d: child_id %d already used by sensor %d", ErrInvalid, i, s.ChildID, prev)
			}
			ids[s.ChildID] = i
		}
	}
	return nil
}

func (s SensorConfig) validate() error {
	if s.InterruptPin < 0 {
		return fmt.Errorf("interrupt_pin %d is negative", s.InterruptPin)
	}
	if s.ChildID < 0 || s.ChildID > 254 {
		return fmt.Errorf("child_id %d out of range 0..254", s.ChildID)
	}
	if _, err := ParsePull(s.Pull); err != nil {
		return err
	}

	switch s.Kind {
	case KindEdgeToggle:
		if s.GatePin != nil || s.GatePull != "" {
			return errors.New("gate_pin/gate_pull apply to level-gated sensors only")
		}
		if s.ReadPin != nil && *s.ReadPin < 0 {
			return fmt.Errorf("read_pin %d is negative", *s.ReadPin)
		}
		if _, err := ParsePull(s.ReadPull); err != nil {
			return err
		}
	case KindLevelGated:
		if s.Pull != "" || s.ReadPin != nil || s.ReadPull != "" || s.Toggle != nil {
			return errors.New("pull/read_pin/read_pull/toggle apply to edge-toggle sensors only")
		}
		if s.GatePin == nil {
			return errors.New("gate_pin is required")
		}
		if *s.GatePin == s.InterruptPin {
			return fmt.Errorf("gate_pin %d equals interrupt_pin", *s.GatePin)
		}
		if _, err := ParsePull(s.GatePull); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown kind %q", s.Kind)
	}
	return nil
}

// ParsePull converts a config pull string. The empty string yields nil,
// meaning "keep the default".
func ParsePull(s string) (*sensor.Pull, error) {
	var p sensor.Pull
	switch s {
	case "":
		return nil, nil
	case "high":
		p = sensor.PullTo(sensor.High)
	case "low":
		p = sensor.PullTo(sensor.Low)
	case "none":
		p = sensor.NoPull
	default:
		return nil, fmt.Errorf("unknown pull %q (want high, low or none)", s)
	}
	return &p, nil
}

// Options converts the sensor entry into constructor options.
func (s SensorConfig) Options() []sensor.Option {
	opts := []sensor.Option{sensor.WithChildID(s.ChildID)}
	if p, _ := ParsePull(s.Pull); p != nil {
		opts = append(opts, sensor.WithPinInitialValue(*p))
	}
	if s.ReadPin != nil {
		opts = append(opts, sensor.WithReadPin(*s.ReadPin))
	}
	if p, _ := ParsePull(s.ReadPull); p != nil {
		opts = append(opts, sensor.WithReadPinInitialValue(*p))
	}
	if s.Toggle != nil {
		opts = append(opts, sensor.WithToggle(*s.Toggle))
	}
	if p, _ := ParsePull(s.GatePull); p != nil {
		opts = append(opts, sensor.WithGatePinInitialValue(*p))
	}
	return opts
}

// Build constructs the configured sensors against deps. Callers register
// each returned sensor with the node that supplied deps.
func (c *Config) Build(deps sensor.Deps) ([]sensor.Sensor, error) {
	out := make([]sensor.Sensor, 0, len(c.Sensors))
	for i, s := range c.Sensors {
		switch s.Kind {
		case KindEdgeToggle:
			out = append(out, sensor.NewEdgeToggleInput(deps, s.InterruptPin, s.Options()...))
		case KindLevelGated:
			g, err := sensor.NewLevelGatedToggleInput(deps, *s.GatePin, s.InterruptPin, s.Options()...)
			if err != nil {
				return nil, fmt.Errorf("sensor %d: %w", i, err)
			}
			out = append(out, g)
		default:
			return nil, fmt.Errorf("%w: sensor %d: unknown kind %q", ErrInvalid, i, s.Kind)
		}
	}
	return out, nil
}
