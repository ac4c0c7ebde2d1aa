// Package edge turns polled pin levels into debounced edge transitions.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package edge

import (
	"time"

	"github.com/sweeney/button-sensor/internal/sensor"
)

// Transition is a debounced edge observed on a polled pin.
type Transition struct {
	Timestamp time.Time
	Edge      sensor.Edge // Falling or Rising
	Level     sensor.Level
}

// Detector tracks one pin's stable level and detects debounced transitions.
type Detector struct {
	debounceDuration time.Duration
	stable           sensor.Level
	pending          sensor.Level
	pendingSince     time.Time
	hasPending       bool
	baselined        bool
}

// NewDetector creates a detector with the given debounce duration.
// A zero duration reports every change on the sample that observes it.
func NewDetector(debounceDuration time.Duration) *Detector {
	return &Detector{debounceDuration: debounceDuration}
}

// Process takes a new sample and returns a transition, or nil.
// Transitions are only returned after a baseline has been established.
func (d *Detector) Process(level sensor.Level, now time.Time) *Transition {
	// First time seeing this pin
	if !d.baselined {
		if !d.hasPending || d.pending != level {
			// Start (or restart) observing
			d.pending = level
			d.pendingSince = now
			d.hasPending = true
		}
		if now.Sub(d.pendingSince) >= d.debounceDuration {
			d.stable = level
			d.baselined = true
			d.hasPending = false
		}
		return nil
	}

	if level == d.stable {
		// No change from stable state, clear any pending
		d.hasPending = false
		return nil
	}

	if !d.hasPending || d.pending != level {
		d.pending = level
		d.pendingSince = now
		d.hasPending = true
	}

	if now.Sub(d.pendingSince) < d.debounceDuration {
		return nil
	}

	d.stable = level
	d.hasPending = false
	tr := &Transition{Timestamp: now, Level: level, Edge: sensor.Rising}
	if level == sensor.Low {
		tr.Edge = sensor.Falling
	}
	return tr
}

// IsBaselined returns whether the detector has established a baseline.
func (d *Detector) IsBaselined() bool {
	return d.baselined
}

// Stable returns the current debounced level.
func (d *Detector) Stable() sensor.Level {
	return d.stable
}

// Matches reports whether t should fire an interrupt armed on e.
func Matches(e sensor.Edge, t Transition) bool {
	switch e {
	case sensor.BothEdges:
		return true
	default:
		return e == t.Edge
	}
}
