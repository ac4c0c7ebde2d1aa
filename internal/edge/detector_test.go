package edge

import (
	"testing"
	"time"

	"github.com/sweeney/button-sensor/internal/sensor"
)

func setupBaselinedDetector(t *testing.T, level sensor.Level) *Detector {
	t.Helper()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(250 * time.Millisecond)
	d.Process(level, now)
	d.Process(level, now.Add(250*time.Millisecond))
	if !d.IsBaselined() {
		t.Fatal("setup: detector should be baselined")
	}
	return d
}

func TestNewDetector(t *testing.T) {
	d := NewDetector(250 * time.Millisecond)
	if d == nil {
		t.Fatal("NewDetector returned nil")
	}
	if d.debounceDuration != 250*time.Millisecond {
		t.Errorf("expected debounce duration 250ms, got %v", d.debounceDuration)
	}
	if d.IsBaselined() {
		t.Error("new detector should not be baselined")
	}
}

func TestBaselineEstablishment(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(250 * time.Millisecond)

	if tr := d.Process(sensor.High, now); tr != nil {
		t.Errorf("expected no transition during baseline, got %+v", tr)
	}
	if d.IsBaselined() {
		t.Error("should not be baselined after first sample")
	}

	d.Process(sensor.High, now.Add(200*time.Millisecond))
	if d.IsBaselined() {
		t.Error("should not be baselined before debounce period")
	}

	if tr := d.Process(sensor.High, now.Add(250*time.Millisecond)); tr != nil {
		t.Errorf("expected no transition at baseline establishment, got %+v", tr)
	}
	if !d.IsBaselined() {
		t.Error("should be baselined after debounce period")
	}
	if d.Stable() != sensor.High {
		t.Errorf("expected stable HIGH, got %s", d.Stable())
	}
}

func TestBaselineResetOnChange(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(250 * time.Millisecond)

	d.Process(sensor.High, now)
	d.Process(sensor.Low, now.Add(100*time.Millisecond))
	d.Process(sensor.Low, now.Add(250*time.Millisecond))
	if d.IsBaselined() {
		t.Error("baseline timer should restart on change")
	}

	d.Process(sensor.Low, now.Add(350*time.Millisecond))
	if !d.IsBaselined() {
		t.Error("should be baselined after debounce from state change")
	}
	if d.Stable() != sensor.Low {
		t.Errorf("expected stable LOW, got %s", d.Stable())
	}
}

func TestZeroDebounce(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(0)

	d.Process(sensor.High, now)
	if !d.IsBaselined() {
		t.Fatal("zero debounce should baseline on the first sample")
	}
	tr := d.Process(sensor.Low, now.Add(time.Millisecond))
	if tr == nil || tr.Edge != sensor.Falling {
		t.Fatalf("expected immediate falling transition, got %+v", tr)
	}
}

func TestFallingTransition(t *testing.T) {
	d := setupBaselinedDetector(t, sensor.High)
	now := time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC)

	if tr := d.Process(sensor.Low, now); tr != nil {
		t.Errorf("expected no transition before debounce, got %+v", tr)
	}
	if tr := d.Process(sensor.Low, now.Add(200*time.Millisecond)); tr != nil {
		t.Errorf("expected no transition before debounce, got %+v", tr)
	}

	tr := d.Process(sensor.Low, now.Add(250*time.Millisecond))
	if tr == nil {
		t.Fatal("expected transition after debounce")
	}
	if tr.Edge != sensor.Falling {
		t.Errorf("expected falling edge, got %v", tr.Edge)
	}
	if tr.Level != sensor.Low {
		t.Errorf("expected level LOW, got %s", tr.Level)
	}
	if !tr.Timestamp.Equal(now.Add(250 * time.Millisecond)) {
		t.Errorf("unexpected timestamp: %v", tr.Timestamp)
	}
}

func TestRisingTransition(t *testing.T) {
	d := setupBaselinedDetector(t, sensor.Low)
	now := time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC)

	d.Process(sensor.High, now)
	tr := d.Process(sensor.High, now.Add(250*time.Millisecond))
	if tr == nil || tr.Edge != sensor.Rising {
		t.Fatalf("expected rising transition, got %+v", tr)
	}
}

func TestBounceSuppressed(t *testing.T) {
	d := setupBaselinedDetector(t, sensor.High)
	now := time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		level := sensor.Low
		if i%2 == 1 {
			level = sensor.High
		}
		if tr := d.Process(level, now.Add(time.Duration(i)*50*time.Millisecond)); tr != nil {
			t.Errorf("sample %d: expected bounce to be suppressed, got %+v", i, tr)
		}
	}
	if d.Stable() != sensor.High {
		t.Errorf("stable level changed during bounce: %s", d.Stable())
	}
}

func TestNoTransitionForStableLevel(t *testing.T) {
	d := setupBaselinedDetector(t, sensor.High)
	now := time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		if tr := d.Process(sensor.High, now.Add(time.Duration(i)*100*time.Millisecond)); tr != nil {
			t.Errorf("iteration %d: expected no transition, got %+v", i, tr)
		}
	}
}

func TestMatches(t *testing.T) {
	falling := Transition{Edge: sensor.Falling}
	rising := Transition{Edge: sensor.Rising}

	tests := []struct {
		armed sensor.Edge
		tr    Transition
		want  bool
	}{
		{sensor.Falling, falling, true},
		{sensor.Falling, rising, false},
		{sensor.Rising, rising, true},
		{sensor.Rising, falling, false},
		{sensor.BothEdges, falling, true},
		{sensor.BothEdges, rising, true},
	}
	for _, tt := range tests {
		if got := Matches(tt.armed, tt.tr); got != tt.want {
			t.Errorf("Matches(%v, %v): got %v, want %v", tt.armed, tt.tr.Edge, got, tt.want)
		}
	}
}
