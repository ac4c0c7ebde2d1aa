package node

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/button-sensor/internal/gpio"
	"github.com/sweeney/button-sensor/internal/mqtt"
	"github.com/sweeney/button-sensor/internal/sensor"
	"github.com/sweeney/button-sensor/internal/status"
)

// scriptedSensor writes a fixed value on every interrupt.
type scriptedSensor struct {
	pins       sensor.Pins
	child      sensor.Channel
	pin        int
	edge       sensor.Edge
	value      int
	setupErr   error
	processing sensor.Processing
	mode       sensor.ReportMode
	calls      int
}

func newScriptedSensor(n *Node, pin, value int) *scriptedSensor {
	return &scriptedSensor{
		pins:       n.Deps().Pins,
		child:      n.AllocateChild(0, "Scripted"),
		pin:        pin,
		edge:       sensor.Falling,
		value:      value,
		processing: sensor.ProcessingNone,
		mode:       sensor.ReportInterval,
	}
}

func (s *scriptedSensor) Name() string { return "Scripted" }
func (s *scriptedSensor) Child() sensor.Channel { return s.child }
func (s *scriptedSensor) InterruptPin() int { return s.pin }
func (s *scriptedSensor) InterruptEdge() sensor.Edge { return s.edge }
func (s *scriptedSensor) Pins() []int { return []int{s.pin} }
func (s *scriptedSensor) OnSetup() error {
	if err := s.pins.ConfigureInput(s.pin, sensor.InputPullUp); err != nil {
		return err
	}
	s.child.SetValueProcessing(s.processing)
	s.child.SetReportMode(s.mode)
	return s.setupErr
}
func (s *scriptedSensor) OnInterrupt() error {
	s.calls++
	s.child.SetValue(s.value)
	return nil
}

type harness struct {
	pins     *gpio.FakePins
	reporter *mqtt.FakeReporter
	tracker  *status.Tracker
	node     *Node
	now      time.Time
}

func newHarness(cfg Config) *harness {
	h := &harness{
		pins:     gpio.NewFakePins(),
		reporter: mqtt.NewFakeReporter(),
		tracker:  status.NewTracker(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), status.Config{}),
		now:      time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	h.node = New(cfg, h.pins, h.reporter, h.tracker)
	h.node.now = func() time.Time { return h.now }
	return h
}

// fire injects a hardware edge and dispatches it like the run loop would.
func (h *harness) fire(t *testing.T, pin int, e sensor.Edge) {
	t.Helper()
	if !h.pins.Fire(pin, e) {
		return
	}
	select {
	case ev := <-h.node.events:
		h.node.HandleEvent(ev)
	default:
		t.Fatal("fired edge was not enqueued")
	}
}

func (h *harness) values() []int {
	var out []int
	for _, r := range h.reporter.ReportsSnapshot() {
		out = append(out, r.Value)
	}
	return out
}

func TestAllocateChild(t *testing.T) {
	n := New(Config{}, gpio.NewFakePins(), mqtt.NewFakeReporter(), nil)

	tests := []struct {
		requested int
		want      int
	}{
		{0, 1},
		{5, 5},
		{5, 2},   // taken
		{0, 3},   // lowest free
		{300, 4}, // out of range
		{-1, 6},
	}
	for _, tt := range tests {
		c := n.AllocateChild(tt.requested, "x")
		if c.ID() != tt.want {
			t.Errorf("AllocateChild(%d): got %d, want %d", tt.requested, c.ID(), tt.want)
		}
	}
}

func TestAllocateChildExhausted(t *testing.T) {
	n := New(Config{}, gpio.NewFakePins(), mqtt.NewFakeReporter(), nil)
	for i := minChildID; i <= maxChildID; i++ {
		n.AllocateChild(0, "x")
	}
	c := n.AllocateChild(0, "overflow")
	if c.ID() != 0 {
		t.Errorf("expected id 0 when exhausted, got %d", c.ID())
	}
	if err := n.Setup(); !errors.Is(err, ErrNoChildIDs) {
		t.Errorf("expected ErrNoChildIDs from Setup, got %v", err)
	}
}

func TestStartSetsUpBeforeArming(t *testing.T) {
	h := newHarness(Config{Interrupts: true})
	s := sensor.NewEdgeToggleInput(h.node.Deps(), 17, sensor.WithReadPin(27), sensor.WithReadPinInitialValue(sensor.PullTo(sensor.High)))
	h.node.Add(s)

	if err := h.node.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"configure 17", "pull 17", "configure 27", "pull 27", "watch 17"}
	got := h.pins.Order()
	if len(got) != len(want) {
		t.Fatalf("order: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("order[%d]: got %q, want %q", i, got[i], want[i])
		}
	}
	if h.pins.Watched[17] != sensor.Falling {
		t.Errorf("pin 17 armed on %v, want falling", h.pins.Watched[17])
	}
	if _, ok := h.pins.Watched[27]; ok {
		t.Error("read pin must not be armed")
	}
}

func TestStartPresentsChildren(t *testing.T) {
	h := newHarness(Config{Interrupts: true})
	h.node.Add(sensor.NewEdgeToggleInput(h.node.Deps(), 17, sensor.WithChildID(4)))
	g, _ := sensor.NewLevelGatedToggleInput(h.node.Deps(), 27, 22)
	h.node.Add(g)

	if err := h.node.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := h.reporter.Presentations
	if len(p) != 2 {
		t.Fatalf("expected 2 presentations, got %d", len(p))
	}
	if p[0].ChildID != 1 || p[1].ChildID != 4 {
		t.Errorf("presentations should be ordered by id, got %+v", p)
	}
	if p[1].Name != "InterruptedToggleButton" {
		t.Errorf("unexpected name: %q", p[1].Name)
	}
	if !h.tracker.Snapshot().Ready {
		t.Error("tracker should be ready after start")
	}
}

func TestStartSetupError(t *testing.T) {
	h := newHarness(Config{Interrupts: true})
	s := newScriptedSensor(h.node, 17, 1)
	s.setupErr = errors.New("bad wiring")
	h.node.Add(s)

	err := h.node.Start()
	if err == nil {
		t.Fatal("expected setup error")
	}
	if !errors.Is(err, s.setupErr) {
		t.Errorf("expected wrapped setup error, got %v", err)
	}
	if len(h.pins.Watched) != 0 {
		t.Error("no interrupt should be armed after a setup failure")
	}
}

func TestEdgeToggleSharedPinScenario(t *testing.T) {
	h := newHarness(Config{Interrupts: true})
	s := sensor.NewEdgeToggleInput(h.node.Deps(), 17)
	h.node.Add(s)
	if err := h.node.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Child().SetValue(1)
	h.node.Flush(h.now)
	h.reporter.Reset()

	h.fire(t, 17, sensor.Falling)
	h.fire(t, 17, sensor.Falling)

	got := h.values()
	if len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("reports: got %v, want [0 1]", got)
	}
}

func TestRisingEdgeIgnored(t *testing.T) {
	h := newHarness(Config{Interrupts: true})
	h.node.Add(sensor.NewEdgeToggleInput(h.node.Deps(), 17))
	h.node.Start()

	h.fire(t, 17, sensor.Rising)
	if h.reporter.ReportCount() != 0 {
		t.Errorf("rising edge should not report, got %d", h.reporter.ReportCount())
	}
	if h.node.Counts().Interrupts != 0 {
		t.Errorf("rising edge should not be dispatched")
	}
}

func TestLevelGatedScenario(t *testing.T) {
	h := newHarness(Config{Interrupts: true})
	g, err := sensor.NewLevelGatedToggleInput(h.node.Deps(), 27, 22)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.node.Add(g)
	h.node.Start()

	h.pins.SetLevel(27, sensor.High)
	h.fire(t, 22, sensor.Falling)
	if h.reporter.ReportCount() != 0 {
		t.Fatalf("gate HIGH should not report, got %v", h.values())
	}
	if h.node.Counts().NoOps != 1 {
		t.Errorf("NoOps: got %d, want 1", h.node.Counts().NoOps)
	}

	h.pins.SetLevel(27, sensor.Low)
	h.fire(t, 22, sensor.Falling)
	got := h.values()
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("reports: got %v, want [1]", got)
	}

	snap := h.tracker.Snapshot()
	if len(snap.Children) != 1 || snap.Children[0].Value != 1 || snap.Children[0].Sensor != "level-gated" {
		t.Errorf("tracker children: got %+v", snap.Children)
	}
	if snap.Counts.Interrupts != 2 {
		t.Errorf("Interrupts: got %d, want 2", snap.Counts.Interrupts)
	}
}

func TestInterruptErrorCounted(t *testing.T) {
	h := newHarness(Config{Interrupts: true})
	g, _ := sensor.NewLevelGatedToggleInput(h.node.Deps(), 27, 22)
	h.node.Add(g)
	h.node.Start()

	h.pins.ReadError = errors.New("line gone")
	h.fire(t, 22, sensor.Falling)

	if h.node.Counts().Errors != 1 {
		t.Errorf("Errors: got %d, want 1", h.node.Counts().Errors)
	}
	if h.reporter.ReportCount() != 0 {
		t.Error("failed handler should not report")
	}
}

func TestReportErrorDoesNotStopNode(t *testing.T) {
	h := newHarness(Config{Interrupts: true})
	h.node.Add(sensor.NewEdgeToggleInput(h.node.Deps(), 17))
	h.node.Start()

	h.reporter.ReportError = errors.New("broker down")
	h.fire(t, 17, sensor.Falling)
	if h.node.Counts().Errors != 1 {
		t.Errorf("Errors: got %d, want 1", h.node.Counts().Errors)
	}

	h.reporter.ReportError = nil
	h.fire(t, 17, sensor.Falling)
	if got := h.values(); len(got) != 1 || got[0] != 0 {
		t.Errorf("reports: got %v, want [0]", got)
	}
}

func TestSharedInterruptPin(t *testing.T) {
	h := newHarness(Config{Interrupts: true})
	a := newScriptedSensor(h.node, 17, 1)
	a.mode = sensor.ReportImmediately
	b := newScriptedSensor(h.node, 17, 0)
	b.mode = sensor.ReportImmediately
	b.edge = sensor.Rising
	h.node.Add(a)
	h.node.Add(b)
	h.node.Start()

	if h.pins.Watched[17] != sensor.BothEdges {
		t.Fatalf("shared pin should be armed on both edges, got %v", h.pins.Watched[17])
	}

	h.fire(t, 17, sensor.Falling)
	if a.calls != 1 || b.calls != 0 {
		t.Errorf("falling edge: a=%d b=%d, want 1 0", a.calls, b.calls)
	}
	h.fire(t, 17, sensor.Rising)
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("rising edge: a=%d b=%d, want 1 1", a.calls, b.calls)
	}
}

func TestIntervalReporting(t *testing.T) {
	h := newHarness(Config{Interrupts: true})
	s := newScriptedSensor(h.node, 17, 1)
	h.node.Add(s)
	h.node.Start()

	h.fire(t, 17, sensor.Falling)
	h.fire(t, 17, sensor.Falling)
	if h.reporter.ReportCount() != 0 {
		t.Fatalf("interval child should not report immediately, got %d", h.reporter.ReportCount())
	}

	h.node.Flush(h.now)
	if got := h.values(); len(got) != 1 || got[0] != 1 {
		t.Errorf("reports after flush: got %v, want [1]", got)
	}

	h.node.Flush(h.now)
	if h.reporter.ReportCount() != 1 {
		t.Error("flush without pending values should not report")
	}
}

func TestAverageProcessing(t *testing.T) {
	h := newHarness(Config{Interrupts: true})
	s := newScriptedSensor(h.node, 17, 1)
	s.processing = sensor.ProcessingAverage
	h.node.Add(s)
	h.node.Start()

	// 1, 1, 0, 0, 0 -> mean 0.4 rounds to 0
	h.fire(t, 17, sensor.Falling)
	h.fire(t, 17, sensor.Falling)
	s.value = 0
	h.fire(t, 17, sensor.Falling)
	h.fire(t, 17, sensor.Falling)
	h.fire(t, 17, sensor.Falling)
	h.node.Flush(h.now)

	// 1, 1 -> mean 1
	s.value = 1
	h.fire(t, 17, sensor.Falling)
	h.fire(t, 17, sensor.Falling)
	h.node.Flush(h.now)

	got := h.values()
	if len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("averaged reports: got %v, want [0 1]", got)
	}
}

func TestPollMode(t *testing.T) {
	h := newHarness(Config{Interrupts: false, Debounce: 0})
	s := sensor.NewEdgeToggleInput(h.node.Deps(), 17)
	h.node.Add(s)

	h.pins.Script(17, sensor.High, sensor.High, sensor.Low, sensor.Low, sensor.High, sensor.Low)
	if err := h.node.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.pins.Watched) != 0 {
		t.Error("poll mode must not arm hardware interrupts")
	}

	for i := 1; i <= 5; i++ {
		h.node.Poll(h.now.Add(time.Duration(i) * 10 * time.Millisecond))
	}

	// Two falling edges, each captured LOW: 0 -> 1 -> 0
	got := h.values()
	if len(got) != 2 || got[0] != 1 || got[1] != 0 {
		t.Errorf("reports: got %v, want [1 0]", got)
	}
}

func TestPollModeDebounce(t *testing.T) {
	h := newHarness(Config{Interrupts: false, Debounce: 50 * time.Millisecond})
	h.node.Add(sensor.NewEdgeToggleInput(h.node.Deps(), 17))

	// Baseline HIGH, a 25ms bounce, then a held LOW.
	h.pins.Script(17, sensor.High, sensor.High, sensor.High, sensor.Low, sensor.High, sensor.Low, sensor.Low, sensor.Low)
	h.node.Start()

	for i := 1; i <= 7; i++ {
		h.node.Poll(h.now.Add(time.Duration(i) * 25 * time.Millisecond))
	}

	if got := h.values(); len(got) != 1 || got[0] != 1 {
		t.Errorf("reports: got %v, want a single debounced toggle [1]", got)
	}
}

func TestCheckHeartbeat(t *testing.T) {
	h := newHarness(Config{Interrupts: true, Heartbeat: time.Minute})
	h.node.Add(sensor.NewEdgeToggleInput(h.node.Deps(), 17))

	if hb := h.node.CheckHeartbeat(h.now.Add(time.Hour)); hb != nil {
		t.Error("no heartbeat before start")
	}

	h.node.Start()
	if hb := h.node.CheckHeartbeat(h.now.Add(30 * time.Second)); hb != nil {
		t.Error("no heartbeat before interval")
	}
	hb := h.node.CheckHeartbeat(h.now.Add(time.Minute))
	if hb == nil {
		t.Fatal("expected heartbeat")
	}
	if hb.Uptime != time.Minute {
		t.Errorf("Uptime: got %v, want 1m", hb.Uptime)
	}
	if h.node.CheckHeartbeat(h.now.Add(90*time.Second)) != nil {
		t.Error("heartbeat interval should restart")
	}
}

func TestCheckHeartbeatLateTicks(t *testing.T) {
	h := newHarness(Config{Interrupts: true, Heartbeat: time.Minute})
	h.node.Add(sensor.NewEdgeToggleInput(h.node.Deps(), 17))
	h.node.Start()

	ticks := []struct {
		at   time.Duration
		want bool
	}{
		{time.Minute + 3*time.Millisecond, true},
		{2*time.Minute + time.Millisecond, true},
		{3*time.Minute + 2*time.Millisecond, true},
		{3*time.Minute + 30*time.Second, false},
		// the 4m tick never arrived; the next one still fires once
		{5*time.Minute + 10*time.Second, true},
		{5*time.Minute + 50*time.Second, false},
		{6 * time.Minute, true},
	}
	for _, tick := range ticks {
		got := h.node.CheckHeartbeat(h.now.Add(tick.at)) != nil
		if got != tick.want {
			t.Errorf("CheckHeartbeat(t0+%v) fired = %v, want %v", tick.at, got, tick.want)
		}
	}
}

func TestCheckHeartbeatDisabled(t *testing.T) {
	h := newHarness(Config{Interrupts: true})
	h.node.Start()
	if h.node.CheckHeartbeat(h.now.Add(24*time.Hour)) != nil {
		t.Error("heartbeat should be disabled")
	}
}

func TestPublishHeartbeat(t *testing.T) {
	h := newHarness(Config{Interrupts: true, Heartbeat: time.Minute})
	h.node.Add(sensor.NewEdgeToggleInput(h.node.Deps(), 17))
	h.node.Start()
	hooked := 0
	h.node.OnHeartbeat(func() { hooked++ })

	h.node.publishHeartbeat(h.now.Add(time.Minute))
	if hooked != 1 {
		t.Errorf("heartbeat hook ran %d times, want 1", hooked)
	}
	if len(h.reporter.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(h.reporter.SystemEvents))
	}
	ev := h.reporter.SystemEvents[0]
	if ev.Event != "HEARTBEAT" || ev.RawPayload == nil {
		t.Errorf("unexpected heartbeat event: %+v", ev)
	}
}

func TestRunDispatchesAndStops(t *testing.T) {
	h := newHarness(Config{Interrupts: true})
	h.node.now = time.Now
	h.node.Add(sensor.NewEdgeToggleInput(h.node.Deps(), 17))
	if err := h.node.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.node.Run(ctx) }()

	for i := 0; i < 3; i++ {
		h.pins.Fire(17, sensor.Falling)
	}

	deadline := time.After(2 * time.Second)
	for h.reporter.ReportCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for reports, got %d", h.reporter.ReportCount())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// Events after shutdown must not block the hardware callback.
	h.pins.Fire(17, sensor.Falling)

	if got := h.values(); len(got) != 3 || got[0] != 1 || got[1] != 0 || got[2] != 1 {
		t.Errorf("reports: got %v, want [1 0 1]", got)
	}
}
