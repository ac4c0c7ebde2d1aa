// Package node hosts sensors: it allocates their children, runs their setup,
// arms and serialises interrupts, and reports changed values.
package node

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/sweeney/button-sensor/internal/edge"
	"github.com/sweeney/button-sensor/internal/gpio"
	"github.com/sweeney/button-sensor/internal/mqtt"
	"github.com/sweeney/button-sensor/internal/sensor"
	"github.com/sweeney/button-sensor/internal/status"
)

// MySensors child IDs are a byte; 255 is reserved for the node itself.
const (
	minChildID = 1
	maxChildID = 254
)

// ErrNoChildIDs is returned by Start when more children were requested than
// IDs exist.
var ErrNoChildIDs = errors.New("no free child IDs")

// Config controls how the node drives its sensors.
type Config struct {
	// Interrupts selects hardware edge events. When false, armed pins are
	// sampled every PollInterval and edges are detected in software.
	Interrupts   bool
	PollInterval time.Duration
	// Debounce applies to software edge detection in poll mode.
	Debounce time.Duration
	// ReportInterval flushes children that did not request immediate reports.
	ReportInterval time.Duration
	// Heartbeat publishes a status event; 0 disables it.
	Heartbeat time.Duration
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    status.Counts
}

// Node is the host framework for sensors.
type Node struct {
	cfg      Config
	pins     gpio.Pins
	reporter mqtt.Reporter
	tracker  *status.Tracker
	now      func() time.Time

	children map[int]*Child
	sensors  []sensor.Sensor
	childOf  map[sensor.Sensor]*Child
	byPin    map[int][]sensor.Sensor
	armed    []int

	events    chan gpio.Event
	done      chan struct{}
	detectors map[int]*edge.Detector

	onHeartbeat func()

	lastLevel     sensor.Level
	counts        status.Counts
	startTime     time.Time
	lastHeartbeat time.Time
	started       bool
	allocErr      error
}

// New creates a node. tracker may be nil.
func New(cfg Config, pins gpio.Pins, reporter mqtt.Reporter, tracker *status.Tracker) *Node {
	return &Node{
		cfg:       cfg,
		pins:      pins,
		reporter:  reporter,
		tracker:   tracker,
		now:       time.Now,
		children:  make(map[int]*Child),
		childOf:   make(map[sensor.Sensor]*Child),
		byPin:     make(map[int][]sensor.Sensor),
		events:    make(chan gpio.Event, 64),
		done:      make(chan struct{}),
		detectors: make(map[int]*edge.Detector),
	}
}

// Deps returns the collaborators sensors are constructed with.
func (n *Node) Deps() sensor.Deps {
	return sensor.Deps{Pins: n.pins, Edges: n, Children: n}
}

// AllocateChild returns a child with the requested ID if it is free,
// otherwise with the lowest free ID.
func (n *Node) AllocateChild(requested int, name string) sensor.Channel {
	id := requested
	if id < minChildID || id > maxChildID || n.children[id] != nil {
		if requested != 0 {
			log.Printf("node: child %d unavailable, assigning next free id", requested)
		}
		id = n.freeChildID()
	}
	c := &Child{id: id, name: name}
	if id == 0 {
		// Keep the sensor usable; Start refuses to run with it.
		n.allocErr = fmt.Errorf("allocate child for %s: %w", name, ErrNoChildIDs)
		return c
	}
	n.children[id] = c
	return c
}

func (n *Node) freeChildID() int {
	for id := minChildID; id <= maxChildID; id++ {
		if n.children[id] == nil {
			return id
		}
	}
	return 0
}

// OnHeartbeat registers f to run before each heartbeat status snapshot.
func (n *Node) OnHeartbeat(f func()) {
	n.onHeartbeat = f
}

// LastInterruptLevel returns the level captured with the edge being handled.
func (n *Node) LastInterruptLevel() sensor.Level {
	return n.lastLevel
}

// Add registers a sensor built from n.Deps().
func (n *Node) Add(s sensor.Sensor) {
	c, ok := s.Child().(*Child)
	if !ok {
		panic(fmt.Sprintf("node: sensor %s was not built with this node's allocator", s.Name()))
	}
	n.sensors = append(n.sensors, s)
	n.childOf[s] = c
	pin := s.InterruptPin()
	if len(n.byPin[pin]) == 0 {
		n.armed = append(n.armed, pin)
	}
	n.byPin[pin] = append(n.byPin[pin], s)
}

// Sensors returns the registered sensors in registration order.
func (n *Node) Sensors() []sensor.Sensor {
	return n.sensors
}

// Setup runs every sensor's OnSetup. It does not arm interrupts.
func (n *Node) Setup() error {
	if n.allocErr != nil {
		return n.allocErr
	}
	for _, s := range n.sensors {
		if err := s.OnSetup(); err != nil {
			return fmt.Errorf("setup %s (child %d): %w", s.Name(), s.Child().ID(), err)
		}
	}
	return nil
}

// Start sets up every sensor, then arms interrupts (or takes the first poll
// samples) and presents the children.
func (n *Node) Start() error {
	if err := n.Setup(); err != nil {
		return err
	}

	now := n.now()
	for _, pin := range n.armed {
		if n.cfg.Interrupts {
			if err := n.pins.Watch(pin, n.edgeFor(pin), n.enqueue); err != nil {
				return fmt.Errorf("arm interrupt on pin %d: %w", pin, err)
			}
			continue
		}
		d := edge.NewDetector(n.cfg.Debounce)
		if level, err := n.pins.Read(pin); err == nil {
			d.Process(level, now)
		}
		n.detectors[pin] = d
	}

	for _, c := range n.sortedChildren() {
		if err := n.reporter.Present(mqtt.Presentation{ChildID: c.id, Name: c.name}); err != nil {
			log.Printf("present child %d: %v", c.id, err)
		}
	}

	n.startTime = now
	n.lastHeartbeat = now
	n.started = true
	n.updateTracker()

	mode := "poll"
	if n.cfg.Interrupts {
		mode = "interrupt"
	}
	log.Printf("node: started %d sensors on %d pins (%s mode)", len(n.sensors), len(n.armed), mode)
	return nil
}

// edgeFor merges the edges requested by every sensor sharing pin.
func (n *Node) edgeFor(pin int) sensor.Edge {
	sensors := n.byPin[pin]
	e := sensors[0].InterruptEdge()
	for _, s := range sensors[1:] {
		if s.InterruptEdge() != e {
			return sensor.BothEdges
		}
	}
	return e
}

// enqueue is the hardware event handler. It only hands the event to the run
// loop so sensor handlers never run concurrently.
func (n *Node) enqueue(e gpio.Event) {
	select {
	case n.events <- e:
	case <-n.done:
	}
}

// Run dispatches events until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	defer close(n.done)

	var pollC, reportC, heartbeatC <-chan time.Time
	if !n.cfg.Interrupts && n.cfg.PollInterval > 0 {
		t := time.NewTicker(n.cfg.PollInterval)
		defer t.Stop()
		pollC = t.C
	}
	if n.cfg.ReportInterval > 0 {
		t := time.NewTicker(n.cfg.ReportInterval)
		defer t.Stop()
		reportC = t.C
	}
	if n.cfg.Heartbeat > 0 {
		t := time.NewTicker(n.cfg.Heartbeat)
		defer t.Stop()
		heartbeatC = t.C
	}

	for {
		select {
		case <-ctx.Done():
			n.Flush(n.now())
			return nil
		case e := <-n.events:
			n.HandleEvent(e)
		case t := <-pollC:
			n.Poll(t)
		case t := <-reportC:
			n.Flush(t)
		case t := <-heartbeatC:
			n.publishHeartbeat(t)
		}
	}
}

// HandleEvent dispatches one edge to every sensor armed on its pin.
func (n *Node) HandleEvent(e gpio.Event) {
	n.lastLevel = e.Level
	now := n.now()

	for _, s := range n.byPin[e.Pin] {
		if !edge.Matches(s.InterruptEdge(), edge.Transition{Edge: e.Edge}) {
			continue
		}
		n.counts.Interrupts++
		c := n.childOf[s]
		before := c.writes

		if err := s.OnInterrupt(); err != nil {
			n.counts.Errors++
			log.Printf("interrupt error: %s (child %d): %v", s.Name(), c.id, err)
			continue
		}

		if c.writes == before {
			n.counts.NoOps++
			continue
		}
		log.Printf("event: child %d pin %d %s -> %d", c.id, e.Pin, e.Level, c.value)
		if c.reportMode == sensor.ReportImmediately {
			n.report(c, now)
		}
	}
	n.updateTracker()
}

// Poll samples every armed pin and dispatches debounced edges.
func (n *Node) Poll(now time.Time) {
	for _, pin := range n.armed {
		d := n.detectors[pin]
		if d == nil {
			continue
		}
		level, err := n.pins.Read(pin)
		if err != nil {
			log.Printf("gpio read error: pin %d: %v", pin, err)
			continue
		}
		if tr := d.Process(level, now); tr != nil {
			n.HandleEvent(gpio.Event{Pin: pin, Edge: tr.Edge, Level: tr.Level})
		}
	}
}

// Flush reports every child with a pending value.
func (n *Node) Flush(now time.Time) {
	flushed := false
	for _, c := range n.sortedChildren() {
		if c.pending {
			n.report(c, now)
			flushed = true
		}
	}
	if flushed {
		n.updateTracker()
	}
}

func (n *Node) report(c *Child, now time.Time) {
	v := c.reportValue()
	c.markReported()
	n.counts.Reports++
	if err := n.reporter.Report(mqtt.Report{Timestamp: now, ChildID: c.id, Value: v}); err != nil {
		n.counts.Errors++
		log.Printf("report error: child %d: %v", c.id, err)
	}
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last scheduled heartbeat (or startup). Returns nil if not started, if the
// interval has not elapsed, or if the heartbeat is disabled.
//
// The schedule advances in whole intervals from startup, so a tick that is
// delivered late does not delay the one after it.
func (n *Node) CheckHeartbeat(now time.Time) *HeartbeatData {
	if n.cfg.Heartbeat <= 0 || !n.started {
		return nil
	}
	elapsed := now.Sub(n.lastHeartbeat)
	if elapsed < n.cfg.Heartbeat {
		return nil
	}
	n.lastHeartbeat = n.lastHeartbeat.Add(elapsed - elapsed%n.cfg.Heartbeat)
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(n.startTime),
		Counts:    n.counts,
	}
}

func (n *Node) publishHeartbeat(now time.Time) {
	hb := n.CheckHeartbeat(now)
	if hb == nil {
		return
	}
	log.Printf("heartbeat: uptime=%v interrupts=%d no_ops=%d reports=%d errors=%d",
		hb.Uptime, hb.Counts.Interrupts, hb.Counts.NoOps, hb.Counts.Reports, hb.Counts.Errors)

	if n.onHeartbeat != nil {
		n.onHeartbeat()
	}
	event := mqtt.SystemEvent{Timestamp: hb.Timestamp, Event: "HEARTBEAT"}
	if n.tracker != nil {
		n.updateTracker()
		event.RawPayload = status.FormatStatusEvent(n.tracker.Snapshot(), "HEARTBEAT", "")
	}
	if err := n.reporter.PublishSystem(event); err != nil {
		log.Printf("heartbeat publish error: %v", err)
	}
}

// Counts returns activity counters since start.
func (n *Node) Counts() status.Counts {
	return n.counts
}

// ChildStates returns the state of every child ordered by ID.
func (n *Node) ChildStates() []status.ChildState {
	states := make([]status.ChildState, 0, len(n.sensors))
	for _, s := range n.sensors {
		c := n.childOf[s]
		states = append(states, status.ChildState{
			ID:       c.id,
			Name:     c.name,
			Sensor:   kind(s),
			Pins:     s.Pins(),
			Value:    c.value,
			Reported: c.reported,
			Reports:  c.reports,
		})
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })
	return states
}

func (n *Node) updateTracker() {
	if n.tracker == nil {
		return
	}
	n.tracker.Update(n.ChildStates(), n.started, n.counts)
	if cs, ok := n.reporter.(mqtt.ConnectionStatus); ok {
		n.tracker.SetMQTTConnected(cs.IsConnected())
	}
}

func (n *Node) sortedChildren() []*Child {
	out := make([]*Child, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func kind(s sensor.Sensor) string {
	switch s.(type) {
	case *sensor.EdgeToggleInput:
		return "edge-toggle"
	case *sensor.LevelGatedToggleInput:
		return "level-gated"
	default:
		return s.Name()
	}
}
