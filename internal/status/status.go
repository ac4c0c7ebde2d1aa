// Package status provides a thread-safe status tracker for the button-sensor daemon.
// It is written by the node run loop and read by HTTP handlers.
package status

import (
	"sync"
	"time"
)

// NetworkInfo contains network state as written by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	NodeID           int
	Interrupts       bool
	PollMs           int64
	DebounceMs       int64
	ReportIntervalMs int64
	HeartbeatMs      int64
	Broker           string
	HTTPAddr         string
}

// ChildState is the reported state of one child.
type ChildState struct {
	ID       int
	Name     string
	Sensor   string // "edge-toggle" or "level-gated"
	Pins     []int
	Value    int
	Reported bool // false until the first report has gone out
	Reports  int
}

// Counts tracks node activity since startup.
type Counts struct {
	Interrupts int // edges dispatched to sensors
	NoOps      int // edges that left every channel unchanged
	Reports    int // child values transmitted
	Errors     int // handler or report failures
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and stays valid after the lock is released.
type Snapshot struct {
	Children      []ChildState
	Ready         bool
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets child states, readiness, and counts.
// Called from the node run loop after every dispatched event.
func (t *Tracker) Update(children []ChildState, ready bool, counts Counts) {
	cp := make([]ChildState, len(children))
	copy(cp, children)
	t.mu.Lock()
	t.snap.Children = cp
	t.snap.Ready = ready
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
