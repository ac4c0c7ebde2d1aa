package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Children      []ChildJSON  `json:"children"`
	Ready         bool         `json:"ready"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// ChildJSON is the JSON representation of one child.
type ChildJSON struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Sensor  string `json:"sensor"`
	Pins    []int  `json:"pins"`
	Value   *int   `json:"value"` // null until first report
	Reports int    `json:"reports"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of node counts.
type CountsJSON struct {
	Interrupts int `json:"interrupts"`
	NoOps      int `json:"no_ops"`
	Reports    int `json:"reports"`
	Errors     int `json:"errors"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	NodeID           int    `json:"node_id"`
	Interrupts       bool   `json:"interrupts"`
	PollMs           int64  `json:"poll_ms"`
	DebounceMs       int64  `json:"debounce_ms"`
	ReportIntervalMs int64  `json:"report_interval_ms"`
	HeartbeatMs      int64  `json:"heartbeat_ms"`
	Broker           string `json:"broker"`
	HTTPAddr         string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	children := make([]ChildJSON, 0, len(snap.Children))
	for _, c := range snap.Children {
		cj := ChildJSON{
			ID:      c.ID,
			Name:    c.Name,
			Sensor:  c.Sensor,
			Pins:    c.Pins,
			Reports: c.Reports,
		}
		if c.Reported {
			v := c.Value
			cj.Value = &v
		}
		children = append(children, cj)
	}

	return StatusInner{
		Children:      children,
		Ready:         snap.Ready,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Interrupts: snap.Counts.Interrupts,
			NoOps:      snap.Counts.NoOps,
			Reports:    snap.Counts.Reports,
			Errors:     snap.Counts.Errors,
		},
		Config: ConfigJSON{
			NodeID:           snap.Config.NodeID,
			Interrupts:       snap.Config.Interrupts,
			PollMs:           snap.Config.PollMs,
			DebounceMs:       snap.Config.DebounceMs,
			ReportIntervalMs: snap.Config.ReportIntervalMs,
			HeartbeatMs:      snap.Config.HeartbeatMs,
			Broker:           snap.Config.Broker,
			HTTPAddr:         snap.Config.HTTPAddr,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
