// Package mqtt provides MQTT reporting of child values with abstraction for testing.
// Topics follow the MySensors MQTT gateway layout:
//
//	<prefix>/<node-id>/<child-id>/<command>/<ack>/<type>
package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// DefaultPrefix is the topic prefix used by MySensors gateways for outgoing messages.
const DefaultPrefix = "mysensors-out"

// MySensors command and type codes used by this node.
const (
	CmdPresentation = 0
	CmdSet          = 1

	SBinary = 3 // presentation type for binary switches
	VStatus = 2 // value type for on/off status
)

// Presentation announces a child to the controller.
type Presentation struct {
	ChildID int
	Name    string
}

// Report is a child value to transmit.
type Report struct {
	Timestamp time.Time
	ChildID   int
	Value     int
}

// Reporter transmits presentations, child values and system events.
type Reporter interface {
	// Present announces a child. Called once per child at start-up.
	Present(p Presentation) error

	// Report sends a child value.
	// Returns error if publishing fails (should not crash the process).
	Report(r Report) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Topics builds topic names for one node.
type Topics struct {
	Prefix string
	NodeID int
}

// Presentation returns the topic a child is presented on.
func (t Topics) Presentation(childID int) string {
	return t.topic(childID, CmdPresentation, SBinary)
}

// Value returns the topic a child's status value is reported on.
func (t Topics) Value(childID int) string {
	return t.topic(childID, CmdSet, VStatus)
}

// System returns the topic for lifecycle events.
func (t Topics) System() string {
	return fmt.Sprintf("%s/%d/system", t.prefix(), t.NodeID)
}

func (t Topics) topic(childID, cmd, typ int) string {
	return fmt.Sprintf("%s/%d/%d/%d/0/%d", t.prefix(), t.NodeID, childID, cmd, typ)
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultPrefix
	}
	return t.Prefix
}

// FormatValue renders a child value as a MySensors payload.
func FormatValue(v int) []byte {
	return []byte(strconv.Itoa(v))
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
