package mqtt

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Options configures a RealReporter.
type Options struct {
	Broker     string
	ClientID   string
	Topics     Topics
	BufferSize int // messages kept while disconnected
}

// RealReporter publishes to an actual MQTT broker. Messages produced while
// the connection is down are buffered and replayed on reconnect.
type RealReporter struct {
	client paho.Client
	topics Topics

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool
	connects  int
	losses    int
}

const publishTimeout = 5 * time.Second

// NewRealReporter creates a reporter and starts connecting to the broker.
// An unreachable broker is not fatal: the client keeps retrying in the
// background and reports are buffered meanwhile.
func NewRealReporter(o Options) *RealReporter {
	r := newReporter(o)

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(o.Topics.System(), will, 1, true).
		SetOnConnectHandler(r.onConnect).
		SetConnectionLostHandler(r.onConnectionLost)

	r.client = paho.NewClient(opts)
	token := r.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker %s not reachable yet, buffering", o.Broker)
	} else if err := token.Error(); err != nil {
		log.Printf("mqtt: connect to broker: %v", err)
	}

	return r
}

// newReporter returns a disconnected reporter with no client attached.
func newReporter(o Options) *RealReporter {
	if o.BufferSize <= 0 {
		o.BufferSize = 100
	}
	return &RealReporter{
		topics: o.Topics,
		buf:    newRingBuffer(o.BufferSize),
	}
}

// onConnect replays the buffer. The reporter only counts as connected once
// a drain finds the buffer empty, so publishes racing the replay are queued
// behind the older messages instead of overtaking them.
func (r *RealReporter) onConnect(c paho.Client) {
	r.mu.Lock()
	r.connects++
	reconnect := r.connects > 1
	losses := r.losses
	pending := r.buf.drainAll()
	r.mu.Unlock()

	if reconnect {
		log.Printf("mqtt: reconnected, replaying %d buffered messages", len(pending))
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		pending = append([]message{{topic: r.topics.System(), payload: payload, qos: 1}}, pending...)
	}

	for {
		// Runs on the paho goroutine, so publish without waiting.
		for _, m := range pending {
			c.Publish(m.topic, m.qos, m.retained, m.payload)
		}

		r.mu.Lock()
		if r.losses != losses {
			// dropped again mid-replay; the next onConnect picks up the rest
			r.mu.Unlock()
			return
		}
		pending = r.buf.drainAll()
		if len(pending) == 0 {
			r.connected = true
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()
	}
}

func (r *RealReporter) onConnectionLost(_ paho.Client, err error) {
	r.mu.Lock()
	r.connected = false
	r.losses++
	r.mu.Unlock()
	log.Printf("mqtt: connection lost: %v", err)
}

// Present publishes the child presentation, retained so controllers that
// subscribe later still see it.
func (r *RealReporter) Present(p Presentation) error {
	return r.publish(message{
		topic:    r.topics.Presentation(p.ChildID),
		payload:  []byte(p.Name),
		qos:      1,
		retained: true,
	})
}

// Report sends a child value to the MQTT broker.
func (r *RealReporter) Report(rep Report) error {
	// QoS 1: a lost toggle leaves the controller out of step until the next one
	return r.publish(message{
		topic:   r.topics.Value(rep.ChildID),
		payload: FormatValue(rep.Value),
		qos:     1,
	})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (r *RealReporter) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return r.publish(message{
		topic:    r.topics.System(),
		payload:  payload,
		qos:      1,
		retained: event.Retained,
	})
}

func (r *RealReporter) publish(m message) error {
	r.mu.Lock()
	if !r.connected {
		r.buf.push(m)
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	token := r.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		// paho keeps a timed-out QoS 1 message in flight and resends it, so
		// buffering it as well would deliver it twice.
		return fmt.Errorf("publish %s timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		if errors.Is(err, paho.ErrNotConnected) {
			// rejected before paho took ownership
			r.mu.Lock()
			r.buf.push(m)
			r.mu.Unlock()
			return nil
		}
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (r *RealReporter) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// Buffered returns the number of messages waiting for a connection and the
// number dropped on overflow.
func (r *RealReporter) Buffered() (pending, dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.len(), r.buf.dropped
}

// Close disconnects from the broker.
func (r *RealReporter) Close() error {
	r.client.Disconnect(1000) // 1 second timeout
	return nil
}
