package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/button-sensor/internal/logic"
)

// ClientID identifies the sensor to the broker.
const ClientID = "button-sensor"

const (
	publishTimeout = 2 * time.Second
	bufferCapacity = 256
)

// client is the subset of paho.Client used by RealPublisher.
type client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are kept in a ring buffer and replayed, oldest
// first, when the connection comes back.
type RealPublisher struct {
	client client

	mu      sync.Mutex
	pending *ringBuffer
}

// NewRealPublisher creates a publisher for the given broker and starts
// connecting in the background. It never blocks on the broker; events
// published before the first connection are buffered.
func NewRealPublisher(broker string) *RealPublisher {
	p := &RealPublisher{pending: newRingBuffer(bufferCapacity)}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(TopicSystem, string(willPayload()), 1, true).
		SetOnConnectHandler(func(paho.Client) {
			log.Printf("mqtt: connected to %s", broker)
			p.flush()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	c := paho.NewClient(opts)
	p.client = c
	c.Connect()
	return p
}

func newPublisher(c client) *RealPublisher {
	return &RealPublisher{client: c, pending: newRingBuffer(bufferCapacity)}
}

// Publish sends a button event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.publish(bufferedMsg{topic: Topic, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is currently up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker. Buffered messages are discarded.
func (p *RealPublisher) Close() error {
	p.mu.Lock()
	if n := p.pending.len(); n > 0 {
		log.Printf("mqtt: discarding %d buffered messages", n)
	}
	p.mu.Unlock()

	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *RealPublisher) publish(msg bufferedMsg) error {
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		if p.pending.push(msg) && p.pending.dropped == 1 {
			log.Printf("mqtt: offline buffer full (%d messages), dropping oldest", p.pending.len())
		}
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	return p.send(msg)
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.topic, err)
	}
	return nil
}

// flush replays buffered messages after a (re)connect.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	dropped := p.pending.dropped
	msgs := p.pending.drainAll()
	p.mu.Unlock()

	if len(msgs) == 0 {
		return
	}
	log.Printf("mqtt: replaying %d buffered messages (%d dropped)", len(msgs), dropped)
	for _, msg := range msgs {
		if err := p.send(msg); err != nil {
			log.Printf("mqtt: replay: %v", err)
		}
	}
}
