// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/button-sensor/internal/logic"
)

// Topic is the MQTT topic for button events.
const Topic = "home/buttons/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "home/buttons/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a button event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
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

// Payload represents the MQTT message payload structure.
type Payload struct {
	Buttons ButtonsPayload `json:"buttons"`
}

// ButtonsPayload contains the button event details.
type ButtonsPayload struct {
	Timestamp string       `json:"timestamp"`
	Event     string       `json:"event"`
	A         ChannelState `json:"a"`
	B         ChannelState `json:"b"`
}

// ChannelState represents a single button's state.
type ChannelState struct {
	State string `json:"state"`
}

// FormatPayload creates the JSON payload for a button event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Buttons: ButtonsPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			A:         ChannelState{State: string(event.AState)},
			B:         ChannelState{State: string(event.BState)},
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
// A zero Timestamp is omitted.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{
		Event:  event.Event,
		Reason: event.Reason,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}

// willPayload is registered with the broker at connect time and published
// by it if the sensor drops off without a clean disconnect.
func willPayload() []byte {
	data, _ := FormatSystemPayload(SystemEvent{Event: "OFFLINE", Reason: "LWT"})
	return data
}

// Discard is a Publisher for running without a broker.
type Discard struct{}

// Publish drops the event.
func (Discard) Publish(logic.Event) error { return nil }

// PublishSystem drops the event.
func (Discard) PublishSystem(SystemEvent) error { return nil }

// Close does nothing.
func (Discard) Close() error { return nil }

// IsConnected always reports false.
func (Discard) IsConnected() bool { return false }
