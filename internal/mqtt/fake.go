package mqtt

import (
	"github.com/sweeney/button-sensor/internal/logic"
)

// FakePublisher stands in for the broker in loop tests. It keeps every
// button transition and lifecycle event in publish order, along with the
// exact bytes a broker would have received.
type FakePublisher struct {
	Events         []logic.Event // button transitions
	Payloads       [][]byte      // Topic payloads, parallel to Events
	SystemEvents   []SystemEvent // STARTUP, HEARTBEAT, SHUTDOWN, ...
	SystemPayloads [][]byte      // TopicSystem payloads, parallel to SystemEvents

	// Injected failures. A failed publish records nothing.
	PublishError       error
	PublishSystemError error

	Closed    bool
	Connected bool // reported by IsConnected
}

// NewFakePublisher returns an empty, disconnected FakePublisher.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records a button transition.
func (f *FakePublisher) Publish(event logic.Event) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records a lifecycle event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// EventTypes lists the recorded transitions, e.g. [A_PRESSED B_PRESSED].
func (f *FakePublisher) EventTypes() []logic.EventType {
	out := make([]logic.EventType, len(f.Events))
	for i, e := range f.Events {
		out[i] = e.Type
	}
	return out
}

// SystemEventNames lists the recorded lifecycle events, e.g. [HEARTBEAT SHUTDOWN].
func (f *FakePublisher) SystemEventNames() []string {
	out := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		out[i] = e.Event
	}
	return out
}

// Close marks the publisher closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected returns f.Connected.
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset forgets everything recorded and clears injected failures.
func (f *FakePublisher) Reset() {
	*f = FakePublisher{}
}
