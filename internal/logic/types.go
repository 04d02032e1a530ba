// Package logic contains the pure input-sampling logic for the button sensor.
// This package has NO external dependencies (no GPIO, MQTT, network, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Channel identifies one of the two button inputs.
type Channel string

const (
	ChannelA Channel = "A"
	ChannelB Channel = "B"
)

// State is the logical state of a button, used in events and logs.
type State string

const (
	StatePressed  State = "PRESSED"
	StateReleased State = "RELEASED"
)

// StateOf maps a pressed flag to its State.
func StateOf(pressed bool) State {
	if pressed {
		return StatePressed
	}
	return StateReleased
}

// EventType represents a button transition.
type EventType string

const (
	EventAPressed  EventType = "A_PRESSED"
	EventAReleased EventType = "A_RELEASED"
	EventBPressed  EventType = "B_PRESSED"
	EventBReleased EventType = "B_RELEASED"
)

// Event represents a transition observed between two consecutive samples.
type Event struct {
	Timestamp time.Time
	Type      EventType
	AState    State
	BState    State
}

// Input is a single sample of raw electrical levels (true = high).
// Both buttons are wired active-low: a press pulls the line low.
type Input struct {
	AHigh bool
	BHigh bool
	Time  time.Time
}

// Pressed holds the logical pressed state of both buttons.
type Pressed struct {
	A bool
	B bool
}

// Get returns the pressed state for a channel.
func (p Pressed) Get(ch Channel) bool {
	if ch == ChannelB {
		return p.B
	}
	return p.A
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	APressed  int
	AReleased int
	BPressed  int
	BReleased int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Samples   uint64
	Counts    EventCounts
}
