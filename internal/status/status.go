// Package status holds the shared button state snapshot.
// The sampling loop owns the write side; the HTTP responder, the metrics
// listener and lifecycle events read it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/button-sensor/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
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
	PollMs      int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	MetricsAddr string
	Lang        string
	PinA        int
	PinB        int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Pressed       logic.Pressed
	Sampled       bool
	Samples       uint64
	Counts        logic.EventCounts
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

// Update stores the result of a completed sample tick.
// Called from runLoop on every tick; nothing else writes the pressed pair.
func (t *Tracker) Update(pressed logic.Pressed, samples uint64, counts logic.EventCounts) {
	t.mu.Lock()
	t.snap.Pressed = pressed
	t.snap.Sampled = samples > 0
	t.snap.Samples = samples
	t.snap.Counts = counts
	t.mu.Unlock()
}

// Pressed returns both pressed states as one consistent pair.
func (t *Tracker) Pressed() logic.Pressed {
	t.mu.RLock()
	p := t.snap.Pressed
	t.mu.RUnlock()
	return p
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
