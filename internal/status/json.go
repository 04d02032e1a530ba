package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/button-sensor/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	A             string       `json:"a"`
	B             string       `json:"b"`
	Ready         bool         `json:"ready"`
	Samples       uint64       `json:"samples"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	APressed  int `json:"a_pressed"`
	AReleased int `json:"a_released"`
	BPressed  int `json:"b_pressed"`
	BReleased int `json:"b_released"`
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
	PollMs      int64  `json:"poll_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	MetricsAddr string `json:"metrics_addr,omitempty"`
	Lang        string `json:"lang"`
	PinA        int    `json:"pin_a"`
	PinB        int    `json:"pin_b"`
}

func buttonState(sampled, pressed bool) string {
	if !sampled {
		return "UNKNOWN"
	}
	return string(logic.StateOf(pressed))
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		A:             buttonState(snap.Sampled, snap.Pressed.A),
		B:             buttonState(snap.Sampled, snap.Pressed.B),
		Ready:         snap.Sampled,
		Samples:       snap.Samples,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			APressed:  snap.Counts.APressed,
			AReleased: snap.Counts.AReleased,
			BPressed:  snap.Counts.BPressed,
			BReleased: snap.Counts.BReleased,
		},
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			MetricsAddr: snap.Config.MetricsAddr,
			Lang:        snap.Config.Lang,
			PinA:        snap.Config.PinA,
			PinB:        snap.Config.PinB,
		},
	}

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
	return inner
}

// FormatJSON returns the indented JSON status served by the metrics listener (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
