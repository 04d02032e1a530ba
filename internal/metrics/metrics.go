// Package metrics exposes sampler and responder counters to Prometheus.
// A nil *Metrics is valid and records nothing, so packages can be used
// without a registry in tests and in print-state mode.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sweeney/button-sensor/internal/logic"
)

const namespace = "button_sensor"

// Metrics holds the collectors registered for one process.
type Metrics struct {
	requests    *prometheus.CounterVec
	opened      prometheus.Counter
	closed      prometheus.Counter
	faults      *prometheus.CounterVec
	samples     prometheus.Counter
	readErrors  prometheus.Counter
	pressed     *prometheus.GaugeVec
	transitions *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Responses written, by route.",
		}, []string{"route"}),
		opened: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_connections_opened_total",
			Help:      "Connections accepted on the status listener.",
		}),
		closed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_connections_closed_total",
			Help:      "Connections closed by the peer.",
		}),
		faults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_connection_faults_total",
			Help:      "Connections dropped because a response could not be rendered or written.",
		}, []string{"kind"}),
		samples: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Completed input sample ticks.",
		}),
		readErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gpio_read_errors_total",
			Help:      "Sample ticks skipped because the GPIO read failed.",
		}),
		pressed: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "button_pressed",
			Help:      "1 while the button is pressed, 0 otherwise.",
		}, []string{"button"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "button_events_total",
			Help:      "Button transitions, by event type.",
		}, []string{"event"}),
	}
}

// Request counts one answered request.
func (m *Metrics) Request(route string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route).Inc()
}

// ConnectionOpened counts an accepted connection.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.opened.Inc()
}

// ConnectionClosed counts a peer close.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.closed.Inc()
}

// ConnectionFault counts a dropped connection. kind is "render" or "write".
func (m *Metrics) ConnectionFault(kind string) {
	if m == nil {
		return
	}
	m.faults.WithLabelValues(kind).Inc()
}

// Sample records a completed sample tick and the resulting states.
func (m *Metrics) Sample(p logic.Pressed) {
	if m == nil {
		return
	}
	m.samples.Inc()
	m.pressed.WithLabelValues(string(logic.ChannelA)).Set(boolGauge(p.A))
	m.pressed.WithLabelValues(string(logic.ChannelB)).Set(boolGauge(p.B))
}

// ReadError counts a failed GPIO read.
func (m *Metrics) ReadError() {
	if m == nil {
		return
	}
	m.readErrors.Inc()
}

// Transition counts a button event.
func (m *Metrics) Transition(t logic.EventType) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(t)).Inc()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
