// Package web implements the button status responder: a request classifier,
// the HTML and JSON response renderers, and a single-threaded dispatcher
// bound to a raw TCP listener.
package web

import (
	"errors"
	"fmt"

	"github.com/sweeney/button-sensor/internal/logic"
	"github.com/sweeney/button-sensor/internal/metrics"
)

// ErrConnectionClosed is returned by Handle for an empty inbound buffer.
var ErrConnectionClosed = errors.New("connection closed by peer")

// StateSource is the read side of the shared button state.
type StateSource interface {
	Pressed() logic.Pressed
}

// Handler turns inbound request bytes into response bytes.
// It reuses one response buffer and is not safe for concurrent use.
// Requests are counted by the Server once the response is written.
type Handler struct {
	renderer *Renderer
	source   StateSource
	metrics  *metrics.Metrics
	buf      []byte
}

// NewHandler creates a Handler reading state from source. m may be nil.
func NewHandler(r *Renderer, source StateSource, m *metrics.Metrics) *Handler {
	return &Handler{
		renderer: r,
		source:   source,
		metrics:  m,
		buf:      make([]byte, MaxResponseSize),
	}
}

// Handle classifies req and renders the matching response. The returned
// slice aliases the handler's buffer and is only valid until the next call.
// An empty req yields ErrConnectionClosed.
func (h *Handler) Handle(req []byte) ([]byte, error) {
	_, resp, err := h.Respond(req)
	return resp, err
}

// Respond is Handle that also reports the route req was classified as.
func (h *Handler) Respond(req []byte) (Route, []byte, error) {
	route := Classify(req)

	var n int
	var err error
	switch route {
	case RouteClose:
		return route, nil, ErrConnectionClosed
	case RouteStatus:
		n, err = h.renderer.RenderStatus(h.buf, h.source.Pressed())
	default:
		n, err = h.renderer.RenderDashboard(h.buf)
	}
	if err != nil {
		return route, nil, fmt.Errorf("render %s: %w", route, err)
	}
	return route, h.buf[:n], nil
}

// ConnectionClosed is called once per connection, when its read side ends.
func (h *Handler) ConnectionClosed() {
	h.metrics.ConnectionClosed()
}
