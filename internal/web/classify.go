package web

import "bytes"

// Route is the outcome of classifying an inbound buffer.
type Route int

const (
	// RouteDashboard serves the HTML page. Anything not recognised lands here.
	RouteDashboard Route = iota
	// RouteStatus serves the JSON button status.
	RouteStatus
	// RouteClose means the peer closed the connection; nothing is rendered.
	RouteClose
)

func (r Route) String() string {
	switch r {
	case RouteDashboard:
		return "dashboard"
	case RouteStatus:
		return "status"
	case RouteClose:
		return "close"
	default:
		return "unknown"
	}
}

// StatusPath is the polling endpoint used by the dashboard script.
const StatusPath = "/api/buttons"

var statusRequest = []byte("GET " + StatusPath)

// Classify picks the route for an inbound buffer. The match is a
// case-sensitive substring search anywhere in the buffer; method, version
// and path boundaries are not checked. An empty buffer is a close signal.
func Classify(req []byte) Route {
	if len(req) == 0 {
		return RouteClose
	}
	if bytes.Contains(req, statusRequest) {
		return RouteStatus
	}
	return RouteDashboard
}
