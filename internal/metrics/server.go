package metrics

import (
	"context"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/button-sensor/internal/status"
)

// SnapshotSource provides the status served on /status.json.
type SnapshotSource interface {
	Snapshot() status.Snapshot
}

// Server serves /metrics, /healthz and /status.json on a separate address
// from the button responder.
type Server struct {
	httpServer *http.Server
	source     SnapshotSource
}

// NewServer creates a Server exposing the collectors in g and the status from source.
func NewServer(addr string, g prometheus.Gatherer, source SnapshotSource) *Server {
	s := &Server{source: source}

	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	r.Get("/healthz", s.handleHealth)
	r.Get("/status.json", s.handleStatus)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Handler returns the router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve accepts connections on ln. It blocks until the server is shut down
// and then returns http.ErrServerClosed.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !s.source.Snapshot().Sampled {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("waiting for first sample\n"))
		return
	}
	w.Write([]byte("ok\n"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.source.Snapshot()))
}
