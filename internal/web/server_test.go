package web

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sweeney/button-sensor/internal/logic"
	"github.com/sweeney/button-sensor/internal/metrics"
	"github.com/sweeney/button-sensor/internal/status"
)

type testServer struct {
	srv     *Server
	tracker *status.Tracker
	reg     *prometheus.Registry
}

// startTestServer listens on loopback and dispatches on its own goroutine,
// standing in for the daemon's main loop.
func startTestServer(t *testing.T) *testServer {
	t.Helper()
	tr := status.NewTracker(time.Now(), status.Config{})
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	srv := New("127.0.0.1:0", NewHandler(newTestRenderer(t, "en"), tr, m), m, time.Second)

	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		srv.Run(ctx)
		close(runDone)
	}()
	t.Cleanup(func() {
		cancel()
		<-runDone
		srv.Close()
	})
	return &testServer{srv: srv, tracker: tr, reg: reg}
}

func (ts *testServer) dial(t *testing.T) net.Conn {
	t.Helper()
	c, err := net.Dial("tcp", ts.srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func roundTrip(t *testing.T, c net.Conn, br *bufio.Reader, req string) (*http.Response, string) {
	t.Helper()
	c.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.WriteString(c, req); err != nil {
		t.Fatalf("write request: %v", err)
	}
	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()
	return resp, string(body)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var sum float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServerStatusRoundTrip(t *testing.T) {
	ts := startTestServer(t)
	ts.tracker.Update(logic.Pressed{A: true, B: false}, 1, logic.EventCounts{})

	c := ts.dial(t)
	resp, body := roundTrip(t, c, bufio.NewReader(c), "GET /api/buttons HTTP/1.1\r\nHost: pico\r\n\r\n")

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
	want := `{"btnA":{"col":"red","st":"Pressed"},"btnB":{"col":"green","st":"Released"}}`
	if body != want {
		t.Errorf("body: got %s, want %s", body, want)
	}
}

func TestServerDashboardRoundTrip(t *testing.T) {
	ts := startTestServer(t)

	c := ts.dial(t)
	resp, body := roundTrip(t, c, bufio.NewReader(c), "GET / HTTP/1.1\r\nHost: pico\r\n\r\n")

	if ct := resp.Header.Get("Content-Type"); ct != "text/html" {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
	if !strings.Contains(body, `id="btn-a"`) {
		t.Error("expected the dashboard page")
	}
}

func TestServerSeveralRequestsOnOneConnection(t *testing.T) {
	ts := startTestServer(t)
	c := ts.dial(t)
	br := bufio.NewReader(c)

	_, body := roundTrip(t, c, br, "GET /api/buttons HTTP/1.1\r\n\r\n")
	if !strings.Contains(body, `"st":"Released"`) {
		t.Errorf("first poll: got %s", body)
	}

	ts.tracker.Update(logic.Pressed{A: true, B: true}, 2, logic.EventCounts{})

	_, body = roundTrip(t, c, br, "GET /api/buttons HTTP/1.1\r\n\r\n")
	want := `{"btnA":{"col":"red","st":"Pressed"},"btnB":{"col":"red","st":"Pressed"}}`
	if body != want {
		t.Errorf("second poll: got %s, want %s", body, want)
	}

	_, body = roundTrip(t, c, br, "GET / HTTP/1.1\r\n\r\n")
	if !strings.HasPrefix(body, "<!DOCTYPE html>") {
		t.Error("third request: expected the dashboard page")
	}

	// Counted after each write returns, which can trail the client's read.
	waitFor(t, "request count", func() bool {
		return counterValue(t, ts.reg, "button_sensor_http_requests_total") == 3
	})
}

func TestServerPeerCloseRunsHook(t *testing.T) {
	ts := startTestServer(t)

	c := ts.dial(t)
	roundTrip(t, c, bufio.NewReader(c), "GET / HTTP/1.1\r\n\r\n")
	c.Close()

	waitFor(t, "close hook", func() bool {
		return counterValue(t, ts.reg, "button_sensor_http_connections_closed_total") == 1
	})
	if got := counterValue(t, ts.reg, "button_sensor_http_connections_opened_total"); got != 1 {
		t.Errorf("opened: got %v, want 1", got)
	}
}

func TestServerConnectionsAreIndependent(t *testing.T) {
	ts := startTestServer(t)

	c1 := ts.dial(t)
	c2 := ts.dial(t)
	br2 := bufio.NewReader(c2)

	// c1 sends half a request and vanishes.
	io.WriteString(c1, "GET /api/butt")
	c1.Close()

	waitFor(t, "c1 close", func() bool {
		return counterValue(t, ts.reg, "button_sensor_http_connections_closed_total") == 1
	})

	resp, _ := roundTrip(t, c2, br2, "GET /api/buttons HTTP/1.1\r\n\r\n")
	if resp.StatusCode != 200 {
		t.Errorf("c2: got %d, want 200", resp.StatusCode)
	}

	// The listener still accepts new connections.
	c3 := ts.dial(t)
	resp, _ = roundTrip(t, c3, bufio.NewReader(c3), "GET / HTTP/1.1\r\n\r\n")
	if resp.StatusCode != 200 {
		t.Errorf("c3: got %d, want 200", resp.StatusCode)
	}
}

func TestServerStartBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	srv := New(ln.Addr().String(), NewHandler(newTestRenderer(t, "en"), &fakeSource{}, nil), nil, time.Second)
	if err := srv.Start(); err == nil {
		srv.Close()
		t.Fatal("expected bind failure on an address in use")
	}
	if srv.Addr() != nil {
		t.Errorf("expected no bound address, got %v", srv.Addr())
	}
}

func TestServerCloseStopsRun(t *testing.T) {
	srv := New("127.0.0.1:0", NewHandler(newTestRenderer(t, "en"), &fakeSource{}, nil), nil, time.Second)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// An idle connection must not keep Close from returning.
	c, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(context.Background()) }()

	if err := srv.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run: got %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

// pipeConn wraps the server end of a net.Pipe as an accepted connection.
func pipeConn() (*conn, net.Conn) {
	server, client := net.Pipe()
	return &conn{
		Conn:     server,
		buf:      make([]byte, recvBufferSize),
		released: make(chan struct{}, 1),
	}, client
}

func newPipeServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	return New("", NewHandler(newTestRenderer(t, "en"), &fakeSource{pressed: logic.Pressed{B: true}}, m), m, time.Second), reg
}

func TestDispatchWritesThenReleases(t *testing.T) {
	srv, _ := newPipeServer(t)
	c, client := pipeConn()
	defer client.Close()

	got := make(chan string, 1)
	go func() {
		resp, err := http.ReadResponse(bufio.NewReader(client), nil)
		if err != nil {
			got <- "error: " + err.Error()
			return
		}
		body, _ := io.ReadAll(resp.Body)
		got <- string(body)
	}()

	srv.Dispatch(Inbound{Data: []byte("GET /api/buttons HTTP/1.1\r\n\r\n"), c: c})

	want := `{"btnA":{"col":"green","st":"Released"},"btnB":{"col":"red","st":"Pressed"}}`
	if body := <-got; body != want {
		t.Errorf("body: got %s, want %s", body, want)
	}
	if len(c.released) != 1 {
		t.Errorf("expected exactly one release, got %d", len(c.released))
	}
	if err := c.close(); err != nil {
		t.Errorf("connection should still be open, close returned %v", err)
	}
}

func TestDispatchWriteFailureDropsOnlyThatConnection(t *testing.T) {
	srv, reg := newPipeServer(t)
	c, client := pipeConn()
	client.Close()

	srv.Dispatch(Inbound{Data: []byte("GET / HTTP/1.1\r\n\r\n"), c: c})

	if len(c.released) != 1 {
		t.Errorf("buffer must be released on the failure path, got %d releases", len(c.released))
	}
	if err := c.close(); !errors.Is(err, net.ErrClosed) {
		t.Errorf("expected connection already closed, got %v", err)
	}
	if got := counterValue(t, reg, "button_sensor_http_connection_faults_total"); got != 1 {
		t.Errorf("faults: got %v, want 1", got)
	}
	if got := counterValue(t, reg, "button_sensor_http_requests_total"); got != 0 {
		t.Errorf("failed write counted as answered: got %v requests", got)
	}

	// The next connection is served normally.
	c2, client2 := pipeConn()
	defer client2.Close()
	done := make(chan error, 1)
	go func() {
		_, err := http.ReadResponse(bufio.NewReader(client2), nil)
		done <- err
	}()
	srv.Dispatch(Inbound{Data: []byte("GET / HTTP/1.1\r\n\r\n"), c: c2})
	if err := <-done; err != nil {
		t.Errorf("second connection: %v", err)
	}
}

func TestDispatchCloseSignal(t *testing.T) {
	srv, reg := newPipeServer(t)
	c, client := pipeConn()
	defer client.Close()
	srv.track(c)

	srv.Dispatch(Inbound{c: c})

	if len(c.released) != 0 {
		t.Error("close signal carries no buffer and must not signal a release")
	}
	if err := c.close(); !errors.Is(err, net.ErrClosed) {
		t.Errorf("expected connection closed, got %v", err)
	}
	if got := counterValue(t, reg, "button_sensor_http_connections_closed_total"); got != 1 {
		t.Errorf("closed: got %v, want 1", got)
	}
	if got := counterValue(t, reg, "button_sensor_http_requests_total"); got != 0 {
		t.Errorf("close must not render, got %v requests", got)
	}
	srv.mu.Lock()
	n := len(srv.conns)
	srv.mu.Unlock()
	if n != 0 {
		t.Errorf("expected connection forgotten, %d tracked", n)
	}
}

func TestDispatchCountsWrittenResponses(t *testing.T) {
	srv, reg := newPipeServer(t)
	c, client := pipeConn()
	defer client.Close()

	br := bufio.NewReader(client)
	for _, req := range []string{
		"GET /api/buttons HTTP/1.1\r\n\r\n",
		"GET /api/buttons HTTP/1.1\r\n\r\n",
		"GET / HTTP/1.1\r\n\r\n",
	} {
		done := make(chan error, 1)
		go func() {
			resp, err := http.ReadResponse(br, nil)
			if err == nil {
				_, err = io.ReadAll(resp.Body)
			}
			done <- err
		}()
		srv.Dispatch(Inbound{Data: []byte(req), c: c})
		if err := <-done; err != nil {
			t.Fatalf("read response: %v", err)
		}
		<-c.released
	}

	want := `
# HELP button_sensor_http_requests_total Responses written, by route.
# TYPE button_sensor_http_requests_total counter
button_sensor_http_requests_total{route="dashboard"} 1
button_sensor_http_requests_total{route="status"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "button_sensor_http_requests_total"); err != nil {
		t.Error(err)
	}
}

func TestDispatchWithoutConnectionIsIgnored(t *testing.T) {
	srv, reg := newPipeServer(t)

	srv.Dispatch(Inbound{Data: []byte("GET /api/buttons HTTP/1.1\r\n\r\n")})
	srv.Dispatch(Inbound{})

	if got := counterValue(t, reg, "button_sensor_http_requests_total"); got != 0 {
		t.Errorf("requests: got %v, want 0", got)
	}
	if got := counterValue(t, reg, "button_sensor_http_connections_closed_total"); got != 0 {
		t.Errorf("closed: got %v, want 0", got)
	}
}

func TestServerLargeRequestGetsOneResponse(t *testing.T) {
	ts := startTestServer(t)
	ts.tracker.Update(logic.Pressed{A: true}, 1, logic.EventCounts{})

	var req strings.Builder
	req.WriteString("GET /api/buttons HTTP/1.1\r\nHost: pico\r\n")
	req.WriteString("User-Agent: Mozilla/5.0 (X11; Linux aarch64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36\r\n")
	req.WriteString("Cookie: session=" + strings.Repeat("x", 1400) + "\r\n\r\n")
	if req.Len() <= 1024+256 {
		t.Fatalf("request is only %d bytes", req.Len())
	}

	c := ts.dial(t)
	br := bufio.NewReader(c)
	resp, body := roundTrip(t, c, br, req.String())
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}
	if !strings.Contains(body, `"btnA":{"col":"red"`) {
		t.Errorf("unexpected body: %s", body)
	}

	// Nothing else may follow on the connection.
	c.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if extra, err := br.ReadByte(); err == nil {
		t.Fatalf("unexpected second response starting with %q", extra)
	} else {
		var ne net.Error
		if !errors.As(err, &ne) || !ne.Timeout() {
			t.Errorf("expected read timeout, got %v", err)
		}
	}
	waitFor(t, "request count", func() bool {
		return counterValue(t, ts.reg, "button_sensor_http_requests_total") == 1
	})
}
