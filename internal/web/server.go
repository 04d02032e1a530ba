package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/sweeney/button-sensor/internal/metrics"
)

// recvBufferSize is the size of each connection's receive buffer. One read
// yields one response, so a whole browser request (cookies and client hints
// included) must fit in a single read.
const recvBufferSize = MaxResponseSize

// acceptRetryDelay is the pause after a failed Accept before trying again.
const acceptRetryDelay = 100 * time.Millisecond

// conn is one accepted connection and the receive buffer its reader owns.
type conn struct {
	net.Conn
	buf      []byte
	released chan struct{}
	once     sync.Once
}

func (c *conn) close() error {
	err := net.ErrClosed
	c.once.Do(func() { err = c.Conn.Close() })
	return err
}

// Inbound is one buffer received from a connection. A nil Data means the
// peer closed the connection. The connection's reader does not touch the
// buffer again until Release is called.
type Inbound struct {
	Data []byte
	c    *conn
}

// Release hands the receive buffer back to the connection's reader.
// It must be called exactly once per Inbound; Dispatch does this.
func (in Inbound) Release() {
	if in.c == nil || in.Data == nil {
		return
	}
	select {
	case in.c.released <- struct{}{}:
	default:
	}
}

// Server binds the listening socket and feeds received buffers, one at a
// time, to whoever calls Dispatch. Accepting and reading happen on their own
// goroutines; classification, rendering and writing happen only in Dispatch.
type Server struct {
	addr         string
	handler      *Handler
	metrics      *metrics.Metrics
	writeTimeout time.Duration

	inbound   chan Inbound
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu    sync.Mutex
	ln    net.Listener
	conns map[*conn]struct{}
}

// New creates a Server for addr. writeTimeout bounds each response write;
// zero disables the deadline. m may be nil.
func New(addr string, h *Handler, m *metrics.Metrics, writeTimeout time.Duration) *Server {
	return &Server{
		addr:         addr,
		handler:      h,
		metrics:      m,
		writeTimeout: writeTimeout,
		inbound:      make(chan Inbound),
		done:         make(chan struct{}),
		conns:        make(map[*conn]struct{}),
	}
}

// Start binds the listening address and begins accepting connections.
// A bind failure is returned and nothing is started.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.Serve(ln)
	return nil
}

// Serve begins accepting connections on ln. It returns immediately.
func (s *Server) Serve(ln net.Listener) {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ln)
}

// Addr returns the bound address, or nil before Start/Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Inbound returns the channel of received buffers. Every value taken from it
// must be passed to Dispatch.
func (s *Server) Inbound() <-chan Inbound {
	return s.inbound
}

// Run dispatches inbound buffers until ctx is cancelled or the server is closed.
func (s *Server) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case in := <-s.inbound:
			s.Dispatch(in)
		}
	}
}

// Dispatch handles one inbound buffer: classify, render, write, release.
// A render or write failure drops only that connection.
// An Inbound without a connection is ignored.
func (s *Server) Dispatch(in Inbound) {
	if in.c == nil {
		return
	}
	defer in.Release()

	route, resp, err := s.handler.Respond(in.Data)
	if errors.Is(err, ErrConnectionClosed) {
		s.drop(in.c)
		s.handler.ConnectionClosed()
		return
	}
	if err != nil {
		log.Printf("web: %s: %v", remote(in.c), err)
		s.metrics.ConnectionFault("render")
		s.drop(in.c)
		return
	}

	if s.writeTimeout > 0 {
		in.c.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if _, err := in.c.Write(resp); err != nil {
		log.Printf("web: write to %s: %v", remote(in.c), err)
		s.metrics.ConnectionFault("write")
		s.drop(in.c)
		return
	}
	s.metrics.Request(route.String())
}

// Close stops accepting, closes every connection and waits for the reader
// goroutines to exit.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		if s.ln != nil {
			err = s.ln.Close()
		}
		for c := range s.conns {
			c.close()
		}
		s.mu.Unlock()

		s.wg.Wait()
	})
	return err
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("web: accept: %v", err)
			select {
			case <-s.done:
				return
			case <-time.After(acceptRetryDelay):
			}
			continue
		}

		c := &conn{
			Conn:     nc,
			buf:      make([]byte, recvBufferSize),
			released: make(chan struct{}, 1),
		}
		if !s.track(c) {
			nc.Close()
			return
		}
		s.metrics.ConnectionOpened()

		s.wg.Add(1)
		go s.readLoop(c)
	}
}

// readLoop reads into the connection's buffer and hands each read to the
// dispatcher, waiting for the release before reading again. When the read
// side fails it delivers the close signal and exits.
func (s *Server) readLoop(c *conn) {
	defer s.wg.Done()

	for {
		n, err := c.Read(c.buf)
		if n > 0 {
			if !s.deliver(Inbound{Data: c.buf[:n], c: c}) {
				return
			}
			select {
			case <-c.released:
			case <-s.done:
				return
			}
		}
		if err != nil {
			s.deliver(Inbound{c: c})
			return
		}
	}
}

func (s *Server) deliver(in Inbound) bool {
	select {
	case s.inbound <- in:
		return true
	case <-s.done:
		return false
	}
}

func (s *Server) track(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return false
	default:
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) drop(c *conn) {
	if c == nil {
		return
	}
	c.close()
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func remote(c *conn) string {
	if c == nil {
		return "<nil>"
	}
	return c.RemoteAddr().String()
}
