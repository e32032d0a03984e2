// Package server wires the Reactor, an accept loop, and the REST Router
// into a running HTTP/1.1 service (spec §2 "Data flow (server side)").
//
// Grounded on the teacher's server/hioload.go (Config/DefaultConfig/New/
// Start/Stop facade shape) repurposed from a WebSocket handshake endpoint
// to a plain HTTP/1.1 request/response server; the accept loop itself is
// grounded on lowlevel/server/listener.go, adapted to register its fd with
// the Reactor directly instead of blocking on net.Listener.Accept.
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
package server

import (
	"sync"
	"time"

	"github.com/momentics/hiorest/reactor"
	"github.com/momentics/hiorest/router"
	"github.com/momentics/hiorest/tcpsocket"
	"github.com/momentics/hiorest/xerrors"
	"github.com/momentics/hiorest/xlog"
)

// Config holds the configurable parameters of a Server, mirroring the
// teacher's Config/DefaultConfig split.
type Config struct {
	ListenAddr    string
	NumWorkers    int
	ReadBufSize   int
	QueueCapacity int
	Logger        xlog.Logger
}

// DefaultConfig returns a baseline Config.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:    ":8080",
		NumWorkers:    4,
		ReadBufSize:   64 * 1024,
		QueueCapacity: 256,
	}
}

// Server is the running accept loop plus Reactor bound to one Router.
type Server struct {
	cfg    *Config
	logger xlog.Logger
	router *router.Router
	r      reactor.Reactor
	ln     *listener

	mu      sync.Mutex
	started bool
}

// New constructs a Server. cfg may be nil (DefaultConfig is used).
func New(cfg *Config, rt *router.Router) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = xlog.Noop{}
	}
	r, err := reactor.New(reactor.Options{Workers: cfg.NumWorkers, Logger: logger})
	if err != nil {
		return nil, xerrors.New(xerrors.CodeApplication, "server.new", err)
	}
	return &Server{cfg: cfg, logger: logger, router: rt, r: r}, nil
}

// Start opens the listening socket and begins accepting connections. It
// returns once the listener is registered; connection handling proceeds on
// the Reactor's worker pool.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	ln, err := newListener(s.r, s.cfg.ListenAddr, s.logger, s.onAccept)
	if err != nil {
		return err
	}
	s.ln = ln
	s.started = true
	s.logger.Infof("server: listening on %s", s.cfg.ListenAddr)
	return nil
}

func (s *Server) onAccept(fd int, addr string) {
	// sc is captured by the callbacks below before it exists. Another
	// reactor worker may dispatch an event for fd as soon as Accepted
	// registers it, so both callbacks wait on ready, which is closed only
	// once sc is assigned.
	var sc *serverConn
	ready := make(chan struct{})
	sock, err := tcpsocket.Accepted(s.r, fd, s.cfg.ListenAddr, "", tcpsocket.Options{
		QueueCapacity:  s.cfg.QueueCapacity,
		ReadBufSize:    s.cfg.ReadBufSize,
		Logger:         s.logger,
		OnReadable:     func(data []byte) { <-ready; sc.onReadable(data) },
		OnDisconnected: func(err error) { <-ready; sc.onDisconnected(err) },
	})
	if err != nil {
		s.logger.Warnf("server: failed to wrap accepted connection from %s: %v", addr, err)
		return
	}

	sc = newServerConn(sock, s.router, s.logger, addr)
	close(ready)
}

// Shutdown stops accepting new connections and drains the Reactor (spec
// §4.1 "shutdown discipline"). shutdownTimeout bounds how long Shutdown
// waits before returning regardless of drain state; a value <= 0 waits for
// the drain without a bound.
func (s *Server) Shutdown(shutdownTimeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	if s.ln != nil {
		s.ln.Close()
	}
	done := make(chan struct{})
	go func() {
		s.r.Shutdown()
		close(done)
	}()
	if shutdownTimeout > 0 {
		select {
		case <-done:
		case <-time.After(shutdownTimeout):
			s.logger.Warnf("server: shutdown timed out after %v before the reactor drained", shutdownTimeout)
		}
	} else {
		<-done
	}
	s.started = false
}
