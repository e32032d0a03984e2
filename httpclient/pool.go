// Package httpclient implements the pooled HTTP client described in spec
// §4.5 (C5): N persistent connections to a single base host:port, a bounded
// request queue, and an in-thread overflow list used when every connection
// is busy.
//
// Grounded on the teacher's client/client.go + client/pool_client.go
// (pool-of-connections, reconnect shape) and
// original_source/service/http_client.cc's dispatch algorithm (idle-stack
// pop / overflow-list push, reuse-without-stack-churn on completion).
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
package httpclient

import (
	"sync"

	"github.com/momentics/hiorest/httpconn"
	"github.com/momentics/hiorest/reactor"
	"github.com/momentics/hiorest/xerrors"
	"github.com/momentics/hiorest/xlog"
)

type queuedRequest struct {
	req *httpconn.Request
	cb  httpconn.Callback
}

// Options configures a Pool.
type Options struct {
	Connections   int // N persistent connections (spec §4.5)
	QueueCapacity int // bounded overflow-list capacity (spec §4.5 Backpressure)
	ConnQueue     int // per-connection outbound tcpsocket queue capacity
	Logger        xlog.Logger
}

// Pool multiplexes a bounded queue of outbound requests over a bounded set
// of persistent connections to one base URL (spec §4.5). Dispatch runs
// synchronously inside EnqueueRequest under one mutex around the idle stack
// and overflow list, held for O(1) work only (spec §5) — there is no
// separate dispatch goroutine to race against, so the admission decision
// (idle connection, overflow slot, or reject) is made atomically with the
// caller's EnqueueRequest call.
type Pool struct {
	r      reactor.Reactor
	opts   Options
	logger xlog.Logger

	conns []*httpconn.Connection

	mu       sync.Mutex
	idle     []*httpconn.Connection
	overflow []queuedRequest
	closed   bool
}

// New constructs a Pool of opts.Connections connections to host:port and
// starts connecting all of them immediately; all connections start in the
// idle stack per spec §4.5 ("initially all idle") — writing to a
// Connecting-state tcpsocket is legal (spec §3), so requests assigned
// before the handshake completes simply wait in that socket's own outbound
// queue.
func New(r reactor.Reactor, host, port string, opts Options) (*Pool, error) {
	if opts.Connections <= 0 {
		opts.Connections = 4
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = 64
	}
	if opts.ConnQueue <= 0 {
		opts.ConnQueue = 16
	}
	if opts.Logger == nil {
		opts.Logger = xlog.Noop{}
	}

	p := &Pool{
		r:      r,
		opts:   opts,
		logger: opts.Logger,
	}

	p.conns = make([]*httpconn.Connection, opts.Connections)
	for i := 0; i < opts.Connections; i++ {
		conn := httpconn.New(r, host, port, httpconn.Options{
			Logger:        opts.Logger,
			QueueCapacity: opts.ConnQueue,
		})
		p.conns[i] = conn
		connRef := conn
		conn.SetOnIdle(func(closeRequired bool) { p.onConnIdle(connRef, closeRequired) })
		if err := conn.Connect(); err != nil {
			return nil, xerrors.New(xerrors.CodeTransport, "httpclient.new", err)
		}
		p.idle = append(p.idle, conn)
	}

	return p, nil
}

// EnqueueRequest dispatches req to an idle connection immediately, or
// parks it on the bounded overflow list if every connection is busy.
// Returns false if the overflow list is already at capacity (spec §4.5
// Backpressure: "EnqueueRequest returns false if the bounded queue is
// full") or the pool is shut down.
func (p *Pool) EnqueueRequest(req *httpconn.Request, cb httpconn.Callback) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		p.send(conn, queuedRequest{req: req, cb: cb})
		return true
	}
	if len(p.overflow) >= p.opts.QueueCapacity {
		p.mu.Unlock()
		return false
	}
	p.overflow = append(p.overflow, queuedRequest{req: req, cb: cb})
	p.mu.Unlock()
	return true
}

// Stats reports the current split, for the invariant spec §8 names:
// |busyConnections| + |idleStack| == N.
func (p *Pool) Stats() (idle, busy, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle), len(p.conns) - len(p.idle), len(p.conns)
}

// OverflowLen reports how many requests are currently parked waiting for a
// free connection, for tests asserting the backpressure bound.
func (p *Pool) OverflowLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.overflow)
}

// onConnIdle is the completion hook wired into every Connection: reuse
// without stack churn if work is waiting, else return to the idle stack.
// A connection that must close (protocol error or Connection: close) is
// reconnected before being offered to the next caller; tcpsocket accepts
// writes while Connecting (spec §3), so the very next request can already
// be queued on it.
func (p *Pool) onConnIdle(conn *httpconn.Connection, closeRequired bool) {
	if closeRequired {
		conn.Close()
		if err := conn.Connect(); err != nil {
			p.logger.Warnf("httpclient: reconnect failed: %v", err)
		}
	}

	p.mu.Lock()
	if n := len(p.overflow); n > 0 {
		qr := p.overflow[0]
		p.overflow = p.overflow[1:]
		p.mu.Unlock()
		p.send(conn, qr)
		return
	}
	p.idle = append(p.idle, conn)
	p.mu.Unlock()
}

func (p *Pool) send(conn *httpconn.Connection, qr queuedRequest) {
	if err := conn.SendRequest(qr.req, qr.cb); err != nil {
		if qr.cb != nil {
			qr.cb(nil, err)
		}
	}
}

// Shutdown drops any still-overflowing requests with an error (spec §4.5
// Cancellation) and closes every connection.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	pending := p.overflow
	p.overflow = nil
	p.mu.Unlock()

	for _, qr := range pending {
		if qr.cb != nil {
			qr.cb(nil, xerrors.New(xerrors.CodeResource, "httpclient.shutdown", xerrors.ErrClosed))
		}
	}
	for _, c := range p.conns {
		c.Close()
	}
}
