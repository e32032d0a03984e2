// Package httpconn implements the HTTP Connection described in spec §4.4
// (C4): drives exactly one request/response over one tcpsocket.Socket,
// bridging httpwire.Parser callbacks to a single user callback per request.
//
// Grounded on the teacher's protocol/connection.go recv/send-loop shape (a
// frame codec driven off a transport, dispatched to a user handler),
// repointed at HTTP/1.1 request/response framing instead of WebSocket
// frames.
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
package httpconn

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/momentics/hiorest/httpwire"
	"github.com/momentics/hiorest/reactor"
	"github.com/momentics/hiorest/tcpsocket"
	"github.com/momentics/hiorest/xerrors"
	"github.com/momentics/hiorest/xlog"
)

// State is the connection state machine of spec §4.4: a request is
// accepted only in Idle; attempting otherwise is a programming error.
type State int

const (
	Idle State = iota
	SendingHeaders
	SendingBody
	AwaitingResponse
)

func (s State) String() string {
	switch s {
	case SendingHeaders:
		return "sending-headers"
	case SendingBody:
		return "sending-body"
	case AwaitingResponse:
		return "awaiting-response"
	default:
		return "idle"
	}
}

// Header is one ordered, case-insensitive-lookup header entry (spec §3
// HttpRequest).
type Header struct{ Key, Value string }

// Headers is an ordered header list with case-insensitive Get, matching the
// spec's "header list (ordered, case-insensitive lookup)".
type Headers []Header

// Get returns the first value for key, matched case-insensitively.
func (h Headers) Get(key string) (string, bool) {
	for _, kv := range h {
		if equalFold(kv.Key, key) {
			return kv.Value, true
		}
	}
	return "", false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Request is an outbound HTTP/1.1 message (spec §3 HttpRequest). Target is
// the request-target written on the wire (path plus optional query); the
// pool a Connection belongs to already fixes the scheme/host/port, so a
// full absolute URL per connection would be redundant (spec §4.5: "a
// single base URL").
type Request struct {
	Verb      string
	Target    string
	Headers   Headers
	Body      []byte
	MediaType string
	Deadline  time.Time
}

// Response is the assembled result of one request, handed to Callback.
// The wire parser itself never buffers a whole message (spec §4.3); this
// struct is the pooled client's convenience assembly on top of it, the same
// trade a pooled HTTP client (as opposed to a raw streaming proxy) always
// makes.
type Response struct {
	StatusCode int
	Headers    Headers
	Body       []byte
}

// Callback receives the outcome of exactly one SendRequest call.
type Callback func(*Response, error)

// Options configures a Connection.
type Options struct {
	Logger        xlog.Logger
	QueueCapacity int
	ReadBufSize   int

	// OnIdle fires whenever the connection returns to Idle after
	// completing (or failing) a request, so an owning pool can reuse it.
	OnIdle func(closeRequired bool)
	// OnConnectResult forwards tcpsocket's connection-result notification.
	OnConnectResult func(reactor.ConnResult, error)
}

// Connection bridges one tcpsocket.Socket and one httpwire.Parser
// (spec §4.4).
type Connection struct {
	sock   *tcpsocket.Socket
	parser *httpwire.Parser
	r      reactor.Reactor
	opts   Options
	logger xlog.Logger

	mu          sync.Mutex
	state       State
	req         *Request
	cb          Callback
	pendingMsgs int
	closeAfter  bool

	respStatus  int
	respHeaders Headers
	respBody    bytes.Buffer

	deadlineReg *reactor.Registration
	traceID     string
}

// New constructs a Connection targeting host:port. Connect must be called
// before SendRequest.
func New(r reactor.Reactor, host, port string, opts Options) *Connection {
	if opts.Logger == nil {
		opts.Logger = xlog.Noop{}
	}
	c := &Connection{r: r, opts: opts, logger: opts.Logger}
	c.sock = tcpsocket.New(r, host, port, tcpsocket.Options{
		QueueCapacity:   opts.QueueCapacity,
		ReadBufSize:     opts.ReadBufSize,
		Logger:          opts.Logger,
		OnConnectResult: c.onConnectResult,
		OnReadable:      c.onReadable,
		OnWriteResult:   c.onWriteResult,
		OnDisconnected:  c.onDisconnected,
	})
	c.parser = httpwire.New(httpwire.ModeResponse, httpwire.Callbacks{
		OnResponseStart: c.onResponseStart,
		OnHeader:        c.onHeader,
		OnData:          c.onData,
		OnDone:          c.onDone,
	})
	return c
}

// Connect initiates the non-blocking connect sequence.
func (c *Connection) Connect() error { return c.sock.Connect() }

// Close synchronously tears down the underlying socket.
func (c *Connection) Close() { c.sock.Close() }

// SetOnIdle installs (or replaces) the callback fired whenever the
// connection returns to Idle, letting an owning pool bind its own identity
// into the closure after construction (httpclient.Pool does this).
func (c *Connection) SetOnIdle(fn func(closeRequired bool)) {
	c.mu.Lock()
	c.opts.OnIdle = fn
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SendRequest serializes and enqueues req. It is a programming error to
// call this outside Idle (spec §4.4: "A new request is accepted only in
// Idle").
func (c *Connection) SendRequest(req *Request, cb Callback) error {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return xerrors.New(xerrors.CodeApplication, "httpconn.sendRequest", fmt.Errorf("connection not idle (state=%s)", c.state))
	}
	c.req = req
	c.cb = cb
	c.respStatus = 0
	c.respHeaders = nil
	c.respBody.Reset()
	c.parser.Reset()
	c.state = SendingHeaders
	c.traceID = xlog.WithTraceID()
	c.pendingMsgs = 1
	hasBody := len(req.Body) > 0
	if hasBody {
		c.pendingMsgs = 2
	}
	c.mu.Unlock()

	if !req.Deadline.IsZero() {
		c.armDeadline(time.Until(req.Deadline))
	}

	head := serializeHead(req)
	if !c.sock.Write(head) {
		c.failLocked(xerrors.New(xerrors.CodeResource, "httpconn.sendRequest", xerrors.ErrQueueFull))
		return xerrors.ErrQueueFull
	}
	if hasBody {
		if !c.sock.Write(req.Body) {
			c.failLocked(xerrors.New(xerrors.CodeResource, "httpconn.sendRequest", xerrors.ErrQueueFull))
			return xerrors.ErrQueueFull
		}
	}
	return nil
}

func serializeHead(req *Request) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", req.Verb, req.Target)
	wroteContentLength := false
	wroteContentType := false
	for _, h := range req.Headers {
		fmt.Fprintf(&b, "%s: %s\r\n", h.Key, h.Value)
		if equalFold(h.Key, "content-length") {
			wroteContentLength = true
		}
		if equalFold(h.Key, "content-type") {
			wroteContentType = true
		}
	}
	if len(req.Body) > 0 && !wroteContentLength {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(req.Body))
	}
	if len(req.Body) > 0 && req.MediaType != "" && !wroteContentType {
		fmt.Fprintf(&b, "Content-Type: %s\r\n", req.MediaType)
	}
	b.WriteString("\r\n")
	return b.Bytes()
}

func (c *Connection) onConnectResult(result reactor.ConnResult, err error) {
	if c.opts.OnConnectResult != nil {
		c.opts.OnConnectResult(result, err)
	}
}

func (c *Connection) onReadable(data []byte) {
	if err := c.parser.Feed(data); err != nil {
		c.logger.Warnf("httpconn: parse error: %v", err)
		c.sock.RequestClose()
	}
}

func (c *Connection) onWriteResult(wr tcpsocket.WriteResult) {
	if wr.Err != nil {
		return
	}
	c.mu.Lock()
	c.pendingMsgs--
	if c.pendingMsgs <= 0 && c.state == SendingHeaders {
		c.state = SendingBody
	}
	if c.pendingMsgs <= 0 && c.state == SendingBody {
		c.state = AwaitingResponse
	}
	c.mu.Unlock()
}

func (c *Connection) onDisconnected(err error) {
	c.mu.Lock()
	state := c.state
	cb := c.cb
	c.mu.Unlock()
	if state == Idle {
		return
	}
	c.disarmDeadline()
	if cb != nil {
		cb(nil, xerrors.New(xerrors.CodeTransport, "httpconn.disconnected", err))
	}
	c.resetToIdle(false)
}

func (c *Connection) onResponseStart(version string, code int) {
	c.mu.Lock()
	c.respStatus = code
	req := c.req
	c.mu.Unlock()

	expectBody := true
	if req != nil && req.Verb == "HEAD" {
		expectBody = false
	}
	if code == 204 || code == 304 || (code >= 100 && code < 200) {
		expectBody = false
	}
	c.parser.SetExpectBody(expectBody)
}

func (c *Connection) onHeader(line []byte) {
	colon := bytes.IndexByte(line, ':')
	if colon < 0 {
		return
	}
	key := string(bytes.TrimSpace(line[:colon]))
	value := string(bytes.TrimSpace(line[colon+1:]))
	c.mu.Lock()
	c.respHeaders = append(c.respHeaders, Header{Key: key, Value: value})
	c.mu.Unlock()
}

func (c *Connection) onData(chunk []byte) {
	c.mu.Lock()
	c.respBody.Write(chunk)
	c.mu.Unlock()
}

func (c *Connection) onDone(success bool) {
	c.disarmDeadline()

	c.mu.Lock()
	cb := c.cb
	resp := &Response{StatusCode: c.respStatus, Headers: c.respHeaders, Body: append([]byte(nil), c.respBody.Bytes()...)}
	requireClose := c.parser.RequireClose()
	c.mu.Unlock()

	if !success {
		if cb != nil {
			cb(nil, xerrors.New(xerrors.CodeProtocol, "httpconn.response", errMalformedResponse))
		}
		c.sock.RequestClose()
		c.resetToIdle(true)
		return
	}

	if cb != nil {
		cb(resp, nil)
	}
	if requireClose {
		c.sock.RequestClose()
	}
	c.resetToIdle(requireClose)
}

func (c *Connection) resetToIdle(closeRequired bool) {
	c.mu.Lock()
	c.state = Idle
	c.req = nil
	c.cb = nil
	onIdle := c.opts.OnIdle
	c.mu.Unlock()
	if onIdle != nil {
		onIdle(closeRequired)
	}
}

func (c *Connection) failLocked(err error) {
	c.mu.Lock()
	cb := c.cb
	c.mu.Unlock()
	c.disarmDeadline()
	if cb != nil {
		cb(nil, err)
	}
	c.resetToIdle(false)
}

// armDeadline schedules a one-shot timeout: the reactor only exposes a
// periodic primitive (spec §4.1 addPeriodic), so a request deadline is
// modeled as a periodic timer that unregisters itself the first time it
// fires.
func (c *Connection) armDeadline(d time.Duration) {
	if d <= 0 {
		d = time.Millisecond
	}
	reg, err := c.r.AddPeriodic(d, func(uint64) { c.onDeadline() })
	if err != nil {
		c.logger.Warnf("httpconn: failed to arm deadline: %v", err)
		return
	}
	c.mu.Lock()
	c.deadlineReg = reg
	c.mu.Unlock()
}

func (c *Connection) onDeadline() {
	c.mu.Lock()
	reg := c.deadlineReg
	c.deadlineReg = nil
	state := c.state
	cb := c.cb
	traceID := c.traceID
	c.mu.Unlock()
	if reg != nil {
		_ = c.r.Unregister(reg)
	}
	if state == Idle {
		return
	}
	c.logger.Warnf("httpconn[trace=%s]: request deadline exceeded, closing connection", traceID)
	if cb != nil {
		cb(nil, xerrors.New(xerrors.CodeTimeout, "httpconn.deadline", context.DeadlineExceeded))
	}
	c.sock.Close()
	c.resetToIdle(true)
}

func (c *Connection) disarmDeadline() {
	c.mu.Lock()
	reg := c.deadlineReg
	c.deadlineReg = nil
	c.mu.Unlock()
	if reg != nil {
		_ = c.r.Unregister(reg)
	}
}

var errMalformedResponse = fmt.Errorf("httpconn: malformed response")
