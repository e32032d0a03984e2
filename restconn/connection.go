// Package restconn implements the REST Connection capability described in
// spec §4.7 (C7): the response-writing abstraction handed to router
// handlers, supporting both one-shot and streaming (chunked) responses over
// one accepted tcpsocket.Socket.
//
// Grounded on original_source/service/http_rest_service.cc's
// HttpRestConnection (sendResponse / sendHttpResponseHeader / sendPayload /
// finishResponse, chunkedEncoding flag, responseSent_ guard) repointed at a
// raw tcpsocket.Socket write path instead of the original's libevent-backed
// HttpConnectionHandler.
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
package restconn

import (
	"bytes"
	"fmt"
	"strconv"
	"sync"

	"github.com/momentics/hiorest/router"
	"github.com/momentics/hiorest/tcpsocket"
	"github.com/momentics/hiorest/xlog"
)

// Phase is the RestConnection state machine of spec §3: Open → Headered →
// Streaming → Closed, or Open → OneShot → Closed.
type Phase int

const (
	Open Phase = iota
	OneShot
	Headered
	Streaming
	Closed
)

// Connection is the concrete, socket-backed router.RestConnection used by
// server/ for live requests (see inprocess.go for the router-test double).
type Connection struct {
	sock   *tcpsocket.Socket
	logger xlog.Logger

	mu           sync.Mutex
	phase        Phase
	chunked      bool
	keepAlive    bool
	bufferedBody bytes.Buffer
	code         int
}

// New wraps sock (already in tcpsocket.Connected state, e.g. via
// tcpsocket.Accepted) as a RestConnection. keepAlive controls the
// Connection header of every response and whether the socket is closed
// once the response is finished (by SendResponse or FinishResponse).
func New(sock *tcpsocket.Socket, keepAlive bool, logger xlog.Logger) *Connection {
	if logger == nil {
		logger = xlog.Noop{}
	}
	return &Connection{sock: sock, keepAlive: keepAlive, logger: logger, phase: Open}
}

// ResponseSent reports whether a terminal emission has already been made
// (spec §4.7 "the authoritative check").
func (c *Connection) ResponseSent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase != Open
}

// SendResponse emits a complete, non-streamed response in one shot (spec
// §4.7 Open→OneShot→Closed).
func (c *Connection) SendResponse(code int, body []byte, mediaType string) {
	c.mu.Lock()
	if c.phase != Open {
		c.mu.Unlock()
		c.logger.Warnf("restconn: SendResponse called after response already sent")
		return
	}
	c.phase = OneShot
	c.code = code
	c.mu.Unlock()

	head := c.renderHead(code, mediaType, int64(len(body)), nil)
	c.sock.Write(head)
	if len(body) > 0 {
		c.sock.Write(body)
	}
	c.finish()
}

// SendHTTPResponseHeader begins a streaming response (spec §4.7
// Open→Headered→Streaming→Closed). contentLength < 0 selects
// Transfer-Encoding: chunked, matching the original's CHUNKED_ENCODING
// sentinel.
func (c *Connection) SendHTTPResponseHeader(code int, mediaType string, contentLength int64, headers router.Headers) {
	c.mu.Lock()
	if c.phase != Open {
		c.mu.Unlock()
		c.logger.Warnf("restconn: SendHTTPResponseHeader called after response already sent")
		return
	}
	c.chunked = contentLength < 0
	c.phase = Headered
	c.code = code
	c.mu.Unlock()

	c.sock.Write(c.renderHead(code, mediaType, contentLength, headers))
}

// SendPayload writes one chunk of a streaming response. Calling it before
// SendHTTPResponseHeader, or with an empty chunk on a chunked connection, is
// a programming error surfaced via a log line rather than a panic, matching
// the original's "sendPayload on a non-streaming connection" guard being a
// hard exception while this port favors resilience over crashing a worker.
func (c *Connection) SendPayload(data []byte) {
	c.mu.Lock()
	if c.phase != Headered && c.phase != Streaming {
		c.mu.Unlock()
		c.logger.Warnf("restconn: SendPayload called outside a streaming response")
		return
	}
	c.phase = Streaming
	chunked := c.chunked
	c.mu.Unlock()

	if chunked {
		if len(data) == 0 {
			c.logger.Warnf("restconn: empty chunk on a chunked response, ignoring")
			return
		}
		c.sock.Write(renderChunk(data))
		return
	}
	c.sock.Write(data)
}

// FinishResponse emits the terminal framing for a streaming response (the
// zero-length terminating chunk, or nothing at all for Content-Length
// framing) and transitions to Closed.
func (c *Connection) FinishResponse() {
	c.mu.Lock()
	if c.phase != Headered && c.phase != Streaming {
		c.mu.Unlock()
		return
	}
	chunked := c.chunked
	c.mu.Unlock()

	if chunked {
		c.sock.Write(renderChunk(nil))
	}
	c.finish()
}

func (c *Connection) finish() {
	c.mu.Lock()
	c.phase = Closed
	keepAlive := c.keepAlive
	c.mu.Unlock()

	if !keepAlive {
		c.sock.RequestClose()
	}
}

func (c *Connection) renderHead(code int, mediaType string, contentLength int64, headers router.Headers) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", code, statusText(code))
	if mediaType != "" {
		fmt.Fprintf(&b, "Content-Type: %s\r\n", mediaType)
	}
	switch {
	case contentLength < 0:
		b.WriteString("Transfer-Encoding: chunked\r\n")
	case contentLength >= 0:
		fmt.Fprintf(&b, "Content-Length: %s\r\n", strconv.FormatInt(contentLength, 10))
	}
	c.mu.Lock()
	keepAlive := c.keepAlive
	c.mu.Unlock()
	if keepAlive {
		b.WriteString("Connection: keep-alive\r\n")
	} else {
		b.WriteString("Connection: close\r\n")
	}
	for _, h := range headers {
		fmt.Fprintf(&b, "%s: %s\r\n", h.Key, h.Value)
	}
	b.WriteString("\r\n")
	return b.Bytes()
}

func renderChunk(data []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%x\r\n", len(data))
	b.Write(data)
	b.WriteString("\r\n")
	return b.Bytes()
}

func statusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 201:
		return "Created"
	case 204:
		return "No Content"
	case 400:
		return "Bad Request"
	case 404:
		return "Not Found"
	case 500:
		return "Internal Server Error"
	default:
		return "Status"
	}
}
