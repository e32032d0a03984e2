// File: server/conn.go
package server

import (
	"net/url"
	"strings"
	"sync"

	"github.com/momentics/hiorest/httpwire"
	"github.com/momentics/hiorest/restconn"
	"github.com/momentics/hiorest/router"
	"github.com/momentics/hiorest/tcpsocket"
	"github.com/momentics/hiorest/xlog"
)

// serverConn binds one accepted tcpsocket.Socket to a request parser, a
// restconn.Connection response writer, and the server's route tree (spec
// §2 "Data flow (server side)"). One instance exists per accepted
// connection; parser/rest state is reset between pipelined requests.
type serverConn struct {
	sock   *tcpsocket.Socket
	parser *httpwire.Parser
	rest   *restconn.Connection
	router *router.Router
	logger xlog.Logger
	addr   string

	mu      sync.Mutex
	method  string
	target  string
	version string
	headers []router.Header
	body    []byte
}

func newServerConn(sock *tcpsocket.Socket, r *router.Router, logger xlog.Logger, addr string) *serverConn {
	sc := &serverConn{sock: sock, router: r, logger: logger, addr: addr}
	sc.parser = httpwire.New(httpwire.ModeRequest, httpwire.Callbacks{
		OnRequestStart: sc.onRequestStart,
		OnHeader:       sc.onHeader,
		OnData:         sc.onData,
		OnDone:         sc.onDone,
	})
	sc.rest = restconn.New(sock, true, logger)
	return sc
}

func (sc *serverConn) onReadable(data []byte) {
	if err := sc.parser.Feed(data); err != nil {
		sc.logger.Warnf("server: malformed request from %s: %v", sc.addr, err)
		sc.sock.RequestClose()
	}
}

func (sc *serverConn) onRequestStart(method, target, version string) {
	sc.mu.Lock()
	sc.method = method
	sc.target = target
	sc.version = version
	sc.headers = sc.headers[:0]
	sc.body = nil
	sc.mu.Unlock()
}

func (sc *serverConn) onHeader(line []byte) {
	colon := strings.IndexByte(string(line), ':')
	if colon < 0 {
		return
	}
	key := strings.TrimSpace(string(line[:colon]))
	value := strings.TrimSpace(string(line[colon+1:]))
	sc.mu.Lock()
	sc.headers = append(sc.headers, router.Header{Key: key, Value: value})
	sc.mu.Unlock()
}

func (sc *serverConn) onData(chunk []byte) {
	sc.mu.Lock()
	sc.body = append(sc.body, chunk...)
	sc.mu.Unlock()
}

func (sc *serverConn) onDone(success bool) {
	if !success {
		sc.sock.RequestClose()
		return
	}

	sc.mu.Lock()
	method := sc.method
	target := sc.target
	headers := append([]router.Header(nil), sc.headers...)
	body := append([]byte(nil), sc.body...)
	sc.mu.Unlock()

	path, query := splitTarget(target)
	req := &router.Request{
		Verb:     method,
		Resource: path,
		Query:    query,
		Headers:  router.Headers(headers),
		Body:     body,
	}

	sc.rest = restconn.New(sc.sock, !wantsClose(req.Headers), sc.logger)
	sc.router.HandleRequest(sc.rest, req)

	sc.parser.Reset()
}

func splitTarget(target string) (string, url.Values) {
	if idx := strings.IndexByte(target, '?'); idx >= 0 {
		q, err := url.ParseQuery(target[idx+1:])
		if err != nil {
			q = url.Values{}
		}
		return target[:idx], q
	}
	return target, url.Values{}
}

func wantsClose(h router.Headers) bool {
	v, ok := h.Get("Connection")
	return ok && strings.EqualFold(v, "close")
}

func (sc *serverConn) onDisconnected(err error) {
	if err != nil {
		sc.logger.Debugf("server: connection %s closed: %v", sc.addr, err)
	}
}
