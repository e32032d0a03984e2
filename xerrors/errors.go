// Package xerrors defines the structured error taxonomy shared across the
// reactor, transport, parser, client-pool and router layers.
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
package xerrors

import "fmt"

// Code classifies an error into the taxonomy described in spec §7:
// transport, protocol, application, and resource errors.
type Code int

const (
	// CodeOK is the zero value; never attached to a returned error.
	CodeOK Code = iota
	// CodeTransport covers name resolution, connect, reset, and unexpected-close failures.
	CodeTransport
	// CodeTimeout covers deadline expiry, classified as a transport error per spec §7.
	CodeTimeout
	// CodeProtocol covers malformed request/status lines, headers, or chunk framing.
	CodeProtocol
	// CodeApplication covers unmatched routes and handler exceptions.
	CodeApplication
	// CodeResource covers exhausted queues and pools.
	CodeResource
)

func (c Code) String() string {
	switch c {
	case CodeTransport:
		return "transport"
	case CodeTimeout:
		return "timeout"
	case CodeProtocol:
		return "protocol"
	case CodeApplication:
		return "application"
	case CodeResource:
		return "resource"
	default:
		return "ok"
	}
}

// Error is a structured, wrappable error carrying a taxonomy code and the
// operation that produced it. Grounded on the teacher's api/errors.go
// Error{Code,Message,Context} shape.
type Error struct {
	Code Code
	Op   string // e.g. "reactor.register", "tcpsocket.connect", "httpwire.parse"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a taxonomy code and an operation label.
func New(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// Sentinel errors referenced by multiple packages. Specific transport
// failures also carry a ConnResult (see reactor/tcpsocket) in addition to
// one of these.
var (
	ErrClosed          = fmt.Errorf("xerrors: already closed")
	ErrQueueFull       = fmt.Errorf("xerrors: queue is full")
	ErrPoolExhausted   = fmt.Errorf("xerrors: connection pool exhausted")
	ErrNoMatchingRoute = fmt.Errorf("xerrors: no matching route")
	ErrNotIdle         = fmt.Errorf("xerrors: connection not idle")
	ErrUnsupportedAddr = fmt.Errorf("xerrors: address family not supported")
	ErrAlreadyRegistered = fmt.Errorf("xerrors: fd already registered")
	ErrResponseAlreadySent = fmt.Errorf("xerrors: response already sent")
)

// IsTimeout reports whether err (or something it wraps) is a timeout error.
func IsTimeout(err error) bool {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Code == CodeTimeout
}
