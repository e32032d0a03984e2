// File: server/listener.go
package server

import (
	"errors"
	"net"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/momentics/hiorest/reactor"
	"github.com/momentics/hiorest/xerrors"
	"github.com/momentics/hiorest/xlog"
)

var errInvalidHost = errors.New("server: invalid listen host")

// listener wraps a non-blocking listening fd registered with the Reactor,
// accepting connections edge-triggered one-shot like every other fd in
// this system (spec §4.1 "one-shot registration" applies uniformly).
// Grounded on the teacher's lowlevel/server/listener.go (Accept wraps a new
// connection per readiness event) repointed at raw epoll registration
// instead of a blocking net.Listener.Accept loop, since this Reactor owns
// all fds uniformly.
type listener struct {
	fd       int
	r        reactor.Reactor
	reg      *reactor.Registration
	logger   xlog.Logger
	onAccept func(fd int, addr string)
}

func newListener(r reactor.Reactor, addr string, logger xlog.Logger, onAccept func(fd int, addr string)) (*listener, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, xerrors.New(xerrors.CodeApplication, "server.listen", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, xerrors.New(xerrors.CodeApplication, "server.listen", err)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, xerrors.New(xerrors.CodeTransport, "server.listen", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, xerrors.New(xerrors.CodeTransport, "server.listen", err)
	}

	var addr4 [4]byte
	if host == "" || host == "0.0.0.0" {
		addr4 = [4]byte{0, 0, 0, 0}
	} else {
		ip := net.ParseIP(host)
		if ip == nil {
			unix.Close(fd)
			return nil, xerrors.New(xerrors.CodeApplication, "server.listen", errInvalidHost)
		}
		copy(addr4[:], ip.To4())
	}

	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port, Addr: addr4}); err != nil {
		unix.Close(fd)
		return nil, xerrors.New(xerrors.CodeTransport, "server.listen", err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return nil, xerrors.New(xerrors.CodeTransport, "server.listen", err)
	}

	l := &listener{fd: fd, r: r, logger: logger, onAccept: onAccept}
	reg, err := r.Register(fd, reactor.KindSocket, reactor.InterestRead, l)
	if err != nil {
		unix.Close(fd)
		return nil, xerrors.New(xerrors.CodeTransport, "server.listen", err)
	}
	l.reg = reg
	return l, nil
}

// HandleEvent implements reactor.Owner: drain every pending connection with
// Accept4 in a loop (edge-triggered semantics require draining until
// EAGAIN), then re-arm.
func (l *listener) HandleEvent(reg *reactor.Registration, readable, writable bool, _ uint64) bool {
	if !readable {
		return true
	}
	for {
		nfd, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return true
		}
		if err != nil {
			l.logger.Warnf("server: accept4: %v", err)
			return true
		}
		addr := formatSockaddr(sa)
		if l.onAccept != nil {
			l.onAccept(nfd, addr)
		}
	}
}

func (l *listener) Close() {
	if l.reg != nil {
		_ = l.r.Unregister(l.reg)
	}
	unix.Close(l.fd)
}

func formatSockaddr(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		ip := net.IP(a.Addr[:])
		return net.JoinHostPort(ip.String(), strconv.Itoa(a.Port))
	default:
		return "unknown"
	}
}

const listenBacklog = 1024
