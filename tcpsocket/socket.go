// Package tcpsocket implements the non-blocking client TCP socket described
// in spec §4.2 (C2): connect/read/write state machine, a bounded outbound
// message queue, and write/flush discipline driven by the Reactor.
//
// Grounded on the teacher's transport/netconn.go (Read/Write/Close over a
// raw fd) and protocol/connection.go (recv/send-loop-over-channels shape),
// with the state machine and connection-result taxonomy taken from
// original_source/service/tcp_socket.cc (ConnectionResult, reconnect()).
// The outbound queue is backed by github.com/eapache/queue, a dependency
// the teacher declares in go.mod but never imports anywhere in its own
// source.
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
package tcpsocket

import (
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/momentics/hiorest/pool"
	"github.com/momentics/hiorest/reactor"
	"github.com/momentics/hiorest/xerrors"
	"github.com/momentics/hiorest/xlog"
)

// State is the TcpClientSocket state machine of spec §3.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return "disconnected"
	}
}

// WriteResult reports the outcome of one previously-enqueued message,
// spec §8 "the sequence of onWriteResult reports is a prefix of the write
// submission order with the same byte counts".
type WriteResult struct {
	Bytes int
	Err   error
}

// Options configures a Socket.
type Options struct {
	QueueCapacity int // bounded outbound queue capacity (spec §3)
	ReadBufSize   int
	Logger        xlog.Logger

	OnConnectResult func(reactor.ConnResult, error)
	OnReadable      func(data []byte)
	OnWriteResult   func(WriteResult)
	OnDisconnected  func(error)
}

// Socket is a non-blocking, single-connection byte pipe with an outbound
// bounded queue and observable state (spec §3 TcpClientSocket).
type Socket struct {
	host string
	port string

	r   reactor.Reactor
	reg *reactor.Registration
	fd  int

	readBuf *pool.BytePool
	opts    Options

	mu         sync.Mutex
	state      State
	outbound   *queue.Queue
	queuedLen  int
	current    []byte
	currentOff int
	closeOnDrainQueued bool

	sentCount int64
}

// New constructs a Socket bound to host:port. Connect() must be called to
// initiate the non-blocking connect sequence (spec §4.2 open/connect).
func New(r reactor.Reactor, host, port string, opts Options) *Socket {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = 256
	}
	if opts.ReadBufSize <= 0 {
		opts.ReadBufSize = 64 * 1024
	}
	if opts.Logger == nil {
		opts.Logger = xlog.Noop{}
	}
	return &Socket{
		host:     host,
		port:     port,
		r:        r,
		readBuf:  pool.NewBytePool(opts.ReadBufSize),
		opts:     opts,
		outbound: queue.New(),
		state:    Disconnected,
	}
}

// Accepted wraps an already-connected fd handed back by accept(4) (server
// side) as a Socket in the Connected state, registering it for read
// interest immediately. host/port are stored but not used by an accepted
// Socket, since the peer address is already fixed by the accept call.
func Accepted(r reactor.Reactor, fd int, host, port string, opts Options) (*Socket, error) {
	s := New(r, host, port, opts)
	s.mu.Lock()
	s.fd = fd
	s.state = Connected
	s.mu.Unlock()

	reg, err := r.Register(fd, reactor.KindSocket, reactor.InterestRead, s)
	if err != nil {
		unix.Close(fd)
		s.mu.Lock()
		s.state = Disconnected
		s.mu.Unlock()
		return nil, xerrors.New(xerrors.CodeTransport, "tcpsocket.accepted", err)
	}
	s.reg = reg
	return s, nil
}

// State returns the current connection state.
func (s *Socket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect resolves the target (numeric literal first, then name lookup)
// and issues a non-blocking connect. It fails synchronously for invalid
// inputs; everything else is reported asynchronously via OnConnectResult.
// Disconnected→Connecting is always legal, even as a restart after a prior
// failure (original_source/service/tcp_socket.cc's reconnect()).
func (s *Socket) Connect() error {
	s.mu.Lock()
	if s.state != Disconnected {
		s.mu.Unlock()
		return xerrors.New(xerrors.CodeApplication, "tcpsocket.connect", xerrors.ErrNotIdle)
	}
	s.mu.Unlock()

	ip, err := resolve(s.host)
	if err != nil {
		return xerrors.New(xerrors.CodeTransport, "tcpsocket.connect", err)
	}
	portNum, err := strconv.Atoi(s.port)
	if err != nil {
		return xerrors.New(xerrors.CodeApplication, "tcpsocket.connect", fmt.Errorf("invalid port %q", s.port))
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return xerrors.New(xerrors.CodeTransport, "tcpsocket.connect", err)
	}

	var addr [4]byte
	copy(addr[:], ip.To4())
	sa := &unix.SockaddrInet4{Port: portNum, Addr: addr}

	s.mu.Lock()
	s.fd = fd
	s.state = Connecting
	s.sentCount = 0
	s.mu.Unlock()

	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		s.mu.Lock()
		s.state = Disconnected
		s.mu.Unlock()
		s.reportConnect(reactor.ResultCouldNotConnect, err)
		return nil
	}

	reg, err := s.r.Register(fd, reactor.KindSocket, reactor.InterestWrite, s)
	if err != nil {
		unix.Close(fd)
		s.mu.Lock()
		s.state = Disconnected
		s.mu.Unlock()
		return xerrors.New(xerrors.CodeTransport, "tcpsocket.connect", err)
	}
	s.reg = reg
	return nil
}

// Write enqueues one message; returns false if the bounded queue is full.
// Callable from any thread (spec §4.2).
func (s *Socket) Write(data []byte) bool {
	s.mu.Lock()
	if s.state != Connecting && s.state != Connected {
		s.mu.Unlock()
		return false
	}
	if s.queuedLen >= s.opts.QueueCapacity {
		s.mu.Unlock()
		return false
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.outbound.Add(buf)
	s.queuedLen++
	reg := s.reg
	s.mu.Unlock()

	if reg != nil {
		// Express write-interest so the next epoll_wait on this fd fires
		// readiness; EpollCtl MOD is safe to call from any goroutine.
		_ = s.r.Rearm(reg, reactor.InterestRead|reactor.InterestWrite)
	}
	return true
}

// RequestClose transitions to Disconnecting and keeps flushing until the
// queue and partial-send buffer are empty, then tears down.
func (s *Socket) RequestClose() {
	s.mu.Lock()
	if s.state != Connected && s.state != Connecting {
		s.mu.Unlock()
		return
	}
	s.state = Disconnecting
	s.closeOnDrainQueued = true
	empty := s.current == nil && s.outbound.Length() == 0
	reg := s.reg
	s.mu.Unlock()
	if empty {
		s.teardown(nil)
		return
	}
	if reg != nil {
		_ = s.r.Rearm(reg, reactor.InterestRead|reactor.InterestWrite)
	}
}

// Close synchronously tears down the reactor registration and the socket.
func (s *Socket) Close() {
	s.teardown(nil)
}

// HandleEvent implements reactor.Owner, driving the connect/read/write
// state machine (spec §4.2 write loop).
func (s *Socket) HandleEvent(reg *reactor.Registration, readable, writable bool, _ uint64) bool {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	switch state {
	case Connecting:
		if !writable {
			return true
		}
		errno, gerr := getSocketError(s.fd)
		if gerr != nil || errno != 0 {
			s.reportConnect(classifyConnectError(errno, gerr), gerr)
			s.teardown(gerr)
			return false
		}
		s.mu.Lock()
		s.state = Connected
		hasWork := s.current != nil || s.outbound.Length() > 0
		s.mu.Unlock()
		s.reportConnect(reactor.ResultSuccess, nil)
		if hasWork {
			s.flushWrites()
		}
		return true
	case Connected, Disconnecting:
		if readable {
			if !s.drainReads() {
				return false
			}
		}
		if writable {
			if !s.flushWrites() {
				return false
			}
		}
		s.mu.Lock()
		done := s.state == Disconnecting && s.current == nil && s.outbound.Length() == 0
		s.mu.Unlock()
		if done {
			s.teardown(nil)
			return false
		}
		return true
	default:
		return false
	}
}

// drainReads reads as much as the kernel has buffered and forwards it to
// OnReadable; returns false if the connection should be torn down.
func (s *Socket) drainReads() bool {
	buf := s.readBuf.Get()
	defer s.readBuf.Put(buf)
	for {
		n, err := unix.Read(s.fd, buf)
		if n > 0 && s.opts.OnReadable != nil {
			data := make([]byte, n)
			copy(data, buf[:n])
			s.opts.OnReadable(data)
		}
		if err == nil && n == 0 {
			// Peer closed (EOF on a stream socket).
			s.teardown(nil)
			return false
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return true
		}
		if err != nil {
			s.teardown(err)
			return false
		}
		if n < len(buf) {
			return true
		}
	}
}

// flushWrites implements spec §4.2's write loop: pop a message if none
// current, write as many bytes as accepted, advance on partial success,
// report completion via OnWriteResult, and pipeline without rearming
// between messages.
func (s *Socket) flushWrites() bool {
	for {
		s.mu.Lock()
		if s.current == nil && s.outbound.Length() > 0 {
			s.current = s.outbound.Peek().([]byte)
			s.outbound.Remove()
			s.queuedLen--
			s.currentOff = 0
		}
		cur := s.current
		off := s.currentOff
		fd := s.fd
		s.mu.Unlock()

		if cur == nil {
			return true
		}

		n, err := unix.Write(fd, cur[off:])
		if n > 0 {
			off += n
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			s.mu.Lock()
			s.currentOff = off
			s.mu.Unlock()
			return true
		}
		if err == unix.EPIPE || err == unix.ECONNRESET {
			s.reportWrite(WriteResult{Bytes: off, Err: err})
			s.teardown(err)
			return false
		}
		if err != nil {
			s.reportWrite(WriteResult{Bytes: off, Err: err})
			s.teardown(err)
			return false
		}

		if off >= len(cur) {
			s.mu.Lock()
			s.current = nil
			s.currentOff = 0
			s.sentCount++
			s.mu.Unlock()
			s.reportWrite(WriteResult{Bytes: off, Err: nil})
			continue
		}
		s.mu.Lock()
		s.currentOff = off
		s.mu.Unlock()
	}
}

func (s *Socket) teardown(err error) {
	s.mu.Lock()
	if s.state == Disconnected {
		s.mu.Unlock()
		return
	}
	s.state = Disconnected
	reg := s.reg
	fd := s.fd
	s.reg = nil
	s.mu.Unlock()

	if reg != nil {
		_ = s.r.Unregister(reg)
	}
	if fd != 0 {
		unix.Close(fd)
	}
	if s.opts.OnDisconnected != nil {
		s.opts.OnDisconnected(err)
	}
}

func (s *Socket) reportConnect(result reactor.ConnResult, err error) {
	if s.opts.OnConnectResult != nil {
		s.opts.OnConnectResult(result, err)
	}
}

func (s *Socket) reportWrite(r WriteResult) {
	if s.opts.OnWriteResult != nil {
		s.opts.OnWriteResult(r)
	}
}

func getSocketError(fd int) (int, error) {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	return errno, err
}

func classifyConnectError(errno int, err error) reactor.ConnResult {
	if errno == int(unix.ETIMEDOUT) {
		return reactor.ResultTimeout
	}
	return reactor.ResultCouldNotConnect
}

// resolve parses host as a numeric literal first, falling back to name
// resolution, per spec §4.2.
func resolve(host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
		return nil, xerrors.ErrUnsupportedAddr // IPv6 not supported by this fd-level path
	}
	addrs, err := net.LookupHost(host)
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		ip := net.ParseIP(a)
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, fmt.Errorf("tcpsocket: no A record for %q", host)
}
