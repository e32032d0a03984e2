// Package reactor implements the event-loop endpoint described in spec
// §4.1 (C1): a pool of worker threads multiplexing sockets, timers, and
// cross-thread wakeups through one underlying OS multiplexer, using
// edge-triggered one-shot registration so a handler must explicitly rearm
// to be considered for the next event.
//
// Grounded on the teacher's reactor/reactor.go (EventReactor/Event shape)
// and reactor/reactor_linux.go (golang.org/x/sys/unix epoll backend),
// generalized to the full register/rearm/unregister/addPeriodic/wake/
// shutdown surface spec §4.1 requires, and on
// internal/concurrency/executor.go for the worker-loop shape (N loops
// draining one source and dispatching to owners, with panic recovery).
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
package reactor

import (
	"sync"
	"time"

	"github.com/momentics/hiorest/xerrors"
	"github.com/momentics/hiorest/xlog"
)

// FDKind identifies what a registered fd represents, per spec §3 FdRegistration.
type FDKind int

const (
	KindSocket FDKind = iota
	KindTimer
	KindWakeup
)

func (k FDKind) String() string {
	switch k {
	case KindTimer:
		return "timer"
	case KindWakeup:
		return "wakeup"
	default:
		return "socket"
	}
}

// Interest is a bitmask of readiness conditions a registration cares about.
type Interest uint8

const (
	InterestRead Interest = 1 << iota
	InterestWrite
)

// ConnResult classifies the outcome reported for a deadline-governed
// operation (spec §3 TcpClientSocket notification channel; spec §7
// deadline expiry is a transport error tagged Timeout).
type ConnResult int

const (
	ResultSuccess ConnResult = iota
	ResultHostUnknown
	ResultCouldNotConnect
	ResultTimeout
)

// Owner receives readiness callbacks for one registered fd. HandleEvent is
// invoked by whichever worker goroutine observed the event; it bounds
// concurrent invocation per fd to one because the registration is one-shot
// until rearmed.
type Owner interface {
	// HandleEvent fires when fd becomes ready. readable/writable report
	// which interests fired; missedTicks is always 0 as delivered by the
	// epoll backend (timer registrations read their own expiration count
	// from the timerfd). The return value controls whether the registration
	// is automatically rearmed with the same interest after the call
	// returns; an owner that closed or unregistered fd must return false.
	HandleEvent(reg *Registration, readable, writable bool, missedTicks uint64) (rearm bool)
}

// Registration identifies one fd known to the Reactor (spec §3
// FdRegistration). It is created by Register, mutated only by Rearm, and
// destroyed by Unregister, which must precede closing the underlying fd.
type Registration struct {
	FD    int
	Kind  FDKind
	Owner Owner

	mu           sync.Mutex
	interest     Interest
	unregistered bool
}

// Reactor is the public surface spec §4.1 requires.
type Reactor interface {
	// Register adds fd to the multiplexer in edge-triggered one-shot mode.
	// Fails if fd is already registered.
	Register(fd int, kind FDKind, interest Interest, owner Owner) (*Registration, error)

	// Rearm re-enables reg for the next event with the given interest.
	// Required after every delivered event.
	Rearm(reg *Registration, interest Interest) error

	// Unregister removes fd from the multiplexer. Must be called before
	// the fd is closed. Legal to call from within the owner's callback.
	Unregister(reg *Registration) error

	// AddPeriodic creates an internal timer firing every interval; the
	// callback receives the count of missed ticks since the last
	// delivery so callers can detect slippage.
	AddPeriodic(interval time.Duration, callback func(missed uint64)) (*Registration, error)

	// Wake posts a cross-thread wakeup, used for shutdown and thread-safe
	// queue posting (spec §4.2 write()).
	Wake()

	// Shutdown signals all worker threads to drain and exit, waits for
	// the transport set to empty, then joins the worker pool.
	Shutdown()
}

// Options configures a Reactor's worker pool.
type Options struct {
	// Workers is the number of goroutines sharing the multiplexer.
	// Defaults to runtime.NumCPU() when <= 0.
	Workers int
	Logger  xlog.Logger // defaults to xlog.Noop{}
	// PinWorkers, when true, attempts to pin each worker goroutine's OS
	// thread to a distinct CPU via SchedSetaffinity. Best effort: failures
	// are logged, never fatal (spec doesn't require pinning, the teacher's
	// affinity package offers it as an optional locality optimization).
	PinWorkers bool
}

func (o Options) logger() xlog.Logger {
	if o.Logger == nil {
		return xlog.Noop{}
	}
	return o.Logger
}

// fatal wraps a multiplexer syscall failure as the non-recoverable error
// spec §4.1 requires ("Any fd-system-call failure ... is fatal to the
// Reactor").
func fatal(op string, err error) error {
	return xerrors.New(xerrors.CodeTransport, op, err)
}
