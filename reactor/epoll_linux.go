//go:build linux
// +build linux

// File: reactor/epoll_linux.go
// Linux epoll(7) backend. Grounded on the teacher's reactor/reactor_linux.go
// (golang.org/x/sys/unix EpollCreate1/EpollCtl/EpollWait), extended with
// EPOLLONESHOT (the teacher only set EPOLLIN|EPOLLOUT|EPOLLET, with no
// one-shot re-arm discipline), an eventfd wakeup registration, and
// timerfd-backed periodic callbacks, none of which the teacher's
// single-purpose WS echo reactor needed.
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
package reactor

import (
	"encoding/binary"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hiorest/xlog"
)

const workerPollTimeoutMs = 100

// epollReactor is the Linux Reactor implementation.
type epollReactor struct {
	epfd int

	regs sync.Map // map[int]*Registration, keyed by fd

	activeSockets int64 // count of registered KindSocket fds, for shutdown drain
	stopped       int32 // set by Shutdown; blocks further timer rearm
	broken        int32 // set if a multiplexer syscall fails fatally

	wakeFD  int
	wakeReg *Registration

	logger  xlog.Logger
	pin     bool
	wg      sync.WaitGroup
	doneCh  chan struct{}
	closeOnce sync.Once
}

// New constructs the Linux epoll-backed Reactor and starts its worker pool.
func New(opts Options) (Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fatal("reactor.new", err)
	}

	r := &epollReactor{
		epfd:   epfd,
		logger: opts.logger(),
		pin:    opts.PinWorkers,
		doneCh: make(chan struct{}),
	}

	wakeFD, _, errno := unix.Syscall(unix.SYS_EVENTFD2, 0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC, 0)
	if errno != 0 {
		unix.Close(epfd)
		return nil, fatal("reactor.new", errno)
	}
	r.wakeFD = int(wakeFD)

	wakeOwner := &wakeupOwner{r: r}
	reg, err := r.Register(r.wakeFD, KindWakeup, InterestRead, wakeOwner)
	if err != nil {
		unix.Close(epfd)
		unix.Close(r.wakeFD)
		return nil, err
	}
	r.wakeReg = reg

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go r.workerLoop(i)
	}
	return r, nil
}

func (r *epollReactor) Register(fd int, kind FDKind, interest Interest, owner Owner) (*Registration, error) {
	reg := &Registration{FD: fd, Kind: kind, Owner: owner, interest: interest}
	if _, loaded := r.regs.LoadOrStore(fd, reg); loaded {
		return nil, fatal("reactor.register", unix.EEXIST)
	}

	ev := &unix.EpollEvent{Fd: int32(fd), Events: epollEventsFor(interest) | unix.EPOLLONESHOT | unix.EPOLLET}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		r.regs.Delete(fd)
		return nil, fatal("reactor.register", err)
	}
	if kind == KindSocket {
		atomic.AddInt64(&r.activeSockets, 1)
	}
	return reg, nil
}

func (r *epollReactor) Rearm(reg *Registration, interest Interest) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.unregistered {
		return nil
	}
	reg.interest = interest
	ev := &unix.EpollEvent{Fd: int32(reg.FD), Events: epollEventsFor(interest) | unix.EPOLLONESHOT | unix.EPOLLET}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, reg.FD, ev); err != nil {
		return fatal("reactor.rearm", err)
	}
	return nil
}

func (r *epollReactor) Unregister(reg *Registration) error {
	reg.mu.Lock()
	if reg.unregistered {
		reg.mu.Unlock()
		return nil
	}
	reg.unregistered = true
	reg.mu.Unlock()

	err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, reg.FD, nil)
	r.regs.Delete(reg.FD)
	if reg.Kind == KindSocket {
		atomic.AddInt64(&r.activeSockets, -1)
	}
	if err != nil && err != unix.ENOENT {
		return fatal("reactor.unregister", err)
	}
	return nil
}

func (r *epollReactor) AddPeriodic(interval time.Duration, callback func(missed uint64)) (*Registration, error) {
	tfd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return nil, fatal("reactor.addPeriodic", err)
	}
	spec := itimerspecFor(interval)
	if err := unix.TimerfdSettime(tfd, 0, spec, nil); err != nil {
		unix.Close(tfd)
		return nil, fatal("reactor.addPeriodic", err)
	}
	owner := &timerOwner{r: r, callback: callback}
	reg, err := r.Register(tfd, KindTimer, InterestRead, owner)
	if err != nil {
		unix.Close(tfd)
		return nil, err
	}
	return reg, nil
}

func (r *epollReactor) Wake() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, _ = unix.Write(r.wakeFD, buf[:])
}

func (r *epollReactor) Shutdown() {
	r.closeOnce.Do(func() {
		atomic.StoreInt32(&r.stopped, 1)
		// Wake workers repeatedly until all socket registrations have
		// drained (owners are expected to close their own sockets, which
		// unregisters them) or the multiplexer is broken.
		for atomic.LoadInt64(&r.activeSockets) > 0 && atomic.LoadInt32(&r.broken) == 0 {
			r.Wake()
			time.Sleep(5 * time.Millisecond)
		}
		close(r.doneCh)
		r.wg.Wait()
		_ = r.Unregister(r.wakeReg)
		unix.Close(r.wakeFD)
		unix.Close(r.epfd)
	})
}

func (r *epollReactor) workerLoop(id int) {
	defer r.wg.Done()
	if r.pin {
		if err := pinCurrentThread(id); err != nil {
			r.logger.Warnf("reactor: worker %d affinity pin failed: %v", id, err)
		}
	}

	events := make([]unix.EpollEvent, 128)
	for {
		select {
		case <-r.doneCh:
			return
		default:
		}

		n, err := unix.EpollWait(r.epfd, events, workerPollTimeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			atomic.StoreInt32(&r.broken, 1)
			r.logger.Errorf("reactor: epoll_wait fatal: %v", err)
			return
		}

		for i := 0; i < n; i++ {
			r.dispatch(events[i])
		}
	}
}

func (r *epollReactor) dispatch(ev unix.EpollEvent) {
	v, ok := r.regs.Load(int(ev.Fd))
	if !ok {
		return
	}
	reg := v.(*Registration)

	errored := ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0
	readable := ev.Events&unix.EPOLLIN != 0 || errored
	writable := ev.Events&unix.EPOLLOUT != 0 || errored

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Errorf("reactor: panic in owner for fd=%d: %v", reg.FD, rec)
		}
	}()

	rearm := reg.Owner.HandleEvent(reg, readable, writable, 0)
	if rearm {
		reg.mu.Lock()
		interest := reg.interest
		unregistered := reg.unregistered
		reg.mu.Unlock()
		if !unregistered {
			_ = r.Rearm(reg, interest)
		}
	}
}

// wakeupOwner drains the eventfd and keeps it armed forever (unless the
// reactor is shutting down), per spec's "one eventfd per Reactor for
// wakeups" (§6 Control fds).
type wakeupOwner struct{ r *epollReactor }

func (w *wakeupOwner) HandleEvent(reg *Registration, readable, writable bool, missed uint64) bool {
	var buf [8]byte
	_, _ = unix.Read(reg.FD, buf[:])
	return atomic.LoadInt32(&w.r.stopped) == 0
}

// timerOwner drains a timerfd's missed-tick counter and forwards it to the
// user callback; per spec's disallowTimers, it stops rearming once the
// reactor is shutting down so late expirations cannot resurrect work.
type timerOwner struct {
	r        *epollReactor
	callback func(missed uint64)
}

func (t *timerOwner) HandleEvent(reg *Registration, readable, writable bool, missed uint64) bool {
	if atomic.LoadInt32(&t.r.stopped) != 0 {
		return false
	}
	var buf [8]byte
	n, err := unix.Read(reg.FD, buf[:])
	if err == nil && n == 8 {
		expirations := binary.LittleEndian.Uint64(buf[:])
		if expirations > 0 {
			t.callback(expirations - 1)
		}
	}
	return true
}

func epollEventsFor(interest Interest) uint32 {
	var ev uint32
	if interest&InterestRead != 0 {
		ev |= unix.EPOLLIN
	}
	if interest&InterestWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func itimerspecFor(interval time.Duration) *unix.ItimerSpec {
	ts := unix.NsecToTimespec(interval.Nanoseconds())
	return &unix.ItimerSpec{
		Interval: ts,
		Value:    ts,
	}
}
