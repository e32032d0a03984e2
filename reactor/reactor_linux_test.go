//go:build linux
// +build linux

package reactor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

type recordingOwner struct {
	r       Reactor
	onEvent func(reg *Registration, readable, writable bool) bool
	calls   int32
}

func (o *recordingOwner) HandleEvent(reg *Registration, readable, writable bool, missed uint64) bool {
	atomic.AddInt32(&o.calls, 1)
	return o.onEvent(reg, readable, writable)
}

func TestRegisterDeliversReadEvent(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])
	_ = unix.SetNonblock(fds[0], true)

	r, err := New(Options{Workers: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Shutdown()

	done := make(chan struct{})
	var owner *recordingOwner
	owner = &recordingOwner{onEvent: func(reg *Registration, readable, writable bool) bool {
		if readable {
			close(done)
			return false
		}
		return true
	}}

	reg, err := r.Register(fds[0], KindSocket, InterestRead, owner)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer r.Unregister(reg)

	if _, err := unix.Write(fds[1], []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for read event")
	}
}

func TestRegisterDuplicateFails(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	r, err := New(Options{Workers: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Shutdown()

	owner := &recordingOwner{onEvent: func(*Registration, bool, bool) bool { return true }}
	reg, err := r.Register(fds[0], KindSocket, InterestRead, owner)
	if err != nil {
		t.Fatalf("first Register: %v", err)
	}
	defer r.Unregister(reg)

	if _, err := r.Register(fds[0], KindSocket, InterestRead, owner); err == nil {
		t.Fatal("expected error registering the same fd twice")
	}
}

func TestAddPeriodicFiresRepeatedly(t *testing.T) {
	r, err := New(Options{Workers: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Shutdown()

	var mu sync.Mutex
	count := 0
	reg, err := r.AddPeriodic(10*time.Millisecond, func(missed uint64) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("AddPeriodic: %v", err)
	}
	defer r.Unregister(reg)

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	got := count
	mu.Unlock()
	if got < 2 {
		t.Fatalf("expected at least 2 periodic firings, got %d", got)
	}
}

func TestShutdownReturns(t *testing.T) {
	r, err := New(Options{Workers: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// With no socket registered, Shutdown does not call Wake; the worker
	// leaves its loop on its next poll timeout. This exercises that
	// Shutdown returns without hanging the test.
	done := make(chan struct{})
	go func() {
		r.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return")
	}
}
