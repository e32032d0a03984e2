//go:build linux
// +build linux

// File: reactor/affinity_linux.go
// Optional CPU pinning for reactor worker goroutines. Grounded on the
// teacher's affinity/affinity_linux.go and internal/concurrency/pin_linux.go,
// both of which used cgo (pthread_setaffinity_np / numa_run_on_node). This
// version uses golang.org/x/sys/unix.SchedSetaffinity instead, which needs
// no cgo and is the same dependency already anchoring the epoll backend.
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
package reactor

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinCurrentThread locks the calling goroutine to its OS thread and pins
// that thread to cpuID. Best effort: the reactor logs failures but never
// treats them as fatal, since pinning is a locality optimization, not a
// correctness requirement.
func pinCurrentThread(cpuID int) error {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID % runtime.NumCPU())
	return unix.SchedSetaffinity(0, &set)
}
