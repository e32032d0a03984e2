//go:build !linux
// +build !linux

// File: reactor/stub.go
// Non-Linux platforms are out of scope for this reimplementation (the
// teacher ships a Windows IOCP backend and a generic stub; this repo keeps
// only the Linux backend as the complete one, matching the teacher's own
// reactor_linux.go in spirit — see DESIGN.md).
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
package reactor

import "errors"

func New(opts Options) (Reactor, error) {
	return nil, errors.New("reactor: no backend for this platform")
}

func pinCurrentThread(cpuID int) error {
	return errors.New("reactor: affinity pinning not supported on this platform")
}
