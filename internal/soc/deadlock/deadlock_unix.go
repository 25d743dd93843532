// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

//go:build unix

package deadlock

import (
	"os"
	"syscall"
)

func defaultAbort() {
	_ = syscall.Kill(os.Getpid(), syscall.SIGABRT)
	// Unreachable once the signal is delivered; guards a trapped signal.
	panic("socrt: deadlock detected, aborting")
}
