// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

//go:build windows

package deadlock

import "os"

func defaultAbort() {
	os.Exit(134) // conventional SIGABRT-equivalent exit code
}
