// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

//go:build windows

package runtime

import "github.com/evrhart/socrt/internal/soc/types"

// processCredentials has no POSIX uid/gid concept on Windows; the default
// arity reports the zero value there.
func processCredentials() types.PosixCredentials {
	return types.PosixCredentials{}
}
