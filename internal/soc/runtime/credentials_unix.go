// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

//go:build !windows

package runtime

import (
	"os"

	"github.com/evrhart/socrt/internal/soc/types"
)

// processCredentials reports the calling process's own POSIX credentials,
// used as the default for MakeClientConnector/MakeServerConnector.
func processCredentials() types.PosixCredentials {
	return types.PosixCredentials{UID: uint32(os.Getuid()), GID: uint32(os.Getgid())}
}
