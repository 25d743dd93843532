// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

package endpoint

// FuncReceiver wraps a plain function as a Receiver, the same ad-hoc-adapter
// pattern used elsewhere in this codebase's retrieval pack for wrapping a
// closure as an interface implementation. Tests use this to stand up fake
// endpoint targets without declaring a named type per scenario.
type FuncReceiver[M any, R any] func(M) R

// Receive implements Receiver.
func (f FuncReceiver[M, R]) Receive(m M) R {
	return f(m)
}
