// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

// Package endpoint provides the thin polymorphic send-surface connectors use
// to reach one another. An Endpoint carries a non-owning pointer to its
// target plus a strong reference token that keeps the target alive for as
// long as the endpoint (or a copy of it) lives; Send forwards synchronously
// to the target's Receive and returns its result.
//
// Three concrete roles are instantiated from this one generic type
// elsewhere in the tree: the client-connector endpoint (server delivers
// events/replies to a client), the server-connection endpoint (client
// delivers subscribe/call to its per-client object inside the server), and
// the listen endpoint (registry delivers "connect" to the server to create a
// per-client connection) — see internal/soc/message.
package endpoint

import "github.com/evrhart/socrt/internal/soc/reftoken"

// Receiver is anything an Endpoint can deliver a message to.
type Receiver[M any, R any] interface {
	Receive(M) R
}

// Endpoint is a send-surface toward a Receiver, holding a strong reference
// token on its target's behalf.
type Endpoint[M any, R any] struct {
	target Receiver[M, R]
	token  *reftoken.Token
}

// New builds an Endpoint. token is typically a Clone() of the target
// connector's own lifetime token, so every live endpoint keeps the target
// from completing teardown.
func New[M any, R any](target Receiver[M, R], token *reftoken.Token) Endpoint[M, R] {
	return Endpoint[M, R]{target: target, token: token}
}

// Zero reports whether the endpoint has no target (the zero value).
func (e Endpoint[M, R]) Zero() bool {
	return e.target == nil
}

// Send forwards message to the target's Receive and returns its result
// synchronously, on the calling goroutine, exactly as the sender invoked it.
func (e Endpoint[M, R]) Send(m M) R {
	return e.target.Receive(m)
}

// Release drops this endpoint's hold on its target's reference token. Call
// this exactly once, when the endpoint is discarded (e.g. on disconnect).
func (e Endpoint[M, R]) Release() {
	if e.token != nil {
		e.token.Release()
	}
}
