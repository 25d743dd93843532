// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

// Package message defines the typed request/reply envelopes exchanged
// between the client and server halves of a service, and the three
// endpoint roles instantiated from internal/soc/endpoint to carry them:
// the client-connector endpoint, the server-connection endpoint, and the
// registry's listen endpoint.
package message

import (
	"github.com/evrhart/socrt/internal/soc/endpoint"
	"github.com/evrhart/socrt/internal/soc/payload"
	"github.com/evrhart/socrt/internal/soc/types"
)

// --- server -> client: ClientEvent / ClientEndpoint ---

// ClientEventKind selects which of ClientEvent's fields are meaningful.
type ClientEventKind int

const (
	// EventUpdate carries a published event.
	EventUpdate ClientEventKind = iota
	// EventRequestedUpdate carries the response to a request_event_update
	// or an update_and_initial_value subscription.
	EventRequestedUpdate
	// MethodReply carries the outcome of a call_method invocation.
	MethodReply
	// ServiceStateChanged notifies the client of a state transition.
	ServiceStateChanged
)

// ClientEvent is what a server-side connection object sends to the client
// connector that owns it.
type ClientEvent struct {
	Kind ClientEventKind

	EventID uint16
	Payload *payload.Payload

	MethodResult *types.MethodResult

	Available    bool
	ServerConfig types.ServerConfiguration
}

// ClientEventResult is intentionally empty: delivery is fire-and-forget from
// the server connection object's point of view.
type ClientEventResult struct{}

// ClientEndpoint is how a server reaches one specific client connector.
type ClientEndpoint = endpoint.Endpoint[ClientEvent, ClientEventResult]

// --- client -> server: ServerOp / ServerConnEndpoint ---

// ServerOpKind selects which of ServerOp's fields are meaningful.
type ServerOpKind int

const (
	OpSubscribeEvent ServerOpKind = iota
	OpUnsubscribeEvent
	OpRequestEventUpdate
	OpCallMethod
	OpPeerCredentials
	OpDisconnect
)

// ServerOp is what a client connector sends to its per-client connection
// object inside an enabled server.
type ServerOp struct {
	Kind ServerOpKind

	EventID  uint16
	MethodID uint16
	Mode     types.EventMode
	Payload  *payload.Payload

	// ReplyTo is where the server delivers a method reply. Nil means no
	// reply callback was supplied, so neither side allocates a handle and
	// the reply, if any, is never delivered.
	ReplyTo *ClientEndpoint
	CallID  uint64
}

// ServerOpResult is the synchronous acknowledgement of a ServerOp.
type ServerOpResult struct {
	Err         error
	Credentials types.PosixCredentials
}

// ServerConnEndpoint is how a client connector reaches its per-client
// connection object inside the server it is wired to.
type ServerConnEndpoint = endpoint.Endpoint[ServerOp, ServerOpResult]

// --- registry -> server: ConnectRequest / ListenEndpoint ---

// ConnectRequest is what the registry delivers to an enabled server's listen
// endpoint when a compatible client attaches.
type ConnectRequest struct {
	ClientInterface types.Interface
	ClientEndpoint  ClientEndpoint
	Credentials     types.PosixCredentials
}

// ConnectResponse hands the new per-client connection object back to the
// client, along with the server's configuration for the client's
// on_service_state_change callback.
type ConnectResponse struct {
	ServerConnEndpoint ServerConnEndpoint
	ServerConfig       types.ServerConfiguration
}

// ListenEndpoint is the registry's handle to an enabled server, used to
// materialize one ServerConnEndpoint per attaching client.
type ListenEndpoint = endpoint.Endpoint[ConnectRequest, ConnectResponse]
