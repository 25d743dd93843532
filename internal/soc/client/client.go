// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

// Package client implements the Client Connector: the service-user side of a
// wired service pair. A Connector starts in the not_available state, silently;
// the registry wires it to a matching server by invoking a callback captured
// at registration time, and from then on every state transition and event
// delivery runs through the connector's own Receive method, and every method
// reply through a per-call receiver; both apply the deadlock guard.
package client

import (
	"sync"
	"sync/atomic"

	"github.com/evrhart/socrt/internal/metrics"
	"github.com/evrhart/socrt/internal/soc/deadlock"
	"github.com/evrhart/socrt/internal/soc/endpoint"
	"github.com/evrhart/socrt/internal/soc/message"
	"github.com/evrhart/socrt/internal/soc/payload"
	"github.com/evrhart/socrt/internal/soc/reftoken"
	"github.com/evrhart/socrt/internal/soc/registry"
	"github.com/evrhart/socrt/internal/soc/types"
)

// Callbacks is the user-supplied callback set required at construction. All
// four fields are mandatory; New returns types.ErrCallbackMissing if any is
// nil. None of these may block, and none may call Close on the connector
// whose callback is running: doing so is a detected deadlock (see
// internal/soc/deadlock).
type Callbacks struct {
	OnServiceStateChange   func(c *Connector, available bool, cfg types.ServerConfiguration)
	OnEventUpdate          func(c *Connector, eventID uint16, p *payload.Payload)
	OnEventRequestedUpdate func(c *Connector, eventID uint16, p *payload.Payload)
	OnEventPayloadAllocate func(c *Connector, id uint16) (*payload.Payload, error)
}

func (cb Callbacks) complete() bool {
	return cb.OnServiceStateChange != nil &&
		cb.OnEventUpdate != nil &&
		cb.OnEventRequestedUpdate != nil &&
		cb.OnEventPayloadAllocate != nil
}

// CallHandle is the scoped cancellation handle returned by CallMethod when a
// reply callback was supplied. Drop cancels delivery of that reply: if the
// reply hasn't arrived yet, the weak-token upgrade it attempts will fail and
// the reply is discarded; if it already arrived, Drop is a harmless no-op.
type CallHandle struct {
	c     *Connector
	token *reftoken.Token
}

// Drop releases the handle. Safe to call at most once; safe to ignore. An
// arriving reply removes the call from the pending set but does not release
// the handle's token.
func (h CallHandle) Drop() {
	if h.token == nil {
		return
	}
	h.c.forgetPendingCall(h.token)
	h.token.Release()
}

// Connector is a Client Connector.
type Connector struct {
	configuration types.Configuration
	instance      types.Instance
	callbacks     Callbacks
	credentials   types.PosixCredentials

	detector *deadlock.Detector

	mu        sync.Mutex
	available bool
	server    message.ServerConnEndpoint // zero value when not available

	stopToken *reftoken.Token
	stopDone  chan struct{}
	closed    bool

	pendingCalls map[*reftoken.Token]struct{}

	registration registry.Registration

	releaseBridgeRequest func()

	nextCallID atomic.Uint64
}

// New builds a Connector and registers it with reg. If the registry already
// knows a compatible server, on_service_state_change fires synchronously,
// inline, before New returns — matching the registry's own "notify
// immediately if already wired" contract.
func New(reg *registry.Registry, cfg types.Configuration, instance types.Instance, cb Callbacks, credentials types.PosixCredentials) (*Connector, error) {
	if !cb.complete() {
		return nil, types.ErrCallbackMissing
	}

	c := &Connector{
		configuration: cfg,
		instance:      instance,
		callbacks:     cb,
		credentials:   credentials,
		detector:      deadlock.New(cfg.Interface.ID + "/" + string(instance)),
		stopDone:      make(chan struct{}),
		pendingCalls:  make(map[*reftoken.Token]struct{}),
	}
	c.stopToken = reftoken.New(func() { close(c.stopDone) })

	weak := c.stopToken.Weak()
	c.registration = reg.RegisterClient(cfg.Interface, instance, func(slot *registry.ServerSlot) {
		c.onServerUpdate(weak, slot)
	})
	metrics.ClientConnectorsActive.Inc()
	return c, nil
}

// Configuration returns the configuration this connector was built with.
func (c *Connector) Configuration() types.Configuration { return c.configuration }

// AttachBridgeRequest records release as the teardown for a bridge service
// request acquired on this connector's behalf (internal/soc/runtime, when
// this connector found no local server at registration time). release runs
// exactly once, when the connector closes; client itself never imports
// internal/soc/bridge; the runtime factory, which sits above both, is the
// only caller.
func (c *Connector) AttachBridgeRequest(release func()) {
	c.mu.Lock()
	c.releaseBridgeRequest = release
	c.mu.Unlock()
}

// Instance returns the service instance this connector targets.
func (c *Connector) Instance() types.Instance { return c.instance }

func (c *Connector) onServerUpdate(weak reftoken.Weak, slot *registry.ServerSlot) {
	if slot == nil {
		c.mu.Lock()
		old := c.server
		c.server = message.ServerConnEndpoint{}
		c.available = false
		c.mu.Unlock()
		old.Release()
		c.Receive(message.ClientEvent{Kind: message.ServiceStateChanged, Available: false})
		return
	}

	self, ok := weak.Upgrade()
	if !ok {
		return // connector already torn down
	}
	defer self.Release()

	receiver := endpoint.FuncReceiver[message.ClientEvent, message.ClientEventResult](func(ev message.ClientEvent) message.ClientEventResult {
		tok, ok := weak.Upgrade()
		if !ok {
			return message.ClientEventResult{}
		}
		defer tok.Release()
		return c.Receive(ev)
	})
	ep := endpoint.New[message.ClientEvent, message.ClientEventResult](receiver, nil)
	resp := slot.Listen.Send(message.ConnectRequest{
		ClientInterface: c.configuration.Interface,
		ClientEndpoint:  ep,
		Credentials:     c.credentials,
	})
	if resp.ServerConnEndpoint.Zero() {
		ep.Release()
		return
	}

	c.mu.Lock()
	c.server = resp.ServerConnEndpoint
	c.available = true
	c.mu.Unlock()

	metrics.ClientConnectionsTotal.WithLabelValues(c.configuration.Interface.ID).Inc()
	c.Receive(message.ClientEvent{Kind: message.ServiceStateChanged, Available: true, ServerConfig: resp.ServerConfig})
}

// Receive implements message.Receiver for the client-connector endpoint the
// server uses to push events and state changes. Every invocation runs inside
// the deadlock guard, since it always ends in a user callback.
func (c *Connector) Receive(ev message.ClientEvent) message.ClientEventResult {
	c.guarded(func() {
		switch ev.Kind {
		case message.ServiceStateChanged:
			c.callbacks.OnServiceStateChange(c, ev.Available, ev.ServerConfig)
		case message.EventUpdate:
			c.callbacks.OnEventUpdate(c, ev.EventID, ev.Payload)
		case message.EventRequestedUpdate:
			c.callbacks.OnEventRequestedUpdate(c, ev.EventID, ev.Payload)
		case message.MethodReply:
			// Method replies are delivered through a dedicated per-call
			// endpoint built in CallMethod, never through this shared one.
		}
	})
	return message.ClientEventResult{}
}

// guarded runs fn (always a user callback invocation) under the deadlock
// detector, using the calling goroutine's dispatch identity.
func (c *Connector) guarded(fn func()) {
	guard := c.detector.Enter(deadlock.Current())
	defer guard.Release()
	fn()
}

func (c *Connector) snapshot() (message.ServerConnEndpoint, types.Configuration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.server, c.configuration, c.available
}

// IsServiceAvailable reports the current service state.
func (c *Connector) IsServiceAvailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available
}

// SubscribeEvent requests delivery of event id. Re-subscribing with a
// stronger mode overrides a weaker prior one; subscriptions do not persist
// across a not_available/available cycle.
func (c *Connector) SubscribeEvent(id uint16, mode types.EventMode) error {
	server, cfg, available := c.snapshot()
	if !available {
		return types.ErrServiceNotAvailable
	}
	if cfg.NumEvents != 0 && id >= cfg.NumEvents {
		return types.ErrIDOutOfRange
	}
	res := server.Send(message.ServerOp{Kind: message.OpSubscribeEvent, EventID: id, Mode: mode})
	return res.Err
}

// UnsubscribeEvent stops delivery of event id.
func (c *Connector) UnsubscribeEvent(id uint16) error {
	server, cfg, available := c.snapshot()
	if !available {
		return types.ErrServiceNotAvailable
	}
	if cfg.NumEvents != 0 && id >= cfg.NumEvents {
		return types.ErrIDOutOfRange
	}
	res := server.Send(message.ServerOp{Kind: message.OpUnsubscribeEvent, EventID: id})
	return res.Err
}

// RequestEventUpdate asks the server for one immediate on_event_update_request
// delivery of event id, without changing any persistent subscription mode.
func (c *Connector) RequestEventUpdate(id uint16) error {
	server, cfg, available := c.snapshot()
	if !available {
		return types.ErrServiceNotAvailable
	}
	if cfg.NumEvents != 0 && id >= cfg.NumEvents {
		return types.ErrIDOutOfRange
	}
	res := server.Send(message.ServerOp{Kind: message.OpRequestEventUpdate, EventID: id})
	return res.Err
}

// GetPeerCredentials returns the POSIX credentials of the connected server's
// process.
func (c *Connector) GetPeerCredentials() (types.PosixCredentials, error) {
	server, _, available := c.snapshot()
	if !available {
		return types.PosixCredentials{}, types.ErrServiceNotAvailable
	}
	res := server.Send(message.ServerOp{Kind: message.OpPeerCredentials})
	return res.Credentials, res.Err
}

// AllocateMethodPayload obtains a writable payload for a subsequent
// CallMethod(id, ...), delegating the actual allocation to the connector's
// own on_event_payload_allocate callback.
func (c *Connector) AllocateMethodPayload(id uint16) (*payload.Payload, error) {
	_, cfg, available := c.snapshot()
	if !available {
		return nil, types.ErrServiceNotAvailable
	}
	if cfg.NumMethods != 0 && id >= cfg.NumMethods {
		return nil, types.ErrIDOutOfRange
	}
	var p *payload.Payload
	var err error
	c.guarded(func() { p, err = c.callbacks.OnEventPayloadAllocate(c, id) })
	return p, err
}

// CallMethod invokes method id with p as its argument payload. onReply may be
// nil for a fire-and-forget call. The returned CallHandle's Drop cancels
// delivery of a not-yet-arrived reply.
func (c *Connector) CallMethod(id uint16, p *payload.Payload, onReply func(*types.MethodResult)) (CallHandle, error) {
	server, cfg, available := c.snapshot()
	if !available {
		return CallHandle{}, types.ErrServiceNotAvailable
	}
	if cfg.NumMethods != 0 && id >= cfg.NumMethods {
		return CallHandle{}, types.ErrIDOutOfRange
	}

	op := message.ServerOp{
		Kind:     message.OpCallMethod,
		MethodID: id,
		Payload:  p,
		CallID:   c.nextCallID.Add(1),
	}

	var handle CallHandle
	if onReply != nil {
		cancelToken := reftoken.New(nil)
		weakCancel := cancelToken.Weak()
		handle = CallHandle{c: c, token: cancelToken}
		c.rememberPendingCall(cancelToken)

		receiver := endpoint.FuncReceiver[message.ClientEvent, message.ClientEventResult](func(ev message.ClientEvent) message.ClientEventResult {
			tok, ok := weakCancel.Upgrade()
			if !ok {
				return message.ClientEventResult{}
			}
			c.forgetPendingCall(cancelToken)
			defer tok.Release()

			c.guarded(func() { onReply(ev.MethodResult) })
			return message.ClientEventResult{}
		})
		replyEP := endpoint.New[message.ClientEvent, message.ClientEventResult](receiver, nil)
		op.ReplyTo = &replyEP
	}

	res := server.Send(op)
	if res.Err != nil {
		handle.Drop()
		return CallHandle{}, res.Err
	}
	return handle, nil
}

func (c *Connector) rememberPendingCall(token *reftoken.Token) {
	c.mu.Lock()
	c.pendingCalls[token] = struct{}{}
	c.mu.Unlock()
}

func (c *Connector) forgetPendingCall(token *reftoken.Token) {
	c.mu.Lock()
	delete(c.pendingCalls, token)
	c.mu.Unlock()
}

// Close unregisters the connector, aborts every in-flight method call (no
// reply will be delivered after Close returns), and blocks until every
// callback already dispatched has finished. Calling Close from inside one of
// this connector's own callbacks is a deadlock, detected and reported by
// internal/soc/deadlock instead of hanging forever.
func (c *Connector) Close() {
	dispatchID := deadlock.Current()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.stopDone
		return
	}
	c.closed = true
	c.registration.Cancel()
	server := c.server
	c.server = message.ServerConnEndpoint{}
	c.available = false
	token := c.stopToken
	releaseBridgeRequest := c.releaseBridgeRequest
	c.releaseBridgeRequest = nil
	pending := make([]*reftoken.Token, 0, len(c.pendingCalls))
	for t := range c.pendingCalls {
		pending = append(pending, t)
	}
	c.pendingCalls = nil
	c.mu.Unlock()

	metrics.ClientConnectorsActive.Dec()
	if releaseBridgeRequest != nil {
		releaseBridgeRequest()
	}
	for _, t := range pending {
		t.Release()
	}
	if !server.Zero() {
		server.Send(message.ServerOp{Kind: message.OpDisconnect})
	}
	server.Release()
	token.Release()

	c.detector.Teardown(dispatchID)
	<-c.stopDone
}
