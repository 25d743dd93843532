// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

// Package server implements the Server Connector: the service-provider side
// of a wired service pair. A Connector is built disabled (not in the
// registry, callbacks never called) and moves to enabled by publishing
// itself through Enable; disable tears the publication down again. While
// enabled it accepts one per-client connection object per attaching client,
// each handling that client's subscribe/unsubscribe/request/call/disconnect
// traffic independently.
package server

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/evrhart/socrt/internal/metrics"
	"github.com/evrhart/socrt/internal/soc/authz"
	"github.com/evrhart/socrt/internal/soc/deadlock"
	"github.com/evrhart/socrt/internal/soc/endpoint"
	"github.com/evrhart/socrt/internal/soc/message"
	"github.com/evrhart/socrt/internal/soc/payload"
	"github.com/evrhart/socrt/internal/soc/reftoken"
	"github.com/evrhart/socrt/internal/soc/registry"
	"github.com/evrhart/socrt/internal/soc/types"
)

// Callbacks is the user-supplied callback set. OnMethodCall,
// OnEventSubscriptionChange, and OnEventUpdateRequest are mandatory;
// New returns types.ErrCallbackMissing if any is nil. The payload-allocation
// hooks are optional.
type Callbacks struct {
	OnMethodCall              func(s *Connector, methodID uint16, p *payload.Payload, credentials types.PosixCredentials, reply func(*types.MethodResult))
	OnEventSubscriptionChange func(s *Connector, eventID uint16, state types.EventState)
	OnEventUpdateRequest      func(s *Connector, eventID uint16)
	OnMethodPayloadAllocate   func(s *Connector, methodID uint16) (*payload.Payload, error)
	OnEventPayloadAllocate    func(s *Connector, eventID uint16) (*payload.Payload, error)
}

func (cb Callbacks) complete() bool {
	return cb.OnMethodCall != nil &&
		cb.OnEventSubscriptionChange != nil &&
		cb.OnEventUpdateRequest != nil
}

// eventBook is the per-event-id bookkeeping: who is subscribed, and which of
// those subscribers additionally want an immediate refresh.
type eventBook struct {
	mu          sync.Mutex
	subscribers map[*clientConn]types.EventMode
	requesters  map[*clientConn]struct{}
}

func newEventBook() *eventBook {
	return &eventBook{
		subscribers: make(map[*clientConn]types.EventMode),
		requesters:  make(map[*clientConn]struct{}),
	}
}

func (b *eventBook) dominantLocked() types.EventMode {
	mode := types.EventModeUpdate
	for _, m := range b.subscribers {
		mode = mode.Dominant(m)
	}
	return mode
}

// clientConn is the per-client connection object handed to one attaching
// client as a message.ServerConnEndpoint. It outlives individual calls; its
// token is released once by the connector (on disconnect) and once by the
// client (when it drops the endpoint), and the connector is told to forget
// it only when both have let go.
type clientConn struct {
	s           *Connector
	id          uint64
	client      message.ClientEndpoint
	credentials types.PosixCredentials
	token       *reftoken.Token
}

// Receive implements message.Receiver for the per-client connection
// endpoint. It never runs the deadlock guard itself for the cheap
// bookkeeping ops; only the ops that invoke a user callback do.
func (cc *clientConn) Receive(op message.ServerOp) message.ServerOpResult {
	switch op.Kind {
	case message.OpSubscribeEvent:
		return cc.s.subscribeEvent(cc, op.EventID, op.Mode)
	case message.OpUnsubscribeEvent:
		return cc.s.unsubscribeEvent(cc, op.EventID)
	case message.OpRequestEventUpdate:
		return cc.s.requestEventUpdate(cc, op.EventID)
	case message.OpCallMethod:
		return cc.s.callMethod(cc, op)
	case message.OpPeerCredentials:
		return message.ServerOpResult{Credentials: cc.s.credentials}
	case message.OpDisconnect:
		cc.s.disconnect(cc)
		return message.ServerOpResult{}
	}
	return message.ServerOpResult{}
}

// Connector is a Server Connector.
type Connector struct {
	configuration types.ServerConfiguration
	instance      types.Instance
	callbacks     Callbacks
	credentials   types.PosixCredentials
	enforcer      *authz.Enforcer

	detector *deadlock.Detector

	mu           sync.Mutex
	enabled      bool
	registration registry.Registration
	listen       message.ListenEndpoint
	stopToken    *reftoken.Token
	stopWeak     reftoken.Weak
	stopDone     chan struct{}

	events   map[uint16]*eventBook
	eventsMu sync.Mutex

	conns      map[uint64]*clientConn
	nextConnID atomic.Uint64

	advisory map[uint16]types.EventState
}

// New builds a disabled Connector. enforcer may be nil, meaning every
// call_method is allowed.
func New(cfg types.ServerConfiguration, instance types.Instance, cb Callbacks, credentials types.PosixCredentials, enforcer *authz.Enforcer) (*Connector, error) {
	if !cb.complete() {
		return nil, types.ErrCallbackMissing
	}
	return &Connector{
		configuration: cfg,
		instance:      instance,
		callbacks:     cb,
		credentials:   credentials,
		enforcer:      enforcer,
		detector:      deadlock.New(cfg.Interface.ID + "/" + string(instance)),
		events:        make(map[uint16]*eventBook),
		conns:         make(map[uint64]*clientConn),
		advisory:      make(map[uint16]types.EventState),
	}, nil
}

// Configuration returns the configuration this connector was built with.
func (s *Connector) Configuration() types.ServerConfiguration { return s.configuration }

// Instance returns the service instance this connector serves.
func (s *Connector) Instance() types.Instance { return s.instance }

// IsEnabled reports whether the connector is currently published.
func (s *Connector) IsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *Connector) guarded(fn func()) {
	guard := s.detector.Enter(deadlock.Current())
	defer guard.Release()
	fn()
}

// Enable publishes the connector in reg. It fails with
// types.ErrDuplicateService if another enabled server already holds
// (configuration.Interface, instance), or if this connector is already
// enabled.
func (s *Connector) Enable(reg *registry.Registry) error {
	s.mu.Lock()
	if s.enabled {
		s.mu.Unlock()
		return types.ErrDuplicateService
	}
	s.mu.Unlock()

	stopDone := make(chan struct{})
	stopToken := reftoken.New(func() { close(stopDone) })
	listenToken := stopToken.Clone()
	listen := endpoint.New[message.ConnectRequest, message.ConnectResponse](s, listenToken)

	registration, err := reg.RegisterServer(s.configuration.Interface, s.instance, listen)
	if err != nil {
		listenToken.Release()
		stopToken.Release()
		return err
	}

	s.mu.Lock()
	s.enabled = true
	s.registration = registration
	s.listen = listen
	s.stopToken = stopToken
	s.stopWeak = stopToken.Weak()
	s.stopDone = stopDone
	s.mu.Unlock()
	metrics.ServerConnectorsActive.WithLabelValues(s.configuration.Interface.ID).Inc()
	return nil
}

// Disable clears the registry slot (waking every wired client's
// on_service_state_change(not_available)) and then blocks until every
// connect already dispatched to the listen endpoint has finished. Calling
// Disable from inside one of this connector's own callbacks is a detected
// deadlock rather than a hang.
func (s *Connector) Disable() {
	dispatchID := deadlock.Current()

	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return
	}
	s.enabled = false
	registration := s.registration
	listen := s.listen
	stopToken := s.stopToken
	stopDone := s.stopDone
	s.registration = registry.Registration{}
	s.listen = message.ListenEndpoint{}
	s.mu.Unlock()

	registration.Cancel()
	listen.Release()
	stopToken.Release()
	metrics.ServerConnectorsActive.WithLabelValues(s.configuration.Interface.ID).Dec()

	s.detector.Teardown(dispatchID)
	<-stopDone
}

// Receive implements message.Receiver for the listen endpoint: it accepts a
// compatible client's connect request and hands back a fresh per-client
// connection object.
func (s *Connector) Receive(req message.ConnectRequest) message.ConnectResponse {
	if !types.CompatibleWith(req.ClientInterface, s.configuration.Interface) {
		return message.ConnectResponse{}
	}

	s.mu.Lock()
	weak := s.stopWeak
	s.mu.Unlock()
	self, ok := weak.Upgrade()
	if !ok {
		return message.ConnectResponse{}
	}
	defer self.Release()

	id := s.nextConnID.Add(1)
	cc := &clientConn{s: s, id: id, client: req.ClientEndpoint, credentials: req.Credentials}
	cc.token = reftoken.New(func() { s.forgetConn(id) })

	s.mu.Lock()
	s.conns[id] = cc
	s.mu.Unlock()

	connEP := endpoint.New[message.ServerOp, message.ServerOpResult](cc, cc.token.Clone())
	return message.ConnectResponse{ServerConnEndpoint: connEP, ServerConfig: s.configuration}
}

func (s *Connector) forgetConn(id uint64) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
}

func (s *Connector) eventBookFor(id uint16) *eventBook {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	b, ok := s.events[id]
	if !ok {
		b = newEventBook()
		s.events[id] = b
	}
	return b
}

func (s *Connector) rangeCheckEvent(id uint16) error {
	if s.configuration.NumEvents != 0 && id >= s.configuration.NumEvents {
		return types.ErrIDOutOfRange
	}
	return nil
}

func (s *Connector) rangeCheckMethod(id uint16) error {
	if s.configuration.NumMethods != 0 && id >= s.configuration.NumMethods {
		return types.ErrIDOutOfRange
	}
	return nil
}

func (s *Connector) subscribeEvent(cc *clientConn, id uint16, mode types.EventMode) message.ServerOpResult {
	if err := s.rangeCheckEvent(id); err != nil {
		return message.ServerOpResult{Err: err}
	}

	b := s.eventBookFor(id)
	b.mu.Lock()
	first := len(b.subscribers) == 0
	b.subscribers[cc] = mode
	if mode == types.EventModeUpdateAndInitialValue {
		b.requesters[cc] = struct{}{}
	}
	b.mu.Unlock()

	eid := id
	if first {
		metrics.EventSubscribersActive.WithLabelValues(s.configuration.Interface.ID, strconv.Itoa(int(eid))).Inc()
		s.guarded(func() { s.callbacks.OnEventSubscriptionChange(s, eid, types.EventStateSubscribed) })
	}
	if mode == types.EventModeUpdateAndInitialValue {
		s.guarded(func() { s.callbacks.OnEventUpdateRequest(s, eid) })
	}
	return message.ServerOpResult{}
}

func (s *Connector) unsubscribeEvent(cc *clientConn, id uint16) message.ServerOpResult {
	if err := s.rangeCheckEvent(id); err != nil {
		return message.ServerOpResult{Err: err}
	}

	b := s.eventBookFor(id)
	b.mu.Lock()
	_, existed := b.subscribers[cc]
	delete(b.subscribers, cc)
	delete(b.requesters, cc)
	empty := existed && len(b.subscribers) == 0
	b.mu.Unlock()

	if empty {
		eid := id
		metrics.EventSubscribersActive.WithLabelValues(s.configuration.Interface.ID, strconv.Itoa(int(eid))).Dec()
		s.guarded(func() { s.callbacks.OnEventSubscriptionChange(s, eid, types.EventStateUnsubscribed) })
	}
	return message.ServerOpResult{}
}

func (s *Connector) requestEventUpdate(cc *clientConn, id uint16) message.ServerOpResult {
	if err := s.rangeCheckEvent(id); err != nil {
		return message.ServerOpResult{Err: err}
	}

	b := s.eventBookFor(id)
	b.mu.Lock()
	b.requesters[cc] = struct{}{}
	b.mu.Unlock()

	eid := id
	s.guarded(func() { s.callbacks.OnEventUpdateRequest(s, eid) })
	return message.ServerOpResult{}
}

func (s *Connector) callMethod(cc *clientConn, op message.ServerOp) message.ServerOpResult {
	iface := s.configuration.Interface.ID
	method := strconv.Itoa(int(op.MethodID))

	if err := s.rangeCheckMethod(op.MethodID); err != nil {
		metrics.RecordMethodCall(iface, method, "rejected", 0)
		return message.ServerOpResult{Err: err}
	}

	if !s.enforcer.Allow(cc.credentials.UID, s.configuration.Interface.ID, op.MethodID) {
		if op.ReplyTo != nil {
			op.ReplyTo.Send(message.ClientEvent{
				Kind:         message.MethodReply,
				MethodResult: &types.MethodResult{Kind: types.MethodError, RuntimeError: types.ErrPermissionNotAllowed},
			})
		}
		metrics.RecordMethodCall(iface, method, "permission_not_allowed", 0)
		return message.ServerOpResult{Err: types.ErrPermissionNotAllowed}
	}

	reply := func(result *types.MethodResult) {
		if op.ReplyTo != nil {
			op.ReplyTo.Send(message.ClientEvent{Kind: message.MethodReply, MethodResult: result})
		}
	}
	start := time.Now()
	s.guarded(func() { s.callbacks.OnMethodCall(s, op.MethodID, op.Payload, cc.credentials, reply) })
	metrics.RecordMethodCall(iface, method, "ok", time.Since(start))
	return message.ServerOpResult{}
}

func (s *Connector) disconnect(cc *clientConn) {
	s.eventsMu.Lock()
	ids := make([]uint16, 0, len(s.events))
	for id := range s.events {
		ids = append(ids, id)
	}
	s.eventsMu.Unlock()

	for _, id := range ids {
		b := s.eventBookFor(id)
		b.mu.Lock()
		_, existed := b.subscribers[cc]
		delete(b.subscribers, cc)
		delete(b.requesters, cc)
		empty := existed && len(b.subscribers) == 0
		b.mu.Unlock()

		if empty {
			eid := id
			metrics.EventSubscribersActive.WithLabelValues(s.configuration.Interface.ID, strconv.Itoa(int(eid))).Dec()
			s.guarded(func() { s.callbacks.OnEventSubscriptionChange(s, eid, types.EventStateUnsubscribed) })
		}
	}

	cc.token.Release()
}

// UpdateEvent publishes p to every current subscriber of id.
func (s *Connector) UpdateEvent(id uint16, p *payload.Payload) {
	start := time.Now()
	b := s.eventBookFor(id)
	b.mu.Lock()
	targets := make([]*clientConn, 0, len(b.subscribers))
	for cc := range b.subscribers {
		targets = append(targets, cc)
	}
	b.mu.Unlock()

	for _, cc := range targets {
		cc.client.Send(message.ClientEvent{Kind: message.EventUpdate, EventID: id, Payload: p})
	}
	metrics.RecordEventPublish(s.configuration.Interface.ID, strconv.Itoa(int(id)), time.Since(start))
}

// UpdateRequestedEvent delivers p to every connection currently in id's
// requesters set, then clears that set.
func (s *Connector) UpdateRequestedEvent(id uint16, p *payload.Payload) {
	b := s.eventBookFor(id)
	b.mu.Lock()
	targets := make([]*clientConn, 0, len(b.requesters))
	for cc := range b.requesters {
		targets = append(targets, cc)
	}
	b.requesters = make(map[*clientConn]struct{})
	b.mu.Unlock()

	for _, cc := range targets {
		cc.client.Send(message.ClientEvent{Kind: message.EventRequestedUpdate, EventID: id, Payload: p})
	}
}

// GetEventMode returns the dominant subscription mode across id's current
// subscribers, or EventModeUpdate if there are none.
func (s *Connector) GetEventMode(id uint16) types.EventMode {
	b := s.eventBookFor(id)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dominantLocked()
}

// SetEventSubscriptionState records an advisory subscription state for id.
// It never gates update_event delivery; it exists purely so a server
// implementation can record and later inspect "I told clients I'd stop
// sending this" without actually having to stop.
func (s *Connector) SetEventSubscriptionState(id uint16, state types.EventState) {
	s.mu.Lock()
	s.advisory[id] = state
	s.mu.Unlock()
}

// GetEventSubscriptionState returns the advisory state last recorded by
// SetEventSubscriptionState, or EventStateUnsubscribed if none was.
func (s *Connector) GetEventSubscriptionState(id uint16) types.EventState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advisory[id]
}

// AllocateMethodReplyPayload delegates to the optional
// on_method_payload_allocate hook. It returns types.ErrRequestRejected if no
// hook was configured.
func (s *Connector) AllocateMethodReplyPayload(id uint16) (*payload.Payload, error) {
	if s.callbacks.OnMethodPayloadAllocate == nil {
		return nil, types.ErrRequestRejected
	}
	var p *payload.Payload
	var err error
	s.guarded(func() { p, err = s.callbacks.OnMethodPayloadAllocate(s, id) })
	return p, err
}

// AllocateEventPayload delegates to the optional on_event_payload_allocate
// hook. It returns types.ErrRequestRejected if no hook was configured.
func (s *Connector) AllocateEventPayload(id uint16) (*payload.Payload, error) {
	if s.callbacks.OnEventPayloadAllocate == nil {
		return nil, types.ErrRequestRejected
	}
	var p *payload.Payload
	var err error
	s.guarded(func() { p, err = s.callbacks.OnEventPayloadAllocate(s, id) })
	return p, err
}
