// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

// Package bridge implements the Bridge Hub: the point where external
// transports (internal/soc/bridge/natsbridge being the shipped one) plug
// into the local service set. A bridge contributes two functions —
// subscribe_find_service and request_service — and the Hub is responsible
// for fanning both out to every registered bridge as local find
// subscriptions and service requests come and go, and for converging a
// newly-registered bridge against whatever was already active.
package bridge

import (
	"sync"
	"sync/atomic"

	"github.com/evrhart/socrt/internal/logging"
	"github.com/evrhart/socrt/internal/metrics"
	"github.com/evrhart/socrt/internal/soc/discovery"
	"github.com/evrhart/socrt/internal/soc/types"
)

// Subscription is returned by Transport.SubscribeFindService.
type Subscription struct {
	Cancel func()
}

// Handle is returned by Transport.RequestService.
type Handle struct {
	Close func()
}

// Transport is what a bridge registers with the Hub. Both methods must be
// safe to call concurrently and must not block holding any lock the Hub
// itself might need — the Hub never calls either one while holding its own
// mutex.
type Transport interface {
	// SubscribeFindService asks this bridge to report external services
	// matching iface (and instance, if non-nil) by invoking onFound with
	// one Found per discovered/withdrawn service. It is never called for a
	// wildcard query: per spec.md §4.8 those only ever see local services.
	SubscribeFindService(iface types.Interface, instance *types.Instance, onFound func(discovery.Found)) Subscription

	// RequestService asks this bridge to make (cfg, instance) reachable
	// externally. The returned Handle is retained until the last local
	// client needing that service disappears.
	RequestService(cfg types.Configuration, instance types.Instance) (Handle, error)
}

// Registration is returned by RegisterBridge and AcquireServiceRequest.
// Cancel must be called exactly once.
type Registration struct {
	Cancel func()
}

type queryKey struct {
	id       string
	major    uint32
	instance types.Instance
	any      bool
}

func queryKeyOf(q discovery.Query) queryKey {
	k := queryKey{id: q.Interface.ID, major: q.Interface.Version.Major}
	if q.Instance != nil {
		k.instance = *q.Instance
	} else {
		k.any = true
	}
	return k
}

type requestKey struct {
	id       string
	major    uint32
	instance types.Instance
}

func requestKeyOf(iface types.Interface, instance types.Instance) requestKey {
	return requestKey{id: iface.ID, major: iface.Version.Major, instance: instance}
}

type bridgeEntry struct {
	identity  string
	transport Transport
	mu        sync.Mutex
	findSubs  map[queryKey]Subscription
	requests  map[requestKey]Handle
}

type requestRef struct {
	cfg      types.Configuration
	instance types.Instance
	refs     int
}

// Hub is the Bridge Hub. One Hub is shared by every bridge registration and
// by every acquire_service_request-style caller (internal/soc/runtime, on
// behalf of client connectors that find no local server).
type Hub struct {
	tracker   *discovery.Tracker
	maxRounds int

	mu          sync.Mutex
	bridges     map[uint64]*bridgeEntry
	nextID      atomic.Uint64
	requestRefs map[requestKey]*requestRef
}

// defaultMaxRounds bounds reconcileRequests's convergence loop when New is
// called without WithMaxConvergenceRounds.
const defaultMaxRounds = 8

// Option configures a Hub at construction.
type Option func(*Hub)

// WithMaxConvergenceRounds overrides reconcileRequests's round cap. n <= 0
// is ignored and the default of 8 applies.
func WithMaxConvergenceRounds(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.maxRounds = n
		}
	}
}

// New creates a Hub watching tracker for active concrete find subscriptions.
func New(tracker *discovery.Tracker, opts ...Option) *Hub {
	h := &Hub{
		tracker:     tracker,
		maxRounds:   defaultMaxRounds,
		bridges:     make(map[uint64]*bridgeEntry),
		requestRefs: make(map[requestKey]*requestRef),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterBridge wires transport into the Hub under identity (used for the
// no-loop exclusion: a query placed by this same bridge is never offered
// back to it). It subscribes transport to every currently-active concrete
// find query not of its own making, to every one that arrives afterward,
// and converges it against every currently-acquired service request.
func (h *Hub) RegisterBridge(identity string, transport Transport) Registration {
	id := h.nextID.Add(1)
	entry := &bridgeEntry{
		identity:  identity,
		transport: transport,
		findSubs:  make(map[queryKey]Subscription),
		requests:  make(map[requestKey]Handle),
	}

	h.mu.Lock()
	h.bridges[id] = entry
	h.mu.Unlock()

	watch := h.tracker.Watch(func(c discovery.QueryChange) {
		if c.Query.BridgeIdentity == identity {
			return
		}
		key := queryKeyOf(c.Query)
		if c.Added {
			report := c.Query.Report
			onFound := func(f discovery.Found) {
				metrics.RecordBridgeForward("inbound")
				report(f)
			}
			sub := transport.SubscribeFindService(c.Query.Interface, c.Query.Instance, onFound)
			metrics.RecordBridgeForward("outbound")
			entry.mu.Lock()
			entry.findSubs[key] = sub
			entry.mu.Unlock()
			return
		}
		entry.mu.Lock()
		sub, ok := entry.findSubs[key]
		delete(entry.findSubs, key)
		entry.mu.Unlock()
		if ok {
			sub.Cancel()
		}
	})

	h.reconcileRequests()

	return Registration{Cancel: func() {
		watch.Cancel()

		h.mu.Lock()
		delete(h.bridges, id)
		h.mu.Unlock()

		entry.mu.Lock()
		findSubs := entry.findSubs
		requests := entry.requests
		entry.findSubs = nil
		entry.requests = nil
		entry.mu.Unlock()

		for _, s := range findSubs {
			s.Cancel()
		}
		for _, r := range requests {
			r.Close()
		}
	}}
}

// AcquireServiceRequest records one local caller's need for (cfg, instance)
// to be requested externally. The first acquire triggers request_service on
// every registered bridge; Cancel releases this caller's hold, and the last
// release closes every bridge's Handle for it.
func (h *Hub) AcquireServiceRequest(cfg types.Configuration, instance types.Instance) Registration {
	key := requestKeyOf(cfg.Interface, instance)

	h.mu.Lock()
	first := false
	ref, ok := h.requestRefs[key]
	if ok {
		ref.refs++
	} else {
		ref = &requestRef{cfg: cfg, instance: instance, refs: 1}
		h.requestRefs[key] = ref
		first = true
	}
	h.mu.Unlock()

	if first {
		h.reconcileRequests()
	}

	return Registration{Cancel: func() {
		h.mu.Lock()
		ref, ok := h.requestRefs[key]
		if !ok {
			h.mu.Unlock()
			return
		}
		ref.refs--
		last := ref.refs <= 0
		if last {
			delete(h.requestRefs, key)
		}
		bridges := make([]*bridgeEntry, 0, len(h.bridges))
		for _, entry := range h.bridges {
			bridges = append(bridges, entry)
		}
		h.mu.Unlock()

		if !last {
			return
		}
		for _, entry := range bridges {
			entry.mu.Lock()
			handle, ok := entry.requests[key]
			delete(entry.requests, key)
			entry.mu.Unlock()
			if ok {
				handle.Close()
			}
		}
	}}
}

// reconcileRequests implements spec.md §4.8's convergence algorithm for
// request_service: snapshot the (bridge, still-acquired-request) pairs not
// yet actioned, release the lock, invoke request_service on each, reacquire
// the lock, merge whatever is still live, and repeat. Each round either
// finds no outstanding work (and returns) or strictly shrinks the gap
// between "acquired" and "requested per bridge" — round-tripping bridge
// registration and acquisition concurrently with this loop can at most
// re-add one round's worth of new work, never infinitely.
func (h *Hub) reconcileRequests() {
	maxRounds := h.maxRounds

	type pair struct {
		entry *bridgeEntry
		key   requestKey
	}
	failed := make(map[pair]bool)

	for round := 0; round < maxRounds; round++ {
		type todoItem struct {
			entry *bridgeEntry
			key   requestKey
			cfg   types.Configuration
			inst  types.Instance
		}

		h.mu.Lock()
		var todo []todoItem
		for _, entry := range h.bridges {
			entry.mu.Lock()
			for key, ref := range h.requestRefs {
				if _, done := entry.requests[key]; done || failed[pair{entry, key}] {
					continue
				}
				todo = append(todo, todoItem{entry: entry, key: key, cfg: ref.cfg, inst: ref.instance})
			}
			entry.mu.Unlock()
		}
		h.mu.Unlock()

		if len(todo) == 0 {
			metrics.BridgeConvergenceRounds.Observe(float64(round))
			return
		}

		for _, t := range todo {
			handle, err := t.entry.transport.RequestService(t.cfg, t.inst)
			if err != nil {
				failed[pair{t.entry, t.key}] = true
				metrics.RecordBridgeRequest(t.cfg.Interface.ID, "failure")
				logging.Warn().
					Str("component", "bridge").
					Str("interface", t.cfg.Interface.ID).
					Err(err).
					Msg("request_service failed")
				continue
			}
			metrics.RecordBridgeRequest(t.cfg.Interface.ID, "success")

			h.mu.Lock()
			_, stillAcquired := h.requestRefs[t.key]
			h.mu.Unlock()
			if !stillAcquired {
				handle.Close()
				continue
			}

			t.entry.mu.Lock()
			if _, already := t.entry.requests[t.key]; already || t.entry.requests == nil {
				t.entry.mu.Unlock()
				handle.Close()
				continue
			}
			t.entry.requests[t.key] = handle
			t.entry.mu.Unlock()
		}
	}

	metrics.BridgeConvergenceRounds.Observe(float64(maxRounds))
	logging.Warn().
		Str("component", "bridge").
		Int("rounds", maxRounds).
		Msg("request_service reconciliation did not converge, giving up for this round trigger")
}
