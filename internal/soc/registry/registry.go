// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

// Package registry implements the Service Registry ("Database" in the spec
// vocabulary): a per-(interface, instance) record holding at most one server
// slot and a list of waiting clients. It wires clients to servers, applies
// the interface compatibility matrix, and broadcasts service-set changes to
// discovery subscribers. Callers never hold the registry's lock while
// invoking a notification callback: slot mutations happen under the lock,
// notification happens after it is released.
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/evrhart/socrt/internal/logging"
	"github.com/evrhart/socrt/internal/metrics"
	"github.com/evrhart/socrt/internal/soc/message"
	"github.com/evrhart/socrt/internal/soc/types"
)

// key collates records by (interface id, major version, instance): the
// registry's comparator deliberately ignores minor version so that any two
// participants sharing id+major land in the same record and can then be
// checked for minor compatibility.
type key struct {
	id       string
	major    uint32
	instance types.Instance
}

func keyOf(iface types.Interface, instance types.Instance) key {
	return key{id: iface.ID, major: iface.Version.Major, instance: instance}
}

// ServerSlot describes the single server currently registered for a record.
type ServerSlot struct {
	Interface types.Interface
	Listen    message.ListenEndpoint
}

type clientWaiter struct {
	id             uint64
	iface          types.Interface
	onServerUpdate func(*ServerSlot)
}

type record struct {
	mu      sync.Mutex
	server  *ServerSlot
	clients []*clientWaiter
}

// ChangeKind distinguishes why a Watcher fired.
type ChangeKind int

const (
	ChangeServerAdded ChangeKind = iota
	ChangeServerRemoved
)

// Change describes one service-set mutation, delivered to discovery.
type Change struct {
	Kind      ChangeKind
	Interface types.Interface
	Instance  types.Instance
}

// Watcher receives every server add/remove under the registry, regardless of
// which (interface, instance) it touches; internal/soc/discovery applies its
// own interface/instance filtering on top.
type Watcher func(Change)

// Registration is returned by RegisterClient/RegisterServer. Cancel must be
// called exactly once to remove the registration; it is safe to call
// concurrently with in-flight notifications (the registry lock serializes
// them).
type Registration struct {
	Cancel func()
}

// Registry is the Service Registry / Database.
type Registry struct {
	mu       sync.Mutex
	records  map[key]*record
	watchers map[uint64]Watcher
	nextID   atomic.Uint64
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		records:  make(map[key]*record),
		watchers: make(map[uint64]Watcher),
	}
}

func (r *Registry) recordFor(k key) *record {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[k]
	if !ok {
		rec = &record{}
		r.records[k] = rec
	}
	return rec
}

// RegisterClient inserts a waiting client into the record for (iface,
// instance). If a compatible server slot is already occupied,
// onServerUpdate is invoked immediately, synchronously, with that slot.
// Cancel removes the client from the record's waiter list.
func (r *Registry) RegisterClient(iface types.Interface, instance types.Instance, onServerUpdate func(*ServerSlot)) Registration {
	rec := r.recordFor(keyOf(iface, instance))
	w := &clientWaiter{id: r.nextID.Add(1), iface: iface, onServerUpdate: onServerUpdate}

	rec.mu.Lock()
	rec.clients = append(rec.clients, w)
	var immediate *ServerSlot
	if rec.server != nil && types.CompatibleWith(iface, rec.server.Interface) {
		immediate = rec.server
	}
	rec.mu.Unlock()

	if immediate != nil {
		onServerUpdate(immediate)
	}

	return Registration{Cancel: func() {
		rec.mu.Lock()
		for i, c := range rec.clients {
			if c == w {
				rec.clients = append(rec.clients[:i], rec.clients[i+1:]...)
				break
			}
		}
		rec.mu.Unlock()
	}}
}

// RegisterServer occupies the record's server slot. It fails with
// ErrDuplicateService if another server already holds the slot. On success,
// every currently-waiting compatible client is notified (after the lock is
// released), and the registry's watchers are notified of the addition.
// Cancel clears the slot, notifies waiting clients of the server's
// departure, and notifies watchers of the removal.
func (r *Registry) RegisterServer(iface types.Interface, instance types.Instance, listen message.ListenEndpoint) (Registration, error) {
	rec := r.recordFor(keyOf(iface, instance))

	rec.mu.Lock()
	if rec.server != nil {
		rec.mu.Unlock()
		metrics.RecordServiceRegistration(iface.ID, "duplicate_service")
		return Registration{}, types.ErrDuplicateService
	}
	slot := &ServerSlot{Interface: iface, Listen: listen}
	rec.server = slot
	var toNotify []*clientWaiter
	for _, c := range rec.clients {
		if types.CompatibleWith(c.iface, iface) {
			toNotify = append(toNotify, c)
		} else if c.iface.ID == iface.ID && c.iface.Version.Major == iface.Version.Major {
			logging.Info().
				Str("component", "registry").
				Str("interface", iface.ID).
				Uint32("client_minor", c.iface.Version.Minor).
				Uint32("server_minor", iface.Version.Minor).
				Msg("minor version incompatible")
		}
	}
	rec.mu.Unlock()

	for _, c := range toNotify {
		c.onServerUpdate(slot)
	}
	metrics.RecordServiceRegistration(iface.ID, "ok")
	r.broadcast(Change{Kind: ChangeServerAdded, Interface: iface, Instance: instance})

	return Registration{Cancel: func() {
		rec.mu.Lock()
		if rec.server != slot {
			rec.mu.Unlock()
			return
		}
		rec.server = nil
		waiters := append([]*clientWaiter(nil), rec.clients...)
		rec.mu.Unlock()

		for _, c := range waiters {
			if types.CompatibleWith(c.iface, iface) {
				c.onServerUpdate(nil)
			}
		}
		r.broadcast(Change{Kind: ChangeServerRemoved, Interface: iface, Instance: instance})
	}}, nil
}

// Watch registers a Watcher for every server add/remove across the whole
// registry. Cancel removes it.
func (r *Registry) Watch(w Watcher) Registration {
	id := r.nextID.Add(1)
	r.mu.Lock()
	r.watchers[id] = w
	r.mu.Unlock()
	return Registration{Cancel: func() {
		r.mu.Lock()
		delete(r.watchers, id)
		r.mu.Unlock()
	}}
}

func (r *Registry) broadcast(c Change) {
	r.mu.Lock()
	watchers := make([]Watcher, 0, len(r.watchers))
	for _, w := range r.watchers {
		watchers = append(watchers, w)
	}
	r.mu.Unlock()
	for _, w := range watchers {
		w(c)
	}
}

// KnownServer is a snapshot entry for the currently-registered service set.
type KnownServer struct {
	Interface types.Interface
	Instance  types.Instance
}

// Snapshot returns every currently-occupied server slot, for discovery's
// "invoke once per currently-known matching service" initial dispatch.
func (r *Registry) Snapshot() []KnownServer {
	r.mu.Lock()
	keys := make([]key, 0, len(r.records))
	for k := range r.records {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	out := make([]KnownServer, 0, len(keys))
	for _, k := range keys {
		r.mu.Lock()
		rec := r.records[k]
		r.mu.Unlock()

		rec.mu.Lock()
		if rec.server != nil {
			out = append(out, KnownServer{Interface: rec.server.Interface, Instance: k.instance})
		}
		rec.mu.Unlock()
	}
	return out
}

// HasServer reports whether any server is currently registered for
// (iface.ID, iface major version, instance), used by the bridge hub to
// decide whether a client's request needs forwarding.
func (r *Registry) HasServer(iface types.Interface, instance types.Instance) bool {
	r.mu.Lock()
	rec, ok := r.records[keyOf(iface, instance)]
	r.mu.Unlock()
	if !ok {
		return false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.server != nil
}
