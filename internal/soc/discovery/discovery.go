// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

// Package discovery implements subscribe_find_service in its two forms
// (change-based and legacy set-based) over internal/soc/registry's watcher
// feed, and tracks which currently-active subscriptions name a concrete
// interface so internal/soc/bridge can learn what to forward without
// discovery importing bridge.
package discovery

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/evrhart/socrt/internal/metrics"
	"github.com/evrhart/socrt/internal/soc/deadlock"
	"github.com/evrhart/socrt/internal/soc/registry"
	"github.com/evrhart/socrt/internal/soc/types"
)

// Status distinguishes why OnChange fired for a service.
type Status int

const (
	StatusAdded Status = iota
	StatusRemoved
)

func notificationKind(status Status) string {
	if status == StatusRemoved {
		return "deregistered"
	}
	return "registered"
}

// Found is one change-based discovery notification.
type Found struct {
	Interface types.Interface
	Instance  types.Instance
	Status    Status
}

// Subscription is returned by both subscribe_find_service variants.
// Cancel must be called exactly once.
type Subscription struct {
	Cancel func()
}

// callbackGate serializes callback dispatch for one subscription, except
// when the dispatch is re-entrant on the same goroutine (a subscription
// torn down from inside its own callback), in which case the lock is
// skipped rather than deadlocking.
type callbackGate struct {
	mu     sync.Mutex
	owner  atomic.Pointer[int]
}

func (g *callbackGate) run(fn func()) {
	id := deadlock.Current()
	if g.owner.Load() == id {
		fn()
		return
	}
	g.mu.Lock()
	g.owner.Store(id)
	defer func() {
		g.owner.Store(nil)
		g.mu.Unlock()
	}()
	fn()
}

func matches(iface *types.Interface, instance *types.Instance, ks registry.KnownServer) bool {
	if iface != nil && !ks.Interface.Equal(*iface) {
		return false
	}
	if instance != nil && ks.Instance != *instance {
		return false
	}
	return true
}

// SubscribeFindServiceChanges is the change-based subscribe_find_service: it
// invokes onChange once per currently-known matching service with
// StatusAdded, then exactly once per subsequent add/remove transition. A nil
// iface is a wildcard that reports only local services and is excluded from
// bridge forwarding; bridgeIdentity, when non-empty, marks the caller as a
// bridge for the Hub's no-loop bookkeeping (see internal/soc/bridge).
// tracker may be nil, meaning this subscription is never offered to bridges
// for forwarding; a wildcard subscription is never tracked, whatever tracker
// is passed.
func SubscribeFindServiceChanges(reg *registry.Registry, onChange func(Found), iface *types.Interface, instance *types.Instance, bridgeIdentity string, tracker *Tracker) Subscription {
	gate := &callbackGate{}

	watchReg := reg.Watch(func(c registry.Change) {
		if !matches(iface, instance, registry.KnownServer{Interface: c.Interface, Instance: c.Instance}) {
			return
		}
		status := StatusAdded
		if c.Kind == registry.ChangeServerRemoved {
			status = StatusRemoved
		}
		metrics.RecordDiscoveryNotification(notificationKind(status))
		gate.run(func() { onChange(Found{Interface: c.Interface, Instance: c.Instance, Status: status}) })
	})

	for _, ks := range reg.Snapshot() {
		if matches(iface, instance, ks) {
			ks := ks
			gate.run(func() { onChange(Found{Interface: ks.Interface, Instance: ks.Instance, Status: StatusAdded}) })
		}
	}

	metrics.DiscoverySubscriptionsActive.Inc()

	var queryID uint64
	var tracked bool
	if tracker != nil && iface != nil {
		report := func(f Found) {
			metrics.RecordDiscoveryNotification(notificationKind(f.Status))
			gate.run(func() { onChange(f) })
		}
		queryID = tracker.Add(Query{Interface: *iface, Instance: instance, BridgeIdentity: bridgeIdentity, Report: report})
		tracked = true
	}

	return Subscription{Cancel: func() {
		watchReg.Cancel()
		if tracked {
			tracker.Remove(queryID)
		}
		metrics.DiscoverySubscriptionsActive.Dec()
	}}
}

// SubscribeFindServiceSet is the legacy set-based subscribe_find_service: it
// maintains an internally-ordered list of matching services and invokes
// onResultSet with the full current list on every change, and once
// immediately on subscribe (possibly with an empty list). tracker may be
// nil, meaning this subscription is never offered to bridges for
// forwarding.
func SubscribeFindServiceSet(reg *registry.Registry, onResultSet func([]registry.KnownServer), iface types.Interface, instance *types.Instance, tracker *Tracker) Subscription {
	gate := &callbackGate{}

	var mu sync.Mutex
	set := map[registry.KnownServer]struct{}{}

	deliver := func() {
		mu.Lock()
		list := make([]registry.KnownServer, 0, len(set))
		for ks := range set {
			list = append(list, ks)
		}
		mu.Unlock()
		sort.Slice(list, func(i, j int) bool {
			if list[i].Instance != list[j].Instance {
				return list[i].Instance < list[j].Instance
			}
			return list[i].Interface.Version.Minor < list[j].Interface.Version.Minor
		})
		gate.run(func() { onResultSet(list) })
	}

	watchReg := reg.Watch(func(c registry.Change) {
		ks := registry.KnownServer{Interface: c.Interface, Instance: c.Instance}
		if !matches(&iface, instance, ks) {
			return
		}
		status := StatusAdded
		mu.Lock()
		switch c.Kind {
		case registry.ChangeServerAdded:
			set[ks] = struct{}{}
		case registry.ChangeServerRemoved:
			status = StatusRemoved
			delete(set, ks)
		}
		mu.Unlock()
		metrics.RecordDiscoveryNotification(notificationKind(status))
		deliver()
	})

	mu.Lock()
	for _, ks := range reg.Snapshot() {
		if matches(&iface, instance, ks) {
			set[ks] = struct{}{}
		}
	}
	mu.Unlock()
	deliver()

	metrics.DiscoverySubscriptionsActive.Inc()

	var queryID uint64
	var tracked bool
	if tracker != nil {
		report := func(f Found) {
			mu.Lock()
			ks := registry.KnownServer{Interface: f.Interface, Instance: f.Instance}
			switch f.Status {
			case StatusAdded:
				set[ks] = struct{}{}
			case StatusRemoved:
				delete(set, ks)
			}
			mu.Unlock()
			metrics.RecordDiscoveryNotification(notificationKind(f.Status))
			deliver()
		}
		queryID = tracker.Add(Query{Interface: iface, Instance: instance, Report: report})
		tracked = true
	}

	return Subscription{Cancel: func() {
		watchReg.Cancel()
		if tracked {
			tracker.Remove(queryID)
		}
		metrics.DiscoverySubscriptionsActive.Dec()
	}}
}
