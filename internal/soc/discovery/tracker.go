// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

package discovery

import (
	"sync"
	"sync/atomic"

	"github.com/evrhart/socrt/internal/soc/types"
)

// Query describes one active subscribe_find_service call naming a concrete
// interface, for internal/soc/bridge to learn what it must ask its bridges
// about. Wildcard subscriptions (nil Interface) are never tracked here: per
// spec.md §4.8, a wildcard find subscription only ever sees local services
// and is never forwarded.
type Query struct {
	Interface      types.Interface
	Instance       *types.Instance
	BridgeIdentity string

	// Report delivers one bridge-discovered service straight back into the
	// subscription that placed this query, through that subscription's own
	// serialization and (for the set-based form) its own result-set
	// bookkeeping. internal/soc/bridge calls this for every service a
	// bridge's subscribe_find_service reports, instead of ever touching the
	// registry: a bridge-discovered service is not a connectable local
	// server, so it must never occupy a registry server slot.
	Report func(Found)
}

// QueryChange is delivered to a Tracker watcher.
type QueryChange struct {
	Added bool
	Query Query
	ID    uint64
}

// Tracker collects the concrete-interface subscribe_find_service calls
// currently active across a Registry, independent of discovery's own
// change/set delivery to their callers. internal/soc/bridge holds one
// Tracker per Registry and watches it to decide which bridges to ask about
// which queries, and to apply the no-loop bridgeIdentity exclusion.
type Tracker struct {
	mu       sync.Mutex
	queries  map[uint64]Query
	watchers map[uint64]func(QueryChange)
	nextID   atomic.Uint64
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{queries: make(map[uint64]Query), watchers: make(map[uint64]func(QueryChange))}
}

// Watch registers a watcher for every query add/remove. It is immediately
// invoked once per currently-active query with Added=true before Watch
// returns, mirroring the Registry's own "notify about pre-existing state"
// contract, so a newly-registered bridge learns about every pre-existing
// active request without a race against concurrently-arriving ones.
func (t *Tracker) Watch(fn func(QueryChange)) QueryRegistration {
	id := t.nextID.Add(1)

	t.mu.Lock()
	t.watchers[id] = fn
	existing := make([]QueryChange, 0, len(t.queries))
	for qid, q := range t.queries {
		existing = append(existing, QueryChange{Added: true, Query: q, ID: qid})
	}
	t.mu.Unlock()

	for _, c := range existing {
		fn(c)
	}

	return QueryRegistration{cancel: func() {
		t.mu.Lock()
		delete(t.watchers, id)
		t.mu.Unlock()
	}}
}

func (t *Tracker) Add(q Query) uint64 {
	id := t.nextID.Add(1)

	t.mu.Lock()
	t.queries[id] = q
	watchers := make([]func(QueryChange), 0, len(t.watchers))
	for _, w := range t.watchers {
		watchers = append(watchers, w)
	}
	t.mu.Unlock()

	for _, w := range watchers {
		w(QueryChange{Added: true, Query: q, ID: id})
	}
	return id
}

func (t *Tracker) Remove(id uint64) {
	t.mu.Lock()
	q, ok := t.queries[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.queries, id)
	watchers := make([]func(QueryChange), 0, len(t.watchers))
	for _, w := range t.watchers {
		watchers = append(watchers, w)
	}
	t.mu.Unlock()

	for _, w := range watchers {
		w(QueryChange{Added: false, Query: q, ID: id})
	}
}

type QueryRegistration struct {
	cancel func()
}

// Cancel removes the watcher.
func (r QueryRegistration) Cancel() { r.cancel() }
