// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

// Package deadlock detects a connector being torn down from inside one of
// its own user callbacks on the same goroutine — a guaranteed deadlock
// against the "wait for all callbacks to finish" teardown contract, since
// that goroutine would then block waiting on itself.
//
// Go has no portable OS thread identity, and goroutines migrate between
// threads, so this package keys on goroutine-local identity instead: a
// unique token pushed onto the detector's set for the lifetime of a single
// callback invocation via Enter, checked by Teardown before a connector
// blocks waiting for in-flight callbacks to drain.
package deadlock

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"

	"github.com/evrhart/socrt/internal/logging"
	"github.com/evrhart/socrt/internal/metrics"
)

// callerID identifies "whoever is currently calling into the detector" for
// the duration of one callback dispatch. Each Enter call gets its own
// pointer-identity token; re-entrant Enter calls on the logical call stack of
// the same dispatch share the token that was pushed when that dispatch began.
type callerID = *int

// Detector tracks which logical call chains are currently executing inside a
// connector's user callbacks.
type Detector struct {
	mu      sync.Mutex
	active  map[callerID]int // refcount, supports nested Enter within one dispatch
	Context string           // "interface/instance", set once at construction, for diagnostics
}

// New creates a detector for the connector identified by context (typically
// "<interface id>/<instance>").
func New(context string) *Detector {
	return &Detector{active: make(map[callerID]int), Context: context}
}

// Guard marks one callback invocation as in-progress until Release is
// called. The caller must defer Release immediately after Enter.
type Guard struct {
	d  *Detector
	id callerID
}

// Enter records the calling chain as being inside a user callback and
// returns a Guard whose Release must run when the callback returns.
// dispatchID identifies the logical call chain: pass the same dispatchID
// across nested Enter calls that happen within one synchronous dispatch (so
// a callback that re-enters the runtime on the same goroutine is recognized
// as the same chain), and a freshly allocated one for each new top-level
// dispatch.
func (d *Detector) Enter(dispatchID *int) Guard {
	d.mu.Lock()
	d.active[dispatchID]++
	d.mu.Unlock()
	return Guard{d: d, id: dispatchID}
}

// Release pops this callback invocation.
func (g Guard) Release() {
	g.d.mu.Lock()
	g.d.active[g.id]--
	if g.d.active[g.id] <= 0 {
		delete(g.d.active, g.id)
	}
	g.d.mu.Unlock()
}

// Active reports whether dispatchID is currently marked as executing inside
// a callback.
func (d *Detector) Active(dispatchID *int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active[dispatchID] > 0
}

// Teardown must be called immediately before a connector blocks waiting for
// outstanding callbacks to finish. If dispatchID identifies the chain
// currently running a callback on this goroutine, destroying the connector
// from here would deadlock forever against that wait, so Teardown logs one
// diagnostic line and aborts the process.
//
// dispatchID may be nil when teardown is not happening from inside any
// dispatch (the common case); Teardown is then a no-op.
func (d *Detector) Teardown(dispatchID *int) {
	if dispatchID == nil {
		return
	}
	if !d.Active(dispatchID) {
		return
	}
	logging.Error().
		Str("component", "deadlock-detector").
		Str("connector", d.Context).
		Msg("connector destroyed from within its own callback; aborting to avoid deadlock")
	metrics.RecordDeadlockAbort()
	abort()
}

// goroutineTokens maps a goroutine's runtime id to the *int identity Current
// hands back for it. Entries are never evicted: goroutine ids are reused by
// the runtime once a goroutine exits, so a stale entry just gets reattached
// to whichever goroutine the id is handed to next, which is harmless since
// Teardown only ever asks "is this id's dispatch active right now".
var goroutineTokens sync.Map // map[uint64]*int

// Current returns the dispatch identity for the calling goroutine: stable
// across nested calls made synchronously within one top-level dispatch (they
// all run on the same goroutine, so they all resolve to the same token), but
// distinct from every other goroutine's. Connectors call this once per
// top-level message delivery, immediately before Enter, and again from
// Close/Disable immediately before Teardown; they never need to thread the
// token through their own call chains by hand.
func Current() *int {
	id := goroutineID()
	if v, ok := goroutineTokens.Load(id); ok {
		return v.(*int)
	}
	token := new(int)
	actual, _ := goroutineTokens.LoadOrStore(id, token)
	return actual.(*int)
}

// goroutineID parses the numeric id out of the calling goroutine's own stack
// trace header ("goroutine 123 [running]: ..."). Go deliberately exposes no
// supported API for this; runtime.Stack is the smallest portable way to get
// it, and it is only ever used here to distinguish "the same call chain" from
// "some other goroutine", never as a stable long-lived identifier.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

// abort is the process-terminating call, overridable so tests can observe a
// detected deadlock (the Go analogue of EXPECT_DEATH) without killing the
// test binary. Production callers leave it at its platform default (see
// deadlock_unix.go / deadlock_windows.go): SIGABRT on unix, os.Exit(134) on
// windows.
var abort = defaultAbort
