// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

// Package reftoken provides a shared guard that runs a single completion
// action once every strong holder has released it. Endpoints carry a strong
// Token to keep their target connector alive; asynchronous callbacks (e.g. a
// method reply racing a dropped invocation handle) carry a Weak instead, and
// must Upgrade before touching the target, so a dying connector is never
// called into after teardown begins.
package reftoken

import "sync"

type shared struct {
	mu     sync.Mutex
	count  int
	fired  bool
	onZero func()
}

// Token is a strong reference. The holder must call Release exactly once
// when done with it; Clone for every additional holder.
type Token struct {
	s *shared
}

// Weak is a non-owning reference that may be Upgraded to a Token as long as
// at least one strong Token is still outstanding.
type Weak struct {
	s *shared
}

// New creates a Token with one outstanding strong reference. onZero runs,
// at most once, the moment the last strong reference is released.
func New(onZero func()) *Token {
	return &Token{s: &shared{count: 1, onZero: onZero}}
}

// Clone returns a new strong reference sharing this token's completion
// action, incrementing the outstanding count.
func (t *Token) Clone() *Token {
	t.s.mu.Lock()
	t.s.count++
	t.s.mu.Unlock()
	return &Token{s: t.s}
}

// Weak returns a weak reference to the same guard.
func (t *Token) Weak() Weak {
	return Weak{s: t.s}
}

// Release drops this strong reference. When the count reaches zero the
// completion action runs exactly once, outside the guard's lock.
func (t *Token) Release() {
	t.s.mu.Lock()
	t.s.count--
	fire := t.s.count == 0 && !t.s.fired
	if fire {
		t.s.fired = true
	}
	t.s.mu.Unlock()
	if fire && t.s.onZero != nil {
		t.s.onZero()
	}
}

// Upgrade attempts to obtain a strong Token. It fails once the last strong
// holder has released (the completion action has already run, or is
// running).
func (w Weak) Upgrade() (*Token, bool) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	if w.s.fired || w.s.count == 0 {
		return nil, false
	}
	w.s.count++
	return &Token{s: w.s}, true
}
