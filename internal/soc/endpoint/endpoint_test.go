// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

package endpoint

import (
	"sync/atomic"
	"testing"

	"github.com/evrhart/socrt/internal/soc/reftoken"
)

func TestZeroValueEndpointIsZero(t *testing.T) {
	var e Endpoint[int, int]
	if !e.Zero() {
		t.Fatal("zero-value Endpoint should report Zero() true")
	}
}

func TestNewEndpointIsNotZero(t *testing.T) {
	target := FuncReceiver[int, int](func(m int) int { return m })
	e := New[int, int](target, reftoken.New(func() {}))
	if e.Zero() {
		t.Fatal("constructed Endpoint should report Zero() false")
	}
}

func TestSendForwardsSynchronouslyAndReturnsResult(t *testing.T) {
	target := FuncReceiver[string, int](func(m string) int { return len(m) })
	e := New[string, int](target, reftoken.New(func() {}))

	got := e.Send("hello")
	if got != 5 {
		t.Fatalf("Send() = %d, want 5", got)
	}
}

func TestReleaseDropsTokenExactlyOnce(t *testing.T) {
	var fired atomic.Int32
	tok := reftoken.New(func() { fired.Add(1) })
	e := New[int, int](FuncReceiver[int, int](func(m int) int { return m }), tok)

	e.Release()
	if fired.Load() != 1 {
		t.Fatalf("onZero fired %d times, want 1", fired.Load())
	}
}

func TestReleaseOnNilTokenIsSafe(t *testing.T) {
	e := Endpoint[int, int]{}
	e.Release()
}

func TestFuncReceiverAdaptsPlainFunction(t *testing.T) {
	var fr Receiver[int, string] = FuncReceiver[int, string](func(m int) string {
		if m > 0 {
			return "positive"
		}
		return "non-positive"
	})

	if fr.Receive(5) != "positive" {
		t.Fatal("expected FuncReceiver to forward to the wrapped function")
	}
}
