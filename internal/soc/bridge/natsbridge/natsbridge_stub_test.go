// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

//go:build !nats

package natsbridge

import (
	"errors"
	"testing"

	"github.com/evrhart/socrt/internal/soc/discovery"
	"github.com/evrhart/socrt/internal/soc/types"
)

func TestNewReturnsErrorWithoutNatsTag(t *testing.T) {
	if _, err := New("bridge-a", DefaultConfig("nats://127.0.0.1:4222"), nil); err == nil {
		t.Fatal("expected an error from the stub build")
	}
}

func TestStubSubscribeFindServiceIsANoOp(t *testing.T) {
	b := &Bridge{identity: "bridge-a"}
	sub := b.SubscribeFindService(types.Interface{ID: "com.example.Radio"}, nil, func(discovery.Found) {})
	sub.Cancel()
}

func TestStubRequestServiceRejects(t *testing.T) {
	b := &Bridge{identity: "bridge-a"}
	_, err := b.RequestService(types.Configuration{Interface: types.Interface{ID: "com.example.Radio"}}, "radio-1")
	if !errors.Is(err, types.ErrRequestRejected) {
		t.Fatalf("got %v, want an ErrRequestRejected-wrapping error", err)
	}
}
