// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

//go:build !nats

package natsbridge

import (
	"fmt"

	"github.com/evrhart/socrt/internal/soc/bridge"
	"github.com/evrhart/socrt/internal/soc/discovery"
	"github.com/evrhart/socrt/internal/soc/types"
)

// Bridge is a stub when NATS dependencies are not available.
// Build with -tags=nats to enable the real Watermill/NATS transport.
type Bridge struct {
	identity string
}

// New returns an error when NATS dependencies are not available.
func New(identity string, cfg Config, logger interface{}) (*Bridge, error) {
	return nil, fmt.Errorf("natsbridge not available: build with -tags=nats")
}

// Identity returns the bridge identity this stub was constructed with.
func (b *Bridge) Identity() string { return b.identity }

// SubscribeFindService is a stub that reports nothing and returns a no-op
// subscription.
func (b *Bridge) SubscribeFindService(iface types.Interface, instance *types.Instance, onFound func(discovery.Found)) bridge.Subscription {
	return bridge.Subscription{Cancel: func() {}}
}

// RequestService is a stub that always rejects.
func (b *Bridge) RequestService(cfg types.Configuration, instance types.Instance) (bridge.Handle, error) {
	return bridge.Handle{}, fmt.Errorf("%w: natsbridge not available, build with -tags=nats", types.ErrRequestRejected)
}

// Close is a no-op stub.
func (b *Bridge) Close() error {
	return nil
}
