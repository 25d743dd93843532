// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

package discovery

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/evrhart/socrt/internal/metrics"
	"github.com/evrhart/socrt/internal/soc/message"
	"github.com/evrhart/socrt/internal/soc/registry"
	"github.com/evrhart/socrt/internal/soc/types"
)

func radioInterface() types.Interface {
	return types.Interface{ID: "com.example.Radio", Version: types.Version{Major: 1, Minor: 0}}
}

func registerServer(t *testing.T, reg *registry.Registry, iface types.Interface, instance types.Instance) registry.Registration {
	t.Helper()
	r, err := reg.RegisterServer(iface, instance, message.ListenEndpoint{})
	if err != nil {
		t.Fatalf("RegisterServer: %v", err)
	}
	return r
}

type foundRecorder struct {
	mu    sync.Mutex
	found []Found
}

func (r *foundRecorder) onChange(f Found) {
	r.mu.Lock()
	r.found = append(r.found, f)
	r.mu.Unlock()
}

func (r *foundRecorder) snapshot() []Found {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Found(nil), r.found...)
}

func TestChangeBasedReportsPreexistingServiceImmediately(t *testing.T) {
	reg := registry.New()
	registerServer(t, reg, radioInterface(), "radio-1")

	rec := &foundRecorder{}
	iface := radioInterface()
	sub := SubscribeFindServiceChanges(reg, rec.onChange, &iface, nil, "", nil)
	defer sub.Cancel()

	got := rec.snapshot()
	if len(got) != 1 || got[0].Status != StatusAdded || got[0].Instance != "radio-1" {
		t.Fatalf("got %v, want one immediate StatusAdded for radio-1", got)
	}
}

func TestChangeBasedReportsLaterAddAndRemove(t *testing.T) {
	reg := registry.New()
	rec := &foundRecorder{}
	iface := radioInterface()
	sub := SubscribeFindServiceChanges(reg, rec.onChange, &iface, nil, "", nil)
	defer sub.Cancel()

	if len(rec.snapshot()) != 0 {
		t.Fatal("expected no immediate report before any server exists")
	}

	reg1 := registerServer(t, reg, radioInterface(), "radio-1")
	reg1.Cancel()

	got := rec.snapshot()
	if len(got) != 2 || got[0].Status != StatusAdded || got[1].Status != StatusRemoved {
		t.Fatalf("got %v, want [Added, Removed]", got)
	}
}

func TestWildcardReportsEveryLocalService(t *testing.T) {
	reg := registry.New()
	registerServer(t, reg, radioInterface(), "radio-1")
	other := types.Interface{ID: "com.example.Climate", Version: types.Version{Major: 1}}
	registerServer(t, reg, other, "climate-1")

	rec := &foundRecorder{}
	sub := SubscribeFindServiceChanges(reg, rec.onChange, nil, nil, "", nil)
	defer sub.Cancel()

	if len(rec.snapshot()) != 2 {
		t.Fatalf("got %v, want both services reported for a wildcard subscription", rec.snapshot())
	}
}

func TestWildcardSubscriptionIsNeverTracked(t *testing.T) {
	reg := registry.New()
	tracker := NewTracker()
	rec := &foundRecorder{}
	sub := SubscribeFindServiceChanges(reg, rec.onChange, nil, nil, "", tracker)
	defer sub.Cancel()

	var seen []QueryChange
	w := tracker.Watch(func(c QueryChange) { seen = append(seen, c) })
	defer w.Cancel()

	if len(seen) != 0 {
		t.Fatalf("wildcard subscription must never be tracked for bridge forwarding, got %v", seen)
	}
}

func TestConcreteSubscriptionIsTrackedWithBridgeIdentity(t *testing.T) {
	reg := registry.New()
	tracker := NewTracker()
	rec := &foundRecorder{}
	iface := radioInterface()
	sub := SubscribeFindServiceChanges(reg, rec.onChange, &iface, nil, "bridge-a", tracker)

	var seen []QueryChange
	w := tracker.Watch(func(c QueryChange) { seen = append(seen, c) })
	defer w.Cancel()

	if len(seen) != 1 || !seen[0].Added || seen[0].Query.BridgeIdentity != "bridge-a" {
		t.Fatalf("got %v, want one tracked query with bridge identity bridge-a", seen)
	}

	sub.Cancel()
	if len(seen) != 2 || seen[1].Added {
		t.Fatalf("got %v, want a removal notification after Cancel", seen)
	}
}

func TestSetBasedDeliversFullListOnEveryChange(t *testing.T) {
	reg := registry.New()
	var mu sync.Mutex
	var deliveries [][]registry.KnownServer
	sub := SubscribeFindServiceSet(reg, func(list []registry.KnownServer) {
		mu.Lock()
		deliveries = append(deliveries, append([]registry.KnownServer(nil), list...))
		mu.Unlock()
	}, radioInterface(), nil, nil)
	defer sub.Cancel()

	mu.Lock()
	if len(deliveries) != 1 || len(deliveries[0]) != 0 {
		t.Fatalf("expected one empty initial delivery, got %v", deliveries)
	}
	mu.Unlock()

	r1 := registerServer(t, reg, radioInterface(), "radio-1")
	r2 := registerServer(t, reg, radioInterface(), "radio-2")
	r1.Cancel()
	r2.Cancel()

	mu.Lock()
	defer mu.Unlock()
	if len(deliveries) != 5 {
		t.Fatalf("got %d deliveries, want 5 (initial + 2 adds + 2 removes)", len(deliveries))
	}
	if len(deliveries[1]) != 1 || len(deliveries[2]) != 2 {
		t.Fatalf("expected the list to grow to 2 entries, got %v", deliveries)
	}
	if len(deliveries[len(deliveries)-1]) != 0 {
		t.Fatal("expected the final delivery to be empty again")
	}
}

func TestChangeBasedTracksActiveSubscriptionsAndNotificationCounts(t *testing.T) {
	reg := registry.New()
	iface := radioInterface()

	activeBefore := testutil.ToFloat64(metrics.DiscoverySubscriptionsActive)
	registeredBefore := testutil.ToFloat64(metrics.DiscoveryNotificationsTotal.WithLabelValues("registered"))
	deregisteredBefore := testutil.ToFloat64(metrics.DiscoveryNotificationsTotal.WithLabelValues("deregistered"))

	rec := &foundRecorder{}
	sub := SubscribeFindServiceChanges(reg, rec.onChange, &iface, nil, "", nil)

	if got := testutil.ToFloat64(metrics.DiscoverySubscriptionsActive); got != activeBefore+1 {
		t.Fatalf("DiscoverySubscriptionsActive = %v, want %v", got, activeBefore+1)
	}

	reg1 := registerServer(t, reg, radioInterface(), "radio-1")
	reg1.Cancel()

	if got := testutil.ToFloat64(metrics.DiscoveryNotificationsTotal.WithLabelValues("registered")); got != registeredBefore+1 {
		t.Fatalf("registered notifications = %v, want %v", got, registeredBefore+1)
	}
	if got := testutil.ToFloat64(metrics.DiscoveryNotificationsTotal.WithLabelValues("deregistered")); got != deregisteredBefore+1 {
		t.Fatalf("deregistered notifications = %v, want %v", got, deregisteredBefore+1)
	}

	sub.Cancel()
	if got := testutil.ToFloat64(metrics.DiscoverySubscriptionsActive); got != activeBefore {
		t.Fatalf("DiscoverySubscriptionsActive after Cancel = %v, want %v", got, activeBefore)
	}
}

func TestReentrantCancelFromInsideCallbackDoesNotDeadlock(t *testing.T) {
	reg := registry.New()
	var sub Subscription
	done := make(chan struct{})
	iface := radioInterface()
	sub = SubscribeFindServiceChanges(reg, func(f Found) {
		if f.Status == StatusRemoved {
			return
		}
		sub.Cancel()
		close(done)
	}, &iface, nil, "", nil)

	registerServer(t, reg, radioInterface(), "radio-1")

	select {
	case <-done:
	default:
		t.Fatal("callback should have run synchronously and cancelled the subscription")
	}
}
