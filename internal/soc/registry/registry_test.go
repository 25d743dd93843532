// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

package registry

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/evrhart/socrt/internal/metrics"
	"github.com/evrhart/socrt/internal/soc/message"
	"github.com/evrhart/socrt/internal/soc/types"
)

func testInterface(minor uint32) types.Interface {
	return types.Interface{ID: "com.example.Radio", Version: types.Version{Major: 1, Minor: minor}}
}

func TestRegisterClientBeforeServerGetsNoImmediateCallback(t *testing.T) {
	r := New()
	var got *ServerSlot
	called := false
	reg := r.RegisterClient(testInterface(0), "radio-1", func(s *ServerSlot) {
		called = true
		got = s
	})
	defer reg.Cancel()

	if called {
		t.Fatalf("expected no immediate callback with no server registered, got %+v", got)
	}
}

func TestRegisterServerNotifiesWaitingCompatibleClient(t *testing.T) {
	r := New()
	var got *ServerSlot
	reg := r.RegisterClient(testInterface(0), "radio-1", func(s *ServerSlot) { got = s })
	defer reg.Cancel()

	srvReg, err := r.RegisterServer(testInterface(2), "radio-1", message.ListenEndpoint{})
	if err != nil {
		t.Fatalf("RegisterServer() error: %v", err)
	}
	defer srvReg.Cancel()

	if got == nil {
		t.Fatal("expected the waiting client to be notified of the new server")
	}
	if got.Interface.Version.Minor != 2 {
		t.Fatalf("notified slot has minor %d, want 2", got.Interface.Version.Minor)
	}
}

func TestRegisterClientAfterServerGetsImmediateCallback(t *testing.T) {
	r := New()
	srvReg, err := r.RegisterServer(testInterface(0), "radio-1", message.ListenEndpoint{})
	if err != nil {
		t.Fatalf("RegisterServer() error: %v", err)
	}
	defer srvReg.Cancel()

	called := false
	reg := r.RegisterClient(testInterface(0), "radio-1", func(s *ServerSlot) {
		called = true
		if s == nil {
			t.Fatal("expected a non-nil slot on immediate callback")
		}
	})
	defer reg.Cancel()

	if !called {
		t.Fatal("expected an immediate synchronous callback when a compatible server already exists")
	}
}

func TestRegisterClientWithIncompatibleMinorIsNotNotified(t *testing.T) {
	r := New()
	srvReg, err := r.RegisterServer(testInterface(0), "radio-1", message.ListenEndpoint{})
	if err != nil {
		t.Fatalf("RegisterServer() error: %v", err)
	}
	defer srvReg.Cancel()

	called := false
	reg := r.RegisterClient(testInterface(1), "radio-1", func(*ServerSlot) { called = true })
	defer reg.Cancel()

	if called {
		t.Fatal("a client requiring a newer minor than the server provides should not be notified")
	}
}

func TestRegisterServerFailsOnDuplicateSlot(t *testing.T) {
	r := New()
	first, err := r.RegisterServer(testInterface(0), "radio-1", message.ListenEndpoint{})
	if err != nil {
		t.Fatalf("first RegisterServer() error: %v", err)
	}
	defer first.Cancel()

	_, err = r.RegisterServer(testInterface(0), "radio-1", message.ListenEndpoint{})
	if !errors.Is(err, types.ErrDuplicateService) {
		t.Fatalf("second RegisterServer() error = %v, want ErrDuplicateService", err)
	}
}

func TestRegisterServerRecordsServiceRegistrationMetrics(t *testing.T) {
	r := New()
	iface := testInterface(0)

	before := testutil.ToFloat64(metrics.ServiceRegistrationsTotal.WithLabelValues(iface.ID, "ok"))
	first, err := r.RegisterServer(iface, "radio-1", message.ListenEndpoint{})
	if err != nil {
		t.Fatalf("RegisterServer() error: %v", err)
	}
	defer first.Cancel()
	if after := testutil.ToFloat64(metrics.ServiceRegistrationsTotal.WithLabelValues(iface.ID, "ok")); after != before+1 {
		t.Fatalf("ok registrations = %v, want %v", after, before+1)
	}

	beforeDup := testutil.ToFloat64(metrics.ServiceRegistrationsTotal.WithLabelValues(iface.ID, "duplicate_service"))
	if _, err := r.RegisterServer(iface, "radio-1", message.ListenEndpoint{}); !errors.Is(err, types.ErrDuplicateService) {
		t.Fatalf("expected ErrDuplicateService, got %v", err)
	}
	if after := testutil.ToFloat64(metrics.ServiceRegistrationsTotal.WithLabelValues(iface.ID, "duplicate_service")); after != beforeDup+1 {
		t.Fatalf("duplicate_service registrations = %v, want %v", after, beforeDup+1)
	}
}

func TestCancelServerRegistrationNotifiesClientsOfDeparture(t *testing.T) {
	r := New()
	var lastUpdate *ServerSlot
	seen := 0
	clientReg := r.RegisterClient(testInterface(0), "radio-1", func(s *ServerSlot) {
		seen++
		lastUpdate = s
	})
	defer clientReg.Cancel()

	srvReg, err := r.RegisterServer(testInterface(0), "radio-1", message.ListenEndpoint{})
	if err != nil {
		t.Fatalf("RegisterServer() error: %v", err)
	}

	srvReg.Cancel()

	if seen != 2 {
		t.Fatalf("client was notified %d times, want 2 (add then remove)", seen)
	}
	if lastUpdate != nil {
		t.Fatal("expected the departure notification to carry a nil slot")
	}
}

func TestCancelServerRegistrationIsIdempotent(t *testing.T) {
	r := New()
	srvReg, err := r.RegisterServer(testInterface(0), "radio-1", message.ListenEndpoint{})
	if err != nil {
		t.Fatalf("RegisterServer() error: %v", err)
	}
	srvReg.Cancel()
	srvReg.Cancel()

	again, err := r.RegisterServer(testInterface(0), "radio-1", message.ListenEndpoint{})
	if err != nil {
		t.Fatalf("re-registering after cancel failed: %v", err)
	}
	again.Cancel()
}

func TestCancelClientRegistrationRemovesItFromWaiters(t *testing.T) {
	r := New()
	called := false
	clientReg := r.RegisterClient(testInterface(0), "radio-1", func(*ServerSlot) { called = true })
	clientReg.Cancel()

	srvReg, err := r.RegisterServer(testInterface(0), "radio-1", message.ListenEndpoint{})
	if err != nil {
		t.Fatalf("RegisterServer() error: %v", err)
	}
	defer srvReg.Cancel()

	if called {
		t.Fatal("a cancelled client registration should not be notified of a later server")
	}
}

func TestWatchReceivesAddAndRemoveAcrossAllInstances(t *testing.T) {
	r := New()
	var kinds []ChangeKind
	watchReg := r.Watch(func(c Change) { kinds = append(kinds, c.Kind) })
	defer watchReg.Cancel()

	srvReg, err := r.RegisterServer(testInterface(0), "radio-1", message.ListenEndpoint{})
	if err != nil {
		t.Fatalf("RegisterServer() error: %v", err)
	}
	srvReg.Cancel()

	if len(kinds) != 2 || kinds[0] != ChangeServerAdded || kinds[1] != ChangeServerRemoved {
		t.Fatalf("watcher saw %v, want [ChangeServerAdded ChangeServerRemoved]", kinds)
	}
}

func TestWatchCancelStopsFurtherNotifications(t *testing.T) {
	r := New()
	count := 0
	watchReg := r.Watch(func(Change) { count++ })
	watchReg.Cancel()

	srvReg, err := r.RegisterServer(testInterface(0), "radio-1", message.ListenEndpoint{})
	if err != nil {
		t.Fatalf("RegisterServer() error: %v", err)
	}
	defer srvReg.Cancel()

	if count != 0 {
		t.Fatalf("cancelled watcher was still notified %d times", count)
	}
}

func TestSnapshotReflectsRegisteredServers(t *testing.T) {
	r := New()
	if snap := r.Snapshot(); len(snap) != 0 {
		t.Fatalf("expected an empty snapshot, got %+v", snap)
	}

	srvReg, err := r.RegisterServer(testInterface(3), "radio-1", message.ListenEndpoint{})
	if err != nil {
		t.Fatalf("RegisterServer() error: %v", err)
	}
	defer srvReg.Cancel()

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Snapshot() returned %d entries, want 1", len(snap))
	}
	if snap[0].Instance != "radio-1" || snap[0].Interface.Version.Minor != 3 {
		t.Fatalf("Snapshot()[0] = %+v, want instance radio-1 minor 3", snap[0])
	}
}

func TestHasServerReflectsCurrentRegistration(t *testing.T) {
	r := New()
	if r.HasServer(testInterface(0), "radio-1") {
		t.Fatal("expected HasServer false before any registration")
	}

	srvReg, err := r.RegisterServer(testInterface(0), "radio-1", message.ListenEndpoint{})
	if err != nil {
		t.Fatalf("RegisterServer() error: %v", err)
	}
	if !r.HasServer(testInterface(0), "radio-1") {
		t.Fatal("expected HasServer true once a server is registered")
	}

	srvReg.Cancel()
	if r.HasServer(testInterface(0), "radio-1") {
		t.Fatal("expected HasServer false after the server cancels its registration")
	}
}
