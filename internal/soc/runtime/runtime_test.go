// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

package runtime

import (
	"sync"
	"testing"

	"github.com/evrhart/socrt/internal/soc/bridge"
	"github.com/evrhart/socrt/internal/soc/client"
	"github.com/evrhart/socrt/internal/soc/discovery"
	"github.com/evrhart/socrt/internal/soc/payload"
	"github.com/evrhart/socrt/internal/soc/registry"
	"github.com/evrhart/socrt/internal/soc/server"
	"github.com/evrhart/socrt/internal/soc/types"
)

func radioInterface() types.Interface {
	return types.Interface{ID: "com.example.Radio", Version: types.Version{Major: 1}}
}

func noopServerCallbacks() server.Callbacks {
	return server.Callbacks{
		OnMethodCall:              func(*server.Connector, uint16, *payload.Payload, types.PosixCredentials, func(*types.MethodResult)) {},
		OnEventSubscriptionChange: func(*server.Connector, uint16, types.EventState) {},
		OnEventUpdateRequest:      func(*server.Connector, uint16) {},
	}
}

func noopClientCallbacks() client.Callbacks {
	return client.Callbacks{
		OnServiceStateChange:   func(*client.Connector, bool, types.ServerConfiguration) {},
		OnEventUpdate:          func(*client.Connector, uint16, *payload.Payload) {},
		OnEventRequestedUpdate: func(*client.Connector, uint16, *payload.Payload) {},
		OnEventPayloadAllocate: func(*client.Connector, uint16) (*payload.Payload, error) { return nil, nil },
	}
}

func TestMakeServerConnectorDefaultsProcessCredentials(t *testing.T) {
	r := New()
	s, err := r.MakeServerConnector(types.ServerConfiguration{Configuration: types.Configuration{Interface: radioInterface()}}, "radio-1", noopServerCallbacks())
	if err != nil {
		t.Fatalf("MakeServerConnector: %v", err)
	}
	want := processCredentials()
	if s.Configuration().Interface != radioInterface() {
		t.Fatalf("got interface %+v, want %+v", s.Configuration().Interface, radioInterface())
	}
	// Enable and have a client read back the credentials to confirm the
	// default arity actually wired the process's own uid/gid through.
	if err := r.EnableServer(s); err != nil {
		t.Fatalf("EnableServer: %v", err)
	}
	defer s.Disable()

	c, err := r.MakeClientConnector(types.Configuration{Interface: radioInterface()}, "radio-1", noopClientCallbacks())
	if err != nil {
		t.Fatalf("MakeClientConnector: %v", err)
	}
	defer c.Close()

	if !c.IsServiceAvailable() {
		t.Fatal("expected client to see the server as available immediately")
	}
	got, err := c.GetPeerCredentials()
	if err != nil {
		t.Fatalf("GetPeerCredentials: %v", err)
	}
	if got != want {
		t.Fatalf("got credentials %+v, want process credentials %+v", got, want)
	}
}

func TestMakeServerConnectorAsUsesExplicitCredentials(t *testing.T) {
	r := New()
	explicit := types.PosixCredentials{UID: 4242, GID: 99}
	s, err := r.MakeServerConnectorAs(types.ServerConfiguration{Configuration: types.Configuration{Interface: radioInterface()}}, "radio-1", noopServerCallbacks(), explicit)
	if err != nil {
		t.Fatalf("MakeServerConnectorAs: %v", err)
	}
	if err := r.EnableServer(s); err != nil {
		t.Fatalf("EnableServer: %v", err)
	}
	defer s.Disable()

	c, err := r.MakeClientConnectorAs(types.Configuration{Interface: radioInterface()}, "radio-1", noopClientCallbacks(), types.PosixCredentials{})
	if err != nil {
		t.Fatalf("MakeClientConnectorAs: %v", err)
	}
	defer c.Close()

	got, err := c.GetPeerCredentials()
	if err != nil {
		t.Fatalf("GetPeerCredentials: %v", err)
	}
	if got != explicit {
		t.Fatalf("got credentials %+v, want explicit %+v", got, explicit)
	}
}

func TestSubscribeFindServiceChangesReportsExistingAndLaterServers(t *testing.T) {
	r := New()

	var mu sync.Mutex
	var found []discovery.Found
	iface := radioInterface()
	sub := r.SubscribeFindServiceChanges(func(f discovery.Found) {
		mu.Lock()
		found = append(found, f)
		mu.Unlock()
	}, &iface, nil)
	defer sub.Cancel()

	s, err := r.MakeServerConnector(types.ServerConfiguration{Configuration: types.Configuration{Interface: iface}}, "radio-1", noopServerCallbacks())
	if err != nil {
		t.Fatalf("MakeServerConnector: %v", err)
	}
	if err := r.EnableServer(s); err != nil {
		t.Fatalf("EnableServer: %v", err)
	}
	defer s.Disable()

	mu.Lock()
	defer mu.Unlock()
	if len(found) != 1 || found[0].Status != discovery.StatusAdded || found[0].Instance != "radio-1" {
		t.Fatalf("got %v, want one StatusAdded report for radio-1", found)
	}
}

func TestSubscribeFindServiceSetReportsFullSnapshot(t *testing.T) {
	r := New()
	iface := radioInterface()

	s, err := r.MakeServerConnector(types.ServerConfiguration{Configuration: types.Configuration{Interface: iface}}, "radio-1", noopServerCallbacks())
	if err != nil {
		t.Fatalf("MakeServerConnector: %v", err)
	}
	if err := r.EnableServer(s); err != nil {
		t.Fatalf("EnableServer: %v", err)
	}
	defer s.Disable()

	var mu sync.Mutex
	var sets [][]registry.KnownServer
	sub := r.SubscribeFindServiceSet(func(set []registry.KnownServer) {
		mu.Lock()
		sets = append(sets, set)
		mu.Unlock()
	}, iface, nil)
	defer sub.Cancel()

	mu.Lock()
	defer mu.Unlock()
	if len(sets) != 1 || len(sets[0]) != 1 || sets[0][0].Instance != "radio-1" {
		t.Fatalf("got %v, want one snapshot containing radio-1", sets)
	}
}

type fakeTransport struct {
	mu           sync.Mutex
	requestCalls int
}

func (f *fakeTransport) SubscribeFindService(iface types.Interface, instance *types.Instance, onFound func(discovery.Found)) bridge.Subscription {
	return bridge.Subscription{Cancel: func() {}}
}

func (f *fakeTransport) RequestService(cfg types.Configuration, instance types.Instance) (bridge.Handle, error) {
	f.mu.Lock()
	f.requestCalls++
	f.mu.Unlock()
	return bridge.Handle{Close: func() {}}, nil
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requestCalls
}

func TestRegisterServiceBridgeConvergesAgainstAcquiredRequest(t *testing.T) {
	r := New()
	cfg := types.Configuration{Interface: radioInterface()}

	acquire := r.AcquireServiceRequest(cfg, "radio-1")
	defer acquire.Cancel()

	transport := &fakeTransport{}
	reg := r.RegisterServiceBridge("bridge-a", transport)
	defer reg.Cancel()

	if transport.calls() != 1 {
		t.Fatalf("got %d RequestService calls, want 1", transport.calls())
	}
}

func TestMakeClientConnectorWithNoLocalServerAcquiresBridgeRequest(t *testing.T) {
	r := New()
	cfg := types.Configuration{Interface: radioInterface()}

	transport := &fakeTransport{}
	reg := r.RegisterServiceBridge("bridge-a", transport)
	defer reg.Cancel()

	c, err := r.MakeClientConnector(cfg, "radio-1", noopClientCallbacks())
	if err != nil {
		t.Fatalf("MakeClientConnector: %v", err)
	}

	if transport.calls() != 1 {
		t.Fatalf("got %d RequestService calls after connecting with no local server, want 1", transport.calls())
	}

	c.Close()

	if transport.calls() != 1 {
		t.Fatalf("got %d RequestService calls after Close, want still 1 (no re-request)", transport.calls())
	}
}

func TestMakeClientConnectorWithLocalServerSkipsBridgeRequest(t *testing.T) {
	r := New()
	iface := radioInterface()

	s, err := r.MakeServerConnector(types.ServerConfiguration{Configuration: types.Configuration{Interface: iface}}, "radio-1", noopServerCallbacks())
	if err != nil {
		t.Fatalf("MakeServerConnector: %v", err)
	}
	if err := r.EnableServer(s); err != nil {
		t.Fatalf("EnableServer: %v", err)
	}
	defer s.Disable()

	transport := &fakeTransport{}
	reg := r.RegisterServiceBridge("bridge-a", transport)
	defer reg.Cancel()

	c, err := r.MakeClientConnector(types.Configuration{Interface: iface}, "radio-1", noopClientCallbacks())
	if err != nil {
		t.Fatalf("MakeClientConnector: %v", err)
	}
	defer c.Close()

	if transport.calls() != 0 {
		t.Fatalf("got %d RequestService calls, want 0 when a local server already exists", transport.calls())
	}
}

func TestBridgeRequestReleasedWhenLastClientCloses(t *testing.T) {
	r := New()
	cfg := types.Configuration{Interface: radioInterface()}

	var mu sync.Mutex
	closedHandles := 0
	transport := &closeTrackingTransport{onClose: func() {
		mu.Lock()
		closedHandles++
		mu.Unlock()
	}}
	reg := r.RegisterServiceBridge("bridge-a", transport)
	defer reg.Cancel()

	c1, err := r.MakeClientConnector(cfg, "radio-1", noopClientCallbacks())
	if err != nil {
		t.Fatalf("MakeClientConnector c1: %v", err)
	}
	c2, err := r.MakeClientConnector(cfg, "radio-1", noopClientCallbacks())
	if err != nil {
		t.Fatalf("MakeClientConnector c2: %v", err)
	}

	c1.Close()
	mu.Lock()
	got := closedHandles
	mu.Unlock()
	if got != 0 {
		t.Fatalf("handle closed after only one of two clients closed, want still open")
	}

	c2.Close()
	mu.Lock()
	got = closedHandles
	mu.Unlock()
	if got != 1 {
		t.Fatalf("got %d handle closes after the last client closed, want 1", got)
	}
}

type closeTrackingTransport struct {
	onClose func()
}

func (c *closeTrackingTransport) SubscribeFindService(iface types.Interface, instance *types.Instance, onFound func(discovery.Found)) bridge.Subscription {
	return bridge.Subscription{Cancel: func() {}}
}

func (c *closeTrackingTransport) RequestService(cfg types.Configuration, instance types.Instance) (bridge.Handle, error) {
	return bridge.Handle{Close: c.onClose}, nil
}

func TestWithMaxConvergenceRoundsThreadsThroughToBridgeHub(t *testing.T) {
	r := New(WithMaxConvergenceRounds(2))
	if r.maxConvergenceRounds != 2 {
		t.Fatalf("maxConvergenceRounds = %d, want 2", r.maxConvergenceRounds)
	}
	if r.bridge == nil {
		t.Fatal("expected a non-nil bridge hub")
	}
}
