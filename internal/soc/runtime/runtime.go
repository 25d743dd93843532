// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

// Package runtime is the public factory: it wires the registry, the
// discovery tracker, and the bridge hub together once, and hands out client
// connectors, server connectors, find subscriptions, and bridge
// registrations against that shared state. Nothing below this package
// imports it; this is the only place that imports every other
// internal/soc/* package.
package runtime

import (
	"github.com/evrhart/socrt/internal/soc/authz"
	"github.com/evrhart/socrt/internal/soc/bridge"
	"github.com/evrhart/socrt/internal/soc/client"
	"github.com/evrhart/socrt/internal/soc/discovery"
	"github.com/evrhart/socrt/internal/soc/registry"
	"github.com/evrhart/socrt/internal/soc/server"
	"github.com/evrhart/socrt/internal/soc/types"
)

// Runtime is the handle returned by New. It owns one service registry, one
// discovery tracker, and one bridge hub; every connector and subscription
// made through it shares that state.
type Runtime struct {
	registry *registry.Registry
	tracker  *discovery.Tracker
	bridge   *bridge.Hub
	enforcer *authz.Enforcer

	maxConvergenceRounds int
}

// Option configures a Runtime at construction time.
type Option func(*Runtime)

// WithEnforcer attaches an authz.Enforcer that gates every call_method on
// every server connector this runtime builds. Without it, server connectors
// allow every call, matching internal/soc/server's own nil-enforcer default.
func WithEnforcer(enforcer *authz.Enforcer) Option {
	return func(r *Runtime) { r.enforcer = enforcer }
}

// WithMaxConvergenceRounds overrides the bridge hub's reconcileRequests
// round cap (default 8). n <= 0 is ignored.
func WithMaxConvergenceRounds(n int) Option {
	return func(r *Runtime) { r.maxConvergenceRounds = n }
}

// New builds a Runtime. This is create_runtime: there is exactly one
// registry, tracker, and bridge hub per Runtime, and every connector and
// subscription obtained from it is wired against that shared state.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		registry: registry.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.tracker = discovery.NewTracker()
	r.bridge = bridge.New(r.tracker, bridge.WithMaxConvergenceRounds(r.maxConvergenceRounds))
	return r
}

// Registry returns the runtime's underlying service registry, for callers
// that need registry-level introspection (internal/metrics, the admin
// surface) rather than a connector.
func (r *Runtime) Registry() *registry.Registry { return r.registry }

// MakeClientConnector is make_client_connector using the calling process's
// own POSIX credentials (os.Getuid/os.Getgid where supported, the zero
// value elsewhere).
func (r *Runtime) MakeClientConnector(cfg types.Configuration, instance types.Instance, cb client.Callbacks) (*client.Connector, error) {
	return r.MakeClientConnectorAs(cfg, instance, cb, processCredentials())
}

// MakeClientConnectorAs is make_client_connector's explicit-credentials
// arity. Per spec.md §4.8 forwarding rule 1, a connector that finds no local
// server at registration time acquires a bridge service request for
// (cfg, instance) on every registered bridge; that hold is released when the
// connector closes, regardless of whether a server — local or bridged — ever
// shows up in between.
func (r *Runtime) MakeClientConnectorAs(cfg types.Configuration, instance types.Instance, cb client.Callbacks, credentials types.PosixCredentials) (*client.Connector, error) {
	c, err := client.New(r.registry, cfg, instance, cb, credentials)
	if err != nil {
		return nil, err
	}
	if !r.registry.HasServer(cfg.Interface, instance) {
		req := r.bridge.AcquireServiceRequest(cfg, instance)
		c.AttachBridgeRequest(req.Cancel)
	}
	return c, nil
}

// MakeServerConnector is make_server_connector using the calling process's
// own POSIX credentials. The returned connector starts disabled; call
// Enable(r.Registry()) to publish it.
func (r *Runtime) MakeServerConnector(cfg types.ServerConfiguration, instance types.Instance, cb server.Callbacks) (*server.Connector, error) {
	return r.MakeServerConnectorAs(cfg, instance, cb, processCredentials())
}

// MakeServerConnectorAs is make_server_connector's explicit-credentials
// arity.
func (r *Runtime) MakeServerConnectorAs(cfg types.ServerConfiguration, instance types.Instance, cb server.Callbacks, credentials types.PosixCredentials) (*server.Connector, error) {
	return server.New(cfg, instance, cb, credentials, r.enforcer)
}

// EnableServer publishes s against this runtime's registry. A thin
// convenience wrapper: s.Enable(r.Registry()) works identically.
func (r *Runtime) EnableServer(s *server.Connector) error {
	return s.Enable(r.registry)
}

// SubscribeFindServiceChanges is subscribe_find_service's change-based
// variant: onChange fires once per currently-known matching server (if any)
// and again on every subsequent add/remove, serialized per subscription.
// iface nil means every interface; instance nil means every instance of a
// fixed interface. The query is tracked with an empty bridge identity, as
// an ordinary local subscriber.
func (r *Runtime) SubscribeFindServiceChanges(onChange func(discovery.Found), iface *types.Interface, instance *types.Instance) discovery.Subscription {
	return discovery.SubscribeFindServiceChanges(r.registry, onChange, iface, instance, "", r.tracker)
}

// SubscribeFindServiceSet is subscribe_find_service's set-based variant:
// onResultSet fires with the complete current matching set on every change.
func (r *Runtime) SubscribeFindServiceSet(onResultSet func([]registry.KnownServer), iface types.Interface, instance *types.Instance) discovery.Subscription {
	return discovery.SubscribeFindServiceSet(r.registry, onResultSet, iface, instance, r.tracker)
}

// RegisterServiceBridge is register_service_bridge: it wires transport into
// the bridge hub under identity, subscribing it to every current and future
// concrete find query placed by someone other than itself, and converging it
// against every service request already acquired through this runtime.
func (r *Runtime) RegisterServiceBridge(identity string, transport bridge.Transport) bridge.Registration {
	return r.bridge.RegisterBridge(identity, transport)
}

// AcquireServiceRequest is the refcounted primitive a client connector
// lacking a local server uses to ask every registered bridge to
// request_service the same (configuration, instance): the first caller to
// acquire a given key triggers the request_service calls, and the last
// caller to release it tears them down.
func (r *Runtime) AcquireServiceRequest(cfg types.Configuration, instance types.Instance) bridge.Registration {
	return r.bridge.AcquireServiceRequest(cfg, instance)
}
