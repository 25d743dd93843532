// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the socrt runtime and its demo host.
// This package instruments:
// - connector lifecycle (clients, servers, subscriptions)
// - event and method-call traffic through the registry
// - the NATS bridge's forwarding and circuit-breaker behavior
// - the deadlock detector's fatal aborts

var (
	// Connector Lifecycle Metrics

	ClientConnectorsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "soc_client_connectors_active",
			Help: "Current number of live client connectors",
		},
	)

	ServerConnectorsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "soc_server_connectors_active",
			Help: "Current number of enabled server connectors, by interface",
		},
		[]string{"interface"},
	)

	ServiceRegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soc_service_registrations_total",
			Help: "Total number of server enable attempts",
		},
		[]string{"interface", "result"}, // result: "ok", "duplicate_service"
	)

	ClientConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soc_client_connections_total",
			Help: "Total number of client-to-server connect events",
		},
		[]string{"interface"},
	)

	// Event Traffic Metrics

	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soc_events_published_total",
			Help: "Total number of update_event calls",
		},
		[]string{"interface", "event"},
	)

	EventFanoutDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "soc_event_fanout_duration_seconds",
			Help:    "Duration of delivering one published event to its subscribers",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"interface", "event"},
	)

	EventSubscribersActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "soc_event_subscribers_active",
			Help: "1 while an event has at least one subscriber, 0 otherwise",
		},
		[]string{"interface", "event"},
	)

	// Method Call Metrics

	MethodCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soc_method_calls_total",
			Help: "Total number of call_method invocations",
		},
		[]string{"interface", "method", "result"}, // result: "ok", "rejected", "not_available", "permission_not_allowed", "malformed_payload"
	)

	MethodCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "soc_method_call_duration_seconds",
			Help:    "Duration of a call_method round trip",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"interface", "method"},
	)

	// Discovery Metrics

	DiscoverySubscriptionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "soc_discovery_subscriptions_active",
			Help: "Current number of active subscribe_find_service registrations",
		},
	)

	DiscoveryNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soc_discovery_notifications_total",
			Help: "Total number of find_service callback invocations",
		},
		[]string{"kind"}, // kind: "registered", "deregistered"
	)

	// Bridge Metrics

	BridgeForwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soc_bridge_forwarded_total",
			Help: "Total number of service announcements forwarded across the bridge",
		},
		[]string{"direction"}, // direction: "inbound", "outbound"
	)

	BridgeConvergenceRounds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "soc_bridge_convergence_rounds",
			Help:    "Number of snapshot/retry rounds a bridge forwarding pass took to converge",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 16},
		},
	)

	BridgeCircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "soc_bridge_circuit_breaker_state",
			Help: "Bridge transport circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"subject"},
	)

	BridgeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soc_bridge_requests_total",
			Help: "Total number of requests sent through the NATS bridge transport",
		},
		[]string{"subject", "result"}, // result: "success", "failure", "rejected"
	)

	// Deadlock Detector Metrics

	DeadlockAbortsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "soc_deadlock_aborts_total",
			Help: "Total number of fatal aborts raised by the deadlock detector",
		},
	)

	// System Metrics

	RuntimeInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "soc_runtime_info",
			Help: "Runtime build information",
		},
		[]string{"version", "go_version"},
	)

	RuntimeUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "soc_runtime_uptime_seconds",
			Help: "Runtime host uptime in seconds",
		},
	)
)

// RecordMethodCall records the outcome and latency of a call_method round trip.
func RecordMethodCall(iface, method, result string, duration time.Duration) {
	MethodCallsTotal.WithLabelValues(iface, method, result).Inc()
	MethodCallDuration.WithLabelValues(iface, method).Observe(duration.Seconds())
}

// RecordEventPublish records a published event and how long fan-out to its
// subscribers took.
func RecordEventPublish(iface, event string, duration time.Duration) {
	EventsPublishedTotal.WithLabelValues(iface, event).Inc()
	EventFanoutDuration.WithLabelValues(iface, event).Observe(duration.Seconds())
}

// RecordServiceRegistration records a server enable attempt.
func RecordServiceRegistration(iface, result string) {
	ServiceRegistrationsTotal.WithLabelValues(iface, result).Inc()
}

// RecordDiscoveryNotification records a find_service callback invocation.
func RecordDiscoveryNotification(kind string) {
	DiscoveryNotificationsTotal.WithLabelValues(kind).Inc()
}

// RecordBridgeForward records one direction of bridge forwarding traffic.
func RecordBridgeForward(direction string) {
	BridgeForwardedTotal.WithLabelValues(direction).Inc()
}

// RecordBridgeRequest records the outcome of a bridge transport request.
func RecordBridgeRequest(subject, result string) {
	BridgeRequestsTotal.WithLabelValues(subject, result).Inc()
}

// RecordDeadlockAbort records a fatal abort raised by the deadlock detector.
func RecordDeadlockAbort() {
	DeadlockAbortsTotal.Inc()
}
