// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

/*
Package metrics provides Prometheus metrics collection and export for the
socrt runtime and its demo host.

# Overview

The package instruments:
  - connector lifecycle: active client/server connectors, enable/duplicate outcomes
  - event traffic: publishes, subscriber counts, fan-out latency
  - method calls: outcome and latency by interface and method
  - discovery: active subscriptions, find_service notifications
  - the NATS bridge: forwarded announcements, convergence rounds, circuit
    breaker state, per-subject request outcomes
  - the deadlock detector: fatal abort count

# Metrics Endpoint

Metrics are exposed at /metrics in Prometheus text format by the demo host's
admin HTTP server (internal/admin), via promhttp.Handler().

# Available Metrics

Connector Metrics:
  - soc_client_connectors_active: live client connectors (gauge)
  - soc_server_connectors_active: enabled server connectors (gauge, by interface)
  - soc_service_registrations_total: server enable attempts (counter, by interface, result)
  - soc_client_connections_total: client-to-server connects (counter, by interface)

Event Metrics:
  - soc_events_published_total: update_event calls (counter, by interface, event)
  - soc_event_fanout_duration_seconds: subscriber delivery latency (histogram)
  - soc_event_subscribers_active: 1 while an event has at least one subscriber, else 0 (gauge, by interface, event)

Method Call Metrics:
  - soc_method_calls_total: call_method outcomes (counter, by interface, method, result)
  - soc_method_call_duration_seconds: call_method round trip latency (histogram)

Discovery Metrics:
  - soc_discovery_subscriptions_active: live subscribe_find_service registrations (gauge)
  - soc_discovery_notifications_total: find_service callback invocations (counter, by kind)

Bridge Metrics:
  - soc_bridge_forwarded_total: announcements forwarded (counter, by direction)
  - soc_bridge_convergence_rounds: snapshot/retry rounds per forwarding pass (histogram)
  - soc_bridge_circuit_breaker_state: per-subject breaker state (gauge, 0/1/2)
  - soc_bridge_requests_total: transport requests (counter, by subject, result)

Deadlock Detector Metrics:
  - soc_deadlock_aborts_total: fatal aborts raised (counter)

# Usage Example

	import (
	    "github.com/evrhart/socrt/internal/metrics"
	    "github.com/prometheus/client_golang/prometheus/promhttp"
	)

	func main() {
	    http.Handle("/metrics", promhttp.Handler())

	    start := time.Now()
	    err := server.CallMethod(...)
	    metrics.RecordMethodCall("com.example.Radio", "SetStation", outcomeOf(err), time.Since(start))
	}

# Cardinality Management

Labels are restricted to interface/event/method identifiers declared at
compile time by the services under test, plus a small fixed set of result
enums — no per-call-id or per-client labels are recorded.

# Thread Safety

All metric recording functions are thread-safe; the Prometheus client
library handles synchronization internally.
*/
package metrics
