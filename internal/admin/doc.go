// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

// Package admin exposes a small chi-routed introspection surface over a
// running runtime.Runtime: liveness/readiness probes, a Prometheus scrape
// endpoint, and read-only JSON views of the service registry. It carries no
// control-plane mutation endpoints — the runtime itself is only ever driven
// in-process, through runtime.Runtime's Go API.
package admin
