// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

// Package config loads cmd/socrtd's tuning knobs: defaults, then an
// optional YAML file, then environment variables, highest priority last —
// the same three-layer precedence the wider stack uses for its own
// configuration.
package config

import (
	"fmt"
	"time"
)

// RuntimeOptions tunes the parts of the runtime and its surrounding demo
// host that are not fixed by the core design: the bridge hub's convergence
// round cap, the deadlock detector's abort behavior, and where the admin
// surface and the NATS bridge connect.
type RuntimeOptions struct {
	Bridge   BridgeConfig   `koanf:"bridge"`
	Deadlock DeadlockConfig `koanf:"deadlock"`
	Admin    AdminConfig    `koanf:"admin"`
	NATS     NATSConfig     `koanf:"nats"`
}

// BridgeConfig tunes internal/soc/bridge's Hub.
type BridgeConfig struct {
	// MaxConvergenceRounds bounds Hub.reconcileRequests's snapshot/invoke/
	// merge/retry loop. Must be positive: Validate rejects 0 and negative
	// values.
	MaxConvergenceRounds int `koanf:"max_convergence_rounds"`
}

// DeadlockConfig tunes internal/soc/deadlock's Detector behavior.
type DeadlockConfig struct {
	// AbortDisabled is loaded and validated with the other options, but
	// nothing in this module reads it: the deadlock detector's abort
	// (SIGABRT on unix, exit status 134 on windows) is unaffected by it.
	AbortDisabled bool `koanf:"abort_disabled"`
}

// AdminConfig tunes the chi-routed introspection API.
type AdminConfig struct {
	ListenAddress string `koanf:"listen_address"`
}

// NATSConfig tunes internal/soc/bridge/natsbridge's connection.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`

	MaxReconnects   int           `koanf:"max_reconnects"`
	ReconnectWait   time.Duration `koanf:"reconnect_wait"`
	ReconnectBuffer int           `koanf:"reconnect_buffer"`

	CircuitBreakerName             string        `koanf:"circuit_breaker_name"`
	CircuitBreakerMaxRequests      uint32        `koanf:"circuit_breaker_max_requests"`
	CircuitBreakerInterval         time.Duration `koanf:"circuit_breaker_interval"`
	CircuitBreakerTimeout          time.Duration `koanf:"circuit_breaker_timeout"`
	CircuitBreakerFailureThreshold uint32        `koanf:"circuit_breaker_failure_threshold"`
}

// defaultOptions mirrors the teacher's defaultConfig: every field gets a
// sensible value here first, before the file and environment layers are
// allowed to override it.
func defaultOptions() *RuntimeOptions {
	return &RuntimeOptions{
		Bridge: BridgeConfig{
			MaxConvergenceRounds: 8,
		},
		Deadlock: DeadlockConfig{
			AbortDisabled: false,
		},
		Admin: AdminConfig{
			ListenAddress: "127.0.0.1:8980",
		},
		NATS: NATSConfig{
			Enabled:                        true,
			URL:                            "nats://127.0.0.1:4222",
			MaxReconnects:                  -1,
			ReconnectWait:                  2 * time.Second,
			ReconnectBuffer:                8 << 20,
			CircuitBreakerName:             "socrt-bridge",
			CircuitBreakerMaxRequests:      3,
			CircuitBreakerInterval:         30 * time.Second,
			CircuitBreakerTimeout:          10 * time.Second,
			CircuitBreakerFailureThreshold: 5,
		},
	}
}

// Validate rejects configurations that would otherwise surface as a
// confusing failure deep inside the runtime or the bridge.
func (o *RuntimeOptions) Validate() error {
	if o.Bridge.MaxConvergenceRounds <= 0 {
		return fmt.Errorf("bridge.max_convergence_rounds must be positive, got %d", o.Bridge.MaxConvergenceRounds)
	}
	if o.Admin.ListenAddress == "" {
		return fmt.Errorf("admin.listen_address must not be empty")
	}
	if o.NATS.Enabled && o.NATS.URL == "" {
		return fmt.Errorf("nats.url must not be empty when nats.enabled is true")
	}
	return nil
}
