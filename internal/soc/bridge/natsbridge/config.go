// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

// Package natsbridge is a concrete bridge.Transport over core NATS (JetStream
// disabled), reached through Watermill's NATS binding. Every outbound
// publish is wrapped in a per-bridge gobreaker circuit breaker, so a wedged
// NATS deployment degrades request_service to a fast rejection instead of
// blocking the Hub's reconciliation loop. Build with -tags=nats to link the
// real NATS/Watermill stack; without the tag, New returns an error and the
// rest of the module still builds (mirroring the teacher's stub-file split
// for optional transport dependencies).
package natsbridge

import "time"

// Config configures one natsbridge.Bridge.
type Config struct {
	URL                  string
	FindSubjectPrefix    string
	RequestSubjectPrefix string
	MaxReconnects        int
	ReconnectWait        time.Duration
	ReconnectBuffer      int
	CircuitBreaker       CircuitBreakerConfig
}

// DefaultConfig returns production defaults for a bridge dialing url.
func DefaultConfig(url string) Config {
	return Config{
		URL:                  url,
		FindSubjectPrefix:    "socrt.find",
		RequestSubjectPrefix: "socrt.request",
		MaxReconnects:        -1,
		ReconnectWait:        2 * time.Second,
		ReconnectBuffer:      8 << 20,
		CircuitBreaker:       DefaultCircuitBreakerConfig("natsbridge"),
	}
}

// CircuitBreakerConfig holds circuit breaker settings for outbound publishes.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultCircuitBreakerConfig returns production defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}

// findQueryEnvelope is published on FindSubjectPrefix+"."+interfaceID when
// SubscribeFindService is called. A remote bridge participant replies on
// ReplySubject with one foundEnvelope per discovered/withdrawn service.
type findQueryEnvelope struct {
	InterfaceID  string `json:"interface_id"`
	Major        uint32 `json:"major"`
	Minor        uint32 `json:"minor"`
	Instance     string `json:"instance,omitempty"`
	ReplySubject string `json:"reply_subject"`
}

// foundEnvelope is the wire shape of one discovery.Found delivered back
// over a findQueryEnvelope's ReplySubject.
type foundEnvelope struct {
	InterfaceID string `json:"interface_id"`
	Major       uint32 `json:"major"`
	Minor       uint32 `json:"minor"`
	Instance    string `json:"instance"`
	Added       bool   `json:"added"`
}

// requestEnvelope is published on RequestSubjectPrefix+"."+interfaceID when
// RequestService is called.
type requestEnvelope struct {
	InterfaceID string `json:"interface_id"`
	Major       uint32 `json:"major"`
	Minor       uint32 `json:"minor"`
	Instance    string `json:"instance"`
}
