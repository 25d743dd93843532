// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

//go:build !nats

package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// BridgeLogger provides specialized logging for the NATS bridge transport.
// This is a stub implementation for builds without the nats tag, where the
// bridge transport is compiled out entirely.
type BridgeLogger struct{}

// NewBridgeLogger creates a logger configured for bridge forwarding.
func NewBridgeLogger() *BridgeLogger {
	return &BridgeLogger{}
}

// NewBridgeLoggerWithLogger creates a BridgeLogger with a custom logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewBridgeLoggerWithLogger(_ zerolog.Logger) *BridgeLogger {
	return &BridgeLogger{}
}

// WithFields returns a new BridgeLogger with additional default fields.
func (b *BridgeLogger) WithFields(_ map[string]interface{}) *BridgeLogger {
	return b
}

// Debug logs a debug message (no-op).
func (b *BridgeLogger) Debug(_ string, _ ...interface{}) {}

// Info logs an info message (no-op).
func (b *BridgeLogger) Info(_ string, _ ...interface{}) {}

// Warn logs a warning message (no-op).
func (b *BridgeLogger) Warn(_ string, _ ...interface{}) {}

// Error logs an error message (no-op).
func (b *BridgeLogger) Error(_ string, _ ...interface{}) {}

// LogForwarded logs a service announcement forwarded across the bridge (no-op).
func (b *BridgeLogger) LogForwarded(_ context.Context, _, _ string) {}

// LogRequestFailed logs a failed bridge transport request (no-op).
func (b *BridgeLogger) LogRequestFailed(_ context.Context, _ string, _ error) {}

// LogCircuitOpen logs a circuit breaker tripping open for a subject (no-op).
func (b *BridgeLogger) LogCircuitOpen(_ string) {}

// LogConvergence logs how many snapshot/retry rounds a forwarding pass took (no-op).
func (b *BridgeLogger) LogConvergence(_ int) {}

// LogRouterStarted logs when the watermill router starts (no-op).
func (b *BridgeLogger) LogRouterStarted() {}

// LogRouterStopped logs when the watermill router stops (no-op).
func (b *BridgeLogger) LogRouterStopped() {}
