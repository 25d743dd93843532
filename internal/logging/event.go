// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

//go:build nats

package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// BridgeLogger provides specialized logging for the NATS bridge transport.
// This logger is designed for watermill router handlers with domain-specific
// methods for the common bridge forwarding scenarios.
type BridgeLogger struct {
	logger zerolog.Logger
}

// NewBridgeLogger creates a logger configured for bridge forwarding.
func NewBridgeLogger() *BridgeLogger {
	return &BridgeLogger{
		logger: With().Str("component", "natsbridge").Logger(),
	}
}

// NewBridgeLoggerWithLogger creates a BridgeLogger with a custom logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value (copy-on-write semantics)
func NewBridgeLoggerWithLogger(logger zerolog.Logger) *BridgeLogger {
	return &BridgeLogger{logger: logger.With().Str("component", "natsbridge").Logger()}
}

// WithFields returns a new BridgeLogger with additional default fields.
func (b *BridgeLogger) WithFields(fields map[string]interface{}) *BridgeLogger {
	ctx := b.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &BridgeLogger{logger: ctx.Logger()}
}

// Debug logs a debug message.
func (b *BridgeLogger) Debug(msg string, fields ...interface{}) {
	event := b.logger.Debug()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

// Info logs an info message.
func (b *BridgeLogger) Info(msg string, fields ...interface{}) {
	event := b.logger.Info()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

// Warn logs a warning message.
func (b *BridgeLogger) Warn(msg string, fields ...interface{}) {
	event := b.logger.Warn()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

// Error logs an error message.
func (b *BridgeLogger) Error(msg string, fields ...interface{}) {
	event := b.logger.Error()
	event = addFieldPairs(event, fields)
	event.Msg(msg)
}

func (b *BridgeLogger) loggerWithContext(ctx context.Context) zerolog.Logger {
	logCtx := b.logger.With()

	if correlationID := CorrelationIDFromContext(ctx); correlationID != "" {
		logCtx = logCtx.Str("correlation_id", correlationID)
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		logCtx = logCtx.Str("request_id", requestID)
	}

	return logCtx.Logger()
}

// LogForwarded logs a service announcement forwarded across the bridge.
func (b *BridgeLogger) LogForwarded(ctx context.Context, subject, direction string) {
	logger := b.loggerWithContext(ctx)
	logger.Info().
		Str("subject", subject).
		Str("direction", direction).
		Msg("service announcement forwarded")
}

// LogRequestFailed logs a failed bridge transport request.
func (b *BridgeLogger) LogRequestFailed(ctx context.Context, subject string, err error) {
	logger := b.loggerWithContext(ctx)
	logger.Error().
		Str("subject", subject).
		Err(err).
		Msg("bridge request failed")
}

// LogCircuitOpen logs a circuit breaker tripping open for a subject.
func (b *BridgeLogger) LogCircuitOpen(subject string) {
	b.logger.Warn().Str("subject", subject).Msg("bridge circuit breaker open")
}

// LogConvergence logs how many snapshot/retry rounds a forwarding pass took.
func (b *BridgeLogger) LogConvergence(rounds int) {
	b.logger.Debug().Int("rounds", rounds).Msg("bridge forwarding converged")
}

// LogRouterStarted logs when the watermill router starts.
func (b *BridgeLogger) LogRouterStarted() {
	b.logger.Info().Msg("bridge router started")
}

// LogRouterStopped logs when the watermill router stops.
func (b *BridgeLogger) LogRouterStopped() {
	b.logger.Info().Msg("bridge router stopped")
}
