// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

// Command socrtd is a demo host process for the socrt runtime: it builds a
// runtime.Runtime, optionally wires it to a NATS bridge transport, exposes a
// read-only introspection API over the registry, and supervises both under
// a two-layer suture tree.
//
// Configuration is loaded by internal/config: built-in defaults, then an
// optional socrtd.yaml (or the path in SOCRTD_CONFIG_PATH), then SOCRTD_-
// prefixed environment variables, in increasing priority.
//
// Build without tags to run with the NATS bridge disabled at compile time
// (RegisterServiceBridge is skipped and natsbridge.New always fails); build
// with -tags=nats to link the real Watermill/NATS stack and let nats.enabled
// in the loaded configuration decide whether the bridge actually dials out.
//
// SIGINT and SIGTERM trigger a graceful shutdown: the root context is
// canceled, the admin HTTP server stops accepting new connections and
// drains in flight ones, and the process exits once every supervised
// service has stopped or the shutdown timeout elapses.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	goruntime "runtime"
	"syscall"
	"time"

	"github.com/evrhart/socrt/internal/admin"
	"github.com/evrhart/socrt/internal/config"
	"github.com/evrhart/socrt/internal/logging"
	"github.com/evrhart/socrt/internal/metrics"
	"github.com/evrhart/socrt/internal/soc/bridge/natsbridge"
	socruntime "github.com/evrhart/socrt/internal/soc/runtime"
	"github.com/evrhart/socrt/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.DefaultConfig())
	logging.Info().Msg("starting socrtd with supervisor tree")

	metrics.RuntimeInfo.WithLabelValues("dev", goruntime.Version()).Set(1)
	startTime := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slogger := slog.New(logging.NewSlogHandler())
	tree, err := supervisor.NewSupervisorTree(slogger, supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to build supervisor tree")
	}

	rt := socruntime.New(socruntime.WithMaxConvergenceRounds(cfg.Bridge.MaxConvergenceRounds))

	if cfg.NATS.Enabled {
		natsCfg := natsbridge.Config{
			URL:                  cfg.NATS.URL,
			FindSubjectPrefix:    "socrt.find",
			RequestSubjectPrefix: "socrt.request",
			MaxReconnects:        cfg.NATS.MaxReconnects,
			ReconnectWait:        cfg.NATS.ReconnectWait,
			ReconnectBuffer:      cfg.NATS.ReconnectBuffer,
			CircuitBreaker: natsbridge.CircuitBreakerConfig{
				Name:             cfg.NATS.CircuitBreakerName,
				MaxRequests:      cfg.NATS.CircuitBreakerMaxRequests,
				Interval:         cfg.NATS.CircuitBreakerInterval,
				Timeout:          cfg.NATS.CircuitBreakerTimeout,
				FailureThreshold: cfg.NATS.CircuitBreakerFailureThreshold,
			},
		}
		natsTransport, err := natsbridge.New("socrtd", natsCfg, nil)
		if err != nil {
			logging.Error().Err(err).Msg("NATS bridge unavailable, continuing with local-only discovery")
		} else {
			reg := rt.RegisterServiceBridge("socrtd", natsTransport)
			defer reg.Cancel()
			logging.Info().Str("url", cfg.NATS.URL).Msg("registered NATS bridge transport")
		}
	}

	adminServer := &http.Server{
		Addr:         cfg.Admin.ListenAddress,
		Handler:      admin.NewRouter(rt.Registry(), admin.DefaultConfig()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	tree.AddHostService(supervisor.NewHTTPServerService("admin-http", adminServer, 10*time.Second))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.RuntimeUptime.Set(time.Since(startTime).Seconds())
			}
		}
	}()

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			logging.Error().Err(err).Msg("supervisor tree exited with error")
		}
	}

	for err := range errCh {
		if err != nil {
			logging.Error().Err(err).Msg("service reported error during shutdown")
		}
	}

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil && len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("services failed to stop within shutdown timeout")
	}

	logging.Info().Msg("socrtd stopped")
}
