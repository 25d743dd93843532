// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

//go:build nats

package natsbridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	wmmessage "github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/evrhart/socrt/internal/logging"
	"github.com/evrhart/socrt/internal/metrics"
	"github.com/evrhart/socrt/internal/soc/bridge"
	"github.com/evrhart/socrt/internal/soc/discovery"
	"github.com/evrhart/socrt/internal/soc/types"
)

// Bridge implements bridge.Transport over core NATS (JetStream disabled) via
// Watermill.
type Bridge struct {
	identity string
	cfg      Config
	pub      wmmessage.Publisher
	sub      wmmessage.Subscriber
	cb       *gobreaker.CircuitBreaker[interface{}]
	logger   watermill.LoggerAdapter

	mu     sync.Mutex
	closed bool
}

// New dials cfg.URL and returns a Bridge usable as a bridge.Transport.
// identity is the value this bridge places in discovery.Query.BridgeIdentity
// when its own queries are tracked, for the Hub's no-loop exclusion.
func New(identity string, cfg Config, logger watermill.LoggerAdapter) (*Bridge, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.ReconnectBufSize(cfg.ReconnectBuffer),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("natsbridge disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("natsbridge reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		SubscribersCount: 1,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}

	settings := gobreaker.Settings{
		Name:        cfg.CircuitBreaker.Name,
		MaxRequests: cfg.CircuitBreaker.MaxRequests,
		Interval:    cfg.CircuitBreaker.Interval,
		Timeout:     cfg.CircuitBreaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.CircuitBreaker.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			gauge := metrics.BridgeCircuitBreakerState.WithLabelValues(name)
			switch to {
			case gobreaker.StateClosed:
				gauge.Set(0)
			case gobreaker.StateHalfOpen:
				gauge.Set(1)
			case gobreaker.StateOpen:
				gauge.Set(2)
			}
			logger.Info("natsbridge circuit breaker state change", watermill.LogFields{"name": name, "from": from.String(), "to": to.String()})
		},
	}

	return &Bridge{
		identity: identity,
		cfg:      cfg,
		pub:      pub,
		sub:      sub,
		cb:       gobreaker.NewCircuitBreaker[interface{}](settings),
		logger:   logger,
	}, nil
}

// Identity returns the bridge identity this Bridge was constructed with.
func (b *Bridge) Identity() string { return b.identity }

func (b *Bridge) publish(subject string, payload []byte) error {
	msg := wmmessage.NewMessage(watermill.NewUUID(), payload)
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.pub.Publish(subject, msg)
	})
	return err
}

// SubscribeFindService implements bridge.Transport.
func (b *Bridge) SubscribeFindService(iface types.Interface, instance *types.Instance, onFound func(discovery.Found)) bridge.Subscription {
	replySubject := fmt.Sprintf("%s.%s.reply.%s", b.cfg.FindSubjectPrefix, iface.ID, watermill.NewUUID())
	ctx, cancel := context.WithCancel(context.Background())

	msgs, err := b.sub.Subscribe(ctx, replySubject)
	if err != nil {
		logging.Warn().Str("component", "natsbridge").Str("interface", iface.ID).Err(err).Msg("subscribe_find_service reply subscription failed")
		cancel()
		return bridge.Subscription{Cancel: func() {}}
	}

	go func() {
		for msg := range msgs {
			var f foundEnvelope
			if err := json.Unmarshal(msg.Payload, &f); err != nil {
				msg.Nack()
				continue
			}
			msg.Ack()
			if instance != nil && types.Instance(f.Instance) != *instance {
				continue
			}
			status := discovery.StatusAdded
			if !f.Added {
				status = discovery.StatusRemoved
			}
			onFound(discovery.Found{
				Interface: types.Interface{ID: f.InterfaceID, Version: types.Version{Major: f.Major, Minor: f.Minor}},
				Instance:  types.Instance(f.Instance),
				Status:    status,
			})
		}
	}()

	query := findQueryEnvelope{InterfaceID: iface.ID, Major: iface.Version.Major, Minor: iface.Version.Minor, ReplySubject: replySubject}
	if instance != nil {
		query.Instance = string(*instance)
	}
	payload, err := json.Marshal(query)
	if err == nil {
		if err := b.publish(fmt.Sprintf("%s.%s", b.cfg.FindSubjectPrefix, iface.ID), payload); err != nil {
			logging.Warn().Str("component", "natsbridge").Str("interface", iface.ID).Err(err).Msg("publish find query failed")
		}
	}

	return bridge.Subscription{Cancel: cancel}
}

// RequestService implements bridge.Transport.
func (b *Bridge) RequestService(cfg types.Configuration, instance types.Instance) (bridge.Handle, error) {
	req := requestEnvelope{InterfaceID: cfg.Interface.ID, Major: cfg.Interface.Version.Major, Minor: cfg.Interface.Version.Minor, Instance: string(instance)}
	payload, err := json.Marshal(req)
	if err != nil {
		return bridge.Handle{}, fmt.Errorf("%w: marshal request: %v", types.ErrRequestRejected, err)
	}

	subject := fmt.Sprintf("%s.%s", b.cfg.RequestSubjectPrefix, cfg.Interface.ID)
	if err := b.publish(subject, payload); err != nil {
		return bridge.Handle{}, fmt.Errorf("%w: %v", types.ErrRequestRejected, err)
	}

	return bridge.Handle{Close: func() {}}, nil
}

// Close shuts down the underlying Watermill publisher and subscriber.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	pubErr := b.pub.Close()
	subErr := b.sub.Close()
	if pubErr != nil {
		return pubErr
	}
	return subErr
}
