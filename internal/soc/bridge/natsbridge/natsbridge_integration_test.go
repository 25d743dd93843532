// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

//go:build nats && integration

package natsbridge

import (
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	natsgo "github.com/nats-io/nats.go"

	"github.com/evrhart/socrt/internal/soc/discovery"
	"github.com/evrhart/socrt/internal/soc/types"
)

func startEmbeddedNATS(t *testing.T) string {
	t.Helper()
	opts := natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv := test.RunServer(&opts)
	t.Cleanup(srv.Shutdown)
	return srv.ClientURL()
}

func rawConn(t *testing.T, url string) *natsgo.Conn {
	t.Helper()
	nc, err := natsgo.Connect(url)
	if err != nil {
		t.Fatalf("raw nats connect: %v", err)
	}
	t.Cleanup(nc.Close)
	return nc
}

func TestRequestServicePublishesExpectedEnvelope(t *testing.T) {
	url := startEmbeddedNATS(t)
	nc := rawConn(t, url)

	received := make(chan *natsgo.Msg, 1)
	sub, err := nc.Subscribe("socrt.request.com.example.Radio", func(m *natsgo.Msg) { received <- m })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	b, err := New("producer", DefaultConfig(url), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	cfg := types.Configuration{Interface: types.Interface{ID: "com.example.Radio", Version: types.Version{Major: 1}}}
	if _, err := b.RequestService(cfg, "radio-1"); err != nil {
		t.Fatalf("RequestService: %v", err)
	}

	select {
	case msg := <-received:
		var env requestEnvelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if env.InterfaceID != "com.example.Radio" || env.Instance != "radio-1" || env.Major != 1 {
			t.Fatalf("got %+v, want interface com.example.Radio instance radio-1 major 1", env)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for request_service publish")
	}
}

func TestSubscribeFindServicePublishesQueryAndDeliversReply(t *testing.T) {
	url := startEmbeddedNATS(t)
	nc := rawConn(t, url)

	queries := make(chan *natsgo.Msg, 1)
	sub, err := nc.Subscribe("socrt.find.com.example.Radio", func(m *natsgo.Msg) { queries <- m })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	b, err := New("consumer", DefaultConfig(url), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	iface := types.Interface{ID: "com.example.Radio", Version: types.Version{Major: 1}}

	var mu sync.Mutex
	var found []discovery.Found
	findSub := b.SubscribeFindService(iface, nil, func(f discovery.Found) {
		mu.Lock()
		found = append(found, f)
		mu.Unlock()
	})
	defer findSub.Cancel()

	var query findQueryEnvelope
	select {
	case msg := <-queries:
		if err := json.Unmarshal(msg.Data, &query); err != nil {
			t.Fatalf("unmarshal query: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the find query publish")
	}

	if query.InterfaceID != "com.example.Radio" || query.ReplySubject == "" {
		t.Fatalf("got %+v, want interface com.example.Radio with a non-empty reply subject", query)
	}

	replyPayload, err := json.Marshal(foundEnvelope{InterfaceID: iface.ID, Major: 1, Instance: "radio-1", Added: true})
	if err != nil {
		t.Fatalf("marshal reply: %v", err)
	}
	if err := nc.Publish(query.ReplySubject, replyPayload); err != nil {
		t.Fatalf("publish reply: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(found)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(found) != 1 || found[0].Instance != "radio-1" || found[0].Status != discovery.StatusAdded {
		t.Fatalf("got %v, want one StatusAdded report for radio-1", found)
	}
}
