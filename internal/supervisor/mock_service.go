// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

package supervisor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MockService is a minimal suture.Service used to exercise SupervisorTree in
// tests without standing up a real transport or host component.
type MockService struct {
	name       string
	startCount atomic.Int64

	mu        sync.Mutex
	failCount int
}

// NewMockService creates a MockService with the given name.
func NewMockService(name string) *MockService {
	return &MockService{name: name}
}

// SetFailCount makes the service return an error on its first n Serve calls
// before succeeding, so suture's restart/backoff behavior can be exercised.
func (m *MockService) SetFailCount(n int) {
	m.mu.Lock()
	m.failCount = n
	m.mu.Unlock()
}

// StartCount reports how many times Serve has been invoked.
func (m *MockService) StartCount() int64 {
	return m.startCount.Load()
}

// Serve implements suture.Service.
func (m *MockService) Serve(ctx context.Context) error {
	m.startCount.Add(1)

	m.mu.Lock()
	shouldFail := m.failCount > 0
	if shouldFail {
		m.failCount--
	}
	m.mu.Unlock()

	if shouldFail {
		return fmt.Errorf("mock service %s: injected failure", m.name)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Hour):
		return nil
	}
}
