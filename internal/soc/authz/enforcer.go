// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

package authz

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Config controls how an Enforcer is built.
type Config struct {
	// PolicyPath, if non-empty, loads policy from a CSV file via Casbin's
	// file adapter and keeps it writable through AddPolicy/RemovePolicy. An
	// empty PolicyPath starts from the embedded (deny-all) policy, held only
	// in memory.
	PolicyPath string

	// CacheTTL bounds how long a decision is cached before call_method
	// re-runs the Casbin matcher. Zero uses a one-minute default.
	CacheTTL time.Duration
}

// Enforcer gates call_method by (uid, interface, method_id). The zero value
// is not usable; construct with New. A nil *Enforcer is a valid, meaningful
// value everywhere this package's Allow is called: it means "no
// authorization configured", and Allow(nil, ...) returns true.
type Enforcer struct {
	e     *casbin.SyncedEnforcer
	cache *decisionCache
}

// New builds an Enforcer from cfg.
func New(cfg Config) (*Enforcer, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("authz: load model: %w", err)
	}

	var e *casbin.SyncedEnforcer
	if cfg.PolicyPath != "" {
		adapter := fileadapter.NewAdapter(cfg.PolicyPath)
		e, err = casbin.NewSyncedEnforcer(m, adapter)
	} else {
		e, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(e, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("authz: create enforcer: %w", err)
	}

	return &Enforcer{e: e, cache: newDecisionCache(cfg.CacheTTL)}, nil
}

func loadEmbeddedPolicy(e *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) != 4 || strings.TrimSpace(parts[0]) != "p" {
			continue
		}
		sub, obj, act := strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2]), strings.TrimSpace(parts[3])
		if _, err := e.AddPolicy(sub, obj, act); err != nil {
			return fmt.Errorf("authz: load embedded policy %q: %w", line, err)
		}
	}
	return nil
}

// Allow reports whether uid may invoke methodID on interfaceID. A nil
// Enforcer always allows, matching spec.md's "optional, defaults to
// allow-all" rule.
func (e *Enforcer) Allow(uid uint32, interfaceID string, methodID uint16) bool {
	if e == nil {
		return true
	}
	sub := strconv.FormatUint(uint64(uid), 10)
	act := strconv.FormatUint(uint64(methodID), 10)

	if allowed, hit := e.cache.get(sub, interfaceID, act); hit {
		return allowed
	}
	allowed, err := e.e.Enforce(sub, interfaceID, act)
	if err != nil {
		return false
	}
	e.cache.set(sub, interfaceID, act, allowed)
	return allowed
}

// AddPolicy grants uid permission to call methodID on interfaceID.
func (e *Enforcer) AddPolicy(uid uint32, interfaceID string, methodID uint16) error {
	sub := strconv.FormatUint(uint64(uid), 10)
	act := strconv.FormatUint(uint64(methodID), 10)
	if _, err := e.e.AddPolicy(sub, interfaceID, act); err != nil {
		return fmt.Errorf("authz: add policy: %w", err)
	}
	e.cache.invalidateSubject(sub)
	return nil
}

// RemovePolicy revokes a previously granted permission.
func (e *Enforcer) RemovePolicy(uid uint32, interfaceID string, methodID uint16) error {
	sub := strconv.FormatUint(uint64(uid), 10)
	act := strconv.FormatUint(uint64(methodID), 10)
	if _, err := e.e.RemovePolicy(sub, interfaceID, act); err != nil {
		return fmt.Errorf("authz: remove policy: %w", err)
	}
	e.cache.invalidateSubject(sub)
	return nil
}

// Close stops the enforcer's background cache cleanup goroutine.
func (e *Enforcer) Close() {
	if e == nil {
		return
	}
	e.cache.stop()
}
