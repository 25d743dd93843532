// socrt - an in-process service-oriented communication runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evrhart/socrt

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths a config file is searched for, in
// priority order. The first one found wins.
var DefaultConfigPaths = []string{
	"socrtd.yaml",
	"socrtd.yml",
	"/etc/socrtd/socrtd.yaml",
}

// ConfigPathEnvVar overrides the config file search with an exact path.
const ConfigPathEnvVar = "SOCRTD_CONFIG_PATH"

// Load builds a RuntimeOptions from, in increasing priority: built-in
// defaults, an optional YAML file, and environment variables prefixed
// SOCRTD_.
func Load() (*RuntimeOptions, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultOptions(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("SOCRTD_", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	opts := &RuntimeOptions{}
	if err := k.Unmarshal("", opts); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("validate configuration: %w", err)
	}
	return opts, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransformFunc maps SOCRTD_BRIDGE_MAX_CONVERGENCE_ROUNDS-style
// environment variable names to bridge.max_convergence_rounds-style koanf
// paths. env.Provider passes f the raw, still-prefixed variable name; f is
// responsible for stripping the prefix itself.
func envTransformFunc(key string) string {
	key = strings.TrimPrefix(strings.ToLower(key), "socrtd_")
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 {
		return key
	}
	return parts[0] + "." + parts[1]
}
