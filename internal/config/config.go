// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LeForge Contributors

// Package config loads server configuration from defaults, an optional
// YAML file, and command-line flags, in increasing precedence.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config holds the leforge server configuration.
type Config struct {
	DatabaseURL             string        `koanf:"database_url"`
	HooksDir                string        `koanf:"hooks_dir"`
	InvokeTimeout           time.Duration `koanf:"invoke_timeout"`
	MaxInvocationsPerMinute int           `koanf:"max_invocations_per_minute"`
	ObservabilityAddr       string        `koanf:"observability_addr"`
	LogFormat               string        `koanf:"log_format"`
	LogLevel                string        `koanf:"log_level"`
}

// defaults returns the built-in configuration values.
func defaults() map[string]any {
	return map[string]any{
		"database_url":               "",
		"hooks_dir":                  "hooks",
		"invoke_timeout":             5 * time.Second,
		"max_invocations_per_minute": 120,
		"observability_addr":         "127.0.0.1:9100",
		"log_format":                 "json",
		"log_level":                  "info",
	}
}

// Load builds a Config. path may be empty (no file); flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "load defaults").Wrap(err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("path", path).Hint("failed to read config file").Wrap(err)
		}
	}

	if flags != nil {
		// Flag names use dashes; config keys use underscores.
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("operation", "load flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "unmarshal").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks configuration constraints.
func (c *Config) Validate() error {
	if c.InvokeTimeout <= 0 {
		return oops.Code("CONFIG_INVALID").With("invoke_timeout", c.InvokeTimeout.String()).New("invoke_timeout must be positive")
	}
	if c.MaxInvocationsPerMinute < 0 {
		return oops.Code("CONFIG_INVALID").With("max_invocations_per_minute", c.MaxInvocationsPerMinute).New("max_invocations_per_minute must not be negative")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return oops.Code("CONFIG_INVALID").With("log_format", c.LogFormat).New("log_format must be 'json' or 'text'")
	}
	return nil
}
