// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

// Package config loads embedfix's configuration through a layered Koanf
// pipeline: built-in defaults, then config.toml, then environment
// variables, each layer overriding the previous one. This mirrors the
// teacher's internal/config/koanf.go, swapping the YAML parser for TOML
// since this project's on-disk config is config.toml rather than
// config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched, in order, when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"./config.toml",
	"/etc/embedfix/config.toml",
}

// Config holds embedfix's full runtime configuration. Field tags name the
// koanf key (also the env var name, upper-cased, after envTransformFunc).
type Config struct {
	// Host is the address the HTTP server binds to.
	Host string `koanf:"host"`

	// Port is the HTTP server's listening port.
	Port int `koanf:"port"`

	// HTTPProxy, if set, is used for every outbound scraper/fetcher call.
	HTTPProxy string `koanf:"http_proxy"`

	// DNSRewriteEnabled gates the HTTP-Fetcher's DNS-cache host rewriting
	// and its accompanying disabled TLS verification (see spec §9).
	DNSRewriteEnabled bool `koanf:"dns_rewrite_enabled"`

	// CacheDir is the directory badger uses for the KV-Cache stores.
	CacheDir string `koanf:"cache_dir"`

	// GridDir is the directory composed grid JPEGs are written to.
	GridDir string `koanf:"grid_dir"`

	// GridMaxBytes bounds the on-disk size of GridDir; the periodic sweep
	// (§5) evicts least-frequently-used entries once this is exceeded.
	GridMaxBytes int64 `koanf:"grid_max_bytes"`

	// LogLevel is the minimum zerolog level (trace..panic).
	LogLevel string `koanf:"log_level"`

	// LogFormat is "json" or "console".
	LogFormat string `koanf:"log_format"`
}

func defaultConfig() Config {
	return Config{
		Host:              "0.0.0.0",
		Port:              8080,
		HTTPProxy:         "",
		DNSRewriteEnabled: false,
		CacheDir:          "cache/",
		GridDir:           "cache/grid/",
		GridMaxBytes:      10 * 1024 * 1024 * 1024, // 10 GiB
		LogLevel:          "info",
		LogFormat:         "json",
	}
}

// sliceConfigPaths names koanf keys whose env var form is a comma-separated
// list rather than a scalar. embedfix has none today; kept for parity with
// the teacher's processSliceFields hook should a future key need it.
var sliceConfigPaths []string

// envTransformFunc maps EMBEDFIX_HTTP_PROXY -> http_proxy, etc.
func envTransformFunc(s string) string {
	s = strings.TrimPrefix(s, "EMBEDFIX_")
	return strings.ToLower(s)
}

// Load builds a Config by layering defaults, an optional config.toml file,
// and EMBEDFIX_-prefixed environment variables, in that order.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("EMBEDFIX_", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	processSliceFields(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return &cfg, nil
}

// findConfigFile resolves the config file path: CONFIG_PATH env var first,
// else the first existing entry in DefaultConfigPaths.
func findConfigFile() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// processSliceFields converts comma-separated env var strings into slices
// for any koanf key listed in sliceConfigPaths.
func processSliceFields(k *koanf.Koanf) {
	for _, key := range sliceConfigPaths {
		raw := k.String(key)
		if raw == "" {
			continue
		}
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		_ = k.Set(key, parts)
	}
}

// Validate checks invariants the zero-value unmarshal can't enforce.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range [1,65535]", c.Port)
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache_dir must not be empty")
	}
	if c.GridDir == "" {
		return fmt.Errorf("grid_dir must not be empty")
	}
	if c.GridMaxBytes <= 0 {
		return fmt.Errorf("grid_max_bytes must be positive")
	}
	if err := ensureDirCreatable(c.CacheDir); err != nil {
		return fmt.Errorf("cache_dir: %w", err)
	}
	if err := ensureDirCreatable(c.GridDir); err != nil {
		return fmt.Errorf("grid_dir: %w", err)
	}
	return nil
}

func ensureDirCreatable(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	return os.MkdirAll(abs, 0o755)
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
