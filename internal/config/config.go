// Package config loads DarkRelay configuration from the environment.
//
// A .env file in the working directory is applied first when present
// (deployment convenience); explicit environment variables always win
// because godotenv never overrides variables that are already set.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Defaults for every tunable. Each can be overridden by the matching
// DARKRELAY_* environment variable.
const (
	DefaultSpecialKey     = "darkrelay-dev-key"
	DefaultListenAddr     = "0.0.0.0:8080"
	DefaultMetricsAddr    = "127.0.0.1:9091"
	DefaultLogLevel       = "info"
	DefaultLogDir         = "logs"
	DefaultChannelPattern = "*"
	DefaultMaxFrame       = 16 << 20
)

// Config holds all server configuration.
type Config struct {
	// SpecialKey gates every new connection before any other traffic is
	// accepted.
	SpecialKey string

	// ListenAddr is the TLS listener address.
	ListenAddr string

	// TLSCertFile and TLSKeyFile select a PEM keypair. When unset the
	// server generates a self-signed certificate at startup.
	TLSCertFile string
	TLSKeyFile  string

	// MetricsAddr serves Prometheus metrics. Empty disables the exporter.
	MetricsAddr string

	LogLevel string
	LogDir   string

	// ChannelPattern is the wildcard allowlist for auto-created channel
	// names.
	ChannelPattern string

	// MaxFrame caps the wire frame payload size in bytes.
	MaxFrame uint32
}

// Load reads configuration from the environment, filling defaults for
// anything unset.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Info().Msg("Loaded .env from current directory")
	}

	cfg := &Config{
		SpecialKey:     DefaultSpecialKey,
		ListenAddr:     DefaultListenAddr,
		MetricsAddr:    DefaultMetricsAddr,
		LogLevel:       DefaultLogLevel,
		LogDir:         DefaultLogDir,
		ChannelPattern: DefaultChannelPattern,
		MaxFrame:       DefaultMaxFrame,
	}

	if key := os.Getenv("DARKRELAY_SPECIAL_KEY"); key != "" {
		cfg.SpecialKey = key
	} else {
		log.Warn().Msg("DARKRELAY_SPECIAL_KEY not set, using development default")
	}
	if addr := os.Getenv("DARKRELAY_LISTEN"); addr != "" {
		cfg.ListenAddr = addr
	}
	cfg.TLSCertFile = os.Getenv("DARKRELAY_TLS_CERT")
	cfg.TLSKeyFile = os.Getenv("DARKRELAY_TLS_KEY")
	if addr, ok := os.LookupEnv("DARKRELAY_METRICS_LISTEN"); ok {
		// An explicit empty value disables the exporter.
		cfg.MetricsAddr = addr
	}
	if level := os.Getenv("DARKRELAY_LOG_LEVEL"); level != "" {
		cfg.LogLevel = strings.ToLower(level)
	}
	if dir := os.Getenv("DARKRELAY_LOG_DIR"); dir != "" {
		cfg.LogDir = dir
	}
	if pattern := os.Getenv("DARKRELAY_CHANNEL_PATTERN"); pattern != "" {
		cfg.ChannelPattern = pattern
	}
	if raw := os.Getenv("DARKRELAY_MAX_FRAME"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid DARKRELAY_MAX_FRAME %q: %w", raw, err)
		}
		cfg.MaxFrame = uint32(n)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks for values the server cannot run with.
func (c *Config) Validate() error {
	if c.SpecialKey == "" {
		return fmt.Errorf("special key must not be empty")
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.ListenAddr, err)
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			return fmt.Errorf("invalid metrics address %q: %w", c.MetricsAddr, err)
		}
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("DARKRELAY_TLS_CERT and DARKRELAY_TLS_KEY must be set together")
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.ChannelPattern == "" {
		return fmt.Errorf("channel pattern must not be empty")
	}
	if c.MaxFrame == 0 {
		return fmt.Errorf("max frame size must be positive")
	}
	return nil
}

// TLSFromFiles reports whether the TLS keypair comes from PEM files
// rather than a generated self-signed certificate.
func (c *Config) TLSFromFiles() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}
