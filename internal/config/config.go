// Package config loads coreguard settings from the process environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is populated by envconfig; tags name the variables verbatim.
type Config struct {
	CoreHost     string `envconfig:"CORE_HOST" default:"localhost"`
	CorePort     int    `envconfig:"CORE_PORT" default:"18332"` // bitcoind testnet RPC
	CoreUser     string `envconfig:"CORE_USER" required:"true"`
	CorePassword string `envconfig:"CORE_PASSWORD" required:"true"`

	ListenHost string `envconfig:"LISTEN_HOST" default:"0.0.0.0"`
	ListenPort int    `envconfig:"LISTEN_PORT" default:"8000"`

	UpstreamTimeout time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	Preset     string `envconfig:"COREGUARD_PRESET" default:"default"`
	PolicyFile string `envconfig:"COREGUARD_POLICY"`
	AuditLog   string `envconfig:"COREGUARD_AUDIT_LOG"`
	Metrics    bool   `envconfig:"COREGUARD_METRICS" default:"true"`
}

// Load reads the environment. Missing credentials are an error: the proxy must not
// start without them.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks values envconfig cannot express as tags.
func (c *Config) Validate() error {
	if c.CoreUser == "" {
		return errors.New("Must supply CORE_USER")
	}
	if c.CorePassword == "" {
		return errors.New("Must supply CORE_PASSWORD")
	}
	if c.CoreHost == "" {
		return errors.New("CORE_HOST must not be empty")
	}
	if err := validPort("CORE_PORT", c.CorePort); err != nil {
		return err
	}
	if err := validPort("LISTEN_PORT", c.ListenPort); err != nil {
		return err
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive, got %s", c.UpstreamTimeout)
	}
	return nil
}

func validPort(name string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
	}
	return nil
}

// ListenAddr is host:port for the HTTP server.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.ListenPort))
}

// UpstreamURL is the base endpoint without any path override.
func (c *Config) UpstreamURL() string {
	return "http://" + net.JoinHostPort(c.CoreHost, strconv.Itoa(c.CorePort))
}

// Redacted describes the config for logs without the password.
func (c *Config) Redacted() map[string]any {
	return map[string]any{
		"upstream":         c.UpstreamURL(),
		"upstream_user":    c.CoreUser,
		"listen":           c.ListenAddr(),
		"upstream_timeout": c.UpstreamTimeout.String(),
		"preset":           c.Preset,
		"policy_file":      c.PolicyFile,
		"audit_log":        c.AuditLog,
		"metrics":          c.Metrics,
	}
}
