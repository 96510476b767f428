// ABOUTME: Configuration loading and parsing for the dashboard relay.
// ABOUTME: YAML files with environment variable expansion and duration parsing.

// Package config handles configuration loading for the dashboard relay.
//
// Configuration is YAML with ${VAR} environment expansion. Duration values
// use Go's time.ParseDuration syntax. Load applies defaults and validates
// required fields.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harmonia-bot/dashboard/internal/version"
)

// DefaultMinAgentVersion is the minimum agent client version accepted at
// the agent endpoint when none is configured.
const DefaultMinAgentVersion = "2.7.2"

// Config represents the complete dashboard relay configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Relay    RelayConfig    `yaml:"relay"`
	Registry RegistryConfig `yaml:"registry"`
	GeoIP    GeoIPConfig    `yaml:"geoip"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the listen address.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// RelayConfig holds the agent handshake settings.
type RelayConfig struct {
	// SharedSecret is the out-of-band credential agents present at
	// connect time.
	SharedSecret string `yaml:"shared_secret"`
	// MinAgentVersion is the lowest accepted agent client version.
	MinAgentVersion string `yaml:"min_agent_version"`
}

// RegistryConfig holds the optional eviction policy for disconnected
// identities and agents. A zero window disables eviction, matching the
// relay's default of keeping entries forever so reconnects regain state.
type RegistryConfig struct {
	EvictionAfter time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling.
	EvictionAfterRaw string `yaml:"eviction_after"`
}

// GeoIPConfig points at an optional GeoLite2 country database used to
// derive identity display locales.
type GeoIPConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.parseDurations(); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to "".
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Relay.MinAgentVersion == "" {
		c.Relay.MinAgentVersion = DefaultMinAgentVersion
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Relay.SharedSecret == "" {
		return fmt.Errorf("relay.shared_secret is required")
	}
	// Guard against a minimum no agent could ever satisfy.
	if !version.AtLeast(c.Relay.MinAgentVersion, "0.0.1") {
		return fmt.Errorf("relay.min_agent_version %q is not a valid version", c.Relay.MinAgentVersion)
	}
	return nil
}

// parseDurations converts raw duration strings into time.Duration values.
func (c *Config) parseDurations() error {
	if c.Registry.EvictionAfterRaw != "" {
		d, err := time.ParseDuration(c.Registry.EvictionAfterRaw)
		if err != nil {
			return fmt.Errorf("parsing eviction_after %q: %w", c.Registry.EvictionAfterRaw, err)
		}
		if d < 0 {
			return fmt.Errorf("eviction_after must not be negative")
		}
		c.Registry.EvictionAfter = d
	}
	return nil
}
