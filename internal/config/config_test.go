// ABOUTME: Tests for configuration loading, defaults and validation.
// ABOUTME: Covers env expansion, duration parsing and required fields.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dashboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_RELAY_SECRET", "hunter2")

	path := writeConfig(t, `
server:
  http_addr: "localhost:8080"

relay:
  shared_secret: "${TEST_RELAY_SECRET}"
  min_agent_version: "2.8.0"

registry:
  eviction_after: "24h"

geoip:
  database_path: "/var/lib/geoip/country.mmdb"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost:8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "hunter2", cfg.Relay.SharedSecret)
	assert.Equal(t, "2.8.0", cfg.Relay.MinAgentVersion)
	assert.Equal(t, 24*time.Hour, cfg.Registry.EvictionAfter)
	assert.Equal(t, "/var/lib/geoip/country.mmdb", cfg.GeoIP.DatabasePath)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "localhost:8080"
relay:
  shared_secret: "secret"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultMinAgentVersion, cfg.Relay.MinAgentVersion)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Zero(t, cfg.Registry.EvictionAfter)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			"missing http_addr",
			`
relay:
  shared_secret: "secret"
`,
		},
		{
			"missing shared_secret",
			`
server:
  http_addr: "localhost:8080"
`,
		},
		{
			"bad eviction duration",
			`
server:
  http_addr: "localhost:8080"
relay:
  shared_secret: "secret"
registry:
  eviction_after: "one day"
`,
		},
		{
			"negative eviction duration",
			`
server:
  http_addr: "localhost:8080"
relay:
  shared_secret: "secret"
registry:
  eviction_after: "-1h"
`,
		},
		{
			"invalid yaml",
			`server: [`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
