package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: "http://backend.local/api/"
  store_id: "store-7"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://backend.local/api", cfg.Backend.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, "store-7", cfg.Stream.Channel)
	assert.Equal(t, 5*time.Second, cfg.Stream.ReconnectDelay)
	assert.Zero(t, cfg.Stream.ReconnectJitter)
	assert.Equal(t, 20*time.Second, cfg.Polling.Interval)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.NotNil(t, cfg.Display.Location)
	assert.True(t, cfg.Database.IsSQLite())
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: "http://backend.local"
  headers:
    Authorization: "Bearer token"
stream:
  channel: "franchise-1"
  reconnect_delay_ms: 250
  reconnect_jitter_ms: 100
polling:
  interval_ms: 1500
display:
  timezone: "Asia/Seoul"
database:
  dsn: "host=localhost user=wait dbname=wait"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "franchise-1", cfg.Stream.Channel)
	assert.Equal(t, 250*time.Millisecond, cfg.Stream.ReconnectDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.Stream.ReconnectJitter)
	assert.Equal(t, 1500*time.Millisecond, cfg.Polling.Interval)
	assert.Equal(t, "Asia/Seoul", cfg.Display.Location.String())
	assert.Equal(t, "Bearer token", cfg.Backend.Headers["Authorization"])
	assert.False(t, cfg.Database.IsSQLite())
}

func TestLoad_Errors(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "Missing base url", body: "backend:\n  store_id: x\n"},
		{name: "Unknown timezone", body: "backend:\n  base_url: http://x\ndisplay:\n  timezone: Mars/Olympus\n"},
		{name: "Invalid yaml", body: "backend: [\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_Example(t *testing.T) {
	cfg, err := Load("config.example.yaml")
	require.NoError(t, err)
	assert.Equal(t, "store-1", cfg.Stream.Channel)
	assert.Equal(t, time.Second, cfg.Stream.ReconnectJitter)
	assert.Equal(t, "Asia/Seoul", cfg.Display.Location.String())
	assert.True(t, cfg.Database.IsSQLite())
}
