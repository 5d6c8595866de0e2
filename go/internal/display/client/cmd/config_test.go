package main

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
	path := filepath.Join(t.TempDir(), "display.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestConnectionConfigFromEnv(t *testing.T) {
	t.Setenv("DISPLAY_ORIGIN", "https://show.example.com")
	t.Setenv("DISPLAY_WS_PATH", "/ws/abc")
	t.Setenv("DISPLAY_BACKOFF_SEED_MS", "500")
	t.Setenv("DISPLAY_BACKOFF_CAP_MS", "30000")
	t.Setenv("DISPLAY_BACKOFF_MULTIPLIER", "1.5")

	conn, err := connectionConfig(&Config{})
	require.NoError(t, err)

	assert.Equal(t, "wss://show.example.com/ws/abc", conn.URL)
	assert.Equal(t, 500*time.Millisecond, conn.SeedBackoff)
	assert.Equal(t, 30*time.Second, conn.MaxBackoff)
	assert.Equal(t, 1.5, conn.BackoffMultiplier)
	assert.Empty(t, conn.StaticPayload)
}

func TestConnectionConfigStaticFromFile(t *testing.T) {
	path := writeConfig(t, `
static:
  status: init
  role: timer
  event:
    name: PyCon
  message: Doors open at 9
`)
	cfg, err := loadConfig(path)
	require.NoError(t, err)

	conn, err := connectionConfig(cfg)
	require.NoError(t, err)

	assert.Empty(t, conn.URL)
	assert.JSONEq(t, `{"status":"init","role":"timer","event":{"name":"PyCon"},"message":"Doors open at 9"}`, string(conn.StaticPayload))
	assert.Equal(t, time.Second, conn.SeedBackoff)
}

func TestConnectionConfigRequiresSomethingToShow(t *testing.T) {
	_, err := connectionConfig(&Config{})
	assert.Error(t, err)

	_, err = connectionConfig(&Config{WSPath: "/ws/"})
	assert.Error(t, err)
}

func TestPublisherConfig(t *testing.T) {
	_, ok := publisherConfig(&Config{})
	assert.False(t, ok)

	cfg, err := loadConfig(writeConfig(t, `
publisher:
  enabled: true
  bucket: HALL_A
`))
	require.NoError(t, err)
	pub, ok := publisherConfig(cfg)
	require.True(t, ok)
	assert.Equal(t, "HALL_A", pub.Bucket)

	t.Setenv("NATS_URL", "nats://broker:4222")
	pub, ok = publisherConfig(&Config{})
	require.True(t, ok)
	assert.Equal(t, "nats://broker:4222", pub.URL)
}
