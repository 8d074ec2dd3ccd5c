package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextdooroldwang/sprite-house/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestMustLoadPath(t *testing.T) {
	path := writeConfig(t, `
env: dev
http:
  address: ":9000"
room:
  max_users: 2
  spawn_x: 10
  spawn_y: 20
presence:
  move_interval: 25ms
webrtc:
  stun_servers:
    - "stun:stun.example.com:3478"
`)

	cfg := config.MustLoadPath(path)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, ":9000", cfg.HTTP.Address)
	assert.Equal(t, 2, cfg.Room.MaxUsers)
	assert.Equal(t, 10.0, cfg.Room.SpawnX)
	assert.Equal(t, 20.0, cfg.Room.SpawnY)
	assert.Equal(t, 25*time.Millisecond, cfg.Presence.MoveInterval)
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, cfg.WebRTC.STUNServers)
}

func TestDefaultsFillUnsetValues(t *testing.T) {
	path := writeConfig(t, "env: local\n")

	cfg := config.MustLoadPath(path)

	assert.Equal(t, ":3301", cfg.HTTP.Address)
	assert.Equal(t, []string{"http://localhost:3300"}, cfg.CORS.AllowOrigins)
	assert.Equal(t, 4, cfg.Room.MaxUsers)
	assert.Equal(t, 400.0, cfg.Room.SpawnX)
	assert.Equal(t, 300.0, cfg.Room.SpawnY)
	assert.Equal(t, 50*time.Millisecond, cfg.Presence.MoveInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.Presence.InterpolateWindow)
	assert.Len(t, cfg.WebRTC.STUNServers, 2)
}

func TestMustLoadPathPanicsOnMissingFile(t *testing.T) {
	assert.Panics(t, func() {
		config.MustLoadPath(filepath.Join(t.TempDir(), "nope.yaml"))
	})
}
