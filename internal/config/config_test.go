package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/meetsignal/internal/config"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("VOICE_SECRET", "s3cret")
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, "s3cret", cfg.Secret)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, time.Duration(0), cfg.PresenceTTL)
	assert.Equal(t, "drop", cfg.SlowConsumer)
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICEServers[0].URLs)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: debug
port: 9090
presence_ttl: 90s
send_buffer: 8
ice_servers:
  - urls: ["turn:turn.example.com:3478"]
    username: u
    credential: p
meeting_hosts:
  weekly: alice
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 90*time.Second, cfg.PresenceTTL)
	assert.Equal(t, 8, cfg.SendBuffer)
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, "u", cfg.ICEServers[0].Username)
	assert.Equal(t, map[string]string{"weekly": "alice"}, cfg.MeetingHosts)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("VOICE_PORT", "7070")
	t.Setenv("VOICE_SECRET", "s3cret")
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
}

func TestLoadRejectsBadTimings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("secret: x\nping_period: 60s\npong_wait: 30s\n"), 0o600))

	_, err := config.Load(path)
	assert.ErrorContains(t, err, "pong_wait")
}

func TestLoadRequiresSecretInRelease(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "secret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: debug\n"), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err, "debug mode runs without a secret")
	assert.Empty(t, cfg.Secret)
}
