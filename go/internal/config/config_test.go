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

func clearEnv(t *testing.T) {
	for _, k := range []string{"PORT", "ALLOWED_ORIGINS", "NATS_URL", "REDIS_ADDR", "REDIS_PASSWORD",
		"REDIS_DB", "JWT_SECRET", "LOG_LEVEL", "POINTS_PER_CORRECT"} {
		t.Setenv(k, "")
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_PATH", writeConfig(t, `
server:
  port: "9000"
room:
  points_per_correct: 250
  tick_interval: 500ms
nats:
  url: nats://nats:4222
redis:
  code_ttl: 1h
auth:
  jwt_secret: from-file
log:
  level: debug
`))
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, 250, cfg.Room.PointsPerCorrect)
	assert.Equal(t, 500*time.Millisecond, cfg.Room.TickInterval)
	assert.Equal(t, 5, cfg.Room.TimeSyncEvery, "unset keys keep defaults")
	assert.Equal(t, "nats://nats:4222", cfg.NATS.URL)
	assert.Equal(t, "ROOM_CHANGES", cfg.NATS.StreamName)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, time.Hour, cfg.Redis.CodeTTL)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_DefaultPathOptional(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_PATH", "")
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PORT", "7000")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 100, cfg.Room.PointsPerCorrect)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.ErrorContains(t, err, "failed to read config file")

	t.Setenv("CONFIG_PATH", writeConfig(t, "room: ["))
	_, err = Load()
	assert.ErrorContains(t, err, "failed to parse config")

	t.Setenv("CONFIG_PATH", writeConfig(t, "log:\n  level: info\n"))
	_, err = Load()
	assert.ErrorContains(t, err, "jwt_secret")

	t.Setenv("JWT_SECRET", "x")
	t.Setenv("CONFIG_PATH", writeConfig(t, "log:\n  level: loud\n"))
	_, err = Load()
	assert.ErrorContains(t, err, "invalid log level")
}
