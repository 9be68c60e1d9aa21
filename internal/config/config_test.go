package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnvs(t *testing.T, vars map[string]string) {
	t.Helper()
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, ":9090", cfg.TCPListenAddr)
	assert.Contains(t, cfg.PostgresURL, "localhost:5432")
	assert.Contains(t, cfg.ClickHouseURL, "localhost:9000")
	assert.Equal(t, "", cfg.RedisURL)
	assert.Equal(t, 4*1024*1024, cfg.MaxFrameBytes)
	assert.Equal(t, 10, cfg.HeartbeatTimeoutSeconds)
	assert.Equal(t, "./web", cfg.WebDir)
	assert.Equal(t, "index.html", cfg.IndexFile)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_CustomEnvVars(t *testing.T) {
	setEnvs(t, map[string]string{
		"LISTEN_ADDR":               ":9000",
		"TCP_LISTEN_ADDR":           ":9100",
		"POSTGRES_URL":              "postgres://custom:custom@db:5432/app",
		"CLICKHOUSE_URL":            "clickhouse://ch:9000/logs",
		"REDIS_URL":                 "redis://redis:6379/1",
		"MAX_FRAME_BYTES":           "1048576",
		"HEARTBEAT_TIMEOUT_SECONDS": "30",
		"WEB_DIR":                   "/srv/web",
		"INDEX_FILE":                "home.html",
		"ENVIRONMENT":               "production",
		"LOG_LEVEL":                 "debug",
	})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, ":9100", cfg.TCPListenAddr)
	assert.Equal(t, "postgres://custom:custom@db:5432/app", cfg.PostgresURL)
	assert.Equal(t, "clickhouse://ch:9000/logs", cfg.ClickHouseURL)
	assert.Equal(t, "redis://redis:6379/1", cfg.RedisURL)
	assert.Equal(t, 1048576, cfg.MaxFrameBytes)
	assert.Equal(t, 30, cfg.HeartbeatTimeoutSeconds)
	assert.Equal(t, "/srv/web", cfg.WebDir)
	assert.Equal(t, "home.html", cfg.IndexFile)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Validate_MissingListenAddr(t *testing.T) {
	cfg := &Config{ListenAddr: "", TCPListenAddr: ":9090", MaxFrameBytes: 1024}
	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LISTEN_ADDR is required")
}

func TestLoad_Validate_MissingTCPListenAddr(t *testing.T) {
	cfg := &Config{ListenAddr: ":8080", TCPListenAddr: "", MaxFrameBytes: 1024}
	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TCP_LISTEN_ADDR is required")
}

func TestLoad_Validate_NonPositiveMaxFrameBytes(t *testing.T) {
	cfg := &Config{ListenAddr: ":8080", TCPListenAddr: ":9090", MaxFrameBytes: 0}
	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_FRAME_BYTES must be positive")
}

func TestLoad_Validate_AllPresent(t *testing.T) {
	cfg := &Config{ListenAddr: ":8080", TCPListenAddr: ":9090", MaxFrameBytes: 1024}
	err := cfg.validate()
	require.NoError(t, err)
}

func TestIsDevelopment(t *testing.T) {
	tests := []struct {
		env  string
		want bool
	}{
		{"development", true},
		{"staging", false},
		{"production", false},
		{"", false},
		{"dev", false},
	}

	for _, tc := range tests {
		t.Run(tc.env, func(t *testing.T) {
			cfg := &Config{Environment: tc.env}
			assert.Equal(t, tc.want, cfg.IsDevelopment())
		})
	}
}

func TestGetEnv(t *testing.T) {
	t.Run("returns env value when set", func(t *testing.T) {
		t.Setenv("TEST_GET_ENV_KEY", "custom_value")
		assert.Equal(t, "custom_value", getEnv("TEST_GET_ENV_KEY", "fallback"))
	})

	t.Run("returns fallback when not set", func(t *testing.T) {
		os.Unsetenv("TEST_GET_ENV_KEY_MISSING")
		assert.Equal(t, "fallback", getEnv("TEST_GET_ENV_KEY_MISSING", "fallback"))
	})
}

func TestGetEnvInt(t *testing.T) {
	t.Run("returns parsed int when valid", func(t *testing.T) {
		t.Setenv("TEST_INT_KEY", "42")
		assert.Equal(t, 42, getEnvInt("TEST_INT_KEY", 99))
	})

	t.Run("returns fallback when not set", func(t *testing.T) {
		os.Unsetenv("TEST_INT_KEY_MISSING")
		assert.Equal(t, 99, getEnvInt("TEST_INT_KEY_MISSING", 99))
	})

	t.Run("returns fallback when invalid int", func(t *testing.T) {
		t.Setenv("TEST_INT_KEY_BAD", "not-a-number")
		assert.Equal(t, 99, getEnvInt("TEST_INT_KEY_BAD", 99))
	})
}
