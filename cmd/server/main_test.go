package main

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bc-dunia/hostpulse/internal/config"
)

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := parseConfig(nil, io.Discard, func(string) string { return "" })
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:5000", cfg.Addr())
	assert.Equal(t, config.DefaultDataDir, cfg.DataDir)
	assert.False(t, cfg.Debug)
	assert.Zero(t, cfg.RateLimit.RequestsPerSecond)
}

func TestParseConfig_FlagsOverrideEnv(t *testing.T) {
	env := func(key string) string {
		switch key {
		case config.EnvPrefix + "PORT":
			return "7000"
		case config.EnvPrefix + "DATA_DIR":
			return "/srv/hostpulse"
		}
		return ""
	}

	cfg, err := parseConfig([]string{"--host", "127.0.0.1", "--port", "8080", "--debug"}, io.Discard, env)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
	assert.Equal(t, "/srv/hostpulse", cfg.DataDir)
	assert.True(t, cfg.Debug)
}

func TestParseConfig_InvalidPort(t *testing.T) {
	_, err := parseConfig([]string{"--port", "70000"}, io.Discard, func(string) string { return "" })
	assert.Error(t, err)
}
