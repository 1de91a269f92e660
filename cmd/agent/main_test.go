package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bc-dunia/hostpulse/internal/config"
	"github.com/bc-dunia/hostpulse/internal/delivery"
)

func noEnv(string) string { return "" }

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := parseConfig(nil, io.Discard, noEnv)
	require.NoError(t, err)

	assert.Equal(t, config.DefaultAgentURL, cfg.URL)
	assert.Equal(t, 300*time.Second, cfg.Interval())
	assert.False(t, cfg.Once)
	assert.Equal(t, config.DefaultAgentLogFile, cfg.Log.File)
}

func TestParseConfig_Flags(t *testing.T) {
	cfg, err := parseConfig([]string{"--url", "http://collector:8080/", "--interval", "60", "--once"}, io.Discard, noEnv)
	require.NoError(t, err)

	assert.Equal(t, "http://collector:8080/", cfg.URL)
	assert.Equal(t, 60, cfg.IntervalSec)
	assert.True(t, cfg.Once)
}

func TestParseConfig_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  url: http://from-file:5000/\n  interval: 30\n  timeout: 7\n"), 0o644))

	env := func(key string) string {
		if key == config.EnvPrefix+"INTERVAL" {
			return "45"
		}
		return ""
	}

	cfg, err := parseConfig([]string{"--config", path, "--url", "http://from-flag:5000/"}, io.Discard, env)
	require.NoError(t, err)

	assert.Equal(t, "http://from-flag:5000/", cfg.URL)
	assert.Equal(t, 45, cfg.IntervalSec)
	assert.Equal(t, 7, cfg.TimeoutSec)
}

func TestParseConfig_Invalid(t *testing.T) {
	_, err := parseConfig([]string{"--interval", "0"}, io.Discard, noEnv)
	assert.Error(t, err)

	_, err = parseConfig([]string{"--url", "not a url"}, io.Discard, noEnv)
	assert.Error(t, err)

	_, err = parseConfig([]string{"--bogus"}, io.Discard, noEnv)
	assert.Error(t, err)
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	err := printResult(&buf, &delivery.Result{Success: false, Message: "Agent error: boom"})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "Agent error: boom", out["message"])
	assert.Contains(t, out, "response")
	assert.Contains(t, buf.String(), "\n  \"success\"")
}
