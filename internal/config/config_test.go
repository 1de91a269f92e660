package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg.Agent)
	require.NotNil(t, cfg.Server)

	assert.Equal(t, DefaultAgentURL, cfg.Agent.URL)
	assert.Equal(t, 300*time.Second, cfg.Agent.Interval())
	assert.Equal(t, time.Second, cfg.Agent.CPUSample())
	assert.Equal(t, "0.0.0.0:5000", cfg.Server.Addr())
	assert.Equal(t, DefaultDataDir, cfg.Server.DataDir)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hostpulse.yaml")
	content := `
agent:
  url: http://collector:8000
  interval: 60
  log:
    level: debug
server:
  port: 9000
  data_dir: /var/lib/hostpulse
  telemetry:
    exporter: stdout
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://collector:8000", cfg.Agent.URL)
	assert.Equal(t, 60, cfg.Agent.IntervalSec)
	assert.Equal(t, "debug", cfg.Agent.Log.Level)
	assert.Equal(t, DefaultRequestTimeoutSec, cfg.Agent.TimeoutSec)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/var/lib/hostpulse", cfg.Server.DataDir)
	assert.Equal(t, "stdout", cfg.Server.Telemetry.Exporter)
	assert.Equal(t, DefaultServerHost, cfg.Server.Host)
}

func TestLoad_MissingSectionGetsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent-only.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  once: true\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Agent.Once)
	require.NotNil(t, cfg.Server)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent: [unclosed"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cfg.yaml")
	cfg := Default()
	cfg.Agent.URL = "http://10.0.0.1:5000/"

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Agent.URL, loaded.Agent.URL)
	assert.Equal(t, cfg.Server.Port, loaded.Server.Port)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"HOSTPULSE_URL":       "http://env:5000",
		"HOSTPULSE_INTERVAL":  "15",
		"HOSTPULSE_PORT":      "8088",
		"HOSTPULSE_DATA_DIR":  "/tmp/hp",
		"HOSTPULSE_LOG_LEVEL": "warn",
	}
	cfg := Default()
	require.NoError(t, ApplyEnv(&cfg, func(k string) string { return env[k] }))

	assert.Equal(t, "http://env:5000", cfg.Agent.URL)
	assert.Equal(t, 15, cfg.Agent.IntervalSec)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, "/tmp/hp", cfg.Server.DataDir)
	assert.Equal(t, "warn", cfg.Agent.Log.Level)
	assert.Equal(t, "warn", cfg.Server.Log.Level)
}

func TestApplyEnv_BadNumber(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(&cfg, func(k string) string {
		if k == "HOSTPULSE_INTERVAL" {
			return "often"
		}
		return ""
	})
	assert.Error(t, err)
}

func TestValidateAgent(t *testing.T) {
	cfg := Default()
	require.NoError(t, ValidateAgent(cfg.Agent))

	tests := []struct {
		name   string
		mutate func(*AgentConfig)
	}{
		{"relative url", func(a *AgentConfig) { a.URL = "localhost:5000" }},
		{"ftp scheme", func(a *AgentConfig) { a.URL = "ftp://host/" }},
		{"zero interval", func(a *AgentConfig) { a.IntervalSec = -1 }},
		{"unknown exporter", func(a *AgentConfig) { a.Telemetry.Exporter = "zipkin" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := *Default().Agent
			tt.mutate(&a)
			assert.Error(t, ValidateAgent(&a))
		})
	}
	assert.Error(t, ValidateAgent(nil))
}

func TestValidateServer(t *testing.T) {
	cfg := Default()
	require.NoError(t, ValidateServer(cfg.Server))

	s := *cfg.Server
	s.Port = 70000
	assert.Error(t, ValidateServer(&s))

	s = *cfg.Server
	s.RateLimit.RequestsPerSecond = -1
	assert.Error(t, ValidateServer(&s))

	assert.Error(t, ValidateServer(nil))
}

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultLogLevel, cfg.Agent.Log.Level)
	assert.Equal(t, DefaultLogOutput, cfg.Agent.Log.Output)
	assert.Equal(t, DefaultAgentLogFile, cfg.Agent.Log.File)
	assert.Equal(t, DefaultServerLogFile, cfg.Server.Log.File)
}
