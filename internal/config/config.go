// Package config loads agent and server settings from YAML files and the environment.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bc-dunia/hostpulse/internal/logger"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HOSTPULSE_"

// Config holds both agent and server settings. Either section may be absent.
type Config struct {
	Agent  *AgentConfig  `yaml:"agent,omitempty"`
	Server *ServerConfig `yaml:"server,omitempty"`
}

// AgentConfig is used by the agent process running on a monitored host.
type AgentConfig struct {
	URL          string          `yaml:"url"`
	IntervalSec  int             `yaml:"interval"`
	Once         bool            `yaml:"once"`
	TimeoutSec   int             `yaml:"timeout"`
	ProbeAddress string          `yaml:"probe_address"`
	CPUSampleMs  int             `yaml:"cpu_sample_ms"`
	Log          logger.Config   `yaml:"log"`
	Telemetry    TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig is used by the collector server process.
type ServerConfig struct {
	Host      string          `yaml:"host"`
	Port      int             `yaml:"port"`
	Debug     bool            `yaml:"debug"`
	DataDir   string          `yaml:"data_dir"`
	Log       logger.Config   `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// TelemetryConfig selects the OpenTelemetry exporter for metrics and traces.
type TelemetryConfig struct {
	// Exporter is one of none, stdout, otlp-grpc, otlp-http.
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// RateLimitConfig configures per-client request throttling. Zero RPS disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"rps"`
	Burst             int     `yaml:"burst"`
}

// Interval returns the scheduling interval as a duration.
func (c *AgentConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}

// Timeout returns the delivery request timeout as a duration.
func (c *AgentConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// CPUSample returns the CPU sampling window.
func (c *AgentConfig) CPUSample() time.Duration {
	return time.Duration(c.CPUSampleMs) * time.Millisecond
}

// Addr returns the host:port the server listens on.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Default returns a config with both sections populated with defaults.
func Default() Config {
	cfg := Config{Agent: &AgentConfig{}, Server: &ServerConfig{}}
	ApplyDefaults(&cfg)
	return cfg
}

// Load reads and parses a YAML config file. An empty path yields the defaults.
// Missing sections are filled with defaults so callers can always dereference them.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if cfg.Agent == nil {
		cfg.Agent = &AgentConfig{}
	}
	if cfg.Server == nil {
		cfg.Server = &ServerConfig{}
	}
	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if a := cfg.Agent; a != nil {
		if a.URL == "" {
			a.URL = DefaultAgentURL
		}
		if a.IntervalSec == 0 {
			a.IntervalSec = DefaultIntervalSec
		}
		if a.TimeoutSec == 0 {
			a.TimeoutSec = DefaultRequestTimeoutSec
		}
		if a.ProbeAddress == "" {
			a.ProbeAddress = DefaultProbeAddress
		}
		if a.CPUSampleMs == 0 {
			a.CPUSampleMs = DefaultCPUSampleMs
		}
		if a.Telemetry.Exporter == "" {
			a.Telemetry.Exporter = DefaultTelemetryExporter
		}
		applyLogDefaults(&a.Log, DefaultAgentLogFile)
	}
	if s := cfg.Server; s != nil {
		if s.Host == "" {
			s.Host = DefaultServerHost
		}
		if s.Port == 0 {
			s.Port = DefaultServerPort
		}
		if s.DataDir == "" {
			s.DataDir = DefaultDataDir
		}
		if s.RateLimit.Burst == 0 {
			s.RateLimit.Burst = DefaultRateBurst
		}
		if s.Telemetry.Exporter == "" {
			s.Telemetry.Exporter = DefaultTelemetryExporter
		}
		applyLogDefaults(&s.Log, DefaultServerLogFile)
	}
}

func applyLogDefaults(l *logger.Config, file string) {
	if l.Level == "" {
		l.Level = DefaultLogLevel
	}
	if l.Output == "" {
		l.Output = DefaultLogOutput
	}
	if l.File == "" {
		l.File = file
	}
}

// ApplyEnv overrides settings from HOSTPULSE_* environment variables.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	env := func(key string) string { return strings.TrimSpace(getenv(EnvPrefix + key)) }

	if a := cfg.Agent; a != nil {
		if v := env("URL"); v != "" {
			a.URL = v
		}
		if v := env("INTERVAL"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%sINTERVAL: %w", EnvPrefix, err)
			}
			a.IntervalSec = n
		}
		if v := env("PROBE_ADDRESS"); v != "" {
			a.ProbeAddress = v
		}
		if v := env("LOG_LEVEL"); v != "" {
			a.Log.Level = v
		}
		if v := env("OTEL_EXPORTER"); v != "" {
			a.Telemetry.Exporter = v
		}
		if v := env("OTEL_ENDPOINT"); v != "" {
			a.Telemetry.Endpoint = v
		}
	}
	if s := cfg.Server; s != nil {
		if v := env("HOST"); v != "" {
			s.Host = v
		}
		if v := env("PORT"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%sPORT: %w", EnvPrefix, err)
			}
			s.Port = n
		}
		if v := env("DATA_DIR"); v != "" {
			s.DataDir = v
		}
		if v := env("LOG_LEVEL"); v != "" {
			s.Log.Level = v
		}
		if v := env("OTEL_EXPORTER"); v != "" {
			s.Telemetry.Exporter = v
		}
		if v := env("OTEL_ENDPOINT"); v != "" {
			s.Telemetry.Endpoint = v
		}
	}
	return nil
}

// ValidateAgent performs minimal validation of the agent section.
func ValidateAgent(a *AgentConfig) error {
	if a == nil {
		return fmt.Errorf("agent section is required")
	}
	u, err := url.Parse(a.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("agent.url must be an absolute http(s) URL, got %q", a.URL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("agent.url scheme must be http or https, got %q", u.Scheme)
	}
	if a.IntervalSec <= 0 {
		return fmt.Errorf("agent.interval must be positive, got %d", a.IntervalSec)
	}
	if a.TimeoutSec <= 0 {
		return fmt.Errorf("agent.timeout must be positive, got %d", a.TimeoutSec)
	}
	return validateTelemetry("agent", a.Telemetry)
}

// ValidateServer performs minimal validation of the server section.
func ValidateServer(s *ServerConfig) error {
	if s == nil {
		return fmt.Errorf("server section is required")
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", s.Port)
	}
	if s.DataDir == "" {
		return fmt.Errorf("server.data_dir is required")
	}
	if s.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("server.rate_limit.rps must not be negative")
	}
	return validateTelemetry("server", s.Telemetry)
}

func validateTelemetry(section string, t TelemetryConfig) error {
	switch t.Exporter {
	case "", "none", "stdout", "otlp-grpc", "otlp-http":
		return nil
	default:
		return fmt.Errorf("%s.telemetry.exporter must be one of none, stdout, otlp-grpc, otlp-http; got %q", section, t.Exporter)
	}
}
