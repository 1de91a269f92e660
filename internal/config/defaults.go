package config

// Default configuration constants for the agent and the collector server.
const (
	DefaultAgentURL          = "http://localhost:5000/"
	DefaultIntervalSec       = 300 // 5 minutes
	DefaultRequestTimeoutSec = 30
	DefaultProbeAddress      = "8.8.8.8:80"
	DefaultCPUSampleMs       = 1000
	DefaultAgentLogFile      = "agent.log"

	DefaultServerHost    = "0.0.0.0"
	DefaultServerPort    = 5000
	DefaultDataDir       = "data"
	DefaultServerLogFile = "api_server.log"
	DefaultRateLimitRPS  = 0 // disabled
	DefaultRateBurst     = 20

	DefaultTelemetryExporter = "none"

	DefaultLogLevel  = "info"
	DefaultLogOutput = "stderr"
)
