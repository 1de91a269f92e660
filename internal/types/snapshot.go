// Package types defines the telemetry records exchanged between the agent and
// the collector server.
package types

// TimestampLayout is the wall-clock format used for snapshot and session timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// Unknown is the placeholder for string fields that could not be read.
const Unknown = "Unknown"

// Required snapshot fields checked by the collector on ingest.
const (
	FieldHostname  = "hostname"
	FieldIPAddress = "ip_address"
	FieldTimestamp = "timestamp"
)

// RequiredFields lists the fields every uploaded snapshot must carry, in report order.
var RequiredFields = []string{FieldHostname, FieldIPAddress, FieldTimestamp}

// HostSnapshot is one complete telemetry reading of a host.
// It is built once by the collector and never modified afterwards.
type HostSnapshot struct {
	// Hostname is the identity of the reporting machine.
	Hostname string `json:"hostname"`

	// IPAddress is the best-effort routable IPv4 address at collection time.
	IPAddress string `json:"ip_address"`

	// Timestamp is the collection wall-clock time in TimestampLayout.
	Timestamp string `json:"timestamp"`

	CPUInfo     CPUInfo       `json:"cpu_info"`
	Processes   []ProcessInfo `json:"processes"`
	LoggedUsers []LoggedUser  `json:"logged_users"`
	OSInfo      OSInfo        `json:"os_info"`
}

// CPUInfo contains processor counts and utilisation.
type CPUInfo struct {
	PhysicalCores int `json:"physical_cores"`
	LogicalCores  int `json:"logical_cores"`

	// UsagePercent holds one entry per logical core, in core order.
	UsagePercent []float64 `json:"usage_percent"`

	// AvgUsage is the mean of UsagePercent.
	AvgUsage float64 `json:"avg_usage"`

	// Model is the processor model name when the platform exposes it.
	Model string `json:"model,omitempty"`
}

// ProcessInfo describes one running process.
type ProcessInfo struct {
	PID           int32   `json:"pid"`
	Name          string  `json:"name"`
	Username      string  `json:"username"`
	MemoryPercent float64 `json:"memory_percent"`
	CPUPercent    float64 `json:"cpu_percent"`
}

// LoggedUser is an active login session.
type LoggedUser struct {
	Name     string `json:"name"`
	Terminal string `json:"terminal"`
	Host     string `json:"host"`
	Started  string `json:"started"`
}

// OSInfo identifies the operating system.
type OSInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Release   string `json:"release"`
	Machine   string `json:"machine"`
	Processor string `json:"processor"`

	// Distribution and DistributionVersion are only reported on Linux.
	Distribution        string `json:"distribution,omitempty"`
	DistributionVersion string `json:"distribution_version,omitempty"`
}
