package collector

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/bc-dunia/hostpulse/internal/types"
)

// processHandle is the subset of *process.Process read for each process.
type processHandle interface {
	PID() int32
	NameWithContext(ctx context.Context) (string, error)
	UsernameWithContext(ctx context.Context) (string, error)
	StatusWithContext(ctx context.Context) ([]string, error)
	MemoryPercentWithContext(ctx context.Context) (float32, error)
	CPUPercentWithContext(ctx context.Context) (float64, error)
}

type gopsutilProcess struct {
	*process.Process
}

func (p gopsutilProcess) PID() int32 { return p.Pid }

func listSystemProcesses(ctx context.Context) ([]processHandle, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	handles := make([]processHandle, 0, len(procs))
	for _, p := range procs {
		handles = append(handles, gopsutilProcess{p})
	}
	return handles, nil
}

// unameFields carries the kernel identification returned by uname(2).
type unameFields struct {
	Version string
	Release string
	Machine string
}

// SystemProvider reads metrics from the local host through gopsutil.
type SystemProvider struct {
	sampleInterval time.Duration
	goos           string
	logger         zerolog.Logger

	cpuCounts     func(ctx context.Context, logical bool) (int, error)
	cpuPercent    func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)
	cpuInfo       func(ctx context.Context) ([]cpu.InfoStat, error)
	listProcesses func(ctx context.Context) ([]processHandle, error)
	users         func(ctx context.Context) ([]host.UserStat, error)
	hostInfo      func(ctx context.Context) (*host.InfoStat, error)
	uname         func() (unameFields, error)
}

// NewSystemProvider creates a provider that samples CPU utilisation over
// sampleInterval.
func NewSystemProvider(sampleInterval time.Duration, logger zerolog.Logger) *SystemProvider {
	return &SystemProvider{
		sampleInterval: sampleInterval,
		goos:           runtime.GOOS,
		logger:         logger,
		cpuCounts:      cpu.CountsWithContext,
		cpuPercent:     cpu.PercentWithContext,
		cpuInfo:        cpu.InfoWithContext,
		listProcesses:  listSystemProcesses,
		users:          host.UsersWithContext,
		hostInfo:       host.InfoWithContext,
		uname:          readUname,
	}
}

// CPUInfo reports core counts, a per-core utilisation sample and the model
// name. The call blocks for the sample interval.
func (p *SystemProvider) CPUInfo(ctx context.Context) (types.CPUInfo, error) {
	info := types.CPUInfo{
		UsagePercent: []float64{},
		Model:        types.Unknown,
	}
	var errs []error

	if n, err := p.cpuCounts(ctx, false); err != nil {
		errs = append(errs, fieldError("physical_cores", err))
	} else {
		info.PhysicalCores = n
	}

	if n, err := p.cpuCounts(ctx, true); err != nil {
		errs = append(errs, fieldError("logical_cores", err))
	} else {
		info.LogicalCores = n
	}

	if usage, err := p.cpuPercent(ctx, p.sampleInterval, true); err != nil {
		errs = append(errs, fieldError("usage_percent", err))
	} else if len(usage) > 0 {
		var sum float64
		info.UsagePercent = make([]float64, len(usage))
		for i, u := range usage {
			info.UsagePercent[i] = roundPercent(u)
			sum += u
		}
		info.AvgUsage = roundPercent(sum / float64(len(usage)))
	}

	if stats, err := p.cpuInfo(ctx); err != nil {
		errs = append(errs, fieldError("model", err))
	} else {
		for _, s := range stats {
			if model := strings.TrimSpace(s.ModelName); model != "" {
				info.Model = model
				break
			}
		}
	}

	return info, errors.Join(errs...)
}

// Processes lists running processes. Processes that exit mid-read, deny access
// to their name or are zombies are skipped.
func (p *SystemProvider) Processes(ctx context.Context) ([]types.ProcessInfo, error) {
	handles, err := p.listProcesses(ctx)
	if err != nil {
		return []types.ProcessInfo{}, fieldError("processes", err)
	}

	out := make([]types.ProcessInfo, 0, len(handles))
	skipped := 0
	for _, h := range handles {
		info, err := readProcess(ctx, h)
		if err != nil {
			skipped++
			p.logger.Trace().Int32("pid", h.PID()).Err(err).Msg("Skipping process")
			continue
		}
		out = append(out, info)
	}

	if skipped > 0 {
		p.logger.Debug().Int("skipped", skipped).Int("listed", len(out)).Msg("Some processes could not be read")
	}

	return out, nil
}

func readProcess(ctx context.Context, h processHandle) (types.ProcessInfo, error) {
	name, err := h.NameWithContext(ctx)
	if err != nil {
		return types.ProcessInfo{}, fieldError("name", err)
	}

	statuses, err := h.StatusWithContext(ctx)
	switch {
	case err != nil && classify(err) == ErrVanished:
		return types.ProcessInfo{}, fieldError("status", err)
	case err == nil && isZombie(statuses):
		return types.ProcessInfo{}, &FieldError{Field: "status", Kind: ErrZombie}
	}

	info := types.ProcessInfo{
		PID:      h.PID(),
		Name:     name,
		Username: types.Unknown,
	}

	if user, err := h.UsernameWithContext(ctx); err == nil && user != "" {
		info.Username = user
	}
	if mem, err := h.MemoryPercentWithContext(ctx); err == nil {
		info.MemoryPercent = roundPercent(float64(mem))
	}
	if pct, err := h.CPUPercentWithContext(ctx); err == nil {
		info.CPUPercent = roundPercent(pct)
	}

	return info, nil
}

func isZombie(statuses []string) bool {
	for _, s := range statuses {
		if s == process.Zombie {
			return true
		}
	}
	return false
}

// LoggedUsers lists active login sessions.
func (p *SystemProvider) LoggedUsers(ctx context.Context) ([]types.LoggedUser, error) {
	stats, err := p.users(ctx)
	if err != nil {
		return []types.LoggedUser{}, fieldError("logged_users", err)
	}

	out := make([]types.LoggedUser, 0, len(stats))
	for _, u := range stats {
		started := types.Unknown
		if u.Started > 0 {
			started = time.Unix(int64(u.Started), 0).Local().Format(types.TimestampLayout)
		}
		out = append(out, types.LoggedUser{
			Name:     orUnknown(u.User),
			Terminal: orUnknown(u.Terminal),
			Host:     orUnknown(u.Host),
			Started:  started,
		})
	}
	return out, nil
}

// OSInfo identifies the operating system. Distribution fields are only filled
// on Linux.
func (p *SystemProvider) OSInfo(ctx context.Context) (types.OSInfo, error) {
	info := types.OSInfo{Name: osDisplayName(p.goos)}
	var errs []error

	hi, err := p.hostInfo(ctx)
	if err != nil {
		errs = append(errs, fieldError("host_info", err))
		hi = &host.InfoStat{}
	}

	if u, err := p.uname(); err != nil {
		errs = append(errs, fieldError("uname", err))
		info.Version = hi.KernelVersion
		info.Release = hi.KernelVersion
		info.Machine = hi.KernelArch
	} else {
		info.Version = u.Version
		info.Release = u.Release
		info.Machine = u.Machine
	}
	info.Processor = hi.KernelArch

	if p.goos == "linux" {
		info.Distribution = orUnknown(hi.Platform)
		info.DistributionVersion = orUnknown(hi.PlatformVersion)
	}

	return normalizeOSInfo(info), errors.Join(errs...)
}

// osDisplayName renders GOOS the way uname -s does for common systems.
func osDisplayName(goos string) string {
	switch goos {
	case "linux":
		return "Linux"
	case "darwin":
		return "Darwin"
	case "windows":
		return "Windows"
	case "freebsd":
		return "FreeBSD"
	case "openbsd":
		return "OpenBSD"
	case "netbsd":
		return "NetBSD"
	case "":
		return types.Unknown
	default:
		return strings.ToUpper(goos[:1]) + goos[1:]
	}
}

func normalizeOSInfo(info types.OSInfo) types.OSInfo {
	info.Name = orUnknown(info.Name)
	info.Version = orUnknown(info.Version)
	info.Release = orUnknown(info.Release)
	info.Machine = orUnknown(info.Machine)
	info.Processor = orUnknown(info.Processor)
	return info
}
