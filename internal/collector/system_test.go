package collector

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bc-dunia/hostpulse/internal/types"
)

type fakeProcess struct {
	pid       int32
	name      string
	nameErr   error
	user      string
	userErr   error
	status    []string
	statusErr error
	mem       float32
	memErr    error
	cpu       float64
	cpuErr    error
}

func (f *fakeProcess) PID() int32 { return f.pid }

func (f *fakeProcess) NameWithContext(context.Context) (string, error) { return f.name, f.nameErr }

func (f *fakeProcess) UsernameWithContext(context.Context) (string, error) { return f.user, f.userErr }

func (f *fakeProcess) StatusWithContext(context.Context) ([]string, error) {
	return f.status, f.statusErr
}

func (f *fakeProcess) MemoryPercentWithContext(context.Context) (float32, error) {
	return f.mem, f.memErr
}

func (f *fakeProcess) CPUPercentWithContext(context.Context) (float64, error) {
	return f.cpu, f.cpuErr
}

func newTestProvider() *SystemProvider {
	p := NewSystemProvider(10*time.Millisecond, zerolog.Nop())
	p.cpuCounts = func(_ context.Context, logical bool) (int, error) {
		if logical {
			return 8, nil
		}
		return 4, nil
	}
	p.cpuPercent = func(context.Context, time.Duration, bool) ([]float64, error) {
		return []float64{10, 20, 30, 40}, nil
	}
	p.cpuInfo = func(context.Context) ([]cpu.InfoStat, error) {
		return []cpu.InfoStat{{ModelName: "Test CPU @ 3.00GHz"}}, nil
	}
	p.listProcesses = func(context.Context) ([]processHandle, error) { return nil, nil }
	p.users = func(context.Context) ([]host.UserStat, error) { return nil, nil }
	p.hostInfo = func(context.Context) (*host.InfoStat, error) {
		return &host.InfoStat{
			KernelVersion:   "6.1.0",
			KernelArch:      "x86_64",
			Platform:        "ubuntu",
			PlatformVersion: "22.04",
		}, nil
	}
	p.uname = func() (unameFields, error) {
		return unameFields{Version: "#1 SMP", Release: "6.1.0-test", Machine: "x86_64"}, nil
	}
	p.goos = "linux"
	return p
}

func TestSystemProvider_CPUInfo(t *testing.T) {
	p := newTestProvider()

	info, err := p.CPUInfo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, info.PhysicalCores)
	assert.Equal(t, 8, info.LogicalCores)
	assert.Equal(t, []float64{10, 20, 30, 40}, info.UsagePercent)
	assert.InDelta(t, 25.0, info.AvgUsage, 0.001)
	assert.Equal(t, "Test CPU @ 3.00GHz", info.Model)
}

func TestSystemProvider_CPUInfoPartialFailure(t *testing.T) {
	p := newTestProvider()
	p.cpuPercent = func(context.Context, time.Duration, bool) ([]float64, error) {
		return nil, errors.New("no stat file")
	}
	p.cpuInfo = func(context.Context) ([]cpu.InfoStat, error) {
		return nil, os.ErrPermission
	}

	info, err := p.CPUInfo(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, ErrAccessDenied)

	assert.Equal(t, 4, info.PhysicalCores)
	assert.Equal(t, 8, info.LogicalCores)
	assert.NotNil(t, info.UsagePercent)
	assert.Empty(t, info.UsagePercent)
	assert.Zero(t, info.AvgUsage)
	assert.Equal(t, types.Unknown, info.Model)
}

func TestSystemProvider_Processes(t *testing.T) {
	p := newTestProvider()
	p.listProcesses = func(context.Context) ([]processHandle, error) {
		return []processHandle{
			&fakeProcess{pid: 1, name: "init", user: "root", mem: 0.123456, cpu: 1.006},
			&fakeProcess{pid: 2, name: "ghost", nameErr: process.ErrorProcessNotRunning},
			&fakeProcess{pid: 3, name: "secret", nameErr: os.ErrPermission},
			&fakeProcess{pid: 4, name: "defunct", status: []string{process.Zombie}},
			&fakeProcess{pid: 5, name: "worker", userErr: os.ErrPermission, memErr: os.ErrPermission, cpuErr: os.ErrPermission},
			&fakeProcess{pid: 6, name: "gone", statusErr: process.ErrorProcessNotRunning},
		}, nil
	}

	procs, err := p.Processes(context.Background())
	require.NoError(t, err)
	require.Len(t, procs, 2)

	assert.Equal(t, types.ProcessInfo{PID: 1, Name: "init", Username: "root", MemoryPercent: 0.12, CPUPercent: 1.01}, procs[0])
	assert.Equal(t, types.ProcessInfo{PID: 5, Name: "worker", Username: types.Unknown}, procs[1])
}

func TestSystemProvider_ProcessesListFailure(t *testing.T) {
	p := newTestProvider()
	p.listProcesses = func(context.Context) ([]processHandle, error) {
		return nil, errors.New("proc not mounted")
	}

	procs, err := p.Processes(context.Background())
	require.Error(t, err)
	assert.NotNil(t, procs)
	assert.Empty(t, procs)
}

func TestSystemProvider_LoggedUsers(t *testing.T) {
	p := newTestProvider()
	started := time.Date(2025, 6, 27, 9, 30, 0, 0, time.Local)
	p.users = func(context.Context) ([]host.UserStat, error) {
		return []host.UserStat{
			{User: "alice", Terminal: "pts/0", Host: "10.0.0.7", Started: int(started.Unix())},
			{User: "bob", Terminal: "tty1"},
		}, nil
	}

	users, err := p.LoggedUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)

	assert.Equal(t, types.LoggedUser{Name: "alice", Terminal: "pts/0", Host: "10.0.0.7", Started: "2025-06-27 09:30:00"}, users[0])
	assert.Equal(t, types.Unknown, users[1].Host)
	assert.Equal(t, types.Unknown, users[1].Started)
}

func TestSystemProvider_OSInfoLinux(t *testing.T) {
	p := newTestProvider()

	info, err := p.OSInfo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.OSInfo{
		Name:                "Linux",
		Version:             "#1 SMP",
		Release:             "6.1.0-test",
		Machine:             "x86_64",
		Processor:           "x86_64",
		Distribution:        "ubuntu",
		DistributionVersion: "22.04",
	}, info)
}

func TestSystemProvider_OSInfoNonLinux(t *testing.T) {
	p := newTestProvider()
	p.goos = "darwin"

	info, err := p.OSInfo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Darwin", info.Name)
	assert.Empty(t, info.Distribution)
	assert.Empty(t, info.DistributionVersion)
}

func TestSystemProvider_OSInfoDegrades(t *testing.T) {
	p := newTestProvider()
	p.hostInfo = func(context.Context) (*host.InfoStat, error) { return nil, errors.New("boom") }
	p.uname = func() (unameFields, error) { return unameFields{}, ErrUnavailable }

	info, err := p.OSInfo(context.Background())
	require.Error(t, err)

	assert.Equal(t, "Linux", info.Name)
	assert.Equal(t, types.Unknown, info.Version)
	assert.Equal(t, types.Unknown, info.Release)
	assert.Equal(t, types.Unknown, info.Machine)
	assert.Equal(t, types.Unknown, info.Processor)
	assert.Equal(t, types.Unknown, info.Distribution)
	assert.Equal(t, types.Unknown, info.DistributionVersion)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"not running", process.ErrorProcessNotRunning, ErrVanished},
		{"not exist", os.ErrNotExist, ErrVanished},
		{"permission", os.ErrPermission, ErrAccessDenied},
		{"zombie", ErrZombie, ErrZombie},
		{"other", errors.New("weird"), ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestRoundPercent(t *testing.T) {
	assert.InDelta(t, 12.35, roundPercent(12.3456), 1e-9)
	assert.Zero(t, roundPercent(0))
}
