package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bc-dunia/hostpulse/internal/types"
)

// Builder assembles HostSnapshots from a Provider and a Resolver.
type Builder struct {
	provider Provider
	resolver *Resolver
	logger   zerolog.Logger
	nowFunc  func() time.Time
}

// NewBuilder creates a snapshot builder.
func NewBuilder(provider Provider, resolver *Resolver, logger zerolog.Logger) *Builder {
	return &Builder{
		provider: provider,
		resolver: resolver,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// Build takes one snapshot of the host. It never fails: every field that
// cannot be read is replaced by its default and logged.
func (b *Builder) Build(ctx context.Context) types.HostSnapshot {
	hostname, err := b.resolver.Hostname()
	if err != nil {
		b.logger.Warn().Err(err).Msg("Failed to read hostname")
	}

	snap := types.HostSnapshot{
		Hostname:  hostname,
		IPAddress: b.resolver.IPAddress(ctx, hostname),
		Timestamp: b.nowFunc().Format(types.TimestampLayout),
	}

	cpuInfo, err := capture("cpu_info", func() (types.CPUInfo, error) { return b.provider.CPUInfo(ctx) })
	b.logDegraded("cpu_info", err)
	if cpuInfo.UsagePercent == nil {
		cpuInfo.UsagePercent = []float64{}
	}
	snap.CPUInfo = cpuInfo

	procs, err := capture("processes", func() ([]types.ProcessInfo, error) { return b.provider.Processes(ctx) })
	b.logDegraded("processes", err)
	if procs == nil {
		procs = []types.ProcessInfo{}
	}
	snap.Processes = procs

	users, err := capture("logged_users", func() ([]types.LoggedUser, error) { return b.provider.LoggedUsers(ctx) })
	b.logDegraded("logged_users", err)
	if users == nil {
		users = []types.LoggedUser{}
	}
	snap.LoggedUsers = users

	osInfo, err := capture("os_info", func() (types.OSInfo, error) { return b.provider.OSInfo(ctx) })
	b.logDegraded("os_info", err)
	snap.OSInfo = normalizeOSInfo(osInfo)

	return snap
}

func (b *Builder) logDegraded(section string, err error) {
	if err == nil {
		return
	}
	level := zerolog.WarnLevel
	var fe *FieldError
	if errors.As(err, &fe) && fe.Kind != ErrUnavailable {
		level = zerolog.DebugLevel
	}
	b.logger.WithLevel(level).Str("section", section).Err(err).Msg("Snapshot section degraded to defaults")
}

// capture runs fn and converts a panic into a FieldError.
func capture[T any](field string, fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &FieldError{Field: field, Kind: ErrUnavailable, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return fn()
}
