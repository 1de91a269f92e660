// Package collector gathers host telemetry and assembles it into snapshots.
//
// A Provider answers four independent queries. Each query is best effort: a
// field that cannot be read falls back to its default ("Unknown" for strings,
// 0 for percentages) and is reported through a *FieldError, while the rest of
// the result is still returned.
package collector

//go:generate mockgen -destination=mock_provider.go -package=collector github.com/bc-dunia/hostpulse/internal/collector Provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/bc-dunia/hostpulse/internal/types"
)

// Error kinds attached to a FieldError.
var (
	ErrUnavailable  = errors.New("unavailable")
	ErrAccessDenied = errors.New("access denied")
	ErrVanished     = errors.New("process vanished")
	ErrZombie       = errors.New("zombie process")
)

// Provider is the source of raw host metrics.
type Provider interface {
	CPUInfo(ctx context.Context) (types.CPUInfo, error)
	Processes(ctx context.Context) ([]types.ProcessInfo, error)
	LoggedUsers(ctx context.Context) ([]types.LoggedUser, error)
	OSInfo(ctx context.Context) (types.OSInfo, error)
}

// FieldError reports one field that degraded to its default value.
type FieldError struct {
	Field string
	Kind  error
	Err   error
}

func (e *FieldError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Field, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Field, e.Kind, e.Err)
}

func (e *FieldError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func fieldError(field string, err error) *FieldError {
	return &FieldError{Field: field, Kind: classify(err), Err: err}
}

// classify maps an OS-level failure onto one of the error kinds.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrZombie):
		return ErrZombie
	case errors.Is(err, process.ErrorProcessNotRunning), errors.Is(err, os.ErrNotExist):
		return ErrVanished
	case errors.Is(err, os.ErrPermission):
		return ErrAccessDenied
	default:
		return ErrUnavailable
	}
}

// roundPercent rounds to two decimal places.
func roundPercent(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*100) / 100
}

func orUnknown(s string) string {
	if s == "" {
		return types.Unknown
	}
	return s
}
