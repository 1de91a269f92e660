// Package scheduler drives the collect and deliver cycle of the agent.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bc-dunia/hostpulse/internal/delivery"
	"github.com/bc-dunia/hostpulse/internal/logger"
	"github.com/bc-dunia/hostpulse/internal/otel"
	"github.com/bc-dunia/hostpulse/internal/types"
)

// SnapshotBuilder produces one host snapshot. It must not fail.
type SnapshotBuilder interface {
	Build(ctx context.Context) types.HostSnapshot
}

// Sender delivers one snapshot. A *delivery.TransportError means the
// collector could not be reached.
type Sender interface {
	Send(ctx context.Context, snap *types.HostSnapshot) (*delivery.Result, error)
}

// Loop runs collection cycles either once or on a fixed interval.
type Loop struct {
	builder  SnapshotBuilder
	sender   Sender
	interval time.Duration
	tracer   *otel.Tracer
	metrics  *otel.Metrics
	logger   zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Loop.
type Option func(*Loop)

// WithTracer wraps each cycle in a span.
func WithTracer(t *otel.Tracer) Option {
	return func(l *Loop) { l.tracer = t }
}

// WithMetrics counts cycles by outcome.
func WithMetrics(m *otel.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// WithLogger sets the loop logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// New creates a loop that waits interval between the end of one cycle and the
// start of the next.
func New(builder SnapshotBuilder, sender Sender, interval time.Duration, opts ...Option) *Loop {
	l := &Loop{
		builder:  builder,
		sender:   sender,
		interval: interval,
		tracer:   otel.NoopTracer(),
		metrics:  otel.NoopMetrics(),
		logger:   logger.Nop(),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RunOnce performs one build and send cycle. It never fails: transport errors
// and panics are reported as an unsuccessful Result.
func (l *Loop) RunOnce(ctx context.Context) (result *delivery.Result) {
	ctx, span := l.tracer.StartSpan(ctx, "agent.cycle")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Cycle panicked")
			err := fmt.Errorf("panic: %v", r)
			otel.RecordError(span, err, "panic")
			l.metrics.RecordCycle(ctx, otel.OutcomePanic)
			result = agentError(err)
		}
	}()

	l.logger.Info().Msg("Collecting system information")
	start := time.Now()
	snap := l.builder.Build(ctx)
	l.metrics.RecordCollect(ctx, float64(time.Since(start).Microseconds())/1000.0, len(snap.Processes))
	span.SetAttributes(
		attribute.String("host.name", snap.Hostname),
		attribute.Int("processes", len(snap.Processes)),
	)

	l.logger.Info().Str("hostname", snap.Hostname).Str("ip_address", snap.IPAddress).Msg("Sending data to collector")
	res, err := l.sender.Send(ctx, &snap)
	if err != nil {
		var te *delivery.TransportError
		outcome := otel.OutcomeFailure
		if errors.As(err, &te) {
			outcome = otel.OutcomeTransportError
		}
		otel.RecordError(span, err, outcome)
		l.metrics.RecordCycle(ctx, outcome)
		l.logger.Error().Err(err).Msg("Cycle failed")
		return agentError(err)
	}

	if res.Success {
		l.metrics.RecordCycle(ctx, otel.OutcomeSuccess)
	} else {
		l.metrics.RecordCycle(ctx, otel.OutcomeFailure)
	}
	return res
}

// RunScheduled repeats RunOnce until ctx is cancelled. A cycle in progress is
// allowed to finish; cancellation is observed before each cycle and during the
// wait between cycles. It returns nil on cancellation.
func (l *Loop) RunScheduled(ctx context.Context) error {
	if l.interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", l.interval)
	}

	l.logger.Info().Dur("interval", l.interval).Msg("Starting scheduled collection")

	for {
		if ctx.Err() != nil {
			l.logger.Info().Msg("Scheduler stopped")
			return nil
		}

		res := l.RunOnce(context.WithoutCancel(ctx))
		l.logger.Info().Bool("success", res.Success).Str("message", res.Message).Msg("Cycle finished")

		if err := l.sleep(ctx, l.interval); err != nil {
			l.logger.Info().Msg("Scheduler stopped")
			return nil
		}
	}
}

func agentError(err error) *delivery.Result {
	return &delivery.Result{
		Success: false,
		Message: fmt.Sprintf("Agent error: %v", err),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
