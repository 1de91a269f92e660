// Package otel provides OpenTelemetry metrics and tracing for the hostpulse
// agent and collector server.
package otel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Cycle outcomes recorded by RecordCycle.
const (
	OutcomeSuccess        = "success"
	OutcomeFailure        = "failure"
	OutcomeTransportError = "transport_error"
	OutcomePanic          = "panic"
)

// MetricsConfig holds configuration for the OpenTelemetry metrics.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active. Default: false (no-op).
	Enabled bool

	// ServiceName is the name of the service for metric attribution.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// ExporterType specifies which exporter to use.
	ExporterType ExporterType

	// OTLPEndpoint is the endpoint for OTLP exporters (e.g., "localhost:4317").
	OTLPEndpoint string

	// OTLPInsecure disables TLS for OTLP connections.
	OTLPInsecure bool

	// Attributes are additional attributes to add to all metrics.
	Attributes map[string]string
}

// DefaultMetricsConfig returns a default configuration with metrics disabled.
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled:      false,
		ServiceName:  "hostpulse",
		ExporterType: ExporterNone,
	}
}

// Metrics wraps the meter provider and the instruments used by hostpulse.
// A Metrics built with metrics disabled has no instruments and every Record
// call is a no-op.
type Metrics struct {
	config        *MetricsConfig
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	shutdown      func(context.Context) error
	mu            sync.Mutex

	lastProcessCount atomic.Int64
	processGauge     metric.Int64ObservableGauge
	processGaugeReg  metric.Registration

	// agent instruments
	cycleCounter     metric.Int64Counter
	collectDuration  metric.Float64Histogram
	deliveryDuration metric.Float64Histogram

	// server instruments
	requestCounter  metric.Int64Counter
	ingestCounter   metric.Int64Counter
	storageDuration metric.Float64Histogram
}

// NewMetrics creates a new Metrics instance with the given configuration.
func NewMetrics(ctx context.Context, cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil {
		cfg = DefaultMetricsConfig()
	}

	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		return newNoopMetrics(cfg), nil
	}

	exporter, err := createMetricExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	return newMetricsWithReader(cfg, sdkmetric.NewPeriodicReader(exporter))
}

// newMetricsWithReader builds an enabled Metrics on top of an arbitrary reader.
// Tests use it with a manual reader to inspect recorded data points.
func newMetricsWithReader(cfg *MetricsConfig, reader sdkmetric.Reader) (*Metrics, error) {
	res, err := createResource(cfg.ServiceName, cfg.ServiceVersion, cfg.Attributes)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)

	m := &Metrics{
		config:        cfg,
		meterProvider: mp,
		meter:         mp.Meter(cfg.ServiceName),
		shutdown:      mp.Shutdown,
	}

	if err := m.registerInstruments(); err != nil {
		return nil, fmt.Errorf("failed to register metric instruments: %w", err)
	}

	return m, nil
}

func newNoopMetrics(cfg *MetricsConfig) *Metrics {
	mp := sdkmetric.NewMeterProvider()
	return &Metrics{
		config:        cfg,
		meterProvider: mp,
		meter:         mp.Meter(cfg.ServiceName),
		shutdown:      func(context.Context) error { return nil },
	}
}

// NoopMetrics returns a metrics instance that does nothing (for testing or when disabled).
func NoopMetrics() *Metrics {
	return newNoopMetrics(DefaultMetricsConfig())
}

func createMetricExporter(ctx context.Context, cfg *MetricsConfig) (sdkmetric.Exporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		return stdoutmetric.New()

	case ExporterOTLPGRPC:
		opts := []otlpmetricgrpc.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)

	case ExporterOTLPHTTP:
		opts := []otlpmetrichttp.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.ExporterType)
	}
}

// createResource creates the OpenTelemetry resource with service information.
func createResource(serviceName, serviceVersion string, extra map[string]string) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
	}

	if serviceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(serviceVersion))
	}

	for k, v := range extra {
		attrs = append(attrs, attribute.String(k, v))
	}

	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", attrs...),
	)
}

func (m *Metrics) registerInstruments() error {
	var err error

	m.cycleCounter, err = m.meter.Int64Counter(
		"hostpulse.agent.cycles",
		metric.WithDescription("Collection cycles by outcome"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cycle counter: %w", err)
	}

	m.collectDuration, err = m.meter.Float64Histogram(
		"hostpulse.agent.collect.duration",
		metric.WithDescription("Time spent building a host snapshot"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("failed to create collect duration histogram: %w", err)
	}

	m.deliveryDuration, err = m.meter.Float64Histogram(
		"hostpulse.agent.delivery.duration",
		metric.WithDescription("Round-trip time of snapshot uploads"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("failed to create delivery duration histogram: %w", err)
	}

	m.requestCounter, err = m.meter.Int64Counter(
		"hostpulse.server.requests",
		metric.WithDescription("HTTP requests by route and status code"),
	)
	if err != nil {
		return fmt.Errorf("failed to create request counter: %w", err)
	}

	m.ingestCounter, err = m.meter.Int64Counter(
		"hostpulse.server.ingested",
		metric.WithDescription("Snapshots accepted by the ingest endpoint"),
	)
	if err != nil {
		return fmt.Errorf("failed to create ingest counter: %w", err)
	}

	m.storageDuration, err = m.meter.Float64Histogram(
		"hostpulse.server.storage.duration",
		metric.WithDescription("Latency of storage engine operations"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("failed to create storage duration histogram: %w", err)
	}

	m.processGauge, err = m.meter.Int64ObservableGauge(
		"hostpulse.agent.processes",
		metric.WithDescription("Processes reported in the most recent snapshot"),
	)
	if err != nil {
		return fmt.Errorf("failed to create process gauge: %w", err)
	}

	m.processGaugeReg, err = m.meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(m.processGauge, m.lastProcessCount.Load())
			return nil
		},
		m.processGauge,
	)
	if err != nil {
		return fmt.Errorf("failed to register process gauge callback: %w", err)
	}

	return nil
}

// RecordCycle counts one scheduler cycle with its outcome.
func (m *Metrics) RecordCycle(ctx context.Context, outcome string) {
	if m.cycleCounter == nil {
		return
	}
	m.cycleCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordCollect records how long building a snapshot took and how many processes it held.
func (m *Metrics) RecordCollect(ctx context.Context, latencyMs float64, processes int) {
	m.lastProcessCount.Store(int64(processes))
	if m.collectDuration == nil {
		return
	}
	m.collectDuration.Record(ctx, latencyMs)
}

// RecordDelivery records the latency of one upload. statusCode is 0 when no
// response was received.
func (m *Metrics) RecordDelivery(ctx context.Context, latencyMs float64, statusCode int, success bool) {
	if m.deliveryDuration == nil {
		return
	}
	m.deliveryDuration.Record(ctx, latencyMs, metric.WithAttributes(
		attribute.Int("status_code", statusCode),
		attribute.Bool("success", success),
	))
}

// RecordRequest counts one HTTP request served by the collector.
func (m *Metrics) RecordRequest(ctx context.Context, route string, statusCode int) {
	if m.requestCounter == nil {
		return
	}
	m.requestCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("route", route),
		attribute.Int("status_code", statusCode),
	))
}

// RecordIngest counts one snapshot accepted for storage.
func (m *Metrics) RecordIngest(ctx context.Context, ipAddress string) {
	if m.ingestCounter == nil {
		return
	}
	m.ingestCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("ip_address", ipAddress)))
}

// RecordStorage records the latency of a storage engine operation.
func (m *Metrics) RecordStorage(ctx context.Context, operation string, latencyMs float64, success bool) {
	if m.storageDuration == nil {
		return
	}
	m.storageDuration.Record(ctx, latencyMs, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("success", success),
	))
}

// Shutdown gracefully shuts down the metrics provider, flushing any pending metrics.
func (m *Metrics) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.processGaugeReg != nil {
		if err := m.processGaugeReg.Unregister(); err != nil {
			return fmt.Errorf("failed to unregister process gauge callback: %w", err)
		}
		m.processGaugeReg = nil
	}

	if m.shutdown != nil {
		return m.shutdown(ctx)
	}
	return nil
}

// Enabled returns whether metrics collection is enabled.
func (m *Metrics) Enabled() bool {
	return m.config.Enabled && m.config.ExporterType != ExporterNone
}

// MeterProvider returns the underlying meter provider.
func (m *Metrics) MeterProvider() *sdkmetric.MeterProvider {
	return m.meterProvider
}

// Install registers the meter provider as the process-wide default.
func (m *Metrics) Install() {
	if m != nil && m.Enabled() {
		otel.SetMeterProvider(m.meterProvider)
	}
}
