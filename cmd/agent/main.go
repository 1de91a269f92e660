// Command agent collects host telemetry and uploads it to a collector server,
// either once or on a fixed interval.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bc-dunia/hostpulse/internal/collector"
	"github.com/bc-dunia/hostpulse/internal/config"
	"github.com/bc-dunia/hostpulse/internal/delivery"
	"github.com/bc-dunia/hostpulse/internal/logger"
	"github.com/bc-dunia/hostpulse/internal/otel"
	"github.com/bc-dunia/hostpulse/internal/scheduler"
)

var version = "1.0.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := parseConfig(args, stderr, os.Getenv)
	if err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if err := logger.Init(cfg.Log); err != nil {
		fmt.Fprintf(stderr, "Error initializing logger: %v\n", err)
		return 1
	}
	defer logger.Close()
	log := logger.WithComponent("agent")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, metrics, err := setupTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize telemetry")
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metrics.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush metrics")
		}
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush traces")
		}
	}()

	provider := collector.NewSystemProvider(cfg.CPUSample(), logger.WithComponent("collector"))
	builder := collector.NewBuilder(provider, collector.NewResolver(cfg.ProbeAddress), logger.WithComponent("collector"))
	client := delivery.NewClient(cfg.URL, nil, cfg.Timeout(),
		delivery.WithTracer(tracer),
		delivery.WithMetrics(metrics),
		delivery.WithLogger(logger.WithComponent("delivery")),
	)
	loop := scheduler.New(builder, client, cfg.Interval(),
		scheduler.WithTracer(tracer),
		scheduler.WithMetrics(metrics),
		scheduler.WithLogger(logger.WithComponent("scheduler")),
	)

	log.Info().
		Str("version", version).
		Str("url", cfg.URL).
		Bool("once", cfg.Once).
		Int("interval_sec", cfg.IntervalSec).
		Msg("Starting agent")

	if cfg.Once {
		result := loop.RunOnce(ctx)
		if err := printResult(stdout, result); err != nil {
			log.Error().Err(err).Msg("Failed to print result")
			return 1
		}
		if !result.Success {
			return 1
		}
		return 0
	}

	if err := loop.RunScheduled(ctx); err != nil {
		log.Error().Err(err).Msg("Scheduler failed")
		return 1
	}
	log.Info().Msg("Agent stopped")
	return 0
}

// parseConfig resolves the agent settings. Precedence, lowest first: defaults,
// the --config file, HOSTPULSE_* environment, flags given on the command line.
func parseConfig(args []string, stderr io.Writer, getenv func(string) string) (*config.AgentConfig, error) {
	fs := flag.NewFlagSet("agent", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Path to a YAML config file")
	url := fs.String("url", config.DefaultAgentURL, "Collector base URL")
	interval := fs.Int("interval", config.DefaultIntervalSec, "Seconds between the end of one cycle and the start of the next")
	once := fs.Bool("once", false, "Run a single cycle, print the result and exit")
	timeout := fs.Int("timeout", config.DefaultRequestTimeoutSec, "Upload request timeout in seconds")
	probe := fs.String("probe-address", config.DefaultProbeAddress, "UDP address used to discover the outbound IP")
	logLevel := fs.String("log-level", config.DefaultLogLevel, "Log level (trace, debug, info, warn, error)")
	logFile := fs.String("log-file", config.DefaultAgentLogFile, "Log file path, empty to log only to stderr")
	otelExporter := fs.String("otel-exporter", config.DefaultTelemetryExporter, "Telemetry exporter: none, stdout, otlp-grpc, otlp-http")
	otelEndpoint := fs.String("otel-endpoint", "", "OTLP endpoint (host:port)")
	otelInsecure := fs.Bool("otel-insecure", false, "Disable TLS for OTLP")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(&cfg, getenv); err != nil {
		return nil, err
	}

	a := cfg.Agent
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "url":
			a.URL = *url
		case "interval":
			a.IntervalSec = *interval
		case "once":
			a.Once = *once
		case "timeout":
			a.TimeoutSec = *timeout
		case "probe-address":
			a.ProbeAddress = *probe
		case "log-level":
			a.Log.Level = *logLevel
		case "log-file":
			a.Log.File = *logFile
		case "otel-exporter":
			a.Telemetry.Exporter = *otelExporter
		case "otel-endpoint":
			a.Telemetry.Endpoint = *otelEndpoint
		case "otel-insecure":
			a.Telemetry.Insecure = *otelInsecure
		}
	})

	if err := config.ValidateAgent(a); err != nil {
		return nil, err
	}
	return a, nil
}

func setupTelemetry(ctx context.Context, tc config.TelemetryConfig) (*otel.Tracer, *otel.Metrics, error) {
	enabled := tc.Exporter != "" && tc.Exporter != string(otel.ExporterNone)

	tracer, err := otel.NewTracer(ctx, &otel.Config{
		Enabled:        enabled,
		ServiceName:    "hostpulse-agent",
		ServiceVersion: version,
		ExporterType:   otel.ExporterType(tc.Exporter),
		OTLPEndpoint:   tc.Endpoint,
		OTLPInsecure:   tc.Insecure,
		SampleRate:     1.0,
	})
	if err != nil {
		return nil, nil, err
	}

	metrics, err := otel.NewMetrics(ctx, &otel.MetricsConfig{
		Enabled:        enabled,
		ServiceName:    "hostpulse-agent",
		ServiceVersion: version,
		ExporterType:   otel.ExporterType(tc.Exporter),
		OTLPEndpoint:   tc.Endpoint,
		OTLPInsecure:   tc.Insecure,
	})
	if err != nil {
		tracer.Shutdown(ctx)
		return nil, nil, err
	}

	tracer.Install()
	metrics.Install()
	return tracer, metrics, nil
}

func printResult(w io.Writer, result *delivery.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
