// Command server runs the collector API that receives and stores host
// snapshots.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bc-dunia/hostpulse/internal/api"
	"github.com/bc-dunia/hostpulse/internal/config"
	"github.com/bc-dunia/hostpulse/internal/logger"
	"github.com/bc-dunia/hostpulse/internal/otel"
	"github.com/bc-dunia/hostpulse/internal/storage"
)

var version = "1.0.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
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
	if cfg.Debug {
		logger.SetDebug(true)
	}
	defer logger.Close()
	log := logger.WithComponent("api_server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, metrics, err := setupTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize telemetry")
		return 1
	}

	engine, err := storage.NewEngine(cfg.DataDir, logger.WithComponent("storage"))
	if err != nil {
		log.Error().Err(err).Str("data_dir", cfg.DataDir).Msg("Failed to open storage")
		return 1
	}
	log.Info().Str("data_dir", cfg.DataDir).Msg("Data directory ready")

	server := api.NewServer(cfg.Addr(), engine,
		api.WithLogger(logger.WithComponent("api")),
		api.WithTracer(tracer),
		api.WithMetrics(metrics),
		api.WithVersion(version),
		api.WithRateLimiter(api.NewRateLimiterConfig(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)),
	)

	log.Info().Str("addr", cfg.Addr()).Str("version", version).Msg("Starting API server")
	if err := server.Start(); err != nil {
		log.Error().Err(err).Msg("Failed to start server")
		return 1
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}
	if err := metrics.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to flush metrics")
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to flush traces")
	}

	log.Info().Msg("Server stopped")
	return 0
}

// parseConfig resolves the server settings. Precedence, lowest first: defaults,
// the --config file, HOSTPULSE_* environment, flags given on the command line.
func parseConfig(args []string, stderr io.Writer, getenv func(string) string) (*config.ServerConfig, error) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Path to a YAML config file")
	host := fs.String("host", config.DefaultServerHost, "Host to bind to")
	port := fs.Int("port", config.DefaultServerPort, "Port to bind to")
	debug := fs.Bool("debug", false, "Enable debug logging")
	dataDir := fs.String("data-dir", config.DefaultDataDir, "Directory snapshot files are written to")
	logFile := fs.String("log-file", config.DefaultServerLogFile, "Log file path, empty to log only to stderr")
	rateLimit := fs.Float64("rate-limit", config.DefaultRateLimitRPS, "Per-client rate limit in requests/second (0 to disable)")
	rateBurst := fs.Int("rate-burst", config.DefaultRateBurst, "Per-client rate limit burst size")
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

	s := cfg.Server
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			s.Host = *host
		case "port":
			s.Port = *port
		case "debug":
			s.Debug = *debug
		case "data-dir":
			s.DataDir = *dataDir
		case "log-file":
			s.Log.File = *logFile
		case "rate-limit":
			s.RateLimit.RequestsPerSecond = *rateLimit
		case "rate-burst":
			s.RateLimit.Burst = *rateBurst
		case "otel-exporter":
			s.Telemetry.Exporter = *otelExporter
		case "otel-endpoint":
			s.Telemetry.Endpoint = *otelEndpoint
		case "otel-insecure":
			s.Telemetry.Insecure = *otelInsecure
		}
	})

	if err := config.ValidateServer(s); err != nil {
		return nil, err
	}
	return s, nil
}

func setupTelemetry(ctx context.Context, tc config.TelemetryConfig) (*otel.Tracer, *otel.Metrics, error) {
	enabled := tc.Exporter != "" && tc.Exporter != string(otel.ExporterNone)

	tracer, err := otel.NewTracer(ctx, &otel.Config{
		Enabled:        enabled,
		ServiceName:    "hostpulse-server",
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
		ServiceName:    "hostpulse-server",
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
