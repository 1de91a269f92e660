// Package api exposes the collector's HTTP surface: snapshot ingest, query,
// listing, health and a self-describing index.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bc-dunia/hostpulse/internal/logger"
	"github.com/bc-dunia/hostpulse/internal/otel"
	"github.com/bc-dunia/hostpulse/internal/storage"
)

const (
	// ServiceName is reported by the index endpoint.
	ServiceName = "HostPulse Collector API"

	defaultVersion = "1.0.0"
)

// Server serves the collector API on top of a storage engine.
type Server struct {
	engine            *storage.Engine
	logger            zerolog.Logger
	tracer            *otel.Tracer
	metrics           *otel.Metrics
	version           string
	server            *http.Server
	listener          net.Listener
	mu                sync.Mutex
	running           bool
	addr              string
	rateLimiter       *rateLimiter
	rateLimiterConfig *RateLimiterConfig
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithTracer enables server spans.
func WithTracer(t *otel.Tracer) Option {
	return func(s *Server) { s.tracer = t }
}

// WithMetrics enables request and storage metrics.
func WithMetrics(m *otel.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithVersion overrides the version reported by the index endpoint.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithRateLimiter configures per-client rate limiting.
func WithRateLimiter(cfg *RateLimiterConfig) Option {
	return func(s *Server) { s.rateLimiterConfig = cfg }
}

// NewServer creates a server that will listen on addr.
func NewServer(addr string, engine *storage.Engine, opts ...Option) *Server {
	s := &Server{
		engine:            engine,
		addr:              addr,
		logger:            logger.Nop(),
		tracer:            otel.NoopTracer(),
		metrics:           otel.NoopMetrics(),
		version:           defaultVersion,
		rateLimiterConfig: DefaultRateLimiterConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the full middleware chain and routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/query", s.handleQuery)
	mux.HandleFunc("/list", s.handleList)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleIndex)

	var h http.Handler = mux
	h = s.rateLimitMiddleware(h)
	h = s.recoverMiddleware(h)
	h = otel.Middleware(s.tracer, s.metrics)(h)
	h = s.requestLogMiddleware(h)
	return h
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.running = true

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Server error")
		}
	}()

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("API server listening")
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.running = false

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// URL returns the base URL of the server.
func (s *Server) URL() string {
	return fmt.Sprintf("http://%s", s.Addr())
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// StartTestServer starts a server on a random loopback port and returns it
// with a cleanup function.
func StartTestServer(engine *storage.Engine, opts ...Option) (*Server, func(), error) {
	server := NewServer("127.0.0.1:0", engine, opts...)
	if err := server.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start test server: %w", err)
	}
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}
	return server, cleanup, nil
}
