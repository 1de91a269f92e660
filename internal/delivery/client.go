// Package delivery uploads host snapshots to a collector server.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bc-dunia/hostpulse/internal/logger"
	"github.com/bc-dunia/hostpulse/internal/otel"
	"github.com/bc-dunia/hostpulse/internal/types"
)

const (
	maxResponseBodyBytes = 64 * 1024
	uploadPath           = "/upload"
)

// Result is the classified outcome of one upload that reached the server, or
// that failed before a connection was attempted.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`

	// Response is the decoded JSON body on success, the raw body text on a
	// non-200 status and nil otherwise.
	Response any `json:"response"`
}

// TransportError reports that no connection to the collector could be made.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("cannot connect to %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client posts snapshots to <baseURL>/upload. It performs a single attempt per
// call.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tracer     *otel.Tracer
	metrics    *otel.Metrics
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTracer enables client spans and traceparent injection.
func WithTracer(t *otel.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithMetrics records upload latency.
func WithMetrics(m *otel.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a delivery client. A nil httpClient gets one with timeout.
func NewClient(baseURL string, httpClient *http.Client, timeout time.Duration, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		tracer:     otel.NoopTracer(),
		metrics:    otel.NoopMetrics(),
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UploadURL returns the endpoint snapshots are posted to.
func (c *Client) UploadURL() string {
	return strings.TrimRight(c.baseURL, "/") + uploadPath
}

// Send serializes snap and posts it once. A *TransportError is returned when
// the collector could not be reached; every other outcome is reported in the
// Result.
func (c *Client) Send(ctx context.Context, snap *types.HostSnapshot) (*Result, error) {
	url := c.UploadURL()

	ctx, span := c.tracer.StartSpan(ctx, "delivery.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.url", url)),
	)
	defer span.End()

	start := time.Now()
	result, statusCode, err := c.send(ctx, url, snap)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	if err != nil {
		otel.RecordError(span, err, "transport")
		c.metrics.RecordDelivery(ctx, latencyMs, 0, false)
		c.logger.Error().Err(err).Str("url", url).Msg("Collector unreachable")
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.status_code", statusCode))
	c.metrics.RecordDelivery(ctx, latencyMs, statusCode, result.Success)

	if result.Success {
		c.logger.Info().Str("url", url).Float64("latency_ms", latencyMs).Msg("Data sent successfully")
	} else {
		otel.RecordError(span, errors.New(result.Message), "delivery")
		c.logger.Warn().Str("url", url).Int("status", statusCode).Msg(result.Message)
	}
	return result, nil
}

func (c *Client) send(ctx context.Context, url string, snap *types.HostSnapshot) (*Result, int, error) {
	body, err := json.Marshal(snap)
	if err != nil {
		return failure(err), 0, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return failure(err), 0, nil
	}
	req.Header.Set("Content-Type", "application/json")
	otel.InjectHeaders(ctx, req.Header, c.tracer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isConnectError(err) {
			return nil, 0, &TransportError{URL: url, Err: err}
		}
		return failure(err), 0, nil
	}

	raw, err := readResponseBody(resp)
	if err != nil {
		return failure(err), resp.StatusCode, nil
	}

	if resp.StatusCode != http.StatusOK {
		return &Result{
			Success:  false,
			Message:  fmt.Sprintf("Error sending data: HTTP %d: %s", resp.StatusCode, string(raw)),
			Response: string(raw),
		}, resp.StatusCode, nil
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return failure(fmt.Errorf("invalid response body: %w", err)), resp.StatusCode, nil
	}

	return &Result{
		Success:  true,
		Message:  "Data sent successfully",
		Response: decoded,
	}, resp.StatusCode, nil
}

func failure(err error) *Result {
	return &Result{
		Success: false,
		Message: fmt.Sprintf("Error sending data: %v", err),
	}
}

// isConnectError reports whether err means the connection was never
// established, as opposed to failing mid-exchange.
func isConnectError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxResponseBodyBytes {
		body = body[:maxResponseBodyBytes]
	}
	return body, nil
}
