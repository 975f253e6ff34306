// Package transport posts SOAP envelopes to the portal endpoint.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"alloggiati/internal/portal/metrics"
	"alloggiati/internal/portal/portalerr"
	"alloggiati/internal/portal/soap"
	"alloggiati/pkg/platform/circuit"
)

const (
	// DefaultEndpoint is the production service URL.
	DefaultEndpoint = "https://alloggiatiweb.poliziadistato.it/service/service.asmx"
	DefaultTimeout  = 30 * time.Second

	contentType = "text/xml; charset=utf-8"

	// Responses are small envelopes; the Luoghi table is the largest at a few MB.
	maxResponseBytes = 32 << 20
	// Bytes of a non-2xx body kept in the error message.
	maxErrorBody = 512
)

// Sender delivers one envelope and returns the raw response body.
type Sender interface {
	Send(ctx context.Context, envelope []byte, op soap.Operation) ([]byte, error)
}

// HTTPTransport is a Sender over HTTP POST. It never retries.
type HTTPTransport struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// Option configures an HTTPTransport.
type Option func(*HTTPTransport)

func WithEndpoint(url string) Option {
	return func(t *HTTPTransport) {
		if url != "" {
			t.endpoint = url
		}
	}
}

// WithTimeout bounds each call, including reading the response.
func WithTimeout(d time.Duration) Option {
	return func(t *HTTPTransport) {
		if d > 0 {
			t.timeout = d
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(t *HTTPTransport) {
		if c != nil {
			t.client = c
		}
	}
}

// WithBreaker enables fail-fast while the portal is unreachable.
func WithBreaker(b *circuit.Breaker) Option {
	return func(t *HTTPTransport) {
		t.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *HTTPTransport) {
		t.metrics = m
	}
}

// New creates an HTTPTransport targeting DefaultEndpoint unless overridden.
func New(opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		endpoint: DefaultEndpoint,
		timeout:  DefaultTimeout,
		client:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		logger:   slog.Default(),
		tracer:   otel.Tracer("alloggiati/portal/transport"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send posts envelope with the operation's SOAPAction header. Connection
// failures, timeouts and non-2xx statuses are returned as transport errors.
func (t *HTTPTransport) Send(ctx context.Context, envelope []byte, op soap.Operation) ([]byte, error) {
	ctx, span := t.tracer.Start(ctx, "portal."+string(op),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("soap.action", op.Action()),
			attribute.Int("soap.request_bytes", len(envelope)),
		))
	defer span.End()

	start := time.Now()
	body, outcome, err := t.send(ctx, envelope, op)
	t.metrics.ObserveCall(string(op), outcome, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	span.SetAttributes(attribute.Int("soap.response_bytes", len(body)))
	return body, nil
}

func (t *HTTPTransport) send(ctx context.Context, envelope []byte, op soap.Operation) ([]byte, string, error) {
	if t.breaker != nil && !t.breaker.Allow() {
		t.logger.WarnContext(ctx, "portal circuit open, failing fast",
			"operation", string(op),
		)
		err := portalerr.Transport(string(op), false, portalerr.ErrCircuitOpen)
		err.Retryable = false
		return nil, "circuit_open", err
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(envelope))
	if err != nil {
		return nil, "internal", portalerr.New(portalerr.KindInternal, string(op), "build request", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("SOAPAction", op.Action())

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, "transport", t.failure(ctx, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, "transport", t.failure(ctx, op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := body
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, "http_status", t.failure(ctx, op, &StatusError{Code: resp.StatusCode, Body: string(snippet)})
	}

	t.recordSuccess()
	return body, "ok", nil
}

// failure classifies err and feeds the breaker. Caller cancellation does not
// count against the portal.
func (t *HTTPTransport) failure(ctx context.Context, op soap.Operation, err error) *portalerr.Error {
	timeout := errors.Is(err, context.DeadlineExceeded) || isTimeout(err)
	canceled := errors.Is(err, context.Canceled)

	t.logger.ErrorContext(ctx, "portal call failed",
		"operation", string(op),
		"timeout", timeout,
		"error", err,
	)

	pe := portalerr.Transport(string(op), timeout, err)
	if canceled {
		pe.Retryable = false
		return pe
	}
	if t.breaker != nil {
		if _, change := t.breaker.RecordFailure(); change.Opened {
			t.metrics.SetCircuitOpen(true)
			t.logger.WarnContext(ctx, "portal circuit opened", "breaker", t.breaker.Name())
		}
	}
	return pe
}

func (t *HTTPTransport) recordSuccess() {
	if t.breaker == nil {
		return
	}
	if _, change := t.breaker.RecordSuccess(); change.Closed {
		t.metrics.SetCircuitOpen(false)
		t.logger.Info("portal circuit closed", "breaker", t.breaker.Name())
	}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// StatusError is a non-2xx HTTP response from the portal.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.Code)
}
