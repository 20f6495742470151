// Package trace tags outgoing API requests with a request ID and logs how
// each one went.
package trace

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	applog "cambista/internal/log"
)

// HeaderRequestID carries the request ID to the server.
const HeaderRequestID = "X-Request-ID"

// ContextKey type for context keys
type ContextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"
)

// Transport is an http.RoundTripper that wraps Base.
type Transport struct {
	base   http.RoundTripper
	logger *slog.Logger

	total    atomic.Int64
	failures atomic.Int64
	micros   atomic.Int64
}

// Metrics tracks request metrics
type Metrics struct {
	TotalRequests       int64
	FailedRequests      int64
	AverageResponseTime int64 // in microseconds
}

// NewTransport wraps base, or http.DefaultTransport when base is nil.
func NewTransport(base http.RoundTripper, logger *slog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default().With(applog.FieldComponent, applog.ComponentAPI)
	}
	return &Transport{base: base, logger: logger}
}

// RoundTrip implements http.RoundTripper. The ID comes from the request
// context when set there, otherwise a fresh one is generated.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	ctx := req.Context()

	requestID := GetRequestID(ctx)
	if requestID == "" {
		requestID = GenerateRequestID()
	}
	if req.Header.Get(HeaderRequestID) == "" {
		req = req.Clone(ctx)
		req.Header.Set(HeaderRequestID, requestID)
	}

	t.logger.DebugContext(ctx, "HTTP request started",
		"request_id", requestID,
		"method", req.Method,
		"path", req.URL.Path,
		"content_length", req.ContentLength)

	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)
	t.total.Add(1)
	t.micros.Add(duration.Microseconds())

	if err != nil {
		t.failures.Add(1)
		t.logger.WarnContext(ctx, "HTTP request failed",
			"request_id", requestID,
			"method", req.Method,
			"path", req.URL.Path,
			applog.FieldDuration, duration,
			applog.FieldError, err)
		return nil, err
	}

	// Use appropriate log level based on status code
	logLevel := slog.LevelDebug
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		logLevel = slog.LevelWarn
	} else if resp.StatusCode >= 500 {
		logLevel = slog.LevelError
	}
	if resp.StatusCode >= 400 {
		t.failures.Add(1)
	}

	t.logger.Log(ctx, logLevel, "HTTP request completed",
		"request_id", requestID,
		"method", req.Method,
		"path", req.URL.Path,
		applog.FieldStatus, resp.StatusCode,
		"duration_ms", duration.Milliseconds(),
		applog.FieldSuccess, resp.StatusCode < 400)
	return resp, nil
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}

// WithRequestID pins the request ID used for calls made with ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetMetrics returns current metrics
func (t *Transport) GetMetrics() Metrics {
	total := t.total.Load()
	m := Metrics{
		TotalRequests:  total,
		FailedRequests: t.failures.Load(),
	}
	if total > 0 {
		m.AverageResponseTime = t.micros.Load() / total
	}
	return m
}
