// Package httpclient provides a shared HTTP client with retry, backoff and
// tracing for the provider adapters (C4 OSM, C4 HERE).
package httpclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/remintz/mapalinear/internal/apperr"
	"github.com/remintz/mapalinear/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RetryOptions configures retry behavior for HTTP requests.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryOptions provides sensible defaults for provider requests.
var DefaultRetryOptions = RetryOptions{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
	Multiplier:   2.0,
}

// DefaultClient is a pre-configured HTTP client with connection pooling and
// secure TLS defaults, shared across provider adapters.
var DefaultClient = &http.Client{
	Timeout: 30 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

func secureHeaders(req *http.Request) {
	req.Header.Set("X-Content-Type-Options", "nosniff")
	req.Header.Set("X-Frame-Options", "DENY")
	req.Header.Set("X-XSS-Protection", "1; mode=block")
	req.Header.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
}

// WithRetry performs req with exponential backoff retry logic. req must not
// carry a body; use WithRetryFactory for requests that do.
func WithRetry(ctx context.Context, req *http.Request, client *http.Client, options RetryOptions) (*http.Response, error) {
	spanName := fmt.Sprintf("http.request %s %s", req.Method, req.URL.Host)
	ctx, span := tracing.StartSpan(ctx, spanName,
		trace.WithAttributes(
			attribute.String(tracing.AttrHTTPMethod, req.Method),
			attribute.String("http.url", req.URL.String()),
			attribute.String("http.host", req.URL.Host),
			attribute.Int("http.retry.max_attempts", options.MaxAttempts),
		),
	)
	defer span.End()

	logger := slog.Default().With("url", req.URL.String(), "method", req.Method, "host", req.Host)
	var lastErr error
	delay := options.InitialDelay

	for attempt := 0; attempt < options.MaxAttempts; attempt++ {
		if attempt > 0 {
			tracing.AddEvent(ctx, "retry_attempt",
				trace.WithAttributes(
					attribute.Int("attempt", attempt+1),
					attribute.Int64("delay_ms", delay.Milliseconds()),
					attribute.String("error", fmt.Sprintf("%v", lastErr)),
				),
			)
			logger.Info("retrying request", "attempt", attempt+1, "max_attempts", options.MaxAttempts, "delay", delay, "last_error", lastErr)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				span.SetStatus(codes.Error, "request cancelled")
				return nil, ctx.Err()
			}

			delay = time.Duration(float64(delay) * options.Multiplier)
			if delay > options.MaxDelay {
				delay = options.MaxDelay
			}
		}

		newReq := req.Clone(ctx)
		if req.Body != nil {
			logger.Error("request with body cannot be retried automatically, use a request factory function")
			span.SetStatus(codes.Error, "cannot retry request with body")
			return nil, apperr.New(apperr.CodeInternal, "cannot retry request with non-nil body").
				WithGuidance("use WithRetryFactory for requests with bodies")
		}

		secureHeaders(newReq)

		resp, err := client.Do(newReq)
		if err == nil && resp.StatusCode == http.StatusOK {
			span.SetAttributes(
				attribute.Int(tracing.AttrHTTPStatusCode, resp.StatusCode),
				attribute.Int("http.response.content_length", int(resp.ContentLength)),
				attribute.String("http.response.content_type", resp.Header.Get("Content-Type")),
				attribute.Int("http.retry.attempts", attempt+1),
			)
			span.SetStatus(codes.Ok, "")
			logger.Debug("request successful", "status", resp.StatusCode, "content_length", resp.ContentLength)
			return resp, nil
		}

		if err != nil {
			lastErr = err
			logger.Error("request failed", "error", err, "attempt", attempt+1)
		} else {
			lastErr = apperr.Service(req.URL.Host, resp.StatusCode, fmt.Sprintf("HTTP status %d", resp.StatusCode))
			logger.Error("request returned error status", "status", resp.StatusCode, "attempt", attempt+1)
			if cerr := resp.Body.Close(); cerr != nil {
				logger.Warn("failed to close response body", "error", cerr)
			}
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "max retries exceeded")
	span.SetAttributes(
		attribute.Int("http.retry.attempts", options.MaxAttempts),
		attribute.String("http.retry.final_error", fmt.Sprintf("%v", lastErr)),
	)

	if appErr, ok := lastErr.(*apperr.Error); ok {
		return nil, appErr.WithGuidance("maximum retry attempts reached. " + appErr.Guidance)
	}
	return nil, apperr.Wrap(apperr.CodeProviderUnavailable, "max retries reached", lastErr).
		WithGuidance("the request failed after multiple attempts, try again later")
}

// DoWithRetry performs req using DefaultRetryOptions and, if client is nil,
// DefaultClient.
func DoWithRetry(ctx context.Context, req *http.Request, client *http.Client) (*http.Response, error) {
	if client == nil {
		client = DefaultClient
	}
	return WithRetry(ctx, req, client, DefaultRetryOptions)
}

// RequestFactory builds a fresh *http.Request per attempt, needed for bodies
// that cannot simply be cloned (a Reader can only be drained once).
type RequestFactory func() (*http.Request, error)

// WithRetryFactory performs requests built by factory with retry logic.
func WithRetryFactory(ctx context.Context, factory RequestFactory, client *http.Client, options RetryOptions) (*http.Response, error) {
	ctx, span := tracing.StartSpan(ctx, "http.request_factory",
		trace.WithAttributes(attribute.Int("http.retry.max_attempts", options.MaxAttempts)),
	)
	defer span.End()

	var lastErr error
	delay := options.InitialDelay
	logger := slog.Default()

	if client == nil {
		client = DefaultClient
	}

	for attempt := 0; attempt < options.MaxAttempts; attempt++ {
		if attempt > 0 {
			tracing.AddEvent(ctx, "retry_attempt",
				trace.WithAttributes(
					attribute.Int("attempt", attempt+1),
					attribute.Int64("delay_ms", delay.Milliseconds()),
				),
			)
			logger.Info("retrying request", "attempt", attempt+1, "delay", delay, "last_error", lastErr)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				span.SetStatus(codes.Error, "request cancelled")
				return nil, ctx.Err()
			}

			delay = time.Duration(float64(delay) * options.Multiplier)
			if delay > options.MaxDelay {
				delay = options.MaxDelay
			}
		}

		req, err := factory()
		if err != nil {
			lastErr = apperr.Wrap(apperr.CodeInternal, "failed to create request", err)
			logger.Error("request creation failed", "error", err, "attempt", attempt+1)
			continue
		}
		req = req.WithContext(ctx)
		secureHeaders(req)

		resp, err := client.Do(req)
		if err == nil && resp.StatusCode == http.StatusOK {
			span.SetAttributes(
				attribute.String(tracing.AttrHTTPMethod, req.Method),
				attribute.String("http.url", req.URL.String()),
				attribute.Int(tracing.AttrHTTPStatusCode, resp.StatusCode),
				attribute.Int("http.retry.attempts", attempt+1),
			)
			span.SetStatus(codes.Ok, "")
			return resp, nil
		}

		if err != nil {
			lastErr = err
			logger.Error("request failed", "error", err, "attempt", attempt+1)
		} else {
			lastErr = apperr.Service(req.URL.Host, resp.StatusCode, fmt.Sprintf("HTTP status %d", resp.StatusCode))
			logger.Error("request returned error status", "status", resp.StatusCode, "attempt", attempt+1)
			if cerr := resp.Body.Close(); cerr != nil {
				logger.Warn("failed to close response body", "error", cerr)
			}
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "max retries exceeded")

	if appErr, ok := lastErr.(*apperr.Error); ok {
		return nil, appErr.WithGuidance("maximum retry attempts reached. " + appErr.Guidance)
	}
	return nil, apperr.Wrap(apperr.CodeProviderUnavailable, "max retries reached", lastErr).
		WithGuidance("the request failed after multiple attempts, try again later")
}
