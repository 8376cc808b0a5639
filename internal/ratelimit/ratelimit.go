// Package ratelimit provides per-provider rate limiting for outbound
// requests to external geo services (Nominatim, Overpass, OSRM, HERE).
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/remintz/mapalinear/internal/monitoring"
	"github.com/remintz/mapalinear/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Registry holds one token-bucket limiter per named provider.
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]*rate.Limiter)}
}

// Configure sets (or replaces) the limiter for service, allowing rps
// requests per second with the given burst.
func (r *Registry) Configure(service string, rps float64, burst int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[service] = rate.NewLimiter(rate.Limit(rps), burst)
}

// Wait blocks until a token for service is available or ctx is cancelled. A
// service with no configured limiter passes through unthrottled.
func (r *Registry) Wait(ctx context.Context, service string) error {
	r.mu.RLock()
	limiter, ok := r.limiters[service]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	if limiter.Allow() {
		return nil
	}

	start := time.Now()
	tracing.AddEvent(ctx, "rate_limit_wait",
		trace.WithAttributes(attribute.String(tracing.AttrRateLimitService, service)),
	)
	monitoring.RecordRateLimitExceeded(service)

	err := limiter.Wait(ctx)

	wait := time.Since(start)
	tracing.SetAttributes(ctx,
		attribute.String(tracing.AttrRateLimitService, service),
		attribute.Int64(tracing.AttrRateLimitWaitMs, wait.Milliseconds()),
	)
	monitoring.RecordRateLimitWait(service, wait)

	return err
}

// Default constructs the Registry described by spec.md §6: Nominatim,
// Overpass and OSRM at 1 req/s, HERE at 5 req/s.
func Default() *Registry {
	r := NewRegistry()
	r.Configure(tracing.ServiceNominatim, 1, 1)
	r.Configure(tracing.ServiceOverpass, 1, 1)
	r.Configure(tracing.ServiceOSRM, 1, 1)
	r.Configure(tracing.ServiceHERE, 5, 5)
	return r
}
