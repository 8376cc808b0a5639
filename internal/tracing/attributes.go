package tracing

import "go.opentelemetry.io/otel/attribute"

// Common span attribute keys used across the pipeline.
const (
	AttrServiceName      = "geo.service.name"
	AttrServiceOperation = "geo.service.operation"
	AttrServiceURL       = "geo.service.url"
	AttrServiceStatus    = "geo.service.status"

	AttrCacheType = "geo.cache.type"
	AttrCacheHit  = "geo.cache.hit"
	AttrCacheKey  = "geo.cache.key"

	AttrRateLimitService = "geo.ratelimit.service"
	AttrRateLimitWaitMs  = "geo.ratelimit.wait_ms"

	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"

	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"

	AttrMapID       = "mapalinear.map_id"
	AttrSegmentID   = "mapalinear.segment_id"
	AttrSegmentHash = "mapalinear.segment_hash"
	AttrOperationID = "mapalinear.operation_id"
)

// Status values attached to AttrServiceStatus-like attributes.
const (
	StatusSuccess     = "success"
	StatusError       = "error"
	StatusTimeout     = "timeout"
	StatusRateLimited = "rate_limited"
)

// Per-service names; ratelimit.Default configures its limiters under them.
// The provider adapters, cache keys and main's limiter overrides use the
// coarser "osm"/"here" names instead.
const (
	ServiceNominatim = "nominatim"
	ServiceOverpass  = "overpass"
	ServiceOSRM      = "osrm"
	ServiceHERE      = "here"
)

// ServiceAttributes returns attributes for an external service call span.
func ServiceAttributes(service, operation, url string, status int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrServiceName, service),
		attribute.String(AttrServiceOperation, operation),
		attribute.String(AttrServiceURL, url),
		attribute.Int(AttrServiceStatus, status),
	}
}

// CacheAttributes returns attributes for a cache lookup/write span.
func CacheAttributes(cacheType string, hit bool, key string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCacheType, cacheType),
		attribute.Bool(AttrCacheHit, hit),
		attribute.String(AttrCacheKey, key),
	}
}

// ErrorAttributes returns attributes describing err, or nil if err is nil.
func ErrorAttributes(err error) []attribute.KeyValue {
	if err == nil {
		return nil
	}
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, "error"),
		attribute.String(AttrErrorMessage, err.Error()),
	}
}
