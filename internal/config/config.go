// Package config centralizes environment-backed configuration for the
// MapaLinear pipeline, following the teacher's flag+env binding pattern
// (cmd/osmmcp/main.go) but sourced entirely from environment variables since
// this module has no interactive CLI surface of its own.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProviderKind names a POI/geocode provider implementation.
type ProviderKind string

const (
	ProviderOSM  ProviderKind = "osm"
	ProviderHERE ProviderKind = "here"
)

// Config holds every tunable named in the external interfaces section of the
// specification: provider selection, cache TTLs, rate limits, database
// connection parameters and pipeline tuning constants.
type Config struct {
	// Providers
	POIProvider           ProviderKind
	HEREEnrichmentEnabled bool
	HEREAPIKey            string
	GooglePlacesAPIKey    string
	GooglePlacesEnabled   bool

	// Cache TTLs
	CacheTTLGeocode     time.Duration
	CacheTTLRoute       time.Duration
	CacheTTLPOI         time.Duration
	CacheTTLPOIDetails  time.Duration
	GooglePlacesCacheTTL time.Duration

	// Rate limits, in requests per second.
	RateLimitOSM  float64
	RateLimitHERE float64

	// Database
	Postgres PostgresConfig

	// Pipeline tuning
	LookbackMilestonesCount  int
	DuplicateMapToleranceKM  float64

	// OTLP_ENDPOINT / ENVIRONMENT are consumed directly by internal/tracing,
	// not mirrored here, to keep that package independently importable.
}

// PostgresConfig holds connection parameters for the persistence layer.
type PostgresConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	PoolMinSize int
	PoolMaxSize int
}

// DSN renders the libpq connection string consumed by lib/pq / sqlx.Connect.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		p.Host, p.Port, p.Database, p.User, p.Password,
	)
}

// Load reads Config from the process environment, applying the defaults
// spec.md documents for each variable.
func Load() Config {
	return Config{
		POIProvider:           ProviderKind(envString("POI_PROVIDER", string(ProviderOSM))),
		HEREEnrichmentEnabled: envBool("HERE_ENRICHMENT_ENABLED", false),
		HEREAPIKey:            os.Getenv("HERE_API_KEY"),
		GooglePlacesAPIKey:    os.Getenv("GOOGLE_PLACES_API_KEY"),
		GooglePlacesEnabled:   envBool("GOOGLE_PLACES_ENABLED", false),

		CacheTTLGeocode:      envSeconds("GEO_CACHE_TTL_GEOCODE", 604800),
		CacheTTLRoute:        envSeconds("GEO_CACHE_TTL_ROUTE", 21600),
		CacheTTLPOI:          envSeconds("GEO_CACHE_TTL_POI", 86400),
		CacheTTLPOIDetails:   envSeconds("GEO_CACHE_TTL_POI_DETAILS", 43200),
		GooglePlacesCacheTTL: envSeconds("GOOGLE_PLACES_CACHE_TTL", 2592000),

		RateLimitOSM:  envFloat("GEO_RATE_LIMIT_OSM", 1.0),
		RateLimitHERE: envFloat("GEO_RATE_LIMIT_HERE", 5.0),

		Postgres: PostgresConfig{
			Host:        envString("POSTGRES_HOST", "localhost"),
			Port:        envInt("POSTGRES_PORT", 5432),
			Database:    envString("POSTGRES_DATABASE", "mapalinear"),
			User:        envString("POSTGRES_USER", "mapalinear"),
			Password:    os.Getenv("POSTGRES_PASSWORD"),
			PoolMinSize: envInt("POSTGRES_POOL_MIN_SIZE", 0),
			PoolMaxSize: envInt("POSTGRES_POOL_MAX_SIZE", 50),
		},

		LookbackMilestonesCount: envInt("LOOKBACK_MILESTONES_COUNT", 10),
		DuplicateMapToleranceKM: envFloat("DUPLICATE_MAP_TOLERANCE_KM", 5.0),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fallback
	}
	return f
}

func envSeconds(key string, fallbackSeconds int) time.Duration {
	n := envInt(key, fallbackSeconds)
	return time.Duration(n) * time.Second
}
