package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"POI_PROVIDER", "HERE_ENRICHMENT_ENABLED", "GEO_CACHE_TTL_GEOCODE",
		"GEO_RATE_LIMIT_OSM", "POSTGRES_PORT", "LOOKBACK_MILESTONES_COUNT",
	} {
		os.Unsetenv(key)
	}

	cfg := Load()

	if cfg.POIProvider != ProviderOSM {
		t.Fatalf("expected default provider osm, got %s", cfg.POIProvider)
	}
	if cfg.HEREEnrichmentEnabled {
		t.Fatal("expected HERE enrichment disabled by default")
	}
	if cfg.CacheTTLGeocode != 604800*time.Second {
		t.Fatalf("expected geocode TTL default of 604800s, got %v", cfg.CacheTTLGeocode)
	}
	if cfg.RateLimitOSM != 1.0 {
		t.Fatalf("expected OSM rate limit default 1.0, got %f", cfg.RateLimitOSM)
	}
	if cfg.Postgres.Port != 5432 {
		t.Fatalf("expected default postgres port 5432, got %d", cfg.Postgres.Port)
	}
	if cfg.LookbackMilestonesCount != 10 {
		t.Fatalf("expected default lookback count 10, got %d", cfg.LookbackMilestonesCount)
	}
}

func TestLoadOverrides(t *testing.T) {
	os.Setenv("POI_PROVIDER", "here")
	os.Setenv("HERE_ENRICHMENT_ENABLED", "true")
	os.Setenv("GEO_RATE_LIMIT_HERE", "7.5")
	defer func() {
		os.Unsetenv("POI_PROVIDER")
		os.Unsetenv("HERE_ENRICHMENT_ENABLED")
		os.Unsetenv("GEO_RATE_LIMIT_HERE")
	}()

	cfg := Load()

	if cfg.POIProvider != ProviderHERE {
		t.Fatalf("expected provider here, got %s", cfg.POIProvider)
	}
	if !cfg.HEREEnrichmentEnabled {
		t.Fatal("expected HERE enrichment enabled from env override")
	}
	if cfg.RateLimitHERE != 7.5 {
		t.Fatalf("expected HERE rate limit 7.5, got %f", cfg.RateLimitHERE)
	}
}

func TestPostgresConfigDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, Database: "mapalinear", User: "u", Password: "p"}
	dsn := p.DSN()
	if dsn == "" {
		t.Fatal("expected non-empty DSN")
	}
}
