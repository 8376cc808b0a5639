package enrichment

import (
	"context"
	"database/sql"
	"testing"

	"github.com/remintz/mapalinear/internal/provider"
	"github.com/remintz/mapalinear/internal/store"
)

type stubHEREProvider struct {
	provider.GeoProvider
	pois []provider.ProviderPOI
	err  error
}

func (s *stubHEREProvider) SearchPOIs(ctx context.Context, center provider.GeoLocation, radiusM float64, categories []provider.POICategory, limit int) ([]provider.ProviderPOI, error) {
	return s.pois, s.err
}

func TestShouldEnrichRejectsNonEnrichableTypes(t *testing.T) {
	e := New(&stubHEREProvider{}, nil)
	poi := store.POI{Type: "tourist_attraction"}
	if e.ShouldEnrich(poi) {
		t.Fatal("expected a non-enrichable type to be rejected")
	}
}

func TestShouldEnrichRejectsAlreadyEnriched(t *testing.T) {
	e := New(&stubHEREProvider{}, nil)
	poi := store.POI{Type: "gas_station", EnrichedBy: store.NewJSONColumn([]string{SourceHERE})}
	if e.ShouldEnrich(poi) {
		t.Fatal("expected an already-enriched poi to be rejected")
	}
}

func TestIsEnabledReflectsProviderPresence(t *testing.T) {
	if (New(nil, nil)).IsEnabled() {
		t.Fatal("expected IsEnabled to be false without a HERE provider")
	}
	if !(New(&stubHEREProvider{}, nil)).IsEnabled() {
		t.Fatal("expected IsEnabled to be true with a HERE provider")
	}
}

func TestEnrichOneDisabledReturnsError(t *testing.T) {
	e := New(nil, nil)
	result := e.EnrichOne(context.Background(), store.POI{Type: "gas_station"}, 0)
	if result.Matched || result.Error == "" {
		t.Fatalf("expected a disabled result, got %+v", result)
	}
}

func TestEnrichOneMatchesByNameAndDistance(t *testing.T) {
	poi := store.POI{
		ID:        "poi-1",
		Type:      "gas_station",
		Name:      sql.NullString{String: "Posto Ipiranga", Valid: true},
		Latitude:  -23.5,
		Longitude: -46.6,
	}
	candidate := provider.ProviderPOI{
		ProviderID: "here:1", Name: "Ipiranga", Phone: "123", Website: "http://x",
		Latitude: -23.5001, Longitude: -46.6001,
	}
	e := New(&stubHEREProvider{pois: []provider.ProviderPOI{candidate}}, nil)

	result := e.EnrichOne(context.Background(), poi, 0)
	if !result.Matched || result.HereID != "here:1" {
		t.Fatalf("expected a match, got %+v", result)
	}
}

func TestEnrichOneNoResultsWithinRadius(t *testing.T) {
	poi := store.POI{ID: "poi-1", Type: "gas_station", Name: sql.NullString{String: "Posto X", Valid: true}}
	e := New(&stubHEREProvider{pois: nil}, nil)

	result := e.EnrichOne(context.Background(), poi, 0)
	if result.Matched {
		t.Fatal("expected no match when the provider returns nothing")
	}
}

func TestBestMatchWeighsNameAgainstDistance(t *testing.T) {
	poi := store.POI{Name: sql.NullString{String: "Restaurante do Zé", Valid: true}, Latitude: 0, Longitude: 0}
	// ~10m away, no name overlap.
	unrelatedButClose := provider.ProviderPOI{ProviderID: "close", Name: "Totally Unrelated", Latitude: 0.0000898, Longitude: 0}
	// ~100m away, exact name match.
	matchingButFarther := provider.ProviderPOI{ProviderID: "far", Name: "Restaurante do Zé", Latitude: 0.000898, Longitude: 0}

	match, _, ok := bestMatch(poi, []provider.ProviderPOI{unrelatedButClose, matchingButFarther})
	if !ok {
		t.Fatal("expected a match to be found")
	}
	if match.ProviderID != "far" {
		t.Fatalf("expected the exact name match to outweigh a closer but unrelated candidate, got %s", match.ProviderID)
	}
}

func TestNameSimilarityIgnoresGenericWords(t *testing.T) {
	if got := nameSimilarity("posto ipiranga", "posto shell"); got != 0 {
		t.Fatalf("expected generic word 'posto' not to count as a match, got %f", got)
	}
}
