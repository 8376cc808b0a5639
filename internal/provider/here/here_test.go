package here

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/remintz/mapalinear/internal/provider"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New("test-key", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error constructing provider: %v", err)
	}
	return p
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New("", nil, nil); err == nil {
		t.Fatal("expected an error when constructing without an API key")
	}
}

func TestGeocodeParsesHEREResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"title":"Av. Paulista","position":{"lat":-23.55,"lng":-46.63},
			"address":{"city":"São Paulo","state":"SP","countryName":"Brasil","postalCode":"01310-000"}}]}`))
	}))
	defer server.Close()

	p := newTestProvider(t)
	p.geocodeURL = server.URL

	loc, err := p.Geocode(context.Background(), "Avenida Paulista")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc == nil || loc.City != "São Paulo" || loc.PostalCode != "01310-000" {
		t.Fatalf("unexpected location: %+v", loc)
	}
}

func TestGeocodeNoItemsReturnsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[]}`))
	}))
	defer server.Close()

	p := newTestProvider(t)
	p.geocodeURL = server.URL

	loc, err := p.Geocode(context.Background(), "nowhere")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc != nil {
		t.Fatalf("expected nil location, got %+v", loc)
	}
}

func TestCalculateRouteNotImplemented(t *testing.T) {
	p := newTestProvider(t)
	if _, err := p.CalculateRoute(context.Background(), provider.GeoLocation{}, provider.GeoLocation{}, nil, nil); err == nil {
		t.Fatal("expected an error, HERE routing is not implemented")
	}
}

func TestSearchPOIsSkipsUnmappedCategories(t *testing.T) {
	p := newTestProvider(t)
	pois, err := p.SearchPOIs(context.Background(), provider.GeoLocation{}, 1000, nil, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pois != nil {
		t.Fatalf("expected nil result for no mappable categories, got %+v", pois)
	}
}

func TestSearchPOIsParsesBrowseResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"id":"here:pds:place:1","title":"Posto Shell",
			"position":{"lat":-23.5,"lng":-46.6},"categories":[{"id":"700-7600-0116","name":"Gas Station"}]}]}`))
	}))
	defer server.Close()

	p := newTestProvider(t)
	p.browseURL = server.URL

	pois, err := p.SearchPOIs(context.Background(), provider.GeoLocation{Latitude: -23.5, Longitude: -46.6}, 5000, []provider.POICategory{provider.CategoryGasStation}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pois) != 1 || pois[0].Category != provider.CategoryGasStation {
		t.Fatalf("unexpected pois: %+v", pois)
	}
}

func TestCategoryFromHEREIDMatchesByPrefix(t *testing.T) {
	if cat := categoryFromHEREID("700-7600-0116"); cat != provider.CategoryGasStation {
		t.Fatalf("expected gas station, got %s", cat)
	}
	if cat := categoryFromHEREID("999-0000-0000"); cat != provider.CategoryOther {
		t.Fatalf("expected other for unknown prefix, got %s", cat)
	}
}
