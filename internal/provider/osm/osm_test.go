package osm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/remintz/mapalinear/internal/provider"
)

func newTestProvider() *Provider {
	return New(nil, nil)
}

func TestGeocodeParsesNominatimResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"lat":"-23.55052","lon":"-46.633308","display_name":"Av. Paulista, São Paulo","address":{"city":"São Paulo","state":"SP"}}]`))
	}))
	defer server.Close()

	p := newTestProvider()
	p.nominatimBaseURL = server.URL

	loc, err := p.Geocode(context.Background(), "Avenida Paulista")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc == nil {
		t.Fatal("expected a location, got nil")
	}
	if loc.City != "São Paulo" || loc.State != "SP" {
		t.Fatalf("unexpected location: %+v", loc)
	}
}

func TestGeocodeNoResultsReturnsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	p := newTestProvider()
	p.nominatimBaseURL = server.URL

	loc, err := p.Geocode(context.Background(), "nowhere in particular")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc != nil {
		t.Fatalf("expected nil location, got %+v", loc)
	}
}

func TestCalculateRouteParsesOSRMResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":"Ok","routes":[{"distance":12000,"duration":900,
			"geometry":{"coordinates":[[-46.6,-23.5],[-46.7,-23.6]]},
			"legs":[{"steps":[{"distance":12000,"duration":900,"name":"Rodovia BR-101",
				"geometry":{"coordinates":[[-46.6,-23.5],[-46.7,-23.6]]},"maneuver":{"type":"depart"}}]}]}]}`))
	}))
	defer server.Close()

	p := newTestProvider()
	p.osrmBaseURL = server.URL

	origin := provider.GeoLocation{Latitude: -23.5, Longitude: -46.6}
	dest := provider.GeoLocation{Latitude: -23.6, Longitude: -46.7}

	route, err := p.CalculateRoute(context.Background(), origin, dest, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.TotalDistanceKm != 12.0 {
		t.Fatalf("expected 12km, got %f", route.TotalDistanceKm)
	}
	if len(route.Steps) != 1 || route.Steps[0].RoadName != "Rodovia BR-101" {
		t.Fatalf("unexpected steps: %+v", route.Steps)
	}
}

func TestCalculateRouteErrorsOnNonOkCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"NoRoute","message":"no route found"}`))
	}))
	defer server.Close()

	p := newTestProvider()
	p.osrmBaseURL = server.URL

	_, err := p.CalculateRoute(context.Background(), provider.GeoLocation{}, provider.GeoLocation{}, nil, nil)
	if err == nil {
		t.Fatal("expected an error for a non-Ok OSRM response")
	}
}

func TestSearchPOIsFailsOverToSecondEndpoint(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"elements":[{"type":"node","id":1,"lat":-23.5,"lon":-46.6,
			"tags":{"amenity":"fuel","name":"Posto Ipiranga","brand":"Ipiranga"}}]}`))
	}))
	defer good.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()

	p := newTestProvider()
	p.overpassEndpoints = []string{bad.URL, good.URL}

	pois, err := p.SearchPOIs(context.Background(), provider.GeoLocation{Latitude: -23.5, Longitude: -46.6}, 5000, []provider.POICategory{provider.CategoryGasStation}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pois) != 1 || pois[0].Name != "Posto Ipiranga" {
		t.Fatalf("unexpected pois: %+v", pois)
	}
}

func TestElementToPOISkipsElementsWithoutIdentifyingTags(t *testing.T) {
	el := overpassElement{Type: "node", ID: 1, Lat: -23.5, Lon: -46.6, Tags: map[string]string{"highway": "residential"}}
	if _, ok := elementToPOI(el); ok {
		t.Fatal("expected element without name/amenity/place to be skipped")
	}
}

func TestQualityScorePenalizesMissingFields(t *testing.T) {
	full := map[string]string{
		"name": "Posto X", "brand": "X", "phone": "123", "opening_hours": "24/7",
		"website": "http://x", "addr:street": "Rod X",
	}
	bare := map[string]string{"amenity": "fuel"}

	if s := qualityScore(full); s <= qualityScore(bare) {
		t.Fatalf("expected a fuller tag set to score higher: full=%f bare=%f", s, qualityScore(bare))
	}
}

func TestIsAbandonedDetectsPrefixedTags(t *testing.T) {
	if !isAbandoned(map[string]string{"disused:amenity": "fuel"}) {
		t.Fatal("expected disused:amenity prefix to mark abandoned")
	}
	if isAbandoned(map[string]string{"amenity": "fuel"}) {
		t.Fatal("expected an ordinary fuel station not to be abandoned")
	}
}
