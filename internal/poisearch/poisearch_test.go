package poisearch

import (
	"context"
	"sync"
	"testing"

	"github.com/remintz/mapalinear/internal/provider"
	"github.com/remintz/mapalinear/internal/store"
)

type stubProvider struct {
	provider.GeoProvider
	responses map[int][]provider.ProviderPOI

	mu    sync.Mutex
	calls []float64
}

func (s *stubProvider) SearchPOIs(ctx context.Context, center provider.GeoLocation, radiusM float64, categories []provider.POICategory, limit int) ([]provider.ProviderPOI, error) {
	s.mu.Lock()
	s.calls = append(s.calls, center.Latitude)
	s.mu.Unlock()
	for idx, pois := range s.responses {
		if center.Latitude == float64(idx) {
			return pois, nil
		}
	}
	return nil, nil
}

func segmentWithSearchPoints(points ...store.SearchPoint) store.RouteSegment {
	var seg store.RouteSegment
	seg.ID = "seg-1"
	seg.SearchPoints = store.NewJSONColumn(points)
	return seg
}

func TestSearchForSegmentReturnsEmptyWithoutSearchPoints(t *testing.T) {
	e := New(&stubProvider{})
	discoveries, err := e.SearchForSegment(context.Background(), store.RouteSegment{}, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if discoveries != nil {
		t.Fatalf("expected no discoveries, got %+v", discoveries)
	}
}

func TestSearchForSegmentDedupesToClosestDiscovery(t *testing.T) {
	stub := &stubProvider{responses: map[int][]provider.ProviderPOI{
		0: {{ProviderID: "poi-1", Latitude: 0.0005, Longitude: 0}},
		1: {{ProviderID: "poi-1", Latitude: 1.00001, Longitude: 0}},
	}}
	e := New(stub)

	seg := segmentWithSearchPoints(
		store.SearchPoint{Index: 0, Lat: 0, Lon: 0},
		store.SearchPoint{Index: 1, Lat: 1, Lon: 0},
	)

	discoveries, err := e.SearchForSegment(context.Background(), seg, []provider.POICategory{provider.CategoryGasStation}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(discoveries) != 1 {
		t.Fatalf("expected a single deduped discovery, got %+v", discoveries)
	}
	if discoveries[0].SearchPointIndex != 1 {
		t.Fatalf("expected the closer (search point 1) discovery to win, got %+v", discoveries[0])
	}
}

func TestSearchForSegmentSkipsAbandonedPOIs(t *testing.T) {
	stub := &stubProvider{responses: map[int][]provider.ProviderPOI{
		0: {{ProviderID: "poi-1", Latitude: 0, Longitude: 0, IsAbandoned: true}},
	}}
	e := New(stub)

	seg := segmentWithSearchPoints(store.SearchPoint{Index: 0, Lat: 0, Lon: 0})

	discoveries, err := e.SearchForSegment(context.Background(), seg, []provider.POICategory{provider.CategoryGasStation}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(discoveries) != 0 {
		t.Fatalf("expected abandoned pois to be skipped, got %+v", discoveries)
	}
}
