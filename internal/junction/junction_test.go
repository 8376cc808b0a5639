package junction

import (
	"context"
	"testing"

	"github.com/remintz/mapalinear/internal/provider"
	"github.com/remintz/mapalinear/internal/store"
)

func TestAggregateSearchPointsAddsCumulativeOffsetAndSorts(t *testing.T) {
	segments := map[string]store.RouteSegment{
		"seg-2": {ID: "seg-2", SearchPoints: store.NewJSONColumn([]store.SearchPoint{
			{Index: 0, Lat: 1, Lon: 1, DistanceFromSegmentStartKm: 0},
		})},
		"seg-1": {ID: "seg-1", SearchPoints: store.NewJSONColumn([]store.SearchPoint{
			{Index: 0, Lat: 0, Lon: 0, DistanceFromSegmentStartKm: 0},
			{Index: 1, Lat: 0.5, Lon: 0.5, DistanceFromSegmentStartKm: 1},
		})},
	}
	mapSegments := []store.MapSegment{
		{SegmentID: "seg-1", SequenceOrder: 0, DistanceFromOriginKm: 0},
		{SegmentID: "seg-2", SequenceOrder: 1, DistanceFromOriginKm: 5},
	}

	global := AggregateSearchPoints(mapSegments, segments)
	if len(global) != 3 {
		t.Fatalf("expected 3 global search points, got %d", len(global))
	}
	for i := 1; i < len(global); i++ {
		if global[i].DistanceFromMapOriginKm < global[i-1].DistanceFromMapOriginKm {
			t.Fatalf("expected ascending distances, got %+v", global)
		}
	}
	if global[len(global)-1].SegmentID != "seg-2" || global[len(global)-1].DistanceFromMapOriginKm != 5 {
		t.Fatalf("expected seg-2's point to carry the 5km offset, got %+v", global[len(global)-1])
	}
}

func TestFindLookbackPointClampsToRouteStart(t *testing.T) {
	sps := []GlobalSearchPoint{{DistanceFromMapOriginKm: 0}, {DistanceFromMapOriginKm: 1}}
	sp, ok := FindLookbackPoint(2.0, sps, DefaultLookbackKm)
	if !ok || sp.DistanceFromMapOriginKm != 0 {
		t.Fatalf("expected the lookback target before route start to clamp to the first point, got %+v", sp)
	}
}

func TestFindLookbackPointFindsLastPointBeforeTarget(t *testing.T) {
	sps := []GlobalSearchPoint{
		{DistanceFromMapOriginKm: 0},
		{DistanceFromMapOriginKm: 5},
		{DistanceFromMapOriginKm: 10},
		{DistanceFromMapOriginKm: 15},
	}
	sp, ok := FindLookbackPoint(20.0, sps, DefaultLookbackKm)
	if !ok || sp.DistanceFromMapOriginKm != 10 {
		t.Fatalf("expected the 10km point (20-10 lookback), got %+v", sp)
	}
}

func TestCalculateJunctionNearbyUsesClosestRoutePoint(t *testing.T) {
	e := New(nil)
	route := [][2]float64{{0, 0}, {0, 1}, {0, 2}}

	result, ok := e.CalculateJunction(context.Background(), 0.0001, 1.0, store.SegmentPOI{StraightLineDistanceM: 100}, store.MapSegment{}, route, 2.0, nil)
	if !ok {
		t.Fatal("expected a junction result for a nearby poi")
	}
	if result.RequiresDetour {
		t.Fatal("expected a nearby poi not to require a detour")
	}
	if result.JunctionLat != 0 || result.JunctionLon != 1 {
		t.Fatalf("expected the junction to land on the closest route point, got %+v", result)
	}
}

func TestCalculateJunctionDistantWithoutProviderFails(t *testing.T) {
	e := New(nil)
	route := [][2]float64{{0, 0}, {0, 1}, {0, 2}}

	// A lookback point exists, so the only missing piece is the provider.
	globalSPs := []GlobalSearchPoint{{Lat: 0, Lon: 1, DistanceFromMapOriginKm: 1}}

	_, ok := e.CalculateJunction(context.Background(), 5.0, 5.0, store.SegmentPOI{StraightLineDistanceM: 5000}, store.MapSegment{}, route, 2.0, globalSPs)
	if ok {
		t.Fatal("expected a distant poi without a geo provider to fail to resolve")
	}
}

type stubRoutingProvider struct {
	provider.GeoProvider
	route *provider.Route
}

func (s *stubRoutingProvider) CalculateRoute(ctx context.Context, origin, destination provider.GeoLocation, waypoints []provider.GeoLocation, avoid []string) (*provider.Route, error) {
	return s.route, nil
}

func TestCalculateJunctionDistantRoutesAccessAndFindsIntersection(t *testing.T) {
	route := [][2]float64{{0, 0}, {0, 1}, {0, 2}}
	stub := &stubRoutingProvider{route: &provider.Route{Geometry: [][2]float64{{0, 1}, {0.01, 1}}}}
	e := New(stub)

	globalSPs := []GlobalSearchPoint{{Lat: 0, Lon: 1, DistanceFromMapOriginKm: 1}}

	result, ok := e.CalculateJunction(context.Background(), 0.01, 1, store.SegmentPOI{StraightLineDistanceM: 5000}, store.MapSegment{}, route, 2.0, globalSPs)
	if !ok {
		t.Fatal("expected a routed junction to resolve")
	}
	if result.JunctionLat != 0 || result.JunctionLon != 1 {
		t.Fatalf("expected the intersection at (0,1), got %+v", result)
	}
	if !result.RequiresDetour {
		t.Fatal("expected a 5000m straight-line poi to require a detour")
	}
}

func TestDetermineSideIsConsistentForMirroredPoints(t *testing.T) {
	route := [][2]float64{{0, 0}, {0, 1}, {0, 2}}
	left := determineSide(0.001, 1, 0, 1, route)
	right := determineSide(-0.001, 1, 0, 1, route)
	if left == right {
		t.Fatalf("expected mirrored points to land on opposite sides, got %s and %s", left, right)
	}
}
