package geo

import (
	"math"
	"testing"
)

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestDistanceMetersKnownPoints(t *testing.T) {
	// Sao Paulo to Rio de Janeiro, roughly 357km apart.
	sp := Point{Lat: -23.5505, Lon: -46.6333}
	rj := Point{Lat: -22.9068, Lon: -43.1729}

	dist := DistanceMeters(sp, rj)
	if !almostEqual(dist, 357000, 5000) {
		t.Fatalf("expected ~357000m, got %f", dist)
	}
}

func TestDistanceMetersSamePoint(t *testing.T) {
	p := Point{Lat: -23.5505, Lon: -46.6333}
	if dist := DistanceMeters(p, p); dist != 0 {
		t.Fatalf("expected 0 distance for identical points, got %f", dist)
	}
}

func TestDistanceAlongRouteEmptyGeometry(t *testing.T) {
	if dist := DistanceAlongRoute(nil, Point{}); dist != 0.0 {
		t.Fatalf("expected 0 for empty geometry, got %f", dist)
	}
}

func TestDistanceAlongRouteTarget(t *testing.T) {
	geometry := []Point{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 0.01},
		{Lat: 0, Lon: 0.02},
		{Lat: 0, Lon: 0.03},
	}
	target := Point{Lat: 0, Lon: 0.021}

	dist := DistanceAlongRoute(geometry, target)
	if dist <= 0 {
		t.Fatalf("expected positive cumulative distance, got %f", dist)
	}
}

func TestDistanceFromPointToEndShortGeometry(t *testing.T) {
	if dist := DistanceFromPointToEnd([]Point{{Lat: 0, Lon: 0}}, Point{}); dist != 0.0 {
		t.Fatalf("expected 0 for geometry with < 2 points, got %f", dist)
	}
}

func TestInterpolateAtDistanceBounds(t *testing.T) {
	geometry := []Point{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 1},
		{Lat: 0, Lon: 2},
	}

	if p := InterpolateAtDistance(geometry, 0, 10); p != geometry[0] {
		t.Fatalf("expected start point at distance 0, got %+v", p)
	}
	if p := InterpolateAtDistance(geometry, 20, 10); p != geometry[len(geometry)-1] {
		t.Fatalf("expected end point past total distance, got %+v", p)
	}
	if p := InterpolateAtDistance(nil, 5, 10); p != (Point{}) {
		t.Fatalf("expected zero point for empty geometry, got %+v", p)
	}
}

func TestInterpolateAtDistanceMidpoint(t *testing.T) {
	geometry := []Point{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 10},
	}

	p := InterpolateAtDistance(geometry, 5, 10)
	if !almostEqual(p.Lon, 5, 0.0001) {
		t.Fatalf("expected lon ~5, got %f", p.Lon)
	}
}

func TestFindClosestPointIndex(t *testing.T) {
	geometry := []Point{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 1},
		{Lat: 0, Lon: 2},
	}
	idx := FindClosestPointIndex(geometry, Point{Lat: 0, Lon: 1.9})
	if idx != 2 {
		t.Fatalf("expected index 2, got %d", idx)
	}
	if idx := FindClosestPointIndex(nil, Point{}); idx != 0 {
		t.Fatalf("expected 0 for empty geometry, got %d", idx)
	}
}

func TestFindClosestSegmentIndex(t *testing.T) {
	geometry := []Point{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 1},
		{Lat: 0, Lon: 2},
	}
	idx := FindClosestSegmentIndex(geometry, Point{Lat: 0, Lon: 1.5})
	if idx != 1 {
		t.Fatalf("expected segment index 1, got %d", idx)
	}
	if idx := FindClosestSegmentIndex([]Point{{Lat: 0, Lon: 0}}, Point{}); idx != 0 {
		t.Fatalf("expected 0 for degenerate geometry, got %d", idx)
	}
}
