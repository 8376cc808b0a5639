package mapassembly

import (
	"context"
	"database/sql"
	"testing"

	"github.com/remintz/mapalinear/internal/junction"
	"github.com/remintz/mapalinear/internal/store"
)

func TestBuildMapSegmentsAccumulatesDistance(t *testing.T) {
	segments := []store.RouteSegment{
		{ID: "a", LengthKm: 2.0},
		{ID: "b", LengthKm: 3.5},
		{ID: "c", LengthKm: 1.0},
	}
	got := buildMapSegments("map-1", segments)
	want := []float64{0, 2.0, 5.5}
	for i, ms := range got {
		if ms.SequenceOrder != i || ms.SegmentID != segments[i].ID {
			t.Fatalf("segment %d: unexpected %+v", i, ms)
		}
		if ms.DistanceFromOriginKm != want[i] {
			t.Fatalf("segment %d: expected offset %f, got %f", i, want[i], ms.DistanceFromOriginKm)
		}
	}
}

func TestUniquePOIsKeepsFirstOccurrence(t *testing.T) {
	rows := []store.SegmentPOIWithPOI{
		{SegmentID: "seg-1", POIID: "poi-1", SearchPointIndex: 0},
		{SegmentID: "seg-2", POIID: "poi-1", SearchPointIndex: 3},
		{SegmentID: "seg-1", POIID: "poi-2", SearchPointIndex: 1},
	}
	unique := uniquePOIs(rows)
	if len(unique) != 2 {
		t.Fatalf("expected 2 distinct pois, got %d", len(unique))
	}
	if unique["poi-1"].SegmentID != "seg-1" {
		t.Fatalf("expected the first occurrence to win, got %+v", unique["poi-1"])
	}
}

func TestFilterDisabledAndOriginCityDropsBoth(t *testing.T) {
	rows := []store.SegmentPOIWithPOI{
		{POIID: "disabled", POI: store.POI{IsDisabled: true}},
		{POIID: "origin", POI: store.POI{City: sql.NullString{String: "Origin City", Valid: true}}},
		{POIID: "kept", POI: store.POI{City: sql.NullString{String: "Other City", Valid: true}}},
	}
	unique := uniquePOIs(rows)
	filtered := filterDisabledAndOriginCity(rows, unique, "origin city")

	if len(filtered) != 1 || filtered[0].POIID != "kept" {
		t.Fatalf("expected only 'kept' to survive, got %+v", filtered)
	}
	if _, ok := unique["disabled"]; ok {
		t.Fatal("expected the disabled poi to be removed from unique")
	}
	if _, ok := unique["origin"]; ok {
		t.Fatal("expected the origin-city poi to be removed from unique")
	}
	if _, ok := unique["kept"]; !ok {
		t.Fatal("expected the surviving poi to remain in unique")
	}
}

func TestFilterDisabledAndOriginCityIsCaseInsensitive(t *testing.T) {
	rows := []store.SegmentPOIWithPOI{
		{POIID: "p1", POI: store.POI{City: sql.NullString{String: "  São Paulo  ", Valid: true}}},
	}
	unique := uniquePOIs(rows)
	filtered := filterDisabledAndOriginCity(rows, unique, "são paulo")
	if len(filtered) != 0 {
		t.Fatalf("expected trimmed/case-insensitive city match to filter the poi out, got %+v", filtered)
	}
}

func TestCalculateBestJunctionsKeepsShortestAccessDistance(t *testing.T) {
	route := [][2]float64{{0, 0}, {0, 1}, {0, 2}}
	mapSegments := map[string]store.MapSegment{
		"seg-1": {SegmentID: "seg-1", SequenceOrder: 0},
		"seg-2": {SegmentID: "seg-2", SequenceOrder: 1},
	}
	rows := []store.SegmentPOIWithPOI{
		{SegmentID: "seg-1", POIID: "poi-1", StraightLineDistanceM: 100, POI: store.POI{Latitude: 0.0001, Longitude: 1.0}},
		{SegmentID: "seg-2", POIID: "poi-1", StraightLineDistanceM: 50, POI: store.POI{Latitude: 0.0001, Longitude: 1.5}},
	}

	best := calculateBestJunctions(context.Background(), junction.New(nil), rows, mapSegments, route, 2.0, nil)
	if len(best) != 1 {
		t.Fatalf("expected a single deduplicated junction, got %d", len(best))
	}
	// Both candidates are nearby (<=500m straight line), so both resolve with
	// their straight-line distance as the access distance; the seg-2 sighting
	// (50m) is shorter than the seg-1 one (100m) and must be the survivor.
	if b, ok := best["poi-1"]; !ok || b.segmentPOI.SegmentID != "seg-2" {
		t.Fatalf("expected poi-1's shorter seg-2 sighting to be kept, got %+v", best["poi-1"])
	}
}

func TestCalculateBestJunctionsSkipsUnresolvable(t *testing.T) {
	route := [][2]float64{{0, 0}, {0, 1}, {0, 2}}
	mapSegments := map[string]store.MapSegment{"seg-1": {SegmentID: "seg-1", SequenceOrder: 0}}
	rows := []store.SegmentPOIWithPOI{
		{SegmentID: "seg-1", POIID: "poi-far", StraightLineDistanceM: 5000, POI: store.POI{Latitude: 5, Longitude: 5}},
	}

	best := calculateBestJunctions(context.Background(), junction.New(nil), rows, mapSegments, route, 2.0, nil)
	if len(best) != 0 {
		t.Fatalf("expected a distant poi without a routing provider to be skipped, got %+v", best)
	}
}

func TestSummarizeMapCountsByTypeAndSide(t *testing.T) {
	m := store.Map{TotalLengthKm: 42.5}
	mapSegments := []store.MapSegment{{SegmentID: "seg-1"}, {SegmentID: "seg-2"}}
	mapPOIs := []store.MapPOI{
		{POIID: "poi-1", Side: store.SideLeft},
		{POIID: "poi-2", Side: store.SideRight},
		{POIID: "poi-3", Side: store.SideLeft},
	}
	poisByID := map[string]store.POI{
		"poi-1": {Type: "gas_station"},
		"poi-2": {Type: "restaurant"},
		"poi-3": {Type: "gas_station"},
	}

	stats := summarizeMap(m, mapSegments, mapPOIs, poisByID)
	if stats.NumSegments != 2 || stats.NumPOIs != 3 || stats.TotalDistanceKm != 42.5 {
		t.Fatalf("unexpected top-level stats: %+v", stats)
	}
	if stats.POIsByType["gas_station"] != 2 || stats.POIsByType["restaurant"] != 1 {
		t.Fatalf("unexpected type breakdown: %+v", stats.POIsByType)
	}
	if stats.POIsBySide[store.SideLeft] != 2 || stats.POIsBySide[store.SideRight] != 1 {
		t.Fatalf("unexpected side breakdown: %+v", stats.POIsBySide)
	}
}

func TestRecalculateDistancesUpdatesOnDrift(t *testing.T) {
	mapSegments := []store.MapSegment{{SegmentID: "seg-1", SequenceOrder: 0, DistanceFromOriginKm: 10.0}}
	segmentByIndex := map[int]store.MapSegment{0: mapSegments[0]}
	searchPointIndex := map[string]int{"seg-1|poi-1": 2}

	mapPOIs := []store.MapPOI{{POIID: "poi-1", SegmentIndex: 0, DistanceFromOriginKm: 9.0}}
	changed := recalculateDistances(mapSegments, mapPOIs, segmentByIndex, searchPointIndex)
	if len(changed) != 1 {
		t.Fatalf("expected one updated map poi, got %+v", changed)
	}
	if changed[0].DistanceFromOriginKm != 12.0 {
		t.Fatalf("expected recalculated distance of 12.0 (10.0 + 2*1.0), got %f", changed[0].DistanceFromOriginKm)
	}
}

func TestRecalculateDistancesSkipsWithinThreshold(t *testing.T) {
	mapSegments := []store.MapSegment{{SegmentID: "seg-1", SequenceOrder: 0, DistanceFromOriginKm: 10.0}}
	segmentByIndex := map[int]store.MapSegment{0: mapSegments[0]}
	searchPointIndex := map[string]int{"seg-1|poi-1": 0}

	mapPOIs := []store.MapPOI{{POIID: "poi-1", SegmentIndex: 0, DistanceFromOriginKm: 10.005}}
	changed := recalculateDistances(mapSegments, mapPOIs, segmentByIndex, searchPointIndex)
	if len(changed) != 0 {
		t.Fatalf("expected negligible drift to be skipped, got %+v", changed)
	}
}

func TestRecalculateDistancesSkipsUnmatchedPOI(t *testing.T) {
	mapSegments := []store.MapSegment{{SegmentID: "seg-1", SequenceOrder: 0, DistanceFromOriginKm: 10.0}}
	segmentByIndex := map[int]store.MapSegment{0: mapSegments[0]}
	searchPointIndex := map[string]int{}

	mapPOIs := []store.MapPOI{{POIID: "poi-orphaned", SegmentIndex: 0, DistanceFromOriginKm: 10.0}}
	changed := recalculateDistances(mapSegments, mapPOIs, segmentByIndex, searchPointIndex)
	if len(changed) != 0 {
		t.Fatalf("expected a poi with no matching segment_poi to be left alone, got %+v", changed)
	}
}
