package segment

import (
	"math"
	"testing"

	"github.com/remintz/mapalinear/internal/store"
)

func TestCalculateHashIsStableUnderRounding(t *testing.T) {
	a := CalculateHash(-23.55001, -46.63001, -23.56001, -46.64001, "")
	b := CalculateHash(-23.550009, -46.630009, -23.560009, -46.640009, "")
	if a != b {
		t.Fatalf("expected hashes to match after 4-decimal rounding: %s != %s", a, b)
	}

	c := CalculateHash(-23.5501, -46.63001, -23.56001, -46.64001, "")
	if a == c {
		t.Fatal("expected a materially different coordinate to hash differently")
	}
}

func TestCalculateHashVersionSuffixForcesDistinctHash(t *testing.T) {
	base := CalculateHash(-23.55, -46.63, -23.56, -46.64, "")
	versioned := CalculateHash(-23.55, -46.63, -23.56, -46.64, "2026-07-31T00:00:00Z")
	if base == versioned {
		t.Fatal("expected a version suffix to change the hash even for identical coordinates")
	}
}

func TestGenerateSearchPointsSkipsShortSegments(t *testing.T) {
	geometry := [][2]float64{{-23.5, -46.6}, {-23.51, -46.61}}
	if pts := GenerateSearchPoints(geometry, 0.5); pts != nil {
		t.Fatalf("expected no search points for a sub-1km segment, got %+v", pts)
	}
}

func TestGenerateSearchPointsWalksCumulativeDistance(t *testing.T) {
	// Three points where the first leg is much shorter than the second, so a
	// naive index-proportional interpolation would misplace the 1km point.
	geometry := [][2]float64{
		{-23.5000, -46.6000},
		{-23.5005, -46.6005}, // short first leg
		{-23.5300, -46.6300}, // long second leg
	}

	pts := GenerateSearchPoints(geometry, 3.0)
	if len(pts) == 0 {
		t.Fatal("expected search points for a 3km segment")
	}
	if pts[0].Index != 0 || pts[0].DistanceFromSegmentStartKm != 0 {
		t.Fatalf("expected first search point at distance 0, got %+v", pts[0])
	}
	// The first leg is well under 1km, so the 1km point must fall on the
	// second leg, not coincide with the first geometry point.
	second := pts[1]
	if second.Lat == geometry[0][0] && second.Lon == geometry[0][1] {
		t.Fatal("expected the 1km search point to be interpolated past the short first leg")
	}
}

func TestGenerateSearchPointsRequiresAtLeastTwoPoints(t *testing.T) {
	if pts := GenerateSearchPoints([][2]float64{{-23.5, -46.6}}, 5.0); pts != nil {
		t.Fatalf("expected nil for a single-point geometry, got %+v", pts)
	}
}

func TestNeedsPOISearch(t *testing.T) {
	fresh := store.RouteSegment{LengthKm: 2.0}
	if !NeedsPOISearch(fresh) {
		t.Fatal("expected a never-searched, long-enough segment to need a search")
	}

	tooShort := store.RouteSegment{LengthKm: 0.5}
	if NeedsPOISearch(tooShort) {
		t.Fatal("expected a sub-1km segment not to need a search")
	}

	var already store.RouteSegment
	already.LengthKm = 2.0
	already.POIsFetchedAt.Valid = true
	if NeedsPOISearch(already) {
		t.Fatal("expected an already-searched segment not to need another search")
	}
}

func TestRoundToMatchesPythonRound(t *testing.T) {
	if got := roundTo(1.23456, 3); math.Abs(got-1.235) > 1e-9 {
		t.Fatalf("expected 1.235, got %f", got)
	}
}
