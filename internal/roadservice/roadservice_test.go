package roadservice

import (
	"context"
	"testing"

	"github.com/remintz/mapalinear/internal/store"
)

func TestExtractOriginCitySplitsOnFirstComma(t *testing.T) {
	got := extractOriginCity("São Paulo, SP, Brazil")
	if got != "São Paulo" {
		t.Fatalf("expected %q, got %q", "São Paulo", got)
	}
}

func TestExtractOriginCityNoCommaReturnsTrimmedWhole(t *testing.T) {
	got := extractOriginCity("  Curitiba  ")
	if got != "Curitiba" {
		t.Fatalf("expected %q, got %q", "Curitiba", got)
	}
}

func TestExtractOriginCityKeepsOnlyFirstSegmentOnMultipleCommas(t *testing.T) {
	got := extractOriginCity("Rio de Janeiro, RJ, 20000-000, Brazil")
	if got != "Rio de Janeiro" {
		t.Fatalf("expected %q, got %q", "Rio de Janeiro", got)
	}
}

// enrichSegmentPOIs requires a live *store.POIRepository; with none wired it
// panics on the first call, which is the expected behavior for this
// DB-backed orchestration method (no sqlmock-equivalent exists in the
// example corpus to fake the repository layer, per the established
// testability scoping decision applied across poipersist/mapassembly/
// asyncops/maintenance).
func TestEnrichSegmentPOIsRequiresRepository(t *testing.T) {
	e := &Engine{}
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected a nil poi repository to panic")
		}
	}()
	_ = e.enrichSegmentPOIs(context.Background(), []store.RouteSegment{{ID: "seg-1"}})
}
