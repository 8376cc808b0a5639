package poipersist

import (
	"testing"

	"github.com/remintz/mapalinear/internal/provider"
)

func TestCategoryToPOITypeCollapsesSynonyms(t *testing.T) {
	cases := map[provider.POICategory]string{
		provider.CategoryGasStation: "gas_station",
		provider.CategoryFuel:       "gas_station",
		provider.CategoryFood:       "restaurant",
		provider.CategoryCafe:       "restaurant",
		provider.CategoryLodging:    "hotel",
		provider.CategoryOther:      "services",
	}
	for category, want := range cases {
		if got := categoryToPOIType(category); got != want {
			t.Errorf("categoryToPOIType(%s) = %s, want %s", category, got, want)
		}
	}
}

func TestProviderColumnSelectsByKind(t *testing.T) {
	if got := providerColumn(provider.KindHERE); got != "here_id" {
		t.Errorf("expected here_id for HERE, got %s", got)
	}
	if got := providerColumn(provider.KindOSM); got != "osm_id" {
		t.Errorf("expected osm_id for OSM, got %s", got)
	}
}

func TestToCanonicalSetsProviderColumn(t *testing.T) {
	osmPOI := provider.ProviderPOI{ProviderID: "node/1", Provider: provider.KindOSM, Name: "Posto X", Category: provider.CategoryGasStation}
	row := toCanonical(osmPOI)
	if !row.OSMID.Valid || row.OSMID.String != "node/1" {
		t.Fatalf("expected osm_id to be set, got %+v", row.OSMID)
	}
	if row.HereID.Valid {
		t.Fatalf("expected here_id to stay unset for an OSM poi, got %+v", row.HereID)
	}

	herePOI := provider.ProviderPOI{ProviderID: "here:pds:place:1", Provider: provider.KindHERE, Name: "Posto Y", Category: provider.CategoryGasStation}
	row = toCanonical(herePOI)
	if !row.HereID.Valid || row.HereID.String != "here:pds:place:1" {
		t.Fatalf("expected here_id to be set, got %+v", row.HereID)
	}
}

func TestToCanonicalLeavesEmptyFieldsNull(t *testing.T) {
	row := toCanonical(provider.ProviderPOI{ProviderID: "node/1", Provider: provider.KindOSM})
	if row.Name.Valid || row.Phone.Valid || row.Website.Valid {
		t.Fatalf("expected empty strings to map to null, got %+v", row)
	}
}

func TestToCanonicalFlagsLowQualityFromAbandonment(t *testing.T) {
	row := toCanonical(provider.ProviderPOI{QualityScore: 0.8, IsAbandoned: true})
	if !row.IsLowQuality {
		t.Fatal("expected an abandoned poi to be flagged low quality regardless of its quality score")
	}
	row = toCanonical(provider.ProviderPOI{QualityScore: 0.2, IsAbandoned: false})
	if row.IsLowQuality {
		t.Fatal("expected a non-abandoned poi not to be flagged low quality even with a low quality score")
	}
}
