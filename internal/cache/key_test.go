package cache

import "testing"

func TestGenerateKeyStableAcrossCoordinateJitter(t *testing.T) {
	k1 := GenerateKey("osm", "geocode", map[string]any{"latitude": -23.550511, "longitude": -46.633309})
	k2 := GenerateKey("osm", "geocode", map[string]any{"latitude": -23.550524, "longitude": -46.633290})

	if k1 != k2 {
		t.Fatalf("expected keys to match after 3-decimal rounding: %s != %s", k1, k2)
	}
}

func TestGenerateKeyDifferentOperationsDiffer(t *testing.T) {
	k1 := GenerateKey("osm", "geocode", map[string]any{"address": "x"})
	k2 := GenerateKey("osm", "reverse_geocode", map[string]any{"address": "x"})
	if k1 == k2 {
		t.Fatal("expected different operations to produce different keys")
	}
}

func TestGenerateKeyStringsCaseAndWhitespaceInsensitive(t *testing.T) {
	k1 := GenerateKey("osm", "geocode", map[string]any{"address": "Avenida  Paulista"})
	k2 := GenerateKey("osm", "geocode", map[string]any{"address": "avenida paulista"})
	if k1 != k2 {
		t.Fatal("expected case/whitespace-insensitive string normalization")
	}
}

func TestGenerateKeyListsSorted(t *testing.T) {
	k1 := GenerateKey("osm", "poi_search", map[string]any{"categories": []any{"b", "a"}})
	k2 := GenerateKey("osm", "poi_search", map[string]any{"categories": []any{"a", "b"}})
	if k1 != k2 {
		t.Fatal("expected list order not to affect the cache key")
	}
}
