package cache

import "testing"

func TestAddressesSimilarAbbreviation(t *testing.T) {
	if !addressesSimilar("Avenida Paulista, São Paulo, SP", "Av. Paulista, Sao Paulo") {
		t.Fatal("expected abbreviated address to match the full form")
	}
}

func TestAddressesSimilarUnrelated(t *testing.T) {
	if addressesSimilar("Rua Augusta, São Paulo", "Rodovia BR-101, Santa Catarina") {
		t.Fatal("expected unrelated addresses not to match")
	}
}

func TestJaccardSimilarityIdentical(t *testing.T) {
	if sim := jaccardSimilarity("a b c", "a b c"); sim != 1.0 {
		t.Fatalf("expected similarity 1.0 for identical word sets, got %f", sim)
	}
}

func TestJaccardSimilarityDisjoint(t *testing.T) {
	if sim := jaccardSimilarity("a b", "c d"); sim != 0.0 {
		t.Fatalf("expected similarity 0.0 for disjoint word sets, got %f", sim)
	}
}
