package cache

import (
	"regexp"
	"strings"
)

// addressAbbreviations mirrors the Brazilian street-type and accent
// normalizations applied by the source before comparing two addresses for
// semantic equivalence (e.g. "Avenida Paulista" vs "Av. Paulista").
var addressAbbreviations = []struct {
	pattern *regexp.Regexp
	replace string
}{
	{regexp.MustCompile(`\bavenida\b`), "av"},
	{regexp.MustCompile(`\brua\b`), "r"},
	{regexp.MustCompile(`\bpraça\b`), "pca"},
	{regexp.MustCompile(`\bpraca\b`), "pca"},
	{regexp.MustCompile(`\bsão\b`), "sao"},
	{regexp.MustCompile(`\bsanta\b`), "sta"},
	{regexp.MustCompile(`\bsanto\b`), "sto"},
	{regexp.MustCompile(`\bestrada\b`), "estr"},
	{regexp.MustCompile(`\brodovia\b`), "rod"},
	{regexp.MustCompile(`\balameda\b`), "al"},
}

// addressPunctuation matches the punctuation that separates address
// components (commas, periods) without joining onto the word they trail,
// e.g. "paulista," and "paulista" must tokenize identically.
var addressPunctuation = regexp.MustCompile(`[.,]`)

// normalizeAddress lowercases, strips punctuation, collapses whitespace and
// applies the Brazilian street-type abbreviation table.
func normalizeAddress(address string) string {
	stripped := addressPunctuation.ReplaceAllString(strings.ToLower(address), "")
	normalized := normalizeWhitespace(stripped)
	for _, rule := range addressAbbreviations {
		normalized = rule.pattern.ReplaceAllString(normalized, rule.replace)
	}
	return normalized
}

// addressesSimilar reports whether two addresses are the same place by
// word-set Jaccard similarity, using the > 0.7 threshold from the source.
func addressesSimilar(a, b string) bool {
	return jaccardSimilarity(normalizeAddress(a), normalizeAddress(b)) > 0.7
}

func jaccardSimilarity(a, b string) float64 {
	wordsA := wordSet(a)
	wordsB := wordSet(b)
	if len(wordsA) == 0 && len(wordsB) == 0 {
		return 1.0
	}

	intersection := 0
	for w := range wordsA {
		if wordsB[w] {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	words := strings.Fields(s)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
