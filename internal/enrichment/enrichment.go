// Package enrichment implements HEREEnrichment (C8): backfilling POIs
// discovered by one provider (typically OSM) with phone, website and
// opening-hours data from the HERE provider, matched by name similarity and
// proximity.
package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/remintz/mapalinear/internal/geo"
	"github.com/remintz/mapalinear/internal/provider"
	"github.com/remintz/mapalinear/internal/store"
	"github.com/remintz/mapalinear/internal/tracing"
)

// SourceHERE marks a POI's enriched_by entry for this engine.
const SourceHERE = "here_maps"

// DefaultSearchRadiusMeters is how far around a POI's coordinates to look
// for a matching HERE result.
const DefaultSearchRadiusMeters = 100.0

// enrichableTypes lists the canonical POI types worth the extra HERE round
// trip; categories like tourist attractions or rest areas rarely carry the
// structured contact data HERE adds.
var enrichableTypes = map[string]bool{
	"gas_station": true,
	"restaurant":  true,
	"hotel":       true,
	"hospital":    true,
	"pharmacy":    true,
	"bank":        true,
	"atm":         true,
	"cafe":        true,
	"fast_food":   true,
	"supermarket": true,
	"mechanic":    true,
}

var typeToCategory = map[string]provider.POICategory{
	"gas_station": provider.CategoryGasStation,
	"restaurant":  provider.CategoryRestaurant,
	"hotel":       provider.CategoryHotel,
	"hospital":    provider.CategoryHospital,
	"pharmacy":    provider.CategoryPharmacy,
	"bank":        provider.CategoryBank,
	"atm":         provider.CategoryATM,
	"cafe":        provider.CategoryCafe,
	"fast_food":   provider.CategoryFastFood,
	"supermarket": provider.CategorySupermarket,
	"mechanic":    provider.CategoryMechanic,
	"police":      provider.CategoryPolice,
}

var genericNameWords = map[string]bool{
	"posto": true, "fuel": true, "gas": true, "station": true,
	"restaurant": true, "restaurante": true, "hotel": true,
	"pousada": true, "bar": true, "cafe": true,
}

// Result is the outcome of attempting to enrich a single POI.
type Result struct {
	POIID               string
	OSMID               string
	HereID              string
	Matched             bool
	Phone               string
	Website             string
	OpeningHours        string
	MatchDistanceMeters float64
	Error               string
}

// Engine enriches POIs with HERE Maps data.
type Engine struct {
	hereProvider provider.GeoProvider
	pois         *store.POIRepository
}

// New builds an Engine. hereProvider may be nil, in which case IsEnabled
// reports false and every enrichment is a no-op — mirroring the source's
// is_enabled() gate on a missing HERE_API_KEY.
func New(hereProvider provider.GeoProvider, pois *store.POIRepository) *Engine {
	return &Engine{hereProvider: hereProvider, pois: pois}
}

// IsEnabled reports whether a HERE provider was configured.
func (e *Engine) IsEnabled() bool {
	return e.hereProvider != nil
}

// ShouldEnrich reports whether poi is a type worth enriching and has not
// already been enriched by HERE.
func (e *Engine) ShouldEnrich(poi store.POI) bool {
	return enrichableTypes[poi.Type] && !isEnrichedBy(poi, SourceHERE)
}

func isEnrichedBy(poi store.POI, source string) bool {
	for _, s := range poi.EnrichedBy.Value {
		if s == source {
			return true
		}
	}
	return false
}

// EnrichOne searches the HERE provider around poi's coordinates, picks the
// best match by name similarity and distance, and persists the match's
// phone/website/opening-hours/here_id onto poi via Upsert.
func (e *Engine) EnrichOne(ctx context.Context, poi store.POI, searchRadiusM float64) Result {
	ctx, span := tracing.StartSpan(ctx, "enrichment.enrich_one")
	defer span.End()

	result := Result{POIID: poi.ID, OSMID: poi.OSMID.String, HereID: poi.HereID.String}

	if !e.IsEnabled() {
		result.Error = "HERE Maps enrichment is disabled"
		return result
	}
	if isEnrichedBy(poi, SourceHERE) {
		result.Matched = true
		result.Error = "already enriched by HERE"
		return result
	}
	if searchRadiusM <= 0 {
		searchRadiusM = DefaultSearchRadiusMeters
	}

	category, ok := typeToCategory[poi.Type]
	if !ok {
		category = provider.CategoryOther
	}

	center := provider.GeoLocation{Latitude: poi.Latitude, Longitude: poi.Longitude}
	candidates, err := e.hereProvider.SearchPOIs(ctx, center, searchRadiusM, []provider.POICategory{category}, 5)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if len(candidates) == 0 {
		result.Error = fmt.Sprintf("no HERE results found within %.0fm", searchRadiusM)
		return result
	}

	match, distance, found := bestMatch(poi, candidates)
	if !found {
		result.Error = "no suitable match found"
		return result
	}

	result.Matched = true
	result.HereID = match.ProviderID
	result.Phone = match.Phone
	result.Website = match.Website
	result.OpeningHours = match.OpeningHours
	result.MatchDistanceMeters = distance

	if e.pois != nil {
		updated := poi
		updated.HereID.String, updated.HereID.Valid = match.ProviderID, true
		if match.Phone != "" {
			updated.Phone.String, updated.Phone.Valid = match.Phone, true
		}
		if match.Website != "" {
			updated.Website.String, updated.Website.Valid = match.Website, true
		}
		if match.OpeningHours != "" {
			updated.OpeningHours.String, updated.OpeningHours.Valid = match.OpeningHours, true
		}
		updated.EnrichedBy = store.NewJSONColumn(append(append([]string{}, poi.EnrichedBy.Value...), SourceHERE))

		if err := e.pois.Upsert(ctx, &updated); err != nil {
			result.Error = err.Error()
			return result
		}
		slog.Info("enriched poi with here data", "poi_id", poi.ID, "here_id", match.ProviderID)
	}

	return result
}

// EnrichBatch enriches every poi that ShouldEnrich accepts.
func (e *Engine) EnrichBatch(ctx context.Context, pois []store.POI, searchRadiusM float64) []Result {
	if !e.IsEnabled() {
		slog.Warn("here maps enrichment is disabled")
		return nil
	}

	var results []Result
	matched := 0
	for _, poi := range pois {
		if !e.ShouldEnrich(poi) {
			continue
		}
		result := e.EnrichOne(ctx, poi, searchRadiusM)
		results = append(results, result)
		if result.Matched {
			matched++
		}
	}

	slog.Info("here enrichment completed", "matched", matched, "enrichable", len(results))
	return results
}

// bestMatch scores each candidate by name similarity (40%) and normalized
// proximity (60%), picking the highest scorer above a 0.3 threshold, or the
// single closest candidate when it is within 50m and nothing scored higher.
func bestMatch(poi store.POI, candidates []provider.ProviderPOI) (provider.ProviderPOI, float64, bool) {
	dbName := strings.ToLower(strings.TrimSpace(poi.Name.String))

	bestScore := -1.0
	var best provider.ProviderPOI
	bestDistance := 0.0

	for _, c := range candidates {
		distance := geo.DistanceMeters(
			geo.Point{Lat: poi.Latitude, Lon: poi.Longitude},
			geo.Point{Lat: c.Latitude, Lon: c.Longitude},
		)

		nameScore := nameSimilarity(dbName, strings.ToLower(strings.TrimSpace(c.Name)))
		distanceScore := 1 - distance/200
		if distanceScore < 0 {
			distanceScore = 0
		}

		score := nameScore*0.4 + distanceScore*0.6
		if score > bestScore {
			bestScore = score
			best = c
			bestDistance = distance
		}
	}

	if bestScore > 0.3 {
		return best, bestDistance, true
	}
	if len(candidates) > 0 && bestDistance < 50 {
		return candidates[0], bestDistance, true
	}
	return provider.ProviderPOI{}, 0, false
}

func nameSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if strings.Contains(b, a) || strings.Contains(a, b) {
		return 1.0
	}

	aWords := wordSet(a)
	bWords := wordSet(b)
	common := 0
	for w := range aWords {
		if bWords[w] && !genericNameWords[w] {
			common++
		}
	}
	if common == 0 {
		return 0
	}

	maxWords := len(aWords)
	if len(bWords) > maxWords {
		maxWords = len(bWords)
	}
	return float64(common) / float64(maxWords)
}

func wordSet(s string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		words[w] = true
	}
	return words
}
