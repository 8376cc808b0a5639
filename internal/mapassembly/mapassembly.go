// Package mapassembly implements MapAssembly (C10): turning an ordered list
// of RouteSegments into the MapSegment/MapPOI rows of a finished map,
// deduplicating POIs that were discovered from more than one segment and
// filtering out POIs that sit in the trip's own origin city.
package mapassembly

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/remintz/mapalinear/internal/junction"
	"github.com/remintz/mapalinear/internal/provider"
	"github.com/remintz/mapalinear/internal/store"
	"github.com/remintz/mapalinear/internal/tracing"
)

// distanceRecalculationThresholdKm is the minimum drift between a MapPOI's
// stored distance and its recalculated one worth persisting.
const distanceRecalculationThresholdKm = 0.01

// Engine assembles a map's MapSegment and MapPOI rows from its RouteSegments.
type Engine struct {
	maps      *store.MapRepository
	pois      *store.POIRepository
	junctions *junction.Engine
	geo       provider.GeoProvider
}

// New builds an Engine. geo is optional; when nil, reverse-geocode city
// enrichment is skipped, matching the source's geo_provider-is-None guard.
func New(maps *store.MapRepository, pois *store.POIRepository, junctions *junction.Engine, geo provider.GeoProvider) *Engine {
	return &Engine{maps: maps, pois: pois, junctions: junctions, geo: geo}
}

// Result summarizes one assemble_map run.
type Result struct {
	NumMapSegments int
	NumMapPOIs     int
	POIToMapPOI    map[string]string // poi_id -> map_poi_id
}

// AssembleMap creates MapSegment records for segments (in order), computes
// junctions for every distinct POI discovered along them, deduplicates POIs
// seen from more than one segment by keeping the shortest access distance,
// filters out disabled POIs and POIs sitting in originCity, and persists the
// survivors as MapPOI rows.
func (e *Engine) AssembleMap(ctx context.Context, mapID string, segments []store.RouteSegment, routeGeometry [][2]float64, routeTotalKm float64, originCity string) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "mapassembly.assemble_map")
	defer span.End()

	mapSegments := buildMapSegments(mapID, segments)
	if err := e.maps.CreateMapSegments(ctx, mapSegments); err != nil {
		return Result{}, err
	}
	slog.Info("created map segments", "map_id", mapID, "count", len(mapSegments))

	segmentLookup := make(map[string]store.RouteSegment, len(segments))
	segmentIDs := make([]string, 0, len(segments))
	for _, s := range segments {
		segmentLookup[s.ID] = s
		segmentIDs = append(segmentIDs, s.ID)
	}

	globalSPs := junction.AggregateSearchPoints(mapSegments, segmentLookup)
	slog.Info("aggregated global search points", "count", len(globalSPs))

	mapSegmentBySegmentID := make(map[string]store.MapSegment, len(mapSegments))
	for _, ms := range mapSegments {
		mapSegmentBySegmentID[ms.SegmentID] = ms
	}

	segmentPOIs, err := e.pois.SegmentPOIsForSegments(ctx, segmentIDs)
	if err != nil {
		return Result{}, err
	}
	slog.Info("found segment pois across all segments", "count", len(segmentPOIs))

	numPOIs, poiToMapPOI, err := e.createMapPOIs(ctx, mapID, segmentPOIs, mapSegmentBySegmentID, routeGeometry, routeTotalKm, globalSPs, originCity)
	if err != nil {
		return Result{}, err
	}

	return Result{NumMapSegments: len(mapSegments), NumMapPOIs: numPOIs, POIToMapPOI: poiToMapPOI}, nil
}

func buildMapSegments(mapID string, segments []store.RouteSegment) []store.MapSegment {
	mapSegments := make([]store.MapSegment, 0, len(segments))
	cumulative := 0.0
	for i, seg := range segments {
		mapSegments = append(mapSegments, store.MapSegment{
			MapID:                mapID,
			SegmentID:            seg.ID,
			SequenceOrder:        i,
			DistanceFromOriginKm: cumulative,
		})
		cumulative += seg.LengthKm
	}
	return mapSegments
}

// bestJunction tracks the lowest-access-distance junction seen so far for a
// given POI, alongside enough context to build its MapPOI row.
type bestJunction struct {
	junction   junction.Result
	segmentPOI store.SegmentPOIWithPOI
	mapSegment store.MapSegment
}

func (e *Engine) createMapPOIs(ctx context.Context, mapID string, segmentPOIs []store.SegmentPOIWithPOI, mapSegmentBySegmentID map[string]store.MapSegment, routeGeometry [][2]float64, routeTotalKm float64, globalSPs []junction.GlobalSearchPoint, originCity string) (int, map[string]string, error) {
	unique := uniquePOIs(segmentPOIs)
	if e.geo != nil {
		e.enrichWithCity(ctx, unique)
	}

	filtered := filterDisabledAndOriginCity(segmentPOIs, unique, originCity)

	best := calculateBestJunctions(ctx, e.junctions, filtered, mapSegmentBySegmentID, routeGeometry, routeTotalKm, globalSPs)

	// Step 4: build and persist MapPOI rows.
	mapPOIs := make([]store.MapPOI, 0, len(best))
	poiToMapPOI := make(map[string]string, len(best))

	for poiID, b := range best {
		mapPOIID := uuid.New().String()
		mapPOIs = append(mapPOIs, store.MapPOI{
			ID:                     mapPOIID,
			MapID:                  mapID,
			POIID:                  poiID,
			SegmentIndex:           b.mapSegment.SequenceOrder,
			DistanceFromOriginKm:   b.junction.JunctionDistanceKm,
			DistanceFromRoadMeters: b.junction.AccessDistanceKm * 1000,
			Side:                   b.junction.Side,
			JunctionLat:            b.junction.JunctionLat,
			JunctionLon:            b.junction.JunctionLon,
			JunctionDistanceKm:     b.junction.JunctionDistanceKm,
			RequiresDetour:         b.junction.RequiresDetour,
			QualityScore:           b.segmentPOI.QualityScore,
		})
		poiToMapPOI[poiID] = mapPOIID
	}

	if err := e.maps.CreateMapPOIs(ctx, mapPOIs); err != nil {
		return 0, nil, err
	}

	slog.Info("created map pois", "count", len(mapPOIs), "deduplicated_from", len(segmentPOIs))
	return len(mapPOIs), poiToMapPOI, nil
}

// uniquePOIs keeps the first-seen occurrence of each distinct POI across all
// segments; later occurrences are reconciled by calculateBestJunctions.
func uniquePOIs(segmentPOIs []store.SegmentPOIWithPOI) map[string]store.SegmentPOIWithPOI {
	unique := make(map[string]store.SegmentPOIWithPOI)
	for _, sp := range segmentPOIs {
		if _, ok := unique[sp.POIID]; !ok {
			unique[sp.POIID] = sp
		}
	}
	return unique
}

// filterDisabledAndOriginCity drops disabled POIs and POIs sitting in
// originCity before a junction calculation is ever spent on them. The
// disabled/city decision is made once per distinct POI against unique —
// which enrichWithCity may have just backfilled with a reverse-geocoded
// city — and then applied to every segmentPOIs occurrence of that POI, since
// a value-copy in segmentPOIs never sees enrichWithCity's write to unique
// directly. unique is mutated to stay in sync with what survives.
func filterDisabledAndOriginCity(segmentPOIs []store.SegmentPOIWithPOI, unique map[string]store.SegmentPOIWithPOI, originCity string) []store.SegmentPOIWithPOI {
	originCityLower := strings.ToLower(strings.TrimSpace(originCity))
	disabledCount, filteredOutCount := 0, 0

	for poiID, canonical := range unique {
		if canonical.IsDisabled {
			delete(unique, poiID)
			disabledCount++
			continue
		}
		if originCityLower == "" {
			continue
		}
		poiCity := strings.ToLower(strings.TrimSpace(canonical.City.String))
		if poiCity != "" && poiCity == originCityLower {
			delete(unique, poiID)
			filteredOutCount++
		}
	}

	filtered := make([]store.SegmentPOIWithPOI, 0, len(segmentPOIs))
	for _, sp := range segmentPOIs {
		if _, ok := unique[sp.POIID]; ok {
			filtered = append(filtered, sp)
		}
	}

	if disabledCount > 0 {
		slog.Info("filtered out disabled pois", "count", disabledCount)
	}
	if filteredOutCount > 0 {
		slog.Info("filtered out pois in origin city", "city", originCity, "count", filteredOutCount)
	}
	return filtered
}

// calculateBestJunctions computes a junction for every filtered POI and
// keeps, per POI, the one with the shortest access distance — the same POI
// can be discovered from more than one segment's search points.
func calculateBestJunctions(ctx context.Context, junctions *junction.Engine, filtered []store.SegmentPOIWithPOI, mapSegmentBySegmentID map[string]store.MapSegment, routeGeometry [][2]float64, routeTotalKm float64, globalSPs []junction.GlobalSearchPoint) map[string]bestJunction {
	best := make(map[string]bestJunction)
	skipped := 0

	for _, sp := range filtered {
		mapSegment := mapSegmentBySegmentID[sp.SegmentID]
		segmentPOI := store.SegmentPOI{
			SegmentID:             sp.SegmentID,
			POIID:                 sp.POIID,
			SearchPointIndex:      sp.SearchPointIndex,
			StraightLineDistanceM: sp.StraightLineDistanceM,
		}

		result, ok := junctions.CalculateJunction(ctx, sp.Latitude, sp.Longitude, segmentPOI, mapSegment, routeGeometry, routeTotalKm, globalSPs)
		if !ok {
			skipped++
			continue
		}

		if existing, ok := best[sp.POIID]; ok {
			if result.AccessDistanceKm < existing.junction.AccessDistanceKm {
				best[sp.POIID] = bestJunction{junction: result, segmentPOI: sp, mapSegment: mapSegment}
			}
		} else {
			best[sp.POIID] = bestJunction{junction: result, segmentPOI: sp, mapSegment: mapSegment}
		}
	}
	if skipped > 0 {
		slog.Info("skipped pois with failed junction calculation", "count", skipped)
	}
	return best
}

// enrichWithCity backfills city for POIs that lack it, via reverse geocoding,
// before the origin-city filter runs. Only called for unique (post-dedup)
// POIs, mirroring the source's enrich-before-filter ordering.
func (e *Engine) enrichWithCity(ctx context.Context, unique map[string]store.SegmentPOIWithPOI) {
	enriched := 0
	total := 0
	for poiID, sp := range unique {
		if sp.City.Valid && sp.City.String != "" {
			continue
		}
		total++
		loc, err := e.geo.ReverseGeocode(ctx, sp.Latitude, sp.Longitude, sp.Name.String)
		if err != nil {
			slog.Debug("reverse geocoding failed for poi", "poi_id", poiID, "error", err)
			continue
		}
		if loc == nil || loc.City == "" {
			continue
		}
		sp.City.String, sp.City.Valid = loc.City, true
		unique[poiID] = sp
		if e.pois != nil {
			updated := sp.POI
			updated.City = sp.City
			if err := e.pois.Upsert(ctx, &updated); err != nil {
				slog.Debug("persisting reverse-geocoded city failed", "poi_id", poiID, "error", err)
			}
		}
		enriched++
	}
	if enriched > 0 {
		slog.Info("enriched pois with city information", "enriched", enriched, "candidates", total)
	}
}

// MapStatistics summarizes a finished map's size and POI composition.
type MapStatistics struct {
	NumSegments     int
	TotalDistanceKm float64
	NumPOIs         int
	POIsByType      map[string]int
	POIsBySide      map[store.Side]int
}

// GetMapStatistics loads a map's segments and POIs and summarizes them,
// grounded on the source's get_map_statistics.
func (e *Engine) GetMapStatistics(ctx context.Context, mapID string) (MapStatistics, error) {
	ctx, span := tracing.StartSpan(ctx, "mapassembly.get_map_statistics")
	defer span.End()

	m, err := e.maps.Get(ctx, mapID)
	if err != nil {
		return MapStatistics{}, err
	}
	mapSegments, err := e.maps.MapSegmentsForMap(ctx, mapID)
	if err != nil {
		return MapStatistics{}, err
	}
	mapPOIs, err := e.maps.MapPOIsForMap(ctx, mapID)
	if err != nil {
		return MapStatistics{}, err
	}

	poiIDs := make([]string, len(mapPOIs))
	for i, mp := range mapPOIs {
		poiIDs[i] = mp.POIID
	}
	poisByID, err := e.pois.GetByIDs(ctx, poiIDs)
	if err != nil {
		return MapStatistics{}, err
	}

	return summarizeMap(m, mapSegments, mapPOIs, poisByID), nil
}

// summarizeMap is the pure tally behind GetMapStatistics, kept separate so
// it can be tested without a database.
func summarizeMap(m store.Map, mapSegments []store.MapSegment, mapPOIs []store.MapPOI, poisByID map[string]store.POI) MapStatistics {
	stats := MapStatistics{
		NumSegments:     len(mapSegments),
		TotalDistanceKm: m.TotalLengthKm,
		NumPOIs:         len(mapPOIs),
		POIsByType:      make(map[string]int),
		POIsBySide:      make(map[store.Side]int),
	}
	for _, mp := range mapPOIs {
		stats.POIsBySide[mp.Side]++
		if poi, ok := poisByID[mp.POIID]; ok {
			stats.POIsByType[poi.Type]++
		}
	}
	return stats
}

// OrderPOIsByDistance returns a map's POIs ordered by distance from origin,
// grounded on the source's order_pois_by_distance. MapPOIsForMap already
// queries with ORDER BY distance_from_origin_km, so this is a thin,
// named wrapper kept for parity with the source's operation surface.
func (e *Engine) OrderPOIsByDistance(ctx context.Context, mapID string) ([]store.MapPOI, error) {
	ctx, span := tracing.StartSpan(ctx, "mapassembly.order_pois_by_distance")
	defer span.End()
	return e.maps.MapPOIsForMap(ctx, mapID)
}

// RecalculateDistances recomputes each MapPOI's distance-from-origin as
// segment_start_km + search_point_index*1.0 — the same coarse approximation
// junction.CalculateJunction falls back to when a POI has no discovery
// search point in globalSPs — and persists any that drifted by more than
// distanceRecalculationThresholdKm. Grounded on the source's
// recalculate_distances, used after a map's underlying route geometry
// changes without a full re-assembly.
func (e *Engine) RecalculateDistances(ctx context.Context, mapID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "mapassembly.recalculate_distances")
	defer span.End()

	mapSegments, err := e.maps.MapSegmentsForMap(ctx, mapID)
	if err != nil {
		return 0, err
	}
	mapPOIs, err := e.maps.MapPOIsForMap(ctx, mapID)
	if err != nil {
		return 0, err
	}
	if len(mapSegments) == 0 || len(mapPOIs) == 0 {
		return 0, nil
	}

	segmentByIndex := make(map[int]store.MapSegment, len(mapSegments))
	segmentIDs := make([]string, len(mapSegments))
	for i, ms := range mapSegments {
		segmentByIndex[ms.SequenceOrder] = ms
		segmentIDs[i] = ms.SegmentID
	}

	segmentPOIs, err := e.pois.SegmentPOIsForSegments(ctx, segmentIDs)
	if err != nil {
		return 0, err
	}
	searchPointIndex := make(map[string]int, len(segmentPOIs))
	for _, sp := range segmentPOIs {
		searchPointIndex[sp.SegmentID+"|"+sp.POIID] = sp.SearchPointIndex
	}

	changed := recalculateDistances(mapSegments, mapPOIs, segmentByIndex, searchPointIndex)
	if len(changed) == 0 {
		return 0, nil
	}
	if err := e.maps.CreateMapPOIs(ctx, changed); err != nil {
		return 0, fmt.Errorf("persisting recalculated distances: %w", err)
	}
	slog.Info("recalculated map poi distances", "map_id", mapID, "updated", len(changed))
	return len(changed), nil
}

// recalculateDistances is the pure recomputation behind RecalculateDistances.
func recalculateDistances(mapSegments []store.MapSegment, mapPOIs []store.MapPOI, segmentByIndex map[int]store.MapSegment, searchPointIndex map[string]int) []store.MapPOI {
	var changed []store.MapPOI
	for _, mp := range mapPOIs {
		mapSegment, ok := segmentByIndex[mp.SegmentIndex]
		if !ok {
			continue
		}
		spIndex, ok := searchPointIndex[mapSegment.SegmentID+"|"+mp.POIID]
		if !ok {
			continue
		}
		recalculated := mapSegment.DistanceFromOriginKm + float64(spIndex)*1.0
		if math.Abs(recalculated-mp.DistanceFromOriginKm) > distanceRecalculationThresholdKm {
			mp.DistanceFromOriginKm = recalculated
			changed = append(changed, mp)
		}
	}
	return changed
}
