// Package roadservice implements RoadService (C13): the top-level pipeline
// conductor that turns an origin/destination pair into a persisted Map by
// driving every other component in sequence (geocode -> route -> segment ->
// search -> persist -> enrich -> assemble).
package roadservice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"github.com/remintz/mapalinear/internal/apperr"
	"github.com/remintz/mapalinear/internal/enrichment"
	"github.com/remintz/mapalinear/internal/mapassembly"
	"github.com/remintz/mapalinear/internal/monitoring"
	"github.com/remintz/mapalinear/internal/poipersist"
	"github.com/remintz/mapalinear/internal/poisearch"
	"github.com/remintz/mapalinear/internal/provider"
	"github.com/remintz/mapalinear/internal/segment"
	"github.com/remintz/mapalinear/internal/store"
	"github.com/remintz/mapalinear/internal/tracing"
)

// enrichableCategories mirrors spec.md §4.10 step 6's fixed list of
// enrichable POI types. GenerateLinearMap uses it only as the default POI
// search categories when Options.Categories is empty; the enrichment pass
// selects POIs through enrichment.Engine.ShouldEnrich instead.
var enrichableCategories = []provider.POICategory{
	provider.CategoryGasStation,
	provider.CategoryRestaurant,
	provider.CategoryHotel,
	provider.CategoryHospital,
	provider.CategoryPharmacy,
	provider.CategoryBank,
	provider.CategoryATM,
	provider.CategoryCafe,
	provider.CategoryFastFood,
	provider.CategorySupermarket,
	provider.CategoryMechanic,
}

// Options tunes one generate_linear_map run.
type Options struct {
	RoadID               string
	UserID               string
	MaxDistanceFromRoadM float64
	Categories           []provider.POICategory
	// VersionSuffix and ForceNewSegments are forwarded to
	// segment.Engine.BulkGetOrCreate so a caller reprocessing a route can
	// force brand-new RouteSegments instead of reusing ones from an earlier
	// pass (spec.md §4.4's force_new/version_suffix segment override).
	VersionSuffix    string
	ForceNewSegments bool
}

// ProgressFunc is called with 0-100 progress throughout the pipeline.
type ProgressFunc func(percent float64)

// Engine is the pipeline conductor. routingProvider resolves geocoding and
// routing (always OSM, per spec.md §4.3); poiProvider resolves the
// configured POI source (OSM or HERE); enrich, if enabled, backs HERE
// enrichment regardless of poiProvider.
type Engine struct {
	routingProvider provider.GeoProvider
	poiProvider     provider.GeoProvider
	poiProviderKind provider.Kind

	segments *segment.Engine
	search   *poisearch.Engine
	persist  *poipersist.Engine
	enrich   *enrichment.Engine
	assembly *mapassembly.Engine
	maps     *store.MapRepository
	pois     *store.POIRepository
}

// New builds an Engine. enrich may be disabled (IsEnabled() == false), in
// which case step 6 is skipped entirely.
func New(
	routingProvider provider.GeoProvider,
	poiProvider provider.GeoProvider,
	poiProviderKind provider.Kind,
	segments *segment.Engine,
	search *poisearch.Engine,
	persist *poipersist.Engine,
	enrich *enrichment.Engine,
	assembly *mapassembly.Engine,
	maps *store.MapRepository,
	pois *store.POIRepository,
) *Engine {
	return &Engine{
		routingProvider: routingProvider,
		poiProvider:     poiProvider,
		poiProviderKind: poiProviderKind,
		segments:        segments,
		search:          search,
		persist:         persist,
		enrich:          enrich,
		assembly:        assembly,
		maps:            maps,
		pois:            pois,
	}
}

// Result is the outcome of a successful generate_linear_map run.
type Result struct {
	MapID         string
	TotalLengthKm float64
	NumSegments   int
	NumPOIs       int
}

// extractOriginCity pulls the city name out of a free-text origin address,
// matching the source's origin.split(',')[0].strip() if ',' in origin else
// origin.strip().
func extractOriginCity(origin string) string {
	city := origin
	if idx := strings.Index(origin, ","); idx >= 0 {
		city = origin[:idx]
	}
	return strings.TrimSpace(city)
}

// enrichSegmentPOIs re-reads the canonical POIs attached to segments and
// runs them through the HERE enrichment engine. Operating on the persisted
// rows (rather than the provider-fresh discoveries from step 5) matches the
// source's enrich_map_pois_with_here, which is a separate pass over stored
// POIs, not something folded into the search step.
func (e *Engine) enrichSegmentPOIs(ctx context.Context, segments []store.RouteSegment) error {
	ctx, span := tracing.StartSpan(ctx, "roadservice.enrich_segment_pois")
	defer span.End()

	segmentIDs := make([]string, len(segments))
	for i, seg := range segments {
		segmentIDs[i] = seg.ID
	}

	segmentPOIs, err := e.pois.SegmentPOIsForSegments(ctx, segmentIDs)
	if err != nil {
		return fmt.Errorf("roadservice: loading pois for enrichment: %w", err)
	}

	seen := make(map[string]bool, len(segmentPOIs))
	candidates := make([]store.POI, 0, len(segmentPOIs))
	for _, sp := range segmentPOIs {
		if seen[sp.POI.ID] || !e.enrich.ShouldEnrich(sp.POI) {
			continue
		}
		seen[sp.POI.ID] = true
		candidates = append(candidates, sp.POI)
	}
	if len(candidates) == 0 {
		return nil
	}

	results := e.enrich.EnrichBatch(ctx, candidates, enrichment.DefaultSearchRadiusMeters)
	enriched := 0
	for _, r := range results {
		if r.Matched {
			enriched++
		}
	}
	slog.Info("here enrichment completed", "candidates", len(candidates), "enriched", enriched)
	return nil
}

// GenerateLinearMap runs the 8-step pipeline described in spec.md §4.10.
func (e *Engine) GenerateLinearMap(ctx context.Context, origin, destination string, opts Options, onProgress ProgressFunc) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "roadservice.generate_linear_map")
	defer span.End()

	start := time.Now()
	report := func(pct float64) {
		if onProgress != nil {
			onProgress(pct)
		}
	}

	if opts.MaxDistanceFromRoadM <= 0 {
		opts.MaxDistanceFromRoadM = poisearch.DefaultMaxDistanceFromRoadMeters
	}
	categories := opts.Categories
	if len(categories) == 0 {
		categories = enrichableCategories
	}

	// Step 1: extract origin_city from the free-text origin (before the
	// first comma).
	originCity := extractOriginCity(origin)

	// Step 2: geocode origin/destination.
	originLoc, err := e.routingProvider.Geocode(ctx, origin)
	if err != nil {
		monitoring.RecordPipelineDuration("failed", time.Since(start))
		return Result{}, apperr.Wrap(apperr.CodeNotFound, fmt.Sprintf("could not geocode origin %q", origin), err)
	}
	if originLoc == nil {
		monitoring.RecordPipelineDuration("failed", time.Since(start))
		return Result{}, apperr.New(apperr.CodeNotFound, fmt.Sprintf("could not geocode origin %q", origin))
	}
	report(5)

	destLoc, err := e.routingProvider.Geocode(ctx, destination)
	if err != nil {
		monitoring.RecordPipelineDuration("failed", time.Since(start))
		return Result{}, apperr.Wrap(apperr.CodeNotFound, fmt.Sprintf("could not geocode destination %q", destination), err)
	}
	if destLoc == nil {
		monitoring.RecordPipelineDuration("failed", time.Since(start))
		return Result{}, apperr.New(apperr.CodeNotFound, fmt.Sprintf("could not geocode destination %q", destination))
	}
	report(10)

	slog.Info("geocoded route endpoints",
		"origin", origin, "origin_lat", originLoc.Latitude, "origin_lon", originLoc.Longitude,
		"destination", destination, "dest_lat", destLoc.Latitude, "dest_lon", destLoc.Longitude,
	)

	// Step 3: calculate the route.
	route, err := e.routingProvider.CalculateRoute(ctx, *originLoc, *destLoc, nil, nil)
	if err != nil {
		monitoring.RecordPipelineDuration("failed", time.Since(start))
		return Result{}, apperr.Wrap(apperr.CodeProviderUnavailable, "could not calculate route", err)
	}
	if route == nil || len(route.Steps) == 0 {
		monitoring.RecordPipelineDuration("failed", time.Since(start))
		return Result{}, apperr.New(apperr.CodeNotFound, fmt.Sprintf("no route found from %q to %q", origin, destination))
	}
	report(20)

	slog.Info("route calculated", "total_distance_km", route.TotalDistanceKm, "steps", len(route.Steps), "road_names", route.RoadNames)

	// Step 4: get-or-create RouteSegments for every step.
	segments, reused, err := e.segments.BulkGetOrCreate(ctx, route.Steps, segment.CreateOptions{
		VersionSuffix: opts.VersionSuffix,
		ForceNew:      opts.ForceNewSegments,
	})
	if err != nil {
		monitoring.RecordPipelineDuration("failed", time.Since(start))
		return Result{}, err
	}
	report(35)

	newCount := 0
	for _, wasExisting := range reused {
		if !wasExisting {
			newCount++
		}
	}
	slog.Info("segments resolved", "total", len(segments), "new", newCount, "reused", len(segments)-newCount)

	// Step 5: for each segment that still needs POIs, search, persist and
	// associate.
	pendingSegments := 0
	for _, seg := range segments {
		if segment.NeedsPOISearch(seg) {
			pendingSegments++
		}
	}

	processed := 0
	for _, seg := range segments {
		if !segment.NeedsPOISearch(seg) {
			continue
		}

		discoveries, err := e.search.SearchForSegment(ctx, seg, categories, opts.MaxDistanceFromRoadM)
		if err != nil {
			slog.Warn("poi search failed for segment, continuing", "segment_id", seg.ID, "error", err)
			processed++
			continue
		}

		providerPOIs := make([]provider.ProviderPOI, len(discoveries))
		referenced := make(map[string]bool, len(discoveries))
		for i, d := range discoveries {
			providerPOIs[i] = d.POI
			referenced[d.POI.ProviderID] = true
		}

		providerIDToPOIID, err := e.persist.PersistBatch(ctx, providerPOIs, referenced)
		if err != nil {
			return Result{}, err
		}

		segDiscoveries := make([]segment.POIDiscovery, 0, len(discoveries))
		for _, d := range discoveries {
			poiID, ok := providerIDToPOIID[d.POI.ProviderID]
			if !ok {
				continue
			}
			segDiscoveries = append(segDiscoveries, segment.POIDiscovery{
				POIID:                 poiID,
				SearchPointIndex:      d.SearchPointIndex,
				StraightLineDistanceM: float64(d.StraightLineDistanceM),
			})
		}

		if err := e.segments.AssociatePOIs(ctx, seg, segDiscoveries); err != nil {
			return Result{}, err
		}

		processed++
		if pendingSegments > 0 {
			report(35 + 35*float64(processed)/float64(pendingSegments))
		}
	}
	report(70)

	// Step 6: HERE enrichment, only when enabled and the POI provider is
	// OSM (enriching HERE-sourced POIs with HERE data would be redundant).
	if e.enrich != nil && e.enrich.IsEnabled() && e.poiProviderKind == provider.KindOSM {
		if err := e.enrichSegmentPOIs(ctx, segments); err != nil {
			slog.Warn("here enrichment failed, continuing without it", "error", err)
		}
	}
	report(75)

	// Step 7: create the Map row and assemble it.
	mapID := uuid.New().String()
	tracing.SetAttributes(ctx, attribute.String(tracing.AttrMapID, mapID))
	m := store.Map{
		ID:            mapID,
		Origin:        origin,
		Destination:   destination,
		TotalLengthKm: route.TotalDistanceKm,
	}
	if opts.RoadID != "" {
		m.RoadID.String, m.RoadID.Valid = opts.RoadID, true
	}
	if opts.UserID != "" {
		m.CreatedByUserID.String, m.CreatedByUserID.Valid = opts.UserID, true
	}
	if err := e.maps.Create(ctx, &m); err != nil {
		return Result{}, err
	}

	assembleResult, err := e.assembly.AssembleMap(ctx, mapID, segments, route.Geometry, route.TotalDistanceKm, originCity)
	if err != nil {
		return Result{}, err
	}
	report(95)

	// Step 8: final progress report and metrics.
	monitoring.RecordPipelineDuration("success", time.Since(start))
	report(100)

	slog.Info("map generation completed",
		"map_id", mapID, "segments", assembleResult.NumMapSegments, "pois", assembleResult.NumMapPOIs,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return Result{
		MapID:         mapID,
		TotalLengthKm: route.TotalDistanceKm,
		NumSegments:   assembleResult.NumMapSegments,
		NumPOIs:       assembleResult.NumMapPOIs,
	}, nil
}
