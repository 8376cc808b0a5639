// Package poisearch implements POISearch (C6): querying a POI provider at
// each of a segment's pre-computed search points and deduplicating the
// results down to each POI's closest discovery.
package poisearch

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/remintz/mapalinear/internal/geo"
	"github.com/remintz/mapalinear/internal/provider"
	"github.com/remintz/mapalinear/internal/store"
	"github.com/remintz/mapalinear/internal/tracing"
)

// DefaultMaxDistanceFromRoadMeters bounds how far off the route a POI can be
// and still be considered to belong to it.
const DefaultMaxDistanceFromRoadMeters = 3000.0

// DefaultLimitPerSearchPoint caps how many POIs are requested per search
// point, keeping a single segment's search bounded regardless of density.
const DefaultLimitPerSearchPoint = 20

// MaxConcurrentSearchPoints bounds how many of a segment's search points are
// queried against the provider at once. A long segment can carry dozens of
// 1km-spaced search points; querying all of them at once would burst well
// past a provider's rate limiter, so the group is capped and the limiter
// (internal/ratelimit) still throttles the bounded set of in-flight calls.
const MaxConcurrentSearchPoints = 8

// Discovery is a POI found from one of a segment's search points, carrying
// the metadata needed to create a SegmentPOI association.
type Discovery struct {
	POI                   provider.ProviderPOI
	SearchPointIndex      int
	StraightLineDistanceM int
}

// Engine searches a POI provider around a segment's search points.
type Engine struct {
	poiProvider provider.GeoProvider
}

// New builds an Engine backed by poiProvider (the POI_PROVIDER adapter,
// independent of whichever adapter performed the routing).
func New(poiProvider provider.GeoProvider) *Engine {
	return &Engine{poiProvider: poiProvider}
}

// SearchForSegment queries poiProvider at every one of segment's search
// points for the given categories, and returns one Discovery per unique POI
// — the closest of potentially several sightings across search points.
// Abandoned POIs are dropped. A failed search at one search point is logged
// and skipped rather than failing the whole segment.
func (e *Engine) SearchForSegment(ctx context.Context, segment store.RouteSegment, categories []provider.POICategory, maxDistanceFromRoadM float64) ([]Discovery, error) {
	ctx, span := tracing.StartSpan(ctx, "poisearch.search_for_segment")
	defer span.End()

	searchPoints := segment.SearchPoints.Value
	if len(searchPoints) == 0 {
		slog.Debug("segment has no search points", "segment_id", segment.ID)
		return nil, nil
	}

	if maxDistanceFromRoadM <= 0 {
		maxDistanceFromRoadM = DefaultMaxDistanceFromRoadMeters
	}

	// Query every search point concurrently, bounded by
	// MaxConcurrentSearchPoints, and collect results per point before
	// deduplicating. A search point's failure is logged and its slot stays
	// empty rather than aborting the group (errgroup.Group.Go's error would
	// otherwise cancel the shared ctx and cut off the remaining points).
	results := make([][]provider.ProviderPOI, len(searchPoints))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrentSearchPoints)

	for i, sp := range searchPoints {
		i, sp := i, sp
		g.Go(func() error {
			center := provider.GeoLocation{Latitude: sp.Lat, Longitude: sp.Lon}
			pois, err := e.poiProvider.SearchPOIs(gctx, center, maxDistanceFromRoadM, categories, DefaultLimitPerSearchPoint)
			if err != nil {
				slog.Warn("error searching pois at search point", "segment_id", segment.ID, "search_point_index", sp.Index, "error", err)
				return nil
			}
			results[i] = pois
			return nil
		})
	}
	// g.Go never returns a non-nil error above, so Wait can't fail; kept for
	// the errgroup contract.
	_ = g.Wait()

	best := make(map[string]Discovery)
	for i, sp := range searchPoints {
		for _, poi := range results[i] {
			if poi.IsAbandoned {
				continue
			}

			distanceM := int(geo.DistanceMeters(
				geo.Point{Lat: poi.Latitude, Lon: poi.Longitude},
				geo.Point{Lat: sp.Lat, Lon: sp.Lon},
			))

			if prev, ok := best[poi.ProviderID]; ok {
				if distanceM < prev.StraightLineDistanceM {
					best[poi.ProviderID] = Discovery{POI: poi, SearchPointIndex: sp.Index, StraightLineDistanceM: distanceM}
				}
				continue
			}
			best[poi.ProviderID] = Discovery{POI: poi, SearchPointIndex: sp.Index, StraightLineDistanceM: distanceM}
		}
	}

	slog.Info("found unique pois for segment", "segment_id", segment.ID, "count", len(best))

	discoveries := make([]Discovery, 0, len(best))
	for _, d := range best {
		discoveries = append(discoveries, d)
	}
	return discoveries, nil
}
