// Package segment implements the SegmentEngine (C5): turning OSRM route
// steps into content-addressed, reusable RouteSegments and the 1km search
// points used to look up POIs along them.
package segment

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/remintz/mapalinear/internal/apperr"
	"github.com/remintz/mapalinear/internal/geo"
	"github.com/remintz/mapalinear/internal/provider"
	"github.com/remintz/mapalinear/internal/store"
	"github.com/remintz/mapalinear/internal/tracing"
)

// MinLengthForSearchKm is the shortest segment length that gets search
// points generated; shorter segments (e.g. a tight turn) are too small to
// bother sampling.
const MinLengthForSearchKm = 1.0

// SearchPointIntervalKm is the spacing between generated search points.
const SearchPointIntervalKm = 1.0

// Engine creates and reuses RouteSegments and their search points.
type Engine struct {
	segments *store.SegmentRepository
	pois     *store.POIRepository
}

// New builds an Engine backed by the given repositories.
func New(segments *store.SegmentRepository, pois *store.POIRepository) *Engine {
	return &Engine{segments: segments, pois: pois}
}

// CalculateHash derives a segment's content hash from its endpoints, rounded
// to 4 decimal places (~11m precision). Two OSRM steps whose endpoints round
// to the same hash are treated as the same reusable segment. A non-empty
// versionSuffix (e.g. a monotonic timestamp) is mixed into the hash so a
// caller can force a brand-new segment instead of reusing one by coordinate.
func CalculateHash(startLat, startLon, endLat, endLon float64, versionSuffix string) string {
	coords := fmt.Sprintf("%.4f,%.4f|%.4f,%.4f", startLat, startLon, endLat, endLon)
	if versionSuffix != "" {
		coords += "|" + versionSuffix
	}
	sum := md5.Sum([]byte(coords))
	return hex.EncodeToString(sum[:])
}

// GenerateSearchPoints samples geometry every SearchPointIntervalKm, up to
// length_km, starting at distance 0. Segments shorter than
// MinLengthForSearchKm, or with fewer than two geometry points, get none.
func GenerateSearchPoints(geometry [][2]float64, lengthKm float64) []store.SearchPoint {
	if lengthKm < MinLengthForSearchKm || len(geometry) < 2 {
		return nil
	}

	points := make([]geo.Point, len(geometry))
	for i, p := range geometry {
		points[i] = geo.Point{Lat: p[0], Lon: p[1]}
	}

	cumulative := make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		cumulative[i] = cumulative[i-1] + geo.DistanceMeters(points[i-1], points[i])/1000.0
	}

	var result []store.SearchPoint
	index := 0
	for target := 0.0; target <= lengthKm; target += SearchPointIntervalKm {
		p := interpolateAtCumulativeDistance(points, cumulative, target)
		result = append(result, store.SearchPoint{
			Index:                      index,
			Lat:                        p.Lat,
			Lon:                        p.Lon,
			DistanceFromSegmentStartKm: roundTo(target, 3),
		})
		index++
	}
	return result
}

// interpolateAtCumulativeDistance walks cumulative (actual arc-length, not
// index-proportional) distances to find the geometry segment bracketing
// targetDistanceKm, then linearly interpolates within it. This is distinct
// from geo.InterpolateAtDistance, which assumes evenly spaced points — route
// geometry from OSRM is not evenly spaced, so search points drift off the
// road without walking the real per-point distances.
func interpolateAtCumulativeDistance(points []geo.Point, cumulative []float64, targetDistanceKm float64) geo.Point {
	if targetDistanceKm <= 0 {
		return points[0]
	}
	last := cumulative[len(cumulative)-1]
	if targetDistanceKm >= last {
		return points[len(points)-1]
	}

	for i := 1; i < len(cumulative); i++ {
		if cumulative[i] >= targetDistanceKm {
			prevDist, currDist := cumulative[i-1], cumulative[i]
			segLen := currDist - prevDist
			if segLen <= 0 {
				return points[i-1]
			}
			fraction := (targetDistanceKm - prevDist) / segLen
			prev, curr := points[i-1], points[i]
			return geo.Point{
				Lat: prev.Lat + fraction*(curr.Lat-prev.Lat),
				Lon: prev.Lon + fraction*(curr.Lon-prev.Lon),
			}
		}
	}
	return points[len(points)-1]
}

func roundTo(v float64, decimals int) float64 {
	scale := 1.0
	for i := 0; i < decimals; i++ {
		scale *= 10
	}
	return float64(int(v*scale+0.5)) / scale
}

// CreateOptions controls GetOrCreate/BulkGetOrCreate's lookup behavior.
// VersionSuffix is mixed into the segment hash; ForceNew skips the by-hash
// lookup entirely and always creates a new row, so reprocessing a route
// under a new VersionSuffix is guaranteed a fresh segment instead of
// silently reusing one from a previous pass.
type CreateOptions struct {
	VersionSuffix string
	ForceNew      bool
}

// GetOrCreate returns the RouteSegment for step, reusing an existing row by
// content hash and bumping its usage_count, or creating a new one with
// freshly generated search points. The bool return is true when a new row
// was created.
func (e *Engine) GetOrCreate(ctx context.Context, step provider.RouteStep, opts CreateOptions) (store.RouteSegment, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "segment.get_or_create")
	defer span.End()

	if len(step.Geometry) == 0 {
		return store.RouteSegment{}, false, apperr.New(apperr.CodeInvalidInput, "segment: route step has no geometry")
	}

	start := step.Geometry[0]
	end := step.Geometry[len(step.Geometry)-1]
	hash := CalculateHash(start[0], start[1], end[0], end[1], opts.VersionSuffix)

	if !opts.ForceNew {
		existing, err := e.segments.GetByHashes(ctx, []string{hash})
		if err != nil {
			return store.RouteSegment{}, false, fmt.Errorf("segment: looking up existing segment: %w", err)
		}
		if seg, ok := existing[hash]; ok {
			if err := e.segments.IncrementUsage(ctx, hash, 1); err != nil {
				return store.RouteSegment{}, false, fmt.Errorf("segment: incrementing usage: %w", err)
			}
			seg.UsageCount++
			return seg, false, nil
		}
	}

	seg := newSegment(hash, step)
	if err := e.segments.Create(ctx, &seg); err != nil {
		return store.RouteSegment{}, false, fmt.Errorf("segment: creating segment: %w", err)
	}

	if opts.ForceNew {
		return seg, true, nil
	}

	// A concurrent writer may have won the insert race (ON CONFLICT DO
	// NOTHING); re-fetch by hash so the caller always gets the row that
	// actually landed in the database.
	created, err := e.segments.GetByHashes(ctx, []string{hash})
	if err != nil {
		return store.RouteSegment{}, false, fmt.Errorf("segment: reloading created segment: %w", err)
	}
	if row, ok := created[hash]; ok {
		return row, true, nil
	}
	return seg, true, nil
}

// BulkGetOrCreate processes steps in order, deduplicating within the batch
// so repeated steps (e.g. a route that backtracks onto the same road) reuse
// the same segment instead of racing to create duplicate rows. With
// opts.ForceNew, the by-hash lookup (both against the database and within
// the batch) is skipped entirely and every step gets a brand-new segment.
func (e *Engine) BulkGetOrCreate(ctx context.Context, steps []provider.RouteStep, opts CreateOptions) ([]store.RouteSegment, []bool, error) {
	ctx, span := tracing.StartSpan(ctx, "segment.bulk_get_or_create")
	defer span.End()

	hashes := make([]string, len(steps))
	for i, step := range steps {
		if len(step.Geometry) == 0 {
			return nil, nil, apperr.New(apperr.CodeInvalidInput, "segment: route step has no geometry")
		}
		start := step.Geometry[0]
		end := step.Geometry[len(step.Geometry)-1]
		hashes[i] = CalculateHash(start[0], start[1], end[0], end[1], opts.VersionSuffix)
	}

	existing := map[string]store.RouteSegment{}
	if !opts.ForceNew {
		var err error
		existing, err = e.segments.GetByHashes(ctx, hashes)
		if err != nil {
			return nil, nil, fmt.Errorf("segment: bulk lookup: %w", err)
		}
	}

	segments := make([]store.RouteSegment, len(steps))
	isNew := make([]bool, len(steps))

	for i, step := range steps {
		hash := hashes[i]
		if seg, ok := existing[hash]; ok {
			if err := e.segments.IncrementUsage(ctx, hash, 1); err != nil {
				return nil, nil, fmt.Errorf("segment: incrementing usage: %w", err)
			}
			seg.UsageCount++
			segments[i] = seg
			existing[hash] = seg
			continue
		}

		seg := newSegment(hash, step)
		if err := e.segments.Create(ctx, &seg); err != nil {
			return nil, nil, fmt.Errorf("segment: creating segment: %w", err)
		}
		segments[i] = seg
		isNew[i] = true
		if !opts.ForceNew {
			// Feed back into the lookup so a later duplicate step in this
			// same batch reuses this row instead of creating a second one.
			existing[hash] = seg
		}
	}

	return segments, isNew, nil
}

func newSegment(hash string, step provider.RouteStep) store.RouteSegment {
	geometry := make([]store.GeoPoint, len(step.Geometry))
	for i, p := range step.Geometry {
		geometry[i] = store.GeoPoint{Lat: p[0], Lon: p[1]}
	}

	lengthKm := step.DistanceM / 1000.0
	searchPoints := GenerateSearchPoints(step.Geometry, lengthKm)

	seg := store.RouteSegment{
		ID:          uuid.New().String(),
		SegmentHash: hash,
		StartLat:    step.Geometry[0][0],
		StartLon:    step.Geometry[0][1],
		EndLat:      step.Geometry[len(step.Geometry)-1][0],
		EndLon:      step.Geometry[len(step.Geometry)-1][1],
		LengthKm:    lengthKm,
		UsageCount:  1,
	}
	if step.RoadName != "" {
		seg.RoadName.String, seg.RoadName.Valid = step.RoadName, true
	}
	seg.Geometry = store.NewJSONColumn(geometry)
	seg.SearchPoints = store.NewJSONColumn(searchPoints)
	return seg
}

// POIDiscovery is a single POI found from a segment's search point, ready
// for association via AssociatePOIs.
type POIDiscovery struct {
	POIID                 string
	SearchPointIndex      int
	StraightLineDistanceM float64
}

// AssociatePOIs records that the given POIs were found from segment's search
// points, then marks the segment as having had its POIs fetched. Idempotent:
// re-running against the same discoveries just tightens the recorded
// distance (store.POIRepository.AssociateWithSegment keeps the smaller one).
func (e *Engine) AssociatePOIs(ctx context.Context, seg store.RouteSegment, discoveries []POIDiscovery) error {
	ctx, span := tracing.StartSpan(ctx, "segment.associate_pois")
	defer span.End()

	for _, d := range discoveries {
		assoc := store.SegmentPOI{
			SegmentID:             seg.ID,
			POIID:                 d.POIID,
			SearchPointIndex:      d.SearchPointIndex,
			StraightLineDistanceM: d.StraightLineDistanceM,
		}
		if err := e.pois.AssociateWithSegment(ctx, assoc); err != nil {
			return fmt.Errorf("segment: associating poi %s: %w", d.POIID, err)
		}
	}

	if err := e.segments.MarkPOIsFetched(ctx, seg.ID); err != nil {
		return fmt.Errorf("segment: marking pois fetched: %w", err)
	}
	return nil
}

// NeedsPOISearch reports whether a segment should be searched for POIs: it
// has never been searched and is long enough to carry search points.
func NeedsPOISearch(seg store.RouteSegment) bool {
	if seg.POIsFetchedAt.Valid {
		return false
	}
	return seg.LengthKm >= MinLengthForSearchKm
}
