// Package junction implements JunctionCalc (C9): for each POI, finding
// where the route would be left to reach it, which side of the road it is
// on, and how far the detour is.
package junction

import (
	"context"
	"math"
	"sort"

	"github.com/remintz/mapalinear/internal/geo"
	"github.com/remintz/mapalinear/internal/provider"
	"github.com/remintz/mapalinear/internal/store"
	"github.com/remintz/mapalinear/internal/tracing"
)

// DefaultLookbackKm is how far back from a distant POI's approximate
// position the engine looks for a search point to route an access road from.
const DefaultLookbackKm = 10.0

// NearbyThresholdMeters is the straight-line distance under which a POI is
// treated as adjacent to the route, skipping the routed-access-road path
// entirely in favor of the closest route point.
const NearbyThresholdMeters = 500.0

// routeIntersectionToleranceMeters is how close an access route point must
// come to a main route point to count as the junction.
const routeIntersectionToleranceMeters = 50.0

// GlobalSearchPoint is a segment search point annotated with its distance
// from the start of the whole map, not just its own segment.
type GlobalSearchPoint struct {
	Lat                     float64
	Lon                     float64
	SegmentID               string
	SegmentSPIndex          int
	DistanceFromMapOriginKm float64
}

// Result is the computed junction for a single POI.
type Result struct {
	JunctionLat         float64
	JunctionLon         float64
	JunctionDistanceKm  float64
	Side                store.Side
	AccessDistanceKm    float64
	RequiresDetour      bool
	AccessRouteGeometry [][2]float64
}

// Engine calculates junctions, optionally routing access roads via
// geoProvider for POIs too far from the route to treat as adjacent.
type Engine struct {
	geoProvider provider.GeoProvider
}

// New builds an Engine. geoProvider may be nil — distant POIs simply never
// resolve a junction in that case (mirrors the source's optional provider).
func New(geoProvider provider.GeoProvider) *Engine {
	return &Engine{geoProvider: geoProvider}
}

// AggregateSearchPoints flattens every segment's search points into a single
// list carrying each one's distance from the map's origin, sorted by that
// distance.
func AggregateSearchPoints(mapSegments []store.MapSegment, segments map[string]store.RouteSegment) []GlobalSearchPoint {
	var result []GlobalSearchPoint

	for _, ms := range mapSegments {
		segment, ok := segments[ms.SegmentID]
		if !ok {
			continue
		}

		segmentStartKm := ms.DistanceFromOriginKm
		for _, sp := range segment.SearchPoints.Value {
			result = append(result, GlobalSearchPoint{
				Lat:                     sp.Lat,
				Lon:                     sp.Lon,
				SegmentID:               segment.ID,
				SegmentSPIndex:          sp.Index,
				DistanceFromMapOriginKm: segmentStartKm + sp.DistanceFromSegmentStartKm,
			})
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].DistanceFromMapOriginKm < result[j].DistanceFromMapOriginKm
	})
	return result
}

// FindLookbackPoint returns the search point at least lookbackKm before
// poiDistanceKm, or the very first search point if the lookback would fall
// before the start of the route.
func FindLookbackPoint(poiDistanceKm float64, globalSPs []GlobalSearchPoint, lookbackKm float64) (GlobalSearchPoint, bool) {
	if len(globalSPs) == 0 {
		return GlobalSearchPoint{}, false
	}

	target := poiDistanceKm - lookbackKm
	if target <= 0 {
		return globalSPs[0], true
	}

	best := globalSPs[0]
	for _, sp := range globalSPs {
		if sp.DistanceFromMapOriginKm <= target {
			best = sp
		} else {
			break
		}
	}
	return best, true
}

// CalculateJunction resolves the junction point, side and access distance
// for a POI discovered via segmentPOI. POIs within NearbyThresholdMeters of
// their discovering search point resolve directly against the closest route
// point; farther POIs route an access road from a lookback point and find
// where it rejoins the main route. The second return is false when no
// junction could be determined (e.g. no geo provider configured, or the
// access route never rejoins).
func (e *Engine) CalculateJunction(
	ctx context.Context,
	poiLat, poiLon float64,
	segmentPOI store.SegmentPOI,
	mapSegment store.MapSegment,
	routeGeometry [][2]float64,
	routeTotalKm float64,
	globalSPs []GlobalSearchPoint,
) (Result, bool) {
	ctx, span := tracing.StartSpan(ctx, "junction.calculate_junction")
	defer span.End()

	segmentStartKm := mapSegment.DistanceFromOriginKm
	spIndex := segmentPOI.SearchPointIndex
	straightLineDistanceM := segmentPOI.StraightLineDistanceM

	var discoverySP *GlobalSearchPoint
	for i := range globalSPs {
		if globalSPs[i].SegmentID == segmentPOI.SegmentID && globalSPs[i].SegmentSPIndex == spIndex {
			discoverySP = &globalSPs[i]
			break
		}
	}

	poiApproxDistanceKm := segmentStartKm + float64(spIndex)*1.0
	if discoverySP != nil {
		poiApproxDistanceKm = discoverySP.DistanceFromMapOriginKm
	}

	if straightLineDistanceM <= NearbyThresholdMeters {
		junctionLat, junctionLon := findClosestRoutePoint(poiLat, poiLon, routeGeometry)
		junctionKm := distanceAlongRoute(junctionLat, junctionLon, routeGeometry)
		side := determineSide(poiLat, poiLon, junctionLat, junctionLon, routeGeometry)

		return Result{
			JunctionLat:        junctionLat,
			JunctionLon:        junctionLon,
			JunctionDistanceKm: junctionKm,
			Side:               side,
			AccessDistanceKm:   straightLineDistanceM / 1000.0,
			RequiresDetour:     false,
		}, true
	}

	lookback, ok := FindLookbackPoint(poiApproxDistanceKm, globalSPs, DefaultLookbackKm)
	if !ok {
		return Result{}, false
	}

	return e.calculateJunctionWithRouting(ctx, poiLat, poiLon, lookback, routeGeometry, routeTotalKm)
}

func (e *Engine) calculateJunctionWithRouting(
	ctx context.Context,
	poiLat, poiLon float64,
	lookback GlobalSearchPoint,
	routeGeometry [][2]float64,
	routeTotalKm float64,
) (Result, bool) {
	if e.geoProvider == nil {
		return Result{}, false
	}

	origin := provider.GeoLocation{Latitude: lookback.Lat, Longitude: lookback.Lon}
	destination := provider.GeoLocation{Latitude: poiLat, Longitude: poiLon}

	accessRoute, err := e.geoProvider.CalculateRoute(ctx, origin, destination, nil, nil)
	if err != nil || accessRoute == nil || len(accessRoute.Geometry) == 0 {
		return Result{}, false
	}

	junctionLat, junctionLon, junctionKm, found := findRouteIntersection(accessRoute.Geometry, routeGeometry)
	if !found {
		return Result{}, false
	}

	side := determineSide(poiLat, poiLon, junctionLat, junctionLon, routeGeometry)

	accessDistanceKm := geo.DistanceMeters(
		geo.Point{Lat: junctionLat, Lon: junctionLon},
		geo.Point{Lat: poiLat, Lon: poiLon},
	) / 1000.0

	return Result{
		JunctionLat:         junctionLat,
		JunctionLon:         junctionLon,
		JunctionDistanceKm:  junctionKm,
		Side:                side,
		AccessDistanceKm:    accessDistanceKm,
		RequiresDetour:      accessDistanceKm*1000 > NearbyThresholdMeters,
		AccessRouteGeometry: accessRoute.Geometry,
	}, true
}

func findClosestRoutePoint(lat, lon float64, routeGeometry [][2]float64) (float64, float64) {
	if len(routeGeometry) == 0 {
		return lat, lon
	}

	best := routeGeometry[0]
	bestDistance := math.Inf(1)
	for _, point := range routeGeometry {
		d := geo.DistanceMeters(geo.Point{Lat: lat, Lon: lon}, geo.Point{Lat: point[0], Lon: point[1]})
		if d < bestDistance {
			bestDistance = d
			best = point
		}
	}
	return best[0], best[1]
}

// distanceAlongRoute walks routeGeometry once, tracking both the cumulative
// distance so far and — at every point — whether that point is the closest
// yet seen to (lat, lon). The cumulative distance recorded at the closest
// point is the distance-along-route answer. This tracks-while-walking
// approach (rather than picking a closest segment first) is what the
// junction service uses; geo.DistanceAlongRoute, which picks the segment
// with the nearest midpoint, is a different approximation and is not used
// here.
func distanceAlongRoute(lat, lon float64, routeGeometry [][2]float64) float64 {
	if len(routeGeometry) == 0 {
		return 0.0
	}

	cumulative := 0.0
	bestMatchDistance := 0.0
	bestMatchCumulative := 0.0

	for i, point := range routeGeometry {
		if i > 0 {
			prev := routeGeometry[i-1]
			cumulative += geo.DistanceMeters(geo.Point{Lat: prev[0], Lon: prev[1]}, geo.Point{Lat: point[0], Lon: point[1]}) / 1000.0
		}

		pointDistance := geo.DistanceMeters(geo.Point{Lat: lat, Lon: lon}, geo.Point{Lat: point[0], Lon: point[1]})
		if i == 0 || pointDistance < bestMatchDistance {
			bestMatchDistance = pointDistance
			bestMatchCumulative = cumulative
		}
	}

	return bestMatchCumulative
}

// determineSide classifies poi as left, right or center of the road by the
// cross product of the route's local direction vector (at the geometry
// point closest to junction) against the vector from the junction to the
// POI. Latitude/longitude are treated as a flat (x, y) plane, which is
// accurate enough at route scale.
func determineSide(poiLat, poiLon, junctionLat, junctionLon float64, routeGeometry [][2]float64) store.Side {
	if len(routeGeometry) < 2 {
		return store.SideCenter
	}

	junctionIdx := 0
	bestDistance := math.Inf(1)
	for i, point := range routeGeometry {
		d := geo.DistanceMeters(geo.Point{Lat: junctionLat, Lon: junctionLon}, geo.Point{Lat: point[0], Lon: point[1]})
		if d < bestDistance {
			bestDistance = d
			junctionIdx = i
		}
	}

	prevIdx := junctionIdx - 1
	if prevIdx < 0 {
		prevIdx = 0
	}
	nextIdx := junctionIdx + 1
	if nextIdx > len(routeGeometry)-1 {
		nextIdx = len(routeGeometry) - 1
	}
	if prevIdx == nextIdx {
		return store.SideCenter
	}

	dx := routeGeometry[nextIdx][1] - routeGeometry[prevIdx][1] // lon
	dy := routeGeometry[nextIdx][0] - routeGeometry[prevIdx][0] // lat

	px := poiLon - junctionLon
	py := poiLat - junctionLat

	cross := dx*py - dy*px

	switch {
	case math.Abs(cross) < 1e-10:
		return store.SideCenter
	case cross > 0:
		return store.SideLeft
	default:
		return store.SideRight
	}
}

// findRouteIntersection locates the point on mainGeometry closest to any
// point on accessGeometry, within routeIntersectionToleranceMeters, and
// returns it along with its cumulative distance from the start of
// mainGeometry.
func findRouteIntersection(accessGeometry, mainGeometry [][2]float64) (lat, lon, distanceKm float64, found bool) {
	if len(accessGeometry) == 0 || len(mainGeometry) == 0 {
		return 0, 0, 0, false
	}

	bestDistance := math.Inf(1)
	cumulative := 0.0

	for i, mainPoint := range mainGeometry {
		if i > 0 {
			prev := mainGeometry[i-1]
			cumulative += geo.DistanceMeters(geo.Point{Lat: prev[0], Lon: prev[1]}, geo.Point{Lat: mainPoint[0], Lon: mainPoint[1]}) / 1000.0
		}

		for _, accessPoint := range accessGeometry {
			d := geo.DistanceMeters(geo.Point{Lat: mainPoint[0], Lon: mainPoint[1]}, geo.Point{Lat: accessPoint[0], Lon: accessPoint[1]})
			if d < routeIntersectionToleranceMeters && d < bestDistance {
				bestDistance = d
				lat, lon = mainPoint[0], mainPoint[1]
				distanceKm = cumulative
				found = true
			}
		}
	}

	return lat, lon, distanceKm, found
}
