// Package geo contains pure geographic math with no dependency on providers
// or persistence: distance, interpolation and nearest-point search over a
// route geometry. Every function here is stateless and total — an empty
// geometry returns a deterministic zero value rather than an error, so
// callers composing these in a pipeline never need to branch on it.
package geo

import "math"

// Point is a (latitude, longitude) pair in degrees.
type Point struct {
	Lat float64
	Lon float64
}

const earthRadiusMeters = 6371000.0

// DistanceMeters returns the great-circle distance between a and b using the
// Haversine formula.
func DistanceMeters(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lon1 := a.Lon * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	lon2 := b.Lon * math.Pi / 180

	dlat := lat2 - lat1
	dlon := lon2 - lon1

	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// DistanceAlongRoute returns the cumulative distance, in kilometers, from the
// start of geometry up to the segment closest to target. The closest segment
// is found by comparing target against each segment's midpoint, matching the
// original service's simplified (non-projected) approach.
func DistanceAlongRoute(geometry []Point, target Point) float64 {
	if len(geometry) == 0 {
		return 0.0
	}

	closestIdx := closestSegmentByMidpoint(geometry, target)

	cumulative := 0.0
	for i := 0; i < closestIdx; i++ {
		cumulative += DistanceMeters(geometry[i], geometry[i+1])
	}
	return cumulative / 1000.0
}

// DistanceFromPointToEnd returns the remaining distance, in kilometers, from
// start to the end of geometry: the straight-line hop from start to the end
// of the segment whose midpoint is closest to start, plus the length of the
// geometry after that point. It is an approximation, not a projection onto
// the route.
func DistanceFromPointToEnd(geometry []Point, start Point) float64 {
	if len(geometry) < 2 {
		return 0.0
	}

	closestIdx := 0
	minDistance := math.Inf(1)
	projection := start

	for i := 0; i < len(geometry)-1; i++ {
		segStart, segEnd := geometry[i], geometry[i+1]
		midpoint := Point{
			Lat: (segStart.Lat + segEnd.Lat) / 2,
			Lon: (segStart.Lon + segEnd.Lon) / 2,
		}
		dist := DistanceMeters(start, midpoint)
		if dist < minDistance {
			minDistance = dist
			closestIdx = i
			projection = segEnd
		}
	}

	cumulative := 0.0
	for i := closestIdx + 1; i < len(geometry)-1; i++ {
		cumulative += DistanceMeters(geometry[i], geometry[i+1])
	}
	cumulative += DistanceMeters(start, projection)

	return cumulative / 1000.0
}

// InterpolateAtDistance returns the coordinate at targetDistanceKm along
// geometry, assuming geometry points are evenly distributed over
// totalDistanceKm (a fractional-index approximation, not a true arc-length
// walk).
func InterpolateAtDistance(geometry []Point, targetDistanceKm, totalDistanceKm float64) Point {
	if len(geometry) == 0 {
		return Point{}
	}
	if targetDistanceKm <= 0 {
		return geometry[0]
	}
	if targetDistanceKm >= totalDistanceKm {
		return geometry[len(geometry)-1]
	}

	ratio := targetDistanceKm / totalDistanceKm
	totalPoints := len(geometry)
	targetIndex := ratio * float64(totalPoints-1)

	indexBefore := int(targetIndex)
	indexAfter := indexBefore + 1
	if indexAfter > totalPoints-1 {
		indexAfter = totalPoints - 1
	}

	if indexBefore == indexAfter {
		return geometry[indexBefore]
	}

	before := geometry[indexBefore]
	after := geometry[indexAfter]
	localRatio := targetIndex - float64(indexBefore)

	return Point{
		Lat: before.Lat + (after.Lat-before.Lat)*localRatio,
		Lon: before.Lon + (after.Lon-before.Lon)*localRatio,
	}
}

// FindClosestPointIndex returns the index of the geometry point nearest to
// target, using plain Euclidean distance in degree-space (not Haversine) —
// sufficient for picking among already-dense route points and matching the
// original's cheaper comparison here.
func FindClosestPointIndex(geometry []Point, target Point) int {
	if len(geometry) == 0 {
		return 0
	}

	closestIdx := 0
	minDistance := math.Inf(1)

	for i, pt := range geometry {
		dlat := pt.Lat - target.Lat
		dlon := pt.Lon - target.Lon
		dist := math.Sqrt(dlat*dlat + dlon*dlon)
		if dist < minDistance {
			minDistance = dist
			closestIdx = i
		}
	}
	return closestIdx
}

// FindClosestSegmentIndex returns the index i such that the segment
// (geometry[i], geometry[i+1]) has the midpoint closest to target.
func FindClosestSegmentIndex(geometry []Point, target Point) int {
	if len(geometry) < 2 {
		return 0
	}
	return closestSegmentByMidpoint(geometry, target)
}

func closestSegmentByMidpoint(geometry []Point, target Point) int {
	minDistance := math.Inf(1)
	segmentIdx := 0

	for i := 0; i < len(geometry)-1; i++ {
		segStart, segEnd := geometry[i], geometry[i+1]
		midpoint := Point{
			Lat: (segStart.Lat + segEnd.Lat) / 2,
			Lon: (segStart.Lon + segEnd.Lon) / 2,
		}
		dist := DistanceMeters(target, midpoint)
		if dist < minDistance {
			minDistance = dist
			segmentIdx = i
		}
	}
	return segmentIdx
}
