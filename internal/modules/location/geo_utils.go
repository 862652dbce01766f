// Package location holds the great-circle math used to order operator queues.
package location

import (
	"math"

	"plow/internal/types"
)

const earthRadiusKm = 6371.0

// DistanceKm is the haversine distance between a and b in kilometres. It is
// symmetric and zero for identical points.
func DistanceKm(a, b types.Point) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLat := lat2 - lat1
	dLng := radians(b.Lng - a.Lng)

	h := sq(math.Sin(dLat/2)) + math.Cos(lat1)*math.Cos(lat2)*sq(math.Sin(dLng/2))
	// rounding can push h just past 1 for antipodal points
	h = math.Min(1, math.Max(0, h))
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// OffsetKm returns the point distanceKm due north of origin. Test fixtures use
// it to place jobs at known distances.
func OffsetKm(origin types.Point, distanceKm float64) types.Point {
	return types.Point{Lat: origin.Lat + distanceKm/earthRadiusKm*180/math.Pi, Lng: origin.Lng}
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func sq(v float64) float64 {
	return v * v
}
