// Package geo computes great-circle distances between coordinates.
package geo

import (
	"math"

	"github.com/kilianp07/geodispatch/core/model"
)

const (
	EarthRadiusMeters = 6371000.0
	EarthRadiusMiles  = 3959.0
)

// haversine returns the central angle between a and b in radians.
func haversine(a, b model.Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// DistanceMeters returns the unrounded haversine distance in meters. NaN
// inputs yield NaN.
func DistanceMeters(a, b model.Coordinate) float64 {
	return EarthRadiusMeters * haversine(a, b)
}

// DistanceMiles returns the haversine distance in miles rounded to two decimals.
func DistanceMiles(a, b model.Coordinate) float64 {
	return math.Round(EarthRadiusMiles*haversine(a, b)*100) / 100
}

// Within reports whether p lies inside the circle of radiusM around center.
func Within(center model.Coordinate, radiusM float64, p model.Coordinate) bool {
	return DistanceMeters(center, p) <= radiusM
}
