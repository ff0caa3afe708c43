// Package geo provides great-circle distance math for proximity matching.
package geo

import "math"

const earthRadiusMeters = 6371000.0

// DistanceMeters returns the haversine great-circle distance between two
// points in meters.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// BoundingBox returns the min/max latitude and longitude of a box that
// contains every point within radiusMeters of the center. Used as a cheap SQL
// prefilter before the exact distance check.
func BoundingBox(lat, lng, radiusMeters float64) (minLat, maxLat, minLng, maxLng float64) {
	latDelta := radiusMeters / earthRadiusMeters * 180 / math.Pi
	lngDelta := latDelta
	if cosLat := math.Cos(lat * math.Pi / 180); cosLat > 1e-9 {
		lngDelta = latDelta / cosLat
	}
	return lat - latDelta, lat + latDelta, lng - lngDelta, lng + lngDelta
}
