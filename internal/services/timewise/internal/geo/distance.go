// Package geo implements great-circle distance on a spherical Earth.
package geo

import "math"

// EarthRadius is the mean Earth radius in meters.
const EarthRadius = 6_371_000.0

// Point is a coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Distance returns the haversine distance in meters between two coordinates.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dPhi := radians(lat2 - lat1)
	dLambda := radians(lon2 - lon1)

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda

	// rounding can push a a hair outside [0, 1] for antipodal points
	a = math.Min(1, math.Max(0, a))

	return EarthRadius * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Between returns the distance in meters between a and b.
func Between(a, b Point) float64 {
	return Distance(a.Lat, a.Lng, b.Lat, b.Lng)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
