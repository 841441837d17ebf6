package model

import "math"

const earthRadiusM = 6371000.

// Haversine returns the great-circle distance between two coordinates in
// meters.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	toRadian := math.Pi / 180
	deltaF := (lat2 - lat1) * toRadian
	deltaL := (lon2 - lon1) * toRadian
	a := math.Sin(deltaF/2)*math.Sin(deltaF/2) +
		math.Cos(lat1*toRadian)*math.Cos(lat2*toRadian)*math.Sin(deltaL/2)*math.Sin(deltaL/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}
