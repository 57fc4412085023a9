// Package geo holds the pure presentation helpers the UI layer consumes.
package geo

import (
	"fmt"
	"math"
)

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

// UnknownDistance is returned when the origin point is unavailable. Callers
// must special-case it; it never parses as a number.
const UnknownDistance = "location unknown"

// Point is a WGS84 coordinate pair in degrees. Range is not validated;
// callers own the domain check.
type Point struct {
	Latitude  float64
	Longitude float64
}

// Distance returns the great-circle distance between two points in
// kilometers.
func Distance(from, to Point) float64 {
	dLat := radians(to.Latitude - from.Latitude)
	dLon := radians(to.Longitude - from.Longitude)

	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(radians(from.Latitude))*
			math.Cos(radians(to.Latitude))*
			math.Pow(math.Sin(dLon/2), 2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// FormatDistance renders the distance from an optional origin to a target:
// whole meters under 1 km, one decimal under 10 km, whole kilometers above.
// A nil origin renders as UnknownDistance.
func FormatDistance(from *Point, to Point) string {
	if from == nil {
		return UnknownDistance
	}
	return formatKm(Distance(*from, to))
}

func formatKm(km float64) string {
	switch {
	case km < 1:
		return fmt.Sprintf("%d m", int(km*1000))
	case km < 10:
		return fmt.Sprintf("%.1f km", km)
	default:
		return fmt.Sprintf("%.0f km", km)
	}
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
