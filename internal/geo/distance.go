// Package geo contains pure geographic computation helpers.
package geo

import (
	"math"

	"tripmerge/internal/types"
)

const (
	EarthRadiusKm = 6371.0

	// AverageSpeedKmph is the city driving speed used when no routing engine
	// result is available.
	AverageSpeedKmph = 30.0
)

// DistanceKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func DistanceKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c
}

// EstimateMinutes converts a straight-line distance into driving minutes at
// AverageSpeedKmph.
func EstimateMinutes(km float64) float64 {
	return km / AverageSpeedKmph * 60
}

// PathKm sums the leg distances of start -> points[0] -> ... -> points[n-1].
func PathKm(start types.Point, points []types.Point) float64 {
	total := 0.0
	prev := start
	for _, p := range points {
		total += DistanceKm(prev, p)
		prev = p
	}
	return total
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// SortByDistance performs an insertion sort (fine for small N) on any slice
// where each element exposes a distance via the accessor function. Equal
// distances keep their input order.
func SortByDistance[T any](items []T, dist func(T) float64) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && dist(items[j]) > dist(key) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}
