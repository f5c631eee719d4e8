package geo

import (
	"context"
	"math"

	"fieldops/internal/model"
)

// UnknownDistance is returned when either coordinate is missing. It is a
// large finite constant rather than +Inf so downstream sorting and sums stay
// well-defined; callers treat it as "unknown, least preferred".
const UnknownDistance = 1e12

// MetersPerMile converts the proximity cap configuration into meters.
const MetersPerMile = 1609.344

// Provider computes pairwise distances in meters. Implementations must be
// symmetric with a zero diagonal and must never fail the caller: degraded
// inputs or upstream errors yield sentinel or fallback values instead.
type Provider interface {
	Distance(ctx context.Context, a, b *model.Coordinate) float64
	Matrix(ctx context.Context, points []*model.Coordinate) [][]float64
}

// Haversine is the dependency-free great-circle provider, used directly in
// tests and as the fallback behind every other provider.
type Haversine struct{}

func (Haversine) Distance(_ context.Context, a, b *model.Coordinate) float64 {
	if a == nil || b == nil {
		return UnknownDistance
	}
	return Meters(a.Lat, a.Lng, b.Lat, b.Lng)
}

func (h Haversine) Matrix(ctx context.Context, points []*model.Coordinate) [][]float64 {
	return symmetricMatrix(ctx, h, points)
}

// Meters returns the great-circle distance between two lat/lng points.
func Meters(lat1, lng1, lat2, lng2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

func symmetricMatrix(ctx context.Context, p Provider, points []*model.Coordinate) [][]float64 {
	n := len(points)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := p.Distance(ctx, points[i], points[j])
			m[i][j] = d
			m[j][i] = d
		}
	}
	return m
}
