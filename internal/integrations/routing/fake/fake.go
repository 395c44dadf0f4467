package fake

import (
	"context"
	"math"

	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/integrations/routing"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/models"
)

// FakeClient — заглушка роутинга: расстояние по большой окружности и скорость 30 км/ч.
// Детерминированно, без сети; годится для тестов и офлайн-режима агента.
type FakeClient struct{}

func New() *FakeClient { return &FakeClient{} }

const earthRadiusMeters = 6371000.0

func (f *FakeClient) Route(ctx context.Context, from, to models.GeoPoint) (routing.Route, error) {
	d := haversine(from, to)
	return routing.Route{
		DistanceMeters:  d,
		DurationSeconds: d / (30_000.0 / 3600.0),
	}, nil
}

func haversine(a, b models.GeoPoint) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
