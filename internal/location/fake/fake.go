package fake

import (
	"context"
	"time"

	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/location"
	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/models"
)

// FakeProvider отдаёт фиксированную точку — для агента без GPS-шлюза и тестов.
type FakeProvider struct {
	point models.GeoPoint
}

func New(lat, lng float64) *FakeProvider {
	return &FakeProvider{point: models.GeoPoint{Latitude: lat, Longitude: lng}}
}

func (f *FakeProvider) Current(ctx context.Context, acc location.Accuracy) (location.Fix, error) {
	return location.Fix{Point: f.point, At: time.Now().UTC()}, nil
}
