package routing

import (
	"context"

	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/models"
)

// Route is the remaining path from the rider's position to the destination.
type Route struct {
	DistanceMeters  float64
	DurationSeconds float64
	Geometry        string // encoded polyline, opaque to the core
}

type Client interface {
	Route(ctx context.Context, from, to models.GeoPoint) (Route, error)
}
