package models

import "time"

// Нормализованные статусы жизненного цикла посылки (display buckets).
const (
	StatusUpcoming     = "UPCOMING"
	StatusAccepted     = "ACCEPTED"
	StatusYetToCollect = "YET_TO_COLLECT"
	StatusCollected    = "COLLECTED" // "on the way"
	StatusDelivered    = "DELIVERED"
)

// Server-side step names as they appear in the status history payload.
const (
	StepCollected = "Consignment Collected"
	StepDelivered = "Consignment Delivered"
)

type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// StatusStep is one entry of the server-maintained status history.
// The server spells the timestamp field "updatedat".
type StatusStep struct {
	Step      string     `json:"step"`
	Completed bool       `json:"completed"`
	UpdatedAt *time.Time `json:"updatedat,omitempty"`
}

type Consignment struct {
	ConsignmentID string
	TravelID      string
	Status        string
	SenderOTP     string
	ReceiverOTP   string
	History       []StatusStep
	DriverLocation *GeoPoint
	LastLocationAt *time.Time
	Rated         bool
	UpdatedAt     time.Time
}

// LocationSample is a single GPS fix for a shipment, from either the
// realtime channel or the track-rider poll. The wire spells latitude "ltd".
type LocationSample struct {
	TravelID      string    `json:"travelId"`
	ConsignmentID string    `json:"consignmentId,omitempty"`
	Latitude      float64   `json:"ltd"`
	Longitude     float64   `json:"lng"`
	Timestamp     time.Time `json:"timestamp,omitempty"`
}

func (s LocationSample) Point() GeoPoint {
	return GeoPoint{Latitude: s.Latitude, Longitude: s.Longitude}
}

type Rating struct {
	ConsignmentID string `json:"consignmentId"`
	Rate          int    `json:"rate"`
	Message       string `json:"message,omitempty"`
}

// Session is the per-device identity read at channel-initialization time.
type Session struct {
	APIBaseURL  string
	PhoneNumber string
}
