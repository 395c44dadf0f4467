package messages

import "time"

type TelemetryKind string

const (
	TelemetryLocation  TelemetryKind = "location"
	TelemetryLifecycle TelemetryKind = "lifecycle"
)

// ConsignmentTelemetry is the envelope published to the telemetry topic for
// every location sample and lifecycle transition the agent observes. The
// replay consumer applies these back into the journal after a relaunch.
type ConsignmentTelemetry struct {
	Kind          TelemetryKind `json:"kind"`
	ConsignmentID string        `json:"consignment_id"`
	TravelID      string        `json:"travel_id,omitempty"`
	RecordedAt    time.Time     `json:"recorded_at"`

	// location samples
	Latitude  float64 `json:"lat,omitempty"`
	Longitude float64 `json:"lng,omitempty"`

	// lifecycle transitions
	Status string `json:"status,omitempty"`
	Step   string `json:"step,omitempty"`
}
