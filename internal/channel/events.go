package channel

import "encoding/json"

// Event names are shared by publisher and subscriber sides. The source system
// grew two socket providers with overlapping, inconsistent names; this is the
// consolidated set.
type Event string

const (
	EventConnect        Event = "connect"
	EventDisconnect     Event = "disconnect"
	EventConnectError   Event = "connect_error"
	EventRiderLocation  Event = "riderLocationUpdate"
	EventLocationUpdate Event = "locationUpdate"
	EventJoin           Event = "join"
	EventLeave          Event = "leave"
)

// StartTracking / StopTracking are per-shipment lifecycle events.
func StartTracking(consignmentID string) Event { return Event("startTracking:" + consignmentID) }
func StopTracking(consignmentID string) Event  { return Event("stopTracking:" + consignmentID) }

// JoinPayload keys the tracking room. Both the carrying and the viewing side
// must send exactly this shape or they end up in different rooms.
type JoinPayload struct {
	PhoneNumber string `json:"phoneNumber"`
	TravelID    string `json:"travelId"`
}

// frame is the wire envelope for every channel message.
type frame struct {
	Event   Event           `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
