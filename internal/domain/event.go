package domain

import "time"

// EventType names a lifecycle notification.
type EventType string

// List of event types
const (
	EventBroadcastCreated   EventType = "broadcast.created"
	EventBroadcastNew       EventType = "broadcast.new"
	EventBroadcastStatus    EventType = "broadcast.status"
	EventBroadcastAccepted  EventType = "broadcast.accepted"
	EventAcceptConfirmed    EventType = "accept.confirmed"
	EventAcceptRejected     EventType = "accept.rejected"
	EventBroadcastFilled    EventType = "broadcast.filled"
	EventBroadcastCancelled EventType = "broadcast.cancelled"
	EventBroadcastExpired   EventType = "broadcast.expired"
	EventBroadcastClosed    EventType = "broadcast.closed"
	EventTripCancelled      EventType = "trip.cancelled"
)

// Event is a room-scoped lifecycle message.
type Event struct {
	ID          string            `json:"id"`
	Type        EventType         `json:"type"`
	BroadcastID string            `json:"broadcast_id"`
	CustomerID  string            `json:"customer_id,omitempty"`
	Status      BroadcastStatus   `json:"status,omitempty"`
	Message     string            `json:"message,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
	Rooms       []string          `json:"rooms,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// Room helpers.
func CustomerRoom(id string) string    { return "customer:" + id }
func TransporterRoom(id string) string { return "transporter:" + id }
func DriverRoom(id string) string      { return "driver:" + id }
