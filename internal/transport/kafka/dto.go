package kafka

import (
	"strings"
	"time"

	"truck-dispatch/internal/domain"
)

// EventDTO is the wire shape of a lifecycle event on the broadcast-events topic.
type EventDTO struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	BroadcastID string            `json:"broadcast_id"`
	CustomerID  string            `json:"customer_id,omitempty"`
	Status      string            `json:"status,omitempty"`
	Message     string            `json:"message,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
	Rooms       []string          `json:"rooms,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// ToDomain converts EventDTO to domain.Event
func ToDomain(dto EventDTO) domain.Event {
	return domain.Event{
		ID:          strings.TrimSpace(dto.ID),
		Type:        domain.EventType(strings.TrimSpace(dto.Type)),
		BroadcastID: strings.TrimSpace(dto.BroadcastID),
		CustomerID:  strings.TrimSpace(dto.CustomerID),
		Status:      domain.BroadcastStatus(strings.TrimSpace(dto.Status)),
		Message:     dto.Message,
		Data:        dto.Data,
		Rooms:       dto.Rooms,
		OccurredAt:  dto.OccurredAt,
	}
}

// FromDomain converts domain.Event to EventDTO
func FromDomain(e domain.Event) EventDTO {
	return EventDTO{
		ID:          e.ID,
		Type:        string(e.Type),
		BroadcastID: e.BroadcastID,
		CustomerID:  e.CustomerID,
		Status:      string(e.Status),
		Message:     e.Message,
		Data:        e.Data,
		Rooms:       e.Rooms,
		OccurredAt:  e.OccurredAt,
	}
}
