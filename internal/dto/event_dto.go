package dto

import (
	"time"

	"github.com/mentorium/supervision-api/internal/models"
)

// EventListRequest filters the lifecycle event feed.
type EventListRequest struct {
	RelationshipID uint   `query:"relationship_id" validate:"omitempty,gt=0"`
	Type           string `query:"type" validate:"omitempty,max=64"`
	Page           int    `query:"page" validate:"omitempty,min=1"`
	PageSize       int    `query:"page_size" validate:"omitempty,min=1,max=100"`
}

// LifecycleEventResponse is the serialized representation of a lifecycle event.
type LifecycleEventResponse struct {
	ID             uint                   `json:"id"`
	Type           string                 `json:"type"`
	RelationshipID uint                   `json:"relationship_id"`
	ActorID        uint                   `json:"actor_id"`
	ActorRole      string                 `json:"actor_role,omitempty"`
	Summary        string                 `json:"summary"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// EventListResponse wraps a page of lifecycle events.
type EventListResponse struct {
	Items      []LifecycleEventResponse `json:"items"`
	Pagination PaginationMeta           `json:"pagination"`
}

// NewLifecycleEventResponse converts a model into a DTO.
func NewLifecycleEventResponse(event models.LifecycleEvent) LifecycleEventResponse {
	return LifecycleEventResponse{
		ID:             event.ID,
		Type:           string(event.Type),
		RelationshipID: event.RelationshipID,
		ActorID:        event.ActorID,
		ActorRole:      string(event.ActorRole),
		Summary:        event.Summary,
		Metadata:       event.Metadata,
		CreatedAt:      event.CreatedAt,
	}
}

// NewLifecycleEventResponseSlice converts a slice of models into DTOs.
func NewLifecycleEventResponseSlice(events []models.LifecycleEvent) []LifecycleEventResponse {
	out := make([]LifecycleEventResponse, 0, len(events))
	for _, event := range events {
		out = append(out, NewLifecycleEventResponse(event))
	}
	return out
}
