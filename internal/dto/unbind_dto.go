package dto

import (
	"time"

	"github.com/mentorium/supervision-api/internal/models"
)

// UnbindCreateRequest opens a new unbind negotiation round.
type UnbindCreateRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// UnbindRespondRequest resolves a pending unbind request.
type UnbindRespondRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
	Feedback string `json:"feedback" validate:"omitempty,max=1000"`
}

// UnbindResponse is the serialized representation of an unbind request.
type UnbindResponse struct {
	ID             uint       `json:"id"`
	RelationshipID uint       `json:"relationship_id"`
	InitiatorRole  string     `json:"initiator_role"`
	Reason         string     `json:"reason"`
	Status         string     `json:"status"`
	Feedback       string     `json:"feedback,omitempty"`
	RespondedAt    *time.Time `json:"responded_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// UnbindResolutionResponse returns both sides of a resolution so the caller
// sees the request outcome and the relationship it left behind.
type UnbindResolutionResponse struct {
	Request      UnbindResponse       `json:"request"`
	Relationship RelationshipResponse `json:"relationship"`
}

// NewUnbindResponse converts a model into a DTO.
func NewUnbindResponse(request models.UnbindRequest) UnbindResponse {
	return UnbindResponse{
		ID:             request.ID,
		RelationshipID: request.RelationshipID,
		InitiatorRole:  string(request.InitiatorRole),
		Reason:         request.Reason,
		Status:         string(request.Status),
		Feedback:       request.Feedback,
		RespondedAt:    request.RespondedAt,
		CreatedAt:      request.CreatedAt,
	}
}

// NewUnbindResponseSlice converts a slice of models into DTOs.
func NewUnbindResponseSlice(requests []models.UnbindRequest) []UnbindResponse {
	out := make([]UnbindResponse, 0, len(requests))
	for _, request := range requests {
		out = append(out, NewUnbindResponse(request))
	}
	return out
}
