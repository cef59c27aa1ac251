package dto

import (
	"time"

	"github.com/mentorium/supervision-api/internal/models"
)

// OfferCreateRequest is the payload a supervisor sends to offer supervision.
type OfferCreateRequest struct {
	StudentID uint   `json:"student_id" validate:"required,gt=0"`
	Role      string `json:"role" validate:"required,oneof=main co-supervisor"`
	Cohort    string `json:"cohort" validate:"omitempty,max=64"`
}

// AcceptOfferRequest carries the four acceptance acknowledgements. All must
// be true at the moment of acceptance.
type AcceptOfferRequest struct {
	IntentionConfirmed         bool `json:"intention_confirmed"`
	UploadObligationUnderstood bool `json:"upload_obligation_understood"`
	StorageConsentGiven        bool `json:"storage_consent_given"`
	RulesRead                  bool `json:"rules_read"`
}

// RelationshipListRequest filters the relationship listing.
type RelationshipListRequest struct {
	State    string `query:"state" validate:"omitempty,oneof=offer_pending active unbind_pending terminated"`
	Page     int    `query:"page" validate:"omitempty,min=1"`
	PageSize int    `query:"page_size" validate:"omitempty,min=1,max=100"`
}

// RelationshipResponse is the serialized representation of a relationship.
type RelationshipResponse struct {
	ID                 uint       `json:"id"`
	SupervisorID       uint       `json:"supervisor_id"`
	StudentID          uint       `json:"student_id"`
	Role               string     `json:"role"`
	Cohort             string     `json:"cohort,omitempty"`
	State              string     `json:"state"`
	AcceptedAt         *time.Time `json:"accepted_at,omitempty"`
	DocumentDeadline   *time.Time `json:"document_deadline,omitempty"`
	DocumentStatus     string     `json:"document_status"`
	DocumentURL        string     `json:"document_url,omitempty"`
	DocumentUploadedAt *time.Time `json:"document_uploaded_at,omitempty"`
	RejectionCount     int        `json:"rejection_count"`
	CooldownUntil      *time.Time `json:"cooldown_until,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// RelationshipStatusResponse composes the relationship with its open unbind
// request, if any, for the status query.
type RelationshipStatusResponse struct {
	Relationship RelationshipResponse `json:"relationship"`
	OpenUnbind   *UnbindResponse      `json:"open_unbind_request,omitempty"`
	CacheHit     bool                 `json:"cache_hit,omitempty"`
}

// RelationshipListResponse wraps a page of relationships.
type RelationshipListResponse struct {
	Items      []RelationshipResponse `json:"items"`
	Pagination PaginationMeta         `json:"pagination"`
}

// NewRelationshipResponse converts a model into a DTO.
func NewRelationshipResponse(relationship models.Relationship) RelationshipResponse {
	return RelationshipResponse{
		ID:                 relationship.ID,
		SupervisorID:       relationship.SupervisorID,
		StudentID:          relationship.StudentID,
		Role:               string(relationship.Role),
		Cohort:             relationship.Cohort,
		State:              string(relationship.State),
		AcceptedAt:         relationship.AcceptedAt,
		DocumentDeadline:   relationship.DocumentDeadline,
		DocumentStatus:     string(relationship.DocumentStatus),
		DocumentURL:        relationship.DocumentURL,
		DocumentUploadedAt: relationship.DocumentUploadedAt,
		RejectionCount:     relationship.RejectionCount,
		CooldownUntil:      relationship.CooldownUntil,
		CreatedAt:          relationship.CreatedAt,
	}
}

// NewRelationshipResponseSlice converts a slice of models into DTOs.
func NewRelationshipResponseSlice(relationships []models.Relationship) []RelationshipResponse {
	out := make([]RelationshipResponse, 0, len(relationships))
	for _, relationship := range relationships {
		out = append(out, NewRelationshipResponse(relationship))
	}
	return out
}
