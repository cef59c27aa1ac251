package models

import "time"

// UnbindRequestState enumerates outcomes of an unbind negotiation round.
type UnbindRequestState string

const (
	UnbindRequestStatePending         UnbindRequestState = "pending"
	UnbindRequestStateApproved        UnbindRequestState = "approved"
	UnbindRequestStateRejected        UnbindRequestState = "rejected"
	UnbindRequestStateForceTerminated UnbindRequestState = "force_terminated"
)

// Terminal reports whether the state admits no further transitions.
func (s UnbindRequestState) Terminal() bool {
	return s != UnbindRequestStatePending
}

// UnbindRequest is one round of the bilateral unbind negotiation. A
// relationship owns at most one pending request at a time; resolved requests
// are retained for audit and never mutated again.
type UnbindRequest struct {
	ID             uint               `gorm:"primaryKey" json:"id"`
	RelationshipID uint               `gorm:"not null;index" json:"relationship_id"`
	InitiatorRole  ActorRole          `gorm:"size:16;not null" json:"initiator_role"`
	Reason         string             `gorm:"size:1000;not null" json:"reason"`
	Status         UnbindRequestState `gorm:"size:32;not null;default:'pending';index" json:"status"`
	Feedback       string             `gorm:"size:1000" json:"feedback,omitempty"`
	RespondedAt    *time.Time         `json:"responded_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}
