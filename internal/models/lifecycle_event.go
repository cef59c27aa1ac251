package models

import (
	"time"

	"gorm.io/datatypes"
)

// LifecycleEventType names the typed events the engine emits after a
// transition commits.
type LifecycleEventType string

const (
	EventOfferCreated     LifecycleEventType = "offer_created"
	EventOfferAccepted    LifecycleEventType = "offer_accepted"
	EventOfferCancelled   LifecycleEventType = "offer_cancelled"
	EventUnbindPending    LifecycleEventType = "unbind_pending"
	EventUnbindApproved   LifecycleEventType = "unbind_approved"
	EventUnbindRejected   LifecycleEventType = "unbind_rejected"
	EventForceTerminated  LifecycleEventType = "relationship_force_terminated"
	EventDocumentUploaded LifecycleEventType = "document_uploaded"
	EventDocumentOverdue  LifecycleEventType = "document_overdue"
)

// LifecycleEvent is the audit record handed to the activity/notification
// collaborator. Rows are append-only.
type LifecycleEvent struct {
	ID             uint               `gorm:"primaryKey" json:"id"`
	Type           LifecycleEventType `gorm:"size:64;not null;index" json:"type"`
	RelationshipID uint               `gorm:"not null;index" json:"relationship_id"`
	ActorID        uint               `json:"actor_id"`
	ActorRole      ActorRole          `gorm:"size:16" json:"actor_role"`
	Summary        string             `gorm:"size:512;not null" json:"summary"`
	Metadata       datatypes.JSONMap  `gorm:"type:json" json:"metadata"`
	CreatedAt      time.Time          `json:"created_at"`
}
