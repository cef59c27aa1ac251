package models

import "time"

// RelationshipState enumerates the lifecycle states of a supervision relationship.
type RelationshipState string

const (
	RelationshipStateOfferPending  RelationshipState = "offer_pending"
	RelationshipStateActive        RelationshipState = "active"
	RelationshipStateUnbindPending RelationshipState = "unbind_pending"
	RelationshipStateTerminated    RelationshipState = "terminated"
)

// SupervisionRole distinguishes the main supervisor from co-supervisors.
type SupervisionRole string

const (
	SupervisionRoleMain SupervisionRole = "main"
	SupervisionRoleCo   SupervisionRole = "co-supervisor"
)

// ActorRole identifies which side of the relationship a caller acts for.
type ActorRole string

const (
	ActorRoleSupervisor ActorRole = "supervisor"
	ActorRoleStudent    ActorRole = "student"
)

// DocumentStatus tracks whether the supervision letter has been filed in time.
type DocumentStatus string

const (
	DocumentStatusMissing  DocumentStatus = "missing"
	DocumentStatusUploaded DocumentStatus = "uploaded"
	DocumentStatusOverdue  DocumentStatus = "overdue"
)

// Relationship binds a supervisor to a student for one supervision role.
// At most one row per (supervisor, student, role) may be in a non-terminated
// state; transitions are guarded by the Version column (compare-and-swap).
type Relationship struct {
	ID                 uint               `gorm:"primaryKey" json:"id"`
	SupervisorID       uint               `gorm:"not null;index:idx_supervision_pair" json:"supervisor_id"`
	StudentID          uint               `gorm:"not null;index:idx_supervision_pair" json:"student_id"`
	Role               SupervisionRole    `gorm:"size:32;not null;index:idx_supervision_pair" json:"role"`
	Cohort             string             `gorm:"size:64" json:"cohort"`
	State              RelationshipState  `gorm:"size:32;not null;default:'offer_pending';index" json:"state"`
	Version            uint               `gorm:"not null;default:0" json:"-"`
	AcceptedAt         *time.Time         `json:"accepted_at,omitempty"`
	DocumentDeadline   *time.Time         `json:"document_deadline,omitempty"`
	DocumentStatus     DocumentStatus     `gorm:"size:16;not null;default:'missing'" json:"document_status"`
	DocumentURL        string             `gorm:"size:512" json:"document_url,omitempty"`
	DocumentUploadedAt *time.Time         `json:"document_uploaded_at,omitempty"`
	RejectionCount     int                `gorm:"not null;default:0" json:"rejection_count"`
	CooldownUntil      *time.Time         `json:"cooldown_until,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// IsOpen reports whether the relationship still occupies its pair slot.
func (r Relationship) IsOpen() bool {
	return r.State != RelationshipStateTerminated
}

// PartyRole returns the role the given user plays in the relationship, or ""
// when the user is not a party.
func (r Relationship) PartyRole(userID uint) ActorRole {
	switch userID {
	case r.SupervisorID:
		return ActorRoleSupervisor
	case r.StudentID:
		return ActorRoleStudent
	default:
		return ""
	}
}

// CounterpartyID returns the user id of the other side of the relationship.
func (r Relationship) CounterpartyID(role ActorRole) uint {
	if role == ActorRoleSupervisor {
		return r.StudentID
	}
	return r.SupervisorID
}
