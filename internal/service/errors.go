package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mentorium/supervision-api/internal/models"
)

// Sentinel errors returned by the lifecycle engine. All of them are
// recoverable by the caller; only ErrStoreUnavailable signals an
// infrastructure fault.
var (
	// ErrRelationshipNotFound indicates the relationship does not exist.
	ErrRelationshipNotFound = errors.New("relationship not found")
	// ErrUnbindRequestNotFound indicates the unbind request does not exist.
	ErrUnbindRequestNotFound = errors.New("unbind request not found")
	// ErrInvalidTransition indicates the relationship is not in the state the operation requires.
	ErrInvalidTransition = errors.New("operation not allowed in current relationship state")
	// ErrStaleState indicates a concurrent writer won; the caller should re-read and retry.
	ErrStaleState = errors.New("relationship state changed concurrently")
	// ErrDuplicateRelationship indicates an open relationship already occupies the (supervisor, student, role) slot.
	ErrDuplicateRelationship = errors.New("an open relationship already exists for this supervisor, student and role")
	// ErrRelationshipNotActive indicates unbind negotiation requires an active relationship.
	ErrRelationshipNotActive = errors.New("relationship is not active")
	// ErrRequestAlreadyOpen indicates a pending unbind request already exists.
	ErrRequestAlreadyOpen = errors.New("an unbind request is already open for this relationship")
	// ErrCooldownActive indicates re-initiation is blocked until the cooldown elapses.
	ErrCooldownActive = errors.New("unbind cooldown is still active")
	// ErrInvalidReason indicates the unbind reason fails the length requirements.
	ErrInvalidReason = errors.New("reason must be between 10 and 1000 characters")
	// ErrIncompleteAcknowledgement indicates not all acceptance acknowledgements were given.
	ErrIncompleteAcknowledgement = errors.New("all acknowledgements must be confirmed")
	// ErrNotAParty indicates the caller is neither supervisor nor student of the relationship.
	ErrNotAParty = errors.New("caller is not a party of this relationship")
	// ErrSupervisorRoleRequired indicates the operation is reserved for supervisor-role callers.
	ErrSupervisorRoleRequired = errors.New("only a supervisor may offer supervision")
	// ErrNotCounterparty indicates the responder initiated the request themselves.
	ErrNotCounterparty = errors.New("only the non-initiating party may respond")
	// ErrStoreUnavailable wraps transient persistence failures; safe to retry.
	ErrStoreUnavailable = errors.New("relationship store unavailable")
)

// IncompleteAcknowledgementError names the acknowledgements that were missing
// when acceptance was attempted.
type IncompleteAcknowledgementError struct {
	Missing []string
}

func (e *IncompleteAcknowledgementError) Error() string {
	return fmt.Sprintf("acknowledgements missing: %s", strings.Join(e.Missing, ", "))
}

// Unwrap allows errors.Is(err, ErrIncompleteAcknowledgement).
func (e *IncompleteAcknowledgementError) Unwrap() error {
	return ErrIncompleteAcknowledgement
}

// CooldownActiveError carries the remaining cooldown duration so the caller
// knows when re-initiation becomes possible.
type CooldownActiveError struct {
	Until     time.Time
	Remaining time.Duration
}

func (e *CooldownActiveError) Error() string {
	return fmt.Sprintf("unbind cooldown active for another %s", e.Remaining.Round(time.Second))
}

// Unwrap allows errors.Is(err, ErrCooldownActive).
func (e *CooldownActiveError) Unwrap() error {
	return ErrCooldownActive
}

// InvalidTransitionError reports the state the operation observed.
type InvalidTransitionError struct {
	Observed models.RelationshipState
	Required models.RelationshipState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("relationship is %s, operation requires %s", e.Observed, e.Required)
}

// Unwrap allows errors.Is(err, ErrInvalidTransition).
func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}
