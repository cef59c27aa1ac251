package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mentorium/supervision-api/internal/models"
	"github.com/mentorium/supervision-api/internal/repository"
)

// wrapStoreError classifies repository failures: expected conditions pass
// through untouched, anything else is a transient infrastructure fault and is
// tagged as such so the orchestrator may retry it.
func wrapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) ||
		errors.Is(err, repository.ErrStale) ||
		errors.Is(err, repository.ErrDuplicatePair) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func offerCreatedSummary(relationship models.Relationship) string {
	return fmt.Sprintf("supervisor %d offered %s supervision to student %d",
		relationship.SupervisorID, relationship.Role, relationship.StudentID)
}

func offerAcceptedSummary(relationship models.Relationship) string {
	return fmt.Sprintf("student %d accepted %s supervision by supervisor %d",
		relationship.StudentID, relationship.Role, relationship.SupervisorID)
}

func offerCancelledSummary(relationship models.Relationship) string {
	return fmt.Sprintf("supervisor %d withdrew the pending %s supervision offer to student %d",
		relationship.SupervisorID, relationship.Role, relationship.StudentID)
}

func unbindPendingSummary(relationship models.Relationship, initiator models.ActorRole) string {
	return fmt.Sprintf("%s requested to unbind the supervision of student %d by supervisor %d",
		initiator, relationship.StudentID, relationship.SupervisorID)
}

func unbindApprovedSummary(relationship models.Relationship) string {
	return fmt.Sprintf("supervision of student %d by supervisor %d was dissolved by mutual consent",
		relationship.StudentID, relationship.SupervisorID)
}

func unbindRejectedSummary(relationship models.Relationship, responder models.ActorRole) string {
	return fmt.Sprintf("%s rejected the unbind request; supervision of student %d by supervisor %d stays active",
		responder, relationship.StudentID, relationship.SupervisorID)
}

func forceTerminatedSummary(relationship models.Relationship) string {
	return fmt.Sprintf("supervision of student %d by supervisor %d was force-terminated after %d rejected unbind requests",
		relationship.StudentID, relationship.SupervisorID, relationship.RejectionCount)
}

func documentUploadedSummary(relationship models.Relationship) string {
	return fmt.Sprintf("supervision letter filed for student %d and supervisor %d",
		relationship.StudentID, relationship.SupervisorID)
}

func documentOverdueSummary(relationship models.Relationship) string {
	return fmt.Sprintf("supervision letter for student %d and supervisor %d is overdue",
		relationship.StudentID, relationship.SupervisorID)
}
