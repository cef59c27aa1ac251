package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/mentorium/supervision-api/internal/dto"
	"github.com/mentorium/supervision-api/internal/models"
	"github.com/mentorium/supervision-api/internal/observability"
	"github.com/mentorium/supervision-api/internal/repository"
)

// Acknowledgements are the four confirmations a student must give atomically
// when accepting a supervision offer.
type Acknowledgements struct {
	IntentionConfirmed         bool
	UploadObligationUnderstood bool
	StorageConsentGiven        bool
	RulesRead                  bool
}

// Missing returns the names of acknowledgements that are not confirmed.
func (a Acknowledgements) Missing() []string {
	var missing []string
	if !a.IntentionConfirmed {
		missing = append(missing, "intention_confirmed")
	}
	if !a.UploadObligationUnderstood {
		missing = append(missing, "upload_obligation_understood")
	}
	if !a.StorageConsentGiven {
		missing = append(missing, "storage_consent_given")
	}
	if !a.RulesRead {
		missing = append(missing, "rules_read")
	}
	return missing
}

// CanAccept gates offer acceptance: every acknowledgement must be true.
// Pure function, no side effects.
func CanAccept(acknowledgements Acknowledgements) error {
	if missing := acknowledgements.Missing(); len(missing) > 0 {
		return &IncompleteAcknowledgementError{Missing: missing}
	}
	return nil
}

// EvaluateDocumentCompliance derives the document status of a relationship at
// the given instant. Uploaded wins; otherwise the deadline decides between
// missing and overdue.
func EvaluateDocumentCompliance(relationship models.Relationship, now time.Time) models.DocumentStatus {
	if relationship.DocumentStatus == models.DocumentStatusUploaded {
		return models.DocumentStatusUploaded
	}
	if relationship.DocumentDeadline != nil && now.After(*relationship.DocumentDeadline) {
		return models.DocumentStatusOverdue
	}
	return models.DocumentStatusMissing
}

// ComplianceService runs the scheduler-driven sweep that flips missing
// letters to overdue once their deadline passes. The engine holds no timer;
// the scheduler collaborator calls Sweep periodically.
type ComplianceService interface {
	Sweep(ctx context.Context) (dto.ComplianceSweepResponse, error)
}

type complianceService struct {
	relationships repository.RelationshipRepository
	events        EventService
	logger        zerolog.Logger
	now           func() time.Time
}

// NewComplianceService constructs the compliance sweep service.
func NewComplianceService(relationships repository.RelationshipRepository, events EventService, logger zerolog.Logger) ComplianceService {
	return &complianceService{
		relationships: relationships,
		events:        events,
		logger:        logger.With().Str("component", "compliance_service").Logger(),
		now:           time.Now,
	}
}

func (s *complianceService) Sweep(ctx context.Context) (dto.ComplianceSweepResponse, error) {
	now := s.now().UTC()

	due, err := s.relationships.ListDocumentDue(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list relationships due for compliance sweep")
		return dto.ComplianceSweepResponse{}, wrapStoreError(err)
	}

	response := dto.ComplianceSweepResponse{Checked: len(due), EvaluatedAt: now}
	for _, relationship := range due {
		if EvaluateDocumentCompliance(relationship, now) != models.DocumentStatusOverdue {
			continue
		}

		updated, err := s.relationships.SetDocumentStatus(ctx, relationship.ID,
			models.DocumentStatusMissing, models.DocumentStatusOverdue, nil)
		if err != nil {
			if errors.Is(err, repository.ErrStale) {
				// The letter arrived between the listing and the flip.
				continue
			}
			s.logger.Error().Err(err).Uint("relationship_id", relationship.ID).
				Msg("failed to mark document overdue")
			continue
		}

		response.Overdue++
		observability.Transitions().WithLabelValues("document_sweep", "overdue").Inc()
		s.events.Emit(ctx, EventEntry{
			Type:           models.EventDocumentOverdue,
			RelationshipID: updated.ID,
			Summary:        documentOverdueSummary(updated),
			Metadata: map[string]interface{}{
				"document_deadline": updated.DocumentDeadline,
			},
		})
	}

	return response, nil
}
