package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/mentorium/supervision-api/internal/dto"
	"github.com/mentorium/supervision-api/internal/models"
	"github.com/mentorium/supervision-api/internal/observability"
	"github.com/mentorium/supervision-api/internal/repository"
)

// Actor is the authenticated caller of a lifecycle operation, as supplied by
// the identity collaborator.
type Actor struct {
	ID   uint
	Role models.ActorRole
}

// LifecycleService is the public orchestration surface of the engine. Every
// successful transition emits exactly one lifecycle event, strictly after the
// store write commits.
type LifecycleService interface {
	OfferSupervision(ctx context.Context, actor Actor, payload dto.OfferCreateRequest) (dto.RelationshipResponse, error)
	AcceptOffer(ctx context.Context, actor Actor, relationshipID uint, payload dto.AcceptOfferRequest) (dto.RelationshipResponse, error)
	CancelOffer(ctx context.Context, actor Actor, relationshipID uint) (dto.RelationshipResponse, error)
	RecordDocumentUpload(ctx context.Context, relationshipID uint, url string) (dto.RelationshipResponse, error)
	GetRelationshipStatus(ctx context.Context, actor Actor, relationshipID uint) (dto.RelationshipStatusResponse, error)
	ListRelationships(ctx context.Context, actor Actor, req dto.RelationshipListRequest) (dto.RelationshipListResponse, error)
}

type lifecycleService struct {
	relationships repository.RelationshipRepository
	unbinds       repository.UnbindRepository
	events        EventService
	cache         *StatusCache
	validator     *validator.Validate
	graceWindow   time.Duration
	logger        zerolog.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

// NewLifecycleService constructs the lifecycle orchestrator.
func NewLifecycleService(relationships repository.RelationshipRepository, unbinds repository.UnbindRepository, events EventService, cache *StatusCache, validate *validator.Validate, graceWindow time.Duration, logger zerolog.Logger) LifecycleService {
	if graceWindow <= 0 {
		graceWindow = 21 * 24 * time.Hour
	}
	return &lifecycleService{
		relationships: relationships,
		unbinds:       unbinds,
		events:        events,
		cache:         cache,
		validator:     validate,
		graceWindow:   graceWindow,
		logger:        logger.With().Str("component", "lifecycle_service").Logger(),
		tracer:        otel.Tracer("github.com/mentorium/supervision-api/internal/service/lifecycle"),
		now:           time.Now,
	}
}

func (s *lifecycleService) OfferSupervision(ctx context.Context, actor Actor, payload dto.OfferCreateRequest) (dto.RelationshipResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.RelationshipResponse{}, err
	}

	// The caller becomes the supervisor side of the pair, so the identity
	// role must actually be supervisor.
	if actor.Role != models.ActorRoleSupervisor {
		return dto.RelationshipResponse{}, ErrSupervisorRoleRequired
	}

	ctx, span := s.tracer.Start(ctx, "lifecycle.offer", trace.WithAttributes(
		attribute.Int64("supervision.supervisor_id", int64(actor.ID)),
		attribute.Int64("supervision.student_id", int64(payload.StudentID)),
		attribute.String("supervision.role", payload.Role),
	))
	defer span.End()

	relationship := models.Relationship{
		SupervisorID:   actor.ID,
		StudentID:      payload.StudentID,
		Role:           models.SupervisionRole(payload.Role),
		Cohort:         payload.Cohort,
		State:          models.RelationshipStateOfferPending,
		DocumentStatus: models.DocumentStatusMissing,
	}

	err := s.retryTransient(func() error {
		return wrapStoreError(s.relationships.Create(ctx, &relationship))
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, repository.ErrDuplicatePair) {
			observability.Transitions().WithLabelValues("offer", "duplicate").Inc()
			return dto.RelationshipResponse{}, ErrDuplicateRelationship
		}
		return dto.RelationshipResponse{}, err
	}

	observability.Transitions().WithLabelValues("offer", "created").Inc()
	s.events.Emit(ctx, EventEntry{
		Type:           models.EventOfferCreated,
		RelationshipID: relationship.ID,
		ActorID:        actor.ID,
		ActorRole:      models.ActorRoleSupervisor,
		Summary:        offerCreatedSummary(relationship),
		Metadata:       map[string]interface{}{"role": string(relationship.Role), "cohort": relationship.Cohort},
	})

	return dto.NewRelationshipResponse(relationship), nil
}

// AcceptOffer is the single allowed entry into the active state. The
// compliance gate must pass and the row must still be offer_pending at write
// time; a concurrent cancel surfaces as ErrStaleState.
func (s *lifecycleService) AcceptOffer(ctx context.Context, actor Actor, relationshipID uint, payload dto.AcceptOfferRequest) (dto.RelationshipResponse, error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle.accept", trace.WithAttributes(
		attribute.Int64("supervision.relationship_id", int64(relationshipID)),
	))
	defer span.End()

	relationship, err := s.getRelationship(ctx, relationshipID)
	if err != nil {
		return dto.RelationshipResponse{}, err
	}

	if relationship.PartyRole(actor.ID) != models.ActorRoleStudent {
		return dto.RelationshipResponse{}, ErrNotAParty
	}

	if relationship.State != models.RelationshipStateOfferPending {
		return dto.RelationshipResponse{}, &InvalidTransitionError{
			Observed: relationship.State,
			Required: models.RelationshipStateOfferPending,
		}
	}

	acknowledgements := Acknowledgements{
		IntentionConfirmed:         payload.IntentionConfirmed,
		UploadObligationUnderstood: payload.UploadObligationUnderstood,
		StorageConsentGiven:        payload.StorageConsentGiven,
		RulesRead:                  payload.RulesRead,
	}
	if err := CanAccept(acknowledgements); err != nil {
		observability.Transitions().WithLabelValues("accept", "gated").Inc()
		span.RecordError(err)
		return dto.RelationshipResponse{}, err
	}

	now := s.now().UTC()
	deadline := now.Add(s.graceWindow)

	updated, err := s.transition(ctx, "accept", relationship, models.RelationshipStateActive, map[string]interface{}{
		"accepted_at":       now,
		"document_deadline": deadline,
		"document_status":   models.DocumentStatusMissing,
	})
	if err != nil {
		span.RecordError(err)
		return dto.RelationshipResponse{}, err
	}

	s.cache.Invalidate(ctx, updated.ID)
	s.events.Emit(ctx, EventEntry{
		Type:           models.EventOfferAccepted,
		RelationshipID: updated.ID,
		ActorID:        actor.ID,
		ActorRole:      models.ActorRoleStudent,
		Summary:        offerAcceptedSummary(updated),
		Metadata: map[string]interface{}{
			"accepted_at":       now,
			"document_deadline": deadline,
		},
	})

	return dto.NewRelationshipResponse(updated), nil
}

// CancelOffer withdraws a still-pending offer. Racing against a concurrent
// accept is resolved by the conditional write: one side gets ErrStaleState.
func (s *lifecycleService) CancelOffer(ctx context.Context, actor Actor, relationshipID uint) (dto.RelationshipResponse, error) {
	relationship, err := s.getRelationship(ctx, relationshipID)
	if err != nil {
		return dto.RelationshipResponse{}, err
	}

	if relationship.PartyRole(actor.ID) != models.ActorRoleSupervisor {
		return dto.RelationshipResponse{}, ErrNotAParty
	}

	if relationship.State != models.RelationshipStateOfferPending {
		return dto.RelationshipResponse{}, &InvalidTransitionError{
			Observed: relationship.State,
			Required: models.RelationshipStateOfferPending,
		}
	}

	updated, err := s.transition(ctx, "cancel", relationship, models.RelationshipStateTerminated, nil)
	if err != nil {
		return dto.RelationshipResponse{}, err
	}

	s.cache.Invalidate(ctx, updated.ID)
	s.events.Emit(ctx, EventEntry{
		Type:           models.EventOfferCancelled,
		RelationshipID: updated.ID,
		ActorID:        actor.ID,
		ActorRole:      models.ActorRoleSupervisor,
		Summary:        offerCancelledSummary(updated),
	})

	return dto.NewRelationshipResponse(updated), nil
}

// RecordDocumentUpload is the storage collaborator's callback once a
// supervision letter is safely stored. It is idempotent: a second call for an
// already-uploaded letter just refreshes the URL.
func (s *lifecycleService) RecordDocumentUpload(ctx context.Context, relationshipID uint, url string) (dto.RelationshipResponse, error) {
	relationship, err := s.getRelationship(ctx, relationshipID)
	if err != nil {
		return dto.RelationshipResponse{}, err
	}

	if relationship.State != models.RelationshipStateActive && relationship.State != models.RelationshipStateUnbindPending {
		return dto.RelationshipResponse{}, &InvalidTransitionError{
			Observed: relationship.State,
			Required: models.RelationshipStateActive,
		}
	}

	now := s.now().UTC()
	updates := map[string]interface{}{
		"document_url":         url,
		"document_uploaded_at": now,
	}

	updated, err := s.markUploaded(ctx, relationship, updates)
	if err != nil {
		return dto.RelationshipResponse{}, err
	}

	s.cache.Invalidate(ctx, updated.ID)
	s.events.Emit(ctx, EventEntry{
		Type:           models.EventDocumentUploaded,
		RelationshipID: updated.ID,
		Summary:        documentUploadedSummary(updated),
		Metadata:       map[string]interface{}{"url": url},
	})
	observability.Transitions().WithLabelValues("document_upload", "uploaded").Inc()

	return dto.NewRelationshipResponse(updated), nil
}

// markUploaded flips the document status from whichever non-uploaded value
// the row currently carries; a letter arriving after the sweep marked the row
// overdue still counts as uploaded.
func (s *lifecycleService) markUploaded(ctx context.Context, relationship models.Relationship, updates map[string]interface{}) (models.Relationship, error) {
	for _, from := range []models.DocumentStatus{
		models.DocumentStatusMissing,
		models.DocumentStatusOverdue,
		models.DocumentStatusUploaded,
	} {
		updated, err := s.relationships.SetDocumentStatus(ctx, relationship.ID, from, models.DocumentStatusUploaded, updates)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, repository.ErrStale) {
			return models.Relationship{}, wrapStoreError(err)
		}
	}

	return models.Relationship{}, ErrStaleState
}

func (s *lifecycleService) GetRelationshipStatus(ctx context.Context, actor Actor, relationshipID uint) (dto.RelationshipStatusResponse, error) {
	relationship, err := s.getRelationship(ctx, relationshipID)
	if err != nil {
		return dto.RelationshipStatusResponse{}, err
	}

	if relationship.PartyRole(actor.ID) == "" {
		return dto.RelationshipStatusResponse{}, ErrNotAParty
	}

	// Document compliance is evaluated lazily against the clock so a status
	// query between sweeps still reports overdue. The cached view gets the
	// same treatment: a deadline can pass within the cache TTL.
	relationship.DocumentStatus = EvaluateDocumentCompliance(relationship, s.now().UTC())

	if cached, ok := s.cache.Get(ctx, relationshipID); ok {
		cached.CacheHit = true
		cached.Relationship.DocumentStatus = string(relationship.DocumentStatus)
		return cached, nil
	}

	status := dto.RelationshipStatusResponse{
		Relationship: dto.NewRelationshipResponse(relationship),
	}

	open, err := s.unbinds.GetOpenByRelationship(ctx, relationshipID)
	switch {
	case err == nil:
		response := dto.NewUnbindResponse(open)
		status.OpenUnbind = &response
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return dto.RelationshipStatusResponse{}, wrapStoreError(err)
	}

	s.cache.Set(ctx, relationshipID, status)

	return status, nil
}

func (s *lifecycleService) ListRelationships(ctx context.Context, actor Actor, req dto.RelationshipListRequest) (dto.RelationshipListResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.RelationshipListResponse{}, err
	}

	filter := repository.RelationshipFilter{
		State:    models.RelationshipState(req.State),
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}

	// Callers only ever see their own side of the graph.
	if actor.Role == models.ActorRoleSupervisor {
		filter.SupervisorID = &actor.ID
	} else {
		filter.StudentID = &actor.ID
	}

	relationships, total, err := s.relationships.List(ctx, filter)
	if err != nil {
		return dto.RelationshipListResponse{}, wrapStoreError(err)
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pagination := dto.PaginationMeta{
		Page:       page,
		PageSize:   filter.PageSize,
		TotalItems: total,
	}
	pagination.TotalPages = int((total + int64(filter.PageSize) - 1) / int64(filter.PageSize))

	return dto.RelationshipListResponse{
		Items:      dto.NewRelationshipResponseSlice(relationships),
		Pagination: pagination,
	}, nil
}

func (s *lifecycleService) getRelationship(ctx context.Context, id uint) (models.Relationship, error) {
	relationship, err := s.relationships.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Relationship{}, ErrRelationshipNotFound
		}
		return models.Relationship{}, wrapStoreError(err)
	}

	return relationship, nil
}

// transition runs one conditional state write, translating repository
// sentinels and counting outcomes.
func (s *lifecycleService) transition(ctx context.Context, operation string, current models.Relationship, next models.RelationshipState, updates map[string]interface{}) (models.Relationship, error) {
	var updated models.Relationship
	err := s.retryTransient(func() error {
		var err error
		updated, err = s.relationships.Transition(ctx, current, next, updates)
		return wrapStoreError(err)
	})
	if err != nil {
		if errors.Is(err, repository.ErrStale) {
			observability.StaleConflicts().WithLabelValues(operation).Inc()
			return models.Relationship{}, ErrStaleState
		}
		return models.Relationship{}, err
	}

	observability.Transitions().WithLabelValues(operation, string(next)).Inc()

	return updated, nil
}

// retryTransient reruns a conditional write once after a transient store
// fault. Safe because every write is conditioned on the expected prior state.
func (s *lifecycleService) retryTransient(fn func() error) error {
	err := fn()
	if err == nil || !errors.Is(err, ErrStoreUnavailable) {
		return err
	}

	s.logger.Warn().Err(err).Msg("transient store failure, retrying once")

	return fn()
}
