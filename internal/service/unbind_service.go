package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
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

const (
	reasonMinLength = 10
	reasonMaxLength = 1000
)

// Decision values accepted by Respond.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// UnbindService drives the bilateral unbind negotiation: request, response,
// cooldown and the force-termination escalation path.
type UnbindService interface {
	Initiate(ctx context.Context, actor Actor, relationshipID uint, payload dto.UnbindCreateRequest) (dto.UnbindResponse, error)
	Respond(ctx context.Context, actor Actor, requestID uint, payload dto.UnbindRespondRequest) (dto.UnbindResolutionResponse, error)
	ListForRelationship(ctx context.Context, actor Actor, relationshipID uint) ([]dto.UnbindResponse, error)
}

type unbindService struct {
	relationships repository.RelationshipRepository
	unbinds       repository.UnbindRepository
	events        EventService
	cache         *StatusCache
	validator     *validator.Validate
	sanitizer     *bluemonday.Policy
	cooldown      time.Duration
	threshold     int
	logger        zerolog.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

// NewUnbindService constructs the unbind negotiation service.
func NewUnbindService(relationships repository.RelationshipRepository, unbinds repository.UnbindRepository, events EventService, cache *StatusCache, validate *validator.Validate, cooldown time.Duration, threshold int, logger zerolog.Logger) UnbindService {
	if cooldown <= 0 {
		cooldown = 30 * 24 * time.Hour
	}
	if threshold <= 0 {
		threshold = 3
	}
	return &unbindService{
		relationships: relationships,
		unbinds:       unbinds,
		events:        events,
		cache:         cache,
		validator:     validate,
		sanitizer:     bluemonday.StrictPolicy(),
		cooldown:      cooldown,
		threshold:     threshold,
		logger:        logger.With().Str("component", "unbind_service").Logger(),
		tracer:        otel.Tracer("github.com/mentorium/supervision-api/internal/service/unbind"),
		now:           time.Now,
	}
}

// Initiate opens a negotiation round. The cooldown armed by a prior rejection
// blocks re-initiation unless the rejection count has already reached the
// escalation threshold.
func (s *unbindService) Initiate(ctx context.Context, actor Actor, relationshipID uint, payload dto.UnbindCreateRequest) (dto.UnbindResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.UnbindResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "unbind.initiate", trace.WithAttributes(
		attribute.Int64("supervision.relationship_id", int64(relationshipID)),
	))
	defer span.End()

	reason := strings.TrimSpace(s.sanitizer.Sanitize(payload.Reason))
	// Bounds are defined in characters, so multi-byte text is measured in runes.
	if length := utf8.RuneCountInString(reason); length < reasonMinLength || length > reasonMaxLength {
		return dto.UnbindResponse{}, ErrInvalidReason
	}

	relationship, err := s.getRelationship(ctx, relationshipID)
	if err != nil {
		return dto.UnbindResponse{}, err
	}

	initiatorRole := relationship.PartyRole(actor.ID)
	if initiatorRole == "" {
		return dto.UnbindResponse{}, ErrNotAParty
	}

	if relationship.State != models.RelationshipStateActive {
		observability.Transitions().WithLabelValues("unbind_initiate", "not_active").Inc()
		return dto.UnbindResponse{}, ErrRelationshipNotActive
	}

	if _, err := s.unbinds.GetOpenByRelationship(ctx, relationshipID); err == nil {
		return dto.UnbindResponse{}, ErrRequestAlreadyOpen
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.UnbindResponse{}, wrapStoreError(err)
	}

	now := s.now().UTC()
	if relationship.CooldownUntil != nil && now.Before(*relationship.CooldownUntil) &&
		relationship.RejectionCount < s.threshold {
		observability.Transitions().WithLabelValues("unbind_initiate", "cooldown").Inc()
		return dto.UnbindResponse{}, &CooldownActiveError{
			Until:     *relationship.CooldownUntil,
			Remaining: relationship.CooldownUntil.Sub(now),
		}
	}

	request := models.UnbindRequest{
		RelationshipID: relationshipID,
		InitiatorRole:  initiatorRole,
		Reason:         reason,
		Status:         models.UnbindRequestStatePending,
	}

	updated, err := s.unbinds.Open(ctx, &request, relationship)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, repository.ErrStale) {
			observability.StaleConflicts().WithLabelValues("unbind_initiate").Inc()
			return dto.UnbindResponse{}, ErrStaleState
		}
		return dto.UnbindResponse{}, wrapStoreError(err)
	}

	observability.Transitions().WithLabelValues("unbind_initiate", "pending").Inc()
	s.cache.Invalidate(ctx, relationshipID)
	s.events.Emit(ctx, EventEntry{
		Type:           models.EventUnbindPending,
		RelationshipID: relationshipID,
		ActorID:        actor.ID,
		ActorRole:      initiatorRole,
		Summary:        unbindPendingSummary(updated, initiatorRole),
		Metadata:       map[string]interface{}{"reason": reason},
	})

	return dto.NewUnbindResponse(request), nil
}

// Respond resolves a pending round. Approval terminates the relationship.
// Rejection arms the cooldown and, on the configured rejection, escalates to
// force-termination instead - the third rejection itself is the forcing
// event, so no party can hold the relationship open indefinitely.
func (s *unbindService) Respond(ctx context.Context, actor Actor, requestID uint, payload dto.UnbindRespondRequest) (dto.UnbindResolutionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.UnbindResolutionResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "unbind.respond", trace.WithAttributes(
		attribute.Int64("supervision.request_id", int64(requestID)),
		attribute.String("supervision.decision", payload.Decision),
	))
	defer span.End()

	request, err := s.unbinds.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.UnbindResolutionResponse{}, ErrUnbindRequestNotFound
		}
		return dto.UnbindResolutionResponse{}, wrapStoreError(err)
	}

	if request.Status.Terminal() {
		return dto.UnbindResolutionResponse{}, ErrStaleState
	}

	relationship, err := s.getRelationship(ctx, request.RelationshipID)
	if err != nil {
		return dto.UnbindResolutionResponse{}, err
	}

	responderRole := relationship.PartyRole(actor.ID)
	if responderRole == "" {
		return dto.UnbindResolutionResponse{}, ErrNotAParty
	}
	if responderRole == request.InitiatorRole {
		return dto.UnbindResolutionResponse{}, ErrNotCounterparty
	}

	if relationship.State != models.RelationshipStateUnbindPending {
		return dto.UnbindResolutionResponse{}, &InvalidTransitionError{
			Observed: relationship.State,
			Required: models.RelationshipStateUnbindPending,
		}
	}

	feedback := strings.TrimSpace(s.sanitizer.Sanitize(payload.Feedback))
	now := s.now().UTC()

	resolution := repository.UnbindResolution{
		Feedback:     feedback,
		RespondedAt:  now,
		Relationship: relationship,
	}

	var eventType models.LifecycleEventType
	switch payload.Decision {
	case DecisionApprove:
		resolution.Outcome = models.UnbindRequestStateApproved
		resolution.NextState = models.RelationshipStateTerminated
		eventType = models.EventUnbindApproved
	case DecisionReject:
		newCount := relationship.RejectionCount + 1
		if newCount >= s.threshold {
			// Third rejection: deterministic force-termination, no further
			// approval required.
			resolution.Outcome = models.UnbindRequestStateForceTerminated
			resolution.NextState = models.RelationshipStateTerminated
			resolution.RelationshipUpdates = map[string]interface{}{
				"rejection_count": newCount,
			}
			eventType = models.EventForceTerminated
		} else {
			resolution.Outcome = models.UnbindRequestStateRejected
			resolution.NextState = models.RelationshipStateActive
			resolution.RelationshipUpdates = map[string]interface{}{
				"rejection_count": newCount,
				"cooldown_until":  now.Add(s.cooldown),
			}
			eventType = models.EventUnbindRejected
		}
	default:
		return dto.UnbindResolutionResponse{}, errors.New("decision must be approve or reject")
	}

	resolved, updated, err := s.unbinds.Resolve(ctx, requestID, resolution)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, repository.ErrStale) {
			observability.StaleConflicts().WithLabelValues("unbind_respond").Inc()
			return dto.UnbindResolutionResponse{}, ErrStaleState
		}
		return dto.UnbindResolutionResponse{}, wrapStoreError(err)
	}

	observability.Transitions().WithLabelValues("unbind_respond", string(resolved.Status)).Inc()
	s.cache.Invalidate(ctx, relationship.ID)

	entry := EventEntry{
		Type:           eventType,
		RelationshipID: relationship.ID,
		ActorID:        actor.ID,
		ActorRole:      responderRole,
		Metadata: map[string]interface{}{
			"decision":        payload.Decision,
			"rejection_count": updated.RejectionCount,
		},
	}
	switch eventType {
	case models.EventUnbindApproved:
		entry.Summary = unbindApprovedSummary(updated)
	case models.EventForceTerminated:
		entry.Summary = forceTerminatedSummary(updated)
	default:
		entry.Summary = unbindRejectedSummary(updated, responderRole)
	}
	s.events.Emit(ctx, entry)

	return dto.UnbindResolutionResponse{
		Request:      dto.NewUnbindResponse(resolved),
		Relationship: dto.NewRelationshipResponse(updated),
	}, nil
}

func (s *unbindService) ListForRelationship(ctx context.Context, actor Actor, relationshipID uint) ([]dto.UnbindResponse, error) {
	relationship, err := s.getRelationship(ctx, relationshipID)
	if err != nil {
		return nil, err
	}

	if relationship.PartyRole(actor.ID) == "" {
		return nil, ErrNotAParty
	}

	requests, err := s.unbinds.ListByRelationship(ctx, relationshipID)
	if err != nil {
		return nil, wrapStoreError(err)
	}

	return dto.NewUnbindResponseSlice(requests), nil
}

func (s *unbindService) getRelationship(ctx context.Context, id uint) (models.Relationship, error) {
	relationship, err := s.relationships.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Relationship{}, ErrRelationshipNotFound
		}
		return models.Relationship{}, wrapStoreError(err)
	}

	return relationship, nil
}
