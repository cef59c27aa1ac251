package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/mentorium/supervision-api/internal/models"
)

// UnbindResolution describes the combined outcome of responding to a pending
// unbind request: the terminal request state plus the relationship transition
// that accompanies it.
type UnbindResolution struct {
	Outcome             models.UnbindRequestState
	Feedback            string
	RespondedAt         time.Time
	Relationship        models.Relationship
	NextState           models.RelationshipState
	RelationshipUpdates map[string]interface{}
}

// UnbindRepository persists unbind negotiation rounds. Opening and resolving
// a request each pair a request write with a conditional relationship
// transition inside one transaction, so either both commit or neither does.
type UnbindRepository interface {
	GetByID(ctx context.Context, id uint) (models.UnbindRequest, error)
	GetOpenByRelationship(ctx context.Context, relationshipID uint) (models.UnbindRequest, error)
	ListByRelationship(ctx context.Context, relationshipID uint) ([]models.UnbindRequest, error)
	Open(ctx context.Context, request *models.UnbindRequest, relationship models.Relationship) (models.Relationship, error)
	Resolve(ctx context.Context, requestID uint, resolution UnbindResolution) (models.UnbindRequest, models.Relationship, error)
}

type unbindRepository struct {
	db *gorm.DB
}

// NewUnbindRepository constructs an unbind request repository.
func NewUnbindRepository(db *gorm.DB) UnbindRepository {
	return &unbindRepository{db: db}
}

func (r *unbindRepository) GetByID(ctx context.Context, id uint) (models.UnbindRequest, error) {
	var request models.UnbindRequest
	if err := r.db.WithContext(ctx).First(&request, id).Error; err != nil {
		return models.UnbindRequest{}, err
	}

	return request, nil
}

func (r *unbindRepository) GetOpenByRelationship(ctx context.Context, relationshipID uint) (models.UnbindRequest, error) {
	var request models.UnbindRequest
	err := r.db.WithContext(ctx).
		Where("relationship_id = ? AND status = ?", relationshipID, models.UnbindRequestStatePending).
		First(&request).Error
	if err != nil {
		return models.UnbindRequest{}, err
	}

	return request, nil
}

func (r *unbindRepository) ListByRelationship(ctx context.Context, relationshipID uint) ([]models.UnbindRequest, error) {
	var requests []models.UnbindRequest
	err := r.db.WithContext(ctx).
		Where("relationship_id = ?", relationshipID).
		Order("created_at DESC").
		Find(&requests).Error
	if err != nil {
		return nil, err
	}

	return requests, nil
}

// Open creates the pending request and moves the relationship to
// unbind_pending in one transaction. The relationship CAS doubles as the
// guard against two concurrent initiations.
func (r *unbindRepository) Open(ctx context.Context, request *models.UnbindRequest, relationship models.Relationship) (models.Relationship, error) {
	var updated models.Relationship
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		updated, err = transitionTx(tx, relationship, models.RelationshipStateUnbindPending, nil)
		if err != nil {
			return err
		}

		return tx.Create(request).Error
	})
	if err != nil {
		return models.Relationship{}, err
	}

	return updated, nil
}

// Resolve finalizes a pending request and applies the accompanying
// relationship transition. The request update is conditional on status still
// being pending: when approve and reject race, exactly one caller wins and
// the loser gets ErrStale.
func (r *unbindRepository) Resolve(ctx context.Context, requestID uint, resolution UnbindResolution) (models.UnbindRequest, models.Relationship, error) {
	var (
		request      models.UnbindRequest
		relationship models.Relationship
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.UnbindRequest{}).
			Where("id = ? AND status = ?", requestID, models.UnbindRequestStatePending).
			Updates(map[string]interface{}{
				"status":       resolution.Outcome,
				"feedback":     resolution.Feedback,
				"responded_at": resolution.RespondedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrStale
		}

		var err error
		relationship, err = transitionTx(tx, resolution.Relationship, resolution.NextState, resolution.RelationshipUpdates)
		if err != nil {
			return err
		}

		return tx.First(&request, requestID).Error
	})
	if err != nil {
		return models.UnbindRequest{}, models.Relationship{}, err
	}

	return request, relationship, nil
}
