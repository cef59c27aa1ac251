package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mentorium/supervision-api/internal/models"
)

// Store-level sentinels surfaced to the service layer, which maps them onto
// the public error taxonomy.
var (
	// ErrStale indicates a conditional write observed a different state or
	// version than expected and changed nothing.
	ErrStale = errors.New("conditional write lost: row state changed")
	// ErrDuplicatePair indicates an open relationship already exists for the
	// (supervisor, student, role) tuple.
	ErrDuplicatePair = errors.New("open relationship exists for pair")
)

// RelationshipFilter narrows relationship list queries.
type RelationshipFilter struct {
	SupervisorID *uint
	StudentID    *uint
	State        models.RelationshipState
	Page         int
	PageSize     int
}

// RelationshipRepository is the single source of truth for relationship rows.
// Every transition is a conditional write guarded by the row's current state
// and version; a write that observes anything else fails with ErrStale.
type RelationshipRepository interface {
	Create(ctx context.Context, relationship *models.Relationship) error
	GetByID(ctx context.Context, id uint) (models.Relationship, error)
	List(ctx context.Context, filter RelationshipFilter) ([]models.Relationship, int64, error)
	Transition(ctx context.Context, current models.Relationship, next models.RelationshipState, updates map[string]interface{}) (models.Relationship, error)
	SetDocumentStatus(ctx context.Context, id uint, from, to models.DocumentStatus, updates map[string]interface{}) (models.Relationship, error)
	ListDocumentDue(ctx context.Context, before time.Time) ([]models.Relationship, error)
}

type relationshipRepository struct {
	db *gorm.DB
}

// NewRelationshipRepository constructs a repository backed by GORM.
func NewRelationshipRepository(db *gorm.DB) RelationshipRepository {
	return &relationshipRepository{db: db}
}

// Create inserts a new offer_pending row. The one-open-relationship invariant
// is checked inside the same transaction that performs the insert.
func (r *relationshipRepository) Create(ctx context.Context, relationship *models.Relationship) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&models.Relationship{}).
			Where("supervisor_id = ? AND student_id = ? AND role = ? AND state <> ?",
				relationship.SupervisorID, relationship.StudentID, relationship.Role,
				models.RelationshipStateTerminated).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicatePair
		}

		return tx.Create(relationship).Error
	})
}

func (r *relationshipRepository) GetByID(ctx context.Context, id uint) (models.Relationship, error) {
	var relationship models.Relationship
	if err := r.db.WithContext(ctx).First(&relationship, id).Error; err != nil {
		return models.Relationship{}, err
	}

	return relationship, nil
}

func (r *relationshipRepository) List(ctx context.Context, filter RelationshipFilter) ([]models.Relationship, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Relationship{})

	if filter.SupervisorID != nil {
		query = query.Where("supervisor_id = ?", *filter.SupervisorID)
	}
	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}
	if filter.State != "" {
		query = query.Where("state = ?", filter.State)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var relationships []models.Relationship
	if err := query.Order("created_at DESC").Find(&relationships).Error; err != nil {
		return nil, 0, err
	}

	return relationships, total, nil
}

// Transition performs the compare-and-swap write: the row must still carry the
// state and version the caller read. Zero affected rows means a concurrent
// writer won.
func (r *relationshipRepository) Transition(ctx context.Context, current models.Relationship, next models.RelationshipState, updates map[string]interface{}) (models.Relationship, error) {
	return transitionTx(r.db.WithContext(ctx), current, next, updates)
}

func transitionTx(tx *gorm.DB, current models.Relationship, next models.RelationshipState, updates map[string]interface{}) (models.Relationship, error) {
	values := map[string]interface{}{
		"state":   next,
		"version": gorm.Expr("version + 1"),
	}
	for key, value := range updates {
		values[key] = value
	}

	result := tx.Model(&models.Relationship{}).
		Where("id = ? AND state = ? AND version = ?", current.ID, current.State, current.Version).
		Updates(values)
	if result.Error != nil {
		return models.Relationship{}, result.Error
	}
	if result.RowsAffected == 0 {
		return models.Relationship{}, ErrStale
	}

	var updated models.Relationship
	if err := tx.First(&updated, current.ID).Error; err != nil {
		return models.Relationship{}, err
	}

	return updated, nil
}

// SetDocumentStatus flips the document status conditionally so a late sweep
// never clobbers an upload that won the race.
func (r *relationshipRepository) SetDocumentStatus(ctx context.Context, id uint, from, to models.DocumentStatus, updates map[string]interface{}) (models.Relationship, error) {
	values := map[string]interface{}{"document_status": to}
	for key, value := range updates {
		values[key] = value
	}

	result := r.db.WithContext(ctx).Model(&models.Relationship{}).
		Where("id = ? AND document_status = ?", id, from).
		Updates(values)
	if result.Error != nil {
		return models.Relationship{}, result.Error
	}
	if result.RowsAffected == 0 {
		return models.Relationship{}, ErrStale
	}

	var updated models.Relationship
	if err := r.db.WithContext(ctx).First(&updated, id).Error; err != nil {
		return models.Relationship{}, err
	}

	return updated, nil
}

// ListDocumentDue returns open relationships whose letter is still missing
// past the deadline. Used by the scheduler-driven compliance sweep.
func (r *relationshipRepository) ListDocumentDue(ctx context.Context, before time.Time) ([]models.Relationship, error) {
	var relationships []models.Relationship
	err := r.db.WithContext(ctx).
		Where("document_status = ? AND document_deadline IS NOT NULL AND document_deadline < ? AND state IN ?",
			models.DocumentStatusMissing, before,
			[]models.RelationshipState{models.RelationshipStateActive, models.RelationshipStateUnbindPending}).
		Find(&relationships).Error
	if err != nil {
		return nil, err
	}

	return relationships, nil
}
