package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/mentorium/supervision-api/internal/models"
)

// LifecycleEventFilter narrows event feed queries.
type LifecycleEventFilter struct {
	RelationshipID *uint
	Type           models.LifecycleEventType
	Page           int
	PageSize       int
}

// LifecycleEventRepository persists the append-only lifecycle audit trail.
type LifecycleEventRepository interface {
	Create(ctx context.Context, event *models.LifecycleEvent) error
	List(ctx context.Context, filter LifecycleEventFilter) ([]models.LifecycleEvent, int64, error)
}

type lifecycleEventRepository struct {
	db *gorm.DB
}

// NewLifecycleEventRepository constructs the lifecycle event repository.
func NewLifecycleEventRepository(db *gorm.DB) LifecycleEventRepository {
	return &lifecycleEventRepository{db: db}
}

func (r *lifecycleEventRepository) Create(ctx context.Context, event *models.LifecycleEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *lifecycleEventRepository) List(ctx context.Context, filter LifecycleEventFilter) ([]models.LifecycleEvent, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.LifecycleEvent{})

	if filter.RelationshipID != nil {
		query = query.Where("relationship_id = ?", *filter.RelationshipID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
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

	var events []models.LifecycleEvent
	if err := query.Order("created_at DESC").Find(&events).Error; err != nil {
		return nil, 0, err
	}

	return events, total, nil
}
