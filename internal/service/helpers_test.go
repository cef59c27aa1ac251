package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/mentorium/supervision-api/internal/dto"
	"github.com/mentorium/supervision-api/internal/models"
	"github.com/mentorium/supervision-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

type memoryRelationshipRepo struct {
	mu            sync.Mutex
	relationships map[uint]models.Relationship
	nextID        uint
	failures      int
}

func newMemoryRelationshipRepo() *memoryRelationshipRepo {
	return &memoryRelationshipRepo{
		relationships: make(map[uint]models.Relationship),
		nextID:        1,
	}
}

func (m *memoryRelationshipRepo) put(relationship models.Relationship) models.Relationship {
	m.mu.Lock()
	defer m.mu.Unlock()
	if relationship.ID == 0 {
		relationship.ID = m.nextID
		m.nextID++
	} else if relationship.ID >= m.nextID {
		m.nextID = relationship.ID + 1
	}
	if relationship.CreatedAt.IsZero() {
		relationship.CreatedAt = time.Now()
	}
	m.relationships[relationship.ID] = relationship
	return relationship
}

func (m *memoryRelationshipRepo) Create(_ context.Context, relationship *models.Relationship) error {
	if m.failures > 0 {
		m.failures--
		return gorm.ErrInvalidDB
	}

	m.mu.Lock()
	for _, existing := range m.relationships {
		if existing.SupervisorID == relationship.SupervisorID &&
			existing.StudentID == relationship.StudentID &&
			existing.Role == relationship.Role && existing.IsOpen() {
			m.mu.Unlock()
			return repository.ErrDuplicatePair
		}
	}
	m.mu.Unlock()

	*relationship = m.put(*relationship)
	return nil
}

func (m *memoryRelationshipRepo) GetByID(_ context.Context, id uint) (models.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	relationship, ok := m.relationships[id]
	if !ok {
		return models.Relationship{}, gorm.ErrRecordNotFound
	}
	return relationship, nil
}

func (m *memoryRelationshipRepo) List(_ context.Context, filter repository.RelationshipFilter) ([]models.Relationship, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var results []models.Relationship
	for _, relationship := range m.relationships {
		if filter.SupervisorID != nil && relationship.SupervisorID != *filter.SupervisorID {
			continue
		}
		if filter.StudentID != nil && relationship.StudentID != *filter.StudentID {
			continue
		}
		if filter.State != "" && relationship.State != filter.State {
			continue
		}
		results = append(results, relationship)
	}

	return results, int64(len(results)), nil
}

func (m *memoryRelationshipRepo) Transition(_ context.Context, current models.Relationship, next models.RelationshipState, updates map[string]interface{}) (models.Relationship, error) {
	if m.failures > 0 {
		m.failures--
		return models.Relationship{}, gorm.ErrInvalidDB
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.relationships[current.ID]
	if !ok || stored.State != current.State || stored.Version != current.Version {
		return models.Relationship{}, repository.ErrStale
	}

	stored.State = next
	stored.Version++
	applyRelationshipUpdates(&stored, updates)
	m.relationships[stored.ID] = stored

	return stored, nil
}

func (m *memoryRelationshipRepo) SetDocumentStatus(_ context.Context, id uint, from, to models.DocumentStatus, updates map[string]interface{}) (models.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.relationships[id]
	if !ok || stored.DocumentStatus != from {
		return models.Relationship{}, repository.ErrStale
	}

	stored.DocumentStatus = to
	applyRelationshipUpdates(&stored, updates)
	m.relationships[id] = stored

	return stored, nil
}

func (m *memoryRelationshipRepo) ListDocumentDue(_ context.Context, before time.Time) ([]models.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var results []models.Relationship
	for _, relationship := range m.relationships {
		if relationship.DocumentStatus != models.DocumentStatusMissing {
			continue
		}
		if relationship.DocumentDeadline == nil || !relationship.DocumentDeadline.Before(before) {
			continue
		}
		if relationship.State != models.RelationshipStateActive &&
			relationship.State != models.RelationshipStateUnbindPending {
			continue
		}
		results = append(results, relationship)
	}

	return results, nil
}

func applyRelationshipUpdates(relationship *models.Relationship, updates map[string]interface{}) {
	for key, value := range updates {
		switch key {
		case "accepted_at":
			t := value.(time.Time)
			relationship.AcceptedAt = &t
		case "document_deadline":
			t := value.(time.Time)
			relationship.DocumentDeadline = &t
		case "document_status":
			relationship.DocumentStatus = value.(models.DocumentStatus)
		case "document_url":
			relationship.DocumentURL = value.(string)
		case "document_uploaded_at":
			t := value.(time.Time)
			relationship.DocumentUploadedAt = &t
		case "rejection_count":
			relationship.RejectionCount = value.(int)
		case "cooldown_until":
			t := value.(time.Time)
			relationship.CooldownUntil = &t
		}
	}
}

type memoryUnbindRepo struct {
	mu            sync.Mutex
	requests      map[uint]models.UnbindRequest
	nextID        uint
	relationships *memoryRelationshipRepo
}

func newMemoryUnbindRepo(relationships *memoryRelationshipRepo) *memoryUnbindRepo {
	return &memoryUnbindRepo{
		requests:      make(map[uint]models.UnbindRequest),
		nextID:        1,
		relationships: relationships,
	}
}

func (m *memoryUnbindRepo) GetByID(_ context.Context, id uint) (models.UnbindRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	request, ok := m.requests[id]
	if !ok {
		return models.UnbindRequest{}, gorm.ErrRecordNotFound
	}
	return request, nil
}

func (m *memoryUnbindRepo) GetOpenByRelationship(_ context.Context, relationshipID uint) (models.UnbindRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, request := range m.requests {
		if request.RelationshipID == relationshipID && request.Status == models.UnbindRequestStatePending {
			return request, nil
		}
	}
	return models.UnbindRequest{}, gorm.ErrRecordNotFound
}

func (m *memoryUnbindRepo) ListByRelationship(_ context.Context, relationshipID uint) ([]models.UnbindRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var results []models.UnbindRequest
	for _, request := range m.requests {
		if request.RelationshipID == relationshipID {
			results = append(results, request)
		}
	}
	return results, nil
}

func (m *memoryUnbindRepo) Open(ctx context.Context, request *models.UnbindRequest, relationship models.Relationship) (models.Relationship, error) {
	updated, err := m.relationships.Transition(ctx, relationship, models.RelationshipStateUnbindPending, nil)
	if err != nil {
		return models.Relationship{}, err
	}

	m.mu.Lock()
	request.ID = m.nextID
	request.CreatedAt = time.Now()
	m.nextID++
	m.requests[request.ID] = *request
	m.mu.Unlock()

	return updated, nil
}

func (m *memoryUnbindRepo) Resolve(ctx context.Context, requestID uint, resolution repository.UnbindResolution) (models.UnbindRequest, models.Relationship, error) {
	m.mu.Lock()
	request, ok := m.requests[requestID]
	if !ok || request.Status != models.UnbindRequestStatePending {
		m.mu.Unlock()
		return models.UnbindRequest{}, models.Relationship{}, repository.ErrStale
	}
	m.mu.Unlock()

	relationship, err := m.relationships.Transition(ctx, resolution.Relationship, resolution.NextState, resolution.RelationshipUpdates)
	if err != nil {
		return models.UnbindRequest{}, models.Relationship{}, err
	}

	m.mu.Lock()
	request.Status = resolution.Outcome
	request.Feedback = resolution.Feedback
	respondedAt := resolution.RespondedAt
	request.RespondedAt = &respondedAt
	m.requests[requestID] = request
	m.mu.Unlock()

	return request, relationship, nil
}

type memoryEventRepo struct {
	mu     sync.Mutex
	events []models.LifecycleEvent
	nextID uint
}

func newMemoryEventRepo() *memoryEventRepo {
	return &memoryEventRepo{nextID: 1}
}

func (m *memoryEventRepo) Create(_ context.Context, event *models.LifecycleEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.ID = m.nextID
	event.CreatedAt = time.Now()
	m.nextID++
	m.events = append(m.events, *event)
	return nil
}

func (m *memoryEventRepo) List(_ context.Context, filter repository.LifecycleEventFilter) ([]models.LifecycleEvent, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var results []models.LifecycleEvent
	for _, event := range m.events {
		if filter.RelationshipID != nil && event.RelationshipID != *filter.RelationshipID {
			continue
		}
		if filter.Type != "" && event.Type != filter.Type {
			continue
		}
		results = append(results, event)
	}
	return results, int64(len(results)), nil
}

// recordingEvents captures emitted lifecycle events without any fan-out.
type recordingEvents struct {
	mu      sync.Mutex
	entries []EventEntry
}

func (r *recordingEvents) Emit(_ context.Context, entry EventEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recordingEvents) List(context.Context, dto.EventListRequest) (dto.EventListResponse, error) {
	return dto.EventListResponse{}, nil
}

func (r *recordingEvents) Subscribe(uint) (<-chan dto.LifecycleEventResponse, func()) {
	channel := make(chan dto.LifecycleEventResponse)
	close(channel)
	return channel, func() {}
}

func (r *recordingEvents) Start(context.Context) {}

func (r *recordingEvents) types() []models.LifecycleEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]models.LifecycleEventType, 0, len(r.entries))
	for _, entry := range r.entries {
		types = append(types, entry.Type)
	}
	return types
}
