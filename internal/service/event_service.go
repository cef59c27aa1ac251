package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/mentorium/supervision-api/internal/dto"
	"github.com/mentorium/supervision-api/internal/models"
	"github.com/mentorium/supervision-api/internal/observability"
	"github.com/mentorium/supervision-api/internal/repository"
)

const eventBufferSize = 16

// EventEntry captures a lifecycle event to be recorded and fanned out. Emit
// is only ever called after the store write for the transition has committed.
type EventEntry struct {
	Type           models.LifecycleEventType
	RelationshipID uint
	ActorID        uint
	ActorRole      models.ActorRole
	Summary        string
	Metadata       map[string]interface{}
}

// EventService records lifecycle events and streams them to the
// activity/notification collaborator.
type EventService interface {
	Emit(ctx context.Context, entry EventEntry)
	List(ctx context.Context, req dto.EventListRequest) (dto.EventListResponse, error)
	Subscribe(relationshipID uint) (<-chan dto.LifecycleEventResponse, func())
	Start(ctx context.Context)
}

type eventService struct {
	repo         repository.LifecycleEventRepository
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	broker       *eventBroker
	nodeID       string
}

type eventEnvelope struct {
	Source string                     `json:"source"`
	Event  dto.LifecycleEventResponse `json:"event"`
	SentAt time.Time                  `json:"sent_at"`
}

// subscribers are keyed by relationship id; key 0 receives every event.
type eventBroker struct {
	mu          sync.RWMutex
	subscribers map[uint]map[chan dto.LifecycleEventResponse]struct{}
}

// NewEventService constructs the lifecycle event service. The redis client
// and nats connection are both optional; whichever is present carries the
// cross-node fan-out.
func NewEventService(repo repository.LifecycleEventRepository, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) EventService {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":events"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".events"
	}

	return &eventService{
		repo:         repo,
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "event_service").Logger(),
		broker: &eventBroker{
			subscribers: make(map[uint]map[chan dto.LifecycleEventResponse]struct{}),
		},
		nodeID: uuid.NewString(),
	}
}

func (s *eventService) Start(ctx context.Context) {
	if s.redis != nil && s.redisChannel != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

// Emit persists the audit row and fans the event out. It is best-effort by
// contract: the transition has already committed, so failures here are logged
// and never propagated back to the caller.
func (s *eventService) Emit(ctx context.Context, entry EventEntry) {
	metadata := datatypes.JSONMap{}
	for key, value := range entry.Metadata {
		metadata[key] = value
	}

	model := models.LifecycleEvent{
		Type:           entry.Type,
		RelationshipID: entry.RelationshipID,
		ActorID:        entry.ActorID,
		ActorRole:      entry.ActorRole,
		Summary:        entry.Summary,
		Metadata:       metadata,
	}

	if err := s.repo.Create(ctx, &model); err != nil {
		s.logger.Error().Err(err).Str("type", string(entry.Type)).
			Uint("relationship_id", entry.RelationshipID).
			Msg("failed to persist lifecycle event")
		return
	}

	response := dto.NewLifecycleEventResponse(model)
	s.broker.broadcast(response)
	if err := s.publish(ctx, response); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish lifecycle event to broker")
	}

	observability.EventsPublished().WithLabelValues(string(entry.Type)).Inc()
}

func (s *eventService) List(ctx context.Context, req dto.EventListRequest) (dto.EventListResponse, error) {
	filter := repository.LifecycleEventFilter{
		Page:     req.Page,
		PageSize: req.PageSize,
		Type:     models.LifecycleEventType(strings.TrimSpace(req.Type)),
	}
	if req.RelationshipID > 0 {
		filter.RelationshipID = &req.RelationshipID
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}

	events, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.EventListResponse{}, wrapStoreError(err)
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

	return dto.EventListResponse{
		Items:      dto.NewLifecycleEventResponseSlice(events),
		Pagination: pagination,
	}, nil
}

// Subscribe registers a live feed listener. relationshipID 0 subscribes to
// every relationship.
func (s *eventService) Subscribe(relationshipID uint) (<-chan dto.LifecycleEventResponse, func()) {
	channel := make(chan dto.LifecycleEventResponse, eventBufferSize)

	s.broker.subscribe(relationshipID, channel)
	observability.FeedClientsActive().Inc()

	cleanup := func() {
		s.broker.unsubscribe(relationshipID, channel)
		observability.FeedClientsActive().Dec()
	}

	return channel, cleanup
}

func (s *eventService) publish(ctx context.Context, event dto.LifecycleEventResponse) error {
	envelope := eventEnvelope{
		Source: s.nodeID,
		Event:  event,
		SentAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisChannel != "" {
		if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (s *eventService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("lifecycle event redis subscription closed")
			return
		}
		s.handleEnvelope([]byte(msg.Payload))
	}
}

func (s *eventService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "supervision-events", func(msg *nats.Msg) {
		s.handleEnvelope(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats events subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain lifecycle event nats subscription")
		}
	}()
}

func (s *eventService) handleEnvelope(payload []byte) {
	var envelope eventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("invalid lifecycle event payload")
		return
	}

	if envelope.Source == s.nodeID {
		return
	}

	s.broker.broadcast(envelope.Event)
}

func (b *eventBroker) subscribe(relationshipID uint, ch chan dto.LifecycleEventResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[relationshipID]; !exists {
		b.subscribers[relationshipID] = make(map[chan dto.LifecycleEventResponse]struct{})
	}
	b.subscribers[relationshipID][ch] = struct{}{}
}

func (b *eventBroker) unsubscribe(relationshipID uint, ch chan dto.LifecycleEventResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[relationshipID]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, relationshipID)
		}
	}
}

func (b *eventBroker) broadcast(event dto.LifecycleEventResponse) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, key := range []uint{event.RelationshipID, 0} {
		for ch := range b.subscribers[key] {
			select {
			case ch <- event:
			default:
			}
		}
	}
}
