package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mentorium/supervision-api/internal/dto"
)

// StatusCache memoizes composed relationship status views in Redis. It is
// strictly best-effort: every failure degrades to a store read, and every
// successful transition invalidates the entry.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewStatusCache constructs a status cache. A nil client disables caching.
func NewStatusCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *StatusCache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &StatusCache{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "status_cache").Logger(),
	}
}

func statusCacheKey(relationshipID uint) string {
	return fmt.Sprintf("supervision:status:%d", relationshipID)
}

// Get returns the cached status view, if present.
func (c *StatusCache) Get(ctx context.Context, relationshipID uint) (dto.RelationshipStatusResponse, bool) {
	if c == nil || c.client == nil {
		return dto.RelationshipStatusResponse{}, false
	}

	payload, err := c.client.Get(ctx, statusCacheKey(relationshipID)).Bytes()
	if err != nil {
		return dto.RelationshipStatusResponse{}, false
	}

	var status dto.RelationshipStatusResponse
	if err := json.Unmarshal(payload, &status); err != nil {
		return dto.RelationshipStatusResponse{}, false
	}

	return status, true
}

// Set stores the status view for the configured TTL.
func (c *StatusCache) Set(ctx context.Context, relationshipID uint, status dto.RelationshipStatusResponse) {
	if c == nil || c.client == nil {
		return
	}

	payload, err := json.Marshal(status)
	if err != nil {
		return
	}

	if err := c.client.Set(ctx, statusCacheKey(relationshipID), payload, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Uint("relationship_id", relationshipID).Msg("failed to cache status")
	}
}

// Invalidate drops the cached view after a committed transition.
func (c *StatusCache) Invalidate(ctx context.Context, relationshipID uint) {
	if c == nil || c.client == nil {
		return
	}

	if err := c.client.Del(ctx, statusCacheKey(relationshipID)).Err(); err != nil {
		c.logger.Warn().Err(err).Uint("relationship_id", relationshipID).Msg("failed to invalidate status cache")
	}
}
