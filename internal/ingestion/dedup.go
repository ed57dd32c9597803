package ingestion

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"receipthub/internal/constants"
	"receipthub/internal/logger"
)

// Dedup is a best-effort fast path for redelivered events. The receipt
// store remains the authority: a Redis miss or outage only costs an extra
// store lookup, never a duplicate receipt.
type Dedup struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewDedup(client *redis.Client, ttlSeconds int, log logger.Logger) *Dedup {
	if ttlSeconds <= 0 {
		ttlSeconds = constants.DefaultDedupTTLSeconds
	}
	return &Dedup{
		client: client,
		ttl:    time.Duration(ttlSeconds) * time.Second,
		logger: log,
	}
}

// MarkIfFirst records the event id and reports whether this is the first
// sighting within the TTL window. Redis errors are reported as first
// sightings so processing falls through to the authoritative check.
func (d *Dedup) MarkIfFirst(ctx context.Context, eventID string) bool {
	if d == nil || d.client == nil {
		return true
	}

	ok, err := d.client.SetNX(ctx, constants.CacheKeyPrefixEvent+eventID, 1, d.ttl).Result()
	if err != nil {
		d.logger.WarnwCtx(ctx, "Dedup cache unavailable, falling back to store lookup",
			"error", err,
			"event_id", eventID,
		)
		return true
	}
	return ok
}

// Clear removes the dedup marker so a failed event can be reprocessed on
// redelivery.
func (d *Dedup) Clear(ctx context.Context, eventID string) {
	if d == nil || d.client == nil {
		return
	}
	if err := d.client.Del(ctx, constants.CacheKeyPrefixEvent+eventID).Err(); err != nil {
		d.logger.WarnwCtx(ctx, "Failed to clear dedup marker",
			"error", err,
			"event_id", eventID,
		)
	}
}
