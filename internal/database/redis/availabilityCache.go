// Package cache keeps read-through copies of per-category availability.
// Entries are advisory: the ledger row is the only source of truth and every
// reserve or release invalidates the event's entry.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ds124wfegd/ems-booking/internal/entity"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "availability:"

type AvailabilityCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewAvailabilityCache(client redis.Cmdable, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{client: client, ttl: ttl}
}

func availabilityKey(eventID string) string {
	return keyPrefix + eventID
}

// Get returns the cached availability and whether it was present.
func (c *AvailabilityCache) Get(ctx context.Context, eventID string) ([]entity.CategoryAvailability, bool, error) {
	raw, err := c.client.Get(ctx, availabilityKey(eventID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read availability cache: %w", err)
	}

	var availability []entity.CategoryAvailability
	if err := json.Unmarshal(raw, &availability); err != nil {
		return nil, false, fmt.Errorf("failed to decode availability cache: %w", err)
	}
	return availability, true, nil
}

func (c *AvailabilityCache) Set(ctx context.Context, eventID string, availability []entity.CategoryAvailability) error {
	raw, err := json.Marshal(availability)
	if err != nil {
		return fmt.Errorf("failed to encode availability: %w", err)
	}
	if err := c.client.Set(ctx, availabilityKey(eventID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write availability cache: %w", err)
	}
	return nil
}

func (c *AvailabilityCache) Invalidate(ctx context.Context, eventID string) error {
	if err := c.client.Del(ctx, availabilityKey(eventID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate availability cache: %w", err)
	}
	return nil
}
