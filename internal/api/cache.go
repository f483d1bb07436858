package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"studiorent/internal/events"
)

// CalendarCache stores rendered calendar views in Redis. Each studio has a
// version counter that is bumped on every calendar change, so stale views are
// never read again and expire on their own.
type CalendarCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCalendarCache returns nil when caching is disabled.
func NewCalendarCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *CalendarCache {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &CalendarCache{
		redis:  client,
		ttl:    ttl,
		logger: logger.With().Str("component", "calendar_cache").Logger(),
	}
}

func versionKey(studioID string) string {
	return "calendar:version:" + studioID
}

func (c *CalendarCache) viewKey(ctx context.Context, studioID string, start, end time.Time) (string, error) {
	version, err := c.redis.Get(ctx, versionKey(studioID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("calendar:view:%s:%d:%d:%d", studioID, version, start.UnixMilli(), end.UnixMilli()), nil
}

func (c *CalendarCache) readCache(ctx context.Context, studioID string, start, end time.Time, out any) bool {
	if c == nil {
		return false
	}
	key, err := c.viewKey(ctx, studioID, start, end)
	if err != nil {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *CalendarCache) writeCache(ctx context.Context, studioID string, start, end time.Time, val any) {
	if c == nil {
		return
	}
	key, err := c.viewKey(ctx, studioID, start, end)
	if err != nil {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

// Invalidate bumps the studio's version counter.
func (c *CalendarCache) Invalidate(ctx context.Context, studioID string) error {
	if c == nil {
		return nil
	}
	return c.redis.Incr(ctx, versionKey(studioID)).Err()
}

// Subscribe invalidates cached views whenever the studio's calendar changes.
func (c *CalendarCache) Subscribe(bus *events.Bus) {
	if c == nil || bus == nil {
		return
	}
	bus.Subscribe(func(e events.Event) error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := c.Invalidate(ctx, e.StudioID); err != nil {
			c.logger.Warn().Err(err).Str("studio_id", e.StudioID).Msg("Failed to invalidate calendar cache")
			return err
		}
		return nil
	},
		events.BlockCreated,
		events.BlockUpdated,
		events.BlockDeleted,
		events.HappyHoursReplaced,
		events.CalendarSettingsSaved,
		events.StudioSynced,
	)
}
