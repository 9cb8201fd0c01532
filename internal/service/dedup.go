package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisutil "github.com/tipjar/slack-tip-server/internal/redis"
)

type Deduplicator interface {
	// FirstSeen reports whether key is being processed for the first time
	// within the dedup window.
	FirstSeen(ctx context.Context, key string) bool
	// Forget releases key so a later delivery of the same payload is processed.
	Forget(ctx context.Context, key string)
}

// ActionDeduplicator is a short-lived seen-set of interaction payloads.
type ActionDeduplicator struct {
	client *redis.Client
	ttl    time.Duration
}

func NewActionDeduplicator(client *redis.Client, ttl time.Duration) *ActionDeduplicator {
	return &ActionDeduplicator{client: client, ttl: ttl}
}

func (d *ActionDeduplicator) FirstSeen(ctx context.Context, key string) bool {
	if key == "" {
		return true
	}

	ok, err := d.client.SetNX(ctx, redisutil.ActionSeenKey(key), time.Now().Unix(), d.ttl).Result()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("action dedup check failed, processing anyway")
		return true
	}
	return ok
}

func (d *ActionDeduplicator) Forget(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := d.client.Del(ctx, redisutil.ActionSeenKey(key)).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to release action dedup key")
	}
}
