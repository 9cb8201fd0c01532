package qr

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tipjar/slack-tip-server/internal/metrics"
	redisutil "github.com/tipjar/slack-tip-server/internal/redis"
	"github.com/tipjar/slack-tip-server/internal/util"
)

// Cache memoizes rendered images in Redis. Keys are derived from both the user
// and the URL, so a changed URL never resolves to an old image.
type Cache struct {
	client   *redis.Client
	renderer *Renderer
	ttl      time.Duration
	metrics  *metrics.Metrics
}

func NewCache(client *redis.Client, renderer *Renderer, ttl time.Duration, m *metrics.Metrics) *Cache {
	return &Cache{
		client:   client,
		renderer: renderer,
		ttl:      ttl,
		metrics:  m,
	}
}

// Get returns the PNG for url, rendering and storing it on a miss. Redis
// failures fall through to a fresh render.
func (c *Cache) Get(ctx context.Context, userID, url string) ([]byte, error) {
	key := redisutil.QRImageKey(util.HashKey(userID, url))

	cached, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil && len(cached) > 0:
		c.metrics.QRCacheLookup("hit")
		return cached, nil
	case err == nil, errors.Is(err, redis.Nil):
		c.metrics.QRCacheLookup("miss")
	default:
		c.metrics.QRCacheLookup("error")
		log.Warn().Err(err).Str("userId", userID).Msg("qr cache read failed, rendering")
	}

	png, err := c.renderer.Render(url)
	if err != nil {
		return nil, err
	}

	if err := c.client.Set(ctx, key, png, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("userId", userID).Msg("qr cache write failed")
	}
	return png, nil
}
