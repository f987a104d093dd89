// Package cache keeps rendered bundle documents in Redis so repeated peeks
// return the same bytes without re-rendering.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/edi-stack/edi/internal/metrics"
	"github.com/telhawk-systems/edi-stack/edi/internal/models"
)

const keyPrefix = "edi:document:"

// DocumentCache caches rendered documents per bundle and format.
type DocumentCache struct {
	redis   *redis.Client
	ttl     time.Duration
	enabled bool
}

// NewDocumentCache creates a cache. A nil client or enabled=false gives a
// pass-through cache that never hits.
func NewDocumentCache(client *redis.Client, ttl time.Duration, enabled bool) *DocumentCache {
	return &DocumentCache{redis: client, ttl: ttl, enabled: enabled}
}

// NewClient connects to Redis at url and pings it.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

func (c *DocumentCache) IsEnabled() bool {
	return c.enabled && c.redis != nil
}

// Get returns the cached document. ok is false on a miss.
func (c *DocumentCache) Get(ctx context.Context, bundleID uuid.UUID, format models.Format) (doc []byte, ok bool, err error) {
	if !c.IsEnabled() {
		return nil, false, nil
	}

	doc, err = c.redis.Get(ctx, documentKey(bundleID, format)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.DocumentCacheHits.WithLabelValues("miss").Inc()
		return nil, false, nil
	}
	if err != nil {
		metrics.DocumentCacheHits.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("failed to read cached document: %w", err)
	}
	metrics.DocumentCacheHits.WithLabelValues("hit").Inc()
	return doc, true, nil
}

// Set stores doc. An existing entry is kept so concurrent peeks agree on
// the first rendering.
func (c *DocumentCache) Set(ctx context.Context, bundleID uuid.UUID, format models.Format, doc []byte) error {
	if !c.IsEnabled() {
		return nil
	}
	if err := c.redis.SetNX(ctx, documentKey(bundleID, format), doc, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache document: %w", err)
	}
	return nil
}

// Invalidate drops every cached rendering of a bundle.
func (c *DocumentCache) Invalidate(ctx context.Context, bundleID uuid.UUID) error {
	if !c.IsEnabled() {
		return nil
	}
	keys := []string{
		documentKey(bundleID, models.FormatXML),
		documentKey(bundleID, models.FormatEbix),
		documentKey(bundleID, models.FormatJSON),
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached documents: %w", err)
	}
	return nil
}

func documentKey(bundleID uuid.UUID, format models.Format) string {
	return keyPrefix + bundleID.String() + ":" + format.Code()
}
