package cache

import (
	"context"
	"time"

	"dailyfeed/internal/models"
	"dailyfeed/internal/serviceinterfaces"
)

const activeTopicsKey = "active_topics"

// CachedCatalog serves ListActiveTopics from a TTL cache and passes every other call through
type CachedCatalog struct {
	serviceinterfaces.CatalogStore
	topics *TTL[string, []models.Topic]
}

// NewCachedCatalog wraps next with an active-topics cache
func NewCachedCatalog(next serviceinterfaces.CatalogStore, ttl time.Duration, now func() time.Time) *CachedCatalog {
	return &CachedCatalog{
		CatalogStore: next,
		topics:       NewTTL[string, []models.Topic](ttl, now),
	}
}

// ListActiveTopics returns a copy so callers cannot mutate the cached slice
func (c *CachedCatalog) ListActiveTopics(ctx context.Context) ([]models.Topic, error) {
	if topics, ok := c.topics.Get(activeTopicsKey); ok {
		return append([]models.Topic(nil), topics...), nil
	}

	topics, err := c.CatalogStore.ListActiveTopics(ctx)
	if err != nil {
		return nil, err
	}
	c.topics.Set(activeTopicsKey, append([]models.Topic(nil), topics...))
	return topics, nil
}

// InvalidateTopics forces the next ListActiveTopics to hit the store
func (c *CachedCatalog) InvalidateTopics() {
	c.topics.Invalidate(activeTopicsKey)
}
