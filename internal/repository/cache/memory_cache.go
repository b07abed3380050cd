package cache

import (
	"context"
	"strings"
	"time"

	"docchat-be/pkg/chat"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

type MemoryCache struct {
	cache *gocache.Cache
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	// Expired items are purged every 10 minutes
	return &MemoryCache{
		cache: gocache.New(ttl, 10*time.Minute),
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]chat.ContextItem, bool) {
	if x, found := c.cache.Get(key); found {
		return chat.CloneContext(x.([]chat.ContextItem)), true
	}
	return nil, false
}

func (c *MemoryCache) Set(_ context.Context, _ uuid.UUID, key string, items []chat.ContextItem) {
	c.cache.Set(key, chat.CloneContext(items), gocache.DefaultExpiration)
}

func (c *MemoryCache) InvalidateUser(_ context.Context, userId uuid.UUID) {
	prefix := userPrefix(userId)
	for key := range c.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			c.cache.Delete(key)
		}
	}
}
