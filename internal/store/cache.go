package store

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type PrefixSource interface {
	Prefix(ctx context.Context, guildID string) (string, error)
}

// PrefixCache memoizes guild prefixes, which are read on every message.
type PrefixCache struct {
	src   PrefixSource
	cache *expirable.LRU[string, string]
}

func NewPrefixCache(src PrefixSource, size int, ttl time.Duration) *PrefixCache {
	return &PrefixCache{
		src:   src,
		cache: expirable.NewLRU[string, string](size, nil, ttl),
	}
}

func (c *PrefixCache) Prefix(ctx context.Context, guildID string) (string, error) {
	if prefix, ok := c.cache.Get(guildID); ok {
		return prefix, nil
	}
	prefix, err := c.src.Prefix(ctx, guildID)
	if err != nil {
		return "", err
	}
	c.cache.Add(guildID, prefix)
	return prefix, nil
}

// Invalidate drops the cached prefix of a guild after it changed.
func (c *PrefixCache) Invalidate(guildID string) {
	c.cache.Remove(guildID)
}
