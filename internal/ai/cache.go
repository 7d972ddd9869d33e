package ai

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// textCache stores small string payloads with a TTL. The Redis backend
// survives restarts; the in-memory one is used when Redis is unavailable.
type textCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Put(ctx context.Context, key, value string)
}

// cacheKey builds the idempotency key for a (tender, intent) pair. Both parts
// are lowercased so that case variations of the same tender hit the same entry.
func cacheKey(tenderName, filterIntent string) string {
	content := strings.ToLower(strings.TrimSpace(tenderName)) + "|" + strings.ToLower(strings.TrimSpace(filterIntent))
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

func textHashKey(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// newTextCache picks the Redis backend when a client is provided.
func newTextCache(rdb *redis.Client, prefix string, ttl time.Duration, maxEntries int) textCache {
	if rdb != nil {
		return &redisTextCache{rdb: rdb, prefix: prefix, ttl: ttl}
	}
	return newMemoryTextCache(ttl, maxEntries)
}

type redisTextCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func (c *redisTextCache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.rdb.Get(ctx, c.prefix+key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		log.Printf("[AICache] redis get failed: %v", err)
		return "", false
	}
	return val, true
}

func (c *redisTextCache) Put(ctx context.Context, key, value string) {
	if err := c.rdb.Set(ctx, c.prefix+key, value, c.ttl).Err(); err != nil {
		log.Printf("[AICache] redis set failed: %v", err)
	}
}

type memoryEntry struct {
	value    string
	storedAt time.Time
}

type memoryTextCache struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func newMemoryTextCache(ttl time.Duration, maxEntries int) *memoryTextCache {
	return &memoryTextCache{
		entries:    make(map[string]memoryEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *memoryTextCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		delete(c.entries, key)
		return "", false
	}
	return entry.value, true
}

func (c *memoryTextCache) Put(_ context.Context, key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{value: value, storedAt: c.now()}
	if len(c.entries) > c.maxEntries {
		c.evictOldest(c.maxEntries / 5)
	}
}

// evictOldest drops the n oldest entries. Called with the lock held.
func (c *memoryTextCache) evictOldest(n int) {
	type aged struct {
		key      string
		storedAt time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, storedAt: e.storedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].storedAt.Before(all[j].storedAt) })
	if n > len(all) {
		n = len(all)
	}
	for _, e := range all[:n] {
		delete(c.entries, e.key)
	}
}
