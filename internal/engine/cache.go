package engine

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// TranscriptCache is a 2-tier cache for fetched transcripts: L1 in-memory +
// L2 Redis. L1 is fast but lost on restart; L2 survives restarts so repeated
// runs and the MCP surface do not refetch captions. Owned by the transcript
// provider, not package-global.
type TranscriptCache struct {
	l1         sync.Map      // key → *cacheEntry
	rdb        *redis.Client // nil if Redis unavailable
	ttl        time.Duration
	maxEntries int
}

type cacheEntry struct {
	text      string
	expiresAt time.Time
}

// Cache metrics — atomic counters for thread-safe access.
var (
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
)

// CacheStats returns cumulative cache hit/miss counts.
func CacheStats() (hits, misses int64) {
	return cacheHits.Load(), cacheMisses.Load()
}

// NewTranscriptCache sets up the 2-tier cache. redisURL can be empty to
// disable L2.
func NewTranscriptCache(redisURL string, ttl time.Duration, maxEntries int) *TranscriptCache {
	c := &TranscriptCache{ttl: ttl, maxEntries: maxEntries}

	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Warn("cache: invalid redis URL, L2 disabled", slog.Any("error", err))
		} else {
			rdb := redis.NewClient(opts)
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				slog.Warn("cache: redis unreachable, L2 disabled", slog.Any("error", err))
			} else {
				c.rdb = rdb
				slog.Info("cache: L2 redis connected", slog.String("addr", opts.Addr))
			}
		}
	}

	slog.Debug("cache: initialized", slog.Duration("ttl", ttl), slog.Bool("redis", c.rdb != nil))
	return c
}

// CacheKey builds a deterministic cache key from parts.
func CacheKey(parts ...string) string {
	joined := strings.Join(parts, "|")
	hash := sha256.Sum256([]byte(joined))
	return fmt.Sprintf("gd:%x", hash[:12]) // 24-char hex prefix
}

// Get tries L1, then L2. On L2 hit, populates L1.
func (c *TranscriptCache) Get(ctx context.Context, key string) (string, bool) {
	if c == nil {
		return "", false
	}

	if val, ok := c.l1.Load(key); ok {
		entry := val.(*cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			cacheHits.Add(1)
			return entry.text, true
		}
		c.l1.Delete(key) // expired
	}

	if c.rdb != nil {
		text, err := c.rdb.Get(ctx, key).Result()
		if err == nil {
			cacheHits.Add(1)
			c.l1.Store(key, &cacheEntry{text: text, expiresAt: time.Now().Add(c.ttl)})
			return text, true
		}
	}

	cacheMisses.Add(1)
	return "", false
}

// Put stores into both tiers. L2 write failures are logged, never fatal.
func (c *TranscriptCache) Put(ctx context.Context, key, text string) {
	if c == nil || text == "" {
		return
	}

	c.evictIfFull()
	c.l1.Store(key, &cacheEntry{text: text, expiresAt: time.Now().Add(c.ttl)})

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, text, c.ttl).Err(); err != nil {
			slog.Debug("cache: L2 write failed", slog.Any("error", err))
		}
	}
}

// evictIfFull drops expired entries, then arbitrary ones, to stay under
// maxEntries. Called before each insert; cheap because maxEntries is small.
func (c *TranscriptCache) evictIfFull() {
	if c.maxEntries <= 0 {
		return
	}
	count := 0
	c.l1.Range(func(_, _ any) bool {
		count++
		return true
	})
	if count < c.maxEntries {
		return
	}
	now := time.Now()
	removed := 0
	c.l1.Range(func(k, v any) bool {
		if now.After(v.(*cacheEntry).expiresAt) {
			c.l1.Delete(k)
			removed++
		}
		return true
	})
	if removed > 0 {
		return
	}
	// Nothing expired: drop enough arbitrary entries to make room.
	toDrop := count - c.maxEntries + 1
	c.l1.Range(func(k, _ any) bool {
		c.l1.Delete(k)
		toDrop--
		return toDrop > 0
	})
}
