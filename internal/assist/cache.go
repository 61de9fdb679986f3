package assist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss indicates a cache miss.
var ErrCacheMiss = errors.New("cache miss")

// Cache stores collaborator answers.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache implements Cache on Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisCacheFromClient(client, cfg.Prefix), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "schemafix:"
	}
	return &RedisCache{client: client, prefix: prefix}
}

// Get retrieves a value from cache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

// Set stores a value in cache with TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// MemoryCache is an in-process Cache used when no Redis is configured.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

// Get retrieves a value; expired entries read as misses.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !e.expires.IsZero() && c.now().After(e.expires) {
		delete(c.entries, key)
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores a value. A zero ttl never expires.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

// CachedRepairer answers repair requests from a cache and forwards only the
// misses to the wrapped repairer, in one batch.
type CachedRepairer struct {
	next   CellRepairer
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedRepairer wraps next with cache. Answers are kept for ttl.
func NewCachedRepairer(next CellRepairer, cache Cache, ttl time.Duration, logger *slog.Logger) *CachedRepairer {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedRepairer{next: next, cache: cache, ttl: ttl, logger: logger}
}

func repairCacheKey(r RepairRequest) string {
	sum := sha256.Sum256([]byte(r.Field + "\x00" + r.Value))
	return "repair:" + hex.EncodeToString(sum[:])
}

// RepairCells implements CellRepairer. Cache faults are logged and treated
// as misses.
func (c *CachedRepairer) RepairCells(ctx context.Context, reqs []RepairRequest) ([]string, error) {
	out := make([]string, len(reqs))

	var misses []RepairRequest
	var missIdx []int
	for i, r := range reqs {
		val, err := c.cache.Get(ctx, repairCacheKey(r))
		if err == nil {
			out[i] = string(val)
			continue
		}
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn("repair cache read failed", "field", r.Field, "error", err)
		}
		misses = append(misses, r)
		missIdx = append(missIdx, i)
	}

	if len(misses) == 0 {
		return out, nil
	}

	answers, err := c.next.RepairCells(ctx, misses)
	if err != nil {
		return nil, err
	}

	for k, i := range missIdx {
		if k >= len(answers) {
			break
		}
		out[i] = answers[k]
		if err := c.cache.Set(ctx, repairCacheKey(misses[k]), []byte(answers[k]), c.ttl); err != nil {
			c.logger.Warn("repair cache write failed", "field", misses[k].Field, "error", err)
		}
	}
	return out, nil
}
