package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Store is a process-wide string cache with per-key TTLs. It backs the
// panel session cache, callback debounce, language preferences and other
// short-lived shared state.
type Store interface {
	// Get returns the value for key, or false if absent or expired.
	Get(ctx context.Context, key string) (string, bool)
	// Set stores value under key for ttl. ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration)
	// SetNX stores value only if key is absent. Returns true if stored.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) bool
	// Delete removes key.
	Delete(ctx context.Context, key string)
}

type redisStore struct {
	client *redis.Client
}

func (s *redisStore) Get(ctx context.Context, key string) (string, bool) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (s *redisStore) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	_ = s.client.Set(ctx, key, value, ttl).Err()
}

func (s *redisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) bool {
	if ttl < 0 {
		ttl = 0
	}
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false
	}
	return ok
}

func (s *redisStore) Delete(ctx context.Context, key string) {
	_ = s.client.Del(ctx, key).Err()
}

type memoryStore struct {
	c *gocache.Cache
}

// NewMemory creates an in-process Store. Used directly in tests and as the
// fallback when Redis is unreachable.
func NewMemory() Store {
	return &memoryStore{c: gocache.New(gocache.NoExpiration, 10*time.Minute)}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, bool) {
	v, ok := s.c.Get(key)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

func (s *memoryStore) Set(_ context.Context, key, value string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	s.c.Set(key, value, ttl)
}

func (s *memoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return s.c.Add(key, value, ttl) == nil
}

func (s *memoryStore) Delete(_ context.Context, key string) {
	s.c.Delete(key)
}

// New builds a Redis-backed Store and falls back to in-memory when Redis
// is unreachable. The returned error reports the fallback reason; the
// Store is usable either way.
func New(addr, pass string, db int) (Store, error) {
	if addr == "" {
		return NewMemory(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pass,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return NewMemory(), err
	}

	return &redisStore{client: client}, nil
}
