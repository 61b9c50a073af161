// Package cache provides the short-lived read-through cache in front of analytics queries.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache stores opaque values for a bounded time
type Cache interface {
	// Get returns the value stored under key and whether it was present
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Valkey is a Cache on a Valkey or Redis server
type Valkey struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewValkey wraps client; keys are namespaced with prefix and expire after ttl
func NewValkey(client redis.Cmdable, prefix string, ttl time.Duration) *Valkey {
	return &Valkey{client: client, prefix: prefix, ttl: ttl}
}

func (v *Valkey) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := v.client.Get(ctx, v.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("valkey get %s: %w", key, err)
	}
	return value, true, nil
}

func (v *Valkey) Set(ctx context.Context, key string, value []byte) error {
	if err := v.client.Set(ctx, v.prefix+key, value, v.ttl).Err(); err != nil {
		return fmt.Errorf("valkey set %s: %w", key, err)
	}
	return nil
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// Memory is an in-process Cache used when no Valkey endpoint is configured
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemory creates an in-process cache whose entries expire after ttl
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(entry.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
		}
	}
	m.entries[key] = memoryEntry{value: value, expires: now.Add(m.ttl)}
	return nil
}

// GetOrCompute returns the cached JSON value of key, or computes, stores and
// returns it. Cache failures are logged and bypassed; only compute errors are
// returned. hit reports whether the value came from the cache.
func GetOrCompute[T any](ctx context.Context, c Cache, log *zap.Logger, key string, compute func(context.Context) (T, error)) (value T, hit bool, err error) {
	if c == nil {
		value, err = compute(ctx)
		return value, false, err
	}

	raw, ok, err := c.Get(ctx, key)
	if err != nil {
		log.Warn("Query cache read failed", zap.String("key", key), zap.Error(err))
	}
	if ok {
		if err := json.Unmarshal(raw, &value); err == nil {
			return value, true, nil
		}
		log.Warn("Discarding undecodable cache entry", zap.String("key", key))
	}

	value, err = compute(ctx)
	if err != nil {
		return value, false, err
	}

	raw, err = json.Marshal(value)
	if err != nil {
		log.Warn("Query result is not cacheable", zap.String("key", key), zap.Error(err))
		return value, false, nil
	}
	if err := c.Set(ctx, key, raw); err != nil {
		log.Warn("Query cache write failed", zap.String("key", key), zap.Error(err))
	}

	return value, false, nil
}
