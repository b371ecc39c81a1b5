package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested page was not found in cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is corrupted.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Prometheus metrics for the page cache.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outlook_sync_page_cache_hits_total",
		Help: "Total page cache hits",
	})

	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outlook_sync_page_cache_misses_total",
		Help: "Total page cache misses",
	})

	cacheErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outlook_sync_page_cache_errors_total",
		Help: "Total page cache operation errors",
	}, []string{"operation"})
)

// DefaultTTL is how long a cached page stays fresh unless configured
// otherwise. Kept short: the head of the collection moves as mail arrives.
const DefaultTTL = 5 * time.Minute

// Manager handles page caching with a Redis backend. A nil *Manager is
// valid: every Get misses and every Set is a no-op.
type Manager struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewManager creates a page cache manager. ttl <= 0 falls back to DefaultTTL.
func NewManager(redisClient *redis.Client, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		redis: redisClient,
		ttl:   ttl,
	}
}

// Get retrieves a cached page payload.
// Returns ErrCacheMiss if the key doesn't exist or the entry is expired.
func (m *Manager) Get(ctx context.Context, key Key) ([]byte, error) {
	if m == nil || m.redis == nil {
		return nil, ErrCacheMiss
	}

	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			cacheMissesTotal.Inc()
			return nil, ErrCacheMiss
		}
		cacheErrorsTotal.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		cacheErrorsTotal.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		cacheMissesTotal.Inc()
		return nil, ErrCacheMiss
	}

	cacheHitsTotal.Inc()
	return entry.Data, nil
}

// Set stores a page payload under the manager's TTL. The Redis key expires
// together with the entry.
func (m *Manager) Set(ctx context.Context, key Key, payload []byte) error {
	if m == nil || m.redis == nil {
		return nil
	}

	now := time.Now()
	entry := Entry{
		Data:     payload,
		CachedAt: now,
		Expires:  now.Add(m.ttl),
	}

	data, err := json.Marshal(&entry)
	if err != nil {
		cacheErrorsTotal.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), data, m.ttl).Err(); err != nil {
		cacheErrorsTotal.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes a cached page.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if m == nil || m.redis == nil {
		return nil
	}

	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		cacheErrorsTotal.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
