package envelope

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	apperrors "pdsno.io/controller/internal/pkg/errors"
)

// NonceStore tracks consumed (senderID, nonce) pairs to reject replay.
// Consume returns true the first time a nonce is seen and false (no error)
// on replay.
type NonceStore interface {
	Consume(ctx context.Context, senderID, nonce string, ttl time.Duration) (bool, error)
}

// nonceCacheGauge tracks the LRU store's fill ratio; the approval/discovery
// dashboards alert when it crosses a configured threshold.
var nonceCacheGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "pdsno",
	Subsystem: "envelope",
	Name:      "nonce_cache_fill_ratio",
	Help:      "Fraction of the local nonce LRU cache currently occupied.",
})

func init() {
	prometheus.MustRegister(nonceCacheGauge)
}

type lruEntry struct {
	expiresAt time.Time
}

// LRUNonceStore is a process-local, size-bounded nonce cache for a single
// controller instance with no shared-state peers.
type LRUNonceStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, lruEntry]
	size  int
}

// NewLRUNonceStore creates an LRU-backed nonce store holding up to size
// entries.
func NewLRUNonceStore(size int) (*LRUNonceStore, error) {
	if size <= 0 {
		size = 100_000
	}
	c, err := lru.New[string, lruEntry](size)
	if err != nil {
		return nil, err
	}
	return &LRUNonceStore{cache: c, size: size}, nil
}

func (s *LRUNonceStore) key(senderID, nonce string) string { return senderID + ":" + nonce }

// Consume marks (senderID, nonce) seen; rejects replay within ttl.
func (s *LRUNonceStore) Consume(ctx context.Context, senderID, nonce string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	key := s.key(senderID, nonce)
	if entry, ok := s.cache.Get(key); ok {
		if entry.expiresAt.After(now) {
			return false, nil
		}
	}
	s.cache.Add(key, lruEntry{expiresAt: now.Add(ttl)})
	nonceCacheGauge.Set(float64(s.cache.Len()) / float64(s.size))
	return true, nil
}

// RedisNonceStore is a shared, distributed nonce store for a multi-process
// controller deployment, using SET NX EX for atomic check-and-set.
type RedisNonceStore struct {
	client *redis.Client
	prefix string
}

// NewRedisNonceStore creates a Redis-backed nonce store.
func NewRedisNonceStore(client *redis.Client) *RedisNonceStore {
	return &RedisNonceStore{client: client, prefix: "pdsno:nonce:"}
}

// Consume atomically sets the nonce marker if absent.
func (s *RedisNonceStore) Consume(ctx context.Context, senderID, nonce string, ttl time.Duration) (bool, error) {
	key := s.prefix + senderID + ":" + nonce
	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeTransportUnavailable, "redis nonce store unavailable", 503)
	}
	return ok, nil
}
