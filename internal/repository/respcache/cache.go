package respcache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kinetic-field/faultline/internal/db"
)

// Remote is an optional shared cache tier consulted on local misses and
// written through after computes. Backed by the Redis KV store in
// production.
type Remote interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache is a fixed-capacity response cache keyed by query fingerprint.
// Eviction is least-recently-used; entries additionally expire by TTL
// regardless of recency. GetOrCompute guarantees at most one concurrent
// computation per fingerprint.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	lru      *list.List
	capacity int

	flight     singleflight.Group
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger

	remote    Remote
	keyPrefix string

	// now is replaceable in tests.
	now func() time.Time
}

type entry struct {
	fingerprint string
	value       []byte
	expiresAt   time.Time
}

// New creates a response cache.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(capacity int, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		capacity:   capacity,
		cacheTotal: cacheTotal,
		logger:     logger,
		now:        time.Now,
	}
}

// WithRemote attaches the shared tier. Must be called before first use.
func (c *Cache) WithRemote(r Remote, keyPrefix string) *Cache {
	c.remote = r
	c.keyPrefix = keyPrefix
	return c
}

// Get returns the cached response for a fingerprint, or false when absent
// or past its TTL. Expired entries are removed on access. Records one hit
// or miss per call.
func (c *Cache) Get(fingerprint string) ([]byte, bool) {
	v, ok := c.lookup(fingerprint)
	if ok {
		c.incCache("hit")
	} else {
		c.incCache("miss")
	}
	return v, ok
}

// lookup is the unmetered form of Get, shared with the in-flight
// double-check so one logical request records exactly one hit or miss.
func (c *Cache) lookup(fingerprint string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[fingerprint]
	if !ok {
		return nil, false
	}

	e := elem.Value.(*entry)
	if !c.now().Before(e.expiresAt) {
		c.removeLocked(elem)
		c.logger.Debug("Cache entry expired", zap.String("fingerprint", short(fingerprint)))
		return nil, false
	}

	c.lru.MoveToFront(elem)
	return e.value, true
}

// Put stores a response under a fingerprint. A non-positive TTL expires
// immediately, so nothing is stored.
func (c *Cache) Put(fingerprint string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[fingerprint]; ok {
		e := elem.Value.(*entry)
		e.value = value
		e.expiresAt = c.now().Add(ttl)
		c.lru.MoveToFront(elem)
		return
	}

	elem := c.lru.PushFront(&entry{
		fingerprint: fingerprint,
		value:       value,
		expiresAt:   c.now().Add(ttl),
	})
	c.entries[fingerprint] = elem

	for len(c.entries) > c.capacity {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}
}

// GetOrCompute returns the cached response or computes it exactly once per
// fingerprint, even under concurrent callers ("single-flight"). Concurrent
// requesters for the same fingerprint wait on the in-flight computation and
// share its result. A failed computation is not cached; the in-flight slot
// is released so the next caller retries.
func (c *Cache) GetOrCompute(
	ctx context.Context, fingerprint string, ttl time.Duration,
	compute func(ctx context.Context) ([]byte, error),
) ([]byte, error) {
	if v, ok := c.Get(fingerprint); ok {
		return v, nil
	}

	v, err, shared := c.flight.Do(fingerprint, func() (any, error) {
		// A concurrent flight may have populated the cache between our
		// miss and claiming the flight slot. The miss is already recorded,
		// so this check stays unmetered.
		if cached, ok := c.lookup(fingerprint); ok {
			return cached, nil
		}

		if cached, ok := c.getRemote(ctx, fingerprint, ttl); ok {
			return cached, nil
		}

		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(fingerprint, value, ttl)
		c.putRemote(ctx, fingerprint, value, ttl)
		return value, nil
	})
	if err != nil {
		return nil, fmt.Errorf("compute %s: %w", short(fingerprint), err)
	}
	if shared {
		c.logger.Debug("Shared in-flight result", zap.String("fingerprint", short(fingerprint)))
	}
	return v.([]byte), nil
}

// Len returns the number of live entries, counting expired ones until their
// next access.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// getRemote consults the shared tier. Remote failures count as misses;
// the tier never blocks a compute.
func (c *Cache) getRemote(ctx context.Context, fingerprint string, ttl time.Duration) ([]byte, bool) {
	if c.remote == nil {
		return nil, false
	}

	value, err := c.remote.Get(ctx, c.remoteKey(fingerprint))
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Remote cache read failed", zap.Error(err))
		}
		return nil, false
	}

	c.Put(fingerprint, value, ttl)
	return value, true
}

// putRemote writes through to the shared tier, best effort.
func (c *Cache) putRemote(ctx context.Context, fingerprint string, value []byte, ttl time.Duration) {
	if c.remote == nil || ttl <= 0 {
		return
	}
	if err := c.remote.SetWithTTL(ctx, c.remoteKey(fingerprint), value, ttl); err != nil {
		c.logger.Warn("Remote cache write failed", zap.Error(err))
	}
}

func (c *Cache) remoteKey(fingerprint string) string {
	return c.keyPrefix + "cache:" + fingerprint
}

// removeLocked deletes an element; caller holds c.mu.
func (c *Cache) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry)
	c.lru.Remove(elem)
	delete(c.entries, e.fingerprint)
}

func (c *Cache) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func short(fingerprint string) string {
	if len(fingerprint) > 16 {
		return fingerprint[:16]
	}
	return fingerprint
}
