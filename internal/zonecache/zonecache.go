// Package zonecache is a read-through cache for zone policies and reserved
// names. Lookups try an in-process TTL tier, then an optional Redis tier,
// then the backing store. Missing zones are cached too, so repeated queries
// for an unknown TLD do not reach the database.
package zonecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"regcore/internal/label"
	"regcore/internal/platform/metrics"
	"regcore/pkg/platform/circuit"
	"regcore/pkg/platform/sentinel"
)

const (
	policyKeyPrefix   = "zonecache:policy:"
	reservedKeyPrefix = "zonecache:reserved:"

	tierMemory = "memory"
	tierRedis  = "redis"
	tierStore  = "store"
)

// Store is the authoritative source behind the cache.
type Store interface {
	label.PolicyLookup
	label.ReservedLookup
}

type policyEntry struct {
	policy  *label.ZonePolicy // nil when the zone has no row
	expires time.Time
}

type reservedEntry struct {
	reserved bool
	expires  time.Time
}

// redisPolicy is the Redis encoding. Missing marks a cached negative result.
type redisPolicy struct {
	Missing  bool   `json:"missing,omitempty"`
	ID       int64  `json:"id,omitempty"`
	TLD      string `json:"tld,omitempty"`
	IDNTable string `json:"idn_table,omitempty"`
}

type Cache struct {
	store   Store
	ttl     time.Duration
	redis   *redis.Client
	breaker *circuit.Breaker
	probe   time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu        sync.RWMutex
	policies  map[string]policyEntry
	reserved  map[string]reservedEntry
	nextProbe time.Time
}

type Option func(*Cache)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// WithRedis enables the shared tier. A nil client leaves it disabled.
func WithRedis(client *redis.Client) Option {
	return func(c *Cache) {
		c.redis = client
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Cache) {
		c.breaker = b
	}
}

// WithProbeInterval sets how often an open breaker lets one Redis call through.
func WithProbeInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.probe = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func New(store Store, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		store:    store,
		ttl:      ttl,
		probe:    time.Second,
		logger:   slog.Default(),
		now:      time.Now,
		policies: make(map[string]policyEntry),
		reserved: make(map[string]reservedEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = circuit.New("zonecache-redis")
	}
	return c
}

// ZonePolicy implements label.PolicyLookup.
func (c *Cache) ZonePolicy(ctx context.Context, tld string) (*label.ZonePolicy, error) {
	key := strings.ToLower(tld)

	if p, found, ok := c.memoryPolicy(key); ok {
		c.metrics.IncrementZoneCache(tierMemory, "hit")
		return policyResult(key, p, found)
	}
	c.metrics.IncrementZoneCache(tierMemory, "miss")

	if p, found, ok := c.redisPolicy(ctx, key); ok {
		c.metrics.IncrementZoneCache(tierRedis, "hit")
		c.storePolicy(key, p, found)
		return policyResult(key, p, found)
	}

	p, err := c.store.ZonePolicy(ctx, key)
	found := true
	if errors.Is(err, sentinel.ErrNotFound) {
		found = false
	} else if err != nil {
		c.metrics.IncrementZoneCache(tierStore, "error")
		return nil, err
	}
	c.metrics.IncrementZoneCache(tierStore, "load")

	c.storePolicy(key, p, found)
	c.writeRedisPolicy(ctx, key, p, found)
	return policyResult(key, p, found)
}

// IsReserved implements label.ReservedLookup.
func (c *Cache) IsReserved(ctx context.Context, name string) (bool, error) {
	key := strings.ToLower(name)

	c.mu.RLock()
	e, ok := c.reserved[key]
	c.mu.RUnlock()
	if ok && c.now().Before(e.expires) {
		c.metrics.IncrementZoneCache(tierMemory, "hit")
		return e.reserved, nil
	}
	c.metrics.IncrementZoneCache(tierMemory, "miss")

	if reserved, ok := c.redisReserved(ctx, key); ok {
		c.metrics.IncrementZoneCache(tierRedis, "hit")
		c.storeReserved(key, reserved)
		return reserved, nil
	}

	reserved, err := c.store.IsReserved(ctx, key)
	if err != nil {
		c.metrics.IncrementZoneCache(tierStore, "error")
		return false, err
	}
	c.metrics.IncrementZoneCache(tierStore, "load")

	c.storeReserved(key, reserved)
	if c.redisAllowed() {
		val := "0"
		if reserved {
			val = "1"
		}
		c.recordRedis(ctx, c.redis.Set(ctx, reservedKeyPrefix+key, val, c.ttl).Err())
	}
	return reserved, nil
}

// Invalidate drops one zone from both tiers.
func (c *Cache) Invalidate(ctx context.Context, tld string) error {
	key := strings.ToLower(tld)
	c.mu.Lock()
	delete(c.policies, key)
	c.mu.Unlock()

	if c.redis == nil {
		return nil
	}
	if err := c.redis.Del(ctx, policyKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("invalidate zone %s: %w", key, err)
	}
	return nil
}

// Purge empties the in-process tier. Redis entries expire on their own.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policies = make(map[string]policyEntry)
	c.reserved = make(map[string]reservedEntry)
}

func policyResult(key string, p *label.ZonePolicy, found bool) (*label.ZonePolicy, error) {
	if !found {
		return nil, fmt.Errorf("zone %s: %w", key, sentinel.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (c *Cache) memoryPolicy(key string) (*label.ZonePolicy, bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.policies[key]
	if !ok || !c.now().Before(e.expires) {
		return nil, false, false
	}
	return e.policy, e.policy != nil, true
}

func (c *Cache) storePolicy(key string, p *label.ZonePolicy, found bool) {
	e := policyEntry{expires: c.now().Add(c.ttl)}
	if found {
		cp := *p
		e.policy = &cp
	}
	c.mu.Lock()
	c.policies[key] = e
	c.mu.Unlock()
}

func (c *Cache) storeReserved(key string, reserved bool) {
	c.mu.Lock()
	c.reserved[key] = reservedEntry{reserved: reserved, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *Cache) redisPolicy(ctx context.Context, key string) (*label.ZonePolicy, bool, bool) {
	if !c.redisAllowed() {
		return nil, false, false
	}
	raw, err := c.redis.Get(ctx, policyKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.recordRedis(ctx, nil)
		c.metrics.IncrementZoneCache(tierRedis, "miss")
		return nil, false, false
	}
	if err != nil {
		c.recordRedis(ctx, err)
		return nil, false, false
	}
	c.recordRedis(ctx, nil)

	var rp redisPolicy
	if err := json.Unmarshal(raw, &rp); err != nil {
		c.logger.WarnContext(ctx, "discarding undecodable zone cache entry", "tld", key, "error", err)
		return nil, false, false
	}
	if rp.Missing {
		return nil, false, true
	}
	return &label.ZonePolicy{ID: rp.ID, TLD: rp.TLD, IDNTable: rp.IDNTable, Supported: true}, true, true
}

func (c *Cache) writeRedisPolicy(ctx context.Context, key string, p *label.ZonePolicy, found bool) {
	if !c.redisAllowed() {
		return
	}
	rp := redisPolicy{Missing: !found}
	if found {
		if !p.Supported {
			return
		}
		rp.ID, rp.TLD, rp.IDNTable = p.ID, p.TLD, p.IDNTable
	}
	raw, err := json.Marshal(rp)
	if err != nil {
		return
	}
	c.recordRedis(ctx, c.redis.Set(ctx, policyKeyPrefix+key, raw, c.ttl).Err())
}

func (c *Cache) redisReserved(ctx context.Context, key string) (bool, bool) {
	if !c.redisAllowed() {
		return false, false
	}
	val, err := c.redis.Get(ctx, reservedKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		c.recordRedis(ctx, nil)
		c.metrics.IncrementZoneCache(tierRedis, "miss")
		return false, false
	}
	if err != nil {
		c.recordRedis(ctx, err)
		return false, false
	}
	c.recordRedis(ctx, nil)
	return val == "1", true
}

// redisAllowed reports whether the Redis tier may be called now. While the
// breaker is open one call per probe interval goes through.
func (c *Cache) redisAllowed() bool {
	if c.redis == nil {
		return false
	}
	if !c.breaker.IsOpen() {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if now.Before(c.nextProbe) {
		return false
	}
	c.nextProbe = now.Add(c.probe)
	return true
}

func (c *Cache) recordRedis(ctx context.Context, err error) {
	if err == nil {
		if _, change := c.breaker.RecordSuccess(); change.Closed {
			c.logger.InfoContext(ctx, "zone cache redis tier recovered")
		}
		return
	}
	c.metrics.IncrementZoneCache(tierRedis, "error")
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "zone cache redis tier disabled, reading from store", "error", err)
	}
}
