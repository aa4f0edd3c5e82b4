package gateway

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/bobmcallan/divfolio/internal/common"
	"github.com/bobmcallan/divfolio/internal/telemetry"
)

// Cache tier names
const (
	TierShort = "short"
	TierLong  = "long"
)

// Key builds a cache key from an operation, a symbol and its parameters.
func Key(op, symbol string, params ...string) string {
	parts := make([]string, 0, 2+len(params))
	parts = append(parts, op, strings.ToUpper(symbol))
	parts = append(parts, params...)
	return strings.Join(parts, "|")
}

type entry struct {
	value    interface{}
	storedAt time.Time
}

// Store is one time-boxed cache tier. Entries expire lazily: an entry past its
// TTL is removed on the read that finds it. There is no background sweep.
// Concurrent misses on one key share a single load.
type Store struct {
	tier    string
	ttl     time.Duration
	now     func() time.Time
	items   *gocache.Cache
	loads   singleflight.Group
	metrics *telemetry.Metrics
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithClock replaces the wall clock, for tests
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// WithStoreMetrics records hits and misses
func WithStoreMetrics(m *telemetry.Metrics) StoreOption {
	return func(s *Store) {
		s.metrics = m
	}
}

// NewStore creates a cache tier with the given TTL
func NewStore(tier string, ttl time.Duration, opts ...StoreOption) *Store {
	s := &Store{
		tier: tier,
		ttl:  ttl,
		now:  time.Now,
		// expiry is tracked per entry against s.now; a zero cleanup
		// interval keeps go-cache's janitor off
		items: gocache.New(gocache.NoExpiration, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a live entry. An expired entry is evicted and reported as a miss.
func (s *Store) Get(key string) (interface{}, bool) {
	raw, ok := s.items.Get(key)
	if !ok {
		return nil, false
	}
	e := raw.(entry)
	if !common.IsFresh(e.storedAt, s.now(), s.ttl) {
		s.items.Delete(key)
		s.metrics.SetCacheEntries(s.tier, s.Len())
		return nil, false
	}
	return e.value, true
}

// Set stores value under key for one TTL
func (s *Store) Set(key string, value interface{}) {
	s.items.Set(key, entry{value: value, storedAt: s.now()}, gocache.NoExpiration)
	s.metrics.SetCacheEntries(s.tier, s.Len())
}

// Len returns the number of stored entries, expired or not
func (s *Store) Len() int {
	return s.items.ItemCount()
}

// GetOrLoad returns the cached value for key or runs load once across all
// concurrent callers, caching a successful result. Errors are never cached.
// hit reports whether the value came from the cache.
// The shared load runs under the first caller's ctx, so a waiter with a later
// deadline still fails if that ctx expires first.
func (s *Store) GetOrLoad(ctx context.Context, key string, load func(context.Context) (interface{}, error)) (value interface{}, hit bool, err error) {
	if v, ok := s.Get(key); ok {
		s.metrics.CacheLookup(s.tier, true)
		return v, true, nil
	}
	s.metrics.CacheLookup(s.tier, false)

	ch := s.loads.DoChan(key, func() (interface{}, error) {
		// a caller that lost the race to an earlier load sees its result here
		if v, ok := s.Get(key); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		s.Set(key, v)
		return v, nil
	})

	select {
	case r := <-ch:
		return r.Val, false, r.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Tiers holds the short-lived and long-lived caches
type Tiers struct {
	Short *Store // prices and dividends
	Long  *Store // fundamentals and exchange listings
}

// NewTiers creates both cache tiers sharing one clock
func NewTiers(shortTTL, longTTL time.Duration, opts ...StoreOption) *Tiers {
	return &Tiers{
		Short: NewStore(TierShort, shortTTL, opts...),
		Long:  NewStore(TierLong, longTTL, opts...),
	}
}
