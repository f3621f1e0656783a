// Package cache holds computed leads search results in a bounded, expiring
// in-process store with at most one computation in flight per key.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"

	"lead_portal_backend/internal/search/query"
)

// ErrUnavailable is returned when a cache tier cannot be used. Callers
// should fall back to the backing store.
var ErrUnavailable = errors.New("search cache unavailable")

// ComputeFunc produces the value for a missing key.
type ComputeFunc[V any] func(ctx context.Context) (V, error)

// Entry is a stored result. Entries are never mutated after insertion.
type Entry[V any] struct {
	Key        query.Key
	Value      V
	InsertedAt time.Time
	TTL        time.Duration
}

func (e *Entry[V]) expired(now time.Time) bool {
	return !now.Before(e.InsertedAt.Add(e.TTL))
}

// Options configures a Store.
type Options struct {
	MaxEntries int
	DefaultTTL time.Duration
	Now        func() time.Time
}

// Stats is a snapshot of store counters.
type Stats struct {
	Entries       int   `json:"entries"`
	InFlight      int   `json:"inFlight"`
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Computations  int64 `json:"computations"`
	Evictions     int64 `json:"evictions"`
	Expirations   int64 `json:"expirations"`
	Invalidations int64 `json:"invalidations"`
}

type flight struct {
	key   query.Key
	stale bool
}

// Store is safe for concurrent use.
type Store[V any] struct {
	mu         sync.Mutex
	lru        *simplelru.LRU[string, *Entry[V]]
	flights    map[string]*flight
	group      singleflight.Group
	defaultTTL time.Duration
	now        func() time.Time
	closed     bool
	stats      Stats
}

// New creates a Store holding at most opts.MaxEntries results.
func New[V any](opts Options) (*Store[V], error) {
	if opts.MaxEntries < 1 {
		return nil, errors.New("cache: MaxEntries must be at least 1")
	}
	if opts.DefaultTTL <= 0 {
		return nil, errors.New("cache: DefaultTTL must be positive")
	}
	lru, err := simplelru.NewLRU[string, *Entry[V]](opts.MaxEntries, nil)
	if err != nil {
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store[V]{
		lru:        lru,
		flights:    make(map[string]*flight),
		defaultTTL: opts.DefaultTTL,
		now:        now,
	}, nil
}

// Get returns the live entry for key. Expired entries are removed and
// reported as a miss.
func (s *Store[V]) Get(key query.Key) (Entry[V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Entry[V]{}, false
	}
	entry, ok := s.lookupLocked(key.String())
	if !ok {
		return Entry[V]{}, false
	}
	return *entry, true
}

// InFlight reports whether a computation for key is running.
func (s *Store[V]) InFlight(key query.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.flights[key.String()]
	return ok
}

// GetOrCompute returns the stored value for key, or runs compute once for
// all concurrent callers of the same key. hit is true only when the value
// came from a stored entry. The computation runs detached from the
// caller's cancellation so that other waiters still get a result; a
// cancelled caller returns ctx.Err() without waiting. Failed computations
// are never stored.
func (s *Store[V]) GetOrCompute(ctx context.Context, key query.Key, ttl time.Duration, compute ComputeFunc[V]) (V, bool, error) {
	var zero V
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	k := key.String()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return zero, false, ErrUnavailable
	}
	if entry, ok := s.lookupLocked(k); ok {
		s.stats.Hits++
		s.mu.Unlock()
		return entry.Value, true, nil
	}
	s.stats.Misses++
	s.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(k, func() (any, error) {
		return s.run(detached, key, k, ttl, compute)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		return res.Val.(V), false, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

func (s *Store[V]) run(ctx context.Context, key query.Key, k string, ttl time.Duration, compute ComputeFunc[V]) (V, error) {
	f := &flight{key: key}
	s.mu.Lock()
	s.flights[k] = f
	s.mu.Unlock()

	value, err := compute(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flights[k] == f {
		delete(s.flights, k)
	}
	s.stats.Computations++
	if err != nil {
		return value, err
	}
	if f.stale || s.closed {
		return value, nil
	}
	if s.lru.Add(k, &Entry[V]{Key: key, Value: value, InsertedAt: s.now(), TTL: ttl}) {
		s.stats.Evictions++
	}
	return value, nil
}

// Invalidate removes every entry whose key matches pred and marks matching
// in-flight computations stale, so their results are returned to their
// waiters but not stored. Callers arriving afterwards start a fresh
// computation. It returns the number of entries and flights affected.
func (s *Store[V]) Invalidate(pred func(query.Key) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, k := range s.lru.Keys() {
		entry, ok := s.lru.Peek(k)
		if !ok || !pred(entry.Key) {
			continue
		}
		s.lru.Remove(k)
		removed++
	}
	for k, f := range s.flights {
		if !pred(f.key) {
			continue
		}
		f.stale = true
		delete(s.flights, k)
		s.group.Forget(k)
		removed++
	}
	s.stats.Invalidations += int64(removed)
	return removed
}

// InvalidateAll drops every entry and marks every in-flight computation
// stale.
func (s *Store[V]) InvalidateAll() int {
	return s.Invalidate(func(query.Key) bool { return true })
}

// Sweep removes expired entries and returns how many were dropped.
func (s *Store[V]) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	dropped := 0
	for _, k := range s.lru.Keys() {
		entry, ok := s.lru.Peek(k)
		if ok && entry.expired(now) {
			s.lru.Remove(k)
			dropped++
		}
	}
	s.stats.Expirations += int64(dropped)
	return dropped
}

// StartSweeper runs Sweep every interval until ctx is done. Expired entries
// are already treated as misses on read; the sweeper only reclaims memory.
func (s *Store[V]) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// Stats returns a snapshot of the store counters.
func (s *Store[V]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats
	stats.Entries = s.lru.Len()
	stats.InFlight = len(s.flights)
	return stats
}

// Close empties the store. Subsequent calls to GetOrCompute return
// ErrUnavailable.
func (s *Store[V]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.lru.Purge()
	for k, f := range s.flights {
		f.stale = true
		s.group.Forget(k)
	}
	clear(s.flights)
}

func (s *Store[V]) lookupLocked(k string) (*Entry[V], bool) {
	entry, ok := s.lru.Get(k)
	if !ok {
		return nil, false
	}
	if entry.expired(s.now()) {
		s.lru.Remove(k)
		s.stats.Expirations++
		return nil, false
	}
	return entry, true
}
