package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"lead_portal_backend/internal/search/query"
)

// Shared tier keys:
//
//	leads:search:gen:{tenant}              per-tenant generation counter
//	leads:search:v1:{tenant}:g{gen}:{hash} serialized search result
//
// Bumping a tenant's generation orphans every stored result for it; the
// orphans expire by TTL.
const (
	generationPrefix = "leads:search:gen:"
	resultPrefix     = "leads:search:v1:"
)

// RedisTier is a result cache shared by every API instance.
//
// A tenant whose generation bump failed is stale: its shared results are
// neither read nor written until a later bump succeeds.
type RedisTier struct {
	rdb goredis.UniversalClient

	mu    sync.Mutex
	stale map[uuid.UUID]struct{}
}

// NewRedisTier wraps a connected client.
func NewRedisTier(rdb goredis.UniversalClient) *RedisTier {
	return &RedisTier{rdb: rdb, stale: make(map[uuid.UUID]struct{})}
}

// Get returns the stored payload for key under the tenant's current
// generation, and that generation. A result computed after a miss must be
// stored with Set under the returned generation, so a bump that lands while
// it is computed orphans it. A missing key is a miss, not an error.
func (t *RedisTier) Get(ctx context.Context, key query.Key) ([]byte, int64, bool, error) {
	if t.isStale(key.Tenant) {
		if _, err := t.BumpGeneration(ctx, key.Tenant); err != nil {
			return nil, 0, false, err
		}
	}
	gen, err := t.generation(ctx, key.Tenant)
	if err != nil {
		return nil, 0, false, err
	}
	data, err := t.rdb.Get(ctx, resultKey(key, gen)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, gen, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("%w: redis get: %w", ErrUnavailable, err)
	}
	return data, gen, true, nil
}

// Set stores payload for key under generation gen.
func (t *RedisTier) Set(ctx context.Context, key query.Key, gen int64, payload []byte, ttl time.Duration) error {
	if t.isStale(key.Tenant) {
		return fmt.Errorf("%w: tenant %s awaits a generation bump", ErrUnavailable, key.Tenant)
	}
	if err := t.rdb.Set(ctx, resultKey(key, gen), payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set: %w", ErrUnavailable, err)
	}
	return nil
}

// BumpGeneration invalidates every shared result for tenant. On failure the
// tenant is marked stale.
func (t *RedisTier) BumpGeneration(ctx context.Context, tenant uuid.UUID) (int64, error) {
	gen, err := t.rdb.Incr(ctx, generationPrefix+tenant.String()).Result()
	if err != nil {
		t.MarkStale(tenant)
		return 0, fmt.Errorf("%w: redis incr: %w", ErrUnavailable, err)
	}
	t.mu.Lock()
	delete(t.stale, tenant)
	t.mu.Unlock()
	return gen, nil
}

// MarkStale stops shared reads and writes for tenant until its generation
// is bumped.
func (t *RedisTier) MarkStale(tenant uuid.UUID) {
	t.mu.Lock()
	t.stale[tenant] = struct{}{}
	t.mu.Unlock()
}

func (t *RedisTier) isStale(tenant uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.stale[tenant]
	return ok
}

func (t *RedisTier) generation(ctx context.Context, tenant uuid.UUID) (int64, error) {
	gen, err := t.rdb.Get(ctx, generationPrefix+tenant.String()).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: redis generation: %w", ErrUnavailable, err)
	}
	return gen, nil
}

func resultKey(key query.Key, gen int64) string {
	return resultPrefix + key.Tenant.String() + ":g" + strconv.FormatInt(gen, 10) + ":" + key.Digest
}
