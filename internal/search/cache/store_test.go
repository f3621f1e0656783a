package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"lead_portal_backend/internal/search/query"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T, maxEntries int) (*Store[int], *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store, err := New[int](Options{MaxEntries: maxEntries, DefaultTTL: time.Minute, Now: clock.Now})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, clock
}

func keyFor(tenant uuid.UUID, city string) query.Key {
	return query.DeriveKey(query.Normalize(query.Raw{"city": query.StringValue(city)}).ForTenant(tenant))
}

func constant(v int) ComputeFunc[int] {
	return func(context.Context) (int, error) { return v, nil }
}

func TestGetOrComputeSingleFlight(t *testing.T) {
	store, _ := newTestStore(t, 10)
	key := keyFor(uuid.New(), "Austin")

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	const callers = 100
	var wg sync.WaitGroup
	results := make([]int, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = store.GetOrCompute(context.Background(), key, 0, compute)
		}(i)
	}

	waitFor(t, func() bool { return store.InFlight(key) })
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected one computation, got %d", got)
	}
	for i := range results {
		if errs[i] != nil || results[i] != 42 {
			t.Fatalf("caller %d: got %d, %v", i, results[i], errs[i])
		}
	}
}

func TestGetOrComputeHitFlag(t *testing.T) {
	store, _ := newTestStore(t, 10)
	key := keyFor(uuid.New(), "Austin")

	_, hit, err := store.GetOrCompute(context.Background(), key, 0, constant(1))
	if err != nil || hit {
		t.Fatalf("expected computed miss, got hit=%v err=%v", hit, err)
	}
	v, hit, err := store.GetOrCompute(context.Background(), key, 0, constant(2))
	if err != nil || !hit || v != 1 {
		t.Fatalf("expected stored hit of 1, got %d hit=%v err=%v", v, hit, err)
	}
}

func TestGetOrComputeDoesNotStoreFailures(t *testing.T) {
	store, _ := newTestStore(t, 10)
	key := keyFor(uuid.New(), "Austin")
	boom := errors.New("boom")

	_, _, err := store.GetOrCompute(context.Background(), key, 0, func(context.Context) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected compute error, got %v", err)
	}
	if _, ok := store.Get(key); ok {
		t.Fatal("failed computation must not be stored")
	}

	v, hit, err := store.GetOrCompute(context.Background(), key, 0, constant(7))
	if err != nil || hit || v != 7 {
		t.Fatalf("expected fresh computation after failure, got %d hit=%v err=%v", v, hit, err)
	}
}

func TestEntriesExpireAfterTTL(t *testing.T) {
	store, clock := newTestStore(t, 10)
	key := keyFor(uuid.New(), "Austin")

	if _, _, err := store.GetOrCompute(context.Background(), key, 30*time.Second, constant(1)); err != nil {
		t.Fatalf("compute: %v", err)
	}
	clock.Advance(29 * time.Second)
	if _, ok := store.Get(key); !ok {
		t.Fatal("expected entry to be live before ttl")
	}
	clock.Advance(time.Second)
	if _, ok := store.Get(key); ok {
		t.Fatal("expected entry to expire at ttl")
	}
	if store.Stats().Expirations != 1 {
		t.Fatalf("expected one expiration, got %+v", store.Stats())
	}
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	store, clock := newTestStore(t, 10)
	tenant := uuid.New()
	for _, city := range []string{"Austin", "Dallas"} {
		if _, _, err := store.GetOrCompute(context.Background(), keyFor(tenant, city), 0, constant(1)); err != nil {
			t.Fatalf("compute: %v", err)
		}
	}
	clock.Advance(2 * time.Minute)

	if dropped := store.Sweep(); dropped != 2 {
		t.Fatalf("expected 2 swept entries, got %d", dropped)
	}
	if store.Stats().Entries != 0 {
		t.Fatalf("expected empty store, got %+v", store.Stats())
	}
}

func TestLeastRecentlyUsedEviction(t *testing.T) {
	store, _ := newTestStore(t, 2)
	tenant := uuid.New()
	a, b, c := keyFor(tenant, "A"), keyFor(tenant, "B"), keyFor(tenant, "C")

	for _, k := range []query.Key{a, b} {
		if _, _, err := store.GetOrCompute(context.Background(), k, 0, constant(1)); err != nil {
			t.Fatalf("compute: %v", err)
		}
	}
	if _, ok := store.Get(a); !ok {
		t.Fatal("expected a to be present")
	}
	if _, _, err := store.GetOrCompute(context.Background(), c, 0, constant(1)); err != nil {
		t.Fatalf("compute: %v", err)
	}

	if _, ok := store.Get(b); ok {
		t.Fatal("expected least recently used entry b to be evicted")
	}
	if _, ok := store.Get(a); !ok {
		t.Fatal("expected recently read entry a to survive")
	}
	if store.Stats().Evictions != 1 {
		t.Fatalf("expected one eviction, got %+v", store.Stats())
	}
}

func TestInvalidateByTenant(t *testing.T) {
	store, _ := newTestStore(t, 10)
	tenantA, tenantB := uuid.New(), uuid.New()
	keyA, keyB := keyFor(tenantA, "Austin"), keyFor(tenantB, "Austin")

	for _, k := range []query.Key{keyA, keyB} {
		if _, _, err := store.GetOrCompute(context.Background(), k, 0, constant(1)); err != nil {
			t.Fatalf("compute: %v", err)
		}
	}

	n := store.Invalidate(func(k query.Key) bool { return k.Tenant == tenantA })
	if n != 1 {
		t.Fatalf("expected one invalidated entry, got %d", n)
	}
	if _, ok := store.Get(keyA); ok {
		t.Fatal("expected tenant A entry gone")
	}
	if _, ok := store.Get(keyB); !ok {
		t.Fatal("expected tenant B entry kept")
	}
}

func TestInvalidateDuringFlightDiscardsResult(t *testing.T) {
	store, _ := newTestStore(t, 10)
	key := keyFor(uuid.New(), "Austin")

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)
	go func() {
		v, _, _ := store.GetOrCompute(context.Background(), key, 0, func(context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		done <- v
	}()
	<-started

	store.InvalidateAll()

	v, hit, err := store.GetOrCompute(context.Background(), key, 0, constant(2))
	if err != nil || hit || v != 2 {
		t.Fatalf("expected a fresh computation after invalidation, got %d hit=%v err=%v", v, hit, err)
	}

	close(release)
	if got := <-done; got != 1 {
		t.Fatalf("expected original waiter to receive its own result, got %d", got)
	}

	entry, ok := store.Get(key)
	if !ok || entry.Value != 2 {
		t.Fatalf("expected post-invalidation value 2 stored, got %+v ok=%v", entry, ok)
	}
}

func TestCancelledCallerDoesNotCancelComputation(t *testing.T) {
	store, _ := newTestStore(t, 10)
	key := keyFor(uuid.New(), "Austin")

	started := make(chan struct{})
	release := make(chan struct{})
	computeErr := make(chan error, 1)
	compute := func(ctx context.Context) (int, error) {
		close(started)
		<-release
		computeErr <- ctx.Err()
		return 5, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, _, err := store.GetOrCompute(ctx, key, 0, compute)
		errc <- err
	}()
	<-started
	cancel()

	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled caller to return context.Canceled, got %v", err)
	}

	close(release)
	if err := <-computeErr; err != nil {
		t.Fatalf("computation context must not be cancelled, got %v", err)
	}
	waitFor(t, func() bool { _, ok := store.Get(key); return ok })
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	store, _ := newTestStore(t, 10)
	store.Close()

	_, _, err := store.GetOrCompute(context.Background(), keyFor(uuid.New(), "Austin"), 0, constant(1))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	if _, err := New[int](Options{MaxEntries: 0, DefaultTTL: time.Second}); err == nil {
		t.Fatal("expected error for zero capacity")
	}
	if _, err := New[int](Options{MaxEntries: 1}); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
