package invalidation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"lead_portal_backend/internal/events"
	"lead_portal_backend/internal/search/cache"
	"lead_portal_backend/internal/search/query"
	"lead_portal_backend/platform/logger"
)

type fakeBumper struct {
	mu       sync.Mutex
	tenants  []uuid.UUID
	stale    []uuid.UUID
	attempts int
	err      error
}

func (f *fakeBumper) BumpGeneration(ctx context.Context, tenant uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if f.err != nil {
		return 0, f.err
	}
	f.tenants = append(f.tenants, tenant)
	return int64(len(f.tenants)), nil
}

func (f *fakeBumper) MarkStale(tenant uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stale = append(f.stale, tenant)
}

type recordingBroadcaster struct {
	sent []Mutation
}

func (r *recordingBroadcaster) Broadcast(_ context.Context, m Mutation) error {
	r.sent = append(r.sent, m)
	return nil
}

func seededStore(t *testing.T, tenants ...uuid.UUID) (*cache.Store[int], []query.Key) {
	t.Helper()
	store, err := cache.New[int](cache.Options{MaxEntries: 100, DefaultTTL: time.Minute})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	keys := make([]query.Key, 0, len(tenants))
	for _, tenant := range tenants {
		key := query.DeriveKey(query.Normalize(query.Raw{"city": query.StringValue("Austin")}).ForTenant(tenant))
		if _, _, err := store.GetOrCompute(context.Background(), key, 0, func(context.Context) (int, error) { return 1, nil }); err != nil {
			t.Fatalf("seed: %v", err)
		}
		keys = append(keys, key)
	}
	return store, keys
}

func TestHookEvictsTenantOnEveryMutationEvent(t *testing.T) {
	tenantA, tenantB := uuid.New(), uuid.New()
	mutations := []events.Event{
		events.LeadStatusChanged{LeadID: uuid.New(), TenantID: tenantA, OldStatus: "new", NewStatus: "qualified"},
		events.LeadSoftDeleted{LeadID: uuid.New(), TenantID: tenantA},
		events.LeadEnriched{LeadID: uuid.New(), TenantID: tenantA, Fields: []string{"website"}},
	}

	for _, event := range mutations {
		t.Run(event.EventName(), func(t *testing.T) {
			store, keys := seededStore(t, tenantA, tenantB)
			bumper := &fakeBumper{}
			hook := New(store, logger.New("test"))
			hook.SetSharedTier(bumper)

			bus := events.NewInMemoryBus(logger.New("test"))
			hook.Subscribe(bus)

			if err := bus.PublishSync(context.Background(), event); err != nil {
				t.Fatalf("publish: %v", err)
			}
			if _, ok := store.Get(keys[0]); ok {
				t.Fatal("expected tenant A entry evicted")
			}
			if _, ok := store.Get(keys[1]); !ok {
				t.Fatal("expected tenant B entry untouched")
			}
			if len(bumper.tenants) != 1 || bumper.tenants[0] != tenantA {
				t.Fatalf("expected one generation bump for tenant A, got %v", bumper.tenants)
			}
		})
	}
}

func TestHookUnknownTenantEvictsEverything(t *testing.T) {
	store, keys := seededStore(t, uuid.New(), uuid.New())
	bumper := &fakeBumper{}
	hook := New(store, logger.New("test"))
	hook.SetSharedTier(bumper)

	if err := hook.OnMutation(context.Background(), Mutation{Kind: KindEnriched, LeadID: uuid.New()}); err != nil {
		t.Fatalf("on mutation: %v", err)
	}
	for _, key := range keys {
		if _, ok := store.Get(key); ok {
			t.Fatal("expected every entry evicted")
		}
	}
	if len(bumper.tenants) != 0 {
		t.Fatal("no tenant generation can be bumped without a tenant")
	}
}

func TestHookEvictsLocallyWhenSharedTierFails(t *testing.T) {
	tenant := uuid.New()
	store, keys := seededStore(t, tenant)
	hook := New(store, logger.New("test"))
	hook.SetSharedTier(&fakeBumper{err: cache.ErrUnavailable})

	err := hook.OnMutation(context.Background(), Mutation{Kind: KindStatusChanged, TenantID: tenant})
	if !errors.Is(err, cache.ErrUnavailable) {
		t.Fatalf("expected shared tier error to be reported, got %v", err)
	}
	if _, ok := store.Get(keys[0]); ok {
		t.Fatal("local entry must be evicted even when the shared tier fails")
	}
}

func TestHookInvalidatesAfterCallerCancelled(t *testing.T) {
	tenant := uuid.New()
	store, keys := seededStore(t, tenant)
	bumper := &fakeBumper{}
	broadcaster := &recordingBroadcaster{}
	hook := New(store, logger.New("test"))
	hook.SetSharedTier(bumper)
	hook.SetBroadcaster(broadcaster)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := hook.OnMutation(ctx, Mutation{Kind: KindStatusChanged, TenantID: tenant}); err != nil {
		t.Fatalf("on mutation: %v", err)
	}
	if len(bumper.tenants) != 1 || bumper.tenants[0] != tenant {
		t.Fatalf("expected the shared generation bumped, got %v", bumper.tenants)
	}
	if len(broadcaster.sent) != 1 {
		t.Fatal("expected the mutation broadcast")
	}
	if _, ok := store.Get(keys[0]); ok {
		t.Fatal("expected local entry evicted")
	}
}

func TestHookRetriesBumpThenReportsStaleTenant(t *testing.T) {
	tenant := uuid.New()
	store, _ := seededStore(t, tenant)
	bumper := &fakeBumper{err: cache.ErrUnavailable}
	broadcaster := &recordingBroadcaster{}
	hook := New(store, logger.New("test"))
	hook.SetSharedTier(bumper)
	hook.SetBroadcaster(broadcaster)

	if err := hook.OnMutation(context.Background(), Mutation{Kind: KindEnriched, TenantID: tenant}); err == nil {
		t.Fatal("expected the bump failure reported")
	}
	if bumper.attempts != bumpAttempts {
		t.Fatalf("expected %d bump attempts, got %d", bumpAttempts, bumper.attempts)
	}
	if len(broadcaster.sent) != 1 || !broadcaster.sent[0].SharedStale {
		t.Fatalf("expected peers told the tenant is stale, got %+v", broadcaster.sent)
	}

	peerBumper := &fakeBumper{}
	peer := New(nil, logger.New("test"))
	peer.SetSharedTier(peerBumper)
	peer.ApplyRemote(broadcaster.sent[0])
	if len(peerBumper.stale) != 1 || peerBumper.stale[0] != tenant {
		t.Fatalf("expected peer to mark the tenant stale, got %v", peerBumper.stale)
	}
}

func TestHookBroadcastsMutation(t *testing.T) {
	tenant := uuid.New()
	store, _ := seededStore(t, tenant)
	broadcaster := &recordingBroadcaster{}
	hook := New(store, logger.New("test"))
	hook.SetBroadcaster(broadcaster)

	lead := uuid.New()
	if err := hook.OnMutation(context.Background(), Mutation{Kind: KindSoftDeleted, TenantID: tenant, LeadID: lead}); err != nil {
		t.Fatalf("on mutation: %v", err)
	}
	if len(broadcaster.sent) != 1 || broadcaster.sent[0].LeadID != lead {
		t.Fatalf("expected one broadcast for the lead, got %+v", broadcaster.sent)
	}
}

func TestHookWithoutLocalStore(t *testing.T) {
	bumper := &fakeBumper{}
	hook := New(nil, logger.New("test"))
	hook.SetSharedTier(bumper)

	if err := hook.OnMutation(context.Background(), Mutation{Kind: KindEnriched, TenantID: uuid.New()}); err != nil {
		t.Fatalf("on mutation: %v", err)
	}
	if len(bumper.tenants) != 1 {
		t.Fatal("expected shared generation bump from a process without a local store")
	}
}

func TestRedisBroadcasterDeliversToPeersOnly(t *testing.T) {
	srv := miniredis.RunT(t)
	newClient := func() *goredis.Client {
		client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return client
	}

	sender := NewRedisBroadcaster(newClient(), logger.New("test"))
	receiver := NewRedisBroadcaster(newClient(), logger.New("test"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Mutation, 2)
	ownReceived := make(chan Mutation, 2)
	go func() { _ = receiver.Listen(ctx, func(m Mutation) { received <- m }) }()
	go func() { _ = sender.Listen(ctx, func(m Mutation) { ownReceived <- m }) }()

	deadline := time.Now().Add(2 * time.Second)
	for srv.PubSubNumSub(Channel)[Channel] < 2 {
		if time.Now().After(deadline) {
			t.Fatal("listeners never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	tenant := uuid.New()
	if err := sender.Broadcast(ctx, Mutation{Kind: KindStatusChanged, TenantID: tenant}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	select {
	case m := <-received:
		if m.TenantID != tenant || m.Origin != sender.Origin() {
			t.Fatalf("unexpected message %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("peer never received the mutation")
	}

	select {
	case m := <-ownReceived:
		t.Fatalf("sender must skip its own message, got %+v", m)
	case <-time.After(50 * time.Millisecond):
	}
}
