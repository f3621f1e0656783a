// Package invalidation evicts cached lead searches when a lead changes.
//
// Every mutation entry point publishes a leads event synchronously after its
// commit. The hook bumps the tenant's shared generation, evicts the tenant's
// local entries and in-flight computations, and tells peer instances to do
// the same for their local stores.
package invalidation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lead_portal_backend/internal/events"
	"lead_portal_backend/internal/search/query"
	"lead_portal_backend/platform/logger"
)

// Mutation kinds.
const (
	KindCreated       = "created"
	KindStatusChanged = "status_changed"
	KindSoftDeleted   = "soft_deleted"
	KindEnriched      = "enriched"
)

// Shared tier work outlives the caller's request, bounded by sharedTimeout.
const (
	sharedTimeout = 5 * time.Second
	bumpAttempts  = 3
	bumpBackoff   = 50 * time.Millisecond
)

// Mutation describes a committed change to one lead. SharedStale is set when
// the sender could not bump the tenant's shared generation.
type Mutation struct {
	Kind        string    `json:"kind"`
	TenantID    uuid.UUID `json:"tenant"`
	LeadID      uuid.UUID `json:"leadId"`
	Origin      string    `json:"origin,omitempty"`
	SharedStale bool      `json:"sharedStale,omitempty"`
}

// LocalStore is the in-process result cache.
type LocalStore interface {
	Invalidate(pred func(query.Key) bool) int
	InvalidateAll() int
}

// GenerationBumper invalidates a tenant in the shared tier. MarkStale stops
// the tier serving a tenant until a later bump succeeds.
type GenerationBumper interface {
	BumpGeneration(ctx context.Context, tenant uuid.UUID) (int64, error)
	MarkStale(tenant uuid.UUID)
}

// Broadcaster forwards a mutation to peer instances.
type Broadcaster interface {
	Broadcast(ctx context.Context, m Mutation) error
}

type Hook struct {
	local       LocalStore
	shared      GenerationBumper
	broadcaster Broadcaster
	log         *logger.Logger
}

// New creates a hook. local may be nil in processes that serve no searches.
func New(local LocalStore, log *logger.Logger) *Hook {
	return &Hook{local: local, log: log}
}

// SetSharedTier enables generation bumps on the shared cache tier.
func (h *Hook) SetSharedTier(shared GenerationBumper) {
	h.shared = shared
}

// SetBroadcaster enables fan-out to peer instances.
func (h *Hook) SetBroadcaster(b Broadcaster) {
	h.broadcaster = b
}

// Subscribe registers the hook for every lead mutation event.
func (h *Hook) Subscribe(bus events.Bus) {
	for _, name := range events.LeadMutationEventNames {
		bus.Subscribe(name, h)
	}
}

// Handle implements events.Handler.
func (h *Hook) Handle(ctx context.Context, event events.Event) error {
	mutation, ok := event.(events.LeadMutation)
	if !ok {
		return fmt.Errorf("invalidation: unexpected event %s", event.EventName())
	}
	return h.OnMutation(ctx, Mutation{
		Kind:     mutation.MutationKind(),
		TenantID: mutation.Tenant(),
		LeadID:   mutation.Lead(),
	})
}

// OnMutation invalidates every cached search that could include the lead.
// A created, updated, deleted or enriched lead can move into or out of any
// filter, sort position or page of its tenant, so the whole tenant is
// evicted. An unknown tenant evicts everything. Local eviction always
// happens; shared tier and broadcast failures are returned after it.
//
// The mutation has already committed, so the caller's cancellation does not
// stop the invalidation.
func (h *Hook) OnMutation(ctx context.Context, m Mutation) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedTimeout)
	defer cancel()

	var errs []error

	if h.shared != nil && m.TenantID != uuid.Nil {
		if err := h.bump(ctx, m.TenantID); err != nil {
			h.log.WithContext(ctx).CacheDegraded("search.shared.bump", err)
			m.SharedStale = true
			errs = append(errs, err)
		}
	}

	evicted := h.applyLocal(m)

	if h.broadcaster != nil {
		if err := h.broadcaster.Broadcast(ctx, m); err != nil {
			h.log.WithContext(ctx).CacheDegraded("search.invalidation.broadcast", err)
			errs = append(errs, err)
		}
	}

	h.log.WithContext(ctx).Debug("search cache invalidated",
		"kind", m.Kind,
		"tenant_id", m.TenantID.String(),
		"lead_id", m.LeadID.String(),
		"evicted", evicted,
	)
	return errors.Join(errs...)
}

// ApplyRemote evicts local entries for a mutation reported by a peer. The
// peer already bumped the shared generation unless it reports SharedStale.
func (h *Hook) ApplyRemote(m Mutation) {
	if m.SharedStale && h.shared != nil && m.TenantID != uuid.Nil {
		h.shared.MarkStale(m.TenantID)
	}
	evicted := h.applyLocal(m)
	h.log.Debug("search cache invalidated by peer",
		"kind", m.Kind,
		"tenant_id", m.TenantID.String(),
		"origin", m.Origin,
		"evicted", evicted,
	)
}

func (h *Hook) bump(ctx context.Context, tenant uuid.UUID) error {
	var err error
	for attempt := 1; attempt <= bumpAttempts; attempt++ {
		if _, err = h.shared.BumpGeneration(ctx, tenant); err == nil {
			return nil
		}
		if attempt == bumpAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(bumpBackoff * time.Duration(attempt)):
		}
	}
	return err
}

func (h *Hook) applyLocal(m Mutation) int {
	if h.local == nil {
		return 0
	}
	if m.TenantID == uuid.Nil {
		return h.local.InvalidateAll()
	}
	return h.local.Invalidate(TenantPredicate(m.TenantID))
}

// TenantPredicate matches every key belonging to tenant.
func TenantPredicate(tenant uuid.UUID) func(query.Key) bool {
	return func(k query.Key) bool { return k.Tenant == tenant }
}
