package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lead_portal_backend/internal/search/cache"
	"lead_portal_backend/internal/search/planner"
	"lead_portal_backend/internal/search/query"
	"lead_portal_backend/internal/search/repository"
	"lead_portal_backend/internal/search/transport"
	"lead_portal_backend/platform/apperr"
	"lead_portal_backend/platform/logger"
)

// Repository executes normalized searches against storage.
type Repository interface {
	Search(ctx context.Context, req query.Request) (repository.Page, error)
}

// SharedTier is a cache shared between instances. Get reports the
// generation it looked under; Set writes under that generation so a result
// read from storage before an invalidation can never outlive it.
type SharedTier interface {
	Get(ctx context.Context, key query.Key) ([]byte, int64, bool, error)
	Set(ctx context.Context, key query.Key, gen int64, payload []byte, ttl time.Duration) error
}

// BackendError reports a storage failure while computing a result.
type BackendError struct {
	Err error
}

func (e *BackendError) Error() string { return "search backend: " + e.Err.Error() }

func (e *BackendError) Unwrap() error { return e.Err }

// Result is the cached part of a search response. Values handed out by the
// cache are shared between callers and must not be modified.
type Result struct {
	Leads      []transport.LeadSummary `json:"leads"`
	Pagination transport.Pagination    `json:"pagination"`
	QueryPlan  transport.QueryPlan     `json:"queryPlan"`

	fromShared bool
}

type Service struct {
	repo    Repository
	store   *cache.Store[Result]
	catalog *planner.Catalog
	shared  SharedTier
	ttl     time.Duration
	log     *logger.Logger
}

func New(repo Repository, store *cache.Store[Result], catalog *planner.Catalog, ttl time.Duration, log *logger.Logger) *Service {
	return &Service{repo: repo, store: store, catalog: catalog, ttl: ttl, log: log}
}

// SetSharedTier enables the cross-instance cache tier.
func (s *Service) SetSharedTier(tier SharedTier) {
	s.shared = tier
}

// Search normalizes raw input, serves it from cache when possible and
// otherwise computes it once for all concurrent identical requests. A cache
// failure is bypassed; only storage failures reach the caller.
func (s *Service) Search(ctx context.Context, tenant uuid.UUID, raw query.Raw) (*transport.SearchResponse, error) {
	req := query.Normalize(raw).ForTenant(tenant)
	key := query.DeriveKey(req)

	compute := func(ctx context.Context) (Result, error) {
		return s.compute(ctx, req, key)
	}

	result, hit, err := s.store.GetOrCompute(ctx, key, s.ttl, compute)
	if errors.Is(err, cache.ErrUnavailable) {
		s.log.WithContext(ctx).CacheDegraded("search.local", err)
		result, err = compute(ctx)
		hit = false
	}
	if err != nil {
		var backendErr *BackendError
		if errors.As(err, &backendErr) {
			s.log.WithContext(ctx).DatabaseError("search.Search", backendErr.Err)
			return nil, apperr.Unavailable("search temporarily unavailable", err).WithOp("search.Search")
		}
		return nil, err
	}

	return &transport.SearchResponse{
		Leads:      result.Leads,
		Pagination: result.Pagination,
		Cache:      transport.CacheInfo{Hit: hit || result.fromShared, Key: key.String()},
		QueryPlan:  result.QueryPlan,
	}, nil
}

func (s *Service) compute(ctx context.Context, req query.Request, key query.Key) (Result, error) {
	plan := planner.CheckPlan(req, s.catalog)
	if len(plan.UnindexedFilters) > 0 {
		s.log.WithContext(ctx).UnindexedQuery(req.Tenant.String(), fieldNames(plan.UnindexedFilters))
	}

	var gen int64
	sharedOK := s.shared != nil
	if sharedOK {
		payload, g, found, err := s.shared.Get(ctx, key)
		gen = g
		switch {
		case err != nil:
			s.log.WithContext(ctx).CacheDegraded("search.shared.get", err)
			sharedOK = false
		case found:
			var cached Result
			if err := json.Unmarshal(payload, &cached); err == nil {
				cached.fromShared = true
				return cached, nil
			}
		}
	}

	page, err := s.repo.Search(ctx, req)
	if err != nil {
		return Result{}, &BackendError{Err: err}
	}

	result := buildResult(req, page, plan)

	if sharedOK {
		if err := s.storeShared(ctx, key, gen, result); err != nil {
			s.log.WithContext(ctx).CacheDegraded("search.shared.set", err)
		}
	}
	return result, nil
}

func (s *Service) storeShared(ctx context.Context, key query.Key, gen int64, result Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return s.shared.Set(ctx, key, gen, payload, s.ttl)
}

// Stats reports cache counters and the active index catalog.
func (s *Service) Stats() transport.StatsResponse {
	stats := s.store.Stats()
	indexes := s.catalog.Indexes()
	catalog := make([]transport.IndexInfo, len(indexes))
	for i, idx := range indexes {
		catalog[i] = transport.IndexInfo{Name: idx.Name, Columns: idx.Columns, Method: string(idx.Method)}
	}
	return transport.StatsResponse{
		Cache: transport.CacheStats{
			Entries:       stats.Entries,
			InFlight:      stats.InFlight,
			Hits:          stats.Hits,
			Misses:        stats.Misses,
			Computations:  stats.Computations,
			Evictions:     stats.Evictions,
			Expirations:   stats.Expirations,
			Invalidations: stats.Invalidations,
		},
		SharedTier:   s.shared != nil,
		IndexCatalog: catalog,
	}
}

func buildResult(req query.Request, page repository.Page, plan planner.PlanCheck) Result {
	leads := make([]transport.LeadSummary, len(page.Leads))
	for i, lead := range page.Leads {
		leads[i] = toLeadSummary(lead)
	}

	totalPages := 0
	if page.Total > 0 {
		totalPages = (page.Total + req.Pagination.Limit - 1) / req.Pagination.Limit
	}

	return Result{
		Leads: leads,
		Pagination: transport.Pagination{
			Page:       req.Pagination.Page,
			Limit:      req.Pagination.Limit,
			Total:      page.Total,
			TotalPages: totalPages,
		},
		QueryPlan: transport.QueryPlan{
			IndexedFilters:   plan.IndexedFilters,
			UnindexedFilters: fieldNames(plan.UnindexedFilters),
			ExplainChecks:    transport.ExplainChecks{UsesIndexedFilter: plan.UsesIndexedFilter},
		},
	}
}

func toLeadSummary(lead repository.Lead) transport.LeadSummary {
	var priceLevel *int
	if lead.PriceLevel != nil {
		v := int(*lead.PriceLevel)
		priceLevel = &v
	}
	return transport.LeadSummary{
		ID:                      lead.ID.String(),
		BusinessName:            lead.BusinessName,
		City:                    lead.City,
		State:                   lead.State,
		Category:                lead.Category,
		Status:                  lead.Status,
		Website:                 lead.Website,
		Phone:                   lead.Phone,
		Rating:                  lead.Rating,
		PriceLevel:              priceLevel,
		BusinessStatus:          lead.BusinessStatus,
		PureServiceAreaBusiness: lead.PureServiceAreaBusiness,
		EnrichedAt:              lead.EnrichedAt,
		CreatedAt:               lead.CreatedAt,
		UpdatedAt:               lead.UpdatedAt,
	}
}

func fieldNames(fields []query.Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return out
}
