// Package search provides the leads search bounded context: a cached,
// tenant-scoped filter query over the leads table.
package search

import (
	"context"
	"fmt"

	apphttp "lead_portal_backend/internal/http"
	"lead_portal_backend/internal/search/cache"
	"lead_portal_backend/internal/search/handler"
	"lead_portal_backend/internal/search/planner"
	"lead_portal_backend/internal/search/repository"
	"lead_portal_backend/internal/search/service"
	"lead_portal_backend/platform/config"
	"lead_portal_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogFromDatabase selects the live pg_index catalog.
const CatalogFromDatabase = "database"

type Module struct {
	handler *handler.Handler
	service *service.Service
	store   *cache.Store[service.Result]
}

func NewModule(ctx context.Context, pool *pgxpool.Pool, cfg config.SearchConfig, log *logger.Logger) (*Module, error) {
	repo := repository.New(pool)

	catalog, err := loadCatalog(ctx, cfg.GetSearchIndexCatalog(), repo)
	if err != nil {
		return nil, err
	}

	store, err := cache.New[service.Result](cache.Options{
		MaxEntries: cfg.GetSearchCacheMaxEntries(),
		DefaultTTL: cfg.GetSearchCacheTTL(),
	})
	if err != nil {
		return nil, fmt.Errorf("search cache: %w", err)
	}

	svc := service.New(repo, store, catalog, cfg.GetSearchCacheTTL(), log)
	h := handler.New(svc)

	return &Module{handler: h, service: svc, store: store}, nil
}

// loadCatalog resolves the index catalog: the embedded default when source
// is empty, the live database for "database", otherwise a YAML file path.
func loadCatalog(ctx context.Context, source string, repo *repository.Repository) (*planner.Catalog, error) {
	switch source {
	case "":
		return planner.DefaultCatalog()
	case CatalogFromDatabase:
		indexes, err := repo.ListIndexes(ctx)
		if err != nil {
			return nil, fmt.Errorf("load index catalog from database: %w", err)
		}
		return planner.NewCatalog(indexes...), nil
	default:
		return planner.LoadCatalogFile(source)
	}
}

func (m *Module) Name() string {
	return "search"
}

// Service exposes the search service for cross-module wiring.
func (m *Module) Service() *service.Service {
	return m.service
}

// Store exposes the result cache so mutation hooks can invalidate it.
func (m *Module) Store() *cache.Store[service.Result] {
	return m.store
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/leads")
	if ctx.RateLimiter != nil {
		group.Use(ctx.RateLimiter.RateLimit())
	}
	m.handler.RegisterRoutes(group)
}

var _ apphttp.Module = (*Module)(nil)
