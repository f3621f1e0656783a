// Package leads provides the lead management bounded context module.
// This file defines the module that encapsulates all leads setup and route registration.
package leads

import (
	"lead_portal_backend/internal/events"
	apphttp "lead_portal_backend/internal/http"
	"lead_portal_backend/internal/leads/handler"
	"lead_portal_backend/internal/leads/management"
	"lead_portal_backend/internal/leads/repository"
	"lead_portal_backend/platform/logger"
	"lead_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler    *handler.Handler
	management *management.Service
}

// NewModule creates and initializes the leads module with all its dependencies.
// Mutations publish on eventBus; the search cache hook must be subscribed to
// the same bus.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	mgmtSvc := management.New(repo, eventBus, log)

	return &Module{
		handler:    handler.New(mgmtSvc, val),
		management: mgmtSvc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// ManagementService returns the lead management service for external use.
func (m *Module) ManagementService() *management.Service {
	return m.management
}

// SetEnrichmentQueue defers enrichment requests to the background worker.
func (m *Module) SetEnrichmentQueue(queue management.EnrichmentQueue) {
	m.management.SetEnrichmentQueue(queue)
}

// RegisterRoutes mounts leads routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// All leads routes require authentication
	leadsGroup := ctx.Protected.Group("/leads")
	m.handler.RegisterRoutes(leadsGroup)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
