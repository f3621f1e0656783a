// Package management handles lead mutations.
// Every mutation publishes its domain event synchronously after the write
// commits, so that search caches are invalidated before the caller gets a
// response.
package management

import (
	"context"
	"errors"
	"strings"

	"lead_portal_backend/internal/events"
	"lead_portal_backend/internal/leads/repository"
	"lead_portal_backend/internal/leads/transport"
	"lead_portal_backend/platform/apperr"
	"lead_portal_backend/platform/logger"
	"lead_portal_backend/platform/phone"
	"lead_portal_backend/platform/sanitize"

	"github.com/google/uuid"
)

// Repository defines the data access interface needed by the management service.
// This is a consumer-driven interface - only what management needs.
type Repository interface {
	repository.LeadReader
	repository.LeadWriter
}

// EnrichmentQueue defers enrichment to the background worker.
type EnrichmentQueue interface {
	EnqueueLeadEnrichment(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID, req transport.EnrichLeadRequest) error
}

// Service handles lead management operations.
type Service struct {
	repo  Repository
	bus   events.Bus
	queue EnrichmentQueue
	log   *logger.Logger
}

// New creates a new lead management service.
func New(repo Repository, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, bus: bus, log: log}
}

// SetEnrichmentQueue routes enrichment requests through the worker queue.
func (s *Service) SetEnrichmentQueue(queue EnrichmentQueue) {
	s.queue = queue
}

// Create creates a new lead. Text fields are stripped of markup and the
// phone number is stored in E.164 when it parses.
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, req transport.CreateLeadRequest) (transport.LeadResponse, error) {
	if req.State != nil {
		state := strings.ToUpper(strings.TrimSpace(*req.State))
		req.State = &state
	}

	lead, err := s.repo.Create(ctx, repository.CreateLeadParams{
		OrganizationID: tenantID,
		BusinessName:   sanitize.Text(req.BusinessName),
		City:           sanitize.TextPtr(req.City),
		State:          req.State,
		Category:       sanitize.TextPtr(req.Category),
		Website:        req.Website,
		Phone:          phone.NormalizePtr(req.Phone, phone.DefaultRegion),
	})
	if err != nil {
		return transport.LeadResponse{}, err
	}

	s.publish(ctx, events.LeadCreated{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		TenantID:  tenantID,
	})
	return ToLeadResponse(lead), nil
}

// GetByID retrieves a lead by ID.
func (s *Service) GetByID(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (transport.LeadResponse, error) {
	lead, err := s.repo.GetByID(ctx, id, tenantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.LeadResponse{}, apperr.NotFound("lead not found")
		}
		return transport.LeadResponse{}, err
	}

	return ToLeadResponse(lead), nil
}

// UpdateStatus updates the status of a lead.
func (s *Service) UpdateStatus(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, req transport.UpdateLeadStatusRequest) (transport.LeadResponse, error) {
	previous, lead, err := s.repo.UpdateStatus(ctx, id, tenantID, string(req.Status))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.LeadResponse{}, apperr.NotFound("lead not found")
		}
		return transport.LeadResponse{}, err
	}

	s.publish(ctx, events.LeadStatusChanged{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		TenantID:  tenantID,
		OldStatus: previous,
		NewStatus: lead.Status,
	})
	return ToLeadResponse(lead), nil
}

// Delete soft-deletes a lead.
func (s *Service) Delete(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id, tenantID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("lead not found")
		}
		return err
	}

	s.publish(ctx, events.LeadSoftDeleted{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    id,
		TenantID:  tenantID,
	})
	return nil
}

// Enrich writes enrichment data to a lead. It is called inline when no
// queue is configured and by the worker otherwise.
func (s *Service) Enrich(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, req transport.EnrichLeadRequest) (transport.LeadResponse, error) {
	params, fields := toEnrichParams(req)

	lead, err := s.repo.Enrich(ctx, id, tenantID, params)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.LeadResponse{}, apperr.NotFound("lead not found")
		}
		return transport.LeadResponse{}, err
	}

	s.publish(ctx, events.LeadEnriched{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		TenantID:  tenantID,
		Fields:    fields,
	})
	return ToLeadResponse(lead), nil
}

// RequestEnrichment queues enrichment when a worker queue is configured and
// applies it inline otherwise. queued reports which path was taken; the
// lead response is only set for inline enrichment.
func (s *Service) RequestEnrichment(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, req transport.EnrichLeadRequest) (transport.LeadResponse, bool, error) {
	if s.queue == nil {
		lead, err := s.Enrich(ctx, tenantID, id, req)
		return lead, false, err
	}

	if _, err := s.GetByID(ctx, tenantID, id); err != nil {
		return transport.LeadResponse{}, false, err
	}
	if err := s.queue.EnqueueLeadEnrichment(ctx, tenantID, id, req); err != nil {
		return transport.LeadResponse{}, false, apperr.Unavailable("enrichment queue unavailable", err).WithOp("leads.RequestEnrichment")
	}
	return transport.LeadResponse{}, true, nil
}

// publish runs the event's handlers before returning. The write has already
// committed, so handler failures are logged rather than returned.
func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishSync(ctx, event); err != nil {
		s.log.WithContext(ctx).Warn("lead event handlers failed", "event", event.EventName(), "error", err)
	}
}
