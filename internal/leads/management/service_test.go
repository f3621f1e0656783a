package management

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lead_portal_backend/internal/events"
	"lead_portal_backend/internal/leads/repository"
	"lead_portal_backend/internal/leads/transport"
	"lead_portal_backend/internal/search/cache"
	"lead_portal_backend/internal/search/invalidation"
	"lead_portal_backend/internal/search/planner"
	"lead_portal_backend/internal/search/query"
	searchrepo "lead_portal_backend/internal/search/repository"
	searchservice "lead_portal_backend/internal/search/service"
	"lead_portal_backend/platform/apperr"
	"lead_portal_backend/platform/logger"

	"github.com/google/uuid"
)

// memoryLeads backs both the management repository and the search
// repository so a test can observe reads after writes.
type memoryLeads struct {
	mu    sync.Mutex
	leads map[uuid.UUID]*repository.Lead
}

func newMemoryLeads() *memoryLeads {
	return &memoryLeads{leads: make(map[uuid.UUID]*repository.Lead)}
}

func (m *memoryLeads) get(id, org uuid.UUID) (*repository.Lead, bool) {
	lead, ok := m.leads[id]
	if !ok || lead.OrganizationID != org {
		return nil, false
	}
	return lead, true
}

func (m *memoryLeads) Create(_ context.Context, params repository.CreateLeadParams) (repository.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	lead := &repository.Lead{
		ID:             uuid.New(),
		OrganizationID: params.OrganizationID,
		BusinessName:   params.BusinessName,
		City:           params.City,
		State:          params.State,
		Category:       params.Category,
		Phone:          params.Phone,
		Status:         "new",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.leads[lead.ID] = lead
	return *lead, nil
}

func (m *memoryLeads) GetByID(_ context.Context, id, org uuid.UUID) (repository.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.get(id, org)
	if !ok {
		return repository.Lead{}, repository.ErrNotFound
	}
	return *lead, nil
}

func (m *memoryLeads) UpdateStatus(_ context.Context, id, org uuid.UUID, status string) (string, repository.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.get(id, org)
	if !ok {
		return "", repository.Lead{}, repository.ErrNotFound
	}
	previous := lead.Status
	lead.Status = status
	return previous, *lead, nil
}

func (m *memoryLeads) Delete(_ context.Context, id, org uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.get(id, org); !ok {
		return repository.ErrNotFound
	}
	delete(m.leads, id)
	return nil
}

func (m *memoryLeads) Enrich(_ context.Context, id, org uuid.UUID, params repository.EnrichLeadParams) (repository.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.get(id, org)
	if !ok {
		return repository.Lead{}, repository.ErrNotFound
	}
	if params.Website != nil {
		lead.Website = params.Website
	}
	now := time.Now()
	lead.EnrichedAt = &now
	return *lead, nil
}

// Search implements the search repository over the same rows. Only the
// status filter is honoured.
func (m *memoryLeads) Search(_ context.Context, req query.Request) (searchrepo.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, hasStatus := req.Filter.Get(query.FieldStatus)

	page := searchrepo.Page{Leads: make([]searchrepo.Lead, 0)}
	for _, lead := range m.leads {
		if lead.OrganizationID != req.Tenant {
			continue
		}
		if hasStatus && lead.Status != status.Str {
			continue
		}
		page.Leads = append(page.Leads, searchrepo.Lead{ID: lead.ID, BusinessName: lead.BusinessName, Status: lead.Status})
	}
	page.Total = len(page.Leads)
	return page, nil
}

type recordingQueue struct {
	calls int
	err   error
}

func (q *recordingQueue) EnqueueLeadEnrichment(context.Context, uuid.UUID, uuid.UUID, transport.EnrichLeadRequest) error {
	q.calls++
	return q.err
}

type harness struct {
	leads  *memoryLeads
	svc    *Service
	search *searchservice.Service
}

func newHarness(t *testing.T) harness {
	t.Helper()
	log := logger.New("test")
	leads := newMemoryLeads()

	store, err := cache.New[searchservice.Result](cache.Options{MaxEntries: 100, DefaultTTL: time.Minute})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	catalog, err := planner.DefaultCatalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	search := searchservice.New(leads, store, catalog, time.Minute, log)

	bus := events.NewInMemoryBus(log)
	invalidation.New(store, log).Subscribe(bus)

	return harness{leads: leads, svc: New(leads, bus, log), search: search}
}

func TestUpdateStatusIsVisibleToTheNextSearch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tenant := uuid.New()

	created, err := h.svc.Create(ctx, tenant, transport.CreateLeadRequest{BusinessName: "Acme Plumbing"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := uuid.MustParse(created.ID)

	validated := query.Raw{"status": query.StringValue("validated")}
	before, err := h.search.Search(ctx, tenant, validated)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if before.Pagination.Total != 0 {
		t.Fatalf("expected no validated leads yet, got %d", before.Pagination.Total)
	}

	if _, err := h.svc.UpdateStatus(ctx, tenant, id, transport.UpdateLeadStatusRequest{Status: transport.LeadStatusValidated}); err != nil {
		t.Fatalf("update status: %v", err)
	}

	after, err := h.search.Search(ctx, tenant, validated)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if after.Cache.Hit || after.Pagination.Total != 1 || after.Leads[0].ID != created.ID {
		t.Fatalf("expected fresh result containing the lead, got %+v", after)
	}
}

func TestDeleteIsVisibleToTheNextSearch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tenant := uuid.New()

	created, err := h.svc.Create(ctx, tenant, transport.CreateLeadRequest{BusinessName: "Acme"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if resp, _ := h.search.Search(ctx, tenant, query.Raw{}); resp.Pagination.Total != 1 {
		t.Fatalf("expected one lead, got %d", resp.Pagination.Total)
	}

	if err := h.svc.Delete(ctx, tenant, uuid.MustParse(created.ID)); err != nil {
		t.Fatalf("delete: %v", err)
	}

	resp, err := h.search.Search(ctx, tenant, query.Raw{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Pagination.Total != 0 {
		t.Fatalf("expected deleted lead gone, got %d", resp.Pagination.Total)
	}
}

func TestMutationsAreTenantScoped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tenant, other := uuid.New(), uuid.New()

	created, err := h.svc.Create(ctx, tenant, transport.CreateLeadRequest{BusinessName: "Acme"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = h.svc.UpdateStatus(ctx, other, uuid.MustParse(created.ID), transport.UpdateLeadStatusRequest{Status: transport.LeadStatusRejected})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for another tenant, got %v", err)
	}
	if err := h.svc.Delete(ctx, other, uuid.MustParse(created.ID)); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for another tenant, got %v", err)
	}
}

func TestRequestEnrichmentInlineWithoutQueue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tenant := uuid.New()

	created, err := h.svc.Create(ctx, tenant, transport.CreateLeadRequest{BusinessName: "Acme"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	website := "https://acme.example"
	lead, queued, err := h.svc.RequestEnrichment(ctx, tenant, uuid.MustParse(created.ID), transport.EnrichLeadRequest{Website: &website})
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if queued || lead.Website == nil || *lead.Website != website || lead.EnrichedAt == nil {
		t.Fatalf("expected inline enrichment, got queued=%v lead=%+v", queued, lead)
	}
}

func TestRequestEnrichmentQueuesWhenConfigured(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tenant := uuid.New()
	queue := &recordingQueue{}
	h.svc.SetEnrichmentQueue(queue)

	created, err := h.svc.Create(ctx, tenant, transport.CreateLeadRequest{BusinessName: "Acme"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, queued, err := h.svc.RequestEnrichment(ctx, tenant, uuid.MustParse(created.ID), transport.EnrichLeadRequest{})
	if err != nil || !queued || queue.calls != 1 {
		t.Fatalf("expected queued enrichment, got queued=%v calls=%d err=%v", queued, queue.calls, err)
	}

	if _, _, err := h.svc.RequestEnrichment(ctx, tenant, uuid.New(), transport.EnrichLeadRequest{}); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found before enqueueing an unknown lead, got %v", err)
	}
	if queue.calls != 1 {
		t.Fatal("unknown lead must not be enqueued")
	}

	queue.err = errors.New("redis down")
	if _, _, err := h.svc.RequestEnrichment(ctx, tenant, uuid.MustParse(created.ID), transport.EnrichLeadRequest{}); !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable when the queue fails, got %v", err)
	}
}

func TestToEnrichParamsReportsChangedFields(t *testing.T) {
	level := 2
	status := transport.BusinessStatusOperational
	params, fields := toEnrichParams(transport.EnrichLeadRequest{PriceLevel: &level, BusinessStatus: &status})

	if params.PriceLevel == nil || *params.PriceLevel != 2 {
		t.Fatalf("expected price level 2, got %v", params.PriceLevel)
	}
	if params.BusinessStatus == nil || *params.BusinessStatus != "OPERATIONAL" {
		t.Fatalf("expected business status, got %v", params.BusinessStatus)
	}
	if len(fields) != 2 || fields[0] != "price_level" || fields[1] != "business_status" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestCreateCleansInput(t *testing.T) {
	h := newHarness(t)
	tenant := uuid.New()

	phoneNumber := "(650) 253-0000"
	state := " tx"
	category := "  Home   <i>Services</i> "
	lead, err := h.svc.Create(context.Background(), tenant, transport.CreateLeadRequest{
		BusinessName: "<b>Acme</b>  Plumbing",
		State:        &state,
		Category:     &category,
		Phone:        &phoneNumber,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if lead.BusinessName != "Acme Plumbing" {
		t.Fatalf("unexpected business name %q", lead.BusinessName)
	}
	if lead.State == nil || *lead.State != "TX" {
		t.Fatalf("unexpected state %v", lead.State)
	}
	if lead.Category == nil || *lead.Category != "Home Services" {
		t.Fatalf("unexpected category %v", lead.Category)
	}
	if lead.Phone == nil || *lead.Phone != "+16502530000" {
		t.Fatalf("expected E.164 phone, got %v", lead.Phone)
	}
}
