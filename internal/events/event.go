// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"lead_portal_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Leads Domain Events
// =============================================================================

// LeadMutation is implemented by every event that changes what a lead search
// can return.
type LeadMutation interface {
	Event
	MutationKind() string
	Tenant() uuid.UUID
	Lead() uuid.UUID
}

// LeadCreated is published after a new lead is committed.
type LeadCreated struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	TenantID uuid.UUID `json:"tenantId"`
}

func (e LeadCreated) EventName() string    { return "leads.created" }
func (e LeadCreated) MutationKind() string { return "created" }
func (e LeadCreated) Tenant() uuid.UUID    { return e.TenantID }
func (e LeadCreated) Lead() uuid.UUID      { return e.LeadID }

// LeadStatusChanged is published after a lead's status update is committed.
type LeadStatusChanged struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	TenantID  uuid.UUID `json:"tenantId"`
	OldStatus string    `json:"oldStatus"`
	NewStatus string    `json:"newStatus"`
}

func (e LeadStatusChanged) EventName() string    { return "leads.status.changed" }
func (e LeadStatusChanged) MutationKind() string { return "status_changed" }
func (e LeadStatusChanged) Tenant() uuid.UUID    { return e.TenantID }
func (e LeadStatusChanged) Lead() uuid.UUID      { return e.LeadID }

// LeadSoftDeleted is published after a lead is soft deleted.
type LeadSoftDeleted struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	TenantID uuid.UUID `json:"tenantId"`
}

func (e LeadSoftDeleted) EventName() string    { return "leads.soft_deleted" }
func (e LeadSoftDeleted) MutationKind() string { return "soft_deleted" }
func (e LeadSoftDeleted) Tenant() uuid.UUID    { return e.TenantID }
func (e LeadSoftDeleted) Lead() uuid.UUID      { return e.LeadID }

// LeadEnriched is published after enrichment data is written to a lead.
type LeadEnriched struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	TenantID uuid.UUID `json:"tenantId"`
	Fields   []string  `json:"fields"`
}

func (e LeadEnriched) EventName() string    { return "leads.enriched" }
func (e LeadEnriched) MutationKind() string { return "enriched" }
func (e LeadEnriched) Tenant() uuid.UUID    { return e.TenantID }
func (e LeadEnriched) Lead() uuid.UUID      { return e.LeadID }

// LeadMutationEventNames lists the events a search cache must react to.
var LeadMutationEventNames = []string{
	LeadCreated{}.EventName(),
	LeadStatusChanged{}.EventName(),
	LeadSoftDeleted{}.EventName(),
	LeadEnriched{}.EventName(),
}
