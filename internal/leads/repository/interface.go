package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// LeadReader provides read-only access to a single lead.
type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (Lead, error)
}

// LeadWriter provides the mutations that change what a search can return.
type LeadWriter interface {
	Create(ctx context.Context, params CreateLeadParams) (Lead, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, organizationID uuid.UUID, status string) (string, Lead, error)
	Delete(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) error
	Enrich(ctx context.Context, id uuid.UUID, organizationID uuid.UUID, params EnrichLeadParams) (Lead, error)
}

// LeadMaintenance removes rows that no read can return any more.
type LeadMaintenance interface {
	PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// LeadsRepository is the full lead persistence interface.
type LeadsRepository interface {
	LeadReader
	LeadWriter
	LeadMaintenance
}

var _ LeadsRepository = (*Repository)(nil)
