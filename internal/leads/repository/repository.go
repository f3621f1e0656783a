package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("lead not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type Lead struct {
	ID                      uuid.UUID
	OrganizationID          uuid.UUID
	BusinessName            string
	City                    *string
	State                   *string
	Category                *string
	Status                  string
	Website                 *string
	Phone                   *string
	Rating                  *float64
	PriceLevel              *int16
	BusinessStatus          *string
	PureServiceAreaBusiness *bool
	EnrichedAt              *time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

type CreateLeadParams struct {
	OrganizationID uuid.UUID
	BusinessName   string
	City           *string
	State          *string
	Category       *string
	Website        *string
	Phone          *string
}

// EnrichLeadParams carries enrichment results. Nil fields keep their
// current value.
type EnrichLeadParams struct {
	Category                *string
	Website                 *string
	Phone                   *string
	Rating                  *float64
	PriceLevel              *int16
	BusinessStatus          *string
	PureServiceAreaBusiness *bool
}

const leadColumns = `id, organization_id, business_name, city, state, category, status,
	website, phone, rating, price_level, business_status, pure_service_area_business,
	enriched_at, created_at, updated_at`

func scanLead(row pgx.Row) (Lead, error) {
	var lead Lead
	err := row.Scan(
		&lead.ID, &lead.OrganizationID, &lead.BusinessName, &lead.City, &lead.State, &lead.Category, &lead.Status,
		&lead.Website, &lead.Phone, &lead.Rating, &lead.PriceLevel, &lead.BusinessStatus, &lead.PureServiceAreaBusiness,
		&lead.EnrichedAt, &lead.CreatedAt, &lead.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	return lead, err
}

func (r *Repository) Create(ctx context.Context, params CreateLeadParams) (Lead, error) {
	return scanLead(r.pool.QueryRow(ctx, `
		INSERT INTO leads (organization_id, business_name, city, state, category, website, phone)
		VALUES ($1, $2, COALESCE($3, ''), $4, COALESCE($5, ''), $6, $7)
		RETURNING `+leadColumns,
		params.OrganizationID, params.BusinessName, params.City, params.State, params.Category, params.Website, params.Phone,
	))
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) (Lead, error) {
	return scanLead(r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
	`, id, organizationID))
}

// UpdateStatus sets the status and returns the previous one with the
// updated lead.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, organizationID uuid.UUID, status string) (string, Lead, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", Lead{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var previous string
	err = tx.QueryRow(ctx, `
		SELECT status FROM leads
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
		FOR UPDATE
	`, id, organizationID).Scan(&previous)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", Lead{}, ErrNotFound
	}
	if err != nil {
		return "", Lead{}, err
	}

	lead, err := scanLead(tx.QueryRow(ctx, `
		UPDATE leads SET status = $3, updated_at = now()
		WHERE id = $1 AND organization_id = $2
		RETURNING `+leadColumns,
		id, organizationID, status,
	))
	if err != nil {
		return "", Lead{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", Lead{}, err
	}
	return previous, lead, nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID, organizationID uuid.UUID) error {
	result, err := r.pool.Exec(ctx, "UPDATE leads SET deleted_at = now(), updated_at = now() WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL", id, organizationID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) Enrich(ctx context.Context, id uuid.UUID, organizationID uuid.UUID, params EnrichLeadParams) (Lead, error) {
	return scanLead(r.pool.QueryRow(ctx, `
		UPDATE leads SET
			category = COALESCE($3, category),
			website = COALESCE($4, website),
			phone = COALESCE($5, phone),
			rating = COALESCE($6, rating),
			price_level = COALESCE($7, price_level),
			business_status = COALESCE($8, business_status),
			pure_service_area_business = COALESCE($9, pure_service_area_business),
			enriched_at = now(),
			updated_at = now()
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
		RETURNING `+leadColumns,
		id, organizationID, params.Category, params.Website, params.Phone, params.Rating,
		params.PriceLevel, params.BusinessStatus, params.PureServiceAreaBusiness,
	))
}

// PurgeDeletedBefore permanently removes leads soft-deleted before the cutoff.
// Purged rows were already invisible to every read, so no event is published.
func (r *Repository) PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM leads WHERE deleted_at IS NOT NULL AND deleted_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
