package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lead_portal_backend/internal/search/planner"
	"lead_portal_backend/internal/search/query"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Lead is one row of a search page.
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

// Page is a window of matching leads plus the total match count.
type Page struct {
	Leads []Lead
	Total int
}

// Search runs a normalized request. The count and the page are read in one
// read-only snapshot so the total agrees with the rows returned.
func (r *Repository) Search(ctx context.Context, req query.Request) (Page, error) {
	whereClause, args, argIdx := buildSearchWhere(req)

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return Page{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM leads l WHERE %s", whereClause)
	if err := tx.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return Page{}, err
	}

	page := Page{Leads: make([]Lead, 0), Total: total}
	if total == 0 || req.Pagination.Offset() >= total {
		return page, tx.Commit(ctx)
	}

	sortColumn := mapSortColumn(req.Sort.Field)
	sortOrder := "DESC"
	if req.Sort.Direction == query.Asc {
		sortOrder = "ASC"
	}

	args = append(args, req.Pagination.Limit, req.Pagination.Offset())

	searchQuery := fmt.Sprintf(`
		SELECT l.id, l.organization_id, l.business_name, l.city, l.state, l.category, l.status,
			l.website, l.phone, l.rating, l.price_level, l.business_status, l.pure_service_area_business,
			l.enriched_at, l.created_at, l.updated_at
		FROM leads l
		WHERE %s
		ORDER BY %s %s, l.id %s
		LIMIT $%d OFFSET $%d
	`, whereClause, sortColumn, sortOrder, sortOrder, argIdx, argIdx+1)

	rows, err := tx.Query(ctx, searchQuery, args...)
	if err != nil {
		return Page{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var lead Lead
		if err := rows.Scan(
			&lead.ID, &lead.OrganizationID, &lead.BusinessName, &lead.City, &lead.State, &lead.Category, &lead.Status,
			&lead.Website, &lead.Phone, &lead.Rating, &lead.PriceLevel, &lead.BusinessStatus, &lead.PureServiceAreaBusiness,
			&lead.EnrichedAt, &lead.CreatedAt, &lead.UpdatedAt,
		); err != nil {
			return Page{}, err
		}
		page.Leads = append(page.Leads, lead)
	}
	if rows.Err() != nil {
		return Page{}, rows.Err()
	}

	return page, tx.Commit(ctx)
}

func buildSearchWhere(req query.Request) (string, []interface{}, int) {
	// Organization ID is always the first filter (mandatory for tenant isolation)
	whereClauses := []string{"l.organization_id = $1", "l.deleted_at IS NULL"}
	args := []interface{}{req.Tenant}
	argIdx := 2

	add := func(format string, value interface{}) {
		whereClauses = append(whereClauses, fmt.Sprintf(format, argIdx))
		args = append(args, value)
		argIdx++
	}

	for _, p := range req.Filter.Predicates() {
		switch p.Field {
		case query.FieldCity:
			add("lower(l.city) = $%d", p.Value.Str)
		case query.FieldCategory:
			add("lower(l.category) = $%d", p.Value.Str)
		case query.FieldState:
			add("l.state = $%d", p.Value.Str)
		case query.FieldStatus:
			add("l.status = $%d", p.Value.Str)
		case query.FieldBusinessStatus:
			add("l.business_status = $%d", p.Value.Str)
		case query.FieldMinRating:
			add("l.rating >= $%d", p.Value.Num)
		case query.FieldPriceLevel:
			add("l.price_level = $%d", int16(p.Value.Num))
		case query.FieldPureServiceAreaBusiness:
			add("l.pure_service_area_business = $%d", p.Value.Bool)
		case query.FieldBusinessNameContains:
			add(`l.business_name ILIKE $%d ESCAPE '\'`, "%"+escapeLike(p.Value.Str)+"%")
		case query.FieldHasWebsite:
			if p.Value.Bool {
				whereClauses = append(whereClauses, "COALESCE(l.website, '') <> ''")
			} else {
				whereClauses = append(whereClauses, "COALESCE(l.website, '') = ''")
			}
		}
	}

	return strings.Join(whereClauses, " AND "), args, argIdx
}

func mapSortColumn(field query.SortField) string {
	switch field {
	case query.SortUpdatedAt:
		return "l.updated_at"
	case query.SortRating:
		return "l.rating"
	case query.SortBusinessName:
		return "l.business_name"
	case query.SortCity:
		return "l.city"
	default:
		return "l.created_at"
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// ListIndexes reads the live index definitions on the leads table.
func (r *Repository) ListIndexes(ctx context.Context) ([]planner.IndexDescriptor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT i.relname,
			am.amname,
			array_agg(pg_get_indexdef(ix.indexrelid, k, true) ORDER BY k) AS columns,
			COALESCE(bool_or(pg_get_indexdef(ix.indexrelid, k, false) LIKE '%trgm_ops%'), false) AS trigram
		FROM pg_index ix
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_am am ON am.oid = i.relam
		CROSS JOIN LATERAL generate_series(1, ix.indnkeyatts) AS k
		WHERE t.relname = 'leads' AND n.nspname = current_schema()
		GROUP BY i.relname, am.amname
		ORDER BY i.relname
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	indexes := make([]planner.IndexDescriptor, 0)
	for rows.Next() {
		var (
			name, accessMethod string
			columns            []string
			trigram            bool
		)
		if err := rows.Scan(&name, &accessMethod, &columns, &trigram); err != nil {
			return nil, err
		}
		method := planner.MethodBTree
		if trigram || accessMethod == "gin" || accessMethod == "gist" {
			method = planner.MethodTrigram
		} else if accessMethod != "btree" {
			continue
		}
		indexes = append(indexes, planner.IndexDescriptor{Name: name, Columns: columns, Method: method})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return indexes, nil
}
