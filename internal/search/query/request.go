// Package query normalizes raw leads search input into a canonical request
// and derives the cache key identifying it.
package query

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
	maxPage      = 100000
)

// SortField is an allow-listed sort column.
type SortField string

const (
	SortCreatedAt    SortField = "created_at"
	SortUpdatedAt    SortField = "updated_at"
	SortRating       SortField = "rating"
	SortBusinessName SortField = "business_name"
	SortCity         SortField = "city"
)

var sortFields = map[SortField]struct{}{
	SortCreatedAt:    {},
	SortUpdatedAt:    {},
	SortRating:       {},
	SortBusinessName: {},
	SortCity:         {},
}

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Sort is the requested ordering.
type Sort struct {
	Field     SortField
	Direction Direction
}

// Column returns the leads column to order by.
func (s Sort) Column() string { return string(s.Field) }

// Pagination is a 1-based page window.
type Pagination struct {
	Page  int
	Limit int
}

// Offset returns the number of rows to skip.
func (p Pagination) Offset() int { return (p.Page - 1) * p.Limit }

// Request is a normalized, tenant-scoped search.
type Request struct {
	Tenant     uuid.UUID
	Filter     Filter
	Pagination Pagination
	Sort       Sort
}

// Normalize validates raw input into a canonical Request. Unknown keys are
// ignored, invalid filter values are dropped and pagination falls back to
// defaults; it never fails.
func Normalize(raw Raw) Request {
	return Request{
		Filter:     newFilter(raw),
		Pagination: newPagination(raw),
		Sort:       newSort(raw),
	}
}

// ForTenant returns a copy of r scoped to tenant.
func (r Request) ForTenant(tenant uuid.UUID) Request {
	r.Tenant = tenant
	return r
}

// Raw renders r back into raw input. Normalize(r.Raw()) equals r apart from
// the tenant.
func (r Request) Raw() Raw {
	raw := make(Raw, r.Filter.Len()+4)
	for _, p := range r.Filter.predicates {
		raw[string(p.Field)] = p.Value
	}
	raw["page"] = NumberValue(float64(r.Pagination.Page))
	raw["limit"] = NumberValue(float64(r.Pagination.Limit))
	raw["sort_by"] = StringValue(string(r.Sort.Field))
	raw["sort_order"] = StringValue(string(r.Sort.Direction))
	return raw
}

// Canonical is the deterministic string form of r that the cache key is
// derived from. Equal requests always produce equal strings.
func (r Request) Canonical() string {
	var b strings.Builder
	b.WriteString("tenant=")
	b.WriteString(r.Tenant.String())
	b.WriteString("|filter=")
	for i, p := range r.Filter.predicates {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(string(p.Field))
		b.WriteByte('=')
		b.WriteString(p.Value.canonical())
	}
	b.WriteString("|page=")
	b.WriteString(strconv.Itoa(r.Pagination.Page))
	b.WriteString("|limit=")
	b.WriteString(strconv.Itoa(r.Pagination.Limit))
	b.WriteString("|sort=")
	b.WriteString(string(r.Sort.Field))
	b.WriteByte(':')
	b.WriteString(string(r.Sort.Direction))
	return b.String()
}

func newPagination(raw Raw) Pagination {
	p := Pagination{Page: DefaultPage, Limit: DefaultLimit}
	if v, ok := raw["page"]; ok {
		if page, ok := v.integer(); ok && page >= 1 && page <= maxPage {
			p.Page = page
		}
	}
	if v, ok := raw["limit"]; ok {
		if limit, ok := v.integer(); ok && limit >= 1 {
			p.Limit = min(limit, MaxLimit)
		}
	}
	return p
}

func newSort(raw Raw) Sort {
	s := Sort{Field: SortCreatedAt, Direction: Desc}
	if v, ok := raw["sort_by"]; ok {
		if text, ok := v.text(); ok {
			field := SortField(strings.ToLower(strings.TrimSpace(text)))
			if _, ok := sortFields[field]; ok {
				s.Field = field
			}
		}
	}
	if v, ok := raw["sort_order"]; ok {
		if text, ok := v.text(); ok {
			switch Direction(strings.ToLower(strings.TrimSpace(text))) {
			case Asc:
				s.Direction = Asc
			case Desc:
				s.Direction = Desc
			}
		}
	}
	return s
}

// Key identifies a cached search result.
type Key struct {
	Tenant uuid.UUID
	Digest string
}

const keyPrefix = "leads:search:v1:"

func (k Key) String() string {
	return keyPrefix + k.Tenant.String() + ":" + k.Digest
}

// DeriveKey hashes the canonical form of r.
func DeriveKey(r Request) Key {
	sum := sha256.Sum256([]byte(r.Canonical()))
	return Key{
		Tenant: r.Tenant,
		Digest: hex.EncodeToString(sum[:]),
	}
}
