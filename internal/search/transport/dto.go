package transport

import "time"

type LeadSummary struct {
	ID                      string     `json:"id"`
	BusinessName            string     `json:"businessName"`
	City                    *string    `json:"city,omitempty"`
	State                   *string    `json:"state,omitempty"`
	Category                *string    `json:"category,omitempty"`
	Status                  string     `json:"status"`
	Website                 *string    `json:"website,omitempty"`
	Phone                   *string    `json:"phone,omitempty"`
	Rating                  *float64   `json:"rating,omitempty"`
	PriceLevel              *int       `json:"priceLevel,omitempty"`
	BusinessStatus          *string    `json:"businessStatus,omitempty"`
	PureServiceAreaBusiness *bool      `json:"pureServiceAreaBusiness,omitempty"`
	EnrichedAt              *time.Time `json:"enrichedAt,omitempty"`
	CreatedAt               time.Time  `json:"createdAt"`
	UpdatedAt               time.Time  `json:"updatedAt"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type CacheInfo struct {
	Hit bool   `json:"hit"`
	Key string `json:"key"`
}

type ExplainChecks struct {
	UsesIndexedFilter bool `json:"usesIndexedFilter"`
}

type QueryPlan struct {
	IndexedFilters   []string      `json:"indexedFilters"`
	UnindexedFilters []string      `json:"unindexedFilters"`
	ExplainChecks    ExplainChecks `json:"explainChecks"`
}

// SearchResponse is the envelope returned by both search routes.
type SearchResponse struct {
	Leads      []LeadSummary `json:"leads"`
	Pagination Pagination    `json:"pagination"`
	Cache      CacheInfo     `json:"cache"`
	QueryPlan  QueryPlan     `json:"queryPlan"`
}

type CacheStats struct {
	Entries       int   `json:"entries"`
	InFlight      int   `json:"inFlight"`
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Computations  int64 `json:"computations"`
	Evictions     int64 `json:"evictions"`
	Expirations   int64 `json:"expirations"`
	Invalidations int64 `json:"invalidations"`
}

type IndexInfo struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Method  string   `json:"method"`
}

type StatsResponse struct {
	Cache        CacheStats  `json:"cache"`
	SharedTier   bool        `json:"sharedTier"`
	IndexCatalog []IndexInfo `json:"indexCatalog"`
}
