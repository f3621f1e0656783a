package transport

import "time"

type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusValidated LeadStatus = "validated"
	LeadStatusQualified LeadStatus = "qualified"
	LeadStatusConverted LeadStatus = "converted"
	LeadStatusRejected  LeadStatus = "rejected"
)

type BusinessStatus string

const (
	BusinessStatusOperational       BusinessStatus = "OPERATIONAL"
	BusinessStatusClosedTemporarily BusinessStatus = "CLOSED_TEMPORARILY"
	BusinessStatusClosedPermanently BusinessStatus = "CLOSED_PERMANENTLY"
)

// Request DTOs
type CreateLeadRequest struct {
	BusinessName string  `json:"businessName" validate:"required,min=1,max=200"`
	City         *string `json:"city,omitempty" validate:"omitempty,min=1,max=100"`
	State        *string `json:"state,omitempty" validate:"omitempty,len=2,alpha"`
	Category     *string `json:"category,omitempty" validate:"omitempty,min=1,max=100"`
	Website      *string `json:"website,omitempty" validate:"omitempty,url,max=500"`
	Phone        *string `json:"phone,omitempty" validate:"omitempty,min=5,max=30"`
}

type UpdateLeadStatusRequest struct {
	Status LeadStatus `json:"status" validate:"required,oneof=new contacted validated qualified converted rejected"`
}

// EnrichLeadRequest carries enrichment data. Omitted fields are left
// unchanged. An empty body asks the worker to enrich from its own sources.
type EnrichLeadRequest struct {
	Category                *string         `json:"category,omitempty" validate:"omitempty,min=1,max=100"`
	Website                 *string         `json:"website,omitempty" validate:"omitempty,url,max=500"`
	Phone                   *string         `json:"phone,omitempty" validate:"omitempty,min=5,max=30"`
	Rating                  *float64        `json:"rating,omitempty" validate:"omitempty,min=0,max=5"`
	PriceLevel              *int            `json:"priceLevel,omitempty" validate:"omitempty,min=0,max=4"`
	BusinessStatus          *BusinessStatus `json:"businessStatus,omitempty" validate:"omitempty,oneof=OPERATIONAL CLOSED_TEMPORARILY CLOSED_PERMANENTLY"`
	PureServiceAreaBusiness *bool           `json:"pureServiceAreaBusiness,omitempty"`
}

// Response DTOs
type LeadResponse struct {
	ID                      string     `json:"id"`
	BusinessName            string     `json:"businessName"`
	City                    *string    `json:"city,omitempty"`
	State                   *string    `json:"state,omitempty"`
	Category                *string    `json:"category,omitempty"`
	Status                  LeadStatus `json:"status"`
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

type EnrichmentQueuedResponse struct {
	LeadID string `json:"leadId"`
	Status string `json:"status"`
}
