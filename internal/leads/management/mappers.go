package management

import (
	"lead_portal_backend/internal/leads/repository"
	"lead_portal_backend/internal/leads/transport"
	"lead_portal_backend/platform/phone"
	"lead_portal_backend/platform/sanitize"
)

// ToLeadResponse converts a repository Lead to a transport LeadResponse.
func ToLeadResponse(lead repository.Lead) transport.LeadResponse {
	var priceLevel *int
	if lead.PriceLevel != nil {
		v := int(*lead.PriceLevel)
		priceLevel = &v
	}

	return transport.LeadResponse{
		ID:                      lead.ID.String(),
		BusinessName:            lead.BusinessName,
		City:                    lead.City,
		State:                   lead.State,
		Category:                lead.Category,
		Status:                  transport.LeadStatus(lead.Status),
		Website:                 lead.Website,
		Phone:                   lead.Phone,
		Rating:                  lead.Rating,
		PriceLevel:              priceLevel,
		BusinessStatus:          lead.BusinessStatus,
		PureServiceAreaBusiness: lead.PureServiceAreaBusiness,
		EnrichedAt:              lead.EnrichedAt,
		CreatedAt:               lead.CreatedAt,
		UpdatedAt:               lead.UpdatedAt,
	}
}

func toEnrichParams(req transport.EnrichLeadRequest) (repository.EnrichLeadParams, []string) {
	params := repository.EnrichLeadParams{
		Category:                sanitize.TextPtr(req.Category),
		Website:                 req.Website,
		Phone:                   phone.NormalizePtr(req.Phone, phone.DefaultRegion),
		Rating:                  req.Rating,
		PureServiceAreaBusiness: req.PureServiceAreaBusiness,
	}
	fields := make([]string, 0, 7)

	if req.Category != nil {
		fields = append(fields, "category")
	}
	if req.Website != nil {
		fields = append(fields, "website")
	}
	if req.Phone != nil {
		fields = append(fields, "phone")
	}
	if req.Rating != nil {
		fields = append(fields, "rating")
	}
	if req.PriceLevel != nil {
		level := int16(*req.PriceLevel)
		params.PriceLevel = &level
		fields = append(fields, "price_level")
	}
	if req.BusinessStatus != nil {
		status := string(*req.BusinessStatus)
		params.BusinessStatus = &status
		fields = append(fields, "business_status")
	}
	if req.PureServiceAreaBusiness != nil {
		fields = append(fields, "pure_service_area_business")
	}

	return params, fields
}
