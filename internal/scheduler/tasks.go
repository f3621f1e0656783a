package scheduler

import (
	"encoding/json"

	"lead_portal_backend/internal/leads/transport"

	"github.com/hibiken/asynq"
)

const TaskLeadEnrich = "leads.enrich"

type LeadEnrichPayload struct {
	TenantID string                      `json:"tenantId"`
	LeadID   string                      `json:"leadId"`
	Request  transport.EnrichLeadRequest `json:"request"`
}

func NewLeadEnrichTask(payload LeadEnrichPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadEnrich, data), nil
}

func ParseLeadEnrichPayload(task *asynq.Task) (LeadEnrichPayload, error) {
	var payload LeadEnrichPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return LeadEnrichPayload{}, err
	}
	return payload, nil
}
