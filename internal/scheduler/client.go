package scheduler

import (
	"context"
	"time"

	"lead_portal_backend/internal/leads/transport"
	"lead_portal_backend/platform/config"
	"lead_portal_backend/platform/redis"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	enrichMaxRetry = 5
	enrichTimeout  = 30 * time.Second
)

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	opt, err := redis.AsynqOpt(cfg)
	if err != nil {
		return nil, err
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queueName(cfg),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueLeadEnrichment schedules enrichment of one lead on the worker.
func (c *Client) EnqueueLeadEnrichment(ctx context.Context, tenantID uuid.UUID, leadID uuid.UUID, req transport.EnrichLeadRequest) error {
	task, err := NewLeadEnrichTask(LeadEnrichPayload{
		TenantID: tenantID.String(),
		LeadID:   leadID.String(),
		Request:  req,
	})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(enrichMaxRetry),
		asynq.Timeout(enrichTimeout),
	)
	return err
}

func queueName(cfg config.SchedulerConfig) string {
	if queue := cfg.GetAsynqQueueName(); queue != "" {
		return queue
	}
	return "default"
}
