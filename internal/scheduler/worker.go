package scheduler

import (
	"context"
	"fmt"

	"lead_portal_backend/internal/leads/transport"
	"lead_portal_backend/platform/apperr"
	"lead_portal_backend/platform/config"
	"lead_portal_backend/platform/logger"
	"lead_portal_backend/platform/redis"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// LeadEnricher applies enrichment data to a lead and publishes the mutation.
type LeadEnricher interface {
	Enrich(ctx context.Context, tenantID uuid.UUID, id uuid.UUID, req transport.EnrichLeadRequest) (transport.LeadResponse, error)
}

type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	enricher LeadEnricher
	log      *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, enricher LeadEnricher, log *logger.Logger) (*Worker, error) {
	opt, err := redis.AsynqOpt(cfg)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := &Worker{
		server:   server,
		mux:      asynq.NewServeMux(),
		enricher: enricher,
		log:      log,
	}
	w.mux.HandleFunc(TaskLeadEnrich, w.handleLeadEnrich)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// handleLeadEnrich enriches one lead. Malformed payloads and leads that no
// longer exist are not retried.
func (w *Worker) handleLeadEnrich(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseLeadEnrichPayload(task)
	if err != nil {
		return fmt.Errorf("parse %s payload: %v: %w", TaskLeadEnrich, err, asynq.SkipRetry)
	}

	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return fmt.Errorf("invalid tenant id: %v: %w", err, asynq.SkipRetry)
	}
	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return fmt.Errorf("invalid lead id: %v: %w", err, asynq.SkipRetry)
	}

	if _, err := w.enricher.Enrich(ctx, tenantID, leadID, payload.Request); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			w.log.Warn("enrichment skipped for missing lead", "leadId", leadID, "tenantId", tenantID)
			return fmt.Errorf("lead %s: %w", leadID, asynq.SkipRetry)
		}
		return err
	}

	w.log.Info("lead enriched", "leadId", leadID, "tenantId", tenantID)
	return nil
}
