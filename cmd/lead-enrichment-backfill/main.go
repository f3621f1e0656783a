package main

import (
	"context"
	"time"

	"lead_portal_backend/internal/leads/transport"
	"lead_portal_backend/internal/scheduler"
	"lead_portal_backend/platform/config"
	"lead_portal_backend/platform/db"
	"lead_portal_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pendingLead struct {
	id        uuid.UUID
	tenantID  uuid.UUID
	createdAt time.Time
}

// Enqueues a leads.enrich task for every lead that was never enriched. The
// worker applies them and the search caches are invalidated per lead.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting lead enrichment backfill")

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	queue, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize enrichment queue", "error", err)
		panic("failed to initialize enrichment queue: " + err.Error())
	}
	defer func() { _ = queue.Close() }()

	const batchSize = 200
	const delayBetweenBatches = 500 * time.Millisecond

	var processed int
	var enqueued int

	cursorTime := time.Time{}
	cursorID := uuid.Nil

	for {
		leads, err := listPendingLeads(ctx, pool, batchSize, cursorTime, cursorID)
		if err != nil {
			log.Error("failed to list leads", "error", err)
			break
		}
		if len(leads) == 0 {
			break
		}

		for _, lead := range leads {
			processed++
			cursorTime = lead.createdAt
			cursorID = lead.id

			if err := queue.EnqueueLeadEnrichment(ctx, lead.tenantID, lead.id, transport.EnrichLeadRequest{}); err != nil {
				log.Error("failed to enqueue lead enrichment", "leadId", lead.id, "tenantId", lead.tenantID, "error", err)
				continue
			}
			enqueued++
		}

		time.Sleep(delayBetweenBatches)
	}

	log.Info("lead enrichment backfill completed", "processed", processed, "enqueued", enqueued)
}

func listPendingLeads(ctx context.Context, pool *pgxpool.Pool, limit int, cursorTime time.Time, cursorID uuid.UUID) ([]pendingLead, error) {
	rows, err := pool.Query(ctx, `
    SELECT id, organization_id, created_at
    FROM leads
    WHERE deleted_at IS NULL
      AND enriched_at IS NULL
      AND (created_at > $1 OR (created_at = $1 AND id > $2))
    ORDER BY created_at ASC, id ASC
    LIMIT $3
  `, cursorTime, cursorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]pendingLead, 0)
	for rows.Next() {
		var lead pendingLead
		if err := rows.Scan(&lead.id, &lead.tenantID, &lead.createdAt); err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return leads, nil
}
