package scheduler

import (
	"context"
	"time"

	"lead_portal_backend/platform/logger"
)

const (
	defaultLeadPurgeInterval = time.Hour
	defaultDeletedRetention  = 30 * 24 * time.Hour
)

// LeadPurger removes soft-deleted leads.
type LeadPurger interface {
	PurgeDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// LeadPurge periodically removes leads that were soft-deleted longer than
// the retention period ago.
type LeadPurge struct {
	repo      LeadPurger
	log       *logger.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewLeadPurge(repo LeadPurger, log *logger.Logger, interval, retention time.Duration) *LeadPurge {
	if interval <= 0 {
		interval = defaultLeadPurgeInterval
	}
	if retention <= 0 {
		retention = defaultDeletedRetention
	}

	return &LeadPurge{
		repo:      repo,
		log:       log,
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}
}

func (p *LeadPurge) Run(ctx context.Context) {
	if p == nil || p.repo == nil {
		return
	}

	p.purge(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.purge(ctx)
		}
	}
}

func (p *LeadPurge) purge(ctx context.Context) {
	purged, err := p.repo.PurgeDeletedBefore(ctx, p.now().Add(-p.retention))
	if err != nil {
		p.log.Warn("lead purge failed", "error", err)
		return
	}

	if purged > 0 {
		p.log.Info("lead purge removed soft-deleted leads", "purged", purged)
	}
}
