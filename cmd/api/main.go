package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lead_portal_backend/internal/events"
	apphttp "lead_portal_backend/internal/http"
	"lead_portal_backend/internal/http/router"
	"lead_portal_backend/internal/leads"
	"lead_portal_backend/internal/scheduler"
	"lead_portal_backend/internal/search"
	"lead_portal_backend/internal/search/cache"
	"lead_portal_backend/internal/search/invalidation"
	"lead_portal_backend/platform/config"
	"lead_portal_backend/platform/db"
	"lead_portal_backend/platform/logger"
	"lead_portal_backend/platform/redis"
	"lead_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	if cfg.RunMigrations {
		applied, err := db.RunMigrations(ctx, pool)
		if err != nil {
			log.Error("failed to run database migrations", "error", err)
			panic("failed to run database migrations: " + err.Error())
		}
		log.Info("database migrations complete", "applied", len(applied))
	}

	// Redis is optional: without it the search cache is process-local and
	// enrichment runs inline.
	var rdb *goredis.Client
	if cfg.IsRedisEnabled() {
		client, err := redis.NewClient(ctx, cfg)
		if err != nil {
			log.CacheDegraded("redis.connect", err)
		} else {
			rdb = client
			defer func() { _ = rdb.Close() }()
			log.Info("redis connection established")
		}
	} else {
		log.Warn("REDIS_URL not configured; shared search cache and enrichment queue disabled")
	}

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	searchModule, err := search.NewModule(ctx, pool, cfg, log)
	if err != nil {
		log.Error("failed to initialize search module", "error", err)
		panic("failed to initialize search module: " + err.Error())
	}
	defer searchModule.Store().Close()
	searchModule.Store().StartSweeper(ctx, cfg.GetSearchCacheSweepInterval())

	// Every lead mutation evicts the tenant's cached searches before the
	// mutating request returns.
	hook := invalidation.New(searchModule.Store(), log)
	hook.Subscribe(eventBus)

	leadsModule := leads.NewModule(pool, eventBus, val, log)

	var cacheHealth apphttp.HealthChecker
	if rdb != nil {
		tier := cache.NewRedisTier(rdb)
		searchModule.Service().SetSharedTier(tier)
		hook.SetSharedTier(tier)

		broadcaster := invalidation.NewRedisBroadcaster(rdb, log)
		hook.SetBroadcaster(broadcaster)
		go func() {
			if err := broadcaster.Listen(ctx, hook.ApplyRemote); err != nil {
				log.CacheDegraded("search.invalidation.listen", err)
			}
		}()

		queue, err := scheduler.NewClient(cfg)
		if err != nil {
			log.Error("failed to initialize enrichment queue; enrichment runs inline", "error", err)
		} else {
			defer func() { _ = queue.Close() }()
			leadsModule.SetEnrichmentQueue(queue)
		}

		cacheHealth = redis.NewHealthChecker(rdb)
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		Cache:    cacheHealth,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			searchModule,
			leadsModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
