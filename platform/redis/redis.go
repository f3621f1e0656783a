// Package redis provides shared Redis connection infrastructure.
// This is part of the platform layer and contains no business logic.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"lead_portal_backend/platform/config"

	"github.com/hibiken/asynq"
	goredis "github.com/redis/go-redis/v9"
)

// ParseOptions parses a redis:// or rediss:// URL and applies the TLS policy.
func ParseOptions(cfg config.RedisConfig) (*goredis.Options, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if cfg.GetRedisTLSInsecure() {
			clone.InsecureSkipVerify = true
		}
		opt.TLSConfig = clone
	} else if cfg.GetRedisTLSInsecure() {
		opt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return opt, nil
}

// NewClient opens a go-redis client and verifies connectivity.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	opt, err := ParseOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := goredis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// AsynqOpt converts the configured URL into asynq connection options.
func AsynqOpt(cfg config.RedisConfig) (asynq.RedisClientOpt, error) {
	opt, err := ParseOptions(cfg)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}

// HealthChecker adapts a client to the readiness check interface.
type HealthChecker struct {
	client goredis.UniversalClient
}

// NewHealthChecker wraps client for readiness checks.
func NewHealthChecker(client goredis.UniversalClient) *HealthChecker {
	return &HealthChecker{client: client}
}

// Ping reports whether Redis answers.
func (h *HealthChecker) Ping(ctx context.Context) error {
	return h.client.Ping(ctx).Err()
}
