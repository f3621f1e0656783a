package invalidation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"lead_portal_backend/platform/logger"
)

// Channel carries mutations between instances.
const Channel = "leads:search:invalidate"

// RedisBroadcaster publishes mutations over Redis pub/sub and applies the
// ones published by other instances. Delivery is best effort; the shared
// tier generation still protects a peer that misses a message, and its
// local entries age out by TTL.
type RedisBroadcaster struct {
	rdb    goredis.UniversalClient
	origin string
	log    *logger.Logger
}

func NewRedisBroadcaster(rdb goredis.UniversalClient, log *logger.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb, origin: uuid.NewString(), log: log}
}

// Origin identifies this instance in published messages.
func (b *RedisBroadcaster) Origin() string { return b.origin }

func (b *RedisBroadcaster) Broadcast(ctx context.Context, m Mutation) error {
	m.Origin = b.origin
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode mutation: %w", err)
	}
	if err := b.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

// Listen applies peer mutations until ctx is done. Messages published by
// this instance are skipped.
func (b *RedisBroadcaster) Listen(ctx context.Context, apply func(Mutation)) error {
	sub := b.rdb.Subscribe(ctx, Channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", Channel, err)
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var m Mutation
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				b.log.Warn("invalid invalidation message", "error", err)
				continue
			}
			if m.Origin == b.origin {
				continue
			}
			apply(m)
		}
	}
}
