package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/evermore-ai/concierge/pkg/logging"
)

const channelPrefix = "changefeed:"

// RedisBridge spans the change feed across instances: every publish lands on
// the local hub and on a redis channel, and Run forwards foreign instances'
// events back into the hub. Each bridge tags its events with an origin id so
// its own publishes are not replayed.
type RedisBridge struct {
	redis  *redis.Client
	hub    *Hub
	origin string
	logger *logging.Logger
}

func NewRedisBridge(redisClient *redis.Client, hub *Hub, logger *logging.Logger) *RedisBridge {
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisBridge{
		redis:  redisClient,
		hub:    hub,
		origin: uuid.NewString(),
		logger: logger,
	}
}

// Publish delivers locally and broadcasts over redis. Without a redis client
// the bridge degrades to hub-only delivery.
func (b *RedisBridge) Publish(ctx context.Context, change Change) error {
	change.Origin = b.origin
	if err := b.hub.Publish(ctx, change); err != nil {
		return err
	}
	if b.redis == nil {
		return nil
	}

	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("events: marshal change: %w", err)
	}
	if err := b.redis.Publish(ctx, channelPrefix+change.Table, data).Err(); err != nil {
		return fmt.Errorf("events: publish change: %w", err)
	}
	return nil
}

// Run subscribes to all change channels and forwards foreign events into the
// hub until the context is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	if b.redis == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	sub := b.redis.PSubscribe(ctx, channelPrefix+"*")
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var change Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				b.logger.Warn("changefeed: dropping malformed event", "error", err)
				continue
			}
			if change.Origin == b.origin {
				continue
			}
			_ = b.hub.Publish(ctx, change)
		}
	}
}
