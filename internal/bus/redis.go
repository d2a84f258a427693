package bus

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBus fans events out through a Redis pub/sub channel. It is the
// production default: every instance publishes to and subscribes from the
// same channel.
type RedisBus struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
}

// NewRedisBus creates a bus on top of an established Redis client.
func NewRedisBus(client *redis.Client, channel string, logger zerolog.Logger) *RedisBus {
	return &RedisBus{
		client:  client,
		channel: channel,
		logger:  logger.With().Str("component", "redis_bus").Logger(),
	}
}

// Publish serializes event onto the shared channel.
func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Subscribe consumes the shared channel until ctx is cancelled.
func (b *RedisBus) Subscribe(ctx context.Context, handler Handler) error {
	pubsub := b.client.Subscribe(ctx, b.channel)

	// Force the subscription to be established before returning so callers
	// never publish into a channel nobody listens on yet.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	go func() {
		defer func() { _ = pubsub.Close() }()
		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				b.logger.Error().Err(err).Msg("bus subscription closed")
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn().Err(err).Msg("invalid bus event payload")
				continue
			}
			handler(event)
		}
	}()

	return nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (b *RedisBus) Close() error {
	return nil
}
