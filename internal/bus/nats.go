package bus

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSBus fans events out through a NATS subject. Deployments can run it
// alongside or instead of the Redis bus.
type NATSBus struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
	sub     *nats.Subscription
}

// NewNATSBus creates a bus on top of an established NATS connection.
func NewNATSBus(conn *nats.Conn, subject string, logger zerolog.Logger) *NATSBus {
	return &NATSBus{
		conn:    conn,
		subject: subject,
		logger:  logger.With().Str("component", "nats_bus").Logger(),
	}
}

// Publish serializes event onto the shared subject.
func (b *NATSBus) Publish(_ context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.conn.Publish(b.subject, payload)
}

// Subscribe consumes the subject until ctx is cancelled.
func (b *NATSBus) Subscribe(ctx context.Context, handler Handler) error {
	sub, err := b.conn.Subscribe(b.subject, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.logger.Warn().Err(err).Msg("invalid bus event payload")
			return
		}
		handler(event)
	})
	if err != nil {
		return err
	}
	b.sub = sub

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			b.logger.Warn().Err(err).Msg("failed to drain bus subscription")
		}
	}()

	return nil
}

// Close drains the active subscription, if any.
func (b *NATSBus) Close() error {
	if b.sub != nil {
		return b.sub.Drain()
	}
	return nil
}
