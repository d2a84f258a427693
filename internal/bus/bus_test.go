package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusDeliversToAllSubscribers(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	var first, second []Event
	require.NoError(t, b.Subscribe(ctx, func(e Event) { first = append(first, e) }))
	require.NoError(t, b.Subscribe(ctx, func(e Event) { second = append(second, e) }))

	event := Event{Source: "node-a", Kind: "message_received", RoomID: 4, Payload: json.RawMessage(`{"id":1}`)}
	require.NoError(t, b.Publish(ctx, event))

	require.Equal(t, []Event{event}, first)
	require.Equal(t, []Event{event}, second)
}

func TestMemoryBusCloseStopsDelivery(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	delivered := 0
	require.NoError(t, b.Subscribe(ctx, func(Event) { delivered++ }))
	require.NoError(t, b.Close())
	require.NoError(t, b.Publish(ctx, Event{Kind: "user_online"}))

	require.Zero(t, delivered)
}

func TestRedisBusRoundTrip(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewRedisBus(client, "chat:broadcast", zerolog.Nop())

	received := make(chan Event, 1)
	require.NoError(t, b.Subscribe(ctx, func(e Event) { received <- e }))

	event := Event{Source: "node-a", Kind: "message_received", RoomID: 9, Payload: json.RawMessage(`{"id":3}`)}
	require.NoError(t, b.Publish(ctx, event))

	select {
	case got := <-received:
		require.Equal(t, event, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for bus event")
	}
}
