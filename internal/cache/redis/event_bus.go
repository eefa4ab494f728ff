package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fxarena/fxarena/internal/domain"
)

// streamMaxLen is the approximate maximum length for Redis streams,
// enforced via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// StreamMessage is one durable event read back from a stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// EventBus implements domain.EventBus. Every published event is appended
// to a Redis stream (durable, replayable by operators) and fanned out over
// Pub/Sub for live consumers such as the websocket hub.
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

func streamKey(stream string) string {
	return "events:" + stream
}

// Publish appends the payload to the named stream and broadcasts it on the
// matching Pub/Sub channel.
func (b *EventBus) Publish(ctx context.Context, stream string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: streamKey(stream),
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"payload": payload,
		},
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}

	if err := b.rdb.Publish(ctx, streamKey(stream), payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", stream, err)
	}
	return nil
}

// Subscribe returns a read-only channel of live event payloads for the
// named stream. The subscription closes when the context is cancelled; the
// returned channel is closed at that point as well.
func (b *EventBus) Subscribe(ctx context.Context, stream string) (<-chan []byte, error) {
	pubsub := b.rdb.Subscribe(ctx, streamKey(stream))

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", stream, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// ReadAfter reads up to count durable events from the named stream
// starting after lastID. Use "0" to read from the beginning. It returns an
// empty slice (not an error) when no messages are available.
func (b *EventBus) ReadAfter(ctx context.Context, stream, lastID string, count int) ([]StreamMessage, error) {
	results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{streamKey(stream), lastID},
		Count:   int64(count),
		Block:   -1,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	var messages []StreamMessage
	for _, s := range results {
		for _, msg := range s.Messages {
			payload, ok := msg.Values["payload"]
			if !ok {
				continue
			}

			var data []byte
			switch v := payload.(type) {
			case string:
				data = []byte(v)
			case []byte:
				data = v
			default:
				continue
			}

			messages = append(messages, StreamMessage{ID: msg.ID, Payload: data})
		}
	}

	return messages, nil
}

// Compile-time interface check.
var _ domain.EventBus = (*EventBus)(nil)
