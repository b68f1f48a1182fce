package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

// Streams are capped with XADD MAXLEN ~ so replay history stays bounded.
const streamMaxEntries int64 = 10000

// EventBus carries pipeline events over Redis: Pub/Sub for fan-out where a
// missed message is harmless (price ticks, dashboard frames) and Streams
// where consumers need ordered replay (settlement records).
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

var _ domain.EventBus = (*EventBus)(nil)

// Publish sends a payload to a Pub/Sub channel.
func (eb *EventBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := eb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a Pub/Sub subscription and returns the payload channel.
// Channels containing glob wildcards ("ticks.*") become pattern
// subscriptions. When ctx ends the subscription is torn down and the
// returned channel closes.
func (eb *EventBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	sub := eb.open(ctx, channel)

	// Receive confirms the SUBSCRIBE round-trip before anyone publishes.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

func (eb *EventBus) open(ctx context.Context, channel string) *redis.PubSub {
	if strings.ContainsAny(channel, "*?[") {
		return eb.rdb.PSubscribe(ctx, channel)
	}
	return eb.rdb.Subscribe(ctx, channel)
}

// StreamAppend appends a payload to a stream, trimming it to roughly
// streamMaxEntries.
func (eb *EventBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := eb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxEntries,
		Approx: true,
		Values: map[string]interface{}{"payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries after lastID ("0" for the start,
// "$" for new entries only). A drained stream yields an empty slice, not an
// error.
func (eb *EventBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	// go-redis treats a zero Block as BLOCK 0 (wait forever); a negative
	// value is the only way to issue a non-blocking XREAD.
	results, err := eb.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   int64(count),
		Block:   -1,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	var messages []domain.StreamMessage
	for _, res := range results {
		for _, entry := range res.Messages {
			data, ok := payloadBytes(entry.Values["payload"])
			if !ok {
				continue
			}
			messages = append(messages, domain.StreamMessage{ID: entry.ID, Payload: data})
		}
	}
	return messages, nil
}

// payloadBytes pulls the payload field out of a stream entry. Entries
// written by other tooling without the field are skipped.
func payloadBytes(v interface{}) ([]byte, bool) {
	switch p := v.(type) {
	case string:
		return []byte(p), true
	case []byte:
		return p, true
	default:
		return nil, false
	}
}
