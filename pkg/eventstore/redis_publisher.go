package eventstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/semops-labs/som/core/pkg/contracts"
)

// Streamer is the slice of the Redis client the publisher needs.
// *redis.Client satisfies it.
type Streamer interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisPublisher fans accepted events out to a Redis Stream so downstream
// consumers can tail the log. Publishing is best-effort: a failed XADD is
// logged and dropped, never surfaced into the submit path.
type RedisPublisher struct {
	client  Streamer
	stream  string
	timeout time.Duration
}

// NewRedisPublisher creates a publisher against the given stream.
func NewRedisPublisher(client Streamer, stream string) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		stream:  stream,
		timeout: 5 * time.Second,
	}
}

// DialRedisPublisher connects a dedicated client and wraps it.
func DialRedisPublisher(addr, password string, db int, stream string) *RedisPublisher {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisPublisher(rdb, stream)
}

// Handler adapts the publisher to the store's subscription surface:
// store.Subscribe(publisher.Handler()).
func (p *RedisPublisher) Handler() Handler {
	return func(e *contracts.Event) {
		p.Publish(e)
	}
}

// Publish appends one event to the stream.
func (p *RedisPublisher) Publish(e *contracts.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	payload, err := json.Marshal(e.Payload)
	if err != nil {
		slog.Error("event publish: payload marshal failed", "event_id", e.ID, "error", err)
		return
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"id":          e.ID,
			"type":        string(e.Type),
			"occurred_at": e.OccurredAt.UTC().Format(time.RFC3339Nano),
			"recorded_at": e.RecordedAt.UTC().Format(time.RFC3339Nano),
			"actor":       e.Actor,
			"payload":     string(payload),
		},
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		slog.Error("event publish: xadd failed", "event_id", e.ID, "stream", p.stream, "error", err)
	}
}
