// Package dispatch delivers committed domain events to subscribers outside the
// posting transaction.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

// DefaultChannel is the pub/sub channel events are published on.
const DefaultChannel = "posting.events"

// RedisPublisher publishes each event as JSON on a Redis channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher constructs a publisher for channel, or DefaultChannel when empty.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Publish sends events in order through one pipeline.
func (p *RedisPublisher) Publish(ctx context.Context, events []shared.Event) error {
	if p == nil || p.client == nil || len(events) == 0 {
		return nil
	}
	pipe := p.client.Pipeline()
	for _, ev := range events {
		body, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("dispatch: encode %s: %w", ev.Name, err)
		}
		pipe.Publish(ctx, p.channel, body)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dispatch: publish: %w", err)
	}
	return nil
}

// LogPublisher writes events to the logger. It serves deployments without Redis.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher constructs a LogPublisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// Publish logs every event at info level.
func (p *LogPublisher) Publish(ctx context.Context, events []shared.Event) error {
	for _, ev := range events {
		p.logger.InfoContext(ctx, "domain event",
			slog.String("event", ev.Name),
			slog.String("event_id", ev.ID.String()),
			slog.String("aggregate_type", ev.AggregateType),
			slog.Int64("aggregate_id", ev.AggregateID),
		)
	}
	return nil
}
