package events

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"github.com/splax/teamhub/internal/domain"
)

// DefaultChannel is the pub/sub channel team events are published on.
const DefaultChannel = "teamhub:team-events"

// RedisPublisher publishes events as JSON over Redis pub/sub.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisPublisher returns a publisher on channel.
func NewRedisPublisher(client redis.UniversalClient, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Notify implements Notifier.
func (p *RedisPublisher) Notify(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Close releases the client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
