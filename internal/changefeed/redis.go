package changefeed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/murmurhq/murmur/pkg/logging"
)

// DefaultChannel is the Redis pub/sub channel post changes are published on
const DefaultChannel = "murmur:posts:changes"

// Redis is a bus backed by Redis pub/sub, shared by every server replica and the scheduler
type Redis struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedis creates a Redis pub/sub bus on channel
func NewRedis(client *redis.Client, channel string) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{
		client:  client,
		channel: channel,
		logger:  logging.WithComponent("changefeed"),
	}
}

// Publish sends ev to every subscriber of the channel
func (b *Redis) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

// Subscribe listens on the channel until ctx is done
func (b *Redis) Subscribe(ctx context.Context) (<-chan Event, error) {
	ps := b.client.Subscribe(ctx, b.channel)
	// Receive blocks until the subscription is confirmed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.logger.Warn("Discarding malformed change event", zap.Error(err))
					continue
				}
				select {
				case out <- ev:
				default:
					b.logger.Debug("Dropping event for slow subscriber", zap.String("post_id", ev.PostID))
				}
			}
		}
	}()
	return out, nil
}

// Close is a no-op; the Redis client is owned by the cache
func (b *Redis) Close() error {
	return nil
}
