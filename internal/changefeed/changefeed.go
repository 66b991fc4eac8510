// Package changefeed carries post change notifications from store writers to live feed sessions.
package changefeed

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/murmurhq/murmur/pkg/logging"
)

// EventType classifies a post change
type EventType string

const (
	Added    EventType = "added"
	Modified EventType = "modified"
	Removed  EventType = "removed"
)

// Event announces that one post changed
type Event struct {
	Type   EventType `json:"type"`
	PostID string    `json:"postId"`
}

// Bus fans change events out to every subscriber.
// Subscribe channels are closed once ctx is done.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context) (<-chan Event, error)
	Close() error
}

const subscriberBuffer = 64

// Local is an in-process bus. Slow subscribers lose events rather than block publishers.
type Local struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	closed bool
	logger *zap.Logger
}

// NewLocal creates an in-process bus
func NewLocal() *Local {
	return &Local{
		subs:   make(map[chan Event]struct{}),
		logger: logging.WithComponent("changefeed"),
	}
}

// Publish delivers ev to every current subscriber
func (b *Local) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Debug("Dropping event for slow subscriber", zap.String("post_id", ev.PostID))
		}
	}
	return nil
}

// Subscribe registers a subscriber until ctx is done
func (b *Local) Subscribe(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, nil
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(ch)
	}()
	return ch, nil
}

func (b *Local) remove(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Subscribers returns the number of live subscriptions
func (b *Local) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription
func (b *Local) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	b.closed = true
	return nil
}
