package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/murmurhq/murmur/internal/changefeed"
	"github.com/murmurhq/murmur/internal/models"
	"github.com/murmurhq/murmur/pkg/logging"
)

// Notifying wraps a Store and publishes a change event after every successful post write.
// Publish failures are logged; the write itself has already committed.
type Notifying struct {
	Store
	bus    changefeed.Bus
	logger *zap.Logger
}

// NewNotifying wraps s so its writes are announced on bus
func NewNotifying(s Store, bus changefeed.Bus) *Notifying {
	return &Notifying{
		Store:  s,
		bus:    bus,
		logger: logging.WithComponent("store"),
	}
}

func (n *Notifying) publish(ctx context.Context, typ changefeed.EventType, ids ...string) {
	for _, id := range ids {
		if err := n.bus.Publish(ctx, changefeed.Event{Type: typ, PostID: id}); err != nil {
			n.logger.Warn("Failed to publish change event",
				zap.String("type", string(typ)),
				zap.String("post_id", id),
				zap.Error(err),
			)
		}
	}
}

func (n *Notifying) CreatePost(ctx context.Context, post *models.Post, sched *models.ScheduledPost) (string, error) {
	id, err := n.Store.CreatePost(ctx, post, sched)
	if err == nil {
		n.publish(ctx, changefeed.Added, id)
	}
	return id, err
}

func (n *Notifying) DeletePost(ctx context.Context, id string) error {
	err := n.Store.DeletePost(ctx, id)
	if err == nil {
		n.publish(ctx, changefeed.Removed, id)
	}
	return err
}

func (n *Notifying) EditPost(ctx context.Context, id, content string) (*models.Post, error) {
	post, err := n.Store.EditPost(ctx, id, content)
	if err == nil {
		n.publish(ctx, changefeed.Modified, id)
	}
	return post, err
}

func (n *Notifying) AddLike(ctx context.Context, postID, uid string) (bool, error) {
	changed, err := n.Store.AddLike(ctx, postID, uid)
	if err == nil && changed {
		n.publish(ctx, changefeed.Modified, postID)
	}
	return changed, err
}

func (n *Notifying) RemoveLike(ctx context.Context, postID, uid string) (bool, error) {
	changed, err := n.Store.RemoveLike(ctx, postID, uid)
	if err == nil && changed {
		n.publish(ctx, changefeed.Modified, postID)
	}
	return changed, err
}

func (n *Notifying) AppendComment(ctx context.Context, postID string, c models.Comment) error {
	err := n.Store.AppendComment(ctx, postID, c)
	if err == nil {
		n.publish(ctx, changefeed.Modified, postID)
	}
	return err
}

func (n *Notifying) RecordVote(ctx context.Context, postID string, idx int, uid string) (bool, error) {
	changed, err := n.Store.RecordVote(ctx, postID, idx, uid)
	if err == nil && changed {
		n.publish(ctx, changefeed.Modified, postID)
	}
	return changed, err
}

func (n *Notifying) IncrementShares(ctx context.Context, postID string) error {
	err := n.Store.IncrementShares(ctx, postID)
	if err == nil {
		n.publish(ctx, changefeed.Modified, postID)
	}
	return err
}

func (n *Notifying) PromoteDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	ids, err := n.Store.PromoteDue(ctx, now, limit)
	if err == nil {
		n.publish(ctx, changefeed.Added, ids...)
	}
	return ids, err
}

func (n *Notifying) PatchAuthorPosts(ctx context.Context, uid, afterID string, limit int, patch models.AuthorPatch) ([]string, error) {
	ids, err := n.Store.PatchAuthorPosts(ctx, uid, afterID, limit, patch)
	if err == nil {
		n.publish(ctx, changefeed.Modified, ids...)
	}
	return ids, err
}
