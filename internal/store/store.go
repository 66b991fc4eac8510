// Package store defines the persistence contract the post core needs from a backend.
package store

import (
	"context"
	"time"

	"github.com/murmurhq/murmur/internal/models"
)

// MaxBatch is the largest number of documents a backend writes in one atomic batch
const MaxBatch = 500

// Clock exposes the store's server-side time
type Clock interface {
	Now(ctx context.Context) (time.Time, error)
}

// PostStore reads and mutates posts.
// Like, vote and comment updates are single conditional writes, never read-modify-write.
type PostStore interface {
	Clock

	// CreatePost assigns ID and CreatedAt, and persists sched (if non-nil) in the same batch
	CreatePost(ctx context.Context, post *models.Post, sched *models.ScheduledPost) (string, error)
	GetPost(ctx context.Context, id string) (*models.Post, error)
	ListPosts(ctx context.Context, q Query) ([]*models.Post, error)
	DeletePost(ctx context.Context, id string) error
	// EditPost replaces content and stamps EditedAt with server time
	EditPost(ctx context.Context, id, content string) (*models.Post, error)

	AddLike(ctx context.Context, postID, uid string) (bool, error)
	RemoveLike(ctx context.Context, postID, uid string) (bool, error)
	// AppendComment stamps CreatedAt with server time
	AppendComment(ctx context.Context, postID string, c models.Comment) error
	// RecordVote adds uid to option idx unless uid already voted on any option of the post
	RecordVote(ctx context.Context, postID string, idx int, uid string) (bool, error)
	IncrementShares(ctx context.Context, postID string) error
}

// ScheduleStore runs the scheduled-publication transition
type ScheduleStore interface {
	Clock

	// PromoteDue flips up to limit pending records due at or before now, and their posts,
	// in one all-or-nothing batch. Returns the promoted post IDs.
	PromoteDue(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// BookmarkStore manages (user, post) bookmark records
type BookmarkStore interface {
	// AddBookmark inserts the record; false if it already existed
	AddBookmark(ctx context.Context, uid, postID string) (bool, error)
	// RemoveBookmark deletes the record; false if it did not exist
	RemoveBookmark(ctx context.Context, uid, postID string) (bool, error)
	// ListBookmarks returns the user's bookmarks, newest first
	ListBookmarks(ctx context.Context, uid string) ([]models.Bookmark, error)
}

// ProfileStore manages user profiles and the follow graph
type ProfileStore interface {
	GetProfile(ctx context.Context, uid string) (*models.UserProfile, error)
	// SaveProfile upserts the editable fields; follow sets are left untouched
	SaveProfile(ctx context.Context, p *models.UserProfile) error
	// SetFollow updates uid.following and target.followers together
	SetFollow(ctx context.Context, uid, target string, follow bool) error
}

// FanoutStore rewrites denormalized author fields on existing posts
type FanoutStore interface {
	// PatchAuthorPosts rewrites up to limit posts by uid with ID > afterID, in ID order,
	// as one atomic batch. Returns the IDs rewritten.
	PatchAuthorPosts(ctx context.Context, uid, afterID string, limit int, patch models.AuthorPatch) ([]string, error)
}

// Store is a complete backend
type Store interface {
	PostStore
	ScheduleStore
	BookmarkStore
	ProfileStore
	FanoutStore

	Close(ctx context.Context) error
}
