// Package engagement implements post creation and the mutations users perform on posts.
package engagement

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/murmurhq/murmur/internal/media"
	"github.com/murmurhq/murmur/internal/models"
	"github.com/murmurhq/murmur/internal/publication"
	"github.com/murmurhq/murmur/internal/store"
	"github.com/murmurhq/murmur/pkg/logging"
	"github.com/murmurhq/murmur/pkg/telemetry"
)

// Service runs engagement mutations against the post and bookmark stores
type Service struct {
	posts     store.PostStore
	bookmarks store.BookmarkStore
	media     media.Store
	logger    *zap.Logger
}

// NewService creates an engagement service
func NewService(posts store.PostStore, bookmarks store.BookmarkStore, mediaStore media.Store) *Service {
	return &Service{
		posts:     posts,
		bookmarks: bookmarks,
		media:     mediaStore,
		logger:    logging.WithComponent("engagement"),
	}
}

func (s *Service) record(ctx context.Context, kind string, err error) {
	telemetry.RecordMutation(ctx, kind, err)
	if err != nil && !errors.Is(err, models.ErrValidation) && !errors.Is(err, models.ErrNotFound) {
		s.logger.Warn("Mutation failed", zap.String("kind", kind), zap.Error(err))
	}
}

// CreatePost uploads the attachment (if any), validates, and persists the post with the
// status publication.Submit picks. A scheduled post is stored together with its schedule record.
func (s *Service) CreatePost(ctx context.Context, author models.Author, in models.PostInput, upload *media.Upload) (id string, err error) {
	ctx, span := telemetry.StartSpan(ctx, "engagement.CreatePost")
	defer span.End()
	defer func() { s.record(ctx, "create", err) }()

	in.AuthorID, in.AuthorName, in.AuthorPhotoURL = author.UID, author.Name, author.PhotoURL

	var uploaded string
	if upload != nil {
		url, err := s.media.Upload(ctx, upload)
		if err != nil {
			return "", err
		}
		uploaded = url
		in.MediaURL, in.MediaType = url, upload.Type
	}
	release := func() {
		if uploaded == "" {
			return
		}
		if err := s.media.Delete(ctx, uploaded); err != nil {
			s.logger.Warn("Failed to release orphaned media", zap.String("url", uploaded), zap.Error(err))
		}
	}

	post, err := models.NewPost(in)
	if err != nil {
		release()
		return "", err
	}

	now, err := s.posts.Now(ctx)
	if err != nil {
		release()
		return "", models.StoreUnavailable("engagement.CreatePost", err)
	}
	sched := publication.Prepare(post, now)

	id, err = s.posts.CreatePost(ctx, post, sched)
	if err != nil {
		release()
		return "", err
	}

	logging.WithUser(s.logger, author.UID).Info("Post created",
		zap.String("post_id", id),
		zap.String("status", string(post.Status)))
	return id, nil
}

// GetPost returns one post as seen by viewer. A scheduled post is visible only to its author;
// anyone else gets NotFound.
func (s *Service) GetPost(ctx context.Context, id, viewer string) (*models.Post, error) {
	post, err := s.posts.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.Status == models.StatusScheduled && post.AuthorID != viewer {
		return nil, models.NotFound("engagement.GetPost", "post "+id)
	}
	return post, nil
}

// ToggleLike flips uid's like and returns the new membership
func (s *Service) ToggleLike(ctx context.Context, postID, uid string) (liked bool, err error) {
	defer func() { s.record(ctx, "like", err) }()

	post, err := s.GetPost(ctx, postID, uid)
	if err != nil {
		return false, err
	}
	if post.LikedBy(uid) {
		_, err = s.posts.RemoveLike(ctx, postID, uid)
		return false, err
	}
	_, err = s.posts.AddLike(ctx, postID, uid)
	return err == nil, err
}

// SetLike makes uid's like match like. Safe to retry.
func (s *Service) SetLike(ctx context.Context, postID, uid string, like bool) (err error) {
	defer func() { s.record(ctx, "like", err) }()

	if _, err = s.GetPost(ctx, postID, uid); err != nil {
		return err
	}
	if like {
		_, err = s.posts.AddLike(ctx, postID, uid)
	} else {
		_, err = s.posts.RemoveLike(ctx, postID, uid)
	}
	return err
}

// AddComment appends a comment by author
func (s *Service) AddComment(ctx context.Context, postID string, author models.Author, content string) (err error) {
	defer func() { s.record(ctx, "comment", err) }()

	c := models.Comment{
		Content:        content,
		AuthorID:       author.UID,
		AuthorName:     author.Name,
		AuthorPhotoURL: author.PhotoURL,
	}
	if err := models.CheckComment(c); err != nil {
		return err
	}
	if _, err := s.GetPost(ctx, postID, author.UID); err != nil {
		return err
	}
	return s.posts.AppendComment(ctx, postID, c)
}

// ToggleBookmark flips the (uid, postID) bookmark and returns whether it now exists.
// Delete goes first; only when nothing was deleted is an insert attempted, and an insert
// that finds the record already present counts as bookmarked.
func (s *Service) ToggleBookmark(ctx context.Context, uid, postID string) (bookmarked bool, err error) {
	defer func() { s.record(ctx, "bookmark", err) }()

	removed, err := s.bookmarks.RemoveBookmark(ctx, uid, postID)
	if err != nil {
		return false, err
	}
	if removed {
		return false, nil
	}
	if _, err := s.GetPost(ctx, postID, uid); err != nil {
		return false, err
	}
	if _, err := s.bookmarks.AddBookmark(ctx, uid, postID); err != nil {
		return false, err
	}
	return true, nil
}

// SetBookmark makes the bookmark's existence match on. Safe to retry.
func (s *Service) SetBookmark(ctx context.Context, uid, postID string, on bool) (err error) {
	defer func() { s.record(ctx, "bookmark", err) }()

	if !on {
		_, err = s.bookmarks.RemoveBookmark(ctx, uid, postID)
		return err
	}
	if _, err = s.GetPost(ctx, postID, uid); err != nil {
		return err
	}
	_, err = s.bookmarks.AddBookmark(ctx, uid, postID)
	return err
}

// ListBookmarks returns uid's bookmarked posts, newest bookmark first.
// Bookmarks whose post was deleted or is not visible to uid are skipped.
func (s *Service) ListBookmarks(ctx context.Context, uid string) ([]*models.Post, error) {
	marks, err := s.bookmarks.ListBookmarks(ctx, uid)
	if err != nil {
		return nil, err
	}
	posts := make([]*models.Post, 0, len(marks))
	for _, b := range marks {
		post, err := s.GetPost(ctx, b.PostID, uid)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// VoteOnPoll records uid's vote on option idx. It reports false when uid had already voted.
func (s *Service) VoteOnPoll(ctx context.Context, postID string, idx int, uid string) (recorded bool, err error) {
	defer func() { s.record(ctx, "vote", err) }()
	if _, err = s.GetPost(ctx, postID, uid); err != nil {
		return false, err
	}
	return s.posts.RecordVote(ctx, postID, idx, uid)
}

// SharePost bumps the share counter on uid's behalf
func (s *Service) SharePost(ctx context.Context, postID, uid string) (err error) {
	defer func() { s.record(ctx, "share", err) }()
	if _, err = s.GetPost(ctx, postID, uid); err != nil {
		return err
	}
	return s.posts.IncrementShares(ctx, postID)
}

// DeletePost releases the post's media and then deletes it. Only the author may delete.
// If the media cannot be released the post is left in place and the error returned.
func (s *Service) DeletePost(ctx context.Context, postID, uid string) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "engagement.DeletePost")
	defer span.End()
	defer func() { s.record(ctx, "delete", err) }()

	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != uid {
		return models.Permission("engagement.DeletePost", "only the author can delete a post")
	}
	if post.MediaURL != "" {
		if err := s.media.Delete(ctx, post.MediaURL); err != nil {
			return err
		}
	}
	return s.posts.DeletePost(ctx, postID)
}

// EditPost replaces the post's content. Only the author may edit.
func (s *Service) EditPost(ctx context.Context, postID, uid, content string) (post *models.Post, err error) {
	defer func() { s.record(ctx, "edit", err) }()

	post, err = s.posts.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != uid {
		return nil, models.Permission("engagement.EditPost", "only the author can edit a post")
	}
	if err := post.CheckEdit(content); err != nil {
		return nil, err
	}
	return s.posts.EditPost(ctx, postID, content)
}
