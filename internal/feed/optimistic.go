package feed

import (
	"context"

	"github.com/murmurhq/murmur/internal/models"
)

// Mutation is a local edit to a post that has an exact inverse
type Mutation interface {
	// Apply edits p and reports whether anything changed
	Apply(p *models.Post) bool
	Inverse() Mutation
}

// LikeMutation sets UID's like on a post
type LikeMutation struct {
	UID  string
	Like bool
}

func (m LikeMutation) Apply(p *models.Post) bool {
	if m.Like {
		return p.AddLike(m.UID)
	}
	return p.RemoveLike(m.UID)
}

func (m LikeMutation) Inverse() Mutation {
	return LikeMutation{UID: m.UID, Like: !m.Like}
}

// ShareMutation bumps the share counter
type ShareMutation struct {
	undo bool
}

func (m ShareMutation) Apply(p *models.Post) bool {
	if m.undo {
		p.Shares--
	} else {
		p.Shares++
	}
	return true
}

func (m ShareMutation) Inverse() Mutation {
	return ShareMutation{undo: !m.undo}
}

// Mutate applies m to the visible post immediately, then runs remote. If remote fails
// the exact inverse is applied locally; the feed is never reloaded.
func (a *Assembler) Mutate(ctx context.Context, postID string, m Mutation, remote func(context.Context) error) error {
	a.mu.Lock()
	target := a.find(postID)
	if target == nil {
		a.mu.Unlock()
		return models.NotFound("feed.Mutate", "post "+postID+" in feed")
	}
	changed := m.Apply(target)
	if changed {
		a.notify()
	}
	a.mu.Unlock()

	err := remote(ctx)
	if err == nil || !changed {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	// a live push may already have replaced the post with the store's unchanged copy
	if a.find(postID) == target {
		m.Inverse().Apply(target)
		a.notify()
	}
	return err
}

// ToggleBookmark flips the session's bookmark on postID, then runs remote with the new
// state. On failure the local flip is reverted. Returns the resulting state.
func (a *Assembler) ToggleBookmark(ctx context.Context, postID string, remote func(ctx context.Context, bookmarked bool) error) (bool, error) {
	a.mu.Lock()
	next := !a.bookmarks[postID]
	a.setBookmark(postID, next)
	a.notify()
	a.mu.Unlock()

	if err := remote(ctx, next); err != nil {
		a.mu.Lock()
		if a.bookmarks[postID] == next {
			a.setBookmark(postID, !next)
			a.notify()
		}
		a.mu.Unlock()
		return !next, err
	}
	return next, nil
}

// SetBookmarks seeds the session's bookmark set
func (a *Assembler) SetBookmarks(postIDs []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bookmarks = make(map[string]bool, len(postIDs))
	for _, id := range postIDs {
		a.bookmarks[id] = true
	}
}

// Bookmarked reports the session's view of a bookmark
func (a *Assembler) Bookmarked(postID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bookmarks[postID]
}

// Bookmarks returns the bookmarked post IDs
func (a *Assembler) Bookmarks() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.bookmarks))
	for id := range a.bookmarks {
		out = append(out, id)
	}
	return out
}

func (a *Assembler) setBookmark(postID string, on bool) {
	if on {
		a.bookmarks[postID] = true
	} else {
		delete(a.bookmarks, postID)
	}
}
