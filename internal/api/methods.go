package api

import (
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/murmurhq/murmur/internal/engagement"
	"github.com/murmurhq/murmur/internal/feed"
	"github.com/murmurhq/murmur/internal/models"
	"github.com/murmurhq/murmur/internal/profile"
)

// methods implements the JSON-RPC surface over the domain services
type methods struct {
	engagement *engagement.Service
	feed       *feed.Service
	profiles   *profile.Service
}

func decode(params json.RawMessage, dst interface{}) error {
	if err := json.Unmarshal(params, dst); err != nil {
		return invalidParams(err)
	}
	return nil
}

type postIDParams struct {
	ID string `json:"id"`
}

func (p postIDParams) check() error {
	if p.ID == "" {
		return NewError(ErrInvalidParams, "missing required parameter: id")
	}
	return nil
}

func decodePostID(params json.RawMessage) (string, error) {
	var p postIDParams
	if err := decode(params, &p); err != nil {
		return "", err
	}
	return p.ID, p.check()
}

// author returns the caller's current identity. The stored profile wins over token
// claims so posts pick up edits that have already been fanned out.
func (m *methods) author(c *gin.Context) (models.Author, error) {
	a := tokenAuthor(c)
	prof, err := m.profiles.GetProfile(c.Request.Context(), a.UID)
	switch {
	case err == nil:
		return prof.Author(), nil
	case errors.Is(err, models.ErrNotFound):
		return a, nil
	default:
		return models.Author{}, err
	}
}

// createPost handles posts.create
func (m *methods) createPost(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var in models.PostInput
	if err := decode(params, &in); err != nil {
		return nil, err
	}
	author, err := m.author(c)
	if err != nil {
		return nil, err
	}
	id, err := m.engagement.CreatePost(c.Request.Context(), author, in, nil)
	if err != nil {
		return nil, err
	}
	return gin.H{"id": id}, nil
}

// getPost handles posts.get
func (m *methods) getPost(c *gin.Context, params json.RawMessage) (interface{}, error) {
	id, err := decodePostID(params)
	if err != nil {
		return nil, err
	}
	return m.engagement.GetPost(c.Request.Context(), id, currentUID(c))
}

// editPost handles posts.edit
func (m *methods) editPost(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		postIDParams
		Content string `json:"content"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if err := p.check(); err != nil {
		return nil, err
	}
	return m.engagement.EditPost(c.Request.Context(), p.ID, currentUID(c), p.Content)
}

// deletePost handles posts.delete
func (m *methods) deletePost(c *gin.Context, params json.RawMessage) (interface{}, error) {
	id, err := decodePostID(params)
	if err != nil {
		return nil, err
	}
	if err := m.engagement.DeletePost(c.Request.Context(), id, currentUID(c)); err != nil {
		return nil, err
	}
	return gin.H{"deleted": true}, nil
}

// toggleLike handles posts.toggle_like
func (m *methods) toggleLike(c *gin.Context, params json.RawMessage) (interface{}, error) {
	id, err := decodePostID(params)
	if err != nil {
		return nil, err
	}
	liked, err := m.engagement.ToggleLike(c.Request.Context(), id, currentUID(c))
	if err != nil {
		return nil, err
	}
	return gin.H{"liked": liked}, nil
}

// addComment handles posts.add_comment
func (m *methods) addComment(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		postIDParams
		Content string `json:"content"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if err := p.check(); err != nil {
		return nil, err
	}
	author, err := m.author(c)
	if err != nil {
		return nil, err
	}
	if err := m.engagement.AddComment(c.Request.Context(), p.ID, author, p.Content); err != nil {
		return nil, err
	}
	return gin.H{"ok": true}, nil
}

// votePoll handles posts.vote_poll
func (m *methods) votePoll(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		postIDParams
		Option *int `json:"option"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if err := p.check(); err != nil {
		return nil, err
	}
	if p.Option == nil {
		return nil, NewError(ErrInvalidParams, "missing required parameter: option")
	}
	recorded, err := m.engagement.VoteOnPoll(c.Request.Context(), p.ID, *p.Option, currentUID(c))
	if err != nil {
		return nil, err
	}
	return gin.H{"recorded": recorded}, nil
}

// sharePost handles posts.share
func (m *methods) sharePost(c *gin.Context, params json.RawMessage) (interface{}, error) {
	id, err := decodePostID(params)
	if err != nil {
		return nil, err
	}
	if err := m.engagement.SharePost(c.Request.Context(), id, currentUID(c)); err != nil {
		return nil, err
	}
	return gin.H{"ok": true}, nil
}

// toggleBookmark handles bookmarks.toggle
func (m *methods) toggleBookmark(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		PostID string `json:"postId"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if p.PostID == "" {
		return nil, NewError(ErrInvalidParams, "missing required parameter: postId")
	}
	on, err := m.engagement.ToggleBookmark(c.Request.Context(), currentUID(c), p.PostID)
	if err != nil {
		return nil, err
	}
	return gin.H{"bookmarked": on}, nil
}

// listBookmarks handles bookmarks.list
func (m *methods) listBookmarks(c *gin.Context, _ json.RawMessage) (interface{}, error) {
	posts, err := m.engagement.ListBookmarks(c.Request.Context(), currentUID(c))
	if err != nil {
		return nil, err
	}
	return gin.H{"posts": posts}, nil
}

// feedPage handles feed.page
func (m *methods) feedPage(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Filter string `json:"filter"`
		Cursor string `json:"cursor"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	filter, err := feed.ParseFilter(p.Filter)
	if err != nil {
		return nil, err
	}
	return m.feed.Page(c.Request.Context(), filter, currentUID(c), p.Cursor)
}

// getProfile handles profiles.get. Without a uid it returns the caller's profile.
func (m *methods) getProfile(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		UID string `json:"uid"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if p.UID == "" {
		p.UID = currentUID(c)
	}
	return m.profiles.GetProfile(c.Request.Context(), p.UID)
}

// updateProfile handles profiles.update
func (m *methods) updateProfile(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var patch models.ProfilePatch
	if err := decode(params, &patch); err != nil {
		return nil, err
	}
	return m.profiles.UpdateProfile(c.Request.Context(), currentUID(c), patch)
}

// toggleFollow handles profiles.toggle_follow
func (m *methods) toggleFollow(c *gin.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		UID string `json:"uid"`
	}
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if p.UID == "" {
		return nil, NewError(ErrInvalidParams, "missing required parameter: uid")
	}
	following, err := m.profiles.ToggleFollow(c.Request.Context(), currentUID(c), p.UID)
	if err != nil {
		return nil, err
	}
	return gin.H{"following": following}, nil
}
