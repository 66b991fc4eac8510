// Package feed assembles ordered, deduplicated, paginated post feeds.
package feed

import (
	"context"
	"errors"

	"github.com/murmurhq/murmur/internal/models"
	"github.com/murmurhq/murmur/internal/store"
)

// DefaultPageSize is the number of posts per page
const DefaultPageSize = 5

// Filter selects which posts a feed shows and how they are ordered
type Filter string

const (
	Recent    Filter = "recent"
	Trending  Filter = "trending"
	Following Filter = "following"
)

// ParseFilter validates a client-supplied filter name. Empty means Recent.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(s); f {
	case "":
		return Recent, nil
	case Recent, Trending, Following:
		return f, nil
	}
	return "", models.Validation("feed.ParseFilter", "unknown filter %q", s)
}

// Viewer is the user a feed is assembled for
type Viewer struct {
	UID       string
	Following []string
}

// Profiles resolves viewers' follow sets
type Profiles interface {
	GetProfile(ctx context.Context, uid string) (*models.UserProfile, error)
}

// ResolveViewer loads uid's follow set. A user without a profile follows nobody.
func ResolveViewer(ctx context.Context, profiles Profiles, uid string) (Viewer, error) {
	p, err := profiles.GetProfile(ctx, uid)
	if errors.Is(err, models.ErrNotFound) {
		return Viewer{UID: uid}, nil
	}
	if err != nil {
		return Viewer{}, err
	}
	return Viewer{UID: uid, Following: p.Following}, nil
}

// BuildQuery turns a filter into a store query. Scheduled posts never appear in a feed.
func BuildQuery(filter Filter, viewer Viewer, after *store.Cursor, limit int) (store.Query, error) {
	q := store.Query{
		Order:  store.OrderRecent,
		Status: models.StatusPublished,
		After:  after,
		Limit:  limit,
	}

	switch filter {
	case Recent:
	case Trending:
		q.Order = store.OrderTrending
	case Following:
		if viewer.UID == "" {
			return store.Query{}, models.Validation("feed.BuildQuery", "following feed needs a viewer")
		}
		if len(viewer.Following) == 0 {
			// nobody followed: fall back to the viewer's own posts
			q.Authors = []string{viewer.UID}
			break
		}
		q.Authors = followingAndSelf(viewer)
	default:
		return store.Query{}, models.Validation("feed.BuildQuery", "unknown filter %q", filter)
	}
	return q, nil
}

func followingAndSelf(v Viewer) []string {
	seen := map[string]bool{v.UID: true}
	authors := []string{v.UID}
	for _, uid := range v.Following {
		if !seen[uid] {
			seen[uid] = true
			authors = append(authors, uid)
		}
	}
	return authors
}

// Order returns the store ordering a filter uses
func (f Filter) Order() store.Order {
	if f == Trending {
		return store.OrderTrending
	}
	return store.OrderRecent
}
