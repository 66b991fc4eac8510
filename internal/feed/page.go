package feed

import (
	"context"

	"github.com/murmurhq/murmur/internal/models"
	"github.com/murmurhq/murmur/internal/store"
	"github.com/murmurhq/murmur/pkg/telemetry"
)

// Page is one stateless feed page
type Page struct {
	Posts      []*models.Post `json:"posts"`
	NextCursor string         `json:"nextCursor,omitempty"`
	HasMore    bool           `json:"hasMore"`
}

// Page fetches the page of filter after cursor for uid. An empty cursor starts at the top.
func (s *Service) Page(ctx context.Context, filter Filter, uid, cursor string) (*Page, error) {
	ctx, span := telemetry.StartSpan(ctx, "feed.Page")
	defer span.End()

	after, err := store.DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	viewer := Viewer{UID: uid}
	if filter == Following {
		if viewer, err = ResolveViewer(ctx, s.profiles, uid); err != nil {
			return nil, err
		}
	}
	q, err := BuildQuery(filter, viewer, after, s.pageSize)
	if err != nil {
		return nil, err
	}

	posts, err := s.posts.ListPosts(ctx, q)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	telemetry.RecordFeedPage(ctx, string(filter))

	page := &Page{Posts: posts, HasMore: len(posts) == s.pageSize}
	if page.HasMore {
		page.NextCursor = store.CursorOf(posts[len(posts)-1]).Encode()
	}
	return page, nil
}
