package engagement

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/murmurhq/murmur/internal/media"
	"github.com/murmurhq/murmur/internal/models"
	"github.com/murmurhq/murmur/internal/store"
	"github.com/murmurhq/murmur/internal/store/memstore"
)

var alice = models.Author{UID: "alice", Name: "Alice", PhotoURL: "https://cdn.example/alice.png"}

func newService(t *testing.T) (*Service, *memstore.Store, *media.Memory) {
	t.Helper()
	mem := memstore.New()
	m := media.NewMemory()
	return NewService(mem, mem, m), mem, m
}

func create(t *testing.T, s *Service, in models.PostInput) string {
	t.Helper()
	id, err := s.CreatePost(context.Background(), alice, in, nil)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestCreatePost(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()

	if _, err := s.CreatePost(ctx, alice, models.PostInput{Content: ""}, nil); !errors.Is(err, models.ErrValidation) {
		t.Errorf("empty post error = %v", err)
	}

	id := create(t, s, models.PostInput{Content: "hello #World"})
	post, err := s.GetPost(ctx, id, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if post.Status != models.StatusPublished {
		t.Errorf("Status = %s, want published", post.Status)
	}
	if post.AuthorName != "Alice" || post.AuthorID != "alice" {
		t.Errorf("author snapshot = %q/%q", post.AuthorID, post.AuthorName)
	}
	if len(post.Tags) != 1 || post.Tags[0] != "world" {
		t.Errorf("Tags = %v", post.Tags)
	}
}

func TestCreateScheduledPost(t *testing.T) {
	s, mem, _ := newService(t)
	ctx := context.Background()

	at := time.Now().Add(2 * time.Minute)
	id := create(t, s, models.PostInput{Content: "soon", ScheduledDate: &at})

	post, _ := s.GetPost(ctx, id, "alice")
	if post.Status != models.StatusScheduled {
		t.Errorf("Status = %s, want scheduled", post.Status)
	}
	recs := mem.Schedules()
	if len(recs) != 1 || recs[0].PostID != id || recs[0].Status != models.SchedulePending {
		t.Errorf("schedule records = %+v", recs)
	}

	past := time.Now().Add(-time.Minute)
	id = create(t, s, models.PostInput{Content: "already due", ScheduledDate: &past})
	post, _ = s.GetPost(ctx, id, "alice")
	if post.Status != models.StatusPublished || post.ScheduledDate != nil {
		t.Errorf("past-dated post status = %s", post.Status)
	}
	if len(mem.Schedules()) != 1 {
		t.Error("past-dated post created a schedule record")
	}
}

func TestScheduledPostVisibleOnlyToAuthor(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()

	at := time.Now().Add(time.Hour)
	id := create(t, s, models.PostInput{Content: "embargoed", ScheduledDate: &at, PollOptions: []string{"yes", "no"}})
	bob := models.Author{UID: "bob", Name: "Bob"}

	tests := []struct {
		name string
		call func() error
	}{
		{"get", func() error { _, err := s.GetPost(ctx, id, "bob"); return err }},
		{"toggle like", func() error { _, err := s.ToggleLike(ctx, id, "bob"); return err }},
		{"set like", func() error { return s.SetLike(ctx, id, "bob", true) }},
		{"comment", func() error { return s.AddComment(ctx, id, bob, "early") }},
		{"vote", func() error { _, err := s.VoteOnPoll(ctx, id, 0, "bob"); return err }},
		{"share", func() error { return s.SharePost(ctx, id, "bob") }},
		{"toggle bookmark", func() error { _, err := s.ToggleBookmark(ctx, "bob", id); return err }},
		{"set bookmark", func() error { return s.SetBookmark(ctx, "bob", id, true) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("error = %v, want not found", err)
			}
		})
	}

	post, err := s.GetPost(ctx, id, "alice")
	if err != nil {
		t.Fatalf("author GetPost() error = %v", err)
	}
	if len(post.Likes) != 0 || len(post.Comments) != 0 || post.Shares != 0 || len(post.PollOptions[0].Votes) != 0 {
		t.Errorf("scheduled post was mutated by another user: %+v", post)
	}
	if marks, _ := s.ListBookmarks(ctx, "bob"); len(marks) != 0 {
		t.Errorf("bob's bookmarks = %d, want 0", len(marks))
	}
	if _, err := s.ToggleLike(ctx, id, "alice"); err != nil {
		t.Errorf("author like error = %v", err)
	}
}

func TestCreatePostWithMedia(t *testing.T) {
	s, _, m := newService(t)
	ctx := context.Background()

	var progressed bool
	id, err := s.CreatePost(ctx, alice, models.PostInput{}, &media.Upload{
		Body:     strings.NewReader("png bytes"),
		Size:     9,
		Type:     models.MediaImage,
		Progress: func(sent, total int64) { progressed = true },
	})
	if err != nil {
		t.Fatal(err)
	}
	post, _ := s.GetPost(ctx, id, "alice")
	if post.MediaType != models.MediaImage || !m.Has(post.MediaURL) {
		t.Errorf("media = %s %s", post.MediaType, post.MediaURL)
	}
	if !progressed {
		t.Error("progress callback never ran")
	}
}

type failingPosts struct {
	store.PostStore
	err error
}

func (f *failingPosts) CreatePost(context.Context, *models.Post, *models.ScheduledPost) (string, error) {
	return "", f.err
}

func (f *failingPosts) DeletePost(context.Context, string) error {
	return f.err
}

func TestCreatePostReleasesMediaOnFailure(t *testing.T) {
	mem := memstore.New()
	m := media.NewMemory()
	down := models.StoreUnavailable("test", errors.New("down"))
	s := NewService(&failingPosts{PostStore: mem, err: down}, mem, m)

	_, err := s.CreatePost(context.Background(), alice, models.PostInput{Content: "x"}, &media.Upload{
		Body: strings.NewReader("data"),
		Type: models.MediaVideo,
	})
	if !errors.Is(err, models.ErrStoreUnavailable) {
		t.Fatalf("error = %v", err)
	}
	if m.Len() != 0 {
		t.Error("uploaded media not released after failed create")
	}
}

func TestToggleLike(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()
	id := create(t, s, models.PostInput{Content: "like me"})

	liked, err := s.ToggleLike(ctx, id, "bob")
	if err != nil || !liked {
		t.Fatalf("first toggle = %v, %v", liked, err)
	}
	liked, err = s.ToggleLike(ctx, id, "bob")
	if err != nil || liked {
		t.Fatalf("second toggle = %v, %v", liked, err)
	}
	post, _ := s.GetPost(ctx, id, "alice")
	if len(post.Likes) != 0 || post.LikeCount != 0 {
		t.Errorf("likes after two toggles = %v", post.Likes)
	}

	if _, err := s.ToggleLike(ctx, "missing", "bob"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("toggle on missing post error = %v", err)
	}
}

func TestConcurrentLikesKeepSetSemantics(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()
	id := create(t, s, models.PostInput{Content: "popular"})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			uid := "user" + string(rune('a'+i%10))
			_ = s.SetLike(ctx, id, uid, true)
		}(i)
	}
	wg.Wait()

	post, _ := s.GetPost(ctx, id, "alice")
	if len(post.Likes) != 10 || post.LikeCount != 10 {
		t.Errorf("likes = %d (count %d), want 10 distinct", len(post.Likes), post.LikeCount)
	}
}

func TestAddComment(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()
	id := create(t, s, models.PostInput{Content: "discuss"})

	if err := s.AddComment(ctx, id, alice, "   "); !errors.Is(err, models.ErrValidation) {
		t.Errorf("blank comment error = %v", err)
	}
	if err := s.AddComment(ctx, id, alice, "first"); err != nil {
		t.Fatal(err)
	}
	if err := s.AddComment(ctx, id, alice, "second"); err != nil {
		t.Fatal(err)
	}
	post, _ := s.GetPost(ctx, id, "alice")
	if len(post.Comments) != 2 || post.Comments[0].Content != "first" || post.Comments[1].AuthorName != "Alice" {
		t.Errorf("comments = %+v", post.Comments)
	}
	if post.Comments[0].CreatedAt.IsZero() {
		t.Error("comment CreatedAt not stamped")
	}
}

func TestVoteOnPoll(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()
	id := create(t, s, models.PostInput{Content: "pick", PollOptions: []string{"tea", "coffee"}})

	if ok, err := s.VoteOnPoll(ctx, id, 0, "bob"); err != nil || !ok {
		t.Fatalf("first vote = %v, %v", ok, err)
	}
	if ok, err := s.VoteOnPoll(ctx, id, 1, "bob"); err != nil || ok {
		t.Errorf("second vote = %v, %v; want no-op", ok, err)
	}
	if _, err := s.VoteOnPoll(ctx, id, 5, "carol"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("out of range vote error = %v", err)
	}

	post, _ := s.GetPost(ctx, id, "alice")
	if len(post.PollOptions[0].Votes) != 1 || len(post.PollOptions[1].Votes) != 0 {
		t.Errorf("votes = %+v", post.PollOptions)
	}
}

func TestBookmarks(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()
	first := create(t, s, models.PostInput{Content: "one"})
	second := create(t, s, models.PostInput{Content: "two"})

	for _, id := range []string{first, second} {
		if on, err := s.ToggleBookmark(ctx, "bob", id); err != nil || !on {
			t.Fatalf("bookmark %s = %v, %v", id, on, err)
		}
	}
	list, err := s.ListBookmarks(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != second {
		t.Errorf("bookmarks = %d, first %v", len(list), list)
	}

	// deleted posts drop out of the list
	if err := s.DeletePost(ctx, second, "alice"); err != nil {
		t.Fatal(err)
	}
	list, _ = s.ListBookmarks(ctx, "bob")
	if len(list) != 1 || list[0].ID != first {
		t.Errorf("bookmarks after delete = %v", list)
	}

	if on, _ := s.ToggleBookmark(ctx, "bob", first); on {
		t.Error("second toggle should remove")
	}
	if _, err := s.ToggleBookmark(ctx, "bob", "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("bookmark missing post error = %v", err)
	}
}

func TestSetBookmarkIdempotent(t *testing.T) {
	s, mem, _ := newService(t)
	ctx := context.Background()
	id := create(t, s, models.PostInput{Content: "keep"})

	for i := 0; i < 2; i++ {
		if err := s.SetBookmark(ctx, "bob", id, true); err != nil {
			t.Fatal(err)
		}
	}
	marks, _ := mem.ListBookmarks(ctx, "bob")
	if len(marks) != 1 {
		t.Errorf("bookmarks = %d, want 1", len(marks))
	}
}

func TestDeletePost(t *testing.T) {
	s, _, m := newService(t)
	ctx := context.Background()

	id, err := s.CreatePost(ctx, alice, models.PostInput{Content: "pic"}, &media.Upload{
		Body: strings.NewReader("img"),
		Type: models.MediaImage,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.DeletePost(ctx, id, "mallory"); !errors.Is(err, models.ErrPermission) {
		t.Errorf("non-author delete error = %v", err)
	}
	if err := s.DeletePost(ctx, id, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetPost(ctx, id, "alice"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("post still readable: %v", err)
	}
	if m.Len() != 0 {
		t.Error("media not released")
	}
}

type brokenMedia struct{ media.Store }

func (brokenMedia) Delete(context.Context, string) error {
	return models.MediaIO("test", errors.New("cdn down"))
}

func TestDeletePostAbandonedWhenMediaReleaseFails(t *testing.T) {
	mem := memstore.New()
	good := media.NewMemory()
	s := NewService(mem, mem, brokenMedia{Store: good})
	ctx := context.Background()

	id, err := s.CreatePost(ctx, alice, models.PostInput{}, &media.Upload{Body: strings.NewReader("v"), Type: models.MediaVideo})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.DeletePost(ctx, id, "alice"); !errors.Is(err, models.ErrMediaIO) {
		t.Fatalf("delete error = %v", err)
	}
	if _, err := s.GetPost(ctx, id, "alice"); err != nil {
		t.Errorf("post removed despite media failure: %v", err)
	}
}

func TestEditPost(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()
	id := create(t, s, models.PostInput{Content: "draft text"})

	if _, err := s.EditPost(ctx, id, "mallory", "hijack"); !errors.Is(err, models.ErrPermission) {
		t.Errorf("non-author edit error = %v", err)
	}
	if _, err := s.EditPost(ctx, id, "alice", "  "); !errors.Is(err, models.ErrValidation) {
		t.Errorf("blank edit error = %v", err)
	}
	post, err := s.EditPost(ctx, id, "alice", "final text")
	if err != nil {
		t.Fatal(err)
	}
	if post.Content != "final text" || post.EditedAt == nil {
		t.Errorf("edited post = %q, editedAt %v", post.Content, post.EditedAt)
	}
}

func TestSharePost(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()
	id := create(t, s, models.PostInput{Content: "spread"})

	for i := 0; i < 3; i++ {
		if err := s.SharePost(ctx, id, "bob"); err != nil {
			t.Fatal(err)
		}
	}
	post, _ := s.GetPost(ctx, id, "alice")
	if post.Shares != 3 {
		t.Errorf("Shares = %d", post.Shares)
	}
}
