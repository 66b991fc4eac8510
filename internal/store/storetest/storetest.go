// Package storetest is a behavioural test suite every store.Store backend must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/murmurhq/murmur/internal/models"
	"github.com/murmurhq/murmur/internal/store"
)

// Opener returns a ready store. Each call may share state with earlier ones;
// the suite namespaces its users so runs do not collide.
type Opener func(t *testing.T) store.Store

// Run executes the suite against open
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"Pagination", testPagination},
		{"TrendingOrder", testTrendingOrder},
		{"LikesIdempotent", testLikesIdempotent},
		{"ConcurrentVotes", testConcurrentVotes},
		{"CommentsAndEdit", testCommentsAndEdit},
		{"DeleteMissing", testDeleteMissing},
		{"PromoteDue", testPromoteDue},
		{"Bookmarks", testBookmarks},
		{"FollowGraph", testFollowGraph},
		{"PatchAuthorPosts", testPatchAuthorPosts},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

func user(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

func create(t *testing.T, s store.Store, in models.PostInput, sched *models.ScheduledPost) string {
	t.Helper()
	if in.AuthorName == "" {
		in.AuthorName = "name-" + in.AuthorID
	}
	p, err := models.NewPost(in)
	if err != nil {
		t.Fatal(err)
	}
	if sched != nil {
		p.Status = models.StatusScheduled
		p.ScheduledDate = &sched.ScheduledDate
	}
	id, err := s.CreatePost(context.Background(), p, sched)
	if err != nil {
		t.Fatal(err)
	}
	if id == "" || p.ID != id {
		t.Fatalf("CreatePost() id = %q, post.ID = %q", id, p.ID)
	}
	return id
}

func testCreateAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	author := user("author")
	id := create(t, s, models.PostInput{
		AuthorID:    author,
		Content:     "hello #golang",
		PollOptions: []string{"yes", "no"},
	}, nil)

	p, err := s.GetPost(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if p.AuthorID != author || p.Content != "hello #golang" || p.Status != models.StatusPublished {
		t.Errorf("GetPost() = %+v", p)
	}
	if len(p.PollOptions) != 2 || p.PollOptions[1].Text != "no" {
		t.Errorf("poll options = %+v", p.PollOptions)
	}
	if len(p.Tags) != 1 || p.Tags[0] != "golang" {
		t.Errorf("tags = %v", p.Tags)
	}
	if p.CreatedAt.IsZero() {
		t.Error("CreatedAt not assigned")
	}

	if _, err := s.GetPost(ctx, uuid.NewString()); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetPost(missing) error = %v", err)
	}
}

func testPagination(t *testing.T, s store.Store) {
	ctx := context.Background()
	author := user("pager")
	var created []string
	for i := 0; i < 7; i++ {
		created = append(created, create(t, s, models.PostInput{AuthorID: author, Content: fmt.Sprintf("post %d", i)}, nil))
	}

	var got []string
	var after *store.Cursor
	for {
		page, err := s.ListPosts(ctx, store.Query{
			Order:   store.OrderRecent,
			Authors: []string{author},
			Status:  models.StatusPublished,
			After:   after,
			Limit:   3,
		})
		if err != nil {
			t.Fatal(err)
		}
		for _, p := range page {
			got = append(got, p.ID)
		}
		if len(page) < 3 {
			break
		}
		after = store.CursorOf(page[len(page)-1])
	}

	if len(got) != len(created) {
		t.Fatalf("paged %d posts, want %d", len(got), len(created))
	}
	for i := range got {
		if got[i] != created[len(created)-1-i] {
			t.Fatalf("position %d = %s, want %s", i, got[i], created[len(created)-1-i])
		}
	}
}

func testTrendingOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	author := user("trend")
	a := create(t, s, models.PostInput{AuthorID: author, Content: "a"}, nil)
	b := create(t, s, models.PostInput{AuthorID: author, Content: "b"}, nil)
	c := create(t, s, models.PostInput{AuthorID: author, Content: "c"}, nil)
	for _, uid := range []string{"x", "y"} {
		if _, err := s.AddLike(ctx, b, uid); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.AddLike(ctx, a, "x"); err != nil {
		t.Fatal(err)
	}

	page, err := s.ListPosts(ctx, store.Query{Order: store.OrderTrending, Authors: []string{author}, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 3 || page[0].ID != b || page[1].ID != a || page[2].ID != c {
		t.Errorf("trending order wrong: %v", ids(page))
	}

	rest, err := s.ListPosts(ctx, store.Query{Order: store.OrderTrending, Authors: []string{author}, After: store.CursorOf(page[0]), Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 2 || rest[0].ID != a {
		t.Errorf("after cursor: %v", ids(rest))
	}
}

func testLikesIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := create(t, s, models.PostInput{AuthorID: user("liker"), Content: "like me"}, nil)

	for i, want := range []bool{true, false} {
		added, err := s.AddLike(ctx, id, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if added != want {
			t.Errorf("AddLike #%d = %v, want %v", i+1, added, want)
		}
	}
	p, _ := s.GetPost(ctx, id)
	if len(p.Likes) != 1 || p.LikeCount != 1 {
		t.Errorf("likes = %v count = %d", p.Likes, p.LikeCount)
	}

	for i, want := range []bool{true, false} {
		removed, err := s.RemoveLike(ctx, id, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if removed != want {
			t.Errorf("RemoveLike #%d = %v, want %v", i+1, removed, want)
		}
	}
	p, _ = s.GetPost(ctx, id)
	if len(p.Likes) != 0 || p.LikeCount != 0 {
		t.Errorf("likes after unlike = %v count = %d", p.Likes, p.LikeCount)
	}

	if _, err := s.AddLike(ctx, uuid.NewString(), "u1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("AddLike(missing) error = %v", err)
	}
}

func testConcurrentVotes(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := create(t, s, models.PostInput{AuthorID: user("poller"), Content: "pick", PollOptions: []string{"a", "b", "c"}}, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	recorded := 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			ok, err := s.RecordVote(ctx, id, idx, "voter")
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				mu.Lock()
				recorded++
				mu.Unlock()
			}
		}(i % 3)
	}
	wg.Wait()

	if recorded != 1 {
		t.Errorf("%d votes recorded, want 1", recorded)
	}
	p, _ := s.GetPost(ctx, id)
	total := 0
	for _, opt := range p.PollOptions {
		total += len(opt.Votes)
	}
	if total != 1 {
		t.Errorf("stored votes = %d", total)
	}

	if _, err := s.RecordVote(ctx, id, 5, "other"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("out of range vote error = %v", err)
	}
}

func testCommentsAndEdit(t *testing.T, s store.Store) {
	ctx := context.Background()
	author := user("commenter")
	id := create(t, s, models.PostInput{AuthorID: author, Content: "original"}, nil)

	for _, text := range []string{"first", "second"} {
		if err := s.AppendComment(ctx, id, models.Comment{Content: text, AuthorID: "c1", AuthorName: "C"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.IncrementShares(ctx, id); err != nil {
		t.Fatal(err)
	}

	edited, err := s.EditPost(ctx, id, "revised")
	if err != nil {
		t.Fatal(err)
	}
	if edited.Content != "revised" || edited.EditedAt == nil {
		t.Errorf("EditPost() = %+v", edited)
	}
	if len(edited.Comments) != 2 || edited.Comments[0].Content != "first" || edited.Comments[1].Content != "second" {
		t.Errorf("comments = %+v", edited.Comments)
	}
	if edited.Comments[0].CreatedAt.IsZero() || edited.Comments[1].CreatedAt.Before(edited.Comments[0].CreatedAt) {
		t.Errorf("comment timestamps = %v, %v", edited.Comments[0].CreatedAt, edited.Comments[1].CreatedAt)
	}
	if edited.Shares != 1 {
		t.Errorf("shares = %d", edited.Shares)
	}
}

func testDeleteMissing(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := create(t, s, models.PostInput{AuthorID: user("deleter"), Content: "bye"}, nil)

	if err := s.DeletePost(ctx, id); err != nil {
		t.Fatal(err)
	}
	if err := s.DeletePost(ctx, id); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("second delete error = %v", err)
	}
	if _, err := s.EditPost(ctx, id, "x"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("edit after delete error = %v", err)
	}
	if err := s.IncrementShares(ctx, id); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("share after delete error = %v", err)
	}
}

func testPromoteDue(t *testing.T, s store.Store) {
	ctx := context.Background()
	now, err := s.Now(ctx)
	if err != nil {
		t.Fatal(err)
	}
	author := user("scheduler")
	due := create(t, s, models.PostInput{AuthorID: author, Content: "later"},
		&models.ScheduledPost{ScheduledDate: now.Add(time.Hour)})
	notYet := create(t, s, models.PostInput{AuthorID: author, Content: "much later"},
		&models.ScheduledPost{ScheduledDate: now.Add(48 * time.Hour)})

	published := store.Query{Order: store.OrderRecent, Authors: []string{author}, Status: models.StatusPublished, Limit: 10}
	if page, _ := s.ListPosts(ctx, published); len(page) != 0 {
		t.Fatalf("scheduled posts visible before promotion: %v", ids(page))
	}

	promoted, err := s.PromoteDue(ctx, now.Add(2*time.Hour), store.MaxBatch)
	if err != nil {
		t.Fatal(err)
	}
	if !contains(promoted, due) || contains(promoted, notYet) {
		t.Errorf("promoted = %v", promoted)
	}

	again, err := s.PromoteDue(ctx, now.Add(2*time.Hour), store.MaxBatch)
	if err != nil {
		t.Fatal(err)
	}
	if contains(again, due) {
		t.Error("post promoted twice")
	}

	page, _ := s.ListPosts(ctx, published)
	if len(page) != 1 || page[0].ID != due {
		t.Errorf("published after promotion = %v", ids(page))
	}
}

func testBookmarks(t *testing.T, s store.Store) {
	ctx := context.Background()
	uid := user("reader")
	a := create(t, s, models.PostInput{AuthorID: user("w"), Content: "a"}, nil)
	b := create(t, s, models.PostInput{AuthorID: user("w"), Content: "b"}, nil)

	for _, id := range []string{a, b} {
		if added, err := s.AddBookmark(ctx, uid, id); err != nil || !added {
			t.Fatalf("AddBookmark(%s) = %v, %v", id, added, err)
		}
	}
	if added, _ := s.AddBookmark(ctx, uid, a); added {
		t.Error("duplicate bookmark inserted")
	}

	marks, err := s.ListBookmarks(ctx, uid)
	if err != nil {
		t.Fatal(err)
	}
	if len(marks) != 2 || marks[0].PostID != b {
		t.Errorf("ListBookmarks() = %+v", marks)
	}

	if removed, _ := s.RemoveBookmark(ctx, uid, a); !removed {
		t.Error("RemoveBookmark() reported nothing removed")
	}
	if removed, _ := s.RemoveBookmark(ctx, uid, a); removed {
		t.Error("second RemoveBookmark() reported removal")
	}
}

func testFollowGraph(t *testing.T, s store.Store) {
	ctx := context.Background()
	u1, u2 := user("f"), user("f")
	for _, uid := range []string{u1, u2} {
		if err := s.SaveProfile(ctx, &models.UserProfile{UID: uid, DisplayName: "n-" + uid}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SetFollow(ctx, u1, u2, true); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFollow(ctx, u1, u2, true); err != nil {
		t.Fatal(err)
	}

	if err := s.SaveProfile(ctx, &models.UserProfile{UID: u1, DisplayName: "renamed"}); err != nil {
		t.Fatal(err)
	}
	me, err := s.GetProfile(ctx, u1)
	if err != nil {
		t.Fatal(err)
	}
	them, _ := s.GetProfile(ctx, u2)
	if me.DisplayName != "renamed" || len(me.Following) != 1 || me.Following[0] != u2 {
		t.Errorf("follower profile = %+v", me)
	}
	if len(them.Followers) != 1 || them.Followers[0] != u1 {
		t.Errorf("followee profile = %+v", them)
	}

	if err := s.SetFollow(ctx, u1, u2, false); err != nil {
		t.Fatal(err)
	}
	me, _ = s.GetProfile(ctx, u1)
	if len(me.Following) != 0 {
		t.Errorf("following after unfollow = %v", me.Following)
	}

	if err := s.SetFollow(ctx, u1, user("ghost"), true); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("follow missing profile error = %v", err)
	}
	if _, err := s.GetProfile(ctx, user("ghost")); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetProfile(missing) error = %v", err)
	}
}

func testPatchAuthorPosts(t *testing.T, s store.Store) {
	ctx := context.Background()
	author := user("renamer")
	var created []string
	for i := 0; i < 5; i++ {
		created = append(created, create(t, s, models.PostInput{AuthorID: author, AuthorName: "A", Content: fmt.Sprintf("%d", i)}, nil))
	}
	name := "B"
	patch := models.AuthorPatch{Name: &name}

	after, total := "", 0
	for {
		chunk, err := s.PatchAuthorPosts(ctx, author, after, 2, patch)
		if err != nil {
			t.Fatal(err)
		}
		if len(chunk) > 2 {
			t.Fatalf("chunk of %d exceeds limit", len(chunk))
		}
		total += len(chunk)
		if len(chunk) < 2 {
			break
		}
		after = chunk[len(chunk)-1]
	}
	if total != len(created) {
		t.Errorf("patched %d posts, want %d", total, len(created))
	}
	for _, id := range created {
		p, _ := s.GetPost(ctx, id)
		if p.AuthorName != "B" {
			t.Errorf("post %s author = %q", id, p.AuthorName)
		}
	}
}

func ids(posts []*models.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
