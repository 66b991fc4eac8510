package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/murmurhq/murmur/internal/models"
	"github.com/murmurhq/murmur/internal/store"
	"github.com/murmurhq/murmur/internal/store/storetest"
)

func newPost(t *testing.T, s *Store, author, content string) string {
	t.Helper()
	p, err := models.NewPost(models.PostInput{AuthorID: author, AuthorName: "name-" + author, Content: content})
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.CreatePost(context.Background(), p, nil)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestCreatedAtStrictlyIncreases(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return fixed }))

	a := newPost(t, s, "u1", "a")
	b := newPost(t, s, "u1", "b")

	pa, _ := s.GetPost(context.Background(), a)
	pb, _ := s.GetPost(context.Background(), b)
	if !pb.CreatedAt.After(pa.CreatedAt) {
		t.Errorf("CreatedAt not increasing: %v then %v", pa.CreatedAt, pb.CreatedAt)
	}
}

func TestListPostsPaginatesWithoutDuplicates(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := 0; i < 12; i++ {
		newPost(t, s, "u1", fmt.Sprintf("post %d", i))
	}

	seen := map[string]bool{}
	var last *models.Post
	var after *store.Cursor
	for {
		page, err := s.ListPosts(ctx, store.Query{Order: store.OrderRecent, After: after, Limit: 5})
		if err != nil {
			t.Fatal(err)
		}
		for _, p := range page {
			if seen[p.ID] {
				t.Fatalf("duplicate %s", p.ID)
			}
			seen[p.ID] = true
			if last != nil && !store.Before(store.OrderRecent, last, p) {
				t.Fatalf("out of order: %v then %v", last.CreatedAt, p.CreatedAt)
			}
			last = p
		}
		if len(page) < 5 {
			break
		}
		after = store.CursorOf(page[len(page)-1])
	}
	if len(seen) != 12 {
		t.Errorf("saw %d posts, want 12", len(seen))
	}
}

func TestConcurrentVotesRecordOnce(t *testing.T) {
	ctx := context.Background()
	s := New()
	p, _ := models.NewPost(models.PostInput{AuthorID: "u1", Content: "q", PollOptions: []string{"a", "b", "c"}})
	id, _ := s.CreatePost(ctx, p, nil)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, _ = s.RecordVote(ctx, id, idx%3, "voter")
		}(i)
	}
	wg.Wait()

	got, _ := s.GetPost(ctx, id)
	total := 0
	for _, opt := range got.PollOptions {
		total += len(opt.Votes)
	}
	if total != 1 {
		t.Errorf("recorded %d votes, want 1", total)
	}
}

func TestPromoteDue(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return now }))

	create := func(at time.Time) string {
		p, _ := models.NewPost(models.PostInput{AuthorID: "u1", Content: "later", ScheduledDate: &at})
		p.Status = models.StatusScheduled
		id, err := s.CreatePost(ctx, p, &models.ScheduledPost{ScheduledDate: at})
		if err != nil {
			t.Fatal(err)
		}
		return id
	}
	due := create(now.Add(-time.Minute))
	exact := create(now)
	future := create(now.Add(time.Hour))

	ids, err := s.PromoteDue(ctx, now, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("promoted %v, want 2", ids)
	}
	for id, want := range map[string]models.Status{due: models.StatusPublished, exact: models.StatusPublished, future: models.StatusScheduled} {
		p, _ := s.GetPost(ctx, id)
		if p.Status != want {
			t.Errorf("post %s status = %s, want %s", id, p.Status, want)
		}
	}

	again, _ := s.PromoteDue(ctx, now, 10)
	if len(again) != 0 {
		t.Errorf("second run promoted %v", again)
	}
}

func TestPromoteDueRespectsLimit(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	s := New()
	for i := 0; i < 3; i++ {
		at := now.Add(-time.Duration(i+1) * time.Minute)
		p, _ := models.NewPost(models.PostInput{AuthorID: "u1", Content: "x"})
		p.Status = models.StatusScheduled
		_, _ = s.CreatePost(ctx, p, &models.ScheduledPost{ScheduledDate: at})
	}
	first, _ := s.PromoteDue(ctx, now, 2)
	second, _ := s.PromoteDue(ctx, now, 2)
	if len(first) != 2 || len(second) != 1 {
		t.Errorf("batches = %d, %d; want 2, 1", len(first), len(second))
	}
}

func TestBookmarks(t *testing.T) {
	ctx := context.Background()
	s := New()

	if added, _ := s.AddBookmark(ctx, "u1", "p1"); !added {
		t.Error("first add should insert")
	}
	if added, _ := s.AddBookmark(ctx, "u1", "p1"); added {
		t.Error("duplicate add should be a no-op")
	}
	_, _ = s.AddBookmark(ctx, "u1", "p2")

	list, _ := s.ListBookmarks(ctx, "u1")
	if len(list) != 2 || list[0].PostID != "p2" {
		t.Errorf("ListBookmarks() = %+v, want p2 first", list)
	}
	if removed, _ := s.RemoveBookmark(ctx, "u1", "p1"); !removed {
		t.Error("remove should delete")
	}
	if removed, _ := s.RemoveBookmark(ctx, "u1", "p1"); removed {
		t.Error("second remove should be a no-op")
	}
}

func TestFollowAndProfiles(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.SaveProfile(ctx, &models.UserProfile{UID: "a", DisplayName: "A"})
	_ = s.SaveProfile(ctx, &models.UserProfile{UID: "b", DisplayName: "B"})

	if err := s.SetFollow(ctx, "a", "b", true); err != nil {
		t.Fatal(err)
	}
	// saving editable fields keeps the follow graph
	_ = s.SaveProfile(ctx, &models.UserProfile{UID: "a", DisplayName: "A2"})

	a, _ := s.GetProfile(ctx, "a")
	b, _ := s.GetProfile(ctx, "b")
	if !a.Follows("b") || len(b.Followers) != 1 || a.DisplayName != "A2" {
		t.Errorf("a=%+v b=%+v", a, b)
	}

	_ = s.SetFollow(ctx, "a", "b", false)
	a, _ = s.GetProfile(ctx, "a")
	if a.Follows("b") {
		t.Error("unfollow did not apply")
	}

	if err := s.SetFollow(ctx, "a", "ghost", true); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("follow missing profile error = %v", err)
	}
}

func TestPatchAuthorPostsChunks(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := 0; i < 5; i++ {
		newPost(t, s, "u1", "mine")
	}
	other := newPost(t, s, "u2", "theirs")

	name := "New Name"
	patch := models.AuthorPatch{Name: &name}

	first, _ := s.PatchAuthorPosts(ctx, "u1", "", 3, patch)
	second, _ := s.PatchAuthorPosts(ctx, "u1", first[len(first)-1], 3, patch)
	if len(first) != 3 || len(second) != 2 {
		t.Fatalf("chunks = %d, %d; want 3, 2", len(first), len(second))
	}

	page, _ := s.ListPosts(ctx, store.Query{Order: store.OrderRecent, Authors: []string{"u1"}, Limit: 10})
	for _, p := range page {
		if p.AuthorName != name {
			t.Errorf("post %s AuthorName = %q", p.ID, p.AuthorName)
		}
	}
	p, _ := s.GetPost(ctx, other)
	if p.AuthorName != "name-u2" {
		t.Errorf("other author's post rewritten: %q", p.AuthorName)
	}
}

func TestMissingPost(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.GetPost(ctx, "nope"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetPost error = %v", err)
	}
	if err := s.DeletePost(ctx, "nope"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("DeletePost error = %v", err)
	}
	if _, err := s.AddLike(ctx, "nope", "u1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("AddLike error = %v", err)
	}
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}
