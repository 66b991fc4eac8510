package profile

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/murmurhq/murmur/internal/models"
	"github.com/murmurhq/murmur/internal/store/memstore"
	"github.com/murmurhq/murmur/pkg/config"
)

func strptr(s string) *string { return &s }

func seed(t *testing.T, s *memstore.Store, uid, name string, posts int) []string {
	t.Helper()
	ctx := context.Background()
	if err := s.SaveProfile(ctx, &models.UserProfile{UID: uid, DisplayName: name}); err != nil {
		t.Fatal(err)
	}
	ids := make([]string, 0, posts)
	for i := 0; i < posts; i++ {
		p, err := models.NewPost(models.PostInput{AuthorID: uid, AuthorName: name, Content: fmt.Sprintf("post %d", i)})
		if err != nil {
			t.Fatal(err)
		}
		id, err := s.CreatePost(ctx, p, nil)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	return ids
}

func authorNames(t *testing.T, s *memstore.Store, ids []string) map[string]int {
	t.Helper()
	names := map[string]int{}
	for _, id := range ids {
		p, err := s.GetPost(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		names[p.AuthorName]++
	}
	return names
}

func TestUpdateProfileFansOutDisplayName(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	ids := seed(t, s, "u1", "A", 7)
	other := seed(t, s, "u2", "Z", 2)

	fan := NewFanout(s, nil, &config.FanoutConfig{BatchSize: 3})
	svc := NewService(s, fan, nil)

	p, err := svc.UpdateProfile(ctx, "u1", models.ProfilePatch{DisplayName: strptr("B"), Bio: strptr("hi")})
	if err != nil {
		t.Fatal(err)
	}
	if p.DisplayName != "B" || p.Bio != "hi" {
		t.Errorf("profile = %+v", p)
	}
	if names := authorNames(t, s, ids); names["B"] != len(ids) {
		t.Errorf("author names after fan-out = %v", names)
	}
	if names := authorNames(t, s, other); names["Z"] != len(other) {
		t.Errorf("other author's posts touched: %v", names)
	}

	post, err := models.NewPost(models.PostInput{AuthorID: "u1", AuthorName: p.Author().Name, Content: "later"})
	if err != nil {
		t.Fatal(err)
	}
	if post.AuthorName != "B" {
		t.Errorf("new post author = %q", post.AuthorName)
	}
}

func TestUpdateProfileFansOutAvatarOnly(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	ids := seed(t, s, "u1", "A", 3)
	svc := NewService(s, NewFanout(s, nil, &config.FanoutConfig{}), nil)

	if _, err := svc.UpdateProfile(ctx, "u1", models.ProfilePatch{PhotoURL: strptr("https://img.example.com/a.png")}); err != nil {
		t.Fatal(err)
	}
	for _, id := range ids {
		p, _ := s.GetPost(ctx, id)
		if p.AuthorPhotoURL != "https://img.example.com/a.png" || p.AuthorName != "A" {
			t.Errorf("post %s = %q, %q", id, p.AuthorName, p.AuthorPhotoURL)
		}
	}
}

func TestUpdateProfileRejectsInvalidPatch(t *testing.T) {
	s := memstore.New()
	svc := NewService(s, NewFanout(s, nil, &config.FanoutConfig{}), nil)

	tests := []struct {
		name  string
		patch models.ProfilePatch
	}{
		{"blank name", models.ProfilePatch{DisplayName: strptr("   ")}},
		{"bad website", models.ProfilePatch{Website: strptr("not a url")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.UpdateProfile(context.Background(), "u1", tt.patch); !errors.Is(err, models.ErrValidation) {
				t.Errorf("UpdateProfile() error = %v", err)
			}
		})
	}
}

func TestUpdateProfileCreatesMissingProfile(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	svc := NewService(s, NewFanout(s, nil, &config.FanoutConfig{}), nil)

	if _, err := svc.UpdateProfile(ctx, "new", models.ProfilePatch{DisplayName: strptr("Newcomer")}); err != nil {
		t.Fatal(err)
	}
	p, err := svc.GetProfile(ctx, "new")
	if err != nil {
		t.Fatal(err)
	}
	if p.DisplayName != "Newcomer" {
		t.Errorf("DisplayName = %q", p.DisplayName)
	}
}

// flakyFanout fails the nth PatchAuthorPosts call
type flakyFanout struct {
	*memstore.Store
	calls  int
	failOn int
}

func (f *flakyFanout) PatchAuthorPosts(ctx context.Context, uid, afterID string, limit int, patch models.AuthorPatch) ([]string, error) {
	f.calls++
	if f.calls == f.failOn {
		return nil, models.StoreUnavailable("flaky", errors.New("connection reset"))
	}
	return f.Store.PatchAuthorPosts(ctx, uid, afterID, limit, patch)
}

func TestFanoutResumesFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	ids := seed(t, s, "u1", "A", 5)
	flaky := &flakyFanout{Store: s, failOn: 2}
	fan := NewFanout(flaky, nil, &config.FanoutConfig{BatchSize: 2})
	patch := models.AuthorPatch{Name: strptr("B")}

	n, err := fan.Run(ctx, "u1", patch)
	var ferr *FanoutError
	if !errors.As(err, &ferr) {
		t.Fatalf("Run() error = %v, want *FanoutError", err)
	}
	if !errors.Is(err, models.ErrStoreUnavailable) {
		t.Errorf("error kind lost: %v", err)
	}
	if n != 2 || ferr.Rewritten != 2 || ferr.Checkpoint == "" {
		t.Fatalf("n = %d, err = %+v", n, ferr)
	}
	if names := authorNames(t, s, ids); names["B"] != 2 {
		t.Fatalf("after failure names = %v", names)
	}

	n, err = fan.RunFrom(ctx, "u1", patch, ferr.Checkpoint)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("resumed run rewrote %d posts, want 3", n)
	}
	if names := authorNames(t, s, ids); names["B"] != len(ids) {
		t.Errorf("after resume names = %v", names)
	}
}

func TestFanoutEmptyPatchIsNoop(t *testing.T) {
	flaky := &flakyFanout{Store: memstore.New(), failOn: 1}
	fan := NewFanout(flaky, nil, &config.FanoutConfig{})
	if n, err := fan.Run(context.Background(), "u1", models.AuthorPatch{}); n != 0 || err != nil {
		t.Errorf("Run() = %d, %v", n, err)
	}
	if flaky.calls != 0 {
		t.Errorf("store called %d times", flaky.calls)
	}
}

func TestNewFanoutClampsBatchSize(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 500},
		{-1, 500},
		{100, 100},
		{10_000, 500},
	}
	for _, tt := range tests {
		f := NewFanout(memstore.New(), nil, &config.FanoutConfig{BatchSize: tt.in})
		if f.batchSize != tt.want {
			t.Errorf("BatchSize %d -> %d, want %d", tt.in, f.batchSize, tt.want)
		}
	}
}

func TestToggleFollow(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seed(t, s, "u1", "A", 0)
	seed(t, s, "u2", "B", 0)
	svc := NewService(s, NewFanout(s, nil, &config.FanoutConfig{}), nil)

	following, err := svc.ToggleFollow(ctx, "u1", "u2")
	if err != nil || !following {
		t.Fatalf("first toggle = %v, %v", following, err)
	}
	me, _ := svc.GetProfile(ctx, "u1")
	them, _ := svc.GetProfile(ctx, "u2")
	if !me.Follows("u2") || len(them.Followers) != 1 || them.Followers[0] != "u1" {
		t.Errorf("after follow: me=%v them=%v", me.Following, them.Followers)
	}

	following, err = svc.ToggleFollow(ctx, "u1", "u2")
	if err != nil || following {
		t.Fatalf("second toggle = %v, %v", following, err)
	}
	me, _ = svc.GetProfile(ctx, "u1")
	them, _ = svc.GetProfile(ctx, "u2")
	if me.Follows("u2") || len(them.Followers) != 0 {
		t.Errorf("after unfollow: me=%v them=%v", me.Following, them.Followers)
	}
}

func TestToggleFollowErrors(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seed(t, s, "u1", "A", 0)
	svc := NewService(s, NewFanout(s, nil, &config.FanoutConfig{}), nil)

	if _, err := svc.ToggleFollow(ctx, "u1", "u1"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("self-follow error = %v", err)
	}
	if _, err := svc.ToggleFollow(ctx, "u1", "ghost"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("missing target error = %v", err)
	}
}
