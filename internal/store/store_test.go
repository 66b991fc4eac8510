package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/murmurhq/murmur/internal/changefeed"
	"github.com/murmurhq/murmur/internal/models"
	"github.com/murmurhq/murmur/internal/store"
	"github.com/murmurhq/murmur/internal/store/memstore"
)

func TestCursorRoundTrip(t *testing.T) {
	c := &store.Cursor{ID: "p7", CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), LikeCount: 3}
	got, err := store.DecodeCursor(c.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != c.ID || !got.CreatedAt.Equal(c.CreatedAt) || got.LikeCount != c.LikeCount {
		t.Errorf("DecodeCursor() = %+v, want %+v", got, c)
	}

	if got, err := store.DecodeCursor(""); got != nil || err != nil {
		t.Errorf("empty cursor = %v, %v", got, err)
	}
	for _, bad := range []string{"!!!", "e30"} {
		if _, err := store.DecodeCursor(bad); !errors.Is(err, models.ErrValidation) {
			t.Errorf("DecodeCursor(%q) error = %v", bad, err)
		}
	}
}

func TestBefore(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	older := &models.Post{ID: "a", CreatedAt: t0, LikeCount: 9}
	newer := &models.Post{ID: "b", CreatedAt: t0.Add(time.Second), LikeCount: 1}
	twin := &models.Post{ID: "c", CreatedAt: t0, LikeCount: 9}

	tests := []struct {
		name  string
		order store.Order
		a, b  *models.Post
		want  bool
	}{
		{"recent newer first", store.OrderRecent, newer, older, true},
		{"recent older second", store.OrderRecent, older, newer, false},
		{"recent tie by id desc", store.OrderRecent, twin, older, true},
		{"trending more likes first", store.OrderTrending, older, newer, true},
		{"trending tie by id desc", store.OrderTrending, twin, older, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := store.Before(tt.order, tt.a, tt.b); got != tt.want {
				t.Errorf("Before() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQueryValidate(t *testing.T) {
	tests := []struct {
		name    string
		q       store.Query
		wantErr bool
	}{
		{"ok", store.Query{Order: store.OrderRecent, Limit: 5}, false},
		{"unknown order", store.Query{Order: "hot", Limit: 5}, true},
		{"zero limit", store.Query{Order: store.OrderRecent}, true},
		{"limit over batch", store.Query{Order: store.OrderRecent, Limit: store.MaxBatch + 1}, true},
		{"empty author set", store.Query{Order: store.OrderRecent, Limit: 5, Authors: []string{}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.q.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNotifyingPublishesWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := changefeed.NewLocal()
	events, _ := bus.Subscribe(ctx)
	s := store.NewNotifying(memstore.New(), bus)

	post, _ := models.NewPost(models.PostInput{AuthorID: "u1", Content: "hi"})
	id, err := s.CreatePost(ctx, post, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddLike(ctx, id, "u2"); err != nil {
		t.Fatal(err)
	}
	// no change, no event
	if _, err := s.AddLike(ctx, id, "u2"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeletePost(ctx, id); err != nil {
		t.Fatal(err)
	}

	want := []changefeed.EventType{changefeed.Added, changefeed.Modified, changefeed.Removed}
	for i, typ := range want {
		select {
		case ev := <-events:
			if ev.Type != typ || ev.PostID != id {
				t.Errorf("event %d = %+v, want %s", i, ev, typ)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing event %d", i)
		}
	}
	select {
	case ev := <-events:
		t.Errorf("unexpected extra event %+v", ev)
	default:
	}
}
