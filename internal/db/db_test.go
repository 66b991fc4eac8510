package db

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/murmurhq/murmur/internal/models"
	"github.com/murmurhq/murmur/internal/store"
	"github.com/murmurhq/murmur/internal/store/storetest"
	"github.com/murmurhq/murmur/pkg/config"
)

func TestGormLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logger.LogLevel
	}{
		{"debug", logger.Info},
		{"INFO", logger.Warn},
		{"warning", logger.Error},
		{"error", logger.Silent},
		{"", logger.Warn},
	}
	for _, tt := range tests {
		if got := gormLevel(tt.in); got != tt.want {
			t.Errorf("gormLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"record not found", gorm.ErrRecordNotFound, models.ErrNotFound},
		{"driver failure", errors.New("connection refused"), models.ErrStoreUnavailable},
		{"already classified", models.Validation("x", "bad"), models.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := translate("op", "thing", tt.err); !errors.Is(got, tt.want) {
				t.Errorf("translate() = %v, want kind %v", got, tt.want)
			}
		})
	}
	if translate("op", "", nil) != nil {
		t.Error("translate(nil) != nil")
	}
}

func TestPostRowRoundTrip(t *testing.T) {
	edited := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &models.Post{
		ID:        "p1",
		AuthorID:  "u1",
		Content:   "hi",
		MediaType: models.MediaImage,
		MediaURL:  "https://cdn.example.com/a.png",
		CreatedAt: time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC),
		EditedAt:  &edited,
		Likes:     []string{"a", "b"},
		Shares:    3,
		Status:    models.StatusPublished,
	}
	row := newPostRow(p)
	if row.LikeCount != 2 || row.Tags == nil {
		t.Errorf("row = %+v", row)
	}

	back := row.toModel()
	if back.ID != p.ID || back.MediaType != p.MediaType || back.Shares != 3 || !back.EditedAt.Equal(edited) {
		t.Errorf("toModel() = %+v", back)
	}
	if back.Likes == nil || back.Comments == nil {
		t.Error("toModel() left nil slices")
	}
}

func TestProfileRowSettings(t *testing.T) {
	row := newProfileRow(&models.UserProfile{UID: "u1"})
	if row.Settings != "{}" {
		t.Errorf("empty settings stored as %q", row.Settings)
	}
	if p := row.toModel(); p.Settings != nil || p.Followers == nil {
		t.Errorf("toModel() = %+v", p)
	}

	row = newProfileRow(&models.UserProfile{UID: "u1", Settings: []byte(`{"theme":"dark"}`)})
	if got := string(row.toModel().Settings); got != `{"theme":"dark"}` {
		t.Errorf("settings = %s", got)
	}
}

func TestRepositoryContract(t *testing.T) {
	url := os.Getenv("MURMUR_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("MURMUR_TEST_DATABASE_URL not set")
	}
	conn, err := New(&config.StoreConfig{DatabaseURL: url}, "error")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := conn.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}

	repo := NewRepository(conn)
	storetest.Run(t, func(t *testing.T) store.Store { return repo })
}
