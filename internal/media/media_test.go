package media

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/murmurhq/murmur/internal/models"
)

func TestMemoryUploadReportsProgress(t *testing.T) {
	m := NewMemory()
	body := strings.Repeat("x", 10_000)

	var last, total int64
	url, err := m.Upload(context.Background(), &Upload{
		Body: strings.NewReader(body),
		Size: int64(len(body)),
		Type: models.MediaImage,
		Progress: func(sent, size int64) {
			if sent < last {
				t.Errorf("progress went backwards: %d after %d", sent, last)
			}
			last, total = sent, size
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if last != int64(len(body)) || total != int64(len(body)) {
		t.Errorf("final progress = %d/%d", last, total)
	}
	if !m.Has(url) {
		t.Fatalf("uploaded object %s missing", url)
	}

	if err := m.Delete(context.Background(), url); err != nil {
		t.Fatal(err)
	}
	if m.Len() != 0 {
		t.Error("Delete left the object behind")
	}
}

func TestUploadRejectsBadInput(t *testing.T) {
	m := NewMemory()
	tests := []struct {
		name string
		u    *Upload
	}{
		{"nil upload", nil},
		{"no body", &Upload{Type: models.MediaImage}},
		{"none type", &Upload{Body: strings.NewReader("x"), Type: models.MediaNone}},
		{"unknown type", &Upload{Body: strings.NewReader("x"), Type: "gif"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Upload(context.Background(), tt.u); !errors.Is(err, models.ErrValidation) {
				t.Errorf("Upload() error = %v", err)
			}
		})
	}
}

func TestParsePublicID(t *testing.T) {
	tests := []struct {
		url      string
		wantID   string
		wantKind string
		wantErr  bool
	}{
		{"https://res.cloudinary.com/demo/image/upload/v1712345/murmur/posts/abc.jpg", "murmur/posts/abc", "image", false},
		{"https://res.cloudinary.com/demo/video/upload/v1/murmur/posts/clip.mp4", "murmur/posts/clip", "video", false},
		{"https://res.cloudinary.com/demo/image/upload/c_limit,w_400/v99/a/b.png", "a/b", "image", false},
		{"https://res.cloudinary.com/demo/image/upload/q_auto/sample.png", "sample", "image", false},
		{"https://res.cloudinary.com/demo/image/upload/sample", "sample", "image", false},
		{"https://example.com/pic.png", "", "", true},
		{"https://res.cloudinary.com/demo/image/upload/", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			id, kind, err := ParsePublicID(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", id)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if id != tt.wantID || kind != tt.wantKind {
				t.Errorf("ParsePublicID() = %q, %q; want %q, %q", id, kind, tt.wantID, tt.wantKind)
			}
		})
	}
}
