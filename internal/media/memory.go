package media

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/murmurhq/murmur/internal/models"
)

// Memory keeps media in process; used when no Cloudinary URL is configured
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemory creates an empty in-memory media store
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Upload(ctx context.Context, u *Upload) (string, error) {
	const op = "media.Upload"
	if err := checkUpload(op, u); err != nil {
		return "", err
	}
	data, err := io.ReadAll(newProgressReader(u))
	if err != nil {
		return "", models.MediaIO(op, err)
	}
	if err := ctx.Err(); err != nil {
		return "", models.MediaIO(op, err)
	}

	url := "memory://media/" + string(u.Type) + "/" + uuid.NewString()
	m.mu.Lock()
	m.objects[url] = data
	m.mu.Unlock()
	return url, nil
}

func (m *Memory) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, url)
	return nil
}

// Has reports whether url is stored
func (m *Memory) Has(url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[url]
	return ok
}

// Len returns the number of stored objects
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
