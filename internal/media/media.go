// Package media stores post attachments and hands back durable URLs.
package media

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/murmurhq/murmur/internal/models"
)

// ProgressFunc receives bytes sent so far and the total (0 if unknown)
type ProgressFunc func(sent, total int64)

// Upload is one attachment to store
type Upload struct {
	Body     io.Reader
	Size     int64
	Type     models.MediaType
	Filename string
	Progress ProgressFunc
}

// Store uploads and releases media objects
type Store interface {
	Upload(ctx context.Context, u *Upload) (string, error)
	Delete(ctx context.Context, url string) error
}

// progressReader reports cumulative reads to a ProgressFunc
type progressReader struct {
	r        io.Reader
	total    int64
	sent     atomic.Int64
	progress ProgressFunc
}

func newProgressReader(u *Upload) io.Reader {
	if u.Progress == nil {
		return u.Body
	}
	return &progressReader{r: u.Body, total: u.Size, progress: u.Progress}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.progress(p.sent.Add(int64(n)), p.total)
	}
	return n, err
}

func checkUpload(op string, u *Upload) error {
	if u == nil || u.Body == nil {
		return models.Validation(op, "no media body")
	}
	switch u.Type {
	case models.MediaImage, models.MediaVideo:
		return nil
	}
	return models.Validation(op, "unsupported media type %q", u.Type)
}
