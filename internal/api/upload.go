package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/murmurhq/murmur/internal/media"
	"github.com/murmurhq/murmur/internal/models"
)

// DefaultMaxUploadBytes caps a media upload when no limit is configured
const DefaultMaxUploadBytes = 10 << 20

// uploadHandler accepts a multipart "file" plus a "type" of image or video and returns
// the durable URL to pass as mediaURL to posts.create.
func (r *Router) uploadHandler(c *gin.Context) {
	limit := r.maxUpload
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+(1<<20))

	kind := models.MediaType(c.PostForm("type"))
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	if fh.Size > limit {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer f.Close()

	uid := currentUID(c)
	url, err := r.media.Upload(c.Request.Context(), &media.Upload{
		Body:     f,
		Size:     fh.Size,
		Type:     kind,
		Filename: fh.Filename,
		Progress: func(sent, total int64) {
			if sent == total {
				r.logger.Debug("Upload streamed", zap.String("uid", uid), zap.Int64("bytes", sent))
			}
		},
	})
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, models.ErrValidation) {
			status = http.StatusBadRequest
		}
		r.logger.Warn("Media upload failed", zap.String("uid", uid), zap.Error(err))
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url, "type": kind})
}
