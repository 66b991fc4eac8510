package media

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/murmurhq/murmur/internal/models"
	"github.com/murmurhq/murmur/pkg/config"
	"github.com/murmurhq/murmur/pkg/logging"
)

var versionSegment = regexp.MustCompile(`^v\d+$`)

// Cloudinary stores media in a Cloudinary folder
type Cloudinary struct {
	cld    *cloudinary.Cloudinary
	folder string
	logger *zap.Logger
}

// NewCloudinary connects using a cloudinary:// URL
func NewCloudinary(cfg *config.MediaConfig) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromURL(cfg.CloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("cloudinary configuration error: %w", err)
	}
	return &Cloudinary{
		cld:    cld,
		folder: cfg.Folder,
		logger: logging.WithComponent("media"),
	}, nil
}

func (c *Cloudinary) Upload(ctx context.Context, u *Upload) (string, error) {
	const op = "media.Upload"
	if err := checkUpload(op, u); err != nil {
		return "", err
	}

	params := uploader.UploadParams{
		Folder:       c.folder,
		PublicID:     uuid.NewString(),
		ResourceType: resourceType(u.Type),
	}
	if u.Type == models.MediaImage {
		params.Transformation = "c_limit,w_1600,h_1600,q_auto"
	}

	res, err := c.cld.Upload.Upload(ctx, newProgressReader(u), params)
	if err != nil {
		return "", models.MediaIO(op, err)
	}
	if res.Error.Message != "" {
		return "", models.MediaIO(op, errors.New(res.Error.Message))
	}

	c.logger.Debug("Uploaded media",
		zap.String("public_id", res.PublicID),
		zap.String("type", string(u.Type)))
	return res.SecureURL, nil
}

func (c *Cloudinary) Delete(ctx context.Context, url string) error {
	const op = "media.Delete"
	publicID, kind, err := ParsePublicID(url)
	if err != nil {
		// not ours to release
		c.logger.Debug("Skipping delete of foreign media url", zap.String("url", url))
		return nil
	}

	res, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     publicID,
		ResourceType: kind,
	})
	if err != nil {
		return models.MediaIO(op, err)
	}
	if res.Error.Message != "" {
		return models.MediaIO(op, errors.New(res.Error.Message))
	}
	// "not found" means it is already gone
	if res.Result != "ok" && res.Result != "not found" {
		return models.MediaIO(op, fmt.Errorf("destroy %s: %s", publicID, res.Result))
	}
	return nil
}

func resourceType(t models.MediaType) string {
	if t == models.MediaVideo {
		return "video"
	}
	return "image"
}

// ParsePublicID extracts the public ID and resource type from a Cloudinary delivery URL,
// e.g. https://res.cloudinary.com/demo/video/upload/v1712/murmur/posts/abc.mp4
// yields ("murmur/posts/abc", "video").
func ParsePublicID(url string) (string, string, error) {
	const op = "media.ParsePublicID"
	head, rest, ok := strings.Cut(url, "/upload/")
	if !ok || rest == "" {
		return "", "", models.Validation(op, "not a cloudinary upload url")
	}

	kind := path.Base(head)
	if kind != "image" && kind != "video" && kind != "raw" {
		kind = "image"
	}

	segments := strings.Split(rest, "/")
	// everything after the version segment is the public ID; without one, drop leading transformations
	versioned := false
	for i, seg := range segments {
		if versionSegment.MatchString(seg) && i < len(segments)-1 {
			segments, versioned = segments[i+1:], true
			break
		}
	}
	for !versioned && len(segments) > 1 && isTransformation(segments[0]) {
		segments = segments[1:]
	}
	publicID := strings.Join(segments, "/")
	publicID = strings.TrimSuffix(publicID, path.Ext(publicID))
	if publicID == "" {
		return "", "", models.Validation(op, "empty public id")
	}
	return publicID, kind, nil
}

// isTransformation matches transformation segments like c_limit,w_400 or q_auto
func isTransformation(seg string) bool {
	for _, part := range strings.Split(seg, ",") {
		key, _, ok := strings.Cut(part, "_")
		if !ok || len(key) == 0 || len(key) > 2 {
			return false
		}
	}
	return true
}
