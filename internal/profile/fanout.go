package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/murmurhq/murmur/internal/cache"
	"github.com/murmurhq/murmur/internal/models"
	"github.com/murmurhq/murmur/internal/store"
	"github.com/murmurhq/murmur/pkg/config"
	"github.com/murmurhq/murmur/pkg/logging"
	"github.com/murmurhq/murmur/pkg/telemetry"
)

const checkpointTTL = 24 * time.Hour

// FanoutError reports a fan-out that stopped part way. Posts with IDs up to and including
// Checkpoint already carry the patch.
type FanoutError struct {
	UID        string
	Checkpoint string
	Rewritten  int
	Err        error
}

func (e *FanoutError) Error() string {
	return fmt.Sprintf("fan-out for %s stopped after %d posts (checkpoint %q): %v", e.UID, e.Rewritten, e.Checkpoint, e.Err)
}

func (e *FanoutError) Unwrap() error {
	return e.Err
}

// Fanout rewrites the denormalized author fields on a user's existing posts
type Fanout struct {
	posts     store.FanoutStore
	cache     *cache.Cache
	batchSize int
	logger    *zap.Logger
}

// NewFanout creates a fan-out runner. Chunks never exceed store.MaxBatch.
func NewFanout(posts store.FanoutStore, c *cache.Cache, cfg *config.FanoutConfig) *Fanout {
	size := cfg.BatchSize
	if size <= 0 || size > store.MaxBatch {
		size = store.MaxBatch
	}
	return &Fanout{
		posts:     posts,
		cache:     c,
		batchSize: size,
		logger:    logging.WithComponent("fanout"),
	}
}

// Run applies patch to every post by uid, resuming from a checkpoint left by an earlier
// failed run for the same patch. Returns the number of posts rewritten by this call.
func (f *Fanout) Run(ctx context.Context, uid string, patch models.AuthorPatch) (int, error) {
	return f.RunFrom(ctx, uid, patch, f.loadCheckpoint(ctx, uid, patch))
}

// RunFrom applies patch to the posts by uid whose ID sorts after afterID
func (f *Fanout) RunFrom(ctx context.Context, uid string, patch models.AuthorPatch, afterID string) (int, error) {
	if patch.Empty() {
		return 0, nil
	}
	ctx, span := telemetry.StartSpan(ctx, "profile.Fanout")
	defer span.End()

	logger := logging.WithUser(f.logger, uid)
	if afterID != "" {
		logger.Info("Resuming fan-out", zap.String("checkpoint", afterID))
	}

	total := 0
	for {
		ids, err := f.posts.PatchAuthorPosts(ctx, uid, afterID, f.batchSize, patch)
		if err != nil {
			logger.Error("Fan-out chunk failed",
				zap.String("checkpoint", afterID),
				zap.Int("rewritten", total),
				zap.Error(err))
			return total, &FanoutError{UID: uid, Checkpoint: afterID, Rewritten: total, Err: err}
		}
		total += len(ids)
		telemetry.RecordFanout(ctx, len(ids))
		if len(ids) < f.batchSize {
			break
		}
		afterID = ids[len(ids)-1]
		f.saveCheckpoint(ctx, uid, patch, afterID)
	}

	f.clearCheckpoint(ctx, uid, patch)
	logger.Info("Fan-out completed", zap.Int("posts", total))
	return total, nil
}

func checkpointKey(uid string, patch models.AuthorPatch) string {
	field := func(v *string) string {
		if v == nil {
			return "-"
		}
		return "=" + *v
	}
	return "fanout:" + cache.HashKey(uid, field(patch.Name), field(patch.PhotoURL))
}

func (f *Fanout) loadCheckpoint(ctx context.Context, uid string, patch models.AuthorPatch) string {
	after, err := f.cache.Get(ctx, checkpointKey(uid, patch))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheDisabled) && !errors.Is(err, cache.ErrMiss) {
			f.logger.Warn("Failed to read fan-out checkpoint", zap.String("uid", uid), zap.Error(err))
		}
		return ""
	}
	return after
}

func (f *Fanout) saveCheckpoint(ctx context.Context, uid string, patch models.AuthorPatch, after string) {
	err := f.cache.Set(ctx, checkpointKey(uid, patch), after, checkpointTTL)
	if err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		f.logger.Warn("Failed to save fan-out checkpoint", zap.String("uid", uid), zap.Error(err))
	}
}

func (f *Fanout) clearCheckpoint(ctx context.Context, uid string, patch models.AuthorPatch) {
	err := f.cache.Delete(ctx, checkpointKey(uid, patch))
	if err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		f.logger.Warn("Failed to clear fan-out checkpoint", zap.String("uid", uid), zap.Error(err))
	}
}
