package publication

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/murmurhq/murmur/internal/models"
	"github.com/murmurhq/murmur/internal/store"
	"github.com/murmurhq/murmur/pkg/config"
	"github.com/murmurhq/murmur/pkg/logging"
	"github.com/murmurhq/murmur/pkg/telemetry"
)

// Promoter flips due scheduled posts to published on a fixed interval
type Promoter struct {
	store      store.ScheduleStore
	interval   time.Duration
	batchLimit int
	logger     *zap.Logger
}

// NewPromoter creates a promoter using the scheduler settings
func NewPromoter(s store.ScheduleStore, cfg *config.SchedulerConfig) *Promoter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	limit := cfg.BatchLimit
	if limit <= 0 || limit > store.MaxBatch {
		limit = store.MaxBatch
	}
	return &Promoter{
		store:      s,
		interval:   interval,
		batchLimit: limit,
		logger:     logging.WithComponent("scheduler"),
	}
}

// RunOnce performs one promotion pass against the store's clock. The batch is
// all-or-nothing; on error nothing changed and the next tick retries the same records.
func (p *Promoter) RunOnce(ctx context.Context) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "publication.RunOnce")
	defer span.End()

	now, err := p.store.Now(ctx)
	if err != nil {
		return nil, models.StoreUnavailable("publication.RunOnce", err)
	}

	ids, err := p.store.PromoteDue(ctx, now, p.batchLimit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("promote due posts: %w", err)
	}

	span.SetAttributes(attribute.Int("promoted", len(ids)))
	telemetry.RecordPromoted(ctx, len(ids))
	return ids, nil
}

// Run ticks until ctx is cancelled. A failed tick is logged and left to the next one.
func (p *Promoter) Run(ctx context.Context) error {
	p.logger.Info("Starting promotion loop",
		zap.Duration("interval", p.interval),
		zap.Int("batch_limit", p.batchLimit))

	for {
		p.tick(ctx)
		if !p.wait(ctx) {
			p.logger.Info("Promotion loop stopped")
			return ctx.Err()
		}
	}
}

func (p *Promoter) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Promotion tick panicked", zap.Any("panic", r))
		}
	}()

	ids, err := p.RunOnce(ctx)
	if err != nil {
		p.logger.Error("Promotion tick failed", zap.Error(err))
		return
	}
	if len(ids) > 0 {
		p.logger.Info("Promoted scheduled posts",
			zap.Int("count", len(ids)),
			zap.Strings("post_ids", ids))
		return
	}
	p.logger.Debug("No scheduled posts due")
}

// wait blocks for one interval; false if ctx was cancelled first
func (p *Promoter) wait(ctx context.Context) bool {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
