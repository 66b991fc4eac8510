package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/murmurhq/murmur/pkg/logging"
)

// Instruments are created against the global meter provider; the global delegates
// to the real provider once Init has installed it.
type instruments struct {
	promoted  otelmetric.Int64Counter
	feedPages otelmetric.Int64Counter
	mutations otelmetric.Int64Counter
	fanout    otelmetric.Int64Counter
}

var (
	instOnce sync.Once
	inst     instruments
)

func load() *instruments {
	instOnce.Do(func() {
		meter := otel.Meter("github.com/murmurhq/murmur")
		var err error
		if inst.promoted, err = meter.Int64Counter("murmur_posts_promoted_total",
			otelmetric.WithDescription("Scheduled posts promoted to published")); err != nil {
			logging.GetLogger().Warn("Failed to create counter", zap.Error(err))
		}
		if inst.feedPages, err = meter.Int64Counter("murmur_feed_pages_total",
			otelmetric.WithDescription("Feed pages served, by filter")); err != nil {
			logging.GetLogger().Warn("Failed to create counter", zap.Error(err))
		}
		if inst.mutations, err = meter.Int64Counter("murmur_engagement_mutations_total",
			otelmetric.WithDescription("Engagement mutations, by kind and outcome")); err != nil {
			logging.GetLogger().Warn("Failed to create counter", zap.Error(err))
		}
		if inst.fanout, err = meter.Int64Counter("murmur_fanout_posts_rewritten_total",
			otelmetric.WithDescription("Posts rewritten by profile fan-out")); err != nil {
			logging.GetLogger().Warn("Failed to create counter", zap.Error(err))
		}
	})
	return &inst
}

// RecordPromoted counts posts flipped to published by one promotion tick
func RecordPromoted(ctx context.Context, n int) {
	if c := load().promoted; c != nil && n > 0 {
		c.Add(ctx, int64(n))
	}
}

// RecordFeedPage counts one served feed page
func RecordFeedPage(ctx context.Context, filter string) {
	if c := load().feedPages; c != nil {
		c.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("filter", filter)))
	}
}

// RecordMutation counts one engagement mutation attempt
func RecordMutation(ctx context.Context, kind string, err error) {
	c := load().mutations
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

// RecordFanout counts posts rewritten by a fan-out chunk
func RecordFanout(ctx context.Context, n int) {
	if c := load().fanout; c != nil && n > 0 {
		c.Add(ctx, int64(n))
	}
}
