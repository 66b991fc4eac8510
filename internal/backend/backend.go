// Package backend opens the store, cache and change feed selected by configuration.
package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/murmurhq/murmur/internal/cache"
	"github.com/murmurhq/murmur/internal/changefeed"
	"github.com/murmurhq/murmur/internal/db"
	"github.com/murmurhq/murmur/internal/mongostore"
	"github.com/murmurhq/murmur/internal/store"
	"github.com/murmurhq/murmur/internal/store/memstore"
	"github.com/murmurhq/murmur/pkg/config"
	"github.com/murmurhq/murmur/pkg/logging"
)

// Backend bundles the shared infrastructure of one process
type Backend struct {
	// Store publishes every mutation to Bus
	Store  *store.Notifying
	Cache  *cache.Cache
	Bus    changefeed.Bus
	Checks map[string]func(ctx context.Context) error

	raw    store.Store
	logger *zap.Logger
}

// Open connects to the configured store driver. With Redis configured the change feed
// is shared across processes; otherwise it only reaches subscribers in this process.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	b := &Backend{
		Checks: make(map[string]func(ctx context.Context) error),
		logger: logging.WithComponent("backend"),
	}

	switch cfg.Store.Driver {
	case "postgres":
		conn, err := db.New(&cfg.Store, cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		if err := conn.Migrate(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		b.raw = db.NewRepository(conn)
		b.Checks["postgres"] = conn.Health
	case "mongo":
		s, err := mongostore.Open(ctx, &cfg.Store)
		if err != nil {
			return nil, err
		}
		b.raw = s
		b.Checks["mongo"] = s.Health
	case "memory":
		b.logger.Warn("Using in-memory store; data is lost on exit")
		b.raw = memstore.New()
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	c, err := cache.New(&cfg.Redis)
	if err != nil {
		b.raw.Close(ctx)
		return nil, err
	}
	b.Cache = c
	if c.Enabled() {
		b.Bus = changefeed.NewRedis(c.Client(), changefeed.DefaultChannel)
		b.Checks["redis"] = c.Health
	} else {
		b.Bus = changefeed.NewLocal()
	}

	b.Store = store.NewNotifying(b.raw, b.Bus)
	b.logger.Info("Backend ready",
		zap.String("store", cfg.Store.Driver),
		zap.Bool("redis", c.Enabled()),
	)
	return b, nil
}

// Close releases the change feed, cache and store
func (b *Backend) Close(ctx context.Context) {
	if err := b.Bus.Close(); err != nil {
		b.logger.Warn("Failed to close change feed", zap.Error(err))
	}
	if err := b.Cache.Close(); err != nil {
		b.logger.Warn("Failed to close cache", zap.Error(err))
	}
	if err := b.raw.Close(ctx); err != nil {
		b.logger.Warn("Failed to close store", zap.Error(err))
	}
}
