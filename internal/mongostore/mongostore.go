// Package mongostore is the MongoDB post store. Multi-document writes use transactions,
// so the server must run as a replica set.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/murmurhq/murmur/internal/models"
	"github.com/murmurhq/murmur/internal/store"
	"github.com/murmurhq/murmur/pkg/config"
	"github.com/murmurhq/murmur/pkg/logging"
)

// Store is a store.Store backed by MongoDB
type Store struct {
	client    *mongo.Client
	posts     *mongo.Collection
	schedules *mongo.Collection
	bookmarks *mongo.Collection
	profiles  *mongo.Collection
	logger    *zap.Logger

	mu   sync.Mutex
	last time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects, pings and ensures indexes
func Open(ctx context.Context, cfg *config.StoreConfig) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(cfg.MongoDatabase)
	s := &Store{
		client:    client,
		posts:     db.Collection("posts"),
		schedules: db.Collection("scheduled_posts"),
		bookmarks: db.Collection("bookmarks"),
		profiles:  db.Collection("profiles"),
		logger:    logging.WithComponent("mongostore"),
	}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	s.logger.Info("MongoDB connection established", zap.String("database", cfg.MongoDatabase))
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := []struct {
		col    *mongo.Collection
		models []mongo.IndexModel
	}{
		{s.posts, []mongo.IndexModel{
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "likeCount", Value: -1}, {Key: "_id", Value: -1}}},
			{Keys: bson.D{{Key: "authorId", Value: 1}, {Key: "_id", Value: 1}}},
		}},
		{s.schedules, []mongo.IndexModel{
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "scheduledDate", Value: 1}}},
		}},
		{s.bookmarks, []mongo.IndexModel{
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		}},
	}
	for _, ix := range indexes {
		if _, err := ix.col.Indexes().CreateMany(ctx, ix.models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", ix.col.Name(), err)
		}
	}
	return nil
}

// translate maps a driver error onto the models error kinds
func translate(op, what string, err error) error {
	if err == nil {
		return nil
	}
	var merr *models.Error
	if errors.As(err, &merr) {
		return err
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.NotFound(op, what)
	}
	return models.StoreUnavailable(op, err)
}

// withTx runs fn inside a session transaction. The driver retries transient conflicts.
func (s *Store) withTx(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// Now reads the server clock from the hello command
func (s *Store) Now(ctx context.Context) (time.Time, error) {
	var reply struct {
		LocalTime time.Time `bson:"localTime"`
	}
	err := s.client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&reply)
	if err != nil {
		return time.Time{}, translate("mongostore.Now", "", err)
	}
	return reply.LocalTime.UTC(), nil
}

// stamp returns server time, nudged forward so stamps from this process strictly increase.
// BSON dates carry milliseconds.
func (s *Store) stamp(ctx context.Context) (time.Time, error) {
	now, err := s.Now(ctx)
	if err != nil {
		return time.Time{}, err
	}
	now = now.Truncate(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !now.After(s.last) {
		now = s.last.Add(time.Millisecond)
	}
	s.last = now
	return now, nil
}

// Close disconnects the client
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Health pings the primary
func (s *Store) Health(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}
