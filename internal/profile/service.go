// Package profile owns profile edits, the follow graph, and the author fan-out that keeps
// existing posts in step with profile changes.
package profile

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/murmurhq/murmur/internal/cache"
	"github.com/murmurhq/murmur/internal/models"
	"github.com/murmurhq/murmur/internal/store"
	"github.com/murmurhq/murmur/pkg/logging"
)

const profileTTL = 5 * time.Minute

// Service reads and edits profiles
type Service struct {
	profiles store.ProfileStore
	fanout   *Fanout
	cache    *cache.Cache
	logger   *zap.Logger
}

// NewService creates a profile service. c may be nil.
func NewService(profiles store.ProfileStore, fanout *Fanout, c *cache.Cache) *Service {
	return &Service{
		profiles: profiles,
		fanout:   fanout,
		cache:    c,
		logger:   logging.WithComponent("profile"),
	}
}

func profileKey(uid string) string {
	return "profile:" + uid
}

// GetProfile returns uid's profile, served from Redis when cached
func (s *Service) GetProfile(ctx context.Context, uid string) (*models.UserProfile, error) {
	var cached models.UserProfile
	if err := s.cache.GetJSON(ctx, profileKey(uid), &cached); err == nil {
		return &cached, nil
	}

	p, err := s.profiles.GetProfile(ctx, uid)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetJSON(ctx, profileKey(uid), p, profileTTL); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		s.logger.Warn("Failed to cache profile", zap.String("uid", uid), zap.Error(err))
	}
	return p, nil
}

func (s *Service) invalidate(ctx context.Context, uids ...string) {
	keys := make([]string, len(uids))
	for i, uid := range uids {
		keys[i] = profileKey(uid)
	}
	if err := s.cache.Delete(ctx, keys...); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
		s.logger.Warn("Failed to invalidate cached profiles", zap.Strings("uids", uids), zap.Error(err))
	}
}

// UpdateProfile saves patch onto uid's profile, creating it if absent, then rewrites
// existing posts when the display name or avatar changed. A fan-out failure is returned
// as a *FanoutError; the profile itself has already been saved.
func (s *Service) UpdateProfile(ctx context.Context, uid string, patch models.ProfilePatch) (*models.UserProfile, error) {
	if err := patch.Check(); err != nil {
		return nil, err
	}

	p, err := s.profiles.GetProfile(ctx, uid)
	switch {
	case errors.Is(err, models.ErrNotFound):
		p = &models.UserProfile{UID: uid}
	case err != nil:
		return nil, err
	}

	changed := patch.Apply(p)
	if err := s.profiles.SaveProfile(ctx, p); err != nil {
		return nil, err
	}
	s.invalidate(ctx, uid)

	if changed.Empty() {
		return p, nil
	}
	n, err := s.fanout.Run(ctx, uid, changed)
	if err != nil {
		return p, err
	}
	logging.WithUser(s.logger, uid).Info("Profile updated", zap.Int("posts_rewritten", n))
	return p, nil
}

// ToggleFollow flips whether uid follows target and returns the new state
func (s *Service) ToggleFollow(ctx context.Context, uid, target string) (bool, error) {
	if uid == target {
		return false, models.Validation("profile.ToggleFollow", "cannot follow yourself")
	}
	me, err := s.profiles.GetProfile(ctx, uid)
	if err != nil {
		return false, err
	}
	follow := !me.Follows(target)
	if err := s.profiles.SetFollow(ctx, uid, target, follow); err != nil {
		return false, err
	}
	s.invalidate(ctx, uid, target)
	return follow, nil
}
