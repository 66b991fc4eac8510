package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/murmurhq/murmur/internal/engagement"
	"github.com/murmurhq/murmur/internal/feed"
	"github.com/murmurhq/murmur/internal/media"
	"github.com/murmurhq/murmur/internal/profile"
	"github.com/murmurhq/murmur/pkg/config"
	"github.com/murmurhq/murmur/pkg/logging"
)

// HealthCheck checks one backing dependency
type HealthCheck func(ctx context.Context) error

// Deps are the services the router exposes
type Deps struct {
	Config     *config.Config
	Engagement *engagement.Service
	Feed       *feed.Service
	Profiles   *profile.Service
	Media      media.Store
	Checks     map[string]HealthCheck
}

// Router sets up API routes
type Router struct {
	handler    *JSONRPCHandler
	engagement *engagement.Service
	feed       *feed.Service
	profiles   *profile.Service
	media      media.Store
	maxUpload  int64
	cfg        *config.Config
	checks     map[string]HealthCheck
	logger     *zap.Logger
}

// NewRouter creates a new API router
func NewRouter(deps Deps) *Router {
	maxUpload := deps.Config.Media.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	router := &Router{
		handler:    NewJSONRPCHandler(),
		engagement: deps.Engagement,
		feed:       deps.Feed,
		profiles:   deps.Profiles,
		media:      deps.Media,
		maxUpload:  maxUpload,
		cfg:        deps.Config,
		checks:     deps.Checks,
		logger:     logging.WithComponent("api-router"),
	}

	router.registerMethods()

	return router
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	engine.Use(cors.New(r.corsConfig()))

	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)

	authed := engine.Group("/", AuthMiddleware(r.cfg.Auth.JWTSecret))
	authed.POST("/", r.handler.Handle)
	authed.POST("/rpc", r.handler.Handle)
	authed.POST("/media", r.uploadHandler)
	authed.GET("/feed/live", r.liveHandler)
}

func (r *Router) corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization")
	cfg.MaxAge = 12 * time.Hour
	origins := r.cfg.Server.CORSOrigins
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

// registerMethods registers all API methods
func (r *Router) registerMethods() {
	m := &methods{engagement: r.engagement, feed: r.feed, profiles: r.profiles}

	// Posts
	r.handler.RegisterMethod("posts.create", m.createPost)
	r.handler.RegisterMethod("posts.get", m.getPost)
	r.handler.RegisterMethod("posts.edit", m.editPost)
	r.handler.RegisterMethod("posts.delete", m.deletePost)
	r.handler.RegisterMethod("posts.toggle_like", m.toggleLike)
	r.handler.RegisterMethod("posts.add_comment", m.addComment)
	r.handler.RegisterMethod("posts.vote_poll", m.votePoll)
	r.handler.RegisterMethod("posts.share", m.sharePost)

	// Bookmarks
	r.handler.RegisterMethod("bookmarks.toggle", m.toggleBookmark)
	r.handler.RegisterMethod("bookmarks.list", m.listBookmarks)

	// Feed
	r.handler.RegisterMethod("feed.page", m.feedPage)

	// Profiles
	r.handler.RegisterMethod("profiles.get", m.getProfile)
	r.handler.RegisterMethod("profiles.update", m.updateProfile)
	r.handler.RegisterMethod("profiles.toggle_follow", m.toggleFollow)

	names := r.handler.Methods()
	sort.Strings(names)
	r.logger.Debug("JSON-RPC methods registered", zap.Strings("methods", names))
}

// healthHandler handles health check requests
func (r *Router) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "OK", http.StatusOK
	deps := gin.H{}
	for name, check := range r.checks {
		if err := check(ctx); err != nil {
			r.logger.Warn("Health check failed", zap.String("dependency", name), zap.Error(err))
			deps[name] = err.Error()
			status, code = "DEGRADED", http.StatusServiceUnavailable
			continue
		}
		deps[name] = "OK"
	}

	c.JSON(code, gin.H{
		"status":       status,
		"service":      "murmur-api",
		"dependencies": deps,
	})
}
