// Package server exposes the sync engine over HTTP for field devices and
// operator tooling.
package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/asteroid-belt/fieldsync/internal/auth"
	"github.com/asteroid-belt/fieldsync/internal/cache"
	"github.com/asteroid-belt/fieldsync/internal/conflict"
	"github.com/asteroid-belt/fieldsync/internal/db"
	"github.com/asteroid-belt/fieldsync/internal/ledger"
	"github.com/asteroid-belt/fieldsync/internal/registry"
	"github.com/asteroid-belt/fieldsync/internal/syncer"
	"github.com/asteroid-belt/fieldsync/pkg/version"
)

// Deps wires the services behind the API.
type Deps struct {
	DB        *db.DB
	Registry  *registry.Service
	Cache     *cache.Service
	Syncer    *syncer.Service
	Conflicts *conflict.Service
	Ledger    *ledger.Service

	// Server-side endpoints a session run executes against; nil disables
	// the corresponding direction over HTTP.
	Source  syncer.ContentSource
	Applier ledger.Applier

	TokenConfig  auth.TokenConfig
	AuthToken    string
	AllowOrigins []string
}

// NewRouter builds the API router.
func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(deps.AllowOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true, "version": version.Version})
	})

	tokenHandler := &TokenHandler{TokenConfig: deps.TokenConfig, AuthToken: deps.AuthToken}
	tokenLimiter := NewRateLimiter(10, time.Minute)
	r.POST("/v1/auth/token", RateLimit(tokenLimiter), tokenHandler.Issue)

	protected := r.Group("/v1")
	protected.Use(RequireAuth(deps.TokenConfig, deps.AuthToken))

	deviceHandler := &DeviceHandler{Registry: deps.Registry, DB: deps.DB}
	protected.POST("/devices", deviceHandler.Register)
	protected.GET("/devices", deviceHandler.List)
	protected.GET("/devices/:id", deviceHandler.Get)
	protected.POST("/devices/:id/heartbeat", deviceHandler.Heartbeat)
	protected.DELETE("/devices/:id", deviceHandler.Deactivate)
	protected.GET("/devices/:id/stats", deviceHandler.Stats)

	cacheHandler := &CacheHandler{Cache: deps.Cache}
	protected.GET("/devices/:id/cache", cacheHandler.List)
	protected.GET("/devices/:id/usage", cacheHandler.Usage)
	protected.PUT("/devices/:id/cache/:type/:cid", cacheHandler.Put)
	protected.GET("/devices/:id/cache/:type/:cid", cacheHandler.Get)
	protected.DELETE("/devices/:id/cache/:type/:cid", cacheHandler.Invalidate)
	protected.POST("/devices/:id/cache/:type/:cid/resync", cacheHandler.MarkResync)

	sessionHandler := &SessionHandler{Syncer: deps.Syncer, Source: deps.Source, Applier: deps.Applier}
	protected.POST("/sessions", sessionHandler.Open)
	protected.GET("/sessions", sessionHandler.List)
	protected.GET("/sessions/:id", sessionHandler.Get)
	protected.POST("/sessions/:id/run", sessionHandler.Run)
	protected.POST("/sessions/:id/cancel", sessionHandler.Cancel)

	conflictHandler := &ConflictHandler{Conflicts: deps.Conflicts}
	protected.GET("/conflicts", conflictHandler.ListPending)
	protected.GET("/conflicts/:id", conflictHandler.Get)
	protected.POST("/conflicts/:id/resolve", conflictHandler.Resolve)

	progressHandler := &ProgressHandler{Ledger: deps.Ledger}
	protected.POST("/devices/:id/progress", progressHandler.Record)
	protected.GET("/devices/:id/progress/pending", progressHandler.Pending)
	protected.GET("/devices/:id/progress/failed", progressHandler.Failed)
	protected.GET("/progress/:key", progressHandler.Get)

	return r
}

func corsMiddleware(allowOrigins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}

	allowAll := len(allowOrigins) == 0
	for _, origin := range allowOrigins {
		if origin == "*" {
			allowAll = true
		}
	}
	if allowAll {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowOrigins
	}
	return cors.New(cfg)
}
