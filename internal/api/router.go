package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"waitboard/internal/mw"
)

// NewRouter creates and configures the gin router for local screens.
func NewRouter(h *Handler, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := h.session.Config().Server

	r := gin.New()
	r.Use(gin.Recovery(), mw.Logger(logger.Named("http")))

	limit := rate.Limit(cfg.RateLimitPerSec)
	if limit <= 0 {
		limit = rate.Inf
	}
	rateLimiter := mw.RateLimiter(limit, cfg.RateLimitBurst, cfg.RequestIPHeader)

	// Entries keyed by store revision; stale ones just expire.
	cacheStore := cache.New(h.ttl, 2*h.ttl)
	caching := mw.Cache(cacheStore, h.ttl, h.session.Store.Revision)

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/state", h.GetState)
		api.GET("/classes", caching, h.GetClasses)
		api.GET("/classes/:class_id/items", h.GetClassItems)
		api.GET("/board", h.GetBoard)
		api.GET("/connections", h.GetConnections)
		api.GET("/ws", h.Watch)

		actions := api.Group("", rateLimiter, h.RequireOpen)
		actions.POST("/classes/:class_id/reorder", h.Reorder)
		actions.POST("/waiting/:id/move", h.Move)
		actions.POST("/waiting/:id/status", h.SetStatus)
		actions.POST("/waiting/:id/call", h.Call)
		actions.POST("/waiting/:id/insert-empty", h.InsertEmpty)

		push := api.Group("", rateLimiter)
		push.GET("/subscriptions", h.GetSubscription)
		push.PUT("/subscriptions", h.PutSubscription)
		push.DELETE("/subscriptions", h.DeleteSubscription)
		push.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
