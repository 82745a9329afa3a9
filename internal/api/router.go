package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"safety-monitor-backend/config"
	"safety-monitor-backend/internal/metrics"
	"safety-monitor-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg config.ServerConfig, d Deps, log *slog.Logger) *gin.Engine {
	if log == nil {
		log = slog.Default()
	}
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestLog(log, "/healthz", "/metrics"), metrics.Instrument())

	handler := NewHandler(d)

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	limit := rate.Inf
	if cfg.RateLimitPerSec > 0 {
		limit = rate.Limit(cfg.RateLimitPerSec)
	}
	rateLimiter := mw.RateLimiter(limit, cfg.RateLimitBurst)

	r.GET("/healthz", handler.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Ingestion is exempt from the per-IP limit; one gateway may forward many sensors.
	r.POST("/api/ingest", handler.IngestReading)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/alerts", handler.ListAlerts)
		api.GET("/alerts/recent", handler.RecentAlerts)
		api.GET("/alerts/stats", caching, handler.AlertStats)
		api.GET("/alerts/:id", handler.GetAlert)
		api.PATCH("/alerts/:id", handler.UpdateAlert)
		api.POST("/alerts/:id/summary", handler.SummarizeAlert)

		api.POST("/inspections", handler.ReportInspection)

		api.GET("/sensors", handler.ListSensors)
		api.POST("/sensors", handler.CreateSensor)
		api.GET("/sensors/:id", handler.GetSensor)
		api.DELETE("/sensors/:id", handler.DeleteSensor)

		api.GET("/assistant/summary", handler.AssistantSummary)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)

		api.GET("/ws", handler.LiveFeed)
	}

	return r
}
