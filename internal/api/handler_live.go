package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// LiveFeed handles GET /api/ws by upgrading to a websocket attached to the alert hub.
func (h *Handler) LiveFeed(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live feed is not enabled"})
		return
	}
	h.hub.Serve(h.upgrader, c.Writer, c.Request)
}

// Healthz reports liveness and whether the database answers.
func (h *Handler) Healthz(c *gin.Context) {
	sqlDB, err := h.store.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "ok"})
}
