package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetVAPIDPublicKey hands browsers the application server key they need to
// subscribe, along with the severity floor applied when they do not pick one.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "push notifications are not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"public_key":           h.webpush.VAPIDPublicKey,
		"default_min_severity": defaultMinSeverity,
	})
}
