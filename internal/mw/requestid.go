package mw

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"safety-monitor-backend/internal/logx"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestLog assigns every request an id, attaches a logger carrying it to the
// request context and writes one access log line when the request finishes.
// Paths in skip are served without the access log line.
func RequestLog(base *slog.Logger, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)

		log := base.With(slog.String("request_id", id))
		c.Request = c.Request.WithContext(logx.WithContext(c.Request.Context(), log))

		start := time.Now()
		c.Next()

		if skipped[c.Request.URL.Path] {
			return
		}
		log.Info("http_request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status_code", c.Writer.Status()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("client_ip", c.ClientIP()))
	}
}
