package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/patrickmn/go-cache"

	"safety-monitor-backend/internal/alerting"
	"safety-monitor-backend/internal/apperr"
	"safety-monitor-backend/internal/live"
	"safety-monitor-backend/internal/logx"
	"safety-monitor-backend/internal/store"
)

// Deps are the collaborators the handlers need. Generator, Lifecycle and
// Summarizer are required; the rest may be nil.
type Deps struct {
	Store           store.Store
	Generator       *alerting.Generator
	Lifecycle       *alerting.Lifecycle
	Summarizer      *alerting.Summarizer
	Recommendations *cache.Cache
	WebPush         *webpush.Options
	Hub             *live.Hub
	Upgrader        *websocket.Upgrader
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store      store.Store
	generator  *alerting.Generator
	lifecycle  *alerting.Lifecycle
	summarizer *alerting.Summarizer
	recs       *cache.Cache
	webpush    *webpush.Options
	hub        *live.Hub
	upgrader   *websocket.Upgrader
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	upgrader := d.Upgrader
	if upgrader == nil {
		upgrader = live.NewUpgrader(nil)
	}
	return &Handler{
		store:      d.Store,
		generator:  d.Generator,
		lifecycle:  d.Lifecycle,
		summarizer: d.Summarizer,
		recs:       d.Recommendations,
		webpush:    d.WebPush,
		hub:        d.Hub,
		upgrader:   upgrader,
	}
}

// respondError writes err with the status its class maps to. Server-side
// causes are logged and never echoed to the client.
func respondError(c *gin.Context, err error) {
	var fields apperr.FieldErrors
	if errors.As(err, &fields) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "Validation failed", "errors": fields})
		return
	}

	status := apperr.HTTPStatus(err)
	switch {
	case errors.Is(err, alerting.ErrSummaryDisabled):
		status = http.StatusServiceUnavailable
	case errors.Is(err, alerting.ErrSummaryUnavailable):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		logx.FromContext(c.Request.Context()).Error("request_failed",
			slog.String("path", c.FullPath()),
			logx.Err(err))
	}
	switch status {
	case http.StatusInternalServerError:
		c.JSON(status, gin.H{"error": "internal server error"})
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		c.JSON(status, gin.H{"error": rootMessage(err)})
	default:
		c.JSON(status, gin.H{"error": err.Error()})
	}
}

// rootMessage returns the message of the outermost sentinel the client may see.
func rootMessage(err error) string {
	for _, sentinel := range []error{alerting.ErrSummaryDisabled, alerting.ErrSummaryUnavailable} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return http.StatusText(http.StatusInternalServerError)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
