package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"safety-monitor-backend/internal/alerting"
	"safety-monitor-backend/internal/apperr"
	"safety-monitor-backend/internal/model"
)

// ListSensors handles GET /api/sensors.
func (h *Handler) ListSensors(c *gin.Context) {
	sensors, err := h.store.ListSensors(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sensors})
}

// GetSensor handles GET /api/sensors/:id.
func (h *Handler) GetSensor(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	sensor, err := h.store.GetSensor(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sensor})
}

type createSensorRequest struct {
	Name         string `json:"name"`
	Location     string `json:"location"`
	Type         string `json:"type"`
	Status       string `json:"status"`
	BatteryLevel *int   `json:"battery_level"`
}

// CreateSensor handles POST /api/sensors.
func (h *Handler) CreateSensor(c *gin.Context) {
	var req createSensorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}

	errs := apperr.FieldErrors{}
	for field, v := range map[string]string{"name": req.Name, "location": req.Location, "type": req.Type} {
		if strings.TrimSpace(v) == "" {
			errs.Add(field, "The "+field+" field is required.")
		}
	}
	if len(errs) > 0 {
		respondError(c, errs)
		return
	}

	sensor := model.Sensor{
		Name:         strings.TrimSpace(req.Name),
		Location:     strings.TrimSpace(req.Location),
		Type:         strings.TrimSpace(req.Type),
		Status:       model.SensorStatus(req.Status),
		BatteryLevel: 100,
	}
	if req.BatteryLevel != nil {
		sensor.BatteryLevel = *req.BatteryLevel
	}
	if err := h.store.CreateSensor(c.Request.Context(), &sensor); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": sensor})
}

// DeleteSensor handles DELETE /api/sensors/:id.
func (h *Handler) DeleteSensor(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteSensor(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

const noRecommendation = "No recent recommendations"

// AssistantSummary handles GET /api/assistant/summary: the newest high or
// critical alert, how many sensors are offline and the latest recommendation.
func (h *Handler) AssistantSummary(c *gin.Context) {
	ctx := c.Request.Context()

	latest, err := h.store.LatestAlertAtLeast(ctx, model.SeverityHigh)
	if err != nil {
		respondError(c, err)
		return
	}
	offline, err := h.store.CountSensorsByStatus(ctx, model.SensorOffline)
	if err != nil {
		respondError(c, err)
		return
	}

	var latestAlert gin.H
	if latest != nil {
		location := ""
		if latest.Sensor != nil {
			location = latest.Sensor.Location
		}
		latestAlert = gin.H{
			"type":        latest.Type,
			"severity":    latest.Severity,
			"description": latest.Description,
			"location":    location,
			"created_at":  latest.CreatedAt,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"latest_alert":          latestAlert,
		"offline_sensors_count": offline,
		"last_recommendation":   h.lastRecommendation(),
	})
}

func (h *Handler) lastRecommendation() string {
	if h.recs == nil {
		return noRecommendation
	}
	if v, ok := h.recs.Get(alerting.LastRecommendationKey); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return noRecommendation
}
