package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"safety-monitor-backend/internal/apperr"
	"safety-monitor-backend/internal/model"
	"safety-monitor-backend/internal/store"
)

const recentAlertsLimit = 5

// parseAlertFilter reads the dashboard filters. A date-only end_date covers
// that whole day.
func parseAlertFilter(c *gin.Context) (store.AlertFilter, error) {
	errs := apperr.FieldErrors{}
	var f store.AlertFilter

	if raw := c.Query("status"); raw != "" {
		s, ok := model.ParseAlertStatus(raw)
		if !ok {
			errs.Add("status", "The selected status is invalid.")
		}
		f.Status = s
	}
	if raw := c.Query("severity"); raw != "" {
		s, ok := model.ParseSeverity(raw)
		if !ok {
			errs.Add("severity", "The selected severity is invalid.")
		}
		f.Severity = s
	}
	f.Type = strings.TrimSpace(c.Query("type"))
	f.Location = strings.TrimSpace(c.Query("location"))

	if raw := c.Query("start_date"); raw != "" {
		t, ok := parseTime(raw)
		if !ok {
			errs.Add("start_date", "The start date is not a valid date.")
		}
		f.From = &t
	}
	if raw := c.Query("end_date"); raw != "" {
		t, ok := parseTime(raw)
		if !ok {
			errs.Add("end_date", "The end date is not a valid date.")
		}
		if ok && len(strings.TrimSpace(raw)) == len("2006-01-02") {
			t = t.Add(24 * time.Hour)
		} else {
			t = t.Add(time.Nanosecond)
		}
		f.To = &t
	}
	if f.From != nil && f.To != nil && !f.To.After(*f.From) && len(errs) == 0 {
		errs.Add("end_date", "The end date must be a date after or equal to start date.")
	}

	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &f.Page}, {"per_page", &f.PerPage}} {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			errs.Add(p.name, "The "+strings.ReplaceAll(p.name, "_", " ")+" must be an integer.")
			continue
		}
		*p.dst = n
	}

	if len(errs) > 0 {
		return store.AlertFilter{}, errs
	}
	return f.Normalize(), nil
}

// ListAlerts handles GET /api/alerts.
func (h *Handler) ListAlerts(c *gin.Context) {
	f, err := parseAlertFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	alerts, total, err := h.store.ListAlerts(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":     alerts,
		"total":    total,
		"page":     f.Page,
		"per_page": f.PerPage,
	})
}

// RecentAlerts handles GET /api/alerts/recent.
func (h *Handler) RecentAlerts(c *gin.Context) {
	alerts, err := h.store.RecentNewAlerts(c.Request.Context(), recentAlertsLimit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": alerts})
}

// AlertStats handles GET /api/alerts/stats.
func (h *Handler) AlertStats(c *gin.Context) {
	stats, err := h.store.NewAlertStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	bySeverity := gin.H{}
	for sev, n := range stats.BySeverity {
		bySeverity[string(sev)] = n
	}
	c.JSON(http.StatusOK, gin.H{"total_new": stats.TotalNew, "by_severity": bySeverity})
}

// GetAlert handles GET /api/alerts/:id.
func (h *Handler) GetAlert(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	alert, err := h.store.GetAlert(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": alert})
}

type updateAlertRequest struct {
	Status *string `json:"status"`
}

// UpdateAlert handles PATCH /api/alerts/:id.
func (h *Handler) UpdateAlert(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	if req.Status == nil || *req.Status == "" {
		respondError(c, apperr.Field("status", "The status field is required."))
		return
	}

	alert, err := h.lifecycle.UpdateStatus(c.Request.Context(), id, *req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Alert status updated successfully", "alert": alert})
}

// SummarizeAlert handles POST /api/alerts/:id/summary.
func (h *Handler) SummarizeAlert(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	alert, err := h.summarizer.Summarize(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ai_summary": alert.AISummary, "ai_suggestion": alert.AISuggestion})
}

type inspectionRequest struct {
	Hazard   string `json:"hazard"`
	SensorID *int64 `json:"sensor_id"`
}

// ReportInspection handles POST /api/inspections.
func (h *Handler) ReportInspection(c *gin.Context) {
	var req inspectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	hazard := strings.TrimSpace(req.Hazard)
	if hazard == "" {
		respondError(c, apperr.Field("hazard", "The hazard field is required."))
		return
	}

	alert, err := h.generator.RaiseInspectionHazard(c.Request.Context(), hazard, req.SensorID)
	if err != nil {
		if req.SensorID != nil && apperr.HTTPStatus(err) == http.StatusNotFound {
			respondError(c, apperr.Field("sensor_id", "The selected sensor id is invalid."))
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Inspection hazard recorded", "data": alert})
}
