package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"safety-monitor-backend/internal/alerting"
	"safety-monitor-backend/internal/apperr"
)

// Accepted reading_time layouts, tried in order.
var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"}

func parseTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

type ingestRequest struct {
	SensorID    *int64   `json:"sensor_id"`
	Value       *float64 `json:"value"`
	ReadingTime *string  `json:"reading_time"`
}

// validate checks the shape of the request; sensor existence is checked by the generator.
func (r ingestRequest) validate() (alerting.ReadingInput, error) {
	errs := apperr.FieldErrors{}
	if r.SensorID == nil {
		errs.Add("sensor_id", "The sensor id field is required.")
	}
	if r.Value == nil {
		errs.Add("value", "The value field is required.")
	}
	var at *time.Time
	if r.ReadingTime != nil && strings.TrimSpace(*r.ReadingTime) != "" {
		t, ok := parseTime(*r.ReadingTime)
		if !ok {
			errs.Add("reading_time", "The reading time is not a valid date.")
		} else {
			at = &t
		}
	}
	if len(errs) > 0 {
		return alerting.ReadingInput{}, errs
	}
	return alerting.ReadingInput{SensorID: *r.SensorID, Value: *r.Value, ReadingTime: at}, nil
}

// bindError turns a JSON decoding failure into field errors.
func bindError(err error) apperr.FieldErrors {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		switch typeErr.Field {
		case "value":
			return apperr.Field("value", "The value must be a number.")
		case "sensor_id":
			return apperr.Field("sensor_id", "The sensor id must be an integer.")
		default:
			return apperr.Field(typeErr.Field, "The "+strings.ReplaceAll(typeErr.Field, "_", " ")+" is invalid.")
		}
	}
	return apperr.Field("body", "The request body must be a JSON object.")
}

// IngestReading handles POST /api/ingest.
func (h *Handler) IngestReading(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	in, err := req.validate()
	if err != nil {
		respondError(c, err)
		return
	}

	reading, err := h.generator.Ingest(c.Request.Context(), in)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		respondError(c, apperr.Field("sensor_id", "The selected sensor id is invalid."))
		return
	case err != nil:
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Reading recorded successfully",
		"data":    reading,
	})
}
