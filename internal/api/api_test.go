package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"safety-monitor-backend/config"
	"safety-monitor-backend/internal/alerting"
	"safety-monitor-backend/internal/db"
	"safety-monitor-backend/internal/llm"
	"safety-monitor-backend/internal/logx"
	"safety-monitor-backend/internal/model"
	"safety-monitor-backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubOracle struct {
	content string
	err     error
}

func (s stubOracle) Complete(context.Context, []llm.Message, llm.Options) (string, error) {
	return s.content, s.err
}

type fixture struct {
	store  store.Store
	gen    *alerting.Generator
	recs   *cache.Cache
	router *gin.Engine
}

type fixtureOption func(*Deps)

func withOracle(o alerting.Completer) fixtureOption {
	return func(d *Deps) {
		d.Summarizer = alerting.NewSummarizer(d.Store, o, alerting.SummaryOptions{})
	}
}

func withWebPush(opts *webpush.Options) fixtureOption {
	return func(d *Deps) { d.WebPush = opts }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))

	st := store.NewGormStore(gdb)
	recs := cache.New(time.Hour, time.Hour)
	gen := alerting.NewGenerator(st, nil, alerting.WithRecommendations(recs))
	d := Deps{
		Store:           st,
		Generator:       gen,
		Lifecycle:       alerting.NewLifecycle(st, nil),
		Summarizer:      alerting.NewSummarizer(st, nil, alerting.SummaryOptions{}),
		Recommendations: recs,
	}
	for _, opt := range opts {
		opt(&d)
	}

	log := logx.New(io.Discard, "safety-monitor-test", "test", "error")
	return &fixture{
		store:  st,
		gen:    gen,
		recs:   recs,
		router: NewRouter(config.ServerConfig{}, d, log),
	}
}

func (f *fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, r)
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) sensor(t *testing.T, name, typ, location string, status model.SensorStatus) model.Sensor {
	t.Helper()
	s := model.Sensor{Name: name, Type: typ, Location: location, Status: status, BatteryLevel: 90}
	require.NoError(t, f.store.CreateSensor(context.Background(), &s))
	return s
}

func (f *fixture) alert(t *testing.T, sensorID *int64, sev model.Severity) model.Alert {
	t.Helper()
	a := model.Alert{
		SensorID:    sensorID,
		Type:        model.AlertTypeThreshold,
		Severity:    sev,
		Description: "test alert",
		Status:      model.AlertStatusNew,
	}
	require.NoError(t, f.store.CreateAlert(context.Background(), &a))
	return a
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type validationBody struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

func TestIngest_RecordsReadingAndRaisesThresholdAlert(t *testing.T) {
	f := newFixture(t)
	s := f.sensor(t, "MX-1", "Methane", "Zone A", model.SensorOnline)

	w := f.do(t, http.MethodPost, "/api/ingest", gin.H{"sensor_id": s.ID, "value": 600, "reading_time": "2025-03-01 08:07:00"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decode[struct {
		Message string              `json:"message"`
		Data    model.SensorReading `json:"data"`
	}](t, w)
	assert.Equal(t, "Reading recorded successfully", body.Message)
	assert.Equal(t, s.ID, body.Data.SensorID)
	assert.Equal(t, 600.0, body.Data.Value)
	assert.True(t, body.Data.ReadingTime.Equal(time.Date(2025, 3, 1, 8, 7, 0, 0, time.UTC)))

	alerts, total, err := f.store.ListAlerts(context.Background(), store.AlertFilter{})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, model.SeverityHigh, alerts[0].Severity)
	assert.Equal(t, "High threshold exceeded for Methane in Zone A. Value: 600", alerts[0].Description)
}

func TestIngest_BelowThresholdCreatesNoAlert(t *testing.T) {
	f := newFixture(t)
	s := f.sensor(t, "MX-1", "Methane", "Zone A", model.SensorOnline)

	w := f.do(t, http.MethodPost, "/api/ingest", gin.H{"sensor_id": s.ID, "value": 12.5})
	require.Equal(t, http.StatusCreated, w.Code)

	_, total, err := f.store.ListAlerts(context.Background(), store.AlertFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestIngest_ValidationErrors(t *testing.T) {
	f := newFixture(t)
	s := f.sensor(t, "MX-1", "Methane", "Zone A", model.SensorOnline)

	cases := []struct {
		name  string
		body  any
		field string
		msg   string
	}{
		{"missing sensor", gin.H{"value": 1}, "sensor_id", "The sensor id field is required."},
		{"missing value", gin.H{"sensor_id": s.ID}, "value", "The value field is required."},
		{"value not numeric", `{"sensor_id": 1, "value": "high"}`, "value", "The value must be a number."},
		{"unknown sensor", gin.H{"sensor_id": 999, "value": 1}, "sensor_id", "The selected sensor id is invalid."},
		{"bad reading time", gin.H{"sensor_id": s.ID, "value": 1, "reading_time": "yesterday"}, "reading_time", "The reading time is not a valid date."},
		{"not an object", `[1,2]`, "body", "The request body must be a JSON object."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/ingest", tc.body)
			require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
			body := decode[validationBody](t, w)
			assert.Equal(t, "Validation failed", body.Message)
			assert.Equal(t, []string{tc.msg}, body.Errors[tc.field])
		})
	}

	readings, err := f.store.RecentReadings(context.Background(), s.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, readings)
}

func TestIngest_AlertFailureStillAcceptsReading(t *testing.T) {
	f := newFixture(t)
	s := f.sensor(t, "MX-1", "Methane", "Zone A", model.SensorOnline)
	require.NoError(t, f.store.DB().Migrator().DropTable(&model.Alert{}))

	w := f.do(t, http.MethodPost, "/api/ingest", gin.H{"sensor_id": s.ID, "value": 1200})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	readings, err := f.store.RecentReadings(context.Background(), s.ID, 10)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, 1200.0, readings[0].Value)
}

func TestIngest_ReadingStoreFailureIs500(t *testing.T) {
	f := newFixture(t)
	s := f.sensor(t, "MX-1", "Methane", "Zone A", model.SensorOnline)
	require.NoError(t, f.store.DB().Migrator().DropTable(&model.SensorReading{}))

	w := f.do(t, http.MethodPost, "/api/ingest", gin.H{"sensor_id": s.ID, "value": 1200})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, map[string]string{"error": "internal server error"}, decode[map[string]string](t, w))
}

func TestListAlerts_FiltersAndPaging(t *testing.T) {
	f := newFixture(t)
	a := f.sensor(t, "MX-1", "Methane", "Zone A", model.SensorOnline)
	b := f.sensor(t, "TX-1", "Temperature", "Zone B", model.SensorOnline)
	for i := 0; i < 12; i++ {
		f.alert(t, &a.ID, model.SeverityHigh)
	}
	f.alert(t, &b.ID, model.SeverityCritical)
	f.alert(t, nil, model.SeverityLow)

	type listBody struct {
		Data    []model.Alert `json:"data"`
		Total   int64         `json:"total"`
		Page    int           `json:"page"`
		PerPage int           `json:"per_page"`
	}

	w := f.do(t, http.MethodGet, "/api/alerts?per_page=10&page=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page2 := decode[listBody](t, w)
	assert.EqualValues(t, 14, page2.Total)
	assert.Equal(t, 2, page2.Page)
	assert.Equal(t, 10, page2.PerPage)
	assert.Len(t, page2.Data, 4)

	w = f.do(t, http.MethodGet, "/api/alerts?severity=CRITICAL", nil)
	require.Equal(t, http.StatusOK, w.Code)
	crit := decode[listBody](t, w)
	require.Len(t, crit.Data, 1)
	assert.Equal(t, model.SeverityCritical, crit.Data[0].Severity)
	require.NotNil(t, crit.Data[0].Sensor)
	assert.Equal(t, "Zone B", crit.Data[0].Sensor.Location)

	w = f.do(t, http.MethodGet, "/api/alerts?location=Zone+A", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 12, decode[listBody](t, w).Total)

	today := time.Now().UTC().Format("2006-01-02")
	w = f.do(t, http.MethodGet, "/api/alerts?start_date="+today+"&end_date="+today, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 14, decode[listBody](t, w).Total)
}

func TestListAlerts_RejectsBadFilters(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/alerts?status=open&severity=extreme&start_date=soon&page=x", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode[validationBody](t, w)
	assert.Contains(t, body.Errors, "status")
	assert.Contains(t, body.Errors, "severity")
	assert.Contains(t, body.Errors, "start_date")
	assert.Contains(t, body.Errors, "page")

	w = f.do(t, http.MethodGet, "/api/alerts?start_date=2025-03-02&end_date=2025-03-01", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decode[validationBody](t, w).Errors, "end_date")
}

func TestRecentAlertsAndStats(t *testing.T) {
	f := newFixture(t)
	s := f.sensor(t, "MX-1", "Methane", "Zone A", model.SensorOnline)
	for i := 0; i < 6; i++ {
		f.alert(t, &s.ID, model.SeverityHigh)
	}
	crit := f.alert(t, &s.ID, model.SeverityCritical)
	done := f.alert(t, &s.ID, model.SeverityLow)
	_, err := alerting.NewLifecycle(f.store, nil).UpdateStatus(context.Background(), done.ID, "resolved")
	require.NoError(t, err)

	w := f.do(t, http.MethodGet, "/api/alerts/recent", nil)
	require.Equal(t, http.StatusOK, w.Code)
	recent := decode[struct {
		Data []model.Alert `json:"data"`
	}](t, w)
	require.Len(t, recent.Data, 5)
	assert.Equal(t, crit.ID, recent.Data[0].ID)
	for _, a := range recent.Data {
		assert.Equal(t, model.AlertStatusNew, a.Status)
	}

	w = f.do(t, http.MethodGet, "/api/alerts/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	stats := decode[struct {
		TotalNew   int64            `json:"total_new"`
		BySeverity map[string]int64 `json:"by_severity"`
	}](t, w)
	assert.EqualValues(t, 7, stats.TotalNew)
	assert.EqualValues(t, 6, stats.BySeverity["high"])
	assert.EqualValues(t, 1, stats.BySeverity["critical"])
	assert.Zero(t, stats.BySeverity["low"])

	w = f.do(t, http.MethodGet, "/api/alerts/stats", nil)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
}

func TestGetAlert(t *testing.T) {
	f := newFixture(t)
	s := f.sensor(t, "MX-1", "Methane", "Zone A", model.SensorOnline)
	a := f.alert(t, &s.ID, model.SeverityHigh)

	w := f.do(t, http.MethodGet, "/api/alerts/"+itoa(a.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[struct {
		Data model.Alert `json:"data"`
	}](t, w)
	assert.Equal(t, a.ID, got.Data.ID)
	require.NotNil(t, got.Data.Sensor)
	assert.Equal(t, "MX-1", got.Data.Sensor.Name)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/alerts/999", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/alerts/abc", nil).Code)
}

func TestUpdateAlert(t *testing.T) {
	f := newFixture(t)
	a := f.alert(t, nil, model.SeverityHigh)
	path := "/api/alerts/" + itoa(a.ID)

	w := f.do(t, http.MethodPatch, path, gin.H{"status": "acknowledged"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[struct {
		Message string      `json:"message"`
		Alert   model.Alert `json:"alert"`
	}](t, w)
	assert.Equal(t, "Alert status updated successfully", body.Message)
	assert.Equal(t, model.AlertStatusAcknowledged, body.Alert.Status)

	w = f.do(t, http.MethodPatch, path, gin.H{"status": "new"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, []string{"The selected status is invalid."}, decode[validationBody](t, w).Errors["status"])

	w = f.do(t, http.MethodPatch, path, gin.H{"status": "closed"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, []string{"The selected status is invalid."}, decode[validationBody](t, w).Errors["status"])

	w = f.do(t, http.MethodPatch, path, gin.H{})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, []string{"The status field is required."}, decode[validationBody](t, w).Errors["status"])

	w = f.do(t, http.MethodPatch, path, gin.H{"status": "resolved"})
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodPatch, path, gin.H{"status": "acknowledged"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPatch, "/api/alerts/999", gin.H{"status": "resolved"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSummarizeAlert(t *testing.T) {
	oracle := stubOracle{content: `{"summary": "Methane is high in Zone A.", "suggestions": "Ventilate Zone A."}`}
	f := newFixture(t, withOracle(oracle))
	a := f.alert(t, nil, model.SeverityHigh)

	w := f.do(t, http.MethodPost, "/api/alerts/"+itoa(a.ID)+"/summary", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[map[string]string](t, w)
	assert.Equal(t, "Methane is high in Zone A.", body["ai_summary"])
	assert.Equal(t, "Ventilate Zone A.", body["ai_suggestion"])

	stored, err := f.store.GetAlert(context.Background(), a.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.AISummary)
	assert.Equal(t, "Methane is high in Zone A.", *stored.AISummary)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/alerts/999/summary", nil).Code)
}

func TestSummarizeAlert_OracleProblems(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t)
		a := f.alert(t, nil, model.SeverityHigh)
		w := f.do(t, http.MethodPost, "/api/alerts/"+itoa(a.ID)+"/summary", nil)
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, alerting.ErrSummaryDisabled.Error(), decode[map[string]string](t, w)["error"])
	})

	t.Run("garbled answer", func(t *testing.T) {
		f := newFixture(t, withOracle(stubOracle{content: "sorry, I cannot help"}))
		a := f.alert(t, nil, model.SeverityHigh)
		w := f.do(t, http.MethodPost, "/api/alerts/"+itoa(a.ID)+"/summary", nil)
		require.Equal(t, http.StatusBadGateway, w.Code)

		stored, err := f.store.GetAlert(context.Background(), a.ID)
		require.NoError(t, err)
		assert.Nil(t, stored.AISummary)
		assert.Nil(t, stored.AISuggestion)
	})
}

func TestReportInspection(t *testing.T) {
	f := newFixture(t)
	s := f.sensor(t, "CAM-1", "Camera", "Dock 3", model.SensorOnline)

	w := f.do(t, http.MethodPost, "/api/inspections", gin.H{"hazard": "Worker without hard hat near forklift", "sensor_id": s.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode[struct {
		Message string      `json:"message"`
		Data    model.Alert `json:"data"`
	}](t, w)
	assert.Equal(t, "Inspection hazard recorded", body.Message)
	assert.Equal(t, model.AlertTypeVisualHazard, body.Data.Type)
	assert.Equal(t, alerting.HazardSeverity("Worker without hard hat near forklift"), body.Data.Severity)

	w = f.do(t, http.MethodPost, "/api/inspections", gin.H{"hazard": "  "})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decode[validationBody](t, w).Errors, "hazard")

	w = f.do(t, http.MethodPost, "/api/inspections", gin.H{"hazard": "spill", "sensor_id": 999})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, []string{"The selected sensor id is invalid."}, decode[validationBody](t, w).Errors["sensor_id"])
}

func TestSensors_CRUD(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/sensors", gin.H{"name": "MX-9", "location": "Zone C", "type": "Methane"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[struct {
		Data map[string]any `json:"data"`
	}](t, w).Data
	assert.EqualValues(t, 100, created["battery_level"])
	assert.Equal(t, "good", created["battery_status"])
	assert.Equal(t, "online", created["status"])
	id := int64(created["id"].(float64))

	w = f.do(t, http.MethodGet, "/api/sensors/"+itoa(id), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/sensors", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		Data []model.Sensor `json:"data"`
	}](t, w).Data, 1)

	w = f.do(t, http.MethodPost, "/api/sensors", gin.H{"name": "MX-10", "location": "Zone C", "type": "Methane", "battery_level": 150})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decode[validationBody](t, w).Errors, "battery_level")

	w = f.do(t, http.MethodPost, "/api/sensors", gin.H{"name": "", "location": "Zone C"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	errs := decode[validationBody](t, w).Errors
	assert.Contains(t, errs, "name")
	assert.Contains(t, errs, "type")

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/sensors/"+itoa(id), nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/sensors/"+itoa(id), nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/sensors/"+itoa(id), nil).Code)
}

func TestAssistantSummary(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/assistant/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	empty := decode[map[string]any](t, w)
	assert.Nil(t, empty["latest_alert"])
	assert.EqualValues(t, 0, empty["offline_sensors_count"])
	assert.Equal(t, "No recent recommendations", empty["last_recommendation"])

	s := f.sensor(t, "MX-1", "Methane", "Zone A", model.SensorOnline)
	f.sensor(t, "MX-2", "Methane", "Zone B", model.SensorOffline)
	f.alert(t, &s.ID, model.SeverityLow)
	f.alert(t, &s.ID, model.SeverityCritical)
	f.recs.Set(alerting.LastRecommendationKey, "Evacuate Zone A.", cache.DefaultExpiration)

	w = f.do(t, http.MethodGet, "/api/assistant/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		LatestAlert         map[string]any `json:"latest_alert"`
		OfflineSensorsCount int64          `json:"offline_sensors_count"`
		LastRecommendation  string         `json:"last_recommendation"`
	}](t, w)
	require.NotNil(t, body.LatestAlert)
	assert.Equal(t, "critical", body.LatestAlert["severity"])
	assert.Equal(t, "Zone A", body.LatestAlert["location"])
	assert.EqualValues(t, 1, body.OfflineSensorsCount)
	assert.Equal(t, "Evacuate Zone A.", body.LastRecommendation)
}

func TestSubscriptions(t *testing.T) {
	f := newFixture(t)
	endpoint := "https://push.example.com/send/abc%2Bdef"

	w := f.do(t, http.MethodPut, "/api/subscriptions", gin.H{"endpoint": endpoint})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid request", decode[map[string]string](t, w)["error"])

	w = f.do(t, http.MethodPut, "/api/subscriptions", gin.H{"endpoint": endpoint, "p256dh": "key", "auth": "secret", "min_severity": "bogus"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(t, http.MethodPut, "/api/subscriptions", gin.H{"endpoint": endpoint, "p256dh": "key", "auth": "secret"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, map[string]string{"endpoint": endpoint, "min_severity": "high"}, decode[map[string]string](t, w))

	w = f.do(t, http.MethodPut, "/api/subscriptions", gin.H{"endpoint": endpoint, "p256dh": "key2", "auth": "secret2", "min_severity": "Medium"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "medium", decode[map[string]string](t, w)["min_severity"])

	w = f.do(t, http.MethodGet, "/api/subscriptions?endpoint="+url.QueryEscape("https://push.example.com/other"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/subscriptions", nil).Code)

	w = f.do(t, http.MethodDelete, "/api/subscriptions", gin.H{"endpoint": endpoint})
	require.Equal(t, http.StatusNoContent, w.Code)
	w = f.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVAPIDPublicKey(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/api/vapid_public_key", nil).Code)

	f = newFixture(t, withWebPush(&webpush.Options{VAPIDPublicKey: "BPublicKey"}))
	w := f.do(t, http.MethodGet, "/api/vapid_public_key", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "BPublicKey", decode[map[string]string](t, w)["public_key"])
}

func TestLiveFeedDisabled(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/api/ws", nil).Code)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]string{"status": "ok", "database": "ok"}, decode[map[string]string](t, w))

	sqlDB, err := f.store.DB().DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/healthz", nil).Code)
}

func TestRequestIDHeader(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/sensors", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
