package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"safety-monitor-backend/internal/apperr"
	"safety-monitor-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	CreateSensor(ctx context.Context, sensor *model.Sensor) error
	GetSensor(ctx context.Context, id int64) (model.Sensor, error)
	ListSensors(ctx context.Context) ([]model.Sensor, error)
	DeleteSensor(ctx context.Context, id int64) error
	CountSensorsByStatus(ctx context.Context, status model.SensorStatus) (int64, error)

	InsertReading(ctx context.Context, reading *model.SensorReading) error
	RecentReadings(ctx context.Context, sensorID int64, limit int) ([]model.SensorReading, error)

	CreateAlert(ctx context.Context, alert *model.Alert) error
	GetAlert(ctx context.Context, id int64) (model.Alert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, int64, error)
	RecentNewAlerts(ctx context.Context, limit int) ([]model.Alert, error)
	NewAlertStats(ctx context.Context) (AlertStats, error)
	LatestAlertAtLeast(ctx context.Context, min model.Severity) (*model.Alert, error)
	CompareAndSetStatus(ctx context.Context, id int64, from, to model.AlertStatus) (bool, error)
	SetSummary(ctx context.Context, id int64, summary, suggestion string) (bool, error)

	UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetSubscription(ctx context.Context, endpoint string) (model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsFor(ctx context.Context, severity model.Severity) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// storageErr tags err as a storage failure unless it is already classified.
func storageErr(op string, err error) error {
	if errors.Is(err, apperr.ErrValidation) || errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, apperr.ErrStorage, err)
}

func notFoundOr(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	return storageErr(op, err)
}

// --- Sensors ---

func (s *gormStore) CreateSensor(ctx context.Context, sensor *model.Sensor) error {
	if err := s.db.WithContext(ctx).Create(sensor).Error; err != nil {
		return storageErr("create sensor", err)
	}
	return nil
}

func (s *gormStore) GetSensor(ctx context.Context, id int64) (model.Sensor, error) {
	var sensor model.Sensor
	if err := s.db.WithContext(ctx).First(&sensor, id).Error; err != nil {
		return model.Sensor{}, notFoundOr(fmt.Sprintf("get sensor %d", id), err)
	}
	return sensor, nil
}

func (s *gormStore) ListSensors(ctx context.Context) ([]model.Sensor, error) {
	var sensors []model.Sensor
	if err := s.db.WithContext(ctx).Order("name").Order("id").Find(&sensors).Error; err != nil {
		return nil, storageErr("list sensors", err)
	}
	return sensors, nil
}

// DeleteSensor removes the sensor and its readings. Alerts raised for it are
// kept with their sensor reference cleared.
func (s *gormStore) DeleteSensor(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sensor model.Sensor
		if err := tx.Select("id").First(&sensor, id).Error; err != nil {
			return notFoundOr(fmt.Sprintf("delete sensor %d", id), err)
		}
		if err := tx.Where("sensor_id = ?", id).Delete(&model.SensorReading{}).Error; err != nil {
			return storageErr(fmt.Sprintf("delete readings of sensor %d", id), err)
		}
		if err := tx.Model(&model.Alert{}).Where("sensor_id = ?", id).Update("sensor_id", nil).Error; err != nil {
			return storageErr(fmt.Sprintf("detach alerts of sensor %d", id), err)
		}
		if err := tx.Delete(&model.Sensor{}, id).Error; err != nil {
			return storageErr(fmt.Sprintf("delete sensor %d", id), err)
		}
		return nil
	})
}

func (s *gormStore) CountSensorsByStatus(ctx context.Context, status model.SensorStatus) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Sensor{}).Where("status = ?", status).Count(&n).Error; err != nil {
		return 0, storageErr("count sensors", err)
	}
	return n, nil
}

// --- Readings ---

func (s *gormStore) InsertReading(ctx context.Context, reading *model.SensorReading) error {
	if err := s.db.WithContext(ctx).Create(reading).Error; err != nil {
		return storageErr(fmt.Sprintf("insert reading for sensor %d", reading.SensorID), err)
	}
	return nil
}

// RecentReadings returns up to limit of the sensor's newest readings, oldest first.
func (s *gormStore) RecentReadings(ctx context.Context, sensorID int64, limit int) ([]model.SensorReading, error) {
	var readings []model.SensorReading
	err := s.db.WithContext(ctx).
		Where("sensor_id = ?", sensorID).
		Order("reading_time DESC").Order("id DESC").
		Limit(limit).
		Find(&readings).Error
	if err != nil {
		return nil, storageErr(fmt.Sprintf("load readings of sensor %d", sensorID), err)
	}
	for i, j := 0, len(readings)-1; i < j; i, j = i+1, j-1 {
		readings[i], readings[j] = readings[j], readings[i]
	}
	return readings, nil
}

// --- Alerts ---

func (s *gormStore) CreateAlert(ctx context.Context, alert *model.Alert) error {
	if alert.Status == "" {
		alert.Status = model.AlertStatusNew
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(alert).Error; err != nil {
		return storageErr("create alert", err)
	}
	return nil
}

func (s *gormStore) GetAlert(ctx context.Context, id int64) (model.Alert, error) {
	var alert model.Alert
	if err := s.db.WithContext(ctx).Preload("Sensor").First(&alert, id).Error; err != nil {
		return model.Alert{}, notFoundOr(fmt.Sprintf("get alert %d", id), err)
	}
	return alert, nil
}

// likeEscaper makes user input match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func (s *gormStore) alertQuery(ctx context.Context, f AlertFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&model.Alert{})
	if f.Location != "" {
		q = q.Joins("JOIN sensors ON sensors.id = alerts.sensor_id").
			Where(`sensors.location LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(f.Location)+"%")
	}
	if f.Status != "" {
		q = q.Where("alerts.status = ?", f.Status)
	}
	if f.Severity != "" {
		q = q.Where("alerts.severity = ?", f.Severity)
	}
	if f.Type != "" {
		q = q.Where("alerts.type = ?", f.Type)
	}
	if f.From != nil {
		q = q.Where("alerts.created_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("alerts.created_at < ?", f.To.UTC())
	}
	return q
}

// ListAlerts returns one page of matching alerts, newest first, with the total match count.
func (s *gormStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, int64, error) {
	f := filter.Normalize()

	var total int64
	if err := s.alertQuery(ctx, f).Count(&total).Error; err != nil {
		return nil, 0, storageErr("count alerts", err)
	}

	alerts := make([]model.Alert, 0, f.PerPage)
	err := s.alertQuery(ctx, f).
		Preload("Sensor").
		Order("alerts.created_at DESC").Order("alerts.id DESC").
		Offset((f.Page - 1) * f.PerPage).
		Limit(f.PerPage).
		Find(&alerts).Error
	if err != nil {
		return nil, 0, storageErr("list alerts", err)
	}
	return alerts, total, nil
}

func (s *gormStore) RecentNewAlerts(ctx context.Context, limit int) ([]model.Alert, error) {
	alerts := make([]model.Alert, 0, limit)
	err := s.db.WithContext(ctx).
		Preload("Sensor").
		Where("status = ?", model.AlertStatusNew).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&alerts).Error
	if err != nil {
		return nil, storageErr("recent alerts", err)
	}
	return alerts, nil
}

func (s *gormStore) NewAlertStats(ctx context.Context) (AlertStats, error) {
	type row struct {
		Severity model.Severity
		Count    int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&model.Alert{}).
		Select("severity, COUNT(*) AS count").
		Where("status = ?", model.AlertStatusNew).
		Group("severity").
		Scan(&rows).Error
	if err != nil {
		return AlertStats{}, storageErr("alert stats", err)
	}

	stats := AlertStats{BySeverity: make(map[model.Severity]int64, len(model.Severities))}
	for _, sev := range model.Severities {
		stats.BySeverity[sev] = 0
	}
	for _, r := range rows {
		stats.BySeverity[r.Severity] += r.Count
		stats.TotalNew += r.Count
	}
	return stats, nil
}

// LatestAlertAtLeast returns the newest alert of at least min severity, or nil.
func (s *gormStore) LatestAlertAtLeast(ctx context.Context, min model.Severity) (*model.Alert, error) {
	var allowed []model.Severity
	for _, sev := range model.Severities {
		if sev.AtLeast(min) {
			allowed = append(allowed, sev)
		}
	}

	var alerts []model.Alert
	err := s.db.WithContext(ctx).
		Preload("Sensor").
		Where("severity IN ?", allowed).
		Order("created_at DESC").Order("id DESC").
		Limit(1).
		Find(&alerts).Error
	if err != nil {
		return nil, storageErr("latest alert", err)
	}
	if len(alerts) == 0 {
		return nil, nil
	}
	return &alerts[0], nil
}

// CompareAndSetStatus moves the alert from one status to another and reports
// whether this call won. A false result with nil error means the row was not
// in the expected status.
func (s *gormStore) CompareAndSetStatus(ctx context.Context, id int64, from, to model.AlertStatus) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&model.Alert{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, storageErr(fmt.Sprintf("update status of alert %d", id), res.Error)
	}
	return res.RowsAffected == 1, nil
}

// SetSummary stores the AI narrative only if none exists yet. A suggestion
// already on the alert, such as the classifier's recommended action, is kept.
func (s *gormStore) SetSummary(ctx context.Context, id int64, summary, suggestion string) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&model.Alert{}).
		Where("id = ? AND ai_summary IS NULL", id).
		Updates(map[string]any{
			"ai_summary":    summary,
			"ai_suggestion": gorm.Expr("COALESCE(ai_suggestion, ?)", suggestion),
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return false, storageErr(fmt.Sprintf("store summary of alert %d", id), res.Error)
	}
	return res.RowsAffected == 1, nil
}

// --- Push subscriptions ---

func (s *gormStore) UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "min_severity"}),
	}).Create(sub).Error
	if err != nil {
		return storageErr("upsert subscription", err)
	}
	return nil
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		return model.PushSubscription{}, notFoundOr("get subscription", err)
	}
	return sub, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
		return storageErr("delete subscription", err)
	}
	return nil
}

// SubscriptionsFor returns the subscriptions whose minimum severity admits severity.
func (s *gormStore) SubscriptionsFor(ctx context.Context, severity model.Severity) ([]model.PushSubscription, error) {
	var admitted []model.Severity
	for _, sev := range model.Severities {
		if severity.AtLeast(sev) {
			admitted = append(admitted, sev)
		}
	}
	if len(admitted) == 0 {
		return nil, nil
	}

	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("min_severity IN ?", admitted).Find(&subs).Error; err != nil {
		return nil, storageErr("list subscriptions", err)
	}
	return subs, nil
}
