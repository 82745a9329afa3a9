package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"safety-monitor-backend/internal/classifier"
	"safety-monitor-backend/internal/db"
	"safety-monitor-backend/internal/model"
	"safety-monitor-backend/internal/store"
)

func newTestStore(t *testing.T) store.Store {
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
	return store.NewGormStore(gdb)
}

func mustSensor(t *testing.T, st store.Store, name, typ, location string) model.Sensor {
	t.Helper()
	s := model.Sensor{Name: name, Type: typ, Location: location, Status: model.SensorOnline, BatteryLevel: 80}
	require.NoError(t, st.CreateSensor(context.Background(), &s))
	return s
}

func allAlerts(t *testing.T, st store.Store) []model.Alert {
	t.Helper()
	alerts, _, err := st.ListAlerts(context.Background(), store.AlertFilter{PerPage: 100})
	require.NoError(t, err)
	return alerts
}

// fakeClassifier answers every request with a fixed verdict or error.
type fakeClassifier struct {
	mu       sync.Mutex
	verdict  classifier.Verdict
	err      error
	requests []classifier.Request
}

func (f *fakeClassifier) Classify(_ context.Context, req classifier.Request) (classifier.Verdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.verdict, f.err
}

func (f *fakeClassifier) calls() []classifier.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]classifier.Request(nil), f.requests...)
}

type statusChange struct {
	alert model.Alert
	from  model.AlertStatus
}

// recordingNotifier keeps every event it is told about.
type recordingNotifier struct {
	mu      sync.Mutex
	created []model.Alert
	changed []statusChange
}

func (r *recordingNotifier) AlertCreated(_ context.Context, a model.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, a)
}

func (r *recordingNotifier) AlertStatusChanged(_ context.Context, a model.Alert, from model.AlertStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, statusChange{alert: a, from: from})
}

func (r *recordingNotifier) createdAlerts() []model.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Alert(nil), r.created...)
}

func (r *recordingNotifier) changes() []statusChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]statusChange(nil), r.changed...)
}
