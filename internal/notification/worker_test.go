package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"safety-monitor-backend/internal/model"
	"safety-monitor-backend/internal/store"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// A helper function to create a mock database connection.
func newTestStore(t *testing.T) (store.Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return store.NewGormStore(gormDB), mock
}

func response(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewBufferString(""))}
}

func subscriptionRows(subs ...model.PushSubscription) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "min_severity", "created_at"})
	for _, s := range subs {
		rows.AddRow(s.Endpoint, s.P256DH, s.Auth, string(s.MinSeverity), time.Now())
	}
	return rows
}

const subscriptionsForHigh = `SELECT \* FROM "push_subscriptions" WHERE min_severity IN \(\$1,\$2,\$3\)`

type fakeSummarizer struct {
	mu    sync.Mutex
	calls []int64
}

func (f *fakeSummarizer) Summarize(_ context.Context, id int64) (model.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	summary := "Methane leak in Zone A."
	return model.Alert{ID: id, Type: model.AlertTypeThreshold, Severity: model.SeverityHigh, Description: "High threshold exceeded", AISummary: &summary}, nil
}

func (f *fakeSummarizer) called() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.calls...)
}

func TestWorkerPool_DispatchDropsWhenFull(t *testing.T) {
	st, _ := newTestStore(t)
	wp := NewWorkerPool(1, 1, st, &webpush.Options{})

	assert.True(t, wp.Dispatch(model.Alert{ID: 1}))
	assert.False(t, wp.Dispatch(model.Alert{ID: 2}))

	select {
	case job := <-wp.jobs:
		assert.Equal(t, int64(1), job.ID)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestNewPayload(t *testing.T) {
	summary := "Gas build-up."
	p := NewPayload(model.Alert{
		ID:          7,
		Type:        model.AlertTypeThreshold,
		Severity:    model.SeverityCritical,
		Description: "Critical threshold exceeded for Methane in Zone A. Value: 1200",
		AISummary:   &summary,
		Sensor:      &model.Sensor{Name: "MX-1", Location: "Zone A"},
	})
	assert.Equal(t, "critical alert: threshold_exceeded", p.Title)
	assert.Equal(t, "Critical threshold exceeded for Methane in Zone A. Value: 1200 (MX-1, Zone A)", p.Body)
	assert.Equal(t, int64(7), p.AlertID)
	assert.Equal(t, "Gas build-up.", p.Summary)
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	st, mock := newTestStore(t)
	wp := NewWorkerPool(1, 4, st, &webpush.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	alert := model.Alert{
		ID:          11,
		Type:        model.AlertTypeThreshold,
		Severity:    model.SeverityHigh,
		Description: "High threshold exceeded for Methane in Zone A. Value: 600",
	}

	t.Run("sends notification to admitted subscriptions", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		subscription := model.PushSubscription{
			Endpoint:    "https://example.com/push",
			P256DH:      "test_p256dh",
			Auth:        "test_auth",
			MinSeverity: model.SeverityMedium,
		}

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				defer wg.Done()
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				assert.Equal(t, "test_p256dh", sub.Keys.P256dh)

				var got Payload
				assert.NoError(t, json.Unmarshal(payload, &got))
				assert.Equal(t, int64(11), got.AlertID)
				assert.Equal(t, "high alert: threshold_exceeded", got.Title)
				assert.Equal(t, model.SeverityHigh, got.Severity)
				return response(http.StatusCreated), nil
			},
		}

		mock.ExpectQuery(subscriptionsForHigh).
			WithArgs("low", "medium", "high").
			WillReturnRows(subscriptionRows(subscription))

		wp.Dispatch(alert)
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		subscription := model.PushSubscription{
			Endpoint:    "https://example.com/expired",
			P256DH:      "test_p256dh_expired",
			Auth:        "test_auth_expired",
			MinSeverity: model.SeverityLow,
		}

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return response(http.StatusGone), nil
			},
		}

		mock.ExpectQuery(subscriptionsForHigh).
			WithArgs("low", "medium", "high").
			WillReturnRows(subscriptionRows(subscription))

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"."endpoint" = \$1`).
			WithArgs(subscription.Endpoint).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		wp.Dispatch(alert)

		assert.Eventually(t, func() bool {
			return mock.ExpectationsWereMet() == nil
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("sends nothing without subscribers", func(t *testing.T) {
		sent := make(chan struct{}, 1)
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				sent <- struct{}{}
				return response(http.StatusCreated), nil
			},
		}

		mock.ExpectQuery(subscriptionsForHigh).
			WithArgs("low", "medium", "high").
			WillReturnRows(subscriptionRows())

		wp.Dispatch(alert)

		assert.Eventually(t, func() bool {
			return mock.ExpectationsWereMet() == nil
		}, time.Second, 10*time.Millisecond)
		select {
		case <-sent:
			t.Fatal("no notification expected")
		case <-time.After(50 * time.Millisecond):
		}
	})
}

func TestWorkerPool_AutoSummary(t *testing.T) {
	st, mock := newTestStore(t)
	summarizer := &fakeSummarizer{}
	// Push disabled: only enrichment runs, so the database is never touched.
	wp := NewWorkerPool(1, 4, st, nil).WithSummarizer(summarizer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	wp.Dispatch(model.Alert{ID: 1, Severity: model.SeverityLow})
	wp.Dispatch(model.Alert{ID: 2, Severity: model.SeverityCritical})
	wp.Dispatch(model.Alert{ID: 3, Severity: model.SeverityHigh})

	assert.Eventually(t, func() bool {
		return len(summarizer.called()) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []int64{2, 3}, summarizer.called())
	assert.NoError(t, mock.ExpectationsWereMet())
}
