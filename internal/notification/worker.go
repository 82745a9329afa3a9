package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"safety-monitor-backend/internal/logx"
	"safety-monitor-backend/internal/metrics"
	"safety-monitor-backend/internal/model"
	"safety-monitor-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// AlertSummarizer fills in the AI summary of an alert.
type AlertSummarizer interface {
	Summarize(ctx context.Context, alertID int64) (model.Alert, error)
}

// Payload is the JSON document pushed to browsers.
type Payload struct {
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	AlertID  int64          `json:"alert_id"`
	Severity model.Severity `json:"severity"`
	Summary  string         `json:"summary,omitempty"`
}

// WorkerPool delivers new alerts off the request path: optional AI enrichment
// of serious alerts, then web push to every subscriber whose minimum severity
// admits the alert.
type WorkerPool struct {
	size       int
	jobs       chan model.Alert
	store      store.Store
	webpush    *webpush.Options
	sender     NotificationSender
	summarizer AlertSummarizer
}

// NewWorkerPool creates a new worker pool. A nil webpushOptions disables push delivery.
func NewWorkerPool(size, queueSize int, s store.Store, webpushOptions *webpush.Options) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if queueSize <= 0 {
		queueSize = size
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan model.Alert, queueSize),
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
	}
}

// WithSummarizer enables enrichment of high and critical alerts before they are pushed.
func (wp *WorkerPool) WithSummarizer(s AlertSummarizer) *WorkerPool {
	wp.summarizer = s
	return wp
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log := logx.FromContext(ctx).With(slog.Int("worker", id))
	log.Debug("notification_worker_started")
	for {
		select {
		case alert := <-wp.jobs:
			wp.process(logx.WithContext(ctx, log), alert)
		case <-ctx.Done():
			log.Debug("notification_worker_stopped")
			return
		}
	}
}

// Dispatch queues an alert without blocking. It reports false when the queue
// is full and the alert was dropped.
func (wp *WorkerPool) Dispatch(alert model.Alert) bool {
	select {
	case wp.jobs <- alert:
		return true
	default:
		metrics.IncNotificationDropped("push")
		return false
	}
}

// AlertCreated queues the alert for delivery.
func (wp *WorkerPool) AlertCreated(ctx context.Context, alert model.Alert) {
	if !wp.Dispatch(alert) {
		logx.FromContext(ctx).Warn("notification_queue_full", slog.Int64("alert_id", alert.ID))
	}
}

// AlertStatusChanged is ignored; browsers are only told about new alerts.
func (wp *WorkerPool) AlertStatusChanged(context.Context, model.Alert, model.AlertStatus) {}

func (wp *WorkerPool) process(ctx context.Context, alert model.Alert) {
	log := logx.FromContext(ctx)

	if wp.summarizer != nil && alert.AISummary == nil && alert.Severity.AtLeast(model.SeverityHigh) {
		enriched, err := wp.summarizer.Summarize(ctx, alert.ID)
		if err != nil {
			log.Warn("auto_summary_failed", slog.Int64("alert_id", alert.ID), logx.Err(err))
		} else {
			alert = enriched
		}
	}

	if wp.webpush == nil {
		return
	}

	subscriptions, err := wp.store.SubscriptionsFor(ctx, alert.Severity)
	if err != nil {
		log.Error("subscription_lookup_failed", slog.Int64("alert_id", alert.ID), logx.Err(err))
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(NewPayload(alert))
	if err != nil {
		log.Error("push_payload_failed", slog.Int64("alert_id", alert.ID), logx.Err(err))
		return
	}

	log.Info("push_sending", slog.Int64("alert_id", alert.ID), slog.Int("subscriptions", len(subscriptions)))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// NewPayload renders the push message for an alert.
func NewPayload(alert model.Alert) Payload {
	title := fmt.Sprintf("%s alert: %s", alert.Severity, alert.Type)
	body := alert.Description
	if alert.Sensor != nil {
		body = fmt.Sprintf("%s (%s, %s)", alert.Description, alert.Sensor.Name, alert.Sensor.Location)
	}
	p := Payload{Title: title, Body: body, AlertID: alert.ID, Severity: alert.Severity}
	if alert.AISummary != nil {
		p.Summary = *alert.AISummary
	}
	return p
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	log := logx.FromContext(ctx)

	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Warn("push_send_failed", slog.String("endpoint", sub.Endpoint), logx.Err(err))
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Info("push_subscription_expired", slog.String("endpoint", sub.Endpoint))
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			log.Error("push_subscription_delete_failed", slog.String("endpoint", sub.Endpoint), logx.Err(err))
		}
	}
}
