package alerting

import (
	"context"

	"safety-monitor-backend/internal/model"
)

// Notifier is told about alert events. Implementations must not block the
// caller; slow work belongs on their own goroutines.
type Notifier interface {
	AlertCreated(ctx context.Context, alert model.Alert)
	AlertStatusChanged(ctx context.Context, alert model.Alert, from model.AlertStatus)
}

// MultiNotifier fans events out to every member in order.
type MultiNotifier []Notifier

func (m MultiNotifier) AlertCreated(ctx context.Context, alert model.Alert) {
	for _, n := range m {
		if n != nil {
			n.AlertCreated(ctx, alert)
		}
	}
}

func (m MultiNotifier) AlertStatusChanged(ctx context.Context, alert model.Alert, from model.AlertStatus) {
	for _, n := range m {
		if n != nil {
			n.AlertStatusChanged(ctx, alert, from)
		}
	}
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) AlertCreated(context.Context, model.Alert) {}

func (NopNotifier) AlertStatusChanged(context.Context, model.Alert, model.AlertStatus) {}
