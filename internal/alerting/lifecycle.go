package alerting

import (
	"context"
	"fmt"
	"log/slog"

	"safety-monitor-backend/internal/apperr"
	"safety-monitor-backend/internal/logx"
	"safety-monitor-backend/internal/model"
	"safety-monitor-backend/internal/store"
)

// casAttempts bounds how often a transition is retried after losing a race
// against a concurrent writer. Each retry re-reads the current status.
const casAttempts = 3

// Lifecycle moves alerts forward through new, acknowledged and resolved.
type Lifecycle struct {
	store    store.Store
	notifier Notifier
}

func NewLifecycle(st store.Store, n Notifier) *Lifecycle {
	if n == nil {
		n = NopNotifier{}
	}
	return &Lifecycle{store: st, notifier: n}
}

// Transition reports whether moving from one status to another is allowed.
// Staying in the same status is allowed and changes nothing.
func Transition(from, to model.AlertStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case model.AlertStatusNew:
		return to == model.AlertStatusAcknowledged || to == model.AlertStatusResolved
	case model.AlertStatusAcknowledged:
		return to == model.AlertStatusResolved
	}
	return false
}

// UpdateStatus applies the requested status and returns the alert as stored.
func (l *Lifecycle) UpdateStatus(ctx context.Context, id int64, target string) (model.Alert, error) {
	// Alerts are created as new and never move back to it.
	to, ok := model.ParseAlertStatus(target)
	if !ok || to == model.AlertStatusNew {
		return model.Alert{}, apperr.Field("status", "The selected status is invalid.")
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		alert, err := l.store.GetAlert(ctx, id)
		if err != nil {
			return model.Alert{}, err
		}
		from := alert.Status
		if from == to {
			return alert, nil
		}
		if !Transition(from, to) {
			return model.Alert{}, fmt.Errorf("alert %d cannot move from %s to %s: %w", id, from, to, apperr.ErrInvalidStatus)
		}

		won, err := l.store.CompareAndSetStatus(ctx, id, from, to)
		if err != nil {
			return model.Alert{}, err
		}
		if !won {
			continue
		}

		updated, err := l.store.GetAlert(ctx, id)
		if err != nil {
			return model.Alert{}, err
		}
		logx.FromContext(ctx).Info("alert_status_changed",
			slog.Int64("alert_id", id),
			slog.String("from", string(from)),
			slog.String("to", string(to)))
		l.notifier.AlertStatusChanged(ctx, updated, from)
		return updated, nil
	}
	return model.Alert{}, fmt.Errorf("alert %d: status changed concurrently %d times: %w", id, casAttempts, apperr.ErrInvalidStatus)
}
