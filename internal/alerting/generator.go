// Package alerting turns sensor readings and inspection findings into alerts
// and drives those alerts through their lifecycle.
package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"safety-monitor-backend/internal/classifier"
	"safety-monitor-backend/internal/logx"
	"safety-monitor-backend/internal/metrics"
	"safety-monitor-backend/internal/model"
	"safety-monitor-backend/internal/policy"
	"safety-monitor-backend/internal/store"
)

// LastRecommendationKey is the cache key holding the newest oracle recommendation.
const LastRecommendationKey = "last_ai_recommendation"

const defaultHistoryWindow = 10

// Mirror receives every stored reading. Writes are best effort.
type Mirror interface {
	WriteReading(sensor model.Sensor, reading model.SensorReading)
}

// ReadingInput is a validated ingestion request. A nil ReadingTime means now.
type ReadingInput struct {
	SensorID    int64
	Value       float64
	ReadingTime *time.Time
}

// Generator stores readings and decides whether they warrant an alert.
type Generator struct {
	store      store.Store
	thresholds *policy.Evaluator
	classifier classifier.Classifier
	notifier   Notifier
	mirror     Mirror
	recs       *cache.Cache
	window     int
	now        func() time.Time
}

type Option func(*Generator)

// WithClassifier enables oracle classification. A nil classifier keeps the
// generator on thresholds only.
func WithClassifier(c classifier.Classifier) Option {
	return func(g *Generator) { g.classifier = c }
}

func WithNotifier(n Notifier) Option {
	return func(g *Generator) {
		if n != nil {
			g.notifier = n
		}
	}
}

func WithMirror(m Mirror) Option {
	return func(g *Generator) { g.mirror = m }
}

// WithRecommendations sets the cache that keeps the latest recommended action.
func WithRecommendations(c *cache.Cache) Option {
	return func(g *Generator) { g.recs = c }
}

func WithHistoryWindow(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.window = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

func NewGenerator(st store.Store, thresholds *policy.Evaluator, opts ...Option) *Generator {
	g := &Generator{
		store:      st,
		thresholds: thresholds,
		notifier:   NopNotifier{},
		window:     defaultHistoryWindow,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.thresholds == nil {
		g.thresholds = policy.New(policy.DefaultTable())
	}
	return g
}

// Ingest stores one reading and evaluates it. Only a missing sensor or a
// failed insert is returned as an error; once the reading is stored, problems
// while raising an alert are logged and the stored reading is returned.
func (g *Generator) Ingest(ctx context.Context, in ReadingInput) (model.SensorReading, error) {
	log := logx.FromContext(ctx)

	sensor, err := g.store.GetSensor(ctx, in.SensorID)
	if err != nil {
		return model.SensorReading{}, err
	}

	at := g.now().UTC()
	if in.ReadingTime != nil {
		at = in.ReadingTime.UTC()
	}
	reading := model.SensorReading{SensorID: sensor.ID, Value: in.Value, ReadingTime: at}
	if err := g.store.InsertReading(ctx, &reading); err != nil {
		log.Error("reading_store_failed",
			slog.Int64("sensor_id", sensor.ID),
			slog.Float64("value", in.Value),
			logx.Err(err))
		return model.SensorReading{}, err
	}
	metrics.IncReadingIngested()

	if g.mirror != nil {
		g.mirror.WriteReading(sensor, reading)
	}

	// The reading is committed; a client hang-up must not skip evaluation.
	if _, err := g.evaluate(context.WithoutCancel(ctx), sensor, reading); err != nil {
		log.Error("alert_evaluation_failed",
			slog.Int64("sensor_id", sensor.ID),
			slog.Int64("reading_id", reading.ID),
			logx.Err(err))
	}
	return reading, nil
}

func (g *Generator) evaluate(ctx context.Context, sensor model.Sensor, reading model.SensorReading) (*model.Alert, error) {
	log := logx.FromContext(ctx)

	if g.classifier != nil {
		window, err := g.store.RecentReadings(ctx, sensor.ID, g.window)
		if err != nil {
			log.Warn("history_load_failed", slog.Int64("sensor_id", sensor.ID), logx.Err(err))
		} else {
			verdict, err := g.classifier.Classify(ctx, classifier.NewRequest(sensor, reading, window))
			if err == nil {
				if verdict.Level == classifier.Normal {
					return nil, nil
				}
				return g.raise(ctx, predictiveAlert(sensor, reading, verdict), "classifier")
			}
			log.Warn("classifier_fallback", slog.Int64("sensor_id", sensor.ID), logx.Err(err))
		}
	}

	level := g.thresholds.Evaluate(sensor.Type, reading.Value)
	if level == policy.Normal {
		return nil, nil
	}
	return g.raise(ctx, thresholdAlert(sensor, reading, level), "threshold")
}

func predictiveAlert(sensor model.Sensor, reading model.SensorReading, v classifier.Verdict) model.Alert {
	severity := model.SeverityHigh
	if v.Level == classifier.Critical {
		severity = model.SeverityCritical
	}
	desc := v.Explanation
	if desc == "" {
		desc = fmt.Sprintf("%s risk predicted for %s in %s. Value: %s",
			v.Level, sensor.Type, sensor.Location, formatValue(reading.Value))
	}
	alert := model.Alert{
		SensorID:    &sensor.ID,
		Type:        model.AlertTypePredictive,
		Severity:    severity,
		Description: desc,
	}
	if v.RecommendedAction != "" {
		action := v.RecommendedAction
		alert.AISuggestion = &action
	}
	return alert
}

func thresholdAlert(sensor model.Sensor, reading model.SensorReading, level policy.Level) model.Alert {
	severity := model.SeverityHigh
	if level == policy.Critical {
		severity = model.SeverityCritical
	}
	return model.Alert{
		SensorID:    &sensor.ID,
		Type:        model.AlertTypeThreshold,
		Severity:    severity,
		Description: ThresholdDescription(level, sensor.Type, sensor.Location, reading.Value),
	}
}

// ThresholdDescription renders the templated text of a threshold alert.
func ThresholdDescription(level policy.Level, sensorType, location string, value float64) string {
	return fmt.Sprintf("%s threshold exceeded for %s in %s. Value: %s", level, sensorType, location, formatValue(value))
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// RaiseInspectionHazard records a hazard reported by a visual inspection.
// The severity is graded from keywords in the hazard text.
func (g *Generator) RaiseInspectionHazard(ctx context.Context, hazard string, sensorID *int64) (model.Alert, error) {
	if sensorID != nil {
		if _, err := g.store.GetSensor(ctx, *sensorID); err != nil {
			return model.Alert{}, err
		}
	}
	alert, err := g.raise(ctx, model.Alert{
		SensorID:    sensorID,
		Type:        model.AlertTypeVisualHazard,
		Severity:    HazardSeverity(hazard),
		Description: hazard,
	}, "inspection")
	if err != nil {
		return model.Alert{}, err
	}
	return *alert, nil
}

func (g *Generator) raise(ctx context.Context, alert model.Alert, source string) (*model.Alert, error) {
	alert.Status = model.AlertStatusNew
	if err := g.store.CreateAlert(ctx, &alert); err != nil {
		return nil, err
	}
	metrics.IncAlertCreated(string(alert.Severity), source)

	if g.recs != nil && alert.AISuggestion != nil {
		g.recs.SetDefault(LastRecommendationKey, *alert.AISuggestion)
	}

	// Notifiers render the sensor; reload to get it joined.
	full, err := g.store.GetAlert(ctx, alert.ID)
	if err != nil {
		logx.FromContext(ctx).Warn("alert_reload_failed", slog.Int64("alert_id", alert.ID), logx.Err(err))
		full = alert
	}

	logx.FromContext(ctx).Info("alert_created",
		slog.Int64("alert_id", full.ID),
		slog.String("type", full.Type),
		slog.String("severity", string(full.Severity)),
		slog.String("source", source))

	g.notifier.AlertCreated(ctx, full)
	return &full, nil
}
