package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"safety-monitor-backend/internal/llm"
	"safety-monitor-backend/internal/logx"
	"safety-monitor-backend/internal/metrics"
	"safety-monitor-backend/internal/model"
	"safety-monitor-backend/internal/store"
)

var (
	// ErrSummaryDisabled means no summary oracle is configured.
	ErrSummaryDisabled = errors.New("alert summaries are not configured")
	// ErrSummaryUnavailable wraps any oracle failure. The alert is left untouched.
	ErrSummaryUnavailable = errors.New("alert summary oracle unavailable")
)

// Completer is the chat completion call the summarizer needs.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error)
}

// SummaryOptions tune the oracle request.
type SummaryOptions struct {
	Temperature float64
	MaxTokens   int
}

// Summarizer fills an alert's AI summary and suggestion exactly once.
type Summarizer struct {
	store  store.Store
	oracle Completer
	opts   SummaryOptions
	group  singleflight.Group
}

// NewSummarizer returns a summarizer. A nil oracle makes every call fail
// with ErrSummaryDisabled.
func NewSummarizer(st store.Store, oracle Completer, opts SummaryOptions) *Summarizer {
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 500
	}
	return &Summarizer{store: st, oracle: oracle, opts: opts}
}

func (s *Summarizer) Enabled() bool {
	return s != nil && s.oracle != nil
}

// Summarize returns the alert with its summary filled in, calling the oracle
// only when no summary is stored yet. Concurrent calls for one alert share a
// single oracle round trip.
func (s *Summarizer) Summarize(ctx context.Context, alertID int64) (model.Alert, error) {
	alert, err := s.store.GetAlert(ctx, alertID)
	if err != nil {
		return model.Alert{}, err
	}
	if alert.AISummary != nil {
		return alert, nil
	}
	if !s.Enabled() {
		return model.Alert{}, ErrSummaryDisabled
	}

	v, err, _ := s.group.Do(strconv.FormatInt(alertID, 10), func() (any, error) {
		return s.enrich(context.WithoutCancel(ctx), alertID)
	})
	if err != nil {
		return model.Alert{}, err
	}
	return v.(model.Alert), nil
}

func (s *Summarizer) enrich(ctx context.Context, alertID int64) (model.Alert, error) {
	// Re-read inside the flight: an earlier flight may have just finished.
	alert, err := s.store.GetAlert(ctx, alertID)
	if err != nil {
		return model.Alert{}, err
	}
	if alert.AISummary != nil {
		return alert, nil
	}

	raw, err := s.oracle.Complete(ctx, []llm.Message{
		{Role: "system", Content: SummaryPrompt(alert)},
	}, llm.Options{Temperature: s.opts.Temperature, MaxTokens: s.opts.MaxTokens, JSON: true})
	if err != nil {
		metrics.IncSummaryCall("unavailable")
		return model.Alert{}, fmt.Errorf("%w: %w", ErrSummaryUnavailable, err)
	}
	summary, suggestions, err := ParseSummary(raw)
	if err != nil {
		metrics.IncSummaryCall("malformed")
		return model.Alert{}, err
	}
	metrics.IncSummaryCall("success")

	if _, err := s.store.SetSummary(ctx, alertID, summary, suggestions); err != nil {
		return model.Alert{}, err
	}
	// Whether this write won or a concurrent writer did, the stored fields are authoritative.
	stored, err := s.store.GetAlert(ctx, alertID)
	if err != nil {
		return model.Alert{}, err
	}
	logx.FromContext(ctx).Info("alert_summarized", slog.Int64("alert_id", alertID))
	return stored, nil
}

// ParseSummary validates the oracle answer. Both fields must be present,
// string-typed and non-empty.
func ParseSummary(raw string) (summary, suggestions string, err error) {
	var doc struct {
		Summary     *string `json:"summary"`
		Suggestions *string `json:"suggestions"`
	}
	dec := json.NewDecoder(bytes.NewReader(bytes.TrimSpace([]byte(raw))))
	if err := dec.Decode(&doc); err != nil {
		return "", "", fmt.Errorf("%w: malformed summary: %v", ErrSummaryUnavailable, err)
	}
	if dec.More() {
		return "", "", fmt.Errorf("%w: trailing data after summary", ErrSummaryUnavailable)
	}
	if doc.Summary == nil || strings.TrimSpace(*doc.Summary) == "" {
		return "", "", fmt.Errorf("%w: summary is missing", ErrSummaryUnavailable)
	}
	if doc.Suggestions == nil || strings.TrimSpace(*doc.Suggestions) == "" {
		return "", "", fmt.Errorf("%w: suggestions are missing", ErrSummaryUnavailable)
	}
	return *doc.Summary, *doc.Suggestions, nil
}

// SummaryPrompt renders the system prompt for one alert. Fields of a missing
// sensor are shown as n/a.
func SummaryPrompt(alert model.Alert) string {
	sensorName, sensorType, location := "n/a", "n/a", "n/a"
	if alert.Sensor != nil {
		sensorName, sensorType, location = alert.Sensor.Name, alert.Sensor.Type, alert.Sensor.Location
	}

	var b strings.Builder
	b.WriteString("You are SAFE AI, an expert assistant for the SAFE factory monitoring system.\n")
	b.WriteString("Analyze this alert and provide:\n")
	b.WriteString("1. A clear, concise summary of the incident (2-3 sentences)\n")
	b.WriteString("2. A prioritized list of 2-3 specific, actionable suggestions for the safety officer\n\n")
	b.WriteString("Alert Context:\n")
	fmt.Fprintf(&b, "- Type: %s\n", alert.Type)
	fmt.Fprintf(&b, "- Severity: %s\n", alert.Severity)
	fmt.Fprintf(&b, "- Description: %s\n", alert.Description)
	fmt.Fprintf(&b, "- Sensor: %s (%s)\n", sensorName, sensorType)
	fmt.Fprintf(&b, "- Location: %s\n", location)
	fmt.Fprintf(&b, "- Status: %s\n", alert.Status)
	fmt.Fprintf(&b, "- Occurred: %s\n\n", alert.CreatedAt.UTC().Format("January 2, 2006 3:04 PM"))
	b.WriteString(`Format your response in JSON with two string fields: {"summary": "...", "suggestions": "..."}`)
	return b.String()
}
