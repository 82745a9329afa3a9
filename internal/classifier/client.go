package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"safety-monitor-backend/config"
	"safety-monitor-backend/internal/llm"
	"safety-monitor-backend/internal/metrics"
	"safety-monitor-backend/internal/policy"
)

// Options are shared by both oracle backends.
type Options struct {
	Timeout          time.Duration
	BreakerThreshold int
	BreakerReset     time.Duration
}

// New builds the classifier selected by cfg.Mode. It returns nil, nil when
// the oracle is not configured, which callers treat as "always fall back".
func New(cfg config.ClassifierConfig, thresholds *policy.Evaluator) (Classifier, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	opts := Options{Timeout: cfg.Timeout, BreakerThreshold: cfg.BreakerThreshold, BreakerReset: cfg.BreakerReset}
	switch strings.ToLower(cfg.Mode) {
	case "http":
		return NewHTTPClient(cfg.Endpoint, cfg.APIKey, opts), nil
	case "chat":
		return NewChatClient(llm.New(cfg.Endpoint, cfg.APIKey, cfg.Model, cfg.Timeout), thresholds, opts), nil
	default:
		return nil, fmt.Errorf("unknown classifier mode %q", cfg.Mode)
	}
}

// guard applies the empty-window shortcut, the breaker and the hard timeout
// around a backend round trip that returns a raw verdict document.
type guard struct {
	timeout time.Duration
	breaker *circuitBreaker
}

func newGuard(opts Options) guard {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.BreakerReset <= 0 {
		opts.BreakerReset = 30 * time.Second
	}
	return guard{timeout: opts.Timeout, breaker: newCircuitBreaker(opts.BreakerThreshold, opts.BreakerReset)}
}

func (g guard) run(ctx context.Context, req Request, fetch func(context.Context, Request) ([]byte, error)) (Verdict, error) {
	if len(req.Window) == 0 {
		metrics.ObserveClassifier("skipped", 0)
		return Verdict{Level: Normal}, nil
	}
	if g.breaker.Open() {
		metrics.ObserveClassifier("breaker_open", 0)
		return Verdict{}, unavailable("circuit open")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	raw, err := fetch(ctx, req)
	if err == nil {
		var v Verdict
		v, err = ParseVerdict(raw)
		if err == nil {
			g.breaker.Success()
			metrics.ObserveClassifier("success", time.Since(start))
			return v, nil
		}
	}

	g.breaker.Fail()
	metrics.ObserveClassifier("unavailable", time.Since(start))
	if errors.Is(err, ErrUnavailable) {
		return Verdict{}, err
	}
	return Verdict{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// HTTPClient posts the request to a dedicated classification endpoint that
// answers with a verdict document.
type HTTPClient struct {
	guard
	endpoint string
	apiKey   string
	http     *http.Client
}

func NewHTTPClient(endpoint, apiKey string, opts Options) *HTTPClient {
	g := newGuard(opts)
	return &HTTPClient{
		guard:    g,
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: g.timeout},
	}
}

func (c *HTTPClient) Classify(ctx context.Context, req Request) (Verdict, error) {
	return c.run(ctx, req, c.fetch)
}

func (c *HTTPClient) fetch(ctx context.Context, req Request) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, unavailable("classifier answered %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

// ChatClient asks a chat completion oracle for the verdict.
type ChatClient struct {
	guard
	llm        *llm.Client
	thresholds *policy.Evaluator
}

func NewChatClient(client *llm.Client, thresholds *policy.Evaluator, opts Options) *ChatClient {
	return &ChatClient{guard: newGuard(opts), llm: client, thresholds: thresholds}
}

func (c *ChatClient) Classify(ctx context.Context, req Request) (Verdict, error) {
	return c.run(ctx, req, c.fetch)
}

const systemPrompt = "You are an industrial safety AI expert specializing in gas and environmental detection systems. " +
	"Always respond in valid JSON format and strictly follow the provided thresholds for risk assessment."

func (c *ChatClient) fetch(ctx context.Context, req Request) ([]byte, error) {
	content, err := c.llm.Complete(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildPrompt(req, c.thresholds)},
	}, llm.Options{Temperature: 0.3, JSON: true})
	if err != nil {
		return nil, err
	}
	return []byte(content), nil
}

// Rate of change bands, in units per minute.
const (
	rateNormal  = 5.0
	rateWarning = 15.0
)

func buildPrompt(req Request, thresholds *policy.Evaluator) string {
	values := make([]float64, 0, len(req.Window))
	for _, p := range req.Window {
		values = append(values, p.Value)
	}
	seq, _ := json.Marshal(values)

	var b strings.Builder
	fmt.Fprintf(&b, "You are analyzing readings from a %s sensor in %s.\n\n", orDefault(req.SensorType, "gas"), orDefault(req.Location, "the facility"))

	if t, ok := lookup(thresholds, req.SensorType); ok {
		b.WriteString("Safety thresholds for this sensor type:\n")
		if t.Direction == policy.Below {
			fmt.Fprintf(&b, "- Warning: at or below %g\n- Critical: at or below %g\n- Normal: above %g\n\n", t.High, t.Critical, t.High)
		} else {
			fmt.Fprintf(&b, "- Normal: below %g\n- Warning: %g to %g\n- Critical: %g and above\n\n", t.High, t.High, t.Critical, t.Critical)
		}
	} else {
		b.WriteString("No fixed thresholds are registered for this sensor type; judge against typical industrial safety limits.\n\n")
	}

	fmt.Fprintf(&b, "Rate of change thresholds (per minute):\n- Normal: up to %g\n- Warning: %g to %g\n- Critical: above %g\n\n", rateNormal, rateNormal, rateWarning, rateWarning)

	fmt.Fprintf(&b, "Current metrics:\n- Data sequence: %s\n- Latest value: %g\n- Trend direction: %s\n- Rate of change: %.2f per minute\n\n",
		seq, req.Latest, Trend(req.Window), req.RateOfChange)

	b.WriteString(`Classify the risk as exactly one of "Normal", "Warning" or "Critical" based on both the values compared to the thresholds and the rate of change and trend.
Keep "Normal" when values stay well below the thresholds and the rate of change is normal, even if they are increasing.

Respond with this JSON object only:
{
  "risk_level": "Normal|Warning|Critical",
  "explanation": "Brief analysis of both the values and the trend",
  "recommended_action": "Specific steps to take based on the risk level"
}`)
	return b.String()
}

func lookup(e *policy.Evaluator, sensorType string) (policy.Threshold, bool) {
	if e == nil {
		return policy.Threshold{}, false
	}
	return e.Lookup(sensorType)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
