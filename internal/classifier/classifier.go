// Package classifier asks an external oracle to grade the risk of a sensor's
// recent readings. Every failure is reported as ErrUnavailable so the caller
// can fall back to static thresholds.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"safety-monitor-backend/internal/model"
)

// ErrUnavailable covers timeouts, transport errors, non-2xx answers and malformed verdicts.
var ErrUnavailable = errors.New("risk classifier unavailable")

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}

// Level is the oracle's risk grade.
type Level string

const (
	Normal   Level = "Normal"
	Warning  Level = "Warning"
	Critical Level = "Critical"
)

// Verdict is a validated oracle answer.
type Verdict struct {
	Level             Level  `json:"risk_level"`
	Explanation       string `json:"explanation"`
	RecommendedAction string `json:"recommended_action"`
}

// Point is one reading in the classification window.
type Point struct {
	Value       float64   `json:"value"`
	ReadingTime time.Time `json:"reading_time"`
}

// Metadata identifies the reading being classified.
type Metadata struct {
	SensorID    int64     `json:"sensor_id"`
	ReadingTime time.Time `json:"reading_time"`
}

// Request is the context sent to the oracle.
type Request struct {
	SensorType   string   `json:"sensor_type"`
	Latest       float64  `json:"current_reading"`
	Location     string   `json:"location"`
	Window       []Point  `json:"historical_readings"`
	Metadata     Metadata `json:"metadata"`
	RateOfChange float64  `json:"rate_of_change"`
}

// Classifier grades a request.
type Classifier interface {
	Classify(ctx context.Context, req Request) (Verdict, error)
}

// NewRequest assembles a request from the sensor, the reading just stored and
// the window of recent readings, oldest first.
func NewRequest(sensor model.Sensor, latest model.SensorReading, window []model.SensorReading) Request {
	points := make([]Point, 0, len(window))
	for _, r := range window {
		points = append(points, Point{Value: r.Value, ReadingTime: r.ReadingTime})
	}
	return Request{
		SensorType:   sensor.Type,
		Latest:       latest.Value,
		Location:     sensor.Location,
		Window:       points,
		Metadata:     Metadata{SensorID: sensor.ID, ReadingTime: latest.ReadingTime},
		RateOfChange: RateOfChange(points),
	}
}

// RateOfChange returns |last-first| per minute across the window. The divisor
// is the whole minutes between the first and last point, floored at one.
// An empty window yields 0.
func RateOfChange(points []Point) float64 {
	if len(points) == 0 {
		return 0
	}
	first, last := points[0], points[len(points)-1]
	minutes := math.Floor(math.Abs(last.ReadingTime.Sub(first.ReadingTime).Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return math.Abs(last.Value-first.Value) / minutes
}

// Trend describes the direction of the window from first to last value.
func Trend(points []Point) string {
	if len(points) == 0 {
		return "stable"
	}
	first, last := points[0].Value, points[len(points)-1].Value
	switch {
	case last > first:
		return "increasing"
	case last < first:
		return "decreasing"
	default:
		return "stable"
	}
}

// ParseVerdict validates a raw oracle answer. risk_level is required and
// must be exactly one of Normal, Warning or Critical.
func ParseVerdict(raw []byte) (Verdict, error) {
	var fields struct {
		Level             *string `json:"risk_level"`
		Explanation       *string `json:"explanation"`
		RecommendedAction *string `json:"recommended_action"`
	}
	dec := json.NewDecoder(bytes.NewReader(bytes.TrimSpace(raw)))
	if err := dec.Decode(&fields); err != nil {
		return Verdict{}, unavailable("malformed verdict: %v", err)
	}
	if dec.More() {
		return Verdict{}, unavailable("trailing data after verdict")
	}
	if fields.Level == nil {
		return Verdict{}, unavailable("verdict is missing risk_level")
	}

	v := Verdict{Level: Level(*fields.Level)}
	switch v.Level {
	case Normal, Warning, Critical:
	default:
		return Verdict{}, unavailable("unknown risk_level %q", *fields.Level)
	}
	if fields.Explanation != nil {
		v.Explanation = *fields.Explanation
	}
	if fields.RecommendedAction != nil {
		v.RecommendedAction = *fields.RecommendedAction
	}
	return v, nil
}
