// Package policy evaluates a reading against static per-sensor-type thresholds.
package policy

import (
	"fmt"
	"strings"

	"safety-monitor-backend/config"
)

// Level is the outcome of a threshold evaluation.
type Level int

const (
	Normal Level = iota
	High
	Critical
)

func (l Level) String() string {
	switch l {
	case High:
		return "High"
	case Critical:
		return "Critical"
	default:
		return "Normal"
	}
}

// Direction says which side of a threshold is dangerous.
type Direction string

const (
	Above Direction = "above"
	Below Direction = "below"
)

// Threshold is the rule for one sensor type.
type Threshold struct {
	High      float64
	Critical  float64
	Direction Direction
}

// DefaultTable returns the built-in threshold table.
func DefaultTable() map[string]Threshold {
	return map[string]Threshold{
		"Temperature": {High: 80, Critical: 100, Direction: Above},
		"Pressure":    {High: 120, Critical: 150, Direction: Above},
		"Humidity":    {High: 80, Critical: 90, Direction: Above},
		"CO2":         {High: 2000, Critical: 5000, Direction: Above},
		"Methane":     {High: 500, Critical: 1000, Direction: Above},
		"Smoke":       {High: 200, Critical: 300, Direction: Above},
		"Oxygen":      {High: 23, Critical: 25, Direction: Above},
	}
}

// Evaluator is safe for concurrent use; its table never changes after construction.
type Evaluator struct {
	table map[string]Threshold
}

// New copies table into an evaluator keyed case-insensitively.
func New(table map[string]Threshold) *Evaluator {
	e := &Evaluator{table: make(map[string]Threshold, len(table))}
	for k, v := range table {
		if v.Direction == "" {
			v.Direction = Above
		}
		e.table[strings.ToLower(k)] = v
	}
	return e
}

// FromConfig starts from DefaultTable and overlays the configured rules.
func FromConfig(rules map[string]config.ThresholdConfig) (*Evaluator, error) {
	table := DefaultTable()
	for name, r := range rules {
		dir := Direction(strings.ToLower(strings.TrimSpace(r.Direction)))
		switch dir {
		case "":
			dir = Above
		case Above, Below:
		default:
			return nil, fmt.Errorf("threshold %q: unknown direction %q", name, r.Direction)
		}
		if dir == Above && r.Critical < r.High {
			return nil, fmt.Errorf("threshold %q: critical %.2f is below high %.2f", name, r.Critical, r.High)
		}
		if dir == Below && r.Critical > r.High {
			return nil, fmt.Errorf("threshold %q: critical %.2f is above high %.2f", name, r.Critical, r.High)
		}
		for k := range table {
			if strings.EqualFold(k, name) {
				delete(table, k)
			}
		}
		table[name] = Threshold{High: r.High, Critical: r.Critical, Direction: dir}
	}
	return New(table), nil
}

// Evaluate classifies value for sensorType. Unknown types are Normal.
// Both bounds are inclusive.
func (e *Evaluator) Evaluate(sensorType string, value float64) Level {
	t, ok := e.table[strings.ToLower(strings.TrimSpace(sensorType))]
	if !ok {
		return Normal
	}
	if t.Direction == Below {
		switch {
		case value <= t.Critical:
			return Critical
		case value <= t.High:
			return High
		}
		return Normal
	}
	switch {
	case value >= t.Critical:
		return Critical
	case value >= t.High:
		return High
	}
	return Normal
}

// Lookup returns the rule for sensorType.
func (e *Evaluator) Lookup(sensorType string) (Threshold, bool) {
	t, ok := e.table[strings.ToLower(strings.TrimSpace(sensorType))]
	return t, ok
}
