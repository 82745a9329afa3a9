package model

import (
	"strings"
	"time"
)

// Severity grades an alert. Severities are totally ordered by Rank.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every severity from least to most severe.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank returns 1..4 for known severities and 0 otherwise.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// AtLeast reports whether s is as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// ParseSeverity accepts a severity name in any case.
func ParseSeverity(raw string) (Severity, bool) {
	s := Severity(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.Rank() > 0
}

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	AlertStatusNew          AlertStatus = "new"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

// ParseAlertStatus accepts exactly one of the lifecycle state names.
func ParseAlertStatus(raw string) (AlertStatus, bool) {
	switch s := AlertStatus(raw); s {
	case AlertStatusNew, AlertStatusAcknowledged, AlertStatusResolved:
		return s, true
	}
	return "", false
}

// Alert types written by the generator.
const (
	AlertTypeThreshold    = "threshold_exceeded"
	AlertTypePredictive   = "AI Predictive Alert"
	AlertTypeVisualHazard = "Visual Hazard"
)

// Alert is a record of a detected hazard or elevated risk.
type Alert struct {
	ID           int64       `gorm:"primaryKey" json:"id"`
	SensorID     *int64      `gorm:"index" json:"sensor_id"`
	Type         string      `gorm:"size:64;not null" json:"type"`
	Severity     Severity    `gorm:"size:16;not null;index" json:"severity"`
	Description  string      `gorm:"type:text;not null" json:"description"`
	Status       AlertStatus `gorm:"size:16;not null;index:idx_alerts_status_created,priority:1" json:"status"`
	AISummary    *string     `gorm:"column:ai_summary;type:text" json:"ai_summary"`
	AISuggestion *string     `gorm:"column:ai_suggestion;type:text" json:"ai_suggestion"`
	CreatedAt    time.Time   `gorm:"index:idx_alerts_status_created,priority:2" json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`

	// Associations
	Sensor *Sensor `gorm:"constraint:OnDelete:SET NULL" json:"sensor,omitempty"`
}
