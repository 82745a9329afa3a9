package store

import (
	"time"

	"safety-monitor-backend/internal/model"
)

// AlertFilter narrows an alert listing. Zero values mean "no constraint".
type AlertFilter struct {
	Status   model.AlertStatus
	Severity model.Severity
	Type     string
	Location string     // substring match on the sensor's location
	From     *time.Time // inclusive
	To       *time.Time // exclusive
	Page     int
	PerPage  int
}

const (
	DefaultPerPage = 25
	MinPerPage     = 10
	MaxPerPage     = 100
)

// Normalize clamps paging to the supported range.
func (f AlertFilter) Normalize() AlertFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	switch {
	case f.PerPage == 0:
		f.PerPage = DefaultPerPage
	case f.PerPage < MinPerPage:
		f.PerPage = MinPerPage
	case f.PerPage > MaxPerPage:
		f.PerPage = MaxPerPage
	}
	return f
}

// AlertStats counts unresolved-and-unacknowledged alerts.
type AlertStats struct {
	TotalNew   int64                    `json:"total_new"`
	BySeverity map[model.Severity]int64 `json:"by_severity"`
}
