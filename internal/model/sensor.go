package model

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"safety-monitor-backend/internal/apperr"
)

// SensorStatus is the operational state reported for a sensor.
type SensorStatus string

const (
	SensorOnline      SensorStatus = "online"
	SensorOffline     SensorStatus = "offline"
	SensorMaintenance SensorStatus = "maintenance"
)

// Valid reports whether s is one of the known sensor states.
func (s SensorStatus) Valid() bool {
	switch s {
	case SensorOnline, SensorOffline, SensorMaintenance:
		return true
	}
	return false
}

// Sensor is a physical measuring device registered with the monitor.
type Sensor struct {
	ID           int64        `gorm:"primaryKey" json:"id"`
	Name         string       `gorm:"size:128;not null" json:"name"`
	Location     string       `gorm:"size:128;not null;index" json:"location"`
	Type         string       `gorm:"size:64;not null" json:"type"`
	Status       SensorStatus `gorm:"size:16;not null" json:"status"`
	BatteryLevel int          `gorm:"not null" json:"battery_level"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// BatteryStatus buckets the battery level for display. It is never stored.
func (s Sensor) BatteryStatus() string {
	switch {
	case s.BatteryLevel >= 75:
		return "good"
	case s.BatteryLevel >= 25:
		return "medium"
	default:
		return "low"
	}
}

// BeforeSave rejects out-of-range battery levels and unknown states.
func (s *Sensor) BeforeSave(tx *gorm.DB) error {
	if s.Status == "" {
		s.Status = SensorOnline
	}
	fields := apperr.FieldErrors{}
	if s.BatteryLevel < 0 || s.BatteryLevel > 100 {
		fields.Add("battery_level", fmt.Sprintf("battery_level must be between 0 and 100, got %d", s.BatteryLevel))
	}
	if !s.Status.Valid() {
		fields.Add("status", fmt.Sprintf("status must be one of online, offline, maintenance, got %q", s.Status))
	}
	if len(fields) > 0 {
		return fields
	}
	return nil
}

// MarshalJSON adds the derived battery_status field.
func (s Sensor) MarshalJSON() ([]byte, error) {
	type plain Sensor
	return json.Marshal(struct {
		plain
		BatteryStatus string `json:"battery_status"`
	}{plain(s), s.BatteryStatus()})
}
