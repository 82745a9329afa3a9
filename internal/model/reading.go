package model

import "time"

// SensorReading is a single immutable measurement.
type SensorReading struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	SensorID    int64     `gorm:"not null;index:idx_sensor_readings_sensor_time,priority:1" json:"sensor_id"`
	Value       float64   `gorm:"not null" json:"value"`
	ReadingTime time.Time `gorm:"not null;index:idx_sensor_readings_sensor_time,priority:2" json:"reading_time"`
	CreatedAt   time.Time `json:"created_at"`
}
