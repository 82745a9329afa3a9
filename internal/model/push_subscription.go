package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// Alerts below MinSeverity are not pushed to it.
type PushSubscription struct {
	Endpoint    string    `gorm:"primaryKey" json:"endpoint"`
	P256DH      string    `gorm:"column:p256dh;not null" json:"p256dh"`
	Auth        string    `gorm:"not null" json:"auth"`
	MinSeverity Severity  `gorm:"size:16;not null" json:"min_severity"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}
