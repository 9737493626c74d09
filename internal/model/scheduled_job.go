package model

import (
	"time"

	"gorm.io/datatypes"
)

// ScheduledJob is the persisted definition of a collection job.
// Run statistics are kept in memory by the scheduler and are not stored here.
type ScheduledJob struct {
	ID              string         `gorm:"size:64;primaryKey"`
	Name            string         `gorm:"size:255;not null"`
	ClientType      string         `gorm:"size:64;not null"`
	Config          datatypes.JSON `gorm:"not null"`
	IntervalMinutes int            `gorm:"not null"`
	TenantRef       string         `gorm:"size:100;not null"`
	Enabled         bool           `gorm:"not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
