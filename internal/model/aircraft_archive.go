package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reasons recorded on archive rows.
const (
	ArchiveReasonScheduledRefresh     = "scheduled_refresh"
	ArchiveReasonManualRefresh        = "manual_refresh"
	ArchiveReasonADSBScheduledRefresh = "adsb_scheduled_refresh"
)

// AircraftArchive is an insert-only copy of a live Aircraft taken when it was superseded.
// ArchivedAt is part of the primary key so the table can be a hypertable partitioned on it.
type AircraftArchive struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ArchivedAt         time.Time `gorm:"primaryKey;index:idx_archive_tenant_hex_time,priority:3,sort:desc" json:"archived_at"`
	OriginalAircraftID uuid.UUID `gorm:"type:uuid;not null;index" json:"original_aircraft_id"`
	TenantID           uuid.UUID `gorm:"type:uuid;not null;index:idx_archive_tenant_hex_time,priority:1" json:"tenant_id"`
	Hex                string    `gorm:"size:6;not null;index:idx_archive_tenant_hex_time,priority:2" json:"hex"`
	AircraftState      `gorm:"embedded"`
	OriginalCreatedAt  time.Time `gorm:"not null" json:"original_created_at"`
	OriginalUpdatedAt  time.Time `gorm:"not null" json:"original_updated_at"`
	ArchiveReason      string    `gorm:"size:64;not null" json:"archive_reason"`
}

func (AircraftArchive) TableName() string { return "aircraft_archives" }

func (a *AircraftArchive) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// NewArchive copies a live record into an archive row.
func NewArchive(a Aircraft, reason string, at time.Time) AircraftArchive {
	return AircraftArchive{
		ArchivedAt:         at,
		OriginalAircraftID: a.ID,
		TenantID:           a.TenantID,
		Hex:                a.Hex,
		AircraftState:      a.AircraftState,
		OriginalCreatedAt:  a.CreatedAt,
		OriginalUpdatedAt:  a.UpdatedAt,
		ArchiveReason:      reason,
	}
}
