package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Emergency status values reported by ADS-B transponders.
const (
	EmergencyNone      = "none"
	EmergencyGeneral   = "general"
	EmergencyLifeguard = "lifeguard"
	EmergencyMinFuel   = "minfuel"
	EmergencyNoRadio   = "nordo"
	EmergencyUnlawful  = "unlawful"
	EmergencyDowned    = "downed"
)

// AircraftState is the normalized state of a single aircraft as reported by a feed.
// It is shared by the live table and the archive table.
type AircraftState struct {
	Type             string  `gorm:"size:16;not null" json:"type"`
	Flight           *string `gorm:"size:16" json:"flight"`
	Registration     *string `gorm:"size:16" json:"registration"`
	AircraftTypeCode *string `gorm:"size:8" json:"aircraft_type_code"`
	DBFlags          *int    `gorm:"column:db_flags" json:"db_flags"`
	Squawk           *string `gorm:"size:4" json:"squawk"`
	Emergency        string  `gorm:"size:16;not null" json:"emergency"`
	Category         *string `gorm:"size:4" json:"category"`

	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	AltitudeBaro *int     `json:"altitude_baro"`
	AltitudeGeom *int     `json:"altitude_geom"`
	GroundSpeed  *float64 `json:"ground_speed"`
	Track        *float64 `json:"track"`
	TrueHeading  *float64 `json:"true_heading"`
	VerticalRate *int     `json:"vertical_rate"`

	NIC     *int    `gorm:"column:nic" json:"nic"`
	NACp    *int    `gorm:"column:nac_p" json:"nac_p"`
	NACv    *int    `gorm:"column:nac_v" json:"nac_v"`
	SIL     *int    `gorm:"column:sil" json:"sil"`
	SILType *string `gorm:"column:sil_type;size:16" json:"sil_type"`
	SDA     *int    `gorm:"column:sda" json:"sda"`

	Messages *int     `json:"messages"`
	Seen     *float64 `json:"seen"`
	SeenPos  *float64 `json:"seen_pos"`
	RSSI     *float64 `gorm:"column:rssi" json:"rssi"`

	GPSOkBefore *float64 `gorm:"column:gps_ok_before" json:"gps_ok_before"`
	GPSOkLat    *float64 `gorm:"column:gps_ok_lat" json:"gps_ok_lat"`
	GPSOkLon    *float64 `gorm:"column:gps_ok_lon" json:"gps_ok_lon"`

	RawData    datatypes.JSON `json:"raw_data"`
	DataSource string         `gorm:"size:64" json:"data_source"`
}

// InEmergency reports whether the aircraft is squawking an active emergency.
func (s AircraftState) InEmergency() bool {
	return s.Emergency != "" && s.Emergency != EmergencyNone
}

// HasPosition reports whether both coordinates are known.
func (s AircraftState) HasPosition() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// Aircraft is the live record of one aircraft for one tenant.
// (TenantID, Hex) is unique.
type Aircraft struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_aircraft_tenant_hex,priority:1" json:"tenant_id"`
	Hex           string    `gorm:"size:6;not null;uniqueIndex:idx_aircraft_tenant_hex,priority:2" json:"hex"`
	AircraftState `gorm:"embedded"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `gorm:"index" json:"updated_at"`
}

func (Aircraft) TableName() string { return "aircraft" }

// BeforeCreate assigns a fresh id to records that do not carry one.
func (a *Aircraft) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// EmergencyAlert describes an aircraft that entered an emergency state during an ingest.
type EmergencyAlert struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	Hex       string    `json:"hex"`
	Flight    string    `json:"flight,omitempty"`
	Squawk    string    `json:"squawk,omitempty"`
	Emergency string    `json:"emergency"`
}

// NewEmergencyAlert builds an alert from a live record.
func NewEmergencyAlert(a Aircraft) EmergencyAlert {
	alert := EmergencyAlert{
		TenantID:  a.TenantID,
		Hex:       a.Hex,
		Emergency: a.Emergency,
	}
	if a.Flight != nil {
		alert.Flight = *a.Flight
	}
	if a.Squawk != nil {
		alert.Squawk = *a.Squawk
	}
	return alert
}
