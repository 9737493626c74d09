package store

import "skytrace-backend/internal/model"

// UpsertResult reports the outcome of an upsert batch.
type UpsertResult struct {
	Created int
	Updated int
	Errors  int
	// Alerts lists aircraft that entered an emergency state in this batch.
	Alerts []model.EmergencyAlert
}

// RefreshResult reports the outcome of an archive-and-refresh.
type RefreshResult struct {
	Archived int
	Created  int
	// Errors counts incoming records skipped because their hex repeated an earlier one.
	Errors int
	Alerts []model.EmergencyAlert
}

// AircraftFilter narrows ListAircraft. Hex and Flight are case-insensitive substrings.
type AircraftFilter struct {
	Hex    string
	Flight string
	Skip   int
	Limit  int
}

// Page size bounds for AircraftFilter.Limit.
const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)
