package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"skytrace-backend/internal/model"
)

var (
	ErrTenantNotFound       = errors.New("tenant not found")
	ErrAircraftNotFound     = errors.New("aircraft not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// Store defines the interface for all database operations.
type Store interface {
	// UpsertAircraft inserts or updates records by (tenant, hex). A failing record is
	// counted in Errors and skipped; the rest of the batch commits together.
	UpsertAircraft(ctx context.Context, tenantID uuid.UUID, records []model.Aircraft) (UpsertResult, error)
	// ArchiveAndRefresh replaces the tenant's live dataset with records, archiving every
	// superseded row under reason. Any failure rolls the whole operation back.
	ArchiveAndRefresh(ctx context.Context, tenantID uuid.UUID, records []model.Aircraft, reason string) (RefreshResult, error)

	ListAircraft(ctx context.Context, tenantID uuid.UUID, filter AircraftFilter) ([]model.Aircraft, int64, error)
	GetAircraft(ctx context.Context, tenantID, id uuid.UUID) (model.Aircraft, error)
	ListPositioned(ctx context.Context, tenantID uuid.UUID) ([]model.Aircraft, error)
	ListArchive(ctx context.Context, tenantID uuid.UUID, hex string, limit int) ([]model.AircraftArchive, error)

	ResolveTenant(ctx context.Context, ref string) (model.Tenant, error)
	EnsureTenant(ctx context.Context, slug, name string) (model.Tenant, error)

	SaveJobDefinition(ctx context.Context, job model.ScheduledJob) error
	DeleteJobDefinition(ctx context.Context, id string) error
	ListJobDefinitions(ctx context.Context) ([]model.ScheduledJob, error)

	SaveSubscription(ctx context.Context, sub model.PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint string) error
	GetSubscription(ctx context.Context, endpoint string) (model.PushSubscription, error)

	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db, now: time.Now}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}
