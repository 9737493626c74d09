package source

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"skytrace-backend/internal/model"
	"skytrace-backend/internal/parse"
	"skytrace-backend/internal/store"
)

// Fetcher pulls a batch of raw records from an external feed.
type Fetcher interface {
	Fetch(ctx context.Context) ([]map[string]any, error)
}

// Normalizer checks and converts raw records. Implementations must be pure and never panic.
type Normalizer interface {
	Name() string
	Validate(raw map[string]any) bool
	Transform(raws []map[string]any) []model.Aircraft
}

// Writer persists normalized records for a tenant.
type Writer interface {
	Store(ctx context.Context, tenantID uuid.UUID, records []model.Aircraft) (store.UpsertResult, error)
	Refresh(ctx context.Context, tenantID uuid.UUID, records []model.Aircraft, reason string) (store.RefreshResult, error)
}

// Client is one external aircraft feed.
type Client interface {
	Fetcher
	Normalizer
	Writer
}

// AircraftCodec is the Normalizer for feeds in the dump1090/ADSBExchange record shape.
type AircraftCodec struct {
	Source string
}

func (c AircraftCodec) Name() string { return c.Source }

func (c AircraftCodec) Validate(raw map[string]any) bool { return parse.Validate(raw) }

func (c AircraftCodec) Transform(raws []map[string]any) []model.Aircraft {
	return parse.Transform(raws, c.Source)
}

// DatasetWriter is the Writer that goes straight to the dataset store.
type DatasetWriter struct {
	Dataset store.Store
}

func (w DatasetWriter) Store(ctx context.Context, tenantID uuid.UUID, records []model.Aircraft) (store.UpsertResult, error) {
	return w.Dataset.UpsertAircraft(ctx, tenantID, records)
}

func (w DatasetWriter) Refresh(ctx context.Context, tenantID uuid.UUID, records []model.Aircraft, reason string) (store.RefreshResult, error) {
	return w.Dataset.ArchiveAndRefresh(ctx, tenantID, records, reason)
}

// DecodeConfig copies a job configuration blob into dst through its JSON tags.
func DecodeConfig(cfg map[string]any, dst any) error {
	if len(cfg) == 0 {
		return nil
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
