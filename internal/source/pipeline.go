package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"skytrace-backend/internal/model"
	"skytrace-backend/internal/store"
)

// Result is the outcome of one fetch-and-store run. A run that collects
// nothing is still a success.
type Result struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Collected int    `json:"collected"`
	Created   int    `json:"created"`
	Updated   int    `json:"updated"`
	Archived  int    `json:"archived"`
	Errors    int    `json:"errors"`

	Alerts []model.EmergencyAlert `json:"-"`
}

// StoreOptions selects the storage strategy for a run.
type StoreOptions struct {
	UseArchiveRefresh bool
	Reason            string
}

// Objects keeps the JSON objects of a decoded feed array. Any other element is
// logged and dropped so one malformed entry cannot sink the batch.
func Objects(name string, items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for i, item := range items {
		raw, ok := item.(map[string]any)
		if !ok {
			slog.Warn("dropping non-object record", "client", name, "index", i, "kind", fmt.Sprintf("%T", item))
			continue
		}
		out = append(out, raw)
	}
	return out
}

// Normalize validates every raw record, logging each one it drops, and transforms the rest.
func Normalize(n Normalizer, raws []map[string]any) []model.Aircraft {
	valid := make([]map[string]any, 0, len(raws))
	for _, raw := range raws {
		if !n.Validate(raw) {
			slog.Warn("dropping invalid record", "client", n.Name(), "hex", raw["hex"], "type", raw["type"])
			continue
		}
		valid = append(valid, raw)
	}
	return n.Transform(valid)
}

// Process fetches one batch from c and returns its valid, normalized records.
func Process(ctx context.Context, c Client) ([]model.Aircraft, error) {
	raws, err := c.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch from %s: %w", c.Name(), err)
	}
	records := Normalize(c, raws)
	slog.Info("data processing completed", "client", c.Name(), "total", len(raws), "validated", len(records))
	return records, nil
}

// ProcessAndStore fetches, normalizes and stores one batch with the strategy in opts.
// Errors are returned to the caller. Once records are fetched, storage runs to
// commit or rollback even if ctx is cancelled.
func ProcessAndStore(ctx context.Context, c Client, tenantID uuid.UUID, opts StoreOptions) (Result, error) {
	records, err := Process(ctx, c)
	if err != nil {
		return Result{}, err
	}
	return storeRecords(context.WithoutCancel(ctx), c, tenantID, records, opts)
}

// FetchAndStore wraps ProcessAndStore and never returns an error:
// any failure becomes a Result with Success false and Errors 1.
func FetchAndStore(ctx context.Context, c Client, tenantID uuid.UUID, opts StoreOptions) Result {
	result, err := ProcessAndStore(ctx, c, tenantID, opts)
	if err != nil {
		return failure(c, err)
	}
	return result
}

// Ingest normalizes records supplied by a caller and upserts them.
func Ingest(ctx context.Context, n Normalizer, w Writer, tenantID uuid.UUID, raws []map[string]any) (store.UpsertResult, error) {
	records := Normalize(n, raws)
	if len(records) == 0 {
		return store.UpsertResult{}, nil
	}
	return w.Store(ctx, tenantID, records)
}

func storeRecords(ctx context.Context, w Writer, tenantID uuid.UUID, records []model.Aircraft, opts StoreOptions) (Result, error) {
	if len(records) == 0 {
		slog.Warn("no data collected", "tenant_id", tenantID)
		return Result{Success: true}, nil
	}

	result := Result{Success: true, Collected: len(records)}
	if opts.UseArchiveRefresh {
		reason := opts.Reason
		if reason == "" {
			reason = model.ArchiveReasonScheduledRefresh
		}
		r, err := w.Refresh(ctx, tenantID, records, reason)
		if err != nil {
			return Result{}, err
		}
		result.Archived, result.Created, result.Errors, result.Alerts = r.Archived, r.Created, r.Errors, r.Alerts
	} else {
		r, err := w.Store(ctx, tenantID, records)
		if err != nil {
			return Result{}, err
		}
		result.Created, result.Updated, result.Errors, result.Alerts = r.Created, r.Updated, r.Errors, r.Alerts
	}

	slog.Info("data collection and storage completed",
		"tenant_id", tenantID,
		"collected", result.Collected,
		"archive_refresh", opts.UseArchiveRefresh,
		"created", result.Created,
		"updated", result.Updated,
		"archived", result.Archived,
		"errors", result.Errors,
	)
	return result, nil
}

func failure(c Client, err error) Result {
	slog.Error("error in fetch and store workflow", "client", c.Name(), "error", err)
	return Result{
		Success: false,
		Error:   err.Error(),
		Errors:  1,
	}
}
