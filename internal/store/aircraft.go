package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"skytrace-backend/internal/model"
)

const refreshBatchSize = 200

// UpsertAircraft writes each record inside its own savepoint so a failing row is
// rolled back alone while the surrounding transaction still commits.
func (s *gormStore) UpsertAircraft(ctx context.Context, tenantID uuid.UUID, records []model.Aircraft) (UpsertResult, error) {
	var result UpsertResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range records {
			record := records[i]
			record.TenantID = tenantID

			var (
				created   bool
				wasActive bool
			)
			err := tx.Transaction(func(rtx *gorm.DB) error {
				var existing model.Aircraft
				err := rtx.Where("tenant_id = ? AND hex = ?", tenantID, record.Hex).Take(&existing).Error
				switch {
				case errors.Is(err, gorm.ErrRecordNotFound):
					record.ID = uuid.Nil
					created = true
					return rtx.Create(&record).Error
				case err != nil:
					return err
				}

				wasActive = existing.InEmergency()
				record.ID = existing.ID
				record.CreatedAt = existing.CreatedAt
				return rtx.Save(&record).Error
			})
			if err != nil {
				result.Errors++
				slog.Warn("failed to upsert aircraft", "tenant_id", tenantID, "hex", record.Hex, "error", err)
				continue
			}

			if created {
				result.Created++
			} else {
				result.Updated++
			}
			if record.InEmergency() && !wasActive {
				result.Alerts = append(result.Alerts, model.NewEmergencyAlert(record))
			}
		}
		return nil
	})
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert aircraft for tenant %s: %w", tenantID, err)
	}
	return result, nil
}

// ArchiveAndRefresh runs load, archive, delete and insert as one transaction.
// Incoming records receive fresh ids, so no archive row ever points at a live row.
func (s *gormStore) ArchiveAndRefresh(ctx context.Context, tenantID uuid.UUID, records []model.Aircraft, reason string) (RefreshResult, error) {
	var result RefreshResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var live []model.Aircraft
		if err := tx.Where("tenant_id = ?", tenantID).Find(&live).Error; err != nil {
			return fmt.Errorf("failed to load live aircraft: %w", err)
		}

		previous := make(map[string]model.Aircraft, len(live))
		if len(live) > 0 {
			archivedAt := s.now()
			archives := make([]model.AircraftArchive, 0, len(live))
			for _, a := range live {
				previous[a.Hex] = a
				archives = append(archives, model.NewArchive(a, reason, archivedAt))
			}
			if err := tx.CreateInBatches(&archives, refreshBatchSize).Error; err != nil {
				return fmt.Errorf("failed to archive %d aircraft: %w", len(archives), err)
			}
			if err := tx.Where("tenant_id = ?", tenantID).Delete(&model.Aircraft{}).Error; err != nil {
				return fmt.Errorf("failed to delete live aircraft: %w", err)
			}
		}

		fresh := make([]model.Aircraft, 0, len(records))
		seen := make(map[string]struct{}, len(records))
		duplicates := 0
		for _, r := range records {
			if _, dup := seen[r.Hex]; dup {
				duplicates++
				continue
			}
			seen[r.Hex] = struct{}{}

			r.ID = uuid.Nil
			r.TenantID = tenantID
			r.CreatedAt, r.UpdatedAt = s.now(), s.now()
			fresh = append(fresh, r)
		}
		if len(fresh) > 0 {
			if err := tx.CreateInBatches(&fresh, refreshBatchSize).Error; err != nil {
				return fmt.Errorf("failed to insert %d aircraft: %w", len(fresh), err)
			}
		}

		var alerts []model.EmergencyAlert
		for _, a := range fresh {
			if a.InEmergency() && !previous[a.Hex].InEmergency() {
				alerts = append(alerts, model.NewEmergencyAlert(a))
			}
		}

		result = RefreshResult{
			Archived: len(live),
			Created:  len(fresh),
			Errors:   duplicates,
			Alerts:   alerts,
		}
		return nil
	})
	if err != nil {
		return RefreshResult{}, fmt.Errorf("archive and refresh tenant %s: %w", tenantID, err)
	}
	return result, nil
}

// ListAircraft returns one page of live aircraft, most recently updated first, and the total match count.
func (s *gormStore) ListAircraft(ctx context.Context, tenantID uuid.UUID, filter AircraftFilter) ([]model.Aircraft, int64, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultPageSize
	}
	if filter.Limit > MaxPageSize {
		filter.Limit = MaxPageSize
	}
	if filter.Skip < 0 {
		filter.Skip = 0
	}

	q := s.db.WithContext(ctx).Model(&model.Aircraft{}).Where("tenant_id = ?", tenantID)
	if filter.Hex != "" {
		q = q.Where(`LOWER(hex) LIKE ? ESCAPE '\'`, likePattern(filter.Hex))
	}
	if filter.Flight != "" {
		q = q.Where(`LOWER(flight) LIKE ? ESCAPE '\'`, likePattern(filter.Flight))
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count aircraft: %w", err)
	}

	var aircraft []model.Aircraft
	if err := q.Order("updated_at DESC").Order("hex").Offset(filter.Skip).Limit(filter.Limit).Find(&aircraft).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list aircraft: %w", err)
	}
	return aircraft, total, nil
}

func (s *gormStore) GetAircraft(ctx context.Context, tenantID, id uuid.UUID) (model.Aircraft, error) {
	var a model.Aircraft
	err := s.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Aircraft{}, ErrAircraftNotFound
	}
	if err != nil {
		return model.Aircraft{}, fmt.Errorf("failed to get aircraft %s: %w", id, err)
	}
	return a, nil
}

// ListPositioned returns live aircraft that have a known position.
func (s *gormStore) ListPositioned(ctx context.Context, tenantID uuid.UUID) ([]model.Aircraft, error) {
	var aircraft []model.Aircraft
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND latitude IS NOT NULL AND longitude IS NOT NULL", tenantID).
		Order("hex").
		Find(&aircraft).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list positioned aircraft: %w", err)
	}
	return aircraft, nil
}

// ListArchive returns archive rows for the tenant, newest first. An empty hex matches every aircraft.
func (s *gormStore) ListArchive(ctx context.Context, tenantID uuid.UUID, hex string, limit int) ([]model.AircraftArchive, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = DefaultPageSize
	}
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if hex != "" {
		q = q.Where("hex = ?", strings.ToLower(hex))
	}

	var rows []model.AircraftArchive
	if err := q.Order("archived_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}
	return rows, nil
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return "%" + r.Replace(strings.ToLower(s)) + "%"
}
