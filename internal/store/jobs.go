package store

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"skytrace-backend/internal/model"
)

// SaveJobDefinition inserts or replaces a persisted job definition.
func (s *gormStore) SaveJobDefinition(ctx context.Context, job model.ScheduledJob) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "client_type", "config", "interval_minutes", "tenant_ref", "enabled", "updated_at"}),
	}).Create(&job).Error
	if err != nil {
		return fmt.Errorf("failed to save job definition %s: %w", job.ID, err)
	}
	return nil
}

func (s *gormStore) DeleteJobDefinition(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&model.ScheduledJob{ID: id}).Error; err != nil {
		return fmt.Errorf("failed to delete job definition %s: %w", id, err)
	}
	return nil
}

func (s *gormStore) ListJobDefinitions(ctx context.Context) ([]model.ScheduledJob, error) {
	var jobs []model.ScheduledJob
	if err := s.db.WithContext(ctx).Order("created_at").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list job definitions: %w", err)
	}
	return jobs, nil
}
