package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"skytrace-backend/internal/model"
)

// ResolveTenant looks a tenant up by id when ref parses as a UUID, otherwise by slug.
func (s *gormStore) ResolveTenant(ctx context.Context, ref string) (model.Tenant, error) {
	q := s.db.WithContext(ctx)
	if id, err := uuid.Parse(ref); err == nil {
		q = q.Where("id = ?", id)
	} else {
		q = q.Where("slug = ?", ref)
	}

	var t model.Tenant
	err := q.Take(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Tenant{}, fmt.Errorf("%w: %s", ErrTenantNotFound, ref)
	}
	if err != nil {
		return model.Tenant{}, fmt.Errorf("failed to resolve tenant %q: %w", ref, err)
	}
	return t, nil
}

// EnsureTenant returns the tenant with the given slug, creating an active one named name if absent.
func (s *gormStore) EnsureTenant(ctx context.Context, slug, name string) (model.Tenant, error) {
	var t model.Tenant
	err := s.db.WithContext(ctx).
		Where(model.Tenant{Slug: slug}).
		Attrs(model.Tenant{Name: name, IsActive: true}).
		FirstOrCreate(&t).Error
	if err != nil {
		return model.Tenant{}, fmt.Errorf("failed to ensure tenant %q: %w", slug, err)
	}
	return t, nil
}
