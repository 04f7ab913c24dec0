package service

import (
	"context"
	"log/slog"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
	"github.com/aussiebroadwan/tally/internal/tally/store"
	"github.com/aussiebroadwan/tally/pkg/slogx"
)

// ProjectService manages projects. Projects carry no owner; budgets,
// expenses and timesheets that point at a deleted project are detached.
type ProjectService struct {
	Store store.Store
}

func (s *ProjectService) Create(ctx context.Context, p *domain.Project) error {
	if p.Name == "" {
		return domain.NewValidationError("name", "is required")
	}
	if err := s.Store.Projects().Create(ctx, p); err != nil {
		logFailure(ctx, "failed to create project", err)
		return err
	}
	slogx.FromContext(ctx).Debug("project created", slog.String("project_id", p.ID))
	return nil
}

func (s *ProjectService) Get(ctx context.Context, id string) (domain.Project, error) {
	return s.Store.Projects().Get(ctx, id)
}

func (s *ProjectService) List(ctx context.Context, q store.Query) ([]domain.Project, error) {
	return s.Store.Projects().List(ctx, q)
}

func (s *ProjectService) Update(ctx context.Context, p *domain.Project) error {
	if p.Name == "" {
		return domain.NewValidationError("name", "is required")
	}
	return s.Store.Projects().Update(ctx, p)
}

func (s *ProjectService) Delete(ctx context.Context, id string) error {
	return s.Store.Projects().Delete(ctx, id)
}
