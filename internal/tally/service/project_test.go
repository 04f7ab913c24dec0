package service_test

import (
	"github.com/aussiebroadwan/tally/internal/tally/domain"
	"github.com/aussiebroadwan/tally/internal/tally/store"
)

func (s *ServiceSuite) TestProjectLifecycle() {
	err := s.projects.Create(s.ctx, &domain.Project{})
	s.Require().ErrorIs(err, domain.ErrValidation)

	apollo := domain.Project{Name: "Apollo", Description: "moon"}
	s.Require().NoError(s.projects.Create(s.ctx, &apollo))
	gemini := domain.Project{Name: "Gemini"}
	s.Require().NoError(s.projects.Create(s.ctx, &gemini))

	list, err := s.projects.List(s.ctx, store.Query{OrderBy: []store.Order{store.Asc("name")}})
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal("Apollo", list[0].Name)

	apollo.Name = ""
	s.Require().ErrorIs(s.projects.Update(s.ctx, &apollo), domain.ErrValidation)
	apollo.Name = "Apollo 11"
	s.Require().NoError(s.projects.Update(s.ctx, &apollo))
	got, err := s.projects.Get(s.ctx, apollo.ID)
	s.Require().NoError(err)
	s.Equal("Apollo 11", got.Name)
	s.Equal("moon", got.Description)
}

func (s *ServiceSuite) TestDeletingProjectDetachesBudgets() {
	u := s.register("pm@example.com")
	scope := s.scopeOf(u.ID)

	p := domain.Project{Name: "Mercury"}
	s.Require().NoError(s.projects.Create(s.ctx, &p))

	b := domain.Budget{Name: "capsule", Amount: 10_000, StartDate: epoch, ProjectID: &p.ID}
	s.Require().NoError(s.budgets.Create(s.ctx, scope, &b))

	s.Require().NoError(s.projects.Delete(s.ctx, p.ID))
	_, err := s.projects.Get(s.ctx, p.ID)
	s.Require().ErrorIs(err, domain.ErrNotFound)

	got, err := s.budgets.Get(s.ctx, scope, b.ID)
	s.Require().NoError(err)
	s.Nil(got.ProjectID)

	s.Require().ErrorIs(s.projects.Delete(s.ctx, p.ID), domain.ErrNotFound)
}
