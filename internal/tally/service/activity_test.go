package service_test

import (
	"time"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
	"github.com/aussiebroadwan/tally/internal/tally/service"
	"github.com/aussiebroadwan/tally/internal/tally/store"
)

func (s *ServiceSuite) TestNotifications() {
	u := s.register("a@x.com")
	other := s.register("b@x.com")

	for _, msg := range []string{"one", "two", "three"} {
		_, err := s.activity.Notify(s.ctx, u.ID, "reminder", msg)
		s.Require().NoError(err)
		s.advance(time.Second)
	}
	_, err := s.activity.Notify(s.ctx, u.ID, "", "kindless")
	s.ErrorIs(err, domain.ErrValidation)

	list, err := s.activity.Notifications(s.ctx, u.ID, false, store.Query{})
	s.Require().NoError(err)
	s.Require().Len(list, 3)
	s.Equal("three", list[0].Message)

	s.ErrorIs(s.activity.MarkRead(s.ctx, other.ID, list[0].ID), domain.ErrForbidden)
	s.Require().NoError(s.activity.MarkRead(s.ctx, u.ID, list[0].ID))

	unread, err := s.activity.Notifications(s.ctx, u.ID, true, store.Query{})
	s.Require().NoError(err)
	s.Len(unread, 2)

	n, err := s.activity.MarkAllRead(s.ctx, u.ID)
	s.Require().NoError(err)
	s.EqualValues(2, n)

	count, err := s.activity.UnreadCount(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Zero(count)
}

func (s *ServiceSuite) TestAuditTrail() {
	u := s.register("a@x.com")
	scope := s.scopeOf(u.ID)
	b := s.budget(scope, 1000)

	b.Amount = 1200
	s.Require().NoError(s.budgets.Update(s.ctx, scope, &b))

	trail, err := s.activity.AuditTrail(s.ctx, "budget", b.ID)
	s.Require().NoError(err)
	s.Require().Len(trail, 2)
	s.Equal(service.ActionCreate, trail[0].Action)
	s.Equal(service.ActionUpdate, trail[1].Action)
	s.Equal("10.00", trail[1].Details["from"])
	s.Equal("12.00", trail[1].Details["to"])

	s.ErrorIs(s.activity.Record(s.ctx, &domain.AuditLog{UserID: u.ID, EntityType: "budget"}), domain.ErrValidation)
	s.Require().NoError(s.activity.Record(s.ctx, &domain.AuditLog{UserID: u.ID, Action: "export", EntityType: "budget", EntityID: b.ID}))

	trail, err = s.activity.AuditTrail(s.ctx, "budget", b.ID)
	s.Require().NoError(err)
	s.Len(trail, 3)
}
