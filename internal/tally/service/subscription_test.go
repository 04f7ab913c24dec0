package service_test

import (
	"time"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
)

func (s *ServiceSuite) TestSecondSubscriptionIsRejected() {
	org, admin := s.organization("Acme", "owner@acme.test")

	sub, err := s.subs.Start(s.ctx, admin, org.ID, "team", 0)
	s.Require().NoError(err)
	s.Equal(domain.SubscriptionActive, sub.Status)

	_, err = s.subs.Start(s.ctx, admin, org.ID, "enterprise", 0)
	s.ErrorIs(err, domain.ErrAlreadyExists)

	_, err = s.subs.Start(s.ctx, admin, "missing", "team", 0)
	s.ErrorIs(err, domain.ErrCrossTenant)
	_, err = s.subs.Start(s.ctx, s.platformAdmin(), "missing", "team", 0)
	s.ErrorIs(err, domain.ErrReferentialIntegrity)
	s.NotErrorIs(err, domain.ErrCrossTenant)
}

func (s *ServiceSuite) TestTrialLifecycle() {
	org, admin := s.organization("Acme", "owner@acme.test")

	ok, err := s.subs.HasActive(s.ctx, admin, org.ID)
	s.Require().NoError(err)
	s.False(ok)

	sub, err := s.subs.Start(s.ctx, admin, org.ID, "team", 14*24*time.Hour)
	s.Require().NoError(err)
	s.Equal(domain.SubscriptionTrialing, sub.Status)

	state, err := s.subs.State(s.ctx, admin, org.ID)
	s.Require().NoError(err)
	s.Equal(domain.SubscriptionStateTrial, state)

	s.advance(15 * 24 * time.Hour)

	state, err = s.subs.State(s.ctx, admin, org.ID)
	s.Require().NoError(err)
	s.Equal(domain.SubscriptionStateEnded, state)
	ok, err = s.subs.HasActive(s.ctx, admin, org.ID)
	s.Require().NoError(err)
	s.False(ok)

	n, err := s.subs.ExpireEnded(s.ctx)
	s.Require().NoError(err)
	s.EqualValues(1, n)
	sub, err = s.subs.Get(s.ctx, admin, org.ID)
	s.Require().NoError(err)
	s.Equal(domain.SubscriptionExpired, sub.Status)

	n, err = s.subs.ExpireEnded(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *ServiceSuite) TestRenewAndCancel() {
	org, admin := s.organization("Acme", "owner@acme.test")
	_, err := s.subs.Start(s.ctx, admin, org.ID, "team", 7*24*time.Hour)
	s.Require().NoError(err)

	_, err = s.subs.Renew(s.ctx, admin, org.ID, epoch.Add(-time.Hour))
	s.ErrorIs(err, domain.ErrValidation)

	sub, err := s.subs.Renew(s.ctx, admin, org.ID, epoch.Add(30*24*time.Hour))
	s.Require().NoError(err)
	s.Equal(domain.SubscriptionActive, sub.Status)
	s.Nil(sub.TrialEndsAt)

	s.advance(20 * 24 * time.Hour)
	state, err := s.subs.State(s.ctx, admin, org.ID)
	s.Require().NoError(err)
	s.Equal(domain.SubscriptionStateActive, state)

	sub, err = s.subs.Cancel(s.ctx, admin, org.ID)
	s.Require().NoError(err)
	s.Equal(domain.SubscriptionCanceled, sub.Status)

	ok, err := s.subs.HasActive(s.ctx, admin, org.ID)
	s.Require().NoError(err)
	s.False(ok)

	_, err = s.subs.Cancel(s.ctx, admin, org.ID)
	s.ErrorIs(err, domain.ErrConflict)
}

func (s *ServiceSuite) TestUpsertSubscription() {
	org, admin := s.organization("Acme", "owner@acme.test")

	created, err := s.subs.Upsert(s.ctx, admin, org.ID, "starter")
	s.Require().NoError(err)
	s.Equal("starter", created.Plan)

	s.advance(time.Hour)
	changed, err := s.subs.Upsert(s.ctx, admin, org.ID, "enterprise")
	s.Require().NoError(err)
	s.Equal(created.ID, changed.ID)
	s.Equal("enterprise", changed.Plan)
	s.Equal(created.StartDate, changed.StartDate)

	_, err = s.subs.Upsert(s.ctx, admin, org.ID, "")
	s.ErrorIs(err, domain.ErrValidation)
}

func (s *ServiceSuite) TestSubscriptionsAreConfinedToTheirOrganization() {
	acme, acmeAdmin := s.organization("Acme", "owner@acme.test")
	beta, betaAdmin := s.organization("Beta", "owner@beta.test")
	member := s.join(acmeAdmin, "m@acme.test", domain.RoleOrganizationMember)
	memberScope := s.scopeOf(member.ID)
	outsider := s.scopeOf(s.register("x@x.com").ID)

	_, err := s.subs.Start(s.ctx, betaAdmin, beta.ID, "team", 0)
	s.Require().NoError(err)

	// Another organization's admin can neither change nor see it.
	_, err = s.subs.Cancel(s.ctx, acmeAdmin, beta.ID)
	s.ErrorIs(err, domain.ErrCrossTenant)
	_, err = s.subs.Renew(s.ctx, acmeAdmin, beta.ID, epoch.Add(time.Hour))
	s.ErrorIs(err, domain.ErrCrossTenant)
	_, err = s.subs.Upsert(s.ctx, acmeAdmin, beta.ID, "free")
	s.ErrorIs(err, domain.ErrCrossTenant)
	_, err = s.subs.Start(s.ctx, acmeAdmin, beta.ID, "team", 0)
	s.ErrorIs(err, domain.ErrCrossTenant)
	_, err = s.subs.Get(s.ctx, acmeAdmin, beta.ID)
	s.ErrorIs(err, domain.ErrCrossTenant)
	_, err = s.subs.State(s.ctx, acmeAdmin, beta.ID)
	s.ErrorIs(err, domain.ErrCrossTenant)
	_, err = s.subs.HasActive(s.ctx, outsider, beta.ID)
	s.ErrorIs(err, domain.ErrCrossTenant)

	sub, err := s.subs.Get(s.ctx, betaAdmin, beta.ID)
	s.Require().NoError(err)
	s.Equal(domain.SubscriptionActive, sub.Status)
	s.Equal("team", sub.Plan)

	// Members read their own subscription but cannot change it.
	_, err = s.subs.Start(s.ctx, memberScope, acme.ID, "team", 0)
	s.ErrorIs(err, domain.ErrForbidden)
	ok, err := s.subs.HasActive(s.ctx, memberScope, acme.ID)
	s.Require().NoError(err)
	s.False(ok)

	// A platform admin reaches every organization.
	_, err = s.subs.Cancel(s.ctx, s.platformAdmin(), beta.ID)
	s.Require().NoError(err)
}
