package service_test

import (
	"github.com/aussiebroadwan/tally/internal/tally/domain"
	"github.com/aussiebroadwan/tally/internal/tally/store"
	"github.com/aussiebroadwan/tally/internal/tally/tenancy"
)

func (s *ServiceSuite) TestCreateOrganization() {
	org, admin := s.organization("Acme", "owner@acme.test")
	s.True(org.IsActive)
	s.True(org.IsOwnedBy(admin.ActorID))
	s.Equal(domain.Organizational(org.ID), admin.Owner)
	s.Equal(domain.RoleOrganizationAdmin, admin.Role)

	_, err := s.orgs.Create(s.ctx, admin.ActorID, "Second")
	s.ErrorIs(err, domain.ErrAlreadyExists)

	member := s.join(admin, "m@acme.test", domain.RoleOrganizationMember)
	_, err = s.orgs.Create(s.ctx, member.ID, "Breakaway")
	s.ErrorIs(err, domain.ErrConflict)

	_, err = s.orgs.Create(s.ctx, "missing", "Ghost")
	s.ErrorIs(err, domain.ErrNotFound)

	_, err = s.orgs.Create(s.ctx, admin.ActorID, "")
	s.ErrorIs(err, domain.ErrValidation)

	_, err = s.subs.Start(s.ctx, admin, org.ID, "team", 0)
	s.Require().NoError(err)
	full, err := s.orgs.Get(s.ctx, admin, org.ID, "members", "subscription")
	s.Require().NoError(err)
	s.Len(full.Members, 2)
	s.Require().NotNil(full.Subscription)
	s.Equal("team", full.Subscription.Plan)
}

func (s *ServiceSuite) TestOrganizationAdministration() {
	org, admin := s.organization("Acme", "owner@acme.test")
	member := s.join(admin, "m@acme.test", domain.RoleOrganizationMember)
	memberScope := s.scopeOf(member.ID)

	_, err := s.orgs.Update(s.ctx, memberScope, org.ID, "Hijacked")
	s.ErrorIs(err, domain.ErrForbidden)

	renamed, err := s.orgs.Update(s.ctx, admin, org.ID, "Acme Pty")
	s.Require().NoError(err)
	s.Equal("Acme Pty", renamed.Name)

	members, err := s.orgs.Members(s.ctx, memberScope, org.ID, store.Query{Where: store.Eq{Field: "role", Value: domain.RoleOrganizationMember}})
	s.Require().NoError(err)
	s.Require().Len(members, 1)
	s.Equal(member.ID, members[0].ID)

	s.ErrorIs(s.orgs.RemoveMember(s.ctx, admin, admin.ActorID), domain.ErrConflict)
	s.Require().NoError(s.orgs.RemoveMember(s.ctx, admin, member.ID))
	s.ErrorIs(s.orgs.RemoveMember(s.ctx, admin, member.ID), domain.ErrNotFound)

	removed, err := s.users.Get(s.ctx, member.ID)
	s.Require().NoError(err)
	s.Nil(removed.OrganizationID)
	s.Equal(domain.RoleUser, removed.Role)
	s.Equal(domain.Personal(member.ID), s.scopeOf(member.ID).Owner)

	_, err = s.orgs.Deactivate(s.ctx, admin, org.ID)
	s.Require().NoError(err)
	_, err = tenancy.Load(s.ctx, s.store, admin.ActorID)
	s.ErrorIs(err, domain.ErrForbidden)
}

func (s *ServiceSuite) TestTransferOwnership() {
	org, owner := s.organization("Acme", "owner@acme.test")
	member := s.join(owner, "m@acme.test", domain.RoleOrganizationMember)
	coAdmin := s.join(owner, "a@acme.test", domain.RoleOrganizationAdmin)
	outsider := s.register("x@x.com")

	_, err := s.orgs.TransferOwnership(s.ctx, s.scopeOf(coAdmin.ID), org.ID, coAdmin.ID)
	s.ErrorIs(err, domain.ErrForbidden)

	_, err = s.orgs.TransferOwnership(s.ctx, owner, org.ID, outsider.ID)
	s.ErrorIs(err, domain.ErrValidation)

	transferred, err := s.orgs.TransferOwnership(s.ctx, owner, org.ID, member.ID)
	s.Require().NoError(err)
	s.True(transferred.IsOwnedBy(member.ID))

	promoted, err := s.users.Get(s.ctx, member.ID)
	s.Require().NoError(err)
	s.Equal(domain.RoleOrganizationAdmin, promoted.Role)

	unread, err := s.activity.UnreadCount(s.ctx, member.ID)
	s.Require().NoError(err)
	s.EqualValues(2, unread)

	// The previous owner can no longer transfer.
	_, err = s.orgs.TransferOwnership(s.ctx, owner, org.ID, owner.ActorID)
	s.ErrorIs(err, domain.ErrForbidden)
}

func (s *ServiceSuite) TestDeleteOrganization() {
	org, admin := s.organization("Acme", "owner@acme.test")
	member := s.join(admin, "m@acme.test", domain.RoleOrganizationMember)
	b := s.budget(admin, 1000)
	_, err := s.subs.Start(s.ctx, admin, org.ID, "team", 0)
	s.Require().NoError(err)

	s.ErrorIs(s.orgs.Delete(s.ctx, s.scopeOf(member.ID), org.ID), domain.ErrForbidden)
	s.Require().NoError(s.orgs.Delete(s.ctx, admin, org.ID))

	_, err = s.store.Budgets().Get(s.ctx, b.ID)
	s.ErrorIs(err, domain.ErrNotFound)
	_, err = s.subs.Get(s.ctx, s.platformAdmin(), org.ID)
	s.ErrorIs(err, domain.ErrNotFound)

	for _, id := range []string{admin.ActorID, member.ID} {
		u, err := s.users.Get(s.ctx, id)
		s.Require().NoError(err)
		s.Nil(u.OrganizationID)
		s.Equal(domain.RoleUser, u.Role)
	}
}

func (s *ServiceSuite) TestOrganizationsAreConfinedToTheirScope() {
	acme, acmeAdmin := s.organization("Acme", "owner@acme.test")
	beta, betaAdmin := s.organization("Beta", "owner@beta.test")
	s.join(betaAdmin, "m@beta.test", domain.RoleOrganizationMember)
	personal := s.scopeOf(s.register("x@x.com").ID)

	_, err := s.orgs.Get(s.ctx, acmeAdmin, beta.ID, "members")
	s.ErrorIs(err, domain.ErrCrossTenant)
	_, err = s.orgs.Get(s.ctx, personal, beta.ID)
	s.ErrorIs(err, domain.ErrCrossTenant)
	_, err = s.orgs.Members(s.ctx, acmeAdmin, beta.ID, store.Query{})
	s.ErrorIs(err, domain.ErrCrossTenant)
	_, err = s.orgs.Update(s.ctx, acmeAdmin, beta.ID, "Hijacked")
	s.ErrorIs(err, domain.ErrCrossTenant)
	s.ErrorIs(s.orgs.Delete(s.ctx, acmeAdmin, beta.ID), domain.ErrCrossTenant)

	got, err := s.orgs.Get(s.ctx, betaAdmin, beta.ID, "members")
	s.Require().NoError(err)
	s.Equal("Beta", got.Name)
	s.Len(got.Members, 2)

	// A platform admin names the organization explicitly; a personal scope
	// no longer stands in for one.
	root := s.platformAdmin()
	members, err := s.orgs.Members(s.ctx, root, beta.ID, store.Query{})
	s.Require().NoError(err)
	s.Len(members, 2)
	members, err = s.orgs.Members(s.ctx, root, acme.ID, store.Query{})
	s.Require().NoError(err)
	s.Len(members, 1)
	_, err = s.orgs.Members(s.ctx, root, root.ActorID, store.Query{})
	s.ErrorIs(err, domain.ErrNotFound)
}
