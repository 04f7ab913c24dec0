package service_test

import (
	"time"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
	"github.com/aussiebroadwan/tally/internal/tally/service"
	"github.com/aussiebroadwan/tally/internal/tally/store"
)

func (s *ServiceSuite) TestInviteAndAcceptImmediately() {
	org, admin := s.organization("Acme", "owner@acme.test")
	alice := s.register("alice@x.com")

	inv, token, err := s.invites.Create(s.ctx, admin, "Alice@X.com", "", 24*time.Hour)
	s.Require().NoError(err)
	s.Equal(domain.InvitationPending, inv.Status)
	s.Equal(domain.RoleOrganizationMember, inv.Role)
	s.Equal("alice@x.com", inv.Email)
	s.Equal(epoch.Add(24*time.Hour), inv.ExpiresAt)
	s.NotEqual(token, inv.TokenHash)

	accepted, err := s.invites.Accept(s.ctx, token, alice.ID)
	s.Require().NoError(err)
	s.Equal(domain.InvitationAccepted, accepted.Status)
	s.Require().NotNil(accepted.UserID)
	s.Equal(alice.ID, *accepted.UserID)

	stored, err := s.invites.Get(s.ctx, token)
	s.Require().NoError(err)
	s.Equal(domain.InvitationAccepted, stored.Status)
	s.Equal(alice.ID, *stored.UserID)
	s.Require().NotNil(stored.AcceptedAt)

	member, err := s.users.Get(s.ctx, alice.ID)
	s.Require().NoError(err)
	s.True(member.IsMemberOf(org.ID))
	s.Equal(domain.RoleOrganizationMember, member.Role)

	// The token is single use.
	_, err = s.invites.Accept(s.ctx, token, alice.ID)
	s.ErrorIs(err, service.ErrInvitationUsed)
	s.ErrorIs(err, domain.ErrConflict)

	unread, err := s.activity.UnreadCount(s.ctx, admin.ActorID)
	s.Require().NoError(err)
	s.EqualValues(1, unread)
}

func (s *ServiceSuite) TestAcceptExpiredInvitation() {
	org, admin := s.organization("Acme", "owner@acme.test")
	bob := s.register("bob@x.com")

	_, token, err := s.invites.Create(s.ctx, admin, "bob@x.com", domain.RoleOrganizationMember, time.Hour)
	s.Require().NoError(err)
	s.advance(2 * time.Hour)

	observed, err := s.invites.Get(s.ctx, token)
	s.Require().NoError(err)
	s.Equal(domain.InvitationExpired, observed.Status)

	_, err = s.invites.Accept(s.ctx, token, bob.ID)
	s.ErrorIs(err, service.ErrInvitationExpired)

	bob, err = s.users.Get(s.ctx, bob.ID)
	s.Require().NoError(err)
	s.Nil(bob.OrganizationID)
	s.Equal(domain.RoleUser, bob.Role)

	members, err := s.orgs.Members(s.ctx, admin, org.ID, store.Query{})
	s.Require().NoError(err)
	s.Len(members, 1)
}

func (s *ServiceSuite) TestAcceptSucceedsOnlyBeforeExpiry() {
	_, admin := s.organization("Acme", "owner@acme.test")

	cases := []struct {
		name    string
		elapsed time.Duration
		wantErr error
	}{
		{"well before", time.Minute, nil},
		{"just before", time.Hour - time.Second, nil},
		{"at expiry", time.Hour, service.ErrInvitationExpired},
		{"after expiry", 2 * time.Hour, service.ErrInvitationExpired},
	}
	for i, tc := range cases {
		s.Run(tc.name, func() {
			email := string(rune('a'+i)) + "@cases.test"
			u := s.register(email)
			_, token, err := s.invites.Create(s.ctx, admin, email, "", time.Hour)
			s.Require().NoError(err)

			s.advance(tc.elapsed)
			defer s.advance(-tc.elapsed)

			_, err = s.invites.Accept(s.ctx, token, u.ID)
			if tc.wantErr == nil {
				s.NoError(err)
			} else {
				s.ErrorIs(err, tc.wantErr)
			}
		})
	}
}

func (s *ServiceSuite) TestCreateInvitationValidation() {
	org, admin := s.organization("Acme", "owner@acme.test")
	member := s.join(admin, "member@acme.test", domain.RoleOrganizationMember)
	memberScope := s.scopeOf(member.ID)
	loner := s.register("loner@x.com")

	_, _, err := s.invites.Create(s.ctx, memberScope, "x@x.com", "", 0)
	s.ErrorIs(err, domain.ErrForbidden)

	_, _, err = s.invites.Create(s.ctx, s.scopeOf(loner.ID), "x@x.com", "", 0)
	s.ErrorIs(err, domain.ErrForbidden)

	_, _, err = s.invites.Create(s.ctx, admin, "not-an-email", domain.RoleUser, -time.Hour)
	var v *domain.ValidationError
	s.Require().ErrorAs(err, &v)
	s.Len(v.Errors, 3)

	_, _, err = s.invites.Create(s.ctx, admin, "member@acme.test", "", 0)
	s.ErrorIs(err, domain.ErrAlreadyExists)

	inv, _, err := s.invites.Create(s.ctx, admin, "new@acme.test", domain.RoleOrganizationAdmin, 0)
	s.Require().NoError(err)
	s.Equal(org.ID, inv.OrganizationID)
	s.Equal(epoch.Add(48*time.Hour), inv.ExpiresAt)
}

func (s *ServiceSuite) TestAcceptRejectsOtherAddresses() {
	_, admin := s.organization("Acme", "owner@acme.test")
	mallory := s.register("mallory@x.com")

	_, token, err := s.invites.Create(s.ctx, admin, "alice@x.com", "", 0)
	s.Require().NoError(err)

	_, err = s.invites.Accept(s.ctx, token, mallory.ID)
	s.ErrorIs(err, domain.ErrForbidden)

	_, err = s.invites.Accept(s.ctx, "no-such-token", mallory.ID)
	s.ErrorIs(err, domain.ErrNotFound)

	observed, err := s.invites.Get(s.ctx, token)
	s.Require().NoError(err)
	s.Equal(domain.InvitationPending, observed.Status)
}

func (s *ServiceSuite) TestRevokeAndList() {
	_, admin := s.organization("Acme", "owner@acme.test")
	_, other := s.organization("Other", "owner@other.test")

	pending, _, err := s.invites.Create(s.ctx, admin, "p@x.com", "", time.Hour)
	s.Require().NoError(err)
	stale, _, err := s.invites.Create(s.ctx, admin, "s@x.com", "", time.Minute)
	s.Require().NoError(err)
	s.advance(10 * time.Minute)

	list, err := s.invites.ListForOrganization(s.ctx, admin, store.Query{})
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	statuses := map[string]domain.InvitationStatus{}
	for _, inv := range list {
		statuses[inv.ID] = inv.Status
	}
	s.Equal(domain.InvitationPending, statuses[pending.ID])
	s.Equal(domain.InvitationExpired, statuses[stale.ID])

	s.ErrorIs(s.invites.Revoke(s.ctx, other, pending.ID), domain.ErrCrossTenant)
	s.ErrorIs(s.invites.Revoke(s.ctx, admin, stale.ID), domain.ErrConflict)
	s.Require().NoError(s.invites.Revoke(s.ctx, admin, pending.ID))
	s.ErrorIs(s.invites.Revoke(s.ctx, admin, pending.ID), domain.ErrNotFound)
}

func (s *ServiceSuite) TestExpireStale() {
	_, admin := s.organization("Acme", "owner@acme.test")

	stale, token, err := s.invites.Create(s.ctx, admin, "s@x.com", "", time.Hour)
	s.Require().NoError(err)
	_, _, err = s.invites.Create(s.ctx, admin, "f@x.com", "", 3*time.Hour)
	s.Require().NoError(err)
	s.advance(2 * time.Hour)

	n, err := s.invites.ExpireStale(s.ctx)
	s.Require().NoError(err)
	s.EqualValues(1, n)

	row, err := s.store.Invitations().Get(s.ctx, stale.ID)
	s.Require().NoError(err)
	s.Equal(domain.InvitationExpired, row.Status)

	n, err = s.invites.ExpireStale(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)

	u := s.register("s@x.com")
	_, err = s.invites.Accept(s.ctx, token, u.ID)
	s.ErrorIs(err, service.ErrInvitationExpired)
}
