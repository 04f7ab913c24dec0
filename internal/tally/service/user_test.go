package service_test

import (
	"time"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
	"github.com/aussiebroadwan/tally/internal/tally/service"
)

func (s *ServiceSuite) TestRegisterAndAuthenticate() {
	u := s.register("Carol@Example.com")
	s.Equal("carol@example.com", u.Email)
	s.Equal(domain.RoleUser, u.Role)
	s.True(u.IsActive)
	s.NotContains(u.PasswordHash, password)

	_, err := s.users.Register(s.ctx, "CAROL@example.com", "again", password)
	s.ErrorIs(err, domain.ErrAlreadyExists)

	_, err = s.users.Register(s.ctx, "nope", "", "short")
	var v *domain.ValidationError
	s.Require().ErrorAs(err, &v)
	s.Len(v.Errors, 2)

	got, err := s.users.Authenticate(s.ctx, " carol@example.com ", password)
	s.Require().NoError(err)
	s.Equal(u.ID, got.ID)

	_, err = s.users.Authenticate(s.ctx, "carol@example.com", "wrong password")
	s.ErrorIs(err, service.ErrInvalidCredentials)
	_, err = s.users.Authenticate(s.ctx, "nobody@example.com", password)
	s.ErrorIs(err, service.ErrInvalidCredentials)

	_, err = s.users.Deactivate(s.ctx, u.ID)
	s.Require().NoError(err)
	_, err = s.users.Authenticate(s.ctx, "carol@example.com", password)
	s.ErrorIs(err, domain.ErrForbidden)

	_, err = s.users.Reactivate(s.ctx, u.ID)
	s.Require().NoError(err)
	_, err = s.users.Authenticate(s.ctx, "carol@example.com", password)
	s.NoError(err)
}

func (s *ServiceSuite) TestProfileAndPassword() {
	u := s.register("dan@example.com")

	updated, err := s.users.UpdateProfile(s.ctx, u.ID, "Dan", ptr("dan"))
	s.Require().NoError(err)
	s.Equal("Dan", updated.Name)
	s.Equal("dan", *updated.Username)

	other := s.register("eve@example.com")
	_, err = s.users.UpdateProfile(s.ctx, other.ID, "Eve", ptr("dan"))
	s.ErrorIs(err, domain.ErrAlreadyExists)

	s.ErrorIs(s.users.ChangePassword(s.ctx, u.ID, "wrong password", "new password"), service.ErrInvalidCredentials)
	s.Require().NoError(s.users.ChangePassword(s.ctx, u.ID, password, "new password"))

	_, err = s.users.Authenticate(s.ctx, u.Email, "new password")
	s.NoError(err)
}

func (s *ServiceSuite) TestPasswordReset() {
	u := s.register("frank@example.com")

	token, err := s.users.RequestPasswordReset(s.ctx, "nobody@example.com")
	s.Require().NoError(err)
	s.Empty(token)

	token, err = s.users.RequestPasswordReset(s.ctx, "frank@example.com")
	s.Require().NoError(err)
	s.NotEmpty(token)

	stored, err := s.users.Get(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Require().NotNil(stored.ResetTokenHash)
	s.NotEqual(token, *stored.ResetTokenHash)

	s.ErrorIs(s.users.ResetPassword(s.ctx, token, "short"), domain.ErrValidation)
	s.Require().NoError(s.users.ResetPassword(s.ctx, token, "brand new password"))
	s.ErrorIs(s.users.ResetPassword(s.ctx, token, "another password"), service.ErrInvalidResetToken)

	_, err = s.users.Authenticate(s.ctx, u.Email, "brand new password")
	s.Require().NoError(err)

	// Tokens expire.
	token, err = s.users.RequestPasswordReset(s.ctx, "frank@example.com")
	s.Require().NoError(err)
	s.advance(31 * time.Minute)
	s.ErrorIs(s.users.ResetPassword(s.ctx, token, "too late password"), service.ErrInvalidResetToken)

	n, err := s.users.PurgeResetTokens(s.ctx)
	s.Require().NoError(err)
	s.EqualValues(1, n)

	stored, err = s.users.Get(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Nil(stored.ResetTokenHash)
	s.Nil(stored.ResetTokenExpiry)
}

func (s *ServiceSuite) TestDeleteOrganizationOwner() {
	org, admin := s.organization("Acme", "owner@acme.test")
	budget := s.budget(admin, 1000)

	mine := s.budget(domain.Scope{Owner: domain.Personal(admin.ActorID), ActorID: admin.ActorID}, 10)

	s.Require().NoError(s.users.Delete(s.ctx, admin.ActorID))

	got, err := s.orgs.Get(s.ctx, s.platformAdmin(), org.ID)
	s.Require().NoError(err)
	s.Nil(got.OwnerID)

	// Organization records survive; personal ones go with the user.
	_, err = s.store.Budgets().Get(s.ctx, budget.ID)
	s.NoError(err)
	_, err = s.store.Budgets().Get(s.ctx, mine.ID)
	s.ErrorIs(err, domain.ErrNotFound)

	// Repeating the delete has no further effect.
	s.ErrorIs(s.users.Delete(s.ctx, admin.ActorID), domain.ErrNotFound)
	n, err := s.store.Organizations().Count(s.ctx, nil)
	s.Require().NoError(err)
	s.EqualValues(1, n)
}
