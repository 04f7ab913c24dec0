package domain_test

import (
	"testing"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func TestOwnerFromColumns(t *testing.T) {
	t.Parallel()

	t.Run("personal", func(t *testing.T) {
		o, err := domain.OwnerFromColumns(ptr("u1"), nil)
		require.NoError(t, err)
		require.Equal(t, domain.OwnerPersonal, o.Kind())
		require.Equal(t, "u1", *o.UserID())
		require.Nil(t, o.OrganizationID())
	})

	t.Run("organizational", func(t *testing.T) {
		o, err := domain.OwnerFromColumns(nil, ptr("o1"))
		require.NoError(t, err)
		require.Equal(t, domain.OwnerOrganization, o.Kind())
		require.Equal(t, "o1", *o.OrganizationID())
		require.Nil(t, o.UserID())
	})

	t.Run("both set is rejected", func(t *testing.T) {
		_, err := domain.OwnerFromColumns(ptr("u1"), ptr("o1"))
		require.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("neither set is rejected", func(t *testing.T) {
		_, err := domain.OwnerFromColumns(nil, nil)
		require.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestOwnerValidate(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, domain.Owner{}.Validate(), domain.ErrValidation)
	require.ErrorIs(t, domain.Personal("").Validate(), domain.ErrValidation)
	require.NoError(t, domain.Organizational("o1").Validate())
	require.Equal(t, "organization:o1", domain.Organizational("o1").String())
}

func TestScopeCanAdminister(t *testing.T) {
	t.Parallel()

	org := domain.Organizational("o1")

	require.True(t, domain.Scope{Owner: org, ActorID: "u1", Role: domain.RoleOrganizationAdmin}.CanAdminister())
	require.False(t, domain.Scope{Owner: org, ActorID: "u1", Role: domain.RoleOrganizationMember}.CanAdminister())
	require.True(t, domain.Scope{Owner: org, ActorID: "u1", Role: domain.RoleAdmin}.CanAdminister())
	require.True(t, domain.Scope{Owner: domain.Personal("u1"), ActorID: "u1", Role: domain.RoleUser}.CanAdminister())
	require.False(t, domain.Scope{Owner: domain.Personal("u2"), ActorID: "u1", Role: domain.RoleUser}.CanAdminister())
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	var v domain.ValidationError
	require.NoError(t, v.Err())

	v.Add("amount", "must not be negative")
	v.Add("name", "is required")
	err := v.Err()
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Contains(t, err.Error(), "2 errors")

	require.ErrorIs(t, domain.ErrCrossTenant, domain.ErrReferentialIntegrity)
}
