// Package tenancy resolves the tenant of a principal and confines store access
// to it. Every scoped repository injects the tenant filter into its queries
// and rejects rows of other tenants with domain.ErrCrossTenant.
package tenancy

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
	"github.com/aussiebroadwan/tally/internal/tally/store"
)

// Resolve returns the effective scope of u: its organization when it is a
// member of one, otherwise its personal scope.
func Resolve(u domain.User) (domain.Scope, error) {
	if !u.IsActive {
		return domain.Scope{}, fmt.Errorf("user %s is inactive: %w", u.ID, domain.ErrForbidden)
	}
	if u.OrganizationID != nil && *u.OrganizationID != "" {
		return domain.Scope{
			Owner:   domain.Organizational(*u.OrganizationID),
			ActorID: u.ID,
			Role:    u.Role,
		}, nil
	}
	return Personal(u)
}

// Personal returns the personal scope of u regardless of membership.
func Personal(u domain.User) (domain.Scope, error) {
	if !u.IsActive {
		return domain.Scope{}, fmt.Errorf("user %s is inactive: %w", u.ID, domain.ErrForbidden)
	}
	return domain.Scope{Owner: domain.Personal(u.ID), ActorID: u.ID, Role: u.Role}, nil
}

// Load fetches the user and, for members, their organization, and resolves
// the scope. An inactive organization is forbidden.
func Load(ctx context.Context, s store.Store, userID string) (domain.Scope, error) {
	u, err := s.Users().Get(ctx, userID)
	if err != nil {
		return domain.Scope{}, err
	}
	scope, err := Resolve(u)
	if err != nil {
		return domain.Scope{}, err
	}
	if !scope.IsOrganization() {
		return scope, nil
	}

	org, err := s.Organizations().Get(ctx, scope.Owner.ID())
	if err != nil {
		return domain.Scope{}, err
	}
	if !org.IsActive {
		return domain.Scope{}, fmt.Errorf("organization %s is inactive: %w", org.ID, domain.ErrForbidden)
	}
	return scope, nil
}

// Filter is the predicate selecting rows owned by the scope.
func Filter(scope domain.Scope) store.Predicate {
	if scope.IsOrganization() {
		return store.Eq{Field: "organizationId", Value: scope.Owner.ID()}
	}
	return store.Eq{Field: "userId", Value: scope.Owner.ID()}
}
