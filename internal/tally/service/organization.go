package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
	"github.com/aussiebroadwan/tally/internal/tally/store"
	"github.com/aussiebroadwan/tally/pkg/slogx"
)

// OrganizationService manages organizations and their membership.
type OrganizationService struct {
	Store store.Store
}

// access checks that scope may read organization id, or manage it when
// manage is set. An ADMIN reaches every organization; anyone else only the
// organization of their scope.
func access(scope domain.Scope, id string, manage bool) error {
	switch {
	case scope.Role == domain.RoleAdmin:
		return nil
	case !scope.IsOrganization() || scope.Owner.ID() != id:
		return fmt.Errorf("organization %s: %w", id, domain.ErrCrossTenant)
	case manage && !scope.CanAdminister():
		return fmt.Errorf("organization %s: %w", id, domain.ErrForbidden)
	}
	return nil
}

// Create makes ownerID the owner and an ORGANIZATION_ADMIN member of a new
// organization. A user owns at most one organization.
func (s *OrganizationService) Create(ctx context.Context, ownerID, name string) (domain.Organization, error) {
	log := slogx.FromContext(ctx)

	if name == "" {
		return domain.Organization{}, domain.NewValidationError("name", "is required")
	}

	var org domain.Organization
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		// 1. The owner must be an active user outside any organization.
		owner, err := tx.Users().Get(ctx, ownerID)
		if err != nil {
			return err
		}
		if !owner.IsActive {
			return fmt.Errorf("user %s is inactive: %w", ownerID, domain.ErrForbidden)
		}
		switch _, err := tx.Organizations().GetByOwner(ctx, ownerID); {
		case err == nil:
			return fmt.Errorf("user %s already owns an organization: %w", ownerID, domain.ErrAlreadyExists)
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
		if owner.OrganizationID != nil {
			return fmt.Errorf("user %s already belongs to an organization: %w", ownerID, domain.ErrConflict)
		}

		// 2. Create the organization and enrol the owner in one step.
		org = domain.Organization{Name: name, OwnerID: &ownerID, IsActive: true}
		if err := tx.Organizations().Create(ctx, &org); err != nil {
			return err
		}
		owner.OrganizationID = &org.ID
		if owner.Role != domain.RoleAdmin {
			owner.Role = domain.RoleOrganizationAdmin
		}
		if err := tx.Users().Update(ctx, &owner); err != nil {
			return err
		}
		return audit(ctx, tx, ownerID, ActionCreate, "organization", org.ID, map[string]any{"name": name})
	})
	if err != nil {
		logFailure(ctx, "failed to create organization", err, slog.String("owner_id", ownerID))
		return domain.Organization{}, err
	}

	log.Info("organization created",
		slog.String("organization_id", org.ID),
		slog.String("owner_id", ownerID),
	)
	return org, nil
}

// Get returns an organization, with members and subscription when include
// names them.
func (s *OrganizationService) Get(ctx context.Context, scope domain.Scope, id string, include ...string) (domain.Organization, error) {
	if err := access(scope, id, false); err != nil {
		return domain.Organization{}, err
	}
	if len(include) == 0 {
		return s.Store.Organizations().Get(ctx, id)
	}
	return s.Store.Organizations().First(ctx, store.Query{Where: byID(id), Include: include})
}

// Update renames the organization.
func (s *OrganizationService) Update(ctx context.Context, scope domain.Scope, id, name string) (domain.Organization, error) {
	if name == "" {
		return domain.Organization{}, domain.NewValidationError("name", "is required")
	}
	return s.modify(ctx, scope, id, ActionUpdate, func(_ store.Tx, o *domain.Organization) error {
		o.Name = name
		return nil
	})
}

// Deactivate switches the organization off. Tenancy resolution rejects
// inactive organizations.
func (s *OrganizationService) Deactivate(ctx context.Context, scope domain.Scope, id string) (domain.Organization, error) {
	return s.modify(ctx, scope, id, ActionUpdate, func(_ store.Tx, o *domain.Organization) error {
		o.IsActive = false
		return nil
	})
}

// Delete removes the organization with its subscription, invitations and
// records. Members keep their accounts and leave the organization.
func (s *OrganizationService) Delete(ctx context.Context, scope domain.Scope, id string) error {
	if err := access(scope, id, true); err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Users().UpdateMany(ctx,
			store.AllOf(
				store.Eq{Field: "organizationId", Value: id},
				store.In{Field: "role", Values: store.Values(domain.RoleOrganizationAdmin, domain.RoleOrganizationMember)},
			),
			store.Set{"role": domain.RoleUser},
		); err != nil {
			return err
		}
		return tx.Organizations().Delete(ctx, id)
	})
	if err != nil {
		logFailure(ctx, "failed to delete organization", err, slog.String("organization_id", id))
		return err
	}

	slogx.FromContext(ctx).Info("organization deleted", slog.String("organization_id", id))
	return nil
}

// Members lists the members of organization id.
func (s *OrganizationService) Members(ctx context.Context, scope domain.Scope, id string, q store.Query) ([]domain.User, error) {
	if err := access(scope, id, false); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	if _, err := s.Store.Organizations().Get(ctx, id); err != nil {
		return nil, err
	}
	q.Where = store.AllOf(store.Eq{Field: "organizationId", Value: id}, q.Where)
	if len(q.OrderBy) == 0 {
		q.OrderBy = []store.Order{store.Asc("email")}
	}
	return s.Store.Users().List(ctx, q)
}

// RemoveMember takes a member out of the organization. The owner cannot be
// removed.
func (s *OrganizationService) RemoveMember(ctx context.Context, scope domain.Scope, userID string) error {
	id := scope.Owner.ID()
	_, err := s.modify(ctx, scope, id, ActionDelete, func(tx store.Tx, o *domain.Organization) error {
		if o.IsOwnedBy(userID) {
			return fmt.Errorf("the owner cannot be removed: %w", domain.ErrConflict)
		}
		u, err := tx.Users().Get(ctx, userID)
		if err != nil {
			return err
		}
		if !u.IsMemberOf(id) {
			return fmt.Errorf("user %s is not a member: %w", userID, domain.ErrNotFound)
		}
		u.OrganizationID = nil
		if u.Role.IsOrganizationRole() {
			u.Role = domain.RoleUser
		}
		if err := tx.Users().Update(ctx, &u); err != nil {
			return err
		}
		return notify(ctx, tx, userID, KindMemberRemoved, "You were removed from "+o.Name)
	})
	return err
}

// TransferOwnership hands the organization to another member, who becomes
// an ORGANIZATION_ADMIN. Only the current owner or an ADMIN may transfer.
func (s *OrganizationService) TransferOwnership(ctx context.Context, scope domain.Scope, id, newOwnerID string) (domain.Organization, error) {
	return s.modify(ctx, scope, id, ActionTransfer, func(tx store.Tx, o *domain.Organization) error {
		if scope.Role != domain.RoleAdmin && !o.IsOwnedBy(scope.ActorID) {
			return fmt.Errorf("only the owner can transfer ownership: %w", domain.ErrForbidden)
		}
		if o.IsOwnedBy(newOwnerID) {
			return nil
		}

		next, err := tx.Users().Get(ctx, newOwnerID)
		if err != nil {
			return err
		}
		if !next.IsMemberOf(id) || !next.IsActive {
			return domain.NewValidationError("ownerId", "must be an active member of the organization")
		}
		if next.Role != domain.RoleAdmin && next.Role != domain.RoleOrganizationAdmin {
			next.Role = domain.RoleOrganizationAdmin
			if err := tx.Users().Update(ctx, &next); err != nil {
				return err
			}
		}

		o.OwnerID = &newOwnerID
		return notify(ctx, tx, newOwnerID, KindOwnershipReceived, "You are now the owner of "+o.Name)
	})
}

// modify applies fn to a re-read organization the scope administers and
// writes it back with an audit entry.
func (s *OrganizationService) modify(
	ctx context.Context,
	scope domain.Scope,
	id, action string,
	fn func(tx store.Tx, o *domain.Organization) error,
) (domain.Organization, error) {
	if err := access(scope, id, true); err != nil {
		slogx.FromContext(ctx).Warn("organization change rejected",
			slog.String("actor_id", scope.ActorID),
			slog.String("organization_id", id),
		)
		return domain.Organization{}, err
	}

	var org domain.Organization
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if org, err = tx.Organizations().Get(ctx, id); err != nil {
			return err
		}
		if err := fn(tx, &org); err != nil {
			return err
		}
		if err := tx.Organizations().Update(ctx, &org); err != nil {
			return err
		}
		return audit(ctx, tx, scope.ActorID, action, "organization", id, nil)
	})
	if err != nil {
		logFailure(ctx, "failed to change organization", err, slog.String("organization_id", id))
		return domain.Organization{}, err
	}
	return org, nil
}
