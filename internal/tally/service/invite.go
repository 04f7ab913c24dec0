package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
	"github.com/aussiebroadwan/tally/internal/tally/metrics"
	"github.com/aussiebroadwan/tally/internal/tally/store"
	"github.com/aussiebroadwan/tally/pkg/cryptox"
	"github.com/aussiebroadwan/tally/pkg/slogx"
)

// DefaultInvitationTTL applies when neither the caller nor the service
// configures a lifetime.
const DefaultInvitationTTL = 7 * 24 * time.Hour

// InviteService runs the invitation state machine. PENDING moves to ACCEPTED
// through Accept or to EXPIRED with time; both are terminal.
type InviteService struct {
	Store   store.Store
	Clock   Clock
	Metrics *metrics.Metrics

	// DefaultTTL is used when Create is called with a zero ttl.
	DefaultTTL time.Duration
}

// Create invites email to the scoped organization with role. It returns the
// stored invitation and the raw token, which is not stored and cannot be
// recovered.
func (s *InviteService) Create(
	ctx context.Context,
	scope domain.Scope,
	email string,
	role domain.UserRole,
	ttl time.Duration,
) (inv domain.Invitation, token string, err error) {
	defer observe(s.Metrics, "invitation.create", time.Now(), &err)
	log := slogx.FromContext(ctx)
	now := s.Clock.now()

	// 1. Only an administrator of the organization may invite.
	if !scope.IsOrganization() || !scope.CanAdminister() {
		log.Warn("invitation rejected: caller cannot administer organization",
			slog.String("actor_id", scope.ActorID),
			slog.String("scope", scope.Owner.String()),
		)
		return domain.Invitation{}, "", fmt.Errorf("create invitation: %w", domain.ErrForbidden)
	}
	orgID := scope.Owner.ID()

	// 2. Validate the request.
	email = normalizeEmail(email)
	if role == "" {
		role = domain.RoleOrganizationMember
	}
	if ttl == 0 {
		ttl = s.DefaultTTL
	}
	if ttl == 0 {
		ttl = DefaultInvitationTTL
	}
	v := &domain.ValidationError{}
	if err := validateEmail("email", email); err != nil {
		v.Add("email", "is not a valid email address")
	}
	if !role.IsOrganizationRole() {
		v.Add("role", "must be ORGANIZATION_ADMIN or ORGANIZATION_MEMBER")
	}
	if ttl < 0 {
		v.Add("expiresAt", "must be in the future")
	}
	if err := v.Err(); err != nil {
		log.Warn("invitation rejected", slog.Any("error", err))
		return domain.Invitation{}, "", err
	}

	// 3. Generate the secret. Only its fingerprint is persisted.
	token, fingerprint, err := cryptox.NewSecret()
	if err != nil {
		log.Error("failed to generate invitation token", slog.Any("error", err))
		return domain.Invitation{}, "", err
	}

	inviter := scope.ActorID
	inv = domain.Invitation{
		Email:          email,
		Role:           role,
		TokenHash:      fingerprint,
		Status:         domain.InvitationPending,
		OrganizationID: orgID,
		InvitedByID:    &inviter,
		ExpiresAt:      now.Add(ttl),
	}

	// 4. Refuse invitations for existing members, then store with an audit row.
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		existing, err := tx.Users().GetByEmail(ctx, email)
		switch {
		case err == nil && existing.IsMemberOf(orgID):
			return fmt.Errorf("%s is already a member: %w", email, domain.ErrAlreadyExists)
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return err
		}

		if err := tx.Invitations().Create(ctx, &inv); err != nil {
			return err
		}
		return audit(ctx, tx, scope.ActorID, ActionCreate, "invitation", inv.ID, map[string]any{
			"email": email,
			"role":  string(role),
		})
	})
	if err != nil {
		logFailure(ctx, "failed to create invitation", err, slog.String("organization_id", orgID))
		return domain.Invitation{}, "", err
	}

	log.Info("invitation created",
		slog.String("invitation_id", inv.ID),
		slog.String("organization_id", orgID),
		slog.String("role", string(role)),
		slog.Time("expires_at", inv.ExpiresAt),
	)
	return inv, token, nil
}

// Accept redeems token for userID. An expired invitation fails with
// ErrInvitationExpired and an accepted one with ErrInvitationUsed; in both
// cases no membership is created. Concurrent accepts of the same token
// succeed at most once.
func (s *InviteService) Accept(ctx context.Context, token, userID string) (inv domain.Invitation, err error) {
	defer observe(s.Metrics, "invitation.accept", time.Now(), &err)
	log := slogx.FromContext(ctx)
	now := s.Clock.now()

	if token == "" {
		return domain.Invitation{}, domain.NewValidationError("token", "is required")
	}
	fingerprint := cryptox.FingerprintToken(token)

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		// 1. Look the invitation up by fingerprint.
		found, err := tx.Invitations().GetByTokenHash(ctx, fingerprint)
		if errors.Is(err, domain.ErrNotFound) {
			return ErrInvitationNotFound
		}
		if err != nil {
			return err
		}
		inv = found

		// 2. Evaluate the status lazily: a pending row past expiry is expired.
		switch inv.EffectiveStatus(now) {
		case domain.InvitationExpired:
			return ErrInvitationExpired
		case domain.InvitationAccepted:
			return ErrInvitationUsed
		}

		// 3. The invitee must be an active user with the invited address who
		// does not already belong to another organization.
		user, err := tx.Users().Get(ctx, userID)
		if err != nil {
			return err
		}
		if !user.IsActive {
			return fmt.Errorf("user %s is inactive: %w", userID, domain.ErrForbidden)
		}
		if !strings.EqualFold(user.Email, inv.Email) {
			return fmt.Errorf("invitation was issued to another address: %w", domain.ErrForbidden)
		}
		if user.OrganizationID != nil && *user.OrganizationID != inv.OrganizationID {
			return fmt.Errorf("user %s already belongs to an organization: %w", userID, domain.ErrConflict)
		}

		// 4. Move the row out of PENDING. Losing a race leaves zero rows.
		if err := tx.Invitations().Accept(ctx, inv.ID, userID, now); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return ErrInvitationUsed
			}
			return err
		}

		// 5. Grant membership.
		orgID := inv.OrganizationID
		user.OrganizationID = &orgID
		if user.Role != domain.RoleAdmin {
			user.Role = inv.Role
		}
		if err := tx.Users().Update(ctx, &user); err != nil {
			return err
		}

		// 6. Audit and notify.
		if err := audit(ctx, tx, userID, ActionAccept, "invitation", inv.ID, map[string]any{
			"organizationId": orgID,
			"role":           string(inv.Role),
		}); err != nil {
			return err
		}
		if err := notify(ctx, tx, userID, KindOrganizationJoined,
			"You joined an organization as "+string(inv.Role)); err != nil {
			return err
		}
		if inv.InvitedByID != nil {
			return notify(ctx, tx, *inv.InvitedByID, KindInvitationAccepted, inv.Email+" accepted your invitation")
		}
		return nil
	})
	if err != nil {
		logFailure(ctx, "invitation not accepted", err, slog.String("user_id", userID))
		return domain.Invitation{}, err
	}

	s.Metrics.InvitationAccepted()
	inv.Status = domain.InvitationAccepted
	inv.UserID = &userID
	inv.AcceptedAt = &now

	log.Info("invitation accepted",
		slog.String("invitation_id", inv.ID),
		slog.String("organization_id", inv.OrganizationID),
		slog.String("user_id", userID),
	)
	return inv, nil
}

// Get returns the invitation for token with its effective status.
func (s *InviteService) Get(ctx context.Context, token string) (domain.Invitation, error) {
	inv, err := s.Store.Invitations().GetByTokenHash(ctx, cryptox.FingerprintToken(token))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Invitation{}, ErrInvitationNotFound
	}
	if err != nil {
		return domain.Invitation{}, err
	}
	return inv.Observed(s.Clock.now()), nil
}

// ListForOrganization lists the scoped organization's invitations with their
// effective status.
func (s *InviteService) ListForOrganization(ctx context.Context, scope domain.Scope, q store.Query) ([]domain.Invitation, error) {
	if !scope.IsOrganization() {
		return nil, fmt.Errorf("list invitations: %w", domain.ErrForbidden)
	}
	q.Where = store.AllOf(store.Eq{Field: "organizationId", Value: scope.Owner.ID()}, q.Where)
	if len(q.OrderBy) == 0 {
		q.OrderBy = []store.Order{store.Desc("createdAt"), store.Desc("id")}
	}

	invs, err := s.Store.Invitations().List(ctx, q)
	if err != nil {
		return nil, err
	}
	now := s.Clock.now()
	for i := range invs {
		invs[i] = invs[i].Observed(now)
	}
	return invs, nil
}

// Revoke deletes a pending invitation of the scoped organization.
func (s *InviteService) Revoke(ctx context.Context, scope domain.Scope, id string) error {
	log := slogx.FromContext(ctx)

	if !scope.IsOrganization() || !scope.CanAdminister() {
		return fmt.Errorf("revoke invitation: %w", domain.ErrForbidden)
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		inv, err := tx.Invitations().Get(ctx, id)
		if err != nil {
			return err
		}
		if inv.OrganizationID != scope.Owner.ID() {
			return fmt.Errorf("invitation %s: %w", id, domain.ErrCrossTenant)
		}
		if status := inv.EffectiveStatus(s.Clock.now()); status != domain.InvitationPending {
			log.Warn("attempted to revoke a settled invitation",
				slog.String("invitation_id", id),
				slog.String("status", string(status)),
			)
			return fmt.Errorf("invitation %s is %s: %w", id, status, domain.ErrConflict)
		}
		if err := tx.Invitations().Delete(ctx, id); err != nil {
			return err
		}
		return audit(ctx, tx, scope.ActorID, ActionDelete, "invitation", id, nil)
	})
}

// ExpireStale rewrites every overdue PENDING invitation to EXPIRED.
func (s *InviteService) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.Store.Invitations().ExpirePending(ctx, s.Clock.now())
	if err != nil {
		return 0, err
	}
	s.Metrics.InvitationsExpired(n)
	if n > 0 {
		slogx.FromContext(ctx).Info("expired stale invitations", slog.Int64("count", n))
	}
	return n, nil
}
