package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
)

var invitationSchema = &schema{
	table:     "user_invitations",
	entity:    "invitation",
	updatedAt: true,
	fields: withBase(true, map[string]column{
		"email":          {name: "email"},
		"role":           {name: "role", fixed: true},
		"tokenHash":      {name: "token_hash", fixed: true},
		"status":         {name: "status", fixed: true},
		"organizationId": {name: "organization_id", fixed: true},
		"invitedById":    {name: "invited_by_id", fixed: true},
		"userId":         {name: "user_id", fixed: true},
		"expiresAt":      {name: "expires_at", kind: kindTime, fixed: true},
		"acceptedAt":     {name: "accepted_at", kind: kindTime, fixed: true},
	}),
}

var invitationTable = &table[domain.Invitation]{
	schema: invitationSchema,
	columns: []string{
		"id", "email", "role", "token_hash", "status", "organization_id", "invited_by_id",
		"user_id", "expires_at", "accepted_at", "created_at", "updated_at",
	},
	scan: scanInvitation,
	row: func(i *domain.Invitation) (map[string]any, error) {
		return map[string]any{
			"id":              i.ID,
			"email":           i.Email,
			"role":            string(i.Role),
			"token_hash":      i.TokenHash,
			"status":          string(i.Status),
			"organization_id": i.OrganizationID,
			"invited_by_id":   mapOptionalString(i.InvitedByID),
			"user_id":         mapOptionalString(i.UserID),
			"expires_at":      utc(i.ExpiresAt),
			"accepted_at":     mapOptionalTime(i.AcceptedAt),
			"created_at":      i.CreatedAt,
			"updated_at":      i.UpdatedAt,
		}, nil
	},
	mutable: func(i *domain.Invitation) map[string]any {
		return map[string]any{"email": i.Email}
	},
	id:        func(i *domain.Invitation) *string { return &i.ID },
	createdAt: func(i *domain.Invitation) *time.Time { return &i.CreatedAt },
	updatedAt: func(i *domain.Invitation) *time.Time { return &i.UpdatedAt },
}

func scanInvitation(s scanner) (domain.Invitation, error) {
	var (
		i          domain.Invitation
		role       string
		status     string
		invitedBy  sql.NullString
		userID     sql.NullString
		acceptedAt sql.NullTime
	)
	err := s.Scan(&i.ID, &i.Email, &role, &i.TokenHash, &status, &i.OrganizationID, &invitedBy,
		&userID, &i.ExpiresAt, &acceptedAt, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return domain.Invitation{}, err
	}
	i.Role = domain.UserRole(role)
	i.Status = domain.InvitationStatus(status)
	i.InvitedByID = mapNullStringPtr(invitedBy)
	i.UserID = mapNullStringPtr(userID)
	i.AcceptedAt = mapNullTimePtr(acceptedAt)
	i.ExpiresAt = utc(i.ExpiresAt)
	i.CreatedAt, i.UpdatedAt = utc(i.CreatedAt), utc(i.UpdatedAt)
	return i, nil
}

type invitationsRepo struct {
	collection[domain.Invitation]
}

func (r *invitationsRepo) GetByTokenHash(ctx context.Context, hash string) (domain.Invitation, error) {
	return r.t.getBy(ctx, r.e, "token_hash", hash)
}

// Accept is a conditional update so that of two concurrent accepts exactly
// one sees a changed row.
func (r *invitationsRepo) Accept(ctx context.Context, id, userID string, at time.Time) error {
	at = utc(at)
	b := r.e.builder().
		Update(r.t.table).
		SetMap(map[string]any{
			"status":      string(domain.InvitationAccepted),
			"user_id":     userID,
			"accepted_at": at,
			"updated_at":  r.e.timestamp(),
		}).
		Where(sq.Eq{"id": id, "status": string(domain.InvitationPending)}).
		Where(sq.Gt{"expires_at": at})
	res, err := r.e.exec(ctx, b)
	if err != nil {
		return fmt.Errorf("accept invitation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	// Distinguish a missing row from one in the wrong state.
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("invitation %s is not pending: %w", id, domain.ErrConflict)
}

func (r *invitationsRepo) ExpirePending(ctx context.Context, at time.Time) (int64, error) {
	b := r.e.builder().
		Update(r.t.table).
		SetMap(map[string]any{
			"status":     string(domain.InvitationExpired),
			"updated_at": r.e.timestamp(),
		}).
		Where(sq.Eq{"status": string(domain.InvitationPending)}).
		Where(sq.LtOrEq{"expires_at": utc(at)})
	res, err := r.e.exec(ctx, b)
	if err != nil {
		return 0, fmt.Errorf("expire invitations: %w", err)
	}
	return res.RowsAffected()
}
