package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
)

var userSchema = &schema{
	table:     "users",
	entity:    "user",
	updatedAt: true,
	fields: withBase(true, map[string]column{
		"email":            {name: "email"},
		"username":         {name: "username"},
		"name":             {name: "name"},
		"passwordHash":     {name: "password_hash"},
		"role":             {name: "role"},
		"organizationId":   {name: "organization_id"},
		"isActive":         {name: "is_active", kind: kindBool},
		"resetTokenHash":   {name: "reset_token_hash"},
		"resetTokenExpiry": {name: "reset_token_expiry", kind: kindTime},
	}),
}

var userTable = &table[domain.User]{
	schema: userSchema,
	columns: []string{
		"id", "email", "username", "name", "password_hash", "role", "organization_id",
		"is_active", "reset_token_hash", "reset_token_expiry", "created_at", "updated_at",
	},
	scan:      scanUser,
	row:       func(u *domain.User) (map[string]any, error) { return userRow(u), nil },
	mutable:   userMutable,
	id:        func(u *domain.User) *string { return &u.ID },
	createdAt: func(u *domain.User) *time.Time { return &u.CreatedAt },
	updatedAt: func(u *domain.User) *time.Time { return &u.UpdatedAt },
}

func scanUser(s scanner) (domain.User, error) {
	var (
		u           domain.User
		role        string
		username    sql.NullString
		orgID       sql.NullString
		resetHash   sql.NullString
		resetExpiry sql.NullTime
	)
	err := s.Scan(&u.ID, &u.Email, &username, &u.Name, &u.PasswordHash, &role, &orgID,
		&u.IsActive, &resetHash, &resetExpiry, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, err
	}
	u.Role = domain.UserRole(role)
	u.Username = mapNullStringPtr(username)
	u.OrganizationID = mapNullStringPtr(orgID)
	u.ResetTokenHash = mapNullStringPtr(resetHash)
	u.ResetTokenExpiry = mapNullTimePtr(resetExpiry)
	u.CreatedAt, u.UpdatedAt = utc(u.CreatedAt), utc(u.UpdatedAt)
	return u, nil
}

func userMutable(u *domain.User) map[string]any {
	return map[string]any{
		"email":              u.Email,
		"username":           mapOptionalString(u.Username),
		"name":               u.Name,
		"password_hash":      u.PasswordHash,
		"role":               string(u.Role),
		"organization_id":    mapOptionalString(u.OrganizationID),
		"is_active":          u.IsActive,
		"reset_token_hash":   mapOptionalString(u.ResetTokenHash),
		"reset_token_expiry": mapOptionalTime(u.ResetTokenExpiry),
	}
}

func userRow(u *domain.User) map[string]any {
	m := userMutable(u)
	m["id"] = u.ID
	m["created_at"] = u.CreatedAt
	m["updated_at"] = u.UpdatedAt
	return m
}

type usersRepo struct {
	collection[domain.User]
}

func (r *usersRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.t.getBy(ctx, r.e, "email", email)
}

func (r *usersRepo) GetByResetTokenHash(ctx context.Context, hash string) (domain.User, error) {
	return r.t.getBy(ctx, r.e, "reset_token_hash", hash)
}

// Upsert keys on email. The existing row keeps its id and created_at.
func (r *usersRepo) Upsert(ctx context.Context, u *domain.User) error {
	r.t.stamp(u, r.e.timestamp())
	b := r.e.builder().
		Insert(r.t.table).
		SetMap(userRow(u)).
		Suffix(`ON CONFLICT (email) DO UPDATE SET
			username = excluded.username,
			name = excluded.name,
			password_hash = excluded.password_hash,
			role = excluded.role,
			organization_id = excluded.organization_id,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`)
	if _, err := r.e.exec(ctx, b); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	stored, err := r.GetByEmail(ctx, u.Email)
	if err != nil {
		return err
	}
	*u = stored
	return nil
}
