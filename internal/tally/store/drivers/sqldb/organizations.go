package sqldb

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
)

var organizationSchema = &schema{
	table:     "organizations",
	entity:    "organization",
	updatedAt: true,
	fields: withBase(true, map[string]column{
		"name":     {name: "name"},
		"ownerId":  {name: "owner_id"},
		"isActive": {name: "is_active", kind: kindBool},
	}),
}

var organizationTable = &table[domain.Organization]{
	schema:  organizationSchema,
	columns: []string{"id", "name", "owner_id", "is_active", "created_at", "updated_at"},
	scan:    scanOrganization,
	row: func(o *domain.Organization) (map[string]any, error) {
		m := organizationMutable(o)
		m["id"] = o.ID
		m["created_at"] = o.CreatedAt
		m["updated_at"] = o.UpdatedAt
		return m, nil
	},
	mutable:   organizationMutable,
	id:        func(o *domain.Organization) *string { return &o.ID },
	createdAt: func(o *domain.Organization) *time.Time { return &o.CreatedAt },
	updatedAt: func(o *domain.Organization) *time.Time { return &o.UpdatedAt },
}

func scanOrganization(s scanner) (domain.Organization, error) {
	var (
		o       domain.Organization
		ownerID sql.NullString
	)
	if err := s.Scan(&o.ID, &o.Name, &ownerID, &o.IsActive, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return domain.Organization{}, err
	}
	o.OwnerID = mapNullStringPtr(ownerID)
	o.CreatedAt, o.UpdatedAt = utc(o.CreatedAt), utc(o.UpdatedAt)
	return o, nil
}

func organizationMutable(o *domain.Organization) map[string]any {
	return map[string]any{
		"name":      o.Name,
		"owner_id":  mapOptionalString(o.OwnerID),
		"is_active": o.IsActive,
	}
}

func includeMembers(ctx context.Context, e *engine, orgs []domain.Organization) error {
	ids := make([]string, len(orgs))
	for i, o := range orgs {
		ids[i] = o.ID
	}
	members, err := loadChildren(ctx, e, userTable, "organizationId", ids,
		func(u domain.User) *string { return u.OrganizationID })
	if err != nil {
		return err
	}
	for i := range orgs {
		orgs[i].Members = members[orgs[i].ID]
	}
	return nil
}

func includeSubscription(ctx context.Context, e *engine, orgs []domain.Organization) error {
	ids := make([]string, len(orgs))
	for i, o := range orgs {
		ids[i] = o.ID
	}
	subs, err := loadChildren(ctx, e, subscriptionTable, "organizationId", ids,
		func(s domain.Subscription) *string { return &s.OrganizationID })
	if err != nil {
		return err
	}
	for i := range orgs {
		if found := subs[orgs[i].ID]; len(found) > 0 {
			sub := found[0]
			orgs[i].Subscription = &sub
		}
	}
	return nil
}

type organizationsRepo struct {
	collection[domain.Organization]
}

func (r *organizationsRepo) GetByOwner(ctx context.Context, ownerID string) (domain.Organization, error) {
	return r.t.getBy(ctx, r.e, "owner_id", ownerID)
}
