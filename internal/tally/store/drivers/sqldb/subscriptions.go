package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
)

var subscriptionSchema = &schema{
	table:     "subscriptions",
	entity:    "subscription",
	updatedAt: true,
	fields: withBase(true, map[string]column{
		"organizationId": {name: "organization_id", fixed: true},
		"plan":           {name: "plan"},
		"status":         {name: "status"},
		"startDate":      {name: "start_date", kind: kindTime},
		"endDate":        {name: "end_date", kind: kindTime},
		"trialEndsAt":    {name: "trial_ends_at", kind: kindTime},
	}),
}

var subscriptionTable = &table[domain.Subscription]{
	schema: subscriptionSchema,
	columns: []string{
		"id", "organization_id", "plan", "status", "start_date", "end_date", "trial_ends_at",
		"created_at", "updated_at",
	},
	scan: scanSubscription,
	row: func(s *domain.Subscription) (map[string]any, error) {
		return subscriptionRow(s), nil
	},
	mutable:   subscriptionMutable,
	id:        func(s *domain.Subscription) *string { return &s.ID },
	createdAt: func(s *domain.Subscription) *time.Time { return &s.CreatedAt },
	updatedAt: func(s *domain.Subscription) *time.Time { return &s.UpdatedAt },
}

func scanSubscription(s scanner) (domain.Subscription, error) {
	var (
		sub      domain.Subscription
		endDate  sql.NullTime
		trialEnd sql.NullTime
	)
	err := s.Scan(&sub.ID, &sub.OrganizationID, &sub.Plan, &sub.Status, &sub.StartDate, &endDate,
		&trialEnd, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return domain.Subscription{}, err
	}
	sub.EndDate = mapNullTimePtr(endDate)
	sub.TrialEndsAt = mapNullTimePtr(trialEnd)
	sub.StartDate = utc(sub.StartDate)
	sub.CreatedAt, sub.UpdatedAt = utc(sub.CreatedAt), utc(sub.UpdatedAt)
	return sub, nil
}

func subscriptionMutable(s *domain.Subscription) map[string]any {
	return map[string]any{
		"plan":          s.Plan,
		"status":        s.Status,
		"start_date":    utc(s.StartDate),
		"end_date":      mapOptionalTime(s.EndDate),
		"trial_ends_at": mapOptionalTime(s.TrialEndsAt),
	}
}

func subscriptionRow(s *domain.Subscription) map[string]any {
	m := subscriptionMutable(s)
	m["id"] = s.ID
	m["organization_id"] = s.OrganizationID
	m["created_at"] = s.CreatedAt
	m["updated_at"] = s.UpdatedAt
	return m
}

type subscriptionsRepo struct {
	collection[domain.Subscription]
}

func (r *subscriptionsRepo) GetByOrganization(ctx context.Context, organizationID string) (domain.Subscription, error) {
	return r.t.getBy(ctx, r.e, "organization_id", organizationID)
}

func (r *subscriptionsRepo) Upsert(ctx context.Context, s *domain.Subscription) error {
	r.t.stamp(s, r.e.timestamp())
	b := r.e.builder().
		Insert(r.t.table).
		SetMap(subscriptionRow(s)).
		Suffix(`ON CONFLICT (organization_id) DO UPDATE SET
			plan = excluded.plan,
			status = excluded.status,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			trial_ends_at = excluded.trial_ends_at,
			updated_at = excluded.updated_at`)
	if _, err := r.e.exec(ctx, b); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	stored, err := r.GetByOrganization(ctx, s.OrganizationID)
	if err != nil {
		return err
	}
	*s = stored
	return nil
}
