package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
	"github.com/aussiebroadwan/tally/internal/tally/store"
	"github.com/aussiebroadwan/tally/pkg/slogx"
)

// SubscriptionService manages the single subscription of an organization.
// Writes need an administrator of the organization or an ADMIN, reads need
// membership. Other scopes get domain.ErrCrossTenant.
type SubscriptionService struct {
	Store store.Store
	Clock Clock
}

// Start subscribes an organization to plan. A positive trial starts the
// subscription in its trial. A second subscription for the same
// organization fails with domain.ErrAlreadyExists.
func (s *SubscriptionService) Start(ctx context.Context, scope domain.Scope, organizationID, plan string, trial time.Duration) (domain.Subscription, error) {
	log := slogx.FromContext(ctx)
	now := s.Clock.now()

	if err := access(scope, organizationID, true); err != nil {
		return domain.Subscription{}, err
	}

	if plan == "" {
		return domain.Subscription{}, domain.NewValidationError("plan", "is required")
	}
	if trial < 0 {
		return domain.Subscription{}, domain.NewValidationError("trialEndsAt", "must not be in the past")
	}
	if _, err := s.Store.Organizations().Get(ctx, organizationID); err != nil {
		return domain.Subscription{}, reference("organization", organizationID, err)
	}

	sub := domain.Subscription{
		OrganizationID: organizationID,
		Plan:           plan,
		Status:         domain.SubscriptionActive,
		StartDate:      now,
	}
	if trial > 0 {
		ends := now.Add(trial)
		sub.Status = domain.SubscriptionTrialing
		sub.TrialEndsAt = &ends
	}

	if err := s.Store.Subscriptions().Create(ctx, &sub); err != nil {
		logFailure(ctx, "failed to start subscription", err, slog.String("organization_id", organizationID))
		return domain.Subscription{}, err
	}

	log.Info("subscription started",
		slog.String("organization_id", organizationID),
		slog.String("plan", plan),
		slog.String("status", sub.Status),
	)
	return sub, nil
}

func (s *SubscriptionService) Get(ctx context.Context, scope domain.Scope, organizationID string) (domain.Subscription, error) {
	if err := access(scope, organizationID, false); err != nil {
		return domain.Subscription{}, err
	}
	return s.Store.Subscriptions().GetByOrganization(ctx, organizationID)
}

// Renew converts a trial or extends a subscription until the given time.
func (s *SubscriptionService) Renew(ctx context.Context, scope domain.Scope, organizationID string, until time.Time) (domain.Subscription, error) {
	if err := access(scope, organizationID, true); err != nil {
		return domain.Subscription{}, err
	}
	now := s.Clock.now()
	if !until.After(now) {
		return domain.Subscription{}, domain.NewValidationError("endDate", "must be in the future")
	}

	var sub domain.Subscription
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		sub, err = tx.Subscriptions().GetByOrganization(ctx, organizationID)
		if err != nil {
			return err
		}
		until = until.UTC()
		sub.Status = domain.SubscriptionActive
		sub.EndDate = &until
		sub.TrialEndsAt = nil
		return tx.Subscriptions().Update(ctx, &sub)
	})
	if err != nil {
		logFailure(ctx, "failed to renew subscription", err, slog.String("organization_id", organizationID))
		return domain.Subscription{}, err
	}

	slogx.FromContext(ctx).Info("subscription renewed",
		slog.String("organization_id", organizationID),
		slog.Time("until", until),
	)
	return sub, nil
}

// Cancel ends the subscription now.
func (s *SubscriptionService) Cancel(ctx context.Context, scope domain.Scope, organizationID string) (domain.Subscription, error) {
	if err := access(scope, organizationID, true); err != nil {
		return domain.Subscription{}, err
	}
	now := s.Clock.now()

	var sub domain.Subscription
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		sub, err = tx.Subscriptions().GetByOrganization(ctx, organizationID)
		if err != nil {
			return err
		}
		if sub.State(now) == domain.SubscriptionStateEnded {
			return fmt.Errorf("subscription already ended: %w", domain.ErrConflict)
		}
		sub.Status = domain.SubscriptionCanceled
		sub.EndDate = &now
		return tx.Subscriptions().Update(ctx, &sub)
	})
	if err != nil {
		logFailure(ctx, "failed to cancel subscription", err, slog.String("organization_id", organizationID))
		return domain.Subscription{}, err
	}

	slogx.FromContext(ctx).Info("subscription canceled", slog.String("organization_id", organizationID))
	return sub, nil
}

// Upsert moves the organization to plan, creating an active subscription
// when it has none.
func (s *SubscriptionService) Upsert(ctx context.Context, scope domain.Scope, organizationID, plan string) (domain.Subscription, error) {
	if err := access(scope, organizationID, true); err != nil {
		return domain.Subscription{}, err
	}
	if plan == "" {
		return domain.Subscription{}, domain.NewValidationError("plan", "is required")
	}
	now := s.Clock.now()

	sub := domain.Subscription{
		OrganizationID: organizationID,
		Plan:           plan,
		Status:         domain.SubscriptionActive,
		StartDate:      now,
	}
	current, err := s.Store.Subscriptions().GetByOrganization(ctx, organizationID)
	switch {
	case err == nil:
		sub.StartDate = current.StartDate
		sub.EndDate = current.EndDate
		if current.Grants(now) {
			sub.Status = current.Status
			sub.TrialEndsAt = current.TrialEndsAt
		} else {
			sub.EndDate = nil
		}
	case !errors.Is(err, domain.ErrNotFound):
		return domain.Subscription{}, err
	}

	if err := s.Store.Subscriptions().Upsert(ctx, &sub); err != nil {
		logFailure(ctx, "failed to upsert subscription", err, slog.String("organization_id", organizationID))
		return domain.Subscription{}, reference("organization", organizationID, err)
	}
	return sub, nil
}

// State derives the lifecycle phase of the organization's subscription.
func (s *SubscriptionService) State(ctx context.Context, scope domain.Scope, organizationID string) (domain.SubscriptionState, error) {
	if err := access(scope, organizationID, false); err != nil {
		return 0, err
	}
	sub, err := s.Store.Subscriptions().GetByOrganization(ctx, organizationID)
	if err != nil {
		return 0, err
	}
	return sub.State(s.Clock.now()), nil
}

// HasActive reports whether organization features are available. An
// organization without a subscription has none.
func (s *SubscriptionService) HasActive(ctx context.Context, scope domain.Scope, organizationID string) (bool, error) {
	if err := access(scope, organizationID, false); err != nil {
		return false, err
	}
	sub, err := s.Store.Subscriptions().GetByOrganization(ctx, organizationID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sub.Grants(s.Clock.now()), nil
}

// ExpireEnded marks lapsed trials and subscriptions past their end date as
// expired. It runs from housekeeping across every organization.
func (s *SubscriptionService) ExpireEnded(ctx context.Context) (int64, error) {
	now := s.Clock.now()
	n, err := s.Store.Subscriptions().UpdateMany(ctx,
		store.AllOf(
			store.NotIn{Field: "status", Values: store.Values(domain.SubscriptionCanceled, domain.SubscriptionExpired)},
			store.Or{
				store.Lte{Field: "endDate", Value: now},
				store.AllOf(
					store.Eq{Field: "status", Value: domain.SubscriptionTrialing},
					store.Lte{Field: "trialEndsAt", Value: now},
				),
			},
		),
		store.Set{"status": domain.SubscriptionExpired},
	)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slogx.FromContext(ctx).Info("expired subscriptions", slog.Int64("count", n))
	}
	return n, nil
}
