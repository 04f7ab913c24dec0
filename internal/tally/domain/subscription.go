package domain

import (
	"strings"
	"time"
)

// Conventional subscription status values. The column is free-form.
const (
	SubscriptionTrialing = "trialing"
	SubscriptionActive   = "active"
	SubscriptionCanceled = "canceled"
	SubscriptionExpired  = "expired"
)

// SubscriptionState is the lifecycle phase derived from a subscription row.
type SubscriptionState uint8

const (
	SubscriptionStateTrial SubscriptionState = iota + 1
	SubscriptionStateActive
	SubscriptionStateEnded
)

func (s SubscriptionState) String() string {
	switch s {
	case SubscriptionStateTrial:
		return "trial"
	case SubscriptionStateActive:
		return "active"
	case SubscriptionStateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Subscription is the billing plan of an organization. There is at most one
// per organization.
type Subscription struct {
	ID             string
	OrganizationID string
	Plan           string
	Status         string
	StartDate      time.Time
	EndDate        *time.Time
	TrialEndsAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// State derives the lifecycle phase at now. Ended wins over everything: a
// canceled or expired status, or an end date that has passed. A trial whose
// end has passed without conversion is ended as well.
func (s Subscription) State(now time.Time) SubscriptionState {
	switch strings.ToLower(s.Status) {
	case SubscriptionCanceled, SubscriptionExpired:
		return SubscriptionStateEnded
	}
	if s.EndDate != nil && !now.Before(*s.EndDate) {
		return SubscriptionStateEnded
	}
	if s.TrialEndsAt != nil && now.Before(*s.TrialEndsAt) {
		return SubscriptionStateTrial
	}
	if strings.EqualFold(s.Status, SubscriptionTrialing) {
		if s.TrialEndsAt == nil {
			return SubscriptionStateTrial
		}
		return SubscriptionStateEnded
	}
	return SubscriptionStateActive
}

// Grants reports whether organization features are available at now.
func (s Subscription) Grants(now time.Time) bool {
	return s.State(now) != SubscriptionStateEnded
}
