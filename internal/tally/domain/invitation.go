package domain

import "time"

// Invitation is a UserInvitation: an offer for an email address to join an
// organization. Only the fingerprint of the token is stored.
type Invitation struct {
	ID             string
	Email          string
	Role           UserRole
	TokenHash      string
	Status         InvitationStatus
	OrganizationID string
	InvitedByID    *string
	UserID         *string
	ExpiresAt      time.Time
	AcceptedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EffectiveStatus is the status as observed at now. A PENDING invitation past
// its expiry reads as EXPIRED even if the row has not been rewritten yet.
func (i Invitation) EffectiveStatus(now time.Time) InvitationStatus {
	if i.Status == InvitationPending && !now.Before(i.ExpiresAt) {
		return InvitationExpired
	}
	return i.Status
}

// Usable reports whether the invitation may be accepted at now.
func (i Invitation) Usable(now time.Time) bool {
	return i.EffectiveStatus(now) == InvitationPending
}

// Observed returns a copy with Status replaced by the effective status.
func (i Invitation) Observed(now time.Time) Invitation {
	i.Status = i.EffectiveStatus(now)
	return i
}
