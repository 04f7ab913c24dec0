package domain

import "time"

// User is an account. A user is a member of at most one organization and may
// separately own one (see Organization.OwnerID).
type User struct {
	ID               string
	Email            string
	Username         *string
	Name             string
	PasswordHash     string
	Role             UserRole
	OrganizationID   *string
	IsActive         bool
	ResetTokenHash   *string
	ResetTokenExpiry *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsMemberOf reports whether the user is a member of the organization.
func (u User) IsMemberOf(organizationID string) bool {
	return u.OrganizationID != nil && *u.OrganizationID == organizationID
}

// ResetTokenValid reports whether a stored reset token is still usable.
func (u User) ResetTokenValid(now time.Time) bool {
	return u.ResetTokenHash != nil && u.ResetTokenExpiry != nil && now.Before(*u.ResetTokenExpiry)
}

// Organization is the tenant root.
type Organization struct {
	ID        string
	Name      string
	OwnerID   *string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time

	// Populated only when requested with an include.
	Members      []User
	Subscription *Subscription
}

// IsOwnedBy reports whether userID owns the organization.
func (o Organization) IsOwnedBy(userID string) bool {
	return o.OwnerID != nil && *o.OwnerID == userID
}
