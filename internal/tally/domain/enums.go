package domain

// UserRole is the persisted role of a user.
type UserRole string

const (
	RoleAdmin              UserRole = "ADMIN"
	RoleUser               UserRole = "USER"
	RoleOrganizationAdmin  UserRole = "ORGANIZATION_ADMIN"
	RoleOrganizationMember UserRole = "ORGANIZATION_MEMBER"
)

func (r UserRole) String() string { return string(r) }

func (r UserRole) IsValid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleOrganizationAdmin, RoleOrganizationMember:
		return true
	}
	return false
}

// IsOrganizationRole reports whether the role only makes sense for a member
// of an organization.
func (r UserRole) IsOrganizationRole() bool {
	return r == RoleOrganizationAdmin || r == RoleOrganizationMember
}

// InvitationStatus is the persisted state of a UserInvitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "PENDING"
	InvitationAccepted InvitationStatus = "ACCEPTED"
	InvitationExpired  InvitationStatus = "EXPIRED"
)

func (s InvitationStatus) String() string { return string(s) }

func (s InvitationStatus) IsValid() bool {
	switch s {
	case InvitationPending, InvitationAccepted, InvitationExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s InvitationStatus) IsTerminal() bool {
	return s == InvitationAccepted || s == InvitationExpired
}
