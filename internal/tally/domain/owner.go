package domain

import "fmt"

// OwnerKind tags an Owner.
type OwnerKind uint8

const (
	OwnerNone OwnerKind = iota
	OwnerPersonal
	OwnerOrganization
)

func (k OwnerKind) String() string {
	switch k {
	case OwnerPersonal:
		return "personal"
	case OwnerOrganization:
		return "organization"
	default:
		return "none"
	}
}

// Owner is the tenant a budget, expense or timesheet belongs to: either a
// single user or an organization, never both. It is stored as two nullable
// columns.
type Owner struct {
	kind OwnerKind
	id   string
}

// Personal returns an owner for a user's own records.
func Personal(userID string) Owner { return Owner{kind: OwnerPersonal, id: userID} }

// Organizational returns an owner for an organization's records.
func Organizational(organizationID string) Owner {
	return Owner{kind: OwnerOrganization, id: organizationID}
}

// OwnerFromColumns rebuilds an Owner from its storage columns. Exactly one of
// the two must be set.
func OwnerFromColumns(userID, organizationID *string) (Owner, error) {
	switch {
	case userID != nil && organizationID != nil:
		return Owner{}, NewValidationError("owner", "both userId and organizationId are set")
	case userID != nil:
		return Personal(*userID), nil
	case organizationID != nil:
		return Organizational(*organizationID), nil
	default:
		return Owner{}, NewValidationError("owner", "neither userId nor organizationId is set")
	}
}

func (o Owner) Kind() OwnerKind { return o.kind }
func (o Owner) ID() string      { return o.id }
func (o Owner) IsZero() bool    { return o.kind == OwnerNone }

// UserID is the user_id column value.
func (o Owner) UserID() *string {
	if o.kind != OwnerPersonal {
		return nil
	}
	id := o.id
	return &id
}

// OrganizationID is the organization_id column value.
func (o Owner) OrganizationID() *string {
	if o.kind != OwnerOrganization {
		return nil
	}
	id := o.id
	return &id
}

// Validate rejects the zero Owner and owners with an empty id.
func (o Owner) Validate() error {
	if o.kind == OwnerNone {
		return NewValidationError("owner", "is required")
	}
	if o.id == "" {
		return NewValidationError("owner", "id is empty")
	}
	return nil
}

func (o Owner) String() string {
	if o.kind == OwnerNone {
		return "none"
	}
	return fmt.Sprintf("%s:%s", o.kind, o.id)
}

// Scope is the resolved tenant of a request together with the acting user.
type Scope struct {
	Owner   Owner
	ActorID string
	Role    UserRole
}

// IsOrganization reports whether the scope is an organization tenant.
func (s Scope) IsOrganization() bool { return s.Owner.Kind() == OwnerOrganization }

// CanAdminister reports whether the actor may manage the tenant: any ADMIN,
// an ORGANIZATION_ADMIN of the scoped organization, or the owner of a
// personal scope.
func (s Scope) CanAdminister() bool {
	switch {
	case s.Role == RoleAdmin:
		return true
	case s.IsOrganization():
		return s.Role == RoleOrganizationAdmin
	default:
		return s.Owner.ID() == s.ActorID
	}
}
