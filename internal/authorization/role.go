package authorization

import (
	"github.com/google/uuid"
	providerdomain "github.com/smallbiznis/marketplace/internal/provider/domain"
)

// StaffRole is an actor's standing relative to one organization.
type StaffRole int

const (
	RoleGuest StaffRole = iota
	RoleStaff
	RoleOwner

	staffRoleCount
)

var roleSubjects = [...]string{
	RoleGuest: "role:guest",
	RoleStaff: "role:staff",
	RoleOwner: "role:owner",
}

var roleNames = [...]string{
	RoleGuest: "GUEST",
	RoleStaff: "STAFF",
	RoleOwner: "OWNER",
}

// Both tables must cover every role; a mismatch fails to compile.
var (
	_ [len(roleSubjects) - int(staffRoleCount)]struct{}
	_ [int(staffRoleCount) - len(roleSubjects)]struct{}
	_ [len(roleNames) - int(staffRoleCount)]struct{}
	_ [int(staffRoleCount) - len(roleNames)]struct{}
)

func (r StaffRole) Valid() bool { return r >= 0 && r < staffRoleCount }

// Subject is the casbin policy subject of the role.
func (r StaffRole) Subject() string {
	if !r.Valid() {
		return roleSubjects[RoleGuest]
	}
	return roleSubjects[r]
}

func (r StaffRole) String() string {
	if !r.Valid() {
		return roleNames[RoleGuest]
	}
	return roleNames[r]
}

// RoleOf resolves actor's role in organizationID: the organization itself is
// its owner, linked individuals are staff, everyone else is a guest.
func RoleOf(actor *providerdomain.Provider, organizationID uuid.UUID) StaffRole {
	switch {
	case actor == nil:
		return RoleGuest
	case actor.ID == organizationID:
		return RoleOwner
	case actor.IsStaffOf(organizationID):
		return RoleStaff
	default:
		return RoleGuest
	}
}
