package domain

import dErrors "custody/pkg/domain-errors"

// Role is the coarse identity class of a principal. A principal's role is fixed
// for the lifetime of a session credential.
//
// Usage: construct via ParseRole at trust boundaries; direct casting bypasses
// the allowlist.
type Role string

const (
	// RoleOwner uploads documents and reads its own.
	RoleOwner Role = "owner"
	// RoleReviewer reads documents only after a custodian approves an access request.
	RoleReviewer Role = "reviewer"
	// RoleCustodian attests documents and decides access requests.
	RoleCustodian Role = "custodian"
)

var validRoles = map[Role]bool{
	RoleOwner:     true,
	RoleReviewer:  true,
	RoleCustodian: true,
}

// Roles lists every supported role in a stable order.
func Roles() []Role {
	return []Role{RoleOwner, RoleReviewer, RoleCustodian}
}

// ParseRole constructs a Role from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role cannot be empty")
	}
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role")
	}
	return r, nil
}

func (r Role) IsValid() bool {
	return validRoles[r]
}

// SelfRegistrable reports whether a principal may claim this role at
// registration. Custodians are provisioned out of band.
func (r Role) SelfRegistrable() bool {
	return r == RoleOwner || r == RoleReviewer
}

func (r Role) String() string {
	return string(r)
}
