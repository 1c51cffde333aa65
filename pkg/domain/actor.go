package domain

import (
	"strings"

	dErrors "billtrack/pkg/domain-errors"
)

// Role is the capability level of an authenticated user.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleOfficer Role = "officer"
	RoleStaff   Role = "staff"
	RoleViewer  Role = "viewer"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleOfficer, RoleStaff, RoleViewer:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// ParseRole accepts the lower-case wire form.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown role")
	}
	return r, nil
}

// Actor is the authenticated principal passed explicitly into every
// state-mutating operation.
type Actor struct {
	UserID UserID
	Role   Role
}
