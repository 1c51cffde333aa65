// Package policy holds the role capability checks every mutating use case
// runs before touching state. Roles are passed in explicitly; nothing here
// reads session or request state.
package policy

import (
	id "billtrack/pkg/domain"
	dErrors "billtrack/pkg/domain-errors"
)

// CanMutate reports whether the role may change document or bill state.
// Staff and viewers are read-only.
func CanMutate(role id.Role) bool {
	switch role {
	case id.RoleAdmin, id.RoleManager, id.RoleOfficer:
		return true
	}
	return false
}

// SeesAll reports whether the role sees records created by other users.
func SeesAll(role id.Role) bool {
	return role == id.RoleAdmin || role == id.RoleManager
}

// CanView reports whether actor may read a record owned by owner.
func CanView(actor id.Actor, owner id.UserID) bool {
	return SeesAll(actor.Role) || actor.UserID == owner
}

// RequireMutator rejects read-only roles.
func RequireMutator(actor id.Actor) error {
	if !CanMutate(actor.Role) {
		return dErrors.New(dErrors.CodeForbidden, "role is not allowed to modify documents")
	}
	return nil
}

// RequireMutatorOf rejects read-only roles and, below manager, anyone other
// than the record's creator.
func RequireMutatorOf(actor id.Actor, owner id.UserID) error {
	if err := RequireMutator(actor); err != nil {
		return err
	}
	if !SeesAll(actor.Role) && actor.UserID != owner {
		return dErrors.New(dErrors.CodeForbidden, "only the creator or a manager may modify this bill")
	}
	return nil
}

// RequireAdmin rejects everyone but administrators.
func RequireAdmin(actor id.Actor) error {
	if actor.Role != id.RoleAdmin {
		return dErrors.New(dErrors.CodeForbidden, "administrator role required")
	}
	return nil
}
