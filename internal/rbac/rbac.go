package rbac

import "fmt"

type Role string
type Action string

const (
	RoleViewer Role = "VIEWER"
	RoleEditor Role = "EDITOR"
	RoleAdmin  Role = "ADMIN"
)

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
	ActionAdmin Action = "admin"
)

// Actor is the authenticated user a request runs as.
type Actor struct {
	ID     int64
	Role   Role
	Active bool
}

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEditor:
		return action == ActionRead || action == ActionWrite
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleEditor, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}

func ParseRole(role string) (Role, error) {
	switch Role(role) {
	case RoleViewer, RoleEditor, RoleAdmin:
		return Role(role), nil
	default:
		return "", fmt.Errorf("invalid role %q", role)
	}
}

// CanCreateActivity allows any active user to start a plan of their own.
func CanCreateActivity(actor Actor) bool {
	return actor.Active
}

// CanManagePlan covers update/delete on an activity and create/update/delete
// on its topics and subtasks. Ownership is resolved by the caller through the
// Topic -> Activity chain and passed in as the owning activity's owner id.
func CanManagePlan(actor Actor, ownerID int64) bool {
	if !actor.Active {
		return false
	}
	return actor.Role == RoleAdmin || actor.ID == ownerID
}

// CanDeleteActivity is stricter than the generic plan rule.
func CanDeleteActivity(actor Actor) bool {
	return actor.Active && actor.Role == RoleAdmin
}

func CanViewUser(actor Actor, targetID int64) bool {
	if !actor.Active {
		return false
	}
	return actor.Role == RoleAdmin || actor.ID == targetID
}

// CanUpdateProfile covers full_name/email edits.
func CanUpdateProfile(actor Actor, targetID int64) bool {
	if !actor.Active {
		return false
	}
	return actor.Role == RoleAdmin || actor.ID == targetID
}

// CanChangeRole: admin only, and an admin may never strip their own admin role.
func CanChangeRole(actor Actor, targetID int64, next Role) bool {
	if !actor.Active || actor.Role != RoleAdmin {
		return false
	}
	if actor.ID == targetID && next != RoleAdmin {
		return false
	}
	return true
}

// CanSetActive: admin only, and an admin may not deactivate themselves.
func CanSetActive(actor Actor, targetID int64, active bool) bool {
	if !actor.Active || actor.Role != RoleAdmin {
		return false
	}
	if actor.ID == targetID && !active {
		return false
	}
	return true
}

// CanDeleteUser: admins may delete any other account, everyone else only
// their own. An admin may not delete their own account.
func CanDeleteUser(actor Actor, targetID int64) bool {
	if !actor.Active {
		return false
	}
	if actor.Role == RoleAdmin {
		return actor.ID != targetID
	}
	return actor.ID == targetID
}

func CanChangePassword(actor Actor, targetID int64) bool {
	if !actor.Active {
		return false
	}
	return actor.Role == RoleAdmin || actor.ID == targetID
}

// NeedsOldPassword: only an admin acting on another user's account skips the
// old-password proof. An admin changing their own password proves it like
// everyone else.
func NeedsOldPassword(actor Actor, targetID int64) bool {
	return !(actor.Role == RoleAdmin && actor.ID != targetID)
}
