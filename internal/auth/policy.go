// Package auth holds roles, the action policy and server-side sessions.
package auth

import (
	"errors"
	"fmt"
)

// Role is attached to a session at login and never changes for its lifetime.
type Role int

const (
	RoleAnonymous Role = iota
	RoleViewer
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleViewer:
		return "viewer"
	default:
		return "anonymous"
	}
}

// Action names something a request wants to do.
type Action string

const (
	ActionView              Action = "view"
	ActionCreateMember      Action = "create_member"
	ActionDeleteMember      Action = "delete_member"
	ActionRecordTransaction Action = "record_transaction"
	ActionDeleteTransaction Action = "delete_transaction"
	ActionRecordLeave       Action = "record_leave"
	ActionDeleteLeave       Action = "delete_leave"
)

var (
	ErrUnauthenticated = errors.New("login required")
	ErrForbidden       = errors.New("permission denied")
)

// Policy maps each action to the roles allowed to perform it.
type Policy map[Action][]Role

// DefaultPolicy lets any logged-in user read and only admins write.
func DefaultPolicy() Policy {
	admin := []Role{RoleAdmin}
	return Policy{
		ActionView:              {RoleViewer, RoleAdmin},
		ActionCreateMember:      admin,
		ActionDeleteMember:      admin,
		ActionRecordTransaction: admin,
		ActionDeleteTransaction: admin,
		ActionRecordLeave:       admin,
		ActionDeleteLeave:       admin,
	}
}

// Allows reports whether role may perform action. Unknown actions are denied.
func (p Policy) Allows(role Role, action Action) bool {
	for _, r := range p[action] {
		if r == role {
			return true
		}
	}
	return false
}

// Authorize returns ErrUnauthenticated for anonymous callers and
// ErrForbidden for roles the policy does not list.
func (p Policy) Authorize(role Role, action Action) error {
	if role == RoleAnonymous {
		return ErrUnauthenticated
	}
	if !p.Allows(role, action) {
		return fmt.Errorf("%s may not %s: %w", role, action, ErrForbidden)
	}
	return nil
}
