package domain

import "strings"

// Role is the effective permission level a user holds on a list.
type Role string

const (
	// RoleAdmin grants full create/edit/delete rights on a list and its tasks.
	RoleAdmin Role = "Admin"
	// RoleViewer grants read access plus task completion toggling.
	RoleViewer Role = "Viewer"
	// RoleNone means the user is neither the owner nor a collaborator.
	RoleNone Role = ""
)

// Collaborator is an invited member of a list. The owner is never listed as a
// collaborator; ownership itself confers RoleAdmin.
type Collaborator struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// TodoList is a named collection of tasks with one owner and zero or more
// collaborators.
type TodoList struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	OwnerID       string         `json:"ownerId"`
	Collaborators []Collaborator `json:"collaborators"`
}

// NormalizeEmail trims surrounding whitespace and lowercases an address.
// Collaborator matching always goes through this so access does not silently
// depend on the identity provider's stored casing.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// VisibleTo reports whether the user may see the list: the user owns it or a
// collaborator entry matches the user's email.
func (l TodoList) VisibleTo(u User) bool {
	if l.OwnerID != "" && l.OwnerID == u.ID {
		return true
	}
	email := NormalizeEmail(u.Email)
	for _, c := range l.Collaborators {
		if NormalizeEmail(c.Email) == email {
			return true
		}
	}
	return false
}

// ResolveRole computes the effective role the user holds on the list. A nil
// user yields RoleNone, the owner always resolves to RoleAdmin, otherwise the
// first collaborator whose email matches decides.
func ResolveRole(l TodoList, u *User) Role {
	if u == nil {
		return RoleNone
	}
	if l.OwnerID != "" && l.OwnerID == u.ID {
		return RoleAdmin
	}
	email := NormalizeEmail(u.Email)
	for _, c := range l.Collaborators {
		if NormalizeEmail(c.Email) == email {
			return c.Role
		}
	}
	return RoleNone
}
