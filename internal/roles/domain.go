package roles

import "github.com/parishdesk/parishdesk/internal/rbac"

// Role is the catalog entry returned by the admin API.
type Role struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	DisplayName    string   `json:"display_name"`
	Description    string   `json:"description,omitempty"`
	ClearanceLevel int      `json:"clearance_level"`
	Bypass         bool     `json:"is_bypass"`
	Permissions    []string `json:"permissions"`
}

// Permission is a permission catalog entry.
type Permission struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// PermissionSet is the body of a role permission replacement.
type PermissionSet struct {
	Permissions []string `json:"permissions" validate:"required,dive,required,max=128"`
}

func fromRBAC(r rbac.Role) Role {
	perms := r.Permissions
	if perms == nil {
		perms = []string{}
	}
	return Role{
		ID:             r.ID,
		Name:           r.Name,
		DisplayName:    r.DisplayName,
		Description:    r.Description,
		ClearanceLevel: r.ClearanceLevel,
		Bypass:         r.Bypass,
		Permissions:    perms,
	}
}
