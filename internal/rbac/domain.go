package rbac

import (
	"sort"
	"strings"
	"time"
)

// Role represents a clearance-ranked permission grouping.
type Role struct {
	ID             int64
	Name           string
	DisplayName    string
	Description    string
	ClearanceLevel int
	Bypass         bool
	Permissions    []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Clearance returns the comparison value of the role.
func (r Role) Clearance() Clearance {
	if r.Bypass {
		return Clearance{Bypass: true}
	}
	return Clearance{Level: r.ClearanceLevel}
}

// Permission represents an atomic capability token.
type Permission struct {
	ID          int64
	Name        string
	Description string
}

// User is an account as seen by the access control core.
type User struct {
	ID          int64
	Email       string
	Name        string
	IsActive    bool
	Roles       []string
	CreatedBy   *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt *time.Time
}

// Actor returns the user as an authorization subject. Inactive users carry
// no roles.
func (u User) Actor() Actor {
	if !u.IsActive {
		return Actor{ID: u.ID}
	}
	return Actor{ID: u.ID, Roles: u.Roles}
}

// HasRole reports whether the user holds the named role.
func (u User) HasRole(name string) bool {
	name = NormalizeName(name)
	for _, r := range u.Roles {
		if NormalizeName(r) == name {
			return true
		}
	}
	return false
}

// Actor is the subject of an authorization decision.
type Actor struct {
	ID    int64
	Roles []string
}

// AssignableRole is the role-selection payload for user management screens.
type AssignableRole struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	DisplayName      string `json:"display_name"`
	ClearanceLevel   int    `json:"clearance_level"`
	PermissionsCount int    `json:"permissions_count"`
}

// DeleteOutcome reports what DeleteUser did to the account.
type DeleteOutcome string

const (
	// DeleteRemoved means the row was hard deleted.
	DeleteRemoved DeleteOutcome = "deleted"
	// DeleteDeactivated means history references forced a soft delete.
	DeleteDeactivated DeleteOutcome = "deactivated"
)

// NormalizeName trims and lower-cases role and permission names.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func normalizeNames(names []string) []string {
	unique := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = NormalizeName(n)
		if n == "" {
			continue
		}
		unique[n] = struct{}{}
	}
	out := make([]string, 0, len(unique))
	for n := range unique {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
