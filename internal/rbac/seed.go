package rbac

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/parishdesk/parishdesk/internal/shared"
)

// Role names of the default catalog.
const (
	RoleSuperAdmin = "super-admin"
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleSecretary  = "secretary"
	RoleTreasurer  = "treasurer"
	RoleStaff      = "staff"
	RoleViewer     = "viewer"
)

// SeedRole is one row of the initial role catalog.
type SeedRole struct {
	Name        string
	DisplayName string
	Description string
	Level       int
	Bypass      bool
	Permissions []string
}

// SeedPermission is one row of the initial permission catalog.
type SeedPermission struct {
	Name        string
	Description string
}

// DefaultPermissions returns the permission catalog of a fresh install.
func DefaultPermissions() []SeedPermission {
	scopes := shared.AllScopes()
	out := make([]SeedPermission, 0, len(scopes))
	for _, s := range scopes {
		out = append(out, SeedPermission{Name: s, Description: DisplayName(s)})
	}
	return out
}

// DefaultSeed returns the role catalog of a fresh install.
func DefaultSeed() []SeedRole {
	readOnly := []string{
		shared.PermMembersView,
		shared.PermFamiliesView,
		shared.PermSacramentsView,
		shared.PermGroupsView,
		shared.PermActivitiesView,
	}
	return []SeedRole{
		{
			Name:        RoleSuperAdmin,
			Description: "Unrestricted parish administrator",
			Bypass:      true,
			Level:       100,
			Permissions: shared.AllScopes(),
		},
		{
			Name:        RoleAdmin,
			Description: "Parish administrator",
			Level:       4,
			Permissions: append(shared.RecordScopes(),
				shared.PermUsersView, shared.PermUsersManage, shared.PermUsersDelete,
				shared.PermRolesAssign, shared.PermRolesManage,
			),
		},
		{
			Name:        RoleManager,
			Description: "Coordinates members, groups and activities",
			Level:       3,
			Permissions: append(append([]string{}, readOnly...),
				shared.PermMembersManage, shared.PermFamiliesManage,
				shared.PermGroupsManage, shared.PermActivitiesManage,
				shared.PermReportsAccess, shared.PermUsersView, shared.PermRolesAssign,
			),
		},
		{
			Name:        RoleSecretary,
			Description: "Keeps the sacramental and family registers",
			Level:       3,
			Permissions: append(append([]string{}, readOnly...),
				shared.PermMembersManage, shared.PermFamiliesManage,
				shared.PermSacramentsManage, shared.PermReportsAccess, shared.PermReportsExport,
			),
		},
		{
			Name:        RoleTreasurer,
			Description: "Records tithes and donations",
			Level:       3,
			Permissions: append(append([]string{}, readOnly...),
				shared.PermTithesView, shared.PermTithesManage,
				shared.PermReportsAccess, shared.PermReportsExport,
			),
		},
		{
			Name:        RoleStaff,
			Description: "Parish office staff",
			Level:       2,
			Permissions: append(append([]string{}, readOnly...),
				shared.PermMembersManage, shared.PermActivitiesManage,
			),
		},
		{
			Name:        RoleViewer,
			Description: "Read-only access",
			Level:       1,
			Permissions: append([]string{}, readOnly...),
		},
	}
}

// ApplyLevelOverrides returns seed with clearance levels replaced from
// overrides. The bypass role keeps its level since it is never compared.
func ApplyLevelOverrides(seed []SeedRole, overrides map[string]int) []SeedRole {
	if len(overrides) == 0 {
		return seed
	}
	normalized := make(map[string]int, len(overrides))
	for name, level := range overrides {
		if level < 0 {
			continue
		}
		normalized[NormalizeName(name)] = level
	}
	out := make([]SeedRole, len(seed))
	copy(out, seed)
	for i := range out {
		if out[i].Bypass {
			continue
		}
		if level, ok := normalized[NormalizeName(out[i].Name)]; ok {
			out[i].Level = level
		}
	}
	return out
}

// SeedRoles converts the seed table to catalog roles.
func SeedRoles(seed []SeedRole) []Role {
	roles := make([]Role, 0, len(seed))
	for _, s := range seed {
		name := NormalizeName(s.Name)
		display := s.DisplayName
		if display == "" {
			display = DisplayName(name)
		}
		roles = append(roles, Role{
			Name:           name,
			DisplayName:    display,
			Description:    s.Description,
			ClearanceLevel: s.Level,
			Bypass:         s.Bypass,
			Permissions:    normalizeNames(s.Permissions),
		})
	}
	return roles
}

// DisplayName turns a catalog name such as "super-admin" into "Super Admin".
func DisplayName(name string) string {
	name = strings.NewReplacer("-", " ", "_", " ", ".", " ").Replace(NormalizeName(name))
	// Casers are stateful; one per call.
	return cases.Title(language.English).String(name)
}
