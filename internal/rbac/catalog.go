package rbac

import "sort"

// RoleLookup resolves role names to roles.
type RoleLookup interface {
	GetRole(name string) (Role, error)
}

// Catalog is an immutable snapshot of roles keyed by normalised name.
type Catalog map[string]Role

// NewCatalog indexes roles by name. Later duplicates win.
func NewCatalog(roles []Role) Catalog {
	c := make(Catalog, len(roles))
	for _, r := range roles {
		r.Name = NormalizeName(r.Name)
		r.Permissions = normalizeNames(r.Permissions)
		c[r.Name] = r
	}
	return c
}

// GetRole implements RoleLookup.
func (c Catalog) GetRole(name string) (Role, error) {
	r, ok := c[NormalizeName(name)]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return r, nil
}

// Bypass returns the bypass role when the catalog has one.
func (c Catalog) Bypass() (Role, bool) {
	for _, r := range c {
		if r.Bypass {
			return r, true
		}
	}
	return Role{}, false
}

// Sorted returns roles ordered by descending clearance then name, with the
// bypass role first.
func (c Catalog) Sorted() []Role {
	out := make([]Role, 0, len(c))
	for _, r := range c {
		out = append(out, r)
	}
	sortRoles(out)
	return out
}

func sortRoles(roles []Role) {
	sort.SliceStable(roles, func(i, j int) bool {
		a, b := roles[i].Clearance(), roles[j].Clearance()
		if a.Outranks(b) && !b.Bypass {
			return true
		}
		if b.Outranks(a) && !a.Bypass {
			return false
		}
		return roles[i].Name < roles[j].Name
	})
}
