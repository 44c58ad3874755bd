package rbac

// Guard is the single decision point for clearance checks. Decisions fail
// closed: missing actors, roles, or lookups deny.
type Guard struct {
	roles   RoleLookup
	metrics *Metrics
}

// NewGuard builds a guard resolving roles through lookup.
func NewGuard(lookup RoleLookup, metrics *Metrics) Guard {
	return Guard{roles: lookup, metrics: metrics}
}

// EffectiveClearance is the maximum single-role clearance across roleNames.
// Unknown roles contribute nothing.
func (g Guard) EffectiveClearance(roleNames []string) Clearance {
	var c Clearance
	if g.roles == nil {
		return c
	}
	for _, name := range roleNames {
		role, err := g.roles.GetRole(name)
		if err != nil {
			continue
		}
		c = c.Max(role.Clearance())
		if c.Bypass {
			return c
		}
	}
	return c
}

// CanAssignRole reports whether actor may assign or revoke roleName.
func (g Guard) CanAssignRole(actor Actor, roleName string) bool {
	allowed := g.canAssignRole(actor, roleName)
	g.metrics.decision("assign_role", allowed)
	return allowed
}

func (g Guard) canAssignRole(actor Actor, roleName string) bool {
	if g.roles == nil || actor.ID <= 0 || len(actor.Roles) == 0 {
		return false
	}
	target, err := g.roles.GetRole(roleName)
	if err != nil {
		return false
	}
	actorClearance := g.EffectiveClearance(actor.Roles)
	if actorClearance.Bypass {
		return true
	}
	if target.Bypass {
		return false
	}
	return actorClearance.Level > target.ClearanceLevel
}

// CanManageUser reports whether actor outranks every role target holds.
// Self-targeting is not considered here.
func (g Guard) CanManageUser(actor Actor, target Actor) bool {
	allowed := g.canManageUser(actor, target)
	g.metrics.decision("manage_user", allowed)
	return allowed
}

func (g Guard) canManageUser(actor Actor, target Actor) bool {
	if g.roles == nil || actor.ID <= 0 || len(actor.Roles) == 0 || target.ID <= 0 {
		return false
	}
	actorClearance := g.EffectiveClearance(actor.Roles)
	if actorClearance.Bypass {
		return true
	}
	return actorClearance.Outranks(g.EffectiveClearance(target.Roles))
}

// AssignableRoles returns the roles of catalog actor may assign, ordered by
// descending clearance then name.
func (g Guard) AssignableRoles(actor Actor, catalog Catalog) []Role {
	out := make([]Role, 0, len(catalog))
	for _, role := range catalog {
		if g.canAssignRole(actor, role.Name) {
			out = append(out, role)
		}
	}
	sortRoles(out)
	return out
}
