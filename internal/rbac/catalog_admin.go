package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/parishdesk/parishdesk/internal/shared"
)

// Audit actions for catalog changes.
const (
	AuditRoleCreate       = "rbac.role.create"
	AuditRolePermissions  = "rbac.role.permissions"
	AuditRoleDelete       = "rbac.role.delete"
	AuditPermissionRemove = "rbac.permission.remove"
	AuditCatalogSeed      = "rbac.catalog.seed"
)

// RoleInput describes a role created through the admin surface. The bypass
// role cannot be created this way.
type RoleInput struct {
	Name           string   `json:"name" validate:"required,max=64"`
	DisplayName    string   `json:"display_name" validate:"max=128"`
	Description    string   `json:"description" validate:"max=512"`
	ClearanceLevel int      `json:"clearance_level" validate:"gte=0"`
	Permissions    []string `json:"permissions"`
}

// authority is what an actor may do to the catalog.
type authority struct {
	clearance Clearance
	held      map[string]struct{}
	known     map[string]struct{}
	catalog   Catalog
}

func (a authority) canTouch(role Role) bool {
	if a.clearance.Bypass {
		return true
	}
	return !role.Bypass && a.clearance.Level > role.ClearanceLevel
}

// checkGrants validates permission names the actor is about to grant.
func (a authority) checkGrants(names []string) error {
	for _, n := range names {
		if _, ok := a.known[n]; !ok {
			return fmt.Errorf("%w: %q", ErrInvalidPermission, n)
		}
	}
	if a.clearance.Bypass {
		return nil
	}
	for _, n := range names {
		if _, ok := a.held[n]; !ok {
			return ErrPermissionDenied
		}
	}
	return nil
}

// catalogAuthority loads the actor's standing against the catalog as seen by
// tx. Non-bypass actors need the manage roles permission.
func (s *Service) catalogAuthority(ctx context.Context, tx TxStore, actorID int64) (authority, error) {
	user, err := tx.GetUser(ctx, actorID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return authority{}, ErrPermissionDenied
		}
		return authority{}, err
	}
	if !user.IsActive {
		return authority{}, ErrPermissionDenied
	}
	roles, err := tx.ListRoles(ctx)
	if err != nil {
		return authority{}, err
	}
	perms, err := tx.ListPermissions(ctx)
	if err != nil {
		return authority{}, err
	}
	a := authority{
		held:    make(map[string]struct{}),
		known:   make(map[string]struct{}, len(perms)),
		catalog: NewCatalog(roles),
	}
	for _, p := range perms {
		a.known[NormalizeName(p.Name)] = struct{}{}
	}
	a.clearance = NewGuard(a.catalog, s.metrics).EffectiveClearance(user.Roles)
	if a.clearance.Bypass {
		a.held = a.known
		return a, nil
	}
	for _, name := range user.Roles {
		role, err := a.catalog.GetRole(name)
		if err != nil {
			continue
		}
		for _, p := range role.Permissions {
			a.held[p] = struct{}{}
		}
	}
	if _, ok := a.held[shared.PermRolesManage]; !ok {
		return authority{}, ErrPermissionDenied
	}
	return a, nil
}

// CreateRole adds a non-bypass role to the catalog.
func (s *Service) CreateRole(ctx context.Context, actorID int64, in RoleInput) (created Role, err error) {
	defer func() { s.metrics.mutation("create_role", err) }()
	name := NormalizeName(in.Name)
	if name == "" || in.ClearanceLevel < 0 {
		return Role{}, ErrInvalidRole
	}
	perms := normalizeNames(in.Permissions)
	display := in.DisplayName
	if display == "" {
		display = DisplayName(name)
	}

	err = s.withTx(ctx, func(ctx context.Context, tx TxStore) error {
		a, err := s.catalogAuthority(ctx, tx, actorID)
		if err != nil {
			return err
		}
		candidate := Role{Name: name, DisplayName: display, Description: in.Description, ClearanceLevel: in.ClearanceLevel}
		if !a.canTouch(candidate) {
			return ErrPermissionDenied
		}
		if err := a.checkGrants(perms); err != nil {
			return err
		}
		role, err := tx.InsertRole(ctx, candidate)
		if err != nil {
			return err
		}
		if err := tx.GrantPermissions(ctx, role.ID, perms); err != nil {
			return err
		}
		role.Permissions = perms
		created = role
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   AuditRoleCreate,
			Entity:   "role",
			EntityID: strconv.FormatInt(role.ID, 10),
			Meta:     map[string]any{"name": role.Name, "clearance_level": role.ClearanceLevel, "permissions": perms},
		})
	})
	if err != nil {
		return Role{}, err
	}
	s.logger.Info("rbac role created", slog.Int64("actor_id", actorID), slog.String("role", created.Name), slog.Int("level", created.ClearanceLevel))
	return created, s.afterCatalogChange(ctx)
}

// SetRolePermissions replaces the grants of roleName.
func (s *Service) SetRolePermissions(ctx context.Context, actorID int64, roleName string, permissions []string) (err error) {
	defer func() { s.metrics.mutation("set_role_permissions", err) }()
	roleName = NormalizeName(roleName)
	perms := normalizeNames(permissions)

	err = s.withTx(ctx, func(ctx context.Context, tx TxStore) error {
		role, err := lookupRole(ctx, tx, roleName)
		if err != nil {
			return err
		}
		a, err := s.catalogAuthority(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if !a.canTouch(role) {
			return ErrPermissionDenied
		}
		existing := make(map[string]struct{}, len(role.Permissions))
		for _, p := range role.Permissions {
			existing[NormalizeName(p)] = struct{}{}
		}
		added := make([]string, 0, len(perms))
		for _, p := range perms {
			if _, ok := existing[p]; !ok {
				added = append(added, p)
			}
		}
		if err := a.checkGrants(added); err != nil {
			return err
		}
		if err := tx.ReplacePermissions(ctx, role.ID, perms); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   AuditRolePermissions,
			Entity:   "role",
			EntityID: strconv.FormatInt(role.ID, 10),
			Meta:     map[string]any{"name": role.Name, "permissions": perms},
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("rbac role permissions replaced", slog.Int64("actor_id", actorID), slog.String("role", roleName), slog.Int("permissions", len(perms)))
	return s.afterCatalogChange(ctx)
}

// DeleteRole removes an unassigned, non-bypass role.
func (s *Service) DeleteRole(ctx context.Context, actorID int64, roleName string) (err error) {
	defer func() { s.metrics.mutation("delete_role", err) }()
	roleName = NormalizeName(roleName)

	err = s.withTx(ctx, func(ctx context.Context, tx TxStore) error {
		role, err := lookupRole(ctx, tx, roleName)
		if err != nil {
			return err
		}
		if role.Bypass {
			return ErrPermissionDenied
		}
		a, err := s.catalogAuthority(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if !a.canTouch(role) {
			return ErrPermissionDenied
		}
		holders, err := tx.CountRoleHolders(ctx, role.ID)
		if err != nil {
			return err
		}
		if holders > 0 {
			return ErrRoleInUse
		}
		if err := tx.DeleteRole(ctx, role.ID); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   AuditRoleDelete,
			Entity:   "role",
			EntityID: strconv.FormatInt(role.ID, 10),
			Meta:     map[string]any{"name": role.Name},
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("rbac role deleted", slog.Int64("actor_id", actorID), slog.String("role", roleName))
	return s.afterCatalogChange(ctx)
}

// RemovePermission deletes a permission from the catalog and every role that
// grants it. Only bypass holders may do this.
func (s *Service) RemovePermission(ctx context.Context, actorID int64, name string) (err error) {
	defer func() { s.metrics.mutation("remove_permission", err) }()
	name = NormalizeName(name)
	if name == "" {
		return ErrInvalidPermission
	}

	err = s.withTx(ctx, func(ctx context.Context, tx TxStore) error {
		a, err := s.catalogAuthority(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if _, ok := a.known[name]; !ok {
			return fmt.Errorf("%w: %q", ErrInvalidPermission, name)
		}
		if !a.clearance.Bypass {
			return ErrPermissionDenied
		}
		removed, err := tx.DeletePermission(ctx, name)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("%w: %q", ErrInvalidPermission, name)
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   AuditPermissionRemove,
			Entity:   "permission",
			EntityID: name,
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("rbac permission removed", slog.Int64("actor_id", actorID), slog.String("permission", name))
	return s.afterCatalogChange(ctx)
}

// SeedCatalog upserts permissions, roles and their grants. Existing grants are
// kept, so running it again is harmless.
func (s *Service) SeedCatalog(ctx context.Context, seed []SeedRole, perms []SeedPermission) (err error) {
	defer func() { s.metrics.mutation("seed_catalog", err) }()
	roles := SeedRoles(seed)
	bypassCount := 0
	for _, r := range roles {
		if r.Name == "" {
			return ErrInvalidRole
		}
		if r.Bypass {
			bypassCount++
		}
	}
	if bypassCount > 1 {
		return fmt.Errorf("%w: more than one bypass role", ErrInvalidRole)
	}

	err = s.withTx(ctx, func(ctx context.Context, tx TxStore) error {
		for _, p := range perms {
			p.Name = NormalizeName(p.Name)
			if p.Name == "" {
				continue
			}
			if _, err := tx.UpsertPermission(ctx, p); err != nil {
				return err
			}
		}
		for _, r := range roles {
			stored, err := tx.UpsertRole(ctx, r)
			if err != nil {
				return err
			}
			if err := tx.GrantPermissions(ctx, stored.ID, r.Permissions); err != nil {
				return err
			}
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			Action:   AuditCatalogSeed,
			Entity:   "catalog",
			EntityID: "default",
			Meta:     map[string]any{"roles": len(roles), "permissions": len(perms)},
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("rbac catalog seeded", slog.Int("roles", len(roles)), slog.Int("permissions", len(perms)))
	return s.afterCatalogChange(ctx)
}

// afterCatalogChange republishes the committed catalog to this process and
// drops every cached capability map.
func (s *Service) afterCatalogChange(ctx context.Context) error {
	if err := s.ReloadCatalog(ctx); err != nil {
		return err
	}
	if err := s.resolver.InvalidateAll(ctx); err != nil {
		return err
	}
	if s.onCatalogChange != nil {
		s.onCatalogChange(ctx)
	}
	return nil
}
