package roles

import (
	"context"

	"github.com/parishdesk/parishdesk/internal/rbac"
)

// Core is the slice of the access control service role management needs.
type Core interface {
	Registry() *rbac.Registry
	ListAssignableRoles(ctx context.Context, actorID int64) ([]rbac.AssignableRole, error)
	CreateRole(ctx context.Context, actorID int64, in rbac.RoleInput) (rbac.Role, error)
	SetRolePermissions(ctx context.Context, actorID int64, roleName string, permissions []string) error
	DeleteRole(ctx context.Context, actorID int64, roleName string) error
	RemovePermission(ctx context.Context, actorID int64, name string) error
}

// Service exposes the role and permission catalog.
type Service struct {
	core Core
}

// NewService builds Service instance.
func NewService(core Core) *Service {
	return &Service{core: core}
}

// ListRoles returns the catalog ordered by descending clearance.
func (s *Service) ListRoles() []Role {
	roles := s.core.Registry().Roles()
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		out = append(out, fromRBAC(r))
	}
	return out
}

// ListPermissions returns every known permission.
func (s *Service) ListPermissions() []Permission {
	perms := s.core.Registry().Permissions()
	out := make([]Permission, 0, len(perms))
	for _, p := range perms {
		out = append(out, Permission{Name: p.Name, Description: p.Description})
	}
	return out
}

// ListAssignable returns the roles actorID may assign.
func (s *Service) ListAssignable(ctx context.Context, actorID int64) ([]rbac.AssignableRole, error) {
	return s.core.ListAssignableRoles(ctx, actorID)
}

// CreateRole adds a role to the catalog.
func (s *Service) CreateRole(ctx context.Context, actorID int64, in rbac.RoleInput) (Role, error) {
	created, err := s.core.CreateRole(ctx, actorID, in)
	if err != nil {
		return Role{}, err
	}
	return fromRBAC(created), nil
}

// SetPermissions replaces the permissions granted by name.
func (s *Service) SetPermissions(ctx context.Context, actorID int64, name string, perms []string) error {
	return s.core.SetRolePermissions(ctx, actorID, name, perms)
}

// DeleteRole removes an unheld role.
func (s *Service) DeleteRole(ctx context.Context, actorID int64, name string) error {
	return s.core.DeleteRole(ctx, actorID, name)
}

// RemovePermission drops a permission from the catalog and every role.
func (s *Service) RemovePermission(ctx context.Context, actorID int64, name string) error {
	return s.core.RemovePermission(ctx, actorID, name)
}
