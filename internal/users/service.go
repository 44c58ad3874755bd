package users

import (
	"context"

	"github.com/parishdesk/parishdesk/internal/rbac"
)

// Core is the slice of the access control service user management needs.
type Core interface {
	GetUser(ctx context.Context, id int64) (rbac.User, error)
	ListUsers(ctx context.Context) ([]rbac.User, error)
	Guard() rbac.Guard
	AssignRole(ctx context.Context, actorID, targetUserID int64, roleName string) error
	RevokeRole(ctx context.Context, actorID, targetUserID int64, roleName string) error
	DeactivateUser(ctx context.Context, actorID, targetUserID int64) error
	DeleteUser(ctx context.Context, actorID, targetUserID int64) (rbac.DeleteOutcome, error)
}

// Service handles user management on behalf of a signed-in actor.
type Service struct {
	core Core
}

// NewService builds Service instance.
func NewService(core Core) *Service {
	return &Service{core: core}
}

// ListUsers returns all users, flagging those actorID may manage.
func (s *Service) ListUsers(ctx context.Context, actorID int64) ([]User, error) {
	all, err := s.core.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	actor := rbac.Actor{ID: actorID}
	if me, err := s.core.GetUser(ctx, actorID); err == nil {
		actor = me.Actor()
	}
	guard := s.core.Guard()
	out := make([]User, 0, len(all))
	for _, u := range all {
		roles := u.Roles
		if roles == nil {
			roles = []string{}
		}
		out = append(out, User{
			ID:          u.ID,
			Email:       u.Email,
			Name:        u.Name,
			IsActive:    u.IsActive,
			Roles:       roles,
			LastLoginAt: u.LastLoginAt,
			Manageable:  guard.CanManageUser(actor, rbac.Actor{ID: u.ID, Roles: u.Roles}),
		})
	}
	return out, nil
}

// AssignRole grants role to targetID.
func (s *Service) AssignRole(ctx context.Context, actorID, targetID int64, role string) error {
	return s.core.AssignRole(ctx, actorID, targetID, role)
}

// RevokeRole removes role from targetID.
func (s *Service) RevokeRole(ctx context.Context, actorID, targetID int64, role string) error {
	return s.core.RevokeRole(ctx, actorID, targetID, role)
}

// Deactivate disables targetID.
func (s *Service) Deactivate(ctx context.Context, actorID, targetID int64) error {
	return s.core.DeactivateUser(ctx, actorID, targetID)
}

// Delete removes targetID, or deactivates it when history references it.
func (s *Service) Delete(ctx context.Context, actorID, targetID int64) (rbac.DeleteOutcome, error) {
	return s.core.DeleteUser(ctx, actorID, targetID)
}
