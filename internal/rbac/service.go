package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/parishdesk/parishdesk/internal/shared"
)

// Audit actions written by the service.
const (
	AuditRoleAssign     = "rbac.role.assign"
	AuditRoleRevoke     = "rbac.role.revoke"
	AuditUserDeactivate = "rbac.user.deactivate"
	AuditUserDelete     = "rbac.user.delete"
)

// Service orchestrates authorization-guarded role and user mutations.
type Service struct {
	store           Store
	registry        *Registry
	resolver        *Resolver
	metrics         *Metrics
	logger          *slog.Logger
	onCatalogChange func(context.Context)
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Store    Store
	Registry *Registry
	Resolver *Resolver
	Metrics  *Metrics
	Logger   *slog.Logger
	// OnCatalogChange runs after a catalog mutation has been committed and
	// caches invalidated.
	OnCatalogChange func(context.Context)
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry(cfg.Logger)
	}
	if cfg.Resolver == nil {
		cfg.Resolver = NewResolver(ResolverConfig{Users: cfg.Store, Registry: cfg.Registry, Logger: cfg.Logger, Metrics: cfg.Metrics})
	}
	return &Service{
		store:           cfg.Store,
		registry:        cfg.Registry,
		resolver:        cfg.Resolver,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
		onCatalogChange: cfg.OnCatalogChange,
	}
}

// Registry exposes the catalog the service authorizes against.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Guard returns a guard over the current catalog.
func (s *Service) Guard() Guard {
	return NewGuard(s.registry, s.metrics)
}

// ReloadCatalog refreshes the registry from the store.
func (s *Service) ReloadCatalog(ctx context.Context) error {
	if err := s.registry.Reload(ctx, s.store); err != nil {
		return storageError("reload catalog", err)
	}
	return nil
}

// Capabilities returns the capability map of userID.
func (s *Service) Capabilities(ctx context.Context, userID int64) (Capabilities, error) {
	return s.resolver.ResolveCapabilities(ctx, userID)
}

// GetUser loads a user with its roles.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, err
		}
		return User{}, storageError("get user", err)
	}
	return u, nil
}

// ListUsers returns every account.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, storageError("list users", err)
	}
	return users, nil
}

// ListAssignableRoles returns the roles actorID may assign, ordered by
// descending clearance then name. Unknown or inactive actors get an empty list.
func (s *Service) ListAssignableRoles(ctx context.Context, actorID int64) ([]AssignableRole, error) {
	actor, err := s.store.GetUser(ctx, actorID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return []AssignableRole{}, nil
		}
		return nil, storageError("load actor", err)
	}
	roles := s.Guard().AssignableRoles(actor.Actor(), s.registry.Snapshot())
	out := make([]AssignableRole, 0, len(roles))
	for _, r := range roles {
		out = append(out, AssignableRole{
			ID:               r.ID,
			Name:             r.Name,
			DisplayName:      r.DisplayName,
			ClearanceLevel:   r.ClearanceLevel,
			PermissionsCount: len(r.Permissions),
		})
	}
	return out, nil
}

// AssignRole grants roleName to targetUserID on behalf of actorID.
func (s *Service) AssignRole(ctx context.Context, actorID, targetUserID int64, roleName string) (err error) {
	defer func() { s.metrics.mutation("assign_role", err) }()
	roleName = NormalizeName(roleName)

	changed := false
	err = s.withTx(ctx, func(ctx context.Context, tx TxStore) error {
		role, err := lookupRole(ctx, tx, roleName)
		if err != nil {
			return err
		}
		if role.Bypass {
			if _, _, err := tx.LockBypassRole(ctx); err != nil {
				return err
			}
		}
		target, err := tx.GetUserForUpdate(ctx, targetUserID)
		if err != nil {
			return err
		}
		actor, guard, err := s.txActor(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if !guard.CanAssignRole(actor, role.Name) || !guard.CanManageUser(actor, subject(target)) {
			return ErrPermissionDenied
		}
		if target.HasRole(role.Name) {
			return nil
		}
		if err := tx.AddUserRole(ctx, target.ID, role.ID); err != nil {
			return err
		}
		changed = true
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   AuditRoleAssign,
			Entity:   "user",
			EntityID: strconv.FormatInt(target.ID, 10),
			Meta:     map[string]any{"role": role.Name},
		})
	})
	if err != nil {
		return err
	}
	if changed {
		s.logger.Info("rbac role assigned", slog.Int64("actor_id", actorID), slog.Int64("user_id", targetUserID), slog.String("role", roleName))
	}
	return s.resolver.Invalidate(ctx, targetUserID)
}

// RevokeRole removes roleName from targetUserID on behalf of actorID.
func (s *Service) RevokeRole(ctx context.Context, actorID, targetUserID int64, roleName string) (err error) {
	defer func() { s.metrics.mutation("revoke_role", err) }()
	roleName = NormalizeName(roleName)

	changed := false
	err = s.withTx(ctx, func(ctx context.Context, tx TxStore) error {
		role, err := lookupRole(ctx, tx, roleName)
		if err != nil {
			return err
		}
		if role.Bypass {
			if _, _, err := tx.LockBypassRole(ctx); err != nil {
				return err
			}
		}
		target, err := tx.GetUserForUpdate(ctx, targetUserID)
		if err != nil {
			return err
		}
		held := target.HasRole(role.Name)
		if held && role.Bypass && target.IsActive {
			if err := ensureOtherBypassHolder(ctx, tx); err != nil {
				return err
			}
		}
		self := actorID == target.ID
		if self && held && len(target.Roles) <= 1 {
			return ErrSelfTargetProhibited
		}
		actor, guard, err := s.txActor(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if !guard.CanAssignRole(actor, role.Name) {
			return ErrPermissionDenied
		}
		if !self && !guard.CanManageUser(actor, subject(target)) {
			return ErrPermissionDenied
		}
		if !held {
			return nil
		}
		if err := tx.RemoveUserRole(ctx, target.ID, role.ID); err != nil {
			return err
		}
		changed = true
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   AuditRoleRevoke,
			Entity:   "user",
			EntityID: strconv.FormatInt(target.ID, 10),
			Meta:     map[string]any{"role": role.Name},
		})
	})
	if err != nil {
		return err
	}
	if changed {
		s.logger.Info("rbac role revoked", slog.Int64("actor_id", actorID), slog.Int64("user_id", targetUserID), slog.String("role", roleName))
	}
	return s.resolver.Invalidate(ctx, targetUserID)
}

// DeactivateUser soft-disables targetUserID on behalf of actorID.
func (s *Service) DeactivateUser(ctx context.Context, actorID, targetUserID int64) (err error) {
	defer func() { s.metrics.mutation("deactivate_user", err) }()
	err = s.withTx(ctx, func(ctx context.Context, tx TxStore) error {
		target, err := s.guardUserRemoval(ctx, tx, actorID, targetUserID)
		if err != nil {
			return err
		}
		if !target.IsActive {
			return nil
		}
		if err := tx.SetUserActive(ctx, target.ID, false); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   AuditUserDeactivate,
			Entity:   "user",
			EntityID: strconv.FormatInt(target.ID, 10),
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("rbac user deactivated", slog.Int64("actor_id", actorID), slog.Int64("user_id", targetUserID))
	return s.resolver.Invalidate(ctx, targetUserID)
}

// DeleteUser removes targetUserID on behalf of actorID. Accounts referenced by
// historical records are deactivated instead.
func (s *Service) DeleteUser(ctx context.Context, actorID, targetUserID int64) (outcome DeleteOutcome, err error) {
	defer func() { s.metrics.mutation("delete_user", err) }()
	err = s.withTx(ctx, func(ctx context.Context, tx TxStore) error {
		target, err := s.guardUserRemoval(ctx, tx, actorID, targetUserID)
		if err != nil {
			return err
		}
		history, err := tx.HasHistory(ctx, target.ID)
		if err != nil {
			return err
		}
		if history {
			outcome = DeleteDeactivated
			if target.IsActive {
				if err := tx.SetUserActive(ctx, target.ID, false); err != nil {
					return err
				}
			}
		} else {
			outcome = DeleteRemoved
			if err := tx.DeleteUser(ctx, target.ID); err != nil {
				return err
			}
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   AuditUserDelete,
			Entity:   "user",
			EntityID: strconv.FormatInt(target.ID, 10),
			Meta:     map[string]any{"outcome": string(outcome), "email": target.Email},
		})
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("rbac user deleted", slog.Int64("actor_id", actorID), slog.Int64("user_id", targetUserID), slog.String("outcome", string(outcome)))
	return outcome, s.resolver.Invalidate(ctx, targetUserID)
}

// guardUserRemoval runs the checks shared by deactivation and deletion and
// returns the locked target.
func (s *Service) guardUserRemoval(ctx context.Context, tx TxStore, actorID, targetUserID int64) (User, error) {
	bypass, hasBypass, err := tx.LockBypassRole(ctx)
	if err != nil {
		return User{}, err
	}
	target, err := tx.GetUserForUpdate(ctx, targetUserID)
	if err != nil {
		return User{}, err
	}
	if hasBypass && target.IsActive && target.HasRole(bypass.Name) {
		if err := ensureOtherBypassHolder(ctx, tx); err != nil {
			return User{}, err
		}
	}
	if actorID == target.ID {
		return User{}, ErrSelfTargetProhibited
	}
	actor, guard, err := s.txActor(ctx, tx, actorID)
	if err != nil {
		return User{}, err
	}
	if !guard.CanManageUser(actor, subject(target)) {
		return User{}, ErrPermissionDenied
	}
	return target, nil
}

// txActor loads the actor and a guard over the catalog as seen by tx.
func (s *Service) txActor(ctx context.Context, tx TxStore, actorID int64) (Actor, Guard, error) {
	user, err := tx.GetUser(ctx, actorID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Actor{}, Guard{}, ErrPermissionDenied
		}
		return Actor{}, Guard{}, err
	}
	if !user.IsActive {
		return Actor{}, Guard{}, ErrPermissionDenied
	}
	roles, err := tx.ListRoles(ctx)
	if err != nil {
		return Actor{}, Guard{}, err
	}
	return user.Actor(), NewGuard(NewCatalog(roles), s.metrics), nil
}

func (s *Service) withTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	err := s.store.WithTx(ctx, fn)
	if err == nil || classified(err) {
		return err
	}
	return storageError("transaction", err)
}

func lookupRole(ctx context.Context, tx TxStore, name string) (Role, error) {
	if name == "" {
		return Role{}, ErrInvalidRole
	}
	role, err := tx.GetRole(ctx, name)
	if errors.Is(err, ErrRoleNotFound) {
		return Role{}, fmt.Errorf("%w: %q", ErrInvalidRole, name)
	}
	return role, err
}

// ensureOtherBypassHolder fails unless removing one active bypass holder
// leaves at least one. The bypass role row must already be locked.
func ensureOtherBypassHolder(ctx context.Context, tx TxStore) error {
	n, err := tx.CountActiveBypassHolders(ctx)
	if err != nil {
		return err
	}
	if n <= 1 {
		return ErrLastAdminProtection
	}
	return nil
}

// subject is the clearance view of a target, including roles held while
// inactive.
func subject(u User) Actor {
	return Actor{ID: u.ID, Roles: u.Roles}
}
