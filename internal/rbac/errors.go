package rbac

import (
	"errors"
	"fmt"
)

var (
	// ErrRoleNotFound indicates a registry lookup for an unknown role.
	ErrRoleNotFound = errors.New("rbac: role not found")
	// ErrInvalidRole rejects writes that reference a role missing from the catalog.
	ErrInvalidRole = errors.New("rbac: invalid role")
	// ErrInvalidPermission rejects grants of permissions missing from the catalog.
	ErrInvalidPermission = errors.New("rbac: invalid permission")
	// ErrPermissionDenied is returned when the clearance guard denies the action.
	ErrPermissionDenied = errors.New("rbac: permission denied")
	// ErrSelfTargetProhibited blocks destructive actions against the actor's own account.
	ErrSelfTargetProhibited = errors.New("rbac: action not allowed on own account")
	// ErrLastAdminProtection blocks mutations that would leave no bypass holder.
	ErrLastAdminProtection = errors.New("rbac: last super administrator must remain")
	// ErrUserNotFound indicates the target user does not exist.
	ErrUserNotFound = errors.New("rbac: user not found")
	// ErrRoleInUse blocks deleting a role that is still assigned.
	ErrRoleInUse = errors.New("rbac: role still assigned")
	// ErrDuplicateRole rejects creating a role whose name is taken.
	ErrDuplicateRole = errors.New("rbac: role already exists")
	// ErrBootstrapAccount rejects an incomplete bootstrap configuration.
	ErrBootstrapAccount = errors.New("rbac: bootstrap account requires email and password")
	// ErrStorage wraps failures of the backing store or cache.
	ErrStorage = errors.New("rbac: storage error")
)

// storageError marks err as ErrStorage while keeping the cause inspectable.
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// classified reports whether err already carries one of the package's error
// kinds and must be returned as is.
func classified(err error) bool {
	for _, target := range []error{
		ErrRoleNotFound, ErrInvalidRole, ErrInvalidPermission, ErrPermissionDenied,
		ErrSelfTargetProhibited, ErrLastAdminProtection, ErrUserNotFound, ErrRoleInUse,
		ErrDuplicateRole, ErrBootstrapAccount, ErrStorage,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}
