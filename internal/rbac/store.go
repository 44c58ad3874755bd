package rbac

import (
	"context"
	"time"

	"github.com/parishdesk/parishdesk/internal/shared"
)

// NewUser describes an account created by the core.
type NewUser struct {
	Email        string
	Name         string
	PasswordHash string
	CreatedBy    *int64
}

// Store is the persistence boundary of the access control core.
type Store interface {
	CatalogSource
	UserSource

	// WithTx runs fn in a transaction. Locks taken through TxStore are held
	// until fn returns.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error
	ListUsers(ctx context.Context) ([]User, error)
	ListActiveUserIDsSince(ctx context.Context, since time.Time, limit int) ([]int64, error)
}

// TxStore exposes the reads and writes available inside a transaction.
// Reads observe the latest committed data once the relevant lock is held.
type TxStore interface {
	CatalogSource
	UserSource

	// LockBypassRole locks the bypass role row, serialising every mutation
	// that can change the set of bypass holders.
	LockBypassRole(ctx context.Context) (Role, bool, error)
	CountActiveBypassHolders(ctx context.Context) (int, error)

	GetUserForUpdate(ctx context.Context, id int64) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
	CreateUser(ctx context.Context, u NewUser) (User, error)
	SetUserActive(ctx context.Context, id int64, active bool) error
	DeleteUser(ctx context.Context, id int64) error
	HasHistory(ctx context.Context, id int64) (bool, error)

	GetRole(ctx context.Context, name string) (Role, error)
	AddUserRole(ctx context.Context, userID, roleID int64) error
	RemoveUserRole(ctx context.Context, userID, roleID int64) error

	UpsertPermission(ctx context.Context, p SeedPermission) (Permission, error)
	DeletePermission(ctx context.Context, name string) (bool, error)
	UpsertRole(ctx context.Context, r Role) (Role, error)
	InsertRole(ctx context.Context, r Role) (Role, error)
	GrantPermissions(ctx context.Context, roleID int64, names []string) error
	ReplacePermissions(ctx context.Context, roleID int64, names []string) error
	DeleteRole(ctx context.Context, roleID int64) error
	CountRoleHolders(ctx context.Context, roleID int64) (int, error)

	RecordAudit(ctx context.Context, log shared.AuditLog) error
}
