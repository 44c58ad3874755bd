package rbac

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parishdesk/parishdesk/internal/platform/db"
	"github.com/parishdesk/parishdesk/internal/shared"
)

// Schema declares the tables the access control core reads and writes.
//
//go:embed schema.sql
var Schema string

// ApplySchema creates missing tables and indexes.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("rbac: apply schema: %w", err)
	}
	return nil
}

// HistoryRef names a column whose rows keep a user from being hard deleted.
type HistoryRef struct {
	Table  string
	Column string
}

// ParseHistoryRefs parses "table.column" or "schema.table.column" entries.
func ParseHistoryRefs(specs []string) ([]HistoryRef, error) {
	refs := make([]HistoryRef, 0, len(specs))
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		idx := strings.LastIndex(spec, ".")
		if idx <= 0 || idx == len(spec)-1 {
			return nil, fmt.Errorf("rbac: history ref %q: want table.column", spec)
		}
		refs = append(refs, HistoryRef{Table: spec[:idx], Column: spec[idx+1:]})
	}
	return refs, nil
}

// RepositoryConfig tunes the PostgreSQL store.
type RepositoryConfig struct {
	HistoryRefs []HistoryRef
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the PostgreSQL implementation of Store.
type Repository struct {
	pool *pgxpool.Pool
	q    queries
}

// NewRepository constructs a repository over pool.
func NewRepository(pool *pgxpool.Pool, cfg RepositoryConfig) *Repository {
	return &Repository{pool: pool, q: queries{db: pool, refs: cfg.HistoryRefs}}
}

// ListRoles implements CatalogSource.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	return r.q.ListRoles(ctx)
}

// ListPermissions implements CatalogSource.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	return r.q.ListPermissions(ctx)
}

// CatalogSnapshot implements CatalogSnapshotter. Roles and permissions come
// from one REPEATABLE READ snapshot so a concurrent catalog change is seen
// whole or not at all.
func (r *Repository) CatalogSnapshot(ctx context.Context) ([]Role, []Permission, error) {
	var (
		roles []Role
		perms []Permission
	)
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		q := queries{db: tx, refs: r.q.refs}
		var err error
		if roles, err = q.ListRoles(ctx); err != nil {
			return err
		}
		perms, err = q.ListPermissions(ctx)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return roles, perms, nil
}

// GetUser implements UserSource.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	return r.q.GetUser(ctx, id)
}

// ListUsers returns every account ordered by id.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	return r.q.listUsers(ctx, userSelect+` GROUP BY u.id ORDER BY u.id`)
}

// ListActiveUserIDsSince returns active users that logged in after since,
// most recent first.
func (r *Repository) ListActiveUserIDsSince(ctx context.Context, since time.Time, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM users WHERE is_active AND last_login_at >= $1 ORDER BY last_login_at DESC LIMIT $2`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// WithTx implements Store. Transactions run at READ COMMITTED so reads issued
// after acquiring a row lock observe every transaction that held it before.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{queries: queries{db: tx, refs: r.q.refs}})
	})
}

type txStore struct {
	queries
}

var (
	_ Store   = (*Repository)(nil)
	_ TxStore = (*txStore)(nil)
)

type queries struct {
	db   querier
	refs []HistoryRef
}

const roleSelect = `SELECT r.id, r.name, r.display_name, r.description, r.clearance_level, r.is_bypass, r.created_at, r.updated_at,
COALESCE(array_agg(p.name ORDER BY p.name) FILTER (WHERE p.name IS NOT NULL), '{}') AS permissions
FROM roles r
LEFT JOIN role_permissions rp ON rp.role_id = r.id
LEFT JOIN permissions p ON p.id = rp.permission_id`

const userSelect = `SELECT u.id, u.email, u.name, u.is_active, u.created_by, u.created_at, u.updated_at, u.last_login_at,
COALESCE(array_agg(r.name ORDER BY r.name) FILTER (WHERE r.name IS NOT NULL), '{}') AS roles
FROM users u
LEFT JOIN user_roles ur ON ur.user_id = u.id
LEFT JOIN roles r ON r.id = ur.role_id`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Description, &role.ClearanceLevel, &role.Bypass,
		&role.CreatedAt, &role.UpdatedAt, &role.Permissions)
	return role, err
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.IsActive, &u.CreatedBy, &u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt, &u.Roles)
	return u, err
}

// ListRoles implements CatalogSource.
func (q queries) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := q.db.Query(ctx, roleSelect+` GROUP BY r.id ORDER BY r.is_bypass DESC, r.clearance_level DESC, r.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// ListPermissions implements CatalogSource.
func (q queries) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := q.db.Query(ctx, `SELECT id, name, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// GetUser implements UserSource.
func (q queries) GetUser(ctx context.Context, id int64) (User, error) {
	u, err := scanUser(q.db.QueryRow(ctx, userSelect+` WHERE u.id = $1 GROUP BY u.id`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return u, err
}

func (q queries) listUsers(ctx context.Context, sql string, args ...any) ([]User, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (q queries) LockBypassRole(ctx context.Context) (Role, bool, error) {
	var id int64
	err := q.db.QueryRow(ctx, `SELECT id FROM roles WHERE is_bypass FOR UPDATE`).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, false, nil
	}
	if err != nil {
		return Role{}, false, err
	}
	role, err := scanRole(q.db.QueryRow(ctx, roleSelect+` WHERE r.id = $1 GROUP BY r.id`, id))
	if err != nil {
		return Role{}, false, err
	}
	return role, true, nil
}

func (q queries) CountActiveBypassHolders(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM user_roles ur
JOIN users u ON u.id = ur.user_id
JOIN roles r ON r.id = ur.role_id
WHERE r.is_bypass AND u.is_active`).Scan(&n)
	return n, err
}

func (q queries) GetUserForUpdate(ctx context.Context, id int64) (User, error) {
	var locked int64
	err := q.db.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return q.GetUser(ctx, id)
}

func (q queries) FindUserByEmail(ctx context.Context, email string) (User, error) {
	u, err := scanUser(q.db.QueryRow(ctx, userSelect+` WHERE LOWER(u.email) = LOWER($1) GROUP BY u.id`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return u, err
}

func (q queries) CreateUser(ctx context.Context, in NewUser) (User, error) {
	u := User{Email: in.Email, Name: in.Name, IsActive: true, CreatedBy: in.CreatedBy, Roles: []string{}}
	err := q.db.QueryRow(ctx, `INSERT INTO users (email, name, password_hash, created_by) VALUES ($1, $2, $3, $4)
RETURNING id, created_at, updated_at`, in.Email, in.Name, in.PasswordHash, in.CreatedBy).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (q queries) SetUserActive(ctx context.Context, id int64, active bool) error {
	_, err := q.db.Exec(ctx, `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	return err
}

func (q queries) DeleteUser(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// HasHistory reports whether other records still reference the user.
func (q queries) HasHistory(ctx context.Context, id int64) (bool, error) {
	var found bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE created_by = $1 AND id <> $1)
OR EXISTS (SELECT 1 FROM audit_logs WHERE actor_id = $1)`, id).Scan(&found)
	if err != nil || found {
		return found, err
	}
	for _, ref := range q.refs {
		table := pgx.Identifier(strings.Split(ref.Table, "."))
		var exists bool
		if err := q.db.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, table.Sanitize()).Scan(&exists); err != nil {
			return false, err
		}
		if !exists {
			continue
		}
		sql := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1)`, table.Sanitize(), pgx.Identifier{ref.Column}.Sanitize())
		if err := q.db.QueryRow(ctx, sql, id).Scan(&found); err != nil {
			return false, fmt.Errorf("rbac: history ref %s.%s: %w", ref.Table, ref.Column, err)
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

func (q queries) GetRole(ctx context.Context, name string) (Role, error) {
	role, err := scanRole(q.db.QueryRow(ctx, roleSelect+` WHERE r.name = $1 GROUP BY r.id`, NormalizeName(name)))
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, ErrRoleNotFound
	}
	return role, err
}

func (q queries) AddUserRole(ctx context.Context, userID, roleID int64) error {
	_, err := q.db.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, roleID)
	return err
}

func (q queries) RemoveUserRole(ctx context.Context, userID, roleID int64) error {
	_, err := q.db.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return err
}

func (q queries) UpsertPermission(ctx context.Context, p SeedPermission) (Permission, error) {
	var out Permission
	err := q.db.QueryRow(ctx, `INSERT INTO permissions (name, description) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
RETURNING id, name, description`, NormalizeName(p.Name), p.Description).Scan(&out.ID, &out.Name, &out.Description)
	return out, err
}

func (q queries) DeletePermission(ctx context.Context, name string) (bool, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM permissions WHERE name = $1`, NormalizeName(name))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (q queries) UpsertRole(ctx context.Context, r Role) (Role, error) {
	err := q.db.QueryRow(ctx, `INSERT INTO roles (name, display_name, description, clearance_level, is_bypass)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (name) DO UPDATE SET display_name = EXCLUDED.display_name, description = EXCLUDED.description,
clearance_level = EXCLUDED.clearance_level, is_bypass = EXCLUDED.is_bypass, updated_at = NOW()
RETURNING id, created_at, updated_at`, r.Name, r.DisplayName, r.Description, r.ClearanceLevel, r.Bypass).
		Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (q queries) InsertRole(ctx context.Context, r Role) (Role, error) {
	err := q.db.QueryRow(ctx, `INSERT INTO roles (name, display_name, description, clearance_level, is_bypass)
VALUES ($1, $2, $3, $4, FALSE) RETURNING id, created_at, updated_at`, r.Name, r.DisplayName, r.Description, r.ClearanceLevel).
		Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return Role{}, ErrDuplicateRole
	}
	return r, err
}

func (q queries) GrantPermissions(ctx context.Context, roleID int64, names []string) error {
	if len(names) == 0 {
		return nil
	}
	_, err := q.db.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id)
SELECT $1, p.id FROM permissions p WHERE p.name = ANY($2)
ON CONFLICT DO NOTHING`, roleID, normalizeNames(names))
	return err
}

func (q queries) ReplacePermissions(ctx context.Context, roleID int64, names []string) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return err
	}
	return q.GrantPermissions(ctx, roleID, names)
}

func (q queries) DeleteRole(ctx context.Context, roleID int64) error {
	_, err := q.db.Exec(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if db.IsForeignKeyViolation(err) {
		return ErrRoleInUse
	}
	return err
}

func (q queries) CountRoleHolders(ctx context.Context, roleID int64) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM user_roles WHERE role_id = $1`, roleID).Scan(&n)
	return n, err
}

func (q queries) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.RecordAudit(ctx, q.db, log)
}
