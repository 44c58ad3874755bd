package rbac

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// CatalogSource loads the persisted role and permission catalog.
type CatalogSource interface {
	ListRoles(ctx context.Context) ([]Role, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
}

// CatalogSnapshotter is implemented by sources that can read roles and
// permissions from one consistent snapshot.
type CatalogSnapshotter interface {
	CatalogSnapshot(ctx context.Context) ([]Role, []Permission, error)
}

// Registry holds the canonical role and permission catalog of the process.
// It is safe for concurrent use.
type Registry struct {
	reloadMu sync.Mutex

	mu          sync.RWMutex
	catalog     Catalog
	permissions map[string]Permission
	revision    string
	logger      *slog.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		catalog:     Catalog{},
		permissions: map[string]Permission{},
		revision:    catalogRevision(Catalog{}, nil),
		logger:      logger,
	}
}

// Load replaces the catalog. Grants naming permissions outside perms are
// dropped when perms is non-empty.
func (r *Registry) Load(roles []Role, perms []Permission) {
	permIndex := make(map[string]Permission, len(perms))
	for _, p := range perms {
		p.Name = NormalizeName(p.Name)
		if p.Name == "" {
			continue
		}
		permIndex[p.Name] = p
	}
	catalog := NewCatalog(roles)
	if len(permIndex) > 0 {
		for name, role := range catalog {
			kept := role.Permissions[:0:0]
			for _, p := range role.Permissions {
				if _, ok := permIndex[p]; ok {
					kept = append(kept, p)
				}
			}
			role.Permissions = kept
			catalog[name] = role
		}
	}

	revision := catalogRevision(catalog, permIndex)

	r.mu.Lock()
	r.catalog = catalog
	r.permissions = permIndex
	r.revision = revision
	r.mu.Unlock()
}

// Reload refreshes the catalog from src. Concurrent reloads are serialised so
// the last one to finish installs the latest read.
func (r *Registry) Reload(ctx context.Context, src CatalogSource) error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	roles, perms, err := readCatalog(ctx, src)
	if err != nil {
		return err
	}
	r.Load(roles, perms)
	r.logger.Debug("rbac registry reloaded",
		slog.Int("roles", len(roles)),
		slog.Int("permissions", len(perms)),
		slog.String("revision", r.Revision()))
	return nil
}

func readCatalog(ctx context.Context, src CatalogSource) ([]Role, []Permission, error) {
	if snap, ok := src.(CatalogSnapshotter); ok {
		roles, perms, err := snap.CatalogSnapshot(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("rbac: reload catalog: %w", err)
		}
		return roles, perms, nil
	}
	roles, err := src.ListRoles(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("rbac: reload roles: %w", err)
	}
	perms, err := src.ListPermissions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("rbac: reload permissions: %w", err)
	}
	return roles, perms, nil
}

// Revision identifies the loaded catalog contents. Registries holding the same
// roles, levels, grants and permissions report the same revision.
func (r *Registry) Revision() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.revision
}

// view returns the catalog, permission index and revision of one load.
func (r *Registry) view() (Catalog, map[string]Permission, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.catalog, r.permissions, r.revision
}

func catalogRevision(catalog Catalog, perms map[string]Permission) string {
	h := sha256.New()
	for _, role := range catalog.Sorted() {
		grants := append([]string(nil), role.Permissions...)
		sort.Strings(grants)
		fmt.Fprintf(h, "r|%s|%d|%t|%s\n", role.Name, role.ClearanceLevel, role.Bypass, strings.Join(grants, ","))
	}
	names := make([]string, 0, len(perms))
	for name := range perms {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(h, "p|%s\n", name)
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}

// GetRole returns the named role or ErrRoleNotFound.
func (r *Registry) GetRole(name string) (Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.catalog.GetRole(name)
}

// Clearance returns the clearance of the named role. Unknown roles rank at
// level zero.
func (r *Registry) Clearance(name string) Clearance {
	role, err := r.GetRole(name)
	if err != nil {
		return Clearance{}
	}
	return role.Clearance()
}

// BypassRole returns the distinguished bypass role.
func (r *Registry) BypassRole() (Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.catalog.Bypass()
}

// IsBypass reports whether the named role is the bypass role.
func (r *Registry) IsBypass(name string) bool {
	return r.Clearance(name).Bypass
}

// PermissionsFor returns the sorted union of permissions granted by the named
// roles. The bypass role grants the whole permission catalog. Unknown role
// names are skipped with a warning.
func (r *Registry) PermissionsFor(roleNames []string) []string {
	catalog, perms, _ := r.view()
	return permissionsFor(catalog, perms, roleNames, r.logger)
}

func permissionsFor(catalog Catalog, perms map[string]Permission, roleNames []string, logger *slog.Logger) []string {
	set := make(map[string]struct{})
	for _, name := range roleNames {
		role, err := catalog.GetRole(name)
		if err != nil {
			logger.Warn("rbac: ignoring unknown role", slog.String("role", NormalizeName(name)))
			continue
		}
		if role.Bypass {
			for p := range perms {
				set[p] = struct{}{}
			}
		}
		for _, p := range role.Permissions {
			set[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns the current catalog. The returned map must not be mutated.
func (r *Registry) Snapshot() Catalog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.catalog
}

// Roles returns the catalog ordered by descending clearance then name.
func (r *Registry) Roles() []Role {
	return r.Snapshot().Sorted()
}

// Permissions returns the permission catalog ordered by name.
func (r *Registry) Permissions() []Permission {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Permission, 0, len(r.permissions))
	for _, p := range r.permissions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// HasPermission reports whether name exists in the permission catalog.
func (r *Registry) HasPermission(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.permissions[NormalizeName(name)]
	return ok
}
