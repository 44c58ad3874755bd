package rbac

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/parishdesk/parishdesk/internal/shared"
)

// Capability names exposed to the admin UI.
const (
	CapCreateUser       = "create_user"
	CapEditUser         = "edit_user"
	CapDeleteUser       = "delete_user"
	CapViewUsers        = "view_users"
	CapAssignRoles      = "assign_roles"
	CapManageRoles      = "manage_roles"
	CapViewMembers      = "view_members"
	CapManageMembers    = "manage_members"
	CapManageFamilies   = "manage_families"
	CapManageSacraments = "manage_sacraments"
	CapManageTithes     = "manage_tithes"
	CapManageGroups     = "manage_groups"
	CapManageActivities = "manage_activities"
	CapAccessReports    = "access_reports"
	CapExportReports    = "export_reports"
	CapManageSettings   = "manage_settings"
)

// DefaultCapabilityTTL bounds how long a resolved capability map is served.
const DefaultCapabilityTTL = 30 * time.Minute

var capabilityTable = map[string][]string{
	CapCreateUser:       {shared.PermUsersManage},
	CapEditUser:         {shared.PermUsersManage},
	CapDeleteUser:       {shared.PermUsersDelete},
	CapViewUsers:        {shared.PermUsersView, shared.PermUsersManage},
	CapAssignRoles:      {shared.PermRolesAssign},
	CapManageRoles:      {shared.PermRolesManage},
	CapViewMembers:      {shared.PermMembersView, shared.PermMembersManage},
	CapManageMembers:    {shared.PermMembersManage},
	CapManageFamilies:   {shared.PermFamiliesManage},
	CapManageSacraments: {shared.PermSacramentsManage},
	CapManageTithes:     {shared.PermTithesManage},
	CapManageGroups:     {shared.PermGroupsManage},
	CapManageActivities: {shared.PermActivitiesManage},
	CapAccessReports:    {shared.PermReportsAccess},
	CapExportReports:    {shared.PermReportsExport},
	CapManageSettings:   {shared.PermSettings},
}

// CapabilityTable returns a copy of the capability -> any-of permissions table.
func CapabilityTable() map[string][]string {
	out := make(map[string][]string, len(capabilityTable))
	for k, v := range capabilityTable {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// CapabilityNames returns every capability name in sorted order.
func CapabilityNames() []string {
	names := make([]string, 0, len(capabilityTable))
	for k := range capabilityTable {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Capabilities is the flat capability map of one actor.
type Capabilities map[string]bool

// Allows reports whether every named capability is granted.
func (c Capabilities) Allows(names ...string) bool {
	for _, n := range names {
		if !c[n] {
			return false
		}
	}
	return true
}

// AllowsAny reports whether at least one named capability is granted.
func (c Capabilities) AllowsAny(names ...string) bool {
	for _, n := range names {
		if c[n] {
			return true
		}
	}
	return false
}

// DeriveCapabilities evaluates the capability table for a permission set.
func DeriveCapabilities(bypass bool, permissions []string) Capabilities {
	granted := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		granted[NormalizeName(p)] = struct{}{}
	}
	caps := make(Capabilities, len(capabilityTable))
	for name, perms := range capabilityTable {
		if bypass {
			caps[name] = true
			continue
		}
		allowed := false
		for _, p := range perms {
			if _, ok := granted[p]; ok {
				allowed = true
				break
			}
		}
		caps[name] = allowed
	}
	return caps
}

// UserSource loads users with their current role names.
type UserSource interface {
	GetUser(ctx context.Context, id int64) (User, error)
}

// Resolver computes capability maps with cache-aside reads.
type Resolver struct {
	users    UserSource
	registry *Registry
	cache    Cache
	ttl      time.Duration
	logger   *slog.Logger
	metrics  *Metrics
	group    singleflight.Group
	now      func() time.Time
}

// ResolverConfig wires a Resolver.
type ResolverConfig struct {
	Users    UserSource
	Registry *Registry
	Cache    Cache
	TTL      time.Duration
	Logger   *slog.Logger
	Metrics  *Metrics
}

// NewResolver builds a Resolver. A nil Cache disables caching.
func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCapabilityTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resolver{
		users:    cfg.Users,
		registry: cfg.Registry,
		cache:    cfg.Cache,
		ttl:      cfg.TTL,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		now:      time.Now,
	}
}

// ResolveCapabilities returns what userID may do right now. Unknown and
// inactive users get an all-false map.
func (r *Resolver) ResolveCapabilities(ctx context.Context, userID int64) (Capabilities, error) {
	if userID <= 0 {
		return DeriveCapabilities(false, nil), nil
	}
	view := r.snapshot()
	key := r.cacheKey(ctx, view.revision, userID)
	if key != "" {
		if caps, ok := r.lookup(ctx, key, userID); ok {
			return caps, nil
		}
	}

	flightKey := key
	if flightKey == "" {
		flightKey = "uncached:" + view.revision + ":" + strconv.FormatInt(userID, 10)
	}
	// The flight serves every collapsed caller, not just the one that started it.
	fctx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(flightKey, func() (any, error) {
		caps, err := r.compute(fctx, view, userID)
		if err != nil {
			return nil, err
		}
		if key != "" {
			entry := CachedCapabilities{UserID: userID, Capabilities: caps, ResolvedAt: r.now().UTC()}
			if err := r.cache.Set(fctx, key, entry, r.ttl); err != nil {
				r.logger.Warn("rbac: cache capabilities", slog.Int64("user_id", userID), slog.Any("error", err))
			}
		}
		return caps, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return copyCapabilities(res.Val.(Capabilities)), nil
	}
}

// catalogView is the registry state one resolution runs against.
type catalogView struct {
	catalog     Catalog
	permissions map[string]Permission
	revision    string
}

func (r *Resolver) snapshot() catalogView {
	catalog, perms, revision := r.registry.view()
	return catalogView{catalog: catalog, permissions: perms, revision: revision}
}

func (r *Resolver) compute(ctx context.Context, view catalogView, userID int64) (Capabilities, error) {
	user, err := r.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return DeriveCapabilities(false, nil), nil
		}
		return nil, storageError("load user", err)
	}
	actor := user.Actor()
	bypass := NewGuard(view.catalog, nil).EffectiveClearance(actor.Roles).Bypass
	return DeriveCapabilities(bypass, permissionsFor(view.catalog, view.permissions, actor.Roles, r.logger)), nil
}

func (r *Resolver) cacheKey(ctx context.Context, revision string, userID int64) string {
	if r.cache == nil {
		return ""
	}
	key, err := r.cache.Key(ctx, revision, userID)
	if err != nil {
		r.logger.Warn("rbac: capability cache key", slog.Int64("user_id", userID), slog.Any("error", err))
		r.metrics.cacheResult("error")
		return ""
	}
	return key
}

func (r *Resolver) lookup(ctx context.Context, key string, userID int64) (Capabilities, bool) {
	entry, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.Warn("rbac: capability cache read", slog.Int64("user_id", userID), slog.Any("error", err))
		r.metrics.cacheResult("error")
		return nil, false
	}
	if !ok {
		r.metrics.cacheResult("miss")
		return nil, false
	}
	if age := r.now().Sub(entry.ResolvedAt); age > r.ttl || entry.UserID != userID {
		r.logger.Warn("rbac: stale capability entry discarded",
			slog.Int64("user_id", userID), slog.Duration("age", age), slog.Duration("ttl", r.ttl))
		r.metrics.cacheResult("stale")
		return nil, false
	}
	r.metrics.cacheResult("hit")
	return copyCapabilities(entry.Capabilities), true
}

// Invalidate evicts the cached capabilities of the given users.
func (r *Resolver) Invalidate(ctx context.Context, userIDs ...int64) error {
	if r.cache == nil {
		return nil
	}
	for _, id := range userIDs {
		if err := r.cache.Invalidate(ctx, id); err != nil {
			return storageError("invalidate capabilities", err)
		}
	}
	return nil
}

// InvalidateAll evicts every cached capability map.
func (r *Resolver) InvalidateAll(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}
	if err := r.cache.InvalidateAll(ctx); err != nil {
		return storageError("invalidate all capabilities", err)
	}
	return nil
}

func copyCapabilities(in Capabilities) Capabilities {
	out := make(Capabilities, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
