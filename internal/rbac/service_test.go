package rbac

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parishdesk/parishdesk/internal/shared"
)

type serviceFixture struct {
	store    *memoryStore
	registry *Registry
	cache    *MemoryCache
	resolver *Resolver
	svc      *Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := newMemoryStore()
	store.seedDefault()
	registry := NewRegistry(logger)
	require.NoError(t, registry.Reload(context.Background(), store))
	cache := NewMemoryCache(64, time.Hour)
	resolver := NewResolver(ResolverConfig{Users: store, Registry: registry, Cache: cache, TTL: time.Hour, Logger: logger})
	svc := NewService(ServiceConfig{Store: store, Registry: registry, Resolver: resolver, Logger: logger})
	return &serviceFixture{store: store, registry: registry, cache: cache, resolver: resolver, svc: svc}
}

func (f *serviceFixture) roles(t *testing.T, id int64) []string {
	t.Helper()
	u, ok := f.store.user(id)
	require.True(t, ok, "user %d missing", id)
	return u.Roles
}

func TestAssignRoleEnforcesClearance(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	admin := f.store.addUser("admin@parish.test", true, RoleAdmin)
	target := f.store.addUser("target@parish.test", true)

	require.NoError(t, f.svc.AssignRole(ctx, admin, target, RoleManager))
	assert.Equal(t, []string{RoleManager}, f.roles(t, target))

	assert.ErrorIs(t, f.svc.AssignRole(ctx, admin, target, RoleAdmin), ErrPermissionDenied)
	assert.ErrorIs(t, f.svc.AssignRole(ctx, admin, target, RoleSuperAdmin), ErrPermissionDenied)
	assert.Equal(t, []string{RoleManager}, f.roles(t, target))
}

func TestAssignRolePeerCannotAssignOwnLevel(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	manager := f.store.addUser("manager@parish.test", true, RoleManager)
	target := f.store.addUser("target@parish.test", true)

	assert.ErrorIs(t, f.svc.AssignRole(ctx, manager, target, RoleManager), ErrPermissionDenied)
	assert.ErrorIs(t, f.svc.AssignRole(ctx, manager, target, RoleSecretary), ErrPermissionDenied)
	require.NoError(t, f.svc.AssignRole(ctx, manager, target, RoleStaff))
}

func TestAssignRoleRequiresOutrankingTarget(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	manager := f.store.addUser("manager@parish.test", true, RoleManager)
	peer := f.store.addUser("peer@parish.test", true, RoleSecretary)

	assert.ErrorIs(t, f.svc.AssignRole(ctx, manager, peer, RoleViewer), ErrPermissionDenied)
	assert.ErrorIs(t, f.svc.AssignRole(ctx, manager, manager, RoleViewer), ErrPermissionDenied)
}

func TestBypassHolderAssignsBypassRole(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	root := f.store.addUser("root@parish.test", true, RoleSuperAdmin)
	target := f.store.addUser("target@parish.test", true, RoleAdmin)

	require.NoError(t, f.svc.AssignRole(ctx, root, target, RoleSuperAdmin))
	assert.Equal(t, 2, f.store.activeBypassHolders())
}

func TestUnknownRoleIsInvalid(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	root := f.store.addUser("root@parish.test", true, RoleSuperAdmin)
	target := f.store.addUser("target@parish.test", true)

	assert.ErrorIs(t, f.svc.AssignRole(ctx, root, target, "nonexistent-role"), ErrInvalidRole)
	assert.ErrorIs(t, f.svc.RevokeRole(ctx, root, target, "nonexistent-role"), ErrInvalidRole)
	assert.ErrorIs(t, f.svc.AssignRole(ctx, root, target, "  "), ErrInvalidRole)
}

func TestUnknownOrInactiveActorDenied(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.store.addUser("root@parish.test", true, RoleSuperAdmin)
	retired := f.store.addUser("retired@parish.test", false, RoleAdmin)
	target := f.store.addUser("target@parish.test", true)

	assert.ErrorIs(t, f.svc.AssignRole(ctx, retired, target, RoleViewer), ErrPermissionDenied)
	assert.ErrorIs(t, f.svc.AssignRole(ctx, 4242, target, RoleViewer), ErrPermissionDenied)
	assert.ErrorIs(t, f.svc.AssignRole(ctx, 0, target, RoleViewer), ErrPermissionDenied)
	assert.ErrorIs(t, f.svc.AssignRole(ctx, target, 4242, RoleViewer), ErrUserNotFound)
}

func TestLastAdminProtection(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	only := f.store.addUser("only@parish.test", true, RoleSuperAdmin)
	admin := f.store.addUser("admin@parish.test", true, RoleAdmin)

	for _, actor := range []int64{only, admin, 4242} {
		assert.ErrorIs(t, f.svc.RevokeRole(ctx, actor, only, RoleSuperAdmin), ErrLastAdminProtection)
		_, err := f.svc.DeleteUser(ctx, actor, only)
		assert.ErrorIs(t, err, ErrLastAdminProtection)
		assert.ErrorIs(t, f.svc.DeactivateUser(ctx, actor, only), ErrLastAdminProtection)
	}
	assert.Equal(t, 1, f.store.activeBypassHolders())

	second := f.store.addUser("second@parish.test", true, RoleSuperAdmin)
	require.NoError(t, f.svc.RevokeRole(ctx, second, only, RoleSuperAdmin))
	require.NoError(t, f.svc.AssignRole(ctx, second, only, RoleSuperAdmin))
	outcome, err := f.svc.DeleteUser(ctx, second, only)
	require.NoError(t, err)
	assert.Equal(t, DeleteRemoved, outcome)
	assert.Equal(t, 1, f.store.activeBypassHolders())
}

func TestInactiveBypassHoldersDoNotCount(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	active := f.store.addUser("active@parish.test", true, RoleSuperAdmin)
	dormant := f.store.addUser("dormant@parish.test", false, RoleSuperAdmin)

	assert.ErrorIs(t, f.svc.RevokeRole(ctx, dormant, active, RoleSuperAdmin), ErrLastAdminProtection)
	assert.ErrorIs(t, f.svc.DeactivateUser(ctx, dormant, active), ErrLastAdminProtection)

	// Removing the bypass role from an inactive holder never drops the
	// active count.
	require.NoError(t, f.svc.RevokeRole(ctx, active, dormant, RoleSuperAdmin))
	assert.Equal(t, 1, f.store.activeBypassHolders())
}

func TestConcurrentMutualRevocationKeepsOneAdmin(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newServiceFixture(t)
		a := f.store.addUser("a@parish.test", true, RoleSuperAdmin)
		b := f.store.addUser("b@parish.test", true, RoleSuperAdmin)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		start := make(chan struct{})
		for n, pair := range [][2]int64{{a, b}, {b, a}} {
			wg.Add(1)
			go func(n int, actor, target int64) {
				defer wg.Done()
				<-start
				errs[n] = f.svc.RevokeRole(context.Background(), actor, target, RoleSuperAdmin)
			}(n, pair[0], pair[1])
		}
		close(start)
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, ErrLastAdminProtection)
		}
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 1, f.store.activeBypassHolders())
	}
}

func TestConcurrentDeactivationKeepsOneAdmin(t *testing.T) {
	f := newServiceFixture(t)
	a := f.store.addUser("a@parish.test", true, RoleSuperAdmin)
	b := f.store.addUser("b@parish.test", true, RoleSuperAdmin)
	c := f.store.addUser("c@parish.test", true, RoleSuperAdmin)

	var wg sync.WaitGroup
	for _, pair := range [][2]int64{{a, b}, {b, c}, {c, a}} {
		wg.Add(1)
		go func(actor, target int64) {
			defer wg.Done()
			_ = f.svc.DeactivateUser(context.Background(), actor, target)
		}(pair[0], pair[1])
	}
	wg.Wait()
	assert.GreaterOrEqual(t, f.store.activeBypassHolders(), 1)
}

func TestSelfTargetProhibited(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.store.addUser("root@parish.test", true, RoleSuperAdmin)
	admin := f.store.addUser("admin@parish.test", true, RoleAdmin)
	multi := f.store.addUser("multi@parish.test", true, RoleAdmin, RoleViewer)

	assert.ErrorIs(t, f.svc.DeactivateUser(ctx, admin, admin), ErrSelfTargetProhibited)
	_, err := f.svc.DeleteUser(ctx, admin, admin)
	assert.ErrorIs(t, err, ErrSelfTargetProhibited)
	assert.ErrorIs(t, f.svc.RevokeRole(ctx, admin, admin, RoleAdmin), ErrSelfTargetProhibited)

	require.NoError(t, f.svc.RevokeRole(ctx, multi, multi, RoleViewer))
	assert.Equal(t, []string{RoleAdmin}, f.roles(t, multi))
}

func TestMutationsAreIdempotent(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	admin := f.store.addUser("admin@parish.test", true, RoleAdmin)
	target := f.store.addUser("target@parish.test", true, RoleStaff)

	require.NoError(t, f.svc.AssignRole(ctx, admin, target, RoleStaff))
	require.NoError(t, f.svc.RevokeRole(ctx, admin, target, RoleViewer))
	assert.Empty(t, f.store.audits())

	require.NoError(t, f.svc.DeactivateUser(ctx, admin, target))
	require.NoError(t, f.svc.DeactivateUser(ctx, admin, target))
	assert.Len(t, f.store.audits(), 1)
}

func TestMutationsRecordAudit(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	admin := f.store.addUser("admin@parish.test", true, RoleAdmin)
	target := f.store.addUser("target@parish.test", true)

	require.NoError(t, f.svc.AssignRole(ctx, admin, target, RoleViewer))
	require.NoError(t, f.svc.RevokeRole(ctx, admin, target, RoleViewer))

	audits := f.store.audits()
	require.Len(t, audits, 2)
	assert.Equal(t, AuditRoleAssign, audits[0].Action)
	assert.Equal(t, AuditRoleRevoke, audits[1].Action)
	assert.Equal(t, admin, audits[0].ActorID)
	assert.Equal(t, RoleViewer, audits[0].Meta["role"])
}

func TestDeleteUserHardOrSoft(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	admin := f.store.addUser("admin@parish.test", true, RoleAdmin)
	fresh := f.store.addUser("fresh@parish.test", true, RoleViewer)
	veteran := f.store.addUser("veteran@parish.test", true, RoleViewer)
	f.store.markHistory(veteran)

	outcome, err := f.svc.DeleteUser(ctx, admin, fresh)
	require.NoError(t, err)
	assert.Equal(t, DeleteRemoved, outcome)
	_, ok := f.store.user(fresh)
	assert.False(t, ok)

	outcome, err = f.svc.DeleteUser(ctx, admin, veteran)
	require.NoError(t, err)
	assert.Equal(t, DeleteDeactivated, outcome)
	u, ok := f.store.user(veteran)
	require.True(t, ok)
	assert.False(t, u.IsActive)

	_, err = f.svc.DeleteUser(ctx, admin, fresh)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestDeleteUserKeepsActorsWithHistory(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	root := f.store.addUser("root@parish.test", true, RoleSuperAdmin)
	admin := f.store.addUser("admin@parish.test", true, RoleAdmin)
	target := f.store.addUser("target@parish.test", true)
	require.NoError(t, f.svc.AssignRole(ctx, admin, target, RoleViewer))

	outcome, err := f.svc.DeleteUser(ctx, root, admin)
	require.NoError(t, err)
	assert.Equal(t, DeleteDeactivated, outcome, "admin authored an audit entry")
}

func TestCapabilitiesReflectCommittedAssignment(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	root := f.store.addUser("root@parish.test", true, RoleSuperAdmin)
	target := f.store.addUser("target@parish.test", true, RoleViewer)

	before, err := f.svc.Capabilities(ctx, target)
	require.NoError(t, err)
	require.False(t, before[CapCreateUser])

	require.NoError(t, f.svc.AssignRole(ctx, root, target, RoleAdmin))
	after, err := f.svc.Capabilities(ctx, target)
	require.NoError(t, err)
	assert.True(t, after[CapCreateUser])
	assert.True(t, after[CapAssignRoles])

	require.NoError(t, f.svc.DeactivateUser(ctx, root, target))
	gone, err := f.svc.Capabilities(ctx, target)
	require.NoError(t, err)
	assert.False(t, gone.AllowsAny(CapabilityNames()...))
}

type failingCache struct {
	*MemoryCache
}

func (failingCache) Invalidate(ctx context.Context, userID int64) error {
	return errors.New("redis unavailable")
}

func TestInvalidationFailureIsStorageError(t *testing.T) {
	f := newServiceFixture(t)
	resolver := NewResolver(ResolverConfig{Users: f.store, Registry: f.registry, Cache: failingCache{NewMemoryCache(8, time.Hour)}})
	svc := NewService(ServiceConfig{Store: f.store, Registry: f.registry, Resolver: resolver})
	admin := f.store.addUser("admin@parish.test", true, RoleAdmin)
	target := f.store.addUser("target@parish.test", true)

	err := svc.AssignRole(context.Background(), admin, target, RoleViewer)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, []string{RoleViewer}, f.roles(t, target), "the write is committed")

	err = svc.AssignRole(context.Background(), admin, target, RoleViewer)
	assert.ErrorIs(t, err, ErrStorage, "retrying re-runs the invalidation")
}

type brokenStore struct {
	*memoryStore
}

func (brokenStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	return errors.New("platform/db: begin tx: connection refused")
}

func TestStoreFailureIsStorageError(t *testing.T) {
	f := newServiceFixture(t)
	svc := NewService(ServiceConfig{Store: brokenStore{f.store}, Registry: f.registry, Resolver: f.resolver})

	err := svc.AssignRole(context.Background(), 1, 2, RoleViewer)
	assert.ErrorIs(t, err, ErrStorage)
	assert.NotErrorIs(t, err, ErrPermissionDenied)
}

func TestListAssignableRoles(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	admin := f.store.addUser("admin@parish.test", true, RoleAdmin)
	root := f.store.addUser("root@parish.test", true, RoleSuperAdmin)
	viewer := f.store.addUser("viewer@parish.test", true, RoleViewer)

	roles, err := f.svc.ListAssignableRoles(ctx, admin)
	require.NoError(t, err)
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{RoleManager, RoleSecretary, RoleTreasurer, RoleStaff, RoleViewer}, names)
	assert.Equal(t, 3, roles[0].ClearanceLevel)
	assert.Positive(t, roles[0].PermissionsCount)

	roles, err = f.svc.ListAssignableRoles(ctx, root)
	require.NoError(t, err)
	require.Len(t, roles, 7)
	assert.Equal(t, RoleSuperAdmin, roles[0].Name)

	roles, err = f.svc.ListAssignableRoles(ctx, viewer)
	require.NoError(t, err)
	assert.Empty(t, roles)

	roles, err = f.svc.ListAssignableRoles(ctx, 4242)
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestBootstrap(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	account := BootstrapAccount{Email: "Priest@Parish.test", Name: "Parish Priest", Password: "change-me-now"}

	res, err := f.svc.Bootstrap(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, BootstrapCreated, res.Outcome)
	u, ok := f.store.user(res.UserID)
	require.True(t, ok)
	assert.Equal(t, "priest@parish.test", u.Email)
	assert.Equal(t, []string{RoleSuperAdmin}, u.Roles)

	again, err := f.svc.Bootstrap(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, BootstrapNoop, again.Outcome)
	assert.Equal(t, 1, f.store.activeBypassHolders())
}

func TestBootstrapPromotesAndReactivatesExistingAccount(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	existing := f.store.addUser("priest@parish.test", false, RoleViewer)

	res, err := f.svc.Bootstrap(ctx, BootstrapAccount{Email: "priest@parish.test"})
	require.NoError(t, err)
	assert.Equal(t, BootstrapPromoted, res.Outcome)
	assert.Equal(t, existing, res.UserID)
	u, _ := f.store.user(existing)
	assert.True(t, u.IsActive)
	assert.ElementsMatch(t, []string{RoleSuperAdmin, RoleViewer}, u.Roles)
}

func TestBootstrapValidation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Bootstrap(ctx, BootstrapAccount{})
	assert.ErrorIs(t, err, ErrBootstrapAccount)
	_, err = f.svc.Bootstrap(ctx, BootstrapAccount{Email: "new@parish.test"})
	assert.ErrorIs(t, err, ErrBootstrapAccount)

	empty := newMemoryStore()
	svc := NewService(ServiceConfig{Store: empty})
	_, err = svc.Bootstrap(ctx, BootstrapAccount{Email: "a@parish.test", Password: "secret-pass"})
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestCreateRole(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	admin := f.store.addUser("admin@parish.test", true, RoleAdmin)
	manager := f.store.addUser("manager@parish.test", true, RoleManager)

	role, err := f.svc.CreateRole(ctx, admin, RoleInput{
		Name:           "Choir Lead",
		ClearanceLevel: 2,
		Permissions:    []string{shared.PermGroupsManage, shared.PermGroupsView},
	})
	require.NoError(t, err)
	assert.Equal(t, "choir lead", role.Name)
	assert.Equal(t, "Choir Lead", role.DisplayName)
	registered, err := f.registry.GetRole("choir lead")
	require.NoError(t, err, "registry reloads after commit")
	assert.Equal(t, []string{shared.PermGroupsManage, shared.PermGroupsView}, registered.Permissions)

	_, err = f.svc.CreateRole(ctx, admin, RoleInput{Name: "choir lead", ClearanceLevel: 1})
	assert.ErrorIs(t, err, ErrDuplicateRole)
	_, err = f.svc.CreateRole(ctx, admin, RoleInput{Name: "deputy", ClearanceLevel: 4})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = f.svc.CreateRole(ctx, admin, RoleInput{Name: "settings", ClearanceLevel: 1, Permissions: []string{shared.PermSettings}})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = f.svc.CreateRole(ctx, admin, RoleInput{Name: "ghost", ClearanceLevel: 1, Permissions: []string{"summon spirits"}})
	assert.ErrorIs(t, err, ErrInvalidPermission)
	_, err = f.svc.CreateRole(ctx, manager, RoleInput{Name: "helper", ClearanceLevel: 1})
	assert.ErrorIs(t, err, ErrPermissionDenied, "manage roles is required")
	_, err = f.svc.CreateRole(ctx, admin, RoleInput{Name: "negative", ClearanceLevel: -1})
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestSetRolePermissions(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	admin := f.store.addUser("admin@parish.test", true, RoleAdmin)
	holder := f.store.addUser("staff@parish.test", true, RoleStaff)

	caps, err := f.svc.Capabilities(ctx, holder)
	require.NoError(t, err)
	require.False(t, caps[CapManageGroups])

	require.NoError(t, f.svc.SetRolePermissions(ctx, admin, RoleStaff, []string{shared.PermMembersView, shared.PermGroupsManage}))
	caps, err = f.svc.Capabilities(ctx, holder)
	require.NoError(t, err)
	assert.True(t, caps[CapManageGroups], "catalog change invalidates every cached map")
	assert.False(t, caps[CapManageMembers])

	assert.ErrorIs(t, f.svc.SetRolePermissions(ctx, admin, RoleAdmin, nil), ErrPermissionDenied)
	assert.ErrorIs(t, f.svc.SetRolePermissions(ctx, admin, RoleStaff, []string{shared.PermSettings}), ErrPermissionDenied)
	assert.ErrorIs(t, f.svc.SetRolePermissions(ctx, admin, "ghost", nil), ErrInvalidRole)
}

func TestDeleteRole(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	root := f.store.addUser("root@parish.test", true, RoleSuperAdmin)
	f.store.addUser("viewer@parish.test", true, RoleViewer)

	assert.ErrorIs(t, f.svc.DeleteRole(ctx, root, RoleViewer), ErrRoleInUse)
	assert.ErrorIs(t, f.svc.DeleteRole(ctx, root, RoleSuperAdmin), ErrPermissionDenied)
	require.NoError(t, f.svc.DeleteRole(ctx, root, RoleTreasurer))
	_, err := f.registry.GetRole(RoleTreasurer)
	assert.ErrorIs(t, err, ErrRoleNotFound)
	assert.ErrorIs(t, f.svc.DeleteRole(ctx, root, RoleTreasurer), ErrInvalidRole)
}

func TestRemovePermission(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	root := f.store.addUser("root@parish.test", true, RoleSuperAdmin)
	admin := f.store.addUser("admin@parish.test", true, RoleAdmin)

	assert.ErrorIs(t, f.svc.RemovePermission(ctx, admin, shared.PermReportsExport), ErrPermissionDenied)
	assert.ErrorIs(t, f.svc.RemovePermission(ctx, root, "summon spirits"), ErrInvalidPermission)

	var hooked int
	svc := NewService(ServiceConfig{Store: f.store, Registry: f.registry, Resolver: f.resolver,
		OnCatalogChange: func(context.Context) { hooked++ }})
	require.NoError(t, svc.RemovePermission(ctx, root, shared.PermReportsExport))
	assert.Equal(t, 1, hooked)
	assert.False(t, f.registry.HasPermission(shared.PermReportsExport))
	secretary, err := f.registry.GetRole(RoleSecretary)
	require.NoError(t, err)
	assert.NotContains(t, secretary.Permissions, shared.PermReportsExport)
}

func TestSeedCatalogIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	registry := NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc := NewService(ServiceConfig{Store: store, Registry: registry})

	seed := ApplyLevelOverrides(DefaultSeed(), map[string]int{RoleManager: 6})
	require.NoError(t, svc.SeedCatalog(ctx, seed, DefaultPermissions()))
	require.NoError(t, svc.SeedCatalog(ctx, seed, DefaultPermissions()))

	roles, err := store.ListRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 7)
	assert.Equal(t, Clearance{Level: 6}, registry.Clearance(RoleManager))
	assert.Len(t, registry.Permissions(), len(shared.AllScopes()))

	twoBypass := append(DefaultSeed(), SeedRole{Name: "pope", Bypass: true})
	assert.ErrorIs(t, svc.SeedCatalog(ctx, twoBypass, nil), ErrInvalidRole)
}
