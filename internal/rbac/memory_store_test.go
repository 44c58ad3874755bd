package rbac

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/parishdesk/parishdesk/internal/shared"
)

type memoryUser struct {
	user User
	hash string
}

type memoryState struct {
	users     map[int64]memoryUser
	roles     map[int64]Role
	perms     map[string]Permission
	userRoles map[int64]map[int64]struct{}
	history   map[int64]bool
	audits    []shared.AuditLog
	nextID    int64
}

func (s *memoryState) clone() *memoryState {
	out := &memoryState{
		users:     make(map[int64]memoryUser, len(s.users)),
		roles:     make(map[int64]Role, len(s.roles)),
		perms:     make(map[string]Permission, len(s.perms)),
		userRoles: make(map[int64]map[int64]struct{}, len(s.userRoles)),
		history:   make(map[int64]bool, len(s.history)),
		audits:    append([]shared.AuditLog(nil), s.audits...),
		nextID:    s.nextID,
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.roles {
		v.Permissions = append([]string(nil), v.Permissions...)
		out.roles[k] = v
	}
	for k, v := range s.perms {
		out.perms[k] = v
	}
	for k, v := range s.userRoles {
		set := make(map[int64]struct{}, len(v))
		for r := range v {
			set[r] = struct{}{}
		}
		out.userRoles[k] = set
	}
	for k, v := range s.history {
		out.history[k] = v
	}
	return out
}

// memoryStore is a Store whose transactions run one at a time against a copy
// of the state, committed only when fn succeeds.
type memoryStore struct {
	mu    sync.Mutex
	state *memoryState
}

func newMemoryStore() *memoryStore {
	return &memoryStore{state: &memoryState{
		users:     map[int64]memoryUser{},
		roles:     map[int64]Role{},
		perms:     map[string]Permission{},
		userRoles: map[int64]map[int64]struct{}{},
		history:   map[int64]bool{},
	}}
}

// seedDefault loads the default catalog.
func (m *memoryStore) seedDefault() {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memoryTx{s: m.state}
	for _, p := range DefaultPermissions() {
		_, _ = tx.UpsertPermission(context.Background(), p)
	}
	for _, r := range SeedRoles(DefaultSeed()) {
		stored, _ := tx.UpsertRole(context.Background(), r)
		_ = tx.GrantPermissions(context.Background(), stored.ID, r.Permissions)
	}
}

// addUser inserts a user holding roles and returns its id.
func (m *memoryStore) addUser(email string, active bool, roles ...string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memoryTx{s: m.state}
	u, _ := tx.CreateUser(context.Background(), NewUser{Email: email, Name: email, PasswordHash: "x"})
	if !active {
		_ = tx.SetUserActive(context.Background(), u.ID, false)
	}
	for _, name := range roles {
		role, err := tx.GetRole(context.Background(), name)
		if err != nil {
			panic("unknown role " + name)
		}
		_ = tx.AddUserRole(context.Background(), u.ID, role.ID)
	}
	return u.ID
}

func (m *memoryStore) markHistory(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.history[id] = true
}

func (m *memoryStore) user(id int64) (User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := (&memoryTx{s: m.state}).GetUser(context.Background(), id)
	return u, err == nil
}

func (m *memoryStore) audits() []shared.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]shared.AuditLog(nil), m.state.audits...)
}

func (m *memoryStore) activeBypassHolders() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, _ := (&memoryTx{s: m.state}).CountActiveBypassHolders(context.Background())
	return n
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.state.clone()
	if err := fn(ctx, &memoryTx{s: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memoryStore) ListRoles(ctx context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memoryTx{s: m.state}).ListRoles(ctx)
}

func (m *memoryStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memoryTx{s: m.state}).ListPermissions(ctx)
}

func (m *memoryStore) GetUser(ctx context.Context, id int64) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memoryTx{s: m.state}).GetUser(ctx, id)
}

func (m *memoryStore) ListUsers(ctx context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memoryTx{s: m.state}
	ids := make([]int64, 0, len(m.state.users))
	for id := range m.state.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]User, 0, len(ids))
	for _, id := range ids {
		u, _ := tx.GetUser(ctx, id)
		out = append(out, u)
	}
	return out, nil
}

func (m *memoryStore) ListActiveUserIDsSince(ctx context.Context, since time.Time, limit int) ([]int64, error) {
	users, _ := m.ListUsers(ctx)
	var ids []int64
	for _, u := range users {
		if u.IsActive && u.LastLoginAt != nil && !u.LastLoginAt.Before(since) {
			ids = append(ids, u.ID)
		}
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

var _ Store = (*memoryStore)(nil)

type memoryTx struct {
	s *memoryState
}

var _ TxStore = (*memoryTx)(nil)

func (t *memoryTx) next() int64 {
	t.s.nextID++
	return t.s.nextID
}

func (t *memoryTx) ListRoles(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(t.s.roles))
	for _, r := range t.s.roles {
		r.Permissions = append([]string(nil), r.Permissions...)
		out = append(out, r)
	}
	sortRoles(out)
	return out, nil
}

func (t *memoryTx) ListPermissions(ctx context.Context) ([]Permission, error) {
	out := make([]Permission, 0, len(t.s.perms))
	for _, p := range t.s.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (t *memoryTx) GetUser(ctx context.Context, id int64) (User, error) {
	mu, ok := t.s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	u := mu.user
	u.Roles = []string{}
	for roleID := range t.s.userRoles[id] {
		u.Roles = append(u.Roles, t.s.roles[roleID].Name)
	}
	sort.Strings(u.Roles)
	return u, nil
}

func (t *memoryTx) LockBypassRole(ctx context.Context) (Role, bool, error) {
	for _, r := range t.s.roles {
		if r.Bypass {
			return r, true, nil
		}
	}
	return Role{}, false, nil
}

func (t *memoryTx) CountActiveBypassHolders(ctx context.Context) (int, error) {
	n := 0
	for userID, roles := range t.s.userRoles {
		if !t.s.users[userID].user.IsActive {
			continue
		}
		for roleID := range roles {
			if t.s.roles[roleID].Bypass {
				n++
			}
		}
	}
	return n, nil
}

func (t *memoryTx) GetUserForUpdate(ctx context.Context, id int64) (User, error) {
	return t.GetUser(ctx, id)
}

func (t *memoryTx) FindUserByEmail(ctx context.Context, email string) (User, error) {
	for id, u := range t.s.users {
		if strings.EqualFold(u.user.Email, email) {
			return t.GetUser(ctx, id)
		}
	}
	return User{}, ErrUserNotFound
}

func (t *memoryTx) CreateUser(ctx context.Context, in NewUser) (User, error) {
	for _, u := range t.s.users {
		if strings.EqualFold(u.user.Email, in.Email) {
			return User{}, errors.New("duplicate email")
		}
	}
	id := t.next()
	now := time.Now().UTC()
	u := User{ID: id, Email: in.Email, Name: in.Name, IsActive: true, CreatedBy: in.CreatedBy, CreatedAt: now, UpdatedAt: now}
	t.s.users[id] = memoryUser{user: u, hash: in.PasswordHash}
	u.Roles = []string{}
	return u, nil
}

func (t *memoryTx) SetUserActive(ctx context.Context, id int64, active bool) error {
	u, ok := t.s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.user.IsActive = active
	t.s.users[id] = u
	return nil
}

func (t *memoryTx) DeleteUser(ctx context.Context, id int64) error {
	if _, ok := t.s.users[id]; !ok {
		return ErrUserNotFound
	}
	delete(t.s.users, id)
	delete(t.s.userRoles, id)
	return nil
}

func (t *memoryTx) HasHistory(ctx context.Context, id int64) (bool, error) {
	if t.s.history[id] {
		return true, nil
	}
	for otherID, u := range t.s.users {
		if otherID != id && u.user.CreatedBy != nil && *u.user.CreatedBy == id {
			return true, nil
		}
	}
	for _, a := range t.s.audits {
		if a.ActorID == id {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) GetRole(ctx context.Context, name string) (Role, error) {
	name = NormalizeName(name)
	for _, r := range t.s.roles {
		if r.Name == name {
			r.Permissions = append([]string(nil), r.Permissions...)
			return r, nil
		}
	}
	return Role{}, ErrRoleNotFound
}

func (t *memoryTx) AddUserRole(ctx context.Context, userID, roleID int64) error {
	if _, ok := t.s.userRoles[userID]; !ok {
		t.s.userRoles[userID] = map[int64]struct{}{}
	}
	t.s.userRoles[userID][roleID] = struct{}{}
	return nil
}

func (t *memoryTx) RemoveUserRole(ctx context.Context, userID, roleID int64) error {
	delete(t.s.userRoles[userID], roleID)
	return nil
}

func (t *memoryTx) UpsertPermission(ctx context.Context, p SeedPermission) (Permission, error) {
	name := NormalizeName(p.Name)
	existing, ok := t.s.perms[name]
	if !ok {
		existing = Permission{ID: t.next(), Name: name}
	}
	existing.Description = p.Description
	t.s.perms[name] = existing
	return existing, nil
}

func (t *memoryTx) DeletePermission(ctx context.Context, name string) (bool, error) {
	name = NormalizeName(name)
	if _, ok := t.s.perms[name]; !ok {
		return false, nil
	}
	delete(t.s.perms, name)
	for id, r := range t.s.roles {
		kept := r.Permissions[:0:0]
		for _, p := range r.Permissions {
			if p != name {
				kept = append(kept, p)
			}
		}
		r.Permissions = kept
		t.s.roles[id] = r
	}
	return true, nil
}

func (t *memoryTx) UpsertRole(ctx context.Context, r Role) (Role, error) {
	if existing, err := t.GetRole(ctx, r.Name); err == nil {
		r.ID = existing.ID
		r.Permissions = existing.Permissions
	} else {
		r.ID = t.next()
		r.Permissions = nil
	}
	t.s.roles[r.ID] = r
	return r, nil
}

func (t *memoryTx) InsertRole(ctx context.Context, r Role) (Role, error) {
	if _, err := t.GetRole(ctx, r.Name); err == nil {
		return Role{}, ErrDuplicateRole
	}
	r.ID = t.next()
	r.Bypass = false
	r.Permissions = nil
	t.s.roles[r.ID] = r
	return r, nil
}

func (t *memoryTx) GrantPermissions(ctx context.Context, roleID int64, names []string) error {
	r := t.s.roles[roleID]
	set := make(map[string]struct{}, len(r.Permissions))
	for _, p := range r.Permissions {
		set[p] = struct{}{}
	}
	for _, n := range names {
		n = NormalizeName(n)
		if _, ok := t.s.perms[n]; ok {
			set[n] = struct{}{}
		}
	}
	r.Permissions = r.Permissions[:0:0]
	for p := range set {
		r.Permissions = append(r.Permissions, p)
	}
	sort.Strings(r.Permissions)
	t.s.roles[roleID] = r
	return nil
}

func (t *memoryTx) ReplacePermissions(ctx context.Context, roleID int64, names []string) error {
	r := t.s.roles[roleID]
	r.Permissions = nil
	t.s.roles[roleID] = r
	return t.GrantPermissions(ctx, roleID, names)
}

func (t *memoryTx) DeleteRole(ctx context.Context, roleID int64) error {
	delete(t.s.roles, roleID)
	return nil
}

func (t *memoryTx) CountRoleHolders(ctx context.Context, roleID int64) (int, error) {
	n := 0
	for _, roles := range t.s.userRoles {
		if _, ok := roles[roleID]; ok {
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	t.s.audits = append(t.s.audits, log)
	return nil
}
