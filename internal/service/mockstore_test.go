package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Strob0t/backoffice/internal/domain"
	"github.com/Strob0t/backoffice/internal/domain/entity"
	"github.com/Strob0t/backoffice/internal/domain/permission"
	"github.com/Strob0t/backoffice/internal/domain/row"
	"github.com/Strob0t/backoffice/internal/domain/rowquery"
	"github.com/Strob0t/backoffice/internal/domain/tenant"
	"github.com/Strob0t/backoffice/internal/domain/user"
	"github.com/Strob0t/backoffice/internal/middleware"
	"github.com/Strob0t/backoffice/internal/port/database"
	"github.com/Strob0t/backoffice/internal/port/messagequeue"
)

// mockStore is an in-memory database.Store. Tenant-scoped methods honour the
// tenant of the context like the postgres store does.
type mockStore struct {
	mu sync.Mutex

	tenants       []tenant.Tenant
	users         []user.User
	roles         []user.Role
	assignments   []user.RoleAssignment
	groups        map[string][]string // userID -> group IDs
	apiKeys       []user.APIKey
	invitations   []user.Invitation
	entities      []entity.Entity
	relationships []entity.Relationship
	rows          []row.Row
	links         []entity.RowRelationship
	folios        map[string]int

	// Error hooks
	createRowErr      error
	upsertValueErr    error
	listRowsErr       error
	createGrantErrAt  int // fail the n-th CreateRowPermission call, 1-based
	createGrantCalls  int
	createOptionErrAt int
	createOptionCalls int
	getUserCalls      int
}

var _ database.Store = (*mockStore)(nil)

func newID() string { return generateID() }

func notFound(what, id string) error {
	return fmt.Errorf("%s %s: %w", what, id, domain.ErrNotFound)
}

// --- tenants ---

func (m *mockStore) CreateTenant(_ context.Context, t *tenant.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tenants {
		if existing.Slug == t.Slug {
			return fmt.Errorf("slug %s: %w", t.Slug, domain.ErrConflict)
		}
	}
	if t.ID == "" {
		t.ID = newID()
	}
	t.CreatedAt = time.Now()
	m.tenants = append(m.tenants, *t)
	return nil
}

func (m *mockStore) GetTenant(_ context.Context, id string) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tenants {
		if m.tenants[i].ID == id {
			t := m.tenants[i]
			return &t, nil
		}
	}
	return nil, notFound("tenant", id)
}

func (m *mockStore) GetTenantBySlug(_ context.Context, slug string) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tenants {
		if m.tenants[i].Slug == slug {
			t := m.tenants[i]
			return &t, nil
		}
	}
	return nil, notFound("tenant", slug)
}

func (m *mockStore) ListTenants(_ context.Context) ([]tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.tenants), nil
}

func (m *mockStore) UpdateTenant(_ context.Context, t *tenant.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tenants {
		if m.tenants[i].ID == t.ID {
			m.tenants[i] = *t
			return nil
		}
	}
	return notFound("tenant", t.ID)
}

// --- users ---

func (m *mockStore) CreateUser(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return fmt.Errorf("email %s: %w", u.Email, domain.ErrConflict)
		}
	}
	if u.ID == "" {
		u.ID = newID()
	}
	m.users = append(m.users, *u)
	return nil
}

func (m *mockStore) GetUser(_ context.Context, id string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getUserCalls++
	for i := range m.users {
		if m.users[i].ID == id {
			u := m.users[i]
			return &u, nil
		}
	}
	return nil, notFound("user", id)
}

func (m *mockStore) GetUserByEmail(_ context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].Email == email {
			u := m.users[i]
			return &u, nil
		}
	}
	return nil, notFound("user", email)
}

func (m *mockStore) UpdateUserPassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].ID == id {
			m.users[i].PasswordHash = hash
			return nil
		}
	}
	return notFound("user", id)
}

func (m *mockStore) ListUsers(_ context.Context) ([]user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.users), nil
}

// --- roles ---

func (m *mockStore) CreateRole(_ context.Context, r *user.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = newID()
	}
	m.roles = append(m.roles, *r)
	return nil
}

func (m *mockStore) GetRole(ctx context.Context, id string) (*user.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tid := middleware.TenantIDFromContext(ctx)
	for i := range m.roles {
		if m.roles[i].ID == id && visible(m.roles[i].TenantID, tid) {
			r := m.roles[i]
			return &r, nil
		}
	}
	return nil, notFound("role", id)
}

func (m *mockStore) ListRoles(ctx context.Context) ([]user.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tid := middleware.TenantIDFromContext(ctx)
	var out []user.Role
	for _, r := range m.roles {
		if r.TenantID == "" || r.TenantID == tid {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) UpdateRolePermissions(ctx context.Context, roleID string, perms []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.roles {
		if m.roles[i].ID == roleID && m.roles[i].TenantID == middleware.TenantIDFromContext(ctx) {
			m.roles[i].Permissions = perms
			return nil
		}
	}
	return notFound("role", roleID)
}

func (m *mockStore) AssignRole(_ context.Context, a user.RoleAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.assignments, a) {
		m.assignments = append(m.assignments, a)
	}
	return nil
}

func (m *mockStore) ListUserRoles(_ context.Context, userID, tenantID string) ([]user.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []user.Role
	for _, a := range m.assignments {
		if a.UserID != userID || a.TenantID != tenantID {
			continue
		}
		for _, r := range m.roles {
			if r.ID == a.RoleID {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (m *mockStore) ListRoleAssignments(_ context.Context, roleID string) ([]user.RoleAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []user.RoleAssignment
	for _, a := range m.assignments {
		if a.RoleID == roleID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockStore) ListUserGroupIDs(_ context.Context, userID, _ string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.groups[userID]), nil
}

// --- API keys ---

func (m *mockStore) CreateAPIKey(_ context.Context, key *user.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key.ID == "" {
		key.ID = newID()
	}
	m.apiKeys = append(m.apiKeys, *key)
	return nil
}

func (m *mockStore) GetAPIKeyByHash(_ context.Context, hash string) (*user.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.apiKeys {
		if m.apiKeys[i].KeyHash == hash {
			k := m.apiKeys[i]
			return &k, nil
		}
	}
	return nil, notFound("api key", "by hash")
}

func (m *mockStore) ListAPIKeys(ctx context.Context) ([]user.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tid := middleware.TenantIDFromContext(ctx)
	var out []user.APIKey
	for _, k := range m.apiKeys {
		if k.TenantID == tid {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *mockStore) DeleteAPIKey(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.apiKeys {
		if m.apiKeys[i].ID == id {
			m.apiKeys = slices.Delete(m.apiKeys, i, i+1)
			return nil
		}
	}
	return notFound("api key", id)
}

// --- invitations ---

func (m *mockStore) CreateInvitation(_ context.Context, inv *user.Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inv.ID == "" {
		inv.ID = newID()
	}
	m.invitations = append(m.invitations, *inv)
	return nil
}

func (m *mockStore) invitation(match func(*user.Invitation) bool) (*user.Invitation, bool) {
	for i := range m.invitations {
		if match(&m.invitations[i]) {
			return &m.invitations[i], true
		}
	}
	return nil, false
}

func (m *mockStore) GetInvitation(_ context.Context, id string) (*user.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inv, ok := m.invitation(func(i *user.Invitation) bool { return i.ID == id }); ok {
		c := *inv
		return &c, nil
	}
	return nil, notFound("invitation", id)
}

func (m *mockStore) GetInvitationByToken(_ context.Context, token string) (*user.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inv, ok := m.invitation(func(i *user.Invitation) bool { return i.Token == token }); ok {
		c := *inv
		return &c, nil
	}
	return nil, notFound("invitation", "by token")
}

func (m *mockStore) MarkInvitationSent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invitation(func(i *user.Invitation) bool { return i.ID == id })
	if !ok {
		return notFound("invitation", id)
	}
	now := time.Now()
	inv.SentAt = &now
	return nil
}

func (m *mockStore) MarkInvitationAccepted(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invitation(func(i *user.Invitation) bool { return i.ID == id })
	if !ok {
		return notFound("invitation", id)
	}
	if inv.AcceptedAt != nil {
		return user.ErrInvitationUsed
	}
	now := time.Now()
	inv.AcceptedAt = &now
	return nil
}

// --- entities ---

func visible(ownerTenant, ctxTenant string) bool {
	return ownerTenant == "" || ownerTenant == ctxTenant
}

// ownedEntity reports whether the entity exists and belongs to the scope.
// Callers hold m.mu.
func (m *mockStore) ownedEntity(ctx context.Context, id string) bool {
	i := m.entityIndex(id)
	return i >= 0 && m.entities[i].TenantID == middleware.TenantIDFromContext(ctx)
}

func (m *mockStore) visibleEntity(ctx context.Context, id string) bool {
	i := m.entityIndex(id)
	return i >= 0 && visible(m.entities[i].TenantID, middleware.TenantIDFromContext(ctx))
}

func (m *mockStore) visibleRelationship(ctx context.Context, r entity.Relationship) bool {
	return m.visibleEntity(ctx, r.ParentID) && m.visibleEntity(ctx, r.ChildID)
}

func (m *mockStore) CreateEntity(_ context.Context, e *entity.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.entities {
		if existing.TenantID == e.TenantID && (existing.Name == e.Name || existing.Slug == e.Slug) {
			return fmt.Errorf("entity %s: %w", e.Name, domain.ErrConflict)
		}
	}
	if e.ID == "" {
		e.ID = newID()
	}
	for i := range e.Properties {
		if e.Properties[i].ID == "" {
			e.Properties[i].ID = newID()
		}
		e.Properties[i].EntityID = e.ID
	}
	m.entities = append(m.entities, cloneEntity(e))
	return nil
}

func cloneEntity(e *entity.Entity) entity.Entity {
	c := *e
	c.Properties = slices.Clone(e.Properties)
	return c
}

func (m *mockStore) entityIndex(id string) int {
	return slices.IndexFunc(m.entities, func(e entity.Entity) bool { return e.ID == id })
}

func (m *mockStore) GetEntity(ctx context.Context, id string) (*entity.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.entityIndex(id)
	if i < 0 || !visible(m.entities[i].TenantID, middleware.TenantIDFromContext(ctx)) {
		return nil, notFound("entity", id)
	}
	e := cloneEntity(&m.entities[i])
	return &e, nil
}

func (m *mockStore) GetEntityBySlug(ctx context.Context, slug string) (*entity.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tid := middleware.TenantIDFromContext(ctx)
	var found *entity.Entity
	for i := range m.entities {
		e := &m.entities[i]
		if e.Slug != slug || !visible(e.TenantID, tid) {
			continue
		}
		if found == nil || e.TenantID != "" {
			found = e
		}
	}
	if found == nil {
		return nil, notFound("entity", slug)
	}
	c := cloneEntity(found)
	return &c, nil
}

func (m *mockStore) ListEntities(ctx context.Context) ([]entity.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tid := middleware.TenantIDFromContext(ctx)
	var out []entity.Entity
	for i := range m.entities {
		if visible(m.entities[i].TenantID, tid) {
			out = append(out, cloneEntity(&m.entities[i]))
		}
	}
	return out, nil
}

func (m *mockStore) UpdateEntity(ctx context.Context, e *entity.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.entityIndex(e.ID)
	if !m.ownedEntity(ctx, e.ID) {
		return notFound("entity", e.ID)
	}
	props := m.entities[i].Properties
	m.entities[i] = cloneEntity(e)
	m.entities[i].Properties = props
	return nil
}

func (m *mockStore) DeleteEntity(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.entityIndex(id)
	if !m.ownedEntity(ctx, id) {
		return notFound("entity", id)
	}
	m.entities = slices.Delete(m.entities, i, i+1)
	m.rows = slices.DeleteFunc(m.rows, func(r row.Row) bool { return r.EntityID == id })
	return nil
}

func (m *mockStore) findProperty(id string) (*entity.Entity, int) {
	for i := range m.entities {
		for j := range m.entities[i].Properties {
			if m.entities[i].Properties[j].ID == id {
				return &m.entities[i], j
			}
		}
	}
	return nil, -1
}

func (m *mockStore) CreateProperty(ctx context.Context, p *entity.Property) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.entityIndex(p.EntityID)
	if !m.ownedEntity(ctx, p.EntityID) {
		return notFound("entity", p.EntityID)
	}
	if p.ID == "" {
		p.ID = newID()
	}
	m.entities[i].Properties = append(m.entities[i].Properties, *p)
	return nil
}

func (m *mockStore) UpdateProperty(ctx context.Context, p *entity.Property) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, j := m.findProperty(p.ID)
	if e == nil || !m.ownedEntity(ctx, e.ID) {
		return notFound("property", p.ID)
	}
	typ, opts, attrs := e.Properties[j].Type, e.Properties[j].Options, e.Properties[j].Attributes
	e.Properties[j] = *p
	e.Properties[j].Type, e.Properties[j].Options, e.Properties[j].Attributes = typ, opts, attrs
	return nil
}

func (m *mockStore) DeleteProperty(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, j := m.findProperty(id)
	if e == nil || !m.ownedEntity(ctx, e.ID) {
		return notFound("property", id)
	}
	e.Properties = slices.Delete(e.Properties, j, j+1)
	return nil
}

func (m *mockStore) DeletePropertyOptions(_ context.Context, propertyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, j := m.findProperty(propertyID); e != nil {
		e.Properties[j].Options = nil
	}
	return nil
}

func (m *mockStore) CreatePropertyOption(_ context.Context, propertyID string, o *entity.PropertyOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createOptionCalls++
	if m.createOptionErrAt > 0 && m.createOptionCalls == m.createOptionErrAt {
		return fmt.Errorf("option %s: %w", o.Value, domain.ErrConflict)
	}
	e, j := m.findProperty(propertyID)
	if e == nil {
		return notFound("property", propertyID)
	}
	o.ID = newID()
	e.Properties[j].Options = append(e.Properties[j].Options, *o)
	return nil
}

func (m *mockStore) DeletePropertyAttributes(_ context.Context, propertyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, j := m.findProperty(propertyID); e != nil {
		e.Properties[j].Attributes = nil
	}
	return nil
}

func (m *mockStore) CreatePropertyAttribute(_ context.Context, propertyID string, a *entity.PropertyAttribute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, j := m.findProperty(propertyID)
	if e == nil {
		return notFound("property", propertyID)
	}
	a.ID = newID()
	e.Properties[j].Attributes = append(e.Properties[j].Attributes, *a)
	return nil
}

func (m *mockStore) CreateRelationship(_ context.Context, r *entity.Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = newID()
	}
	m.relationships = append(m.relationships, *r)
	return nil
}

func (m *mockStore) GetRelationship(ctx context.Context, id string) (*entity.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.relationships {
		if m.relationships[i].ID == id && m.visibleRelationship(ctx, m.relationships[i]) {
			r := m.relationships[i]
			return &r, nil
		}
	}
	return nil, notFound("relationship", id)
}

func (m *mockStore) ListRelationships(ctx context.Context, entityID string) ([]entity.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.Relationship
	for _, r := range m.relationships {
		if (r.ParentID == entityID || r.ChildID == entityID) && m.visibleRelationship(ctx, r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) DeleteRelationship(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.relationships)
	m.relationships = slices.DeleteFunc(m.relationships, func(r entity.Relationship) bool {
		return r.ID == id && m.visibleRelationship(ctx, r) &&
			(m.ownedEntity(ctx, r.ParentID) || m.ownedEntity(ctx, r.ChildID))
	})
	if len(m.relationships) == n {
		return notFound("relationship", id)
	}
	return nil
}

// --- rows ---

func (m *mockStore) CreateRow(ctx context.Context, r *row.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createRowErr != nil {
		return m.createRowErr
	}
	if m.folios == nil {
		m.folios = make(map[string]int)
	}
	key := r.EntityID + "/" + r.TenantID
	m.folios[key]++
	r.Folio = m.folios[key]
	r.ID = newID()
	r.CreatedAt = time.Now().Add(time.Duration(len(m.rows)) * time.Millisecond)
	for i := range r.Values {
		r.Values[i].ID = newID()
	}
	for i := range r.Permissions {
		r.Permissions[i].ID = newID()
		r.Permissions[i].RowID = r.ID
	}
	m.rows = append(m.rows, cloneRow(r))
	return nil
}

func cloneRow(r *row.Row) row.Row {
	c := *r
	c.Values = slices.Clone(r.Values)
	c.Tags = slices.Clone(r.Tags)
	c.Permissions = slices.Clone(r.Permissions)
	return c
}

func (m *mockStore) rowIndex(ctx context.Context, id string) int {
	tid := middleware.TenantIDFromContext(ctx)
	return slices.IndexFunc(m.rows, func(r row.Row) bool { return r.ID == id && r.TenantID == tid })
}

func (m *mockStore) GetRow(ctx context.Context, id string) (*row.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.rowIndex(ctx, id)
	if i < 0 {
		return nil, notFound("row", id)
	}
	r := cloneRow(&m.rows[i])
	return &r, nil
}

func (m *mockStore) GetRowsByIDs(ctx context.Context, ids []string) ([]row.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tid := middleware.TenantIDFromContext(ctx)
	out := []row.Row{}
	for i := range m.rows {
		if m.rows[i].TenantID == tid && slices.Contains(ids, m.rows[i].ID) {
			out = append(out, cloneRow(&m.rows[i]))
		}
	}
	return out, nil
}

func inScope(r *row.Row, s database.RowScope) bool {
	if s.Bypass || len(r.Permissions) == 0 {
		return true
	}
	a := &permission.Actor{UserID: s.UserID, TenantID: s.TenantID, RoleIDs: s.RoleIDs, GroupIDs: s.GroupIDs}
	for i := range r.Permissions {
		if r.Permissions[i].Matches(a) {
			return true
		}
	}
	return false
}

func (m *mockStore) ListRows(ctx context.Context, e *entity.Entity, q rowquery.Query, scope database.RowScope) ([]row.Row, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listRowsErr != nil {
		return nil, 0, m.listRowsErr
	}
	tid := middleware.TenantIDFromContext(ctx)
	var rows []row.Row
	for i := range m.rows {
		r := &m.rows[i]
		if r.EntityID == e.ID && r.TenantID == tid && inScope(r, scope) {
			rows = append(rows, cloneRow(r))
		}
	}
	page := rowquery.Apply(rows, e, q)
	return page.Items, page.Pagination.TotalItems, nil
}

// CountRows counts across tenants like the postgres store.
func (m *mockStore) CountRows(_ context.Context, entityID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.EntityID == entityID {
			n++
		}
	}
	return n, nil
}

func (m *mockStore) UpsertRowValue(ctx context.Context, rowID string, v *row.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertValueErr != nil {
		return m.upsertValueErr
	}
	i := m.rowIndex(ctx, rowID)
	if i < 0 {
		return notFound("row", rowID)
	}
	if v.ID == "" {
		v.ID = newID()
	}
	m.rows[i].SetValue(*v)
	return nil
}

func (m *mockStore) DeleteRow(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.rowIndex(ctx, id)
	if i < 0 {
		return notFound("row", id)
	}
	m.rows = slices.Delete(m.rows, i, i+1)
	m.links = slices.DeleteFunc(m.links, func(l entity.RowRelationship) bool {
		return l.ParentRowID == id || l.ChildRowID == id
	})
	return nil
}

func (m *mockStore) SetRowTags(ctx context.Context, rowID string, tags []row.Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.rowIndex(ctx, rowID)
	if i < 0 {
		return notFound("row", rowID)
	}
	m.rows[i].Tags = slices.Clone(tags)
	return nil
}

func (m *mockStore) rowByID(id string) *row.Row {
	for i := range m.rows {
		if m.rows[i].ID == id {
			return &m.rows[i]
		}
	}
	return nil
}

func (m *mockStore) ListRowPermissions(_ context.Context, rowID string) ([]permission.Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.rowByID(rowID); r != nil {
		return slices.Clone(r.Permissions), nil
	}
	return nil, notFound("row", rowID)
}

func (m *mockStore) CreateRowPermission(_ context.Context, g *permission.Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createGrantCalls++
	if m.createGrantErrAt > 0 && m.createGrantCalls == m.createGrantErrAt {
		return fmt.Errorf("grant: %w", domain.ErrConflict)
	}
	r := m.rowByID(g.RowID)
	if r == nil {
		return notFound("row", g.RowID)
	}
	g.ID = newID()
	r.Permissions = append(r.Permissions, *g)
	return nil
}

func (m *mockStore) DeleteRowPermissions(_ context.Context, rowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.rowByID(rowID); r != nil {
		r.Permissions = nil
	}
	return nil
}

func (m *mockStore) CreateRowRelationship(_ context.Context, rr *entity.RowRelationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rr.ID = newID()
	m.links = append(m.links, *rr)
	return nil
}

func (m *mockStore) ListChildRowIDs(_ context.Context, relationshipID, parentRowID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, l := range m.links {
		if l.RelationshipID == relationshipID && l.ParentRowID == parentRowID {
			out = append(out, l.ChildRowID)
		}
	}
	return out, nil
}

func (m *mockStore) ListChildRowIDsByParent(_ context.Context, parentRowID string, cascadeOnly bool) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, l := range m.links {
		if l.ParentRowID != parentRowID {
			continue
		}
		if cascadeOnly {
			idx := slices.IndexFunc(m.relationships, func(r entity.Relationship) bool { return r.ID == l.RelationshipID })
			if idx < 0 || !m.relationships[idx].Cascade {
				continue
			}
		}
		out = append(out, l.ChildRowID)
	}
	return out, nil
}

// --- fixtures ---

// memCache is a map-backed cache.Cache.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// fakeQueue records published messages.
type fakeQueue struct {
	mu         sync.Mutex
	published  []published
	publishErr error
}

type published struct {
	subject string
	data    []byte
}

func (q *fakeQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published = append(q.published, published{subject, data})
	return nil
}

func (q *fakeQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}
func (q *fakeQueue) Drain() error      { return nil }
func (q *fakeQueue) Close() error      { return nil }
func (q *fakeQueue) IsConnected() bool { return true }

// fakeMailer records sent emails.
type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

type sentMail struct {
	to, template string
	data         map[string]any
}

func (f *fakeMailer) SendEmail(_ context.Context, to, template string, data map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to, template, data})
	return nil
}

func ptr[T any](v T) *T { return &v }
