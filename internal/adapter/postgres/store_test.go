package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/backoffice/internal/adapter/postgres"
	"github.com/Strob0t/backoffice/internal/domain"
	"github.com/Strob0t/backoffice/internal/domain/entity"
	"github.com/Strob0t/backoffice/internal/domain/permission"
	"github.com/Strob0t/backoffice/internal/domain/row"
	"github.com/Strob0t/backoffice/internal/domain/rowquery"
	"github.com/Strob0t/backoffice/internal/domain/tenant"
	"github.com/Strob0t/backoffice/internal/domain/user"
	"github.com/Strob0t/backoffice/internal/middleware"
	"github.com/Strob0t/backoffice/internal/port/database"
)

// setupStore creates a pgxpool connection, runs all migrations, and returns a
// ready-to-use Store. The pool is closed via t.Cleanup.
func setupStore(t *testing.T) *postgres.Store {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return postgres.NewStore(pool)
}

// createTestTenant creates a tenant with a random slug and returns a context
// scoped to it.
func createTestTenant(t *testing.T, store *postgres.Store) (string, context.Context) {
	t.Helper()
	slug := "test-" + uuid.NewString()[:8]
	tn := &tenant.Tenant{Name: "Test " + slug, Slug: slug, Active: true}
	if err := store.CreateTenant(context.Background(), tn); err != nil {
		t.Fatalf("create test tenant: %v", err)
	}
	return tn.ID, middleware.WithTenantID(context.Background(), tn.ID)
}

func createTestEntity(t *testing.T, store *postgres.Store, ctx context.Context, tenantID string) *entity.Entity {
	t.Helper()
	e := &entity.Entity{
		TenantID:    tenantID,
		Name:        "Candidate",
		Slug:        "candidates",
		Title:       "Candidate",
		TitlePlural: "Candidates",
		HasTags:     true,
	}
	if err := store.CreateEntity(ctx, e); err != nil {
		t.Fatalf("create entity: %v", err)
	}
	p := &entity.Property{
		EntityID: e.ID, Name: "name", Title: "Name", Type: entity.TypeText, Order: 1,
		IsSearchable: true, IsFilterable: true, CanUpdate: true, ShowInCreate: true,
	}
	if err := store.CreateProperty(ctx, p); err != nil {
		t.Fatalf("create property: %v", err)
	}
	got, err := store.GetEntity(ctx, e.ID)
	if err != nil {
		t.Fatalf("get entity: %v", err)
	}
	return got
}

func text(s string) *string { return &s }

func TestStore_TenantCRUD(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	id, _ := createTestTenant(t, store)
	got, err := store.GetTenant(ctx, id)
	if err != nil {
		t.Fatalf("get tenant: %v", err)
	}
	bySlug, err := store.GetTenantBySlug(ctx, got.Slug)
	if err != nil || bySlug.ID != id {
		t.Fatalf("get tenant by slug: %v, %+v", err, bySlug)
	}

	got.Name = "Renamed"
	if err := store.UpdateTenant(ctx, got); err != nil {
		t.Fatalf("update tenant: %v", err)
	}
	dup := &tenant.Tenant{Name: "Dup", Slug: got.Slug}
	if err := store.CreateTenant(ctx, dup); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("duplicate slug error = %v, want ErrConflict", err)
	}
	if _, err := store.GetTenant(ctx, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing tenant error = %v, want ErrNotFound", err)
	}
}

func TestStore_UserRoles(t *testing.T) {
	store := setupStore(t)
	tenantID, ctx := createTestTenant(t, store)

	u := &user.User{Email: uuid.NewString()[:8] + "@example.com", FirstName: "Ada", PasswordHash: "x", Active: true}
	if err := store.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	r := &user.Role{TenantID: tenantID, Name: "Sales", Permissions: []string{"entity.Candidate.view"}}
	if err := store.CreateRole(ctx, r); err != nil {
		t.Fatalf("create role: %v", err)
	}
	if err := store.AssignRole(ctx, user.RoleAssignment{UserID: u.ID, RoleID: r.ID, TenantID: tenantID}); err != nil {
		t.Fatalf("assign role: %v", err)
	}

	roles, err := store.ListUserRoles(ctx, u.ID, tenantID)
	if err != nil || len(roles) != 1 || roles[0].Permissions[0] != "entity.Candidate.view" {
		t.Fatalf("list user roles: %v, %+v", err, roles)
	}
	users, err := store.ListUsers(ctx)
	if err != nil || len(users) != 1 {
		t.Fatalf("list tenant users: %v, %d", err, len(users))
	}
	byEmail, err := store.GetUserByEmail(ctx, u.Email)
	if err != nil || byEmail.ID != u.ID {
		t.Fatalf("get user by email: %v", err)
	}
}

func TestStore_RowLifecycle(t *testing.T) {
	store := setupStore(t)
	tenantID, ctx := createTestTenant(t, store)
	e := createTestEntity(t, store, ctx, tenantID)
	nameProp := e.Properties[0]

	for _, name := range []string{"Ann", "Bob", "Cleo"} {
		r := &row.Row{
			EntityID: e.ID,
			TenantID: tenantID,
			Values:   []row.Value{{PropertyID: nameProp.ID, Text: text(name)}},
			Tags:     []row.Tag{{Value: "lead"}},
		}
		if err := store.CreateRow(ctx, r); err != nil {
			t.Fatalf("create row: %v", err)
		}
	}

	q := rowquery.Query{Page: 1, PageSize: 2, SortBy: rowquery.KeyFolio}
	rows, total, err := store.ListRows(ctx, e, q, database.RowScope{Bypass: true})
	if err != nil {
		t.Fatalf("list rows: %v", err)
	}
	if total != 3 || len(rows) != 2 {
		t.Fatalf("total=%d len=%d, want 3 and 2", total, len(rows))
	}
	if rows[0].Folio != 1 || rows[1].Folio != 2 {
		t.Errorf("folios = %d, %d", rows[0].Folio, rows[1].Folio)
	}
	if v, ok := rows[0].GetValue(nameProp.ID); !ok || *v.Text != "Ann" {
		t.Errorf("first row value = %+v", v)
	}

	q = rowquery.Query{Page: 1, PageSize: 10, Q: "cle"}
	rows, total, err = store.ListRows(ctx, e, q, database.RowScope{Bypass: true})
	if err != nil || total != 1 || len(rows) != 1 {
		t.Fatalf("search: %v total=%d", err, total)
	}

	// A row restricted to another user disappears for a scoped actor.
	target := rows[0]
	if err := store.CreateRowPermission(ctx, &permission.Grant{RowID: target.ID, UserID: uuid.NewString(), Access: permission.AccessView}); err != nil {
		t.Fatalf("create row permission: %v", err)
	}
	scope := database.RowScope{TenantID: tenantID, UserID: uuid.NewString()}
	_, total, err = store.ListRows(ctx, e, rowquery.Query{Page: 1, PageSize: 10}, scope)
	if err != nil || total != 2 {
		t.Fatalf("scoped total = %d (%v), want 2", total, err)
	}

	// Values are upserted: one value per property.
	if err := store.UpsertRowValue(ctx, target.ID, &row.Value{PropertyID: nameProp.ID, Text: text("Cleopatra")}); err != nil {
		t.Fatalf("upsert value: %v", err)
	}
	got, err := store.GetRow(ctx, target.ID)
	if err != nil {
		t.Fatalf("get row: %v", err)
	}
	if len(got.Values) != 1 || *got.Values[0].Text != "Cleopatra" {
		t.Errorf("values after upsert = %+v", got.Values)
	}

	// Other tenants cannot see the row.
	_, otherCtx := createTestTenant(t, store)
	if _, err := store.GetRow(otherCtx, target.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("cross-tenant get error = %v, want ErrNotFound", err)
	}

	if err := store.DeleteRow(ctx, target.ID); err != nil {
		t.Fatalf("delete row: %v", err)
	}
	if n, _ := store.CountRows(ctx, e.ID); n != 2 {
		t.Errorf("count after delete = %d, want 2", n)
	}
}

func TestStore_RowRelationshipCascadeLookup(t *testing.T) {
	store := setupStore(t)
	tenantID, ctx := createTestTenant(t, store)
	e := createTestEntity(t, store, ctx, tenantID)

	rel := &entity.Relationship{ParentID: e.ID, ChildID: e.ID, Type: entity.OneToMany, Cascade: true}
	if err := store.CreateRelationship(ctx, rel); err != nil {
		t.Fatalf("create relationship: %v", err)
	}
	parent := &row.Row{EntityID: e.ID, TenantID: tenantID}
	child := &row.Row{EntityID: e.ID, TenantID: tenantID}
	for _, r := range []*row.Row{parent, child} {
		if err := store.CreateRow(ctx, r); err != nil {
			t.Fatalf("create row: %v", err)
		}
	}
	if err := store.CreateRowRelationship(ctx, &entity.RowRelationship{RelationshipID: rel.ID, ParentRowID: parent.ID, ChildRowID: child.ID}); err != nil {
		t.Fatalf("link rows: %v", err)
	}

	ids, err := store.ListChildRowIDsByParent(ctx, parent.ID, true)
	if err != nil || len(ids) != 1 || ids[0] != child.ID {
		t.Fatalf("cascade children = %v (%v)", ids, err)
	}
	got, err := store.GetRow(ctx, child.ID)
	if err != nil || len(got.ParentIDs) != 1 {
		t.Fatalf("child parents = %+v (%v)", got, err)
	}
}

func TestStore_ScopedSchemaAndRoleWrites(t *testing.T) {
	store := setupStore(t)
	tenantA, ctxA := createTestTenant(t, store)
	tenantB, ctxB := createTestTenant(t, store)
	e := createTestEntity(t, store, ctxA, tenantA)

	r := &user.Role{TenantID: tenantA, Name: "Sales", Permissions: []string{}}
	if err := store.CreateRole(ctxA, r); err != nil {
		t.Fatalf("create role: %v", err)
	}
	if _, err := store.GetRole(ctxB, r.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("foreign role read error = %v, want ErrNotFound", err)
	}
	if err := store.UpdateRolePermissions(ctxB, r.ID, []string{permission.AdminRolesUpdate}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("foreign role write error = %v, want ErrNotFound", err)
	}

	sys := &user.Role{Name: "System " + uuid.NewString()[:8], Permissions: []string{}}
	if err := store.CreateRole(context.Background(), sys); err != nil {
		t.Fatalf("create system role: %v", err)
	}
	if _, err := store.GetRole(ctxA, sys.ID); err != nil {
		t.Errorf("system role should be readable from a tenant: %v", err)
	}
	if err := store.UpdateRolePermissions(ctxA, sys.ID, []string{}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("system role write from tenant error = %v, want ErrNotFound", err)
	}

	rel := &entity.Relationship{ParentID: e.ID, ChildID: e.ID, Type: entity.OneToMany}
	if err := store.CreateRelationship(ctxA, rel); err != nil {
		t.Fatalf("create relationship: %v", err)
	}
	if _, err := store.GetRelationship(ctxB, rel.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("foreign relationship read error = %v, want ErrNotFound", err)
	}
	if err := store.DeleteRelationship(ctxB, rel.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("foreign relationship delete error = %v, want ErrNotFound", err)
	}
	if err := store.DeleteProperty(ctxB, e.Properties[0].ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("foreign property delete error = %v, want ErrNotFound", err)
	}

	// A system entity with rows in two tenants.
	name := "Shared" + uuid.NewString()[:8]
	shared := &entity.Entity{Name: name, Slug: name, Title: name, TitlePlural: name}
	if err := store.CreateEntity(context.Background(), shared); err != nil {
		t.Fatalf("create system entity: %v", err)
	}
	if err := store.CreateRow(ctxB, &row.Row{EntityID: shared.ID, TenantID: tenantB}); err != nil {
		t.Fatalf("create row: %v", err)
	}
	if n, _ := store.CountRows(ctxA, shared.ID); n != 1 {
		t.Errorf("count from tenant A = %d, want rows of every tenant", n)
	}
	if err := store.DeleteEntity(ctxA, shared.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("system entity delete from tenant error = %v, want ErrNotFound", err)
	}
	shared.Title = "Renamed"
	if err := store.UpdateEntity(ctxA, shared); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("system entity update from tenant error = %v, want ErrNotFound", err)
	}
	if err := store.CreateProperty(ctxA, &entity.Property{EntityID: shared.ID, Name: "x", Title: "X", Type: entity.TypeText}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("property on system entity from tenant error = %v, want ErrNotFound", err)
	}
	if err := store.DeleteEntity(context.Background(), shared.ID); err != nil {
		t.Errorf("system scope delete: %v", err)
	}
}
