package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Strob0t/backoffice/internal/domain"
	"github.com/Strob0t/backoffice/internal/domain/permission"
	"github.com/Strob0t/backoffice/internal/domain/user"
)

func seedUser(t *testing.T, store *mockStore, email string, superAdmin bool) *user.User {
	t.Helper()
	u := &user.User{ID: generateID(), Email: email, FirstName: "Test", Active: true, IsSuperAdmin: superAdmin}
	if err := store.CreateUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}

func seedRole(t *testing.T, store *mockStore, tenantID string, perms ...string) *user.Role {
	t.Helper()
	r := &user.Role{TenantID: tenantID, Name: "role-" + generateID()[:8], Permissions: perms}
	if err := store.CreateRole(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestPermissionService_FailOpenWithoutRoles(t *testing.T) {
	store := &mockStore{}
	u := seedUser(t, store, "a@example.com", false)
	svc := NewPermissionService(store, nil, 0)

	a, err := svc.Resolve(context.Background(), u.ID, testTenant)
	if err != nil {
		t.Fatal(err)
	}
	if a.Permissions != nil {
		t.Errorf("permissions = %v, want nil before any role exists", a.Permissions)
	}
	if !a.Has("entity.Anything.delete") {
		t.Error("fail-open actor should hold every permission")
	}
}

func TestPermissionService_UnionOfRoles(t *testing.T) {
	store := &mockStore{}
	u := seedUser(t, store, "a@example.com", false)
	r1 := seedRole(t, store, testTenant, "entity.Candidate.view", "admin.roles.view")
	r2 := seedRole(t, store, "", "entity.Candidate.view", "entity.Candidate.create")
	seedRole(t, store, testTenant, "admin.users.invite") // not assigned
	for _, r := range []*user.Role{r1, r2} {
		_ = store.AssignRole(context.Background(), user.RoleAssignment{UserID: u.ID, RoleID: r.ID, TenantID: testTenant})
	}
	store.groups = map[string][]string{u.ID: {"g1"}}

	svc := NewPermissionService(store, nil, 0)
	a, err := svc.Resolve(context.Background(), u.ID, testTenant)
	if err != nil {
		t.Fatal(err)
	}
	want := &permission.Actor{
		UserID:      u.ID,
		TenantID:    testTenant,
		Permissions: []string{"admin.roles.view", "entity.Candidate.create", "entity.Candidate.view"},
		RoleIDs:     []string{r1.ID, r2.ID},
		GroupIDs:    []string{"g1"},
	}
	if diff := cmp.Diff(want, a); diff != "" {
		t.Errorf("actor mismatch (-want +got):\n%s", diff)
	}
}

func TestPermissionService_EmptySetOnceRolesExist(t *testing.T) {
	store := &mockStore{}
	u := seedUser(t, store, "a@example.com", false)
	seedRole(t, store, testTenant, "entity.Candidate.view")
	svc := NewPermissionService(store, nil, 0)

	a, err := svc.Resolve(context.Background(), u.ID, testTenant)
	if err != nil {
		t.Fatal(err)
	}
	if a.Permissions == nil || len(a.Permissions) != 0 {
		t.Errorf("permissions = %#v, want empty non-nil", a.Permissions)
	}
	if err := svc.Check(context.Background(), a, "entity.Candidate.view"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("check err = %v, want ErrForbidden", err)
	}
}

func TestPermissionService_SystemScope(t *testing.T) {
	store := &mockStore{}
	u := seedUser(t, store, "a@example.com", false)
	root := seedUser(t, store, "root@example.com", true)
	seedRole(t, store, "", "entity.Candidate.view")
	svc := NewPermissionService(store, nil, 0)

	a, err := svc.Resolve(context.Background(), u.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if a.Has("entity.Candidate.view") {
		t.Error("non super admin outside a tenant should hold nothing")
	}

	a, err = svc.Resolve(context.Background(), root.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if !a.IsSuperAdmin || !a.Has("admin.roles.update") {
		t.Errorf("super admin actor = %+v", a)
	}
}

func TestPermissionService_InactiveUser(t *testing.T) {
	store := &mockStore{}
	u := &user.User{ID: generateID(), Email: "gone@example.com"}
	_ = store.CreateUser(context.Background(), u)
	svc := NewPermissionService(store, nil, 0)
	if _, err := svc.Resolve(context.Background(), u.ID, testTenant); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestPermissionService_CacheAndInvalidate(t *testing.T) {
	store := &mockStore{}
	u := seedUser(t, store, "a@example.com", false)
	role := seedRole(t, store, testTenant, "entity.Candidate.view")
	_ = store.AssignRole(context.Background(), user.RoleAssignment{UserID: u.ID, RoleID: role.ID, TenantID: testTenant})
	ctx := context.Background()
	svc := NewPermissionService(store, newMemCache(), time.Minute)

	if _, err := svc.Resolve(ctx, u.ID, testTenant); err != nil {
		t.Fatal(err)
	}
	_ = store.UpdateRolePermissions(ctx, role.ID, []string{"entity.Candidate.delete"})

	a, _ := svc.Resolve(ctx, u.ID, testTenant)
	if store.getUserCalls != 1 {
		t.Errorf("store hits = %d, want 1 (second resolve cached)", store.getUserCalls)
	}
	if !a.Has("entity.Candidate.view") {
		t.Error("cached actor should still hold the old permission")
	}

	if err := svc.InvalidateRole(ctx, role.ID); err != nil {
		t.Fatal(err)
	}
	a, _ = svc.Resolve(ctx, u.ID, testTenant)
	if a.Has("entity.Candidate.view") || !a.Has("entity.Candidate.delete") {
		t.Errorf("after invalidation permissions = %v", a.Permissions)
	}
}

func TestPermissionService_CheckRow(t *testing.T) {
	svc := NewPermissionService(&mockStore{}, nil, 0)
	ctx := context.Background()
	a := &permission.Actor{UserID: "u1", TenantID: testTenant, Permissions: []string{"entity.Candidate.update"}}
	grants := []permission.Grant{{UserID: "u1", Access: permission.AccessView}}

	if err := svc.CheckRow(ctx, a, "Candidate", permission.ActionUpdate, nil); err != nil {
		t.Errorf("ungranted row: %v", err)
	}
	if err := svc.CheckRow(ctx, a, "Candidate", permission.ActionUpdate, grants); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("view grant on update: err = %v", err)
	}
	if err := svc.CheckRow(ctx, nil, "Candidate", permission.ActionView, nil); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("nil actor: err = %v", err)
	}
}
