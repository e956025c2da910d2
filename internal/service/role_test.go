package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/backoffice/internal/domain"
	"github.com/Strob0t/backoffice/internal/domain/permission"
	"github.com/Strob0t/backoffice/internal/domain/user"
)

func TestRoleService_CreateValidatesKeys(t *testing.T) {
	store := &mockStore{}
	svc := NewRoleService(store, NewPermissionService(store, nil, 0))

	_, err := svc.Create(tenantCtx(), admin, user.CreateRoleRequest{Name: "Recruiter", Permissions: []string{"entity.Candidate.fly"}})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
	r, err := svc.Create(tenantCtx(), admin, user.CreateRoleRequest{Name: " Recruiter ", Permissions: []string{"entity.Candidate.view", permission.AdminUsersInvite}})
	if err != nil {
		t.Fatal(err)
	}
	if r.Name != "Recruiter" || r.TenantID != testTenant {
		t.Errorf("role = %+v", r)
	}
}

func TestRoleService_RequiresPermission(t *testing.T) {
	store := &mockStore{}
	svc := NewRoleService(store, NewPermissionService(store, nil, 0))
	viewer := &permission.Actor{UserID: "u", TenantID: testTenant, Permissions: []string{permission.AdminRolesView}}

	if _, err := svc.List(tenantCtx(), viewer); err != nil {
		t.Errorf("list: %v", err)
	}
	if _, err := svc.Create(tenantCtx(), viewer, user.CreateRoleRequest{Name: "x"}); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("create err = %v, want ErrForbidden", err)
	}
}

func TestRoleService_AssignAndUpdateInvalidateActors(t *testing.T) {
	store := &mockStore{}
	u := seedUser(t, store, "a@example.com", false)
	perms := NewPermissionService(store, newMemCache(), time.Minute)
	svc := NewRoleService(store, perms)
	ctx := tenantCtx()

	r, err := svc.Create(ctx, admin, user.CreateRoleRequest{Name: "Viewer", Permissions: []string{"entity.Candidate.view"}})
	if err != nil {
		t.Fatal(err)
	}

	before, _ := perms.Resolve(ctx, u.ID, testTenant)
	if before.Has("entity.Candidate.view") {
		t.Fatal("unassigned user should not hold the role's permission")
	}

	if err := svc.Assign(ctx, admin, r.ID, u.ID); err != nil {
		t.Fatal(err)
	}
	after, _ := perms.Resolve(ctx, u.ID, testTenant)
	if !after.Has("entity.Candidate.view") {
		t.Error("assignment did not invalidate the cached actor")
	}

	updated, err := svc.UpdatePermissions(ctx, admin, r.ID, []string{"entity.Candidate.update"})
	if err != nil {
		t.Fatal(err)
	}
	if len(updated.Permissions) != 1 {
		t.Errorf("permissions = %v", updated.Permissions)
	}
	after, _ = perms.Resolve(ctx, u.ID, testTenant)
	if after.Has("entity.Candidate.view") || !after.Has("entity.Candidate.update") {
		t.Errorf("after update permissions = %v", after.Permissions)
	}
}

func TestRoleService_AssignOutsideTenant(t *testing.T) {
	store := &mockStore{}
	svc := NewRoleService(store, NewPermissionService(store, nil, 0))
	if err := svc.Assign(context.Background(), admin, "r", "u"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestRoleService_ForeignAndSystemRolesAreReadOnly(t *testing.T) {
	store := &mockStore{}
	u := seedUser(t, store, "a@example.com", false)
	svc := NewRoleService(store, NewPermissionService(store, nil, 0))
	roleAdmin := &permission.Actor{UserID: "u", TenantID: testTenant, Permissions: []string{permission.AdminRolesUpdate}}
	ctx := tenantCtx()

	foreign := &user.Role{TenantID: "99999999-9999-9999-9999-999999999999", Name: "Theirs", Permissions: []string{}}
	system := &user.Role{Name: "Everyone", Permissions: []string{}}
	for _, r := range []*user.Role{foreign, system} {
		if err := store.CreateRole(context.Background(), r); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := svc.UpdatePermissions(ctx, roleAdmin, foreign.ID, []string{permission.AdminRolesUpdate}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("foreign update err = %v, want ErrNotFound", err)
	}
	if _, err := svc.UpdatePermissions(ctx, roleAdmin, system.ID, []string{permission.AdminRolesUpdate}); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("system update err = %v, want ErrForbidden", err)
	}
	for _, r := range store.roles {
		if len(r.Permissions) != 0 {
			t.Errorf("role %s changed to %v", r.Name, r.Permissions)
		}
	}

	if err := svc.Assign(ctx, roleAdmin, foreign.ID, u.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("foreign assign err = %v, want ErrNotFound", err)
	}
	if err := svc.Assign(ctx, roleAdmin, system.ID, u.ID); err != nil {
		t.Errorf("system roles can be assigned within a tenant: %v", err)
	}
	if len(store.assignments) != 1 || store.assignments[0].RoleID != system.ID {
		t.Errorf("assignments = %+v", store.assignments)
	}

	if _, err := svc.UpdatePermissions(context.Background(), admin, system.ID, []string{permission.AdminRolesView}); err != nil {
		t.Errorf("system scope update: %v", err)
	}
}
