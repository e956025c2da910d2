package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Strob0t/backoffice/internal/domain"
	"github.com/Strob0t/backoffice/internal/domain/permission"
	"github.com/Strob0t/backoffice/internal/domain/user"
	"github.com/Strob0t/backoffice/internal/middleware"
	"github.com/Strob0t/backoffice/internal/port/database"
)

// RoleService manages roles and their assignment to users. Every change
// invalidates the cached actors it affects.
type RoleService struct {
	store database.UserStore
	perms *PermissionService
}

// NewRoleService creates a RoleService.
func NewRoleService(store database.UserStore, perms *PermissionService) *RoleService {
	return &RoleService{store: store, perms: perms}
}

// List returns the tenant roles and the system roles.
func (s *RoleService) List(ctx context.Context, a *permission.Actor) ([]user.Role, error) {
	if err := s.perms.Check(ctx, a, permission.AdminRolesView); err != nil {
		return nil, err
	}
	return s.store.ListRoles(ctx)
}

// Create adds a role to the tenant of ctx, or a system role in the system scope.
func (s *RoleService) Create(ctx context.Context, a *permission.Actor, req user.CreateRoleRequest) (*user.Role, error) {
	if err := s.perms.Check(ctx, a, permission.AdminRolesUpdate); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}

	r := &user.Role{
		TenantID:         middleware.TenantIDFromContext(ctx),
		Name:             req.Name,
		Description:      req.Description,
		AssignToNewUsers: req.AssignToNewUsers,
		Permissions:      req.Permissions,
	}
	if r.Permissions == nil {
		r.Permissions = []string{}
	}
	if err := s.store.CreateRole(ctx, r); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "role created", "role_id", r.ID, "name", r.Name)
	return r, nil
}

// UpdatePermissions replaces the permission list of a role owned by the
// scope and drops the cached actors of every user holding it.
func (s *RoleService) UpdatePermissions(ctx context.Context, a *permission.Actor, roleID string, keys []string) (*user.Role, error) {
	if err := s.perms.Check(ctx, a, permission.AdminRolesUpdate); err != nil {
		return nil, err
	}
	if err := user.ValidatePermissionKeys(keys); err != nil {
		return nil, invalid(err)
	}
	if keys == nil {
		keys = []string{}
	}
	r, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if r.TenantID != middleware.TenantIDFromContext(ctx) {
		return nil, fmt.Errorf("role %s is a system role: %w", r.Name, domain.ErrForbidden)
	}
	if err := s.store.UpdateRolePermissions(ctx, roleID, keys); err != nil {
		return nil, err
	}
	if err := s.perms.InvalidateRole(ctx, roleID); err != nil {
		return nil, fmt.Errorf("invalidate role %s: %w", roleID, err)
	}
	return s.store.GetRole(ctx, roleID)
}

// Assign gives userID the role within the tenant of ctx. The role must be
// the tenant's own or a system role.
func (s *RoleService) Assign(ctx context.Context, a *permission.Actor, roleID, userID string) error {
	if err := s.perms.Check(ctx, a, permission.AdminRolesUpdate); err != nil {
		return err
	}
	tenantID := middleware.TenantIDFromContext(ctx)
	if tenantID == "" {
		return fmt.Errorf("%w: roles are assigned within a tenant", domain.ErrValidation)
	}
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return err
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return err
	}
	if err := s.store.AssignRole(ctx, user.RoleAssignment{UserID: userID, RoleID: roleID, TenantID: tenantID}); err != nil {
		return err
	}
	return s.perms.Invalidate(ctx, userID, tenantID)
}
