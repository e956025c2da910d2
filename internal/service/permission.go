package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/Strob0t/backoffice/internal/adapter/otel"
	"github.com/Strob0t/backoffice/internal/domain"
	"github.com/Strob0t/backoffice/internal/domain/permission"
	"github.com/Strob0t/backoffice/internal/middleware"
	"github.com/Strob0t/backoffice/internal/port/cache"
	"github.com/Strob0t/backoffice/internal/port/database"
)

// PermissionService resolves the actor a user acts as within a tenant.
// Resolved actors are cached per user and tenant and must be invalidated
// whenever a role assignment or role permission list changes.
type PermissionService struct {
	store   database.UserStore
	cache   cache.Cache
	ttl     time.Duration
	metrics *cfotel.Metrics
}

// NewPermissionService creates a PermissionService caching actors for ttl.
func NewPermissionService(store database.UserStore, c cache.Cache, ttl time.Duration) *PermissionService {
	return &PermissionService{store: store, cache: c, ttl: ttl}
}

// SetMetrics enables denial counting.
func (s *PermissionService) SetMetrics(m *cfotel.Metrics) { s.metrics = m }

func actorKey(userID, tenantID string) string {
	if tenantID == "" {
		tenantID = "system"
	}
	return cache.Key("perm", tenantID, userID)
}

// Resolve returns the actor for userID in tenantID ("" for the system scope).
//
// Permissions is left nil while no role exists at all, so a fresh install
// is usable before roles are configured. Once roles exist the set is the
// union of the user's role permissions in the tenant, possibly empty. Outside
// a tenant, roles do not apply and non super admins get an empty set.
func (s *PermissionService) Resolve(ctx context.Context, userID, tenantID string) (*permission.Actor, error) {
	key := actorKey(userID, tenantID)
	if s.cache != nil {
		if a, ok, err := cache.GetJSON[permission.Actor](ctx, s.cache, key); err == nil && ok {
			return &a, nil
		}
	}

	_, span := cfotel.StartPermissionSpan(ctx, userID, tenantID)
	defer span.End()

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve actor: %w", err)
	}
	if !u.Active {
		return nil, fmt.Errorf("user %s is inactive: %w", userID, domain.ErrUnauthorized)
	}

	a := &permission.Actor{UserID: u.ID, TenantID: tenantID, IsSuperAdmin: u.IsSuperAdmin}
	if !a.IsSuperAdmin {
		if err := s.loadPermissions(ctx, a); err != nil {
			return nil, err
		}
	}

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, key, a, s.ttl); err != nil {
			slog.WarnContext(ctx, "cache actor failed", "user_id", userID, "error", err)
		}
	}
	return a, nil
}

func (s *PermissionService) loadPermissions(ctx context.Context, a *permission.Actor) error {
	defined, err := s.store.ListRoles(middleware.WithTenantID(ctx, a.TenantID))
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}
	if len(defined) == 0 {
		return nil
	}

	a.Permissions = []string{}
	if a.TenantID == "" {
		return nil
	}

	roles, err := s.store.ListUserRoles(ctx, a.UserID, a.TenantID)
	if err != nil {
		return fmt.Errorf("list user roles: %w", err)
	}
	for _, r := range roles {
		a.RoleIDs = append(a.RoleIDs, r.ID)
		for _, p := range r.Permissions {
			if !slices.Contains(a.Permissions, p) {
				a.Permissions = append(a.Permissions, p)
			}
		}
	}
	slices.Sort(a.Permissions)

	a.GroupIDs, err = s.store.ListUserGroupIDs(ctx, a.UserID, a.TenantID)
	if err != nil {
		return fmt.Errorf("list user groups: %w", err)
	}
	return nil
}

// Invalidate drops the cached actor of a user in a tenant.
func (s *PermissionService) Invalidate(ctx context.Context, userID, tenantID string) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Delete(ctx, actorKey(userID, tenantID)); err != nil {
		return fmt.Errorf("invalidate permissions of %s: %w", userID, err)
	}
	return nil
}

// InvalidateRole drops the cached actor of every user assigned to the role.
func (s *PermissionService) InvalidateRole(ctx context.Context, roleID string) error {
	assignments, err := s.store.ListRoleAssignments(ctx, roleID)
	if err != nil {
		return fmt.Errorf("list role assignments: %w", err)
	}
	var errs []error
	for _, as := range assignments {
		if err := s.Invalidate(ctx, as.UserID, as.TenantID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Check fails with ErrUnauthorized without an actor and ErrForbidden when the
// actor lacks the permission.
func (s *PermissionService) Check(ctx context.Context, a *permission.Actor, name string) error {
	if err := requireActor(a); err != nil {
		return err
	}
	if !a.Has(name) {
		s.denied(ctx, name)
		return fmt.Errorf("missing permission %s: %w", name, domain.ErrForbidden)
	}
	return nil
}

// CheckRow applies the entity permission and the row grant overlay.
func (s *PermissionService) CheckRow(ctx context.Context, a *permission.Actor, entityName string, act permission.Action, grants []permission.Grant) error {
	if err := requireActor(a); err != nil {
		return err
	}
	if !permission.CanAccessRow(a, entityName, act, grants) {
		key := permission.EntityKey(entityName, act)
		s.denied(ctx, key)
		return fmt.Errorf("row access %s: %w", key, domain.ErrForbidden)
	}
	return nil
}

func (s *PermissionService) denied(ctx context.Context, name string) {
	slog.InfoContext(ctx, "permission denied", "permission", name)
	if s.metrics != nil {
		s.metrics.PermissionDenials.Add(ctx, 1, metric.WithAttributes(attribute.String("permission", name)))
	}
}
