// Package database defines the database store port (interface).
//
// Tenant-scoped methods read the tenant from the context (see
// middleware.TenantIDFromContext). An empty tenant selects system-wide
// records, those stored without a tenant.
package database

import (
	"context"

	"github.com/Strob0t/backoffice/internal/domain/entity"
	"github.com/Strob0t/backoffice/internal/domain/permission"
	"github.com/Strob0t/backoffice/internal/domain/row"
	"github.com/Strob0t/backoffice/internal/domain/rowquery"
	"github.com/Strob0t/backoffice/internal/domain/tenant"
	"github.com/Strob0t/backoffice/internal/domain/user"
)

// RowScope restricts listings to rows the actor may see through the row
// grant overlay. Bypass skips the overlay (super admins).
type RowScope struct {
	Bypass   bool
	TenantID string
	UserID   string
	RoleIDs  []string
	GroupIDs []string
}

// ScopeFor builds the row scope of an actor.
func ScopeFor(a *permission.Actor) RowScope {
	if a == nil {
		return RowScope{}
	}
	return RowScope{
		Bypass:   a.IsSuperAdmin,
		TenantID: a.TenantID,
		UserID:   a.UserID,
		RoleIDs:  a.RoleIDs,
		GroupIDs: a.GroupIDs,
	}
}

// Store is the port interface for database operations.
type Store interface {
	TenantStore
	UserStore
	EntityStore
	RowStore
}

// TenantStore persists tenants. Tenants are global, not tenant-scoped.
type TenantStore interface {
	CreateTenant(ctx context.Context, t *tenant.Tenant) error
	GetTenant(ctx context.Context, id string) (*tenant.Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*tenant.Tenant, error)
	ListTenants(ctx context.Context) ([]tenant.Tenant, error)
	UpdateTenant(ctx context.Context, t *tenant.Tenant) error
}

// UserStore persists users, roles, groups, API keys and invitations.
type UserStore interface {
	// Users
	CreateUser(ctx context.Context, u *user.User) error
	GetUser(ctx context.Context, id string) (*user.User, error)
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	ListUsers(ctx context.Context) ([]user.User, error) // users with a role in the context tenant; all users without one

	// Roles
	CreateRole(ctx context.Context, r *user.Role) error
	GetRole(ctx context.Context, id string) (*user.Role, error)
	ListRoles(ctx context.Context) ([]user.Role, error) // tenant roles and system roles
	UpdateRolePermissions(ctx context.Context, roleID string, permissions []string) error
	AssignRole(ctx context.Context, a user.RoleAssignment) error
	ListUserRoles(ctx context.Context, userID, tenantID string) ([]user.Role, error)
	ListRoleAssignments(ctx context.Context, roleID string) ([]user.RoleAssignment, error)
	ListUserGroupIDs(ctx context.Context, userID, tenantID string) ([]string, error)

	// API keys
	CreateAPIKey(ctx context.Context, key *user.APIKey) error
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*user.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]user.APIKey, error)
	DeleteAPIKey(ctx context.Context, id string) error

	// Invitations
	CreateInvitation(ctx context.Context, inv *user.Invitation) error
	GetInvitation(ctx context.Context, id string) (*user.Invitation, error)
	GetInvitationByToken(ctx context.Context, token string) (*user.Invitation, error)
	MarkInvitationSent(ctx context.Context, id string) error
	MarkInvitationAccepted(ctx context.Context, id string) error
}

// EntityStore persists entities, properties and relationships.
type EntityStore interface {
	CreateEntity(ctx context.Context, e *entity.Entity) error
	GetEntity(ctx context.Context, id string) (*entity.Entity, error)
	GetEntityBySlug(ctx context.Context, slug string) (*entity.Entity, error) // tenant entity first, then system entity
	ListEntities(ctx context.Context) ([]entity.Entity, error)
	UpdateEntity(ctx context.Context, e *entity.Entity) error
	DeleteEntity(ctx context.Context, id string) error // cascades properties and rows

	CreateProperty(ctx context.Context, p *entity.Property) error
	UpdateProperty(ctx context.Context, p *entity.Property) error
	DeleteProperty(ctx context.Context, id string) error // cascades row values
	DeletePropertyOptions(ctx context.Context, propertyID string) error
	CreatePropertyOption(ctx context.Context, propertyID string, o *entity.PropertyOption) error
	DeletePropertyAttributes(ctx context.Context, propertyID string) error
	CreatePropertyAttribute(ctx context.Context, propertyID string, a *entity.PropertyAttribute) error

	CreateRelationship(ctx context.Context, r *entity.Relationship) error
	GetRelationship(ctx context.Context, id string) (*entity.Relationship, error)
	ListRelationships(ctx context.Context, entityID string) ([]entity.Relationship, error) // as parent or child
	DeleteRelationship(ctx context.Context, id string) error
}

// RowStore persists rows, their values, tags, grants and links.
type RowStore interface {
	// CreateRow assigns the next folio of the entity and inserts the row with
	// its values, tags and grants.
	CreateRow(ctx context.Context, r *row.Row) error
	GetRow(ctx context.Context, id string) (*row.Row, error)
	GetRowsByIDs(ctx context.Context, ids []string) ([]row.Row, error)
	ListRows(ctx context.Context, e *entity.Entity, q rowquery.Query, scope RowScope) ([]row.Row, int, error)
	CountRows(ctx context.Context, entityID string) (int, error)
	UpsertRowValue(ctx context.Context, rowID string, v *row.Value) error
	DeleteRow(ctx context.Context, id string) error
	SetRowTags(ctx context.Context, rowID string, tags []row.Tag) error

	ListRowPermissions(ctx context.Context, rowID string) ([]permission.Grant, error)
	CreateRowPermission(ctx context.Context, g *permission.Grant) error
	DeleteRowPermissions(ctx context.Context, rowID string) error

	CreateRowRelationship(ctx context.Context, rr *entity.RowRelationship) error
	ListChildRowIDs(ctx context.Context, relationshipID, parentRowID string) ([]string, error)
	ListChildRowIDsByParent(ctx context.Context, parentRowID string, cascadeOnly bool) ([]string, error)
}
