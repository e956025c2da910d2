// Package permission resolves whether an actor may perform an action, at
// entity level through permission keys and at row level through explicit grants.
package permission

import "slices"

// Action is an entity-scoped operation.
type Action string

const (
	ActionView   Action = "view"
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ValidActions lists the entity actions in display order.
var ValidActions = []Action{ActionView, ActionRead, ActionCreate, ActionUpdate, ActionDelete}

// Fixed admin and app permission keys.
const (
	AdminEntitiesView   = "admin.entities.view"
	AdminEntitiesManage = "admin.entities.manage"
	AdminRolesView      = "admin.roles.view"
	AdminRolesUpdate    = "admin.roles.update"
	AdminUsersInvite    = "admin.users.invite"
	AdminTenantsManage  = "admin.tenants.manage"
	AppRowsExport       = "app.rows.export"
)

// FixedKeys is the set of non-entity permission keys a role may hold.
var FixedKeys = []string{
	AdminEntitiesView,
	AdminEntitiesManage,
	AdminRolesView,
	AdminRolesUpdate,
	AdminUsersInvite,
	AdminTenantsManage,
	AppRowsExport,
}

// EntityKey returns the permission key for an action on an entity,
// e.g. "entity.Candidate.view".
func EntityKey(entityName string, a Action) string {
	return "entity." + entityName + "." + string(a)
}

// Actor is the resolved identity a request acts as.
//
// Permissions is nil when the permission system has not been initialised
// for the actor; such actors are allowed everything. A non-nil slice, even
// an empty one, is authoritative.
type Actor struct {
	UserID       string   `json:"user_id"`
	APIKeyID     string   `json:"api_key_id,omitempty"`
	TenantID     string   `json:"tenant_id"`
	IsSuperAdmin bool     `json:"is_super_admin"`
	Permissions  []string `json:"permissions"`
	RoleIDs      []string `json:"role_ids,omitempty"`
	GroupIDs     []string `json:"group_ids,omitempty"`
}

// Has reports whether the actor holds the named permission.
func (a *Actor) Has(name string) bool {
	if a == nil {
		return false
	}
	if a.IsSuperAdmin {
		return true
	}
	if a.Permissions == nil {
		return true
	}
	return slices.Contains(a.Permissions, name)
}

// HasEntity is Has for an entity-scoped action.
func (a *Actor) HasEntity(entityName string, act Action) bool {
	return a.Has(EntityKey(entityName, act))
}
