package permission

import "slices"

// Access is the level a row grant confers. Levels are ordered:
// each one includes the ones before it.
type Access string

const (
	AccessView    Access = "view"
	AccessComment Access = "comment"
	AccessEdit    Access = "edit"
	AccessDelete  Access = "delete"
)

var accessRank = map[Access]int{
	AccessView:    1,
	AccessComment: 2,
	AccessEdit:    3,
	AccessDelete:  4,
}

// ValidAccess reports whether a is a known access level.
func ValidAccess(a Access) bool {
	_, ok := accessRank[a]
	return ok
}

// Allows reports whether the access level covers the entity action.
func (a Access) Allows(act Action) bool {
	rank := accessRank[a]
	switch act {
	case ActionView, ActionRead:
		return rank >= accessRank[AccessView]
	case ActionUpdate, ActionCreate:
		return rank >= accessRank[AccessEdit]
	case ActionDelete:
		return rank >= accessRank[AccessDelete]
	}
	return false
}

// Grant scopes a row's visibility to a tenant, role, group or user.
// Exactly one of the subject fields is expected to be set.
type Grant struct {
	ID       string `json:"id,omitempty"`
	RowID    string `json:"row_id,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
	RoleID   string `json:"role_id,omitempty"`
	GroupID  string `json:"group_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	Access   Access `json:"access"`
}

// Matches reports whether the grant names the actor by tenant, role, group or user.
func (g *Grant) Matches(a *Actor) bool {
	switch {
	case g.UserID != "":
		return g.UserID == a.UserID
	case g.RoleID != "":
		return slices.Contains(a.RoleIDs, g.RoleID)
	case g.GroupID != "":
		return slices.Contains(a.GroupIDs, g.GroupID)
	case g.TenantID != "":
		return g.TenantID == a.TenantID
	}
	return false
}

// CanAccessRow applies the row-level overlay on top of the entity permission:
// the entity-level check must pass, and the row must either carry no grants
// (open to its whole tenant) or carry a grant that matches the actor and
// covers the action.
func CanAccessRow(a *Actor, entityName string, act Action, grants []Grant) bool {
	if !a.HasEntity(entityName, act) {
		return false
	}
	if a.IsSuperAdmin || len(grants) == 0 {
		return true
	}
	for i := range grants {
		if grants[i].Matches(a) && grants[i].Access.Allows(act) {
			return true
		}
	}
	return false
}
