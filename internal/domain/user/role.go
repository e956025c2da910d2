package user

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Strob0t/backoffice/internal/domain/permission"
)

// Role is a named permission set. TenantID is empty for system roles
// shared by every tenant.
type Role struct {
	ID               string    `json:"id"`
	TenantID         string    `json:"tenant_id,omitempty"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	AssignToNewUsers bool      `json:"assign_to_new_users"`
	Permissions      []string  `json:"permissions"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CreateRoleRequest is the input for creating a role.
type CreateRoleRequest struct {
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	AssignToNewUsers bool     `json:"assign_to_new_users"`
	Permissions      []string `json:"permissions"`
}

// Validate checks the role name and permission keys.
func (r *CreateRoleRequest) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	return ValidatePermissionKeys(r.Permissions)
}

// ValidatePermissionKeys accepts fixed admin/app keys and well-formed
// entity keys.
func ValidatePermissionKeys(keys []string) error {
	for _, k := range keys {
		if slices.Contains(permission.FixedKeys, k) {
			continue
		}
		parts := strings.Split(k, ".")
		if len(parts) == 3 && parts[0] == "entity" && parts[1] != "" &&
			slices.Contains(permission.ValidActions, permission.Action(parts[2])) {
			continue
		}
		return fmt.Errorf("invalid permission: %s", k)
	}
	return nil
}

// RoleAssignment links a user to a role within a tenant.
type RoleAssignment struct {
	UserID   string `json:"user_id"`
	RoleID   string `json:"role_id"`
	TenantID string `json:"tenant_id"`
}
