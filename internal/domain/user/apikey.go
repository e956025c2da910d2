package user

import (
	"errors"
	"time"

	"github.com/Strob0t/backoffice/internal/domain/permission"
)

// APIKeyPrefix is prepended to generated API keys for identification.
const APIKeyPrefix = "bok_"

// EntityGrant lists the CRUD operations an API key may perform on one entity.
type EntityGrant struct {
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Create     bool   `json:"create"`
	Read       bool   `json:"read"`
	Update     bool   `json:"update"`
	Delete     bool   `json:"delete"`
}

// Allows reports whether the grant covers the action. View is covered by Read.
func (g *EntityGrant) Allows(a permission.Action) bool {
	switch a {
	case permission.ActionView, permission.ActionRead:
		return g.Read
	case permission.ActionCreate:
		return g.Create
	case permission.ActionUpdate:
		return g.Update
	case permission.ActionDelete:
		return g.Delete
	}
	return false
}

// APIKey is a tenant-scoped credential for machine clients.
type APIKey struct {
	ID              string        `json:"id"`
	TenantID        string        `json:"tenant_id"`
	Alias           string        `json:"alias"`
	Prefix          string        `json:"prefix"` // first 8 chars for display
	KeyHash         string        `json:"-"`      // SHA-256 hash, never serialized
	Active          bool          `json:"active"`
	Entities        []EntityGrant `json:"entities"`
	CreatedByUserID string        `json:"created_by_user_id,omitempty"`
	ExpiresAt       time.Time     `json:"expires_at,omitzero"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Expired reports whether the key has passed its expiry.
func (k *APIKey) Expired(now time.Time) bool {
	return !k.ExpiresAt.IsZero() && now.After(k.ExpiresAt)
}

// EntityPermissions expands the grants into entity permission keys, so an
// API-key actor is checked by the same resolver as a user.
func (k *APIKey) EntityPermissions() []string {
	perms := make([]string, 0, len(k.Entities)*4)
	for i := range k.Entities {
		g := &k.Entities[i]
		for _, a := range permission.ValidActions {
			if g.Allows(a) {
				perms = append(perms, permission.EntityKey(g.EntityName, a))
			}
		}
	}
	return perms
}

// CreateAPIKeyRequest is the input for creating a new API key.
type CreateAPIKeyRequest struct {
	Alias     string        `json:"alias"`
	ExpiresIn int           `json:"expires_in,omitempty"` // seconds; 0 = no expiry
	Entities  []EntityGrant `json:"entities"`
}

// Validate checks that the CreateAPIKeyRequest has all required fields.
func (r *CreateAPIKeyRequest) Validate() error {
	if r.Alias == "" {
		return errors.New("alias is required")
	}
	if r.ExpiresIn < 0 {
		return errors.New("expires_in must not be negative")
	}
	for _, g := range r.Entities {
		if g.EntityID == "" {
			return errors.New("entity grant without entity_id")
		}
	}
	return nil
}

// CreateAPIKeyResponse is returned after creating an API key.
// The PlainKey is only shown once at creation time.
type CreateAPIKeyResponse struct {
	APIKey   APIKey `json:"api_key"`
	PlainKey string `json:"plain_key"` // only returned once
}
