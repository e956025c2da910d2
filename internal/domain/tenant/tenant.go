// Package tenant defines the tenant domain model for multi-tenancy.
package tenant

import (
	"errors"
	"regexp"
	"slices"
	"time"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// reservedSlugs collide with top-level routes.
var reservedSlugs = []string{"admin", "api", "app", "health", "invitations", "new"}

// Tenant represents an isolated tenant in the system.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Icon      string    `json:"icon,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateRequest holds the fields required to create a new tenant.
type CreateRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
	Icon string `json:"icon,omitempty"`
}

// Validate checks that the CreateRequest has all required fields.
func (r *CreateRequest) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	return ValidateSlug(r.Slug)
}

// UpdateRequest holds the fields that can be updated on a tenant.
type UpdateRequest struct {
	Name   string  `json:"name,omitempty"`
	Slug   string  `json:"slug,omitempty"`
	Icon   *string `json:"icon,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

// ValidateSlug checks that slug is a lowercase, hyphen-separated identifier
// that does not shadow a route.
func ValidateSlug(slug string) error {
	if slug == "" {
		return errors.New("slug is required")
	}
	if !slugPattern.MatchString(slug) {
		return errors.New("slug must contain only lowercase letters, digits and single hyphens")
	}
	if slices.Contains(reservedSlugs, slug) {
		return errors.New("slug is reserved")
	}
	return nil
}
