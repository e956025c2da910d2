// Package entity defines tenant- or system-defined dynamic entities and
// their typed properties.
package entity

import (
	"regexp"
	"strings"
	"time"

	"github.com/Strob0t/backoffice/internal/domain"
)

// Entity is a named schema rows are instances of. TenantID is empty for
// system-wide entities.
type Entity struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id,omitempty"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	TitlePlural string     `json:"title_plural"`
	Prefix      string     `json:"prefix,omitempty"` // folio prefix, e.g. "CAN"
	Icon        string     `json:"icon,omitempty"`
	HasTags     bool       `json:"has_tags"`
	Properties  []Property `json:"properties"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Property returns the property with the given ID.
func (e *Entity) Property(id string) (*Property, bool) {
	for i := range e.Properties {
		if e.Properties[i].ID == id {
			return &e.Properties[i], true
		}
	}
	return nil, false
}

// PropertyByName returns the property with the given name, compared case-insensitively.
func (e *Entity) PropertyByName(name string) (*Property, bool) {
	for i := range e.Properties {
		if strings.EqualFold(e.Properties[i].Name, name) {
			return &e.Properties[i], true
		}
	}
	return nil, false
}

// MaxOrder returns the highest property order, 0 for an entity without properties.
func (e *Entity) MaxOrder() int {
	highest := 0
	for i := range e.Properties {
		if e.Properties[i].Order > highest {
			highest = e.Properties[i].Order
		}
	}
	return highest
}

// CreateRequest is the input for creating an entity.
type CreateRequest struct {
	TenantID    string `json:"tenant_id,omitempty"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	TitlePlural string `json:"title_plural"`
	Prefix      string `json:"prefix,omitempty"`
	Icon        string `json:"icon,omitempty"`
	HasTags     bool   `json:"has_tags"`
}

// UpdateRequest holds the mutable entity fields.
type UpdateRequest struct {
	Title       *string `json:"title,omitempty"`
	TitlePlural *string `json:"title_plural,omitempty"`
	Prefix      *string `json:"prefix,omitempty"`
	Icon        *string `json:"icon,omitempty"`
	HasTags     *bool   `json:"has_tags,omitempty"`
}

var (
	entityNameRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	slugRegex       = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
	nonSlugChars    = regexp.MustCompile(`[^a-z0-9]+`)
)

// Normalize fills derived fields: slug from name, plural title from title.
func (r *CreateRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Title = strings.TrimSpace(r.Title)
	if r.Slug == "" {
		r.Slug = Slugify(r.Name)
	}
	if r.Title == "" {
		r.Title = r.Name
	}
	if r.TitlePlural == "" {
		r.TitlePlural = r.Title + "s"
	}
}

// Validate returns the form errors of the request.
func (r *CreateRequest) Validate() []domain.FieldError {
	var errs []domain.FieldError
	switch {
	case r.Name == "":
		errs = append(errs, domain.FieldError{Field: "name", Message: "name is required"})
	case !entityNameRegex.MatchString(r.Name):
		errs = append(errs, domain.FieldError{Field: "name", Message: "name must start with a letter and contain only letters, digits or underscores"})
	}
	if !slugRegex.MatchString(r.Slug) {
		errs = append(errs, domain.FieldError{Field: "slug", Message: "slug must be lowercase alphanumeric characters or hyphens"})
	}
	return errs
}

// Slugify lowercases s and joins its alphanumeric runs with hyphens.
func Slugify(s string) string {
	return strings.Trim(nonSlugChars.ReplaceAllString(strings.ToLower(s), "-"), "-")
}
