package entity

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Strob0t/backoffice/internal/domain"
)

// PropertyType is the closed set of property kinds.
type PropertyType string

const (
	TypeText        PropertyType = "text"
	TypeNumber      PropertyType = "number"
	TypeDate        PropertyType = "date"
	TypeBoolean     PropertyType = "boolean"
	TypeSelect      PropertyType = "select"
	TypeMultiSelect PropertyType = "multi_select"
	TypeMultiText   PropertyType = "multi_text"
	TypeMedia       PropertyType = "media"
	TypeRangeNumber PropertyType = "range_number"
	TypeRangeDate   PropertyType = "range_date"
	TypeFormula     PropertyType = "formula"
)

// ValidTypes is the set of all property types.
var ValidTypes = map[PropertyType]bool{
	TypeText:        true,
	TypeNumber:      true,
	TypeDate:        true,
	TypeBoolean:     true,
	TypeSelect:      true,
	TypeMultiSelect: true,
	TypeMultiText:   true,
	TypeMedia:       true,
	TypeRangeNumber: true,
	TypeRangeDate:   true,
	TypeFormula:     true,
}

// HasOptions reports whether values of this type pick from Property.Options.
func (t PropertyType) HasOptions() bool {
	return t == TypeSelect || t == TypeMultiSelect
}

// ReservedNames cannot be used as property names because they collide with
// row columns or listing query parameters.
var ReservedNames = []string{"id", "folio", "createdAt", "createdByUser", "sort", "page", "q", "v", "redirect", "tags"}

// maxDuplicateAttempts bounds the search for a free name when duplicating.
const maxDuplicateAttempts = 10

// Property is a typed field definition owned by an entity.
type Property struct {
	ID           string              `json:"id"`
	EntityID     string              `json:"entity_id"`
	Name         string              `json:"name"`
	Title        string              `json:"title"`
	Type         PropertyType        `json:"type"`
	Subtype      string              `json:"subtype,omitempty"`
	Order        int                 `json:"order"`
	IsDefault    bool                `json:"is_default"`
	IsRequired   bool                `json:"is_required"`
	IsUnique     bool                `json:"is_unique"`
	IsHidden     bool                `json:"is_hidden"`
	IsSearchable bool                `json:"is_searchable"`
	IsSortable   bool                `json:"is_sortable"`
	IsFilterable bool                `json:"is_filterable"`
	IsDisplay    bool                `json:"is_display"`
	IsReadOnly   bool                `json:"is_read_only"`
	CanUpdate    bool                `json:"can_update"`
	ShowInCreate bool                `json:"show_in_create"`
	FormulaID    *string             `json:"formula_id,omitempty"`
	Options      []PropertyOption    `json:"options,omitempty"`
	Attributes   []PropertyAttribute `json:"attributes,omitempty"`
}

// PropertyOption is one choice of a select-typed property.
type PropertyOption struct {
	ID    string `json:"id,omitempty"`
	Order int    `json:"order"`
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
	Color string `json:"color,omitempty"`
}

// PropertyAttribute is key/value extension data of a property.
type PropertyAttribute struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Attribute returns the value of the named attribute.
func (p *Property) Attribute(name string) (string, bool) {
	for _, a := range p.Attributes {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// ValidateProperty checks a property name and title against the entity's
// existing properties. current is the property being edited, or nil on create;
// it is excluded from the collision checks.
func ValidateProperty(name, title string, existing []Property, current *Property) []domain.FieldError {
	var errs []domain.FieldError
	add := func(field, format string, args ...any) {
		errs = append(errs, domain.FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	trimmed := strings.TrimSpace(name)
	switch {
	case trimmed == "":
		add("name", "name is required")
	case strings.Contains(name, " "):
		add("name", "property name cannot contain spaces")
	case strings.Contains(name, "-"):
		add("name", "property name cannot contain '-'")
	}
	for _, reserved := range ReservedNames {
		if strings.EqualFold(trimmed, reserved) {
			add("name", "property name cannot be %q", reserved)
			break
		}
	}

	for i := range existing {
		p := &existing[i]
		if current != nil && p.ID == current.ID {
			continue
		}
		if trimmed != "" && strings.EqualFold(p.Name, trimmed) {
			add("name", "a property named %q already exists", p.Name)
		}
		if t := strings.TrimSpace(title); t != "" && strings.EqualFold(p.Title, t) {
			add("title", "a property titled %q already exists", p.Title)
		}
	}
	return errs
}

// NormalizeFormula enforces the formula rules: a formula property cannot be
// required and must reference a formula; any other type never keeps a formula
// reference.
func (p *Property) NormalizeFormula() []domain.FieldError {
	if p.Type != TypeFormula {
		p.FormulaID = nil
		return nil
	}
	var errs []domain.FieldError
	if p.IsRequired {
		errs = append(errs, domain.FieldError{Field: "is_required", Message: "formula properties cannot be required"})
	}
	if p.FormulaID == nil || *p.FormulaID == "" {
		errs = append(errs, domain.FieldError{Field: "formula_id", Message: "formula is required"})
	}
	return errs
}

// DuplicateProperty builds a copy of the property with the given ID under a
// new unique name (name2, name3, ...). The copy keeps every flag, option and
// attribute of the source and is ordered after the last property. The returned
// property has no ID; persisting it is the caller's job.
func DuplicateProperty(e *Entity, propertyID string) (Property, error) {
	src, ok := e.Property(propertyID)
	if !ok {
		return Property{}, fmt.Errorf("property %s: %w", propertyID, domain.ErrNotFound)
	}

	name, number := "", 0
	for i := 2; i < 2+maxDuplicateAttempts; i++ {
		candidate := src.Name + strconv.Itoa(i)
		if _, taken := e.PropertyByName(candidate); !taken {
			name, number = candidate, i
			break
		}
	}
	if name == "" {
		return Property{}, fmt.Errorf("no free name for a copy of %q after %d attempts: %w",
			src.Name, maxDuplicateAttempts, domain.ErrConflict)
	}

	dup := *src
	dup.ID = ""
	dup.Name = name
	dup.Title = fmt.Sprintf("%s %d", src.Title, number)
	dup.Order = e.MaxOrder() + 1
	dup.IsDefault = false
	if src.FormulaID != nil {
		f := *src.FormulaID
		dup.FormulaID = &f
	}
	dup.Options = make([]PropertyOption, 0, len(src.Options))
	for _, o := range src.Options {
		dup.Options = append(dup.Options, PropertyOption{Order: o.Order, Value: o.Value, Name: o.Name, Color: o.Color})
	}
	dup.Attributes = make([]PropertyAttribute, 0, len(src.Attributes))
	for _, a := range src.Attributes {
		dup.Attributes = append(dup.Attributes, PropertyAttribute{Name: a.Name, Value: a.Value})
	}
	return dup, nil
}

// CreatePropertyRequest is the input for adding a property to an entity.
type CreatePropertyRequest struct {
	Name         string              `json:"name"`
	Title        string              `json:"title"`
	Type         PropertyType        `json:"type"`
	Subtype      string              `json:"subtype,omitempty"`
	IsRequired   bool                `json:"is_required"`
	IsUnique     bool                `json:"is_unique"`
	IsHidden     bool                `json:"is_hidden"`
	IsSearchable bool                `json:"is_searchable"`
	IsSortable   bool                `json:"is_sortable"`
	IsFilterable bool                `json:"is_filterable"`
	IsDisplay    bool                `json:"is_display"`
	IsReadOnly   bool                `json:"is_read_only"`
	CanUpdate    *bool               `json:"can_update,omitempty"`    // default true
	ShowInCreate *bool               `json:"show_in_create,omitempty"` // default true
	FormulaID    *string             `json:"formula_id,omitempty"`
	Options      []PropertyOption    `json:"options,omitempty"`
	Attributes   []PropertyAttribute `json:"attributes,omitempty"`
}

// ToProperty builds the property the request describes, ordered after order.
func (r *CreatePropertyRequest) ToProperty(entityID string, order int) Property {
	p := Property{
		EntityID:     entityID,
		Name:         strings.TrimSpace(r.Name),
		Title:        strings.TrimSpace(r.Title),
		Type:         r.Type,
		Subtype:      r.Subtype,
		Order:        order,
		IsRequired:   r.IsRequired,
		IsUnique:     r.IsUnique,
		IsHidden:     r.IsHidden,
		IsSearchable: r.IsSearchable,
		IsSortable:   r.IsSortable,
		IsFilterable: r.IsFilterable,
		IsDisplay:    r.IsDisplay,
		IsReadOnly:   r.IsReadOnly,
		CanUpdate:    r.CanUpdate == nil || *r.CanUpdate,
		ShowInCreate: r.ShowInCreate == nil || *r.ShowInCreate,
		FormulaID:    r.FormulaID,
		Options:      r.Options,
		Attributes:   r.Attributes,
	}
	if p.Title == "" {
		p.Title = p.Name
	}
	return p
}

// ValidateType reports an unknown type as a form error.
func ValidateType(t PropertyType) []domain.FieldError {
	if !ValidTypes[t] {
		return []domain.FieldError{{Field: "type", Message: fmt.Sprintf("unknown property type %q", t)}}
	}
	return nil
}
