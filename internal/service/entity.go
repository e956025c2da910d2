package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Strob0t/backoffice/internal/domain"
	"github.com/Strob0t/backoffice/internal/domain/entity"
	"github.com/Strob0t/backoffice/internal/middleware"
	"github.com/Strob0t/backoffice/internal/port/database"
)

// EntityService manages entity schemas: entities, their properties with
// options and attributes, and relationships between entities.
type EntityService struct {
	store database.Store
}

// NewEntityService creates a new EntityService.
func NewEntityService(store database.Store) *EntityService {
	return &EntityService{store: store}
}

// Resolve loads an entity by ID or slug.
func (s *EntityService) Resolve(ctx context.Context, ref string) (*entity.Entity, error) {
	if _, err := uuid.Parse(ref); err == nil {
		return s.store.GetEntity(ctx, ref)
	}
	return s.store.GetEntityBySlug(ctx, ref)
}

// owned resolves an entity the scope of ctx may change. Tenants read system
// entities but only the system scope changes them.
func (s *EntityService) owned(ctx context.Context, ref string) (*entity.Entity, error) {
	e, err := s.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if e.TenantID != middleware.TenantIDFromContext(ctx) {
		return nil, fmt.Errorf("entity %s is a system entity: %w", e.Name, domain.ErrForbidden)
	}
	return e, nil
}

// List returns the tenant's entities and the system entities.
func (s *EntityService) List(ctx context.Context) ([]entity.Entity, error) {
	return s.store.ListEntities(ctx)
}

// Create validates and creates an entity in the tenant of ctx, or a system
// entity in the system scope.
func (s *EntityService) Create(ctx context.Context, req entity.CreateRequest) (*entity.Entity, error) {
	req.Normalize()
	if err := domain.NewValidationError(req.Validate()); err != nil {
		return nil, err
	}

	e := &entity.Entity{
		TenantID:    middleware.TenantIDFromContext(ctx),
		Name:        req.Name,
		Slug:        req.Slug,
		Title:       req.Title,
		TitlePlural: req.TitlePlural,
		Prefix:      strings.ToUpper(strings.TrimSpace(req.Prefix)),
		Icon:        req.Icon,
		HasTags:     req.HasTags,
	}
	if err := s.store.CreateEntity(ctx, e); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "entity created", "entity_id", e.ID, "name", e.Name)
	return e, nil
}

// Update changes an entity's display settings.
func (s *EntityService) Update(ctx context.Context, ref string, req entity.UpdateRequest) (*entity.Entity, error) {
	e, err := s.owned(ctx, ref)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		e.Title = strings.TrimSpace(*req.Title)
	}
	if req.TitlePlural != nil {
		e.TitlePlural = strings.TrimSpace(*req.TitlePlural)
	}
	if req.Prefix != nil {
		e.Prefix = strings.ToUpper(strings.TrimSpace(*req.Prefix))
	}
	if req.Icon != nil {
		e.Icon = *req.Icon
	}
	if req.HasTags != nil {
		e.HasTags = *req.HasTags
	}
	if e.Title == "" {
		return nil, domain.NewValidationError([]domain.FieldError{{Field: "title", Message: "title is required"}})
	}
	if err := s.store.UpdateEntity(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Delete removes an entity. An entity with rows in any tenant is only
// deleted when force is set; its rows then go with it.
func (s *EntityService) Delete(ctx context.Context, ref string, force bool) error {
	e, err := s.owned(ctx, ref)
	if err != nil {
		return err
	}
	n, err := s.store.CountRows(ctx, e.ID)
	if err != nil {
		return fmt.Errorf("count rows: %w", err)
	}
	if n > 0 && !force {
		return fmt.Errorf("entity %s has %d rows: %w", e.Name, n, domain.ErrConflict)
	}
	if err := s.store.DeleteEntity(ctx, e.ID); err != nil {
		return err
	}
	slog.InfoContext(ctx, "entity deleted", "entity_id", e.ID, "name", e.Name, "rows", n)
	return nil
}

// --- Properties ---

// CreateProperty validates and appends a property to the entity.
func (s *EntityService) CreateProperty(ctx context.Context, ref string, req entity.CreatePropertyRequest) (*entity.Property, error) {
	e, err := s.owned(ctx, ref)
	if err != nil {
		return nil, err
	}

	errs := entity.ValidateType(req.Type)
	errs = append(errs, entity.ValidateProperty(req.Name, req.Title, e.Properties, nil)...)
	p := req.ToProperty(e.ID, e.MaxOrder()+1)
	errs = append(errs, p.NormalizeFormula()...)
	errs = append(errs, validateOptions(&p, p.Options)...)
	if err := domain.NewValidationError(errs); err != nil {
		return nil, err
	}
	if !p.Type.HasOptions() {
		p.Options = nil
	}

	if err := s.store.CreateProperty(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProperty replaces the property's settings. The type cannot change;
// options and attributes are replaced through their own operations.
func (s *EntityService) UpdateProperty(ctx context.Context, ref, propertyID string, req entity.CreatePropertyRequest) (*entity.Property, error) {
	e, current, err := s.property(ctx, ref, propertyID)
	if err != nil {
		return nil, err
	}
	if req.Type == "" {
		req.Type = current.Type
	}

	errs := entity.ValidateProperty(req.Name, req.Title, e.Properties, current)
	if req.Type != current.Type {
		errs = append(errs, domain.FieldError{Field: "type", Message: "the type of a property cannot change"})
	}
	p := req.ToProperty(e.ID, current.Order)
	p.ID = current.ID
	p.IsDefault = current.IsDefault
	p.Options = current.Options
	p.Attributes = current.Attributes
	errs = append(errs, p.NormalizeFormula()...)
	if err := domain.NewValidationError(errs); err != nil {
		return nil, err
	}

	if err := s.store.UpdateProperty(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteProperty removes a property and every row value it holds. Default
// properties cannot be removed.
func (s *EntityService) DeleteProperty(ctx context.Context, ref, propertyID string) error {
	_, p, err := s.property(ctx, ref, propertyID)
	if err != nil {
		return err
	}
	if p.IsDefault {
		return fmt.Errorf("property %s is a default property: %w", p.Name, domain.ErrValidation)
	}
	return s.store.DeleteProperty(ctx, p.ID)
}

// DuplicateProperty copies a property under the next free numbered name.
func (s *EntityService) DuplicateProperty(ctx context.Context, ref, propertyID string) (*entity.Property, error) {
	e, err := s.owned(ctx, ref)
	if err != nil {
		return nil, err
	}
	dup, err := entity.DuplicateProperty(e, propertyID)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateProperty(ctx, &dup); err != nil {
		return nil, err
	}
	return &dup, nil
}

// ReplaceOptions replaces the options of a select property. Options are
// written one by one: a failure part way leaves the earlier ones stored.
func (s *EntityService) ReplaceOptions(ctx context.Context, ref, propertyID string, options []entity.PropertyOption) ([]entity.PropertyOption, error) {
	_, p, err := s.property(ctx, ref, propertyID)
	if err != nil {
		return nil, err
	}
	if !p.Type.HasOptions() {
		return nil, fmt.Errorf("property %s of type %s has no options: %w", p.Name, p.Type, domain.ErrValidation)
	}
	if err := domain.NewValidationError(validateOptions(p, options)); err != nil {
		return nil, err
	}

	if err := s.store.DeletePropertyOptions(ctx, p.ID); err != nil {
		return nil, err
	}
	out := make([]entity.PropertyOption, 0, len(options))
	for i, o := range options {
		o.ID = ""
		if o.Order == 0 {
			o.Order = i + 1
		}
		if err := s.store.CreatePropertyOption(ctx, p.ID, &o); err != nil {
			return out, fmt.Errorf("replace options of %s after %d of %d: %w", p.Name, i, len(options), err)
		}
		out = append(out, o)
	}
	return out, nil
}

// ReplaceAttributes replaces the attributes of a property, one by one like
// ReplaceOptions.
func (s *EntityService) ReplaceAttributes(ctx context.Context, ref, propertyID string, attrs []entity.PropertyAttribute) ([]entity.PropertyAttribute, error) {
	_, p, err := s.property(ctx, ref, propertyID)
	if err != nil {
		return nil, err
	}
	var errs []domain.FieldError
	seen := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		name := strings.TrimSpace(a.Name)
		switch {
		case name == "":
			errs = append(errs, domain.FieldError{Field: "attributes", Message: "attribute name is required"})
		case seen[name]:
			errs = append(errs, domain.FieldError{Field: "attributes", Message: fmt.Sprintf("duplicate attribute %q", name)})
		}
		seen[name] = true
	}
	if err := domain.NewValidationError(errs); err != nil {
		return nil, err
	}

	if err := s.store.DeletePropertyAttributes(ctx, p.ID); err != nil {
		return nil, err
	}
	out := make([]entity.PropertyAttribute, 0, len(attrs))
	for i, a := range attrs {
		a.ID = ""
		a.Name = strings.TrimSpace(a.Name)
		if err := s.store.CreatePropertyAttribute(ctx, p.ID, &a); err != nil {
			return out, fmt.Errorf("replace attributes of %s after %d of %d: %w", p.Name, i, len(attrs), err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *EntityService) property(ctx context.Context, ref, propertyID string) (*entity.Entity, *entity.Property, error) {
	e, err := s.owned(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	p, ok := e.Property(propertyID)
	if !ok {
		return nil, nil, fmt.Errorf("property %s of %s: %w", propertyID, e.Name, domain.ErrNotFound)
	}
	return e, p, nil
}

func validateOptions(p *entity.Property, options []entity.PropertyOption) []domain.FieldError {
	if !p.Type.HasOptions() {
		return nil
	}
	var errs []domain.FieldError
	seen := make(map[string]bool, len(options))
	for _, o := range options {
		v := strings.TrimSpace(o.Value)
		switch {
		case v == "":
			errs = append(errs, domain.FieldError{Field: "options", Message: "option value is required"})
		case seen[v]:
			errs = append(errs, domain.FieldError{Field: "options", Message: fmt.Sprintf("duplicate option %q", v)})
		}
		seen[v] = true
	}
	return errs
}

// --- Relationships ---

// CreateRelationship links two entities the caller can see, at least one
// of which the caller owns.
func (s *EntityService) CreateRelationship(ctx context.Context, req entity.CreateRelationshipRequest) (*entity.Relationship, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	parent, err := s.Resolve(ctx, req.ParentID)
	if err != nil {
		return nil, fmt.Errorf("parent entity: %w", err)
	}
	child, err := s.Resolve(ctx, req.ChildID)
	if err != nil {
		return nil, fmt.Errorf("child entity: %w", err)
	}
	if tid := middleware.TenantIDFromContext(ctx); parent.TenantID != tid && child.TenantID != tid {
		return nil, fmt.Errorf("relationship between system entities: %w", domain.ErrForbidden)
	}

	r := &entity.Relationship{
		ParentID:     parent.ID,
		ChildID:      child.ID,
		Type:         req.Type,
		Title:        strings.TrimSpace(req.Title),
		Required:     req.Required,
		Cascade:      req.Cascade,
		ReadOnly:     req.ReadOnly,
		Distinct:     req.Distinct,
		ChildViewID:  req.ChildViewID,
		ParentViewID: req.ParentViewID,
	}
	if r.Title == "" {
		r.Title = child.TitlePlural
	}
	if err := s.store.CreateRelationship(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// ListRelationships returns the relationships an entity takes part in.
func (s *EntityService) ListRelationships(ctx context.Context, ref string) ([]entity.Relationship, error) {
	e, err := s.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.store.ListRelationships(ctx, e.ID)
}

// DeleteRelationship removes a relationship and its row links. Like
// CreateRelationship, the caller must own one of the two entities.
func (s *EntityService) DeleteRelationship(ctx context.Context, id string) error {
	rel, err := s.store.GetRelationship(ctx, id)
	if err != nil {
		return err
	}
	tid := middleware.TenantIDFromContext(ctx)
	owns := false
	for _, ref := range []string{rel.ParentID, rel.ChildID} {
		e, err := s.store.GetEntity(ctx, ref)
		if err != nil {
			return err
		}
		owns = owns || e.TenantID == tid
	}
	if !owns {
		return fmt.Errorf("relationship %s between system entities: %w", id, domain.ErrForbidden)
	}
	if err := s.store.DeleteRelationship(ctx, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "relationship deleted", "relationship_id", id)
	return nil
}
