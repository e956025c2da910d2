package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/backoffice/internal/domain"
	"github.com/Strob0t/backoffice/internal/domain/entity"
)

const entityColumns = `id, tenant_id, name, slug, title, title_plural, prefix, icon, has_tags, created_at, updated_at`

// entityVisible restricts entities to the context tenant plus system entities.
const entityVisible = `(tenant_id IS NULL OR tenant_id IS NOT DISTINCT FROM $1::uuid)`

// entityOwned restricts entities to those the context scope may change: the
// tenant's own entities, or system entities from the system scope.
const entityOwned = `tenant_id IS NOT DISTINCT FROM $1::uuid`

// ownedProperty matches a property ID ($2) of an entity owned by the scope.
const ownedProperty = `id = $2 AND entity_id IN (SELECT id FROM entities WHERE ` + entityOwned + `)`

func scanEntity(row scannable) (entity.Entity, error) {
	var e entity.Entity
	var tenantID *string
	err := row.Scan(&e.ID, &tenantID, &e.Name, &e.Slug, &e.Title, &e.TitlePlural,
		&e.Prefix, &e.Icon, &e.HasTags, &e.CreatedAt, &e.UpdatedAt)
	e.TenantID = deref(tenantID)
	return e, err
}

// --- Entities ---

func (s *Store) CreateEntity(ctx context.Context, e *entity.Entity) error {
	ensureID(&e.ID)
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	_, err := s.pool.Exec(ctx, `
		INSERT INTO entities (id, tenant_id, name, slug, title, title_plural, prefix, icon, has_tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, nullIfEmpty(e.TenantID), e.Name, e.Slug, e.Title, e.TitlePlural, e.Prefix, e.Icon, e.HasTags, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return conflictWrap(err, "create entity %s", e.Name)
	}
	return nil
}

func (s *Store) GetEntity(ctx context.Context, id string) (*entity.Entity, error) {
	e, err := scanEntity(s.pool.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE id = $2 AND `+entityVisible, tenantArg(ctx), id))
	if err != nil {
		return nil, notFoundWrap(err, "get entity %s", id)
	}
	if err := s.loadProperties(ctx, []*entity.Entity{&e}); err != nil {
		return nil, err
	}
	return &e, nil
}

// GetEntityBySlug prefers the tenant's own entity over a system entity
// sharing the slug.
func (s *Store) GetEntityBySlug(ctx context.Context, slug string) (*entity.Entity, error) {
	e, err := scanEntity(s.pool.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE slug = $2 AND `+entityVisible+`
		 ORDER BY tenant_id NULLS LAST LIMIT 1`, tenantArg(ctx), slug))
	if err != nil {
		return nil, notFoundWrap(err, "get entity by slug %s", slug)
	}
	if err := s.loadProperties(ctx, []*entity.Entity{&e}); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) ListEntities(ctx context.Context) ([]entity.Entity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE `+entityVisible+` ORDER BY name`, tenantArg(ctx))
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var entities []entity.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}

	ptrs := make([]*entity.Entity, len(entities))
	for i := range entities {
		ptrs[i] = &entities[i]
	}
	if err := s.loadProperties(ctx, ptrs); err != nil {
		return nil, err
	}
	return orEmpty(entities), nil
}

func (s *Store) UpdateEntity(ctx context.Context, e *entity.Entity) error {
	e.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE entities SET title = $3, title_plural = $4, prefix = $5, icon = $6, has_tags = $7, updated_at = $8
		WHERE id = $2 AND `+entityOwned,
		tenantArg(ctx), e.ID, e.Title, e.TitlePlural, e.Prefix, e.Icon, e.HasTags, e.UpdatedAt)
	return execExpectOne(tag, err, "update entity %s", e.ID)
}

// DeleteEntity removes an entity owned by the scope; properties, rows and
// relationships go with it through foreign key cascades.
func (s *Store) DeleteEntity(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM entities WHERE id = $2 AND `+entityOwned, tenantArg(ctx), id)
	return execExpectOne(tag, err, "delete entity %s", id)
}

// loadProperties fills the properties of entities, with their options and
// attributes, in three queries.
func (s *Store) loadProperties(ctx context.Context, entities []*entity.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	ids := make([]string, len(entities))
	byEntity := make(map[string]*entity.Entity, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
		byEntity[e.ID] = e
		e.Properties = []entity.Property{}
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, entity_id, name, title, type, subtype, "order", is_default, is_required, is_unique,
		       is_hidden, is_searchable, is_sortable, is_filterable, is_display, is_read_only,
		       can_update, show_in_create, formula_id
		FROM properties WHERE entity_id = ANY($1) ORDER BY "order", name`, ids)
	if err != nil {
		return fmt.Errorf("load properties: %w", err)
	}
	var props []entity.Property
	for rows.Next() {
		var p entity.Property
		if err := rows.Scan(&p.ID, &p.EntityID, &p.Name, &p.Title, &p.Type, &p.Subtype, &p.Order,
			&p.IsDefault, &p.IsRequired, &p.IsUnique, &p.IsHidden, &p.IsSearchable, &p.IsSortable,
			&p.IsFilterable, &p.IsDisplay, &p.IsReadOnly, &p.CanUpdate, &p.ShowInCreate, &p.FormulaID); err != nil {
			rows.Close()
			return fmt.Errorf("scan property: %w", err)
		}
		props = append(props, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load properties: %w", err)
	}
	if len(props) == 0 {
		return nil
	}

	propIDs := make([]string, len(props))
	byProp := make(map[string]*entity.Property, len(props))
	for i := range props {
		propIDs[i] = props[i].ID
		byProp[props[i].ID] = &props[i]
	}

	optRows, err := s.pool.Query(ctx,
		`SELECT id, property_id, "order", value, name, color FROM property_options
		 WHERE property_id = ANY($1) ORDER BY "order"`, propIDs)
	if err != nil {
		return fmt.Errorf("load property options: %w", err)
	}
	for optRows.Next() {
		var o entity.PropertyOption
		var propID string
		if err := optRows.Scan(&o.ID, &propID, &o.Order, &o.Value, &o.Name, &o.Color); err != nil {
			optRows.Close()
			return fmt.Errorf("scan property option: %w", err)
		}
		if p := byProp[propID]; p != nil {
			p.Options = append(p.Options, o)
		}
	}
	optRows.Close()
	if err := optRows.Err(); err != nil {
		return fmt.Errorf("load property options: %w", err)
	}

	attrRows, err := s.pool.Query(ctx,
		`SELECT id, property_id, name, value FROM property_attributes
		 WHERE property_id = ANY($1) ORDER BY name`, propIDs)
	if err != nil {
		return fmt.Errorf("load property attributes: %w", err)
	}
	for attrRows.Next() {
		var a entity.PropertyAttribute
		var propID string
		if err := attrRows.Scan(&a.ID, &propID, &a.Name, &a.Value); err != nil {
			attrRows.Close()
			return fmt.Errorf("scan property attribute: %w", err)
		}
		if p := byProp[propID]; p != nil {
			p.Attributes = append(p.Attributes, a)
		}
	}
	attrRows.Close()
	if err := attrRows.Err(); err != nil {
		return fmt.Errorf("load property attributes: %w", err)
	}

	for i := range props {
		if e := byEntity[props[i].EntityID]; e != nil {
			e.Properties = append(e.Properties, props[i])
		}
	}
	return nil
}

// --- Properties ---

// CreateProperty inserts the property with its options and attributes in
// one transaction. The entity must be owned by the scope.
func (s *Store) CreateProperty(ctx context.Context, p *entity.Property) error {
	ensureID(&p.ID)
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO properties (id, entity_id, name, title, type, subtype, "order", is_default, is_required,
				is_unique, is_hidden, is_searchable, is_sortable, is_filterable, is_display, is_read_only,
				can_update, show_in_create, formula_id)
			SELECT $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20
			WHERE EXISTS (SELECT 1 FROM entities WHERE id = $3 AND `+entityOwned+`)`,
			tenantArg(ctx), p.ID, p.EntityID, p.Name, p.Title, p.Type, p.Subtype, p.Order, p.IsDefault, p.IsRequired,
			p.IsUnique, p.IsHidden, p.IsSearchable, p.IsSortable, p.IsFilterable, p.IsDisplay, p.IsReadOnly,
			p.CanUpdate, p.ShowInCreate, p.FormulaID)
		if err != nil {
			return conflictWrap(err, "create property %s", p.Name)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("create property %s: entity %s: %w", p.Name, p.EntityID, domain.ErrNotFound)
		}
		for i := range p.Options {
			if err := insertOption(ctx, tx, p.ID, &p.Options[i]); err != nil {
				return err
			}
		}
		for i := range p.Attributes {
			if err := insertAttribute(ctx, tx, p.ID, &p.Attributes[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) UpdateProperty(ctx context.Context, p *entity.Property) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE properties SET name = $3, title = $4, subtype = $5, "order" = $6, is_required = $7,
			is_unique = $8, is_hidden = $9, is_searchable = $10, is_sortable = $11, is_filterable = $12,
			is_display = $13, is_read_only = $14, can_update = $15, show_in_create = $16, formula_id = $17
		WHERE `+ownedProperty,
		tenantArg(ctx), p.ID, p.Name, p.Title, p.Subtype, p.Order, p.IsRequired, p.IsUnique, p.IsHidden, p.IsSearchable,
		p.IsSortable, p.IsFilterable, p.IsDisplay, p.IsReadOnly, p.CanUpdate, p.ShowInCreate, p.FormulaID)
	if err != nil {
		return conflictWrap(err, "update property %s", p.ID)
	}
	return execExpectOne(tag, nil, "update property %s", p.ID)
}

func (s *Store) DeleteProperty(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM properties WHERE `+ownedProperty, tenantArg(ctx), id)
	return execExpectOne(tag, err, "delete property %s", id)
}

func (s *Store) DeletePropertyOptions(ctx context.Context, propertyID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM property_options
		WHERE property_id IN (SELECT id FROM properties WHERE `+ownedProperty+`)`, tenantArg(ctx), propertyID); err != nil {
		return fmt.Errorf("delete property options %s: %w", propertyID, err)
	}
	return nil
}

func (s *Store) CreatePropertyOption(ctx context.Context, propertyID string, o *entity.PropertyOption) error {
	return insertOption(ctx, s.pool, propertyID, o)
}

func (s *Store) DeletePropertyAttributes(ctx context.Context, propertyID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM property_attributes
		WHERE property_id IN (SELECT id FROM properties WHERE `+ownedProperty+`)`, tenantArg(ctx), propertyID); err != nil {
		return fmt.Errorf("delete property attributes %s: %w", propertyID, err)
	}
	return nil
}

func (s *Store) CreatePropertyAttribute(ctx context.Context, propertyID string, a *entity.PropertyAttribute) error {
	return insertAttribute(ctx, s.pool, propertyID, a)
}

func insertOption(ctx context.Context, q querier, propertyID string, o *entity.PropertyOption) error {
	ensureID(&o.ID)
	_, err := q.Exec(ctx,
		`INSERT INTO property_options (id, property_id, "order", value, name, color) VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, propertyID, o.Order, o.Value, o.Name, o.Color)
	if err != nil {
		return fmt.Errorf("create property option %q: %w", o.Value, err)
	}
	return nil
}

func insertAttribute(ctx context.Context, q querier, propertyID string, a *entity.PropertyAttribute) error {
	ensureID(&a.ID)
	_, err := q.Exec(ctx,
		`INSERT INTO property_attributes (id, property_id, name, value) VALUES ($1, $2, $3, $4)`,
		a.ID, propertyID, a.Name, a.Value)
	if err != nil {
		return fmt.Errorf("create property attribute %q: %w", a.Name, err)
	}
	return nil
}

// --- Relationships ---

const relationshipColumns = `id, parent_id, child_id, type, title, "order", required, cascade_delete, read_only, distinct_rows, child_view_id, parent_view_id`

// relationshipVisible restricts relationships to those whose two entities
// are visible to the context tenant.
const relationshipVisible = `parent_id IN (SELECT id FROM entities WHERE ` + entityVisible + `)
	AND child_id IN (SELECT id FROM entities WHERE ` + entityVisible + `)`

// relationshipOwned further requires one side to be owned by the scope, so
// a tenant can link its entities to system entities but never touch edges
// between entities it does not own.
const relationshipOwned = relationshipVisible + `
	AND (parent_id IN (SELECT id FROM entities WHERE ` + entityOwned + `)
	  OR child_id IN (SELECT id FROM entities WHERE ` + entityOwned + `))`

func scanRelationship(row scannable) (entity.Relationship, error) {
	var r entity.Relationship
	err := row.Scan(&r.ID, &r.ParentID, &r.ChildID, &r.Type, &r.Title, &r.Order, &r.Required,
		&r.Cascade, &r.ReadOnly, &r.Distinct, &r.ChildViewID, &r.ParentViewID)
	return r, err
}

// CreateRelationship orders the new edge after the parent's existing ones.
func (s *Store) CreateRelationship(ctx context.Context, r *entity.Relationship) error {
	ensureID(&r.ID)
	err := s.pool.QueryRow(ctx, `
		INSERT INTO relationships (id, parent_id, child_id, type, title, "order", required, cascade_delete,
			read_only, distinct_rows, child_view_id, parent_view_id)
		VALUES ($1, $2, $3, $4, $5,
			(SELECT COALESCE(MAX("order"), 0) + 1 FROM relationships WHERE parent_id = $2),
			$6, $7, $8, $9, $10, $11)
		RETURNING "order"`,
		r.ID, r.ParentID, r.ChildID, r.Type, r.Title, r.Required, r.Cascade, r.ReadOnly, r.Distinct,
		r.ChildViewID, r.ParentViewID).Scan(&r.Order)
	if err != nil {
		return fmt.Errorf("create relationship: %w", err)
	}
	return nil
}

func (s *Store) GetRelationship(ctx context.Context, id string) (*entity.Relationship, error) {
	r, err := scanRelationship(s.pool.QueryRow(ctx,
		`SELECT `+relationshipColumns+` FROM relationships WHERE id = $2 AND `+relationshipVisible, tenantArg(ctx), id))
	if err != nil {
		return nil, notFoundWrap(err, "get relationship %s", id)
	}
	return &r, nil
}

func (s *Store) ListRelationships(ctx context.Context, entityID string) ([]entity.Relationship, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+relationshipColumns+` FROM relationships
		 WHERE (parent_id = $2 OR child_id = $2) AND `+relationshipVisible+`
		 ORDER BY "order"`, tenantArg(ctx), entityID)
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	defer rows.Close()

	var out []entity.Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		out = append(out, r)
	}
	return orEmpty(out), rows.Err()
}

func (s *Store) DeleteRelationship(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM relationships WHERE id = $2 AND `+relationshipOwned, tenantArg(ctx), id)
	return execExpectOne(tag, err, "delete relationship %s", id)
}
