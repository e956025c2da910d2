package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/backoffice/internal/domain/entity"
	"github.com/Strob0t/backoffice/internal/domain/permission"
	"github.com/Strob0t/backoffice/internal/domain/row"
	"github.com/Strob0t/backoffice/internal/domain/rowquery"
	"github.com/Strob0t/backoffice/internal/port/database"
)

const rowColumns = `r.id, r.entity_id, r.tenant_id, r.folio, r."order", r.created_by_user_id, r.created_by_api_key_id, r.created_at, r.updated_at`

func scanRow(sc scannable) (row.Row, error) {
	var r row.Row
	var tenantID, byUser, byKey *string
	err := sc.Scan(&r.ID, &r.EntityID, &tenantID, &r.Folio, &r.Order, &byUser, &byKey, &r.CreatedAt, &r.UpdatedAt)
	r.TenantID = deref(tenantID)
	r.CreatedByUserID = deref(byUser)
	r.CreatedByAPIKeyID = deref(byKey)
	r.Values = []row.Value{}
	return r, err
}

// CreateRow assigns the next folio of the entity within the row's tenant and
// inserts the row with its values, tags and grants in one transaction. An
// advisory lock per entity and tenant serialises folio assignment.
func (s *Store) CreateRow(ctx context.Context, r *row.Row) error {
	ensureID(&r.ID)
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now

	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "folio:"+r.EntityID+":"+r.TenantID); err != nil {
			return fmt.Errorf("lock folio sequence: %w", err)
		}
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(folio), 0) + 1 FROM entity_rows
			 WHERE entity_id = $1 AND tenant_id IS NOT DISTINCT FROM $2::uuid`,
			r.EntityID, nullIfEmpty(r.TenantID)).Scan(&r.Folio); err != nil {
			return fmt.Errorf("next folio: %w", err)
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO entity_rows (id, entity_id, tenant_id, folio, "order", created_by_user_id, created_by_api_key_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			r.ID, r.EntityID, nullIfEmpty(r.TenantID), r.Folio, r.Order,
			nullIfEmpty(r.CreatedByUserID), nullIfEmpty(r.CreatedByAPIKeyID), r.CreatedAt, r.UpdatedAt)
		if err != nil {
			return conflictWrap(err, "create row")
		}

		for i := range r.Values {
			if err := upsertValue(ctx, tx, r.ID, &r.Values[i]); err != nil {
				return err
			}
		}
		for i := range r.Tags {
			if err := insertTag(ctx, tx, r.ID, &r.Tags[i]); err != nil {
				return err
			}
		}
		for i := range r.Permissions {
			r.Permissions[i].RowID = r.ID
			if err := insertGrant(ctx, tx, &r.Permissions[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetRow(ctx context.Context, id string) (*row.Row, error) {
	r, err := scanRow(s.pool.QueryRow(ctx,
		`SELECT `+rowColumns+` FROM entity_rows r
		 WHERE r.id = $1 AND r.tenant_id IS NOT DISTINCT FROM $2::uuid`, id, tenantArg(ctx)))
	if err != nil {
		return nil, notFoundWrap(err, "get row %s", id)
	}
	rows := []row.Row{r}
	if err := s.loadRowDetails(ctx, rows); err != nil {
		return nil, err
	}
	return &rows[0], nil
}

func (s *Store) GetRowsByIDs(ctx context.Context, ids []string) ([]row.Row, error) {
	if len(ids) == 0 {
		return []row.Row{}, nil
	}
	rows, err := s.queryRows(ctx, "get rows",
		`SELECT `+rowColumns+` FROM entity_rows r
		 WHERE r.id = ANY($1::uuid[]) AND r.tenant_id IS NOT DISTINCT FROM $2::uuid
		 ORDER BY r.folio`, ids, tenantArg(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.loadRowDetails(ctx, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListRows returns one page of the entity's rows in the context tenant and
// the total number of rows matching the query.
func (s *Store) ListRows(ctx context.Context, e *entity.Entity, q rowquery.Query, scope database.RowScope) ([]row.Row, int, error) {
	b := buildRowListQuery(e, q, tenantFromCtx(ctx), scope)

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM entity_rows r WHERE `+b.whereSQL(), b.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count rows of %s: %w", e.Name, err)
	}

	p := rowquery.NewPagination(total, q.Page, q.PageSize)
	if p.Offset() >= total {
		return []row.Row{}, total, nil
	}
	query := `SELECT ` + rowColumns + ` FROM entity_rows r WHERE ` + b.whereSQL() +
		` ORDER BY ` + b.order +
		` LIMIT ` + b.arg(p.PageSize) + ` OFFSET ` + b.arg(p.Offset())

	rows, err := s.queryRows(ctx, "list rows of "+e.Name, query, b.args...)
	if err != nil {
		return nil, 0, err
	}
	if err := s.loadRowDetails(ctx, rows); err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// CountRows counts the rows of an entity across every tenant, since
// deleting the entity removes all of them.
func (s *Store) CountRows(ctx context.Context, entityID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM entity_rows WHERE entity_id = $1`, entityID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rows of entity %s: %w", entityID, err)
	}
	return n, nil
}

func (s *Store) queryRows(ctx context.Context, op, query string, args ...any) ([]row.Row, error) {
	rs, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rs.Close()

	out := []row.Row{}
	for rs.Next() {
		r, err := scanRow(rs)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// loadRowDetails fills values, tags, grants and links of rows in place.
func (s *Store) loadRowDetails(ctx context.Context, rows []row.Row) error {
	if len(rows) == 0 {
		return nil
	}
	ids := make([]string, len(rows))
	byID := make(map[string]*row.Row, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
		byID[rows[i].ID] = &rows[i]
	}

	if err := s.loadValues(ctx, ids, byID); err != nil {
		return err
	}

	tagRows, err := s.pool.Query(ctx,
		`SELECT id, row_id, value, color FROM row_tags WHERE row_id = ANY($1::uuid[]) ORDER BY value`, ids)
	if err != nil {
		return fmt.Errorf("load row tags: %w", err)
	}
	for tagRows.Next() {
		var t row.Tag
		var rowID string
		if err := tagRows.Scan(&t.ID, &rowID, &t.Value, &t.Color); err != nil {
			tagRows.Close()
			return fmt.Errorf("scan row tag: %w", err)
		}
		byID[rowID].Tags = append(byID[rowID].Tags, t)
	}
	tagRows.Close()
	if err := tagRows.Err(); err != nil {
		return fmt.Errorf("load row tags: %w", err)
	}

	grants, err := s.queryGrants(ctx, `WHERE row_id = ANY($1::uuid[])`, ids)
	if err != nil {
		return err
	}
	for _, g := range grants {
		byID[g.RowID].Permissions = append(byID[g.RowID].Permissions, g)
	}

	linkRows, err := s.pool.Query(ctx,
		`SELECT parent_row_id, child_row_id FROM row_relationships
		 WHERE parent_row_id = ANY($1::uuid[]) OR child_row_id = ANY($1::uuid[])`, ids)
	if err != nil {
		return fmt.Errorf("load row links: %w", err)
	}
	defer linkRows.Close()
	for linkRows.Next() {
		var parentID, childID string
		if err := linkRows.Scan(&parentID, &childID); err != nil {
			return fmt.Errorf("scan row link: %w", err)
		}
		if r := byID[parentID]; r != nil {
			r.ChildIDs = append(r.ChildIDs, childID)
		}
		if r := byID[childID]; r != nil {
			r.ParentIDs = append(r.ParentIDs, parentID)
		}
	}
	return linkRows.Err()
}

func (s *Store) loadValues(ctx context.Context, ids []string, byID map[string]*row.Row) error {
	rs, err := s.pool.Query(ctx, `
		SELECT id, row_id, property_id, text_value, number_value, date_value, boolean_value, multiple, media, range_value
		FROM row_values WHERE row_id = ANY($1::uuid[])`, ids)
	if err != nil {
		return fmt.Errorf("load row values: %w", err)
	}
	defer rs.Close()

	for rs.Next() {
		var v row.Value
		var rowID string
		var mediaJSON, rangeJSON []byte
		if err := rs.Scan(&v.ID, &rowID, &v.PropertyID, &v.Text, &v.Number, &v.Date, &v.Boolean,
			&v.Multiple, &mediaJSON, &rangeJSON); err != nil {
			return fmt.Errorf("scan row value: %w", err)
		}
		if len(mediaJSON) > 0 {
			if err := json.Unmarshal(mediaJSON, &v.Media); err != nil {
				return fmt.Errorf("decode media of value %s: %w", v.ID, err)
			}
		}
		if len(rangeJSON) > 0 {
			v.Range = &row.Range{}
			if err := json.Unmarshal(rangeJSON, v.Range); err != nil {
				return fmt.Errorf("decode range of value %s: %w", v.ID, err)
			}
		}
		byID[rowID].Values = append(byID[rowID].Values, v)
	}
	return rs.Err()
}

// UpsertRowValue stores v as the row's only value for its property.
func (s *Store) UpsertRowValue(ctx context.Context, rowID string, v *row.Value) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE entity_rows SET updated_at = now() WHERE id = $1 AND tenant_id IS NOT DISTINCT FROM $2::uuid`,
			rowID, tenantArg(ctx))
		if err := execExpectOne(tag, err, "touch row %s", rowID); err != nil {
			return err
		}
		return upsertValue(ctx, tx, rowID, v)
	})
}

func upsertValue(ctx context.Context, q querier, rowID string, v *row.Value) error {
	ensureID(&v.ID)
	var mediaJSON, rangeJSON []byte
	var err error
	if len(v.Media) > 0 {
		if mediaJSON, err = json.Marshal(v.Media); err != nil {
			return fmt.Errorf("marshal media: %w", err)
		}
	}
	if v.Range != nil {
		if rangeJSON, err = json.Marshal(v.Range); err != nil {
			return fmt.Errorf("marshal range: %w", err)
		}
	}
	err = q.QueryRow(ctx, `
		INSERT INTO row_values (id, row_id, property_id, text_value, number_value, date_value, boolean_value, multiple, media, range_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (row_id, property_id) DO UPDATE SET
			text_value = EXCLUDED.text_value, number_value = EXCLUDED.number_value,
			date_value = EXCLUDED.date_value, boolean_value = EXCLUDED.boolean_value,
			multiple = EXCLUDED.multiple, media = EXCLUDED.media, range_value = EXCLUDED.range_value
		RETURNING id`,
		v.ID, rowID, v.PropertyID, v.Text, v.Number, v.Date, v.Boolean, v.Multiple, mediaJSON, rangeJSON,
	).Scan(&v.ID)
	if err != nil {
		return fmt.Errorf("upsert value of property %s: %w", v.PropertyID, err)
	}
	return nil
}

// DeleteRow removes the row; values, tags, grants and links cascade.
func (s *Store) DeleteRow(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM entity_rows WHERE id = $1 AND tenant_id IS NOT DISTINCT FROM $2::uuid`, id, tenantArg(ctx))
	return execExpectOne(tag, err, "delete row %s", id)
}

// SetRowTags replaces the row's tags.
func (s *Store) SetRowTags(ctx context.Context, rowID string, tags []row.Tag) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM row_tags WHERE row_id = $1`, rowID); err != nil {
			return fmt.Errorf("clear tags of row %s: %w", rowID, err)
		}
		for i := range tags {
			if err := insertTag(ctx, tx, rowID, &tags[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertTag(ctx context.Context, q querier, rowID string, t *row.Tag) error {
	ensureID(&t.ID)
	if _, err := q.Exec(ctx,
		`INSERT INTO row_tags (id, row_id, value, color) VALUES ($1, $2, $3, $4)`,
		t.ID, rowID, t.Value, t.Color); err != nil {
		return fmt.Errorf("create tag %q: %w", t.Value, err)
	}
	return nil
}

// --- Row grants ---

func (s *Store) ListRowPermissions(ctx context.Context, rowID string) ([]permission.Grant, error) {
	grants, err := s.queryGrants(ctx, `WHERE row_id = $1`, rowID)
	if err != nil {
		return nil, err
	}
	return orEmpty(grants), nil
}

func (s *Store) queryGrants(ctx context.Context, where string, args ...any) ([]permission.Grant, error) {
	rs, err := s.pool.Query(ctx,
		`SELECT id, row_id, tenant_id, role_id, group_id, user_id, access FROM row_permissions `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("load row permissions: %w", err)
	}
	defer rs.Close()

	var out []permission.Grant
	for rs.Next() {
		var g permission.Grant
		var tenantID, roleID, groupID, userID *string
		if err := rs.Scan(&g.ID, &g.RowID, &tenantID, &roleID, &groupID, &userID, &g.Access); err != nil {
			return nil, fmt.Errorf("scan row permission: %w", err)
		}
		g.TenantID, g.RoleID, g.GroupID, g.UserID = deref(tenantID), deref(roleID), deref(groupID), deref(userID)
		out = append(out, g)
	}
	return out, rs.Err()
}

func (s *Store) CreateRowPermission(ctx context.Context, g *permission.Grant) error {
	return insertGrant(ctx, s.pool, g)
}

func (s *Store) DeleteRowPermissions(ctx context.Context, rowID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM row_permissions WHERE row_id = $1`, rowID); err != nil {
		return fmt.Errorf("delete permissions of row %s: %w", rowID, err)
	}
	return nil
}

func insertGrant(ctx context.Context, q querier, g *permission.Grant) error {
	ensureID(&g.ID)
	if _, err := q.Exec(ctx, `
		INSERT INTO row_permissions (id, row_id, tenant_id, role_id, group_id, user_id, access)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		g.ID, g.RowID, nullIfEmpty(g.TenantID), nullIfEmpty(g.RoleID), nullIfEmpty(g.GroupID),
		nullIfEmpty(g.UserID), g.Access); err != nil {
		return fmt.Errorf("create row permission: %w", err)
	}
	return nil
}

// --- Row links ---

func (s *Store) CreateRowRelationship(ctx context.Context, rr *entity.RowRelationship) error {
	ensureID(&rr.ID)
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO row_relationships (id, relationship_id, parent_row_id, child_row_id) VALUES ($1, $2, $3, $4)`,
		rr.ID, rr.RelationshipID, rr.ParentRowID, rr.ChildRowID); err != nil {
		return fmt.Errorf("link row %s to %s: %w", rr.ChildRowID, rr.ParentRowID, err)
	}
	return nil
}

// ListChildRowIDs returns one ID per link, so a child reachable through
// several links is listed several times.
func (s *Store) ListChildRowIDs(ctx context.Context, relationshipID, parentRowID string) ([]string, error) {
	return s.queryIDs(ctx, "list child rows",
		`SELECT child_row_id FROM row_relationships
		 WHERE relationship_id = $1 AND parent_row_id = $2 ORDER BY id`, relationshipID, parentRowID)
}

func (s *Store) ListChildRowIDsByParent(ctx context.Context, parentRowID string, cascadeOnly bool) ([]string, error) {
	return s.queryIDs(ctx, "list child rows by parent",
		`SELECT DISTINCT rr.child_row_id FROM row_relationships rr
		 JOIN relationships rel ON rel.id = rr.relationship_id
		 WHERE rr.parent_row_id = $1 AND (NOT $2::boolean OR rel.cascade_delete)`, parentRowID, cascadeOnly)
}

func (s *Store) queryIDs(ctx context.Context, op, query string, args ...any) ([]string, error) {
	rs, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rs.Close()

	ids := []string{}
	for rs.Next() {
		var id string
		if err := rs.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		ids = append(ids, id)
	}
	return ids, rs.Err()
}
