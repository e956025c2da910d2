package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	cfotel "github.com/Strob0t/backoffice/internal/adapter/otel"
	"github.com/Strob0t/backoffice/internal/domain"
	"github.com/Strob0t/backoffice/internal/domain/entity"
	"github.com/Strob0t/backoffice/internal/domain/permission"
	"github.com/Strob0t/backoffice/internal/domain/row"
	"github.com/Strob0t/backoffice/internal/domain/rowquery"
	"github.com/Strob0t/backoffice/internal/media"
	"github.com/Strob0t/backoffice/internal/middleware"
	"github.com/Strob0t/backoffice/internal/port/database"
	"github.com/Strob0t/backoffice/internal/port/messagequeue"
)

// RowView is a row with its derived display strings.
type RowView struct {
	row.Row
	Display row.Display `json:"display"`
}

// RowPage is one page of a row listing.
type RowPage struct {
	Entity     string                        `json:"entity"`
	Items      []RowView                     `json:"items"`
	Pagination rowquery.Pagination           `json:"pagination"`
	Filters    []rowquery.FilterableProperty `json:"filters"`
}

// RowService lists, reads and mutates entity rows on behalf of an actor.
// Every operation applies the entity permission and the row grant overlay.
type RowService struct {
	store    database.Store
	entities *EntityService
	perms    *PermissionService
	resolver *row.Resolver
	limits   rowquery.Limits
	queue    messagequeue.Queue
	purger   MediaPurger
	metrics  *cfotel.Metrics
}

// MediaPurger removes the stored objects of media files that are no longer
// referenced by any row.
type MediaPurger interface {
	Purge(ctx context.Context, files []row.Media) error
}

// NewRowService creates a RowService. queue may be nil, in which case media
// stays inline.
func NewRowService(store database.Store, entities *EntityService, perms *PermissionService, resolver *row.Resolver, limits rowquery.Limits, queue messagequeue.Queue) *RowService {
	return &RowService{
		store:    store,
		entities: entities,
		perms:    perms,
		resolver: resolver,
		limits:   limits,
		queue:    queue,
	}
}

// SetMetrics enables row counters and listing latency.
func (s *RowService) SetMetrics(m *cfotel.Metrics) { s.metrics = m }

// SetMediaPurger makes updates and deletes remove the stored objects of
// media they drop.
func (s *RowService) SetMediaPurger(p MediaPurger) { s.purger = p }

func (s *RowService) view(e *entity.Entity, r *row.Row) RowView {
	return RowView{Row: *r, Display: s.resolver.Resolve(e, r, nil)}
}

func (s *RowService) views(e *entity.Entity, rows []row.Row) []RowView {
	out := make([]RowView, 0, len(rows))
	for i := range rows {
		out = append(out, s.view(e, &rows[i]))
	}
	return out
}

// List returns one page of the entity's rows visible to the actor, filtered
// and sorted by the search parameters.
func (s *RowService) List(ctx context.Context, a *permission.Actor, ref string, params url.Values) (*RowPage, error) {
	if err := requireActor(a); err != nil {
		return nil, err
	}
	e, err := s.entities.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := s.perms.Check(ctx, a, permission.EntityKey(e.Name, permission.ActionView)); err != nil {
		return nil, err
	}

	q := rowquery.FromSearchParams(e, params, s.limits)

	ctx, span := cfotel.StartRowQuerySpan(ctx, e.Name, middleware.TenantIDFromContext(ctx))
	defer span.End()
	start := time.Now()

	rows, total, err := s.store.ListRows(ctx, e, q, database.ScopeFor(a))
	if s.metrics != nil {
		s.metrics.RowQueryDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("entity", e.Name)))
	}
	if err != nil {
		return nil, fmt.Errorf("list %s rows: %w", e.Name, err)
	}

	return &RowPage{
		Entity:     e.Name,
		Items:      s.views(e, rows),
		Pagination: rowquery.NewPagination(total, q.Page, q.PageSize),
		Filters:    q.Filters,
	}, nil
}

// Get returns one row of the entity.
func (s *RowService) Get(ctx context.Context, a *permission.Actor, ref, id string) (*RowView, error) {
	e, r, err := s.load(ctx, a, ref, id, permission.ActionView)
	if err != nil {
		return nil, err
	}
	v := s.view(e, r)
	return &v, nil
}

// load fetches the entity and the row concurrently, checks the row belongs
// to the entity and that the actor may perform act on it.
func (s *RowService) load(ctx context.Context, a *permission.Actor, ref, id string, act permission.Action) (*entity.Entity, *row.Row, error) {
	if err := requireActor(a); err != nil {
		return nil, nil, err
	}

	var (
		e *entity.Entity
		r *row.Row
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		e, err = s.entities.Resolve(gctx, ref)
		return err
	})
	g.Go(func() error {
		var err error
		r, err = s.store.GetRow(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if r.EntityID != e.ID {
		return nil, nil, fmt.Errorf("row %s of %s: %w", id, e.Name, domain.ErrNotFound)
	}
	if err := s.perms.CheckRow(ctx, a, e.Name, act, r.Permissions); err != nil {
		return nil, nil, err
	}
	return e, r, nil
}

// Create validates the submitted values and stores a new row with its tags,
// grants and parent links. Media held inline is queued for migration once
// the row is committed.
func (s *RowService) Create(ctx context.Context, a *permission.Actor, ref string, req row.CreateRequest) (*RowView, error) {
	if err := requireActor(a); err != nil {
		return nil, err
	}
	e, err := s.entities.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := s.perms.Check(ctx, a, permission.EntityKey(e.Name, permission.ActionCreate)); err != nil {
		return nil, err
	}

	values, errs := decodeValues(e, req.Values, false)
	errs = append(errs, missingRequired(e, values)...)
	dup, err := s.checkUnique(ctx, e, values, "")
	if err != nil {
		return nil, err
	}
	errs = append(errs, dup...)
	errs = append(errs, validateTags(e, req.Tags)...)
	errs = append(errs, validateGrants(req.Permissions)...)
	errs = append(errs, s.validateLinks(ctx, e, req.ParentRows)...)
	if err := domain.NewValidationError(errs); err != nil {
		return nil, err
	}

	r := &row.Row{
		EntityID:          e.ID,
		TenantID:          middleware.TenantIDFromContext(ctx),
		Values:            values,
		Tags:              req.Tags,
		Permissions:       req.Permissions,
		CreatedByUserID:   creatorID(a),
		CreatedByAPIKeyID: a.APIKeyID,
	}

	ctx, span := cfotel.StartRowMutationSpan(ctx, "create", e.Name, "")
	defer span.End()

	if err := s.store.CreateRow(ctx, r); err != nil {
		return nil, fmt.Errorf("create %s row: %w", e.Name, err)
	}
	if s.metrics != nil {
		s.metrics.RowsCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("entity", e.Name)))
	}

	for _, l := range req.ParentRows {
		rr := &entity.RowRelationship{RelationshipID: l.RelationshipID, ParentRowID: l.ParentRowID, ChildRowID: r.ID}
		if err := s.store.CreateRowRelationship(ctx, rr); err != nil {
			return nil, fmt.Errorf("link row %s to parent %s: %w", r.ID, l.ParentRowID, err)
		}
		r.ParentIDs = append(r.ParentIDs, l.ParentRowID)
	}

	slog.InfoContext(ctx, "row created", "entity", e.Name, "row_id", r.ID, "folio", r.Folio)
	s.enqueueMedia(ctx, e, r, r.Values)

	v := s.view(e, r)
	return &v, nil
}

// Update overwrites the submitted values. Properties not submitted keep
// their value. Values are written one by one.
func (s *RowService) Update(ctx context.Context, a *permission.Actor, ref, id string, req row.UpdateRequest) (*RowView, error) {
	e, r, err := s.load(ctx, a, ref, id, permission.ActionUpdate)
	if err != nil {
		return nil, err
	}

	values, errs := decodeValues(e, req.Values, true)
	for i := range values {
		p, _ := e.Property(values[i].PropertyID)
		if p.IsRequired && values[i].IsEmpty() {
			errs = append(errs, domain.FieldError{Field: p.Name, Message: p.Title + " is required"})
		}
	}
	dup, err := s.checkUnique(ctx, e, values, r.ID)
	if err != nil {
		return nil, err
	}
	errs = append(errs, dup...)
	if err := domain.NewValidationError(errs); err != nil {
		return nil, err
	}

	ctx, span := cfotel.StartRowMutationSpan(ctx, "update", e.Name, r.ID)
	defer span.End()

	var dropped []row.Media
	for i := range values {
		if old, ok := r.GetValue(values[i].PropertyID); ok {
			dropped = append(dropped, droppedMedia(r, old.Media, values[i].Media)...)
		}
		if err := s.store.UpsertRowValue(ctx, r.ID, &values[i]); err != nil {
			return nil, fmt.Errorf("update %s row %s: %w", e.Name, r.ID, err)
		}
		r.SetValue(values[i])
	}

	s.purgeMedia(ctx, r.ID, dropped)
	s.enqueueMedia(ctx, e, r, values)
	v := s.view(e, r)
	return &v, nil
}

// Delete removes a row and, through relationships marked cascade, every
// descendant row. It returns the number of rows deleted.
func (s *RowService) Delete(ctx context.Context, a *permission.Actor, ref, id string) (int, error) {
	e, r, err := s.load(ctx, a, ref, id, permission.ActionDelete)
	if err != nil {
		return 0, err
	}

	ctx, span := cfotel.StartRowMutationSpan(ctx, "delete", e.Name, r.ID)
	defer span.End()

	order, err := s.cascadeOrder(ctx, r.ID)
	if err != nil {
		return 0, err
	}
	var files []row.Media
	if s.purger != nil {
		rows, err := s.store.GetRowsByIDs(ctx, order)
		if err != nil {
			return 0, fmt.Errorf("load rows to delete: %w", err)
		}
		for i := range rows {
			for _, v := range rows[i].Values {
				files = append(files, droppedMedia(&rows[i], v.Media, nil)...)
			}
		}
	}
	deleted := 0
	for _, rid := range order {
		if err := s.store.DeleteRow(ctx, rid); err != nil {
			return deleted, fmt.Errorf("delete row %s: %w", rid, err)
		}
		deleted++
	}
	s.purgeMedia(ctx, r.ID, files)

	if s.metrics != nil {
		s.metrics.RowsDeleted.Add(ctx, int64(deleted), metric.WithAttributes(attribute.String("entity", e.Name)))
	}
	slog.InfoContext(ctx, "row deleted", "entity", e.Name, "row_id", r.ID, "cascaded", deleted-1)
	return deleted, nil
}

// cascadeOrder walks cascading child links breadth first and returns the
// rows to delete, descendants before ancestors.
func (s *RowService) cascadeOrder(ctx context.Context, rootID string) ([]string, error) {
	seen := map[string]bool{rootID: true}
	visit := []string{rootID}
	for i := 0; i < len(visit); i++ {
		children, err := s.store.ListChildRowIDsByParent(ctx, visit[i], true)
		if err != nil {
			return nil, fmt.Errorf("list cascading children of %s: %w", visit[i], err)
		}
		for _, c := range children {
			if !seen[c] {
				seen[c] = true
				visit = append(visit, c)
			}
		}
	}
	slices.Reverse(visit)
	return visit, nil
}

// SetTags replaces the tags of a row.
func (s *RowService) SetTags(ctx context.Context, a *permission.Actor, ref, id string, tags []row.Tag) (*RowView, error) {
	e, r, err := s.load(ctx, a, ref, id, permission.ActionUpdate)
	if err != nil {
		return nil, err
	}
	if err := domain.NewValidationError(validateTags(e, tags)); err != nil {
		return nil, err
	}
	if err := s.store.SetRowTags(ctx, r.ID, tags); err != nil {
		return nil, err
	}
	r.Tags = tags
	v := s.view(e, r)
	return &v, nil
}

// SetPermissions replaces the grants of a row. The old grants are removed
// first and the new ones written one by one; a failure part way leaves the
// row with the grants written so far.
func (s *RowService) SetPermissions(ctx context.Context, a *permission.Actor, ref, id string, grants []permission.Grant) ([]permission.Grant, error) {
	_, r, err := s.load(ctx, a, ref, id, permission.ActionUpdate)
	if err != nil {
		return nil, err
	}
	if err := domain.NewValidationError(validateGrants(grants)); err != nil {
		return nil, err
	}

	if err := s.store.DeleteRowPermissions(ctx, r.ID); err != nil {
		return nil, err
	}
	out := make([]permission.Grant, 0, len(grants))
	for i, g := range grants {
		g.ID = ""
		g.RowID = r.ID
		if err := s.store.CreateRowPermission(ctx, &g); err != nil {
			return out, fmt.Errorf("set permissions of row %s after %d of %d: %w", r.ID, i, len(grants), err)
		}
		out = append(out, g)
	}
	return out, nil
}

// ListRelated lists the child rows linked to parentRowID through a
// relationship, applying the same filters, search, sort and pagination as
// List. A child linked several times appears once per link unless the
// relationship is distinct.
func (s *RowService) ListRelated(ctx context.Context, a *permission.Actor, relationshipID, parentRowID string, params url.Values) (*RowPage, error) {
	if err := requireActor(a); err != nil {
		return nil, err
	}
	rel, err := s.store.GetRelationship(ctx, relationshipID)
	if err != nil {
		return nil, err
	}
	child, err := s.store.GetEntity(ctx, rel.ChildID)
	if err != nil {
		return nil, err
	}
	if err := s.perms.Check(ctx, a, permission.EntityKey(child.Name, permission.ActionView)); err != nil {
		return nil, err
	}

	ids, err := s.store.ListChildRowIDs(ctx, rel.ID, parentRowID)
	if err != nil {
		return nil, fmt.Errorf("list children of %s: %w", parentRowID, err)
	}
	fetched, err := s.store.GetRowsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*row.Row, len(fetched))
	for i := range fetched {
		byID[fetched[i].ID] = &fetched[i]
	}

	tenantID := middleware.TenantIDFromContext(ctx)
	rows := make([]row.Row, 0, len(ids))
	for _, id := range ids {
		r, ok := byID[id]
		if !ok || r.TenantID != tenantID {
			continue
		}
		if permission.CanAccessRow(a, child.Name, permission.ActionView, r.Permissions) {
			rows = append(rows, *r)
		}
	}

	q := rowquery.FromSearchParams(child, params, s.limits)
	q.Distinct = rel.Distinct
	page := rowquery.Apply(rows, child, q)
	return &RowPage{
		Entity:     child.Name,
		Items:      s.views(child, page.Items),
		Pagination: page.Pagination,
		Filters:    q.Filters,
	}, nil
}

// enqueueMedia publishes a migration task for every media value that still
// holds inline files. Publishing failures are logged; the row stays valid.
func (s *RowService) enqueueMedia(ctx context.Context, e *entity.Entity, r *row.Row, values []row.Value) {
	if s.queue == nil {
		return
	}
	for i := range values {
		if !slices.ContainsFunc(values[i].Media, func(m row.Media) bool { return m.NeedsMigration() }) {
			continue
		}
		payload, err := json.Marshal(messagequeue.MediaMigratePayload{
			TenantID:   r.TenantID,
			EntityID:   e.ID,
			RowID:      r.ID,
			PropertyID: values[i].PropertyID,
		})
		if err == nil {
			err = s.queue.Publish(ctx, messagequeue.SubjectMediaMigrate, payload)
		}
		if err != nil {
			slog.WarnContext(ctx, "enqueue media migration failed", "row_id", r.ID, "property_id", values[i].PropertyID, "error", err)
			if s.metrics != nil {
				s.metrics.SideEffectFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("task", messagequeue.SubjectMediaMigrate)))
			}
		}
	}
}

// droppedMedia returns the stored files of old that next no longer holds.
// Only objects stored under the row's own prefix qualify, since keys of
// submitted values are not trusted.
func droppedMedia(r *row.Row, old, next []row.Media) []row.Media {
	prefix := media.RowPrefix(r.TenantID, r.EntityID, r.ID)
	var out []row.Media
	for _, m := range old {
		if !strings.HasPrefix(m.StorageKey, prefix) {
			continue
		}
		if !slices.ContainsFunc(next, func(n row.Media) bool { return n.StorageKey == m.StorageKey }) {
			out = append(out, m)
		}
	}
	return out
}

// purgeMedia deletes dropped objects after the row change committed. A
// failure leaves an orphaned object, never a broken row.
func (s *RowService) purgeMedia(ctx context.Context, rowID string, files []row.Media) {
	if s.purger == nil || len(files) == 0 {
		return
	}
	if err := s.purger.Purge(ctx, files); err != nil {
		slog.WarnContext(ctx, "purge stored media failed", "row_id", rowID, "error", err)
		if s.metrics != nil {
			s.metrics.SideEffectFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("task", "media.purge")))
		}
	}
}

// decodeValues decodes values keyed by property name. On update, properties
// that cannot be updated are rejected.
func decodeValues(e *entity.Entity, raw map[string]row.RawValue, update bool) ([]row.Value, []domain.FieldError) {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	slices.Sort(names)

	var (
		values []row.Value
		errs   []domain.FieldError
	)
	for _, name := range names {
		p, ok := e.PropertyByName(name)
		if !ok {
			errs = append(errs, domain.FieldError{Field: name, Message: fmt.Sprintf("unknown property %q", name)})
			continue
		}
		if p.Type == entity.TypeFormula {
			errs = append(errs, domain.FieldError{Field: p.Name, Message: p.Title + " is computed"})
			continue
		}
		if update && (p.IsReadOnly || !p.CanUpdate) {
			errs = append(errs, domain.FieldError{Field: p.Name, Message: p.Title + " cannot be updated"})
			continue
		}
		v, err := row.Decode(p, raw[name])
		if err != nil {
			errs = append(errs, domain.FieldError{Field: p.Name, Message: strings.TrimSuffix(err.Error(), ": "+domain.ErrValidation.Error())})
			continue
		}
		values = append(values, v)
	}
	return values, errs
}

func missingRequired(e *entity.Entity, values []row.Value) []domain.FieldError {
	var errs []domain.FieldError
	for i := range e.Properties {
		p := &e.Properties[i]
		if !p.IsRequired || p.Type == entity.TypeFormula {
			continue
		}
		idx := slices.IndexFunc(values, func(v row.Value) bool { return v.PropertyID == p.ID })
		if idx < 0 || values[idx].IsEmpty() {
			errs = append(errs, domain.FieldError{Field: p.Name, Message: p.Title + " is required"})
		}
	}
	return errs
}

// checkUnique rejects values of unique properties already held by another
// row of the entity in the tenant, regardless of row grants.
func (s *RowService) checkUnique(ctx context.Context, e *entity.Entity, values []row.Value, exceptRowID string) ([]domain.FieldError, error) {
	var errs []domain.FieldError
	for i := range values {
		p, ok := e.Property(values[i].PropertyID)
		if !ok || !p.IsUnique || values[i].IsEmpty() {
			continue
		}
		q := rowquery.Query{
			Page:     1,
			PageSize: 2,
			Filters:  []rowquery.FilterableProperty{{Name: p.Name, PropertyID: p.ID, Value: values[i].String()}},
		}
		rows, _, err := s.store.ListRows(ctx, e, q, database.RowScope{Bypass: true})
		if err != nil {
			return nil, fmt.Errorf("check unique %s: %w", p.Name, err)
		}
		for _, r := range rows {
			if r.ID != exceptRowID {
				errs = append(errs, domain.FieldError{Field: p.Name, Message: fmt.Sprintf("%s %q is already taken", p.Title, values[i].String())})
				break
			}
		}
	}
	return errs, nil
}

func validateTags(e *entity.Entity, tags []row.Tag) []domain.FieldError {
	if len(tags) == 0 {
		return nil
	}
	if !e.HasTags {
		return []domain.FieldError{{Field: "tags", Message: e.Title + " rows cannot be tagged"}}
	}
	for _, t := range tags {
		if strings.TrimSpace(t.Value) == "" {
			return []domain.FieldError{{Field: "tags", Message: "tag value is required"}}
		}
	}
	return nil
}

func validateGrants(grants []permission.Grant) []domain.FieldError {
	var errs []domain.FieldError
	for i, g := range grants {
		subjects := 0
		for _, id := range []string{g.TenantID, g.RoleID, g.GroupID, g.UserID} {
			if id != "" {
				subjects++
			}
		}
		if subjects != 1 {
			errs = append(errs, domain.FieldError{Field: "permissions", Message: fmt.Sprintf("grant %d must name exactly one tenant, role, group or user", i+1)})
		}
		if !permission.ValidAccess(g.Access) {
			errs = append(errs, domain.FieldError{Field: "permissions", Message: fmt.Sprintf("grant %d has unknown access %q", i+1, g.Access)})
		}
	}
	return errs
}

// validateLinks checks that every requested parent link uses a relationship
// whose child is e and whose parent entity owns the parent row.
func (s *RowService) validateLinks(ctx context.Context, e *entity.Entity, links []row.LinkRequest) []domain.FieldError {
	var errs []domain.FieldError
	for _, l := range links {
		rel, err := s.store.GetRelationship(ctx, l.RelationshipID)
		if err != nil {
			errs = append(errs, domain.FieldError{Field: "parent_rows", Message: fmt.Sprintf("relationship %s not found", l.RelationshipID)})
			continue
		}
		if rel.ChildID != e.ID {
			errs = append(errs, domain.FieldError{Field: "parent_rows", Message: fmt.Sprintf("relationship %s does not have %s as child", rel.ID, e.Name)})
			continue
		}
		parent, err := s.store.GetRow(ctx, l.ParentRowID)
		if err != nil || parent.EntityID != rel.ParentID {
			errs = append(errs, domain.FieldError{Field: "parent_rows", Message: fmt.Sprintf("parent row %s not found", l.ParentRowID)})
		}
	}
	return errs
}
