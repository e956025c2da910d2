package postgres

import (
	"strconv"
	"strings"

	"github.com/Strob0t/backoffice/internal/domain/entity"
	"github.com/Strob0t/backoffice/internal/domain/row"
	"github.com/Strob0t/backoffice/internal/domain/rowquery"
	"github.com/Strob0t/backoffice/internal/port/database"
)

// valueText renders a row_values record the way row.Value.String does for
// the scalar and multi-valued columns. Range and media values render empty,
// as they do for rowquery search.
const valueText = `COALESCE(v.text_value, v.number_value::text, to_char(v.date_value AT TIME ZONE 'UTC', 'YYYY-MM-DD'), v.boolean_value::text, array_to_string(v.multiple, ', '), '')`

// rowListQuery accumulates the WHERE and ORDER BY clauses of a row listing
// together with their positional arguments.
type rowListQuery struct {
	where []string
	order string
	args  []any
}

// arg appends a positional argument and returns its placeholder.
func (b *rowListQuery) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *rowListQuery) whereSQL() string {
	return strings.Join(b.where, " AND ")
}

// buildRowListQuery translates a listing query into SQL with the same
// semantics as rowquery.Apply: tenant isolation, the row grant overlay,
// property filters, free-text search and sorting with a folio tiebreak.
func buildRowListQuery(e *entity.Entity, q rowquery.Query, tenantID string, scope database.RowScope) *rowListQuery {
	b := &rowListQuery{}
	b.where = append(b.where,
		"r.entity_id = "+b.arg(e.ID),
		"r.tenant_id IS NOT DISTINCT FROM "+b.arg(nullIfEmpty(tenantID))+"::uuid",
	)

	if !scope.Bypass {
		b.where = append(b.where, "(NOT EXISTS (SELECT 1 FROM row_permissions p WHERE p.row_id = r.id)"+
			" OR EXISTS (SELECT 1 FROM row_permissions p WHERE p.row_id = r.id AND ("+
			"p.user_id = "+b.arg(nullIfEmpty(scope.UserID))+"::uuid"+
			" OR p.role_id = ANY("+b.arg(pgTextArray(scope.RoleIDs))+"::uuid[])"+
			" OR p.group_id = ANY("+b.arg(pgTextArray(scope.GroupIDs))+"::uuid[])"+
			" OR p.tenant_id = "+b.arg(nullIfEmpty(scope.TenantID))+"::uuid)))")
	}

	for _, f := range q.Active() {
		b.where = append(b.where, b.filter(e, f))
	}
	if q.Q != "" {
		b.where = append(b.where, b.search(e, q.Q))
	}
	b.order = b.orderBy(e, q.SortBy, q.SortDesc)
	return b
}

func (b *rowListQuery) filter(e *entity.Entity, f rowquery.FilterableProperty) string {
	switch {
	case f.PropertyID == "" && f.Name == rowquery.KeyFolio:
		n, ok := parseFolio(e.Prefix, f.Value)
		if !ok {
			return "FALSE"
		}
		return "r.folio = " + b.arg(n)
	case f.PropertyID == "" && f.Name == rowquery.KeyTags:
		return "EXISTS (SELECT 1 FROM row_tags t WHERE t.row_id = r.id AND t.value ILIKE " + b.arg(likePattern(f.Value)) + ")"
	}

	var cond string
	switch {
	case f.Manual:
		var wanted []string
		for _, w := range strings.Split(f.Value, ",") {
			wanted = append(wanted, strings.ToLower(strings.TrimSpace(w)))
		}
		p := b.arg(wanted)
		cond = "(lower(v.text_value) = ANY(" + p + "::text[])" +
			" OR EXISTS (SELECT 1 FROM unnest(v.multiple) m WHERE lower(m) = ANY(" + p + "::text[])))"
	case f.IsSearchTerm:
		cond = valueText + " ILIKE " + b.arg(likePattern(f.Value))
	default:
		cond = "lower(" + valueText + ") = lower(" + b.arg(f.Value) + ")"
	}
	return "EXISTS (SELECT 1 FROM row_values v WHERE v.row_id = r.id AND v.property_id = " +
		b.arg(f.PropertyID) + "::uuid AND " + cond + ")"
}

// search matches the rendered folio or any searchable value; with no
// searchable property every value is searched.
func (b *rowListQuery) search(e *entity.Entity, term string) string {
	pattern := b.arg(likePattern(term))

	prefix := row.DefaultFolioFormat.Prefix
	if e.Prefix != "" {
		prefix = e.Prefix + "-"
	}
	pad := strconv.Itoa(row.DefaultFolioFormat.Pad)
	folio := "(" + b.arg(prefix) + " || CASE WHEN length(r.folio::text) >= " + pad +
		" THEN r.folio::text ELSE lpad(r.folio::text, " + pad + ", '0') END)"

	var searchable []string
	for _, p := range e.Properties {
		if p.IsSearchable {
			searchable = append(searchable, p.ID)
		}
	}
	restrict := ""
	if len(searchable) > 0 {
		restrict = " AND v.property_id = ANY(" + b.arg(searchable) + "::uuid[])"
	}
	return "(" + folio + " ILIKE " + pattern +
		" OR EXISTS (SELECT 1 FROM row_values v WHERE v.row_id = r.id" + restrict +
		" AND " + valueText + " ILIKE " + pattern + "))"
}

func (b *rowListQuery) orderBy(e *entity.Entity, by string, desc bool) string {
	var expr string
	switch by {
	case rowquery.KeyFolio:
		expr = "r.folio"
	case "", rowquery.KeyCreatedAt:
		if by == "" {
			desc = true
		}
		expr = "r.created_at"
	default:
		p, ok := e.PropertyByName(by)
		if !ok {
			expr, desc = "r.created_at", true
			break
		}
		col := "lower(" + valueText + ")"
		switch p.Type {
		case entity.TypeNumber:
			col = "v.number_value"
		case entity.TypeDate:
			col = "v.date_value"
		case entity.TypeBoolean:
			col = "v.boolean_value"
		}
		expr = "(SELECT " + col + " FROM row_values v WHERE v.row_id = r.id AND v.property_id = " + b.arg(p.ID) + "::uuid)"
	}
	// Missing values sort first ascending, matching the in-memory order.
	dir := " ASC NULLS FIRST"
	if desc {
		dir = " DESC NULLS LAST"
	}
	return expr + dir + ", r.folio ASC"
}

// parseFolio accepts "42", "#0042" or "CAN-0042" for an entity prefixed CAN.
func parseFolio(entityPrefix, s string) (int, bool) {
	s = strings.TrimSpace(s)
	if entityPrefix != "" && len(s) > len(entityPrefix) && strings.EqualFold(s[:len(entityPrefix)+1], entityPrefix+"-") {
		s = s[len(entityPrefix)+1:]
	}
	s = strings.TrimLeft(s, "#0")
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// likePattern builds a substring ILIKE pattern, escaping wildcards in s.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
