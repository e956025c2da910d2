package rowquery

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/Strob0t/backoffice/internal/domain/entity"
	"github.com/Strob0t/backoffice/internal/domain/row"
)

// Page is one page of rows.
type Page struct {
	Items      []row.Row  `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// Apply evaluates q over rows already scoped to the caller's tenant:
// dedupe by row ID when Distinct, filter, sort, then paginate.
// The input slice is not modified.
func Apply(rows []row.Row, e *entity.Entity, q Query) Page {
	items := make([]row.Row, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	filters := q.Active()
	for i := range rows {
		if q.Distinct {
			if seen[rows[i].ID] {
				continue
			}
			seen[rows[i].ID] = true
		}
		if Match(&rows[i], e, filters, q.Q) {
			items = append(items, rows[i])
		}
	}

	Sort(items, e, q.SortBy, q.SortDesc)

	p := NewPagination(len(items), q.Page, q.PageSize)
	start, end := p.Bounds()
	return Page{Items: items[start:end], Pagination: p}
}

// Match reports whether r passes every filter and the free-text search.
func Match(r *row.Row, e *entity.Entity, filters []FilterableProperty, search string) bool {
	for _, f := range filters {
		if !matchFilter(r, e, f) {
			return false
		}
	}
	return search == "" || matchSearch(r, e, search)
}

func matchFilter(r *row.Row, e *entity.Entity, f FilterableProperty) bool {
	switch {
	case f.PropertyID == "" && f.Name == KeyFolio:
		return strconv.Itoa(r.Folio) == strings.TrimLeft(f.Value, "#0") ||
			strings.EqualFold(row.DefaultFolioFormat.Format(e.Prefix, r.Folio), f.Value)
	case f.PropertyID == "" && f.Name == KeyTags:
		for _, t := range r.Tags {
			if containsFold(t.Value, f.Value) {
				return true
			}
		}
		return false
	}

	v, ok := r.GetValue(f.PropertyID)
	if !ok {
		return false
	}
	switch {
	case f.Manual:
		wanted := strings.Split(f.Value, ",")
		candidates := v.Multiple
		if v.Text != nil {
			candidates = []string{*v.Text}
		}
		for _, c := range candidates {
			for _, w := range wanted {
				if strings.EqualFold(c, strings.TrimSpace(w)) {
					return true
				}
			}
		}
		return false
	case f.IsSearchTerm:
		return containsFold(v.String(), f.Value)
	default:
		return strings.EqualFold(v.String(), f.Value)
	}
}

// matchSearch looks for term in the folio and in searchable property values,
// or in every value when the entity marks nothing searchable.
func matchSearch(r *row.Row, e *entity.Entity, term string) bool {
	if containsFold(row.DefaultFolioFormat.Format(e.Prefix, r.Folio), term) {
		return true
	}
	searchable := make(map[string]bool)
	for _, p := range e.Properties {
		if p.IsSearchable {
			searchable[p.ID] = true
		}
	}
	for i := range r.Values {
		if len(searchable) > 0 && !searchable[r.Values[i].PropertyID] {
			continue
		}
		// Ranges and media are not searchable text in the SQL listing either.
		if r.Values[i].Range != nil || len(r.Values[i].Media) > 0 {
			continue
		}
		if containsFold(r.Values[i].String(), term) {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// Sort orders rows in place by the named property, folio or createdAt.
// An empty or unknown key sorts by createdAt descending. Ties keep folio order.
func Sort(rows []row.Row, e *entity.Entity, by string, desc bool) {
	var compare func(a, b *row.Row) int
	switch {
	case by == KeyFolio:
		compare = func(a, b *row.Row) int { return cmp.Compare(a.Folio, b.Folio) }
	case by == "" || by == KeyCreatedAt:
		if by == "" {
			desc = true
		}
		compare = func(a, b *row.Row) int { return a.CreatedAt.Compare(b.CreatedAt) }
	default:
		p, ok := e.PropertyByName(by)
		if !ok {
			desc = true
			compare = func(a, b *row.Row) int { return a.CreatedAt.Compare(b.CreatedAt) }
			break
		}
		compare = func(a, b *row.Row) int {
			va, _ := a.GetValue(p.ID)
			vb, _ := b.GetValue(p.ID)
			return compareValues(va, vb)
		}
	}
	slices.SortStableFunc(rows, func(a, b row.Row) int {
		c := compare(&a, &b)
		if desc {
			c = -c
		}
		if c == 0 {
			c = cmp.Compare(a.Folio, b.Folio)
		}
		return c
	})
}

// compareValues orders missing values first, then by the typed payload.
func compareValues(a, b *row.Value) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case a.Number != nil && b.Number != nil:
		return cmp.Compare(*a.Number, *b.Number)
	case a.Date != nil && b.Date != nil:
		return a.Date.Compare(*b.Date)
	case a.Boolean != nil && b.Boolean != nil:
		return cmp.Compare(boolInt(*a.Boolean), boolInt(*b.Boolean))
	}
	return strings.Compare(strings.ToLower(a.String()), strings.ToLower(b.String()))
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
