// Package rowquery describes filtered, sorted and paginated row listings and
// evaluates them over rows held in memory.
package rowquery

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/Strob0t/backoffice/internal/domain/entity"
)

// Built-in sort and filter keys that are not entity properties.
const (
	KeyFolio     = "folio"
	KeyCreatedAt = "createdAt"
	KeyTags      = "tags"
)

// Search parameter names.
const (
	ParamPage     = "page"
	ParamPageSize = "pageSize"
	ParamSort     = "sort"
	ParamQuery    = "q"
)

// FilterableProperty is one filter a listing offers. PropertyID is empty for
// the built-in folio and tags filters.
type FilterableProperty struct {
	Name         string   `json:"name"`
	Title        string   `json:"title"`
	PropertyID   string   `json:"property_id,omitempty"`
	Manual       bool     `json:"manual,omitempty"`  // Value is one of Options
	Options      []string `json:"options,omitempty"` // choices of a manual filter
	IsSearchTerm bool     `json:"is_search_term,omitempty"`
	Value        string   `json:"value,omitempty"`
}

// Limits bounds page sizes.
type Limits struct {
	DefaultPageSize int
	MaxPageSize     int
}

// DefaultLimits matches the rows section of the default configuration.
var DefaultLimits = Limits{DefaultPageSize: 10, MaxPageSize: 100}

// Query selects a page of rows.
type Query struct {
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
	SortBy   string               `json:"sort_by,omitempty"` // property name, folio or createdAt
	SortDesc bool                 `json:"sort_desc"`
	Filters  []FilterableProperty `json:"filters,omitempty"` // only those with a Value apply
	Q        string               `json:"q,omitempty"`
	Distinct bool                 `json:"distinct,omitempty"`
}

// Active returns the filters carrying a value.
func (q *Query) Active() []FilterableProperty {
	var out []FilterableProperty
	for _, f := range q.Filters {
		if f.Value != "" {
			out = append(out, f)
		}
	}
	return out
}

// Filterables lists the filters an entity offers: folio, one per filterable
// property, and tags when the entity is taggable.
func Filterables(e *entity.Entity) []FilterableProperty {
	out := []FilterableProperty{{Name: KeyFolio, Title: "Folio"}}
	for _, p := range e.Properties {
		if !p.IsFilterable {
			continue
		}
		f := FilterableProperty{Name: p.Name, Title: p.Title, PropertyID: p.ID}
		switch {
		case p.Type.HasOptions():
			f.Manual = true
			for _, o := range p.Options {
				f.Options = append(f.Options, o.Value)
			}
		case p.Type == entity.TypeText, p.Type == entity.TypeMultiText:
			f.IsSearchTerm = true
		}
		out = append(out, f)
	}
	if e.HasTags {
		out = append(out, FilterableProperty{Name: KeyTags, Title: "Tags", IsSearchTerm: true})
	}
	return out
}

// FromSearchParams builds a query from URL search parameters: page, pageSize,
// sort ("-name" sorts descending), q and one parameter per filter name.
// Malformed numbers fall back to defaults; page size is clamped to the limits.
func FromSearchParams(e *entity.Entity, v url.Values, lim Limits) Query {
	if lim.DefaultPageSize <= 0 {
		lim = DefaultLimits
	}
	q := Query{
		Page:     positiveInt(v.Get(ParamPage), 1),
		PageSize: positiveInt(v.Get(ParamPageSize), lim.DefaultPageSize),
		Q:        strings.TrimSpace(v.Get(ParamQuery)),
	}
	if lim.MaxPageSize > 0 && q.PageSize > lim.MaxPageSize {
		q.PageSize = lim.MaxPageSize
	}
	if s := strings.TrimSpace(v.Get(ParamSort)); s != "" {
		q.SortBy, q.SortDesc = strings.CutPrefix(s, "-")
	}
	q.Filters = Filterables(e)
	for i := range q.Filters {
		q.Filters[i].Value = strings.TrimSpace(v.Get(q.Filters[i].Name))
	}
	return q
}

func positiveInt(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}
