package row

import (
	"strings"
	"unicode/utf8"

	"github.com/Strob0t/backoffice/internal/domain/entity"
)

const (
	titleSeparator = " | "
	descMaxRunes   = 160
	ellipsis       = "..."
)

// DefaultTitleTerms selects the properties a row title is built from.
var DefaultTitleTerms = []string{"name"}

// Translator maps a label key to display text. Nil leaves keys untouched.
type Translator func(key string) string

// Display holds the human-readable strings derived for a row.
type Display struct {
	Folio       string `json:"folio"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Logo        string `json:"logo"`
}

// Resolver derives display strings from an entity schema and a row's values.
// The zero value uses DefaultFolioFormat and DefaultTitleTerms. Resolution is
// a pure function of its inputs.
type Resolver struct {
	Folio      FolioFormat
	TitleTerms []string
}

// NewResolver returns a Resolver rendering folios with f.
func NewResolver(f FolioFormat) *Resolver {
	return &Resolver{Folio: f, TitleTerms: DefaultTitleTerms}
}

func (res *Resolver) folio(e *entity.Entity, r *Row) string {
	f := res.Folio
	if f == (FolioFormat{}) {
		f = DefaultFolioFormat
	}
	return f.Format(e.Prefix, r.Folio)
}

func (res *Resolver) terms() []string {
	if len(res.TitleTerms) == 0 {
		return DefaultTitleTerms
	}
	return res.TitleTerms
}

// matchProperties returns the IDs of properties whose name or title contains
// any of the terms. Matching is a case-folded substring test, so "middlename"
// matches "name".
func matchProperties(e *entity.Entity, terms []string) map[string]bool {
	ids := make(map[string]bool)
	for _, p := range e.Properties {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		title := strings.ToLower(strings.TrimSpace(p.Title))
		for _, t := range terms {
			t = strings.ToLower(strings.TrimSpace(t))
			if t == "" {
				continue
			}
			if strings.Contains(name, t) || strings.Contains(title, t) {
				ids[p.ID] = true
				break
			}
		}
	}
	return ids
}

// Title joins the non-empty values of the title properties with " | ",
// falling back to the folio.
func (res *Resolver) Title(e *entity.Entity, r *Row) string {
	ids := matchProperties(e, res.terms())
	var parts []string
	if len(ids) > 0 {
		for i := range r.Values {
			if !ids[r.Values[i].PropertyID] {
				continue
			}
			if s := strings.TrimSpace(r.Values[i].String()); s != "" {
				parts = append(parts, s)
			}
		}
	}
	if len(parts) == 0 {
		return res.folio(e, r)
	}
	return strings.Join(parts, titleSeparator)
}

// Description renders "<folio> | <description>", or the folio alone when the
// description is empty or identical to it.
func (res *Resolver) Description(e *entity.Entity, r *Row, tr Translator) string {
	folio := res.folio(e, r)
	desc := Truncate(res.rawDescription(e, r, tr), descMaxRunes)
	if desc == "" || desc == folio {
		return folio
	}
	return folio + titleSeparator + desc
}

// rawDescription concatenates searchable or display property values in
// property order, skipping title properties, hidden properties and media.
func (res *Resolver) rawDescription(e *entity.Entity, r *Row, tr Translator) string {
	titleIDs := matchProperties(e, res.terms())
	var parts []string
	for i := range e.Properties {
		p := &e.Properties[i]
		if titleIDs[p.ID] || p.IsHidden || p.Type == entity.TypeMedia {
			continue
		}
		if !p.IsSearchable && !p.IsDisplay {
			continue
		}
		v, ok := r.GetValue(p.ID)
		if !ok {
			continue
		}
		if s := strings.TrimSpace(displayValue(p, v, tr)); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// displayValue renders v, substituting option names for select values and
// translating them.
func displayValue(p *entity.Property, v *Value, tr Translator) string {
	if !p.Type.HasOptions() || len(p.Options) == 0 {
		return v.String()
	}
	label := func(s string) string {
		for _, o := range p.Options {
			if o.Value == s && o.Name != "" {
				s = o.Name
				break
			}
		}
		if tr != nil {
			return tr(s)
		}
		return s
	}
	if v.Text != nil {
		return label(*v.Text)
	}
	out := make([]string, 0, len(v.Multiple))
	for _, s := range v.Multiple {
		out = append(out, label(s))
	}
	return strings.Join(out, ", ")
}

// Logo returns the first media file of a "logo" property, then the entity
// icon, then "".
func (res *Resolver) Logo(e *entity.Entity, r *Row) string {
	ids := matchProperties(e, []string{"logo"})
	for i := range e.Properties {
		p := &e.Properties[i]
		if !ids[p.ID] {
			continue
		}
		v, ok := r.GetValue(p.ID)
		if !ok {
			continue
		}
		for j := range v.Media {
			if href := v.Media[j].Href(); href != "" {
				return href
			}
		}
	}
	return e.Icon
}

// Resolve computes all display strings of a row.
func (res *Resolver) Resolve(e *entity.Entity, r *Row, tr Translator) Display {
	return Display{
		Folio:       res.folio(e, r),
		Title:       res.Title(e, r),
		Description: res.Description(e, r, tr),
		Logo:        res.Logo(e, r),
	}
}

var defaultResolver = &Resolver{}

// ComputeTitle derives the row title with the default resolver.
func ComputeTitle(e *entity.Entity, r *Row) string { return defaultResolver.Title(e, r) }

// ComputeDescription derives the row description with the default resolver.
func ComputeDescription(e *entity.Entity, r *Row, tr Translator) string {
	return defaultResolver.Description(e, r, tr)
}

// ComputeLogo derives the row logo with the default resolver.
func ComputeLogo(e *entity.Entity, r *Row) string { return defaultResolver.Logo(e, r) }

// Truncate shortens s to limit runes followed by "..." when it is longer.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + ellipsis
}
