package row

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Strob0t/backoffice/internal/domain"
	"github.com/Strob0t/backoffice/internal/domain/entity"
)

// Value links a row to one property with a typed payload. Only the fields
// matching the property type are set.
type Value struct {
	ID         string     `json:"id,omitempty"`
	PropertyID string     `json:"property_id"`
	Text       *string    `json:"text,omitempty"`
	Number     *float64   `json:"number,omitempty"`
	Date       *time.Time `json:"date,omitempty"`
	Boolean    *bool      `json:"boolean,omitempty"`
	Media      []Media    `json:"media,omitempty"`
	Multiple   []string   `json:"multiple,omitempty"`
	Range      *Range     `json:"range,omitempty"`
}

// Range is the payload of range-typed properties. Number bounds are used by
// range_number, date bounds by range_date.
type Range struct {
	NumberMin *float64   `json:"number_min,omitempty"`
	NumberMax *float64   `json:"number_max,omitempty"`
	DateMin   *time.Time `json:"date_min,omitempty"`
	DateMax   *time.Time `json:"date_max,omitempty"`
}

// Media is an uploaded file attached to a media value.
type Media struct {
	ID            string `json:"id,omitempty"`
	Name          string `json:"name"`
	Title         string `json:"title,omitempty"`
	Type          string `json:"type"`           // MIME type
	File          string `json:"file,omitempty"` // inline payload, base64 or data URL
	PublicURL     string `json:"public_url,omitempty"`
	StorageBucket string `json:"storage_bucket,omitempty"`
	StorageKey    string `json:"storage_key,omitempty"`
}

// Href returns what a renderer should link to: the public URL when the file
// lives in object storage, otherwise the inline payload.
func (m *Media) Href() string {
	if m.PublicURL != "" {
		return m.PublicURL
	}
	return m.File
}

// NeedsMigration reports whether the file is only held inline.
func (m *Media) NeedsMigration() bool {
	return m.PublicURL == "" && m.File != ""
}

// String returns the text representation of the value used for titles,
// descriptions and search.
func (v *Value) String() string {
	switch {
	case v == nil:
		return ""
	case v.Text != nil:
		return *v.Text
	case v.Number != nil:
		return strconv.FormatFloat(*v.Number, 'f', -1, 64)
	case v.Date != nil:
		return v.Date.Format(time.DateOnly)
	case v.Boolean != nil:
		return strconv.FormatBool(*v.Boolean)
	case len(v.Multiple) > 0:
		return strings.Join(v.Multiple, ", ")
	case v.Range != nil:
		return v.Range.String()
	case len(v.Media) > 0:
		names := make([]string, 0, len(v.Media))
		for _, m := range v.Media {
			names = append(names, m.Name)
		}
		return strings.Join(names, ", ")
	}
	return ""
}

// String renders the range as "min - max".
func (r *Range) String() string {
	var lo, hi string
	switch {
	case r.NumberMin != nil || r.NumberMax != nil:
		if r.NumberMin != nil {
			lo = strconv.FormatFloat(*r.NumberMin, 'f', -1, 64)
		}
		if r.NumberMax != nil {
			hi = strconv.FormatFloat(*r.NumberMax, 'f', -1, 64)
		}
	default:
		if r.DateMin != nil {
			lo = r.DateMin.Format(time.DateOnly)
		}
		if r.DateMax != nil {
			hi = r.DateMax.Format(time.DateOnly)
		}
	}
	if lo == "" && hi == "" {
		return ""
	}
	return lo + " - " + hi
}

// RawValue is the undecoded JSON payload submitted for a property.
type RawValue = json.RawMessage

type decodeFunc func(raw RawValue, v *Value) error

// decoders holds one decoding function per property type.
var decoders = map[entity.PropertyType]decodeFunc{
	entity.TypeText:        decodeText,
	entity.TypeSelect:      decodeText,
	entity.TypeFormula:     decodeText,
	entity.TypeNumber:      decodeNumber,
	entity.TypeDate:        decodeDate,
	entity.TypeBoolean:     decodeBoolean,
	entity.TypeMultiSelect: decodeMultiple,
	entity.TypeMultiText:   decodeMultiple,
	entity.TypeMedia:       decodeMedia,
	entity.TypeRangeNumber: decodeRangeNumber,
	entity.TypeRangeDate:   decodeRangeDate,
}

// Decode converts a submitted payload into the value of property p.
// A JSON null yields an empty value.
func Decode(p *entity.Property, raw RawValue) (Value, error) {
	v := Value{PropertyID: p.ID}
	dec, ok := decoders[p.Type]
	if !ok {
		return v, fmt.Errorf("property %s: unknown type %q: %w", p.Name, p.Type, domain.ErrValidation)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	if err := dec(raw, &v); err != nil {
		return v, fmt.Errorf("property %s: %v: %w", p.Name, err, domain.ErrValidation)
	}
	if p.Type.HasOptions() {
		if err := checkOptions(p, &v); err != nil {
			return v, fmt.Errorf("property %s: %v: %w", p.Name, err, domain.ErrValidation)
		}
	}
	return v, nil
}

// IsEmpty reports whether the value carries no payload.
func (v *Value) IsEmpty() bool {
	return v.Text == nil && v.Number == nil && v.Date == nil && v.Boolean == nil &&
		len(v.Media) == 0 && len(v.Multiple) == 0 && v.Range == nil
}

func decodeText(raw RawValue, v *Value) error {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("expected a string")
	}
	v.Text = &s
	return nil
}

func decodeNumber(raw RawValue, v *Value) error {
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return fmt.Errorf("expected a number")
		}
		if n, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return fmt.Errorf("expected a number")
		}
	}
	v.Number = &n
	return nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

func decodeDate(raw RawValue, v *Value) error {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("expected a date string")
	}
	t, err := parseDate(s)
	if err != nil {
		return fmt.Errorf("invalid date %q", s)
	}
	v.Date = &t
	return nil
}

func decodeBoolean(raw RawValue, v *Value) error {
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return fmt.Errorf("expected a boolean")
		}
		if b, err = strconv.ParseBool(s); err != nil {
			return fmt.Errorf("expected a boolean")
		}
	}
	v.Boolean = &b
	return nil
}

func decodeMultiple(raw RawValue, v *Value) error {
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("expected a list of strings")
	}
	v.Multiple = items
	return nil
}

func decodeMedia(raw RawValue, v *Value) error {
	var items []Media
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("expected a list of files")
	}
	for i := range items {
		if items[i].Name == "" {
			return fmt.Errorf("file %d has no name", i)
		}
		if items[i].File == "" && items[i].PublicURL == "" {
			return fmt.Errorf("file %q has neither payload nor public URL", items[i].Name)
		}
	}
	v.Media = items
	return nil
}

func decodeRangeNumber(raw RawValue, v *Value) error {
	var r struct {
		Min *float64 `json:"min"`
		Max *float64 `json:"max"`
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("expected {min, max}")
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return fmt.Errorf("range minimum exceeds maximum")
	}
	v.Range = &Range{NumberMin: r.Min, NumberMax: r.Max}
	return nil
}

func decodeRangeDate(raw RawValue, v *Value) error {
	var r struct {
		Min string `json:"min"`
		Max string `json:"max"`
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("expected {min, max}")
	}
	out := &Range{}
	if r.Min != "" {
		t, err := parseDate(r.Min)
		if err != nil {
			return fmt.Errorf("invalid date %q", r.Min)
		}
		out.DateMin = &t
	}
	if r.Max != "" {
		t, err := parseDate(r.Max)
		if err != nil {
			return fmt.Errorf("invalid date %q", r.Max)
		}
		out.DateMax = &t
	}
	if out.DateMin != nil && out.DateMax != nil && out.DateMin.After(*out.DateMax) {
		return fmt.Errorf("range start is after its end")
	}
	v.Range = out
	return nil
}

func checkOptions(p *entity.Property, v *Value) error {
	if len(p.Options) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(p.Options))
	for _, o := range p.Options {
		allowed[o.Value] = true
	}
	picked := v.Multiple
	if v.Text != nil {
		picked = []string{*v.Text}
	}
	for _, s := range picked {
		if s != "" && !allowed[s] {
			return fmt.Errorf("%q is not an option", s)
		}
	}
	return nil
}
