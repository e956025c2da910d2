// Package row defines entity instances, their typed values and the
// display strings derived from them.
package row

import (
	"strconv"
	"strings"
	"time"

	"github.com/Strob0t/backoffice/internal/domain/permission"
)

// Row is an instance of an entity.
type Row struct {
	ID                string             `json:"id"`
	EntityID          string             `json:"entity_id"`
	TenantID          string             `json:"tenant_id,omitempty"`
	Folio             int                `json:"folio"`
	CreatedByUserID   string             `json:"created_by_user_id,omitempty"`
	CreatedByAPIKeyID string             `json:"created_by_api_key_id,omitempty"`
	Order             int                `json:"order"`
	Values            []Value            `json:"values"`
	Tags              []Tag              `json:"tags,omitempty"`
	Permissions       []permission.Grant `json:"permissions,omitempty"`
	ParentIDs         []string           `json:"parent_ids,omitempty"`
	ChildIDs          []string           `json:"child_ids,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// Tag labels a row.
type Tag struct {
	ID    string `json:"id,omitempty"`
	Value string `json:"value"`
	Color string `json:"color,omitempty"`
}

// GetValue returns the value the row holds for the property.
func (r *Row) GetValue(propertyID string) (*Value, bool) {
	for i := range r.Values {
		if r.Values[i].PropertyID == propertyID {
			return &r.Values[i], true
		}
	}
	return nil, false
}

// SetValue stores v, replacing any existing value for the same property so a
// row never holds two values for one property.
func (r *Row) SetValue(v Value) {
	for i := range r.Values {
		if r.Values[i].PropertyID == v.PropertyID {
			v.ID = r.Values[i].ID
			r.Values[i] = v
			return
		}
	}
	r.Values = append(r.Values, v)
}

// FolioFormat renders the per-entity sequential row number.
type FolioFormat struct {
	Prefix string // used when the entity has no prefix of its own
	Pad    int
}

// Format renders folio, e.g. "#0001", or "CAN-0001" for an entity prefix.
func (f FolioFormat) Format(entityPrefix string, folio int) string {
	n := strconv.Itoa(folio)
	if len(n) < f.Pad {
		n = strings.Repeat("0", f.Pad-len(n)) + n
	}
	if entityPrefix != "" {
		return entityPrefix + "-" + n
	}
	return f.Prefix + n
}

// DefaultFolioFormat renders folios as "#0001".
var DefaultFolioFormat = FolioFormat{Prefix: "#", Pad: 4}

// CreateRequest is the input for creating a row. Values are keyed by property name.
type CreateRequest struct {
	Values      map[string]RawValue `json:"values"`
	Tags        []Tag               `json:"tags,omitempty"`
	Permissions []permission.Grant  `json:"permissions,omitempty"`
	ParentRows  []LinkRequest       `json:"parent_rows,omitempty"`
}

// UpdateRequest replaces the listed values. Properties not present keep their value.
type UpdateRequest struct {
	Values map[string]RawValue `json:"values"`
}

// LinkRequest attaches the new row as child of an existing row.
type LinkRequest struct {
	RelationshipID string `json:"relationship_id"`
	ParentRowID    string `json:"parent_row_id"`
}
