package entity

import (
	"fmt"

	"github.com/Strob0t/backoffice/internal/domain"
)

// RelationshipType is the cardinality of an edge between two entities.
type RelationshipType string

const (
	OneToOne   RelationshipType = "one-to-one"
	OneToMany  RelationshipType = "one-to-many"
	ManyToOne  RelationshipType = "many-to-one"
	ManyToMany RelationshipType = "many-to-many"
)

// Relationship is a typed edge from a parent entity to a child entity.
type Relationship struct {
	ID       string           `json:"id"`
	ParentID string           `json:"parent_id"`
	ChildID  string           `json:"child_id"`
	Type     RelationshipType `json:"type"`
	Title    string           `json:"title,omitempty"`
	Order    int              `json:"order"`
	Required bool             `json:"required"`
	Cascade  bool             `json:"cascade"`
	ReadOnly bool             `json:"read_only"`
	// Distinct listings deduplicate child rows reachable through several edges.
	Distinct bool `json:"distinct"`
	// ChildViewID optionally names the view used to render related rows.
	ChildViewID  string `json:"child_view_id,omitempty"`
	ParentViewID string `json:"parent_view_id,omitempty"`
}

// CreateRelationshipRequest is the input for linking two entities.
type CreateRelationshipRequest struct {
	ParentID     string           `json:"parent_id"`
	ChildID      string           `json:"child_id"`
	Type         RelationshipType `json:"type"`
	Title        string           `json:"title,omitempty"`
	Required     bool             `json:"required"`
	Cascade      bool             `json:"cascade"`
	ReadOnly     bool             `json:"read_only"`
	Distinct     bool             `json:"distinct"`
	ChildViewID  string           `json:"child_view_id,omitempty"`
	ParentViewID string           `json:"parent_view_id,omitempty"`
}

// Validate checks the request fields.
func (r *CreateRelationshipRequest) Validate() error {
	var errs []domain.FieldError
	if r.ParentID == "" {
		errs = append(errs, domain.FieldError{Field: "parent_id", Message: "parent entity is required"})
	}
	if r.ChildID == "" {
		errs = append(errs, domain.FieldError{Field: "child_id", Message: "child entity is required"})
	}
	switch r.Type {
	case OneToOne, OneToMany, ManyToOne, ManyToMany:
	case "":
		r.Type = OneToMany
	default:
		errs = append(errs, domain.FieldError{Field: "type", Message: fmt.Sprintf("unknown relationship type %q", r.Type)})
	}
	return domain.NewValidationError(errs)
}

// RowRelationship is one edge instance between a parent row and a child row.
type RowRelationship struct {
	ID             string `json:"id"`
	RelationshipID string `json:"relationship_id"`
	ParentRowID    string `json:"parent_row_id"`
	ChildRowID     string `json:"child_row_id"`
}
