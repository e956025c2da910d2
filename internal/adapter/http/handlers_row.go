package http

import (
	"net/http"

	"github.com/Strob0t/backoffice/internal/domain/permission"
	"github.com/Strob0t/backoffice/internal/domain/row"
	"github.com/Strob0t/backoffice/internal/middleware"
)

// ListRows handles GET /api/v1/entities/{entity}/rows
//
// Query parameters follow the listing conventions: q, page, page_size,
// sort_by, sort_desc, tag and one parameter per filterable property.
func (h *Handlers) ListRows(w http.ResponseWriter, r *http.Request) {
	page, err := h.Rows.List(r.Context(), middleware.ActorFromContext(r.Context()), urlParam(r, "entity"), r.URL.Query())
	if err != nil {
		writeDomainError(w, r, err, "entity not found")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetRow handles GET /api/v1/entities/{entity}/rows/{id}
func (h *Handlers) GetRow(w http.ResponseWriter, r *http.Request) {
	v, err := h.Rows.Get(r.Context(), middleware.ActorFromContext(r.Context()), urlParam(r, "entity"), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, "row not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// CreateRow handles POST /api/v1/entities/{entity}/rows
func (h *Handlers) CreateRow(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[row.CreateRequest](w, r, rowBodyLimit)
	if !ok {
		return
	}
	v, err := h.Rows.Create(r.Context(), middleware.ActorFromContext(r.Context()), urlParam(r, "entity"), req)
	if err != nil {
		writeDomainError(w, r, err, "entity not found")
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// UpdateRow handles PUT /api/v1/entities/{entity}/rows/{id}
func (h *Handlers) UpdateRow(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[row.UpdateRequest](w, r, rowBodyLimit)
	if !ok {
		return
	}
	v, err := h.Rows.Update(r.Context(), middleware.ActorFromContext(r.Context()), urlParam(r, "entity"), urlParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, r, err, "row not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// DeleteRow handles DELETE /api/v1/entities/{entity}/rows/{id}
// Children of cascading relationships are deleted with the row.
func (h *Handlers) DeleteRow(w http.ResponseWriter, r *http.Request) {
	n, err := h.Rows.Delete(r.Context(), middleware.ActorFromContext(r.Context()), urlParam(r, "entity"), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, "row not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// SetRowTags handles PUT /api/v1/entities/{entity}/rows/{id}/tags
func (h *Handlers) SetRowTags(w http.ResponseWriter, r *http.Request) {
	tags, ok := readJSON[[]row.Tag](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	v, err := h.Rows.SetTags(r.Context(), middleware.ActorFromContext(r.Context()), urlParam(r, "entity"), urlParam(r, "id"), tags)
	if err != nil {
		writeDomainError(w, r, err, "row not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// SetRowPermissions handles PUT /api/v1/entities/{entity}/rows/{id}/permissions
func (h *Handlers) SetRowPermissions(w http.ResponseWriter, r *http.Request) {
	grants, ok := readJSON[[]permission.Grant](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	stored, err := h.Rows.SetPermissions(r.Context(), middleware.ActorFromContext(r.Context()), urlParam(r, "entity"), urlParam(r, "id"), grants)
	if err != nil {
		if stored != nil {
			writeJSON(w, http.StatusMultiStatus, partialResult[permission.Grant]{Items: stored, Error: err.Error()})
			return
		}
		writeDomainError(w, r, err, "row not found")
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// ListRelatedRows handles GET /api/v1/relationships/{id}/rows/{rowId}/children
func (h *Handlers) ListRelatedRows(w http.ResponseWriter, r *http.Request) {
	page, err := h.Rows.ListRelated(r.Context(), middleware.ActorFromContext(r.Context()), urlParam(r, "id"), urlParam(r, "rowId"), r.URL.Query())
	if err != nil {
		writeDomainError(w, r, err, "relationship not found")
		return
	}
	writeJSON(w, http.StatusOK, page)
}
