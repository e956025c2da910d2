package http

import (
	"net/http"

	"github.com/Strob0t/backoffice/internal/domain/user"
	"github.com/Strob0t/backoffice/internal/middleware"
)

// --- Roles ---

// ListRoles handles GET /api/v1/roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.Roles.List(r.Context(), middleware.ActorFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, r, err, "not found")
		return
	}
	if roles == nil {
		roles = []user.Role{}
	}
	writeJSON(w, http.StatusOK, roles)
}

// CreateRole handles POST /api/v1/roles
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.CreateRoleRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	role, err := h.Roles.Create(r.Context(), middleware.ActorFromContext(r.Context()), req)
	if err != nil {
		writeDomainError(w, r, err, "not found")
		return
	}
	writeJSON(w, http.StatusCreated, role)
}

type rolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

// UpdateRolePermissions handles PUT /api/v1/roles/{id}/permissions
func (h *Handlers) UpdateRolePermissions(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[rolePermissionsRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	role, err := h.Roles.UpdatePermissions(r.Context(), middleware.ActorFromContext(r.Context()), urlParam(r, "id"), req.Permissions)
	if err != nil {
		writeDomainError(w, r, err, "role not found")
		return
	}
	writeJSON(w, http.StatusOK, role)
}

// AssignRole handles POST /api/v1/roles/{id}/users/{userId}
func (h *Handlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	err := h.Roles.Assign(r.Context(), middleware.ActorFromContext(r.Context()), urlParam(r, "id"), urlParam(r, "userId"))
	if err != nil {
		writeDomainError(w, r, err, "role or user not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Invitations ---

// Invite handles POST /api/v1/invitations
func (h *Handlers) Invite(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.InviteRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	res, err := h.Invitations.Invite(r.Context(), middleware.ActorFromContext(r.Context()), req)
	if err != nil {
		writeDomainError(w, r, err, "role not found")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// BulkInvite handles POST /api/v1/invitations/bulk
//
// Addresses are invited one by one. The response lists the outcome per
// address; failed addresses carry an error and do not undo the others.
func (h *Handlers) BulkInvite(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.BulkInviteRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	results, err := h.Invitations.BulkInvite(r.Context(), middleware.ActorFromContext(r.Context()), req)
	if err != nil {
		writeDomainError(w, r, err, "role not found")
		return
	}
	status := http.StatusCreated
	for i := range results {
		if results[i].Error != "" {
			status = http.StatusMultiStatus
			break
		}
	}
	writeJSON(w, status, results)
}

// AcceptInvitation handles POST /api/v1/invitations/accept
func (h *Handlers) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.AcceptRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	u, err := h.Invitations.Accept(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err, "invitation not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}
