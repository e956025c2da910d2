package http

import (
	"log/slog"
	"net/http"

	"github.com/Strob0t/backoffice/internal/domain/permission"
	"github.com/Strob0t/backoffice/internal/domain/user"
	"github.com/Strob0t/backoffice/internal/middleware"
)

// Login handles POST /api/v1/auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.LoginRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}

	resp, err := h.Auth.Login(r.Context(), req)
	if err != nil {
		slog.DebugContext(r.Context(), "login failed", "email", req.Email, "error", err)
		writeDomainError(w, r, err, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type meResponse struct {
	Actor *permission.Actor `json:"actor"`
	User  *user.User        `json:"user,omitempty"`
}

// GetCurrentUser handles GET /api/v1/auth/me
func (h *Handlers) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	a := middleware.ActorFromContext(r.Context())
	if a == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	resp := meResponse{Actor: a}
	if a.UserID != "" && a.UserID != middleware.DevUserID {
		u, err := h.Auth.GetUser(r.Context(), a.UserID)
		if err != nil {
			writeDomainError(w, r, err, "user not found")
			return
		}
		resp.User = u
	}
	writeJSON(w, http.StatusOK, resp)
}

// ChangePassword handles POST /api/v1/auth/change-password
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	a := middleware.ActorFromContext(r.Context())
	if a == nil || a.UserID == "" {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	req, ok := readJSON[user.ChangePasswordRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if err := h.Auth.ChangePassword(r.Context(), a.UserID, req); err != nil {
		writeDomainError(w, r, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}

// CreateAPIKey handles POST /api/v1/api-keys
func (h *Handlers) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.CreateAPIKeyRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	resp, err := h.Auth.CreateAPIKey(r.Context(), middleware.ActorFromContext(r.Context()), req)
	if err != nil {
		writeDomainError(w, r, err, "entity not found")
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ListAPIKeys handles GET /api/v1/api-keys
func (h *Handlers) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	handleList(h.Auth.ListAPIKeys)(w, r)
}

// DeleteAPIKey handles DELETE /api/v1/api-keys/{id}
func (h *Handlers) DeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	handleDelete("id", h.Auth.DeleteAPIKey, "api key not found")(w, r)
}

// ListUsers handles GET /api/v1/users
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	handleList(h.Auth.ListUsers)(w, r)
}
