package http

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Strob0t/backoffice/internal/domain/entity"
	"github.com/Strob0t/backoffice/internal/domain/permission"
	"github.com/Strob0t/backoffice/internal/domain/row"
	"github.com/Strob0t/backoffice/internal/domain/tenant"
	"github.com/Strob0t/backoffice/internal/domain/user"
	"github.com/Strob0t/backoffice/internal/service"
)

// TenantService manages tenants.
type TenantService interface {
	Create(ctx context.Context, req tenant.CreateRequest) (*tenant.Tenant, error)
	Get(ctx context.Context, id string) (*tenant.Tenant, error)
	List(ctx context.Context) ([]tenant.Tenant, error)
	Update(ctx context.Context, id string, req tenant.UpdateRequest) (*tenant.Tenant, error)
}

// EntityService manages entity schemas, their properties and relationships.
type EntityService interface {
	Resolve(ctx context.Context, ref string) (*entity.Entity, error)
	List(ctx context.Context) ([]entity.Entity, error)
	Create(ctx context.Context, req entity.CreateRequest) (*entity.Entity, error)
	Update(ctx context.Context, ref string, req entity.UpdateRequest) (*entity.Entity, error)
	Delete(ctx context.Context, ref string, force bool) error
	CreateProperty(ctx context.Context, ref string, req entity.CreatePropertyRequest) (*entity.Property, error)
	UpdateProperty(ctx context.Context, ref, propertyID string, req entity.CreatePropertyRequest) (*entity.Property, error)
	DeleteProperty(ctx context.Context, ref, propertyID string) error
	DuplicateProperty(ctx context.Context, ref, propertyID string) (*entity.Property, error)
	ReplaceOptions(ctx context.Context, ref, propertyID string, options []entity.PropertyOption) ([]entity.PropertyOption, error)
	ReplaceAttributes(ctx context.Context, ref, propertyID string, attrs []entity.PropertyAttribute) ([]entity.PropertyAttribute, error)
	CreateRelationship(ctx context.Context, req entity.CreateRelationshipRequest) (*entity.Relationship, error)
	ListRelationships(ctx context.Context, ref string) ([]entity.Relationship, error)
	DeleteRelationship(ctx context.Context, id string) error
}

// RowService reads and writes rows on behalf of an actor.
type RowService interface {
	List(ctx context.Context, a *permission.Actor, ref string, params url.Values) (*service.RowPage, error)
	Get(ctx context.Context, a *permission.Actor, ref, id string) (*service.RowView, error)
	Create(ctx context.Context, a *permission.Actor, ref string, req row.CreateRequest) (*service.RowView, error)
	Update(ctx context.Context, a *permission.Actor, ref, id string, req row.UpdateRequest) (*service.RowView, error)
	Delete(ctx context.Context, a *permission.Actor, ref, id string) (int, error)
	SetTags(ctx context.Context, a *permission.Actor, ref, id string, tags []row.Tag) (*service.RowView, error)
	SetPermissions(ctx context.Context, a *permission.Actor, ref, id string, grants []permission.Grant) ([]permission.Grant, error)
	ListRelated(ctx context.Context, a *permission.Actor, relationshipID, parentRowID string, params url.Values) (*service.RowPage, error)
}

// RoleService manages roles and their assignment.
type RoleService interface {
	List(ctx context.Context, a *permission.Actor) ([]user.Role, error)
	Create(ctx context.Context, a *permission.Actor, req user.CreateRoleRequest) (*user.Role, error)
	UpdatePermissions(ctx context.Context, a *permission.Actor, roleID string, keys []string) (*user.Role, error)
	Assign(ctx context.Context, a *permission.Actor, roleID, userID string) error
}

// InvitationService invites users into a tenant.
type InvitationService interface {
	Invite(ctx context.Context, a *permission.Actor, req user.InviteRequest) (*user.InviteResult, error)
	BulkInvite(ctx context.Context, a *permission.Actor, req user.BulkInviteRequest) ([]user.InviteResult, error)
	Accept(ctx context.Context, req user.AcceptRequest) (*user.User, error)
}

// AuthService signs users in and manages credentials.
type AuthService interface {
	Login(ctx context.Context, req user.LoginRequest) (*user.LoginResponse, error)
	ChangePassword(ctx context.Context, userID string, req user.ChangePasswordRequest) error
	CreateAPIKey(ctx context.Context, a *permission.Actor, req user.CreateAPIKeyRequest) (*user.CreateAPIKeyResponse, error)
	ListAPIKeys(ctx context.Context) ([]user.APIKey, error)
	DeleteAPIKey(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]user.User, error)
	GetUser(ctx context.Context, id string) (*user.User, error)
}

var (
	_ TenantService     = (*service.TenantService)(nil)
	_ EntityService     = (*service.EntityService)(nil)
	_ RowService        = (*service.RowService)(nil)
	_ RoleService       = (*service.RoleService)(nil)
	_ InvitationService = (*service.InvitationService)(nil)
	_ AuthService       = (*service.AuthService)(nil)
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Tenants     TenantService
	Entities    EntityService
	Rows        RowService
	Roles       RoleService
	Invitations InvitationService
	Auth        AuthService
}

// --- Tenants ---

// ListTenants handles GET /api/v1/tenants
func (h *Handlers) ListTenants(w http.ResponseWriter, r *http.Request) {
	handleList(h.Tenants.List)(w, r)
}

// CreateTenant handles POST /api/v1/tenants
func (h *Handlers) CreateTenant(w http.ResponseWriter, r *http.Request) {
	handleCreate(h.Tenants.Create)(w, r)
}

// GetTenant handles GET /api/v1/tenants/{id}
func (h *Handlers) GetTenant(w http.ResponseWriter, r *http.Request) {
	handleGet("id", h.Tenants.Get, "tenant not found")(w, r)
}

// UpdateTenant handles PUT /api/v1/tenants/{id}
func (h *Handlers) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	handleUpdate("id", h.Tenants.Update, "tenant not found")(w, r)
}

// --- Entities ---

// ListEntities handles GET /api/v1/entities
func (h *Handlers) ListEntities(w http.ResponseWriter, r *http.Request) {
	handleList(h.Entities.List)(w, r)
}

// CreateEntity handles POST /api/v1/entities
func (h *Handlers) CreateEntity(w http.ResponseWriter, r *http.Request) {
	handleCreate(h.Entities.Create)(w, r)
}

// GetEntity handles GET /api/v1/entities/{entity}
func (h *Handlers) GetEntity(w http.ResponseWriter, r *http.Request) {
	handleGet("entity", h.Entities.Resolve, "entity not found")(w, r)
}

// UpdateEntity handles PUT /api/v1/entities/{entity}
func (h *Handlers) UpdateEntity(w http.ResponseWriter, r *http.Request) {
	handleUpdate("entity", h.Entities.Update, "entity not found")(w, r)
}

// DeleteEntity handles DELETE /api/v1/entities/{entity}?force=true
func (h *Handlers) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	handleDelete("entity", func(ctx context.Context, ref string) error {
		return h.Entities.Delete(ctx, ref, force)
	}, "entity not found")(w, r)
}

// --- Properties ---

// CreateProperty handles POST /api/v1/entities/{entity}/properties
func (h *Handlers) CreateProperty(w http.ResponseWriter, r *http.Request) {
	ref := urlParam(r, "entity")
	handleCreate(func(ctx context.Context, req entity.CreatePropertyRequest) (*entity.Property, error) {
		return h.Entities.CreateProperty(ctx, ref, req)
	})(w, r)
}

// UpdateProperty handles PUT /api/v1/entities/{entity}/properties/{id}
func (h *Handlers) UpdateProperty(w http.ResponseWriter, r *http.Request) {
	ref := urlParam(r, "entity")
	handleUpdate("id", func(ctx context.Context, id string, req entity.CreatePropertyRequest) (*entity.Property, error) {
		return h.Entities.UpdateProperty(ctx, ref, id, req)
	}, "property not found")(w, r)
}

// DeleteProperty handles DELETE /api/v1/entities/{entity}/properties/{id}
func (h *Handlers) DeleteProperty(w http.ResponseWriter, r *http.Request) {
	ref := urlParam(r, "entity")
	handleDelete("id", func(ctx context.Context, id string) error {
		return h.Entities.DeleteProperty(ctx, ref, id)
	}, "property not found")(w, r)
}

// DuplicateProperty handles POST /api/v1/entities/{entity}/properties/{id}/duplicate
func (h *Handlers) DuplicateProperty(w http.ResponseWriter, r *http.Request) {
	p, err := h.Entities.DuplicateProperty(r.Context(), urlParam(r, "entity"), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, "property not found")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ReplaceOptions handles PUT /api/v1/entities/{entity}/properties/{id}/options
func (h *Handlers) ReplaceOptions(w http.ResponseWriter, r *http.Request) {
	options, ok := readJSON[[]entity.PropertyOption](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	stored, err := h.Entities.ReplaceOptions(r.Context(), urlParam(r, "entity"), urlParam(r, "id"), options)
	if err != nil {
		// Options written before the failure stay in place.
		if stored != nil {
			writeJSON(w, http.StatusMultiStatus, partialResult[entity.PropertyOption]{Items: stored, Error: err.Error()})
			return
		}
		writeDomainError(w, r, err, "property not found")
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// ReplaceAttributes handles PUT /api/v1/entities/{entity}/properties/{id}/attributes
func (h *Handlers) ReplaceAttributes(w http.ResponseWriter, r *http.Request) {
	attrs, ok := readJSON[[]entity.PropertyAttribute](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	stored, err := h.Entities.ReplaceAttributes(r.Context(), urlParam(r, "entity"), urlParam(r, "id"), attrs)
	if err != nil {
		if stored != nil {
			writeJSON(w, http.StatusMultiStatus, partialResult[entity.PropertyAttribute]{Items: stored, Error: err.Error()})
			return
		}
		writeDomainError(w, r, err, "property not found")
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// partialResult reports a bulk replace that stopped part way.
type partialResult[T any] struct {
	Items []T    `json:"items"`
	Error string `json:"error"`
}

// --- Relationships ---

// ListRelationships handles GET /api/v1/entities/{entity}/relationships
func (h *Handlers) ListRelationships(w http.ResponseWriter, r *http.Request) {
	ref := urlParam(r, "entity")
	handleList(func(ctx context.Context) ([]entity.Relationship, error) {
		return h.Entities.ListRelationships(ctx, ref)
	})(w, r)
}

// CreateRelationship handles POST /api/v1/relationships
func (h *Handlers) CreateRelationship(w http.ResponseWriter, r *http.Request) {
	handleCreate(h.Entities.CreateRelationship)(w, r)
}

// DeleteRelationship handles DELETE /api/v1/relationships/{id}
func (h *Handlers) DeleteRelationship(w http.ResponseWriter, r *http.Request) {
	handleDelete("id", h.Entities.DeleteRelationship, "relationship not found")(w, r)
}
