package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/backoffice/internal/domain/permission"
	"github.com/Strob0t/backoffice/internal/middleware"
)

// MountRoutes registers all API routes on the given chi router. mw runs in
// front of every /api/v1 route, in order; the server passes tenant
// resolution and authentication here.
func MountRoutes(r chi.Router, h *Handlers, mw ...func(http.Handler) http.Handler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw...)

		// Public (exempted by the Auth middleware)
		r.Post("/auth/login", h.Login)
		r.Post("/invitations/accept", h.AcceptInvitation)

		// Current user
		r.Get("/auth/me", h.GetCurrentUser)
		r.With(middleware.RequireUser).Post("/auth/change-password", h.ChangePassword)

		// Tenants
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(permission.AdminTenantsManage))
			r.Get("/tenants", h.ListTenants)
			r.Post("/tenants", h.CreateTenant)
			r.Get("/tenants/{id}", h.GetTenant)
			r.Put("/tenants/{id}", h.UpdateTenant)
		})

		// Entities: readable by every actor, schema changes need admin rights
		r.Get("/entities", h.ListEntities)
		r.Get("/entities/{entity}", h.GetEntity)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser)
			r.Use(middleware.RequirePermission(permission.AdminEntitiesView))
			r.Get("/entities/{entity}/relationships", h.ListRelationships)
		})
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser)
			r.Use(middleware.RequirePermission(permission.AdminEntitiesManage))
			r.Post("/entities", h.CreateEntity)
			r.Put("/entities/{entity}", h.UpdateEntity)
			r.Delete("/entities/{entity}", h.DeleteEntity)

			r.Post("/entities/{entity}/properties", h.CreateProperty)
			r.Put("/entities/{entity}/properties/{id}", h.UpdateProperty)
			r.Delete("/entities/{entity}/properties/{id}", h.DeleteProperty)
			r.Post("/entities/{entity}/properties/{id}/duplicate", h.DuplicateProperty)
			r.Put("/entities/{entity}/properties/{id}/options", h.ReplaceOptions)
			r.Put("/entities/{entity}/properties/{id}/attributes", h.ReplaceAttributes)

			r.Post("/relationships", h.CreateRelationship)
			r.Delete("/relationships/{id}", h.DeleteRelationship)
		})

		// Rows: entity and row permissions are checked by the service
		r.Get("/entities/{entity}/rows", h.ListRows)
		r.Post("/entities/{entity}/rows", h.CreateRow)
		r.Get("/entities/{entity}/rows/{id}", h.GetRow)
		r.Put("/entities/{entity}/rows/{id}", h.UpdateRow)
		r.Delete("/entities/{entity}/rows/{id}", h.DeleteRow)
		r.Put("/entities/{entity}/rows/{id}/tags", h.SetRowTags)
		r.Put("/entities/{entity}/rows/{id}/permissions", h.SetRowPermissions)
		r.Get("/relationships/{id}/rows/{rowId}/children", h.ListRelatedRows)

		// Administration
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser)

			r.Get("/roles", h.ListRoles)
			r.Post("/roles", h.CreateRole)
			r.Put("/roles/{id}/permissions", h.UpdateRolePermissions)
			r.Post("/roles/{id}/users/{userId}", h.AssignRole)

			r.Post("/invitations", h.Invite)
			r.Post("/invitations/bulk", h.BulkInvite)

			r.With(middleware.RequirePermission(permission.AdminRolesView)).Get("/users", h.ListUsers)

			r.Route("/api-keys", func(r chi.Router) {
				r.Use(middleware.RequirePermission(permission.AdminRolesUpdate))
				r.Get("/", h.ListAPIKeys)
				r.Post("/", h.CreateAPIKey)
				r.Delete("/{id}", h.DeleteAPIKey)
			})
		})
	})
}
