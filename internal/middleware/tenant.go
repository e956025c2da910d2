package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Strob0t/backoffice/internal/domain"
)

// HeaderTenant carries the slug of the tenant a request acts in.
const HeaderTenant = "X-Tenant"

// queryTenant is the query parameter fallback for HeaderTenant.
const queryTenant = "tenant"

type tenantCtxKey struct{}

// TenantResolver maps a tenant slug to its ID.
type TenantResolver interface {
	TenantIDBySlug(ctx context.Context, slug string) (string, error)
}

// Tenant is middleware that resolves the tenant slug from the X-Tenant header
// (or ?tenant=) and stores the tenant ID in the request context. Requests
// without a slug run in the system scope. Unknown slugs are rejected.
func Tenant(resolver TenantResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slug := r.Header.Get(HeaderTenant)
			if slug == "" {
				slug = r.URL.Query().Get(queryTenant)
			}
			if slug == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := resolver.TenantIDBySlug(r.Context(), slug)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					http.Error(w, `{"error":"tenant not found"}`, http.StatusNotFound)
					return
				}
				slog.ErrorContext(r.Context(), "tenant resolution failed", "slug", slug, "error", err)
				http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithTenantID(r.Context(), id)))
		})
	}
}

// WithTenantID returns a context scoped to the tenant. Background workers use
// it to run store calls in the tenant of the task they process.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, tenantID)
}

// TenantIDFromContext returns the tenant ID stored in ctx, or "" for the
// system scope.
func TenantIDFromContext(ctx context.Context) string {
	tid, _ := ctx.Value(tenantCtxKey{}).(string)
	return tid
}
