package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Strob0t/backoffice/internal/domain/permission"
	"github.com/Strob0t/backoffice/internal/logger"
)

// HeaderAPIKey carries an API key.
const HeaderAPIKey = "X-API-Key"

// DevUserID identifies the actor injected when authentication is disabled.
const DevUserID = "00000000-0000-0000-0000-000000000000"

type actorCtxKey struct{}

// publicPaths are exempt from authentication.
var publicPaths = map[string]bool{
	"/health":                    true,
	"/health/ready":              true,
	"/api/v1/auth/login":         true,
	"/api/v1/invitations/accept": true,
}

// Authenticator turns credentials into an actor resolved for the tenant in ctx.
type Authenticator interface {
	ActorForToken(ctx context.Context, token string) (*permission.Actor, error)
	ActorForAPIKey(ctx context.Context, rawKey string) (*permission.Actor, error)
}

// Auth returns middleware that validates bearer token or API key credentials
// and stores the resolved actor in the context. It must run after Tenant.
// When authEnabled is false, a super admin actor is injected.
func Auth(authn Authenticator, authEnabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tenantID := TenantIDFromContext(ctx)

			if !authEnabled {
				a := &permission.Actor{UserID: DevUserID, TenantID: tenantID, IsSuperAdmin: true}
				next.ServeHTTP(w, r.WithContext(WithActor(ctx, a)))
				return
			}

			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			if apiKey := r.Header.Get(HeaderAPIKey); apiKey != "" {
				a, err := authn.ActorForAPIKey(ctx, apiKey)
				if err != nil {
					http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
					return
				}
				// API keys are bound to one tenant.
				switch {
				case tenantID == "":
					ctx = WithTenantID(ctx, a.TenantID)
				case tenantID != a.TenantID:
					http.Error(w, `{"error":"api key does not belong to this tenant"}`, http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r.WithContext(WithActor(ctx, a)))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
				return
			}

			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				http.Error(w, `{"error":"invalid authorization header"}`, http.StatusUnauthorized)
				return
			}

			a, err := authn.ActorForToken(ctx, token)
			if err != nil {
				http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(ctx, a)))
		})
	}
}

// WithActor stores the actor in the context and adds its scope to log records.
func WithActor(ctx context.Context, a *permission.Actor) context.Context {
	ctx = context.WithValue(ctx, actorCtxKey{}, a)
	userID := a.UserID
	if userID == "" {
		userID = "apikey:" + a.APIKeyID
	}
	return logger.WithScope(ctx, a.TenantID, userID)
}

// ActorFromContext returns the authenticated actor, or nil.
func ActorFromContext(ctx context.Context) *permission.Actor {
	a, _ := ctx.Value(actorCtxKey{}).(*permission.Actor)
	return a
}
