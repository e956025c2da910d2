package middleware

import (
	"net/http"
)

// RequireUser rejects API-key actors. API keys only reach the row endpoints
// their entity grants cover; administration needs a signed-in user.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a := ActorFromContext(r.Context())
		if a == nil {
			http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
			return
		}
		if a.APIKeyID != "" {
			http.Error(w, `{"error":"not available to api keys"}`, http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
