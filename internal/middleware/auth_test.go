package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Strob0t/backoffice/internal/domain/permission"
	"github.com/Strob0t/backoffice/internal/middleware"
)

type fakeAuthenticator struct {
	tokens map[string]*permission.Actor
	keys   map[string]*permission.Actor
}

func (f *fakeAuthenticator) ActorForToken(_ context.Context, token string) (*permission.Actor, error) {
	if a, ok := f.tokens[token]; ok {
		return a, nil
	}
	return nil, errors.New("invalid token")
}

func (f *fakeAuthenticator) ActorForAPIKey(_ context.Context, key string) (*permission.Actor, error) {
	if a, ok := f.keys[key]; ok {
		return a, nil
	}
	return nil, errors.New("invalid key")
}

func newFakeAuthenticator() *fakeAuthenticator {
	return &fakeAuthenticator{
		tokens: map[string]*permission.Actor{
			"good": {UserID: "u1", TenantID: "t1", Permissions: []string{"entity.Candidate.view"}},
		},
		keys: map[string]*permission.Actor{
			"bok_key": {APIKeyID: "k1", TenantID: "t1", Permissions: []string{}},
		},
	}
}

// captureActor runs req through Auth and returns the actor and tenant seen by
// the inner handler.
func captureActor(t *testing.T, authEnabled bool, req *http.Request) (*permission.Actor, string, int) {
	t.Helper()
	var got *permission.Actor
	var tenant string
	handler := middleware.Auth(newFakeAuthenticator(), authEnabled)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = middleware.ActorFromContext(r.Context())
		tenant = middleware.TenantIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return got, tenant, rec.Code
}

func TestAuth_Disabled_InjectsSuperAdmin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/entities", http.NoBody)
	req = req.WithContext(middleware.WithTenantID(req.Context(), "t9"))
	a, _, code := captureActor(t, false, req)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if a == nil || !a.IsSuperAdmin || a.TenantID != "t9" {
		t.Errorf("actor = %+v", a)
	}
}

func TestAuth_Enabled_NoHeader_Returns401(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/entities", http.NoBody)
	if _, _, code := captureActor(t, true, req); code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", code)
	}
}

func TestAuth_PublicPath_NoAuthRequired(t *testing.T) {
	for _, path := range []string{"/health", "/health/ready", "/api/v1/auth/login", "/api/v1/invitations/accept"} {
		req := httptest.NewRequest(http.MethodPost, path, http.NoBody)
		if _, _, code := captureActor(t, true, req); code != http.StatusOK {
			t.Errorf("path %s: status = %d, want 200", path, code)
		}
	}
}

func TestAuth_BearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/entities", http.NoBody)
	req.Header.Set("Authorization", "Bearer good")
	a, _, code := captureActor(t, true, req)
	if code != http.StatusOK || a == nil || a.UserID != "u1" {
		t.Fatalf("status %d actor %+v", code, a)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/entities", http.NoBody)
	req.Header.Set("Authorization", "Bearer invalid.token.here")
	if _, _, code := captureActor(t, true, req); code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/entities", http.NoBody)
	req.Header.Set("Authorization", "Basic abc")
	if _, _, code := captureActor(t, true, req); code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", code)
	}
}

func TestAuth_APIKeyBindsTenant(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/entities", http.NoBody)
	req.Header.Set(middleware.HeaderAPIKey, "bok_key")
	a, tenant, code := captureActor(t, true, req)
	if code != http.StatusOK || a == nil || a.APIKeyID != "k1" {
		t.Fatalf("status %d actor %+v", code, a)
	}
	if tenant != "t1" {
		t.Errorf("tenant = %q, want key tenant t1", tenant)
	}
}

func TestAuth_APIKeyWrongTenant_Returns403(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/entities", http.NoBody)
	req.Header.Set(middleware.HeaderAPIKey, "bok_key")
	req = req.WithContext(middleware.WithTenantID(req.Context(), "other"))
	if _, _, code := captureActor(t, true, req); code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", code)
	}
}

func TestAuth_InvalidAPIKey_Returns401(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/entities", http.NoBody)
	req.Header.Set(middleware.HeaderAPIKey, "bok_nope")
	if _, _, code := captureActor(t, true, req); code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", code)
	}
}
