package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/backoffice/internal/domain"
	"github.com/Strob0t/backoffice/internal/domain/tenant"
	"github.com/Strob0t/backoffice/internal/port/cache"
	"github.com/Strob0t/backoffice/internal/port/database"
)

// TenantService manages tenant lifecycle and resolves tenant slugs.
type TenantService struct {
	store database.TenantStore
	cache cache.Cache
	ttl   time.Duration
}

// NewTenantService creates a new TenantService. Slug lookups are cached for ttl.
func NewTenantService(store database.TenantStore, c cache.Cache, ttl time.Duration) *TenantService {
	return &TenantService{store: store, cache: c, ttl: ttl}
}

func slugKey(slug string) string { return cache.Key("tenant", "slug", slug) }

// Create validates and creates a new tenant.
func (s *TenantService) Create(ctx context.Context, req tenant.CreateRequest) (*tenant.Tenant, error) {
	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}
	t := &tenant.Tenant{Name: req.Name, Slug: req.Slug, Icon: req.Icon, Active: true}
	if err := s.store.CreateTenant(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Get returns a tenant by ID.
func (s *TenantService) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	return s.store.GetTenant(ctx, id)
}

// List returns all tenants.
func (s *TenantService) List(ctx context.Context) ([]tenant.Tenant, error) {
	return s.store.ListTenants(ctx)
}

// Update modifies an existing tenant and drops the cached slug resolution.
func (s *TenantService) Update(ctx context.Context, id string, req tenant.UpdateRequest) (*tenant.Tenant, error) {
	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	oldSlug := t.Slug

	if req.Name != "" {
		t.Name = req.Name
	}
	if req.Slug != "" {
		if err := tenant.ValidateSlug(req.Slug); err != nil {
			return nil, invalid(err)
		}
		t.Slug = req.Slug
	}
	if req.Icon != nil {
		t.Icon = *req.Icon
	}
	if req.Active != nil {
		t.Active = *req.Active
	}
	if err := s.store.UpdateTenant(ctx, t); err != nil {
		return nil, err
	}

	s.forget(ctx, oldSlug)
	if t.Slug != oldSlug {
		s.forget(ctx, t.Slug)
	}
	return t, nil
}

// TenantIDBySlug resolves an active tenant's ID, read-through the cache.
// Inactive tenants resolve as not found.
func (s *TenantService) TenantIDBySlug(ctx context.Context, slug string) (string, error) {
	key := slugKey(slug)
	if s.cache != nil {
		if id, ok, err := cache.GetJSON[string](ctx, s.cache, key); err == nil && ok {
			return id, nil
		}
	}

	t, err := s.store.GetTenantBySlug(ctx, slug)
	if err != nil {
		return "", err
	}
	if !t.Active {
		return "", fmt.Errorf("tenant %s is inactive: %w", slug, domain.ErrNotFound)
	}

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, key, t.ID, s.ttl); err != nil {
			slog.WarnContext(ctx, "cache tenant slug failed", "slug", slug, "error", err)
		}
	}
	return t.ID, nil
}

func (s *TenantService) forget(ctx context.Context, slug string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, slugKey(slug)); err != nil {
		slog.WarnContext(ctx, "invalidate tenant slug failed", "slug", slug, "error", err)
	}
}
