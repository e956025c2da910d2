package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/backoffice/internal/adapter/email"
	bohttp "github.com/Strob0t/backoffice/internal/adapter/http"
	bonats "github.com/Strob0t/backoffice/internal/adapter/nats"
	"github.com/Strob0t/backoffice/internal/adapter/natskv"
	cfotel "github.com/Strob0t/backoffice/internal/adapter/otel"
	"github.com/Strob0t/backoffice/internal/adapter/postgres"
	"github.com/Strob0t/backoffice/internal/adapter/ristretto"
	"github.com/Strob0t/backoffice/internal/adapter/tiered"
	"github.com/Strob0t/backoffice/internal/config"
	"github.com/Strob0t/backoffice/internal/domain/row"
	"github.com/Strob0t/backoffice/internal/domain/rowquery"
	"github.com/Strob0t/backoffice/internal/logger"
	"github.com/Strob0t/backoffice/internal/media"
	"github.com/Strob0t/backoffice/internal/middleware"
	"github.com/Strob0t/backoffice/internal/port/messagequeue"
	"github.com/Strob0t/backoffice/internal/port/storage"
	"github.com/Strob0t/backoffice/internal/resilience"
	"github.com/Strob0t/backoffice/internal/service"
)

const version = "0.1.0"

// Per-client request budget of the API.
const (
	rateLimitPerSecond = 20
	rateLimitBurst     = 60
)

func main() {
	var err error
	switch {
	case len(os.Args) > 1 && os.Args[1] == "admin":
		err = runAdmin(os.Args[2:])
	case len(os.Args) > 1 && os.Args[1] == "migrate":
		err = runMigrate(os.Args[2:])
	default:
		err = run()
	}
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"auth_enabled", cfg.Server.AuthEnabled,
		"storage_provider", cfg.Storage.Provider,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)
	if !cfg.Server.AuthEnabled {
		slog.Warn("authentication disabled, every request acts as super admin")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---

	shutdownOtel, err := cfotel.Setup(ctx, cfg.Otel, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")
	store := postgres.NewStore(pool)

	// NATS
	queue, err := bonats.Connect(ctx, cfg.NATS, cfg.Tasks)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	// Cache: ristretto in process, NATS KV shared between instances
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1.Close()
	l2, err := natskv.Open(ctx, queue.JetStream(), cfg.NATS.CacheBucket, cfg.Cache.L2TTL)
	if err != nil {
		return fmt.Errorf("l2 cache: %w", err)
	}
	appCache := tiered.New(l1, l2, cfg.Cache.L1TTL)

	// Object storage and email
	provider, err := storage.New(cfg.Storage.Provider, cfg.Storage.ProviderConfig())
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	mail := email.New(cfg.SMTP, resilience.NewBreaker("smtp", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	// --- Services ---

	perms := service.NewPermissionService(store, appCache, cfg.Permissions.CacheTTL)
	perms.SetMetrics(metrics)
	tenants := service.NewTenantService(store, appCache, cfg.Permissions.CacheTTL)
	auth := service.NewAuthService(store, perms, mail, &cfg.Auth)
	entities := service.NewEntityService(store)

	resolver := row.NewResolver(row.FolioFormat{Prefix: cfg.Rows.FolioPrefix, Pad: cfg.Rows.FolioPad})
	limits := rowquery.Limits{DefaultPageSize: cfg.Rows.DefaultPageSize, MaxPageSize: cfg.Rows.MaxPageSize}
	rows := service.NewRowService(store, entities, perms, resolver, limits, queue)
	rows.SetMetrics(metrics)

	roles := service.NewRoleService(store, perms)
	invitations := service.NewInvitationService(store, auth, perms, mail, queue, cfg.Server.BaseURL)
	invitations.SetMetrics(metrics)

	mediaSvc := service.NewMediaService(store, provider,
		resilience.NewBreaker("storage", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout),
		media.NewPool(cfg.Tasks.Concurrency), cfg.Storage.Bucket)
	mediaSvc.SetMetrics(metrics)
	rows.SetMediaPurger(mediaSvc)

	// --- Task workers ---

	cancelMedia, err := queue.Subscribe(ctx, messagequeue.SubjectMediaMigrate, mediaSvc.HandleMigrateTask)
	if err != nil {
		return fmt.Errorf("media subscriber: %w", err)
	}
	defer cancelMedia()
	cancelEmail, err := queue.Subscribe(ctx, messagequeue.SubjectInvitationEmail, invitations.HandleEmailTask)
	if err != nil {
		return fmt.Errorf("invitation email subscriber: %w", err)
	}
	defer cancelEmail()

	// --- HTTP ---

	handlers := &bohttp.Handlers{
		Tenants:     tenants,
		Entities:    entities,
		Rows:        rows,
		Roles:       roles,
		Invitations: invitations,
		Auth:        auth,
	}

	limiter := middleware.NewRateLimiter(rateLimitPerSecond, rateLimitBurst)
	stopCleanup := limiter.StartCleanup(time.Minute, 10*time.Minute)
	defer stopCleanup()

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(bohttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(bohttp.SecurityHeaders)
	r.Use(bohttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cfotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/health", bohttp.Health(version))
	r.Get("/health/ready", bohttp.Ready(map[string]bohttp.HealthCheck{
		"postgres": store.Ping,
		"nats": func(context.Context) error {
			if !queue.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		},
	}))

	bohttp.MountRoutes(r, handlers,
		middleware.Tenant(tenants),
		middleware.Auth(auth, cfg.Server.AuthEnabled),
		limiter.Handler,
		middleware.Idempotency(appCache),
	)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	// Let in-flight tasks finish before the deferred Close.
	if err := queue.Drain(); err != nil {
		slog.Warn("nats drain", "error", err)
	}
	return nil
}
