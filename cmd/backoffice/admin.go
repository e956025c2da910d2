package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/term"

	"github.com/Strob0t/backoffice/internal/adapter/postgres"
	"github.com/Strob0t/backoffice/internal/config"
	"github.com/Strob0t/backoffice/internal/domain/permission"
	"github.com/Strob0t/backoffice/internal/domain/user"
	"github.com/Strob0t/backoffice/internal/middleware"
	"github.com/Strob0t/backoffice/internal/service"
)

// cliActor is the identity admin commands act as.
var cliActor = &permission.Actor{UserID: middleware.DevUserID, IsSuperAdmin: true}

// runAdmin dispatches admin subcommands (create-user, list-users).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "create-user":
		return runAdminCreateUser(args[1:])
	case "list-users":
		return runAdminListUsers(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: backoffice admin <command> [options]

Commands:
  create-user      Create a new user
  list-users       List users, optionally of one tenant
  help             Show this help message

Examples:
  backoffice admin create-user --email admin@localhost --first-name Admin --super-admin
  backoffice admin create-user --email ana@acme.com --first-name Ana --tenant acme --role <role-id>
  backoffice admin list-users --tenant acme
`)
}

type adminDeps struct {
	store   *postgres.Store
	auth    *service.AuthService
	tenants *service.TenantService
	roles   *service.RoleService
	pool    *pgxpool.Pool
}

func loadAdminDeps(ctx context.Context) (*adminDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	store := postgres.NewStore(pool)
	perms := service.NewPermissionService(store, nil, 0)
	return &adminDeps{
		store:   store,
		auth:    service.NewAuthService(store, perms, nil, &cfg.Auth),
		tenants: service.NewTenantService(store, nil, 0),
		roles:   service.NewRoleService(store, perms),
		pool:    pool,
	}, nil
}

// tenantContext scopes ctx to the tenant with the given slug; an empty slug
// keeps the system scope.
func (d *adminDeps) tenantContext(ctx context.Context, slug string) (context.Context, error) {
	if slug == "" {
		return ctx, nil
	}
	id, err := d.tenants.TenantIDBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("tenant %q: %w", slug, err)
	}
	return middleware.WithTenantID(ctx, id), nil
}

func runAdminCreateUser(args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	email := fs.String("email", "", "user email address (required)")
	firstName := fs.String("first-name", "", "first name (required)")
	lastName := fs.String("last-name", "", "last name")
	password := fs.String("password", "", "password (prompted if not provided)") //nolint:gosec // CLI flag
	superAdmin := fs.Bool("super-admin", false, "grant super admin rights")
	tenantSlug := fs.String("tenant", "", "tenant slug to assign --role in")
	roleID := fs.String("role", "", "role ID to assign in --tenant")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		return fmt.Errorf("--email is required")
	}
	if *firstName == "" {
		return fmt.Errorf("--first-name is required")
	}
	if (*roleID == "") != (*tenantSlug == "") {
		return fmt.Errorf("--role and --tenant go together")
	}

	pass := *password
	if pass == "" {
		var err error
		pass, err = promptPassword("Password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		confirm, err := promptPassword("Confirm password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		if pass != confirm {
			return fmt.Errorf("passwords do not match")
		}
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer deps.pool.Close()

	u, err := deps.auth.Register(ctx, &user.CreateRequest{
		Email:        *email,
		FirstName:    *firstName,
		LastName:     *lastName,
		Password:     pass,
		IsSuperAdmin: *superAdmin,
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Fprintf(os.Stderr, "User created: %s (id=%s, super_admin=%t)\n", u.Email, u.ID, u.IsSuperAdmin)

	if *roleID != "" {
		tctx, err := deps.tenantContext(ctx, *tenantSlug)
		if err != nil {
			return err
		}
		if err := deps.roles.Assign(tctx, cliActor, *roleID, u.ID); err != nil {
			return fmt.Errorf("assign role: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Role %s assigned in %s\n", *roleID, *tenantSlug)
	}
	return nil
}

func runAdminListUsers(args []string) error {
	fs := flag.NewFlagSet("list-users", flag.ContinueOnError)
	tenantSlug := fs.String("tenant", "", "only users with a role in this tenant")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer deps.pool.Close()

	tctx, err := deps.tenantContext(ctx, *tenantSlug)
	if err != nil {
		return err
	}
	users, err := deps.auth.ListUsers(tctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	if len(users) == 0 {
		fmt.Println("No users found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tEMAIL\tNAME\tSUPER_ADMIN\tACTIVE")
	for i := range users {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\n",
			users[i].ID, users[i].Email, users[i].FullName(), users[i].IsSuperAdmin, users[i].Active)
	}
	return w.Flush()
}

// runMigrate applies, rolls back or reports the schema migrations.
func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	steps := fs.Int("steps", 1, "migrations to roll back with down")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cmd := "up"
	if fs.NArg() > 0 {
		cmd = fs.Arg(0)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := context.Background()

	switch cmd {
	case "up":
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return err
		}
	case "down":
		if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *steps); err != nil {
			return err
		}
	case "status":
	default:
		return fmt.Errorf("unknown migrate command %q (want up, down or status)", cmd)
	}

	v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Schema version: %d\n", v)
	return nil
}

// promptPassword reads a password from the terminal without echoing.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)                         // newline after password input
	if err != nil {
		return "", err
	}
	return string(b), nil
}
