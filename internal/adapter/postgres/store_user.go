package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Strob0t/backoffice/internal/domain/user"
)

const userColumns = `id, email, first_name, last_name, password_hash, is_super_admin, active, created_at, updated_at`

func scanUser(row scannable) (user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash,
		&u.IsSuperAdmin, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// --- Users ---

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	ensureID(&u.ID)
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, first_name, last_name, password_hash, is_super_admin, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.Email, u.FirstName, u.LastName, u.PasswordHash, u.IsSuperAdmin, u.Active, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return conflictWrap(err, "create user %s", u.Email)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*user.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get user %s", id)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if err != nil {
		return nil, notFoundWrap(err, "get user by email %s", email)
	}
	return &u, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, passwordHash)
	return execExpectOne(tag, err, "update password of user %s", id)
}

func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at ASC`
	var args []any
	if tid := tenantFromCtx(ctx); tid != "" {
		query = `SELECT ` + userColumns + ` FROM users u
			WHERE EXISTS (SELECT 1 FROM user_roles ur WHERE ur.user_id = u.id AND ur.tenant_id = $1)
			ORDER BY created_at ASC`
		args = append(args, tid)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return orEmpty(users), rows.Err()
}

// --- Roles ---

const roleColumns = `id, tenant_id, name, description, assign_to_new_users, permissions, created_at, updated_at`

func scanRole(row scannable) (user.Role, error) {
	var r user.Role
	var tenantID *string
	err := row.Scan(&r.ID, &tenantID, &r.Name, &r.Description, &r.AssignToNewUsers,
		&r.Permissions, &r.CreatedAt, &r.UpdatedAt)
	r.TenantID = deref(tenantID)
	r.Permissions = orEmpty(r.Permissions)
	return r, err
}

func (s *Store) CreateRole(ctx context.Context, r *user.Role) error {
	ensureID(&r.ID)
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	_, err := s.pool.Exec(ctx, `
		INSERT INTO roles (id, tenant_id, name, description, assign_to_new_users, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, nullIfEmpty(r.TenantID), r.Name, r.Description, r.AssignToNewUsers, pgTextArray(r.Permissions), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return conflictWrap(err, "create role %s", r.Name)
	}
	return nil
}

func (s *Store) GetRole(ctx context.Context, id string) (*user.Role, error) {
	r, err := scanRole(s.pool.QueryRow(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id = $1 AND (tenant_id IS NULL OR tenant_id IS NOT DISTINCT FROM $2::uuid)`,
		id, tenantArg(ctx)))
	if err != nil {
		return nil, notFoundWrap(err, "get role %s", id)
	}
	return &r, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]user.Role, error) {
	return s.queryRoles(ctx, "list roles",
		`SELECT `+roleColumns+` FROM roles
		 WHERE tenant_id IS NULL OR tenant_id = $1
		 ORDER BY tenant_id NULLS FIRST, name`, tenantArg(ctx))
}

func (s *Store) ListUserRoles(ctx context.Context, userID, tenantID string) ([]user.Role, error) {
	return s.queryRoles(ctx, "list user roles",
		`SELECT r.id, r.tenant_id, r.name, r.description, r.assign_to_new_users, r.permissions, r.created_at, r.updated_at
		 FROM roles r JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = $1 AND ur.tenant_id = $2
		 ORDER BY r.name`, userID, tenantID)
}

func (s *Store) queryRoles(ctx context.Context, op, query string, args ...any) ([]user.Role, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var roles []user.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, r)
	}
	return orEmpty(roles), rows.Err()
}

// UpdateRolePermissions changes a role owned by the scope. System roles are
// only writable from the system scope.
func (s *Store) UpdateRolePermissions(ctx context.Context, roleID string, permissions []string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE roles SET permissions = $2, updated_at = now()
		 WHERE id = $1 AND tenant_id IS NOT DISTINCT FROM $3::uuid`,
		roleID, pgTextArray(permissions), tenantArg(ctx))
	return execExpectOne(tag, err, "update role permissions %s", roleID)
}

func (s *Store) AssignRole(ctx context.Context, a user.RoleAssignment) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id, tenant_id) VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`,
		a.UserID, a.RoleID, a.TenantID)
	if err != nil {
		return fmt.Errorf("assign role %s to user %s: %w", a.RoleID, a.UserID, err)
	}
	return nil
}

func (s *Store) ListRoleAssignments(ctx context.Context, roleID string) ([]user.RoleAssignment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, role_id, tenant_id FROM user_roles WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, fmt.Errorf("list role assignments %s: %w", roleID, err)
	}
	defer rows.Close()

	var out []user.RoleAssignment
	for rows.Next() {
		var a user.RoleAssignment
		if err := rows.Scan(&a.UserID, &a.RoleID, &a.TenantID); err != nil {
			return nil, fmt.Errorf("scan role assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Groups ---

func (s *Store) ListUserGroupIDs(ctx context.Context, userID, tenantID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT g.id FROM groups g JOIN group_users gu ON gu.group_id = g.id
		 WHERE gu.user_id = $1 AND g.tenant_id = $2`, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list user groups: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
