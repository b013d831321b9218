package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/talentpath-hq/talentpath/internal/platform/db"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	CreateRole(ctx context.Context, name, description string) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	SetRoleActive(ctx context.Context, id int64, active bool) error
	DeleteRole(ctx context.Context, id int64) error
	ListPermissions(ctx context.Context) ([]Permission, error)
	ActivePermissionCodes(ctx context.Context) (map[string]struct{}, error)
	RolePermissionCodes(ctx context.Context, roleID int64) ([]string, error)
	ReplaceRolePermissions(ctx context.Context, roleID int64, codes []string) error
	PrincipalByUserID(ctx context.Context, userID int64) (Principal, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

// ListRoles returns all roles with their permission codes.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, is_active, created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsActive, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range roles {
		codes, err := r.RolePermissionCodes(ctx, roles[i].ID)
		if err != nil {
			return nil, err
		}
		roles[i].Permissions = codes
	}
	return roles, nil
}

// GetRole fetches a role by ID including its permission codes.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	return r.getRole(ctx, `SELECT id, name, description, is_active, created_at, updated_at FROM roles WHERE id = $1`, id)
}

// GetRoleByName fetches a role by its unique name.
func (r *Repository) GetRoleByName(ctx context.Context, name string) (Role, error) {
	return r.getRole(ctx, `SELECT id, name, description, is_active, created_at, updated_at FROM roles WHERE name = $1`, name)
}

func (r *Repository) getRole(ctx context.Context, query string, arg any) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, query, arg).Scan(&role.ID, &role.Name, &role.Description, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	codes, err := r.RolePermissionCodes(ctx, role.ID)
	if err != nil {
		return Role{}, err
	}
	role.Permissions = codes
	return role, nil
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, name, description string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`INSERT INTO roles (name, description, is_active) VALUES ($1, $2, TRUE) RETURNING id, name, description, is_active, created_at, updated_at`,
		name, description,
	).Scan(&role.ID, &role.Name, &role.Description, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// UpdateRole updates name and description of an existing role.
func (r *Repository) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`UPDATE roles SET name = $2, description = $3, updated_at = NOW() WHERE id = $1 RETURNING id, name, description, is_active, created_at, updated_at`,
		id, name, description,
	).Scan(&role.ID, &role.Name, &role.Description, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	codes, err := r.RolePermissionCodes(ctx, role.ID)
	if err != nil {
		return Role{}, err
	}
	role.Permissions = codes
	return role, nil
}

// SetRoleActive flips the active flag.
func (r *Repository) SetRoleActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE roles SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRole removes a role and its permission assignments.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListPermissions returns the full permission catalog ordered by module and code.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, description, module, is_active FROM permissions ORDER BY module, code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.Module, &p.IsActive); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// ActivePermissionCodes returns the set of currently active permission codes.
func (r *Repository) ActivePermissionCodes(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx, `SELECT code FROM permissions WHERE is_active`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	codes := make(map[string]struct{})
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes[code] = struct{}{}
	}
	return codes, rows.Err()
}

// RolePermissionCodes returns permission codes attached to a role.
func (r *Repository) RolePermissionCodes(ctx context.Context, roleID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.code FROM role_permissions rp JOIN permissions p ON p.id = rp.permission_id WHERE rp.role_id = $1 ORDER BY p.code`,
		roleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// ReplaceRolePermissions swaps the role's permission set in one transaction.
func (r *Repository) ReplaceRolePermissions(ctx context.Context, roleID int64, codes []string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		for _, code := range codes {
			tag, err := tx.Exec(ctx,
				`INSERT INTO role_permissions (role_id, permission_id) SELECT $1, id FROM permissions WHERE code = $2`,
				roleID, code,
			)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return ErrNotFound
			}
		}
		return nil
	})
}

// PrincipalByUserID resolves the admin user's role and effective permissions.
func (r *Repository) PrincipalByUserID(ctx context.Context, userID int64) (Principal, error) {
	var principal Principal
	var roleID int64
	err := r.pool.QueryRow(ctx,
		`SELECT u.id, r.id, r.name FROM admin_users u JOIN roles r ON r.id = u.role_id WHERE u.id = $1 AND u.is_active AND r.is_active`,
		userID,
	).Scan(&principal.UserID, &roleID, &principal.RoleName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, ErrNotFound
		}
		return Principal{}, err
	}
	codes, err := r.RolePermissionCodes(ctx, roleID)
	if err != nil {
		return Principal{}, err
	}
	principal.Permissions = codes
	return principal, nil
}
