package rbac

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/talentpath-hq/talentpath/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the authorization gate and permission registry.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

var codeFolder = cases.Fold()

func normalizeCode(code string) string {
	return codeFolder.String(strings.TrimSpace(code))
}

// Check returns nil when the principal may perform the operation guarded by
// the required permission code. The super admin role passes every check.
// A permission that has been deactivated in the catalog fails the check even
// when the role still lists it.
func (s *Service) Check(ctx context.Context, principal Principal, required string) error {
	required = normalizeCode(required)
	if required == "" {
		return nil
	}
	if principal.IsSuperAdmin() {
		return nil
	}
	held := false
	for _, code := range principal.Permissions {
		if normalizeCode(code) == required {
			held = true
			break
		}
	}
	if !held {
		return fmt.Errorf("%w: missing %s", ErrUnauthorized, required)
	}
	active, err := s.repo.ActivePermissionCodes(ctx)
	if err != nil {
		return err
	}
	for code := range active {
		if normalizeCode(code) == required {
			return nil
		}
	}
	return fmt.Errorf("%w: permission %s inactive", ErrUnauthorized, required)
}

// PermissionsForRole returns the permission codes granted to a role.
func (s *Service) PermissionsForRole(ctx context.Context, roleName string) ([]string, error) {
	role, err := s.repo.GetRoleByName(ctx, roleName)
	if err != nil {
		return nil, err
	}
	return role.Permissions, nil
}

// PrincipalForUser resolves the principal for an authenticated admin user.
func (s *Service) PrincipalForUser(ctx context.Context, userID int64) (Principal, error) {
	return s.repo.PrincipalByUserID(ctx, userID)
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// ListPermissionsByModule groups the permission catalog by module tag for
// administrative display.
func (s *Service) ListPermissionsByModule(ctx context.Context) (map[string][]Permission, error) {
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]Permission)
	for _, p := range perms {
		grouped[p.Module] = append(grouped[p.Module], p)
	}
	return grouped, nil
}

// ListPermissions returns the flat permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// CreateRole inserts a new role with the given permission codes.
func (s *Service) CreateRole(ctx context.Context, principal Principal, name, description string, codes []string) (Role, error) {
	if err := s.Check(ctx, principal, shared.PermRolesEdit); err != nil {
		return Role{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	if name == SuperAdminRole {
		return Role{}, ErrProtected
	}
	role, err := s.repo.CreateRole(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	if len(codes) > 0 {
		if err := s.repo.ReplaceRolePermissions(ctx, role.ID, dedupeCodes(codes)); err != nil {
			return Role{}, err
		}
		role, err = s.repo.GetRole(ctx, role.ID)
		if err != nil {
			return Role{}, err
		}
	}
	s.recordAudit(ctx, principal, "role.create", role.ID, nil)
	return role, nil
}

// UpdateRole renames a role. The super admin role is immutable.
func (s *Service) UpdateRole(ctx context.Context, principal Principal, id int64, name, description string) (Role, error) {
	if err := s.Check(ctx, principal, shared.PermRolesEdit); err != nil {
		return Role{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	existing, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if existing.Protected() || name == SuperAdminRole {
		return Role{}, ErrProtected
	}
	role, err := s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	s.recordAudit(ctx, principal, "role.update", role.ID, nil)
	return role, nil
}

// ToggleRole flips the role's active flag. The super admin role cannot be
// deactivated.
func (s *Service) ToggleRole(ctx context.Context, principal Principal, id int64) (Role, error) {
	if err := s.Check(ctx, principal, shared.PermRolesEdit); err != nil {
		return Role{}, err
	}
	existing, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if existing.Protected() {
		return Role{}, ErrProtected
	}
	if err := s.repo.SetRoleActive(ctx, id, !existing.IsActive); err != nil {
		return Role{}, err
	}
	s.recordAudit(ctx, principal, "role.toggle", id, map[string]any{"active": !existing.IsActive})
	return s.repo.GetRole(ctx, id)
}

// DeleteRole removes a role. The super admin role cannot be deleted.
func (s *Service) DeleteRole(ctx context.Context, principal Principal, id int64) error {
	if err := s.Check(ctx, principal, shared.PermRolesEdit); err != nil {
		return err
	}
	existing, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if existing.Protected() {
		return ErrProtected
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, principal, "role.delete", id, nil)
	return nil
}

// SetPermissions replaces the role's permission set. The operation is an
// idempotent set-replacement and is safe to retry.
func (s *Service) SetPermissions(ctx context.Context, principal Principal, roleID int64, codes []string) (Role, error) {
	if err := s.Check(ctx, principal, shared.PermRolesEdit); err != nil {
		return Role{}, err
	}
	existing, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return Role{}, err
	}
	if existing.Protected() {
		return Role{}, ErrProtected
	}
	if err := s.repo.ReplaceRolePermissions(ctx, roleID, dedupeCodes(codes)); err != nil {
		return Role{}, err
	}
	s.recordAudit(ctx, principal, "role.set_permissions", roleID, map[string]any{"count": len(codes)})
	return s.repo.GetRole(ctx, roleID)
}

func dedupeCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		key := normalizeCode(code)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, code)
	}
	return out
}

func (s *Service) recordAudit(ctx context.Context, principal Principal, action string, roleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  principal.UserID,
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(roleID, 10),
		Meta:     meta,
	})
}
