package rbac

import (
	"errors"
	"time"
)

// SuperAdminRole implicitly satisfies every permission check. The role
// record itself cannot be renamed, deactivated or deleted.
const SuperAdminRole = "SUPER_ADMIN"

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrUnauthorized indicates the principal lacks a required permission.
	ErrUnauthorized = errors.New("rbac: unauthorized")
	// ErrProtected indicates an attempt to modify the protected super admin role.
	ErrProtected = errors.New("rbac: protected resource")
)

// Role represents a named bundle of permission codes.
type Role struct {
	ID          int64
	Name        string
	Description string
	IsActive    bool
	Permissions []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Protected reports whether the role must not be mutated or deleted.
func (r Role) Protected() bool {
	return r.Name == SuperAdminRole
}

// Permission represents an atomic capability grouped by module.
type Permission struct {
	ID          int64
	Code        string
	Name        string
	Description string
	Module      string
	IsActive    bool
}

// Principal describes the authenticated actor attempting an operation.
type Principal struct {
	UserID      int64
	RoleName    string
	Permissions []string
}

// IsSuperAdmin reports whether the principal holds the super admin role.
func (p Principal) IsSuperAdmin() bool {
	return p.RoleName == SuperAdminRole
}
