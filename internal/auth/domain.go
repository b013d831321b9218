package auth

import "time"

// User represents an admin account that can sign in.
type User struct {
	ID           int64
	Email        string
	FullName     string
	PasswordHash string
	RoleID       int64
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
