package shared

import "errors"

// Sentinel errors shared across modules.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials covers every login failure so responses never
	// reveal whether the account exists.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing indicates a mutating request without a token.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch indicates the presented token failed verification.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
