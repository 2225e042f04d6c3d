package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a username, email or tenant name is already taken.
	ErrConflict = errors.New("username or email already exists")
	// ErrInvalidCredentials is the single generic authentication failure.
	// The caller never learns whether the identifier existed.
	ErrInvalidCredentials = errors.New("invalid username/email or password")
	// ErrInvalidRequest is returned on CSRF token mismatch.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrSessionExpired is returned when a session is past its inactivity
	// window or absolute lifetime.
	ErrSessionExpired = errors.New("session expired")
	// ErrUnauthenticated is returned when a protected endpoint is reached
	// without an authenticated session.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrVaultLocked is returned when a vault-gated resource is accessed
	// without a valid grant.
	ErrVaultLocked = errors.New("vault is locked")
	// ErrStoreUnavailable is returned on store timeouts and connection
	// failures. The operation may be retried by the caller; the server
	// never retries internally.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError reports malformed input. It is returned before any store
// access is attempted.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d field error(s)", len(e.Fields))
}

// RateLimitedError is returned when a rate limit threshold is exceeded.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many attempts, retry after %s", e.RetryAfter)
}

// ProvisioningError wraps a tenant database creation or check failure.
type ProvisioningError struct {
	TenantDB string
	Err      error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("failed to provision tenant database %s: %v", e.TenantDB, e.Err)
}

func (e *ProvisioningError) Unwrap() error {
	return e.Err
}

// VaultDeniedError is returned on a failed vault unlock attempt. Unlike
// primary login the attempt count is surfaced to the caller.
type VaultDeniedError struct {
	Attempts  int
	Remaining int
}

func (e *VaultDeniedError) Error() string {
	return fmt.Sprintf("incorrect password, attempt %d of %d", e.Attempts, e.Attempts+e.Remaining)
}
