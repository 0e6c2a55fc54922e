package sessionauth

import "errors"

var (
	// ErrInvalidInput reports malformed request data (empty identifier,
	// empty secret, missing registration fields).
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound reports that no principal matches the given id.
	ErrNotFound = errors.New("principal not found")
	// ErrInvalidCredentials reports a failed authentication attempt. Login
	// deliberately collapses "no such principal" and "wrong secret" into
	// this one class; audit events carry the internal distinction.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized reports a missing, expired, malformed, or reused
	// token presented to Refresh or ValidateAccess.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict reports a username or email uniqueness violation at
	// registration.
	ErrConflict = errors.New("identifier already in use")
	// ErrInternal reports hashing, signing, or storage infrastructure
	// failure. The cause is audited, never returned to the transport layer.
	ErrInternal = errors.New("internal failure")
	// ErrManagerNotReady is returned when a Manager is used before
	// [Builder.Build] completed.
	ErrManagerNotReady = errors.New("manager not initialized")
)
