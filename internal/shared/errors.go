package shared

import "errors"

var (
	// ErrNotFound is returned by lookups that matched no row.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials covers every failed sign-in, whatever the cause.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
