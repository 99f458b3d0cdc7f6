package model

import "errors"

// Common errors used across the application
var (
	// User errors
	ErrUserNotFound   = errors.New("user not found")
	ErrUsernameExists = errors.New("username already exists")
	ErrInvalidRole    = errors.New("invalid role")

	// Access errors
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")

	// Connection errors
	ErrDuplicateConnection = errors.New("connection already registered")
	ErrConnectionNotFound  = errors.New("connection not found")

	// Storage errors
	ErrStoreUnavailable = errors.New("store unavailable")
)
