package storage

import (
	"context"

	"github.com/mcoot/bananaclick/internal/model"
)

// ListOptions filters and orders ListUsers results
type ListOptions struct {
	// Role restricts results to one role; empty means all roles
	Role model.Role
	// ByCounter orders by counter descending, then creation order.
	// When false results are in creation order.
	ByCounter bool
	// Limit caps the number of results; zero means no limit
	Limit int
}

// UpdateFunc mutates a user inside an atomic read-modify-write.
// Returning an error aborts the update and nothing is written.
type UpdateFunc func(u *model.User) error

// Storage defines the interface for user persistence
type Storage interface {
	// CreateUser assigns the creation sequence and saves a new user.
	// Fails with model.ErrUsernameExists if the username is taken.
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id model.UserID) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	// SaveUser overwrites an existing user, keeping the username index consistent
	SaveUser(ctx context.Context, user *model.User) error
	// UpdateUser applies fn to the stored user atomically and returns the result
	UpdateUser(ctx context.Context, id model.UserID, fn UpdateFunc) (*model.User, error)
	DeleteUser(ctx context.Context, id model.UserID) error
	ListUsers(ctx context.Context, opts ListOptions) ([]*model.User, error)

	// Presence operations
	SetPresence(ctx context.Context, id model.UserID, active bool) error
	// ResetPresence marks every user inactive (startup, no connections exist yet)
	ResetPresence(ctx context.Context) error

	Ping(ctx context.Context) error
	Close() error
}
