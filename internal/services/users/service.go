package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mcoot/bananaclick/internal/dependencies/clock"
	"github.com/mcoot/bananaclick/internal/model"
	"github.com/mcoot/bananaclick/internal/realtime"
	"github.com/mcoot/bananaclick/internal/services/auth"
	"github.com/mcoot/bananaclick/internal/services/counter"
	"github.com/mcoot/bananaclick/internal/services/presence"
	"github.com/mcoot/bananaclick/internal/storage"
)

// RankingPublisher recomputes and broadcasts the ranking. Admin edits publish
// before returning, so the caller's response and the broadcast agree.
type RankingPublisher interface {
	PublishNow(ctx context.Context)
}

// CreateParams holds the fields of a new user
type CreateParams struct {
	Username string
	Password string
	Role     model.Role // empty means player
}

// UpdateParams holds optional changes to a user; nil fields are left alone
type UpdateParams struct {
	Username *string
	Password *string
	Role     *model.Role
}

// Service implements user administration and announces every change to
// connected clients
type Service struct {
	storage    storage.Storage
	auth       *auth.Service
	counter    *counter.Service
	registry   *presence.Registry
	dispatcher *realtime.Dispatcher
	publisher  RankingPublisher
	clock      clock.Clock
	logger     *slog.Logger
}

// New creates a users Service
func New(
	store storage.Storage,
	authService *auth.Service,
	counterService *counter.Service,
	registry *presence.Registry,
	dispatcher *realtime.Dispatcher,
	publisher RankingPublisher,
	clk clock.Clock,
	logger *slog.Logger,
) *Service {
	return &Service{
		storage:    store,
		auth:       authService,
		counter:    counterService,
		registry:   registry,
		dispatcher: dispatcher,
		publisher:  publisher,
		clock:      clk,
		logger:     logger.With(slog.String("component", "users")),
	}
}

// Create adds a user with the given role
func (s *Service) Create(ctx context.Context, params CreateParams) (*model.User, error) {
	if params.Role == "" {
		params.Role = model.RolePlayer
	}
	if !params.Role.Valid() {
		return nil, model.ErrInvalidRole
	}
	if err := auth.ValidateUsername(params.Username); err != nil {
		return nil, err
	}
	hash, err := s.auth.HashPassword(params.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &model.User{
		ID:           model.UserID(uuid.NewString()),
		Username:     params.Username,
		PasswordHash: hash,
		Role:         params.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.storage.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user created",
		slog.String("user_id", string(user.ID)),
		slog.String("username", user.Username),
		slog.String("role", string(user.Role)))
	s.dispatcher.UserUpdated(user)
	if user.Role == model.RolePlayer {
		s.publisher.PublishNow(ctx)
	}
	return user, nil
}

// Get returns a single user
func (s *Service) Get(ctx context.Context, id model.UserID) (*model.User, error) {
	return s.storage.GetUser(ctx, id)
}

// List returns every user in creation order
func (s *Service) List(ctx context.Context) ([]*model.User, error) {
	return s.storage.ListUsers(ctx, storage.ListOptions{})
}

// Update applies an admin edit: rename, password change or role change
func (s *Service) Update(ctx context.Context, id model.UserID, params UpdateParams) (*model.User, error) {
	if params.Username != nil {
		if err := auth.ValidateUsername(*params.Username); err != nil {
			return nil, err
		}
	}
	if params.Role != nil && !params.Role.Valid() {
		return nil, model.ErrInvalidRole
	}
	var hash string
	if params.Password != nil {
		h, err := s.auth.HashPassword(*params.Password)
		if err != nil {
			return nil, err
		}
		hash = h
	}

	now := s.clock.Now()
	user, err := s.storage.UpdateUser(ctx, id, func(u *model.User) error {
		if params.Username != nil {
			u.Username = *params.Username
		}
		if params.Password != nil {
			u.PasswordHash = hash
		}
		if params.Role != nil {
			u.Role = *params.Role
		}
		u.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if params.Username != nil {
		s.registry.Rename(id, user.Username)
	}
	s.logger.Info("user updated", slog.String("user_id", string(id)))
	s.dispatcher.UserUpdated(user)
	if params.Username != nil || params.Role != nil {
		s.publisher.PublishNow(ctx)
	}
	return user, nil
}

// SetBlocked blocks or unblocks a user's increments
func (s *Service) SetBlocked(ctx context.Context, id model.UserID, blocked bool) (*model.User, error) {
	now := s.clock.Now()
	user, err := s.storage.UpdateUser(ctx, id, func(u *model.User) error {
		u.Blocked = blocked
		u.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user block changed",
		slog.String("user_id", string(id)),
		slog.Bool("blocked", blocked))
	s.dispatcher.UserUpdated(user)
	return user, nil
}

// ResetCounter sets a user's counter back to zero
func (s *Service) ResetCounter(ctx context.Context, id model.UserID) (*model.User, error) {
	user, err := s.counter.Reset(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publisher.PublishNow(ctx)
	return user, nil
}

// Delete removes a user and closes any connections still bound to it
func (s *Service) Delete(ctx context.Context, id model.UserID) error {
	if err := s.storage.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}

	s.logger.Info("user deleted", slog.String("user_id", string(id)))
	s.dispatcher.UserDeleted(id)
	s.dispatcher.DisconnectUser(id, "identity removed")
	s.publisher.PublishNow(ctx)
	return nil
}

// EnsureAdmin creates the bootstrap admin account if no user has that name
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	_, err := s.storage.GetUserByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, model.ErrUserNotFound) {
		return err
	}
	_, err = s.Create(ctx, CreateParams{Username: username, Password: password, Role: model.RoleAdmin})
	return err
}
