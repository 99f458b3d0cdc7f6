package counter

import (
	"context"
	"log/slog"

	"github.com/mcoot/bananaclick/internal/dependencies/clock"
	"github.com/mcoot/bananaclick/internal/keylock"
	"github.com/mcoot/bananaclick/internal/model"
	"github.com/mcoot/bananaclick/internal/storage"
)

// Notifier announces a committed counter value
type Notifier interface {
	CounterChanged(user *model.User)
}

// Service applies counter mutations, at most one in flight per identity.
// Each committed value is announced before the identity's lock is released,
// so observers see an identity's values in commit order.
type Service struct {
	storage  storage.Storage
	notifier Notifier
	clock    clock.Clock
	logger   *slog.Logger
	locks    *keylock.Locker
}

// New creates a new counter Service
func New(store storage.Storage, notifier Notifier, clk clock.Clock, logger *slog.Logger) *Service {
	return &Service{
		storage:  store,
		notifier: notifier,
		clock:    clk,
		logger:   logger.With(slog.String("component", "counter")),
		locks:    keylock.New(),
	}
}

// Increment adds one to the user's counter and returns the updated user.
//
// The caller's cancellation is ignored: once started the write completes even
// if the requesting connection goes away.
func (s *Service) Increment(ctx context.Context, id model.UserID) (*model.User, error) {
	return s.mutate(context.WithoutCancel(ctx), id, func(u *model.User) error {
		if u.Blocked {
			return model.ErrForbidden
		}
		u.Counter++
		return nil
	})
}

// Reset sets the user's counter back to zero
func (s *Service) Reset(ctx context.Context, id model.UserID) (*model.User, error) {
	user, err := s.mutate(ctx, id, func(u *model.User) error {
		u.Counter = 0
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("counter reset", slog.String("user_id", string(id)))
	return user, nil
}

func (s *Service) mutate(ctx context.Context, id model.UserID, fn storage.UpdateFunc) (*model.User, error) {
	unlock := s.locks.Lock(string(id))
	defer unlock()

	now := s.clock.Now()
	user, err := s.storage.UpdateUser(ctx, id, func(u *model.User) error {
		if err := fn(u); err != nil {
			return err
		}
		u.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.CounterChanged(user)
	return user, nil
}
