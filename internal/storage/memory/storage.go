package memory

import (
	"context"
	"sync"

	"github.com/mcoot/bananaclick/internal/model"
	"github.com/mcoot/bananaclick/internal/storage"
)

// Storage is an in-memory implementation of the storage interface.
// Users are copied on the way in and out so callers never share state with the store.
type Storage struct {
	mu sync.RWMutex

	users         map[model.UserID]*model.User
	usernameIndex map[string]model.UserID
	seq           int64
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		users:         make(map[model.UserID]*model.User),
		usernameIndex: make(map[string]model.UserID),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) CreateUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usernameIndex[user.Username]; ok {
		return model.ErrUsernameExists
	}
	s.seq++
	user.Seq = s.seq
	s.users[user.ID] = user.Clone()
	s.usernameIndex[user.Username] = user.ID
	return nil
}

func (s *Storage) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	return user.Clone(), nil
}

func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usernameIndex[username]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	user, ok := s.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	return user.Clone(), nil
}

func (s *Storage) SaveUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[user.ID]
	if !ok {
		return model.ErrUserNotFound
	}
	if existing.Username != user.Username {
		if _, taken := s.usernameIndex[user.Username]; taken {
			return model.ErrUsernameExists
		}
		delete(s.usernameIndex, existing.Username)
		s.usernameIndex[user.Username] = user.ID
	}
	s.users[user.ID] = user.Clone()
	return nil
}

func (s *Storage) UpdateUser(ctx context.Context, id model.UserID, fn storage.UpdateFunc) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	updated := existing.Clone()
	if err := fn(updated); err != nil {
		return nil, err
	}
	if updated.Username != existing.Username {
		if _, taken := s.usernameIndex[updated.Username]; taken {
			return nil, model.ErrUsernameExists
		}
		delete(s.usernameIndex, existing.Username)
		s.usernameIndex[updated.Username] = id
	}
	s.users[id] = updated
	return updated.Clone(), nil
}

func (s *Storage) DeleteUser(ctx context.Context, id model.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return model.ErrUserNotFound
	}
	delete(s.usernameIndex, user.Username)
	delete(s.users, id)
	return nil
}

func (s *Storage) ListUsers(ctx context.Context, opts storage.ListOptions) ([]*model.User, error) {
	s.mu.RLock()
	all := make([]*model.User, 0, len(s.users))
	for _, u := range s.users {
		all = append(all, u.Clone())
	}
	s.mu.RUnlock()
	return storage.Apply(all, opts), nil
}

// Presence operations

func (s *Storage) SetPresence(ctx context.Context, id model.UserID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return model.ErrUserNotFound
	}
	user.Active = active
	return nil
}

func (s *Storage) ResetPresence(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		u.Active = false
	}
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return nil
}

func (s *Storage) Close() error {
	return nil
}
