package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mcoot/bananaclick/internal/dependencies/clock"
	"github.com/mcoot/bananaclick/internal/keylock"
	"github.com/mcoot/bananaclick/internal/model"
	"github.com/mcoot/bananaclick/internal/storage"
)

// Registry tracks live connections and the identity each one is bound to.
// It is the only writer of the binding table and of the stored presence flag.
type Registry struct {
	storage storage.Storage
	clock   clock.Clock
	logger  *slog.Logger
	locks   *keylock.Locker

	mu     sync.RWMutex
	conns  map[model.ConnectionID]*model.Connection
	byUser map[model.UserID]map[model.ConnectionID]struct{}
}

// NewRegistry creates an empty Registry
func NewRegistry(store storage.Storage, clk clock.Clock, logger *slog.Logger) *Registry {
	return &Registry{
		storage: store,
		clock:   clk,
		logger:  logger.With(slog.String("component", "presence")),
		locks:   keylock.New(),
		conns:   make(map[model.ConnectionID]*model.Connection),
		byUser:  make(map[model.UserID]map[model.ConnectionID]struct{}),
	}
}

// Register binds connID to user. It returns a presence event when this is the
// identity's first live connection and nil when the identity was already present.
func (r *Registry) Register(ctx context.Context, connID model.ConnectionID, user *model.User) (*model.PresenceEvent, error) {
	unlock := r.locks.Lock(string(user.ID))
	defer unlock()

	r.mu.Lock()
	if _, exists := r.conns[connID]; exists {
		r.mu.Unlock()
		r.logger.Error("connection registered twice",
			slog.String("conn_id", string(connID)),
			slog.String("user_id", string(user.ID)))
		return nil, model.ErrDuplicateConnection
	}
	conn := &model.Connection{
		ID:          connID,
		UserID:      user.ID,
		Username:    user.Username,
		State:       model.ConnAuthenticated,
		ConnectedAt: r.clock.Now(),
	}
	r.conns[connID] = conn
	first := len(r.byUser[user.ID]) == 0
	if first {
		r.byUser[user.ID] = make(map[model.ConnectionID]struct{})
	}
	r.byUser[user.ID][connID] = struct{}{}
	r.mu.Unlock()

	if !first {
		r.logger.Debug("additional connection for present user",
			slog.String("conn_id", string(connID)),
			slog.String("user_id", string(user.ID)))
		return nil, nil
	}

	if err := r.storage.SetPresence(ctx, user.ID, true); err != nil {
		r.remove(connID)
		return nil, fmt.Errorf("mark %s present: %w", user.ID, err)
	}

	r.logger.Info("user present",
		slog.String("conn_id", string(connID)),
		slog.String("user_id", string(user.ID)))
	return &model.PresenceEvent{UserID: user.ID, Username: user.Username, Active: true}, nil
}

// Unregister removes the binding for connID. When it was the identity's last
// live connection the stored flag is cleared and a presence event returned.
// Unknown or already removed connections are a no-op.
//
// A store failure while clearing the flag still returns the event alongside
// the error; the binding is gone either way.
func (r *Registry) Unregister(ctx context.Context, connID model.ConnectionID) (*model.PresenceEvent, error) {
	r.mu.RLock()
	conn, ok := r.conns[connID]
	var userID model.UserID
	if ok {
		userID = conn.UserID
	}
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	unlock := r.locks.Lock(string(userID))
	defer unlock()

	removed, last := r.remove(connID)
	if removed == nil || !last {
		return nil, nil
	}

	event := &model.PresenceEvent{UserID: removed.UserID, Username: removed.Username, Active: false}
	if err := r.storage.SetPresence(ctx, removed.UserID, false); err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			// Deleted while connected; nobody is left to observe the flag
			return nil, nil
		}
		return event, fmt.Errorf("mark %s absent: %w", removed.UserID, err)
	}

	r.logger.Info("user absent",
		slog.String("conn_id", string(connID)),
		slog.String("user_id", string(removed.UserID)))
	return event, nil
}

// remove drops a binding and reports whether it was the identity's last one
func (r *Registry) remove(connID model.ConnectionID) (*model.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	delete(r.conns, connID)
	conn.State = model.ConnDisconnected

	conns := r.byUser[conn.UserID]
	delete(conns, connID)
	if len(conns) > 0 {
		return conn, false
	}
	delete(r.byUser, conn.UserID)
	return conn, true
}

// Lookup returns a copy of the binding for connID
func (r *Registry) Lookup(connID model.ConnectionID) (model.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connID]
	if !ok {
		return model.Connection{}, false
	}
	return *conn, true
}

// Rename updates the cached username on every binding of userID
func (r *Registry) Rename(userID model.UserID, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.byUser[userID] {
		r.conns[id].Username = username
	}
}

// Count returns the number of live connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// ActiveUsers returns the number of identities with at least one live connection
func (r *Registry) ActiveUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
