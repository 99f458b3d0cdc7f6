package testutil

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/mcoot/bananaclick/internal/model"
	"github.com/mcoot/bananaclick/internal/storage"
)

var errInjected = errors.New("injected outage")

// FlakyStorage wraps a Storage and fails every call with
// model.ErrStoreUnavailable while Down is set.
type FlakyStorage struct {
	storage.Storage
	Down atomic.Bool
}

// Ensure FlakyStorage implements the interface
var _ storage.Storage = (*FlakyStorage)(nil)

// NewFlakyStorage wraps inner
func NewFlakyStorage(inner storage.Storage) *FlakyStorage {
	return &FlakyStorage{Storage: inner}
}

func (f *FlakyStorage) check() error {
	if f.Down.Load() {
		return storage.Unavailable(errInjected)
	}
	return nil
}

func (f *FlakyStorage) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.Storage.GetUser(ctx, id)
}

func (f *FlakyStorage) UpdateUser(ctx context.Context, id model.UserID, fn storage.UpdateFunc) (*model.User, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.Storage.UpdateUser(ctx, id, fn)
}

func (f *FlakyStorage) ListUsers(ctx context.Context, opts storage.ListOptions) ([]*model.User, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return f.Storage.ListUsers(ctx, opts)
}

func (f *FlakyStorage) SetPresence(ctx context.Context, id model.UserID, active bool) error {
	if err := f.check(); err != nil {
		return err
	}
	return f.Storage.SetPresence(ctx, id, active)
}

func (f *FlakyStorage) Ping(ctx context.Context) error {
	if err := f.check(); err != nil {
		return err
	}
	return f.Storage.Ping(ctx)
}
