package storage

import (
	"errors"
	"fmt"

	"github.com/mcoot/bananaclick/internal/model"
)

// Unavailable wraps a backend I/O failure so callers can classify it with
// errors.Is(err, model.ErrStoreUnavailable). Domain errors pass through untouched.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrUserNotFound) ||
		errors.Is(err, model.ErrUsernameExists) ||
		errors.Is(err, model.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
}
