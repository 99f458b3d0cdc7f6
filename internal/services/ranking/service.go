package ranking

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/mcoot/bananaclick/internal/model"
	"github.com/mcoot/bananaclick/internal/storage"
)

// DefaultLimit is the number of entries in a snapshot
const DefaultLimit = 100

// Service computes the leaderboard from the store
type Service struct {
	storage storage.Storage
	logger  *slog.Logger
	limit   int

	group singleflight.Group
}

// New creates a ranking Service. A non-positive limit means DefaultLimit.
func New(store storage.Storage, logger *slog.Logger, limit int) *Service {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Service{
		storage: store,
		logger:  logger.With(slog.String("component", "ranking")),
		limit:   limit,
	}
}

// Snapshot returns players ordered by counter descending, ties in creation
// order, truncated to the configured limit. It always reads the store.
func (s *Service) Snapshot(ctx context.Context) (model.RankingSnapshot, error) {
	opts := storage.ListOptions{
		Role:      model.RolePlayer,
		ByCounter: true,
		Limit:     s.limit,
	}
	users, err := s.storage.ListUsers(ctx, opts)
	if err != nil {
		return nil, err
	}

	// Re-apply so ordering never depends on the backend
	users = storage.Apply(users, opts)

	snapshot := make(model.RankingSnapshot, len(users))
	for i, u := range users {
		snapshot[i] = model.RankingEntry{UserID: u.ID, Username: u.Username, Counter: u.Counter}
	}
	return snapshot, nil
}

// Shared is Snapshot with concurrent callers sharing one in-flight query
func (s *Service) Shared(ctx context.Context) (model.RankingSnapshot, error) {
	v, err, shared := s.group.Do("snapshot", func() (interface{}, error) {
		return s.Snapshot(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("ranking query shared")
	}
	return v.(model.RankingSnapshot), nil
}
