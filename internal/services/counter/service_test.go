package counter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"github.com/mcoot/bananaclick/internal/dependencies/mocks"
	"github.com/mcoot/bananaclick/internal/model"
	"github.com/mcoot/bananaclick/internal/storage/memory"
	"github.com/mcoot/bananaclick/internal/testutil"
)

type recordingNotifier struct {
	mu     sync.Mutex
	values map[model.UserID][]int64
}

func (n *recordingNotifier) CounterChanged(user *model.User) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.values[user.ID] = append(n.values[user.ID], user.Counter)
}

func (n *recordingNotifier) seen(id model.UserID) []int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int64(nil), n.values[id]...)
}

type ServiceSuite struct {
	suite.Suite
	storage  *testutil.FlakyStorage
	notifier *recordingNotifier
	service  *Service
	ctx      context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.storage = testutil.NewFlakyStorage(memory.New())
	clk := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.notifier = &recordingNotifier{values: make(map[model.UserID][]int64)}
	s.service = New(s.storage, s.notifier, clk, testutil.NopLogger())
}

func (s *ServiceSuite) createUser(id, username string, counter int64, blocked bool) {
	s.Require().NoError(s.storage.CreateUser(s.ctx, &model.User{
		ID:       model.UserID(id),
		Username: username,
		Role:     model.RolePlayer,
		Counter:  counter,
		Blocked:  blocked,
	}))
}

func (s *ServiceSuite) counter(id model.UserID) int64 {
	u, err := s.storage.GetUser(s.ctx, id)
	s.Require().NoError(err)
	return u.Counter
}

// Increment tests

func (s *ServiceSuite) TestIncrementReturnsNewValue() {
	s.createUser("u-1", "alice", 5, false)

	user, err := s.service.Increment(s.ctx, "u-1")
	s.Require().NoError(err)
	s.Equal(int64(6), user.Counter)
	s.Equal(int64(6), s.counter("u-1"))
	s.Equal([]int64{6}, s.notifier.seen("u-1"))
}

func (s *ServiceSuite) TestIncrementBlockedIsForbidden() {
	s.createUser("u-1", "bob", 3, true)

	_, err := s.service.Increment(s.ctx, "u-1")
	s.ErrorIs(err, model.ErrForbidden)
	s.Equal(int64(3), s.counter("u-1"))
	s.Empty(s.notifier.seen("u-1"))
}

func (s *ServiceSuite) TestIncrementMissingUser() {
	_, err := s.service.Increment(s.ctx, "missing")
	s.ErrorIs(err, model.ErrUserNotFound)
}

func (s *ServiceSuite) TestIncrementStoreUnavailable() {
	s.createUser("u-1", "alice", 0, false)
	s.storage.Down.Store(true)

	_, err := s.service.Increment(s.ctx, "u-1")
	s.ErrorIs(err, model.ErrStoreUnavailable)
}

func (s *ServiceSuite) TestIncrementIgnoresCancellation() {
	s.createUser("u-1", "alice", 0, false)
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	user, err := s.service.Increment(ctx, "u-1")
	s.Require().NoError(err)
	s.Equal(int64(1), user.Counter)
}

func (s *ServiceSuite) TestConcurrentIncrementsAreNotLost() {
	s.createUser("u-1", "alice", 10, false)
	s.createUser("u-2", "bob", 0, false)

	const n = 200
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := s.service.Increment(s.ctx, "u-1")
			return err
		})
		g.Go(func() error {
			_, err := s.service.Increment(s.ctx, "u-2")
			return err
		})
	}
	s.Require().NoError(g.Wait())

	s.Equal(int64(10+n), s.counter("u-1"))
	s.Equal(int64(n), s.counter("u-2"))
	s.Equal(0, s.service.locks.Len())
}

func (s *ServiceSuite) TestConcurrentIncrementsAreAnnouncedInOrder() {
	s.createUser("u-1", "alice", 0, false)

	const n = 100
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := s.service.Increment(s.ctx, "u-1")
			return err
		})
	}
	s.Require().NoError(g.Wait())

	seen := s.notifier.seen("u-1")
	s.Require().Len(seen, n)
	for i, v := range seen {
		s.Equal(int64(i+1), v)
	}
}

// Reset tests

func (s *ServiceSuite) TestReset() {
	s.createUser("u-1", "alice", 42, true)

	user, err := s.service.Reset(s.ctx, "u-1")
	s.Require().NoError(err)
	s.Equal(int64(0), user.Counter)
	s.Equal(int64(0), s.counter("u-1"))
	s.Equal([]int64{0}, s.notifier.seen("u-1"))
}
