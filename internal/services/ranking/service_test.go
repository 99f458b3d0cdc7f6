package ranking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/bananaclick/internal/model"
	"github.com/mcoot/bananaclick/internal/storage/memory"
	"github.com/mcoot/bananaclick/internal/testutil"
)

type ServiceSuite struct {
	suite.Suite
	storage *memory.Storage
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.storage = memory.New()
	s.service = New(s.storage, testutil.NopLogger(), 0)
}

func (s *ServiceSuite) createUser(id, username string, role model.Role, counter int64) {
	s.Require().NoError(s.storage.CreateUser(s.ctx, &model.User{
		ID:       model.UserID(id),
		Username: username,
		Role:     role,
		Counter:  counter,
	}))
}

func (s *ServiceSuite) TestSnapshotSortedDescending() {
	s.createUser("u-1", "alice", model.RolePlayer, 5)
	s.createUser("u-2", "bob", model.RolePlayer, 12)
	s.createUser("u-3", "carol", model.RolePlayer, 0)
	s.createUser("u-4", "dave", model.RolePlayer, 5)

	snapshot, err := s.service.Snapshot(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(snapshot, 4)

	for i := 1; i < len(snapshot); i++ {
		s.GreaterOrEqual(snapshot[i-1].Counter, snapshot[i].Counter)
	}
	s.Equal("bob", snapshot[0].Username)
	s.Equal("alice", snapshot[1].Username) // tie broken by creation order
	s.Equal("dave", snapshot[2].Username)
	s.Equal("carol", snapshot[3].Username)
}

func (s *ServiceSuite) TestSnapshotExcludesAdmins() {
	s.createUser("u-1", "alice", model.RolePlayer, 5)
	s.createUser("u-2", "root", model.RoleAdmin, 1000)

	snapshot, err := s.service.Snapshot(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(snapshot, 1)
	_, found := snapshot.Find("u-2")
	s.False(found)
}

func (s *ServiceSuite) TestSnapshotTruncatesToDefaultLimit() {
	for i := 0; i < DefaultLimit+20; i++ {
		s.createUser(fmt.Sprintf("u-%d", i), fmt.Sprintf("user%d", i), model.RolePlayer, int64(i))
	}

	snapshot, err := s.service.Snapshot(s.ctx)
	s.Require().NoError(err)
	s.Len(snapshot, DefaultLimit)
	s.Equal(int64(DefaultLimit+19), snapshot[0].Counter)
}

func (s *ServiceSuite) TestSnapshotEmpty() {
	snapshot, err := s.service.Snapshot(s.ctx)
	s.Require().NoError(err)
	s.NotNil(snapshot)
	s.Empty(snapshot)
}

func (s *ServiceSuite) TestSnapshotReflectsStoreChanges() {
	s.createUser("u-1", "alice", model.RolePlayer, 5)
	s.createUser("u-2", "bob", model.RolePlayer, 6)

	_, err := s.storage.UpdateUser(s.ctx, "u-1", func(u *model.User) error {
		u.Counter = 10
		return nil
	})
	s.Require().NoError(err)

	snapshot, err := s.service.Snapshot(s.ctx)
	s.Require().NoError(err)
	s.Equal("alice", snapshot[0].Username)
	s.Equal(int64(10), snapshot[0].Counter)
}

func (s *ServiceSuite) TestSnapshotStoreUnavailable() {
	flaky := testutil.NewFlakyStorage(s.storage)
	flaky.Down.Store(true)
	service := New(flaky, testutil.NopLogger(), 0)

	_, err := service.Snapshot(s.ctx)
	s.ErrorIs(err, model.ErrStoreUnavailable)
}

func (s *ServiceSuite) TestSharedMatchesSnapshot() {
	s.createUser("u-1", "alice", model.RolePlayer, 5)

	var wg sync.WaitGroup
	results := make([]model.RankingSnapshot, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snapshot, err := s.service.Shared(s.ctx)
			s.NoError(err)
			results[i] = snapshot
		}(i)
	}
	wg.Wait()

	for _, snapshot := range results {
		s.Equal(model.RankingSnapshot{{UserID: "u-1", Username: "alice", Counter: 5}}, snapshot)
	}
}

// Publisher tests

type recordingBroadcaster struct {
	mu        sync.Mutex
	snapshots []model.RankingSnapshot
}

func (r *recordingBroadcaster) RankingChanged(snapshot model.RankingSnapshot) {
	r.mu.Lock()
	r.snapshots = append(r.snapshots, snapshot)
	r.mu.Unlock()
}

func (r *recordingBroadcaster) all() []model.RankingSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.RankingSnapshot(nil), r.snapshots...)
}

func (s *ServiceSuite) TestPublisherLastBroadcastReflectsStore() {
	s.createUser("u-1", "alice", model.RolePlayer, 0)

	out := &recordingBroadcaster{}
	publisher := NewPublisher(s.service, out, testutil.NopLogger())
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go publisher.Run(ctx)

	const n = 50
	for i := 0; i < n; i++ {
		_, err := s.storage.UpdateUser(s.ctx, "u-1", func(u *model.User) error {
			u.Counter++
			return nil
		})
		s.Require().NoError(err)
		publisher.Trigger()
	}

	s.Eventually(func() bool {
		snapshots := out.all()
		if len(snapshots) == 0 {
			return false
		}
		last := snapshots[len(snapshots)-1]
		entry, ok := last.Find("u-1")
		return ok && entry.Counter == n
	}, time.Second, 5*time.Millisecond)

	s.LessOrEqual(len(out.all()), n)
}

func (s *ServiceSuite) TestPublisherTriggerNeverBlocks() {
	publisher := NewPublisher(s.service, &recordingBroadcaster{}, testutil.NopLogger())

	// Not running: triggers must collapse instead of blocking
	for i := 0; i < 10; i++ {
		publisher.Trigger()
	}
	s.Len(publisher.dirty, 1)
}

func (s *ServiceSuite) TestPublishNow() {
	s.createUser("u-1", "alice", model.RolePlayer, 7)
	out := &recordingBroadcaster{}
	publisher := NewPublisher(s.service, out, testutil.NopLogger())

	publisher.PublishNow(s.ctx)

	snapshots := out.all()
	s.Require().Len(snapshots, 1)
	s.Equal(int64(7), snapshots[0][0].Counter)
}

func (s *ServiceSuite) TestPublisherSkipsOnStoreFailure() {
	flaky := testutil.NewFlakyStorage(s.storage)
	flaky.Down.Store(true)
	out := &recordingBroadcaster{}
	publisher := NewPublisher(New(flaky, testutil.NopLogger(), 0), out, testutil.NopLogger())

	publisher.PublishNow(s.ctx)
	s.Empty(out.all())
}
