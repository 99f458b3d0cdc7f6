package presence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/bananaclick/internal/dependencies/mocks"
	"github.com/mcoot/bananaclick/internal/model"
	"github.com/mcoot/bananaclick/internal/storage/memory"
	"github.com/mcoot/bananaclick/internal/testutil"
)

type RegistrySuite struct {
	suite.Suite
	storage  *testutil.FlakyStorage
	registry *Registry
	ctx      context.Context
	alice    *model.User
	bob      *model.User
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.ctx = context.Background()
	s.storage = testutil.NewFlakyStorage(memory.New())
	clk := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.registry = NewRegistry(s.storage, clk, testutil.NopLogger())

	s.alice = &model.User{ID: "u-alice", Username: "alice", Role: model.RolePlayer}
	s.bob = &model.User{ID: "u-bob", Username: "bob", Role: model.RolePlayer}
	s.Require().NoError(s.storage.CreateUser(s.ctx, s.alice))
	s.Require().NoError(s.storage.CreateUser(s.ctx, s.bob))
}

func (s *RegistrySuite) isActive(id model.UserID) bool {
	u, err := s.storage.GetUser(s.ctx, id)
	s.Require().NoError(err)
	return u.Active
}

// Register tests

func (s *RegistrySuite) TestRegisterFirstConnectionEmitsPresence() {
	event, err := s.registry.Register(s.ctx, "c1", s.alice)
	s.Require().NoError(err)
	s.Require().NotNil(event)
	s.Equal(model.PresenceEvent{UserID: "u-alice", Username: "alice", Active: true}, *event)
	s.True(s.isActive("u-alice"))

	conn, ok := s.registry.Lookup("c1")
	s.Require().True(ok)
	s.Equal(model.UserID("u-alice"), conn.UserID)
	s.Equal(model.ConnAuthenticated, conn.State)
}

func (s *RegistrySuite) TestRegisterSecondConnectionIsSilent() {
	_, _ = s.registry.Register(s.ctx, "c1", s.alice)

	event, err := s.registry.Register(s.ctx, "c2", s.alice)
	s.Require().NoError(err)
	s.Nil(event)
	s.Equal(2, s.registry.Count())
	s.Equal(1, s.registry.ActiveUsers())
	for _, id := range []model.ConnectionID{"c1", "c2"} {
		conn, ok := s.registry.Lookup(id)
		s.Require().True(ok)
		s.Equal(model.UserID("u-alice"), conn.UserID)
	}
}

func (s *RegistrySuite) TestRegisterDuplicateConnection() {
	_, _ = s.registry.Register(s.ctx, "c1", s.alice)

	_, err := s.registry.Register(s.ctx, "c1", s.bob)
	s.ErrorIs(err, model.ErrDuplicateConnection)

	conn, _ := s.registry.Lookup("c1")
	s.Equal(model.UserID("u-alice"), conn.UserID)
	s.False(s.isActive("u-bob"))
}

func (s *RegistrySuite) TestRegisterStoreFailureRollsBack() {
	s.storage.Down.Store(true)

	_, err := s.registry.Register(s.ctx, "c1", s.alice)
	s.ErrorIs(err, model.ErrStoreUnavailable)

	_, ok := s.registry.Lookup("c1")
	s.False(ok)
	s.Equal(0, s.registry.ActiveUsers())
}

// Unregister tests

func (s *RegistrySuite) TestUnregisterLastConnectionEmitsInactive() {
	_, _ = s.registry.Register(s.ctx, "c1", s.alice)

	event, err := s.registry.Unregister(s.ctx, "c1")
	s.Require().NoError(err)
	s.Require().NotNil(event)
	s.False(event.Active)
	s.False(s.isActive("u-alice"))

	_, ok := s.registry.Lookup("c1")
	s.False(ok)
}

func (s *RegistrySuite) TestUnregisterWithMultipleConnectionsEmitsOnce() {
	_, _ = s.registry.Register(s.ctx, "c1", s.alice)
	_, _ = s.registry.Register(s.ctx, "c2", s.alice)

	var events []*model.PresenceEvent
	for _, id := range []model.ConnectionID{"c2", "c1"} {
		event, err := s.registry.Unregister(s.ctx, id)
		s.Require().NoError(err)
		if event != nil {
			events = append(events, event)
		}
		if id == "c2" {
			s.True(s.isActive("u-alice"))
		}
	}

	s.Require().Len(events, 1)
	s.False(events[0].Active)
	s.False(s.isActive("u-alice"))
}

func (s *RegistrySuite) TestUnregisterIsIdempotent() {
	_, _ = s.registry.Register(s.ctx, "c1", s.alice)
	_, _ = s.registry.Unregister(s.ctx, "c1")

	event, err := s.registry.Unregister(s.ctx, "c1")
	s.NoError(err)
	s.Nil(event)

	event, err = s.registry.Unregister(s.ctx, "never-registered")
	s.NoError(err)
	s.Nil(event)
}

func (s *RegistrySuite) TestUnregisterDeletedUserIsSilent() {
	_, _ = s.registry.Register(s.ctx, "c1", s.alice)
	s.Require().NoError(s.storage.DeleteUser(s.ctx, "u-alice"))

	event, err := s.registry.Unregister(s.ctx, "c1")
	s.NoError(err)
	s.Nil(event)
}

func (s *RegistrySuite) TestUnregisterStoreFailureStillRemovesBinding() {
	_, _ = s.registry.Register(s.ctx, "c1", s.alice)
	s.storage.Down.Store(true)

	event, err := s.registry.Unregister(s.ctx, "c1")
	s.ErrorIs(err, model.ErrStoreUnavailable)
	s.Require().NotNil(event)
	s.False(event.Active)
	s.Equal(0, s.registry.Count())
}

func (s *RegistrySuite) TestRename() {
	_, _ = s.registry.Register(s.ctx, "c1", s.alice)
	s.registry.Rename("u-alice", "alicia")

	conn, _ := s.registry.Lookup("c1")
	s.Equal("alicia", conn.Username)
}

// Concurrency tests

func (s *RegistrySuite) TestConcurrentConnectDisconnectSettles() {
	const n = 20

	var wg sync.WaitGroup
	var mu sync.Mutex
	active := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := model.ConnectionID(fmt.Sprintf("c%d", i))
			if event, err := s.registry.Register(s.ctx, id, s.alice); err == nil && event != nil {
				mu.Lock()
				active++
				mu.Unlock()
			}
			if event, err := s.registry.Unregister(s.ctx, id); err == nil && event != nil {
				mu.Lock()
				active--
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	// Every "present" event is matched by an "absent" one and the flag ends cleared
	s.Equal(0, active)
	s.Equal(0, s.registry.Count())
	s.False(s.isActive("u-alice"))
}
