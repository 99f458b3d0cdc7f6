package game

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/mcoot/bananaclick/internal/dependencies/mocks"
	"github.com/mcoot/bananaclick/internal/model"
	"github.com/mcoot/bananaclick/internal/realtime"
	"github.com/mcoot/bananaclick/internal/services/auth"
	"github.com/mcoot/bananaclick/internal/services/counter"
	"github.com/mcoot/bananaclick/internal/services/presence"
	"github.com/mcoot/bananaclick/internal/services/ranking"
	"github.com/mcoot/bananaclick/internal/storage/memory"
	"github.com/mcoot/bananaclick/internal/testutil"
)

// syncTrigger publishes the ranking inline so every increment yields exactly
// one ranking broadcast
type syncTrigger struct {
	publisher *ranking.Publisher
}

func (t syncTrigger) Trigger() {
	t.publisher.PublishNow(context.Background())
}

type ControllerSuite struct {
	suite.Suite
	storage    *testutil.FlakyStorage
	clock      *mocks.MockClock
	auth       *auth.Service
	registry   *presence.Registry
	hub        *realtime.Hub
	controller *Controller
	ctx        context.Context
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) SetupTest() {
	s.ctx = context.Background()
	logger := testutil.NopLogger()
	s.storage = testutil.NewFlakyStorage(memory.New())
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.auth = auth.New(s.storage, s.clock, logger, auth.Config{Secret: "test-secret", BcryptCost: bcrypt.MinCost})
	s.registry = presence.NewRegistry(s.storage, s.clock, logger)

	s.hub = realtime.NewHub(logger, 0)
	go s.hub.Run()
	dispatcher := realtime.NewDispatcher(s.hub, s.clock, logger)

	rankingService := ranking.New(s.storage, logger, 0)
	publisher := ranking.NewPublisher(rankingService, dispatcher, logger)

	s.controller = NewController(
		s.auth,
		s.registry,
		counter.New(s.storage, dispatcher, s.clock, logger),
		rankingService,
		syncTrigger{publisher: publisher},
		dispatcher,
		logger,
	)
}

func (s *ControllerSuite) TearDownTest() {
	s.hub.Close()
}

// Helpers

func (s *ControllerSuite) createUser(username string, counterValue int64, blocked bool) (model.UserID, string) {
	session, err := s.auth.Register(s.ctx, username, "password123")
	s.Require().NoError(err)
	_, err = s.storage.UpdateUser(s.ctx, session.User.ID, func(u *model.User) error {
		u.Counter = counterValue
		u.Blocked = blocked
		return nil
	})
	s.Require().NoError(err)
	return session.User.ID, session.Token
}

func (s *ControllerSuite) connect(id model.ConnectionID, token string) *realtime.Client {
	client := realtime.NewClient(id, 0)
	_, err := s.controller.Connect(s.ctx, client, token)
	s.Require().NoError(err)
	return client
}

// next returns the next event delivered to client
func (s *ControllerSuite) next(client *realtime.Client) model.Event {
	select {
	case event, ok := <-client.Events():
		s.Require().True(ok, "event stream closed")
		return event
	case <-time.After(time.Second):
		s.FailNow("timed out waiting for event")
		return model.Event{}
	}
}

// expectQuiet asserts nothing else is delivered to client
func (s *ControllerSuite) expectQuiet(client *realtime.Client) {
	select {
	case event := <-client.Events():
		s.Failf("unexpected event", "%s: %+v", event.Type, event.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func (s *ControllerSuite) nextOfType(client *realtime.Client, t model.EventType) model.Event {
	event := s.next(client)
	s.Require().Equal(t, event.Type, "payload %+v", event.Payload)
	return event
}

func (s *ControllerSuite) storedCounter(id model.UserID) int64 {
	u, err := s.storage.GetUser(s.ctx, id)
	s.Require().NoError(err)
	return u.Counter
}

// Connect tests

func (s *ControllerSuite) TestConnectAnnouncesPresenceThenRanking() {
	aliceID, token := s.createUser("alice", 5, false)

	client := s.connect("c1", token)

	presenceEvent := s.nextOfType(client, model.EventPresence).Payload.(model.PresenceEvent)
	s.Equal(aliceID, presenceEvent.UserID)
	s.True(presenceEvent.Active)

	rankingEvent := s.nextOfType(client, model.EventRanking).Payload.(model.RankingEvent)
	entry, ok := rankingEvent.Entries.Find(aliceID)
	s.Require().True(ok)
	s.Equal(int64(5), entry.Counter)

	s.Equal(model.ConnAuthenticated, client.State())
	s.Equal(aliceID, client.UserID())
}

func (s *ControllerSuite) TestConnectRejectsBadToken() {
	client := realtime.NewClient("c1", 0)

	_, err := s.controller.Connect(s.ctx, client, "garbage")
	s.ErrorIs(err, model.ErrUnauthenticated)
	s.Equal(model.ConnDisconnected, client.State())
	s.Equal(0, s.registry.Count())
	s.Equal(0, s.hub.ClientCount())
}

func (s *ControllerSuite) TestConnectStoreUnavailable() {
	_, token := s.createUser("alice", 0, false)
	s.storage.Down.Store(true)

	_, err := s.controller.Connect(s.ctx, realtime.NewClient("c1", 0), token)
	s.ErrorIs(err, model.ErrStoreUnavailable)
	s.Equal(0, s.registry.Count())
}

func (s *ControllerSuite) TestConnectDuplicateConnectionID() {
	_, aliceToken := s.createUser("alice", 0, false)
	_, bobToken := s.createUser("bob", 0, false)
	s.connect("c1", aliceToken)

	_, err := s.controller.Connect(s.ctx, realtime.NewClient("c1", 0), bobToken)
	s.ErrorIs(err, model.ErrDuplicateConnection)

	conn, _ := s.registry.Lookup("c1")
	s.Equal("alice", conn.Username)
}

func (s *ControllerSuite) TestSecondConnectionDoesNotRepeatPresence() {
	_, token := s.createUser("alice", 0, false)
	first := s.connect("c1", token)
	s.nextOfType(first, model.EventPresence)
	s.nextOfType(first, model.EventRanking)

	second := s.connect("c2", token)

	s.nextOfType(second, model.EventRanking)
	s.expectQuiet(first)
}

// Increment tests

func (s *ControllerSuite) TestAliceIncrementsThreeTimes() {
	aliceID, token := s.createUser("alice", 5, false)
	client := s.connect("c1", token)
	s.nextOfType(client, model.EventPresence)
	s.nextOfType(client, model.EventRanking)

	for _, want := range []int64{6, 7, 8} {
		s.Require().NoError(s.controller.Increment(s.ctx, "c1"))

		counterEvent := s.nextOfType(client, model.EventCounter).Payload.(model.CounterEvent)
		s.Equal(aliceID, counterEvent.UserID)
		s.Equal(want, counterEvent.Value)

		rankingEvent := s.nextOfType(client, model.EventRanking).Payload.(model.RankingEvent)
		entry, ok := rankingEvent.Entries.Find(aliceID)
		s.Require().True(ok)
		s.Equal(want, entry.Counter)
	}

	s.Equal(int64(8), s.storedCounter(aliceID))
	s.expectQuiet(client)
}

func (s *ControllerSuite) TestBlockedIncrementIsForbidden() {
	_, aliceToken := s.createUser("alice", 0, false)
	bobID, bobToken := s.createUser("bob", 3, true)

	observer := s.connect("c1", aliceToken)
	bob := s.connect("c2", bobToken)
	s.nextOfType(observer, model.EventPresence) // alice
	s.nextOfType(observer, model.EventRanking)
	s.nextOfType(observer, model.EventPresence) // bob
	s.nextOfType(bob, model.EventPresence)
	s.nextOfType(bob, model.EventRanking)

	err := s.controller.Increment(s.ctx, "c2")
	s.ErrorIs(err, model.ErrForbidden)

	errorEvent := s.nextOfType(bob, model.EventError).Payload.(model.ErrorEvent)
	s.Equal("forbidden", errorEvent.Code)
	s.expectQuiet(bob)
	s.expectQuiet(observer)
	s.Equal(int64(3), s.storedCounter(bobID))
}

func (s *ControllerSuite) TestIncrementUnknownConnection() {
	s.ErrorIs(s.controller.Increment(s.ctx, "nope"), model.ErrConnectionNotFound)
}

func (s *ControllerSuite) TestIncrementForRemovedUserKicksConnection() {
	aliceID, token := s.createUser("alice", 0, false)
	client := s.connect("c1", token)
	s.Require().NoError(s.storage.DeleteUser(s.ctx, aliceID))

	err := s.controller.Increment(s.ctx, "c1")
	s.ErrorIs(err, model.ErrUserNotFound)

	select {
	case <-client.Done():
		s.Equal("identity removed", client.CloseReason())
	case <-time.After(time.Second):
		s.FailNow("connection was not kicked")
	}
}

func (s *ControllerSuite) TestIncrementStoreUnavailableKeepsConnection() {
	_, token := s.createUser("alice", 0, false)
	client := s.connect("c1", token)
	s.nextOfType(client, model.EventPresence)
	s.nextOfType(client, model.EventRanking)

	s.storage.Down.Store(true)
	err := s.controller.Increment(s.ctx, "c1")
	s.ErrorIs(err, model.ErrStoreUnavailable)

	errorEvent := s.nextOfType(client, model.EventError).Payload.(model.ErrorEvent)
	s.Equal("store_unavailable", errorEvent.Code)

	s.storage.Down.Store(false)
	s.Require().NoError(s.controller.Increment(s.ctx, "c1"))
	s.Equal(int64(1), s.nextOfType(client, model.EventCounter).Payload.(model.CounterEvent).Value)
}

func (s *ControllerSuite) TestConcurrentIncrementsAcrossConnections() {
	aliceID, token := s.createUser("alice", 0, false)
	const conns = 4
	const perConn = 25
	for i := 0; i < conns; i++ {
		s.connect(model.ConnectionID(fmt.Sprintf("c%d", i)), token)
	}

	var g errgroup.Group
	for i := 0; i < conns; i++ {
		id := model.ConnectionID(fmt.Sprintf("c%d", i))
		g.Go(func() error {
			for j := 0; j < perConn; j++ {
				if err := s.controller.Increment(s.ctx, id); err != nil {
					return err
				}
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	s.Equal(int64(conns*perConn), s.storedCounter(aliceID))
}

// Disconnect tests

func (s *ControllerSuite) TestLastDisconnectEmitsOneInactiveEvent() {
	aliceID, aliceToken := s.createUser("alice", 0, false)
	_, carolToken := s.createUser("carol", 0, false)

	c1 := s.connect("c1", aliceToken)
	c2 := s.connect("c2", aliceToken)
	observer := s.connect("c3", carolToken)
	s.nextOfType(observer, model.EventPresence) // carol
	s.nextOfType(observer, model.EventRanking)

	s.controller.Disconnect(s.ctx, c1)
	s.expectQuiet(observer)

	s.controller.Disconnect(s.ctx, c2)
	presenceEvent := s.nextOfType(observer, model.EventPresence).Payload.(model.PresenceEvent)
	s.Equal(aliceID, presenceEvent.UserID)
	s.False(presenceEvent.Active)

	// Disconnecting again is a no-op
	s.controller.Disconnect(s.ctx, c2)
	s.expectQuiet(observer)

	u, _ := s.storage.GetUser(s.ctx, aliceID)
	s.False(u.Active)
}

func (s *ControllerSuite) TestDisconnectClosesEventStream() {
	_, token := s.createUser("alice", 0, false)
	client := s.connect("c1", token)

	s.controller.Disconnect(s.ctx, client)

	s.Equal(model.ConnDisconnected, client.State())
	s.Eventually(func() bool {
		for {
			select {
			case _, ok := <-client.Events():
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, 5*time.Millisecond)
}

func (s *ControllerSuite) TestReconnectAndIncrement() {
	aliceID, token := s.createUser("alice", 10, false)
	first := s.connect("c1", token)
	s.controller.Disconnect(s.ctx, first)

	client := s.connect("c2", token)
	s.nextOfType(client, model.EventPresence)
	s.nextOfType(client, model.EventRanking)

	s.Require().NoError(s.controller.Increment(s.ctx, "c2"))

	s.Equal(int64(11), s.nextOfType(client, model.EventCounter).Payload.(model.CounterEvent).Value)
	rankingEvent := s.nextOfType(client, model.EventRanking).Payload.(model.RankingEvent)
	entry, ok := rankingEvent.Entries.Find(aliceID)
	s.Require().True(ok)
	s.Equal(int64(11), entry.Counter)
}
