package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mcoot/bananaclick/internal/model"
	"github.com/mcoot/bananaclick/internal/realtime"
	"github.com/mcoot/bananaclick/internal/services/counter"
	"github.com/mcoot/bananaclick/internal/services/presence"
	"github.com/mcoot/bananaclick/internal/services/ranking"
)

// TokenValidator resolves a bearer credential to an identity
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*model.User, error)
}

// RankingTrigger schedules a ranking recompute and broadcast
type RankingTrigger interface {
	Trigger()
}

// Controller drives the lifecycle of a game connection: handshake,
// increments and disconnect
type Controller struct {
	validator  TokenValidator
	registry   *presence.Registry
	counter    *counter.Service
	ranking    *ranking.Service
	publisher  RankingTrigger
	dispatcher *realtime.Dispatcher
	logger     *slog.Logger
}

// Ensure Controller can serve the realtime transports
var _ realtime.Session = (*Controller)(nil)

// NewController creates a new game Controller
func NewController(
	validator TokenValidator,
	registry *presence.Registry,
	counterService *counter.Service,
	rankingService *ranking.Service,
	publisher RankingTrigger,
	dispatcher *realtime.Dispatcher,
	logger *slog.Logger,
) *Controller {
	return &Controller{
		validator:  validator,
		registry:   registry,
		counter:    counterService,
		ranking:    rankingService,
		publisher:  publisher,
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("component", "game")),
	}
}

// Connect authenticates a new connection, announces the identity's presence
// and sends the connection its initial ranking
func (c *Controller) Connect(ctx context.Context, client *realtime.Client, token string) (*model.User, error) {
	user, err := c.validator.ValidateToken(ctx, token)
	if err != nil {
		client.MarkDisconnected()
		return nil, err
	}

	if !client.Bind(user.ID) {
		return nil, fmt.Errorf("%w: %s is not connecting", model.ErrDuplicateConnection, client.ID())
	}

	presenceEvent, err := c.registry.Register(ctx, client.ID(), user)
	if err != nil {
		client.MarkDisconnected()
		return nil, err
	}

	c.dispatcher.Attach(client)
	if presenceEvent != nil {
		c.dispatcher.PresenceChanged(*presenceEvent)
	}

	snapshot, err := c.ranking.Snapshot(ctx)
	if err != nil {
		// The connection is still useful; the next ranking broadcast catches it up
		c.logger.Warn("initial ranking unavailable",
			slog.String("conn_id", string(client.ID())),
			slog.String("error", err.Error()))
	} else {
		c.dispatcher.SendTo(client.ID(), c.dispatcher.RankingEvent(snapshot))
	}

	c.logger.Info("connection authenticated",
		slog.String("conn_id", string(client.ID())),
		slog.String("user_id", string(user.ID)),
		slog.String("username", user.Username))
	return user, nil
}

// Increment adds one to the counter of the identity bound to the connection.
// The identity always comes from the binding, never from the client.
func (c *Controller) Increment(ctx context.Context, id model.ConnectionID) error {
	conn, ok := c.registry.Lookup(id)
	if !ok {
		return model.ErrConnectionNotFound
	}

	_, err := c.counter.Increment(ctx, conn.UserID)
	switch {
	case err == nil:
		c.publisher.Trigger()
		return nil

	case errors.Is(err, model.ErrForbidden):
		c.logger.Info("increment rejected for blocked user",
			slog.String("conn_id", string(id)),
			slog.String("user_id", string(conn.UserID)))
		c.dispatcher.SendError(id, "forbidden", "user is blocked")

	case errors.Is(err, model.ErrUserNotFound):
		c.logger.Warn("increment for removed user, closing connection",
			slog.String("conn_id", string(id)),
			slog.String("user_id", string(conn.UserID)))
		c.dispatcher.Disconnect(id, "identity removed")

	default:
		c.logger.Error("increment failed",
			slog.String("conn_id", string(id)),
			slog.String("user_id", string(conn.UserID)),
			slog.String("error", err.Error()))
		c.dispatcher.SendError(id, "store_unavailable", "try again")
	}
	return err
}

// Disconnect releases the connection's binding and announces the identity's
// absence if this was its last connection. Safe to call more than once.
func (c *Controller) Disconnect(ctx context.Context, client *realtime.Client) {
	client.MarkDisconnected()

	presenceEvent, err := c.registry.Unregister(ctx, client.ID())
	c.dispatcher.Detach(client)
	if err != nil {
		c.logger.Error("failed to clear presence",
			slog.String("conn_id", string(client.ID())),
			slog.String("error", err.Error()))
	}
	if presenceEvent != nil {
		c.dispatcher.PresenceChanged(*presenceEvent)
	}
}
