package realtime

import (
	"log/slog"

	"github.com/mcoot/bananaclick/internal/dependencies/clock"
	"github.com/mcoot/bananaclick/internal/model"
)

// Dispatcher turns state changes into events and routes them to their audience
type Dispatcher struct {
	hub    *Hub
	clock  clock.Clock
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher on top of hub
func NewDispatcher(hub *Hub, clk clock.Clock, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		hub:    hub,
		clock:  clk,
		logger: logger.With(slog.String("component", "dispatcher")),
	}
}

func (d *Dispatcher) event(t model.EventType, payload any) model.Event {
	return model.Event{Type: t, Timestamp: d.clock.Now(), Payload: payload}
}

// Attach starts delivering events to client
func (d *Dispatcher) Attach(client *Client) {
	d.hub.Register(client)
}

// Detach stops delivering events to client and closes its stream
func (d *Dispatcher) Detach(client *Client) {
	d.hub.Unregister(client)
}

// PresenceChanged tells every connection that a user came or went
func (d *Dispatcher) PresenceChanged(p model.PresenceEvent) {
	d.hub.Broadcast(d.event(model.EventPresence, p))
}

// CounterChanged tells every connection a user's new counter value.
// Admin views need all values; player clients filter by their own identity.
func (d *Dispatcher) CounterChanged(user *model.User) {
	d.hub.Broadcast(d.event(model.EventCounter, model.CounterEvent{
		UserID:   user.ID,
		Username: user.Username,
		Value:    user.Counter,
	}))
}

// RankingChanged sends a fresh leaderboard to every connection
func (d *Dispatcher) RankingChanged(snapshot model.RankingSnapshot) {
	d.hub.Broadcast(d.RankingEvent(snapshot))
}

// RankingEvent wraps a snapshot in an event, for unicast on connect
func (d *Dispatcher) RankingEvent(snapshot model.RankingSnapshot) model.Event {
	return d.event(model.EventRanking, model.RankingEvent{Entries: snapshot})
}

// SendTo delivers an event to one connection
func (d *Dispatcher) SendTo(id model.ConnectionID, event model.Event) {
	d.hub.SendTo(id, event)
}

// SendError reports a failed request to the connection that made it
func (d *Dispatcher) SendError(id model.ConnectionID, code, message string) {
	d.hub.SendTo(id, d.event(model.EventError, model.ErrorEvent{Code: code, Message: message}))
}

// UserUpdated tells every connection about a created or modified user
func (d *Dispatcher) UserUpdated(user *model.User) {
	d.hub.Broadcast(d.event(model.EventUserUpdated, model.UserUpdatedFromUser(user)))
}

// UserDeleted tells every connection a user was removed
func (d *Dispatcher) UserDeleted(id model.UserID) {
	d.hub.Broadcast(d.event(model.EventUserDeleted, model.UserDeletedEvent{UserID: id}))
}

// Disconnect asks the transport to close one connection
func (d *Dispatcher) Disconnect(id model.ConnectionID, reason string) {
	if d.hub.Kick(id, reason) {
		d.logger.Info("connection kicked", slog.String("conn_id", string(id)), slog.String("reason", reason))
	}
}

// DisconnectUser closes every connection bound to a user
func (d *Dispatcher) DisconnectUser(id model.UserID, reason string) {
	if n := d.hub.KickUser(id, reason); n > 0 {
		d.logger.Info("user kicked",
			slog.String("user_id", string(id)),
			slog.String("reason", reason),
			slog.Int("connections", n))
	}
}

// ConnectionCount returns the number of attached clients
func (d *Dispatcher) ConnectionCount() int {
	return d.hub.ClientCount()
}
