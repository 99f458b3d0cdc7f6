package realtime

import (
	"sync"
	"time"

	"github.com/mcoot/bananaclick/internal/model"
)

// DefaultSendBuffer is the number of events queued per client before drops
const DefaultSendBuffer = 256

// Client is the delivery endpoint for one connection, independent of transport.
// The hub owns the send channel and closes it on unregister.
type Client struct {
	id          model.ConnectionID
	send        chan model.Event
	connectedAt time.Time

	mu     sync.Mutex
	state  model.ConnState
	userID model.UserID

	done      chan struct{}
	closeOnce sync.Once
	reason    string
}

// NewClient creates a client in the Connecting state
func NewClient(id model.ConnectionID, bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = DefaultSendBuffer
	}
	return &Client{
		id:          id,
		send:        make(chan model.Event, bufferSize),
		connectedAt: time.Now(),
		state:       model.ConnConnecting,
		done:        make(chan struct{}),
	}
}

// ID returns the connection identifier
func (c *Client) ID() model.ConnectionID {
	return c.id
}

// UserID returns the bound identity, empty until Bind
func (c *Client) UserID() model.UserID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// State returns the lifecycle state
func (c *Client) State() model.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Bind attaches an authenticated identity. Only valid from Connecting.
func (c *Client) Bind(userID model.UserID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != model.ConnConnecting {
		return false
	}
	c.userID = userID
	c.state = model.ConnAuthenticated
	return true
}

// MarkDisconnected moves the client to its terminal state
func (c *Client) MarkDisconnected() {
	c.mu.Lock()
	c.state = model.ConnDisconnected
	c.mu.Unlock()
}

// Events is the stream of events to write to the peer.
// It is closed once the hub has unregistered the client.
func (c *Client) Events() <-chan model.Event {
	return c.send
}

// Done is closed when the server wants this connection terminated
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// CloseReason is the reason passed to the kick that closed Done
func (c *Client) CloseReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

func (c *Client) kick(reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.reason = reason
		c.mu.Unlock()
		close(c.done)
	})
}
