package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/bananaclick/internal/model"
)

// DefaultQueueSize bounds the hub's outbound queue
const DefaultQueueSize = 1024

type deliveryKind int

const (
	deliverEvent deliveryKind = iota
	deliverRegister
	deliverUnregister
)

// delivery is one queued hub operation. Events with an empty target go to
// every client; register and unregister carry the client and an ack that is
// closed once the client table reflects them.
type delivery struct {
	kind   deliveryKind
	target model.ConnectionID
	event  model.Event
	client *Client
	ack    chan struct{}
}

// Hub fans events out to registered clients. Broadcasts, unicasts and
// registrations share one queue, so a client observes exactly the events
// published after it was registered, in the order they were published.
type Hub struct {
	clients map[model.ConnectionID]*Client
	mu      sync.RWMutex
	logger  *slog.Logger

	outbound  chan delivery
	done      chan struct{}
	closeOnce sync.Once
}

// NewHub creates a Hub. Call Run to start delivering.
func NewHub(logger *slog.Logger, queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		clients:  make(map[model.ConnectionID]*Client),
		logger:   logger.With(slog.String("component", "hub")),
		outbound: make(chan delivery, queueSize),
		done:     make(chan struct{}),
	}
}

// Run starts the hub's event loop
func (h *Hub) Run() {
	h.logger.Info("hub started")
	for {
		select {
		case d := <-h.outbound:
			switch d.kind {
			case deliverRegister:
				h.add(d.client)
				close(d.ack)
			case deliverUnregister:
				h.remove(d.client)
				close(d.ack)
			default:
				h.deliver(d)
			}

		case <-h.done:
			h.mu.Lock()
			clientCount := len(h.clients)
			for id, client := range h.clients {
				close(client.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			h.logger.Info("hub stopped", slog.Int("disconnected_clients", clientCount))
			return
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	if _, exists := h.clients[client.id]; exists {
		h.mu.Unlock()
		h.logger.Error("client registered twice", slog.String("conn_id", string(client.id)))
		client.kick("duplicate connection")
		return
	}
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client registered",
		slog.String("conn_id", string(client.id)),
		slog.String("user_id", string(client.UserID())),
		slog.Int("total_clients", clientCount))
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	current, ok := h.clients[client.id]
	if !ok || current != client {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.id)
	close(client.send)
	clientCount := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client unregistered",
		slog.String("conn_id", string(client.id)),
		slog.Duration("connection_duration", time.Since(client.connectedAt)),
		slog.Int("total_clients", clientCount))
}

func (h *Hub) deliver(d delivery) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if d.target != "" {
		client, ok := h.clients[d.target]
		if !ok {
			return
		}
		select {
		case client.send <- d.event:
		default:
			h.logger.Warn("message dropped - client buffer full",
				slog.String("conn_id", string(client.id)),
				slog.String("event", string(d.event.Type)))
		}
		return
	}

	sentCount := 0
	droppedCount := 0
	for _, client := range h.clients {
		select {
		case client.send <- d.event:
			sentCount++
		default:
			droppedCount++
			h.logger.Warn("message dropped - client buffer full",
				slog.String("conn_id", string(client.id)),
				slog.String("event", string(d.event.Type)))
		}
	}
	if droppedCount > 0 {
		h.logger.Warn("broadcast partial failure",
			slog.String("event", string(d.event.Type)),
			slog.Int("sent", sentCount),
			slog.Int("dropped", droppedCount))
	}
}

// Register adds a client and returns once it is in the client table. It
// receives every event published after Register returns and none published
// before it was called.
func (h *Hub) Register(client *Client) {
	if !h.control(delivery{kind: deliverRegister, client: client}) {
		client.kick("server shutting down")
	}
}

// Unregister removes a client and closes its event stream
func (h *Hub) Unregister(client *Client) {
	h.control(delivery{kind: deliverUnregister, client: client})
}

// control queues a register or unregister behind pending events and waits
// for the run loop to apply it. Unlike events it is never dropped. It reports
// false if the hub stopped first.
func (h *Hub) control(d delivery) bool {
	d.ack = make(chan struct{})
	select {
	case h.outbound <- d:
	case <-h.done:
		return false
	}
	select {
	case <-d.ack:
		return true
	case <-h.done:
		return false
	}
}

// Broadcast queues an event for every client
func (h *Hub) Broadcast(event model.Event) {
	h.enqueue(delivery{event: event})
}

// SendTo queues an event for a single client
func (h *Hub) SendTo(id model.ConnectionID, event model.Event) {
	h.enqueue(delivery{target: id, event: event})
}

func (h *Hub) enqueue(d delivery) {
	select {
	case h.outbound <- d:
	default:
		h.logger.Warn("event dropped - hub queue full", slog.String("event", string(d.event.Type)))
	}
}

// Kick asks the transport serving id to terminate the connection
func (h *Hub) Kick(id model.ConnectionID, reason string) bool {
	h.mu.RLock()
	client, ok := h.clients[id]
	h.mu.RUnlock()
	if ok {
		client.kick(reason)
	}
	return ok
}

// KickUser kicks every client bound to userID and returns how many it found
func (h *Hub) KickUser(userID model.UserID, reason string) int {
	h.mu.RLock()
	var targets []*Client
	for _, client := range h.clients {
		if client.UserID() == userID {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		client.kick(reason)
	}
	return len(targets)
}

// Close shuts down the hub
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
