package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcoot/bananaclick/internal/dependencies/random"
	"github.com/mcoot/bananaclick/internal/model"
	"github.com/mcoot/bananaclick/internal/services/auth"
)

// Close codes sent to websocket peers
const (
	CloseUnauthenticated  = 4401
	CloseKicked           = 4404
	CloseStoreUnavailable = websocket.CloseTryAgainLater
)

// Session is the game logic a transport drives for each connection
type Session interface {
	// Connect authenticates token, binds it to client and attaches client to the hub
	Connect(ctx context.Context, client *Client, token string) (*model.User, error)
	// Increment handles one increment request from a connection
	Increment(ctx context.Context, id model.ConnectionID) error
	// Disconnect releases everything held for client
	Disconnect(ctx context.Context, client *Client)
}

// WSConfig holds configuration for websocket connections
type WSConfig struct {
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	// CheckOrigin decides whether a browser origin may connect; nil allows all
	CheckOrigin func(r *http.Request) bool
}

// DefaultWSConfig returns default websocket configuration
func DefaultWSConfig() WSConfig {
	return WSConfig{
		WriteTimeout:    10 * time.Second,
		PongTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      DefaultSendBuffer,
	}
}

// WSHandler serves the websocket transport
type WSHandler struct {
	session  Session
	ids      random.Random
	cfg      WSConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWSHandler creates a websocket handler
func NewWSHandler(session Session, ids random.Random, logger *slog.Logger, cfg WSConfig) *WSHandler {
	defaults := DefaultWSConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaults.PongTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &WSHandler{
		session: session,
		ids:     ids,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     checkOrigin,
		},
		logger: logger.With(slog.String("component", "websocket")),
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
// Handshakes are always upgraded so a rejection can carry a close code.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromRequest(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	id := model.ConnectionID(h.ids.String(random.ConnectionIDLength, random.ConnectionIDAlphabet))
	client := NewClient(id, h.cfg.SendBuffer)
	logger := h.logger.With(slog.String("conn_id", string(id)))

	// The request context ends when this handler returns, not when the peer leaves
	ctx := context.WithoutCancel(r.Context())

	user, err := h.session.Connect(ctx, client, token)
	if err != nil {
		code, reason := closeFor(err)
		logger.Info("websocket handshake rejected", slog.String("reason", reason), slog.String("error", err.Error()))
		h.writeClose(conn, code, reason)
		return
	}
	logger = logger.With(slog.String("user_id", string(user.ID)))
	logger.Info("websocket connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(conn, client, logger)
	}()

	h.readPump(ctx, conn, client, logger)

	h.session.Disconnect(ctx, client)
	<-writerDone
	logger.Info("websocket disconnected")
}

func closeFor(err error) (int, string) {
	if errors.Is(err, model.ErrStoreUnavailable) {
		return CloseStoreUnavailable, "store unavailable"
	}
	return CloseUnauthenticated, "unauthenticated"
}

func (h *WSHandler) writeClose(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(h.cfg.WriteTimeout)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}

// readPump handles inbound messages one at a time, preserving their order
func (h *WSHandler) readPump(ctx context.Context, conn *websocket.Conn, client *Client, logger *slog.Logger) {
	conn.SetReadLimit(h.cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Warn("unexpected websocket close", slog.String("error", err.Error()))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))

		var msg InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Debug("malformed message ignored", slog.String("error", err.Error()))
			continue
		}

		switch msg.Type {
		case MessageIncrement:
			// Failures are reported to the peer by the session; the connection stays up
			_ = h.session.Increment(ctx, client.ID())
		default:
			logger.Debug("unknown message type ignored", slog.String("type", msg.Type))
		}
	}
}

// writePump writes queued events and keepalive pings until the stream ends
func (h *WSHandler) writePump(conn *websocket.Conn, client *Client, logger *slog.Logger) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		// Unblocks readPump when the server ends the connection
		_ = conn.Close()
	}()

	for {
		select {
		case event, ok := <-client.Events():
			if !ok {
				h.writeClose(conn, websocket.CloseGoingAway, "server closing")
				return
			}
			data, err := Encode(event)
			if err != nil {
				logger.Error("failed to encode event", slog.String("error", err.Error()))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("websocket write failed", slog.String("error", err.Error()))
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-client.Done():
			h.writeClose(conn, CloseKicked, client.CloseReason())
			return
		}
	}
}

// AllowOrigins builds a CheckOrigin func from a list of browser origins.
// "*" allows any origin. Requests without an Origin header are not from a
// browser and are always allowed.
func AllowOrigins(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
