package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/mcoot/bananaclick/internal/api/response"
)

// Pinger reports whether the store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// PresenceCounter reports bound connections and the identities behind them
type PresenceCounter interface {
	Count() int
	ActiveUsers() int
}

// ConnectionCounter reports connections attached to the event hub
type ConnectionCounter interface {
	ConnectionCount() int
}

// SystemHandler serves health and stats endpoints
type SystemHandler struct {
	store       Pinger
	presence    PresenceCounter
	connections ConnectionCounter
	logger      *slog.Logger
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(store Pinger, presence PresenceCounter, connections ConnectionCounter, logger *slog.Logger) *SystemHandler {
	return &SystemHandler{
		store:       store,
		presence:    presence,
		connections: connections,
		logger:      logger,
	}
}

// Health handles GET /api/v1/health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", slog.String("error", err.Error()))
		response.JSON(w, http.StatusServiceUnavailable, response.Health{Status: "degraded", Storage: "unavailable"})
		return
	}

	response.JSON(w, http.StatusOK, response.Health{Status: "ok", Storage: "ok"})
}

// Stats handles GET /api/v1/stats
func (h *SystemHandler) Stats(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, response.Stats{
		Connections:      h.connections.ConnectionCount(),
		BoundConnections: h.presence.Count(),
		ActiveUsers:      h.presence.ActiveUsers(),
	})
}
