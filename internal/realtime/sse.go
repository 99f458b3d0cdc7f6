package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mcoot/bananaclick/internal/dependencies/random"
	"github.com/mcoot/bananaclick/internal/model"
	"github.com/mcoot/bananaclick/internal/services/auth"
)

const (
	// Time between keepalive comments
	ssePingPeriod = 30 * time.Second
)

// SSEHandler serves a read-only event stream for clients that cannot speak
// websocket. It receives the same events as a websocket connection.
type SSEHandler struct {
	session Session
	ids     random.Random
	logger  *slog.Logger
}

// NewSSEHandler creates an SSE handler
func NewSSEHandler(session Session, ids random.Random, logger *slog.Logger) *SSEHandler {
	return &SSEHandler{
		session: session,
		ids:     ids,
		logger:  logger.With(slog.String("component", "sse")),
	}
}

// ServeHTTP handles the SSE connection for a client
func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Check if SSE is supported
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	id := model.ConnectionID(h.ids.String(random.ConnectionIDLength, random.ConnectionIDAlphabet))
	client := NewClient(id, DefaultSendBuffer)
	ctx := context.WithoutCancel(r.Context())

	user, err := h.session.Connect(ctx, client, auth.TokenFromRequest(r))
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, model.ErrStoreUnavailable) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, http.StatusText(status), status)
		return
	}
	logger := h.logger.With(slog.String("conn_id", string(id)), slog.String("user_id", string(user.ID)))
	defer func() {
		h.session.Disconnect(ctx, client)
		logger.Info("sse client disconnected")
	}()

	// The stream outlives the server's write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	hello, _ := json.Marshal(map[string]string{"connectionId": string(id)})
	_, _ = w.Write(formatSSEMessage("connected", string(hello)))
	flusher.Flush()
	logger.Info("sse client connected")

	ticker := time.NewTicker(ssePingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-client.Events():
			if !ok {
				// Hub closed the stream
				return
			}
			data, err := EncodeData(event)
			if err != nil {
				logger.Error("failed to encode event", slog.String("error", err.Error()))
				continue
			}
			if _, err := w.Write(formatSSEMessage(string(event.Type), string(data))); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()

		case <-client.Done():
			bye, _ := json.Marshal(map[string]string{"reason": client.CloseReason()})
			_, _ = w.Write(formatSSEMessage("close", string(bye)))
			flusher.Flush()
			return

		case <-r.Context().Done():
			// Client disconnected
			return
		}
	}
}

// formatSSEMessage formats an SSE message with event name and data.
// Every line of multi-line data gets its own "data: " prefix.
func formatSSEMessage(eventName, data string) []byte {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(eventName)
	b.WriteString("\n")
	for _, line := range splitLines(data) {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return []byte(b.String())
}

// splitLines splits a string into lines, handling various line endings
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
