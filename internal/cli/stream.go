package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const handshakeTimeout = 10 * time.Second

// Envelope is a realtime event frame as sent by the server
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// CounterData is the data of a counter event
type CounterData struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Value    int64  `json:"value"`
}

// ErrorData is the data of an error event
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// streamURL resolves a realtime endpoint against the server URL, switching
// to the websocket scheme when ws is set
func streamURL(path string, ws bool) (string, error) {
	u, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	if ws {
		switch u.Scheme {
		case "https":
			u.Scheme = "wss"
		default:
			u.Scheme = "ws"
		}
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String(), nil
}

func authHeader() http.Header {
	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}
	return header
}

// dialGame opens an authenticated websocket connection to the game endpoint
func dialGame(ctx context.Context) (*websocket.Conn, error) {
	wsURL, err := streamURL("/ws", true)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL, authHeader())
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed: HTTP %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	return conn, nil
}

// closeError turns a server close frame into a readable error
func closeError(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Text != "" {
			return fmt.Errorf("connection closed: %s (%d)", ce.Text, ce.Code)
		}
		return fmt.Errorf("connection closed (%d)", ce.Code)
	}
	return fmt.Errorf("stream error: %w", err)
}
