package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	var (
		jsonOutput bool
		useSSE     bool
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream realtime events",
		Long: `Connect to the realtime endpoint and stream events as they happen.

Events include:
  - presence: A user came online or went offline
  - counter: A user's counter changed
  - ranking: The leaderboard was recomputed
  - user_updated: A user was created or changed
  - user_deleted: A user was removed
  - error: A request from this connection failed

By default events are read over a websocket. Use --sse to read the
server-sent events stream instead.

Press Ctrl+C to disconnect.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if useSSE {
				return streamSSE(ctx, jsonOutput)
			}
			return streamWebsocket(ctx, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output events as JSON lines")
	cmd.Flags().BoolVar(&useSSE, "sse", false, "Use server-sent events instead of a websocket")

	return cmd
}

// StreamEvent represents a received realtime event
type StreamEvent struct {
	Time  time.Time `json:"time"`
	Event string    `json:"event"`
	Data  string    `json:"data"`
}

func streamWebsocket(ctx context.Context, jsonOutput bool) error {
	conn, err := dialGame(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if !jsonOutput {
		fmt.Println("Connected")
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// Context cancellation is expected
			if ctx.Err() != nil {
				if !jsonOutput {
					fmt.Println("\nDisconnected")
				}
				return nil
			}
			return closeError(err)
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		printEvent(env.Type, string(env.Data), jsonOutput)
	}
}

func streamSSE(ctx context.Context, jsonOutput bool) error {
	sseURL, err := streamURL("/events", false)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sseURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header = authHeader()
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	httpClient := &http.Client{
		Timeout: 0, // No timeout for SSE
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if !jsonOutput {
		fmt.Println("Connected")
	}

	// Parse SSE stream
	scanner := bufio.NewScanner(resp.Body)
	var currentEvent string
	var dataLines []string

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "event: ") {
			currentEvent = strings.TrimPrefix(line, "event: ")
		} else if strings.HasPrefix(line, "data: ") {
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))
		} else if line == "" {
			// End of event
			if currentEvent != "" {
				data := strings.Join(dataLines, "\n")
				printEvent(currentEvent, data, jsonOutput)
				if currentEvent == "close" {
					return fmt.Errorf("connection closed by server: %s", data)
				}
			}
			currentEvent = ""
			dataLines = nil
		}
	}

	if err := scanner.Err(); err != nil {
		// Context cancellation is expected
		if ctx.Err() != nil {
			if !jsonOutput {
				fmt.Println("\nDisconnected")
			}
			return nil
		}
		return fmt.Errorf("stream error: %w", err)
	}

	if !jsonOutput {
		fmt.Println("Disconnected")
	}
	return nil
}

func printEvent(event, data string, jsonOutput bool) {
	now := time.Now()

	if jsonOutput {
		evt := StreamEvent{
			Time:  now,
			Event: event,
			Data:  data,
		}
		jsonData, _ := json.Marshal(evt)
		fmt.Println(string(jsonData))
	} else {
		timestamp := now.Format("2006-01-02 15:04:05")
		// Truncate data if it's too long for display
		displayData := data
		if len(displayData) > 100 {
			displayData = displayData[:100] + "..."
		}
		// Remove newlines for cleaner display
		displayData = strings.ReplaceAll(displayData, "\n", " ")
		fmt.Printf("[%s] %s: %s\n", timestamp, event, displayData)
	}
}
