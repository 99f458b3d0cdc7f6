package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

func newClickCmd() *cobra.Command {
	var (
		count    int
		interval time.Duration
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "click",
		Short: "Click the banana",
		Long: `Open a realtime connection and send increment requests.

The command waits until the server has confirmed every click with a counter
update, then prints the final counter value.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}

			var me User
			if err := client.Get("/api/v1/auth/me", &me); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := click(ctx, me.ID, count, interval, timeout)
			if err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(result)
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of clicks")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Pause between clicks")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "How long to wait for confirmations")

	return cmd
}

func click(ctx context.Context, userID string, count int, interval, timeout time.Duration) (ClickResult, error) {
	conn, err := dialGame(ctx)
	if err != nil {
		return ClickResult{}, err
	}
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	// Writes happen on their own goroutine so confirmations are read while clicking
	sendErr := make(chan error, 1)
	go func() {
		msg := []byte(`{"type":"increment"}`)
		for i := 0; i < count; i++ {
			if i > 0 && interval > 0 {
				time.Sleep(interval)
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				sendErr <- err
				return
			}
		}
		sendErr <- nil
	}()

	result := ClickResult{}
	deadline := time.Now().Add(timeout + time.Duration(count)*interval)
	_ = conn.SetReadDeadline(deadline)

	for result.Sent < count {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			return result, closeError(err)
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		switch env.Type {
		case "counter":
			var c CounterData
			if err := json.Unmarshal(env.Data, &c); err != nil || c.UserID != userID {
				continue
			}
			result.Sent++
			result.Counter = c.Value
			if cfg.Verbose {
				fmt.Fprintf(os.Stderr, "counter: %d\n", c.Value)
			}
		case "error":
			var e ErrorData
			_ = json.Unmarshal(env.Data, &e)
			return result, fmt.Errorf("click rejected: %s (%s)", e.Message, e.Code)
		}
	}

	if err := <-sendErr; err != nil {
		return result, fmt.Errorf("failed to send click: %w", err)
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return result, nil
}
