package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result HealthResult
			out := NewOutput(cfg.Output)

			if err := client.Get("/api/v1/health", &result); err != nil {
				// A degraded server still reports which dependency is down
				var apiErr *APIError
				if errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable &&
					json.Unmarshal([]byte(apiErr.Message), &result) == nil {
					out.Print(result)
					return fmt.Errorf("server is %s", result.Status)
				}
				return err
			}

			out.Print(result)
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show live connection statistics (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result Stats

			if err := client.Get("/api/v1/stats", &result); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(result)
			return nil
		},
	}
}

func newRankingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rankings",
		Short: "Show the leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			var entries []RankingEntry

			if err := client.Get("/api/v1/rankings", &entries); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(entries)
			return nil
		},
	}
}
