package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRegisterCmd() *cobra.Command {
	var user, pass string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new player account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return authenticate("/api/v1/auth/register", user, pass)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Username (required)")
	cmd.Flags().StringVar(&pass, "pass", "", "Password (required)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("pass")

	return cmd
}

func newLoginCmd() *cobra.Command {
	var user, pass string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to an existing account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return authenticate("/api/v1/auth/login", user, pass)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Username (required)")
	cmd.Flags().StringVar(&pass, "pass", "", "Password (required)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("pass")

	return cmd
}

func authenticate(path, user, pass string) error {
	req := map[string]string{
		"username": user,
		"password": pass,
	}
	var result AuthResult

	if err := client.Post(path, req, &result); err != nil {
		return err
	}

	if err := cfg.SaveToken(result.Token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	NewOutput(cfg.Output).Print(result)
	return nil
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the current token and forget it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Token == "" {
				return fmt.Errorf("not logged in")
			}
			if err := client.Post("/api/v1/auth/logout", nil, nil); err != nil {
				return err
			}
			if err := cfg.ClearToken(); err != nil {
				return fmt.Errorf("failed to remove token: %w", err)
			}

			NewOutput(cfg.Output).PrintMessage("Logged out")
			return nil
		},
	}
}

func newMeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the logged in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			var user User

			if err := client.Get("/api/v1/auth/me", &user); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(user)
			return nil
		},
	}
}
