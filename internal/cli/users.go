package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "User administration commands (admin only)",
	}

	cmd.AddCommand(newUsersListCmd())
	cmd.AddCommand(newUsersGetCmd())
	cmd.AddCommand(newUsersCreateCmd())
	cmd.AddCommand(newUsersUpdateCmd())
	cmd.AddCommand(newUsersBlockCmd(true))
	cmd.AddCommand(newUsersBlockCmd(false))
	cmd.AddCommand(newUsersResetCmd())
	cmd.AddCommand(newUsersDeleteCmd())

	return cmd
}

func userPath(id string) string {
	return "/api/v1/users/" + url.PathEscape(id)
}

func newUsersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all users",
		RunE: func(cmd *cobra.Command, args []string) error {
			var users []User

			if err := client.Get("/api/v1/users", &users); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(users)
			return nil
		},
	}
}

func newUsersGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var user User

			if err := client.Get(userPath(args[0]), &user); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(user)
			return nil
		},
	}
}

func newUsersCreateCmd() *cobra.Command {
	var user, pass, role string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{
				"username": user,
				"password": pass,
			}
			if role != "" {
				req["role"] = role
			}
			var created User

			if err := client.Post("/api/v1/users", req, &created); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(created)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Username (required)")
	cmd.Flags().StringVar(&pass, "pass", "", "Password (required)")
	cmd.Flags().StringVar(&role, "role", "", "Role: player or admin (default player)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("pass")

	return cmd
}

func newUsersUpdateCmd() *cobra.Command {
	var user, pass, role string

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a user's name, password or role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{}
			if cmd.Flags().Changed("user") {
				req["username"] = user
			}
			if cmd.Flags().Changed("pass") {
				req["password"] = pass
			}
			if cmd.Flags().Changed("role") {
				req["role"] = role
			}
			if len(req) == 0 {
				return fmt.Errorf("at least one of --user, --pass or --role is required")
			}
			var updated User

			if err := client.Put(userPath(args[0]), req, &updated); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(updated)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "New username")
	cmd.Flags().StringVar(&pass, "pass", "", "New password")
	cmd.Flags().StringVar(&role, "role", "", "New role: player or admin")

	return cmd
}

func newUsersBlockCmd(blocked bool) *cobra.Command {
	use, short := "block <id>", "Block a user from clicking"
	if !blocked {
		use, short = "unblock <id>", "Allow a blocked user to click again"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]bool{"isBlocked": blocked}
			var updated User

			if err := client.Put(userPath(args[0])+"/block", req, &updated); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(updated)
			return nil
		},
	}
}

func newUsersResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <id>",
		Short: "Reset a user's counter to zero",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var updated User

			if err := client.Post(userPath(args[0])+"/reset", nil, &updated); err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(updated)
			return nil
		},
	}
}

func newUsersDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a user and disconnect their sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Delete(userPath(args[0])); err != nil {
				return err
			}

			NewOutput(cfg.Output).PrintMessage(fmt.Sprintf("Deleted user %s", args[0]))
			return nil
		},
	}
}
