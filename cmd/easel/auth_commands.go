package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"easel/internal/transport"
)

func newLoginCommand(ctx *commandContext) *cobra.Command {
	var passwordFlag string

	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Sign in to the image service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}

			password := passwordFlag
			if password == "" {
				password, err = promptPassword("Password: ")
				if err != nil {
					return err
				}
			}

			user, err := app.session.Login(cmd.Context(), args[0], password)
			if err != nil {
				var statusErr *transport.StatusError
				if errors.As(err, &statusErr) && statusErr.StatusCode == 401 {
					return fmt.Errorf("login failed: %s", statusErr.DetailOr("incorrect username or password"))
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", user.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&passwordFlag, "password", "", "Password (prompted when omitted)")
	return cmd
}

func newLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}
			if err := app.session.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newRegisterCommand(ctx *commandContext) *cobra.Command {
	var emailFlag string
	var passwordFlag string

	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.ensureApp()
			if err != nil {
				return err
			}

			email := strings.TrimSpace(emailFlag)
			if email == "" {
				return errors.New("--email is required")
			}

			password := passwordFlag
			if password == "" {
				password, err = promptPassword("Password: ")
				if err != nil {
					return err
				}
				confirm, err := promptPassword("Confirm password: ")
				if err != nil {
					return err
				}
				if password != confirm {
					return errors.New("passwords do not match")
				}
			}

			user, err := app.session.Register(cmd.Context(), args[0], password, email)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s; run `easel login %s` to sign in\n", user.Username, user.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&emailFlag, "email", "", "Account email address")
	cmd.Flags().StringVar(&passwordFlag, "password", "", "Password (prompted when omitted)")
	return cmd
}

func newWhoamiCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.requireAuth()
			if err != nil {
				return err
			}

			user, err := app.session.FetchUser(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Username: %s\n", user.Username)
			fmt.Fprintf(out, "Email:    %s\n", user.Email)
			fmt.Fprintf(out, "Active:   %s\n", yesNo(user.IsActive))
			if user.IsAdmin {
				fmt.Fprintln(out, "Admin:    yes")
			}
			return nil
		},
	}
}

func newChangePasswordCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "change-password",
		Short: "Change the account password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.requireAuth()
			if err != nil {
				return err
			}

			current, err := promptPassword("Current password: ")
			if err != nil {
				return err
			}
			next, err := promptPassword("New password: ")
			if err != nil {
				return err
			}
			confirm, err := promptPassword("Confirm new password: ")
			if err != nil {
				return err
			}
			if next != confirm {
				return errors.New("passwords do not match")
			}

			if err := app.session.ChangePassword(cmd.Context(), current, next); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password changed")
			return nil
		},
	}
}
