package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gptkit/gptkit-cli/internal/appctx"
	"github.com/gptkit/gptkit-cli/internal/auth"
	"github.com/gptkit/gptkit-cli/internal/output"
	"github.com/gptkit/gptkit-cli/internal/tui"
)

// NewAuthCmd creates the auth command.
func NewAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with GPT Toolkit",
		Long:  "Sign in, sign out and inspect the current session.",
	}

	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthRegisterCmd(),
		newAuthLogoutCmd(),
		newAuthStatusCmd(),
		newAuthRefreshCmd(),
		newAuthWhoamiCmd(),
		newAuthMigrateCmd(),
	)

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var creds tui.Credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in",
		Long: `Sign in with email and password.

Missing fields are prompted for on a terminal. The password can also be
supplied through GPTKIT_PASSWORD. Only the refresh token is stored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			if err := collectCredentials(app, &creds, false); err != nil {
				return err
			}

			user, err := app.Session.Login(cmd.Context(), creds.Email, creds.Password)
			if err != nil {
				return err
			}

			return app.OK(user,
				output.WithSummary(fmt.Sprintf("Signed in as %s", user.Email)),
				output.WithBreadcrumbs(sessionBreadcrumbs()...),
			)
		},
	}

	cmd.Flags().StringVar(&creds.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&creds.Password, "password", "", "Account password")

	return cmd
}

func newAuthRegisterCmd() *cobra.Command {
	var creds tui.Credentials

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Long:  "Create an account and sign in to it.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			if err := collectCredentials(app, &creds, true); err != nil {
				return err
			}

			user, err := app.Session.Register(cmd.Context(), creds.Name, creds.Email, creds.Password)
			if err != nil {
				return err
			}

			return app.OK(user,
				output.WithSummary(fmt.Sprintf("Account created for %s", user.Email)),
				output.WithBreadcrumbs(sessionBreadcrumbs()...),
			)
		},
	}

	cmd.Flags().StringVar(&creds.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&creds.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&creds.Password, "password", "", "Account password")

	return cmd
}

// collectCredentials fills c from the environment and, on a terminal, from
// a prompt. Non-interactive runs must pass every field.
func collectCredentials(app *appctx.App, c *tui.Credentials, withName bool) error {
	if c.Password == "" {
		c.Password = os.Getenv("GPTKIT_PASSWORD")
	}

	missing := c.Email == "" || c.Password == "" || (withName && c.Name == "")
	if !missing {
		return nil
	}

	if !app.IsInteractive() {
		required := "--email and --password are required"
		if withName {
			required = "--name, --email and --password are required"
		}
		return output.ErrUsageHint(required, "Pass them as flags or run in a terminal to be prompted")
	}

	if err := tui.PromptCredentials(c, withName); err != nil {
		return output.ErrUsage(err.Error())
	}
	return nil
}

func sessionBreadcrumbs() []output.Breadcrumb {
	return []output.Breadcrumb{
		{Action: "status", Cmd: "gptkit auth status", Description: "Check the session"},
		{Action: "overview", Cmd: "gptkit wp overview", Description: "View the WordPress integration"},
	}
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Long:  "Revoke the refresh token on the server and remove it locally. The local copy is removed even when the server cannot be reached.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			if err := app.Session.Logout(cmd.Context()); err != nil {
				return err
			}

			return app.OK(map[string]string{
				"status": "logged_out",
			}, output.WithSummary("Signed out"))
		},
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Long:  "Restore the stored session if there is one and report its state, user and token expiry.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			if err := app.RequireSession(cmd.Context()); err != nil && !errors.Is(err, auth.ErrNotAuthenticated) {
				return err
			}

			status := map[string]any{
				"authenticated":      app.Session.IsAuthenticated(),
				"state":              app.Session.State().String(),
				"stored_credentials": app.Session.HasStoredCredentials(),
				"base_url":           app.Config.BaseURL,
			}
			if store, ok := app.Store.(*auth.Store); ok {
				status["storage"] = storageName(store)
			}

			if !app.Session.IsAuthenticated() {
				return app.OK(status,
					output.WithSummary("Not signed in"),
					output.WithBreadcrumbs(output.Breadcrumb{
						Action: "login", Cmd: "gptkit auth login", Description: "Sign in",
					}),
				)
			}

			summary := "Signed in"
			if user, ok := app.Session.User(); ok {
				status["user"] = user
				summary = fmt.Sprintf("Signed in as %s", user.Email)
			}
			if exp, ok := app.Session.AccessTokenExpiry(); ok {
				expiresIn := time.Until(exp)
				status["expires_in"] = expiresIn.Round(time.Second).String()
				status["expired"] = expiresIn < 0
			}

			return app.OK(status, output.WithSummary(summary))
		},
	}
}

func storageName(s *auth.Store) string {
	if s.UsingKeyring() {
		return "keyring"
	}
	return "file"
}

func newAuthRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the access token",
		Long: `Exchange the stored refresh token for a new token pair. The rotated
refresh token replaces the stored one. If the server rejects the stored
token it is deleted and you must sign in again.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			user, err := app.Session.RefreshSession(cmd.Context())
			if err != nil {
				return err
			}

			result := map[string]any{"status": "refreshed", "user": user}
			if exp, ok := app.Session.AccessTokenExpiry(); ok {
				result["expires_at"] = exp.UTC().Format(time.RFC3339)
			}

			return app.OK(result, output.WithSummary("Token refreshed"))
		},
	}
}

func newAuthWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			if err := app.RequireSession(cmd.Context()); err != nil {
				return err
			}
			user, ok := app.Session.User()
			if !ok {
				return auth.ErrNotAuthenticated
			}

			summary := user.Email
			if user.Name != "" {
				summary = fmt.Sprintf("%s <%s>", user.Name, user.Email)
			}
			return app.OK(user, output.WithSummary(summary))
		},
	}
}

func newAuthMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Move stored credentials into the system keyring",
		Long:  "Copy credentials from the plaintext fallback file into the system keyring and remove the file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			store, ok := app.Store.(*auth.Store)
			if !ok || !store.UsingKeyring() {
				return output.ErrUsageHint("System keyring is not available",
					"Unset GPTKIT_NO_KEYRING and make sure a keyring service is running")
			}
			if err := store.MigrateToKeyring(); err != nil {
				return err
			}

			return app.OK(map[string]string{
				"storage": storageName(store),
			}, output.WithSummary("Credentials stored in the system keyring"))
		},
	}
}
