package commands

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gptkit/gptkit-cli/internal/appctx"
	"github.com/gptkit/gptkit-cli/internal/output"
	"github.com/gptkit/gptkit-cli/internal/richtext"
	"github.com/gptkit/gptkit-cli/internal/tui"
	"github.com/gptkit/gptkit-cli/internal/wordpress"
)

// NewWPCmd creates the wp command group.
func NewWPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "wp",
		Aliases: []string{"wordpress"},
		Short:   "Generate posts and manage the WordPress connection",
		Long: `Generate blog posts and manage the linked WordPress site.

Every subcommand needs a signed-in session. An expired access token is
refreshed once per request without prompting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWPOverview(cmd)
		},
	}

	cmd.AddCommand(
		newWPOverviewCmd(),
		newWPStatusCmd(),
		newWPConnectCmd(),
		newWPRevokeCmd(),
		newWPSiteCmd(),
		newWPConfigCmd(),
		newWPGenerateCmd(),
	)

	return cmd
}

// sessionApp returns the app after restoring the stored session.
func sessionApp(cmd *cobra.Command) (*appctx.App, error) {
	app, err := requireApp(cmd)
	if err != nil {
		return nil, err
	}
	if err := app.RequireSession(cmd.Context()); err != nil {
		return nil, err
	}
	return app, nil
}

func newWPOverviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Show connection, site and generation settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWPOverview(cmd)
		},
	}
}

func runWPOverview(cmd *cobra.Command) error {
	app, err := sessionApp(cmd)
	if err != nil {
		return err
	}

	overview, err := app.WordPress.Overview(cmd.Context())
	if err != nil {
		return err
	}

	summary := "WordPress not connected"
	if overview.Connected {
		summary = "WordPress connected"
		if overview.SiteURL != "" {
			summary += " to " + overview.SiteURL
		}
	}

	return app.OK(overview,
		output.WithSummary(summary),
		output.WithBreadcrumbs(wpBreadcrumbs(overview.Connected)...),
	)
}

func wpBreadcrumbs(connected bool) []output.Breadcrumb {
	if !connected {
		return []output.Breadcrumb{
			{Action: "connect", Cmd: "gptkit wp connect", Description: "Link a WordPress account"},
		}
	}
	return []output.Breadcrumb{
		{Action: "generate", Cmd: `gptkit wp generate "<topic>"`, Description: "Generate a post"},
		{Action: "config", Cmd: "gptkit wp config", Description: "View generation settings"},
	}
}

func newWPStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether WordPress is connected",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := sessionApp(cmd)
			if err != nil {
				return err
			}

			connected, err := app.WordPress.AuthStatus(cmd.Context())
			if err != nil {
				return err
			}

			summary := "WordPress not connected"
			if connected {
				summary = "WordPress connected"
			}
			return app.OK(map[string]any{"wpAuthStatus": connected},
				output.WithSummary(summary),
				output.WithBreadcrumbs(wpBreadcrumbs(connected)...),
			)
		},
	}
}

func newWPConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Start WordPress authorization",
		Long:  "Request an authorization URL. Open it in a browser to link a WordPress account.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := sessionApp(cmd)
			if err != nil {
				return err
			}

			start, err := app.WordPress.AuthStart(cmd.Context())
			if err != nil {
				return err
			}

			return app.OK(start,
				output.WithSummary("Open this URL to connect WordPress: "+start.AuthURL),
				output.WithBreadcrumbs(output.Breadcrumb{
					Action: "status", Cmd: "gptkit wp status", Description: "Check the connection once authorized",
				}),
			)
		},
	}
}

func newWPRevokeCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Disconnect WordPress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := sessionApp(cmd)
			if err != nil {
				return err
			}

			if !yes {
				if !app.IsInteractive() {
					return output.ErrUsageHint("Refusing to disconnect without confirmation", "Pass --yes")
				}
				ok, err := tui.Confirm("Disconnect WordPress from this account?", false)
				if err != nil {
					return err
				}
				if !ok {
					return app.OK(map[string]string{"status": "unchanged"}, output.WithSummary("Nothing changed"))
				}
			}

			if err := app.WordPress.RevokeAuth(cmd.Context()); err != nil {
				return err
			}
			return app.OK(map[string]string{"status": "revoked"}, output.WithSummary("WordPress disconnected"))
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

func newWPSiteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "site",
		Short: "Show the WordPress site posts are published to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := sessionApp(cmd)
			if err != nil {
				return err
			}

			siteURL, err := app.WordPress.SiteURL(cmd.Context())
			if err != nil {
				return err
			}

			summary := "No site URL set"
			if siteURL != "" {
				summary = siteURL
			}
			return app.OK(map[string]string{"siteUrl": siteURL},
				output.WithSummary(summary),
				output.WithBreadcrumbs(output.Breadcrumb{
					Action: "set", Cmd: "gptkit wp site set <url>", Description: "Change the site",
				}),
			)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <url>",
		Short: "Set the WordPress site URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			siteURL, err := parseSiteURL(args[0])
			if err != nil {
				return err
			}

			app, err := sessionApp(cmd)
			if err != nil {
				return err
			}

			if err := app.WordPress.SetSiteURL(cmd.Context(), siteURL); err != nil {
				return err
			}
			return app.OK(map[string]string{"siteUrl": siteURL}, output.WithSummary("Site URL set to "+siteURL))
		},
	})

	return cmd
}

// parseSiteURL accepts a bare host or an http(s) URL.
func parseSiteURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", output.ErrUsageHint(fmt.Sprintf("Invalid site URL: %q", raw), "Use a URL like https://blog.example.com")
	}
	return strings.TrimSuffix(u.String(), "/"), nil
}

func newWPConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show generation settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := sessionApp(cmd)
			if err != nil {
				return err
			}

			cfg, err := app.WordPress.Config(cmd.Context())
			if err != nil {
				return err
			}
			return app.OK(cfg,
				output.WithSummary(fmt.Sprintf("Generating with %s", cfg.Model)),
				output.WithBreadcrumbs(output.Breadcrumb{
					Action: "set", Cmd: "gptkit wp config set --set temperature=0.9", Description: "Change a setting",
				}),
			)
		},
	}

	cmd.AddCommand(newWPConfigSetCmd())

	return cmd
}

func newWPConfigSetCmd() *cobra.Command {
	var (
		file string
		sets []string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change generation settings",
		Long: `Change generation settings and save them.

--file loads a YAML or JSON file; fields it omits take their defaults.
Without --file the saved settings are the starting point. Each --set key=value
is then applied in order, using the field names shown by "gptkit wp config".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" && len(sets) == 0 {
				return output.ErrUsage("--file or --set is required")
			}

			app, err := sessionApp(cmd)
			if err != nil {
				return err
			}

			var cfg wordpress.Config
			if file != "" {
				cfg, err = wordpress.LoadConfigFile(file)
				if err != nil {
					return output.ErrUsage(err.Error())
				}
			} else {
				cfg, err = app.WordPress.Config(cmd.Context())
				if err != nil {
					return err
				}
			}

			if err := applySets(&cfg, sets); err != nil {
				return err
			}
			if err := app.WordPress.SaveConfig(cmd.Context(), cfg); err != nil {
				return wpError(err)
			}

			return app.OK(cfg, output.WithSummary("Settings saved"))
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML or JSON settings file")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Set a field (key=value, repeatable)")

	return cmd
}

func applySets(cfg *wordpress.Config, sets []string) error {
	for _, kv := range sets {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return output.ErrUsageHint(fmt.Sprintf("Invalid --set %q", kv), "Use key=value")
		}
		if err := cfg.Set(strings.TrimSpace(key), value); err != nil {
			return output.ErrUsage(err.Error())
		}
	}
	return nil
}

func newWPGenerateCmd() *cobra.Command {
	var (
		siteURL string
		model   string
		sets    []string
	)

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate a blog post",
		Long: `Generate a blog post about a topic using the saved settings.

--model and --set override the saved settings for this run only.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" {
				return wpError(wordpress.ErrEmptyPrompt)
			}

			app, err := sessionApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			cfg, err := app.WordPress.Config(ctx)
			if err != nil {
				return err
			}
			if model != "" {
				cfg.Model = model
			}
			if err := applySets(&cfg, sets); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return output.ErrUsage(err.Error())
			}

			if siteURL != "" {
				if siteURL, err = parseSiteURL(siteURL); err != nil {
					return err
				}
			} else if siteURL, err = app.WordPress.SiteURL(ctx); err != nil {
				return err
			}

			generate := func(ctx context.Context) (wordpress.Generation, error) {
				return app.WordPress.Generate(ctx, prompt, siteURL, cfg)
			}
			var gen wordpress.Generation
			if app.ShowProgress() {
				gen, err = tui.RunWithSpinner(ctx, app.Stderr(), "Generating with "+cfg.Model, generate)
			} else {
				gen, err = generate(ctx)
			}
			if err != nil {
				return wpError(err)
			}

			return app.OK(gen,
				output.WithSummary(gen.Title),
				output.WithDocument(generationDocument(gen)),
			)
		},
	}

	cmd.Flags().StringVar(&siteURL, "site", "", "Site URL for this post (defaults to the saved one)")
	cmd.Flags().StringVar(&model, "model", "", "Model for this post (defaults to the saved one)")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Override a setting for this post (key=value, repeatable)")

	return cmd
}

// generationDocument renders a generation as Markdown for human output.
func generationDocument(gen wordpress.Generation) string {
	body := gen.HTMLContent
	if richtext.IsHTML(body) {
		body = richtext.HTMLToMarkdown(body)
	}
	if gen.Title == "" {
		return body
	}
	return "# " + gen.Title + "\n\n" + body
}

func wpError(err error) error {
	switch {
	case errors.Is(err, wordpress.ErrEmptyPrompt):
		return output.ErrUsageHint("Prompt is required", `Run: gptkit wp generate "<topic>"`)
	case errors.Is(err, wordpress.ErrNoContent):
		return &output.Error{Code: output.CodeAPI, Message: "No content was generated", Hint: "Try again or adjust the prompt", Cause: err}
	case errors.Is(err, tui.ErrCanceled):
		return output.ErrUsage("Generation canceled")
	case errors.Is(err, wordpress.ErrInvalidConfig):
		return output.ErrUsage(err.Error())
	}
	return err
}
