package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gptkit/gptkit-cli/internal/config"
	"github.com/gptkit/gptkit-cli/internal/output"
)

// NewConfigCmd creates the config command for inspecting configuration.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show configuration",
		Long: `Show the effective gptkit configuration.

Configuration is loaded from multiple sources with the following precedence:
  flags > env > .env > global > system > defaults

Config locations:
  - System: /etc/gptkit/config.json
  - Global: ~/.config/gptkit/config.json
  - Dotenv: .env in the working directory`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  "Display the current effective configuration with source information.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	})

	return cmd
}

func runConfigShow(cmd *cobra.Command) error {
	app, err := requireApp(cmd)
	if err != nil {
		return err
	}
	cfg := app.Config

	values := map[string]any{
		"base_url":        cfg.BaseURL,
		"timeout":         cfg.Timeout.String(),
		"keyring_service": cfg.KeyringService,
		"keyring_account": cfg.KeyringAccount,
		"format":          cfg.Format,
		"log_format":      cfg.LogFormat,
	}
	if cfg.Stats != nil {
		values["stats"] = *cfg.Stats
	}
	if cfg.Verbose != nil {
		values["verbose"] = *cfg.Verbose
	}

	sources := make(map[string]any, len(cfg.Sources))
	for k, v := range cfg.Sources {
		sources[k] = v
	}

	return app.OK(map[string]any{
		"values":  values,
		"sources": sources,
	},
		output.WithSummary(fmt.Sprintf("Configuration for %s", cfg.BaseURL)),
		output.WithBreadcrumbs(output.Breadcrumb{
			Action:      "edit",
			Cmd:         filepath.Join(config.GlobalConfigDir(), "config.json"),
			Description: "Global config file",
		}),
	)
}
