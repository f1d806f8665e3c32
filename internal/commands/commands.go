// Package commands implements the CLI commands.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gptkit/gptkit-cli/internal/appctx"
	"github.com/gptkit/gptkit-cli/internal/output"
)

// CommandInfo describes a CLI command.
type CommandInfo struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Actions     []string `json:"actions,omitempty"`
}

// CommandCategory groups commands by category.
type CommandCategory struct {
	Name     string        `json:"name"`
	Commands []CommandInfo `json:"commands"`
}

// commandCategories returns all command categories for the catalog.
func commandCategories() []CommandCategory {
	return []CommandCategory{
		{
			Name: "Account",
			Commands: []CommandInfo{
				{Name: "auth", Category: "account", Description: "Sign in, sign out and inspect the session", Actions: []string{"login", "register", "logout", "status", "refresh", "whoami", "migrate"}},
			},
		},
		{
			Name: "WordPress",
			Commands: []CommandInfo{
				{Name: "wp", Category: "wordpress", Description: "Generate posts and manage the WordPress connection", Actions: []string{"overview", "status", "connect", "revoke", "site", "config", "generate"}},
			},
		},
		{
			Name: "Additional Commands",
			Commands: []CommandInfo{
				{Name: "api", Category: "additional", Description: "Raw API access", Actions: []string{"get", "post", "put", "delete"}},
				{Name: "config", Category: "additional", Description: "Show effective configuration", Actions: []string{"show"}},
				{Name: "commands", Category: "additional", Description: "List all commands"},
				{Name: "completion", Category: "additional", Description: "Generate shell completion scripts"},
				{Name: "version", Category: "additional", Description: "Show version"},
				{Name: "help", Category: "additional", Description: "Help about any command"},
			},
		},
	}
}

// CatalogCommandNames returns the top-level command names in the catalog.
func CatalogCommandNames() []string {
	var names []string
	for _, cat := range commandCategories() {
		for _, cmd := range cat.Commands {
			names = append(names, cmd.Name)
		}
	}
	return names
}

// NewCommandsCmd creates the commands listing command.
func NewCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "commands",
		Aliases: []string{"cmds"},
		Short:   "List all available commands",
		Long:    "List all available gptkit commands organized by category.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			return app.OK(commandCategories(),
				output.WithSummary("All available gptkit commands"),
				output.WithBreadcrumbs(
					output.Breadcrumb{
						Action:      "help",
						Cmd:         "gptkit --help",
						Description: "View help",
					},
				),
			)
		},
	}
}

func requireApp(cmd *cobra.Command) (*appctx.App, error) {
	app := appctx.FromContext(cmd.Context())
	if app == nil {
		return nil, fmt.Errorf("app not initialized")
	}
	return app, nil
}
