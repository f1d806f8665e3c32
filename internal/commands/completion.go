package commands

import (
	"github.com/spf13/cobra"

	"github.com/gptkit/gptkit-cli/internal/output"
)

// NewCompletionCmd creates the completion command.
func NewCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion <shell>",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for gptkit.

Bash:
  $ source <(gptkit completion bash)

Zsh:
  $ gptkit completion zsh > "${fpath[1]}/_gptkit"

Fish:
  $ gptkit completion fish | source

PowerShell:
  PS> gptkit completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(out, true)
			case "zsh":
				return root.GenZshCompletion(out)
			case "fish":
				return root.GenFishCompletion(out, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(out)
			}
			return output.ErrUsage("unsupported shell: " + args[0])
		},
	}
}
