// Package cli assembles the gptkit command tree.
package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gptkit/gptkit-cli/internal/appctx"
	"github.com/gptkit/gptkit-cli/internal/commands"
	"github.com/gptkit/gptkit-cli/internal/config"
	"github.com/gptkit/gptkit-cli/internal/output"
	"github.com/gptkit/gptkit-cli/internal/version"
)

// NewRootCmd creates the root cobra command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	var flags appctx.GlobalFlags

	cmd := &cobra.Command{
		Use:           "gptkit",
		Short:         "Command-line client for GPT Toolkit",
		Long:          "gptkit signs in to GPT Toolkit and drives its WordPress post generator from the terminal.",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip setup for commands that never touch the backend
			switch cmd.Name() {
			case "help", "version", "completion":
				return nil
			}

			cfg, err := config.Load(config.FlagOverrides{BaseURL: flags.BaseURL})
			if err != nil {
				return err
			}

			app, err := appctx.NewApp(cfg, flags,
				appctx.WithStdout(cmd.OutOrStdout()),
				appctx.WithStderr(cmd.ErrOrStderr()),
			)
			if err != nil {
				return err
			}

			cmd.SetContext(appctx.WithApp(cmd.Context(), app))
			return nil
		},
	}

	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetGlobalNormalizationFunc(normalizeFlagName)

	// Allow flags anywhere in the command line
	cmd.Flags().SetInterspersed(true)
	cmd.PersistentFlags().SetInterspersed(true)

	// Output format flags
	cmd.PersistentFlags().BoolVarP(&flags.JSON, "json", "j", false, "Output as JSON")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Output data only, no envelope")
	cmd.PersistentFlags().BoolVarP(&flags.MD, "md", "m", false, "Output as Markdown (portable)")
	cmd.PersistentFlags().BoolVar(&flags.Styled, "styled", false, "Force styled output (ANSI colors)")
	cmd.PersistentFlags().StringVar(&flags.JQ, "jq", "", "Filter JSON output with a jq expression")

	// Connection flags
	cmd.PersistentFlags().StringVar(&flags.BaseURL, "base-url", "", "API base URL (e.g., localhost:3000, api.example.com)")

	// Behavior flags
	cmd.PersistentFlags().CountVarP(&flags.Verbose, "verbose", "v", "Verbose output (-v for session events, -vv for requests)")
	cmd.PersistentFlags().BoolVar(&flags.Stats, "stats", false, "Show session statistics")

	cmd.AddCommand(
		commands.NewAuthCmd(),
		commands.NewAPICmd(),
		commands.NewWPCmd(),
		commands.NewConfigCmd(),
		commands.NewCommandsCmd(),
		commands.NewCompletionCmd(),
		commands.NewVersionCmd(),
	)

	return cmd
}

// Execute runs the CLI against the process arguments and exits.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// Run executes one invocation and returns its exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	// Use ExecuteC to get the executed command (for correct context access)
	executedCmd, err := cmd.ExecuteContextC(ctx)
	if err == nil {
		return output.ExitOK
	}

	err = transformCobraError(err)
	code := output.AsError(err).ExitCode()

	if executedCmd != nil && executedCmd.Context() != nil {
		if app := appctx.FromContext(executedCmd.Context()); app != nil {
			_ = app.Err(err)
			return code
		}
	}

	// Setup failed before the app existed; honor the format flags directly.
	writer := output.New(output.Options{
		Format: fallbackFormat(cmd),
		Writer: stdout,
	})
	_ = writer.Err(err)
	return code
}

// normalizeFlagName maps long-form aliases onto their canonical flag.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	switch name {
	case "markdown":
		name = "md"
	case "base_url":
		name = "base-url"
	}
	return pflag.NormalizedName(name)
}

func fallbackFormat(cmd *cobra.Command) output.Format {
	pf := cmd.PersistentFlags()
	quiet, _ := pf.GetBool("quiet")
	jsonFlag, _ := pf.GetBool("json")
	styled, _ := pf.GetBool("styled")
	md, _ := pf.GetBool("md")
	switch {
	case quiet:
		return output.FormatQuiet
	case jsonFlag:
		return output.FormatJSON
	case styled:
		return output.FormatStyled
	case md:
		return output.FormatMarkdown
	default:
		return output.FormatAuto
	}
}

var shorthandFlagRe = regexp.MustCompile(`unknown shorthand flag: '.' in (-\w)`)

// transformCobraError turns cobra's parse errors into usage errors with
// consistent wording.
func transformCobraError(err error) error {
	msg := err.Error()

	switch {
	case strings.HasPrefix(msg, "flag needs an argument: "):
		flag := strings.TrimPrefix(msg, "flag needs an argument: ")
		return output.ErrUsage(flag + " requires a value")

	case strings.HasPrefix(msg, "unknown flag: "):
		return output.ErrUsage("Unknown option: " + strings.TrimPrefix(msg, "unknown flag: "))

	case strings.HasPrefix(msg, "unknown shorthand flag: "):
		if m := shorthandFlagRe.FindStringSubmatch(msg); len(m) > 1 {
			return output.ErrUsage("Unknown option: " + m[1])
		}

	case strings.HasPrefix(msg, "unknown command "):
		return output.ErrUsageHint(msg, "Run: gptkit --help")

	case strings.Contains(msg, "invalid argument"),
		strings.Contains(msg, "arg(s)"):
		return output.ErrUsage(msg)
	}

	return err
}
