// Package appctx provides application context helpers.
package appctx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"github.com/gptkit/gptkit-cli/internal/api"
	"github.com/gptkit/gptkit-cli/internal/auth"
	"github.com/gptkit/gptkit-cli/internal/config"
	"github.com/gptkit/gptkit-cli/internal/logger"
	"github.com/gptkit/gptkit-cli/internal/observability"
	"github.com/gptkit/gptkit-cli/internal/output"
	"github.com/gptkit/gptkit-cli/internal/version"
	"github.com/gptkit/gptkit-cli/internal/wordpress"
)

// contextKey is a private type for context keys.
type contextKey string

const appKey contextKey = "app"

// App holds the shared application context for all commands.
type App struct {
	Config    *config.Config
	Session   *auth.Manager
	Store     auth.CredentialStore
	WordPress *wordpress.Service
	Output    *output.Writer
	Logger    zerolog.Logger

	// Observability
	Collector *observability.SessionCollector
	Hooks     *observability.CLIHooks

	// Flags holds the global flag values
	Flags GlobalFlags

	stdout io.Writer
	stderr io.Writer
}

// GlobalFlags holds values for global CLI flags.
type GlobalFlags struct {
	// Output format flags
	JSON   bool
	Quiet  bool
	MD     bool // Literal Markdown syntax output
	Styled bool // Force ANSI styled output (even when piped)
	JQ     string

	BaseURL string

	// Behavior flags
	Verbose int // 0=off, 1=session events, 2=session events+requests (stacks with -v -v or -vv)
	Stats   bool
}

// Option customizes NewApp.
type Option func(*appOptions)

type appOptions struct {
	stdout     io.Writer
	stderr     io.Writer
	store      auth.CredentialStore
	httpClient *http.Client
}

// WithStdout redirects command output.
func WithStdout(w io.Writer) Option {
	return func(o *appOptions) { o.stdout = w }
}

// WithStderr redirects trace and log output.
func WithStderr(w io.Writer) Option {
	return func(o *appOptions) { o.stderr = w }
}

// WithCredentialStore replaces the keyring-backed store.
func WithCredentialStore(s auth.CredentialStore) Option {
	return func(o *appOptions) { o.store = s }
}

// WithHTTPClient replaces the HTTP client built from the configured timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *appOptions) { o.httpClient = hc }
}

// NewApp wires configuration, the session and the feature clients.
func NewApp(cfg *config.Config, flags GlobalFlags, opts ...Option) (*App, error) {
	o := appOptions{stdout: os.Stdout, stderr: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	verbose := flags.Verbose
	if cfg.Verbose != nil && *cfg.Verbose > verbose {
		verbose = *cfg.Verbose
	}
	if !flags.Stats && cfg.Stats != nil {
		flags.Stats = *cfg.Stats
	}

	log := logger.New(logger.ForVerbosity(verbose), cfg.LogFormat, o.stderr)

	// Collector always runs to gather stats; the level controls trace output.
	collector := observability.NewSessionCollector()
	hooks := observability.NewCLIHooks(verbose, collector, observability.NewTraceWriterTo(o.stderr))

	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	client, err := api.NewClient(cfg.BaseURL,
		api.WithHTTPClient(o.httpClient),
		api.WithHooks(hooks),
		api.WithLogger(log),
		api.WithUserAgent(version.UserAgent()),
	)
	if err != nil {
		return nil, output.ErrUsageHint(err.Error(), "Check base_url or --base-url")
	}

	if o.store == nil {
		o.store = auth.NewStore(config.GlobalConfigDir())
	}
	session := auth.NewManager(client, o.store,
		auth.WithLogger(log),
		auth.WithHooks(hooks),
		auth.WithKey(auth.Key{Service: cfg.KeyringService, Account: cfg.KeyringAccount}),
	)

	format, err := resolveFormat(cfg, flags)
	if err != nil {
		return nil, err
	}
	if flags.JQ != "" {
		if err := output.ValidateJQ(flags.JQ); err != nil {
			return nil, err
		}
	}

	return &App{
		Config:    cfg,
		Session:   session,
		Store:     o.store,
		WordPress: wordpress.NewService(session),
		Logger:    log,
		Collector: collector,
		Hooks:     hooks,
		Flags:     flags,
		Output: output.New(output.Options{
			Format: format,
			Writer: o.stdout,
			JQ:     flags.JQ,
			Locale: output.DetectLocale(),
		}),
		stdout: o.stdout,
		stderr: o.stderr,
	}, nil
}

// resolveFormat picks the output format. Flags win over config; a jq filter
// needs JSON, so it turns human formats into JSON.
func resolveFormat(cfg *config.Config, flags GlobalFlags) (output.Format, error) {
	var format output.Format
	switch {
	case flags.Quiet:
		format = output.FormatQuiet
	case flags.JSON:
		format = output.FormatJSON
	case flags.Styled:
		format = output.FormatStyled
	case flags.MD:
		format = output.FormatMarkdown
	default:
		f, err := output.ParseFormat(cfg.Format)
		if err != nil {
			return output.FormatAuto, output.ErrUsage(err.Error())
		}
		format = f
	}

	if flags.JQ != "" && format != output.FormatQuiet {
		format = output.FormatJSON
	}
	return format, nil
}

// Stdout is where command output goes.
func (a *App) Stdout() io.Writer { return a.stdout }

// Stderr is where progress and traces go.
func (a *App) Stderr() io.Writer { return a.stderr }

// RequireSession restores the stored session if needed and fails with
// auth.ErrNotAuthenticated when there is none.
func (a *App) RequireSession(ctx context.Context) error {
	if a.Session.IsAuthenticated() {
		return nil
	}
	if err := a.Session.LoadCurrentUser(ctx); err != nil {
		if errors.Is(err, auth.ErrNotAuthenticated) || api.IsUnauthorized(err) {
			return auth.ErrNotAuthenticated
		}
		return err
	}
	if !a.Session.IsAuthenticated() {
		return auth.ErrNotAuthenticated
	}
	return nil
}

// OK outputs a success response, including stats if --stats is set.
func (a *App) OK(data any, opts ...output.ResponseOption) error {
	if a.Flags.Stats && a.Collector != nil {
		opts = append(opts, output.WithMeta("stats", StatsMeta(a.Collector.Summary())))
	}
	return a.Output.OK(data, opts...)
}

// Err outputs an error response.
func (a *App) Err(err error) error {
	return a.Output.Err(err)
}

// StatsMeta converts collected metrics into the meta map the renderers read.
func StatsMeta(m observability.SessionMetrics) map[string]any {
	return map[string]any{
		"requests":         m.TotalRequests,
		"failed_requests":  m.FailedRequests,
		"refreshes":        m.TotalRefreshes,
		"failed_refreshes": m.FailedRefreshes,
		"auth_retries":     m.AuthRetries,
		"latency_ms":       m.TotalLatency.Milliseconds(),
	}
}

// IsInteractive returns true if prompts and spinners can be shown.
func (a *App) IsInteractive() bool {
	if a.Flags.JSON || a.Flags.Quiet || a.Flags.JQ != "" {
		return false
	}
	return isTerminal(a.stdout) && isTerminal(os.Stdin)
}

// ShowProgress reports whether a spinner may be drawn on stderr.
func (a *App) ShowProgress() bool {
	return a.IsInteractive() && isTerminal(a.stderr)
}

func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// WithApp stores the app in the context.
func WithApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey, app)
}

// FromContext retrieves the app from the context.
func FromContext(ctx context.Context) *App {
	app, _ := ctx.Value(appKey).(*App)
	return app
}
