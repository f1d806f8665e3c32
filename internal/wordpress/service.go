// Package wordpress is the client for the blog-generation endpoints. Every
// call runs through the session manager, so an expired access token is
// refreshed and the call retried once.
package wordpress

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/gptkit/gptkit-cli/internal/api"
	"github.com/gptkit/gptkit-cli/internal/auth"
)

// ErrEmptyPrompt is returned by Generate before any request is made.
var ErrEmptyPrompt = errors.New("prompt is required")

// ErrNoContent means the backend answered but produced no generations.
var ErrNoContent = errors.New("no content returned")

// AuthStart is the response to a WordPress authorization request.
type AuthStart struct {
	AuthURL string `json:"authUrl"`
	State   string `json:"state"`
}

type authStatusResponse struct {
	WPAuthStatus bool `json:"wpAuthStatus"`
}

type siteURLBody struct {
	SiteURL *string `json:"siteUrl,omitempty"`
}

// Generation is one generated post.
type Generation struct {
	Title       string `json:"title"`
	HTMLContent string `json:"htmlContent"`
}

type generateRequest struct {
	Prompt  string  `json:"prompt"`
	SiteURL *string `json:"siteUrl,omitempty"`
	Model   string  `json:"model"`
	Config  Config  `json:"config"`
}

type generateResponse struct {
	Generations []Generation `json:"generations"`
}

// Overview is the dashboard view of the WordPress integration.
type Overview struct {
	Connected bool   `json:"wpAuthStatus"`
	SiteURL   string `json:"siteUrl"`
	Config    Config `json:"config"`
}

// Service calls the WordPress endpoints on behalf of the signed-in user.
type Service struct {
	session *auth.Manager
}

// NewService creates a Service bound to session.
func NewService(session *auth.Manager) *Service {
	return &Service{session: session}
}

// AuthStart begins WordPress authorization and returns the URL to open.
func (s *Service) AuthStart(ctx context.Context) (AuthStart, error) {
	return call[AuthStart](ctx, s, http.MethodGet, "wp/auth/start", nil)
}

// AuthStatus reports whether the account is connected to WordPress.
func (s *Service) AuthStatus(ctx context.Context) (bool, error) {
	resp, err := call[authStatusResponse](ctx, s, http.MethodGet, "wp/auth/status", nil)
	return resp.WPAuthStatus, err
}

// RevokeAuth disconnects the account from WordPress.
func (s *Service) RevokeAuth(ctx context.Context) error {
	_, err := call[api.NoContent](ctx, s, http.MethodPost, "wp/auth/revoke", nil)
	return err
}

// SiteURL returns the saved site URL, or "" when none is set.
func (s *Service) SiteURL(ctx context.Context) (string, error) {
	resp, err := call[siteURLBody](ctx, s, http.MethodGet, "wp/site-url", nil)
	if err != nil || resp.SiteURL == nil {
		return "", err
	}
	return *resp.SiteURL, nil
}

// SetSiteURL saves the site URL posts are published to.
func (s *Service) SetSiteURL(ctx context.Context, siteURL string) error {
	_, err := call[api.NoContent](ctx, s, http.MethodPost, "wp/site-url", siteURLBody{SiteURL: &siteURL})
	return err
}

// Config fetches the saved generation settings.
func (s *Service) Config(ctx context.Context) (Config, error) {
	return call[Config](ctx, s, http.MethodGet, "wp/config", nil)
}

// SaveConfig stores cfg after validating it locally.
func (s *Service) SaveConfig(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	_, err := call[api.NoContent](ctx, s, http.MethodPost, "wp/config", cfg)
	return err
}

// Generate asks the backend for a post about prompt and returns the first
// generation. siteURL may be empty.
func (s *Service) Generate(ctx context.Context, prompt, siteURL string, cfg Config) (Generation, error) {
	if strings.TrimSpace(prompt) == "" {
		return Generation{}, ErrEmptyPrompt
	}

	body := generateRequest{Prompt: prompt, Model: cfg.Model, Config: cfg}
	if siteURL != "" {
		body.SiteURL = &siteURL
	}

	resp, err := call[generateResponse](ctx, s, http.MethodPost, "wp/generate", body)
	if err != nil {
		return Generation{}, err
	}
	if len(resp.Generations) == 0 {
		return Generation{}, ErrNoContent
	}
	return resp.Generations[0], nil
}

// Overview fetches connection status, site URL and config concurrently.
// Any failure cancels the others and is returned.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	var out Overview
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		connected, err := s.AuthStatus(gctx)
		out.Connected = connected
		return err
	})
	g.Go(func() error {
		siteURL, err := s.SiteURL(gctx)
		out.SiteURL = siteURL
		return err
	})
	g.Go(func() error {
		cfg, err := s.Config(gctx)
		out.Config = cfg
		return err
	})

	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	return out, nil
}

func call[T any](ctx context.Context, s *Service, method, path string, body any) (T, error) {
	req, err := api.NewRequest(method, path, body)
	if err != nil {
		var zero T
		return zero, err
	}
	return auth.Do[T](ctx, s.session, req)
}
