package wordpress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gptkit/gptkit-cli/internal/api"
	"github.com/gptkit/gptkit-cli/internal/auth"
	"github.com/gptkit/gptkit-cli/internal/models"
)

// backend serves the auth and wp endpoints. Access tokens are rotated on
// refresh; only the latest one is accepted.
type backend struct {
	mu          sync.Mutex
	access      string
	issued      int
	connected   bool
	siteURL     *string
	config      Config
	generations []Generation
	lastBody    map[string][]byte

	refreshCalls atomic.Int32
}

func newBackend(t *testing.T) (*backend, *Service, *auth.Manager) {
	t.Helper()
	b := &backend{config: DefaultConfig(), lastBody: map[string][]byte{}}
	srv := httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(srv.Close)

	client, err := api.NewClient(srv.URL)
	require.NoError(t, err)
	mgr := auth.NewManager(client, auth.NewFileStore(t.TempDir()))
	_, err = mgr.Login(context.Background(), "ada@example.com", "secret")
	require.NoError(t, err)
	return b, NewService(mgr), mgr
}

func (b *backend) issueLocked() string {
	b.issued++
	b.access = fmt.Sprintf("access-%d", b.issued)
	return b.access
}

func (b *backend) with(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn()
}

func (b *backend) sent(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	body, ok := b.lastBody[key]
	return body, ok
}

func (b *backend) expire() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.access = "revoked"
}

func reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func (b *backend) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastBody[r.Method+" "+r.URL.Path] = body

	switch r.URL.Path {
	case "/auth/login":
		access := b.issueLocked()
		reply(w, http.StatusOK, models.AuthResponse{
			User:         models.User{ID: "u1", Email: "ada@example.com", Name: "Ada"},
			AccessToken:  access,
			RefreshToken: fmt.Sprintf("refresh-%d", b.issued),
		})
		return
	case "/auth/refresh":
		b.refreshCalls.Add(1)
		access := b.issueLocked()
		reply(w, http.StatusOK, models.RefreshResponse{AccessToken: access, RefreshToken: fmt.Sprintf("refresh-%d", b.issued)})
		return
	}

	if r.Header.Get("Authorization") != "Bearer "+b.access {
		reply(w, http.StatusUnauthorized, map[string]string{"message": "Token expired"})
		return
	}

	switch r.Method + " " + r.URL.Path {
	case "GET /wp/auth/start":
		reply(w, http.StatusOK, AuthStart{AuthURL: "https://wordpress.com/oauth2/authorize?state=s1", State: "s1"})
	case "GET /wp/auth/status":
		reply(w, http.StatusOK, map[string]bool{"wpAuthStatus": b.connected})
	case "POST /wp/auth/revoke":
		b.connected = false
		w.WriteHeader(http.StatusNoContent)
	case "GET /wp/site-url":
		reply(w, http.StatusOK, siteURLBody{SiteURL: b.siteURL})
	case "POST /wp/site-url":
		var in siteURLBody
		_ = json.Unmarshal(body, &in)
		b.siteURL = in.SiteURL
		w.WriteHeader(http.StatusOK)
	case "GET /wp/config":
		reply(w, http.StatusOK, b.config)
	case "POST /wp/config":
		_ = json.Unmarshal(body, &b.config)
		w.WriteHeader(http.StatusNoContent)
	case "POST /wp/generate":
		reply(w, http.StatusOK, generateResponse{Generations: b.generations})
	default:
		reply(w, http.StatusNotFound, map[string]string{"message": "Not found"})
	}
}

func TestAuthStartAndStatus(t *testing.T) {
	b, svc, _ := newBackend(t)
	ctx := context.Background()

	start, err := svc.AuthStart(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", start.State)
	assert.Contains(t, start.AuthURL, "wordpress.com")

	connected, err := svc.AuthStatus(ctx)
	require.NoError(t, err)
	assert.False(t, connected)

	b.with(func() { b.connected = true })
	connected, err = svc.AuthStatus(ctx)
	require.NoError(t, err)
	assert.True(t, connected)
}

func TestRevokeAuthAcceptsEmptyBody(t *testing.T) {
	b, svc, _ := newBackend(t)
	b.with(func() { b.connected = true })

	require.NoError(t, svc.RevokeAuth(context.Background()))
	b.with(func() { assert.False(t, b.connected) })
}

func TestSiteURL(t *testing.T) {
	_, svc, _ := newBackend(t)
	ctx := context.Background()

	got, err := svc.SiteURL(ctx)
	require.NoError(t, err)
	assert.Empty(t, got, "absent siteUrl reads as empty")

	require.NoError(t, svc.SetSiteURL(ctx, "https://blog.example.com"))
	got, err = svc.SiteURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://blog.example.com", got)
}

func TestConfigRoundTrip(t *testing.T) {
	b, svc, _ := newBackend(t)
	ctx := context.Background()

	cfg, err := svc.Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg.Temperature = 1.1
	cfg.ReasoningEffort = "high"
	require.NoError(t, svc.SaveConfig(ctx, cfg))
	b.with(func() {
		assert.InDelta(t, 1.1, b.config.Temperature, 1e-9)
		assert.Equal(t, "high", b.config.ReasoningEffort)
	})
}

func TestSaveConfigValidatesBeforeSending(t *testing.T) {
	b, svc, _ := newBackend(t)

	cfg := DefaultConfig()
	cfg.Temperature = 3
	err := svc.SaveConfig(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "temperature")
	_, sent := b.sent("POST /wp/config")
	assert.False(t, sent)
}

func TestGenerate(t *testing.T) {
	b, svc, _ := newBackend(t)
	b.with(func() { b.generations = []Generation{{Title: "Go at scale", HTMLContent: "<h1>Go at scale</h1>"}} })

	gen, err := svc.Generate(context.Background(), "Go in production", "https://blog.example.com", DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "Go at scale", gen.Title)

	var sent map[string]any
	body, ok := b.sent("POST /wp/generate")
	require.True(t, ok)
	require.NoError(t, json.Unmarshal(body, &sent))
	assert.Equal(t, "Go in production", sent["prompt"])
	assert.Equal(t, "https://blog.example.com", sent["siteUrl"])
	assert.Equal(t, "gpt-4.5-preview", sent["model"])
	assert.Contains(t, sent, "config")
}

func TestGenerateOmitsEmptySiteURL(t *testing.T) {
	b, svc, _ := newBackend(t)
	b.with(func() { b.generations = []Generation{{Title: "t"}} })

	_, err := svc.Generate(context.Background(), "topic", "", DefaultConfig())
	require.NoError(t, err)

	var sent map[string]any
	body, ok := b.sent("POST /wp/generate")
	require.True(t, ok)
	require.NoError(t, json.Unmarshal(body, &sent))
	assert.NotContains(t, sent, "siteUrl")
}

func TestGenerateBlankPromptMakesNoRequest(t *testing.T) {
	b, svc, _ := newBackend(t)

	_, err := svc.Generate(context.Background(), "  \n", "", DefaultConfig())
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	_, sent := b.sent("POST /wp/generate")
	assert.False(t, sent)
}

func TestGenerateNoGenerations(t *testing.T) {
	_, svc, _ := newBackend(t)

	_, err := svc.Generate(context.Background(), "topic", "", DefaultConfig())
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestCallsRecoverFromExpiredToken(t *testing.T) {
	b, svc, mgr := newBackend(t)
	b.expire()

	_, err := svc.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), b.refreshCalls.Load())
	assert.True(t, mgr.IsAuthenticated())
}

func TestOverviewSharesOneRefresh(t *testing.T) {
	b, svc, _ := newBackend(t)
	site := "https://blog.example.com"
	b.with(func() {
		b.siteURL = &site
		b.connected = true
	})
	b.expire()

	ov, err := svc.Overview(context.Background())
	require.NoError(t, err)
	assert.True(t, ov.Connected)
	assert.Equal(t, site, ov.SiteURL)
	assert.Equal(t, "gpt-4.5-preview", ov.Config.Model)
	assert.Equal(t, int32(1), b.refreshCalls.Load(), "concurrent 401s collapse into one refresh")
}

func TestOverviewPropagatesFailure(t *testing.T) {
	_, svc, mgr := newBackend(t)
	require.NoError(t, mgr.Logout(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := svc.Overview(ctx)
	require.Error(t, err)
	assert.True(t, api.IsUnauthorized(err))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"temperature low", func(c *Config) { c.Temperature = -0.1 }, "temperature"},
		{"temperature high", func(c *Config) { c.Temperature = 2.1 }, "temperature"},
		{"frequency", func(c *Config) { c.FrequencyPenalty = 2.5 }, "frequencyPenalty"},
		{"presence", func(c *Config) { c.PresencePenalty = -3 }, "presencePenalty"},
		{"max tokens", func(c *Config) { c.MaxTokens = 0 }, "maxTokens"},
		{"effort", func(c *Config) { c.ReasoningEffort = "extreme" }, "reasoningEffort"},
		{"model", func(c *Config) { c.Model = "" }, "model"},
		{"custom prompt", func(c *Config) { c.UseCustomPrompt = true; c.CustomPrompt = "" }, "customPrompt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfigSet(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Set("temperature", "0.2"))
	require.NoError(t, cfg.Set("maxTokens", "1200"))
	require.NoError(t, cfg.Set("autosend", "true"))
	require.NoError(t, cfg.Set("model", "gpt-4o"))

	assert.InDelta(t, 0.2, cfg.Temperature, 1e-9)
	assert.Equal(t, 1200, cfg.MaxTokens)
	assert.True(t, cfg.Autosend)
	assert.Equal(t, "gpt-4o", cfg.Model)

	assert.Error(t, cfg.Set("maxTokens", "lots"))
	assert.Error(t, cfg.Set("autosend", "maybe"))
	assert.Error(t, cfg.Set("colour", "blue"))
}

func TestLoadConfigFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: gpt-4o\ntemperature: 0.3\n"), 0600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.InDelta(t, 0.3, cfg.Temperature, 1e-9)
	assert.Equal(t, 4000, cfg.MaxTokens, "unset fields keep defaults")
}

func TestLoadConfigFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wp.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"maxTokens": 800, "reasoningEffort": "low"}`), 0600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 800, cfg.MaxTokens)
	assert.Equal(t, "low", cfg.ReasoningEffort)
	assert.Equal(t, "gpt-4.5-preview", cfg.Model)
}

func TestLoadConfigFileErrors(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: [unclosed"), 0600))
	_, err = LoadConfigFile(path)
	assert.Error(t, err)
}
