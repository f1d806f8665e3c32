// Package auth owns the gptkit session: the in-memory access token, the
// persisted refresh token, and transparent recovery from expired tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/gptkit/gptkit-cli/internal/api"
	"github.com/gptkit/gptkit-cli/internal/models"
)

// ErrNotAuthenticated is returned when an operation needs a session and none exists.
var ErrNotAuthenticated = errors.New("not authenticated")

// Hooks observes the refresh protocol.
type Hooks interface {
	OnRefreshStart(ctx context.Context)
	OnRefreshEnd(ctx context.Context, err error, duration time.Duration)
	OnAuthRetry(ctx context.Context, path string)
}

// NoopHooks ignores all events.
type NoopHooks struct{}

func (NoopHooks) OnRefreshStart(context.Context)                      {}
func (NoopHooks) OnRefreshEnd(context.Context, error, time.Duration) {}
func (NoopHooks) OnAuthRetry(context.Context, string)                {}

// Manager is the single owner of session state. All reads and writes of the
// access token, cached user and state go through m.mu.
type Manager struct {
	client *api.Client
	store  CredentialStore
	key    Key
	logger zerolog.Logger
	hooks  Hooks

	refreshGroup singleflight.Group

	mu          sync.Mutex
	accessToken string
	user        *models.User
	state       State
	// generation increments whenever the access token is installed or
	// cleared. A 401 observed under an older generation was answered for a
	// token that is already gone.
	generation uint64
	subs       map[int]chan Snapshot
	nextSub    int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the session logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithHooks installs refresh observability hooks.
func WithHooks(h Hooks) Option {
	return func(m *Manager) {
		if h != nil {
			m.hooks = h
		}
	}
}

// WithKey overrides the credential key holding the refresh token.
func WithKey(k Key) Option {
	return func(m *Manager) { m.key = k }
}

// NewManager creates a logged-out session.
func NewManager(client *api.Client, store CredentialStore, opts ...Option) *Manager {
	m := &Manager{
		client: client,
		store:  store,
		key:    DefaultKey(),
		logger: zerolog.Nop(),
		hooks:  NoopHooks{},
		state:  StateLoggedOut,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Client returns the underlying HTTP client.
func (m *Manager) Client() *api.Client {
	return m.client
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// User returns a copy of the cached profile.
func (m *Manager) User() (models.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return models.User{}, false
	}
	return *m.user, true
}

// IsAuthenticated reports whether an access token is held.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessToken != "" && (m.state == StateAuthenticated || m.state == StateRefreshing)
}

// HasStoredCredentials reports whether a refresh token is persisted.
func (m *Manager) HasStoredCredentials() bool {
	token, ok := m.store.Read(m.key)
	return ok && len(token) > 0
}

// AccessTokenExpiry returns the exp claim of the current access token when it
// is a JWT. The signature is not verified; the backend remains the authority.
func (m *Manager) AccessTokenExpiry() (time.Time, bool) {
	m.mu.Lock()
	token := m.accessToken
	m.mu.Unlock()
	if token == "" {
		return time.Time{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// LoadCurrentUser restores a session from the persisted refresh token.
//
// With nothing persisted it ends logged out without touching the network.
// Otherwise it refreshes when no access token is held and then fetches the
// profile. Any failure ends logged out; a partially populated session is
// never left behind.
func (m *Manager) LoadCurrentUser(ctx context.Context) error {
	if !m.HasStoredCredentials() {
		m.mu.Lock()
		m.clearLocked()
		m.mu.Unlock()
		return nil
	}

	m.mu.Lock()
	hasToken := m.accessToken != ""
	gen := m.generation
	m.setStateLocked(StateBootstrapping)
	m.mu.Unlock()

	if !hasToken {
		refreshed, err := m.refresh(ctx, nil)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				m.clearSessionIf(gen)
			} else {
				m.teardownIf(gen)
			}
			return err
		}
		if !refreshed {
			m.clearSessionIf(gen)
			return nil
		}
	}

	return m.loadProfile(ctx)
}

// RefreshSession forces a token exchange and leaves the session either fully
// authenticated, with a profile, or torn down. A rejected refresh token is
// deleted. A caller that stops waiting leaves the session as it was.
func (m *Manager) RefreshSession(ctx context.Context) (models.User, error) {
	if !m.HasStoredCredentials() {
		m.clearSession()
		return models.User{}, ErrNotAuthenticated
	}

	m.mu.Lock()
	gen := m.generation
	prev := m.state
	if m.user == nil {
		m.setStateLocked(StateBootstrapping)
	}
	m.mu.Unlock()

	refreshed, err := m.refresh(ctx, nil)
	switch {
	case err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()):
		m.mu.Lock()
		if m.generation == gen && m.state == StateBootstrapping {
			m.setStateLocked(prev)
		}
		m.mu.Unlock()
		return models.User{}, err
	case err != nil:
		m.teardownIf(gen)
		return models.User{}, err
	case !refreshed:
		m.clearSessionIf(gen)
		return models.User{}, ErrNotAuthenticated
	}

	if user, ok := m.User(); ok {
		return user, nil
	}
	if err := m.loadProfile(ctx); err != nil {
		return models.User{}, err
	}
	user, ok := m.User()
	if !ok {
		return models.User{}, ErrNotAuthenticated
	}
	return user, nil
}

// loadProfile fetches auth/me for the held access token. A 401 tears the
// session down; any other failure clears it from memory only.
func (m *Manager) loadProfile(ctx context.Context) error {
	token, gen := m.current()
	req, _ := api.NewRequest(http.MethodGet, "auth/me", nil)
	resp, err := api.Do[models.UserResponse](ctx, m.client, req, token)
	if err != nil {
		m.logger.Debug().Err(err).Msg("profile fetch failed")
		if api.IsUnauthorized(err) {
			m.teardownIf(gen)
		} else {
			m.clearSessionIf(gen)
		}
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		// A login or logout raced the fetch; its state wins.
		return nil
	}
	user := resp.User
	m.user = &user
	m.state = StateAuthenticated
	m.publishLocked()
	return nil
}

// Login authenticates with email and password. On failure the session is
// left exactly as it was.
func (m *Manager) Login(ctx context.Context, email, password string) (models.User, error) {
	req, err := api.NewRequest(http.MethodPost, "auth/login", models.LoginRequest{Email: email, Password: password})
	if err != nil {
		return models.User{}, err
	}
	resp, err := api.Do[models.AuthResponse](ctx, m.client, req, "")
	if err != nil {
		return models.User{}, err
	}
	return m.establish(resp)
}

// Register creates an account and signs in to it.
func (m *Manager) Register(ctx context.Context, name, email, password string) (models.User, error) {
	req, err := api.NewRequest(http.MethodPost, "auth/register", models.RegisterRequest{Name: name, Email: email, Password: password})
	if err != nil {
		return models.User{}, err
	}
	resp, err := api.Do[models.AuthResponse](ctx, m.client, req, "")
	if err != nil {
		return models.User{}, err
	}
	return m.establish(resp)
}

func (m *Manager) establish(resp models.AuthResponse) (models.User, error) {
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		return models.User{}, api.ErrDecoding(errors.New("auth response is missing tokens"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Save(m.key, []byte(resp.RefreshToken)); err != nil {
		return models.User{}, fmt.Errorf("failed to persist refresh token: %w", err)
	}
	user := resp.User
	m.installLocked(resp.AccessToken, &user)
	m.logger.Info().Str("user_id", user.ID).Msg("signed in")
	return user, nil
}

// Logout tells the server to revoke the refresh token, ignoring any failure,
// then clears the session and the persisted token unconditionally.
//
// auth/logout needs a bearer token. When none is held, as at the start of a
// CLI run, the stored refresh token is exchanged first and the rotated one is
// revoked. If that exchange fails there is nothing left to revoke.
func (m *Manager) Logout(ctx context.Context) error {
	if m.HasStoredCredentials() {
		m.notifyLogout(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
	if err := m.store.Delete(m.key); err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	return nil
}

func (m *Manager) notifyLogout(ctx context.Context) {
	if token, _ := m.current(); token == "" {
		if refreshed, err := m.refresh(ctx, nil); err != nil || !refreshed {
			m.logger.Debug().Err(err).Msg("no session to revoke on the server")
			return
		}
	}

	refreshToken, ok := m.store.Read(m.key)
	if !ok || len(refreshToken) == 0 {
		return
	}
	token, _ := m.current()
	req, err := api.NewRequest(http.MethodPost, "auth/logout", models.LogoutRequest{RefreshToken: string(refreshToken)})
	if err != nil {
		return
	}
	if _, err := api.Do[api.NoContent](ctx, m.client, req, token); err != nil {
		m.logger.Debug().Err(err).Msg("server logout failed; clearing local session anyway")
	}
}

// Refresh exchanges the persisted refresh token for a new token pair and
// persists the rotated refresh token.
//
// It returns false with no error when there is nothing to refresh. Concurrent
// callers share one in-flight exchange. A caller whose ctx ends stops waiting
// but the shared exchange runs to completion for the others.
//
// On failure the session is not torn down; that is the caller's decision.
func (m *Manager) Refresh(ctx context.Context) (bool, error) {
	return m.refresh(ctx, nil)
}

// refresh joins or starts the shared exchange. When seen is set, an exchange
// started after the session already moved past generation *seen is skipped:
// the caller's rejected token has been replaced and a retry is enough.
func (m *Manager) refresh(ctx context.Context, seen *uint64) (bool, error) {
	shared := context.WithoutCancel(ctx)
	ch := m.refreshGroup.DoChan("refresh", func() (any, error) {
		return m.exchange(shared, seen)
	})

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool), nil
	}
}

func (m *Manager) exchange(ctx context.Context, seen *uint64) (bool, error) {
	m.mu.Lock()
	if seen != nil && m.generation != *seen && m.accessToken != "" {
		m.mu.Unlock()
		return true, nil
	}
	m.mu.Unlock()

	refreshToken, ok := m.store.Read(m.key)
	if !ok || len(refreshToken) == 0 {
		return false, nil
	}

	m.mu.Lock()
	gen := m.generation
	prev := m.state
	if prev == StateAuthenticated {
		m.setStateLocked(StateRefreshing)
	}
	m.mu.Unlock()

	m.hooks.OnRefreshStart(ctx)
	start := time.Now()
	resp, err := m.requestRefresh(ctx, refreshToken)
	if err == nil {
		err = m.installRefreshed(gen, resp)
	}
	m.hooks.OnRefreshEnd(ctx, err, time.Since(start))

	if err != nil {
		m.logger.Debug().Err(err).Msg("token refresh failed")
		m.mu.Lock()
		if m.state == StateRefreshing && m.generation == gen {
			m.setStateLocked(prev)
		}
		m.mu.Unlock()
		return false, err
	}
	m.logger.Debug().Msg("token refreshed")
	return true, nil
}

func (m *Manager) requestRefresh(ctx context.Context, refreshToken []byte) (models.RefreshResponse, error) {
	req, err := api.NewRequest(http.MethodPost, "auth/refresh", models.RefreshRequest{RefreshToken: string(refreshToken)})
	if err != nil {
		return models.RefreshResponse{}, err
	}
	resp, err := api.Do[models.RefreshResponse](ctx, m.client, req, "")
	if err != nil {
		return resp, err
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		return resp, api.ErrDecoding(errors.New("refresh response is missing tokens"))
	}
	return resp, nil
}

// installRefreshed persists the rotated refresh token and installs the new
// access token, unless the session changed while the exchange was in flight.
func (m *Manager) installRefreshed(gen uint64, resp models.RefreshResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generation != gen {
		if m.accessToken == "" {
			return ErrNotAuthenticated
		}
		// A newer login already installed its own pair.
		return nil
	}
	if err := m.store.Save(m.key, []byte(resp.RefreshToken)); err != nil {
		return fmt.Errorf("failed to persist rotated refresh token: %w", err)
	}
	m.installLocked(resp.AccessToken, nil)
	return nil
}

// Do executes req through the session, recovering from one expired access
// token. A 401 triggers a shared refresh and a single retry; the retry's
// outcome is returned as-is. If the refresh fails the session is torn down
// and the refresh error is returned.
func Do[T any](ctx context.Context, m *Manager, req api.Request) (T, error) {
	return withRecovery(ctx, m, req, func(token string) (T, error) {
		return api.Do[T](ctx, m.client, req, token)
	})
}

// Send is Do for callers that want the raw response body.
func (m *Manager) Send(ctx context.Context, req api.Request) (*api.Response, error) {
	return withRecovery(ctx, m, req, func(token string) (*api.Response, error) {
		return m.client.Send(ctx, req, token)
	})
}

func withRecovery[T any](ctx context.Context, m *Manager, req api.Request, call func(token string) (T, error)) (T, error) {
	token, gen := m.current()
	v, err := call(token)
	if !api.IsUnauthorized(err) {
		return v, err
	}

	var zero T
	m.mu.Lock()
	stale := m.generation != gen
	m.mu.Unlock()

	// Only refresh if the rejected token is still the one we hold; otherwise
	// another caller already replaced it and we just retry.
	if !stale {
		refreshed, rerr := m.refresh(ctx, &gen)
		switch {
		case rerr != nil:
			if ctx.Err() != nil && errors.Is(rerr, ctx.Err()) {
				return zero, rerr
			}
			m.teardownIf(gen)
			return zero, rerr
		case !refreshed:
			m.clearSessionIf(gen)
			return zero, err
		}
	}

	m.hooks.OnAuthRetry(ctx, req.Path)
	token, gen = m.current()
	v, err = call(token)
	if api.IsUnauthorized(err) {
		m.logger.Debug().Str("path", req.Path).Msg("retry rejected; ending session")
		m.teardownIf(gen)
	}
	return v, err
}

func (m *Manager) current() (string, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessToken, m.generation
}

func (m *Manager) installLocked(accessToken string, user *models.User) {
	m.accessToken = accessToken
	if user != nil {
		m.user = user
	}
	m.generation++
	// A bootstrap refresh stays Bootstrapping until the profile arrives.
	if user != nil || m.state != StateBootstrapping {
		m.state = StateAuthenticated
	}
	m.publishLocked()
}

func (m *Manager) clearLocked() {
	changed := m.accessToken != "" || m.user != nil || m.state != StateLoggedOut
	m.accessToken = ""
	m.user = nil
	m.generation++
	m.state = StateLoggedOut
	if changed {
		m.publishLocked()
	}
}

// clearSession drops in-memory state and keeps the persisted token.
func (m *Manager) clearSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
}

func (m *Manager) clearSessionIf(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation == gen {
		m.clearLocked()
	}
}

// teardownIf tears down only if no other caller changed the session since gen.
func (m *Manager) teardownIf(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation == gen {
		m.teardownLocked()
	}
}

func (m *Manager) teardownLocked() {
	m.clearLocked()
	if err := m.store.Delete(m.key); err != nil {
		m.logger.Warn().Err(err).Msg("failed to delete refresh token")
	}
}
