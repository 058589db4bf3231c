package authapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/authwire/internal/failure"
	"github.com/tonimelisma/authwire/internal/session"
)

// authServer is a fake backend issuing HS256 access tokens.
type authServer struct {
	t *testing.T

	mu         sync.Mutex
	refresh    string
	rotations  int
	logouts    []string
	lastCreds  Credentials
	tokenCalls int
}

func newAuthServer(t *testing.T) (*authServer, *httptest.Server) {
	t.Helper()

	a := &authServer{t: t, refresh: "r-1"}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", a.login)
	mux.HandleFunc("POST /auth/register", a.register)
	mux.HandleFunc("POST /auth/refresh", a.rotate)
	mux.HandleFunc("POST /auth/logout", a.logout)
	mux.HandleFunc("POST /oauth/token", a.oauthToken)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return a, srv
}

func (a *authServer) access(email string) string {
	claims := jwt.MapClaims{
		"sub":   "u-" + email,
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	require.NoError(a.t, err)

	return s
}

func (a *authServer) login(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	_ = json.NewDecoder(r.Body).Decode(&creds)

	a.mu.Lock()
	a.lastCreds = creds
	refresh := a.refresh
	a.mu.Unlock()

	if creds.Password != "hunter2" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "wrong email or password"})
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  a.access(creds.Email),
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    3600,
	})
}

func (a *authServer) register(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	_ = json.NewDecoder(r.Body).Decode(&creds)

	a.mu.Lock()
	a.lastCreds = creds
	a.mu.Unlock()

	writeJSON(w, http.StatusCreated, tokenResponse{
		AccessToken:  a.access(creds.Email),
		RefreshToken: "r-1",
		ExpiresIn:    3600,
	})
}

func (a *authServer) rotate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	a.mu.Lock()
	defer a.mu.Unlock()

	if body.RefreshToken != a.refresh {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "refresh token revoked"})
		return
	}

	a.rotations++
	a.refresh = fmt.Sprintf("r-%d", a.rotations+1)

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  a.access("bob@example.com"),
		RefreshToken: a.refresh,
		ExpiresIn:    3600,
	})
}

func (a *authServer) logout(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.logouts = append(a.logouts, r.Header.Get("Authorization"))
	a.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (a *authServer) oauthToken(w http.ResponseWriter, r *http.Request) {
	require.NoError(a.t, r.ParseForm())

	a.mu.Lock()
	a.tokenCalls++
	valid := a.refresh
	a.mu.Unlock()

	if r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("refresh_token") != valid {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_grant",
			"error_description": "refresh token revoked",
		})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  a.access("oauth@example.com"),
		"token_type":    "Bearer",
		"refresh_token": "r-oauth",
		"expires_in":    3600,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type fakeNavigator struct {
	mu     sync.Mutex
	routes []string
}

func (n *fakeNavigator) CurrentRoute() string { return "/dashboard" }

func (n *fakeNavigator) Redirect(_ context.Context, route string) error {
	n.mu.Lock()
	n.routes = append(n.routes, route)
	n.mu.Unlock()

	return nil
}

type fixture struct {
	api      *Client
	server   *authServer
	srv      *httptest.Server
	sessions *session.Manager
	teardown *session.Teardown
	nav      *fakeNavigator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	a, srv := newAuthServer(t)
	m := session.NewManager(session.NewMemoryStore(), nil)
	nav := &fakeNavigator{}
	td := session.NewTeardown(session.TeardownConfig{Sessions: m, Navigator: nav})

	api := New(Config{
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		Sessions:   m,
		Teardown:   td,
	})

	return &fixture{api: api, server: a, srv: srv, sessions: m, teardown: td, nav: nav}
}

func TestLogin_EstablishesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.api.Login(ctx, Credentials{Email: "bob@example.com", Password: "hunter2", Name: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", s.Identity.Email)
	assert.Equal(t, "r-1", s.RefreshToken())
	assert.WithinDuration(t, time.Now().Add(time.Hour), s.Expiry(), time.Minute)
	assert.Empty(t, f.server.lastCreds.Name)

	cur, err := f.sessions.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.AccessToken(), cur.AccessToken())
}

func TestLogin_WrongPasswordIsInvalidCredentials(t *testing.T) {
	f := newFixture(t)

	_, err := f.api.Login(context.Background(), Credentials{Email: "bob@example.com", Password: "nope"})
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrInvalidCredentials)
	assert.ErrorIs(t, err, failure.ErrUnauthorized)

	_, err = f.sessions.Current(context.Background())
	assert.ErrorIs(t, err, session.ErrNotLoggedIn)
}

func TestRegister_EstablishesSession(t *testing.T) {
	f := newFixture(t)

	s, err := f.api.Register(context.Background(), Credentials{Email: "new@example.com", Password: "pw", Name: "New"})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", s.Identity.Email)
	assert.Equal(t, "New", f.server.lastCreds.Name)
}

func TestRefresh_RotatesTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before, err := f.api.Login(ctx, Credentials{Email: "bob@example.com", Password: "hunter2"})
	require.NoError(t, err)

	require.NoError(t, f.api.Refresh(ctx))

	after, err := f.sessions.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r-2", after.RefreshToken())
	assert.Equal(t, before.Identity, after.Identity)
}

func TestRefresh_RevokedTokenIsInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sessions.Establish(ctx, &oauth2.Token{AccessToken: "a", RefreshToken: "stolen"})
	require.NoError(t, err)

	err = f.api.Refresh(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrInvalidCredentials)
}

func TestRefresh_WithoutSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.api.Refresh(ctx), session.ErrNotLoggedIn)

	_, err := f.sessions.Establish(ctx, &oauth2.Token{AccessToken: "a"})
	require.NoError(t, err)
	assert.ErrorIs(t, f.api.Refresh(ctx), ErrNoRefreshToken)
}

func TestLogout_TearsDownSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.api.Login(ctx, Credentials{Email: "bob@example.com", Password: "hunter2"})
	require.NoError(t, err)

	require.NoError(t, f.api.Logout(ctx))

	assert.Equal(t, []string{"Bearer " + s.AccessToken()}, f.server.logouts)
	assert.Equal(t, []string{session.DefaultLoginRoute}, f.nav.routes)

	_, err = f.sessions.Current(ctx)
	assert.ErrorIs(t, err, session.ErrNotLoggedIn)

	assert.ErrorIs(t, f.api.Logout(ctx), session.ErrNotLoggedIn)
}

func TestLogin_RearmsTeardown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.api.Login(ctx, Credentials{Email: "bob@example.com", Password: "hunter2"})
	require.NoError(t, err)
	require.NoError(t, f.api.Logout(ctx))
	assert.False(t, f.teardown.Destroy(ctx, session.ErrLoggedOut))

	_, err = f.api.Login(ctx, Credentials{Email: "bob@example.com", Password: "hunter2"})
	require.NoError(t, err)
	assert.True(t, f.teardown.Destroy(ctx, session.ErrLoggedOut))
}

func oauthConfig(srv *httptest.Server) *oauth2.Config {
	return &oauth2.Config{
		ClientID: "authwire-test",
		Endpoint: oauth2.Endpoint{
			TokenURL:  srv.URL + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func TestOAuth2Refresher_ReplacesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sessions.Establish(ctx, &oauth2.Token{AccessToken: "expired", RefreshToken: "r-1"})
	require.NoError(t, err)

	r := NewOAuth2Refresher(oauthConfig(f.srv), f.sessions, f.srv.Client(), nil)
	require.NoError(t, r.Refresh(ctx))

	s, err := f.sessions.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r-oauth", s.RefreshToken())
	assert.Equal(t, "oauth@example.com", s.Identity.Email)
	assert.Equal(t, 1, f.server.tokenCalls)
}

func TestOAuth2Refresher_InvalidGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sessions.Establish(ctx, &oauth2.Token{AccessToken: "expired", RefreshToken: "revoked"})
	require.NoError(t, err)

	r := NewOAuth2Refresher(oauthConfig(f.srv), f.sessions, f.srv.Client(), nil)

	err = r.Refresh(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrInvalidCredentials)

	var callErr *failure.CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, http.StatusBadRequest, callErr.StatusCode)
	assert.Equal(t, "refresh token revoked", callErr.Message)
}
