// Package authapi talks to the backend authentication endpoints: login,
// register, token refresh and logout. Successful logins establish the
// session through the session.Manager; refreshes replace it in place.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/authwire/internal/failure"
	"github.com/tonimelisma/authwire/internal/session"
)

// ErrNoRefreshToken is returned by Refresh when the session cannot be renewed.
var ErrNoRefreshToken = errors.New("authapi: no refresh token")

const defaultUserAgent = "authwire/0.1"

// Paths are the endpoint paths relative to the base URL.
type Paths struct {
	Login    string
	Register string
	Refresh  string
	Logout   string
}

// DefaultPaths returns the conventional /auth/* endpoints.
func DefaultPaths() Paths {
	return Paths{
		Login:    "/auth/login",
		Register: "/auth/register",
		Refresh:  "/auth/refresh",
		Logout:   "/auth/logout",
	}
}

// AuthCalls returns the paths whose 401s mean bad credentials rather than
// an expired session.
func (p Paths) AuthCalls() []string {
	return []string{p.Login, p.Register, p.Refresh}
}

func (p Paths) withDefaults() Paths {
	d := DefaultPaths()

	if p.Login == "" {
		p.Login = d.Login
	}

	if p.Register == "" {
		p.Register = d.Register
	}

	if p.Refresh == "" {
		p.Refresh = d.Refresh
	}

	if p.Logout == "" {
		p.Logout = d.Logout
	}

	return p
}

// Credentials are what the user types in.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// Name is sent on register only.
	Name string `json:"name,omitempty"`
}

// tokenResponse is the JSON body returned by login, register and refresh.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (r tokenResponse) token(now time.Time) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
	}

	if r.ExpiresIn > 0 {
		tok.Expiry = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	}

	return tok
}

// Terminator ends the session. session.Teardown implements it.
type Terminator interface {
	Destroy(ctx context.Context, reason error) bool
}

// Config wires a Client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
	Paths      Paths
	Sessions   *session.Manager
	Teardown   Terminator
	Logger     *slog.Logger
}

// Client calls the auth endpoints directly, outside the dispatch pipeline:
// an auth call never triggers a refresh.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	paths      Paths
	sessions   *session.Manager
	teardown   Terminator
	logger     *slog.Logger
	classifier *failure.Classifier

	// now is replaced in tests.
	now func() time.Time
}

// New returns an auth Client.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	paths := cfg.Paths.withDefaults()

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: cfg.HTTPClient,
		userAgent:  cfg.UserAgent,
		paths:      paths,
		sessions:   cfg.Sessions,
		teardown:   cfg.Teardown,
		logger:     cfg.Logger,
		classifier: failure.NewClassifier(paths.AuthCalls()),
		now:        time.Now,
	}
}

// Login exchanges credentials for a session and persists it.
func (c *Client) Login(ctx context.Context, creds Credentials) (*session.Session, error) {
	c.logger.Info("logging in", slog.String("email", creds.Email))

	creds.Name = ""

	return c.establish(ctx, c.paths.Login, creds)
}

// Register creates an account and persists the resulting session.
func (c *Client) Register(ctx context.Context, creds Credentials) (*session.Session, error) {
	c.logger.Info("registering account", slog.String("email", creds.Email))

	return c.establish(ctx, c.paths.Register, creds)
}

func (c *Client) establish(ctx context.Context, path string, creds Credentials) (*session.Session, error) {
	var resp tokenResponse
	if err := c.post(ctx, path, "", creds, &resp); err != nil {
		return nil, err
	}

	if resp.AccessToken == "" {
		return nil, fmt.Errorf("authapi: POST %s: response has no access token", path)
	}

	return c.sessions.Establish(ctx, resp.token(c.now()))
}

// Refresh renews the current session with its refresh token. It implements
// refresh.Refresher.
func (c *Client) Refresh(ctx context.Context) error {
	s, err := c.sessions.Current(ctx)
	if err != nil {
		return fmt.Errorf("authapi: refreshing: %w", err)
	}

	if s.RefreshToken() == "" {
		return ErrNoRefreshToken
	}

	var resp tokenResponse

	body := map[string]string{"refresh_token": s.RefreshToken()}
	if err := c.post(ctx, c.paths.Refresh, s.AccessToken(), body, &resp); err != nil {
		return err
	}

	if resp.AccessToken == "" {
		return fmt.Errorf("authapi: POST %s: response has no access token", c.paths.Refresh)
	}

	_, err = c.sessions.Replace(ctx, s, resp.token(c.now()))

	return err
}

// Logout notifies the backend and tears the session down. The backend call
// is best effort; local teardown always happens.
func (c *Client) Logout(ctx context.Context) error {
	s, err := c.sessions.Current(ctx)
	if errors.Is(err, session.ErrNotLoggedIn) {
		return session.ErrNotLoggedIn
	}

	if err == nil {
		if postErr := c.post(ctx, c.paths.Logout, s.AccessToken(), nil, nil); postErr != nil {
			c.logger.Warn("backend logout failed, clearing local session anyway",
				slog.String("error", postErr.Error()),
			)
		}
	}

	if c.teardown != nil {
		c.teardown.Destroy(ctx, session.ErrLoggedOut)
		return nil
	}

	return c.sessions.Clear(ctx)
}

// post sends a JSON request and decodes a JSON response into out. Failures
// are classified: a 401 from an auth endpoint is ErrInvalidCredentials.
func (c *Client) post(ctx context.Context, path, bearer string, in, out any) error {
	op := http.MethodPost + " " + path

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("authapi: encoding %s: %w", op, err)
		}

		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("authapi: creating request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("authapi: %s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("authapi: %s: reading response: %w", op, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		callErr := failure.NewCallError(op, resp.StatusCode, resp.Header.Get("Request-Id"), message(data))
		class := c.classifier.Classify(op, false, callErr)

		c.logger.Debug("auth call failed",
			slog.String("operation", op),
			slog.Int("status", resp.StatusCode),
			slog.String("class", class.String()),
		)

		return failure.Terminal(class, callErr)
	}

	if out == nil || len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("authapi: decoding %s response: %w", op, err)
	}

	return nil
}

func message(data []byte) string {
	var env struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}

	if json.Unmarshal(data, &env) == nil {
		if env.Message != "" {
			return env.Message
		}

		if env.Error != "" {
			return env.Error
		}
	}

	return string(bytes.TrimSpace(data))
}
