package authapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/authwire/internal/failure"
	"github.com/tonimelisma/authwire/internal/session"
)

// OAuth2Refresher renews the session against a standard OAuth2 token
// endpoint (grant_type=refresh_token). It implements refresh.Refresher.
type OAuth2Refresher struct {
	cfg        *oauth2.Config
	sessions   *session.Manager
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOAuth2Refresher returns a refresher for cfg. httpClient may be nil.
func NewOAuth2Refresher(cfg *oauth2.Config, sessions *session.Manager, httpClient *http.Client, logger *slog.Logger) *OAuth2Refresher {
	if logger == nil {
		logger = slog.Default()
	}

	return &OAuth2Refresher{cfg: cfg, sessions: sessions, httpClient: httpClient, logger: logger}
}

// Refresh exchanges the current refresh token for a new token pair.
func (r *OAuth2Refresher) Refresh(ctx context.Context) error {
	s, err := r.sessions.Current(ctx)
	if err != nil {
		return fmt.Errorf("authapi: refreshing: %w", err)
	}

	if s.RefreshToken() == "" {
		return ErrNoRefreshToken
	}

	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}

	// Without an access token the source always hits the token endpoint.
	src := r.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: s.RefreshToken()})

	tok, err := src.Token()
	if err != nil {
		return r.classify(err)
	}

	r.logger.Debug("oauth2 token refreshed", slog.Time("expiry", tok.Expiry))

	_, err = r.sessions.Replace(ctx, s, tok)

	return err
}

// classify turns a token endpoint rejection into a CallError so a revoked
// refresh token reads as invalid credentials.
func (r *OAuth2Refresher) classify(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.Response == nil {
		return fmt.Errorf("authapi: oauth2 refresh: %w", err)
	}

	msg := re.ErrorDescription
	if msg == "" {
		msg = re.ErrorCode
	}

	if msg == "" {
		msg = message(re.Body)
	}

	callErr := failure.NewCallError(http.MethodPost+" "+r.cfg.Endpoint.TokenURL, re.Response.StatusCode, "", msg)

	// invalid_grant is the OAuth2 way of saying the refresh token is dead.
	if re.ErrorCode == "invalid_grant" || re.Response.StatusCode == http.StatusUnauthorized {
		return failure.Terminal(failure.InvalidCredentials, callErr)
	}

	return callErr
}
