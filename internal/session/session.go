// Package session owns the credential material of the signed-in user: the
// persisted stores it lives in, the in-process cache of the current
// session, and the teardown that destroys it when recovery is impossible.
package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// ErrNotLoggedIn is returned when no session has been established.
var ErrNotLoggedIn = errors.New("session: not logged in")

// ErrLoggedOut is the teardown reason for a user-initiated logout.
var ErrLoggedOut = errors.New("session: logged out")

// Identity is the client-side view of the signed-in user, derived from the
// access token's claims. It is a cache and never used for authorization.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// IsZero reports whether no identity fields are known.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

// Map converts the identity to its persisted form.
func (id Identity) Map() map[string]string {
	if id.IsZero() {
		return nil
	}

	m := make(map[string]string, 3)
	if id.Subject != "" {
		m["sub"] = id.Subject
	}

	if id.Email != "" {
		m["email"] = id.Email
	}

	if id.Name != "" {
		m["name"] = id.Name
	}

	return m
}

// IdentityFromMap restores an identity persisted by Map.
func IdentityFromMap(m map[string]string) Identity {
	return Identity{Subject: m["sub"], Email: m["email"], Name: m["name"]}
}

// Session is the credential material of one signed-in user.
type Session struct {
	Token    *oauth2.Token
	Identity Identity

	// epoch is the Manager generation this session belongs to.
	epoch uint64
}

// New builds a Session from a token, deriving the identity from the access
// token when it is a JWT. Opaque tokens yield an empty identity.
func New(tok *oauth2.Token) *Session {
	s := &Session{Token: tok}
	if tok != nil {
		s.Identity, _ = IdentityFromAccessToken(tok.AccessToken)
	}

	return s
}

// AccessToken returns the bearer credential, or "" for a nil session.
func (s *Session) AccessToken() string {
	if s == nil || s.Token == nil {
		return ""
	}

	return s.Token.AccessToken
}

// RefreshToken returns the refresh credential, or "" when absent.
func (s *Session) RefreshToken() string {
	if s == nil || s.Token == nil {
		return ""
	}

	return s.Token.RefreshToken
}

// Expiry returns the access token expiry; zero when unknown.
func (s *Session) Expiry() time.Time {
	if s == nil || s.Token == nil {
		return time.Time{}
	}

	return s.Token.Expiry
}

// identityClaims are the claims read from access tokens.
type identityClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	UID   string `json:"uid"`
	jwt.RegisteredClaims
}

// IdentityFromAccessToken reads identity claims from a JWT access token
// without verifying its signature; the server verifies on every call.
func IdentityFromAccessToken(access string) (Identity, error) {
	var claims identityClaims

	if _, _, err := jwt.NewParser().ParseUnverified(access, &claims); err != nil {
		return Identity{}, err
	}

	sub := claims.Subject
	if sub == "" {
		sub = claims.UID
	}

	return Identity{Subject: sub, Email: claims.Email, Name: claims.Name}, nil
}
