package client

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Call describes one attempt of a logical call. A Call is immutable per
// attempt; Retry derives the single permitted post-refresh replay.
type Call struct {
	OperationID string
	Args        any
	// Attempt is 1 for the first dispatch and 2 for the replay.
	Attempt   int
	IsRetry   bool
	RequestID string
}

func newCall(operationID string, args any) Call {
	return Call{
		OperationID: operationID,
		Args:        args,
		Attempt:     1,
		RequestID:   uuid.NewString(),
	}
}

// Retry returns the replay of c after a successful refresh.
func (c Call) Retry() Call {
	c.Attempt++
	c.IsRetry = true
	c.RequestID = uuid.NewString()

	return c
}

// Response is a fully buffered result. One Response may be shared by every
// caller coalesced onto the same call; treat it as read-only.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Credential is the material attached to an attempt.
type Credential struct {
	AccessToken string
	// CookieName, when set, also sends the token as a cookie.
	CookieName string
}

// Apply sets the bearer header, and the session cookie when configured.
// An empty token leaves the request unauthenticated.
func (c Credential) Apply(req *http.Request) {
	if c.AccessToken == "" {
		return
	}

	req.Header.Set("Authorization", "Bearer "+c.AccessToken)

	if c.CookieName != "" {
		req.AddCookie(&http.Cookie{Name: c.CookieName, Value: c.AccessToken})
	}
}

// Issuer performs the real call for one attempt.
type Issuer func(ctx context.Context, call Call, cred Credential) (*Response, error)
