package failure

import (
	"errors"
	"net/http"
	"strings"
)

// Class is the recovery path chosen for a failed call.
type Class int

const (
	// Other failures propagate untouched and have no session impact.
	Other Class = iota
	// AuthExpired failures are recoverable through a token refresh.
	AuthExpired
	// InvalidCredentials failures come from the auth endpoints themselves.
	InvalidCredentials
	// SignatureInvalid failures end the session without attempting a refresh.
	SignatureInvalid
)

func (c Class) String() string {
	switch c {
	case AuthExpired:
		return "auth_expired"
	case InvalidCredentials:
		return "invalid_credentials"
	case SignatureInvalid:
		return "signature_invalid"
	default:
		return "other"
	}
}

// DefaultAuthPaths are the operation suffixes of the login, register and
// refresh endpoints.
var DefaultAuthPaths = []string{"/auth/login", "/auth/register", "/auth/refresh"}

// signatureMarkers are matched case-insensitively against 401 messages.
var signatureMarkers = []string{
	"invalid signature",
	"signature is invalid",
	"signature mismatch",
}

// Classifier inspects failure metadata. The zero value is not usable; use
// NewClassifier.
type Classifier struct {
	authPaths []string
}

// NewClassifier returns a Classifier that treats operations ending in any
// of authPaths as auth calls. A nil slice selects DefaultAuthPaths.
func NewClassifier(authPaths []string) *Classifier {
	if authPaths == nil {
		authPaths = DefaultAuthPaths
	}

	return &Classifier{authPaths: authPaths}
}

// IsAuthCall reports whether operationID addresses a login, register or
// refresh endpoint. Query strings are ignored.
func (c *Classifier) IsAuthCall(operationID string) bool {
	op, _, _ := strings.Cut(operationID, "?")

	for _, p := range c.authPaths {
		if p != "" && strings.HasSuffix(op, p) {
			return true
		}
	}

	return false
}

// Classify picks the recovery path for err, returned by the call identified
// by operationID. isRetry marks the single post-refresh replay.
func (c *Classifier) Classify(operationID string, isRetry bool, err error) Class {
	var callErr *CallError
	if !errors.As(err, &callErr) || callErr.StatusCode != http.StatusUnauthorized {
		return Other
	}

	if hasSignatureMarker(callErr.Message) {
		return SignatureInvalid
	}

	if c.IsAuthCall(operationID) {
		return InvalidCredentials
	}

	if isRetry {
		return Other
	}

	return AuthExpired
}

func hasSignatureMarker(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range signatureMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}

	return false
}

// Terminal wraps err with the sentinel for a terminal class. Other and
// AuthExpired return err unchanged.
func Terminal(class Class, err error) error {
	switch class {
	case InvalidCredentials:
		return &SessionError{Kind: ErrInvalidCredentials, Cause: err}
	case SignatureInvalid:
		return &SessionError{Kind: ErrSignatureInvalid, Cause: err}
	default:
		return err
	}
}
