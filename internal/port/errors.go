package port

import (
	"errors"
	"fmt"
)

// Sentinel errors used across ports.
var (
	ErrConfiguration   = errors.New("oauth configuration incomplete")
	ErrTokenExchange   = errors.New("token exchange failed")
	ErrTokenRefresh    = errors.New("token refresh failed")
	ErrProfileFetch    = errors.New("profile fetch failed")
	ErrInvalidToken    = errors.New("invalid identity token")
	ErrNoRefreshToken  = errors.New("no refresh token available")
	ErrUnknownProvider = errors.New("unknown identity provider")
	ErrUnauthorized    = errors.New("not signed in")
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
)

// UpstreamError reports a rejection by the identity provider. It unwraps to
// its Kind so callers can match with errors.Is.
type UpstreamError struct {
	Kind   error
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%v (status %d)", e.Kind, e.Status)
	}
	return fmt.Sprintf("%v (status %d): %s", e.Kind, e.Status, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return e.Kind
}

// Authentication error codes carried to the error page.
const (
	AuthErrAccessDenied    = "access_denied"
	AuthErrNoCode          = "no_code"
	AuthErrFailed          = "auth_failed"
	AuthErrInvalidState    = "invalid_state"
	AuthErrSetupIncomplete = "setup_incomplete"
)

var authErrorMessages = map[string]string{
	"access_denied":             "You denied the permission to access your Google account",
	"invalid_request":           "Invalid authentication request",
	"unauthorized_client":       "This application is not authorized to access Google accounts",
	"unsupported_response_type": "Unsupported response type",
	"invalid_scope":             "Invalid scope requested",
	"server_error":              "Google authentication server error",
	"temporarily_unavailable":   "Google authentication is temporarily unavailable",
	"no_code":                   "No authorization code received from Google",
	"auth_failed":               "Authentication failed during token exchange",
	"invalid_state":             "The sign-in request expired or was tampered with, please try again",
	"setup_incomplete":          "Sign-in is not configured yet",
}

const defaultAuthErrorMessage = "An unexpected error occurred during authentication"

// AuthErrorMessage maps an authentication error code to its user-facing message.
func AuthErrorMessage(code string) string {
	if msg, ok := authErrorMessages[code]; ok {
		return msg
	}
	return defaultAuthErrorMessage
}
