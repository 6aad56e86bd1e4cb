package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/arturoeanton/campus-market/internal/domain"
	"github.com/arturoeanton/campus-market/internal/port"
)

const (
	demoAccessPrefix  = "demo-access-"
	demoRefreshPrefix = "demo-refresh-"
	demoIDPrefix      = "demo-id-"
)

// DemoProvider implements port.IdentityProvider without any network calls.
// The authorization "code" is the display name the user typed in; tokens
// are derived from it deterministically.
type DemoProvider struct {
	callbackURL string
}

// NewDemoProvider creates a demo provider whose authorization URL points
// straight back at callbackURL.
func NewDemoProvider(callbackURL string) *DemoProvider {
	return &DemoProvider{callbackURL: callbackURL}
}

// ProviderName returns "demo".
func (d *DemoProvider) ProviderName() string {
	return "demo"
}

// AuthURL returns the callback URL carrying a demo code and the state.
func (d *DemoProvider) AuthURL(state string) (string, error) {
	if d.callbackURL == "" {
		return "", fmt.Errorf("%w: demo callback URL is not set", port.ErrConfiguration)
	}
	q := url.Values{"code": {"Demo Student"}, "provider": {"demo"}}
	if state != "" {
		q.Set("state", state)
	}
	return d.callbackURL + "?" + q.Encode(), nil
}

// ExchangeCode accepts any non-empty code.
func (d *DemoProvider) ExchangeCode(_ context.Context, code string) (*domain.TokenSet, error) {
	name := strings.TrimSpace(code)
	if name == "" {
		return nil, &port.UpstreamError{Kind: port.ErrTokenExchange, Status: http.StatusBadRequest, Body: "invalid_grant"}
	}
	return &domain.TokenSet{
		AccessToken:  demoAccessPrefix + name,
		TokenType:    "Bearer",
		ExpiresIn:    3600,
		RefreshToken: demoRefreshPrefix + name,
		Scope:        googleScope,
		IDToken:      demoIDPrefix + name,
	}, nil
}

// FetchProfile decodes the identity from a demo access token.
func (d *DemoProvider) FetchProfile(_ context.Context, accessToken string) (*domain.Identity, error) {
	name, ok := strings.CutPrefix(accessToken, demoAccessPrefix)
	if !ok || name == "" {
		return nil, &port.UpstreamError{Kind: port.ErrProfileFetch, Status: http.StatusUnauthorized}
	}
	return demoIdentity(name), nil
}

// RefreshToken issues a new access token. The refresh token is never
// rotated, so callers keep the one they hold.
func (d *DemoProvider) RefreshToken(_ context.Context, refreshToken string) (*domain.TokenSet, error) {
	if refreshToken == "" {
		return nil, port.ErrNoRefreshToken
	}
	name, ok := strings.CutPrefix(refreshToken, demoRefreshPrefix)
	if !ok || name == "" {
		return nil, &port.UpstreamError{Kind: port.ErrTokenRefresh, Status: http.StatusBadRequest, Body: "invalid_grant"}
	}
	return &domain.TokenSet{
		AccessToken: demoAccessPrefix + name,
		TokenType:   "Bearer",
		ExpiresIn:   3600,
		Scope:       googleScope,
	}, nil
}

// ValidateIDToken accepts tokens issued by ExchangeCode.
func (d *DemoProvider) ValidateIDToken(_ context.Context, idToken string) (*domain.Identity, error) {
	name, ok := strings.CutPrefix(idToken, demoIDPrefix)
	if !ok || name == "" {
		return nil, fmt.Errorf("%w: not a demo token", port.ErrInvalidToken)
	}
	return demoIdentity(name), nil
}

func demoIdentity(name string) *domain.Identity {
	slug := strings.ToLower(strings.Join(strings.Fields(name), "."))
	given, family, _ := strings.Cut(name, " ")
	return &domain.Identity{
		ID:         "demo-" + slug,
		Email:      slug + "@campus.demo",
		Name:       name,
		GivenName:  given,
		FamilyName: family,
		Locale:     "en",
	}
}
