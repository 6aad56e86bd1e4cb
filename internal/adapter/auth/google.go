package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/arturoeanton/campus-market/internal/domain"
	"github.com/arturoeanton/campus-market/internal/port"
)

// GoogleEndpoints lists the provider URLs the client talks to.
type GoogleEndpoints struct {
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	TokenInfoURL string
}

// DefaultGoogleEndpoints are Google's production OAuth2 / OpenID endpoints.
var DefaultGoogleEndpoints = GoogleEndpoints{
	AuthURL:      "https://accounts.google.com/o/oauth2/v2/auth",
	TokenURL:     "https://oauth2.googleapis.com/token",
	UserInfoURL:  "https://www.googleapis.com/oauth2/v2/userinfo",
	TokenInfoURL: "https://oauth2.googleapis.com/tokeninfo",
}

const googleScope = "openid email profile"

// GoogleProvider implements port.IdentityProvider for Google OAuth2.
type GoogleProvider struct {
	clientID     string
	clientSecret string
	redirectURL  string
	endpoints    GoogleEndpoints
	httpClient   *http.Client
}

// GoogleOption customizes a GoogleProvider.
type GoogleOption func(*GoogleProvider)

// WithEndpoints overrides the provider URLs. Empty fields keep their defaults.
func WithEndpoints(e GoogleEndpoints) GoogleOption {
	return func(g *GoogleProvider) {
		if e.AuthURL != "" {
			g.endpoints.AuthURL = e.AuthURL
		}
		if e.TokenURL != "" {
			g.endpoints.TokenURL = e.TokenURL
		}
		if e.UserInfoURL != "" {
			g.endpoints.UserInfoURL = e.UserInfoURL
		}
		if e.TokenInfoURL != "" {
			g.endpoints.TokenInfoURL = e.TokenInfoURL
		}
	}
}

// WithHTTPClient replaces the HTTP client used for provider calls.
func WithHTTPClient(c *http.Client) GoogleOption {
	return func(g *GoogleProvider) {
		g.httpClient = c
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) GoogleOption {
	return func(g *GoogleProvider) {
		g.httpClient.Timeout = d
	}
}

// NewGoogleProvider creates a new Google OAuth2 provider.
func NewGoogleProvider(clientID, clientSecret, redirectURL string, opts ...GoogleOption) *GoogleProvider {
	g := &GoogleProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		endpoints:    DefaultGoogleEndpoints,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ProviderName returns "google".
func (g *GoogleProvider) ProviderName() string {
	return "google"
}

// AuthURL returns the Google OAuth2 consent screen URL.
func (g *GoogleProvider) AuthURL(state string) (string, error) {
	if g.clientID == "" {
		return "", fmt.Errorf("%w: GOOGLE_CLIENT_ID is not set", port.ErrConfiguration)
	}

	cfg := &oauth2.Config{
		ClientID:     g.clientID,
		ClientSecret: g.clientSecret,
		RedirectURL:  g.redirectURL,
		Scopes:       strings.Fields(googleScope),
		Endpoint: oauth2.Endpoint{
			AuthURL:  g.endpoints.AuthURL,
			TokenURL: g.endpoints.TokenURL,
		},
	}
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// ExchangeCode exchanges an authorization code for tokens.
func (g *GoogleProvider) ExchangeCode(ctx context.Context, code string) (*domain.TokenSet, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: empty authorization code", port.ErrTokenExchange)
	}

	data := url.Values{
		"code":          {code},
		"client_id":     {g.clientID},
		"client_secret": {g.clientSecret},
		"redirect_uri":  {g.redirectURL},
		"grant_type":    {"authorization_code"},
	}

	tokens, err := g.postToken(ctx, data, port.ErrTokenExchange)
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// RefreshToken exchanges a refresh token for a fresh access token.
func (g *GoogleProvider) RefreshToken(ctx context.Context, refreshToken string) (*domain.TokenSet, error) {
	if refreshToken == "" {
		return nil, port.ErrNoRefreshToken
	}

	data := url.Values{
		"refresh_token": {refreshToken},
		"client_id":     {g.clientID},
		"client_secret": {g.clientSecret},
		"grant_type":    {"refresh_token"},
	}

	return g.postToken(ctx, data, port.ErrTokenRefresh)
}

func (g *GoogleProvider) postToken(ctx context.Context, data url.Values, kind error) (*domain.TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoints.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("google: create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google: %w: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, upstreamError(kind, resp)
	}

	var tokens domain.TokenSet
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return nil, fmt.Errorf("google: %w: decode token response: %w", kind, err)
	}
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("google: %w: response has no access_token", kind)
	}

	return &tokens, nil
}

// FetchProfile fetches the Google user profile using an access token.
func (g *GoogleProvider) FetchProfile(ctx context.Context, accessToken string) (*domain.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoints.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("google: create profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google: %w: %w", port.ErrProfileFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, upstreamError(port.ErrProfileFetch, resp)
	}

	var profile domain.Identity
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("google: %w: decode profile: %w", port.ErrProfileFetch, err)
	}
	if profile.ID == "" {
		return nil, fmt.Errorf("google: %w: profile has no id", port.ErrProfileFetch)
	}

	return &profile, nil
}

// ValidateIDToken checks an ID token with Google's tokeninfo endpoint and
// verifies it was issued for this client. Tokens whose exp claim is already
// in the past are rejected without a network call.
func (g *GoogleProvider) ValidateIDToken(ctx context.Context, idToken string) (*domain.Identity, error) {
	if g.clientID == "" {
		return nil, fmt.Errorf("%w: GOOGLE_CLIENT_ID is not set", port.ErrConfiguration)
	}
	if idToken == "" {
		return nil, fmt.Errorf("%w: empty token", port.ErrInvalidToken)
	}
	if expired(idToken) {
		return nil, fmt.Errorf("%w: token expired", port.ErrInvalidToken)
	}

	endpoint := g.endpoints.TokenInfoURL + "?" + url.Values{"id_token": {idToken}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("google: create tokeninfo request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google: %w: %w", port.ErrInvalidToken, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, upstreamError(port.ErrInvalidToken, resp)
	}

	var info struct {
		Aud        string `json:"aud"`
		Sub        string `json:"sub"`
		Email      string `json:"email"`
		Name       string `json:"name"`
		Picture    string `json:"picture"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
		Locale     string `json:"locale"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("google: %w: decode tokeninfo: %w", port.ErrInvalidToken, err)
	}
	if info.Aud != g.clientID {
		return nil, fmt.Errorf("%w: audience mismatch", port.ErrInvalidToken)
	}

	return &domain.Identity{
		ID:         info.Sub,
		Email:      info.Email,
		Name:       info.Name,
		Picture:    info.Picture,
		GivenName:  info.GivenName,
		FamilyName: info.FamilyName,
		Locale:     info.Locale,
	}, nil
}

// expired reports whether idToken is a JWT whose exp claim has passed.
// Anything that does not parse is left for the provider to judge.
func expired(idToken string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}

func upstreamError(kind error, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &port.UpstreamError{
		Kind:   kind,
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(body)),
	}
}
