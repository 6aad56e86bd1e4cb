package port

import (
	"context"

	"github.com/arturoeanton/campus-market/internal/domain"
)

// IdentityProvider abstracts the OAuth2 identity provider.
// Implementations are stateless request functions for a specific provider
// (Google, the demo login, etc.) and never swallow errors.
type IdentityProvider interface {
	// ProviderName returns the name of this provider (e.g. "google", "demo").
	ProviderName() string

	// AuthURL returns the full authorization URL for redirecting the user.
	// The state is echoed back to the callback.
	AuthURL(state string) (string, error)

	// ExchangeCode exchanges an authorization code for a token set.
	ExchangeCode(ctx context.Context, code string) (*domain.TokenSet, error)

	// FetchProfile fetches the authenticated user's identity from the provider.
	FetchProfile(ctx context.Context, accessToken string) (*domain.Identity, error)

	// RefreshToken obtains a new access token. The returned set has an empty
	// RefreshToken when the provider did not rotate it.
	RefreshToken(ctx context.Context, refreshToken string) (*domain.TokenSet, error)

	// ValidateIDToken checks an identity token against the provider and
	// returns the identity it asserts.
	ValidateIDToken(ctx context.Context, idToken string) (*domain.Identity, error)
}

// IdentityProviderRegistry holds multiple IdentityProvider implementations keyed by name.
type IdentityProviderRegistry map[string]IdentityProvider

// NewIdentityProviderRegistry keys providers by their ProviderName.
func NewIdentityProviderRegistry(providers ...IdentityProvider) IdentityProviderRegistry {
	r := make(IdentityProviderRegistry, len(providers))
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds p under its ProviderName, replacing any provider of the
// same name.
func (r IdentityProviderRegistry) Register(p IdentityProvider) {
	r[p.ProviderName()] = p
}

// Names returns the registered provider names.
func (r IdentityProviderRegistry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	return names
}
