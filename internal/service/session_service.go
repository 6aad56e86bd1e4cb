package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/arturoeanton/campus-market/internal/domain"
	"github.com/arturoeanton/campus-market/internal/middleware"
	"github.com/arturoeanton/campus-market/internal/port"
)

// Persisted session keys. Renaming any of them orphans existing sessions.
const (
	KeyUserInfo     = "google_user_info"
	KeyAccessToken  = "google_access_token"
	KeyRefreshToken = "google_refresh_token"
	KeyProvider     = "cm_auth_provider_v1"
)

var sessionKeys = []string{KeyUserInfo, KeyAccessToken, KeyRefreshToken, KeyProvider}

const defaultProvider = "google"

// refreshTimeout bounds a shared refresh, which runs detached from the
// contexts of the callers waiting on it.
const refreshTimeout = 30 * time.Second

// SessionService owns the signed-in identity and its token material.
// Mutating operations (Authenticate, Refresh, Logout) run one at a time.
type SessionService struct {
	providers port.IdentityProviderRegistry
	kv        port.KVStore

	mu        sync.Mutex
	refreshes singleflight.Group

	stateMu sync.RWMutex
	state   domain.Session
}

// NewSessionService creates the session store and rehydrates it from kv.
// Rehydration never fails: unreadable data leaves the session signed out.
func NewSessionService(ctx context.Context, providers port.IdentityProviderRegistry, kv port.KVStore) *SessionService {
	s := &SessionService{providers: providers, kv: kv}
	s.state = s.load(ctx)
	return s
}

// Current returns a snapshot of the session.
func (s *SessionService) Current() domain.Session {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// IsAuthenticated reports whether an identity is signed in.
func (s *SessionService) IsAuthenticated() bool {
	return s.Current().Authenticated()
}

// Reload discards the in-memory session and rehydrates it from storage.
func (s *SessionService) Reload(ctx context.Context) domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.load(ctx)
	s.setState(session)
	return session
}

// AuthURL returns the authorization URL of the named provider.
func (s *SessionService) AuthURL(providerName, state string) (string, error) {
	provider, err := s.provider(providerName)
	if err != nil {
		return "", err
	}
	return provider.AuthURL(state)
}

// Authenticate exchanges code with the named provider, fetches the profile
// and persists the new session. On any failure nothing is persisted and the
// previous session state is kept.
func (s *SessionService) Authenticate(ctx context.Context, providerName, code string) (domain.Session, error) {
	if providerName == "" {
		providerName = defaultProvider
	}
	provider, err := s.provider(providerName)
	if err != nil {
		return domain.Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := provider.ExchangeCode(ctx, code)
	if err != nil {
		middleware.RecordSessionEvent(providerName, domain.EventLoginFailed)
		return domain.Session{}, fmt.Errorf("exchange code: %w", err)
	}

	identity, err := provider.FetchProfile(ctx, tokens.AccessToken)
	if err != nil {
		middleware.RecordSessionEvent(providerName, domain.EventLoginFailed)
		return domain.Session{}, fmt.Errorf("get profile: %w", err)
	}

	entries, err := sessionEntries(providerName, identity, tokens)
	if err != nil {
		return domain.Session{}, err
	}
	if err := s.kv.SetMany(ctx, entries); err != nil {
		middleware.RecordSessionEvent(providerName, domain.EventLoginFailed)
		return domain.Session{}, fmt.Errorf("persist session: %w", err)
	}

	session := domain.Session{Provider: providerName, Identity: identity, Tokens: tokens}
	s.setState(session)

	middleware.RecordSessionEvent(providerName, domain.EventLogin)
	slog.Info("user authenticated", "user_id", identity.ID, "provider", providerName)
	return session, nil
}

// Refresh obtains a new access token with the persisted refresh token.
// Concurrent callers share one provider call. Without a refresh token, or
// when the provider rejects it, the session is logged out and the error
// (port.ErrNoRefreshToken or port.ErrTokenRefresh) is returned, joined with
// the storage error when the persisted session could not be cleared. The
// shared provider call does not inherit cancellation from any one caller.
func (s *SessionService) Refresh(ctx context.Context) (domain.TokenSet, error) {
	v, err, _ := s.refreshes.Do("refresh", func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return s.refresh(shared)
	})
	if err != nil {
		return domain.TokenSet{}, err
	}
	return v.(domain.TokenSet), nil
}

func (s *SessionService) refresh(ctx context.Context) (domain.TokenSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.Current()
	providerName := current.Provider

	refreshToken, err := s.readString(ctx, KeyRefreshToken)
	if err != nil {
		slog.Warn("could not read refresh token", "error", err)
	}
	if refreshToken == "" {
		logoutErr := s.logoutLocked(ctx, providerName, domain.EventRefreshFailed)
		return domain.TokenSet{}, errors.Join(port.ErrNoRefreshToken, logoutErr)
	}

	if providerName == "" {
		providerName, _ = s.readString(ctx, KeyProvider)
	}
	provider, err := s.provider(providerName)
	if err != nil {
		logoutErr := s.logoutLocked(ctx, providerName, domain.EventRefreshFailed)
		return domain.TokenSet{}, errors.Join(err, logoutErr)
	}

	next, err := provider.RefreshToken(ctx, refreshToken)
	if err != nil {
		slog.Warn("token refresh failed, logging out", "provider", providerName, "error", err)
		logoutErr := s.logoutLocked(ctx, providerName, domain.EventRefreshFailed)
		if !errors.Is(err, port.ErrTokenRefresh) && !errors.Is(err, port.ErrNoRefreshToken) {
			err = fmt.Errorf("%w: %w", port.ErrTokenRefresh, err)
		}
		return domain.TokenSet{}, errors.Join(fmt.Errorf("refresh session: %w", err), logoutErr)
	}

	entries := map[string][]byte{}
	if err := putJSON(entries, KeyAccessToken, next.AccessToken); err != nil {
		return domain.TokenSet{}, err
	}
	if next.RefreshToken != "" {
		if err := putJSON(entries, KeyRefreshToken, next.RefreshToken); err != nil {
			return domain.TokenSet{}, err
		}
	}
	if err := s.kv.SetMany(ctx, entries); err != nil {
		return domain.TokenSet{}, fmt.Errorf("persist refreshed tokens: %w", err)
	}

	base := domain.TokenSet{RefreshToken: refreshToken}
	if current.Tokens != nil {
		base = *current.Tokens
		base.RefreshToken = refreshToken
	}
	merged := base.Merge(*next)

	s.stateMu.Lock()
	s.state.Tokens = &merged
	if s.state.Provider == "" {
		s.state.Provider = providerName
	}
	s.stateMu.Unlock()

	middleware.RecordSessionEvent(providerName, domain.EventRefresh)
	slog.Info("session refreshed", "provider", providerName, "rotated", next.RefreshToken != "")
	return merged, nil
}

// RefreshWith refreshes a caller-held refresh token without touching the
// session. The input refresh token is kept when the provider does not
// rotate it.
func (s *SessionService) RefreshWith(ctx context.Context, providerName, refreshToken string) (domain.TokenSet, error) {
	if refreshToken == "" {
		return domain.TokenSet{}, port.ErrNoRefreshToken
	}
	provider, err := s.provider(providerName)
	if err != nil {
		return domain.TokenSet{}, err
	}

	next, err := provider.RefreshToken(ctx, refreshToken)
	if err != nil {
		return domain.TokenSet{}, fmt.Errorf("refresh token: %w", err)
	}
	return domain.TokenSet{RefreshToken: refreshToken}.Merge(*next), nil
}

// ValidateIDToken checks an identity token with the named provider. The
// session is left as it is.
func (s *SessionService) ValidateIDToken(ctx context.Context, providerName, idToken string) (*domain.Identity, error) {
	if idToken == "" {
		return nil, port.ErrInvalidToken
	}
	provider, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}
	return provider.ValidateIDToken(ctx, idToken)
}

// Logout clears every persisted session key and resets the session.
// Logging out while signed out is a no-op.
func (s *SessionService) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.logoutLocked(ctx, s.Current().Provider, domain.EventLogout)
}

func (s *SessionService) logoutLocked(ctx context.Context, providerName string, event domain.SessionEvent) error {
	wasAuthenticated := s.Current().Authenticated()
	s.setState(domain.Session{})

	if err := s.kv.Delete(ctx, sessionKeys...); err != nil {
		slog.Error("failed to clear persisted session", "error", err)
		return fmt.Errorf("clear session: %w", err)
	}

	if wasAuthenticated {
		middleware.RecordSessionEvent(providerName, event)
		slog.Info("session cleared", "provider", providerName, "reason", string(event))
	}
	return nil
}

func (s *SessionService) load(ctx context.Context) domain.Session {
	raw, ok, err := s.kv.Get(ctx, KeyUserInfo)
	if err != nil {
		slog.Warn("could not read persisted identity", "error", err)
		return domain.Session{}
	}
	if !ok {
		return domain.Session{}
	}

	var identity domain.Identity
	if err := json.Unmarshal(raw, &identity); err != nil || identity.ID == "" {
		slog.Warn("persisted identity is malformed, starting signed out", "error", err)
		return domain.Session{}
	}

	accessToken, err := s.readString(ctx, KeyAccessToken)
	if err != nil || accessToken == "" {
		return domain.Session{}
	}

	refreshToken, err := s.readString(ctx, KeyRefreshToken)
	if err != nil {
		slog.Warn("persisted refresh token is malformed", "error", err)
		refreshToken = ""
	}

	providerName, _ := s.readString(ctx, KeyProvider)
	if providerName == "" {
		providerName = defaultProvider
	}

	middleware.RecordSessionEvent(providerName, domain.EventRehydrate)
	return domain.Session{
		Provider: providerName,
		Identity: &identity,
		Tokens:   &domain.TokenSet{AccessToken: accessToken, RefreshToken: refreshToken},
	}
}

func (s *SessionService) setState(session domain.Session) {
	s.stateMu.Lock()
	s.state = session
	s.stateMu.Unlock()
}

func (s *SessionService) provider(name string) (port.IdentityProvider, error) {
	if name == "" {
		name = defaultProvider
	}
	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", port.ErrUnknownProvider, name)
	}
	return p, nil
}

// readString reads a JSON string value. Absent keys and JSON null read as "".
func (s *SessionService) readString(ctx context.Context, key string) (string, error) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil || !ok {
		return "", err
	}
	var v *string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("decode %s: %w", key, err)
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

// sessionEntries builds the full persisted session. A token set without a
// refresh token stores null, so a stale one from an earlier sign-in is
// overwritten in the same write.
func sessionEntries(providerName string, identity *domain.Identity, tokens *domain.TokenSet) (map[string][]byte, error) {
	entries := map[string][]byte{}
	if err := putJSON(entries, KeyUserInfo, identity); err != nil {
		return nil, err
	}
	if err := putJSON(entries, KeyAccessToken, tokens.AccessToken); err != nil {
		return nil, err
	}
	var refresh *string
	if tokens.RefreshToken != "" {
		refresh = &tokens.RefreshToken
	}
	if err := putJSON(entries, KeyRefreshToken, refresh); err != nil {
		return nil, err
	}
	if err := putJSON(entries, KeyProvider, providerName); err != nil {
		return nil, err
	}
	return entries, nil
}

func putJSON(entries map[string][]byte, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	entries[key] = raw
	return nil
}
