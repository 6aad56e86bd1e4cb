package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arturoeanton/campus-market/internal/adapter/store"
	"github.com/arturoeanton/campus-market/internal/domain"
	"github.com/arturoeanton/campus-market/internal/port"
)

// fakeProvider is a scripted port.IdentityProvider.
type fakeProvider struct {
	exchangeErr  error
	profileErr   error
	refreshErr   error
	rotate       bool
	refreshDelay time.Duration

	refreshCalls atomic.Int32
}

func (f *fakeProvider) ProviderName() string { return "google" }

func (f *fakeProvider) AuthURL(state string) (string, error) {
	return "https://idp.test/auth?state=" + state, nil
}

func (f *fakeProvider) ExchangeCode(_ context.Context, code string) (*domain.TokenSet, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	if code != "good-code" {
		return nil, &port.UpstreamError{Kind: port.ErrTokenExchange, Status: http.StatusBadRequest}
	}
	return &domain.TokenSet{
		AccessToken:  "at-1",
		TokenType:    "Bearer",
		ExpiresIn:    3599,
		RefreshToken: "rt-1",
		Scope:        "openid email profile",
	}, nil
}

func (f *fakeProvider) FetchProfile(_ context.Context, accessToken string) (*domain.Identity, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return &domain.Identity{ID: "g-42", Email: "ada@campus.edu", Name: "Ada Lovelace"}, nil
}

func (f *fakeProvider) RefreshToken(ctx context.Context, refreshToken string) (*domain.TokenSet, error) {
	f.refreshCalls.Add(1)
	if f.refreshDelay > 0 {
		select {
		case <-time.After(f.refreshDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	next := &domain.TokenSet{AccessToken: "at-refreshed", TokenType: "Bearer", ExpiresIn: 3599}
	if f.rotate {
		next.RefreshToken = "rt-rotated"
	}
	return next, nil
}

func (f *fakeProvider) ValidateIDToken(_ context.Context, idToken string) (*domain.Identity, error) {
	if idToken != "good-id-token" {
		return nil, &port.UpstreamError{Kind: port.ErrInvalidToken, Status: http.StatusBadRequest}
	}
	return &domain.Identity{ID: "g-42", Email: "ada@campus.edu", Name: "Ada Lovelace"}, nil
}

// flakyKV wraps a MemoryStore and fails writes on demand.
type flakyKV struct {
	*store.MemoryStore

	mu          sync.Mutex
	failSets    bool
	failDeletes bool
	writes      int
}

var (
	errDiskFull = errors.New("disk full")
	errIO       = errors.New("io error")
)

func newFlakyKV() *flakyKV {
	return &flakyKV{MemoryStore: store.NewMemoryStore()}
}

func (f *flakyKV) fail(on bool) {
	f.mu.Lock()
	f.failSets = on
	f.mu.Unlock()
}

func (f *flakyKV) failDelete(on bool) {
	f.mu.Lock()
	f.failDeletes = on
	f.mu.Unlock()
}

func (f *flakyKV) Delete(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	fail := f.failDeletes
	f.mu.Unlock()
	if fail {
		return errIO
	}
	return f.MemoryStore.Delete(ctx, keys...)
}

func (f *flakyKV) Set(ctx context.Context, key string, value []byte) error {
	return f.SetMany(ctx, map[string][]byte{key: value})
}

func (f *flakyKV) SetMany(ctx context.Context, entries map[string][]byte) error {
	f.mu.Lock()
	fail := f.failSets
	f.writes++
	f.mu.Unlock()
	if fail {
		return errDiskFull
	}
	return f.MemoryStore.SetMany(ctx, entries)
}

func (f *flakyKV) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}
